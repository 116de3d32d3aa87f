// Package sandbox runs generated analysis scripts inside an embedded
// interpreter for a restricted Python-shaped language. Scripts never touch
// the host process: there is no filesystem, no network, no reflection, and
// imports resolve only against an explicit allow-list of built-in modules.
//
// Execution happens in three phases. The source is parsed into a typed
// syntax tree, statically verified against the security policy, then
// interpreted directly. Verification failures surface as *SecurityError
// and abort before any statement runs.
package sandbox

import (
	"strings"
)

// Options configures a single script execution.
type Options struct {
	// AllowedImports lists importable module names. Nil allows every
	// module in Modules.
	AllowedImports []string
	// Modules overrides the importable module set. Nil uses DefaultModules.
	Modules map[string]*Module
	// Locals are pre-bound global variables visible to the script.
	Locals map[string]Value
	// MaxDepth bounds syntax tree nesting during verification. Zero means
	// no bound.
	MaxDepth int
	// MaxSteps bounds interpreter work to stop runaway loops. Zero applies
	// the default budget.
	MaxSteps int
}

const defaultMaxSteps = 2_000_000

// Execution is a finished script run. The interpreter state is retained so
// functions the script defined can still be called.
type Execution struct {
	// Value is the value of the trailing expression statement, or nil when
	// the script does not end in an expression.
	Value Value
	// Locals are the script's global bindings after execution, excluding
	// modules and unchanged host-provided values.
	Locals map[string]Value
	in     *interp
}

// Stdout returns everything the script printed so far, including output
// produced by later Call invocations.
func (e *Execution) Stdout() string { return e.in.stdout.String() }

// Call invokes a function the script defined, by name.
func (e *Execution) Call(name string, args ...Value) (Value, error) {
	fn, ok := e.in.globals.lookup(name)
	if !ok {
		return nil, nameErrorf(name)
	}
	return e.in.call(fn, args, nil)
}

// Defined reports whether the script bound the given global name.
func (e *Execution) Defined(name string) bool {
	_, ok := e.in.globals.lookup(name)
	return ok
}

// Run parses, verifies and executes src. A *SecurityError is returned when
// the script violates the execution policy; any other error is a syntax or
// runtime failure of the script itself.
func Run(src string, opts Options) (*Execution, error) {
	stmts, err := parse(src)
	if err != nil {
		return nil, err
	}

	modules := opts.Modules
	if modules == nil {
		modules = DefaultModules()
	}
	allowed := opts.AllowedImports
	if allowed == nil {
		allowed = make([]string, 0, len(modules))
		for name := range modules {
			allowed = append(allowed, name)
		}
	}
	if err := verify(stmts, allowed, opts.MaxDepth); err != nil {
		return nil, err
	}

	maxSteps := opts.MaxSteps
	if maxSteps == 0 {
		maxSteps = defaultMaxSteps
	}
	in := &interp{
		globals:  newEnviron(nil),
		modules:  modules,
		stdout:   &strings.Builder{},
		maxSteps: maxSteps,
	}
	for name, v := range opts.Locals {
		in.globals.set(name, v)
	}

	// all statements run; the value of a trailing expression statement is
	// kept as the script result
	var last Value
	for i, s := range stmts {
		if es, ok := s.(*exprStmt); ok && i == len(stmts)-1 {
			v, err := in.eval(es.Value, in.globals)
			if err != nil {
				return nil, err
			}
			last = v
			break
		}
		if err := in.exec(s, in.globals); err != nil {
			switch err.(type) {
			case returnSignal, breakSignal, continueSignal:
				return nil, &execError{msg: "SyntaxError: " + err.Error()}
			}
			return nil, err
		}
	}

	locals := make(map[string]Value)
	for name, v := range in.globals.vars {
		if _, isModule := v.(*Module); isModule {
			continue
		}
		locals[name] = v
	}
	return &Execution{Value: last, Locals: locals, in: in}, nil
}
