package sandbox

// Statements.

type stmt interface {
	stmtNode()
	Line() int
}

type importAlias struct {
	Name  string // dotted module path or imported symbol
	Alias string // binding name; defaults to the last path segment
}

type importStmt struct {
	line    int
	Modules []importAlias
}

type fromImportStmt struct {
	line   int
	Module string
	Names  []importAlias
}

type defStmt struct {
	line   int
	Name   string
	Params []param
	Doc    string
	Body   []stmt
}

type param struct {
	Name    string
	Default expr // nil when required
}

type returnStmt struct {
	line  int
	Value expr // nil for bare return
}

type assignStmt struct {
	line    int
	Targets []expr // name, tuple of names, attribute, or subscript
	Value   expr
}

type augAssignStmt struct {
	line   int
	Target expr
	Op     string // "+", "-", "*", "/"
	Value  expr
}

type exprStmt struct {
	line  int
	Value expr
}

type ifStmt struct {
	line int
	Cond expr
	Body []stmt
	Else []stmt // nil, a nested ifStmt (elif), or the else suite
}

type forStmt struct {
	line    int
	Targets []expr // names only
	Iter    expr
	Body    []stmt
}

type whileStmt struct {
	line int
	Cond expr
	Body []stmt
}

type passStmt struct{ line int }
type breakStmt struct{ line int }
type continueStmt struct{ line int }

func (s *importStmt) stmtNode()     {}
func (s *fromImportStmt) stmtNode() {}
func (s *defStmt) stmtNode()        {}
func (s *returnStmt) stmtNode()     {}
func (s *assignStmt) stmtNode()     {}
func (s *augAssignStmt) stmtNode()  {}
func (s *exprStmt) stmtNode()       {}
func (s *ifStmt) stmtNode()         {}
func (s *forStmt) stmtNode()        {}
func (s *whileStmt) stmtNode()      {}
func (s *passStmt) stmtNode()       {}
func (s *breakStmt) stmtNode()      {}
func (s *continueStmt) stmtNode()   {}

func (s *importStmt) Line() int     { return s.line }
func (s *fromImportStmt) Line() int { return s.line }
func (s *defStmt) Line() int        { return s.line }
func (s *returnStmt) Line() int     { return s.line }
func (s *assignStmt) Line() int     { return s.line }
func (s *augAssignStmt) Line() int  { return s.line }
func (s *exprStmt) Line() int       { return s.line }
func (s *ifStmt) Line() int         { return s.line }
func (s *forStmt) Line() int        { return s.line }
func (s *whileStmt) Line() int      { return s.line }
func (s *passStmt) Line() int       { return s.line }
func (s *breakStmt) Line() int      { return s.line }
func (s *continueStmt) Line() int   { return s.line }

// Expressions.

type expr interface {
	exprNode()
	Line() int
}

type nameExpr struct {
	line int
	Name string
}

type intLit struct {
	line  int
	Value int64
}

type floatLit struct {
	line  int
	Value float64
}

type strLit struct {
	line  int
	Value string
}

type boolLit struct {
	line  int
	Value bool
}

type noneLit struct{ line int }

type listLit struct {
	line  int
	Elems []expr
}

type tupleLit struct {
	line  int
	Elems []expr
}

type dictLit struct {
	line   int
	Keys   []expr
	Values []expr
}

type attrExpr struct {
	line int
	X    expr
	Name string
}

type indexExpr struct {
	line  int
	X     expr
	Index expr
}

type sliceExpr struct {
	line int
	X    expr
	Lo   expr // nil for open bound
	Hi   expr
}

type kwarg struct {
	Name  string
	Value expr
}

type callExpr struct {
	line   int
	Fun    expr
	Args   []expr
	Kwargs []kwarg
}

type unaryExpr struct {
	line int
	Op   string // "-", "+", "not"
	X    expr
}

type binaryExpr struct {
	line int
	Op   string // arithmetic, comparison, "in", "not in"
	X    expr
	Y    expr
}

type boolOpExpr struct {
	line int
	Op   string // "and", "or"
	X    expr
	Y    expr
}

type condExpr struct {
	line int
	Cond expr
	Then expr
	Else expr
}

type lambdaExpr struct {
	line   int
	Params []param
	Body   expr
}

func (e *nameExpr) exprNode()   {}
func (e *intLit) exprNode()     {}
func (e *floatLit) exprNode()   {}
func (e *strLit) exprNode()     {}
func (e *boolLit) exprNode()    {}
func (e *noneLit) exprNode()    {}
func (e *listLit) exprNode()    {}
func (e *tupleLit) exprNode()   {}
func (e *dictLit) exprNode()    {}
func (e *attrExpr) exprNode()   {}
func (e *indexExpr) exprNode()  {}
func (e *sliceExpr) exprNode()  {}
func (e *callExpr) exprNode()   {}
func (e *unaryExpr) exprNode()  {}
func (e *binaryExpr) exprNode() {}
func (e *boolOpExpr) exprNode() {}
func (e *condExpr) exprNode()   {}
func (e *lambdaExpr) exprNode() {}

func (e *nameExpr) Line() int   { return e.line }
func (e *intLit) Line() int     { return e.line }
func (e *floatLit) Line() int   { return e.line }
func (e *strLit) Line() int     { return e.line }
func (e *boolLit) Line() int    { return e.line }
func (e *noneLit) Line() int    { return e.line }
func (e *listLit) Line() int    { return e.line }
func (e *tupleLit) Line() int   { return e.line }
func (e *dictLit) Line() int    { return e.line }
func (e *attrExpr) Line() int   { return e.line }
func (e *indexExpr) Line() int  { return e.line }
func (e *sliceExpr) Line() int  { return e.line }
func (e *callExpr) Line() int   { return e.line }
func (e *unaryExpr) Line() int  { return e.line }
func (e *binaryExpr) Line() int { return e.line }
func (e *boolOpExpr) Line() int { return e.line }
func (e *condExpr) Line() int   { return e.line }
func (e *lambdaExpr) Line() int { return e.line }
