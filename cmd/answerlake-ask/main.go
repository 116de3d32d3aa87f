// answerlake-ask runs one analysis question from the command line and
// prints the outputs, without going through the HTTP API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/answerlake/answerlake/pkg/frame"
	"github.com/answerlake/answerlake/pkg/llm"
	"github.com/answerlake/answerlake/pkg/logger"
	"github.com/answerlake/answerlake/pkg/pipeline"
	"github.com/answerlake/answerlake/pkg/warehouse"
)

const (
	defaultModel     = "claude-sonnet-4-5"
	defaultMaxTokens = 8192
	defaultTimeout   = 5 * time.Minute
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	verbose := flag.Bool("verbose", false, "verbose mode - show debug logs")
	dsConfig := flag.String("datasource-config", getenv("DATASOURCE_CONFIG", "datasources.yaml"), "path to the datasource config YAML (env: DATASOURCE_CONFIG)")
	dsName := flag.String("datasource", getenv("DATASOURCE", ""), "datasource name; default: first configured (env: DATASOURCE)")
	model := flag.String("model", getenv("ANTHROPIC_MODEL", defaultModel), "anthropic model (env: ANTHROPIC_MODEL)")
	maxAttempts := flag.Int("max-attempts", 0, "generation attempts per stage; 0 selects the default")
	outputType := flag.String("output-type", "", "required answer type (int, float, string, bool, pandas-dataframe, plotly-chart)")
	timeout := flag.Duration("timeout", defaultTimeout, "analysis deadline")
	flag.Parse()

	question := strings.TrimSpace(strings.Join(flag.Args(), " "))
	if question == "" {
		return fmt.Errorf("usage: answerlake-ask [flags] <question>")
	}
	if os.Getenv("ANTHROPIC_API_KEY") == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required")
	}

	log := logger.New(os.Stderr, *verbose)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, *timeout)
	defer cancelTimeout()

	cfg, err := warehouse.LoadConfig(*dsConfig)
	if err != nil {
		return err
	}
	ds := cfg.Datasources[0]
	if *dsName != "" {
		var ok bool
		ds, ok = cfg.Datasource(*dsName)
		if !ok {
			return fmt.Errorf("datasource %q not found in %s", *dsName, *dsConfig)
		}
	}
	conn, err := warehouse.Open(ctx, log, ds)
	if err != nil {
		return fmt.Errorf("failed to open datasource %q: %w", ds.Name, err)
	}
	defer conn.Close()

	client := anthropic.NewClient()
	oracle := llm.NewAnthropicOracle(client, anthropic.Model(*model), defaultMaxTokens, log)
	guard := llm.NewCompletionGuard(oracle, log)
	orch := pipeline.NewOrchestrator(oracle, guard, conn, nil, log)

	resp := orch.Analyze(ctx, pipeline.Request{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: question}},
		Config: pipeline.Config{
			MaxAttempts: *maxAttempts,
			OutputType:  pipeline.OutputType(*outputType),
		},
	})

	for _, out := range resp.Outputs {
		printOutput(out)
	}
	for _, e := range resp.Errors {
		fmt.Fprintf(os.Stderr, "error (%s): %s\n", e.Type, e.Value)
	}
	fmt.Printf("\nstatus: %s, attempts: %d, generations: %d\n",
		resp.Status, len(resp.Attempts), resp.Usage.Tokens)

	if resp.Status != pipeline.StatusSucceeded {
		return fmt.Errorf("analysis failed")
	}
	return nil
}

func printOutput(out pipeline.Output) {
	if out.Description != "" {
		fmt.Printf("# %s\n", out.Description)
	}
	switch v := out.Value.(type) {
	case *frame.Frame:
		fmt.Println(v.Format(20))
	case map[string]any:
		fmt.Printf("%s: %v\n", out.Type, v)
	default:
		fmt.Printf("%v\n", v)
	}
	fmt.Println()
}

func getenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}
