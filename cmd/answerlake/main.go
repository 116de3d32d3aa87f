package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/answerlake/answerlake/pkg/llm"
	"github.com/answerlake/answerlake/pkg/logger"
	"github.com/answerlake/answerlake/pkg/metrics"
	"github.com/answerlake/answerlake/pkg/pipeline"
	"github.com/answerlake/answerlake/pkg/server"
	"github.com/answerlake/answerlake/pkg/warehouse"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	defaultListenAddr  = ":8080"
	defaultMetricsAddr = ":2112"
	defaultModel       = "claude-sonnet-4-5"
	defaultMaxTokens   = 8192
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if cfg.ShowVersion {
		fmt.Printf("version: %s, commit: %s, date: %s\n", version, commit, date)
		return nil
	}

	log := logger.New(os.Stdout, cfg.Verbose)

	if os.Getenv("ANTHROPIC_API_KEY") == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required")
	}

	// Start prometheus metrics server
	if cfg.MetricsAddr != "" {
		metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)
		go func() {
			listener, err := net.Listen("tcp", cfg.MetricsAddr)
			if err != nil {
				log.Error("Failed to start prometheus metrics server listener", "error", err)
				os.Exit(1)
			}
			log.Info("Prometheus metrics server listening", "address", listener.Addr().String())
			http.Handle("/metrics", promhttp.Handler())
			if err := http.Serve(listener, nil); err != nil {
				log.Error("Failed to start prometheus metrics server", "error", err)
				os.Exit(1)
			}
		}()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	wcfg, err := warehouse.LoadConfig(cfg.DatasourceConfig)
	if err != nil {
		return err
	}
	ds := wcfg.Datasources[0]
	if cfg.Datasource != "" {
		var ok bool
		ds, ok = wcfg.Datasource(cfg.Datasource)
		if !ok {
			return fmt.Errorf("datasource %q not found in %s", cfg.Datasource, cfg.DatasourceConfig)
		}
	}
	conn, err := warehouse.Open(ctx, log, ds)
	if err != nil {
		return fmt.Errorf("failed to open datasource %q: %w", ds.Name, err)
	}
	defer conn.Close()
	log.Info("datasource connected", "name", ds.Name, "kind", conn.Kind())

	client := anthropic.NewClient()
	oracle := llm.NewAnthropicOracle(client, anthropic.Model(cfg.Model), cfg.MaxTokens, log)
	guard := llm.NewCompletionGuard(oracle, log)

	orch := pipeline.NewOrchestrator(oracle, guard, conn, nil, log)

	srv, err := server.New(server.Config{
		Log:            log,
		Orchestrator:   orch,
		Conn:           conn,
		SchemaCacheTTL: cfg.SchemaCacheTTL,
		RequestTimeout: cfg.RequestTimeout,
		AllowedOrigins: cfg.AllowedOrigins,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	listener, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}
	defer listener.Close()

	log.Info("listening on", "address", listener.Addr().String(), "model", cfg.Model)
	return srv.Start(ctx, listener)
}

type Config struct {
	ShowVersion bool
	Verbose     bool

	ListenAddr  string
	MetricsAddr string

	DatasourceConfig string
	Datasource       string

	Model     string
	MaxTokens int64

	SchemaCacheTTL time.Duration
	RequestTimeout time.Duration
	AllowedOrigins []string
}

func getenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getenvInt64(key string, def int64) (int64, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", key, v, err)
	}
	return i, nil
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func loadConfig() (Config, error) {
	var cfg Config
	var originsCSV string

	flag.BoolVar(&cfg.ShowVersion, "version", false, "show version and exit")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "verbose mode - show debug logs")

	flag.StringVar(&cfg.ListenAddr, "listen-addr", getenv("LISTEN_ADDR", defaultListenAddr), "address to listen on for the API (env: LISTEN_ADDR)")
	flag.StringVar(&cfg.MetricsAddr, "metrics-addr", getenv("METRICS_ADDR", defaultMetricsAddr), "address to listen on for prometheus metrics (env: METRICS_ADDR)")
	flag.StringVar(&cfg.DatasourceConfig, "datasource-config", getenv("DATASOURCE_CONFIG", "datasources.yaml"), "path to the datasource config YAML (env: DATASOURCE_CONFIG)")
	flag.StringVar(&cfg.Datasource, "datasource", getenv("DATASOURCE", ""), "datasource name to serve; default: first configured (env: DATASOURCE)")
	flag.StringVar(&cfg.Model, "model", getenv("ANTHROPIC_MODEL", defaultModel), "anthropic model (env: ANTHROPIC_MODEL)")
	flag.DurationVar(&cfg.SchemaCacheTTL, "schema-cache-ttl", 0, "schema summary cache TTL; 0 selects the default")
	flag.DurationVar(&cfg.RequestTimeout, "request-timeout", 0, "per-analysis deadline; 0 selects the default")
	flag.StringVar(&originsCSV, "allowed-origins", getenv("ALLOWED_ORIGINS", ""), "CORS allowed origins csv (env: ALLOWED_ORIGINS)")

	flag.Parse()

	maxTokens, err := getenvInt64("ANTHROPIC_MAX_TOKENS", defaultMaxTokens)
	if err != nil {
		return cfg, err
	}
	cfg.MaxTokens = maxTokens
	cfg.AllowedOrigins = splitCSV(originsCSV)
	return cfg, nil
}
