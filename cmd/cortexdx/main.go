// Command cortexdx diagnoses a running MCP server: it drives the transport
// handshake, fans probes out across the server's capabilities, and writes a
// normalized findings report.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/bc-dunia/cortexdx/internal/auth"
	"github.com/bc-dunia/cortexdx/internal/config"
	"github.com/bc-dunia/cortexdx/internal/conversation"
	"github.com/bc-dunia/cortexdx/internal/conversation/llmadapter"
	"github.com/bc-dunia/cortexdx/internal/convapi"
	"github.com/bc-dunia/cortexdx/internal/events"
	"github.com/bc-dunia/cortexdx/internal/orchestrator"
	"github.com/bc-dunia/cortexdx/internal/otel"
	"github.com/bc-dunia/cortexdx/internal/patternmemory"
	"github.com/bc-dunia/cortexdx/internal/transport"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to load .env", "error", err)
	}

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: cortexdx <diagnose|serve> ...")
		os.Exit(1)
	}

	switch os.Args[1] {
	case "diagnose":
		runDiagnose()
	case "serve":
		runServe()
	default:
		fmt.Fprintln(os.Stderr, "usage: cortexdx <diagnose|serve> ...")
		os.Exit(1)
	}
}

func runDiagnose() {
	fs := flag.NewFlagSet("diagnose", flag.ExitOnError)
	suites := fs.String("suites", "all", "Comma-separated probe IDs to run, or \"all\"")
	severity := fs.String("severity", "info", "Minimum severity that yields a non-zero exit code: info, minor, major, blocker")
	outDir := fs.String("out", "", "Directory to write the findings report into (empty disables report writing)")
	async := fs.Bool("async", false, "Print only the report directory instead of the full findings report")
	timeout := fs.Duration("timeout", 2*time.Minute, "Overall run timeout")
	deterministic := fs.Bool("deterministic", false, "Disable nondeterministic probe behavior (fixed seeds, no jitter)")
	patternDB := fs.String("pattern-db", "", "Path to the pattern memory database (empty disables enrichment)")
	otelExporter := fs.String("otel-exporter", os.Getenv(config.EnvOTelExporter), "Telemetry exporter: none, stdout, otlp-grpc, otlp-http")
	otlpEndpoint := fs.String("otlp-endpoint", "", "OTLP collector endpoint (for otlp-grpc/otlp-http)")
	if err := fs.Parse(os.Args[2:]); err != nil {
		os.Exit(1)
	}

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: <endpoint> is required")
		os.Exit(1)
	}
	endpoint := fs.Arg(0)

	sev, err := parseSeverity(*severity)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := events.NewEventLogger(newRunID(), "cli")

	tel, err := otel.New(sigCtx, otel.Config{
		ServiceName:  "cortexdx",
		ExporterType: otel.ExporterType(nonEmpty(*otelExporter, string(otel.ExporterNone))),
		OTLPEndpoint: *otlpEndpoint,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: telemetry setup: %v\n", err)
		os.Exit(1)
	}
	otel.SetGlobal(tel)
	defer tel.Shutdown(context.Background())

	var store *patternmemory.Store
	if *patternDB != "" {
		env := "development"
		if config.IsProduction() {
			env = "production"
		}
		store, err = patternmemory.Open(*patternDB, env)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: opening pattern database: %v\n", err)
			os.Exit(1)
		}
		defer store.Close()
	}

	result, err := orchestrator.Run(sigCtx, orchestrator.RunInput{
		Endpoint:      endpoint,
		ProbeIDs:      parseSuites(*suites),
		SeverityGate:  sev,
		OutputDir:     *outDir,
		Deterministic: *deterministic,
		Adapter:       transport.NewStreamableHTTPAdapter(),
		PatternStore:  store,
		Logger:        logger,
		Telemetry:     tel,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: diagnostic run failed: %v\n", err)
		os.Exit(1)
	}

	if *async {
		if result.ReportDir != "" {
			fmt.Println(result.ReportDir)
		}
	} else {
		printFindings(result)
	}

	os.Exit(result.ExitCode)
}

func runServe() {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", "127.0.0.1:8090", "HTTP listen address for the conversational session surface")
	authMode := fs.String("auth-mode", "api_key", "Authentication mode: none, api_key")
	apiKeys := fs.String("api-keys", "", "Comma-separated API keys (for api_key mode)")
	insecure := fs.Bool("insecure", false, "Allow api_key mode to run without any configured keys (local dev only)")
	idleTimeout := fs.Duration("idle-timeout", 30*time.Minute, "Evict a conversational session after this much inactivity")
	if err := fs.Parse(os.Args[2:]); err != nil {
		os.Exit(1)
	}

	var mode auth.AuthMode
	switch strings.ToLower(*authMode) {
	case "none":
		mode = auth.AuthModeNone
	case "api_key":
		mode = auth.AuthModeAPIKey
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown --auth-mode %q: want none or api_key\n", *authMode)
		os.Exit(1)
	}
	keys := splitCSV(*apiKeys)
	if mode == auth.AuthModeAPIKey && len(keys) == 0 && !*insecure {
		fmt.Fprintln(os.Stderr, "Error: --api-keys is required in api_key mode (or pass --insecure for local development)")
		os.Exit(1)
	}
	if *insecure && config.IsProduction() {
		fmt.Fprintln(os.Stderr, "Error: --insecure is not allowed when CORTEXDX_ENV=production")
		os.Exit(1)
	}

	authConfig := &auth.Config{Mode: mode, APIKeys: keys, InsecureMode: *insecure}
	logger := events.NewEventLogger(newRunID(), "serve")

	manager := conversation.NewManager(llmadapter.NewNullAdapter(llmadapter.DefaultScript()), logger, conversation.ManagerConfig{
		IdleTimeout: *idleTimeout,
	})
	defer manager.Close()

	srv := convapi.NewServer(*addr, manager, authConfig)

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "Error: serve: %v\n", err)
			os.Exit(1)
		}
	case <-sigCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: graceful shutdown: %v\n", err)
			os.Exit(1)
		}
	}
}

func parseSuites(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "all" {
		return []string{"all"}
	}
	return splitCSV(raw)
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p := strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseSeverity(raw string) (orchestrator.Severity, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "info":
		return orchestrator.SeverityInfo, nil
	case "minor":
		return orchestrator.SeverityMinor, nil
	case "major":
		return orchestrator.SeverityMajor, nil
	case "blocker":
		return orchestrator.SeverityBlocker, nil
	default:
		return "", fmt.Errorf("unknown --severity %q: want info, minor, major, or blocker", raw)
	}
}

func printFindings(result orchestrator.RunResult) {
	if len(result.Findings) == 0 {
		fmt.Println("no findings")
	}
	for _, f := range result.Findings {
		fmt.Printf("[%s] %s: %s\n", strings.ToUpper(string(f.Severity)), f.ID, f.Title)
		if f.Description != "" {
			fmt.Printf("  %s\n", f.Description)
		}
	}
	if result.ReportDir != "" {
		fmt.Printf("report written to %s\n", result.ReportDir)
	}
}

func nonEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func newRunID() string {
	return "run_" + time.Now().UTC().Format("20060102T150405.000000000Z")
}
