package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/bc-dunia/cortexdx/internal/events"
	"github.com/bc-dunia/cortexdx/internal/otel"
	"github.com/bc-dunia/cortexdx/internal/patternmemory"
	"github.com/bc-dunia/cortexdx/internal/ratelimit"
	"github.com/bc-dunia/cortexdx/internal/transport"
)

// RunInput is everything a diagnostic run needs to execute.
type RunInput struct {
	Endpoint      string
	ProbeIDs      []string // or {"all"}
	Headers       map[string]string
	SeverityGate  Severity
	OutputDir     string // empty disables report writing
	Deterministic bool

	Adapter      transport.Adapter
	PatternStore *patternmemory.Store // nil disables enrichment
	Registry     *Registry            // nil means DefaultRegistry
	Logger       *events.EventLogger  // nil means a no-op logger
	Telemetry    *otel.Telemetry      // nil means no-op

	TransportConfig *transport.TransportConfig // nil builds one from Endpoint/Headers
	WorkerConfig    WorkerPoolConfig
	EvidenceCap     int
}

// RunResult is a completed diagnostic run's outcome.
type RunResult struct {
	Findings  []Finding
	ExitCode  int
	ReportDir string // empty if OutputDir was empty
}

// Run drives one diagnostic run end-to-end: the C1 handshake, probe
// fan-out, normalization, and (if OutputDir is set) report writing.
func Run(ctx context.Context, in RunInput) (RunResult, error) {
	logger := in.Logger
	if logger == nil {
		logger = events.NoopEventLogger()
	}
	registry := in.Registry
	if registry == nil {
		registry = DefaultRegistry
	}
	tel := in.Telemetry
	if tel == nil {
		tel = otel.Noop()
	}

	start := time.Now()
	session := transport.NewSession(in.Endpoint, in.Adapter)
	cfg := in.TransportConfig
	if cfg == nil {
		cfg = &transport.TransportConfig{Endpoint: in.Endpoint, Headers: in.Headers}
	}

	if _, err := session.Initialize(ctx, cfg); err != nil {
		logger.LogHandshake(in.Endpoint, false, time.Since(start).Milliseconds(), err.Error())
		finding := handshakeFailureFinding(in.Endpoint, err)
		result := RunResult{Findings: []Finding{finding}, ExitCode: 2}
		if in.OutputDir != "" {
			dir, werr := writeRun(in, []ProbeFindings{{ProbeID: "transport.handshake", ProbeTitle: "transport handshake", Findings: result.Findings}}, result.Findings, len(in.ProbeIDs))
			if werr != nil {
				return result, werr
			}
			result.ReportDir = dir
		}
		return result, nil
	}
	logger.LogHandshake(in.Endpoint, true, time.Since(start).Milliseconds(), "")

	selected, missing := registry.Select(in.ProbeIDs)
	for _, id := range missing {
		logger.Logger().Warn("probe.unknown", "probe_id", id)
	}

	limiter := ratelimit.NewLimiter(logger)
	defer limiter.Close()

	dc := DiagnosticContext{
		Context:       ctx,
		Endpoint:      in.Endpoint,
		Headers:       in.Headers,
		Deterministic: in.Deterministic,
		Session:       session,
		RateLimiter:   limiter,
		PatternStore:  in.PatternStore,
	}

	groups := RunProbesWithTelemetry(ctx, selected, dc, in.WorkerConfig, logger, tel)
	if len(selected) > 0 {
		groups = append(groups, transcriptFindingGroup(session))
	}

	findings, code := Normalize(groups, in.PatternStore, RunOptions{
		SeverityGate: in.SeverityGate,
		EvidenceCap:  in.EvidenceCap,
	})
	for _, f := range findings {
		tel.RecordFinding(ctx, string(f.Severity))
	}

	result := RunResult{Findings: findings, ExitCode: code}
	if in.OutputDir != "" {
		dir, err := writeRun(in, groups, findings, len(selected)+len(missing))
		if err != nil {
			return result, err
		}
		result.ReportDir = dir
	}
	return result, nil
}

func handshakeFailureFinding(endpoint string, err error) Finding {
	return Finding{
		ID:          "transport.handshake",
		Area:        "transport",
		Severity:    SeverityBlocker,
		Title:       "initialize handshake failed",
		Description: fmt.Sprintf("could not establish an MCP session against %s: %s", endpoint, err),
		Evidence: []Evidence{
			{Kind: EvidenceLog, Excerpt: err.Error()},
		},
	}
}

// transcriptFindingGroup summarizes the session's exchange tail as a single
// informational finding, appended after all probes complete per the
// orchestrator's execution plan.
func transcriptFindingGroup(session *transport.Session) ProbeFindings {
	t := session.Transcript(20)

	var excerpt string
	for _, entry := range t.Tail {
		status := "ok"
		if entry.Outcome != nil && entry.Outcome.Error != nil {
			status = "error"
		}
		excerpt += fmt.Sprintf("#%d %s: %s\n", entry.Seq, entry.Method, status)
	}
	if excerpt == "" {
		excerpt = "(no exchanges recorded)"
	}

	return ProbeFindings{
		ProbeID:    "transport.transcript",
		ProbeTitle: "transport transcript summary",
		Findings: []Finding{{
			ID:          "transport.transcript",
			Area:        "transport",
			Severity:    SeverityInfo,
			Title:       "session exchange tail",
			Description: "summary of the final JSON-RPC exchanges observed during this run",
			Evidence: []Evidence{
				{Kind: EvidenceLog, Excerpt: excerpt},
			},
		}},
	}
}

func writeRun(in RunInput, groups []ProbeFindings, findings []Finding, requested int) (string, error) {
	report := BuildReport(ReportInput{
		Topic:     in.Endpoint,
		Timestamp: time.Now(),
		Groups:    groups,
		Findings:  findings,
		Requested: requested,
	})
	return WriteReportFiles(in.OutputDir, report, time.Now())
}
