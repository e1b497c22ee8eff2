package orchestrator

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/bc-dunia/cortexdx/internal/events"
	"github.com/bc-dunia/cortexdx/internal/otel"
)

// WorkerPoolConfig bounds how a diagnostic run's probes are fanned out.
type WorkerPoolConfig struct {
	// Parallelism caps the number of probes running at once. Zero means
	// min(8, len(probes)).
	Parallelism int

	// ProbeTimeout is the per-probe wall-clock budget. Zero means the
	// caller-supplied default is used (see RunProbes).
	ProbeTimeout time.Duration
}

func (c WorkerPoolConfig) resolve(probeCount int) WorkerPoolConfig {
	if c.Parallelism <= 0 {
		c.Parallelism = 8
		if probeCount < c.Parallelism {
			c.Parallelism = probeCount
		}
	}
	if c.Parallelism < 1 {
		c.Parallelism = 1
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 60 * time.Second
	}
	return c
}

// ProbeFindings groups the findings one probe produced, before the
// normalization pass dedups within the group and flattens across probes.
type ProbeFindings struct {
	ProbeID    string
	ProbeTitle string
	Findings   []Finding
}

// probeOutcome holds one probe's contribution to the run, kept at its
// submission index so RunProbes can flatten results in submission order
// regardless of completion order.
type probeOutcome struct {
	findings []Finding
}

// RunProbes fans probes out across a bounded worker pool sharing dc's
// transport session and rate limiter. Each probe runs in its own goroutine
// under its own timeout derived from dc.Context; a probe that panics or
// exceeds its budget never aborts the run as a whole, it only contributes a
// synthesized finding in its own slot.
//
// The returned groups are ordered by probe submission order (the order of
// the probes slice, which the caller should already have sorted by
// Ordinal) — never by completion order, which is unspecified.
func RunProbes(ctx context.Context, probes []Probe, dc DiagnosticContext, cfg WorkerPoolConfig, logger *events.EventLogger) []ProbeFindings {
	return RunProbesWithTelemetry(ctx, probes, dc, cfg, logger, nil)
}

// RunProbesWithTelemetry is RunProbes with an optional Telemetry sink; a nil
// tel records nothing.
func RunProbesWithTelemetry(ctx context.Context, probes []Probe, dc DiagnosticContext, cfg WorkerPoolConfig, logger *events.EventLogger, tel *otel.Telemetry) []ProbeFindings {
	if logger == nil {
		logger = events.NoopEventLogger()
	}
	if tel == nil {
		tel = otel.Noop()
	}
	cfg = cfg.resolve(len(probes))

	outcomes := make([]probeOutcome, len(probes))
	sem := semaphore.NewWeighted(int64(cfg.Parallelism))
	g, gctx := errgroup.WithContext(ctx)

	for i, p := range probes {
		i, p := i, p
		if err := sem.Acquire(gctx, 1); err != nil {
			// Run context was cancelled before this probe could start;
			// every remaining probe is skipped rather than forced to run.
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			outcomes[i] = runOneProbe(ctx, p, dc, cfg.ProbeTimeout, logger, tel)
			return nil
		})
	}

	// g.Wait never returns a non-nil error: runOneProbe converts every
	// probe failure into a finding instead of propagating it, so one
	// probe's trouble can't cancel gctx and abort its siblings.
	_ = g.Wait()

	groups := make([]ProbeFindings, len(probes))
	for i, p := range probes {
		groups[i] = ProbeFindings{ProbeID: p.ID(), ProbeTitle: p.Title(), Findings: outcomes[i].findings}
	}
	return groups
}

type probeResult struct {
	findings []Finding
	err      error
}

// runOneProbe executes a single probe under its own timeout, converting
// timeouts and panics into synthesized findings instead of letting them
// escape to the caller. Grounded on a deadline-based liveness check: the
// probe runs in its own goroutine and the result is raced against the
// timeout context, since Run is not required to observe ctx.Done() itself.
func runOneProbe(parent context.Context, p Probe, dc DiagnosticContext, timeout time.Duration, logger *events.EventLogger, tel *otel.Telemetry) probeOutcome {
	probeCtx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()
	probeCtx, span := tel.StartProbeSpan(probeCtx, p.ID())
	defer span.End()

	probeDC := dc
	probeDC.Context = probeCtx
	probeDC.ProbeTimeout = timeout

	logger.LogProbeStart(p.ID(), p.Ordinal())
	start := time.Now()

	resultCh := make(chan probeResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- probeResult{err: fmt.Errorf("probe %s panicked: %v", p.ID(), r)}
			}
		}()
		findings, err := p.Run(probeDC)
		resultCh <- probeResult{findings: findings, err: err}
	}()

	select {
	case res := <-resultCh:
		durationMs := time.Since(start).Milliseconds()
		if res.err != nil {
			logger.LogProbeCrash(p.ID(), res.err.Error())
			tel.RecordProbeDuration(probeCtx, p.ID(), float64(durationMs), "crash")
			return probeOutcome{findings: []Finding{crashFinding(p, res.err)}}
		}
		logger.LogProbeFinish(p.ID(), len(res.findings), durationMs)
		tel.RecordProbeDuration(probeCtx, p.ID(), float64(durationMs), "ok")
		return probeOutcome{findings: res.findings}
	case <-probeCtx.Done():
		// The probe's own output, if it eventually arrives, is discarded:
		// the budget has already been charged against it.
		logger.LogProbeTimeout(p.ID(), timeout.Milliseconds())
		tel.RecordProbeDuration(probeCtx, p.ID(), float64(timeout.Milliseconds()), "timeout")
		return probeOutcome{findings: []Finding{timeoutFinding(p, timeout)}}
	}
}

func timeoutFinding(p Probe, budget time.Duration) Finding {
	return Finding{
		ID:          "probe.timeout",
		Area:        "orchestrator",
		Severity:    SeverityMinor,
		Title:       fmt.Sprintf("probe %s exceeded its time budget", p.ID()),
		Description: fmt.Sprintf("probe %q did not complete within %s and was abandoned", p.ID(), budget),
		Evidence: []Evidence{
			{Kind: EvidenceLog, Excerpt: p.ID()},
		},
	}
}

func crashFinding(p Probe, err error) Finding {
	return Finding{
		ID:          "probe.crash",
		Area:        "orchestrator",
		Severity:    SeverityMajor,
		Title:       fmt.Sprintf("probe %s failed unrecoverably", p.ID()),
		Description: err.Error(),
		Evidence: []Evidence{
			{Kind: EvidenceLog, Excerpt: err.Error()},
		},
	}
}
