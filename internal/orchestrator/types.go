// Package orchestrator drives a diagnostic run: it holds the C1 transport
// session open, fans probes out across a bounded worker pool, normalizes
// their findings, and writes the run's report artifacts.
package orchestrator

import (
	"context"
	"time"

	"github.com/bc-dunia/cortexdx/internal/patternmemory"
	"github.com/bc-dunia/cortexdx/internal/ratelimit"
	"github.com/bc-dunia/cortexdx/internal/transport"
)

// Severity is the ordered finding severity. Ordering matters: Rank reports
// where a severity falls in info < minor < major < blocker.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityMinor   Severity = "minor"
	SeverityMajor   Severity = "major"
	SeverityBlocker Severity = "blocker"
)

// Rank returns the severity's position in the info..blocker ordering, used
// to compute the maximum severity across a run's findings.
func (s Severity) Rank() int {
	switch s {
	case SeverityInfo:
		return 0
	case SeverityMinor:
		return 1
	case SeverityMajor:
		return 2
	case SeverityBlocker:
		return 3
	default:
		return 0
	}
}

// EvidenceKind tags which field of Evidence is populated.
type EvidenceKind string

const (
	EvidenceURL  EvidenceKind = "url"
	EvidenceLog  EvidenceKind = "log"
	EvidenceFile EvidenceKind = "file"
	EvidenceSpan EvidenceKind = "span"
)

// Evidence is a tagged pointer backing a finding. Exactly the field matching
// Kind is meaningful; the others are zero.
type Evidence struct {
	Kind EvidenceKind `json:"kind"`

	// Kind == EvidenceURL
	Reference string `json:"reference,omitempty"`

	// Kind == EvidenceLog
	Excerpt string `json:"excerpt,omitempty"`

	// Kind == EvidenceFile
	Path      string `json:"path,omitempty"`
	LineStart int    `json:"lineStart,omitempty"`
	LineEnd   int    `json:"lineEnd,omitempty"`

	// Kind == EvidenceSpan
	TraceID string `json:"traceId,omitempty"`
}

// Finding is an atomic diagnostic observation. Probes produce findings as
// value objects; only the orchestrator's normalization/enrichment pass and
// the conversational manager may append to the enrichment fields below.
type Finding struct {
	ID             string     `json:"id"`
	Area           string     `json:"area"`
	Severity       Severity   `json:"severity"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Evidence       []Evidence `json:"evidence,omitempty"`
	Recommendation string     `json:"recommendation,omitempty"`
	Tags           []string   `json:"tags,omitempty"`
	Confidence     *float64   `json:"confidence,omitempty"`

	// Enrichment fields, written only by the conversational manager (C5).
	// Probes and the orchestrator's normalization pass never set these.
	LLMAnalysis     string   `json:"llmAnalysis,omitempty"`
	RootCause       string   `json:"rootCause,omitempty"`
	FilesToModify   []string `json:"filesToModify,omitempty"`
	CodeChanges     string   `json:"codeChanges,omitempty"`
	ValidationSteps []string `json:"validationSteps,omitempty"`
	RiskLevel       string   `json:"riskLevel,omitempty"`
	TemplateID      string   `json:"templateId,omitempty"`
	CanAutoFix      bool     `json:"canAutoFix,omitempty"`
}

// DiagnosticContext is the read-only projection of run state a probe
// receives. A probe must not mutate it; Run receives it by value and its
// pointer fields (Session, RateLimiter, PatternStore) are themselves safe
// for concurrent use by multiple probes.
type DiagnosticContext struct {
	Context context.Context

	Endpoint      string
	Headers       map[string]string
	Deterministic bool

	Session      *transport.Session
	RateLimiter  *ratelimit.Limiter
	PatternStore *patternmemory.Store

	// ProbeTimeout is the wall-clock budget the worker pool enforces for
	// the probe this context was built for.
	ProbeTimeout time.Duration
}

// RateLimitKey builds the C2 key a probe must use for outbound third-party
// calls: {providerId, callerPolicyClass}.
func RateLimitKey(providerID, callerPolicyClass string) string {
	return providerID + ":" + callerPolicyClass
}

// Probe is the plugin contract every diagnostic check implements.
type Probe interface {
	// ID is the stable, dotted-namespace probe identifier (e.g.
	// "transport.handshake_replay").
	ID() string

	// Title is a short human-readable probe name for logs and reports.
	Title() string

	// Ordinal fixes submission order; actual completion order is not
	// specified and must not be relied upon by findings.
	Ordinal() int

	// RequiresLLM reports whether this probe only makes sense once an LLM
	// adapter is bound to the run (C5 territory); diagnose-only runs skip
	// these probes.
	RequiresLLM() bool

	// Run executes the probe against ctx and returns its findings. Run
	// must not mutate ctx, must route outbound third-party calls through
	// ctx.RateLimiter when present, and must return (or respond to
	// ctx.Context.Done()) within ctx.ProbeTimeout.
	Run(ctx DiagnosticContext) ([]Finding, error)
}
