package orchestrator

import (
	"github.com/bc-dunia/cortexdx/internal/config"
	"github.com/bc-dunia/cortexdx/internal/patternmemory"
)

// RunOptions controls the normalization pass.
type RunOptions struct {
	// SeverityGate raises the reported exit code to 1 when any finding
	// meets or exceeds it, even if the run would otherwise report 0.
	// Empty means no gate.
	SeverityGate Severity

	// EvidenceCap bounds evidence excerpt length before truncation. Zero
	// means config.DefaultEvidenceCap.
	EvidenceCap int

	// EnrichmentConfidence is the pattern-memory confidence threshold a
	// retrieved pattern must clear before its solution is attached as a
	// recommendation. Zero means 0.7.
	EnrichmentConfidence float64
}

func (o RunOptions) resolve() RunOptions {
	if o.EvidenceCap <= 0 {
		o.EvidenceCap = config.DefaultEvidenceCap
	}
	if o.EnrichmentConfidence <= 0 {
		o.EnrichmentConfidence = 0.7
	}
	return o
}

// Normalize runs the deterministic, order-preserving pass over a run's raw
// probe output: dedup within each probe, pattern-memory enrichment,
// evidence truncation, and severity-to-exit-code mapping. store may be nil,
// in which case enrichment is skipped.
func Normalize(groups []ProbeFindings, store *patternmemory.Store, opts RunOptions) ([]Finding, int) {
	opts = opts.resolve()

	var findings []Finding
	for _, g := range groups {
		findings = append(findings, dedupWithinProbe(g.Findings)...)
	}

	for i := range findings {
		enrich(&findings[i], store, opts.EnrichmentConfidence)
		truncateEvidence(&findings[i], opts.EvidenceCap)
	}

	return findings, exitCode(findings, opts.SeverityGate)
}

// dedupWithinProbe folds findings sharing an (ID, Title) pair into the
// first occurrence. Collisions across different probes are never folded
// here — Normalize calls this per-group before concatenating.
func dedupWithinProbe(in []Finding) []Finding {
	if len(in) == 0 {
		return in
	}

	type key struct{ id, title string }
	seen := make(map[key]struct{}, len(in))
	out := make([]Finding, 0, len(in))
	for _, f := range in {
		k := key{f.ID, f.Title}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, f)
	}
	return out
}

// enrich attaches the top matching pattern's solution as a recommendation
// when the finding doesn't already carry one and the match clears the
// confidence threshold.
func enrich(f *Finding, store *patternmemory.Store, minConfidence float64) {
	if store == nil || f.Recommendation != "" {
		return
	}

	signature := f.Title + ": " + f.Description
	results, err := store.Retrieve(signature, patternmemory.RetrieveOptions{
		SortBy: patternmemory.SortByConfidence,
		Limit:  1,
	})
	if err != nil || len(results) == 0 {
		return
	}

	top := results[0].Pattern
	if top.Confidence <= minConfidence || top.DecryptFailed {
		return
	}
	f.Recommendation = top.Solution
}

const truncationMarker = "…[truncated]"

func truncateEvidence(f *Finding, cap int) {
	for i := range f.Evidence {
		e := &f.Evidence[i]
		if len(e.Excerpt) > cap {
			e.Excerpt = e.Excerpt[:cap] + truncationMarker
		}
	}
}

// exitCode maps the maximum finding severity to the CLI's exit-code
// contract, honoring an optional severity gate that can raise a clean run
// to 1.
func exitCode(findings []Finding, gate Severity) int {
	maxRank := -1
	gateHit := false
	for _, f := range findings {
		if f.Severity.Rank() > maxRank {
			maxRank = f.Severity.Rank()
		}
		if gate != "" && f.Severity.Rank() >= gate.Rank() {
			gateHit = true
		}
	}

	code := 0
	switch {
	case maxRank >= SeverityBlocker.Rank():
		code = 2
	case maxRank >= SeverityMajor.Rank():
		code = 1
	default:
		code = 0
	}

	if code == 0 && gateHit {
		code = 1
	}
	return code
}
