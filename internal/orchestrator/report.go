package orchestrator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ReportError is one probe-level failure surfaced in the report summary,
// distinct from a Finding: it describes the run's own bookkeeping (a probe
// that could not be selected, for instance), not a diagnostic observation.
type ReportError struct {
	ProviderID string    `json:"providerId"`
	Message    string    `json:"message"`
	Evidence   *Evidence `json:"evidence,omitempty"`
}

// ReportProvider is one probe's section of the report, named "provider" to
// match the external report schema's field names.
type ReportProvider struct {
	ProviderID   string    `json:"providerId"`
	ProviderName string    `json:"providerName"`
	Findings     []Finding `json:"findings"`
}

// ReportSummary rolls up run-level counts.
type ReportSummary struct {
	TotalFindings      int           `json:"totalFindings"`
	ProvidersRequested int           `json:"providersRequested"`
	ProvidersResponded int           `json:"providersResponded"`
	Errors             []ReportError `json:"errors"`
}

// Report is the full structured shape written to research.json.
type Report struct {
	Topic     string           `json:"topic"`
	Question  string           `json:"question,omitempty"`
	Timestamp string           `json:"timestamp"`
	Providers []ReportProvider `json:"providers"`
	Findings  []Finding        `json:"findings"`
	Summary   ReportSummary    `json:"summary"`
	Artifacts []string         `json:"artifacts,omitempty"`
}

// ReportInput assembles everything BuildReport needs from a completed run.
type ReportInput struct {
	Topic      string
	Question   string
	Timestamp  time.Time
	Groups     []ProbeFindings
	Findings   []Finding
	Requested  int
	Errors     []ReportError
	Artifacts  []string
}

// BuildReport assembles the structured report from a run's raw per-probe
// groups and its normalized finding list.
func BuildReport(in ReportInput) Report {
	providers := make([]ReportProvider, 0, len(in.Groups))
	responded := 0
	for _, g := range in.Groups {
		if len(g.Findings) > 0 {
			responded++
		}
		providers = append(providers, ReportProvider{
			ProviderID:   g.ProbeID,
			ProviderName: g.ProbeTitle,
			Findings:     g.Findings,
		})
	}

	errs := in.Errors
	if errs == nil {
		errs = []ReportError{}
	}

	return Report{
		Topic:     in.Topic,
		Question:  in.Question,
		Timestamp: in.Timestamp.UTC().Format(time.RFC3339),
		Providers: providers,
		Findings:  in.Findings,
		Summary: ReportSummary{
			TotalFindings:      len(in.Findings),
			ProvidersRequested: in.Requested,
			ProvidersResponded: responded,
			Errors:             errs,
		},
		Artifacts: in.Artifacts,
	}
}

// GenerateJSON renders the report as pretty-printed JSON.
func GenerateJSON(r Report) ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// GenerateMarkdown renders the report as prose: a header with topic,
// question, timestamp, and provider/finding counts, followed by one section
// per provider listing each finding's title, severity, confidence, and
// description, with a reference to its first evidence pointer.
func GenerateMarkdown(r Report) []byte {
	var b strings.Builder

	fmt.Fprintf(&b, "# Diagnostic report: %s\n\n", r.Topic)
	if r.Question != "" {
		fmt.Fprintf(&b, "**Question:** %s\n\n", r.Question)
	}
	fmt.Fprintf(&b, "**Generated:** %s\n\n", r.Timestamp)
	fmt.Fprintf(&b, "**Probes:** %d requested, %d responded with findings. **Total findings:** %d.\n\n",
		r.Summary.ProvidersRequested, r.Summary.ProvidersResponded, r.Summary.TotalFindings)

	if len(r.Summary.Errors) > 0 {
		b.WriteString("## Errors\n\n")
		for _, e := range r.Summary.Errors {
			fmt.Fprintf(&b, "- **%s**: %s\n", e.ProviderID, e.Message)
		}
		b.WriteString("\n")
	}

	for _, p := range r.Providers {
		if len(p.Findings) == 0 {
			continue
		}
		fmt.Fprintf(&b, "## %s (`%s`)\n\n", p.ProviderName, p.ProviderID)
		for _, f := range p.Findings {
			fmt.Fprintf(&b, "### %s — %s\n\n", f.Title, strings.ToUpper(string(f.Severity)))
			if f.Confidence != nil {
				fmt.Fprintf(&b, "Confidence: %.0f%%\n\n", *f.Confidence*100)
			}
			fmt.Fprintf(&b, "%s\n\n", f.Description)
			if f.Recommendation != "" {
				fmt.Fprintf(&b, "**Recommendation:** %s\n\n", f.Recommendation)
			}
			if len(f.Evidence) > 0 {
				fmt.Fprintf(&b, "Evidence: %s\n\n", firstEvidenceReference(f.Evidence[0]))
			}
		}
	}

	return []byte(b.String())
}

func firstEvidenceReference(e Evidence) string {
	switch e.Kind {
	case EvidenceURL:
		return e.Reference
	case EvidenceLog:
		return e.Excerpt
	case EvidenceFile:
		return fmt.Sprintf("%s:%d-%d", e.Path, e.LineStart, e.LineEnd)
	case EvidenceSpan:
		return e.TraceID
	default:
		return ""
	}
}

// WriteReportFiles writes research.json and research.md under
// <outputDir>/<slug(topic)>/<timestamp>/, creating directories as needed.
// Returns the run directory.
func WriteReportFiles(outputDir string, r Report, at time.Time) (string, error) {
	runDir := filepath.Join(outputDir, slugify(r.Topic), at.UTC().Format("20060102T150405Z"))
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", fmt.Errorf("create run directory: %w", err)
	}

	jsonBytes, err := GenerateJSON(r)
	if err != nil {
		return "", fmt.Errorf("generate research.json: %w", err)
	}
	if err := os.WriteFile(filepath.Join(runDir, "research.json"), jsonBytes, 0o644); err != nil {
		return "", fmt.Errorf("write research.json: %w", err)
	}

	if err := os.WriteFile(filepath.Join(runDir, "research.md"), GenerateMarkdown(r), 0o644); err != nil {
		return "", fmt.Errorf("write research.md: %w", err)
	}

	return runDir, nil
}

// slugify lowercases s and replaces every run of non-alphanumeric
// characters with a single hyphen, trimming leading/trailing hyphens.
func slugify(s string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	out := strings.TrimSuffix(b.String(), "-")
	if out == "" {
		return "run"
	}
	return out
}
