package orchestrator

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

func init() {
	MustRegister(&ToolsListProbe{})
	MustRegister(&ToolsSchemaProbe{})
	MustRegister(&PingLatencyProbe{})
	MustRegister(&PromptsListProbe{})
	MustRegister(&ResourcesListProbe{})
}

const (
	ProbeIDToolsList     = "transport.tools_list"
	ProbeIDToolsSchema   = "transport.tools_schema"
	ProbeIDPingLatency   = "transport.ping_latency"
	ProbeIDPromptsList   = "transport.prompts_list"
	ProbeIDResourcesList = "transport.resources_list"
)

// ToolsListProbe confirms the server answers tools/list without a transport
// or JSON-RPC error. It does not check how many tools are declared.
type ToolsListProbe struct{}

func (p *ToolsListProbe) ID() string      { return ProbeIDToolsList }
func (p *ToolsListProbe) Title() string   { return "tools/list availability" }
func (p *ToolsListProbe) Ordinal() int    { return 10 }
func (p *ToolsListProbe) RequiresLLM() bool { return false }

func (p *ToolsListProbe) Run(ctx DiagnosticContext) ([]Finding, error) {
	outcome, err := ctx.Session.ToolsList(ctx.Context, nil)
	if err != nil {
		return []Finding{{
			ID:          "transport.tools_list.unreachable",
			Area:        "transport",
			Severity:    SeverityMajor,
			Title:       "tools/list call failed",
			Description: err.Error(),
			Evidence:    []Evidence{{Kind: EvidenceLog, Excerpt: err.Error()}},
		}}, nil
	}
	if outcome.Error != nil {
		return []Finding{{
			ID:          "transport.tools_list.rpc_error",
			Area:        "transport",
			Severity:    SeverityMajor,
			Title:       "tools/list returned a JSON-RPC error",
			Description: outcome.Error.Message,
			Evidence:    []Evidence{{Kind: EvidenceLog, Excerpt: outcome.Error.Message}},
		}}, nil
	}
	return []Finding{{
		ID:          "transport.tools_list.ok",
		Area:        "transport",
		Severity:    SeverityInfo,
		Title:       "tools/list responded",
		Description: fmt.Sprintf("tools/list answered in %dms", outcome.LatencyMs),
	}}, nil
}

// ToolsSchemaProbe checks that every declared tool carries a name and an
// input schema, since clients rely on both to build calls.
type ToolsSchemaProbe struct{}

func (p *ToolsSchemaProbe) ID() string      { return ProbeIDToolsSchema }
func (p *ToolsSchemaProbe) Title() string   { return "tool schema completeness" }
func (p *ToolsSchemaProbe) Ordinal() int    { return 20 }
func (p *ToolsSchemaProbe) RequiresLLM() bool { return false }

func (p *ToolsSchemaProbe) Run(ctx DiagnosticContext) ([]Finding, error) {
	outcome, err := ctx.Session.ToolsList(ctx.Context, nil)
	if err != nil || outcome == nil || outcome.Error != nil || outcome.Result == nil {
		// transport.tools_list already reports connectivity failures; this
		// probe only has an opinion once a result is available.
		return nil, nil
	}

	tools, ok := decodeToolList(outcome.Result)
	if !ok {
		return []Finding{{
			ID:          "transport.tools_schema.unparsable",
			Area:        "transport",
			Severity:    SeverityMinor,
			Title:       "tools/list result did not match the expected shape",
			Description: "expected a JSON object with a \"tools\" array",
		}}, nil
	}

	var missingSchema []string
	missingNameCount := 0
	for _, t := range tools {
		name, _ := t["name"].(string)
		if name == "" {
			missingNameCount++
			continue
		}
		if _, ok := t["inputSchema"]; !ok {
			missingSchema = append(missingSchema, name)
		}
	}

	var findings []Finding
	if missingNameCount > 0 {
		findings = append(findings, Finding{
			ID:          "transport.tools_schema.missing_name",
			Area:        "transport",
			Severity:    SeverityMajor,
			Title:       "one or more tools are missing a name",
			Description: fmt.Sprintf("%d tool(s) omit the required \"name\" field", missingNameCount),
		})
	}
	if len(missingSchema) > 0 {
		findings = append(findings, Finding{
			ID:          "transport.tools_schema.missing_input_schema",
			Area:        "transport",
			Severity:    SeverityMinor,
			Title:       "one or more tools omit inputSchema",
			Description: fmt.Sprintf("tools without an inputSchema: %s", strings.Join(missingSchema, ", ")),
		})
	}
	return findings, nil
}

func decodeToolList(raw []byte) ([]map[string]interface{}, bool) {
	var body struct {
		Tools []map[string]interface{} `json:"tools"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, false
	}
	return body.Tools, true
}

// PingLatencyProbe issues a ping and flags servers that respond slowly
// enough to threaten interactive use.
type PingLatencyProbe struct{}

func (p *PingLatencyProbe) ID() string      { return ProbeIDPingLatency }
func (p *PingLatencyProbe) Title() string   { return "ping latency" }
func (p *PingLatencyProbe) Ordinal() int    { return 30 }
func (p *PingLatencyProbe) RequiresLLM() bool { return false }

// pingLatencyWarnThreshold is the latency above which a ping response is
// reported as a minor finding rather than silently accepted.
const pingLatencyWarnThreshold = 2 * time.Second

func (p *PingLatencyProbe) Run(ctx DiagnosticContext) ([]Finding, error) {
	outcome, err := ctx.Session.Ping(ctx.Context)
	if err != nil {
		return []Finding{{
			ID:          "transport.ping.unreachable",
			Area:        "transport",
			Severity:    SeverityMajor,
			Title:       "ping failed",
			Description: err.Error(),
			Evidence:    []Evidence{{Kind: EvidenceLog, Excerpt: err.Error()}},
		}}, nil
	}

	latency := time.Duration(outcome.LatencyMs) * time.Millisecond
	if latency > pingLatencyWarnThreshold {
		return []Finding{{
			ID:          "transport.ping.slow",
			Area:        "performance",
			Severity:    SeverityMinor,
			Title:       "ping latency exceeds interactive threshold",
			Description: fmt.Sprintf("ping took %s, over the %s threshold", latency, pingLatencyWarnThreshold),
		}}, nil
	}
	return []Finding{{
		ID:          "transport.ping.ok",
		Area:        "transport",
		Severity:    SeverityInfo,
		Title:       "ping within budget",
		Description: fmt.Sprintf("ping took %s", latency),
	}}, nil
}

// PromptsListProbe confirms the prompts surface, if advertised, responds.
type PromptsListProbe struct{}

func (p *PromptsListProbe) ID() string      { return ProbeIDPromptsList }
func (p *PromptsListProbe) Title() string   { return "prompts/list availability" }
func (p *PromptsListProbe) Ordinal() int    { return 40 }
func (p *PromptsListProbe) RequiresLLM() bool { return false }

func (p *PromptsListProbe) Run(ctx DiagnosticContext) ([]Finding, error) {
	outcome, err := ctx.Session.PromptsList(ctx.Context, nil)
	if err != nil {
		return []Finding{{
			ID:          "transport.prompts_list.unreachable",
			Area:        "transport",
			Severity:    SeverityMinor,
			Title:       "prompts/list call failed",
			Description: err.Error(),
		}}, nil
	}
	if outcome.Error != nil {
		// Many servers legitimately omit the prompts capability; an RPC
		// error here is informational, not a defect.
		return []Finding{{
			ID:          "transport.prompts_list.unsupported",
			Area:        "transport",
			Severity:    SeverityInfo,
			Title:       "prompts/list is not supported",
			Description: outcome.Error.Message,
		}}, nil
	}
	return nil, nil
}

// ResourcesListProbe confirms the resources surface, if advertised,
// responds.
type ResourcesListProbe struct{}

func (p *ResourcesListProbe) ID() string      { return ProbeIDResourcesList }
func (p *ResourcesListProbe) Title() string   { return "resources/list availability" }
func (p *ResourcesListProbe) Ordinal() int    { return 50 }
func (p *ResourcesListProbe) RequiresLLM() bool { return false }

func (p *ResourcesListProbe) Run(ctx DiagnosticContext) ([]Finding, error) {
	outcome, err := ctx.Session.ResourcesList(ctx.Context, nil)
	if err != nil {
		return []Finding{{
			ID:          "transport.resources_list.unreachable",
			Area:        "transport",
			Severity:    SeverityMinor,
			Title:       "resources/list call failed",
			Description: err.Error(),
		}}, nil
	}
	if outcome.Error != nil {
		return []Finding{{
			ID:          "transport.resources_list.unsupported",
			Area:        "transport",
			Severity:    SeverityInfo,
			Title:       "resources/list is not supported",
			Description: outcome.Error.Message,
		}}, nil
	}
	return nil, nil
}
