package patternmemory

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Regex patterns for anonymization. Order matters: more specific patterns
// must run before more general ones, mirroring the ordered replacement
// chain error-signature extraction uses elsewhere in this codebase.
var (
	urlPattern         = regexp.MustCompile(`https?://[^\s"']+`)
	bearerPattern      = regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9._~+/=-]+`)
	apiKeyPattern      = regexp.MustCompile(`(?i)\b(sk|pk|api|key)[-_][A-Za-z0-9]{16,}\b`)
	emailPattern       = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	ipv4Pattern        = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)
	domainPattern      = regexp.MustCompile(`\b(?:[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]{2,}\b`)
	secretTrailerRegex = regexp.MustCompile(`(?i)\b(password|secret|token|key)\s*=\s*[^\s&]+`)
)

// sensitiveKeyPattern matches object keys whose redaction is triggered by
// name alone, regardless of the value's shape.
var sensitiveKeyPattern = regexp.MustCompile(`(?i)(password|secret|token|key|credential)`)

// Anonymize replaces URLs, bearer tokens, API-key-shaped strings, email
// addresses, IPv4 literals, domain names, and key=value secret trailers
// with fixed placeholders. Applied unconditionally before any write to the
// pattern store.
func Anonymize(s string) string {
	s = urlPattern.ReplaceAllString(s, "https://[HOST_REMOVED]")
	s = bearerPattern.ReplaceAllString(s, "[TOKEN_REMOVED]")
	s = apiKeyPattern.ReplaceAllString(s, "[API_KEY_REMOVED]")
	s = secretTrailerRegex.ReplaceAllStringFunc(s, func(m string) string {
		parts := strings.SplitN(m, "=", 2)
		if len(parts) != 2 {
			return "[REDACTED]"
		}
		return parts[0] + "=[REDACTED]"
	})
	s = emailPattern.ReplaceAllString(s, "[EMAIL_REMOVED]")
	s = ipv4Pattern.ReplaceAllString(s, "[IP_REMOVED]")
	s = domainPattern.ReplaceAllString(s, "[DOMAIN_REMOVED]")
	return s
}

// AnonymizeValue walks a structured solution payload (as produced by
// decoding JSON into generic Go values) and anonymizes it in place: string
// leaves are passed through Anonymize, and any map key matching
// sensitiveKeyPattern has its value replaced outright regardless of type.
func AnonymizeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case string:
		return Anonymize(val)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, child := range val {
			if sensitiveKeyPattern.MatchString(k) {
				out[k] = "[REDACTED]"
				continue
			}
			out[k] = AnonymizeValue(child)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, child := range val {
			out[i] = AnonymizeValue(child)
		}
		return out
	default:
		return v
	}
}

// anonymizeSolution anonymizes a solution payload before it is encrypted.
// A structured (JSON object or array) payload is decoded and walked by
// AnonymizeValue so object keys like "password" are redacted regardless of
// their value's shape, then re-encoded; anything else falls back to the
// flat, regex-based Anonymize.
func anonymizeSolution(s string) string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" || (trimmed[0] != '{' && trimmed[0] != '[') {
		return Anonymize(s)
	}

	var decoded interface{}
	if err := json.Unmarshal([]byte(trimmed), &decoded); err != nil {
		return Anonymize(s)
	}

	scrubbed := AnonymizeValue(decoded)
	out, err := json.Marshal(scrubbed)
	if err != nil {
		return Anonymize(s)
	}
	return string(out)
}
