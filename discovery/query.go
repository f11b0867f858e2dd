package discovery

import (
	"encoding/json"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/vinayprograms/ans/registry"
)

// Query is a lookup request. Zero-valued fields do not filter.
type Query struct {
	AgentID      string              `json:"agent_id,omitempty"`
	NamePrefix   string              `json:"query,omitempty"`
	TrustLevel   string              `json:"trust_level,omitempty"`
	Capabilities []string            `json:"capabilities,omitempty"`
	Policy       *PolicyRequirements `json:"policy_requirements,omitempty"`
	Limit        int                 `json:"limit,omitempty"`
	PageToken    string              `json:"page_token,omitempty"`
}

// PolicyRequirements describe what a caller needs from a counterpart. They
// annotate results and never remove them.
type PolicyRequirements struct {
	VerificationStatus string   `json:"verification_status,omitempty"`
	Capabilities       []string `json:"capabilities,omitempty"`
}

// Compatible reports whether rec satisfies every stated requirement. A nil
// policy is satisfied by everything.
func (p *PolicyRequirements) Compatible(rec *registry.AgentRecord) bool {
	if p == nil {
		return true
	}
	if p.VerificationStatus != "" && string(rec.VerificationStatus) != p.VerificationStatus {
		return false
	}
	return rec.HasAllCapabilities(p.Capabilities)
}

// ParseValues builds a Query from URL query parameters. Repeated
// capabilities parameters are combined.
func ParseValues(values url.Values) Query {
	params := make(map[string]any, len(values))
	for key, vals := range values {
		var kept []any
		for _, v := range vals {
			if v != "" {
				kept = append(kept, v)
			}
		}
		switch len(kept) {
		case 0:
		case 1:
			params[key] = kept[0]
		default:
			params[key] = kept
		}
	}
	return ParseParams(params)
}

// ParseParams builds a Query from a decoded JSON object, as sent in the
// params member of a POST lookup. Empty strings and nulls are ignored,
// policy_requirements may be an object or a JSON-encoded string, and an
// unusable policy or limit is dropped.
func ParseParams(params map[string]any) Query {
	return Query{
		AgentID:      stringParam(params["agent_id"]),
		NamePrefix:   stringParam(params["query"]),
		TrustLevel:   stringParam(params["trust_level"]),
		Capabilities: NormalizeCapabilities(params["capabilities"]),
		Policy:       parsePolicy(params["policy_requirements"]),
		Limit:        parseLimit(params["limit"]),
		PageToken:    stringParam(params["page_token"]),
	}
}

// NormalizeCapabilities accepts a comma-separated string or a list whose
// items may themselves be comma-separated, and returns the trimmed,
// non-empty entries in order.
func NormalizeCapabilities(v any) []string {
	var out []string
	add := func(s string) {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}

	switch val := v.(type) {
	case string:
		add(val)
	case []string:
		for _, s := range val {
			add(s)
		}
	case []any:
		for _, item := range val {
			if s, ok := item.(string); ok {
				add(s)
			}
		}
	}
	return out
}

func stringParam(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case []any:
		if len(val) > 0 {
			return stringParam(val[0])
		}
	}
	return ""
}

func parsePolicy(v any) *PolicyRequirements {
	if s, ok := v.(string); ok {
		if s == "" {
			return nil
		}
		var decoded any
		if err := json.Unmarshal([]byte(s), &decoded); err != nil {
			return nil
		}
		v = decoded
	}

	switch val := v.(type) {
	case *PolicyRequirements:
		return val
	case map[string]any:
		return &PolicyRequirements{
			VerificationStatus: stringParam(val["verification_status"]),
			Capabilities:       NormalizeCapabilities(val["capabilities"]),
		}
	}
	return nil
}

// parseLimit returns the requested page size, or 0 when it is missing,
// non-numeric or not positive.
func parseLimit(v any) int {
	var f float64
	switch val := v.(type) {
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0
		}
		f = parsed
	case json.Number:
		parsed, err := val.Float64()
		if err != nil {
			return 0
		}
		f = parsed
	case float64:
		f = val
	case int:
		f = float64(val)
	default:
		return 0
	}
	if math.IsNaN(f) || f < 1 {
		return 0
	}
	if f > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(f)
}
