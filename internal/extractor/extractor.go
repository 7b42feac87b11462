// Package extractor coerces free-text model output into the structured
// evaluation schema. Models wrap JSON in markdown fences, use smart quotes,
// leave trailing commas, or bury the object in prose; the extractor applies
// recovery stages in order and reports an explicit result instead of
// propagating parser errors.
package extractor

import (
	"encoding/json"
	"regexp"
	"strings"
)

// ModelEvaluation is the wire schema the evaluation model is prompted to
// return. All optionality is resolved here, at the boundary.
type ModelEvaluation struct {
	OverallScore     float64           `json:"overall_score"`
	Criteria         []ModelCriterion  `json:"criteria"`
	Insights         []ModelInsight    `json:"insights"`
	SpeakerMapping   map[string]string `json:"speaker_mapping"`
	AgentLabel       string            `json:"agent_label"`
	CustomerBehavior string            `json:"customer_behavior"`
}

type ModelCriterion struct {
	Name          string  `json:"name"`
	PointsEarned  float64 `json:"points_earned"`
	MaxPoints     float64 `json:"max_points"`
	Justification string  `json:"justification"`
	SegmentRefs   []int   `json:"segment_refs"`
}

type ModelInsight struct {
	Type              string `json:"type"`
	Description       string `json:"description"`
	SegmentRef        int    `json:"segment_ref"`
	SuggestedResponse string `json:"suggested_response"`
}

// Result is the explicit outcome of an extraction attempt. Callers branch on
// OK rather than catching errors.
type Result struct {
	OK     bool
	Value  ModelEvaluation
	Raw    string
	Reason string
}

func Unparsable(raw, reason string) Result {
	return Result{Raw: raw, Reason: reason}
}

var requiredKeys = []string{
	"overall_score", "criteria", "insights",
	"speaker_mapping", "agent_label", "customer_behavior",
}

// Extract runs the recovery stages in order, stopping at the first candidate
// that parses and passes schema validation.
func Extract(raw string) Result {
	if strings.TrimSpace(raw) == "" {
		return Unparsable(raw, "empty model response")
	}

	candidates := []string{
		raw,
		stripFences(raw),
		balancedSpan(raw),
		cleanup(raw),
		cleanup(balancedSpan(raw)),
		balancedSpan(cleanup(stripFences(raw))),
	}

	reason := "no JSON object found in model response"
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		ev, err := parseAndValidate(c)
		if err == nil {
			return Result{OK: true, Value: ev, Raw: raw}
		}
		reason = err.Error()
	}
	return Unparsable(raw, reason)
}

type schemaError struct{ missing string }

func (e *schemaError) Error() string { return "missing required key: " + e.missing }

func parseAndValidate(candidate string) (ModelEvaluation, error) {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal([]byte(candidate), &keys); err != nil {
		return ModelEvaluation{}, err
	}
	for _, k := range requiredKeys {
		if _, ok := keys[k]; !ok {
			return ModelEvaluation{}, &schemaError{missing: k}
		}
	}
	var ev ModelEvaluation
	if err := json.Unmarshal([]byte(candidate), &ev); err != nil {
		return ModelEvaluation{}, err
	}
	return ev, nil
}

// stripFences removes markdown code fences commonly emitted by LLMs.
func stripFences(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	for _, fence := range []string{"```json", "```yaml", "```text", "```", "`json", "`"} {
		s = strings.ReplaceAll(s, fence, "")
	}
	return s
}

// balancedSpan returns the first balanced {...} or [...] span, tracking
// quoted strings and escape sequences so braces inside string values are
// ignored. Returns "" when no balanced span exists.
func balancedSpan(s string) string {
	start := -1
	var open, close byte
	for i := 0; i < len(s); i++ {
		if s[i] == '{' {
			start, open, close = i, '{', '}'
			break
		}
		if s[i] == '[' {
			start, open, close = i, '[', ']'
			break
		}
	}
	if start == -1 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
			// braces inside strings do not count
		case c == open:
			depth++
		case c == close:
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

var trailingComma = regexp.MustCompile(`,\s*([}\]])`)

var quoteReplacer = strings.NewReplacer(
	"“", `"`, "”", `"`,
	"‘", "'", "’", "'",
)

// cleanup normalizes smart quotes, drops non-printable characters except
// newline and tab, and removes trailing commas before a closing brace or
// bracket.
func cleanup(s string) string {
	s = quoteReplacer.Replace(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '\n' || r == '\t' || (r >= 0x20 && r != 0x7f) {
			b.WriteRune(r)
		}
	}
	return trailingComma.ReplaceAllString(b.String(), "$1")
}
