package processing

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/dyike/ArenaGo/consts"
	"github.com/dyike/ArenaGo/internal/models"
	"github.com/kaptinlin/jsonrepair"
)

// Kind tags how a ParseResult was obtained.
type Kind int

const (
	// Ok means the text parsed as JSON after fence stripping / strict repair.
	Ok Kind = iota
	// Recovered means the decision was salvaged by a repair library or regex.
	Recovered
	// Failed means not even an action could be found.
	Failed
)

func (k Kind) String() string {
	switch k {
	case Ok:
		return "ok"
	case Recovered:
		return "recovered"
	}
	return "failed"
}

// FallbackReason marks decisions rebuilt from regex extraction.
const FallbackReason = "recovered via fallback parsing"

// ParseResult is the outcome of parsing raw agent output.
type ParseResult struct {
	Kind     Kind
	Decision models.TradingDecision
	Warning  string
	Reason   string
	// Path names the strategy that produced the decision: json, repair, regex.
	Path string
}

// DecisionParser extracts trading decisions from free-form LLM output.
type DecisionParser struct {
	structuralRepair bool

	fencePattern    *regexp.Regexp
	actionPattern   *regexp.Regexp
	quantityPattern *regexp.Regexp
	trailingComma   *regexp.Regexp
}

type Option func(*DecisionParser)

// WithStructuralRepair adds the jsonrepair library between strict repair and
// the regex fallback.
func WithStructuralRepair() Option {
	return func(p *DecisionParser) {
		p.structuralRepair = true
	}
}

// NewDecisionParser creates a parser with predefined patterns
func NewDecisionParser(opts ...Option) *DecisionParser {
	p := &DecisionParser{
		fencePattern:    regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)\\s*(?:```|$)"),
		actionPattern:   regexp.MustCompile(`(?i)["']?action["']?\s*[:=]\s*["']?\s*(BUY|SELL|HOLD)\b`),
		quantityPattern: regexp.MustCompile(`(?i)["']?quantity["']?\s*[:=]\s*["']?\s*(-?\d+(?:\.\d+)?)`),
		trailingComma:   regexp.MustCompile(`,\s*([}\]])`),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse never panics and never returns an error: unusable input yields a
// Failed result and the caller substitutes a HOLD.
func (p *DecisionParser) Parse(raw string) ParseResult {
	text := strings.TrimSpace(raw)
	if text == "" {
		return ParseResult{Kind: Failed, Decision: models.Hold(""), Reason: "empty response"}
	}

	text = p.stripFences(text)
	candidate := ExtractJSONObject(text)

	if fields, ok := decodeObject(candidate); ok {
		return p.finish(Ok, "json", fields, "")
	}

	if fields, ok := decodeObject(p.strictRepair(candidate)); ok {
		return p.finish(Ok, "json", fields, "")
	}

	if p.structuralRepair {
		if repaired, err := jsonrepair.JSONRepair(candidate); err == nil {
			if fields, ok := decodeObject(repaired); ok {
				return p.finish(Recovered, "repair", fields, "output repaired by structural JSON repair")
			}
		}
	}

	return p.regexFallback(text)
}

func (p *DecisionParser) stripFences(text string) string {
	if !strings.Contains(text, "```") {
		return text
	}
	if m := p.fencePattern.FindStringSubmatch(text); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return text
}

// ExtractJSONObject slices text from the first '{' to the last '}'. Output
// truncated before its closing brace is sliced to the end of the string.
func ExtractJSONObject(text string) string {
	start := strings.Index(text, "{")
	if start < 0 {
		return text
	}
	end := strings.LastIndex(text, "}")
	if end < start {
		return text[start:]
	}
	return text[start : end+1]
}

// strictRepair fixes the common truncation damage: trailing commas, an
// unterminated string and unbalanced brackets.
func (p *DecisionParser) strictRepair(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}

	var stack []byte
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}

	var b strings.Builder
	b.WriteString(s)
	if escaped {
		b.WriteByte('\\')
	}
	if inString {
		b.WriteByte('"')
	}
	out := strings.TrimRight(b.String(), " \t\r\n")
	out = strings.TrimSuffix(out, ",")
	if strings.HasSuffix(out, ":") {
		out += "null"
	}
	for i := len(stack) - 1; i >= 0; i-- {
		out += string(stack[i])
	}
	return p.trailingComma.ReplaceAllString(out, "$1")
}

func decodeObject(s string) (map[string]any, bool) {
	if !strings.HasPrefix(strings.TrimSpace(s), "{") {
		return nil, false
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(s), &fields); err != nil {
		return nil, false
	}
	return fields, true
}

func (p *DecisionParser) regexFallback(text string) ParseResult {
	m := p.actionPattern.FindStringSubmatch(text)
	if len(m) < 2 {
		return ParseResult{
			Kind:     Failed,
			Decision: models.Hold(""),
			Reason:   "no action found in response",
		}
	}

	fields := map[string]any{
		"action":     m[1],
		"reason":     FallbackReason,
		"confidence": 0.5,
	}
	if q := p.quantityPattern.FindStringSubmatch(text); len(q) > 1 {
		fields["quantity"] = q[1]
	}
	return p.finish(Recovered, "regex", fields, "decision extracted by regex fallback")
}

func (p *DecisionParser) finish(kind Kind, path string, fields map[string]any, warning string) ParseResult {
	d := Sanitize(fields)
	if _, ok := fields["action"]; !ok && kind == Ok {
		warning = "missing action, defaulted to HOLD"
	}
	return ParseResult{Kind: kind, Decision: d, Warning: warning, Path: path}
}

// Sanitize applies the post-parse rules: unknown actions become HOLD,
// quantity is a non-negative integer (zero on HOLD), confidence is clamped
// into [0,1] and defaults to 0.5.
func Sanitize(fields map[string]any) models.TradingDecision {
	d := models.TradingDecision{Action: consts.ActionHold, Confidence: 0.5}

	if s, ok := fields["action"].(string); ok {
		if a, valid := consts.ParseAction(s); valid {
			d.Action = a
		}
	}

	if q, ok := toFloat(fields["quantity"]); ok && q > 0 && !math.IsInf(q, 0) {
		d.Quantity = math.Floor(q)
	}
	if d.Action == consts.ActionHold {
		d.Quantity = 0
	}

	switch r := fields["reason"].(type) {
	case string:
		d.Reason = strings.TrimSpace(r)
	case nil:
	default:
		d.Reason = fmt.Sprint(r)
	}

	if c, ok := toFloat(fields["confidence"]); ok {
		d.Confidence = math.Max(0, math.Min(1, c))
	}
	return d
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) {
			return 0, false
		}
		return n, true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}
