package processing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dyike/ArenaGo/consts"
)

func TestParseWellFormed(t *testing.T) {
	p := NewDecisionParser()
	res := p.Parse(`{"action": "buy", "quantity": 7.9, "reason": "breakout", "confidence": 0.8}`)

	assert.Equal(t, Ok, res.Kind)
	assert.Equal(t, consts.ActionBuy, res.Decision.Action)
	assert.Equal(t, 7.0, res.Decision.Quantity)
	assert.Equal(t, "breakout", res.Decision.Reason)
	assert.Equal(t, 0.8, res.Decision.Confidence)
}

func TestParseStripsFencesAndProse(t *testing.T) {
	p := NewDecisionParser()
	raw := "Here is my decision:\n```json\n{\"action\": \"SELL\", \"quantity\": \"3\", \"reason\": \"weak\", \"confidence\": 1.7}\n```\nGood luck!"
	res := p.Parse(raw)

	assert.Equal(t, Ok, res.Kind)
	assert.Equal(t, consts.ActionSell, res.Decision.Action)
	assert.Equal(t, 3.0, res.Decision.Quantity)
	assert.Equal(t, 1.0, res.Decision.Confidence)
}

func TestParseTruncatedOutput(t *testing.T) {
	p := NewDecisionParser()
	res := p.Parse(`{"action": "BUY", "quantity": 5, "reason": "strong momentum`)

	assert.NotEqual(t, Failed, res.Kind)
	assert.Equal(t, consts.ActionBuy, res.Decision.Action)
	assert.Equal(t, 5.0, res.Decision.Quantity)
}

func TestParseTrailingComma(t *testing.T) {
	p := NewDecisionParser()
	res := p.Parse(`{"action": "HOLD", "quantity": 4, "reason": "wait",}`)

	assert.Equal(t, Ok, res.Kind)
	assert.Equal(t, consts.ActionHold, res.Decision.Action)
	assert.Equal(t, 0.0, res.Decision.Quantity, "HOLD always forces quantity to zero")
	assert.Equal(t, 0.5, res.Decision.Confidence)
}

func TestParseRegexFallback(t *testing.T) {
	p := NewDecisionParser()
	res := p.Parse(`I think action: "SELL" with quantity: 12 because {reasons} are "unbalanced`)

	assert.Equal(t, Recovered, res.Kind)
	assert.Equal(t, "regex", res.Path)
	assert.Equal(t, consts.ActionSell, res.Decision.Action)
	assert.Equal(t, 12.0, res.Decision.Quantity)
	assert.Equal(t, FallbackReason, res.Decision.Reason)
	assert.Equal(t, 0.5, res.Decision.Confidence)
}

func TestParseStructuralRepair(t *testing.T) {
	raw := `{action: 'BUY', quantity: 2, reason: 'single quotes', confidence: 0.9}`

	strict := NewDecisionParser().Parse(raw)
	assert.Equal(t, "regex", strict.Path)

	premium := NewDecisionParser(WithStructuralRepair()).Parse(raw)
	assert.Equal(t, Recovered, premium.Kind)
	assert.Equal(t, "repair", premium.Path)
	assert.Equal(t, consts.ActionBuy, premium.Decision.Action)
	assert.Equal(t, 2.0, premium.Decision.Quantity)
	assert.Equal(t, "single quotes", premium.Decision.Reason)
	assert.Equal(t, 0.9, premium.Decision.Confidence)
}

func TestParseFailures(t *testing.T) {
	p := NewDecisionParser()
	for _, raw := range []string{"", "   ", "I cannot help with that.", `{"quantity": }`} {
		res := p.Parse(raw)
		assert.Equal(t, Failed, res.Kind, raw)
		assert.Equal(t, consts.ActionHold, res.Decision.Action)
		assert.NotEmpty(t, res.Reason)
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]any
		action consts.Action
		qty    float64
		conf   float64
	}{
		{"invalid action", map[string]any{"action": "YOLO", "quantity": 5.0}, consts.ActionHold, 0, 0.5},
		{"negative quantity", map[string]any{"action": "BUY", "quantity": -3.0}, consts.ActionBuy, 0, 0.5},
		{"negative confidence", map[string]any{"action": "SELL", "quantity": 1.0, "confidence": -2.0}, consts.ActionSell, 1, 0},
		{"string confidence", map[string]any{"action": "SELL", "quantity": 2.5, "confidence": "0.25"}, consts.ActionSell, 2, 0.25},
		{"missing everything", map[string]any{}, consts.ActionHold, 0, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Sanitize(tt.fields)
			assert.Equal(t, tt.action, d.Action)
			assert.Equal(t, tt.qty, d.Quantity)
			assert.Equal(t, tt.conf, d.Confidence)
		})
	}
}

func TestExtractJSONObject(t *testing.T) {
	assert.Equal(t, `{"a":1}`, ExtractJSONObject(`noise {"a":1} tail`))
	assert.Equal(t, `{"a":"b`, ExtractJSONObject(`x {"a":"b`))
	assert.Equal(t, "plain", ExtractJSONObject("plain"))
}
