package agents

// ModelPrice is the USD price per million tokens of a model.
type ModelPrice struct {
	InputPerMillion  float64 `json:"input_per_million"`
	OutputPerMillion float64 `json:"output_per_million"`
}

// Pricing maps model ids to prices. Unknown models cost nothing.
type Pricing map[string]ModelPrice

func (p Pricing) Cost(modelID string, promptTokens, completionTokens int) float64 {
	price, ok := p[modelID]
	if !ok {
		return 0
	}
	return (float64(promptTokens)*price.InputPerMillion + float64(completionTokens)*price.OutputPerMillion) / 1e6
}
