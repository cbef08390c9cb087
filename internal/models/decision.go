package models

import (
	"time"

	"github.com/dyike/ArenaGo/consts"
)

// TradingDecision is what an agent wants to do, before any validation.
type TradingDecision struct {
	Action     consts.Action `json:"action"`
	Quantity   float64       `json:"quantity"`
	Reason     string        `json:"reason"`
	Confidence float64       `json:"confidence"`
}

// Hold returns the safe default decision.
func Hold(reason string) TradingDecision {
	return TradingDecision{Action: consts.ActionHold, Reason: reason}
}

// Usage is the token accounting of an LLM call.
type Usage struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	CostUSD          float64 `json:"cost_usd"`
}

// ProposedDecision is an agent's output for one tick.
type ProposedDecision struct {
	BotType consts.BotType
	TradingDecision
	Usage Usage
	Debug map[string]any
}

// BotDecision is the persisted audit record of one bot in one tick. Action,
// Quantity and Reason hold what actually happened after validation.
type BotDecision struct {
	ID           string         `json:"id"`
	SnapshotID   string         `json:"snapshot_id"`
	SimulationID string         `json:"simulation_id"`
	BotType      consts.BotType `json:"bot_type"`
	Action       consts.Action  `json:"action"`
	Quantity     float64        `json:"quantity"`
	Price        float64        `json:"price"`
	Reason       string         `json:"reason"`
	Confidence   float64        `json:"confidence"`
	Usage        Usage          `json:"usage"`
	Debug        *string        `json:"debug,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// DecisionView is the redacted decision returned to tick callers.
type DecisionView struct {
	BotType  consts.BotType `json:"botType"`
	Action   consts.Action  `json:"action"`
	Quantity float64        `json:"quantity"`
	Reason   string         `json:"reason"`
}

func (d BotDecision) View() DecisionView {
	return DecisionView{BotType: d.BotType, Action: d.Action, Quantity: d.Quantity, Reason: d.Reason}
}
