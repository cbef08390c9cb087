package models

import (
	"time"

	"github.com/dyike/ArenaGo/consts"
)

// SimulationConfig is one trading competition between the three bots.
type SimulationConfig struct {
	ID              string                  `json:"id"`
	Symbol          string                  `json:"symbol"`
	StartCapital    float64                 `json:"start_capital"`
	DurationDays    int                     `json:"duration_days"`
	CurrentDay      int                     `json:"current_day"`
	Status          consts.SimulationStatus `json:"status"`
	CheapModelID    string                  `json:"cheap_model_id"`
	PremiumModelID  string                  `json:"premium_model_id"`
	WeightTechnical int                     `json:"weight_technical"`
	UseReddit       bool                    `json:"use_reddit"`
	CreatedBy       *string                 `json:"created_by,omitempty"`
	CreatedAt       time.Time               `json:"created_at"`
	UpdatedAt       time.Time               `json:"updated_at"`
}

// ModelFor returns the configured model id of an LLM bot.
func (s *SimulationConfig) ModelFor(bot consts.BotType) string {
	switch bot {
	case consts.BotCheap:
		return s.CheapModelID
	case consts.BotPremium:
		return s.PremiumModelID
	}
	return ""
}

// Portfolio is one bot's holdings inside a simulation.
type Portfolio struct {
	ID           string         `json:"id"`
	SimulationID string         `json:"simulation_id"`
	BotType      consts.BotType `json:"bot_type"`
	Cash         float64        `json:"cash"`
	Shares       float64        `json:"shares"`
	AvgPrice     *float64       `json:"avg_price"`
	TotalValue   float64        `json:"total_value"`
	ROI          float64        `json:"roi"`
	UpdatedAt    time.Time      `json:"updated_at"`
}
