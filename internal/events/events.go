// Package events publishes completed ticks for downstream consumers.
package events

import (
	"context"
	"time"

	"github.com/dyike/ArenaGo/consts"
	"github.com/dyike/ArenaGo/internal/models"
)

const (
	DefaultTopic  = "arena.ticks"
	TickCompleted = "tick.completed"
)

// PortfolioView is a portfolio after settlement.
type PortfolioView struct {
	BotType    consts.BotType `json:"botType"`
	Cash       float64        `json:"cash"`
	Shares     float64        `json:"shares"`
	TotalValue float64        `json:"totalValue"`
	ROI        float64        `json:"roi"`
}

// TickEvent describes one committed tick.
type TickEvent struct {
	Type         string                  `json:"type"`
	SimulationID string                  `json:"simulationId"`
	Symbol       string                  `json:"symbol"`
	SnapshotID   string                  `json:"snapshotId"`
	Price        float64                 `json:"price"`
	Day          int                     `json:"day"`
	Status       consts.SimulationStatus `json:"status"`
	Forced       bool                    `json:"forced"`
	Decisions    []models.DecisionView   `json:"decisions"`
	Portfolios   []PortfolioView         `json:"portfolios"`
	OccurredAt   time.Time               `json:"occurredAt"`
}

type Publisher interface {
	Publish(ctx context.Context, ev TickEvent) error
	Close() error
}

// NopPublisher drops every event. It is used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, TickEvent) error { return nil }
func (NopPublisher) Close() error                             { return nil }
