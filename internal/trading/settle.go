package trading

import (
	"context"
	"encoding/json"

	"github.com/sirupsen/logrus"

	"github.com/dyike/ArenaGo/consts"
	"github.com/dyike/ArenaGo/internal/models"
	"github.com/dyike/ArenaGo/internal/settlement"
	"github.com/dyike/ArenaGo/internal/storage/sqlite"
	"github.com/dyike/ArenaGo/pkg/id"
)

type settledTick struct {
	day        int
	status     consts.SimulationStatus
	decisions  []models.BotDecision
	portfolios []models.Portfolio
}

// settle validates and applies every proposal, writes the audit rows and
// advances the day, all in one transaction. A missing snapshot aborts the
// whole tick.
func (o *Orchestrator) settle(ctx context.Context, sim models.SimulationConfig, snapshotID string, proposals []models.ProposedDecision) (*settledTick, error) {
	var out settledTick
	err := o.deps.Store.InTx(ctx, func(tx *sqlite.Tx) error {
		out = settledTick{}

		snap, err := tx.Snapshot(ctx, sim.ID, snapshotID)
		if err != nil {
			return err
		}

		for _, p := range proposals {
			portfolio, err := tx.Portfolio(ctx, sim.ID, p.BotType)
			if err != nil {
				return err
			}

			v, h := settlement.Settle(p.TradingDecision, settlement.FromPortfolio(*portfolio), snap.Price, sim.StartCapital)
			if v.Skipped {
				o.log.WithFields(logrus.Fields{
					"simulation_id": sim.ID,
					"bot":           p.BotType,
					"proposed":      p.Action,
					"quantity":      p.Quantity,
				}).Warn(v.Reason)
			}

			d := models.BotDecision{
				ID:           id.New(),
				SnapshotID:   snap.ID,
				SimulationID: sim.ID,
				BotType:      p.BotType,
				Action:       v.Action,
				Quantity:     v.Quantity,
				Price:        snap.Price,
				Reason:       v.Reason,
				Confidence:   p.Confidence,
				Usage:        p.Usage,
				Debug:        debugPayload(p, v),
			}
			if err := tx.InsertDecision(ctx, &d); err != nil {
				return err
			}

			if v.Action != consts.ActionHold {
				portfolio.Cash, portfolio.Shares, portfolio.AvgPrice = h.Cash, h.Shares, h.AvgPrice
				portfolio.TotalValue, portfolio.ROI = h.TotalValue, h.ROI
				if err := tx.UpdatePortfolio(ctx, portfolio); err != nil {
					return err
				}
			}
			out.decisions = append(out.decisions, d)
			out.portfolios = append(out.portfolios, *portfolio)
		}

		out.day, out.status, err = tx.AdvanceDay(ctx, sim.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func debugPayload(p models.ProposedDecision, v settlement.Validation) *string {
	payload := make(map[string]any, len(p.Debug)+3)
	for k, val := range p.Debug {
		payload[k] = val
	}
	if v.Skipped {
		payload["skipped"] = true
		payload["proposed_action"] = p.Action
		payload["proposed_quantity"] = p.Quantity
	}
	if len(payload) == 0 {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	s := string(data)
	return &s
}
