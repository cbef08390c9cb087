package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dyike/ArenaGo/consts"
	"github.com/dyike/ArenaGo/internal/models"
	"github.com/dyike/ArenaGo/internal/settlement"
)

// HistoryPoint is the state of every bot after one tick.
type HistoryPoint struct {
	Timestamp  time.Time                  `json:"timestamp"`
	Day        int                        `json:"day"`
	Price      float64                    `json:"price"`
	ROI        map[consts.BotType]float64 `json:"roi"`
	BuyHoldROI float64                    `json:"buyHoldRoi"`
}

type History struct {
	Simulation models.SimulationConfig `json:"simulation"`
	Points     []HistoryPoint          `json:"points"`
}

// History rebuilds per-tick ROI by replaying each snapshot's decisions from
// the starting capital. It is a chart read-model; portfolios stay the
// source of truth.
func (s *Service) History(ctx context.Context, simulationID string) (*History, error) {
	var sim *models.SimulationConfig
	var err error
	if simulationID == "" {
		sim, err = s.store.LatestSimulation(ctx)
	} else {
		sim, err = s.store.GetSimulation(ctx, simulationID)
	}
	if err != nil {
		return nil, err
	}
	if sim == nil {
		return nil, ErrNoSimulation
	}

	snaps, err := s.store.Snapshots(ctx, sim.ID)
	if err != nil {
		return nil, err
	}
	decisions, err := s.store.Decisions(ctx, sim.ID)
	if err != nil {
		return nil, err
	}
	return &History{Simulation: *sim, Points: Replay(*sim, snaps, decisions)}, nil
}

// Replay applies decisions snapshot by snapshot. Snapshots without
// decisions belong to ticks whose settlement rolled back and are skipped,
// so Day follows the persisted day counter. Buy & Hold invests the whole
// capital at the first settled snapshot's price.
func Replay(sim models.SimulationConfig, snaps []models.MarketSnapshot, decisions []models.BotDecision) []HistoryPoint {
	bySnapshot := make(map[string][]models.BotDecision, len(snaps))
	for _, d := range decisions {
		bySnapshot[d.SnapshotID] = append(bySnapshot[d.SnapshotID], d)
	}

	holdings := make(map[consts.BotType]settlement.Holdings, len(consts.BotTypes))
	for _, bot := range consts.BotTypes {
		holdings[bot] = settlement.Holdings{Cash: sim.StartCapital, TotalValue: sim.StartCapital}
	}

	points := make([]HistoryPoint, 0, len(snaps))
	var baseline decimal.Decimal
	for _, snap := range snaps {
		settled := bySnapshot[snap.ID]
		if len(settled) == 0 {
			continue
		}
		if len(points) == 0 {
			baseline = decimal.NewFromFloat(snap.Price)
		}
		for _, d := range settled {
			h, ok := holdings[d.BotType]
			if !ok {
				continue
			}
			holdings[d.BotType] = settlement.Apply(h, d.Action, d.Quantity, d.Price, sim.StartCapital)
		}

		point := HistoryPoint{
			Timestamp: snap.CreatedAt,
			Day:       len(points) + 1,
			Price:     snap.Price,
			ROI:       make(map[consts.BotType]float64, len(holdings)),
		}
		for bot, h := range holdings {
			// revalue at this tick's price
			h = settlement.Apply(h, consts.ActionHold, 0, snap.Price, sim.StartCapital)
			holdings[bot] = h
			point.ROI[bot] = h.ROI
		}
		if baseline.IsPositive() {
			point.BuyHoldROI = decimal.NewFromFloat(snap.Price).Div(baseline).
				Sub(decimal.NewFromInt(1)).Mul(decimal.NewFromInt(100)).InexactFloat64()
		}
		points = append(points, point)
	}
	return points
}

// CSV returns the history as a header and one row per point.
func (h *History) CSV() ([]string, [][]string) {
	header := []string{"timestamp", "day", "price"}
	for _, bot := range consts.BotTypes {
		header = append(header, "roi_"+strings.ToLower(string(bot)))
	}
	header = append(header, "roi_buy_hold")

	rows := make([][]string, 0, len(h.Points))
	for _, p := range h.Points {
		row := []string{p.Timestamp.UTC().Format(time.RFC3339), strconv.Itoa(p.Day), strconv.FormatFloat(p.Price, 'f', 4, 64)}
		for _, bot := range consts.BotTypes {
			row = append(row, strconv.FormatFloat(p.ROI[bot], 'f', 4, 64))
		}
		row = append(row, strconv.FormatFloat(p.BuyHoldROI, 'f', 4, 64))
		rows = append(rows, row)
	}
	return header, rows
}
