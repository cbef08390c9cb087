package display

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dyike/ArenaGo/consts"
	"github.com/dyike/ArenaGo/internal/models"
	"github.com/dyike/ArenaGo/internal/service"
	"github.com/dyike/ArenaGo/internal/trading"
)

func TestStatusIdle(t *testing.T) {
	out := Status(&service.Status{Status: consts.StatusIdle})
	assert.Contains(t, out, "No simulation yet")
}

func TestStatusRanksByROI(t *testing.T) {
	out := Status(&service.Status{
		Status: consts.StatusRunning,
		Simulation: &models.SimulationConfig{
			ID: "sim-1", Symbol: "AAPL", Status: consts.StatusRunning, CurrentDay: 4, DurationDays: 21,
		},
		Portfolios: []models.Portfolio{
			{BotType: consts.BotAlgo, ROI: -1.5},
			{BotType: consts.BotPremium, ROI: 3.2},
			{BotType: consts.BotCheap, ROI: 0},
		},
	})
	assert.Contains(t, out, "AAPL")
	assert.Contains(t, out, "4 / 21")
	// the header mentions "Algo weight", so rank on the rendered row labels
	premium := strings.Index(out, botLabel(consts.BotPremium))
	cheap := strings.Index(out, botLabel(consts.BotCheap))
	algo := strings.Index(out, botLabel(consts.BotAlgo))
	assert.Positive(t, premium)
	assert.Less(t, premium, cheap)
	assert.Less(t, cheap, algo)
	assert.Less(t, strings.Index(out, "Algo weight"), premium)
}

func TestLeaderboardNumbersRanks(t *testing.T) {
	out := Leaderboard([]models.Portfolio{
		{BotType: consts.BotAlgo, ROI: 2},
		{BotType: consts.BotCheap, ROI: 5},
		{BotType: consts.BotPremium, ROI: -1},
	})
	assert.Contains(t, out, "1. "+botLabel(consts.BotCheap))
	assert.Contains(t, out, "2. "+botLabel(consts.BotAlgo))
	assert.Contains(t, out, "3. "+botLabel(consts.BotPremium))
}

func TestTickOutcomes(t *testing.T) {
	out := Tick(trading.TickResult{
		Outcome: consts.TickSuccess, Day: 2, Status: consts.StatusRunning,
		Decisions: []models.DecisionView{{BotType: consts.BotAlgo, Action: consts.ActionBuy, Quantity: 3, Reason: "RSI oversold"}},
	})
	assert.Contains(t, out, "day 2")
	assert.Contains(t, out, "RSI oversold")

	assert.Contains(t, Tick(trading.TickResult{Outcome: consts.TickSkipped, SkipReason: "weekend"}), "weekend")
	assert.Contains(t, Tick(trading.TickResult{Outcome: consts.TickInternalError, Err: errors.New("db locked")}), "db locked")
}

func TestHistoryTail(t *testing.T) {
	h := &service.History{Simulation: models.SimulationConfig{Symbol: "MSFT"}}
	base := time.Date(2025, 1, 6, 15, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		h.Points = append(h.Points, service.HistoryPoint{
			Timestamp: base.AddDate(0, 0, i), Day: i + 1, Price: 100 + float64(i),
			ROI: map[consts.BotType]float64{consts.BotAlgo: float64(i)},
		})
	}
	out := History(h, 2)
	assert.Contains(t, out, "2025-01-10")
	assert.NotContains(t, out, "2025-01-06")
	assert.Contains(t, History(nil, 0), "No ticks")
}
