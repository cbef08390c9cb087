// Package display renders arena state for the terminal.
package display

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/dyike/ArenaGo/consts"
	"github.com/dyike/ArenaGo/internal/models"
	"github.com/dyike/ArenaGo/internal/service"
	"github.com/dyike/ArenaGo/internal/trading"
)

const panelWidth = 72

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED")).
			Background(lipgloss.Color("#1F2937")).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#3B82F6")).
			Padding(0, 1).
			Width(panelWidth)

	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280")).Italic(true)

	gainStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Bold(true)
	lossStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
	flatStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))

	buyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Bold(true)
	sellStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
	holdStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))
)

var botLabels = map[consts.BotType]string{
	consts.BotAlgo:    "🤖 Algo",
	consts.BotCheap:   "💡 Cheap LLM",
	consts.BotPremium: "🧠 Premium LLM",
}

func botLabel(b consts.BotType) string {
	if l, ok := botLabels[b]; ok {
		return l
	}
	return string(b)
}

func formatROI(roi float64) string {
	s := fmt.Sprintf("%+.2f%%", roi)
	switch {
	case roi > 0:
		return gainStyle.Render(s)
	case roi < 0:
		return lossStyle.Render(s)
	}
	return flatStyle.Render(s)
}

func formatAction(a consts.Action) string {
	switch a {
	case consts.ActionBuy:
		return buyStyle.Render(string(a))
	case consts.ActionSell:
		return sellStyle.Render(string(a))
	}
	return holdStyle.Render(string(a))
}

func field(label, value string) string {
	return fmt.Sprintf("%s %s\n", labelStyle.Render(label+":"), value)
}

// Status renders the simulation header and one line per portfolio, best
// ROI first.
func Status(st *service.Status) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("⚔️  Trading Arena"))
	b.WriteString("\n")

	if st == nil || st.Simulation == nil {
		b.WriteString(panelStyle.Render(dimStyle.Render("No simulation yet. Start one with `arena start`.")))
		return b.String()
	}

	sim := st.Simulation
	var head strings.Builder
	head.WriteString(field("Simulation", sim.ID))
	head.WriteString(field("Symbol", sim.Symbol))
	head.WriteString(field("Status", string(sim.Status)))
	head.WriteString(field("Day", fmt.Sprintf("%d / %d", sim.CurrentDay, sim.DurationDays)))
	head.WriteString(field("Capital", fmt.Sprintf("$%.2f", sim.StartCapital)))
	head.WriteString(field("Models", fmt.Sprintf("cheap=%s premium=%s", sim.CheapModelID, sim.PremiumModelID)))
	head.WriteString(field("Algo weight", fmt.Sprintf("%d%% technical", sim.WeightTechnical)))
	b.WriteString(panelStyle.Render(strings.TrimRight(head.String(), "\n")))
	b.WriteString("\n")

	b.WriteString(Leaderboard(st.Portfolios))
	return b.String()
}

// Leaderboard renders portfolios sorted by ROI.
func Leaderboard(portfolios []models.Portfolio) string {
	ranked := append([]models.Portfolio(nil), portfolios...)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].ROI > ranked[j].ROI })

	var b strings.Builder
	b.WriteString("🏆 Leaderboard\n\n")
	for i, p := range ranked {
		avg := "-"
		if p.AvgPrice != nil {
			avg = fmt.Sprintf("$%.2f", *p.AvgPrice)
		}
		fmt.Fprintf(&b, "%d. %-16s %s  value $%.2f  cash $%.2f  shares %g @ %s\n",
			i+1, botLabel(p.BotType), formatROI(p.ROI), p.TotalValue, p.Cash, p.Shares, avg)
	}
	return panelStyle.Render(strings.TrimRight(b.String(), "\n"))
}

// Tick renders the outcome of one tick.
func Tick(res trading.TickResult) string {
	var b strings.Builder
	switch res.Outcome {
	case consts.TickSuccess:
		fmt.Fprintf(&b, "✅ Tick settled: day %d, status %s\n\n", res.Day, res.Status)
		for _, d := range res.Decisions {
			qty := ""
			if d.Action != consts.ActionHold {
				qty = fmt.Sprintf(" %g", d.Quantity)
			}
			fmt.Fprintf(&b, "%-16s %s%s  %s\n", botLabel(d.BotType), formatAction(d.Action), qty, dimStyle.Render(d.Reason))
		}
	case consts.TickSkipped:
		fmt.Fprintf(&b, "⏭️  Skipped: %s", res.SkipReason)
	case consts.TickNoActiveSimulation:
		b.WriteString("💤 No active simulation")
	case consts.TickInvalidSymbol:
		b.WriteString(lossStyle.Render("❌ Invalid symbol"))
	case consts.TickUnauthorized:
		b.WriteString(lossStyle.Render("🔒 Unauthorized: check cron_secret"))
	default:
		msg := "tick failed"
		if res.Err != nil {
			msg = res.Err.Error()
		}
		b.WriteString(lossStyle.Render("💥 " + msg))
	}
	return panelStyle.Render(strings.TrimRight(b.String(), "\n"))
}

// History renders the last n points of a history as a compact table.
func History(h *service.History, n int) string {
	if h == nil || len(h.Points) == 0 {
		return panelStyle.Render(dimStyle.Render("No ticks recorded yet."))
	}
	points := h.Points
	if n > 0 && len(points) > n {
		points = points[len(points)-n:]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📈 %s history\n\n", h.Simulation.Symbol)
	fmt.Fprintf(&b, "%-4s %-10s %9s", "Day", "Date", "Price")
	for _, bot := range consts.BotTypes {
		fmt.Fprintf(&b, " %9s", bot)
	}
	fmt.Fprintf(&b, " %9s\n", "B&H")
	for _, p := range points {
		fmt.Fprintf(&b, "%-4d %-10s %9.2f", p.Day, p.Timestamp.Format("2006-01-02"), p.Price)
		for _, bot := range consts.BotTypes {
			fmt.Fprintf(&b, " %+8.2f%%", p.ROI[bot])
		}
		fmt.Fprintf(&b, " %+8.2f%%\n", p.BuyHoldROI)
	}
	return panelStyle.Render(strings.TrimRight(b.String(), "\n"))
}
