package server

import (
	"net/http"

	"github.com/dyike/ArenaGo/consts"
	"github.com/dyike/ArenaGo/internal/models"
	"github.com/dyike/ArenaGo/internal/trading"
)

type tickSuccess struct {
	Success   bool                    `json:"success"`
	Day       int                     `json:"day"`
	Status    consts.SimulationStatus `json:"status"`
	Decisions []models.DecisionView   `json:"decisions"`
}

func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := trading.TickRequest{
		Credentials: trading.Credentials{
			Authorization: r.Header.Get("Authorization"),
			Header:        r.Header.Get(CronSecretHeader),
			Query:         q.Get("key"),
		},
		Force: parseBool(q.Get("force")),
	}

	res := s.ticker.Tick(r.Context(), req)
	switch res.Outcome {
	case consts.TickUnauthorized:
		writeError(w, http.StatusUnauthorized, "Unauthorized")
	case consts.TickSkipped:
		writeJSON(w, http.StatusOK, map[string]any{"skipped": true, "reason": res.SkipReason})
	case consts.TickNoActiveSimulation:
		writeJSON(w, http.StatusOK, map[string]string{"message": "No active simulation"})
	case consts.TickInvalidSymbol:
		writeError(w, http.StatusBadRequest, "Invalid symbol")
	case consts.TickSuccess:
		decisions := res.Decisions
		if decisions == nil {
			decisions = []models.DecisionView{}
		}
		writeJSON(w, http.StatusOK, tickSuccess{Success: true, Day: res.Day, Status: res.Status, Decisions: decisions})
	default:
		details := "unknown error"
		if res.Err != nil {
			details = res.Err.Error()
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Tick failed", "details": details})
	}
}
