package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dyike/ArenaGo/internal/service"
)

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req service.StartRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	sim, err := s.simulations.Start(r.Context(), req, r.Header.Get(UserIDHeader))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "simulation": sim})
}

type stopRequest struct {
	SimulationID string `json:"simulationId"`
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	var req stopRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<12)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	sim, err := s.simulations.Stop(r.Context(), req.SimulationID, r.Header.Get(UserIDHeader))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "simulation": sim})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.simulations.Status(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	h, err := s.simulations.History(r.Context(), r.URL.Query().Get("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrInvalidSymbol):
		writeError(w, http.StatusBadRequest, "Invalid symbol")
	case errors.Is(err, service.ErrAlreadyRunning):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrNoSimulation):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		s.log.WithError(err).Error("request failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal error", "details": err.Error()})
	}
}
