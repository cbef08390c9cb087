// Package server exposes the tick endpoint and the simulation control API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/dyike/ArenaGo/internal/logging"
	"github.com/dyike/ArenaGo/internal/models"
	"github.com/dyike/ArenaGo/internal/service"
	"github.com/dyike/ArenaGo/internal/trading"
)

const (
	// CronSecretHeader is the custom header a scheduler may use instead of
	// a bearer token.
	CronSecretHeader = "X-Cron-Secret"
	UserIDHeader     = "X-User-ID"
)

type Ticker interface {
	Tick(ctx context.Context, req trading.TickRequest) trading.TickResult
}

type Simulations interface {
	Start(ctx context.Context, req service.StartRequest, createdBy string) (*models.SimulationConfig, error)
	Stop(ctx context.Context, simulationID, userID string) (*models.SimulationConfig, error)
	Status(ctx context.Context) (*service.Status, error)
	History(ctx context.Context, simulationID string) (*service.History, error)
}

type Server struct {
	ticker      Ticker
	simulations Simulations
	router      *mux.Router
	log         *logrus.Entry
}

func New(ticker Ticker, simulations Simulations) *Server {
	s := &Server{
		ticker:      ticker,
		simulations: simulations,
		router:      mux.NewRouter(),
		log:         logging.For("http"),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/api/cron/tick", s.handleTick).Methods(http.MethodGet, http.MethodPost)

	sim := s.router.PathPrefix("/api/simulation").Subrouter()
	sim.HandleFunc("/start", s.handleStart).Methods(http.MethodPost)
	sim.HandleFunc("/stop", s.handleStop).Methods(http.MethodPost)
	sim.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	sim.HandleFunc("/history", s.handleHistory).Methods(http.MethodGet)

	s.router.Use(s.logRequests)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe blocks until ctx is cancelled, then drains in-flight
// requests for up to shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.log.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(start).String(),
		}).Debug("request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func parseBool(s string) bool {
	b, err := strconv.ParseBool(s)
	return err == nil && b
}
