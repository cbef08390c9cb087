package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/ArenaGo/consts"
	"github.com/dyike/ArenaGo/internal/models"
	"github.com/dyike/ArenaGo/internal/service"
	"github.com/dyike/ArenaGo/internal/trading"
)

type stubTicker struct {
	res trading.TickResult
	got trading.TickRequest
}

func (s *stubTicker) Tick(_ context.Context, req trading.TickRequest) trading.TickResult {
	s.got = req
	return s.res
}

type stubSimulations struct {
	startErr  error
	stopErr   error
	startedBy string
	stoppedBy string
}

func (s *stubSimulations) Start(_ context.Context, req service.StartRequest, createdBy string) (*models.SimulationConfig, error) {
	s.startedBy = createdBy
	if s.startErr != nil {
		return nil, s.startErr
	}
	return &models.SimulationConfig{ID: "sim-1", Symbol: req.Symbol, Status: consts.StatusRunning}, nil
}

func (s *stubSimulations) Stop(_ context.Context, _ string, userID string) (*models.SimulationConfig, error) {
	s.stoppedBy = userID
	if s.stopErr != nil {
		return nil, s.stopErr
	}
	return &models.SimulationConfig{ID: "sim-1", Status: consts.StatusCompleted}, nil
}

func (s *stubSimulations) Status(context.Context) (*service.Status, error) {
	return &service.Status{Status: consts.StatusIdle}, nil
}

func (s *stubSimulations) History(_ context.Context, id string) (*service.History, error) {
	if id == "missing" {
		return nil, service.ErrNoSimulation
	}
	return &service.History{Simulation: models.SimulationConfig{ID: id}}, nil
}

func do(t *testing.T, srv *Server, method, target string, body string, headers map[string]string) (int, map[string]any) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec.Code, out
}

func TestTickResponses(t *testing.T) {
	cases := []struct {
		name   string
		res    trading.TickResult
		status int
		check  func(t *testing.T, body map[string]any)
	}{
		{"unauthorized", trading.TickResult{Outcome: consts.TickUnauthorized}, http.StatusUnauthorized, func(t *testing.T, b map[string]any) {
			assert.Equal(t, "Unauthorized", b["error"])
		}},
		{"weekend", trading.TickResult{Outcome: consts.TickSkipped, SkipReason: consts.SkipWeekend}, http.StatusOK, func(t *testing.T, b map[string]any) {
			assert.Equal(t, true, b["skipped"])
			assert.Equal(t, "weekend", b["reason"])
		}},
		{"no simulation", trading.TickResult{Outcome: consts.TickNoActiveSimulation}, http.StatusOK, func(t *testing.T, b map[string]any) {
			assert.Equal(t, "No active simulation", b["message"])
		}},
		{"invalid symbol", trading.TickResult{Outcome: consts.TickInvalidSymbol}, http.StatusBadRequest, func(t *testing.T, b map[string]any) {
			assert.Equal(t, "Invalid symbol", b["error"])
		}},
		{"internal", trading.TickResult{Outcome: consts.TickInternalError, Err: errors.New("db down")}, http.StatusInternalServerError, func(t *testing.T, b map[string]any) {
			assert.Equal(t, "db down", b["details"])
			assert.NotEmpty(t, b["error"])
		}},
		{"success", trading.TickResult{
			Outcome: consts.TickSuccess, Day: 3, Status: consts.StatusRunning,
			Decisions: []models.DecisionView{{BotType: consts.BotAlgo, Action: consts.ActionBuy, Quantity: 2, Reason: "RSI oversold"}},
		}, http.StatusOK, func(t *testing.T, b map[string]any) {
			assert.Equal(t, true, b["success"])
			assert.Equal(t, 3.0, b["day"])
			assert.Equal(t, "RUNNING", b["status"])
			decisions := b["decisions"].([]any)
			require.Len(t, decisions, 1)
			d := decisions[0].(map[string]any)
			assert.Equal(t, "ALGO", d["botType"])
			assert.Equal(t, "BUY", d["action"])
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := New(&stubTicker{res: tc.res}, &stubSimulations{})
			code, body := do(t, srv, http.MethodGet, "/api/cron/tick", "", nil)
			assert.Equal(t, tc.status, code)
			tc.check(t, body)
		})
	}
}

func TestTickPassesCredentialsAndForce(t *testing.T) {
	ticker := &stubTicker{res: trading.TickResult{Outcome: consts.TickNoActiveSimulation}}
	srv := New(ticker, &stubSimulations{})

	do(t, srv, http.MethodGet, "/api/cron/tick?key=q&force=true", "", map[string]string{
		"Authorization":  "Bearer tok",
		CronSecretHeader: "h",
	})
	assert.Equal(t, "Bearer tok", ticker.got.Credentials.Authorization)
	assert.Equal(t, "h", ticker.got.Credentials.Header)
	assert.Equal(t, "q", ticker.got.Credentials.Query)
	assert.True(t, ticker.got.Force)

	do(t, srv, http.MethodGet, "/api/cron/tick?force=nope", "", nil)
	assert.False(t, ticker.got.Force)
}

func TestStartAndStop(t *testing.T) {
	sims := &stubSimulations{}
	srv := New(&stubTicker{}, sims)

	code, body := do(t, srv, http.MethodPost, "/api/simulation/start", `{"symbol":"AAPL","startCapital":5000}`, map[string]string{UserIDHeader: "u1"})
	assert.Equal(t, http.StatusCreated, code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "u1", sims.startedBy)

	code, _ = do(t, srv, http.MethodPost, "/api/simulation/stop", "", map[string]string{UserIDHeader: "u1"})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "u1", sims.stoppedBy)
}

func TestServiceErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{service.ErrInvalidRequest, http.StatusBadRequest},
		{service.ErrInvalidSymbol, http.StatusBadRequest},
		{service.ErrAlreadyRunning, http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		srv := New(&stubTicker{}, &stubSimulations{startErr: tc.err})
		code, body := do(t, srv, http.MethodPost, "/api/simulation/start", `{"symbol":"AAPL"}`, nil)
		assert.Equal(t, tc.status, code, tc.err.Error())
		assert.NotEmpty(t, body["error"])
	}

	srv := New(&stubTicker{}, &stubSimulations{stopErr: service.ErrForbidden})
	code, _ := do(t, srv, http.MethodPost, "/api/simulation/stop", "", nil)
	assert.Equal(t, http.StatusForbidden, code)
}

func TestStartRejectsBadJSON(t *testing.T) {
	srv := New(&stubTicker{}, &stubSimulations{})
	code, body := do(t, srv, http.MethodPost, "/api/simulation/start", `{"symbol":`, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid JSON body", body["error"])
}

func TestStatusAndHistory(t *testing.T) {
	srv := New(&stubTicker{}, &stubSimulations{})

	code, body := do(t, srv, http.MethodGet, "/api/simulation/status", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "IDLE", body["status"])

	code, body = do(t, srv, http.MethodGet, "/api/simulation/history?id=sim-9", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "sim-9", body["simulation"].(map[string]any)["id"])

	code, _ = do(t, srv, http.MethodGet, "/api/simulation/history?id=missing", "", nil)
	assert.Equal(t, http.StatusNotFound, code)
}
