package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryanbastic/go-pixelwall/internal/grid"
	"github.com/ryanbastic/go-pixelwall/internal/ledger"
	"github.com/ryanbastic/go-pixelwall/internal/session"
	"github.com/ryanbastic/go-pixelwall/internal/trigger"
	"github.com/ryanbastic/go-pixelwall/internal/viewport"
)

var t0 = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

type testEnv struct {
	api      humatest.TestAPI
	handler  http.Handler
	ledger   *ledger.Ledger
	clock    *ledger.ManualClock
	bus      *trigger.Bus
	sessions *session.Registry
	plugins  *trigger.PluginRegistry
}

func newTestEnv(t *testing.T, configure ...func(*Deps)) *testEnv {
	t.Helper()
	clock := ledger.NewManualClock(t0)
	bus := trigger.NewBus()
	l := ledger.New(ledger.Options{GridSize: 20, LockDuration: time.Hour, Clock: clock, Publisher: bus})

	ctx, cancel := context.WithCancel(context.Background())
	sessions := session.NewRegistry(ctx, session.Options{
		Ledger:        l,
		Bus:           bus,
		Camera:        viewport.Config{GridSize: 20, CellSize: 10},
		FrameInterval: time.Millisecond,
		Logger:        testLogger(),
	}, 2)
	t.Cleanup(func() {
		sessions.CloseAll()
		cancel()
	})

	d := Deps{
		Ledger:   l,
		Bus:      bus,
		Sessions: sessions,
		Plugins:  trigger.NewPluginRegistry(nil),
		Logger:   testLogger(),
	}
	for _, fn := range configure {
		fn(&d)
	}
	handler, api := newServer(d)
	return &testEnv{
		api:      humatest.Wrap(t, api),
		handler:  handler,
		ledger:   l,
		clock:    clock,
		bus:      bus,
		sessions: sessions,
		plugins:  d.Plugins,
	}
}

func (e *testEnv) claim(t *testing.T, tx string, coords ...grid.Coord) {
	t.Helper()
	paints := make([]ledger.Paint, len(coords))
	for i, c := range coords {
		paints[i] = ledger.Paint{Coord: c, Color: grid.Black}
	}
	_, err := e.ledger.Claim(ledger.ClaimRequest{TxID: tx, Cells: paints})
	require.NoError(t, err)
}

func decode[T any](t *testing.T, body []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(body, &v), "body: %s", body)
	return v
}

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(_ context.Context) error {
	return m.err
}

func TestLivez_ReturnsOK(t *testing.T) {
	e := newTestEnv(t)

	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/livez", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, w.Body.Bytes())["status"])
}

func TestReadyz_NotRestoredYet(t *testing.T) {
	health := NewHealthHandler(nil, testLogger())
	e := newTestEnv(t, func(d *Deps) { d.Health = health })

	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	health.SetReady(true)
	w = httptest.NewRecorder()
	e.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/readyz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[readyzResponse](t, w.Body.Bytes()).Restored)
}

func TestGate_RejectsWritesUntilReady(t *testing.T) {
	health := NewHealthHandler(nil, testLogger())
	e := newTestEnv(t, func(d *Deps) { d.Health = health })
	body := map[string]any{"cells": []map[string]any{{"x": 1, "y": 1, "color": "#ff0000"}}}

	resp := e.api.Post("/v1/claims", body)
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
	assert.Equal(t, "1", resp.Header().Get("Retry-After"))
	assert.Equal(t, http.StatusServiceUnavailable, e.api.Get("/v1/squares").Code)
	assert.Zero(t, e.ledger.Stats().LiveCells)

	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/livez", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	health.SetReady(true)
	require.Equal(t, http.StatusCreated, e.api.Post("/v1/claims", body).Code)
	assert.Equal(t, 1, e.ledger.Stats().LiveCells)

	health.SetReady(false)
	assert.Equal(t, http.StatusServiceUnavailable, e.api.Post("/v1/claims", body).Code)
}

func TestReadyz_OneBackendDown(t *testing.T) {
	health := NewHealthHandler(map[string]Pinger{
		"postgres": &mockPinger{},
		"replica":  &mockPinger{err: errors.New("connection refused")},
	}, testLogger())
	health.SetReady(true)
	e := newTestEnv(t, func(d *Deps) { d.Health = health })

	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/health", nil))

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	resp := decode[readyzResponse](t, w.Body.Bytes())
	assert.Equal(t, "unavailable", resp.Status)
	assert.Equal(t, "ok", resp.Backends["postgres"].Status)
	assert.Equal(t, "connection refused", resp.Backends["replica"].Error)
}

func TestMetricsEndpoint(t *testing.T) {
	e := newTestEnv(t)
	e.api.Get("/v1/grid")

	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "pixelwall_requests_total")
}

func TestToHTTPError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&ledger.TakenError{Coords: []grid.Coord{{X: 1, Y: 1}}}, http.StatusConflict},
		{ledger.ErrOutOfBounds, http.StatusBadRequest},
		{ledger.ErrInvalidInput, http.StatusBadRequest},
		{ledger.ErrUnknownTransaction, http.StatusNotFound},
		{session.ErrNotFound, http.StatusNotFound},
		{session.ErrTooManySessions, http.StatusTooManyRequests},
		{trigger.ErrInvalidPlugin, http.StatusUnprocessableEntity},
		{context.DeadlineExceeded, http.StatusServiceUnavailable},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			var se huma.StatusError
			require.ErrorAs(t, toHTTPError(testLogger(), "op", tt.err), &se)
			assert.Equal(t, tt.want, se.GetStatus())
		})
	}
}
