package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/seokjunHwang/Quant/internal/balance"
	"github.com/seokjunHwang/Quant/internal/engine"
	"github.com/seokjunHwang/Quant/internal/events"
	"github.com/seokjunHwang/Quant/internal/ledger"
	"github.com/seokjunHwang/Quant/internal/monitor"
	"github.com/seokjunHwang/Quant/internal/override"
	"github.com/seokjunHwang/Quant/internal/reconciliation"
	"github.com/seokjunHwang/Quant/internal/signal"
	"github.com/seokjunHwang/Quant/internal/state"
)

const testPassword = "StrongPass123!"

type stubEngine struct {
	active    bool
	params    reconciliation.Params
	held      map[string]bool
	overrides map[string]bool
	coalesce  bool
	latest    *signal.Signal
	available float64
}

func newStubEngine() *stubEngine {
	return &stubEngine{
		params:    reconciliation.Params{Policy: reconciliation.Conservative, TotalCapital: 1000, MaxPositions: 5, Leverage: 3},
		held:      map[string]bool{"BTCUSDT": true},
		overrides: map[string]bool{},
	}
}

func (e *stubEngine) Start(context.Context) error {
	if e.active {
		return engine.ErrAlreadyRunning
	}
	e.active = true
	return nil
}

func (e *stubEngine) Stop() error {
	if !e.active {
		return engine.ErrNotRunning
	}
	e.active = false
	return nil
}

func (e *stubEngine) Status(context.Context) engine.Status {
	return engine.Status{Active: e.active, Mode: e.params.Policy.Name, Held: len(e.held), Params: e.params}
}

func (e *stubEngine) TriggerRescan(context.Context) (*reconciliation.PassReport, error) {
	if e.coalesce {
		return nil, nil
	}
	return &reconciliation.PassReport{Origin: "rescan", Held: len(e.held)}, nil
}

func (e *stubEngine) ExecuteLatestSignal(context.Context) (*reconciliation.PassReport, signal.Signal, error) {
	if e.latest == nil {
		return nil, signal.Signal{}, signal.ErrNoSignal
	}
	if e.coalesce {
		return nil, *e.latest, nil
	}
	return &reconciliation.PassReport{Origin: engine.OriginManual, Signals: 1}, *e.latest, nil
}

func (e *stubEngine) SyncCapital(context.Context) (reconciliation.Params, balance.Snapshot, error) {
	switch {
	case e.available == 0:
		return e.params, balance.Snapshot{}, engine.ErrFixedCapital
	case e.available <= balance.MinAvailable:
		return e.params, balance.Snapshot{}, balance.ErrInsufficient
	}
	snap := balance.Snapshot{Available: e.available, Capital: e.available * (1 - balance.DefaultReserve)}
	e.params.TotalCapital = snap.Capital
	return e.params, snap, nil
}

func (e *stubEngine) ManualClose(_ context.Context, symbol string) error {
	e.overrides[symbol] = true
	if !e.held[symbol] {
		return fmt.Errorf("%s: %w", symbol, reconciliation.ErrNotHeld)
	}
	delete(e.held, symbol)
	return nil
}

func (e *stubEngine) ClearOverride(symbol string) bool {
	ok := e.overrides[symbol]
	delete(e.overrides, symbol)
	return ok
}

func (e *stubEngine) SetParams(u engine.ParamsUpdate) (reconciliation.Params, error) {
	p, err := u.Apply(e.params)
	if err != nil {
		return e.params, err
	}
	e.params = p
	return p, nil
}

func (e *stubEngine) Params() reconciliation.Params { return e.params }

func (e *stubEngine) Positions() []state.Position {
	var out []state.Position
	for sym := range e.held {
		out = append(out, state.Position{Symbol: sym, Side: state.Long, Quantity: 0.01})
	}
	return out
}

func (e *stubEngine) Overrides() []override.Record {
	var out []override.Record
	for sym := range e.overrides {
		out = append(out, override.Record{Symbol: sym})
	}
	return out
}

func (e *stubEngine) Trades(_ context.Context, limit int) ([]ledger.TradeRecord, error) {
	return []ledger.TradeRecord{{Symbol: "BTCUSDT", TradeType: ledger.TradeEntry, Quantity: float64(limit)}}, nil
}

func (e *stubEngine) FailedOrders(context.Context, int) ([]ledger.FailedOrder, error) {
	return []ledger.FailedOrder{{Symbol: "ADAUSDT", Reason: "below_min_notional"}}, nil
}

func newTestAPIServer(t *testing.T) (*httptest.Server, *stubEngine, *events.Bus) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	svc := newStubEngine()
	bus := events.NewBus()
	metrics := monitor.NewMetrics(prometheus.NewRegistry())
	server := NewServer(svc, bus, metrics, Auth{JWTSecret: "test-secret", AdminPasswordHash: string(hash)}, zerolog.Nop())

	httpServer := httptest.NewServer(server.Router)
	t.Cleanup(httpServer.Close)
	return httpServer, svc, bus
}

func doJSONRequest(t *testing.T, client *http.Client, method, url, token string, payload any, out any) int {
	t.Helper()

	var buf bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&buf).Encode(payload); err != nil {
			t.Fatalf("encode payload: %v", err)
		}
	}

	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp.StatusCode
}

func login(t *testing.T, client *http.Client, baseURL string) string {
	t.Helper()
	var resp struct {
		Token string `json:"token"`
	}
	status := doJSONRequest(t, client, http.MethodPost, baseURL+"/api/auth/login", "", map[string]string{
		"username": "admin",
		"password": testPassword,
	}, &resp)
	if status != http.StatusOK || resp.Token == "" {
		t.Fatalf("login failed status=%d resp=%+v", status, resp)
	}
	return resp.Token
}

type errorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

func TestLogin(t *testing.T) {
	ts, _, _ := newTestAPIServer(t)
	client := ts.Client()

	tests := []struct {
		name     string
		payload  map[string]string
		status   int
		wantCode string
	}{
		{"wrong password", map[string]string{"username": "admin", "password": "nope"}, http.StatusUnauthorized, "INVALID_CREDENTIALS"},
		{"wrong user", map[string]string{"username": "root", "password": testPassword}, http.StatusUnauthorized, "INVALID_CREDENTIALS"},
		{"missing password", map[string]string{"username": "admin"}, http.StatusBadRequest, "MISSING_CREDENTIALS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp errorResponse
			status := doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/auth/login", "", tt.payload, &resp)
			if status != tt.status || resp.Code != tt.wantCode {
				t.Fatalf("status=%d code=%s, expected %d %s", status, resp.Code, tt.status, tt.wantCode)
			}
		})
	}

	if token := login(t, client, ts.URL); token == "" {
		t.Fatalf("expected token")
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	ts, _, _ := newTestAPIServer(t)
	client := ts.Client()

	var resp errorResponse
	if status := doJSONRequest(t, client, http.MethodGet, ts.URL+"/api/status", "", nil, &resp); status != http.StatusUnauthorized || resp.Code != "MISSING_TOKEN" {
		t.Fatalf("expected MISSING_TOKEN, got status=%d resp=%+v", status, resp)
	}
	if status := doJSONRequest(t, client, http.MethodGet, ts.URL+"/api/status", "garbage", nil, &resp); status != http.StatusUnauthorized || resp.Code != "INVALID_TOKEN" {
		t.Fatalf("expected INVALID_TOKEN, got status=%d resp=%+v", status, resp)
	}
}

func TestAutoTradeLifecycle(t *testing.T) {
	ts, _, _ := newTestAPIServer(t)
	client := ts.Client()
	token := login(t, client, ts.URL)

	var resp errorResponse
	if status := doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/autotrade/stop", token, nil, &resp); status != http.StatusConflict || resp.Code != "NOT_RUNNING" {
		t.Fatalf("stop before start: status=%d resp=%+v", status, resp)
	}
	if status := doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/autotrade/start", token, nil, nil); status != http.StatusOK {
		t.Fatalf("start status=%d", status)
	}
	if status := doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/autotrade/start", token, nil, &resp); status != http.StatusConflict || resp.Code != "ALREADY_RUNNING" {
		t.Fatalf("second start: status=%d resp=%+v", status, resp)
	}

	var st struct {
		Active bool   `json:"active"`
		Mode   string `json:"mode"`
	}
	if status := doJSONRequest(t, client, http.MethodGet, ts.URL+"/api/status", token, nil, &st); status != http.StatusOK || !st.Active || st.Mode != "conservative" {
		t.Fatalf("status=%d body=%+v", status, st)
	}
}

func TestClosePosition(t *testing.T) {
	ts, svc, _ := newTestAPIServer(t)
	client := ts.Client()
	token := login(t, client, ts.URL)

	var resp errorResponse
	if status := doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/positions/ethusdt/close", token, nil, &resp); status != http.StatusNotFound || resp.Code != "NOT_HELD" {
		t.Fatalf("close unheld: status=%d resp=%+v", status, resp)
	}
	if status := doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/positions/btcusdt/close", token, nil, nil); status != http.StatusOK {
		t.Fatalf("close status=%d", status)
	}
	if svc.held["BTCUSDT"] {
		t.Fatalf("BTCUSDT should have been closed")
	}

	var overrides []override.Record
	if status := doJSONRequest(t, client, http.MethodGet, ts.URL+"/api/overrides", token, nil, &overrides); status != http.StatusOK || len(overrides) != 2 {
		t.Fatalf("overrides status=%d body=%+v", status, overrides)
	}
	if status := doJSONRequest(t, client, http.MethodDelete, ts.URL+"/api/overrides/BTCUSDT", token, nil, nil); status != http.StatusOK {
		t.Fatalf("delete override status=%d", status)
	}
	if status := doJSONRequest(t, client, http.MethodDelete, ts.URL+"/api/overrides/BTCUSDT", token, nil, &resp); status != http.StatusNotFound {
		t.Fatalf("second delete status=%d", status)
	}
}

func TestParams(t *testing.T) {
	ts, _, _ := newTestAPIServer(t)
	client := ts.Client()
	token := login(t, client, ts.URL)

	var resp errorResponse
	status := doJSONRequest(t, client, http.MethodPut, ts.URL+"/api/params", token, map[string]any{"mode": "yolo"}, &resp)
	if status != http.StatusBadRequest || resp.Code != "INVALID_PARAMETERS" {
		t.Fatalf("bad mode: status=%d resp=%+v", status, resp)
	}

	var p reconciliation.Params
	status = doJSONRequest(t, client, http.MethodPut, ts.URL+"/api/params", token, map[string]any{
		"mode":          "aggressive",
		"max_positions": 2,
	}, &p)
	if status != http.StatusOK || p.Policy.Name != "aggressive" || p.MaxPositions != 2 || p.TotalCapital != 1000 {
		t.Fatalf("update: status=%d params=%+v", status, p)
	}
}

func TestExecuteLatestSignal(t *testing.T) {
	ts, svc, _ := newTestAPIServer(t)
	client := ts.Client()
	token := login(t, client, ts.URL)
	url := ts.URL + "/api/signals/latest"

	var resp errorResponse
	if status := doJSONRequest(t, client, http.MethodPost, url, token, nil, &resp); status != http.StatusNotFound || resp.Code != "NO_SIGNAL" {
		t.Fatalf("no signal: status=%d resp=%+v", status, resp)
	}

	svc.latest = &signal.Signal{ID: 42, Strategy: "xgb", Symbol: "ETHUSDT", Type: signal.Short}
	var out struct {
		Signal signal.Signal             `json:"signal"`
		Report reconciliation.PassReport `json:"report"`
	}
	if status := doJSONRequest(t, client, http.MethodPost, url, token, nil, &out); status != http.StatusOK || out.Signal.ID != 42 || out.Report.Origin != engine.OriginManual {
		t.Fatalf("execute: status=%d body=%+v", status, out)
	}

	svc.coalesce = true
	if status := doJSONRequest(t, client, http.MethodPost, url, token, nil, nil); status != http.StatusAccepted {
		t.Fatalf("coalesced execute status=%d", status)
	}
}

func TestSyncCapital(t *testing.T) {
	ts, svc, _ := newTestAPIServer(t)
	client := ts.Client()
	token := login(t, client, ts.URL)
	url := ts.URL + "/api/params/capital/sync"

	var resp errorResponse
	if status := doJSONRequest(t, client, http.MethodPost, url, token, nil, &resp); status != http.StatusConflict || resp.Code != "FIXED_CAPITAL" {
		t.Fatalf("fixed capital: status=%d resp=%+v", status, resp)
	}

	svc.available = 5
	if status := doJSONRequest(t, client, http.MethodPost, url, token, nil, &resp); status != http.StatusUnprocessableEntity || resp.Code != "INSUFFICIENT_BALANCE" {
		t.Fatalf("insufficient: status=%d resp=%+v", status, resp)
	}

	svc.available = 2000
	var out struct {
		Params  reconciliation.Params `json:"params"`
		Balance balance.Snapshot      `json:"balance"`
	}
	if status := doJSONRequest(t, client, http.MethodPost, url, token, nil, &out); status != http.StatusOK || out.Balance.Available != 2000 || out.Params.TotalCapital != out.Balance.Capital {
		t.Fatalf("sync: status=%d body=%+v", status, out)
	}
}

func TestReconcileAndLists(t *testing.T) {
	ts, svc, _ := newTestAPIServer(t)
	client := ts.Client()
	token := login(t, client, ts.URL)

	var rep reconciliation.PassReport
	if status := doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/reconcile", token, nil, &rep); status != http.StatusOK || rep.Origin != "rescan" {
		t.Fatalf("reconcile status=%d rep=%+v", status, rep)
	}
	svc.coalesce = true
	if status := doJSONRequest(t, client, http.MethodPost, ts.URL+"/api/reconcile", token, nil, nil); status != http.StatusAccepted {
		t.Fatalf("coalesced reconcile status=%d", status)
	}

	var trades []ledger.TradeRecord
	if status := doJSONRequest(t, client, http.MethodGet, ts.URL+"/api/trades?limit=9999", token, nil, &trades); status != http.StatusOK || len(trades) != 1 || trades[0].Quantity != 500 {
		t.Fatalf("trades status=%d body=%+v", status, trades)
	}
	var audit []ledger.FailedOrder
	if status := doJSONRequest(t, client, http.MethodGet, ts.URL+"/api/audit", token, nil, &audit); status != http.StatusOK || len(audit) != 1 {
		t.Fatalf("audit status=%d body=%+v", status, audit)
	}
	var positions []state.Position
	if status := doJSONRequest(t, client, http.MethodGet, ts.URL+"/api/positions", token, nil, &positions); status != http.StatusOK || len(positions) != 1 {
		t.Fatalf("positions status=%d body=%+v", status, positions)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _, _ := newTestAPIServer(t)
	resp, err := ts.Client().Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status=%d", resp.StatusCode)
	}
}

func TestWebsocketForwardsEvents(t *testing.T) {
	ts, _, bus := newTestAPIServer(t)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// The subscription is registered after the upgrade completes.
	deadline := time.Now().Add(2 * time.Second)
	_ = conn.SetReadDeadline(deadline)
	got := make(chan events.Envelope, 1)
	go func() {
		var env events.Envelope
		if err := conn.ReadJSON(&env); err == nil {
			got <- env
		}
	}()
	for {
		bus.Publish(events.EventOrderFailed, events.OrderFailed{Symbol: "ADAUSDT", Action: "size"})
		select {
		case env := <-got:
			if env.Event != events.EventOrderFailed {
				t.Fatalf("unexpected event %q", env.Event)
			}
			return
		case <-time.After(20 * time.Millisecond):
		}
		if time.Now().After(deadline) {
			t.Fatalf("no event received over websocket")
		}
	}
}
