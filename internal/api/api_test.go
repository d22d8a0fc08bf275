package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/keryxflow/keryxflow/internal/eventbus"
)

type fakeBackend struct {
	paused bool
	panics int
}

func (f *fakeBackend) Status(context.Context) StatusSnapshot {
	return StatusSnapshot{State: "running", BreakerState: "armed"}
}
func (f *fakeBackend) Positions(context.Context) []PositionView {
	return []PositionView{{Symbol: "BTC-USD", IsLong: true, Quantity: 0.1, Entry: 60000, UnrealizedPnL: 12.5}}
}
func (f *fakeBackend) Trades(context.Context, int) []TradeView {
	return []TradeView{{Symbol: "BTC-USD", Side: "long", ExitReason: "target", RealizedPnL: 100}}
}
func (f *fakeBackend) Balance(context.Context) BalanceView {
	return BalanceView{Total: 10100, Free: 9000, Locked: 1100}
}
func (f *fakeBackend) Panic(context.Context) error {
	f.panics++
	return nil
}
func (f *fakeBackend) TogglePause(context.Context) (bool, error) {
	f.paused = !f.paused
	return f.paused, nil
}

func newTestServer(t *testing.T, token string) (*Server, *fakeBackend) {
	t.Helper()
	bus := eventbus.New(100, nil)
	t.Cleanup(bus.Close)
	backend := &fakeBackend{}
	return NewServer("127.0.0.1:0", backend, bus, token), backend
}

func TestStatusEndpoint(t *testing.T) {
	s, _ := newTestServer(t, "")
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	s.httpServer.Handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"state":"running"`)
}

func TestPositionsEndpoint(t *testing.T) {
	s, _ := newTestServer(t, "")
	rr := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/positions", nil))
	require.Contains(t, rr.Body.String(), "BTC-USD")
}

func TestPanicEndpointInvokesBackend(t *testing.T) {
	s, backend := newTestServer(t, "")
	rr := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/panic", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, 1, backend.panics)
}

func TestPauseEndpointTogglesState(t *testing.T) {
	s, backend := newTestServer(t, "")
	rr := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/pause", nil))
	require.Contains(t, rr.Body.String(), `"paused":true`)
	require.True(t, backend.paused)
}

func TestAuthRejectsMissingToken(t *testing.T) {
	s, _ := newTestServer(t, "secret")
	rr := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAuthAcceptsCorrectToken(t *testing.T) {
	s, _ := newTestServer(t, "secret")
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Authorization", "Bearer secret")
	s.httpServer.Handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestEmptyTokenDisablesAuth(t *testing.T) {
	s, _ := newTestServer(t, "")
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	s.httpServer.Handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestWebSocketStreamsPublishedEvents(t *testing.T) {
	bus := eventbus.New(100, nil)
	defer bus.Close()
	backend := &fakeBackend{}
	s := NewServer("127.0.0.1:0", backend, bus, "")

	server := httptest.NewServer(s.httpServer.Handler)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Give the handler a moment to register its subscriptions before publishing.
	time.Sleep(20 * time.Millisecond)
	bus.Publish(eventbus.Event{Category: eventbus.CategorySystem, Kind: eventbus.KindSystemStarted, Timestamp: time.Now()})

	var msg map[string]interface{}
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, "system_started", msg["type"])
}
