// Package api implements the REST/WebSocket surface named in §6: engine
// status, positions, trades, and balance over GET, panic/pause over POST,
// and a WebSocket endpoint streaming every published bus event in publish
// order. Grounded on the teacher's own api/server.go: the same
// NewServer/Start/Shutdown/writeJSON http.Server wrapper, narrowed from
// the Polymarket dashboard's dozens of builder/grant/coach endpoints down
// to the six load-bearing routes this design specifies, plus bearer-token
// auth and the event-stream WebSocket neither teacher surface had.
package api

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/keryxflow/keryxflow/internal/eventbus"
)

// StatusSnapshot answers GET /api/status.
type StatusSnapshot struct {
	State             string  `json:"state"`
	UptimeSeconds     float64 `json:"uptime_seconds"`
	BreakerState      string  `json:"breaker_state"`
	ConsecutiveLosses int     `json:"consecutive_losses"`
	DailyLossPct      float64 `json:"daily_loss_pct"`
	WeeklyLossPct     float64 `json:"weekly_loss_pct"`
	TotalDrawdownPct  float64 `json:"total_drawdown_pct"`
	QueueDepth        int     `json:"queue_depth"`
	OpenPositions     int     `json:"open_positions"`
}

// PositionView answers one entry of GET /api/positions.
type PositionView struct {
	Symbol        string  `json:"symbol"`
	IsLong        bool    `json:"is_long"`
	Quantity      float64 `json:"quantity"`
	Entry         float64 `json:"entry"`
	Stop          float64 `json:"stop"`
	Target        float64 `json:"target"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
}

// TradeView answers one entry of GET /api/trades.
type TradeView struct {
	Symbol      string    `json:"symbol"`
	Side        string    `json:"side"`
	Quantity    float64   `json:"quantity"`
	EntryPrice  float64   `json:"entry_price"`
	ExitPrice   float64   `json:"exit_price"`
	ExitReason  string    `json:"exit_reason"`
	RealizedPnL float64   `json:"realized_pnl"`
	OpenedAt    time.Time `json:"opened_at"`
	ClosedAt    time.Time `json:"closed_at"`
}

// BalanceView answers GET /api/balance.
type BalanceView struct {
	Total  float64 `json:"total"`
	Free   float64 `json:"free"`
	Locked float64 `json:"locked"`
}

// Backend is everything the API surface needs from the running engine.
// The engine-wiring code in cmd/keryxflow implements this directly
// against the orchestrator, paper engine, risk manager, and store.
type Backend interface {
	Status(ctx context.Context) StatusSnapshot
	Positions(ctx context.Context) []PositionView
	Trades(ctx context.Context, limit int) []TradeView
	Balance(ctx context.Context) BalanceView
	Panic(ctx context.Context) error
	TogglePause(ctx context.Context) (paused bool, err error)
}

var allCategories = []eventbus.Category{
	eventbus.CategoryPrice,
	eventbus.CategorySignal,
	eventbus.CategoryOrder,
	eventbus.CategoryPosition,
	eventbus.CategoryRisk,
	eventbus.CategoryTrailing,
	eventbus.CategorySystem,
}

// Server is the REST/WebSocket API, authenticated via an optional bearer
// token (empty token disables auth, per §6).
type Server struct {
	httpServer  *http.Server
	backend     Backend
	bus         *eventbus.Bus
	bearerToken string
	startedAt   time.Time
	upgrader    websocket.Upgrader
}

// NewServer builds a Server bound to addr. bearerToken == "" disables
// authentication entirely.
func NewServer(addr string, backend Backend, bus *eventbus.Bus, bearerToken string) *Server {
	s := &Server{
		backend:     backend,
		bus:         bus,
		bearerToken: bearerToken,
		startedAt:   time.Now(),
		upgrader:    websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024, CheckOrigin: func(*http.Request) bool { return true }},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.auth(s.handleStatus))
	mux.HandleFunc("/api/positions", s.auth(s.handlePositions))
	mux.HandleFunc("/api/trades", s.auth(s.handleTrades))
	mux.HandleFunc("/api/balance", s.auth(s.handleBalance))
	mux.HandleFunc("/api/panic", s.auth(s.handlePanic))
	mux.HandleFunc("/api/pause", s.auth(s.handlePause))
	mux.HandleFunc("/ws", s.auth(s.handleWebSocket))

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start begins serving in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	log.Printf("api server listening on %s", s.httpServer.Addr)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("api server: %v", err)
		}
	}()
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	if s.bearerToken == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if got == "" || got != s.bearerToken {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.backend.Status(r.Context())
	snap.UptimeSeconds = time.Since(s.startedAt).Seconds()
	snap.QueueDepth = s.bus.QueueDepth()
	s.writeJSON(w, snap)
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]interface{}{"positions": s.backend.Positions(r.Context())})
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	s.writeJSON(w, map[string]interface{}{"trades": s.backend.Trades(r.Context(), limit)})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.backend.Balance(r.Context()))
}

func (s *Server) handlePanic(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.backend.Panic(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, map[string]interface{}{"ok": true})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	paused, err := s.backend.TogglePause(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, map[string]interface{}{"paused": paused})
}

// streamedEvent is the wire shape for every event relayed over /ws.
type streamedEvent struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// handleWebSocket upgrades the connection and relays every bus event, in
// publish order, as JSON until the client disconnects.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	var writeMu sync.Mutex
	subIDs := make([]int, 0, len(allCategories))
	for _, cat := range allCategories {
		cat := cat
		id := s.bus.Subscribe(cat, func(e eventbus.Event) {
			writeMu.Lock()
			defer writeMu.Unlock()
			_ = conn.WriteJSON(streamedEvent{Type: string(e.Kind), Timestamp: e.Timestamp, Data: e.Payload})
		})
		subIDs = append(subIDs, id)
	}
	defer func() {
		for i, cat := range allCategories {
			s.bus.Unsubscribe(cat, subIDs[i])
		}
	}()

	// Block until the client disconnects; we don't read app data from it.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
