// Command keryxflow runs the KeryxFlow paper-trading engine: it wires the
// event bus, durable store, and every internal/* subsystem together, reads
// price ticks as newline-delimited JSON from stdin, and drives the
// Analyzer → Aggregator → Risk Manager → Executor pipeline on every
// completed candle. Grounded on the teacher's cmd/trader/main.go: flag
// parsing, config load, a signal.Notify'd for-select run loop, and a
// labeled shutdown sequence that logs a session summary.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/keryxflow/keryxflow/internal/aggregator"
	"github.com/keryxflow/keryxflow/internal/analyzer"
	"github.com/keryxflow/keryxflow/internal/api"
	"github.com/keryxflow/keryxflow/internal/breaker"
	"github.com/keryxflow/keryxflow/internal/config"
	"github.com/keryxflow/keryxflow/internal/eventbus"
	"github.com/keryxflow/keryxflow/internal/exchange"
	"github.com/keryxflow/keryxflow/internal/memory"
	"github.com/keryxflow/keryxflow/internal/money"
	"github.com/keryxflow/keryxflow/internal/notify"
	"github.com/keryxflow/keryxflow/internal/ohlcv"
	"github.com/keryxflow/keryxflow/internal/orchestrator"
	"github.com/keryxflow/keryxflow/internal/paperengine"
	"github.com/keryxflow/keryxflow/internal/riskmanager"
	"github.com/keryxflow/keryxflow/internal/store"
	"github.com/keryxflow/keryxflow/internal/trailing"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to a YAML config file, merged over the built-in defaults")
		dbPath     = flag.String("db", "keryxflow.db", "path to the sqlite durable store (':memory:' for ephemeral)")
		symbolsCSV = flag.String("symbols", "BTC-USD,ETH-USD", "comma-separated symbol whitelist, used only when -config is absent")
		rollout    = flag.String("rollout", "", "rollout phase to apply over the loaded config: paper|shadow|live-small|live")
	)
	flag.Parse()

	symbols := strings.Split(*symbolsCSV, ",")
	for i := range symbols {
		symbols[i] = strings.TrimSpace(symbols[i])
	}

	cfg := config.Default(symbols)
	if *configPath != "" {
		loaded, err := config.LoadFile(*configPath, symbols)
		if err != nil {
			log.Fatalf("keryxflow: load config %s: %v", *configPath, err)
		}
		cfg = loaded
	}
	cfg.ApplyEnv()

	if *rollout != "" {
		if err := config.ApplyRolloutPhase(&cfg, *rollout); err != nil {
			log.Fatalf("keryxflow: rollout phase %q: %v", *rollout, err)
		}
	}

	warnings, err := cfg.Validate()
	if err != nil {
		log.Fatalf("keryxflow: invalid config: %v", err)
	}
	for _, w := range warnings {
		log.Printf("keryxflow: config warning: %s", w)
	}

	if cfg.System.Mode != "paper" {
		log.Fatalf("keryxflow: system.mode=%q is not implemented; no live exchange adapter is wired (see DESIGN.md)", cfg.System.Mode)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := eventbus.New(eventbus.DefaultQueueCapacity, logger)
	defer bus.Close()

	db, err := store.Open(ctx, *dbPath)
	if err != nil {
		log.Fatalf("keryxflow: open store: %v", err)
	}
	defer db.Close()

	openPositions, err := db.OpenPositions(ctx)
	if err != nil {
		log.Fatalf("keryxflow: load open positions: %v", err)
	}
	if len(openPositions) > 0 {
		log.Printf("keryxflow: %d open position(s) recorded from a prior session (paper engine starts flat; see DESIGN.md restart-recovery note)", len(openPositions))
	}

	brkCfg := breaker.Config{
		MaxDailyLossPct:      cfg.Circuit.MaxDailyLossPct,
		MaxWeeklyLossPct:     cfg.Circuit.MaxWeeklyLossPct,
		MaxTotalDrawdownPct:  cfg.Circuit.MaxTotalDrawdownPct,
		MaxConsecutiveLosses: cfg.Circuit.MaxConsecutiveLosses,
		RapidLossCount:       cfg.Circuit.RapidLossCount,
		RapidLossWindow:      cfg.RapidLossWindow(),
		CooldownDuration:     cfg.CooldownDuration(),
	}
	brk := breaker.New(brkCfg)

	limits := cfg.ToGuardrailLimits()
	soft := riskmanager.SoftRules{MinRiskReward: cfg.Risk.MinRiskReward, MaxConcurrentPositions: riskmanager.DefaultSoftRules().MaxConcurrentPositions}
	risk := riskmanager.New(brk, limits, soft, bus)

	trailCfg := trailing.Config{
		BreakevenEnabled:    cfg.Risk.BreakevenEnabled,
		BreakevenTriggerPct: cfg.Risk.BreakevenTriggerPct,
		TrailingEnabled:     cfg.Risk.TrailingEnabled,
		TrailingPct:         cfg.Risk.TrailingPct,
	}
	trailMgr := trailing.New(trailCfg, bus)

	paperCfg := paperengine.Config{
		InitialBalance: money.FromFloat(cfg.Paper.InitialBalance),
		SlippagePct:    cfg.Paper.SlippagePct,
		CommissionPct:  cfg.Paper.CommissionPct,
	}
	sim := paperengine.New(paperCfg, bus)

	// Wired for Adapter-port-style external consumers (future CLI tooling);
	// the run loop below drives ticks through the orchestrator directly,
	// since the orchestrator owns its own OHLCV buffers for the analyzer.
	_ = exchange.NewPaperAdapter(sim, func(symbol string) *ohlcv.Buffer {
		return ohlcv.New(symbol, ohlcv.DefaultCapacity, bus)
	})

	mem, err := memory.NewFromStore(ctx, db)
	if err != nil {
		log.Fatalf("keryxflow: load episodic memory: %v", err)
	}
	if closed := len(mem.ClosedEpisodes()); closed > 0 {
		log.Printf("keryxflow: %d closed-trade episode(s) recovered from a prior session", closed)
	}

	engineCfg := orchestrator.Config{
		Symbols:          symbols,
		AnalyzerConfig:   analyzerConfigFromOracle(cfg),
		AggregatorConfig: aggregatorConfigFromRisk(cfg),
		RiskPctPerTrade:  cfg.Risk.RiskPerTrade,
		LLMTimeout:       10 * time.Second,
	}
	engine := orchestrator.New(engineCfg, bus, sim, risk, trailMgr, mem, nil)
	engine.Start()

	var sink notify.Sink = notify.NoopSink{}
	if cfg.Telegram.Enabled {
		sink = notify.NewTelegramSink(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
	}

	book := newRiskBookkeeper(cfg.Paper.InitialBalance)
	backend := &engineBackend{engine: engine, sim: sim, brk: brk, store: db, book: book}

	var apiServer *api.Server
	if cfg.API.Enabled {
		apiServer = api.NewServer(cfg.API.Addr, backend, bus, cfg.API.BearerToken)
		if err := apiServer.Start(); err != nil {
			log.Fatalf("keryxflow: start api server: %v", err)
		}
	}

	var lastTripReason string
	var openCache sync.Map // symbol -> paperengine.Position
	bus.Subscribe(eventbus.CategoryPosition, func(e eventbus.Event) {
		switch e.Kind {
		case eventbus.KindPositionOpened:
			if p, ok := e.Payload.(paperengine.Position); ok {
				openCache.Store(p.Symbol, p)
			}
		case eventbus.KindPositionClosed:
			exit, ok := e.Payload.(paperengine.ExitResult)
			if !ok {
				return
			}
			now := time.Now()
			book.recordTradeResult(now, exit.RealizedPnL.Float64())
			in := book.observeEquity(now, sim.TotalValue().Float64())
			if _, reason := brk.Check(in); reason != "" && reason != lastTripReason {
				lastTripReason = reason
				log.Printf("keryxflow: circuit breaker tripped: %s", reason)
				notifySink(ctx, sink, notify.SeverityCritical, "circuit breaker tripped", reason)
			}

			cached, _ := openCache.Load(exit.Symbol)
			pos, _ := cached.(paperengine.Position)
			openCache.Delete(exit.Symbol)

			side := "long"
			if !pos.IsLong {
				side = "short"
			}
			if err := db.RecordTrade(ctx, store.TradeRecord{
				ID:          fmt.Sprintf("%s-%d", exit.Symbol, now.UnixNano()),
				Symbol:      exit.Symbol,
				Side:        side,
				Quantity:    pos.Quantity,
				EntryPrice:  pos.Entry,
				ExitPrice:   exit.ExitPrice,
				ExitReason:  string(exit.Reason),
				RealizedPnL: exit.RealizedPnL,
				OpenedAt:    pos.OpenedAt,
				ClosedAt:    now,
			}); err != nil {
				log.Printf("keryxflow: record trade: %v", err)
			}
		}
	})

	bus.Subscribe(eventbus.CategoryOrder, func(e eventbus.Event) {
		if e.Kind == eventbus.KindOrderApproved {
			book.recordApproval(time.Now())
		}
	})

	bus.Subscribe(eventbus.CategorySystem, func(e eventbus.Event) {
		if e.Kind == eventbus.KindSystemPanic {
			notifySink(ctx, sink, notify.SeverityCritical, "panic liquidation", "every open position was closed")
		}
	})

	bus.Subscribe(eventbus.CategoryPrice, func(e eventbus.Event) {
		if e.Kind != eventbus.KindCandleClose {
			return
		}
		payload, ok := e.Payload.(struct {
			Symbol string
			Candle ohlcv.Candle
		})
		if !ok {
			return
		}
		decision, fired := engine.HandleCandleClose(ctx, payload.Symbol, sim.TotalValue(), guardrailSnapshot(sim, book, time.Now()), len(sim.Positions()))
		if fired && !decision.Approved && decision.Reason != "" {
			log.Printf("keryxflow: order rejected for %s: %s", payload.Symbol, decision.Reason)
		}
		reportTelemetry(bus, sim, brk)
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	tickCh := make(chan tickLine, 256)
	go readStdinTicks(tickCh)

	digestTicker := time.NewTicker(24 * time.Hour)
	defer digestTicker.Stop()
	weekTicker := time.NewTicker(7 * 24 * time.Hour)
	defer weekTicker.Stop()

	log.Printf("keryxflow: running in paper mode, symbols=%v, api=%v", symbols, cfg.API.Enabled)

loop:
	for {
		select {
		case <-sigCh:
			log.Print("keryxflow: shutdown signal received")
			break loop
		case <-digestTicker.C:
			sendDailyDigest(ctx, db, sink, brk, book, cfg.Circuit.MaxDailyLossPct)
			book.resetDay(sim.TotalValue().Float64())
		case <-weekTicker.C:
			book.resetWeek(sim.TotalValue().Float64())
		case line, open := <-tickCh:
			if !open {
				log.Print("keryxflow: tick stream closed")
				break loop
			}
			engine.HandleTick(line.Symbol, exchange.Tick{
				Symbol:    line.Symbol,
				Price:     line.Price,
				Volume:    line.Volume,
				Timestamp: line.Timestamp,
			}, 0)
		}
	}

	finalPrices := make(map[string]float64)
	for sym, p := range sim.Positions() {
		finalPrices[sym] = p.Entry + p.UnrealizedPnL.Float64()/maxQty(p.Quantity)
	}
	closed := engine.Panic(finalPrices)
	engine.Stop()

	if apiServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = apiServer.Shutdown(shutdownCtx)
		shutdownCancel()
	}

	if err := db.RecordBalance(context.Background(), time.Now(), sim.TotalValue(), sim.CashFree(), sim.TotalValue().Sub(sim.CashFree())); err != nil {
		log.Printf("keryxflow: record final balance: %v", err)
	}

	log.Printf("keryxflow: session summary — closed %d position(s) on shutdown, final equity %.2f", len(closed), sim.TotalValue().Float64())
}

// tickLine is the newline-delimited JSON shape read from stdin.
type tickLine struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Volume    float64   `json:"volume"`
	Timestamp time.Time `json:"timestamp"`
}

func readStdinTicks(out chan<- tickLine) {
	defer close(out)
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var t tickLine
		if err := json.Unmarshal([]byte(line), &t); err != nil {
			log.Printf("keryxflow: skipping malformed tick line: %v", err)
			continue
		}
		if t.Timestamp.IsZero() {
			t.Timestamp = time.Now()
		}
		out <- t
	}
}

func notifySink(ctx context.Context, sink notify.Sink, severity notify.Severity, title, body string) {
	sendCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := sink.Send(sendCtx, severity, title, body); err != nil {
		log.Printf("keryxflow: notify: %v", err)
	}
}

// sendDailyDigest aggregates the day's closed trades from the durable store
// and sends a coaching digest over sink, mirroring the teacher's Telegram
// daily-advice cadence but driven off the breaker/guardrail state rather
// than a builder-volume leaderboard.
func sendDailyDigest(ctx context.Context, db *store.Store, sink notify.Sink, brk *breaker.Breaker, book *riskBookkeeper, maxDailyLossPct float64) {
	trades, err := db.RecentTrades(ctx, 500)
	if err != nil {
		log.Printf("keryxflow: daily digest: load trades: %v", err)
		return
	}

	now := time.Now()
	dayCutoff := now.Truncate(24 * time.Hour)
	var netPnL float64
	tradesToday := 0
	bestSymbol := ""
	bestPnL := 0.0
	for _, t := range trades {
		if t.ClosedAt.Before(dayCutoff) {
			continue
		}
		tradesToday++
		pnl := t.RealizedPnL.Float64()
		netPnL += pnl
		if bestSymbol == "" || pnl > bestPnL {
			bestSymbol, bestPnL = t.Symbol, pnl
		}
	}

	in := book.currentInputs()
	canTrade := brk.PermitsEntry()
	digestIn := notify.DailyDigestInput{
		CanTrade:          canTrade,
		BreakerState:      string(brk.State()),
		TradesToday:       tradesToday,
		NetRealizedPnL:    netPnL,
		BestSymbol:        bestSymbol,
		DailyLossPct:      -in.DailyLossPct, // digest takes the loss as a positive fraction
		MaxDailyLossPct:   maxDailyLossPct,
		CooldownRemaining: brk.CooldownRemaining(),
	}
	actions := notify.BuildDailyActions(digestIn)
	hints := notify.BuildRiskHints(digestIn)
	body := notify.RenderDaily(digestIn, actions, hints)
	notifySink(ctx, sink, notify.SeverityInfo, "daily trading digest", body)
}

func analyzerConfigFromOracle(cfg config.Config) analyzer.Config {
	return analyzer.Config{
		RSIPeriod:       cfg.Oracle.RSIPeriod,
		MACDFast:        cfg.Oracle.MACDFast,
		MACDSlow:        cfg.Oracle.MACDSlow,
		MACDSignal:      cfg.Oracle.MACDSignal,
		BollingerPeriod: cfg.Oracle.BollingerPeriod,
		BollingerStdDev: cfg.Oracle.BollingerStdDev,
		OBVSlopeWindow:  cfg.Oracle.OBVSlopeWindow,
		ATRPeriod:       cfg.Oracle.ATRPeriod,
		EMAPeriods:      cfg.Oracle.EMAPeriods,
	}
}

// aggregatorConfigFromRisk builds the signal aggregator's config from the
// aggregator's own defaults, overriding only the fields the risk section
// exposes (ATR-based initial stop multiple and minimum risk:reward).
func aggregatorConfigFromRisk(cfg config.Config) aggregator.Config {
	ac := aggregator.Default()
	ac.ATRStopMult = cfg.Risk.ATRMultiplier
	ac.RiskReward = cfg.Risk.MinRiskReward
	return ac
}
