// Package config loads and validates the engine's YAML + environment
// configuration surface: system mode/symbols/ai_mode, risk parameters,
// oracle (technical analyzer) parameters, and circuit breaker tunables.
// Grounded on the teacher's own config package: YAML-with-defaults plus
// an ApplyEnv env-override pass plus a Validate step, generalized from
// Polymarket maker/taker/selector sections to the hybrid engine's
// system/risk/oracle/circuit sections.
package config

import (
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/keryxflow/keryxflow/internal/analyzer"
	"github.com/keryxflow/keryxflow/internal/breaker"
	"github.com/keryxflow/keryxflow/internal/guardrails"
	"github.com/keryxflow/keryxflow/internal/paperengine"
)

// Config is the full engine configuration surface described in §6.
type Config struct {
	System  SystemConfig  `yaml:"system"`
	Risk    RiskConfig    `yaml:"risk"`
	Oracle  OracleConfig  `yaml:"oracle"`
	Circuit CircuitConfig `yaml:"circuit"`
	Paper   PaperConfig   `yaml:"paper"`
	API     APIConfig     `yaml:"api"`

	Telegram TelegramConfig `yaml:"telegram"`

	ExchangeAPIKey        string `yaml:"-"`
	ExchangeAPISecret     string `yaml:"-"`
	ExchangeAPIPassphrase string `yaml:"-"`
}

// SystemConfig selects the run mode, the traded symbol whitelist, and how
// much autonomy the LLM collaborator is given.
type SystemConfig struct {
	Mode    string   `yaml:"mode"` // paper|live — selects the exchange adapter
	Symbols []string `yaml:"symbols"`
	AIMode  string   `yaml:"ai_mode"` // disabled|enhanced|autonomous
}

// RiskConfig controls position sizing, stop placement, and the guardrail
// floors enforced on every entry.
type RiskConfig struct {
	RiskPerTrade        float64 `yaml:"risk_per_trade"`
	MinRiskReward       float64 `yaml:"min_risk_reward"`
	StopLossType        string  `yaml:"stop_loss_type"` // atr|fixed|percentage
	ATRMultiplier       float64 `yaml:"atr_multiplier"`
	TrailingEnabled     bool    `yaml:"trailing_enabled"`
	TrailingPct         float64 `yaml:"trailing_pct"`
	BreakevenEnabled    bool    `yaml:"breakeven_enabled"`
	BreakevenTriggerPct float64 `yaml:"breakeven_trigger_pct"`

	MaxSinglePositionPct    float64 `yaml:"max_single_position_pct"`
	MaxAggregateExposurePct float64 `yaml:"max_aggregate_exposure_pct"`
	MinCashReservePct       float64 `yaml:"min_cash_reserve_pct"`
	MaxLossPerTradePct      float64 `yaml:"max_loss_per_trade_pct"`
	MaxAggregateAtRiskPct   float64 `yaml:"max_aggregate_at_risk_pct"`
	MaxTradesPerHour        int     `yaml:"max_trades_per_hour"`
	MaxTradesPerDay         int     `yaml:"max_trades_per_day"`
}

// OracleConfig is the technical analyzer's indicator parameter set plus
// scheduling and LLM toggles.
type OracleConfig struct {
	Indicators              []string `yaml:"indicators"`
	RSIPeriod               int      `yaml:"rsi_period"`
	MACDFast                int      `yaml:"macd_fast"`
	MACDSlow                int      `yaml:"macd_slow"`
	MACDSignal              int      `yaml:"macd_signal"`
	BollingerPeriod         int      `yaml:"bollinger_period"`
	BollingerStdDev         float64  `yaml:"bollinger_std_dev"`
	OBVSlopeWindow          int      `yaml:"obv_slope_window"`
	ATRPeriod               int      `yaml:"atr_period"`
	EMAPeriods              []int    `yaml:"ema_periods"`
	AnalysisIntervalSeconds int      `yaml:"analysis_interval_seconds"`
	LLMEnabled              bool     `yaml:"llm_enabled"`
}

// CircuitConfig tunes the circuit breaker.
type CircuitConfig struct {
	CooldownMinutes        int     `yaml:"cooldown_minutes"`
	RapidLossWindowSeconds int     `yaml:"rapid_loss_window_seconds"`
	RapidLossCount         int     `yaml:"rapid_loss_count"`
	MaxDailyLossPct        float64 `yaml:"max_daily_loss_pct"`
	MaxWeeklyLossPct       float64 `yaml:"max_weekly_loss_pct"`
	MaxTotalDrawdownPct    float64 `yaml:"max_total_drawdown_pct"`
	MaxConsecutiveLosses   int     `yaml:"max_consecutive_losses"`
}

// PaperConfig tunes the paper matching engine.
type PaperConfig struct {
	InitialBalance float64 `yaml:"initial_balance"`
	SlippagePct    float64 `yaml:"slippage_pct"`
	CommissionPct  float64 `yaml:"commission_pct"`
}

// APIConfig controls the REST/WebSocket surface.
type APIConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Addr        string `yaml:"addr"`
	BearerToken string `yaml:"bearer_token"` // empty disables auth
}

// TelegramConfig configures the Telegram notification sink.
type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
}

// Default returns the engine's built-in defaults for symbols, reusing
// each subsystem's own Default() where one exists so the config and the
// subsystem it configures never drift apart.
func Default(symbols []string) Config {
	lim := guardrails.Default(symbols)
	brk := breaker.Default()
	an := analyzer.Default()
	paper := paperengine.Default()

	return Config{
		System: SystemConfig{
			Mode:    "paper",
			Symbols: symbols,
			AIMode:  "enhanced",
		},
		Risk: RiskConfig{
			RiskPerTrade:            0.01,
			MinRiskReward:           1.5,
			StopLossType:            "atr",
			ATRMultiplier:           1.5,
			TrailingEnabled:         true,
			TrailingPct:             0.01,
			BreakevenEnabled:        true,
			BreakevenTriggerPct:     0.01,
			MaxSinglePositionPct:    lim.MaxSinglePositionPct,
			MaxAggregateExposurePct: lim.MaxAggregateExposure,
			MinCashReservePct:       lim.MinCashReservePct,
			MaxLossPerTradePct:      lim.MaxLossPerTradePct,
			MaxAggregateAtRiskPct:   lim.MaxAggregateAtRisk,
			MaxTradesPerHour:        lim.MaxTradesPerHour,
			MaxTradesPerDay:         lim.MaxTradesPerDay,
		},
		Oracle: OracleConfig{
			Indicators:              []string{"rsi", "macd", "bollinger", "obv", "atr", "ema_alignment"},
			RSIPeriod:               an.RSIPeriod,
			MACDFast:                an.MACDFast,
			MACDSlow:                an.MACDSlow,
			MACDSignal:              an.MACDSignal,
			BollingerPeriod:         an.BollingerPeriod,
			BollingerStdDev:         an.BollingerStdDev,
			OBVSlopeWindow:          an.OBVSlopeWindow,
			ATRPeriod:               an.ATRPeriod,
			EMAPeriods:              an.EMAPeriods,
			AnalysisIntervalSeconds: 60,
			LLMEnabled:              false,
		},
		Circuit: CircuitConfig{
			CooldownMinutes:        int(brk.CooldownDuration / time.Minute),
			RapidLossWindowSeconds: int(brk.RapidLossWindow / time.Second),
			RapidLossCount:         brk.RapidLossCount,
			MaxDailyLossPct:        brk.MaxDailyLossPct,
			MaxWeeklyLossPct:       brk.MaxWeeklyLossPct,
			MaxTotalDrawdownPct:    brk.MaxTotalDrawdownPct,
			MaxConsecutiveLosses:   brk.MaxConsecutiveLosses,
		},
		Paper: PaperConfig{
			InitialBalance: paper.InitialBalance.Float64(),
			SlippagePct:    paper.SlippagePct,
			CommissionPct:  paper.CommissionPct,
		},
		API: APIConfig{
			Enabled: true,
			Addr:    ":8080",
		},
	}
}

// LoadFile reads and merges a YAML config file over the built-in
// defaults for symbols.
func LoadFile(path string, symbols []string) (Config, error) {
	cfg := Default(symbols)
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplyEnv overlays credential and mode overrides from the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("KERYXFLOW_EXCHANGE_API_KEY"); v != "" {
		c.ExchangeAPIKey = v
	}
	if v := os.Getenv("KERYXFLOW_EXCHANGE_API_SECRET"); v != "" {
		c.ExchangeAPISecret = v
	}
	if v := os.Getenv("KERYXFLOW_EXCHANGE_API_PASSPHRASE"); v != "" {
		c.ExchangeAPIPassphrase = v
	}
	if v := os.Getenv("KERYXFLOW_TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.BotToken = v
		c.Telegram.Enabled = true
	}
	if v := os.Getenv("KERYXFLOW_TELEGRAM_CHAT_ID"); v != "" {
		c.Telegram.ChatID = v
	}
	if v := os.Getenv("KERYXFLOW_API_BEARER_TOKEN"); v != "" {
		c.API.BearerToken = v
	}
	if v := strings.TrimSpace(os.Getenv("KERYXFLOW_SYSTEM_MODE")); v != "" {
		c.System.Mode = strings.ToLower(v)
	}
}
