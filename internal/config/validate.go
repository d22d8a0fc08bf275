package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/keryxflow/keryxflow/internal/guardrails"
)

// Validate checks structural configuration constraints (types, ranges) and
// then clamps any risk limit configured laxer than the hardcoded
// guardrail floor down to that floor, returning one warning string per
// clamp applied. It never errors solely because a limit is tighter than
// the floor — only the lax direction is corrected.
func (c *Config) Validate() ([]string, error) {
	mode := strings.ToLower(strings.TrimSpace(c.System.Mode))
	if mode != "" && mode != "paper" && mode != "live" {
		return nil, fmt.Errorf("system.mode must be 'paper' or 'live', got %q", c.System.Mode)
	}
	switch strings.ToLower(strings.TrimSpace(c.System.AIMode)) {
	case "", "disabled", "enhanced", "autonomous":
	default:
		return nil, fmt.Errorf("system.ai_mode must be disabled|enhanced|autonomous, got %q", c.System.AIMode)
	}
	switch strings.ToLower(strings.TrimSpace(c.Risk.StopLossType)) {
	case "", "atr", "fixed", "percentage":
	default:
		return nil, fmt.Errorf("risk.stop_loss_type must be atr|fixed|percentage, got %q", c.Risk.StopLossType)
	}
	if c.Risk.RiskPerTrade <= 0 || c.Risk.RiskPerTrade > 1 {
		return nil, fmt.Errorf("risk.risk_per_trade must be within (0,1], got %f", c.Risk.RiskPerTrade)
	}
	if c.Paper.InitialBalance <= 0 {
		return nil, fmt.Errorf("paper.initial_balance must be > 0, got %f", c.Paper.InitialBalance)
	}
	if c.Paper.SlippagePct < 0 || c.Paper.CommissionPct < 0 {
		return nil, fmt.Errorf("paper.slippage_pct and paper.commission_pct must be >= 0")
	}
	if c.Circuit.CooldownMinutes <= 0 {
		return nil, fmt.Errorf("circuit.cooldown_minutes must be > 0, got %d", c.Circuit.CooldownMinutes)
	}

	return c.clampToGuardrailFloor(), nil
}

// clampToGuardrailFloor compares the configured risk limits against the
// hardcoded guardrail defaults and tightens any that are laxer, returning
// a warning describing each clamp. The guardrail floor always wins; a
// configured value may be tighter but never looser.
func (c *Config) clampToGuardrailFloor() []string {
	floor := guardrails.Default(c.System.Symbols)
	var warnings []string

	clampMaxFloat(&c.Risk.MaxSinglePositionPct, floor.MaxSinglePositionPct, "risk.max_single_position_pct", &warnings)
	clampMaxFloat(&c.Risk.MaxAggregateExposurePct, floor.MaxAggregateExposure, "risk.max_aggregate_exposure_pct", &warnings)
	clampMinFloat(&c.Risk.MinCashReservePct, floor.MinCashReservePct, "risk.min_cash_reserve_pct", &warnings)
	clampMaxFloat(&c.Risk.MaxLossPerTradePct, floor.MaxLossPerTradePct, "risk.max_loss_per_trade_pct", &warnings)
	clampMaxFloat(&c.Risk.MaxAggregateAtRiskPct, floor.MaxAggregateAtRisk, "risk.max_aggregate_at_risk_pct", &warnings)
	clampMaxInt(&c.Risk.MaxTradesPerHour, floor.MaxTradesPerHour, "risk.max_trades_per_hour", &warnings)
	clampMaxInt(&c.Risk.MaxTradesPerDay, floor.MaxTradesPerDay, "risk.max_trades_per_day", &warnings)

	return warnings
}

func clampMaxFloat(v *float64, ceiling float64, field string, warnings *[]string) {
	if *v > ceiling {
		*warnings = append(*warnings, fmt.Sprintf("%s=%.4f exceeds guardrail floor %.4f, clamped", field, *v, ceiling))
		*v = ceiling
	}
}

func clampMinFloat(v *float64, floor float64, field string, warnings *[]string) {
	if *v < floor {
		*warnings = append(*warnings, fmt.Sprintf("%s=%.4f below guardrail floor %.4f, clamped", field, *v, floor))
		*v = floor
	}
}

func clampMaxInt(v *int, ceiling int, field string, warnings *[]string) {
	if *v > ceiling {
		*warnings = append(*warnings, fmt.Sprintf("%s=%d exceeds guardrail floor %d, clamped", field, *v, ceiling))
		*v = ceiling
	}
}

// ToGuardrailLimits builds the runtime guardrails.Limits this config
// implies, already clamped to the floor by Validate.
func (c Config) ToGuardrailLimits() guardrails.Limits {
	return guardrails.Default(c.System.Symbols).Tighten(guardrails.Limits{
		MaxSinglePositionPct: c.Risk.MaxSinglePositionPct,
		MaxAggregateExposure: c.Risk.MaxAggregateExposurePct,
		MinCashReservePct:    c.Risk.MinCashReservePct,
		MaxLossPerTradePct:   c.Risk.MaxLossPerTradePct,
		MaxAggregateAtRisk:   c.Risk.MaxAggregateAtRiskPct,
		MaxTradesPerHour:     c.Risk.MaxTradesPerHour,
		MaxTradesPerDay:      c.Risk.MaxTradesPerDay,
	})
}

// CooldownDuration returns circuit.cooldown_minutes as a time.Duration.
func (c Config) CooldownDuration() time.Duration {
	return time.Duration(c.Circuit.CooldownMinutes) * time.Minute
}

// RapidLossWindow returns circuit.rapid_loss_window_seconds as a
// time.Duration.
func (c Config) RapidLossWindow() time.Duration {
	return time.Duration(c.Circuit.RapidLossWindowSeconds) * time.Second
}
