package config

import (
	"fmt"
	"strings"
)

// ApplyRolloutPhase applies a staged rollout preset to cfg. Grounded on
// the teacher's own ApplyRolloutPhase: a named phase mutates several
// related fields together instead of requiring the operator to remember
// which knobs make up "start small". Supported phases:
//   - paper:      system.mode=paper
//   - shadow:     system.mode=live, ai_mode left as configured,
//     risk_per_trade clamped to at most 0.005; the live-small trades/day
//     and single-position caps are not applied
//   - live-small: system.mode=live with conservative caps
//   - live:       system.mode=live using configured values as-is
func ApplyRolloutPhase(cfg *Config, phase string) error {
	p := strings.ToLower(strings.TrimSpace(phase))
	if p == "" {
		return nil
	}

	switch p {
	case "paper":
		cfg.System.Mode = "paper"
	case "shadow":
		cfg.System.Mode = "live"
		clampMaxFloatNoWarn(&cfg.Risk.RiskPerTrade, 0.005)
	case "live-small", "small":
		cfg.System.Mode = "live"
		clampMaxFloatNoWarn(&cfg.Risk.RiskPerTrade, 0.01)
		clampMaxIntNoWarn(&cfg.Risk.MaxTradesPerDay, 10)
		clampMaxFloatNoWarn(&cfg.Risk.MaxSinglePositionPct, 0.05)
	case "live":
		cfg.System.Mode = "live"
	default:
		return fmt.Errorf("unknown rollout phase %q (supported: paper|shadow|live-small|live)", phase)
	}

	return nil
}

func clampMaxFloatNoWarn(v *float64, max float64) {
	if *v <= 0 || *v > max {
		*v = max
	}
}

func clampMaxIntNoWarn(v *int, max int) {
	if *v <= 0 || *v > max {
		*v = max
	}
}
