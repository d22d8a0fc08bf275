package notify

import (
	"fmt"
	"strings"
	"time"
)

// DailyDigestInput summarizes one day of trading for the coaching digest.
type DailyDigestInput struct {
	CanTrade          bool
	BreakerState      string
	TradesToday       int
	NetRealizedPnL    float64
	BestSymbol        string
	DailyLossPct      float64
	MaxDailyLossPct   float64
	BlockedReasons    []string
	CooldownRemaining time.Duration
}

// WeeklyDigestInput summarizes one week of trading for the review digest.
type WeeklyDigestInput struct {
	TotalRealizedPnL  float64
	NetRealizedPnL    float64
	TradeCount        int
	BestSymbol        string
	BestSymbolPnL     float64
	TotalDrawdownPct  float64
	MaxDrawdownPct    float64
	CanTrade          bool
}

// BuildDailyActions ranks the top follow-up actions for the day, capped at
// three so the digest stays readable.
func BuildDailyActions(in DailyDigestInput) []string {
	actions := make([]string, 0, 4)
	if !in.CanTrade {
		actions = append(actions, "Pause new entries until the circuit breaker clears.")
	}
	if in.TradesToday < 3 {
		actions = append(actions, "Let the signal aggregator accumulate more closed candles before judging edge.")
	}
	if in.NetRealizedPnL <= 0 {
		actions = append(actions, "Review rejected signals for recurring false positives.")
	}
	if strings.TrimSpace(in.BestSymbol) != "" {
		actions = append(actions, fmt.Sprintf("Strongest symbol today: %s.", in.BestSymbol))
	}
	if len(actions) == 0 {
		actions = append(actions, "Hold current guardrail configuration; no drift detected.")
	}
	if len(actions) > 3 {
		actions = actions[:3]
	}
	return actions
}

// BuildRiskHints surfaces the risk state worth calling out in the daily
// digest: breaker posture, loss-budget consumption, and any blocked
// order reasons accumulated since the last digest.
func BuildRiskHints(in DailyDigestInput) []string {
	hints := make([]string, 0, 4)
	if !in.CanTrade {
		hints = append(hints, fmt.Sprintf("Breaker state: %s — entries blocked.", in.BreakerState))
	}
	if in.MaxDailyLossPct > 0 && in.DailyLossPct/in.MaxDailyLossPct >= 0.8 {
		hints = append(hints, fmt.Sprintf("Daily loss budget consumption is high (%.1f%% of %.1f%% limit).",
			in.DailyLossPct*100, in.MaxDailyLossPct*100))
	}
	if len(in.BlockedReasons) > 0 {
		hints = append(hints, "Blocked reasons: "+strings.Join(in.BlockedReasons, ", "))
	}
	if in.CooldownRemaining > 0 {
		hints = append(hints, fmt.Sprintf("Cooldown remaining: %.0fs.", in.CooldownRemaining.Seconds()))
	}
	return hints
}

// BuildWeeklyHighlightsWarnings splits the week's outcome into highlights
// (positive signal worth repeating) and warnings (drift worth investigating).
func BuildWeeklyHighlightsWarnings(in WeeklyDigestInput) (highlights []string, warnings []string) {
	highlights = make([]string, 0, 3)
	warnings = make([]string, 0, 3)

	if in.NetRealizedPnL > 0 {
		highlights = append(highlights, fmt.Sprintf("Net realized PnL stayed positive at %.2f.", in.NetRealizedPnL))
	} else {
		warnings = append(warnings, fmt.Sprintf("Net realized PnL was non-positive at %.2f.", in.NetRealizedPnL))
	}
	if strings.TrimSpace(in.BestSymbol) != "" {
		highlights = append(highlights, fmt.Sprintf("Best performer: %s (%.2f realized).", in.BestSymbol, in.BestSymbolPnL))
	}
	if in.MaxDrawdownPct > 0 && -in.TotalDrawdownPct/in.MaxDrawdownPct >= 0.5 {
		warnings = append(warnings, fmt.Sprintf("Drawdown reached %.1f%% of the %.1f%% limit this week.",
			-in.TotalDrawdownPct*100, in.MaxDrawdownPct*100))
	}
	if !in.CanTrade {
		warnings = append(warnings, "Trading is currently paused by the circuit breaker.")
	}
	return highlights, warnings
}

// RenderDaily renders the daily digest as an HTML-parse-mode body suitable
// for a Sink.Send call.
func RenderDaily(in DailyDigestInput, actions, riskHints []string) string {
	var b strings.Builder
	status := "ACTIVE"
	if !in.CanTrade {
		status = "PAUSED"
	}
	b.WriteString(fmt.Sprintf("Status: %s | Breaker: %s\n", status, in.BreakerState))
	b.WriteString(fmt.Sprintf("Trades today: %d | Net PnL: %.2f\n", in.TradesToday, in.NetRealizedPnL))
	if len(actions) > 0 {
		b.WriteString("\n<b>Actions</b>\n")
		for _, a := range actions {
			b.WriteString("- " + a + "\n")
		}
	}
	if len(riskHints) > 0 {
		b.WriteString("\n<b>Risk hints</b>\n")
		for _, h := range riskHints {
			b.WriteString("- " + h + "\n")
		}
	}
	return strings.TrimSpace(b.String())
}

// RenderWeekly renders the weekly review digest.
func RenderWeekly(in WeeklyDigestInput, highlights, warnings []string) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Trades: %d | Total PnL: %.2f | Net PnL: %.2f\n", in.TradeCount, in.TotalRealizedPnL, in.NetRealizedPnL))
	if len(highlights) > 0 {
		b.WriteString("\n<b>Highlights</b>\n")
		for _, h := range highlights {
			b.WriteString("- " + h + "\n")
		}
	}
	if len(warnings) > 0 {
		b.WriteString("\n<b>Warnings</b>\n")
		for _, w := range warnings {
			b.WriteString("- " + w + "\n")
		}
	}
	return strings.TrimSpace(b.String())
}
