package notify

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBuildDailyActionsCapsAtThree(t *testing.T) {
	in := DailyDigestInput{
		CanTrade:       false,
		TradesToday:    1,
		NetRealizedPnL: -5,
		BestSymbol:     "BTC-USD",
	}
	actions := BuildDailyActions(in)
	require.LessOrEqual(t, len(actions), 3)
	require.Contains(t, actions[0], "Pause new entries")
}

func TestBuildDailyActionsFallsBackWhenNothingToFlag(t *testing.T) {
	in := DailyDigestInput{CanTrade: true, TradesToday: 10, NetRealizedPnL: 50}
	actions := BuildDailyActions(in)
	require.Len(t, actions, 1)
	require.Contains(t, actions[0], "Hold current guardrail configuration")
}

func TestBuildRiskHintsSurfacesBreakerAndCooldown(t *testing.T) {
	in := DailyDigestInput{
		CanTrade:          false,
		BreakerState:      "tripped",
		CooldownRemaining: 90 * time.Second,
		BlockedReasons:    []string{"max trades per hour"},
	}
	hints := BuildRiskHints(in)
	require.Contains(t, strings.Join(hints, "|"), "tripped")
	require.Contains(t, strings.Join(hints, "|"), "Cooldown remaining: 90s")
	require.Contains(t, strings.Join(hints, "|"), "max trades per hour")
}

func TestBuildWeeklyHighlightsWarningsSplitsOnSign(t *testing.T) {
	highlights, warnings := BuildWeeklyHighlightsWarnings(WeeklyDigestInput{
		NetRealizedPnL: 120,
		BestSymbol:     "ETH-USD",
		BestSymbolPnL:  80,
		CanTrade:       true,
	})
	require.NotEmpty(t, highlights)
	require.Empty(t, warnings)

	_, warnings = BuildWeeklyHighlightsWarnings(WeeklyDigestInput{
		NetRealizedPnL: -30,
		CanTrade:       false,
	})
	require.NotEmpty(t, warnings)
}

func TestRenderDailyIncludesActionsAndHints(t *testing.T) {
	in := DailyDigestInput{CanTrade: true, BreakerState: "armed", TradesToday: 4, NetRealizedPnL: 12.5}
	body := RenderDaily(in, []string{"do the thing"}, []string{"watch out"})
	require.Contains(t, body, "Status: ACTIVE")
	require.Contains(t, body, "do the thing")
	require.Contains(t, body, "watch out")
}

func TestRenderWeeklyIncludesTotals(t *testing.T) {
	body := RenderWeekly(WeeklyDigestInput{TradeCount: 9, TotalRealizedPnL: 40, NetRealizedPnL: 36}, []string{"good week"}, nil)
	require.Contains(t, body, "Trades: 9")
	require.Contains(t, body, "good week")
}
