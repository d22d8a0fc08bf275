package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultMatchesSubsystemDefaults(t *testing.T) {
	cfg := Default([]string{"BTC-USD"})
	require.Equal(t, "paper", cfg.System.Mode)
	require.Equal(t, []string{"BTC-USD"}, cfg.System.Symbols)
	require.Equal(t, 0.05, cfg.Risk.MaxAggregateAtRiskPct)
	require.Equal(t, 10000.0, cfg.Paper.InitialBalance)
}

func TestLoadFileMergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("system:\n  mode: live\nrisk:\n  risk_per_trade: 0.02\n"), 0o644))

	cfg, err := LoadFile(path, []string{"ETH-USD"})
	require.NoError(t, err)
	require.Equal(t, "live", cfg.System.Mode)
	require.Equal(t, 0.02, cfg.Risk.RiskPerTrade)
	require.Equal(t, 1.5, cfg.Risk.MinRiskReward, "unset fields keep their default")
}

func TestApplyEnvOverridesCredentials(t *testing.T) {
	t.Setenv("KERYXFLOW_EXCHANGE_API_KEY", "k")
	t.Setenv("KERYXFLOW_TELEGRAM_BOT_TOKEN", "tok")
	t.Setenv("KERYXFLOW_TELEGRAM_CHAT_ID", "chat")

	cfg := Default(nil)
	cfg.ApplyEnv()
	require.Equal(t, "k", cfg.ExchangeAPIKey)
	require.Equal(t, "tok", cfg.Telegram.BotToken)
	require.True(t, cfg.Telegram.Enabled)
	require.Equal(t, "chat", cfg.Telegram.ChatID)
}

func TestValidateRejectsBadMode(t *testing.T) {
	cfg := Default(nil)
	cfg.System.Mode = "sandbox"
	_, err := cfg.Validate()
	require.Error(t, err)
}

func TestValidateClampsLaxLimitToGuardrailFloor(t *testing.T) {
	cfg := Default([]string{"BTC-USD"})
	cfg.Risk.MaxAggregateAtRiskPct = 0.5 // far laxer than the 5% floor

	warnings, err := cfg.Validate()
	require.NoError(t, err)
	require.NotEmpty(t, warnings)
	require.Equal(t, 0.05, cfg.Risk.MaxAggregateAtRiskPct)
}

func TestValidateNeverLoosensATighterLimit(t *testing.T) {
	cfg := Default([]string{"BTC-USD"})
	cfg.Risk.MaxAggregateAtRiskPct = 0.01 // tighter than the 5% floor

	warnings, err := cfg.Validate()
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.Equal(t, 0.01, cfg.Risk.MaxAggregateAtRiskPct)
}

func TestApplyRolloutPhaseLiveSmallClampsSizing(t *testing.T) {
	cfg := Default([]string{"BTC-USD"})
	cfg.Risk.RiskPerTrade = 0.05

	require.NoError(t, ApplyRolloutPhase(&cfg, "live-small"))
	require.Equal(t, "live", cfg.System.Mode)
	require.LessOrEqual(t, cfg.Risk.RiskPerTrade, 0.01)
}

func TestApplyRolloutPhaseUnknown(t *testing.T) {
	cfg := Default(nil)
	require.Error(t, ApplyRolloutPhase(&cfg, "nonsense"))
}
