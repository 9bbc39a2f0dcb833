package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const minimalConfig = `
[pairs]
provider = "default"
default_list = ["EURUSD", "XAUUSD"]
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.App.Env)
	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "yahoo", cfg.Market.Provider)
	assert.Equal(t, 500, cfg.Market.MaxCached)
	assert.Equal(t, "indicator", cfg.Analysis.Engine)
	assert.Equal(t, 1.0, cfg.Risk.RiskPercent)
	assert.Equal(t, 2.0, cfg.Risk.MaxRiskPercent)
	assert.Equal(t, 1.5, cfg.Risk.MinRiskReward)
	assert.Equal(t, 60.0, cfg.Robots.ConfidenceThreshold)
	assert.Equal(t, "day", cfg.Robots.DefaultStyle)
	assert.Equal(t, 3, cfg.Executor.Retry.MaxAttempts)
	assert.Equal(t, 500, cfg.Executor.Retry.BackoffMS)
	assert.Equal(t, []string{"pivot", "fibonacci", "swing", "volume_profile", "round_number"}, cfg.Levels.Strategies)
	assert.Equal(t, 5.0, cfg.Levels.MergeTolerancePips)
}

func TestLoadRejectsEmptyPairList(t *testing.T) {
	_, err := Load(writeConfig(t, `
[pairs]
provider = "default"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pairs.default_list")
}

func TestLoadRejectsChatEngineWithoutModels(t *testing.T) {
	_, err := Load(writeConfig(t, minimalConfig+`
[analysis]
engine = "chat"
`))
	require.Error(t, err)
}

func TestLoadRejectsDuplicateAccount(t *testing.T) {
	_, err := Load(writeConfig(t, minimalConfig+`
[[accounts]]
id = "acc1"
executor = "paper"

[[accounts]]
id = "acc1"
executor = "paper"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "acc1")
}

func TestLoadRejectsBridgeAccountWithoutURL(t *testing.T) {
	_, err := Load(writeConfig(t, minimalConfig+`
[[accounts]]
id = "live"
executor = "bridge"
`))
	require.Error(t, err)
}

func TestLoadExpandsSecretEnvVars(t *testing.T) {
	t.Setenv("KESTREL_TEST_TOKEN", "tok-123")
	cfg, err := Load(writeConfig(t, minimalConfig+`
[executor.bridge]
url = "http://127.0.0.1:9000"
token = "${KESTREL_TEST_TOKEN}"
`))
	require.NoError(t, err)
	assert.Equal(t, "tok-123", cfg.Executor.Bridge.Token)
}

func TestLoadRejectsBadStyle(t *testing.T) {
	_, err := Load(writeConfig(t, minimalConfig+`
[robots]
default_style = "yolo"
`))
	require.Error(t, err)
}

func TestLoadRejectsRiskAboveCap(t *testing.T) {
	_, err := Load(writeConfig(t, minimalConfig+`
[risk]
risk_percent = 5.0
max_risk_percent = 2.0
`))
	require.Error(t, err)
}
