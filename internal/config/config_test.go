package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfigYAML = `
risk:
  initial_balance: 500000
  confidence_levels: [0.95, 0.99]
  metrics_history_size: 50
  default_var95_ratio: 0.05
  default_var99_ratio: 0.08
  default_cvar95_ratio: 0.06
  monte_carlo:
    num_simulations: 5000
    horizon_days: 1
    seed: 7
  circuit_breaker:
    warning_drawdown: 0.10
    halt_drawdown: 0.20
    shutdown_drawdown: 0.30
    min_balance_ratio: 0.7
    cooldown_hours: 24
    history_size: 100
  position_limits:
    default_base_limit: 100000
    base_limits:
      WBTC: 250000
    max_concentration_pct: 20
    max_correlation: 0.7
    min_limit: 1000
    base_volatility: 0.02
    liquidity_coverage: 5
  custom_scenarios:
    - name: Custom_Shock
      description: 自定义冲击
      price_changes:
        WBTC: -10
      volatility_multiplier: 1.5
      probability: 0.1
system:
  risk_check_interval_minutes: 5
  log_level: DEBUG
  log_dir: ./logs
redis:
  host: localhost
  port: 6379
  db: 0
  key_prefix: "riskcore:"
`

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeTestConfig(t, testConfigYAML)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 500000.0, cfg.Risk.InitialBalance)
	assert.Equal(t, []float64{0.95, 0.99}, cfg.Risk.ConfidenceLevels)
	assert.Equal(t, 5000, cfg.Risk.MonteCarlo.NumSimulations)
	assert.Equal(t, int64(7), cfg.Risk.MonteCarlo.Seed)
	assert.Equal(t, 0.20, cfg.Risk.CircuitBreaker.HaltDrawdown)
	assert.Equal(t, 250000.0, cfg.Risk.PositionLimits.BaseLimits["WBTC"])
	assert.Equal(t, 5, cfg.System.RiskCheckIntervalMinutes)
	assert.Equal(t, "riskcore:", cfg.Redis.KeyPrefix)

	require.Len(t, cfg.Risk.CustomScenarios, 1)
	assert.Equal(t, "Custom_Shock", cfg.Risk.CustomScenarios[0].Name)
	assert.Equal(t, -10.0, cfg.Risk.CustomScenarios[0].PriceChanges["WBTC"])
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	path := writeTestConfig(t, testConfigYAML)

	t.Setenv("REDIS_PASSWORD", "secret-from-env")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "secret-from-env", cfg.Redis.Password)
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	_, err := LoadConfig("/不存在/config.yaml")
	assert.Error(t, err)
}

func TestGetDefaultConfig_IsValid(t *testing.T) {
	assert.NoError(t, validateConfig(GetDefaultConfig()))
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "初始余额为0", mutate: func(c *Config) { c.Risk.InitialBalance = 0 }},
		{name: "置信水平为空", mutate: func(c *Config) { c.Risk.ConfidenceLevels = nil }},
		{name: "置信水平越界", mutate: func(c *Config) { c.Risk.ConfidenceLevels = []float64{1.5} }},
		{name: "熔断阈值非递增", mutate: func(c *Config) { c.Risk.CircuitBreaker.HaltDrawdown = 0.05 }},
		{name: "保底线比例越界", mutate: func(c *Config) { c.Risk.CircuitBreaker.MinBalanceRatio = 1.2 }},
		{name: "基础限额为0", mutate: func(c *Config) { c.Risk.PositionLimits.DefaultBaseLimit = 0 }},
		{name: "模拟次数为0", mutate: func(c *Config) { c.Risk.MonteCarlo.NumSimulations = 0 }},
		{name: "评估间隔为0", mutate: func(c *Config) { c.System.RiskCheckIntervalMinutes = 0 }},
		{name: "Redis主机为空", mutate: func(c *Config) { c.Redis.Host = "" }},
		{name: "Redis端口越界", mutate: func(c *Config) { c.Redis.Port = 70000 }},
		{name: "自定义情景名称为空", mutate: func(c *Config) {
			c.Risk.CustomScenarios = []ScenarioConfig{{VolatilityMultiplier: 1, Probability: 0.1}}
		}},
		{name: "自定义情景概率越界", mutate: func(c *Config) {
			c.Risk.CustomScenarios = []ScenarioConfig{{Name: "X", VolatilityMultiplier: 1, Probability: 2}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, validateConfig(cfg))
		})
	}
}

func TestSaveConfigToFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "generated.yaml")

	require.NoError(t, SaveConfigToFile(GetDefaultConfig(), path))

	loaded, err := LoadConfigFromYAML(path)
	require.NoError(t, err)

	expected := GetDefaultConfig()
	assert.Equal(t, expected.Risk.InitialBalance, loaded.Risk.InitialBalance)
	assert.Equal(t, expected.Risk.CircuitBreaker, loaded.Risk.CircuitBreaker)
	assert.Equal(t, expected.Risk.PositionLimits.BaseLimits, loaded.Risk.PositionLimits.BaseLimits)
	assert.Equal(t, expected.Redis, loaded.Redis)
}
