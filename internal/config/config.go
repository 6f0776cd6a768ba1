package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config 应用配置结构
type Config struct {
	Risk   RiskConfig   `mapstructure:"risk" yaml:"risk"`
	System SystemConfig `mapstructure:"system" yaml:"system"`
	Redis  RedisConfig  `mapstructure:"redis" yaml:"redis"`
}

// RiskConfig 风险引擎配置
type RiskConfig struct {
	InitialBalance     float64   `mapstructure:"initial_balance" yaml:"initial_balance"`
	ConfidenceLevels   []float64 `mapstructure:"confidence_levels" yaml:"confidence_levels"`
	MetricsHistorySize int       `mapstructure:"metrics_history_size" yaml:"metrics_history_size"`

	// 无历史收益率数据时的VaR兜底比例(占组合市值)
	DefaultVaR95Ratio  float64 `mapstructure:"default_var95_ratio" yaml:"default_var95_ratio"`
	DefaultVaR99Ratio  float64 `mapstructure:"default_var99_ratio" yaml:"default_var99_ratio"`
	DefaultCVaR95Ratio float64 `mapstructure:"default_cvar95_ratio" yaml:"default_cvar95_ratio"`

	MonteCarlo      MonteCarloConfig     `mapstructure:"monte_carlo" yaml:"monte_carlo"`
	CircuitBreaker  CircuitBreakerConfig `mapstructure:"circuit_breaker" yaml:"circuit_breaker"`
	PositionLimits  PositionLimitsConfig `mapstructure:"position_limits" yaml:"position_limits"`
	CustomScenarios []ScenarioConfig     `mapstructure:"custom_scenarios" yaml:"custom_scenarios"`
}

// MonteCarloConfig Monte Carlo模拟配置
type MonteCarloConfig struct {
	NumSimulations int   `mapstructure:"num_simulations" yaml:"num_simulations"`
	HorizonDays    int   `mapstructure:"horizon_days" yaml:"horizon_days"`
	Seed           int64 `mapstructure:"seed" yaml:"seed"` // 固定种子保证可复现
}

// CircuitBreakerConfig 熔断器配置
type CircuitBreakerConfig struct {
	WarningDrawdown  float64 `mapstructure:"warning_drawdown" yaml:"warning_drawdown"`
	HaltDrawdown     float64 `mapstructure:"halt_drawdown" yaml:"halt_drawdown"`
	ShutdownDrawdown float64 `mapstructure:"shutdown_drawdown" yaml:"shutdown_drawdown"`
	MinBalanceRatio  float64 `mapstructure:"min_balance_ratio" yaml:"min_balance_ratio"`
	CooldownHours    int     `mapstructure:"cooldown_hours" yaml:"cooldown_hours"`
	HistorySize      int     `mapstructure:"history_size" yaml:"history_size"`
}

// PositionLimitsConfig 仓位限制配置
type PositionLimitsConfig struct {
	DefaultBaseLimit    float64            `mapstructure:"default_base_limit" yaml:"default_base_limit"`
	BaseLimits          map[string]float64 `mapstructure:"base_limits" yaml:"base_limits"`
	MaxConcentrationPct float64            `mapstructure:"max_concentration_pct" yaml:"max_concentration_pct"`
	MaxCorrelation      float64            `mapstructure:"max_correlation" yaml:"max_correlation"`
	MinLimit            float64            `mapstructure:"min_limit" yaml:"min_limit"`
	BaseVolatility      float64            `mapstructure:"base_volatility" yaml:"base_volatility"`
	LiquidityCoverage   float64            `mapstructure:"liquidity_coverage" yaml:"liquidity_coverage"`
}

// ScenarioConfig 自定义压力测试情景配置
type ScenarioConfig struct {
	Name                 string             `mapstructure:"name" yaml:"name"`
	Description          string             `mapstructure:"description" yaml:"description"`
	PriceChanges         map[string]float64 `mapstructure:"price_changes" yaml:"price_changes"`
	LiquidityChangePct   float64            `mapstructure:"liquidity_change_pct" yaml:"liquidity_change_pct"`
	VolatilityMultiplier float64            `mapstructure:"volatility_multiplier" yaml:"volatility_multiplier"`
	CorrelationBreakdown bool               `mapstructure:"correlation_breakdown" yaml:"correlation_breakdown"`
	Probability          float64            `mapstructure:"probability" yaml:"probability"`
}

// SystemConfig 系统配置
type SystemConfig struct {
	RiskCheckIntervalMinutes int    `mapstructure:"risk_check_interval_minutes" yaml:"risk_check_interval_minutes"`
	LogLevel                 string `mapstructure:"log_level" yaml:"log_level"`
	LogDir                   string `mapstructure:"log_dir" yaml:"log_dir"`
}

// RedisConfig Redis配置
type RedisConfig struct {
	Host      string `mapstructure:"host" yaml:"host"`
	Port      int    `mapstructure:"port" yaml:"port"`
	Password  string `mapstructure:"password" yaml:"password"`
	DB        int    `mapstructure:"db" yaml:"db"`
	KeyPrefix string `mapstructure:"key_prefix" yaml:"key_prefix"`
}

// LoadConfig 从文件加载配置
// 配置校验失败属于致命错误，引擎不允许带着不一致的配置启动
func LoadConfig(filePath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(filePath)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	// 绑定环境变量，允许从环境变量覆盖配置
	v.AutomaticEnv()
	v.SetEnvPrefix("RISKCORE")

	// 敏感信息优先从环境变量读取
	if redisPassword := os.Getenv("REDIS_PASSWORD"); redisPassword != "" {
		v.Set("redis.password", redisPassword)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}

	return &config, nil
}

// LoadConfigFromYAML 直接从YAML文件加载配置(不经viper的备用路径)
func LoadConfigFromYAML(filePath string) (*Config, error) {
	yamlFile, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(yamlFile, &config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}

	return &config, nil
}

// validateConfig 验证配置有效性
func validateConfig(config *Config) error {
	risk := &config.Risk

	if risk.InitialBalance <= 0 {
		return fmt.Errorf("初始余额必须大于0")
	}

	if len(risk.ConfidenceLevels) == 0 {
		return fmt.Errorf("至少需要配置一个置信水平")
	}
	for _, c := range risk.ConfidenceLevels {
		if c <= 0 || c >= 1 {
			return fmt.Errorf("置信水平必须在0到1之间(不含边界): %f", c)
		}
	}

	cb := &risk.CircuitBreaker
	if cb.WarningDrawdown <= 0 || cb.HaltDrawdown <= 0 || cb.ShutdownDrawdown <= 0 {
		return fmt.Errorf("熔断回撤阈值必须大于0")
	}
	if !(cb.WarningDrawdown < cb.HaltDrawdown && cb.HaltDrawdown < cb.ShutdownDrawdown) {
		return fmt.Errorf("熔断回撤阈值必须严格递增: warning < halt < shutdown")
	}
	if cb.MinBalanceRatio <= 0 || cb.MinBalanceRatio >= 1 {
		return fmt.Errorf("开仓余额下限比例必须在0到1之间")
	}

	pl := &risk.PositionLimits
	if pl.DefaultBaseLimit <= 0 {
		return fmt.Errorf("默认仓位基础限额必须大于0")
	}
	if pl.MaxConcentrationPct <= 0 || pl.MaxConcentrationPct > 100 {
		return fmt.Errorf("最大集中度百分比必须在0到100之间")
	}
	if pl.MaxCorrelation <= 0 || pl.MaxCorrelation > 1 {
		return fmt.Errorf("最大相关性必须在0到1之间")
	}
	for symbol, limit := range pl.BaseLimits {
		if limit <= 0 {
			return fmt.Errorf("交易对 %s 的基础限额必须大于0", symbol)
		}
	}

	if risk.MonteCarlo.NumSimulations <= 0 {
		return fmt.Errorf("Monte Carlo模拟次数必须大于0")
	}
	if risk.MonteCarlo.HorizonDays <= 0 {
		return fmt.Errorf("Monte Carlo持有期必须大于0")
	}

	// 自定义情景目录中存在非法配置必须阻止引擎启动
	for i := range risk.CustomScenarios {
		s := &risk.CustomScenarios[i]
		if s.Name == "" {
			return fmt.Errorf("第%d个自定义情景的名称不能为空", i+1)
		}
		if s.VolatilityMultiplier < 0 {
			return fmt.Errorf("自定义情景 %s 的波动率乘数不能为负", s.Name)
		}
		if s.Probability < 0 || s.Probability > 1 {
			return fmt.Errorf("自定义情景 %s 的年化概率必须在0到1之间", s.Name)
		}
	}

	if config.System.RiskCheckIntervalMinutes <= 0 {
		return fmt.Errorf("风险评估间隔必须大于0分钟")
	}

	if config.Redis.Host == "" {
		return fmt.Errorf("Redis主机不能为空")
	}
	if config.Redis.Port <= 0 || config.Redis.Port > 65535 {
		return fmt.Errorf("无效的Redis端口")
	}

	return nil
}

// GetDefaultConfig 获取默认配置（用于生成示例配置）
func GetDefaultConfig() *Config {
	return &Config{
		Risk: RiskConfig{
			InitialBalance:     1000000,
			ConfidenceLevels:   []float64{0.95, 0.99},
			MetricsHistorySize: 100,
			DefaultVaR95Ratio:  0.05,
			DefaultVaR99Ratio:  0.08,
			DefaultCVaR95Ratio: 0.06,
			MonteCarlo: MonteCarloConfig{
				NumSimulations: 10000,
				HorizonDays:    1,
				Seed:           42,
			},
			CircuitBreaker: CircuitBreakerConfig{
				WarningDrawdown:  0.10,
				HaltDrawdown:     0.20,
				ShutdownDrawdown: 0.30,
				MinBalanceRatio:  0.7,
				CooldownHours:    24,
				HistorySize:      100,
			},
			PositionLimits: PositionLimitsConfig{
				DefaultBaseLimit: 100000,
				BaseLimits: map[string]float64{
					"WBTC": 250000,
					"WETH": 200000,
				},
				MaxConcentrationPct: 20,
				MaxCorrelation:      0.7,
				MinLimit:            1000,
				BaseVolatility:      0.02,
				LiquidityCoverage:   5,
			},
		},
		System: SystemConfig{
			RiskCheckIntervalMinutes: 1,
			LogLevel:                 "INFO",
			LogDir:                   "./logs",
		},
		Redis: RedisConfig{
			Host:      "localhost",
			Port:      6379,
			Password:  "",
			DB:        0,
			KeyPrefix: "riskcore:",
		},
	}
}

// SaveConfigToFile 将配置保存到文件
func SaveConfigToFile(config *Config, filePath string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}
	return os.WriteFile(filePath, data, 0644)
}
