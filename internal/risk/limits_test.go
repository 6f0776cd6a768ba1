package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	"github.com/life2you_mini/riskcore/internal/models"
)

func newTestLimits(t *testing.T) *DynamicPositionLimit {
	t.Helper()
	return NewDynamicPositionLimit(zaptest.NewLogger(t), DefaultPositionLimitConfig())
}

func TestMaxPosition_NeutralConditions(t *testing.T) {
	pl := newTestLimits(t)

	// 基准波动率 + 足额流动性 + 无已有持仓: 限额等于基础限额
	limit := pl.MaxPosition("WBTC", nil, 0, 0.02, 500000)
	assert.InDelta(t, 100000.0, limit, 1e-9)
}

func TestMaxPosition_VolatilityAdjustment(t *testing.T) {
	pl := newTestLimits(t)

	tests := []struct {
		name       string
		volatility float64
		expected   float64
	}{
		{name: "波动率翻倍限额减半", volatility: 0.04, expected: 50000},
		{name: "极端波动率收敛到下限系数0.1", volatility: 1.0, expected: 10000},
		{name: "低波动率不放大限额", volatility: 0.01, expected: 100000},
		{name: "波动率未知按中性处理", volatility: 0, expected: 100000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limit := pl.MaxPosition("WBTC", nil, 0, tt.volatility, 500000)
			assert.InDelta(t, tt.expected, limit, 1e-9)
		})
	}
}

func TestMaxPosition_LiquidityAdjustment(t *testing.T) {
	pl := newTestLimits(t)

	// 流动性只有所需覆盖(10万*5)的一半
	limit := pl.MaxPosition("WBTC", nil, 0, 0.02, 250000)
	assert.InDelta(t, 50000.0, limit, 1e-9)

	// 流动性为0时限额收敛到下限
	limit = pl.MaxPosition("WBTC", nil, 0, 0.02, 0)
	assert.InDelta(t, 1000.0, limit, 1e-9)
}

func TestMaxPosition_ConcentrationAdjustment(t *testing.T) {
	pl := newTestLimits(t)

	positions := map[string]*models.Position{
		"WBTC": {Symbol: "WBTC", Size: 40000, Side: "LONG", Leverage: 1},
	}

	// 已有持仓占组合40%，超过20%上限，限额按0.2/0.4压缩一半
	limit := pl.MaxPosition("WBTC", positions, 100000, 0.02, 500000)
	assert.InDelta(t, 50000.0, limit, 1e-9)

	// 未超限时不压缩
	positions["WBTC"].Size = 10000
	limit = pl.MaxPosition("WBTC", positions, 100000, 0.02, 500000)
	assert.InDelta(t, 100000.0, limit, 1e-9)
}

func TestMaxPosition_SymbolOverride(t *testing.T) {
	cfg := DefaultPositionLimitConfig()
	cfg.BaseLimits = map[string]float64{"WBTC": 250000}
	pl := NewDynamicPositionLimit(zaptest.NewLogger(t), cfg)

	limit := pl.MaxPosition("WBTC", nil, 0, 0.02, 250000*5)
	assert.InDelta(t, 250000.0, limit, 1e-9)

	// 未覆盖的交易对走默认基础限额
	limit = pl.MaxPosition("SOL", nil, 0, 0.02, 100000*5)
	assert.InDelta(t, 100000.0, limit, 1e-9)
}

func TestCanOpenPosition(t *testing.T) {
	pl := newTestLimits(t)

	ok, maxSize, reason := pl.CanOpenPosition("WBTC", 50000, nil, 0, 0.02, 500000)
	assert.True(t, ok)
	assert.InDelta(t, 100000.0, maxSize, 1e-9)
	assert.Empty(t, reason)

	ok, maxSize, reason = pl.CanOpenPosition("WBTC", 150000, nil, 0, 0.02, 500000)
	assert.False(t, ok)
	assert.InDelta(t, 100000.0, maxSize, 1e-9)
	assert.NotEmpty(t, reason)
}

func TestPositionLimitConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*PositionLimitConfig)
		wantErr bool
	}{
		{name: "默认配置合法", mutate: func(c *PositionLimitConfig) {}, wantErr: false},
		{name: "基础限额为0", mutate: func(c *PositionLimitConfig) { c.DefaultBaseLimit = 0 }, wantErr: true},
		{name: "集中度超过100", mutate: func(c *PositionLimitConfig) { c.MaxConcentrationPct = 120 }, wantErr: true},
		{name: "相关性超过1", mutate: func(c *PositionLimitConfig) { c.MaxCorrelation = 1.5 }, wantErr: true},
		{name: "下限为负", mutate: func(c *PositionLimitConfig) { c.MinLimit = -1 }, wantErr: true},
		{name: "按交易对覆盖为负", mutate: func(c *PositionLimitConfig) {
			c.BaseLimits = map[string]float64{"WBTC": -5}
		}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultPositionLimitConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
