package risk

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/life2you_mini/riskcore/internal/models"
)

func findScenario(t *testing.T, e *StressTestEngine, name string) models.StressTestScenario {
	t.Helper()
	for _, s := range e.Scenarios() {
		if s.Name == name {
			return s
		}
	}
	t.Fatalf("情景目录中找不到 %s", name)
	return models.StressTestScenario{}
}

func TestRunScenario_AppliesShock(t *testing.T) {
	e := NewStressTestEngine(zaptest.NewLogger(t))

	positions := []models.Position{
		{Symbol: "WETH", Size: 10000, Side: "LONG", Leverage: 1, PnlPct: 0},
	}

	result := e.RunScenario(findScenario(t, e, "Flash_Crash"), positions)

	// Flash_Crash对WETH的冲击为-40%
	assert.InDelta(t, 10000.0, result.TotalBefore, 1e-9)
	assert.InDelta(t, 6000.0, result.TotalAfter, 1e-9)
	assert.InDelta(t, 4000.0, result.Loss, 1e-9)
	assert.InDelta(t, 40.0, result.LossPct, 1e-9)
	assert.Equal(t, []string{"WETH"}, result.AffectedPositions)

	// 恢复天数 = |损失百分比|/2 * 波动率乘数 = 40/2 * 5.0
	assert.InDelta(t, 100.0, result.RecoveryTimeDays, 1e-9)
}

func TestRunScenario_UnaffectedSymbol(t *testing.T) {
	e := NewStressTestEngine(zaptest.NewLogger(t))

	// Flash_Crash的冲击映射不包含USDC，持仓不受影响
	positions := []models.Position{
		{Symbol: "USDC", Size: 50000, Side: "LONG", Leverage: 1, PnlPct: 0},
	}

	result := e.RunScenario(findScenario(t, e, "Flash_Crash"), positions)

	assert.Equal(t, 0.0, result.LossPct)
	assert.Equal(t, result.TotalBefore, result.TotalAfter)
	assert.Empty(t, result.AffectedPositions)
}

func TestRunScenario_EmptyPortfolio(t *testing.T) {
	e := NewStressTestEngine(zaptest.NewLogger(t))

	result := e.RunScenario(findScenario(t, e, "COVID_Crash_2020"), nil)

	assert.Equal(t, 0.0, result.TotalBefore)
	assert.Equal(t, 0.0, result.Loss)
	assert.Equal(t, 0.0, result.LossPct)
}

func TestRunAllScenarios_SortedWorstFirst(t *testing.T) {
	e := NewStressTestEngine(zaptest.NewLogger(t))

	positions := []models.Position{
		{Symbol: "WBTC", Size: 50000, Side: "LONG", Leverage: 1, PnlPct: 0},
		{Symbol: "WETH", Size: 30000, Side: "LONG", Leverage: 1, PnlPct: 0},
	}

	results := e.RunAllScenarios(positions)
	require.NotEmpty(t, results)

	// 按损失百分比降序，最差的在前
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].LossPct, results[i].LossPct)
	}

	// 完整结果集被缓存，可按名称查询
	cached, ok := e.LastResultByName("Flash_Crash")
	assert.True(t, ok)
	assert.Equal(t, "Flash_Crash", cached.ScenarioName)

	_, ok = e.LastResultByName("不存在的情景")
	assert.False(t, ok)
}

func TestWorstCase(t *testing.T) {
	e := NewStressTestEngine(zaptest.NewLogger(t))

	positions := []models.Position{
		{Symbol: "WBTC", Size: 50000, Side: "LONG", Leverage: 1, PnlPct: 0},
	}

	worst := e.WorstCase(positions)
	results := e.RunAllScenarios(positions)

	require.NotEmpty(t, results)
	assert.Equal(t, results[0].ScenarioName, worst.ScenarioName)
	assert.InDelta(t, results[0].LossPct, worst.LossPct, 1e-9)
}

func TestAddCustomScenario(t *testing.T) {
	e := NewStressTestEngine(zaptest.NewLogger(t))
	before := len(e.Scenarios())

	err := e.AddCustomScenario(models.StressTestScenario{
		Name:                 "Custom_Shock",
		Description:          "自定义冲击",
		PriceChanges:         map[string]float64{"WBTC": -10},
		VolatilityMultiplier: 1.5,
		Probability:          0.1,
	})

	require.NoError(t, err)
	assert.Len(t, e.Scenarios(), before+1)
}

func TestAddCustomScenario_Invalid(t *testing.T) {
	e := NewStressTestEngine(zaptest.NewLogger(t))

	tests := []struct {
		name     string
		scenario models.StressTestScenario
	}{
		{
			name:     "名称为空",
			scenario: models.StressTestScenario{VolatilityMultiplier: 1, Probability: 0.1},
		},
		{
			name:     "波动率乘数为负",
			scenario: models.StressTestScenario{Name: "X", VolatilityMultiplier: -1, Probability: 0.1},
		},
		{
			name:     "概率超出范围",
			scenario: models.StressTestScenario{Name: "X", VolatilityMultiplier: 1, Probability: 1.5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, e.AddCustomScenario(tt.scenario))
		})
	}
}

func TestExpectedShortfall(t *testing.T) {
	e := NewStressTestEngine(zaptest.NewLogger(t))

	positions := []models.Position{
		{Symbol: "WBTC", Size: 50000, Side: "LONG", Leverage: 1, PnlPct: 0},
	}

	results := e.RunAllScenarios(positions)
	require.NotEmpty(t, results)

	// 置信度高到尾部数量为0时，回退到最差情景的损失绝对值
	es := e.ExpectedShortfall(positions, 0.95)
	assert.InDelta(t, math.Abs(results[0].Loss), es, 1e-9)

	// 置信度0.5时取最差一半情景的平均损失
	count := int(0.5 * float64(len(results)))
	require.Greater(t, count, 0)
	sum := 0.0
	for i := 0; i < count; i++ {
		sum += results[i].Loss
	}
	assert.InDelta(t, sum/float64(count), e.ExpectedShortfall(positions, 0.5), 1e-9)
}
