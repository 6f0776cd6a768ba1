package risk

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/life2you_mini/riskcore/internal/models"
)

// StressTestEngine 压力测试引擎
// 维护一个进程内的情景目录(历史危机 + 假设性冲击)，对持仓集合评估损失和恢复时间
type StressTestEngine struct {
	logger      *zap.Logger
	mu          sync.RWMutex
	scenarios   []models.StressTestScenario
	lastResults []models.ScenarioResult
}

// NewStressTestEngine 创建压力测试引擎并载入预置情景目录
func NewStressTestEngine(logger *zap.Logger) *StressTestEngine {
	return &StressTestEngine{
		logger:    logger.With(zap.String("component", "stress_test_engine")),
		scenarios: presetScenarios(),
	}
}

// presetScenarios 预置情景目录: 历史危机复盘 + 假设性冲击
func presetScenarios() []models.StressTestScenario {
	return []models.StressTestScenario{
		{
			Name:        "COVID_Crash_2020",
			Description: "2020年3月新冠疫情引发的全市场流动性危机",
			PriceChanges: map[string]float64{
				"WBTC": -50, "WETH": -55, "SOL": -60, "BNB": -52, "LINK": -61,
			},
			LiquidityChangePct:   -70,
			VolatilityMultiplier: 4.0,
			CorrelationBreakdown: true,
			Probability:          0.02,
		},
		{
			Name:        "Luna_Collapse_2022",
			Description: "2022年5月Luna/UST崩盘引发的算法稳定币连锁清算",
			PriceChanges: map[string]float64{
				"WBTC": -30, "WETH": -35, "SOL": -45, "UST": -95, "LUNA": -99,
			},
			LiquidityChangePct:   -50,
			VolatilityMultiplier: 3.0,
			CorrelationBreakdown: true,
			Probability:          0.03,
		},
		{
			Name:        "FTX_Collapse_2022",
			Description: "2022年11月FTX暴雷引发的交易所信任危机",
			PriceChanges: map[string]float64{
				"WBTC": -25, "WETH": -28, "SOL": -55, "BNB": -18,
			},
			LiquidityChangePct:   -40,
			VolatilityMultiplier: 2.5,
			CorrelationBreakdown: false,
			Probability:          0.04,
		},
		{
			Name:        "China_Ban_2021",
			Description: "2021年5月中国全面禁止挖矿与交易的监管冲击",
			PriceChanges: map[string]float64{
				"WBTC": -35, "WETH": -40, "SOL": -42, "BNB": -45,
			},
			LiquidityChangePct:   -30,
			VolatilityMultiplier: 2.0,
			CorrelationBreakdown: false,
			Probability:          0.05,
		},
		{
			Name:        "Flash_Crash",
			Description: "假设性闪崩: 主流币种瞬时深度下挫后部分回补",
			PriceChanges: map[string]float64{
				"WETH": -40, "WBTC": -42,
			},
			LiquidityChangePct:   -80,
			VolatilityMultiplier: 5.0,
			CorrelationBreakdown: false,
			Probability:          0.08,
		},
		{
			Name:        "Stablecoin_Depeg",
			Description: "假设性稳定币脱锚: USDC失守1美元锚定",
			PriceChanges: map[string]float64{
				"USDC": -12, "USDT": -5, "DAI": -8,
			},
			LiquidityChangePct:   -60,
			VolatilityMultiplier: 3.5,
			CorrelationBreakdown: true,
			Probability:          0.03,
		},
		{
			Name:        "Exchange_Hack",
			Description: "假设性头部交易所被盗引发的恐慌抛售",
			PriceChanges: map[string]float64{
				"WBTC": -20, "WETH": -22, "SOL": -28, "BNB": -35,
			},
			LiquidityChangePct:   -45,
			VolatilityMultiplier: 2.8,
			CorrelationBreakdown: false,
			Probability:          0.06,
		},
		{
			Name:        "Fed_Rate_Shock",
			Description: "假设性宏观冲击: 超预期加息导致风险资产普跌",
			PriceChanges: map[string]float64{
				"WBTC": -15, "WETH": -18, "SOL": -22, "BNB": -16, "LINK": -20,
			},
			LiquidityChangePct:   -20,
			VolatilityMultiplier: 1.8,
			CorrelationBreakdown: false,
			Probability:          0.15,
		},
		{
			Name:        "Correlation_Breakdown",
			Description: "假设性相关性失效: 对冲关系瓦解，各资产独立大幅波动",
			PriceChanges: map[string]float64{
				"WBTC": -10, "WETH": -30, "SOL": 15, "BNB": -25, "LINK": -35,
			},
			LiquidityChangePct:   -35,
			VolatilityMultiplier: 3.2,
			CorrelationBreakdown: true,
			Probability:          0.05,
		},
	}
}

// ValidateScenario 校验情景配置的有效性
// 目录中存在非法情景属于配置错误，必须阻止引擎启动
func ValidateScenario(s *models.StressTestScenario) error {
	if s.Name == "" {
		return fmt.Errorf("情景名称不能为空")
	}
	if s.VolatilityMultiplier < 0 {
		return fmt.Errorf("情景 %s 的波动率乘数不能为负: %f", s.Name, s.VolatilityMultiplier)
	}
	if s.Probability < 0 || s.Probability > 1 {
		return fmt.Errorf("情景 %s 的年化概率必须在0到1之间: %f", s.Name, s.Probability)
	}
	return nil
}

// AddCustomScenario 追加自定义情景(仅追加，不去重)
// 情景以名称为标识，允许重名，查询时后加入者优先；唯一性应由上游保证
func (e *StressTestEngine) AddCustomScenario(s models.StressTestScenario) error {
	if err := ValidateScenario(&s); err != nil {
		return fmt.Errorf("自定义情景校验失败: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.scenarios = append(e.scenarios, s)

	e.logger.Info("已添加自定义压力测试情景",
		zap.String("name", s.Name),
		zap.Int("catalogue_size", len(e.scenarios)))
	return nil
}

// Scenarios 返回情景目录的副本
func (e *StressTestEngine) Scenarios() []models.StressTestScenario {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]models.StressTestScenario, len(e.scenarios))
	copy(out, e.scenarios)
	return out
}

// RunScenario 对持仓集合评估单个情景
// 冲击以加法作用在持仓的盈亏百分比上，未出现在冲击映射中的交易对不受影响
// 恢复天数 = (|损失百分比| / 2) * 波动率乘数，为线性恢复启发式估计，并非保证
func (e *StressTestEngine) RunScenario(scenario models.StressTestScenario, positions []models.Position) models.ScenarioResult {
	result := models.ScenarioResult{
		ScenarioName: scenario.Name,
		Description:  scenario.Description,
		Probability:  scenario.Probability,
		Timestamp:    time.Now(),
	}

	totalBefore := 0.0
	totalAfter := 0.0
	affected := make([]string, 0)

	for i := range positions {
		pos := &positions[i]
		before := pos.MarketValue()
		totalBefore += before

		shock, hit := scenario.PriceChanges[pos.Symbol]
		if hit && shock != 0 {
			shocked := pos.Size * (1 + (pos.PnlPct+shock)/100)
			totalAfter += shocked
			affected = append(affected, pos.Symbol)
		} else {
			totalAfter += before
		}
	}

	result.TotalBefore = totalBefore
	result.TotalAfter = totalAfter
	result.Loss = totalBefore - totalAfter
	if totalBefore > 0 {
		result.LossPct = result.Loss / totalBefore * 100
	}
	result.AffectedPositions = affected
	result.RecoveryTimeDays = math.Abs(result.LossPct) / 2 * scenario.VolatilityMultiplier

	return result
}

// RunAllScenarios 评估目录中全部情景，按损失百分比降序排列(最差的在前)
// 完整结果集缓存为"最近一次结果"，供按名称查询
func (e *StressTestEngine) RunAllScenarios(positions []models.Position) []models.ScenarioResult {
	scenarios := e.Scenarios()

	results := make([]models.ScenarioResult, 0, len(scenarios))
	for _, s := range scenarios {
		results = append(results, e.RunScenario(s, positions))
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].LossPct > results[j].LossPct
	})

	e.mu.Lock()
	e.lastResults = results
	e.mu.Unlock()

	e.logger.Debug("压力测试完成",
		zap.Int("scenario_count", len(results)),
		zap.Int("position_count", len(positions)))

	out := make([]models.ScenarioResult, len(results))
	copy(out, results)
	return out
}

// WorstCase 返回最差情景的评估结果(排序后的首个元素)
func (e *StressTestEngine) WorstCase(positions []models.Position) models.ScenarioResult {
	results := e.RunAllScenarios(positions)
	if len(results) == 0 {
		return models.ScenarioResult{}
	}
	return results[0]
}

// ExpectedShortfall 跨情景期望损失
// 对最差的 floor((1-confidence) * N) 个情景的损失取平均(按数量计，不按概率加权)
// 数量为0时返回最差情景的损失绝对值
func (e *StressTestEngine) ExpectedShortfall(positions []models.Position, confidence float64) float64 {
	results := e.RunAllScenarios(positions)
	if len(results) == 0 {
		return 0
	}

	count := int((1 - confidence) * float64(len(results)))
	if count == 0 {
		return math.Abs(results[0].Loss)
	}

	sum := 0.0
	for i := 0; i < count; i++ {
		sum += results[i].Loss
	}
	return sum / float64(count)
}

// LastResults 返回最近一次 RunAllScenarios 的结果副本
func (e *StressTestEngine) LastResults() []models.ScenarioResult {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]models.ScenarioResult, len(e.lastResults))
	copy(out, e.lastResults)
	return out
}

// LastResultByName 按情景名称查询最近一次结果，重名时后评估者优先
func (e *StressTestEngine) LastResultByName(name string) (models.ScenarioResult, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for i := len(e.lastResults) - 1; i >= 0; i-- {
		if e.lastResults[i].ScenarioName == name {
			return e.lastResults[i], true
		}
	}
	return models.ScenarioResult{}, false
}
