package risk

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/life2you_mini/riskcore/internal/models"
)

// 风险等级常量
const (
	RiskLevelLow      = "LOW"
	RiskLevelMedium   = "MEDIUM"
	RiskLevelHigh     = "HIGH"
	RiskLevelCritical = "CRITICAL"
)

// 风险等级评分阈值
const (
	riskScoreMediumThreshold   = 30
	riskScoreHighThreshold     = 50
	riskScoreCriticalThreshold = 70
)

// maxSortinoRatio 索提诺比率的饱和上限
// 没有下行样本时索提诺比率在数学上为无穷大，这里用显式的大常量代替IEEE无穷，
// 避免无穷值在下游算术中意外传播
const maxSortinoRatio = 9999.0

// 年化因子(加密市场全年交易，日度收益率按365天年化)
const annualizationDays = 365

// ManagerOptions 风险管理器运行参数
type ManagerOptions struct {
	InitialBalance        float64 // 初始账户余额(USD)
	MetricsHistorySize    int     // 指标快照环形缓冲大小
	MonteCarloSimulations int     // Monte Carlo模拟次数
	MonteCarloHorizonDays int     // Monte Carlo持有期(天)

	// 无历史收益率数据时的VaR兜底比例(占组合市值)
	DefaultVaR95Ratio  float64
	DefaultVaR99Ratio  float64
	DefaultCVaR95Ratio float64
}

// DefaultManagerOptions 默认运行参数
func DefaultManagerOptions() ManagerOptions {
	return ManagerOptions{
		InitialBalance:        1000000,
		MetricsHistorySize:    100,
		MonteCarloSimulations: 10000,
		MonteCarloHorizonDays: 1,
		DefaultVaR95Ratio:     0.05,
		DefaultVaR99Ratio:     0.08,
		DefaultCVaR95Ratio:    0.06,
	}
}

// marketInfo 准入检查所需的行情侧输入，由行情采集方推送
type marketInfo struct {
	volatility   float64
	liquidityUSD float64
}

// RiskManager 组合风险管理器
// 持仓表、熔断器余额等可变状态的唯一所有者，所有并发调用经由一把互斥锁串行化；
// 只读计算(VaR/压力测试)在同一把锁下取得的不可变快照上执行，避免迭代与变更撕裂
type RiskManager struct {
	mu sync.RWMutex

	logger *zap.Logger
	opts   ManagerOptions

	varCalc *VarCalculator
	stress  *StressTestEngine
	breaker *CircuitBreaker
	limits  *DynamicPositionLimit

	positions  map[string]*models.Position
	marketData map[string]marketInfo

	currentMetrics *models.RiskMetrics
	metricsHistory []models.RiskMetrics
}

// NewRiskManager 创建风险管理器
// 四个协作组件由构造函数显式注入，各自可独立测试，不依赖任何进程级全局状态
func NewRiskManager(
	logger *zap.Logger,
	varCalc *VarCalculator,
	stress *StressTestEngine,
	breaker *CircuitBreaker,
	limits *DynamicPositionLimit,
	opts ManagerOptions,
) *RiskManager {
	if opts.MetricsHistorySize <= 0 {
		opts.MetricsHistorySize = 100
	}
	if opts.MonteCarloSimulations <= 0 {
		opts.MonteCarloSimulations = 10000
	}
	if opts.MonteCarloHorizonDays <= 0 {
		opts.MonteCarloHorizonDays = 1
	}

	return &RiskManager{
		logger:     logger.With(zap.String("component", "risk_manager")),
		opts:       opts,
		varCalc:    varCalc,
		stress:     stress,
		breaker:    breaker,
		limits:     limits,
		positions:  make(map[string]*models.Position),
		marketData: make(map[string]marketInfo),
	}
}

// SetMarketData 更新交易对的波动率与可用流动性，供动态限额计算使用
func (rm *RiskManager) SetMarketData(symbol string, volatility, liquidityUSD float64) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.marketData[symbol] = marketInfo{volatility: volatility, liquidityUSD: liquidityUSD}
}

// marketInfoFor 返回交易对的行情输入，调用方需持锁
// 从未上报过行情的交易对使用中性调整系数(基准波动率 + 足额流动性覆盖)
func (rm *RiskManager) marketInfoFor(symbol string) marketInfo {
	if info, ok := rm.marketData[symbol]; ok {
		return info
	}
	cfg := rm.limits.Config()
	baseLimit := cfg.DefaultBaseLimit
	if limit, ok := cfg.BaseLimits[symbol]; ok {
		baseLimit = limit
	}
	return marketInfo{
		volatility:   cfg.BaseVolatility,
		liquidityUSD: baseLimit * cfg.LiquidityCoverage,
	}
}

// AddPosition 添加新持仓，准入检查全部通过后才写入(全有或全无)
// 先经动态仓位限额检查，再经熔断器检查；任一拒绝则返回 *AdmissionError 且不做任何变更
func (rm *RiskManager) AddPosition(pos *models.Position) error {
	if pos == nil {
		return &AdmissionError{Reason: "持仓不能为空"}
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	if pos.Size < 0 {
		return &AdmissionError{Symbol: pos.Symbol, Size: pos.Size, Reason: "仓位规模不能为负"}
	}
	if pos.Leverage < 1.0 {
		return &AdmissionError{Symbol: pos.Symbol, Size: pos.Size, Reason: "杠杆倍数不能低于1.0"}
	}

	info := rm.marketInfoFor(pos.Symbol)
	totalValue := rm.totalValueLocked()

	ok, maxSize, reason := rm.limits.CanOpenPosition(
		pos.Symbol, pos.Size, rm.positions, totalValue, info.volatility, info.liquidityUSD)
	if !ok {
		rm.logger.Warn("仓位限额拒绝开仓",
			zap.String("symbol", pos.Symbol),
			zap.Float64("size", pos.Size),
			zap.Float64("max_size", maxSize),
			zap.String("reason", reason))
		return &AdmissionError{Symbol: pos.Symbol, Size: pos.Size, MaxSize: maxSize, Reason: reason}
	}

	allowed, breakerReason := rm.breaker.CanOpenNewPosition(decimal.NewFromFloat(pos.Size))
	if !allowed {
		rm.logger.Warn("熔断器拒绝开仓",
			zap.String("symbol", pos.Symbol),
			zap.Float64("size", pos.Size),
			zap.String("reason", breakerReason))
		return &AdmissionError{Symbol: pos.Symbol, Size: pos.Size, Reason: breakerReason}
	}

	stored := *pos
	if stored.OpenTime.IsZero() {
		stored.OpenTime = time.Now()
	}
	if stored.CurrentPrice == 0 {
		stored.CurrentPrice = stored.EntryPrice
	}
	rm.positions[stored.Symbol] = &stored

	rm.logger.Info("持仓已加入",
		zap.String("symbol", stored.Symbol),
		zap.Float64("size", stored.Size),
		zap.String("side", stored.Side),
		zap.Int("position_count", len(rm.positions)))
	return nil
}

// RemovePosition 移除持仓，存在则删除，不存在则为无操作，从不报错
func (rm *RiskManager) RemovePosition(symbol string) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if _, ok := rm.positions[symbol]; ok {
		delete(rm.positions, symbol)
		rm.logger.Info("持仓已移除",
			zap.String("symbol", symbol),
			zap.Int("position_count", len(rm.positions)))
	}
}

// UpdatePrices 批量更新持仓价格并把市值变化同步到熔断器余额
// 这是市场波动影响熔断状态的唯一路径
func (rm *RiskManager) UpdatePrices(prices map[string]float64) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	totalDelta := 0.0
	for symbol, price := range prices {
		pos, ok := rm.positions[symbol]
		if !ok || price <= 0 || pos.EntryPrice <= 0 {
			continue
		}

		before := pos.MarketValue()
		pos.CurrentPrice = price
		change := (price - pos.EntryPrice) / pos.EntryPrice * 100
		if pos.Side == "SHORT" {
			change = -change
		}
		pos.PnlPct = change
		totalDelta += pos.MarketValue() - before
	}

	if totalDelta != 0 {
		newBalance := rm.breaker.CurrentBalance().Add(decimal.NewFromFloat(totalDelta))
		state := rm.breaker.UpdateBalance(newBalance)
		rm.logger.Debug("价格更新已应用",
			zap.Float64("pnl_delta", totalDelta),
			zap.String("breaker_state", state.String()))
	}
}

// CalculatePortfolioRisk 生成一份新的风险指标快照
// 提供历史收益率时同时计算历史模拟与Monte Carlo VaR(逐置信度取较保守者)；
// 无历史数据时使用配置的兜底比例——返回值为文档化默认值，不代表无风险
func (rm *RiskManager) CalculatePortfolioRisk(ctx context.Context, returns []float64) (*models.RiskMetrics, error) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	totalValue := rm.totalValueLocked()
	metrics := models.RiskMetrics{
		Beta:      1.0,
		Timestamp: time.Now(),
	}

	if len(returns) >= MinHistoricalSamples {
		historical := rm.varCalc.HistoricalVaR(totalValue, returns)

		mean := meanOf(returns)
		std := stdDevOf(returns)
		simulated, err := rm.varCalc.MonteCarloVaR(ctx, totalValue, mean, std,
			rm.opts.MonteCarloSimulations, rm.opts.MonteCarloHorizonDays)
		if err != nil {
			return nil, err
		}

		metrics.VaR95 = math.Max(historical[0.95], simulated[0.95])
		metrics.VaR99 = math.Max(historical[0.99], simulated[0.99])
		metrics.CVaR95 = rm.varCalc.CVaR(totalValue, returns, 0.95)
		metrics.SharpeRatio = sharpeRatio(returns)
		metrics.SortinoRatio = sortinoRatio(returns)
	} else {
		metrics.VaR95 = totalValue * rm.opts.DefaultVaR95Ratio
		metrics.VaR99 = totalValue * rm.opts.DefaultVaR99Ratio
		metrics.CVaR95 = totalValue * rm.opts.DefaultCVaR95Ratio
	}

	breakerStatus := rm.breaker.Status()
	currentDrawdownPct := breakerStatus.Drawdown * 100
	metrics.MaxDrawdown = breakerStatus.MaxDrawdown * 100

	metrics.ConcentrationRisk = rm.concentrationLocked(totalValue)

	varRatioPct := 0.0
	if totalValue > 0 {
		varRatioPct = metrics.VaR95 / totalValue * 100
	}
	severity := ParseBreakerState(breakerStatus.State).Severity()

	metrics.OverallRiskScore = 0.3*varRatioPct +
		0.3*currentDrawdownPct +
		0.2*(2*metrics.ConcentrationRisk*100) +
		0.2*severity
	metrics.RiskLevel = riskLevelFor(metrics.OverallRiskScore)

	rm.currentMetrics = &metrics
	rm.metricsHistory = append(rm.metricsHistory, metrics)
	if len(rm.metricsHistory) > rm.opts.MetricsHistorySize {
		rm.metricsHistory = rm.metricsHistory[1:]
	}

	rm.logger.Info("风险指标已刷新",
		zap.Float64("var_95", metrics.VaR95),
		zap.Float64("cvar_95", metrics.CVaR95),
		zap.Float64("overall_score", metrics.OverallRiskScore),
		zap.String("risk_level", metrics.RiskLevel))

	out := metrics
	return &out, nil
}

// RunStressTests 以当前持仓快照运行全部压力测试情景
func (rm *RiskManager) RunStressTests() []models.ScenarioResult {
	return rm.stress.RunAllScenarios(rm.positionSnapshot())
}

// ExpectedShortfall 以当前持仓快照计算跨情景期望损失
func (rm *RiskManager) ExpectedShortfall(confidence float64) float64 {
	return rm.stress.ExpectedShortfall(rm.positionSnapshot(), confidence)
}

// GetRiskReport 生成聚合风险报告
// 完全基于已缓存状态构建，两次调用之间无状态变更时输出逐项一致
func (rm *RiskManager) GetRiskReport() *models.RiskReport {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	var metrics models.RiskMetrics
	if rm.currentMetrics != nil {
		metrics = *rm.currentMetrics
	}

	positions := make([]models.Position, 0, len(rm.positions))
	for _, pos := range rm.positions {
		positions = append(positions, *pos)
	}
	sort.Slice(positions, func(i, j int) bool {
		return positions[i].Symbol < positions[j].Symbol
	})

	limitCfg := rm.limits.Config()
	report := &models.RiskReport{
		Metrics:       metrics,
		BreakerStatus: rm.breaker.Status(),
		Positions:     positions,
		TotalValue:    rm.totalValueLocked(),
		PositionCount: len(positions),
		LimitsSummary: models.LimitsSummary{
			DefaultBaseLimit:    limitCfg.DefaultBaseLimit,
			BaseLimits:          limitCfg.BaseLimits,
			MaxConcentrationPct: limitCfg.MaxConcentrationPct,
			MaxCorrelation:      limitCfg.MaxCorrelation,
			MinLimit:            limitCfg.MinLimit,
		},
		GeneratedAt: metrics.Timestamp,
	}

	if last := rm.stress.LastResults(); len(last) > 0 {
		report.WorstScenario = last[0].ScenarioName
		report.WorstLossPct = last[0].LossPct
	}

	return report
}

// Positions 返回持仓快照(按交易对排序)
func (rm *RiskManager) Positions() []models.Position {
	out := rm.positionSnapshot()
	sort.Slice(out, func(i, j int) bool {
		return out[i].Symbol < out[j].Symbol
	})
	return out
}

// TotalValue 返回当前组合总市值
func (rm *RiskManager) TotalValue() float64 {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.totalValueLocked()
}

// BreakerStatus 返回熔断器状态快照
func (rm *RiskManager) BreakerStatus() models.CircuitBreakerStatus {
	return rm.breaker.Status()
}

// RestoreBreakerStatus 从持久化快照恢复熔断器状态(进程重启路径)
func (rm *RiskManager) RestoreBreakerStatus(status *models.CircuitBreakerStatus) {
	rm.breaker.RestoreStatus(status)
}

// MetricsHistory 返回指标快照历史(有界环形缓冲)的副本
func (rm *RiskManager) MetricsHistory() []models.RiskMetrics {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	out := make([]models.RiskMetrics, len(rm.metricsHistory))
	copy(out, rm.metricsHistory)
	return out
}

// positionSnapshot 在锁保护下取得持仓的不可变快照
func (rm *RiskManager) positionSnapshot() []models.Position {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	out := make([]models.Position, 0, len(rm.positions))
	for _, pos := range rm.positions {
		out = append(out, *pos)
	}
	return out
}

// totalValueLocked 计算组合总市值，调用方需持锁
func (rm *RiskManager) totalValueLocked() float64 {
	total := 0.0
	for _, pos := range rm.positions {
		total += pos.MarketValue()
	}
	return total
}

// concentrationLocked 计算集中度风险(最大单仓市值占比, 0-1)，调用方需持锁
func (rm *RiskManager) concentrationLocked(totalValue float64) float64 {
	if totalValue <= 0 {
		return 0
	}
	maxValue := 0.0
	for _, pos := range rm.positions {
		if mv := pos.MarketValue(); mv > maxValue {
			maxValue = mv
		}
	}
	return maxValue / totalValue
}

// sharpeRatio 年化夏普比率(无风险利率按0处理的简化口径)
func sharpeRatio(returns []float64) float64 {
	std := stdDevOf(returns)
	if std == 0 {
		return 0
	}
	return meanOf(returns) / std * math.Sqrt(annualizationDays)
}

// sortinoRatio 年化索提诺比率
// 无下行样本时返回饱和上限常量而非IEEE无穷
func sortinoRatio(returns []float64) float64 {
	downside := downsideDeviationOf(returns)
	if downside == 0 {
		return maxSortinoRatio
	}
	ratio := meanOf(returns) / downside * math.Sqrt(annualizationDays)
	if ratio > maxSortinoRatio {
		return maxSortinoRatio
	}
	return ratio
}

// riskLevelFor 把综合评分映射到风险等级
func riskLevelFor(score float64) string {
	switch {
	case score < riskScoreMediumThreshold:
		return RiskLevelLow
	case score < riskScoreHighThreshold:
		return RiskLevelMedium
	case score < riskScoreCriticalThreshold:
		return RiskLevelHigh
	default:
		return RiskLevelCritical
	}
}
