package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/life2you_mini/riskcore/internal/config"
	"github.com/life2you_mini/riskcore/internal/models"
	"github.com/life2you_mini/riskcore/internal/risk"
	"github.com/life2you_mini/riskcore/internal/storage"
)

const (
	// 队列拉取阻塞超时
	popTimeout = 5 * time.Second

	// 优雅关闭等待上限
	shutdownTimeout = 5 * time.Second
)

// RiskService 风险管理服务
// 消费价格推送与仓位请求两个队列，周期性评估组合风险并持久化结果
type RiskService struct {
	ctx    context.Context
	cancel context.CancelFunc

	logger  *zap.Logger
	cfg     *config.Config
	store   storage.Storage
	manager *risk.RiskManager
	returns *risk.ReturnSeries

	lastTotalValue  float64
	lastTriggerTime time.Time

	wg        sync.WaitGroup
	isRunning bool
	mutex     sync.Mutex
}

// NewRiskService 创建风险管理服务并组装全部风险组件
func NewRiskService(
	parentCtx context.Context,
	cfg *config.Config,
	logger *zap.Logger,
	store storage.Storage,
) (*RiskService, error) {
	ctx, cancel := context.WithCancel(parentCtx)

	varCalc := risk.NewVarCalculator(cfg.Risk.ConfidenceLevels, cfg.Risk.MonteCarlo.Seed)

	stress := risk.NewStressTestEngine(logger)
	for _, sc := range cfg.Risk.CustomScenarios {
		scenario := models.StressTestScenario{
			Name:                 sc.Name,
			Description:          sc.Description,
			PriceChanges:         sc.PriceChanges,
			LiquidityChangePct:   sc.LiquidityChangePct,
			VolatilityMultiplier: sc.VolatilityMultiplier,
			CorrelationBreakdown: sc.CorrelationBreakdown,
			Probability:          sc.Probability,
		}
		if err := stress.AddCustomScenario(scenario); err != nil {
			cancel()
			return nil, fmt.Errorf("加载自定义压力测试情景失败: %w", err)
		}
	}

	breaker := risk.NewCircuitBreaker(
		logger,
		decimal.NewFromFloat(cfg.Risk.InitialBalance),
		risk.BreakerConfig{
			WarningDrawdown:  cfg.Risk.CircuitBreaker.WarningDrawdown,
			HaltDrawdown:     cfg.Risk.CircuitBreaker.HaltDrawdown,
			ShutdownDrawdown: cfg.Risk.CircuitBreaker.ShutdownDrawdown,
			MinBalanceRatio:  cfg.Risk.CircuitBreaker.MinBalanceRatio,
			Cooldown:         time.Duration(cfg.Risk.CircuitBreaker.CooldownHours) * time.Hour,
			HistorySize:      cfg.Risk.CircuitBreaker.HistorySize,
		},
	)

	limits := risk.NewDynamicPositionLimit(logger, risk.PositionLimitConfig{
		DefaultBaseLimit:    cfg.Risk.PositionLimits.DefaultBaseLimit,
		BaseLimits:          cfg.Risk.PositionLimits.BaseLimits,
		MaxConcentrationPct: cfg.Risk.PositionLimits.MaxConcentrationPct,
		MaxCorrelation:      cfg.Risk.PositionLimits.MaxCorrelation,
		MinLimit:            cfg.Risk.PositionLimits.MinLimit,
		BaseVolatility:      cfg.Risk.PositionLimits.BaseVolatility,
		LiquidityCoverage:   cfg.Risk.PositionLimits.LiquidityCoverage,
	})

	manager := risk.NewRiskManager(logger, varCalc, stress, breaker, limits, risk.ManagerOptions{
		InitialBalance:        cfg.Risk.InitialBalance,
		MetricsHistorySize:    cfg.Risk.MetricsHistorySize,
		MonteCarloSimulations: cfg.Risk.MonteCarlo.NumSimulations,
		MonteCarloHorizonDays: cfg.Risk.MonteCarlo.HorizonDays,
		DefaultVaR95Ratio:     cfg.Risk.DefaultVaR95Ratio,
		DefaultVaR99Ratio:     cfg.Risk.DefaultVaR99Ratio,
		DefaultCVaR95Ratio:    cfg.Risk.DefaultCVaR95Ratio,
	})

	return &RiskService{
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger.With(zap.String("component", "risk_service")),
		cfg:     cfg,
		store:   store,
		manager: manager,
		returns: risk.NewReturnSeries("PORTFOLIO", risk.DefaultReturnCapacity),
	}, nil
}

// Manager 返回内部的风险管理器(测试和只读查询使用)
func (s *RiskService) Manager() *risk.RiskManager {
	return s.manager
}

// Start 启动服务
// 先从存储恢复熔断器状态与历史收益率样本，再启动队列消费和周期评估协程
func (s *RiskService) Start() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.isRunning {
		return fmt.Errorf("风险管理服务已在运行")
	}

	s.logger.Info("启动风险管理服务")

	s.restoreState()

	s.isRunning = true

	s.wg.Add(3)
	go s.processPriceUpdates()
	go s.processPositionRequests()
	go s.runEvaluationLoop()

	return nil
}

// Stop 停止服务，最后保存一次熔断器状态
func (s *RiskService) Stop() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.isRunning {
		return nil
	}

	s.logger.Info("停止风险管理服务")
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("风险管理服务已停止")
	case <-time.After(shutdownTimeout):
		s.logger.Warn("风险管理服务停止超时")
	}

	// 关闭阶段使用独立上下文，服务上下文已取消
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	status := s.manager.BreakerStatus()
	if err := s.store.SaveBreakerStatus(ctx, &status); err != nil {
		s.logger.Error("停机前持久化熔断器状态失败", zap.Error(err))
	}

	s.isRunning = false
	return nil
}

// restoreState 从存储恢复熔断器状态和收益率样本
// 任一恢复失败只降级为冷启动，不阻止服务启动
func (s *RiskService) restoreState() {
	ctx, cancel := context.WithTimeout(s.ctx, popTimeout)
	defer cancel()

	status, err := s.store.LoadBreakerStatus(ctx)
	if err != nil {
		s.logger.Warn("加载熔断器状态失败，按冷启动处理", zap.Error(err))
	} else if status != nil {
		s.manager.RestoreBreakerStatus(status)
		s.lastTriggerTime = latestTriggerTime(status.TriggerHistory)
	}

	samples, err := s.store.GetReturnSamples(ctx, risk.DefaultReturnCapacity)
	if err != nil {
		s.logger.Warn("加载历史收益率样本失败，按冷启动处理", zap.Error(err))
	} else if len(samples) > 0 {
		s.returns.AddAll(samples)
		s.logger.Info("已恢复历史收益率样本", zap.Int("count", len(samples)))
	}

	s.lastTotalValue = s.manager.TotalValue()
}

// processPriceUpdates 消费价格推送队列
func (s *RiskService) processPriceUpdates() {
	defer s.wg.Done()

	s.logger.Info("开始处理价格推送队列")

	for {
		select {
		case <-s.ctx.Done():
			s.logger.Info("结束价格推送处理")
			return
		default:
		}

		taskBytes, err := s.store.PopTask(s.ctx, storage.QueuePriceUpdates, popTimeout)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.logger.Error("从价格推送队列获取任务失败", zap.Error(err))
			time.Sleep(100 * time.Millisecond)
			continue
		}
		if taskBytes == nil {
			continue // 超时，无新任务
		}

		var update models.PriceUpdate
		if err := json.Unmarshal(taskBytes, &update); err != nil {
			s.logger.Error("解析价格推送任务失败", zap.Error(err))
			continue
		}

		s.manager.UpdatePrices(update.Prices)
	}
}

// processPositionRequests 消费仓位请求队列，准入决策推送回执行层
func (s *RiskService) processPositionRequests() {
	defer s.wg.Done()

	s.logger.Info("开始处理仓位请求队列")

	for {
		select {
		case <-s.ctx.Done():
			s.logger.Info("结束仓位请求处理")
			return
		default:
		}

		taskBytes, err := s.store.PopTask(s.ctx, storage.QueuePositionRequests, popTimeout)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.logger.Error("从仓位请求队列获取任务失败", zap.Error(err))
			time.Sleep(100 * time.Millisecond)
			continue
		}
		if taskBytes == nil {
			continue
		}

		var request models.PositionRequest
		if err := json.Unmarshal(taskBytes, &request); err != nil {
			s.logger.Error("解析仓位请求失败", zap.Error(err))
			continue
		}

		decision := s.handlePositionRequest(&request)

		if err := s.store.PushTask(s.ctx, storage.QueueAdmissionDecisions, decision); err != nil {
			s.logger.Error("推送准入决策失败",
				zap.String("symbol", decision.Symbol),
				zap.Error(err))
		}
	}
}

// handlePositionRequest 处理单个仓位请求并生成准入决策
func (s *RiskService) handlePositionRequest(request *models.PositionRequest) *models.AdmissionDecision {
	decision := &models.AdmissionDecision{
		RequestID: request.RequestID,
		Timestamp: time.Now(),
	}

	switch request.Action {
	case "OPEN":
		if request.Position == nil {
			decision.Allowed = false
			decision.Reason = "开仓请求缺少持仓数据"
			return decision
		}
		decision.Symbol = request.Position.Symbol

		if err := s.manager.AddPosition(request.Position); err != nil {
			decision.Allowed = false
			if admErr, ok := risk.IsAdmissionError(err); ok {
				decision.Reason = admErr.Reason
				decision.MaxSize = admErr.MaxSize
			} else {
				decision.Reason = err.Error()
			}
			s.logger.Info("开仓请求被拒绝",
				zap.String("symbol", decision.Symbol),
				zap.String("reason", decision.Reason))
			return decision
		}

		decision.Allowed = true
		s.logger.Info("开仓请求已通过",
			zap.String("symbol", decision.Symbol),
			zap.Float64("size", request.Position.Size))

	case "CLOSE":
		decision.Symbol = request.Symbol
		s.manager.RemovePosition(request.Symbol)
		decision.Allowed = true
		s.logger.Info("平仓请求已处理", zap.String("symbol", request.Symbol))

	default:
		decision.Symbol = request.Symbol
		decision.Allowed = false
		decision.Reason = fmt.Sprintf("未知的仓位操作: %s", request.Action)
	}

	return decision
}

// runEvaluationLoop 周期性风险评估
// 每个周期: 采样组合收益率 -> 计算风险指标 -> 压力测试 -> 生成并持久化报告
func (s *RiskService) runEvaluationLoop() {
	defer s.wg.Done()

	interval := time.Duration(s.cfg.System.RiskCheckIntervalMinutes) * time.Minute
	s.logger.Info("启动周期风险评估", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// 立即执行一次评估
	s.evaluateOnce()

	for {
		select {
		case <-s.ctx.Done():
			s.logger.Info("结束周期风险评估")
			return
		case <-ticker.C:
			s.evaluateOnce()
		}
	}
}

// evaluateOnce 执行一个完整的评估周期
func (s *RiskService) evaluateOnce() {
	s.samplePortfolioReturn()

	metrics, err := s.manager.CalculatePortfolioRisk(s.ctx, s.returns.Values())
	if err != nil {
		s.logger.Error("计算组合风险失败", zap.Error(err))
		return
	}

	s.manager.RunStressTests()
	report := s.manager.GetRiskReport()

	ctx, cancel := context.WithTimeout(s.ctx, popTimeout)
	defer cancel()

	if err := s.store.StoreRiskMetrics(ctx, metrics); err != nil {
		s.logger.Error("持久化风险指标失败", zap.Error(err))
	}
	if err := s.store.StoreRiskReport(ctx, report); err != nil {
		s.logger.Error("持久化风险报告失败", zap.Error(err))
	}

	status := s.manager.BreakerStatus()
	if err := s.store.SaveBreakerStatus(ctx, &status); err != nil {
		s.logger.Error("持久化熔断器状态失败", zap.Error(err))
	}
	s.persistNewTriggers(ctx, status.TriggerHistory)

	s.logger.Debug("风险评估周期完成",
		zap.Float64("overall_risk_score", metrics.OverallRiskScore),
		zap.String("risk_level", metrics.RiskLevel),
		zap.String("breaker_state", status.State))
}

// samplePortfolioReturn 以上一周期的组合市值为基准采样一个收益率
func (s *RiskService) samplePortfolioReturn() {
	total := s.manager.TotalValue()
	if s.lastTotalValue > 0 && total > 0 {
		sample := (total - s.lastTotalValue) / s.lastTotalValue
		s.returns.Add(sample)

		ctx, cancel := context.WithTimeout(s.ctx, popTimeout)
		if err := s.store.StoreReturnSample(ctx, sample, time.Now()); err != nil {
			s.logger.Warn("持久化收益率样本失败", zap.Error(err))
		}
		cancel()
	}
	s.lastTotalValue = total
}

// persistNewTriggers 持久化上次评估以来新增的熔断触发记录
func (s *RiskService) persistNewTriggers(ctx context.Context, history []models.TriggerRecord) {
	for i := range history {
		record := history[i]
		if !record.Timestamp.After(s.lastTriggerTime) {
			continue
		}
		if err := s.store.StoreTriggerRecord(ctx, &record); err != nil {
			s.logger.Error("持久化熔断触发记录失败", zap.Error(err))
			continue
		}
		if record.Timestamp.After(s.lastTriggerTime) {
			s.lastTriggerTime = record.Timestamp
		}
	}
}

// latestTriggerTime 返回触发记录中最新的时间戳
func latestTriggerTime(history []models.TriggerRecord) time.Time {
	var latest time.Time
	for i := range history {
		if history[i].Timestamp.After(latest) {
			latest = history[i].Timestamp
		}
	}
	return latest
}
