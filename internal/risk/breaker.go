package risk

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/life2you_mini/riskcore/internal/models"
)

// BreakerState 熔断器状态，按严重程度全序排列
type BreakerState int

const (
	StateNormal BreakerState = iota
	StateWarning
	StateTradingHalt
	StateEmergencyShutdown
)

// String 返回状态名称
func (s BreakerState) String() string {
	switch s {
	case StateNormal:
		return "NORMAL"
	case StateWarning:
		return "WARNING"
	case StateTradingHalt:
		return "TRADING_HALT"
	case StateEmergencyShutdown:
		return "EMERGENCY_SHUTDOWN"
	default:
		return "UNKNOWN"
	}
}

// ParseBreakerState 从名称解析状态，无法识别时返回NORMAL
func ParseBreakerState(name string) BreakerState {
	switch name {
	case "WARNING":
		return StateWarning
	case "TRADING_HALT":
		return StateTradingHalt
	case "EMERGENCY_SHUTDOWN":
		return StateEmergencyShutdown
	default:
		return StateNormal
	}
}

// Severity 返回状态的严重程度评分(0-100)，用于综合风险评分加权
func (s BreakerState) Severity() float64 {
	switch s {
	case StateWarning:
		return 30
	case StateTradingHalt:
		return 60
	case StateEmergencyShutdown:
		return 100
	default:
		return 0
	}
}

// BreakerConfig 熔断器阈值配置
type BreakerConfig struct {
	WarningDrawdown  float64       // WARNING回撤阈值，默认0.10
	HaltDrawdown     float64       // TRADING_HALT回撤阈值，默认0.20
	ShutdownDrawdown float64       // EMERGENCY_SHUTDOWN回撤阈值，默认0.30
	MinBalanceRatio  float64       // 开仓余额下限占初始余额比例，默认0.7
	Cooldown         time.Duration // 回到NORMAL后重置触发计数的冷却期，默认24h
	HistorySize      int           // 触发记录保留条数
}

// DefaultBreakerConfig 默认熔断器配置
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		WarningDrawdown:  0.10,
		HaltDrawdown:     0.20,
		ShutdownDrawdown: 0.30,
		MinBalanceRatio:  0.7,
		Cooldown:         24 * time.Hour,
		HistorySize:      100,
	}
}

// CircuitBreaker 多级熔断器
// 纯状态机: 跟踪当前余额与峰值余额，状态是回撤比例的纯函数
// 任何方法都只返回决策或状态，从不返回错误，保证上游任何故障下仍可评估
type CircuitBreaker struct {
	mu sync.RWMutex

	logger *zap.Logger
	cfg    BreakerConfig

	initialBalance decimal.Decimal
	currentBalance decimal.Decimal
	peakBalance    decimal.Decimal // 单调不减
	maxDrawdown    decimal.Decimal

	state         BreakerState
	triggerCount  int
	lastResetTime time.Time
	history       []models.TriggerRecord
}

// NewCircuitBreaker 创建熔断器
func NewCircuitBreaker(logger *zap.Logger, initialBalance decimal.Decimal, cfg BreakerConfig) *CircuitBreaker {
	if cfg.WarningDrawdown <= 0 {
		cfg = DefaultBreakerConfig()
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 100
	}
	return &CircuitBreaker{
		logger:         logger.With(zap.String("component", "circuit_breaker")),
		cfg:            cfg,
		initialBalance: initialBalance,
		currentBalance: initialBalance,
		peakBalance:    initialBalance,
		state:          StateNormal,
		lastResetTime:  time.Now(),
	}
}

// UpdateBalance 更新当前余额并重新评估熔断状态
// 峰值余额为单调棘轮，只升不降；回撤 = (峰值 - 当前) / 峰值，峰值为0时回撤为0
func (cb *CircuitBreaker) UpdateBalance(newBalance decimal.Decimal) BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.currentBalance = newBalance
	if newBalance.GreaterThan(cb.peakBalance) {
		cb.peakBalance = newBalance
	}

	drawdown := cb.drawdownLocked()
	if drawdown.GreaterThan(cb.maxDrawdown) {
		cb.maxDrawdown = drawdown
	}

	target := cb.stateFor(drawdown)
	if target != cb.state {
		record := models.TriggerRecord{
			FromState: cb.state.String(),
			ToState:   target.String(),
			Drawdown:  drawdown.InexactFloat64(),
			Balance:   newBalance.InexactFloat64(),
			Timestamp: time.Now(),
		}
		cb.history = append(cb.history, record)
		if len(cb.history) > cb.cfg.HistorySize {
			cb.history = cb.history[1:]
		}
		cb.triggerCount++

		cb.logger.Warn("熔断器状态切换",
			zap.String("from", record.FromState),
			zap.String("to", record.ToState),
			zap.Float64("drawdown", record.Drawdown),
			zap.Float64("balance", record.Balance),
			zap.Int("trigger_count", cb.triggerCount))

		cb.state = target
	}

	// 回到NORMAL且冷却期已过时重置触发计数
	if cb.state == StateNormal && time.Since(cb.lastResetTime) >= cb.cfg.Cooldown {
		if cb.triggerCount > 0 {
			cb.logger.Info("熔断器冷却期已过，重置触发计数",
				zap.Int("previous_count", cb.triggerCount))
		}
		cb.triggerCount = 0
		cb.lastResetTime = time.Now()
	}

	return cb.state
}

// stateFor 返回回撤比例对应的最高已突破阈值状态
func (cb *CircuitBreaker) stateFor(drawdown decimal.Decimal) BreakerState {
	dd := drawdown.InexactFloat64()
	switch {
	case dd >= cb.cfg.ShutdownDrawdown:
		return StateEmergencyShutdown
	case dd >= cb.cfg.HaltDrawdown:
		return StateTradingHalt
	case dd >= cb.cfg.WarningDrawdown:
		return StateWarning
	default:
		return StateNormal
	}
}

// drawdownLocked 计算当前回撤比例，调用方需持锁
func (cb *CircuitBreaker) drawdownLocked() decimal.Decimal {
	if cb.peakBalance.IsZero() {
		return decimal.Zero
	}
	if cb.currentBalance.GreaterThanOrEqual(cb.peakBalance) {
		return decimal.Zero
	}
	return cb.peakBalance.Sub(cb.currentBalance).Div(cb.peakBalance)
}

// CanOpenNewPosition 判断是否允许开新仓
// TRADING_HALT 和 EMERGENCY_SHUTDOWN 无条件拒绝；
// 其余状态下，若开仓后余额低于初始余额的下限比例(绝对保底线，独立于回撤百分比)也拒绝
// 纯函数，不做任何状态变更
func (cb *CircuitBreaker) CanOpenNewPosition(size decimal.Decimal) (bool, string) {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	switch cb.state {
	case StateEmergencyShutdown:
		return false, "熔断器处于紧急停机状态，禁止开新仓"
	case StateTradingHalt:
		return false, "熔断器处于交易暂停状态，禁止开新仓"
	}

	floor := cb.initialBalance.Mul(decimal.NewFromFloat(cb.cfg.MinBalanceRatio))
	if cb.currentBalance.Sub(size).LessThan(floor) {
		return false, fmt.Sprintf("开仓后余额将低于初始余额的%.0f%%保底线",
			cb.cfg.MinBalanceRatio*100)
	}

	return true, ""
}

// State 返回当前熔断状态
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// CurrentBalance 返回当前余额
func (cb *CircuitBreaker) CurrentBalance() decimal.Decimal {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.currentBalance
}

// Drawdown 返回当前回撤比例(0-1)
func (cb *CircuitBreaker) Drawdown() decimal.Decimal {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.drawdownLocked()
}

// Status 生成可序列化的状态快照
func (cb *CircuitBreaker) Status() models.CircuitBreakerStatus {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	history := make([]models.TriggerRecord, len(cb.history))
	copy(history, cb.history)

	return models.CircuitBreakerStatus{
		State:          cb.state.String(),
		InitialBalance: cb.initialBalance.InexactFloat64(),
		CurrentBalance: cb.currentBalance.InexactFloat64(),
		PeakBalance:    cb.peakBalance.InexactFloat64(),
		Drawdown:       cb.drawdownLocked().InexactFloat64(),
		MaxDrawdown:    cb.maxDrawdown.InexactFloat64(),
		TriggerCount:   cb.triggerCount,
		LastResetTime:  cb.lastResetTime,
		TriggerHistory: history,
	}
}

// RestoreStatus 从持久化快照恢复状态
// 熔断状态只存在于内存中，跨进程重启的安全性依赖调用方在重启前持久化最近状态
func (cb *CircuitBreaker) RestoreStatus(status *models.CircuitBreakerStatus) {
	if status == nil {
		return
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = ParseBreakerState(status.State)
	cb.initialBalance = decimal.NewFromFloat(status.InitialBalance)
	cb.currentBalance = decimal.NewFromFloat(status.CurrentBalance)
	cb.peakBalance = decimal.NewFromFloat(status.PeakBalance)
	cb.maxDrawdown = decimal.NewFromFloat(status.MaxDrawdown)
	cb.triggerCount = status.TriggerCount
	if !status.LastResetTime.IsZero() {
		cb.lastResetTime = status.LastResetTime
	}
	cb.history = make([]models.TriggerRecord, len(status.TriggerHistory))
	copy(cb.history, status.TriggerHistory)

	cb.logger.Info("已从持久化快照恢复熔断器状态",
		zap.String("state", cb.state.String()),
		zap.Float64("current_balance", status.CurrentBalance),
		zap.Float64("peak_balance", status.PeakBalance))
}
