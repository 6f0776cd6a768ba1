package models

import (
	"time"
)

// Position 持仓信息数据结构
// 由执行层创建并推送进来，风险引擎内部以交易对为键唯一持有
type Position struct {
	Symbol       string    `json:"symbol"`                  // 交易对标识
	Size         float64   `json:"size"`                    // 名义仓位规模(USD)，非负
	Side         string    `json:"side"`                    // 方向: LONG, SHORT
	EntryPrice   float64   `json:"entry_price"`             // 入场价格
	CurrentPrice float64   `json:"current_price"`           // 当前价格
	Leverage     float64   `json:"leverage"`                // 杠杆倍数，>= 1.0
	PnlPct       float64   `json:"pnl_pct"`                 // 盈亏百分比
	OpenTime     time.Time `json:"open_time"`               // 开仓时间
	OrderID      string    `json:"order_id,omitempty"`      // 来源订单ID
	Exchange     string    `json:"exchange,omitempty"`      // 来源交易所
}

// MarketValue 计算当前市值: size * (1 + pnl_pct/100)
func (p *Position) MarketValue() float64 {
	return p.Size * (1 + p.PnlPct/100)
}

// PnlUSD 计算盈亏金额: size * pnl_pct/100
func (p *Position) PnlUSD() float64 {
	return p.Size * p.PnlPct / 100
}

// RiskMetrics 组合风险指标快照，每次评估周期生成一份
type RiskMetrics struct {
	VaR95             float64   `json:"var_95"`             // 95%置信度VaR(USD)
	VaR99             float64   `json:"var_99"`             // 99%置信度VaR(USD)
	CVaR95            float64   `json:"cvar_95"`            // 95%置信度CVaR(USD)，同一样本下 >= VaR95
	MaxDrawdown       float64   `json:"max_drawdown"`       // 最大回撤(%, 0-100)
	SharpeRatio       float64   `json:"sharpe_ratio"`       // 夏普比率
	SortinoRatio      float64   `json:"sortino_ratio"`      // 索提诺比率，无下行样本时饱和为常量上限
	Beta              float64   `json:"beta"`               // 贝塔系数
	ConcentrationRisk float64   `json:"concentration_risk"` // 集中度风险(0-1)
	OverallRiskScore  float64   `json:"overall_risk_score"` // 综合风险评分，非负
	RiskLevel         string    `json:"risk_level"`         // LOW, MEDIUM, HIGH, CRITICAL
	Timestamp         time.Time `json:"timestamp"`
}

// TriggerRecord 熔断器状态切换记录
type TriggerRecord struct {
	FromState string    `json:"from_state"`
	ToState   string    `json:"to_state"`
	Drawdown  float64   `json:"drawdown"` // 触发时的回撤比例(0-1)
	Balance   float64   `json:"balance"`  // 触发时的余额(USD)
	Timestamp time.Time `json:"timestamp"`
}

// CircuitBreakerStatus 熔断器状态快照，可序列化供外部持久化和监控
type CircuitBreakerStatus struct {
	State          string          `json:"state"`
	InitialBalance float64         `json:"initial_balance"`
	CurrentBalance float64         `json:"current_balance"`
	PeakBalance    float64         `json:"peak_balance"`
	Drawdown       float64         `json:"drawdown"`     // 当前回撤比例(0-1)
	MaxDrawdown    float64         `json:"max_drawdown"` // 历史最大回撤比例(0-1)
	TriggerCount   int             `json:"trigger_count"`
	LastResetTime  time.Time       `json:"last_reset_time"`
	TriggerHistory []TriggerRecord `json:"trigger_history,omitempty"`
}

// StressTestScenario 压力测试情景，构造后不可变
type StressTestScenario struct {
	Name                 string             `json:"name"`
	Description          string             `json:"description"`
	PriceChanges         map[string]float64 `json:"price_changes"`          // 交易对 -> 价格冲击百分比
	LiquidityChangePct   float64            `json:"liquidity_change_pct"`   // 流动性变化百分比
	VolatilityMultiplier float64            `json:"volatility_multiplier"`  // 波动率乘数，>= 0
	CorrelationBreakdown bool               `json:"correlation_breakdown"`  // 相关性失效
	Probability          float64            `json:"probability"`            // 年化发生概率(0-1)
}

// ScenarioResult 单个压力测试情景的评估结果
type ScenarioResult struct {
	ScenarioName      string    `json:"scenario_name"`
	Description       string    `json:"description,omitempty"`
	TotalBefore       float64   `json:"total_before"`       // 冲击前组合市值(USD)
	TotalAfter        float64   `json:"total_after"`        // 冲击后组合市值(USD)
	Loss              float64   `json:"loss"`               // 损失金额(USD)，正值表示亏损
	LossPct           float64   `json:"loss_pct"`           // 损失百分比
	AffectedPositions []string  `json:"affected_positions"` // 受冲击的交易对
	RecoveryTimeDays  float64   `json:"recovery_time_days"` // 预估恢复天数(线性启发式)
	Probability       float64   `json:"probability"`
	Timestamp         time.Time `json:"timestamp"`
}

// RiskReport 风险报告，引擎对外输出的唯一聚合产物
type RiskReport struct {
	Metrics        RiskMetrics          `json:"metrics"`
	BreakerStatus  CircuitBreakerStatus `json:"breaker_status"`
	Positions      []Position           `json:"positions"`
	TotalValue     float64              `json:"total_value"`
	PositionCount  int                  `json:"position_count"`
	LimitsSummary  LimitsSummary        `json:"limits_summary"`
	WorstScenario  string               `json:"worst_scenario,omitempty"`
	WorstLossPct   float64              `json:"worst_loss_pct,omitempty"`
	GeneratedAt    time.Time            `json:"generated_at"` // 取自当前指标快照的时间戳
}

// LimitsSummary 当前生效的仓位限制配置摘要
type LimitsSummary struct {
	DefaultBaseLimit    float64            `json:"default_base_limit"`
	BaseLimits          map[string]float64 `json:"base_limits,omitempty"`
	MaxConcentrationPct float64            `json:"max_concentration_pct"`
	MaxCorrelation      float64            `json:"max_correlation"`
	MinLimit            float64            `json:"min_limit"`
}

// PriceUpdate 价格推送任务，由行情采集方推入队列
type PriceUpdate struct {
	Prices    map[string]float64 `json:"prices"` // 交易对 -> 最新价格
	Timestamp time.Time          `json:"timestamp"`
}

// PositionRequest 仓位操作请求，由执行层推入队列
type PositionRequest struct {
	Action    string    `json:"action"` // OPEN, CLOSE
	Position  *Position `json:"position,omitempty"`
	Symbol    string    `json:"symbol,omitempty"` // CLOSE 时使用
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// AdmissionDecision 准入决策结果，推送回执行层
type AdmissionDecision struct {
	RequestID string    `json:"request_id,omitempty"`
	Symbol    string    `json:"symbol"`
	Allowed   bool      `json:"allowed"`
	Reason    string    `json:"reason,omitempty"`
	MaxSize   float64   `json:"max_size,omitempty"` // 拒绝时给出的最大允许规模
	Timestamp time.Time `json:"timestamp"`
}
