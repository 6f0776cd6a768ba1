package storage

import (
	"context"
	"time"

	"github.com/life2you_mini/riskcore/internal/models"
)

// 任务队列常量
const (
	QueuePriceUpdates       = "price_updates"
	QueuePositionRequests   = "position_requests"
	QueueAdmissionDecisions = "admission_decisions"
)

// Storage 定义存储层接口，可以有多种实现（Redis、PostgreSQL等）
type Storage interface {
	// 基础操作
	Initialize(ctx context.Context) error
	Close(ctx context.Context) error
	Health(ctx context.Context) error

	// 风险指标操作
	StoreRiskMetrics(ctx context.Context, metrics *models.RiskMetrics) error
	GetRiskMetricsHistory(ctx context.Context, limit int) ([]*models.RiskMetrics, error)

	// 风险报告操作
	StoreRiskReport(ctx context.Context, report *models.RiskReport) error
	GetLatestRiskReport(ctx context.Context) (*models.RiskReport, error)

	// 熔断器状态持久化
	// 熔断状态只存在于内存中，重启安全性依赖定期保存的快照
	SaveBreakerStatus(ctx context.Context, status *models.CircuitBreakerStatus) error
	LoadBreakerStatus(ctx context.Context) (*models.CircuitBreakerStatus, error)

	// 熔断触发记录操作
	StoreTriggerRecord(ctx context.Context, record *models.TriggerRecord) error
	GetTriggerRecords(ctx context.Context, limit int) ([]*models.TriggerRecord, error)

	// 组合收益率样本操作
	StoreReturnSample(ctx context.Context, value float64, timestamp time.Time) error
	GetReturnSamples(ctx context.Context, limit int) ([]float64, error)

	// 任务队列操作
	PushTask(ctx context.Context, queue string, task interface{}) error
	PopTask(ctx context.Context, queue string, timeout time.Duration) ([]byte, error)
	QueueLength(ctx context.Context, queue string) (int64, error)
}
