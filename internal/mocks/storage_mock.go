package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/life2you_mini/riskcore/internal/models"
)

// MockStorage 存储层接口的模拟实现，用于测试
type MockStorage struct {
	mock.Mock
}

// Initialize 初始化的模拟实现
func (m *MockStorage) Initialize(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Close 关闭连接的模拟实现
func (m *MockStorage) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Health 健康检查的模拟实现
func (m *MockStorage) Health(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// StoreRiskMetrics 存储风险指标的模拟实现
func (m *MockStorage) StoreRiskMetrics(ctx context.Context, metrics *models.RiskMetrics) error {
	args := m.Called(ctx, metrics)
	return args.Error(0)
}

// GetRiskMetricsHistory 获取风险指标历史的模拟实现
func (m *MockStorage) GetRiskMetricsHistory(ctx context.Context, limit int) ([]*models.RiskMetrics, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.RiskMetrics), args.Error(1)
}

// StoreRiskReport 存储风险报告的模拟实现
func (m *MockStorage) StoreRiskReport(ctx context.Context, report *models.RiskReport) error {
	args := m.Called(ctx, report)
	return args.Error(0)
}

// GetLatestRiskReport 获取最新风险报告的模拟实现
func (m *MockStorage) GetLatestRiskReport(ctx context.Context) (*models.RiskReport, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RiskReport), args.Error(1)
}

// SaveBreakerStatus 持久化熔断器状态的模拟实现
func (m *MockStorage) SaveBreakerStatus(ctx context.Context, status *models.CircuitBreakerStatus) error {
	args := m.Called(ctx, status)
	return args.Error(0)
}

// LoadBreakerStatus 加载熔断器状态的模拟实现
func (m *MockStorage) LoadBreakerStatus(ctx context.Context) (*models.CircuitBreakerStatus, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CircuitBreakerStatus), args.Error(1)
}

// StoreTriggerRecord 存储触发记录的模拟实现
func (m *MockStorage) StoreTriggerRecord(ctx context.Context, record *models.TriggerRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

// GetTriggerRecords 获取触发记录的模拟实现
func (m *MockStorage) GetTriggerRecords(ctx context.Context, limit int) ([]*models.TriggerRecord, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.TriggerRecord), args.Error(1)
}

// StoreReturnSample 存储收益率样本的模拟实现
func (m *MockStorage) StoreReturnSample(ctx context.Context, value float64, timestamp time.Time) error {
	args := m.Called(ctx, value, timestamp)
	return args.Error(0)
}

// GetReturnSamples 获取收益率样本的模拟实现
func (m *MockStorage) GetReturnSamples(ctx context.Context, limit int) ([]float64, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float64), args.Error(1)
}

// PushTask 推送任务的模拟实现
func (m *MockStorage) PushTask(ctx context.Context, queue string, task interface{}) error {
	args := m.Called(ctx, queue, task)
	return args.Error(0)
}

// PopTask 弹出任务的模拟实现
func (m *MockStorage) PopTask(ctx context.Context, queue string, timeout time.Duration) ([]byte, error) {
	args := m.Called(ctx, queue, timeout)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

// QueueLength 获取队列长度的模拟实现
func (m *MockStorage) QueueLength(ctx context.Context, queue string) (int64, error) {
	args := m.Called(ctx, queue)
	return args.Get(0).(int64), args.Error(1)
}
