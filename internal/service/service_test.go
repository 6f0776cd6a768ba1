package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/life2you_mini/riskcore/internal/config"
	"github.com/life2you_mini/riskcore/internal/mocks"
	"github.com/life2you_mini/riskcore/internal/models"
)

func newTestService(t *testing.T) (*RiskService, *mocks.MockStorage) {
	t.Helper()

	store := new(mocks.MockStorage)
	svc, err := NewRiskService(context.Background(), config.GetDefaultConfig(), zaptest.NewLogger(t), store)
	require.NoError(t, err)
	return svc, store
}

func TestNewRiskService_LoadsCustomScenarios(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.Risk.CustomScenarios = []config.ScenarioConfig{
		{
			Name:                 "Custom_Shock",
			Description:          "自定义冲击",
			PriceChanges:         map[string]float64{"WBTC": -10},
			VolatilityMultiplier: 1.5,
			Probability:          0.1,
		},
	}

	svc, err := NewRiskService(context.Background(), cfg, zaptest.NewLogger(t), new(mocks.MockStorage))
	require.NoError(t, err)
	require.NotNil(t, svc)
}

func TestNewRiskService_InvalidCustomScenario(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.Risk.CustomScenarios = []config.ScenarioConfig{
		{Name: "Bad", VolatilityMultiplier: -1},
	}

	_, err := NewRiskService(context.Background(), cfg, zaptest.NewLogger(t), new(mocks.MockStorage))
	assert.Error(t, err)
}

func TestHandlePositionRequest_Open(t *testing.T) {
	svc, _ := newTestService(t)

	decision := svc.handlePositionRequest(&models.PositionRequest{
		Action:    "OPEN",
		RequestID: "req-1",
		Position: &models.Position{
			Symbol: "WBTC", Size: 50000, Side: "LONG", EntryPrice: 65000, Leverage: 2,
		},
	})

	assert.True(t, decision.Allowed)
	assert.Equal(t, "req-1", decision.RequestID)
	assert.Equal(t, "WBTC", decision.Symbol)
	assert.Len(t, svc.Manager().Positions(), 1)
}

func TestHandlePositionRequest_OpenRejected(t *testing.T) {
	svc, _ := newTestService(t)

	// 超过WBTC基础限额25万
	decision := svc.handlePositionRequest(&models.PositionRequest{
		Action: "OPEN",
		Position: &models.Position{
			Symbol: "WBTC", Size: 300000, Side: "LONG", EntryPrice: 65000, Leverage: 1,
		},
	})

	assert.False(t, decision.Allowed)
	assert.NotEmpty(t, decision.Reason)
	// 拒绝时带回最大允许规模
	assert.Greater(t, decision.MaxSize, 0.0)
	assert.Empty(t, svc.Manager().Positions())
}

func TestHandlePositionRequest_OpenMissingPosition(t *testing.T) {
	svc, _ := newTestService(t)

	decision := svc.handlePositionRequest(&models.PositionRequest{Action: "OPEN"})

	assert.False(t, decision.Allowed)
	assert.NotEmpty(t, decision.Reason)
}

func TestHandlePositionRequest_Close(t *testing.T) {
	svc, _ := newTestService(t)

	require.True(t, svc.handlePositionRequest(&models.PositionRequest{
		Action: "OPEN",
		Position: &models.Position{
			Symbol: "WETH", Size: 10000, Side: "LONG", EntryPrice: 3000, Leverage: 1,
		},
	}).Allowed)

	decision := svc.handlePositionRequest(&models.PositionRequest{
		Action: "CLOSE",
		Symbol: "WETH",
	})

	assert.True(t, decision.Allowed)
	assert.Empty(t, svc.Manager().Positions())
}

func TestHandlePositionRequest_UnknownAction(t *testing.T) {
	svc, _ := newTestService(t)

	decision := svc.handlePositionRequest(&models.PositionRequest{
		Action: "ADJUST",
		Symbol: "WBTC",
	})

	assert.False(t, decision.Allowed)
	assert.NotEmpty(t, decision.Reason)
}

func TestRestoreState(t *testing.T) {
	svc, store := newTestService(t)

	saved := &models.CircuitBreakerStatus{
		State:          "WARNING",
		InitialBalance: 1000000,
		CurrentBalance: 900000,
		PeakBalance:    1000000,
		Drawdown:       0.10,
		MaxDrawdown:    0.12,
		TriggerCount:   1,
		LastResetTime:  time.Now().Add(-time.Hour),
	}
	store.On("LoadBreakerStatus", mock.Anything).Return(saved, nil)
	store.On("GetReturnSamples", mock.Anything, mock.Anything).
		Return([]float64{0.01, -0.02, 0.03}, nil)

	svc.restoreState()

	status := svc.Manager().BreakerStatus()
	assert.Equal(t, "WARNING", status.State)
	assert.InDelta(t, 0.10, status.Drawdown, 1e-9)
	assert.Equal(t, 3, svc.returns.Len())
}

func TestRestoreState_ColdStart(t *testing.T) {
	svc, store := newTestService(t)

	// 冷启动: 无持久化快照也无历史样本，服务按初始状态运行
	store.On("LoadBreakerStatus", mock.Anything).Return(nil, nil)
	store.On("GetReturnSamples", mock.Anything, mock.Anything).Return(nil, nil)

	svc.restoreState()

	assert.Equal(t, "NORMAL", svc.Manager().BreakerStatus().State)
	assert.Equal(t, 0, svc.returns.Len())
}

func TestEvaluateOnce_PersistsResults(t *testing.T) {
	svc, store := newTestService(t)

	store.On("StoreRiskMetrics", mock.Anything, mock.Anything).Return(nil)
	store.On("StoreRiskReport", mock.Anything, mock.Anything).Return(nil)
	store.On("SaveBreakerStatus", mock.Anything, mock.Anything).Return(nil)

	require.True(t, svc.handlePositionRequest(&models.PositionRequest{
		Action: "OPEN",
		Position: &models.Position{
			Symbol: "WBTC", Size: 50000, Side: "LONG", EntryPrice: 65000, Leverage: 1,
		},
	}).Allowed)

	svc.evaluateOnce()

	store.AssertCalled(t, "StoreRiskMetrics", mock.Anything, mock.Anything)
	store.AssertCalled(t, "StoreRiskReport", mock.Anything, mock.Anything)
	store.AssertCalled(t, "SaveBreakerStatus", mock.Anything, mock.Anything)

	report := svc.Manager().GetRiskReport()
	assert.Equal(t, 1, report.PositionCount)
	assert.NotEmpty(t, report.Metrics.RiskLevel)
}

func TestSamplePortfolioReturn(t *testing.T) {
	svc, store := newTestService(t)

	store.On("StoreReturnSample", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	require.True(t, svc.handlePositionRequest(&models.PositionRequest{
		Action: "OPEN",
		Position: &models.Position{
			Symbol: "WBTC", Size: 50000, Side: "LONG", EntryPrice: 100, Leverage: 1,
		},
	}).Allowed)

	// 首次采样只建立基准，不产生样本
	svc.samplePortfolioReturn()
	assert.Equal(t, 0, svc.returns.Len())

	// 价格上涨10%后采样得到一个+10%的收益率
	svc.Manager().UpdatePrices(map[string]float64{"WBTC": 110})
	svc.samplePortfolioReturn()

	require.Equal(t, 1, svc.returns.Len())
	assert.InDelta(t, 0.10, svc.returns.Values()[0], 1e-9)
	store.AssertCalled(t, "StoreReturnSample", mock.Anything, mock.Anything, mock.Anything)
}
