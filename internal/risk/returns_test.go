package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReturnSeries_AddAndTrim(t *testing.T) {
	rs := NewReturnSeries("PORTFOLIO", 3)

	rs.AddAll([]float64{0.01, 0.02, 0.03, 0.04, 0.05})

	assert.Equal(t, 3, rs.Len())
	// 超出容量时淘汰最旧的样本
	assert.Equal(t, []float64{0.03, 0.04, 0.05}, rs.Values())
}

func TestReturnSeries_ValuesReturnsCopy(t *testing.T) {
	rs := NewReturnSeries("PORTFOLIO", 10)
	rs.AddAll([]float64{0.01, 0.02})

	values := rs.Values()
	values[0] = 99.0

	assert.Equal(t, []float64{0.01, 0.02}, rs.Values())
}

func TestReturnSeries_Statistics(t *testing.T) {
	rs := NewReturnSeries("PORTFOLIO", 10)
	rs.AddAll([]float64{0.01, -0.02, 0.03, -0.04})

	assert.InDelta(t, -0.005, rs.Mean(), 1e-9)
	assert.InDelta(t, 0.0310913, rs.StdDev(), 1e-6)
	// 下行偏差只统计负收益样本
	assert.InDelta(t, 0.0316228, rs.DownsideDeviation(), 1e-6)
}

func TestReturnSeries_StatisticsEdgeCases(t *testing.T) {
	tests := []struct {
		name    string
		samples []float64
	}{
		{name: "空序列", samples: nil},
		{name: "单个样本", samples: []float64{0.01}},
		{name: "全部为正无下行样本", samples: []float64{0.01, 0.02, 0.03}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs := NewReturnSeries("PORTFOLIO", 10)
			rs.AddAll(tt.samples)

			if len(tt.samples) < 2 {
				assert.Equal(t, 0.0, rs.StdDev())
			}
			if len(tt.samples) == 0 {
				assert.Equal(t, 0.0, rs.Mean())
			}
			if tt.name == "全部为正无下行样本" {
				assert.Equal(t, 0.0, rs.DownsideDeviation())
			}
		})
	}
}

func TestReturnSeries_Percentile(t *testing.T) {
	rs := NewReturnSeries("PORTFOLIO", 10)
	rs.AddAll([]float64{5, 1, 3, 2, 4})

	assert.Equal(t, []float64{1, 2, 3, 4, 5}, rs.SortedValues())
	// 排序副本不影响原始时间顺序
	assert.Equal(t, []float64{5, 1, 3, 2, 4}, rs.Values())

	// 截断索引约定: sorted[floor(q * n)]
	assert.Equal(t, 1.0, rs.Percentile(0))
	assert.Equal(t, 2.0, rs.Percentile(0.2))
	assert.Equal(t, 3.0, rs.Percentile(0.5))
	assert.Equal(t, 5.0, rs.Percentile(0.99))
}

func TestReturnSeries_MaxDrawdown(t *testing.T) {
	rs := NewReturnSeries("PORTFOLIO", 10)
	rs.AddAll([]float64{0.10, -0.50, 0.20})

	// 净值曲线: 1.10 -> 0.55 -> 0.66, 峰值1.10, 最大回撤50%
	assert.InDelta(t, 50.0, rs.MaxDrawdown(), 1e-9)
}

func TestReturnSeries_MaxDrawdownEmpty(t *testing.T) {
	rs := NewReturnSeries("PORTFOLIO", 10)
	assert.Equal(t, 0.0, rs.MaxDrawdown())
}
