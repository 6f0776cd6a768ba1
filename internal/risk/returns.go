package risk

import (
	"math"
	"sort"
)

// DefaultReturnCapacity 收益率序列默认容量(约一年的日度样本)
const DefaultReturnCapacity = 365

// ReturnSeries 按时间顺序保存的历史收益率样本
// 所有统计组件的叶子依赖，样本为单位周期(日度)的小数收益率
type ReturnSeries struct {
	symbol   string
	samples  []float64
	capacity int
}

// NewReturnSeries 创建收益率序列
func NewReturnSeries(symbol string, capacity int) *ReturnSeries {
	if capacity <= 0 {
		capacity = DefaultReturnCapacity
	}
	return &ReturnSeries{
		symbol:   symbol,
		samples:  make([]float64, 0, capacity),
		capacity: capacity,
	}
}

// Symbol 返回序列对应的标识
func (rs *ReturnSeries) Symbol() string {
	return rs.symbol
}

// Add 追加一个收益率样本，超出容量时淘汰最旧的样本
func (rs *ReturnSeries) Add(r float64) {
	rs.samples = append(rs.samples, r)
	if len(rs.samples) > rs.capacity {
		rs.samples = rs.samples[1:]
	}
}

// AddAll 批量追加收益率样本
func (rs *ReturnSeries) AddAll(returns []float64) {
	for _, r := range returns {
		rs.Add(r)
	}
}

// Len 返回样本数量
func (rs *ReturnSeries) Len() int {
	return len(rs.samples)
}

// Values 返回样本的副本，保持时间顺序
func (rs *ReturnSeries) Values() []float64 {
	out := make([]float64, len(rs.samples))
	copy(out, rs.samples)
	return out
}

// SortedValues 返回升序排序的样本副本
func (rs *ReturnSeries) SortedValues() []float64 {
	return sortedCopy(rs.samples)
}

// Mean 计算样本均值，空序列返回0
func (rs *ReturnSeries) Mean() float64 {
	return meanOf(rs.samples)
}

// StdDev 计算样本标准差(n-1)，样本数不足2时返回0
func (rs *ReturnSeries) StdDev() float64 {
	return stdDevOf(rs.samples)
}

// Percentile 返回分位数样本值
// 统一采用截断索引约定: index = floor(q * n)，q 取值 [0, 1)
// 整个引擎的所有统计均使用该约定，保证各方法之间可对照
func (rs *ReturnSeries) Percentile(q float64) float64 {
	return percentileOf(rs.samples, q)
}

// DownsideDeviation 计算下行偏差(只统计负收益样本的均方根)
// 没有下行样本时返回0
func (rs *ReturnSeries) DownsideDeviation() float64 {
	return downsideDeviationOf(rs.samples)
}

// MaxDrawdown 根据收益率序列隐含的净值曲线计算最大回撤(%, 0-100)
func (rs *ReturnSeries) MaxDrawdown() float64 {
	if len(rs.samples) == 0 {
		return 0
	}

	equity := 1.0
	peak := 1.0
	maxDD := 0.0
	for _, r := range rs.samples {
		equity *= 1 + r
		if equity > peak {
			peak = equity
		}
		if peak > 0 {
			dd := (peak - equity) / peak
			if dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD * 100
}

// meanOf 计算均值
func meanOf(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range samples {
		sum += v
	}
	return sum / float64(len(samples))
}

// stdDevOf 计算样本标准差(n-1)
func stdDevOf(samples []float64) float64 {
	n := len(samples)
	if n < 2 {
		return 0
	}
	mean := meanOf(samples)
	variance := 0.0
	for _, v := range samples {
		diff := v - mean
		variance += diff * diff
	}
	variance /= float64(n - 1)
	return math.Sqrt(variance)
}

// percentileOf 截断索引约定的分位数: sorted[floor(q * n)]
func percentileOf(samples []float64, q float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sorted := sortedCopy(samples)
	index := int(q * float64(len(sorted)))
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	if index < 0 {
		index = 0
	}
	return sorted[index]
}

// downsideDeviationOf 计算下行偏差
func downsideDeviationOf(samples []float64) float64 {
	sumSq := 0.0
	count := 0
	for _, v := range samples {
		if v < 0 {
			sumSq += v * v
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return math.Sqrt(sumSq / float64(count))
}

// sortedCopy 返回升序排序的副本
func sortedCopy(samples []float64) []float64 {
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)
	return sorted
}
