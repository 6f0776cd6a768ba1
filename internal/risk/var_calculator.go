package risk

import (
	"context"
	"math"
	"math/rand"
	"sort"
)

// 样本数量下限策略
// 样本不足时返回零值而不是错误，风险流水线必须在数据不完整时继续运转
// 调用方不得把0解释为"无风险"
const (
	MinHistoricalSamples = 30 // 历史模拟法最少样本数
	MinParametricSamples = 2  // 参数法最少样本数
	MinCVaRSamples       = 10 // CVaR最少样本数

	// Monte Carlo 取消检查间隔(按模拟次数)
	monteCarloCancelCheckInterval = 1000
)

// 默认置信水平
var DefaultConfidenceLevels = []float64{0.95, 0.99}

// VarCalculator VaR计算器
// 提供历史模拟、Monte Carlo、参数法三种可互换的VaR计算方法和CVaR(期望损失)
// 所有方法统一使用截断索引分位数约定: index = floor((1-confidence) * n)
type VarCalculator struct {
	confidenceLevels []float64
	seed             int64 // Monte Carlo随机种子，保证测试可复现
}

// NewVarCalculator 创建VaR计算器
func NewVarCalculator(confidenceLevels []float64, seed int64) *VarCalculator {
	if len(confidenceLevels) == 0 {
		confidenceLevels = DefaultConfidenceLevels
	}
	levels := make([]float64, len(confidenceLevels))
	copy(levels, confidenceLevels)
	return &VarCalculator{
		confidenceLevels: levels,
		seed:             seed,
	}
}

// ConfidenceLevels 返回配置的置信水平副本
func (vc *VarCalculator) ConfidenceLevels() []float64 {
	levels := make([]float64, len(vc.confidenceLevels))
	copy(levels, vc.confidenceLevels)
	return levels
}

// HistoricalVaR 历史模拟法计算VaR
// returns 为日度(或其他统一周期)小数收益率
// 每个置信水平 c 取收益率的 (1-c) 分位数，乘以组合市值后取绝对值
// 样本数不足 MinHistoricalSamples 时返回全零映射
func (vc *VarCalculator) HistoricalVaR(portfolioValue float64, returns []float64) map[float64]float64 {
	result := vc.zeroMap()
	if len(returns) < MinHistoricalSamples {
		return result
	}

	sorted := sortedCopy(returns)
	for _, confidence := range vc.confidenceLevels {
		value := tailValue(sorted, confidence)
		result[confidence] = math.Abs(value) * portfolioValue
	}
	return result
}

// MonteCarloVaR Monte Carlo模拟法计算VaR
// 以给定均值/标准差抽取 numSimulations * horizonDays 个独立正态样本，
// 每次模拟对持有期求和，再对模拟分布取分位数
// 相同种子下结果确定，可复现；长时间运行通过ctx支持协作式取消
func (vc *VarCalculator) MonteCarloVaR(
	ctx context.Context,
	portfolioValue float64,
	meanReturn float64,
	stdReturn float64,
	numSimulations int,
	horizonDays int,
) (map[float64]float64, error) {
	result := vc.zeroMap()
	if numSimulations <= 0 || horizonDays <= 0 {
		return result, nil
	}

	rng := rand.New(rand.NewSource(vc.seed))
	simulated := make([]float64, numSimulations)

	for i := 0; i < numSimulations; i++ {
		// 周期性检查取消信号，避免大规模模拟时无法中断
		if i%monteCarloCancelCheckInterval == 0 {
			select {
			case <-ctx.Done():
				return vc.zeroMap(), ctx.Err()
			default:
			}
		}

		total := 0.0
		for d := 0; d < horizonDays; d++ {
			total += meanReturn + stdReturn*rng.NormFloat64()
		}
		simulated[i] = total
	}

	sort.Float64s(simulated)
	for _, confidence := range vc.confidenceLevels {
		value := tailValue(simulated, confidence)
		result[confidence] = math.Abs(value) * portfolioValue
	}
	return result, nil
}

// ParametricVaR 参数法(方差-协方差法)计算VaR，假设收益率服从正态分布
// VaR = |mean - z(c)*std| * sqrt(horizonDays) * portfolioValue
// 样本数不足 MinParametricSamples 时返回全零映射
func (vc *VarCalculator) ParametricVaR(portfolioValue float64, returns []float64, horizonDays int) map[float64]float64 {
	result := vc.zeroMap()
	if len(returns) < MinParametricSamples {
		return result
	}
	if horizonDays <= 0 {
		horizonDays = 1
	}

	mean := meanOf(returns)
	std := stdDevOf(returns)
	horizonScale := math.Sqrt(float64(horizonDays))

	for _, confidence := range vc.confidenceLevels {
		z := zScore(confidence)
		result[confidence] = math.Abs(mean-z*std) * horizonScale * portfolioValue
	}
	return result
}

// CVaR 计算条件VaR(期望损失)
// 取分位数阈值及其以下所有样本的均值，尾部只有一个元素时与历史VaR相等
// 样本数不足 MinCVaRSamples 时返回0
func (vc *VarCalculator) CVaR(portfolioValue float64, returns []float64, confidence float64) float64 {
	if len(returns) < MinCVaRSamples {
		return 0
	}

	sorted := sortedCopy(returns)
	cutoff := tailIndex(len(sorted), confidence)

	sum := 0.0
	for i := 0; i <= cutoff; i++ {
		sum += sorted[i]
	}
	avg := sum / float64(cutoff+1)
	return math.Abs(avg) * portfolioValue
}

// zeroMap 为每个置信水平生成零值映射
func (vc *VarCalculator) zeroMap() map[float64]float64 {
	result := make(map[float64]float64, len(vc.confidenceLevels))
	for _, c := range vc.confidenceLevels {
		result[c] = 0
	}
	return result
}

// tailIndex 截断索引约定: floor((1-confidence) * n)，并收敛到合法范围
func tailIndex(n int, confidence float64) int {
	index := int((1 - confidence) * float64(n))
	if index >= n {
		index = n - 1
	}
	if index < 0 {
		index = 0
	}
	return index
}

// tailValue 取升序样本中置信水平对应的尾部样本值
func tailValue(sorted []float64, confidence float64) float64 {
	return sorted[tailIndex(len(sorted), confidence)]
}

// zScore 返回置信水平对应的标准正态分位数
// 常用水平使用精确常数，其余通过逆正态CDF近似计算
func zScore(confidence float64) float64 {
	switch confidence {
	case 0.99:
		return 2.326
	case 0.95:
		return 1.645
	case 0.90:
		return 1.282
	default:
		return normSInv(confidence)
	}
}

// normSInv 标准正态分布的逆CDF(Acklam有理近似，精度约1.15e-9)
func normSInv(p float64) float64 {
	if p <= 0 || p >= 1 {
		return 0
	}

	a := []float64{-3.969683028665376e+01, 2.209460984245205e+02, -2.759285104469687e+02,
		1.383577518672690e+02, -3.066479806614716e+01, 2.506628277459239e+00}
	b := []float64{-5.447609879822406e+01, 1.615858368580409e+02, -1.556989798598866e+02,
		6.680131188771972e+01, -1.328068155288572e+01}
	c := []float64{-7.784894002430293e-03, -3.223964580411365e-01, -2.400758277161838e+00,
		-2.549732539343734e+00, 4.374664141464968e+00, 2.938163982698783e+00}
	d := []float64{7.784695709041462e-03, 3.224671290700398e-01, 2.445134137142996e+00,
		3.754408661907416e+00}

	const (
		pLow  = 0.02425
		pHigh = 1 - pLow
	)

	switch {
	case p < pLow:
		q := math.Sqrt(-2 * math.Log(p))
		return (((((c[0]*q+c[1])*q+c[2])*q+c[3])*q+c[4])*q + c[5]) /
			((((d[0]*q+d[1])*q+d[2])*q+d[3])*q + 1)
	case p <= pHigh:
		q := p - 0.5
		r := q * q
		return (((((a[0]*r+a[1])*r+a[2])*r+a[3])*r+a[4])*r + a[5]) * q /
			(((((b[0]*r+b[1])*r+b[2])*r+b[3])*r+b[4])*r + 1)
	default:
		q := math.Sqrt(-2 * math.Log(1-p))
		return -(((((c[0]*q+c[1])*q+c[2])*q+c[3])*q+c[4])*q + c[5]) /
			((((d[0]*q+d[1])*q+d[2])*q+d[3])*q + 1)
	}
}
