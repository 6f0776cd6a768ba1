package risk

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/life2you_mini/riskcore/internal/models"
)

// PositionLimitConfig 仓位限制配置
// 静态配置，极少变更，每次准入检查都会读取
type PositionLimitConfig struct {
	DefaultBaseLimit    float64            // 默认单仓基础限额(USD)
	BaseLimits          map[string]float64 // 按交易对覆盖的基础限额(USD)
	MaxConcentrationPct float64            // 单一资产最大集中度百分比
	MaxCorrelation      float64            // 资产间最大允许相关性
	MinLimit            float64            // 限额下限(USD)，调整系数再小也不低于该值
	BaseVolatility      float64            // 基准波动率，低于该值不做波动率惩罚
	LiquidityCoverage   float64            // 流动性覆盖倍数，仓位需有该倍数的可用流动性背书
}

// DefaultPositionLimitConfig 默认仓位限制配置
func DefaultPositionLimitConfig() PositionLimitConfig {
	return PositionLimitConfig{
		DefaultBaseLimit:    100000,
		BaseLimits:          map[string]float64{},
		MaxConcentrationPct: 20,
		MaxCorrelation:      0.7,
		MinLimit:            1000,
		BaseVolatility:      0.02,
		LiquidityCoverage:   5,
	}
}

// Validate 校验仓位限制配置
func (c *PositionLimitConfig) Validate() error {
	if c.DefaultBaseLimit <= 0 {
		return fmt.Errorf("默认基础限额必须大于0")
	}
	if c.MaxConcentrationPct <= 0 || c.MaxConcentrationPct > 100 {
		return fmt.Errorf("最大集中度百分比必须在0到100之间")
	}
	if c.MaxCorrelation <= 0 || c.MaxCorrelation > 1 {
		return fmt.Errorf("最大相关性必须在0到1之间")
	}
	if c.MinLimit <= 0 {
		return fmt.Errorf("限额下限必须大于0")
	}
	for symbol, limit := range c.BaseLimits {
		if limit <= 0 {
			return fmt.Errorf("交易对 %s 的基础限额必须大于0", symbol)
		}
	}
	return nil
}

// DynamicPositionLimit 动态仓位限制计算器
// 单仓最大规模 = 基础限额 * 波动率调整 * 流动性调整 * 集中度调整，且不低于下限
type DynamicPositionLimit struct {
	logger *zap.Logger
	cfg    PositionLimitConfig
}

// NewDynamicPositionLimit 创建动态仓位限制计算器
func NewDynamicPositionLimit(logger *zap.Logger, cfg PositionLimitConfig) *DynamicPositionLimit {
	if cfg.BaseVolatility <= 0 {
		cfg.BaseVolatility = 0.02
	}
	if cfg.LiquidityCoverage <= 0 {
		cfg.LiquidityCoverage = 5
	}
	if cfg.MinLimit <= 0 {
		cfg.MinLimit = 1000
	}
	return &DynamicPositionLimit{
		logger: logger.With(zap.String("component", "position_limit")),
		cfg:    cfg,
	}
}

// Config 返回当前配置
func (pl *DynamicPositionLimit) Config() PositionLimitConfig {
	return pl.cfg
}

// baseLimitFor 返回交易对的基础限额
func (pl *DynamicPositionLimit) baseLimitFor(symbol string) float64 {
	if limit, ok := pl.cfg.BaseLimits[symbol]; ok {
		return limit
	}
	return pl.cfg.DefaultBaseLimit
}

// MaxPosition 计算单个交易对当前允许的最大仓位规模(USD)
//   - 波动率调整: clamp(基准波动率/实际波动率, 0.1, 1.0)，波动越高限额越小
//   - 流动性调整: clamp(可用流动性/(基础限额*覆盖倍数), 0, 1)，流动性不足按比例惩罚
//   - 集中度调整: 已有持仓占组合比例超过集中度上限时按比例压缩，未超限为1.0
func (pl *DynamicPositionLimit) MaxPosition(
	symbol string,
	positions map[string]*models.Position,
	totalPortfolioValue float64,
	volatility float64,
	liquidityUSD float64,
) float64 {
	baseLimit := pl.baseLimitFor(symbol)

	volAdj := 1.0
	if volatility > 0 {
		volAdj = clamp(pl.cfg.BaseVolatility/volatility, 0.1, 1.0)
	}

	liqAdj := clamp(liquidityUSD/(baseLimit*pl.cfg.LiquidityCoverage), 0, 1)

	concAdj := 1.0
	if pos, ok := positions[symbol]; ok && pos != nil && totalPortfolioValue > 0 {
		share := pos.Size / totalPortfolioValue
		if share > 0 {
			concAdj = clamp((pl.cfg.MaxConcentrationPct/100)/share, 0, 1)
		}
	}

	limit := baseLimit * volAdj * liqAdj * concAdj
	if limit < pl.cfg.MinLimit {
		limit = pl.cfg.MinLimit
	}
	return limit
}

// CanOpenPosition 判断提议的仓位规模是否在动态限额之内
func (pl *DynamicPositionLimit) CanOpenPosition(
	symbol string,
	proposedSize float64,
	positions map[string]*models.Position,
	totalPortfolioValue float64,
	volatility float64,
	liquidityUSD float64,
) (bool, float64, string) {
	maxSize := pl.MaxPosition(symbol, positions, totalPortfolioValue, volatility, liquidityUSD)
	if proposedSize > maxSize {
		return false, maxSize, fmt.Sprintf("仓位规模 %.2f 超过当前动态限额 %.2f", proposedSize, maxSize)
	}
	return true, maxSize, ""
}

// clamp 将值收敛到[lo, hi]区间
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
