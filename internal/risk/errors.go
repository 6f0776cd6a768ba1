package risk

import (
	"fmt"
)

// AdmissionError 准入被拒绝的类型化错误
// 执行层需要根据该错误分支处理，因此携带结构化的拒绝信息
type AdmissionError struct {
	Symbol  string  // 交易对
	Size    float64 // 请求的仓位规模(USD)
	MaxSize float64 // 当前允许的最大规模(USD)，熔断类拒绝时为0
	Reason  string  // 人类可读的拒绝原因
}

// Error 实现error接口
func (e *AdmissionError) Error() string {
	return fmt.Sprintf("仓位准入被拒绝 [%s] 规模=%.2f: %s", e.Symbol, e.Size, e.Reason)
}

// IsAdmissionError 判断错误是否为准入拒绝
func IsAdmissionError(err error) (*AdmissionError, bool) {
	if err == nil {
		return nil, false
	}
	ae, ok := err.(*AdmissionError)
	return ae, ok
}
