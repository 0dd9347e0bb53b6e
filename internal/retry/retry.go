package retry

import (
	"context"
	"errors"
	"time"

	"pretackler/pkg/contract"
)

// 重试预算与退避参数（可配置，零值取默认）。
const (
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = 500 * time.Millisecond
	DefaultMaxDelay    = 30 * time.Second
)

// Budget: 单文件的尝试预算与退避曲线。
type Budget struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func NewBudget(maxAttempts int) Budget {
	b := Budget{MaxAttempts: maxAttempts, BaseDelay: DefaultBaseDelay, MaxDelay: DefaultMaxDelay}
	if b.MaxAttempts <= 0 {
		b.MaxAttempts = DefaultMaxAttempts
	}
	return b
}

// Delay 返回第 attempt 次失败后的退避时长（attempt 从 1 起）：
// min(base × 2^(attempt-1), max)。
func (b Budget) Delay(attempt int) time.Duration {
	base := b.BaseDelay
	if base <= 0 {
		base = DefaultBaseDelay
	}
	max := b.MaxDelay
	if max <= 0 {
		max = DefaultMaxDelay
	}
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

// Retryable 判定错误是否可重试。
// 可重试：限流(429)、5xx、408、连接失败、整体超时、流空闲超时、流未完成即断。
// 不可重试：其余 4xx、协议级响应损坏、本地 I/O 失败。
// 上层取消（context.Canceled）既不重试也不计失败分类，由调用方先行甄别。
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, contract.ErrRateLimited) ||
		errors.Is(err, contract.ErrStreamIdle) ||
		errors.Is(err, contract.ErrStreamUnfinished) {
		return true
	}
	if errors.Is(err, contract.ErrResponseInvalid) || errors.Is(err, contract.ErrInvalidInput) {
		return false
	}
	var ue contract.UpstreamError
	if errors.As(err, &ue) {
		st := ue.UpstreamStatus()
		return st == 429 || st == 408 || (st >= 500 && st <= 599)
	}
	// 无状态码的传输层错误（连接被拒、DNS 失败等）按网络瞬态处理
	return isTransportErr(err)
}

// Sleep 可取消地等待退避时长；上层取消时立即返回 ctx.Err()。
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
