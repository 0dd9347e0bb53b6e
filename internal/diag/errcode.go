package diag

import (
	"context"
	"errors"
	"net"
	"os"
	"time"

	"pretackler/pkg/contract"
)

// Code 是最小错误分类代码。
// 仅用于日志/指标汇总，与重试判定（internal/retry）解耦。
type Code string

const (
	CodeUnknown  Code = "unknown"
	CodeNetwork  Code = "network"  // 连接失败/超时/流中断/上游 5xx
	CodeBudget   Code = "budget"   // 上游 429 限流
	CodeProtocol Code = "protocol" // 响应 schema 违约/非 429 4xx
	CodeConfig   Code = "config"   // 配置非法（启动前失败）
	CodeCancel   Code = "cancel"   // 外部取消
	CodeIO       Code = "io"       // 本地文件读写失败
)

// Classify 将错误归为最小分类。
// 说明：仅依赖哨兵错误与标准库错误类型，不做字符串匹配。
// 注意 DeadlineExceeded 归为 network（整体请求超时可重试），仅 Canceled 归为 cancel。
func Classify(err error) Code {
	if err == nil {
		return CodeUnknown
	}
	if errors.Is(err, context.Canceled) {
		return CodeCancel
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeNetwork
	}
	if errors.Is(err, contract.ErrRateLimited) {
		return CodeBudget
	}
	if errors.Is(err, contract.ErrStreamIdle) || errors.Is(err, contract.ErrStreamUnfinished) {
		return CodeNetwork
	}
	if errors.Is(err, contract.ErrResponseInvalid) {
		return CodeProtocol
	}
	if errors.Is(err, contract.ErrInvalidInput) {
		return CodeConfig
	}
	var hs *contract.HTTPStatusError
	if errors.As(err, &hs) {
		if hs.Status == 429 {
			return CodeBudget
		}
		if hs.Temporary() || hs.Timeout() {
			return CodeNetwork
		}
		return CodeProtocol
	}
	var perr *os.PathError
	if errors.As(err, &perr) {
		return CodeIO
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return CodeNetwork
	}
	return CodeUnknown
}

// NowUTC 返回 RFC3339 UTC 时间字符串（用于结构化日志字段 ts）。
func NowUTC() string { return time.Now().UTC().Format(time.RFC3339) }
