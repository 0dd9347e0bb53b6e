package contract

import (
	"errors"
	"fmt"
	"net/http"
)

// 最小错误分类（用于上层重试/汇总判定）。
var (
	// ErrRateLimited: 上游 429。
	ErrRateLimited = errors.New("rate limited")
	// ErrStreamIdle: 流式响应空闲超时（idle 看门狗触发）。
	ErrStreamIdle = errors.New("stream idle timeout")
	// ErrStreamUnfinished: 连接在 [DONE] 哨兵前结束。
	ErrStreamUnfinished = errors.New("stream ended before [DONE]")
	// ErrResponseInvalid: 流式载荷不符合约定 schema。
	ErrResponseInvalid = errors.New("response invalid")
	// ErrInvalidInput: 配置/输入非法（启动前快速失败）。
	ErrInvalidInput = errors.New("invalid input")
)

// HTTPStatusError 承载上游非 2xx 状态的最小诊断信息。
// 实现 Timeout/Temporary 以便按网络错误分类：408 视为超时、5xx 视为临时。
type HTTPStatusError struct {
	Status int
	Msg    string
}

func (e *HTTPStatusError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("deepseek upstream %d", e.Status)
	}
	return fmt.Sprintf("deepseek upstream %d: %s", e.Status, e.Msg)
}

func (e *HTTPStatusError) Timeout() bool   { return e.Status == http.StatusRequestTimeout }
func (e *HTTPStatusError) Temporary() bool { return e.Status/100 == 5 }

func (e *HTTPStatusError) UpstreamStatus() int     { return e.Status }
func (e *HTTPStatusError) UpstreamMessage() string { return e.Msg }

// UpstreamError: 可选诊断接口（供日志记录 HTTP 状态与消息片段）。
type UpstreamError interface {
	error
	UpstreamStatus() int
	UpstreamMessage() string
}
