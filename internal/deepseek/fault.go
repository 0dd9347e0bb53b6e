package deepseek

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
)

// 故障注入（联调与重试路径验证用）。
// 注入点在传输层：被注入的请求不会到达真实上游。

type Fault string

const (
	FaultNone Fault = ""
	Fault429  Fault = "429"  // 返回 429
	Fault5xx  Fault = "5xx"  // 返回 503
	FaultIdle Fault = "idle" // 响应流发出一条增量后静默
)

// ParseFault 校验故障模式取值。
func ParseFault(s string) (Fault, error) {
	switch Fault(s) {
	case FaultNone, Fault429, Fault5xx, FaultIdle:
		return Fault(s), nil
	}
	return FaultNone, fmt.Errorf("未知故障模式: %q（可选 429|5xx|idle）", s)
}

// FaultTransport 在前 Times 次请求上注入指定故障，之后透传给 Next。
// Times<=0 表示每次都注入。
type FaultTransport struct {
	Mode  Fault
	Times int
	Next  http.RoundTripper

	seen atomic.Int64
}

func (ft *FaultTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	n := ft.seen.Add(1)
	if ft.Mode == FaultNone || (ft.Times > 0 && n > int64(ft.Times)) {
		next := ft.Next
		if next == nil {
			next = http.DefaultTransport
		}
		return next.RoundTrip(req)
	}
	switch ft.Mode {
	case Fault429:
		return syntheticResp(req, http.StatusTooManyRequests, `{"error":{"message":"injected rate limit"}}`), nil
	case Fault5xx:
		return syntheticResp(req, http.StatusServiceUnavailable, `{"error":{"message":"injected upstream failure"}}`), nil
	case FaultIdle:
		resp := syntheticResp(req, http.StatusOK, "")
		resp.Header.Set("Content-Type", "text/event-stream")
		resp.Body = &idleBody{
			head:   "data: {\"choices\":[{\"delta\":{\"content\":\"注入\"}}]}\n\n",
			done:   req.Context().Done(),
			closed: make(chan struct{}),
		}
		return resp, nil
	}
	return nil, fmt.Errorf("未知故障模式: %q", ft.Mode)
}

func syntheticResp(req *http.Request, status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Header:     make(http.Header),
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    req,
	}
}

// idleBody 先吐出一条增量，之后阻塞到请求 context 取消，模拟流空闲。
type idleBody struct {
	head   string
	done   <-chan struct{}
	closed chan struct{}
	once   atomic.Bool
	sent   bool
}

func (b *idleBody) Read(p []byte) (int, error) {
	if !b.sent {
		b.sent = true
		n := copy(p, b.head)
		return n, nil
	}
	select {
	case <-b.done:
		return 0, io.ErrUnexpectedEOF
	case <-b.closed:
		return 0, io.EOF
	}
}

func (b *idleBody) Close() error {
	if b.once.CompareAndSwap(false, true) && b.closed != nil {
		close(b.closed)
	}
	return nil
}
