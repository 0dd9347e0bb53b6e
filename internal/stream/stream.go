package stream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"pretackler/pkg/contract"
)

// SSE 行协议：以 "data:" 为前缀的事件载荷，终止哨兵为 "[DONE]"。
// 每条载荷是 {"choices":[{"delta":{"content":"..."}}]} 形态的增量。

var donePayload = []byte("[DONE]")

// chunk: 单条增量载荷的解码目标。只取用到的字段。
type chunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// Options: 单次流式消费的行为配置。
type Options struct {
	// IdleTimeout: 相邻 chunk 的最大间隔；0 表示不设看门狗。
	IdleTimeout time.Duration
	// Abort: 看门狗触发时中断底层读取（通常是尝试级 context 的 cancel）。
	// IdleTimeout > 0 时必须提供。
	Abort context.CancelFunc
	// SampleIntervals: 记录相邻 chunk 间隔（自适应 idle 的样本来源）。
	SampleIntervals bool
	// Clock: 测试注入；nil 取 time.Now。
	Clock func() time.Time
}

// Result: 消费结果。Intervals 仅在 SampleIntervals 开启时填充。
type Result struct {
	Bytes     int64
	Chunks    int
	Intervals []time.Duration
}

// Consume 逐行消费 SSE 流，将每条增量即时写入 out，直到 [DONE] 哨兵。
// 失败模式：
//   - 相邻 chunk 间隔超 IdleTimeout -> ErrStreamIdle（看门狗先 Abort 再翻译读错误）
//   - 流在哨兵前结束 -> ErrStreamUnfinished
//   - 载荷无法解码 -> ErrResponseInvalid（响应损坏，不重试）
//
// out 的写入是增量的；调用方负责失败时丢弃半成品。
func Consume(ctx context.Context, body io.Reader, out io.Writer, opts Options) (Result, error) {
	var res Result
	now := opts.Clock
	if now == nil {
		now = time.Now
	}

	// 看门狗：每收到一条 chunk 重置；超时置标记并中断读取。
	var idleFired atomic.Bool
	var dog *time.Timer
	if opts.IdleTimeout > 0 && opts.Abort != nil {
		dog = time.AfterFunc(opts.IdleTimeout, func() {
			idleFired.Store(true)
			opts.Abort()
		})
		defer dog.Stop()
	}

	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)

	done := false
	last := now()
	for sc.Scan() {
		line := sc.Bytes()
		if !bytes.HasPrefix(line, []byte("data:")) {
			continue // 注释行与空行
		}
		payload := bytes.TrimSpace(line[len("data:"):])
		if len(payload) == 0 {
			continue
		}
		if dog != nil {
			dog.Reset(opts.IdleTimeout)
		}
		if bytes.Equal(payload, donePayload) {
			done = true
			break
		}
		if opts.SampleIntervals {
			t := now()
			if res.Chunks > 0 {
				res.Intervals = append(res.Intervals, t.Sub(last))
			}
			last = t
		}
		var c chunk
		if err := json.Unmarshal(payload, &c); err != nil {
			return res, fmt.Errorf("%w: 载荷解码失败: %v", contract.ErrResponseInvalid, err)
		}
		res.Chunks++
		for _, ch := range c.Choices {
			if ch.Delta.Content == "" {
				continue
			}
			n, err := io.WriteString(out, ch.Delta.Content)
			res.Bytes += int64(n)
			if err != nil {
				return res, fmt.Errorf("写入工件失败: %w", err)
			}
		}
	}
	if dog != nil {
		dog.Stop()
	}

	if err := sc.Err(); err != nil {
		if idleFired.Load() {
			return res, fmt.Errorf("%w: %v 无新 chunk", contract.ErrStreamIdle, opts.IdleTimeout)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, ctxErr
		}
		return res, fmt.Errorf("读取响应流失败: %w", err)
	}
	if !done {
		// EOF 但没等到哨兵
		if idleFired.Load() {
			return res, fmt.Errorf("%w: %v 无新 chunk", contract.ErrStreamIdle, opts.IdleTimeout)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, ctxErr
		}
		return res, fmt.Errorf("%w: 流在终止哨兵前结束", contract.ErrStreamUnfinished)
	}
	return res, nil
}
