package rate

import (
	"context"
	"sync"
	"time"

	"pretackler/pkg/contract"
)

// Limits: 共享预算配置。0 表示该维度不启用；两者皆 0 时 NewGate 返回 nil（调用侧按 no-op 处理）。
type Limits struct {
	RPS         float64 // 每秒请求数上限
	BytesPerSec int64   // 每秒发送字节上限（估算值）
}

// Ask: 一次放行申请。
type Ask struct {
	Requests int   // 默认为 1；必须 >=1
	Bytes    int64 // 预计发送字节（>=0）
}

// Gate: 限流闸门（并发安全）。发送前获取全部启用维度的令牌；
// 等待以协作式挂起实现，不计入重试预算。
type Gate interface {
	// Wait: 阻塞直到额度可用或 ctx 取消。
	Wait(ctx context.Context, a Ask) error
	// Try: 非阻塞尝试；不足时返回 false。
	Try(a Ask) bool
}

// NewGate 从静态配置构造闸门；clk 为空则使用 time.Now。
// 两个维度均未启用时返回 nil。
func NewGate(lim Limits, clk func() time.Time) Gate {
	if lim.RPS <= 0 && lim.BytesPerSec <= 0 {
		return nil
	}
	if clk == nil {
		clk = time.Now
	}
	g := &gate{clk: clk}
	now := clk()
	if lim.RPS > 0 {
		g.req = newBucket(lim.RPS, now)
	}
	if lim.BytesPerSec > 0 {
		g.byt = newBucket(float64(lim.BytesPerSec), now)
	}
	return g
}

type gate struct {
	clk func() time.Time
	mu  sync.Mutex
	req bucket // 请求维度
	byt bucket // 字节维度
}

type bucket struct {
	cap   float64
	level float64
	rate  float64 // 单位/秒
	last  time.Time
}

func newBucket(perSec float64, now time.Time) bucket {
	if perSec <= 0 {
		return bucket{}
	}
	// 容量取 1 秒额度，但不小于 1，允许单次大申请逐步积攒
	c := perSec
	if c < 1 {
		c = 1
	}
	return bucket{cap: c, level: c, rate: perSec, last: now}
}

func (b *bucket) enabled() bool { return b.rate > 0 }

func (b *bucket) refill(now time.Time) {
	if !b.enabled() {
		return
	}
	if now.Before(b.last) {
		// 单调性保护：若时钟回拨，视为无时间流逝
		return
	}
	dt := now.Sub(b.last).Seconds()
	if dt <= 0 {
		return
	}
	b.level += dt * b.rate
	if b.level > b.cap {
		b.level = b.cap
	}
	b.last = now
}

func (b *bucket) canTake(n float64) bool {
	if !b.enabled() || n <= 0 {
		return true
	}
	// 超过桶容量的申请按“攒到桶满”放行，避免永久饥饿
	if n > b.cap {
		return b.level >= b.cap
	}
	return b.level >= n
}

func (b *bucket) take(n float64) {
	if !b.enabled() || n <= 0 {
		return
	}
	b.level -= n
	if b.level < 0 {
		b.level = 0
	}
}

// waitSecFor 返回达到可消费 n 还需等待的秒数（向下近似）。
func (b *bucket) waitSecFor(n float64) float64 {
	if !b.enabled() || n <= 0 {
		return 0
	}
	need := n
	if need > b.cap {
		need = b.cap
	}
	deficit := need - b.level
	if deficit <= 0 {
		return 0
	}
	return deficit / b.rate
}

func (g *gate) Try(a Ask) bool {
	if a.Requests <= 0 || a.Bytes < 0 {
		return false
	}
	now := g.clk()
	g.mu.Lock()
	defer g.mu.Unlock()
	g.req.refill(now)
	g.byt.refill(now)
	if g.req.canTake(float64(a.Requests)) && g.byt.canTake(float64(a.Bytes)) {
		g.req.take(float64(a.Requests))
		g.byt.take(float64(a.Bytes))
		return true
	}
	return false
}

func (g *gate) Wait(ctx context.Context, a Ask) error {
	if a.Requests <= 0 || a.Bytes < 0 {
		return contract.ErrInvalidInput
	}
	// 最小睡眠粒度，避免忙等
	const minSleep = 10 * time.Millisecond
	for {
		// 快速取消
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		now := g.clk()
		g.mu.Lock()
		g.req.refill(now)
		g.byt.refill(now)
		if g.req.canTake(float64(a.Requests)) && g.byt.canTake(float64(a.Bytes)) {
			g.req.take(float64(a.Requests))
			g.byt.take(float64(a.Bytes))
			g.mu.Unlock()
			return nil
		}
		wr := g.req.waitSecFor(float64(a.Requests))
		wb := g.byt.waitSecFor(float64(a.Bytes))
		g.mu.Unlock()

		waitSec := wr
		if wb > waitSec {
			waitSec = wb
		}
		d := time.Duration(waitSec*float64(time.Second) + float64(minSleep))
		if d < minSleep {
			d = minSleep
		}
		// 分片睡眠以响应 ctx 取消
		if err := sleepCtx(ctx, d); err != nil {
			return err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	// 若 d 很长，分片为最多 200ms 的步长，及时响应取消
	const step = 200 * time.Millisecond
	for d > 0 {
		s := d
		if s > step {
			s = step
		}
		t := time.NewTimer(s)
		select {
		case <-ctx.Done():
			if !t.Stop() {
				<-t.C
			}
			return ctx.Err()
		case <-t.C:
		}
		d -= s
	}
	return nil
}

// 接口断言。
var _ Gate = (*gate)(nil)
