package route

import (
	"testing"
	"time"

	"pretackler/internal/scan"
	"pretackler/pkg/contract"
)

func basePolicy() *Policy {
	return &Policy{
		BytesThreshold: 1000,
		LinesThreshold: 100,
		LongEnabled:    true,
		Multiplier:     5.0,
		RequestTimeout: 45 * time.Second,
		IdleTimeout:    30 * time.Second,
	}
}

// 阈值边界：等于阈值即入 Long，差一则 Normal。
func TestClassifyBoundary(t *testing.T) {
	p := basePolicy()
	cases := []struct {
		bytes, lines int64
		want         contract.Channel
		match        contract.ThresholdMatch
	}{
		{999, 99, contract.Normal, contract.MatchNone},
		{1000, 0, contract.Long, contract.MatchBytes},
		{0, 100, contract.Long, contract.MatchLines},
		{1000, 100, contract.Long, contract.MatchBytes},
	}
	for _, c := range cases {
		it := p.Classify(scan.Entry{AbsPath: "/f", ByteSize: c.bytes, LineCount: c.lines}, "/f.md")
		if it.Channel != c.want || it.Matched != c.match {
			t.Fatalf("bytes=%d lines=%d: 通道=%v 命中=%v", c.bytes, c.lines, it.Channel, it.Matched)
		}
	}
}

// Long 关闭时一律 Normal 与基准超时。
func TestClassifyLongDisabled(t *testing.T) {
	p := basePolicy()
	p.LongEnabled = false
	it := p.Classify(scan.Entry{ByteSize: 1 << 30}, "/f.md")
	if it.Channel != contract.Normal {
		t.Fatalf("关闭后仍入 Long: %v", it.Channel)
	}
	if it.RequestTimeout != 45*time.Second || it.IdleTimeout != 30*time.Second {
		t.Fatalf("基准超时错误: %v/%v", it.RequestTimeout, it.IdleTimeout)
	}
}

// Long 默认超时 = 基准 × 倍数。
func TestLongTimeoutsByMultiplier(t *testing.T) {
	p := basePolicy()
	it := p.Classify(scan.Entry{ByteSize: 2000}, "/f.md")
	if it.RequestTimeout != 225*time.Second {
		t.Fatalf("请求超时 %v", it.RequestTimeout)
	}
	if it.IdleTimeout != 150*time.Second {
		t.Fatalf("idle 超时 %v", it.IdleTimeout)
	}
}

// 显式覆盖优先于倍数；0 表示不限时。
func TestLongTimeoutOverrides(t *testing.T) {
	p := basePolicy()
	req := 10 * time.Second
	idle := time.Duration(0)
	p.LongRequestOverride = &req
	p.LongIdleOverride = &idle
	it := p.Classify(scan.Entry{ByteSize: 2000}, "/f.md")
	if it.RequestTimeout != 10*time.Second {
		t.Fatalf("覆盖未生效: %v", it.RequestTimeout)
	}
	if it.IdleTimeout != 0 {
		t.Fatalf("0 应保持不限时: %v", it.IdleTimeout)
	}
}

// 自适应仅放宽：p95×1.2 大于配置值时取大者，否则保持配置值。
// 放宽发生在派发时刻，Classify 只定格配置值。
func TestAdaptiveIdleWidens(t *testing.T) {
	p := basePolicy()
	p.AdaptiveIdle = true
	p.History = NewHistory()
	for i := 0; i < 100; i++ {
		p.History.Record(200 * time.Second)
	}
	it := p.Classify(scan.Entry{ByteSize: 2000}, "/f.md")
	if it.IdleTimeout != 150*time.Second {
		t.Fatalf("Classify 不应预放宽: %v", it.IdleTimeout)
	}
	if got := p.EffectiveIdle(it.Channel, it.IdleTimeout); got != 240*time.Second {
		t.Fatalf("放宽后 idle %v", got)
	}

	// 历史偏小时不缩短配置值
	p.History = NewHistory()
	p.History.Record(time.Second)
	if got := p.EffectiveIdle(contract.Long, 150*time.Second); got != 150*time.Second {
		t.Fatalf("自适应不应缩短: %v", got)
	}
}

// 派发时刻历史追加后，同一配置值解析出更宽的 idle。
func TestEffectiveIdleTracksHistory(t *testing.T) {
	p := basePolicy()
	p.AdaptiveIdle = true
	p.History = NewHistory()
	it := p.Classify(scan.Entry{ByteSize: 2000}, "/f.md")
	if got := p.EffectiveIdle(it.Channel, it.IdleTimeout); got != 150*time.Second {
		t.Fatalf("空历史应保持配置值: %v", got)
	}
	for i := 0; i < 100; i++ {
		p.History.Record(300 * time.Second)
	}
	if got := p.EffectiveIdle(it.Channel, it.IdleTimeout); got != 360*time.Second {
		t.Fatalf("历史追加后未放宽: %v", got)
	}
	// Normal 通道不参与放宽
	if got := p.EffectiveIdle(contract.Normal, 30*time.Second); got != 30*time.Second {
		t.Fatalf("Normal 通道被放宽: %v", got)
	}
}

// 显式 0 不被自适应触碰。
func TestAdaptiveNeverWidensExplicitZero(t *testing.T) {
	p := basePolicy()
	p.AdaptiveIdle = true
	p.History = NewHistory()
	p.History.Record(500 * time.Second)
	idle := time.Duration(0)
	p.LongIdleOverride = &idle
	it := p.Classify(scan.Entry{ByteSize: 2000}, "/f.md")
	if it.IdleTimeout != 0 {
		t.Fatalf("显式 0 被改写: %v", it.IdleTimeout)
	}
	if got := p.EffectiveIdle(it.Channel, it.IdleTimeout); got != 0 {
		t.Fatalf("显式 0 在派发时刻被放宽: %v", got)
	}
}

// 环形缓冲：超过容量后旧样本被覆盖。
func TestHistoryRing(t *testing.T) {
	h := NewHistory()
	for i := 0; i < historyCap; i++ {
		h.Record(100 * time.Second)
	}
	if h.P95() != 100*time.Second {
		t.Fatalf("p95 = %v", h.P95())
	}
	// 全量覆盖为小样本
	for i := 0; i < historyCap; i++ {
		h.Record(time.Second)
	}
	if h.P95() != time.Second {
		t.Fatalf("覆盖后 p95 = %v", h.P95())
	}
	if h.Len() != historyCap {
		t.Fatalf("样本数 %d", h.Len())
	}
}

func TestHistoryEmpty(t *testing.T) {
	h := NewHistory()
	if h.P95() != 0 {
		t.Fatalf("空历史 p95 应为 0")
	}
	h.Record(0)
	h.Record(-time.Second)
	if h.Len() != 0 {
		t.Fatalf("非法样本不应入池")
	}
}
