package route

import (
	"time"

	"pretackler/internal/scan"
	"pretackler/pkg/contract"
)

// Policy: 路由与超时决策（一次构造，运行期只读；自适应历史除外）。
// 文件满足 字节阈值 或 行数阈值 之一即入 Long 通道。
type Policy struct {
	// BytesThreshold/LinesThreshold: Long 判定阈值（>=1）。
	BytesThreshold int64
	LinesThreshold int64
	// LongEnabled: 关闭时全部文件走 Normal 通道与基准超时。
	LongEnabled bool
	// Multiplier: Long 通道超时放大倍数（未显式覆盖时生效）。
	Multiplier float64

	// 基准超时（Normal 通道直接使用）。
	RequestTimeout time.Duration
	IdleTimeout    time.Duration

	// Long 通道显式覆盖：nil 表示未设置（按倍数计算）；0 表示不限时，优先于一切放宽。
	LongRequestOverride *time.Duration
	LongIdleOverride    *time.Duration

	// AdaptiveIdle: Long 通道自适应 idle 放宽（基于历史流间隔 p95 × 1.2）。
	AdaptiveIdle bool
	// History: 自适应样本池；AdaptiveIdle 启用时必须非 nil。
	History *History
}

// Classify 将枚举条目定型为 WorkItem：通道与配置超时一次确定。
// Long 通道 idle 的自适应放宽不在此处做：历史样本随运行推进而变化，
// 派发时刻经 EffectiveIdle 解析。
func (p *Policy) Classify(e scan.Entry, summaryPath string) contract.WorkItem {
	it := contract.WorkItem{
		AbsPath:     e.AbsPath,
		SummaryPath: summaryPath,
		ByteSize:    e.ByteSize,
		LineCount:   e.LineCount,
		Channel:     contract.Normal,
		Matched:     contract.MatchNone,
	}
	if p.LongEnabled {
		// 字节阈值优先作为命中记录；任一命中即 Long
		if e.ByteSize >= p.BytesThreshold {
			it.Channel = contract.Long
			it.Matched = contract.MatchBytes
		} else if e.LineCount >= p.LinesThreshold {
			it.Channel = contract.Long
			it.Matched = contract.MatchLines
		}
	}
	it.RequestTimeout, it.IdleTimeout = p.timeoutsFor(it.Channel)
	return it
}

// timeoutsFor 解析通道的配置超时。
// 规则：显式覆盖原样生效（0=不限时）；否则 Long=基准×倍数、Normal=基准。
func (p *Policy) timeoutsFor(ch contract.Channel) (req, idle time.Duration) {
	if ch == contract.Normal {
		return p.RequestTimeout, p.IdleTimeout
	}

	if p.LongRequestOverride != nil {
		req = *p.LongRequestOverride
	} else {
		req = scaled(p.RequestTimeout, p.Multiplier)
	}
	if p.LongIdleOverride != nil {
		idle = *p.LongIdleOverride
	} else {
		idle = scaled(p.IdleTimeout, p.Multiplier)
	}
	return req, idle
}

// EffectiveIdle 返回派发时刻的有效 idle 超时。
// Long 通道且启用自适应时按当前历史放宽：max(配置值, p95×1.2)。
// 配置值 0（含显式覆盖的 0）表示不限时，永不放宽；Normal 通道原样返回。
// 显式非零覆盖同样参与 max —— 放宽只会放大、不会缩短显式取值。
func (p *Policy) EffectiveIdle(ch contract.Channel, configured time.Duration) time.Duration {
	if ch != contract.Long || !p.AdaptiveIdle || p.History == nil || configured <= 0 {
		return configured
	}
	if p95 := p.History.P95(); p95 > 0 {
		if widened := time.Duration(float64(p95) * 1.2); widened > configured {
			return widened
		}
	}
	return configured
}

func scaled(base time.Duration, mult float64) time.Duration {
	if base <= 0 {
		return 0
	}
	if mult <= 1 {
		return base
	}
	return time.Duration(float64(base) * mult)
}
