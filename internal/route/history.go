package route

import (
	"sort"
	"sync"
	"time"
)

// historyCap: 样本保留窗口。有界环形缓冲 256 条，
// 足以平滑近期抖动又不放大早期慢样本的影响。
const historyCap = 256

// History: 跨 Worker 共享的流间隔样本池（Long 通道成功流回填）。
// 互斥段极短，绝不跨网络 I/O 持锁。
type History struct {
	mu      sync.Mutex
	samples [historyCap]time.Duration
	next    int
	filled  int
}

func NewHistory() *History { return &History{} }

// Record 写入一个 chunk 间隔样本（<=0 忽略）。
func (h *History) Record(d time.Duration) {
	if d <= 0 {
		return
	}
	h.mu.Lock()
	h.samples[h.next] = d
	h.next = (h.next + 1) % historyCap
	if h.filled < historyCap {
		h.filled++
	}
	h.mu.Unlock()
}

// RecordAll 批量写入（流结束后一次性回填，减少锁次数）。
func (h *History) RecordAll(ds []time.Duration) {
	if len(ds) == 0 {
		return
	}
	h.mu.Lock()
	for _, d := range ds {
		if d <= 0 {
			continue
		}
		h.samples[h.next] = d
		h.next = (h.next + 1) % historyCap
		if h.filled < historyCap {
			h.filled++
		}
	}
	h.mu.Unlock()
}

// P95 返回样本 95 分位；无样本返回 0。
func (h *History) P95() time.Duration {
	h.mu.Lock()
	n := h.filled
	buf := make([]time.Duration, n)
	copy(buf, h.samples[:n])
	h.mu.Unlock()
	if n == 0 {
		return 0
	}
	sort.Slice(buf, func(i, j int) bool { return buf[i] < buf[j] })
	idx := (n*95 + 99) / 100
	if idx > 0 {
		idx--
	}
	return buf[idx]
}

// Len 返回当前样本数（诊断用）。
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.filled
}
