package sched

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	"pretackler/internal/deepseek"
	"pretackler/internal/diag"
	"pretackler/internal/rate"
	"pretackler/internal/retry"
	"pretackler/internal/route"
	"pretackler/pkg/contract"
)

// 双通道调度：Normal 与 Long 各占一组并发槽位，槽位总数恒等于并发上限。
// 槽位空闲且本通道队列耗尽时从另一通道偷取，避免饿死。

// Deps: Worker 运转所需的协作方。
type Deps struct {
	Log          *diag.Logger
	Gate         rate.Gate // nil 表示不限速
	Client       *deepseek.Client
	SystemPrompt string
	Budget       retry.Budget
	// Policy: 路由策略，派发时刻解析 Long 通道的自适应 idle；
	// nil 表示不放宽也不回填采样。
	Policy  *route.Policy
	Verbose bool
}

// Split 计算槽位划分 (normal, long)：
// 按初始队列深度加权，两侧队列均非空时各至少 1 槽；单侧为空则全部槽位归另一侧。
// 恒有 normal+long == concurrency。
func Split(concurrency, nNormal, nLong int) (int, int) {
	if concurrency < 1 {
		concurrency = 1
	}
	if nLong <= 0 {
		return concurrency, 0
	}
	if nNormal <= 0 {
		return 0, concurrency
	}
	if concurrency == 1 {
		// 单槽无法两侧各一，归 Normal，靠偷取覆盖 Long
		return 1, 0
	}
	nn := int(math.Round(float64(concurrency) * float64(nNormal) / float64(nNormal+nLong)))
	if nn < 1 {
		nn = 1
	}
	if nn > concurrency-1 {
		nn = concurrency - 1
	}
	return nn, concurrency - nn
}

// Concurrency 解析生效并发数：显式上限裁剪到 [1, 文件数]；
// 未设置时按 CPU 核数 × 0.85 估算。
func Concurrency(ceil *int, totalFiles int) int {
	if totalFiles < 1 {
		totalFiles = 1
	}
	if ceil != nil {
		n := *ceil
		if n < 1 {
			n = 1
		}
		if n > totalFiles {
			n = totalFiles
		}
		return n
	}
	n := int(math.Ceil(float64(runtime.NumCPU()) * 0.85))
	if n < 1 {
		n = 1
	}
	if n > totalFiles {
		n = totalFiles
	}
	return n
}

// queues: 一对 FIFO 队列共用一把锁；偷取裁决由锁序天然给出。
type queues struct {
	mu     sync.Mutex
	normal []contract.WorkItem
	long   []contract.WorkItem
}

// pop 先取偏好通道，空了再偷另一通道；两边都空返回 false。
func (q *queues) pop(pref contract.Channel) (contract.WorkItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	first, second := &q.normal, &q.long
	if pref == contract.Long {
		first, second = &q.long, &q.normal
	}
	for _, src := range []*[]contract.WorkItem{first, second} {
		if len(*src) > 0 {
			it := (*src)[0]
			*src = (*src)[1:]
			return it, true
		}
	}
	return contract.WorkItem{}, false
}

type Scheduler struct {
	deps        Deps
	concurrency int
}

func New(concurrency int, deps Deps) *Scheduler {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Scheduler{deps: deps, concurrency: concurrency}
}

// Run 执行整批任务并返回运行报告。
// 上层取消后不再派发新任务，未开工条目记为取消失败；报告总是完整。
func (s *Scheduler) Run(ctx context.Context, items []contract.WorkItem) contract.RunReport {
	report := contract.RunReport{StartedAt: time.Now().UTC()}

	q := &queues{}
	for _, it := range items {
		if it.Channel == contract.Long {
			q.long = append(q.long, it)
		} else {
			q.normal = append(q.normal, it)
		}
	}
	nn, nl := Split(s.concurrency, len(q.normal), len(q.long))
	if nn+nl != s.concurrency {
		// 不变量破损属编程错误，立即暴露
		panic(fmt.Sprintf("槽位划分不变量破损: %d+%d != %d", nn, nl, s.concurrency))
	}
	s.deps.Log.Info("sched", fmt.Sprintf("槽位划分 normal=%d long=%d", nn, nl), "", map[string]string{
		"queue_normal": fmt.Sprintf("%d", len(q.normal)),
		"queue_long":   fmt.Sprintf("%d", len(q.long)),
	})
	if term := diag.GetTerminal(); term != nil {
		term.RunStart(s.concurrency, nn, nl, len(items), s.deps.Client.Model())
	}

	results := make(chan contract.ItemResult, len(items))
	var wg sync.WaitGroup
	spawn := func(pref contract.Channel, count int) {
		for i := 0; i < count; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				w := &worker{deps: s.deps}
				for {
					it, ok := q.pop(pref)
					if !ok {
						return
					}
					res := w.process(ctx, it)
					if term := diag.GetTerminal(); term != nil {
						term.ItemDone(it.AbsPath, res.Status == contract.StatusOK, res.Duration)
					}
					results <- res
				}
			}()
		}
	}
	spawn(contract.Normal, nn)
	spawn(contract.Long, nl)
	wg.Wait()
	close(results)

	for res := range results {
		report.Items = append(report.Items, res)
	}
	report.FinishedAt = time.Now().UTC()
	report.Finalize()
	return report
}
