package contract

import "time"

// Channel: 调度通道（封闭集合）。Normal 处理常规文件；Long 处理大/长文件。
type Channel int

const (
	Normal Channel = iota
	Long
)

func (c Channel) String() string {
	if c == Long {
		return "long"
	}
	return "normal"
}

// ThresholdMatch: 路由命中的阈值类型（用于决策记录）。
type ThresholdMatch string

const (
	MatchNone  ThresholdMatch = ""      // Normal 通道
	MatchBytes ThresholdMatch = "bytes" // 字节阈值命中
	MatchLines ThresholdMatch = "lines" // 行数阈值命中
)

// WorkItem: 单文件的处理单元。枚举期创建；通道与超时由路由一次性确定；
// 入队后由唯一 Worker 独占直至终态。
type WorkItem struct {
	AbsPath     string
	SummaryPath string // 最终工件路径（<name>.summary.<version>.md）
	ByteSize    int64
	LineCount   int64

	Channel Channel
	Matched ThresholdMatch
	// RequestTimeout/IdleTimeout: 有效超时。0 表示不限时（不做任何截止检查）。
	RequestTimeout time.Duration
	IdleTimeout    time.Duration
}

// Status: 条目终态。
type Status string

const (
	StatusOK      Status = "ok"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// ItemResult: 单条目的对外结果（汇总与日志共用）。
type ItemResult struct {
	Path     string
	Channel  Channel
	Status   Status
	Attempts int
	// ErrorMsg: 失败/跳过的可读原因；成功为空。不含凭证信息。
	ErrorMsg string
	Duration time.Duration
	// Bytes: 工件写出的字节数（成功时）。
	Bytes int64
}

// RunReport: 一次运行的汇总。
type RunReport struct {
	Items      []ItemResult
	Succeeded  int
	Failed     int
	Skipped    int
	StartedAt  time.Time
	FinishedAt time.Time
}

// Finalize 重算计数（Items 填充完毕后调用一次）。
func (r *RunReport) Finalize() {
	r.Succeeded, r.Failed, r.Skipped = 0, 0, 0
	for i := range r.Items {
		switch r.Items[i].Status {
		case StatusOK:
			r.Succeeded++
		case StatusSkipped:
			r.Skipped++
		default:
			r.Failed++
		}
	}
}
