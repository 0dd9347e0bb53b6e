package diag

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// 级别定义
type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "debug"
	case Info:
		return "info"
	case Warn:
		return "warn"
	case Error:
		return "error"
	default:
		return "info"
	}
}

// Logger 为最小结构化日志器：单行 JSON 输出到轮转文件；sink 失败时回退 stderr。
type Logger struct {
	corrID string
	level  Level
	sink   *RotatingFile
	mu     sync.Mutex
}

// NewLogger 通过配置的 level 初始化，日志写入 logs/ 目录，10m 轮转。
func NewLogger(corrID, level string) *Logger {
	return NewLoggerAt(corrID, level, "logs")
}

// NewLoggerAt 指定日志目录；dir 为空时不落盘，事件仅走 stderr。
func NewLoggerAt(corrID, level, dir string) *Logger {
	lvl := parseLevel(strings.TrimSpace(level))
	var sink *RotatingFile
	if dir != "" {
		sink = NewRotatingFile(dir, 10*1024*1024)
	}
	return &Logger{corrID: corrID, level: lvl, sink: sink}
}

func parseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return Debug
	case "warn":
		return Warn
	case "error":
		return Error
	default:
		return Info
	}
}

// Event 为标准事件结构。
// attempt 为条目内的尝试序号（1 起；非尝试级事件为空）。
type Event struct {
	Level   string            `json:"level"`
	TS      string            `json:"ts"`
	CorrID  string            `json:"corr_id"`
	Comp    string            `json:"comp"`
	Stage   string            `json:"stage"` // start|finish|error|info
	Code    string            `json:"code,omitempty"`
	DurMS   int64             `json:"dur_ms,omitempty"`
	Count   int64             `json:"count,omitempty"`
	File    string            `json:"file,omitempty"`
	Attempt string            `json:"attempt,omitempty"`
	Msg     string            `json:"msg"`
	KV      map[string]string `json:"kv,omitempty"`
}

// log 以最小开销写出事件，遵循级别。error 永不过滤。
func (l *Logger) log(lv Level, ev Event) {
	if lv < l.level {
		return
	}
	ev.Level = lv.String()
	ev.TS = NowUTC()
	ev.CorrID = l.corrID
	b, _ := json.Marshal(ev)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sink == nil {
		_, _ = os.Stderr.Write(append(b, '\n'))
		return
	}
	if err := l.sink.WriteLine(b); err != nil {
		fmt.Fprintf(os.Stderr, "logger sink error: %v\n", err)
		_, _ = os.Stderr.Write(append(b, '\n'))
	}
}

// Start 记录 start 事件；返回计时器用于 Finish。
func (l *Logger) Start(comp, msg string) *Timer {
	l.log(Info, Event{Comp: comp, Stage: "start", Msg: msg})
	return &Timer{l: l, comp: comp, t0: time.Now()}
}

// StartWith 记录带 file/attempt 的 start。
func (l *Logger) StartWith(comp, msg, file, attempt string) *Timer {
	l.log(Info, Event{Comp: comp, Stage: "start", File: file, Attempt: attempt, Msg: msg})
	return &Timer{l: l, comp: comp, file: file, attempt: attempt, t0: time.Now()}
}

// StartWithKV 记录带 file/attempt 与键值的 start。
func (l *Logger) StartWithKV(comp, msg, file, attempt string, kv map[string]string) *Timer {
	l.log(Info, Event{Comp: comp, Stage: "start", File: file, Attempt: attempt, Msg: msg, KV: kv})
	return &Timer{l: l, comp: comp, file: file, attempt: attempt, t0: time.Now()}
}

// Info 记录不成对的 info 事件（例如路由决策、退避等待）。
func (l *Logger) Info(comp, msg, file string, kv map[string]string) {
	l.log(Info, Event{Comp: comp, Stage: "info", File: file, Msg: msg, KV: kv})
}

// Error 记录 error 事件（不过滤）。
func (l *Logger) Error(comp, code, msg string, durSince *time.Time) {
	var dur int64
	if durSince != nil {
		dur = time.Since(*durSince).Milliseconds()
	}
	l.log(Error, Event{Comp: comp, Stage: "error", Code: code, DurMS: dur, Msg: msg})
}

// ErrorWith 支持 file/attempt。
func (l *Logger) ErrorWith(comp, code, msg string, durSince *time.Time, file, attempt string) {
	var dur int64
	if durSince != nil {
		dur = time.Since(*durSince).Milliseconds()
	}
	l.log(Error, Event{Comp: comp, Stage: "error", Code: code, DurMS: dur, Msg: msg, File: file, Attempt: attempt})
}

// ErrorWithKV 支持附带键值对（例如 HTTP 状态码、上游错误片段）。
func (l *Logger) ErrorWithKV(comp, code, msg string, durSince *time.Time, file, attempt string, kv map[string]string) {
	var dur int64
	if durSince != nil {
		dur = time.Since(*durSince).Milliseconds()
	}
	l.log(Error, Event{Comp: comp, Stage: "error", Code: code, DurMS: dur, Msg: msg, File: file, Attempt: attempt, KV: kv})
}

// Timer 用于 start→finish 计时。
type Timer struct {
	l       *Logger
	comp    string
	file    string
	attempt string
	t0      time.Time
}

// Finish 记录 finish；可选 count。
func (t *Timer) Finish(msg string, count int64) {
	if t == nil || t.l == nil {
		return
	}
	t.l.log(Info, Event{Comp: t.comp, Stage: "finish", DurMS: time.Since(t.t0).Milliseconds(), Count: count, File: t.file, Attempt: t.attempt, Msg: msg})
}

// DebugStart 输出调试级别的“start”类事件（仅在 level=debug 时生效）。
func (l *Logger) DebugStart(comp, msg, file, attempt string, kv map[string]string) {
	l.log(Debug, Event{Comp: comp, Stage: "start", File: file, Attempt: attempt, Msg: msg, KV: kv})
}
