package diag

import (
	"context"
	"errors"
	"net"
	"os"
	"testing"
	"time"

	"pretackler/pkg/contract"
)

// 覆盖各分类分支。
func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Code
	}{
		{"nil", nil, CodeUnknown},
		{"cancel", context.Canceled, CodeCancel},
		{"deadline", context.DeadlineExceeded, CodeNetwork},
		{"rate", contract.ErrRateLimited, CodeBudget},
		{"idle", contract.ErrStreamIdle, CodeNetwork},
		{"unfinished", contract.ErrStreamUnfinished, CodeNetwork},
		{"protocol", contract.ErrResponseInvalid, CodeProtocol},
		{"config", contract.ErrInvalidInput, CodeConfig},
		{"http429", &contract.HTTPStatusError{Status: 429}, CodeBudget},
		{"http500", &contract.HTTPStatusError{Status: 500}, CodeNetwork},
		{"http404", &contract.HTTPStatusError{Status: 404}, CodeProtocol},
		{"io", &os.PathError{Op: "open", Path: "x", Err: os.ErrNotExist}, CodeIO},
		{"net", &net.DNSError{Err: "no such host"}, CodeNetwork},
		{"unknown", errors.New("boom"), CodeUnknown},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Fatalf("Classify(%v)=%s 预期 %s", tt.err, got, tt.want)
			}
		})
	}
}

// 包装后的错误也应命中同一分类。
func TestClassifyWrapped(t *testing.T) {
	err := errors.Join(errors.New("attempt 3"), contract.ErrStreamIdle)
	if got := Classify(err); got != CodeNetwork {
		t.Fatalf("包装错误分类失败: %s", got)
	}
}

// 轮转：写满后当前文件被重命名，新 current 继续可写。
func TestRotatingFile(t *testing.T) {
	dir := t.TempDir()
	w := NewRotatingFile(dir, 64)
	defer w.Close()
	for i := 0; i < 8; i++ {
		if err := w.WriteLine([]byte("0123456789012345678901234567890123456789")); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) < 2 {
		t.Fatalf("应发生轮转，实际文件数 %d", len(entries))
	}
}

func TestTerminalDisabled(t *testing.T) {
	tm := NewTerminal(nil, false)
	// no-op 路径不应 panic
	tm.RunStart(4, 2, 2, 10, "deepseek-chat")
	tm.ItemDone("a.txt", true, time.Millisecond)
	tm.RunFinish(true, 1, 0, 0, time.Second)
}
