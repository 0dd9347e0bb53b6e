package main

import (
	"flag"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func resetFlag(args []string) {
	flag.CommandLine = flag.NewFlagSet(args[0], flag.ContinueOnError)
	os.Args = args
}

// 在隔离的临时工作目录内运行（避免捡起仓库的 config.json/.env）。
func chTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	old, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { os.Chdir(old) })
	return dir
}

func writePrompt(t *testing.T, dir string) string {
	t.Helper()
	p := filepath.Join(dir, "prompt_template.md")
	if err := os.WriteFile(p, []byte("你是代码摘要助手。"), 0o644); err != nil {
		t.Fatalf("write prompt: %v", err)
	}
	return p
}

func sseServer(t *testing.T, text string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, `data: {"choices":[{"delta":{"content":"`+text+`"}}]}`+"\n\n")
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSplitCSV(t *testing.T) {
	got := splitCSV(" png, jpg ,,gif")
	if len(got) != 3 || got[0] != "png" || got[2] != "gif" {
		t.Fatalf("splitCSV: %v", got)
	}
	if splitCSV("") != nil {
		t.Fatalf("空串应返回 nil")
	}
}

func TestGenCorrID(t *testing.T) {
	a, b := genCorrID(), genCorrID()
	if len(a) != 32 || a == b {
		t.Fatalf("corr id: %q %q", a, b)
	}
}

func TestRunInitConfig(t *testing.T) {
	dir := chTempDir(t)
	resetFlag([]string{"pretackler", "-init-config", dir})
	if code := run(); code != 0 {
		t.Fatalf("init-config 退出码 %d", code)
	}
	if _, err := os.Stat(filepath.Join(dir, "config.json")); err != nil {
		t.Fatalf("模板未生成: %v", err)
	}
	// 再次执行不覆盖
	resetFlag([]string{"pretackler", "-init-config", dir})
	if code := run(); code != 0 {
		t.Fatalf("重复 init-config 退出码 %d", code)
	}
}

func TestRunMissingInput(t *testing.T) {
	chTempDir(t)
	t.Setenv("DEEPSEEK_API_KEY", "k")
	t.Setenv("DEEPSEEK_API_KEY_FILE", "")
	resetFlag([]string{"pretackler"})
	if code := run(); code != 3 {
		t.Fatalf("缺输入应退出 3: %d", code)
	}
}

func TestRunMissingKey(t *testing.T) {
	dir := chTempDir(t)
	writePrompt(t, dir)
	t.Setenv("DEEPSEEK_API_KEY", "")
	t.Setenv("DEEPSEEK_API_KEY_FILE", "")
	input := filepath.Join(dir, "in.txt")
	os.WriteFile(input, []byte("x"), 0o644)
	resetFlag([]string{"pretackler", input})
	if code := run(); code != 3 {
		t.Fatalf("缺密钥应退出 3: %d", code)
	}
}

func TestRunSingleFileSuccess(t *testing.T) {
	dir := chTempDir(t)
	writePrompt(t, dir)
	srv := sseServer(t, "摘要内容")
	t.Setenv("DEEPSEEK_API_KEY", "k")
	t.Setenv("DEEPSEEK_API_KEY_FILE", "")

	input := filepath.Join(dir, "in.txt")
	os.WriteFile(input, []byte("hello"), 0o644)
	resetFlag([]string{"pretackler",
		"-base-url", srv.URL,
		"-status=false",
		"-log-dir", filepath.Join(dir, "logs"),
		input,
	})
	if code := run(); code != 0 {
		t.Fatalf("退出码 %d", code)
	}
	b, err := os.ReadFile(filepath.Join(dir, "in.txt.summary.v1.md"))
	if err != nil || string(b) != "摘要内容" {
		t.Fatalf("工件: %q %v", b, err)
	}
}

func TestRunDirectoryLayout(t *testing.T) {
	dir := chTempDir(t)
	writePrompt(t, dir)
	srv := sseServer(t, "ok")
	t.Setenv("DEEPSEEK_API_KEY", "k")
	t.Setenv("DEEPSEEK_API_KEY_FILE", "")

	src := filepath.Join(dir, "proj")
	os.MkdirAll(filepath.Join(src, "sub"), 0o755)
	os.WriteFile(filepath.Join(src, "a.go"), []byte("package a"), 0o644)
	os.WriteFile(filepath.Join(src, "sub", "b.go"), []byte("package b"), 0o644)

	resetFlag([]string{"pretackler",
		"-base-url", srv.URL,
		"-status=false",
		"-log-dir", filepath.Join(dir, "logs"),
		src,
	})
	if code := run(); code != 0 {
		t.Fatalf("退出码 %d", code)
	}
	root := filepath.Join(dir, "proj.summaries.v1")
	for _, rel := range []string{"a.go.summary.v1.md", filepath.Join("sub", "b.go.summary.v1.md")} {
		if _, err := os.Stat(filepath.Join(root, rel)); err != nil {
			t.Fatalf("工件缺失 %s: %v", rel, err)
		}
	}
}

// 上游持续 4xx：存在失败条目时退出码 1。
func TestRunFailureExitOne(t *testing.T) {
	dir := chTempDir(t)
	writePrompt(t, dir)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(404)
	}))
	defer srv.Close()
	t.Setenv("DEEPSEEK_API_KEY", "k")
	t.Setenv("DEEPSEEK_API_KEY_FILE", "")

	input := filepath.Join(dir, "in.txt")
	os.WriteFile(input, []byte("x"), 0o644)
	resetFlag([]string{"pretackler",
		"-base-url", srv.URL,
		"-status=false",
		"-log-dir", filepath.Join(dir, "logs"),
		input,
	})
	if code := run(); code != 1 {
		t.Fatalf("失败应退出 1: %d", code)
	}
}

func TestRunBadConfigFile(t *testing.T) {
	dir := chTempDir(t)
	p := filepath.Join(dir, "bad.json")
	os.WriteFile(p, []byte(`{"modle":"typo"}`), 0o644)
	resetFlag([]string{"pretackler", "-config", p, "input"})
	if code := run(); code != 3 {
		t.Fatalf("坏配置应退出 3: %d", code)
	}
}
