package deepseek

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pretackler/pkg/contract"
)

// 成功路径：鉴权头、请求体字段、流式响应体原样返回。
func TestStreamOK(t *testing.T) {
	var gotAuth string
	var gotReq map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &gotReq)
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL, APIKey: "sk-test", Model: "deepseek-chat"})
	body, err := c.Stream(context.Background(), "系统提示", "用户消息")
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer body.Close()
	if gotAuth != "Bearer sk-test" {
		t.Fatalf("鉴权头: %q", gotAuth)
	}
	if gotReq["model"] != "deepseek-chat" || gotReq["stream"] != true {
		t.Fatalf("请求体: %+v", gotReq)
	}
	if gotReq["temperature"] != 0.65 {
		t.Fatalf("默认温度: %v", gotReq["temperature"])
	}
	msgs := gotReq["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("消息数: %d", len(msgs))
	}
	raw, _ := io.ReadAll(body)
	if !strings.Contains(string(raw), "[DONE]") {
		t.Fatalf("响应体: %q", raw)
	}
}

// 状态码映射。
func TestStreamStatusMapping(t *testing.T) {
	status := 200
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		io.WriteString(w, `{"error":{"message":"boom"}}`)
	}))
	defer srv.Close()
	c := New(Options{BaseURL: srv.URL, APIKey: "k"})

	status = 429
	_, err := c.Stream(context.Background(), "s", "u")
	if !errors.Is(err, contract.ErrRateLimited) {
		t.Fatalf("429 应映射限流: %v", err)
	}

	status = 503
	_, err = c.Stream(context.Background(), "s", "u")
	var he *contract.HTTPStatusError
	if !errors.As(err, &he) || he.Status != 503 || !he.Temporary() {
		t.Fatalf("503 映射错误: %v", err)
	}

	status = 401
	_, err = c.Stream(context.Background(), "s", "u")
	if !errors.As(err, &he) || he.Status != 401 || he.Temporary() || he.Timeout() {
		t.Fatalf("401 映射错误: %v", err)
	}
}

// 错误消息不得包含密钥。
func TestStreamErrorOmitsKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(500)
	}))
	defer srv.Close()
	c := New(Options{BaseURL: srv.URL, APIKey: "sk-secret-value"})
	_, err := c.Stream(context.Background(), "s", "u")
	if err == nil || strings.Contains(err.Error(), "sk-secret-value") {
		t.Fatalf("错误消息泄露密钥: %v", err)
	}
}

// 尝试级 context 取消传导到请求。
func TestStreamCtxCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 必须先读完请求体：服务端只有在请求体耗尽后才会后台监视连接，
		// 客户端断开时 r.Context 才会取消，否则 srv.Close 永久阻塞。
		io.ReadAll(r.Body)
		<-r.Context().Done()
	}))
	defer srv.Close()
	c := New(Options{BaseURL: srv.URL, APIKey: "k"})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Stream(ctx, "s", "u")
	if err == nil || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("期望超时: %v", err)
	}
}

// 密钥解析优先级。
func TestLoadAPIKeyPriority(t *testing.T) {
	dir := t.TempDir()
	restore, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	defer os.Chdir(restore)

	t.Setenv(envKeyFile, "")
	t.Setenv(envKey, "")

	// 全空
	if _, err := LoadAPIKey(); !errors.Is(err, contract.ErrInvalidInput) {
		t.Fatalf("无密钥应报配置错误: %v", err)
	}

	// 环境变量兜底
	t.Setenv(envKey, "from-env")
	if k, _ := LoadAPIKey(); k != "from-env" {
		t.Fatalf("ENV 兜底: %q", k)
	}

	// 本地密钥文件优先于环境变量
	os.WriteFile(localKeyFile, []byte("from-local\n"), 0o600)
	if k, _ := LoadAPIKey(); k != "from-local" {
		t.Fatalf("本地文件应优先: %q", k)
	}

	// KEY_FILE 最高优先
	p := filepath.Join(dir, "explicit.secret")
	os.WriteFile(p, []byte(" from-file \n"), 0o600)
	t.Setenv(envKeyFile, p)
	if k, _ := LoadAPIKey(); k != "from-file" {
		t.Fatalf("KEY_FILE 应最高优先: %q", k)
	}

	// KEY_FILE 指向不存在的文件为硬错误，不回退
	t.Setenv(envKeyFile, filepath.Join(dir, "missing"))
	if _, err := LoadAPIKey(); !errors.Is(err, contract.ErrInvalidInput) {
		t.Fatalf("缺失 KEY_FILE 应报错: %v", err)
	}
}

// 故障注入：前 N 次命中后透传。
func TestFaultTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	ft := &FaultTransport{Mode: Fault429, Times: 2}
	c := New(Options{BaseURL: srv.URL, APIKey: "k", Transport: ft})
	for i := 0; i < 2; i++ {
		if _, err := c.Stream(context.Background(), "s", "u"); !errors.Is(err, contract.ErrRateLimited) {
			t.Fatalf("第 %d 次应注入 429: %v", i+1, err)
		}
	}
	body, err := c.Stream(context.Background(), "s", "u")
	if err != nil {
		t.Fatalf("第 3 次应透传: %v", err)
	}
	body.Close()
}

func TestParseFault(t *testing.T) {
	for _, ok := range []string{"", "429", "5xx", "idle"} {
		if _, err := ParseFault(ok); err != nil {
			t.Fatalf("%q 应合法: %v", ok, err)
		}
	}
	if _, err := ParseFault("timeout"); err == nil {
		t.Fatalf("非法取值应报错")
	}
}

// idle 故障：吐一条增量后静默，context 取消时读端解除阻塞。
func TestFaultIdle(t *testing.T) {
	ft := &FaultTransport{Mode: FaultIdle}
	c := New(Options{BaseURL: "http://unused.invalid", APIKey: "k", Transport: ft})
	ctx, cancel := context.WithCancel(context.Background())
	body, err := c.Stream(ctx, "s", "u")
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer body.Close()

	buf := make([]byte, 256)
	n, err := body.Read(buf)
	if err != nil || n == 0 {
		t.Fatalf("首块读取: n=%d err=%v", n, err)
	}
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()
	_, err = body.Read(buf)
	if err == nil {
		t.Fatalf("取消后读取应报错")
	}
}
