package deepseek

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"pretackler/pkg/contract"
)

// DeepSeek chat completions 流式客户端。
// 只负责发起请求与状态码映射；SSE 消费在 stream 包。

const (
	DefaultBaseURL        = "https://api.deepseek.com/chat/completions"
	DefaultModel          = "deepseek-chat"
	DefaultTemperature    = 0.65
	DefaultTopK           = 1
	DefaultConnectTimeout = 15 * time.Second
)

// Options: 客户端构造配置；零值字段取默认。
type Options struct {
	BaseURL        string
	Model          string
	Temperature    float64
	TopK           int
	ConnectTimeout time.Duration
	// APIKey: Bearer 凭证。只进请求头，任何日志与错误消息不得出现。
	APIKey string
	// Transport: 注入自定义 RoundTripper（故障注入用）；nil 走默认。
	Transport http.RoundTripper
}

type Client struct {
	hc    *http.Client
	opts  Options
	model string
}

func New(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.Temperature == 0 {
		opts.Temperature = DefaultTemperature
	}
	if opts.TopK == 0 {
		opts.TopK = DefaultTopK
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	rt := opts.Transport
	if rt == nil {
		// 连接超时独立于整体超时；整体由尝试级 context 控制
		rt = &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   opts.ConnectTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   opts.ConnectTimeout,
			ResponseHeaderTimeout: 0,
			MaxIdleConns:          64,
			IdleConnTimeout:       90 * time.Second,
		}
	}
	return &Client{
		hc:    &http.Client{Transport: rt},
		opts:  opts,
		model: opts.Model,
	}
}

// Model 返回生效的模型名（运行摘要展示用）。
func (c *Client) Model() string { return c.model }

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type request struct {
	Model       string    `json:"model"`
	Stream      bool      `json:"stream"`
	Temperature float64   `json:"temperature"`
	TopK        int       `json:"top_k"`
	Messages    []message `json:"messages"`
}

// Stream 发起流式补全请求，成功返回响应体（SSE 流），调用方负责 Close。
// 状态码映射：429 -> ErrRateLimited；其余非 2xx -> HTTPStatusError
// （5xx/408 可重试、其余 4xx 终态，由 retry 包裁决）。
func (c *Client) Stream(ctx context.Context, systemPrompt, userMsg string) (io.ReadCloser, error) {
	body, err := json.Marshal(request{
		Model:       c.opts.Model,
		Stream:      true,
		Temperature: c.opts.Temperature,
		TopK:        c.opts.TopK,
		Messages: []message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userMsg},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("编码请求失败: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("构造请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求失败: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		msg := readErrBody(resp.Body)
		resp.Body.Close()
		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, fmt.Errorf("%w: %s", contract.ErrRateLimited, msg)
		}
		return nil, &contract.HTTPStatusError{Status: resp.StatusCode, Msg: msg}
	}
	return resp.Body, nil
}

// readErrBody 读取有限长度的错误响应体用作诊断消息。
func readErrBody(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 2048))
	s := strings.TrimSpace(string(b))
	if s == "" {
		return "(空响应体)"
	}
	return s
}
