package config

import "time"

// Config: 全量运行配置。合并顺序 默认值 -> 配置文件 -> 环境变量 -> CLI。
// 指针字段区分“未设置”与显式取值（含显式 0）。
type Config struct {
	// Version: 工件命名中的版本段（<name>.summary.<version>.md）。
	Version string `json:"version" yaml:"version"`
	// Prompt: 系统提示词模板路径。
	Prompt string `json:"prompt" yaml:"prompt"`
	// Model: 上游模型名。
	Model string `json:"model" yaml:"model"`
	// BaseURL: 上游补全端点。
	BaseURL string `json:"base_url" yaml:"base_url"`
	// Temperature/TopK: 采样参数。
	Temperature float64 `json:"temperature" yaml:"temperature"`
	TopK        int     `json:"top_k" yaml:"top_k"`

	// ConcurrencyCeil: 并发上限；nil 为按 CPU 自适应估算。
	ConcurrencyCeil *int `json:"concurrency_ceil" yaml:"concurrency_ceil"`

	// 令牌桶限速；0 关闭对应维度。
	RateLimitRPS         float64 `json:"rate_limit_rps" yaml:"rate_limit_rps"`
	RateLimitBytesPerSec int64   `json:"rate_limit_bytes_per_sec" yaml:"rate_limit_bytes_per_sec"`

	// 基准超时（秒）。RequestTimeoutSec/StreamIdleTimeoutSec 为 Normal 通道取值。
	ConnectTimeoutSec    int64 `json:"connect_timeout_sec" yaml:"connect_timeout_sec"`
	RequestTimeoutSec    int64 `json:"request_timeout_sec" yaml:"request_timeout_sec"`
	StreamIdleTimeoutSec int64 `json:"stream_idle_timeout_sec" yaml:"stream_idle_timeout_sec"`

	// 枚举过滤。
	SkipLargeFileSizeMB int64    `json:"skip_large_file_size_mb" yaml:"skip_large_file_size_mb"`
	SkipExt             []string `json:"skip_ext" yaml:"skip_ext"`

	// MaxAttempts: 单文件尝试预算（含首次）。
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts"`

	// Long 通道路由。
	LongFileBytesThreshold int64    `json:"long_file_bytes_threshold" yaml:"long_file_bytes_threshold"`
	LongFileLinesThreshold int64    `json:"long_file_lines_threshold" yaml:"long_file_lines_threshold"`
	LongChannelEnabled     *bool    `json:"long_channel_enabled" yaml:"long_channel_enabled"`
	LongChannelMultiplier  *float64 `json:"long_channel_timeout_multiplier" yaml:"long_channel_timeout_multiplier"`
	// Long 通道超时覆盖（秒）；nil 未设置（按倍数），0 不限时。
	LongChannelRequestTimeoutSec *int64 `json:"long_channel_request_timeout_sec" yaml:"long_channel_request_timeout_sec"`
	LongChannelIdleTimeoutSec    *int64 `json:"long_channel_idle_timeout_sec" yaml:"long_channel_idle_timeout_sec"`
	LongChannelAdaptiveIdle      *bool  `json:"long_channel_adaptive_idle_enabled" yaml:"long_channel_adaptive_idle_enabled"`

	// 诊断。
	Verbose     bool   `json:"verbose" yaml:"verbose"`
	LogDir      string `json:"log_dir" yaml:"log_dir"`
	InjectFault string `json:"inject_fault" yaml:"inject_fault"`
}

// Defaults 返回内置默认值（与上游 CLI 的默认面一致）。
func Defaults() Config {
	return Config{
		Version:                "v1",
		Prompt:                 "./prompt_template.md",
		Model:                  "deepseek-chat",
		BaseURL:                "https://api.deepseek.com/chat/completions",
		Temperature:            0.65,
		TopK:                   1,
		ConnectTimeoutSec:      15,
		RequestTimeoutSec:      45,
		StreamIdleTimeoutSec:   30,
		MaxAttempts:            5,
		LongFileBytesThreshold: 512 * 1024,
		LongFileLinesThreshold: 4000,
		LogDir:                 "logs",
	}
}

// LongEnabled 解析 Long 通道开关（默认启用）。
func (c *Config) LongEnabled() bool {
	if c.LongChannelEnabled == nil {
		return true
	}
	return *c.LongChannelEnabled
}

// AdaptiveIdleEnabled 解析自适应 idle 开关（默认启用）。
func (c *Config) AdaptiveIdleEnabled() bool {
	if c.LongChannelAdaptiveIdle == nil {
		return true
	}
	return *c.LongChannelAdaptiveIdle
}

// Multiplier 解析 Long 通道超时倍数（默认 5.0）。
func (c *Config) Multiplier() float64 {
	if c.LongChannelMultiplier == nil {
		return 5.0
	}
	return *c.LongChannelMultiplier
}

// ConnectTimeout 等方法把秒数知识收敛在一处。
func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutSec) * time.Second
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec) * time.Second
}

func (c *Config) StreamIdleTimeout() time.Duration {
	return time.Duration(c.StreamIdleTimeoutSec) * time.Second
}

// LongRequestOverride 返回 Long 请求超时覆盖；nil 表示未设置。
func (c *Config) LongRequestOverride() *time.Duration {
	if c.LongChannelRequestTimeoutSec == nil {
		return nil
	}
	d := time.Duration(*c.LongChannelRequestTimeoutSec) * time.Second
	return &d
}

// LongIdleOverride 返回 Long idle 超时覆盖；nil 表示未设置。
func (c *Config) LongIdleOverride() *time.Duration {
	if c.LongChannelIdleTimeoutSec == nil {
		return nil
	}
	d := time.Duration(*c.LongChannelIdleTimeoutSec) * time.Second
	return &d
}

// SkipLargerThan 返回字节跳过阈值；0 表示不启用。
func (c *Config) SkipLargerThan() int64 {
	if c.SkipLargeFileSizeMB <= 0 {
		return 0
	}
	return c.SkipLargeFileSizeMB * 1024 * 1024
}
