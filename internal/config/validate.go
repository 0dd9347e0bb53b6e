package config

import (
	"fmt"

	"pretackler/pkg/contract"
)

// Validate 做启动前的静态校验；任何失败都是配置错误（退出码 3 路径）。
func (c *Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("%w: version 不能为空", contract.ErrInvalidInput)
	}
	if c.Prompt == "" {
		return fmt.Errorf("%w: prompt 模板路径不能为空", contract.ErrInvalidInput)
	}
	if c.Model == "" {
		return fmt.Errorf("%w: model 不能为空", contract.ErrInvalidInput)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("%w: temperature 超出范围 [0,2]: %v", contract.ErrInvalidInput, c.Temperature)
	}
	if c.TopK < 1 {
		return fmt.Errorf("%w: top_k 必须 >= 1: %d", contract.ErrInvalidInput, c.TopK)
	}
	if c.ConcurrencyCeil != nil && *c.ConcurrencyCeil < 1 {
		return fmt.Errorf("%w: concurrency_ceil 必须 >= 1: %d", contract.ErrInvalidInput, *c.ConcurrencyCeil)
	}
	if c.RateLimitRPS < 0 || c.RateLimitBytesPerSec < 0 {
		return fmt.Errorf("%w: 限速参数不能为负", contract.ErrInvalidInput)
	}
	if c.ConnectTimeoutSec < 1 {
		return fmt.Errorf("%w: connect_timeout_sec 必须 >= 1: %d", contract.ErrInvalidInput, c.ConnectTimeoutSec)
	}
	if c.RequestTimeoutSec < 0 || c.StreamIdleTimeoutSec < 0 {
		return fmt.Errorf("%w: 超时秒数不能为负", contract.ErrInvalidInput)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("%w: max_attempts 必须 >= 1: %d", contract.ErrInvalidInput, c.MaxAttempts)
	}
	if c.LongFileBytesThreshold < 1 || c.LongFileLinesThreshold < 1 {
		return fmt.Errorf("%w: 长文件阈值必须 >= 1", contract.ErrInvalidInput)
	}
	if m := c.Multiplier(); m < 1 {
		return fmt.Errorf("%w: long_channel_timeout_multiplier 必须 >= 1: %v", contract.ErrInvalidInput, m)
	}
	if c.LongChannelRequestTimeoutSec != nil && *c.LongChannelRequestTimeoutSec < 0 {
		return fmt.Errorf("%w: long_channel_request_timeout_sec 不能为负", contract.ErrInvalidInput)
	}
	if c.LongChannelIdleTimeoutSec != nil && *c.LongChannelIdleTimeoutSec < 0 {
		return fmt.Errorf("%w: long_channel_idle_timeout_sec 不能为负", contract.ErrInvalidInput)
	}
	if c.InjectFault != "" && c.InjectFault != "429" && c.InjectFault != "5xx" && c.InjectFault != "idle" {
		return fmt.Errorf("%w: inject_fault 取值非法: %q（可选 429|5xx|idle）", contract.ErrInvalidInput, c.InjectFault)
	}
	return nil
}
