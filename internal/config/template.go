package config

// DefaultTemplate: --init-config 输出的起步配置（JSON，含全部知识面）。
// 指针类字段给出默认取值示例，便于按需显式覆盖。
const DefaultTemplate = `{
  "version": "v1",
  "prompt": "./prompt_template.md",
  "model": "deepseek-chat",
  "base_url": "https://api.deepseek.com/chat/completions",
  "temperature": 0.65,
  "top_k": 1,
  "concurrency_ceil": null,
  "rate_limit_rps": 0,
  "rate_limit_bytes_per_sec": 0,
  "connect_timeout_sec": 15,
  "request_timeout_sec": 45,
  "stream_idle_timeout_sec": 30,
  "skip_large_file_size_mb": 0,
  "skip_ext": [],
  "max_attempts": 5,
  "long_file_bytes_threshold": 524288,
  "long_file_lines_threshold": 4000,
  "long_channel_enabled": true,
  "long_channel_timeout_multiplier": 5.0,
  "long_channel_request_timeout_sec": null,
  "long_channel_idle_timeout_sec": null,
  "long_channel_adaptive_idle_enabled": true,
  "verbose": false,
  "log_dir": "logs",
  "inject_fault": ""
}
`
