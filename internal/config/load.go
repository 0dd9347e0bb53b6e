package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"pretackler/pkg/contract"
)

// LoadFile 把配置文件叠加到 dst 上（缺席字段保持原值）。
// 按扩展名选择解码器：.yaml/.yml 走 YAML，其余按 JSON。
// 未知字段一律拒绝，尽早暴露拼写错误。
func LoadFile(path string, dst *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: 读取配置文件失败: %v", contract.ErrInvalidInput, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(b))
		dec.KnownFields(true)
		if err := dec.Decode(dst); err != nil {
			return fmt.Errorf("%w: 解析 YAML 配置失败: %v", contract.ErrInvalidInput, err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.DisallowUnknownFields()
		if err := dec.Decode(dst); err != nil {
			return fmt.Errorf("%w: 解析 JSON 配置失败: %v", contract.ErrInvalidInput, err)
		}
	}
	return nil
}

// 环境变量覆盖面（配置文件之后、CLI 之前生效）。
const envPrefix = "PRETACKLER_"

// ApplyEnv 应用 PRETACKLER_* 环境变量覆盖。
// 只覆盖常用知识面；未设置的变量不触碰现值。
func ApplyEnv(dst *Config) error {
	if v, ok := lookupEnv("VERSION"); ok {
		dst.Version = v
	}
	if v, ok := lookupEnv("PROMPT"); ok {
		dst.Prompt = v
	}
	if v, ok := lookupEnv("MODEL"); ok {
		dst.Model = v
	}
	if v, ok := lookupEnv("BASE_URL"); ok {
		dst.BaseURL = v
	}
	if v, ok := lookupEnv("LOG_DIR"); ok {
		dst.LogDir = v
	}
	if v, ok := lookupEnv("VERBOSE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %sVERBOSE 取值非法: %q", contract.ErrInvalidInput, envPrefix, v)
		}
		dst.Verbose = b
	}
	if v, ok := lookupEnv("CONCURRENCY_CEIL"); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return fmt.Errorf("%w: %sCONCURRENCY_CEIL 取值非法: %q", contract.ErrInvalidInput, envPrefix, v)
		}
		dst.ConcurrencyCeil = &n
	}
	return nil
}

func lookupEnv(key string) (string, bool) {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}
