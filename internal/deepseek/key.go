package deepseek

import (
	"fmt"
	"os"
	"strings"

	"pretackler/pkg/contract"
)

// 密钥解析优先级：
//  1. DEEPSEEK_API_KEY_FILE 指向的文件
//  2. 工作目录 ./deepseek_api_key.secret
//  3. DEEPSEEK_API_KEY 环境变量
//
// 解析到的密钥只进请求头；错误消息只提来源，不含密钥内容。

const (
	envKeyFile   = "DEEPSEEK_API_KEY_FILE"
	envKey       = "DEEPSEEK_API_KEY"
	localKeyFile = "deepseek_api_key.secret"
)

// LoadAPIKey 按优先级解析 API 密钥。找不到或为空返回配置错误。
func LoadAPIKey() (string, error) {
	if p := os.Getenv(envKeyFile); p != "" {
		b, err := os.ReadFile(p)
		if err != nil {
			return "", fmt.Errorf("%w: 读取 %s 指向的密钥文件失败: %v", contract.ErrInvalidInput, envKeyFile, err)
		}
		k := strings.TrimSpace(string(b))
		if k == "" {
			return "", fmt.Errorf("%w: %s 指向的密钥文件为空", contract.ErrInvalidInput, envKeyFile)
		}
		return k, nil
	}
	if b, err := os.ReadFile(localKeyFile); err == nil {
		k := strings.TrimSpace(string(b))
		if k != "" {
			return k, nil
		}
	}
	if k := strings.TrimSpace(os.Getenv(envKey)); k != "" {
		return k, nil
	}
	return "", fmt.Errorf("%w: 未找到 API 密钥（%s / ./%s / %s 均未提供）", contract.ErrInvalidInput, envKeyFile, localKeyFile, envKey)
}
