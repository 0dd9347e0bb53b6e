package prompt

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"pretackler/pkg/contract"
)

// DefaultTemplatePath: 系统提示词模板默认位置。
const DefaultTemplatePath = "./prompt_template.md"

// LoadTemplate 读取系统提示词模板。去除首尾空白后为空视为配置错误。
func LoadTemplate(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: 读取提示词文件失败: %v", contract.ErrInvalidInput, err)
	}
	s := strings.TrimSpace(string(b))
	if s == "" {
		return "", fmt.Errorf("%w: 提示词文件内容为空: %s", contract.ErrInvalidInput, path)
	}
	return s, nil
}

// BuildUserMessage 构造单文件的用户消息。
// 文件内容整体按 Base64 编码嵌入，绝不拆分或截断；空文件走固定文案。
func BuildUserMessage(fileName string, content []byte) string {
	lang := DetectLanguage(fileName)
	if len(content) == 0 {
		return fmt.Sprintf(
			"文件 `%s` 当前字节长度为 0。\n文件所使用的语言: %s\n请严格按照空文件输出规范：\n文件名: %s\n文件所使用的语言: %s\n文件存在的意义: 文件为空,初始化不能读取其意义。",
			fileName, lang, fileName, lang)
	}
	payload := base64.StdEncoding.EncodeToString(content)
	return fmt.Sprintf(
		"文件 `%s` 已按 Base64 编码传输。\n文件所使用的语言: %s\n以下为编码后的字节流：\n\n%s",
		fileName, lang, payload)
}
