package scan

import (
	"fmt"
	"path/filepath"
)

// 输出布局（与工件命名约定一致）：
// - 单文件输入：同目录 <name>.summary.<version>.md
// - 目录输入：<dir>.summaries.<version>/ 镜像源目录层级，工件同名规则

// SummarySibling 返回单文件输入的工件路径（同目录兄弟文件）。
func SummarySibling(input, version string) string {
	dir := filepath.Dir(input)
	name := filepath.Base(input)
	return filepath.Join(dir, fmt.Sprintf("%s.summary.%s.md", name, version))
}

// OutputRoot 返回目录输入的输出根：<parent>/<dir>.summaries.<version>。
func OutputRoot(inputDir, version string) string {
	dir := filepath.Clean(inputDir)
	name := filepath.Base(dir)
	parent := filepath.Dir(dir)
	return filepath.Join(parent, fmt.Sprintf("%s.summaries.%s", name, version))
}

// SummaryInOutput 返回目录输入中某相对路径文件的工件路径。
func SummaryInOutput(outputRoot, rel, version string) string {
	name := filepath.Base(rel)
	relDir := filepath.Dir(rel)
	return filepath.Join(outputRoot, relDir, fmt.Sprintf("%s.summary.%s.md", name, version))
}
