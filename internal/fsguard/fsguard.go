package fsguard

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Guard: 单工件的原子落盘护栏。
// 内容先写入同目录临时文件，Commit 时 fsync 后 rename 原子替换；
// 任一路径失败（含中途放弃）都不会留下半成品工件，最终路径要么是旧内容要么是完整新内容。
// 非并发安全：一次尝试独占一个 Guard。
type Guard struct {
	finalPath string
	tmpPath   string
	f         *os.File
	done      bool
}

// Begin 在最终路径同目录创建临时文件并返回护栏。
// 临时名带随机后缀，并发尝试互不踩踏。
func Begin(finalPath string) (*Guard, error) {
	dir := filepath.Dir(finalPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("创建输出目录失败: %w", err)
	}
	tmp := fmt.Sprintf("%s.tmp-%s", finalPath, uuid.NewString())
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("创建临时文件失败: %w", err)
	}
	return &Guard{finalPath: finalPath, tmpPath: tmp, f: f}, nil
}

// Write 追加一段内容到临时文件（流式增量写入）。
func (g *Guard) Write(p []byte) (int, error) {
	if g.done || g.f == nil {
		return 0, fmt.Errorf("护栏已结束: %s", g.finalPath)
	}
	return g.f.Write(p)
}

// Commit 落盘并原子替换最终路径：fsync 临时文件、关闭、rename、
// 尽力 fsync 父目录使重命名持久。
func (g *Guard) Commit() error {
	if g.done {
		return fmt.Errorf("护栏已结束: %s", g.finalPath)
	}
	g.done = true
	if err := g.f.Sync(); err != nil {
		g.f.Close()
		os.Remove(g.tmpPath)
		return fmt.Errorf("fsync 失败: %w", err)
	}
	if err := g.f.Close(); err != nil {
		os.Remove(g.tmpPath)
		return fmt.Errorf("关闭临时文件失败: %w", err)
	}
	g.f = nil
	if err := os.Rename(g.tmpPath, g.finalPath); err != nil {
		os.Remove(g.tmpPath)
		return fmt.Errorf("原子替换失败: %w", err)
	}
	syncDir(filepath.Dir(g.finalPath))
	return nil
}

// Discard 放弃本次写入并清除临时文件；可安全重复调用。
// Commit 之后调用为空操作。
func (g *Guard) Discard() {
	if g.done {
		return
	}
	g.done = true
	if g.f != nil {
		g.f.Close()
		g.f = nil
	}
	os.Remove(g.tmpPath)
}

// TempPath 返回临时文件路径（测试与诊断用）。
func (g *Guard) TempPath() string { return g.tmpPath }

// syncDir 尽力同步目录项；失败不影响提交结果（部分文件系统不支持）。
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	d.Sync()
	d.Close()
}
