package scan

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Entry: 枚举产物（路由前的原始条目）。
type Entry struct {
	AbsPath   string
	RelPath   string // 相对输入根；单文件输入为基名
	ByteSize  int64
	LineCount int64
}

// Skip: 被过滤条目及原因（对外汇总用）。
type Skip struct {
	AbsPath string
	Reason  string
}

// Options: 枚举过滤配置。
type Options struct {
	// SkipExts: 跳过的扩展名（含点，小写比较），例如 ".png"。
	SkipExts []string
	// SkipLargerThan: 超过该字节数的文件跳过；0 表示不启用。
	SkipLargerThan int64
	// ExcludeDirNames: 跳过的目录基名（小写比较），例如 ".git"。
	ExcludeDirNames []string
	// BufSize: 行计数读缓冲；<=0 使用 64KiB。
	BufSize int
}

// Scanner 负责目录/单文件枚举：稳定字典序、不跟随目录符号链接、仅常规文件。
type Scanner struct {
	skipExt    map[string]struct{}
	excludeDir map[string]struct{}
	maxBytes   int64
	bufSize    int
}

func New(opts Options) *Scanner {
	s := &Scanner{
		skipExt:    make(map[string]struct{}),
		excludeDir: make(map[string]struct{}),
		maxBytes:   opts.SkipLargerThan,
		bufSize:    opts.BufSize,
	}
	if s.bufSize <= 0 {
		s.bufSize = 64 * 1024
	}
	for _, e := range opts.SkipExts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		s.skipExt[e] = struct{}{}
	}
	for _, d := range opts.ExcludeDirNames {
		if d == "" {
			continue
		}
		s.excludeDir[strings.ToLower(d)] = struct{}{}
	}
	return s
}

// Scan 枚举 root（文件或目录），返回条目与跳过记录。
// 目录按稳定字典序深度优先；条目顺序即后续通道内的出队顺序。
func (s *Scanner) Scan(ctx context.Context, root string) ([]Entry, []Skip, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, nil, err
	}
	var entries []Entry
	var skips []Skip
	if info.IsDir() {
		if err := s.walkDir(ctx, root, root, &entries, &skips); err != nil {
			return nil, nil, err
		}
		return entries, skips, nil
	}
	if !info.Mode().IsRegular() {
		return nil, nil, fmt.Errorf("输入不是常规文件或目录: %s", root)
	}
	e, skip, err := s.stat(ctx, root, filepath.Base(root))
	if err != nil {
		return nil, nil, err
	}
	if skip != nil {
		return nil, []Skip{*skip}, nil
	}
	return []Entry{*e}, nil, nil
}

func (s *Scanner) walkDir(ctx context.Context, base, dir string, out *[]Entry, skips *[]Skip) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	des, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	// 稳定顺序：字典序
	sort.Slice(des, func(i, j int) bool { return des[i].Name() < des[j].Name() })

	// 先目录（不跟随目录符号链接）
	for _, de := range des {
		if !de.IsDir() {
			continue
		}
		if _, skip := s.excludeDir[strings.ToLower(de.Name())]; skip {
			continue
		}
		if err := s.walkDir(ctx, base, filepath.Join(dir, de.Name()), out, skips); err != nil {
			return err
		}
	}
	// 再文件
	for _, de := range des {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if de.IsDir() {
			continue
		}
		p := filepath.Join(dir, de.Name())
		if de.Type()&os.ModeSymlink != 0 {
			t, err := os.Stat(p)
			if err != nil {
				return err
			}
			if !t.Mode().IsRegular() {
				continue
			}
		} else if !de.Type().IsRegular() {
			continue
		}
		rel, err := filepath.Rel(base, p)
		if err != nil {
			return err
		}
		e, skip, err := s.stat(ctx, p, rel)
		if err != nil {
			return err
		}
		if skip != nil {
			*skips = append(*skips, *skip)
			continue
		}
		*out = append(*out, *e)
	}
	return nil
}

// stat 采集单文件的字节数与行数，应用跳过过滤。
func (s *Scanner) stat(ctx context.Context, abs, rel string) (*Entry, *Skip, error) {
	if ext := strings.ToLower(filepath.Ext(abs)); ext != "" {
		if _, skip := s.skipExt[ext]; skip {
			return nil, &Skip{AbsPath: abs, Reason: fmt.Sprintf("扩展名被跳过: %s", ext)}, nil
		}
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return nil, nil, err
	}
	size := fi.Size()
	if s.maxBytes > 0 && size > s.maxBytes {
		return nil, &Skip{AbsPath: abs, Reason: fmt.Sprintf("文件过大被跳过: %d 字节", size)}, nil
	}
	lines, err := s.countLines(ctx, abs)
	if err != nil {
		return nil, nil, err
	}
	return &Entry{AbsPath: abs, RelPath: rel, ByteSize: size, LineCount: lines}, nil, nil
}

// countLines 单次缓冲扫描统计 '\n'；末行无换行时按一行计。
func (s *Scanner) countLines(ctx context.Context, path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	r := bufio.NewReaderSize(f, s.bufSize)
	var n int64
	lastByte := byte('\n')
	buf := make([]byte, s.bufSize)
	for {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		default:
		}
		m, err := r.Read(buf)
		if m > 0 {
			for _, b := range buf[:m] {
				if b == '\n' {
					n++
				}
			}
			lastByte = buf[m-1]
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, err
		}
	}
	if lastByte != '\n' {
		n++
	}
	return n, nil
}
