package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	cfgpkg "pretackler/internal/config"
	"pretackler/internal/deepseek"
	"pretackler/internal/diag"
	"pretackler/internal/prompt"
	"pretackler/internal/rate"
	"pretackler/internal/retry"
	"pretackler/internal/route"
	"pretackler/internal/scan"
	"pretackler/internal/sched"
	"pretackler/pkg/contract"
)

// CLI：位置参数为输入路径（文件或目录）。
// 配置合并顺序：内置默认 -> 配置文件 -> 环境变量 -> 命令行。
// 退出码：0 全部成功；1 存在失败条目；3 配置错误。
func main() {
	os.Exit(run())
}

func run() int {
	start := time.Now()
	corrID := genCorrID()
	// 在任何 ENV 读取前加载工作目录 .env（不覆盖已有 ENV）
	_ = godotenv.Load()

	var (
		flagConfig     string
		flagInitDir    string
		flagStatus     bool
		flagVersion    string
		flagPrompt     string
		flagModel      string
		flagBaseURL    string
		flagTemp       float64
		flagTopK       int
		flagConc       int
		flagRPS        float64
		flagBPS        int64
		flagConnectSec int64
		flagRequestSec int64
		flagIdleSec    int64
		flagSkipMB     int64
		flagSkipExt    string
		flagAttempts   int
		flagLongBytes  int64
		flagLongLines  int64
		flagLongOn     bool
		flagLongMult   float64
		flagLongReqSec int64
		flagLongIdle   int64
		flagLongAdapt  bool
		flagVerbose    bool
		flagFault      string
		flagLogDir     string
	)
	flag.StringVar(&flagConfig, "config", "", "配置文件路径（JSON 或 YAML）；缺省读取 ./config.json（若存在）")
	flag.StringVar(&flagInitDir, "init-config", "", "在指定目录生成默认配置 config.json（已存在则跳过）")
	flag.BoolVar(&flagStatus, "status", true, "终端状态提示（stderr）。TTY 动态刷新；非 TTY 打点输出")
	flag.StringVar(&flagVersion, "version", "", "工件版本段（默认 v1）")
	flag.StringVar(&flagPrompt, "prompt", "", "提示词模板文件路径（默认 ./prompt_template.md）")
	flag.StringVar(&flagModel, "model", "", "调用的模型名称（默认 deepseek-chat）")
	flag.StringVar(&flagBaseURL, "base-url", "", "上游补全端点（覆盖配置）")
	flag.Float64Var(&flagTemp, "temperature", 0, "采样温度（默认 0.65）")
	flag.IntVar(&flagTopK, "top-k", 0, "Top-K 采样参数（默认 1）")
	flag.IntVar(&flagConc, "concurrency-ceil", 0, "并发上限；未设置时按 CPU 自适应估算")
	flag.Float64Var(&flagRPS, "rate-limit-rps", 0, "令牌桶限速：每秒请求数上限，默认关闭")
	flag.Int64Var(&flagBPS, "rate-limit-bytes-per-sec", 0, "令牌桶限速：每秒发送字节上限（估算），默认关闭")
	flag.Int64Var(&flagConnectSec, "connect-timeout", 0, "连接超时（秒，默认 15）")
	flag.Int64Var(&flagRequestSec, "request-timeout", 0, "整体请求超时（秒，默认 45）")
	flag.Int64Var(&flagIdleSec, "stream-idle-timeout", 0, "流式空闲超时（秒，默认 30）")
	flag.Int64Var(&flagSkipMB, "skip-large-file-size-mb", 0, "超过该大小（MB）的文件跳过")
	flag.StringVar(&flagSkipExt, "skip-ext", "", "按扩展名跳过（逗号分隔，不区分大小写）")
	flag.IntVar(&flagAttempts, "max-attempts", 0, "单文件尝试预算（含首次，默认 5）")
	flag.Int64Var(&flagLongBytes, "long-file-bytes-threshold", 0, "长/大文件字节阈值（默认 524288）")
	flag.Int64Var(&flagLongLines, "long-file-lines-threshold", 0, "长/大文件行数阈值（默认 4000）")
	flag.BoolVar(&flagLongOn, "long-channel-enabled", true, "启用长时通道（默认启用）")
	flag.Float64Var(&flagLongMult, "long-channel-timeout-multiplier", 0, "长通道超时放大倍数（默认 5.0）")
	flag.Int64Var(&flagLongReqSec, "long-channel-request-timeout", -1, "长通道请求超时（秒，0 不限时；未设置按倍数计算）")
	flag.Int64Var(&flagLongIdle, "long-channel-idle-timeout", -1, "长通道流式空闲超时（秒，0 不限时；未设置按倍数计算）")
	flag.BoolVar(&flagLongAdapt, "long-channel-adaptive-idle-enabled", true, "长通道自适应空闲超时（默认启用）")
	flag.BoolVar(&flagVerbose, "verbose", false, "开启更详细日志（等待/退避/HTTP 状态/空闲超时触发）")
	flag.StringVar(&flagFault, "inject-fault", "", "测试用故障注入：429|5xx|idle（仅本地验收）")
	flag.StringVar(&flagLogDir, "log-dir", "", "诊断日志目录（默认 logs）")
	flag.Parse()

	// --init-config: 生成模板并退出
	if dir := strings.TrimSpace(flagInitDir); dir != "" {
		if err := writeInitConfig(dir); err != nil {
			fmt.Fprintf(os.Stderr, "生成默认配置失败: %v\n", err)
			return 3
		}
		fmt.Fprintf(os.Stderr, "已生成 %s\n", filepath.Join(dir, "config.json"))
		return 0
	}

	cfg := cfgpkg.Defaults()
	cfgPath := strings.TrimSpace(flagConfig)
	if cfgPath == "" {
		if _, err := os.Stat("config.json"); err == nil {
			cfgPath = "config.json"
		}
	}
	if cfgPath != "" {
		if err := cfgpkg.LoadFile(cfgPath, &cfg); err != nil {
			fmt.Fprintf(os.Stderr, "配置错误: %v\n", err)
			return 3
		}
	}
	if err := cfgpkg.ApplyEnv(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "配置错误: %v\n", err)
		return 3
	}
	// 命令行只覆盖显式给出的旗标
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "version":
			cfg.Version = flagVersion
		case "prompt":
			cfg.Prompt = flagPrompt
		case "model":
			cfg.Model = flagModel
		case "base-url":
			cfg.BaseURL = flagBaseURL
		case "temperature":
			cfg.Temperature = flagTemp
		case "top-k":
			cfg.TopK = flagTopK
		case "concurrency-ceil":
			cfg.ConcurrencyCeil = &flagConc
		case "rate-limit-rps":
			cfg.RateLimitRPS = flagRPS
		case "rate-limit-bytes-per-sec":
			cfg.RateLimitBytesPerSec = flagBPS
		case "connect-timeout":
			cfg.ConnectTimeoutSec = flagConnectSec
		case "request-timeout":
			cfg.RequestTimeoutSec = flagRequestSec
		case "stream-idle-timeout":
			cfg.StreamIdleTimeoutSec = flagIdleSec
		case "skip-large-file-size-mb":
			cfg.SkipLargeFileSizeMB = flagSkipMB
		case "skip-ext":
			cfg.SkipExt = splitCSV(flagSkipExt)
		case "max-attempts":
			cfg.MaxAttempts = flagAttempts
		case "long-file-bytes-threshold":
			cfg.LongFileBytesThreshold = flagLongBytes
		case "long-file-lines-threshold":
			cfg.LongFileLinesThreshold = flagLongLines
		case "long-channel-enabled":
			cfg.LongChannelEnabled = &flagLongOn
		case "long-channel-timeout-multiplier":
			cfg.LongChannelMultiplier = &flagLongMult
		case "long-channel-request-timeout":
			cfg.LongChannelRequestTimeoutSec = &flagLongReqSec
		case "long-channel-idle-timeout":
			cfg.LongChannelIdleTimeoutSec = &flagLongIdle
		case "long-channel-adaptive-idle-enabled":
			cfg.LongChannelAdaptiveIdle = &flagLongAdapt
		case "verbose":
			cfg.Verbose = flagVerbose
		case "inject-fault":
			cfg.InjectFault = flagFault
		case "log-dir":
			cfg.LogDir = flagLogDir
		}
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "配置错误: %v\n", err)
		return 3
	}

	input := strings.TrimSpace(flag.Arg(0))
	if input == "" {
		fmt.Fprintln(os.Stderr, "配置错误: 缺少输入路径（文件或目录）")
		return 3
	}

	logLevel := "info"
	if cfg.Verbose {
		logLevel = "debug"
	}
	logger := diag.NewLoggerAt(corrID, logLevel, cfg.LogDir)
	term := diag.NewTerminal(os.Stderr, flagStatus)
	diag.SetTerminal(term)
	defer diag.SetTerminal(nil)

	apiKey, err := deepseek.LoadAPIKey()
	if err != nil {
		fmt.Fprintf(os.Stderr, "配置错误: %v\n", err)
		logger.Error("main", string(diag.Classify(err)), "密钥解析失败", &start)
		return 3
	}
	sysPrompt, err := prompt.LoadTemplate(cfg.Prompt)
	if err != nil {
		fmt.Fprintf(os.Stderr, "配置错误: %v\n", err)
		logger.Error("main", string(diag.Classify(err)), "提示词加载失败", &start)
		return 3
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rep, err := runBatch(ctx, logger, cfg, input, apiKey, sysPrompt)
	if err != nil {
		if errors.Is(err, contract.ErrInvalidInput) {
			fmt.Fprintf(os.Stderr, "配置错误: %v\n", err)
			return 3
		}
		fmt.Fprintf(os.Stderr, "运行失败: %v\n", err)
		logger.Error("main", string(diag.Classify(err)), "运行失败", &start)
		return 1
	}

	term.RunFinish(rep.Failed == 0, rep.Succeeded, rep.Failed, rep.Skipped, time.Since(start))
	printSummary(rep)
	if rep.Failed > 0 {
		return 1
	}
	return 0
}

// runBatch 完成枚举、路由、调度的主流程，返回完整运行报告。
func runBatch(ctx context.Context, logger *diag.Logger, cfg cfgpkg.Config, input, apiKey, sysPrompt string) (contract.RunReport, error) {
	var rep contract.RunReport

	absInput, err := filepath.Abs(input)
	if err != nil {
		return rep, fmt.Errorf("%w: 解析输入路径失败: %v", contract.ErrInvalidInput, err)
	}
	info, err := os.Stat(absInput)
	if err != nil {
		return rep, fmt.Errorf("%w: 输入路径不可用: %v", contract.ErrInvalidInput, err)
	}

	t := logger.Start("scan", "枚举输入")
	scanner := scan.New(scan.Options{
		SkipExts:        cfg.SkipExt,
		SkipLargerThan:  cfg.SkipLargerThan(),
		ExcludeDirNames: []string{".git"},
	})
	entries, skips, err := scanner.Scan(ctx, absInput)
	if err != nil {
		return rep, fmt.Errorf("枚举输入失败: %w", err)
	}
	t.Finish("枚举完成", int64(len(entries)))

	// 输出布局：单文件 -> 同目录兄弟工件；目录 -> 镜像输出根
	summaryPath := func(e scan.Entry) string {
		if !info.IsDir() {
			return scan.SummarySibling(e.AbsPath, cfg.Version)
		}
		return scan.SummaryInOutput(scan.OutputRoot(absInput, cfg.Version), e.RelPath, cfg.Version)
	}
	if info.IsDir() && len(entries) > 0 {
		root := scan.OutputRoot(absInput, cfg.Version)
		if err := os.MkdirAll(root, 0o755); err != nil {
			return rep, fmt.Errorf("创建输出根目录失败: %w", err)
		}
		for _, e := range entries {
			if err := os.MkdirAll(filepath.Dir(scan.SummaryInOutput(root, e.RelPath, cfg.Version)), 0o755); err != nil {
				return rep, fmt.Errorf("创建输出子目录失败: %w", err)
			}
		}
	}

	var hist *route.History
	if cfg.AdaptiveIdleEnabled() {
		hist = route.NewHistory()
	}
	policy := &route.Policy{
		BytesThreshold:      cfg.LongFileBytesThreshold,
		LinesThreshold:      cfg.LongFileLinesThreshold,
		LongEnabled:         cfg.LongEnabled(),
		Multiplier:          cfg.Multiplier(),
		RequestTimeout:      cfg.RequestTimeout(),
		IdleTimeout:         cfg.StreamIdleTimeout(),
		LongRequestOverride: cfg.LongRequestOverride(),
		LongIdleOverride:    cfg.LongIdleOverride(),
		AdaptiveIdle:        cfg.AdaptiveIdleEnabled(),
		History:             hist,
	}
	items := make([]contract.WorkItem, 0, len(entries))
	for _, e := range entries {
		it := policy.Classify(e, summaryPath(e))
		logger.DebugStart("route", "路由决策", e.AbsPath, "", map[string]string{
			"channel":         it.Channel.String(),
			"matched":         string(it.Matched),
			"request_timeout": it.RequestTimeout.String(),
			"idle_timeout":    it.IdleTimeout.String(),
		})
		items = append(items, it)
	}

	if len(items) == 0 {
		fmt.Fprintf(os.Stderr, "目录不包含可处理文件: %s\n", absInput)
		rep.StartedAt = time.Now().UTC()
		rep.FinishedAt = rep.StartedAt
	} else {
		fault, err := deepseek.ParseFault(cfg.InjectFault)
		if err != nil {
			return rep, fmt.Errorf("%w: %v", contract.ErrInvalidInput, err)
		}
		opts := deepseek.Options{
			BaseURL:        cfg.BaseURL,
			Model:          cfg.Model,
			Temperature:    cfg.Temperature,
			TopK:           cfg.TopK,
			ConnectTimeout: cfg.ConnectTimeout(),
			APIKey:         apiKey,
		}
		if fault != deepseek.FaultNone {
			opts.Transport = &deepseek.FaultTransport{Mode: fault, Times: 1}
		}
		client := deepseek.New(opts)
		gate := rate.NewGate(rate.Limits{RPS: cfg.RateLimitRPS, BytesPerSec: cfg.RateLimitBytesPerSec}, nil)

		conc := sched.Concurrency(cfg.ConcurrencyCeil, len(items))
		s := sched.New(conc, sched.Deps{
			Log:          logger,
			Gate:         gate,
			Client:       client,
			SystemPrompt: sysPrompt,
			Budget:       retry.NewBudget(cfg.MaxAttempts),
			Policy:       policy,
			Verbose:      cfg.Verbose,
		})
		rep = s.Run(ctx, items)
	}

	for _, sk := range skips {
		rep.Items = append(rep.Items, contract.ItemResult{
			Path:     sk.AbsPath,
			Status:   contract.StatusSkipped,
			ErrorMsg: sk.Reason,
		})
	}
	rep.Finalize()
	return rep, nil
}

// printSummary 打印逐条结果与总计（stdout，人读）。
func printSummary(rep contract.RunReport) {
	for _, it := range rep.Items {
		switch it.Status {
		case contract.StatusOK:
			continue
		case contract.StatusSkipped:
			fmt.Printf("跳过 %s: %s\n", it.Path, it.ErrorMsg)
		default:
			fmt.Printf("失败 %s（尝试 %d 次）: %s\n", it.Path, it.Attempts, it.ErrorMsg)
		}
	}
	fmt.Printf("PreTackler 完成：成功 %d，失败 %d，跳过 %d\n", rep.Succeeded, rep.Failed, rep.Skipped)
}

func writeInitConfig(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	p := filepath.Join(dir, "config.json")
	if _, err := os.Stat(p); err == nil {
		return nil // 已存在不覆盖
	}
	return os.WriteFile(p, []byte(cfgpkg.DefaultTemplate), 0o644)
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func genCorrID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return ""
	}
	return hex.EncodeToString(b[:])
}
