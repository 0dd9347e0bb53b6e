package sched

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"pretackler/internal/diag"
	"pretackler/internal/fsguard"
	"pretackler/internal/prompt"
	"pretackler/internal/rate"
	"pretackler/internal/retry"
	"pretackler/internal/stream"
	"pretackler/pkg/contract"
)

type worker struct {
	deps Deps
}

// process 执行单文件的完整生命周期：读取、构造消息、尝试循环、落盘。
// 任何失败都封闭在本条目内；上层取消立即终止且不再重试。
func (w *worker) process(ctx context.Context, it contract.WorkItem) contract.ItemResult {
	start := time.Now()
	res := contract.ItemResult{Path: it.AbsPath, Channel: it.Channel}
	log := w.deps.Log

	log.StartWithKV("worker", "条目开始", it.AbsPath, "", map[string]string{
		"channel":         it.Channel.String(),
		"matched":         string(it.Matched),
		"bytes":           fmt.Sprintf("%d", it.ByteSize),
		"lines":           fmt.Sprintf("%d", it.LineCount),
		"request_timeout": it.RequestTimeout.String(),
		"idle_timeout":    it.IdleTimeout.String(),
	})

	if err := ctx.Err(); err != nil {
		res.Status = contract.StatusFailed
		res.ErrorMsg = "运行被取消"
		res.Duration = time.Since(start)
		return res
	}

	content, err := os.ReadFile(it.AbsPath)
	if err != nil {
		log.ErrorWith("worker", string(diag.Classify(err)), fmt.Sprintf("读取输入失败: %v", err), &start, it.AbsPath, "")
		res.Status = contract.StatusFailed
		res.ErrorMsg = fmt.Sprintf("读取输入失败: %v", err)
		res.Duration = time.Since(start)
		return res
	}
	userMsg := prompt.BuildUserMessage(filepath.Base(it.AbsPath), content)

	var lastErr error
	for attempt := 1; attempt <= w.deps.Budget.MaxAttempts; attempt++ {
		res.Attempts = attempt

		// 限速额度在尝试预算之外获取；取消时直接收尾
		if w.deps.Gate != nil {
			if err := w.deps.Gate.Wait(ctx, rate.Ask{Requests: 1, Bytes: int64(len(userMsg))}); err != nil {
				res.Status = contract.StatusFailed
				res.ErrorMsg = "运行被取消"
				res.Duration = time.Since(start)
				return res
			}
		}

		bytes, err := w.attempt(ctx, it, userMsg)
		if err == nil {
			res.Status = contract.StatusOK
			res.Bytes = bytes
			res.Duration = time.Since(start)
			log.Info("worker", fmt.Sprintf("条目完成（第 %d 次尝试）", attempt), it.AbsPath, map[string]string{
				"channel":  it.Channel.String(),
				"artifact": it.SummaryPath,
				"bytes":    fmt.Sprintf("%d", bytes),
			})
			diag.IncOp("worker", "item", "success")
			diag.ObserveDuration("worker", "item", res.Duration.Milliseconds())
			return res
		}
		lastErr = err

		// 上层取消：不计分类、不退避
		if ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled) {
			res.Status = contract.StatusFailed
			res.ErrorMsg = "运行被取消"
			res.Duration = time.Since(start)
			return res
		}

		code := string(diag.Classify(err))
		retryable := retry.Retryable(err)
		diag.IncError("worker", code)
		log.ErrorWithKV("worker", code, fmt.Sprintf("尝试失败: %v", err), &start, it.AbsPath,
			fmt.Sprintf("%d/%d", attempt, w.deps.Budget.MaxAttempts), map[string]string{
				"retryable": fmt.Sprintf("%t", retryable),
				"channel":   it.Channel.String(),
			})
		if !retryable || attempt == w.deps.Budget.MaxAttempts {
			break
		}
		wait := w.deps.Budget.Delay(attempt)
		if w.deps.Verbose {
			log.DebugStart("worker", fmt.Sprintf("退避 %s 后重试", wait), it.AbsPath,
				fmt.Sprintf("%d/%d", attempt, w.deps.Budget.MaxAttempts), nil)
		}
		if err := retry.Sleep(ctx, wait); err != nil {
			res.Status = contract.StatusFailed
			res.ErrorMsg = "运行被取消"
			res.Duration = time.Since(start)
			return res
		}
	}

	res.Status = contract.StatusFailed
	res.ErrorMsg = fmt.Sprintf("%v", lastErr)
	res.Duration = time.Since(start)
	diag.IncOp("worker", "item", "error")
	diag.ObserveDuration("worker", "item", res.Duration.Milliseconds())
	return res
}

// attempt 执行一次完整请求：临时护栏、尝试级超时、流式消费、原子提交。
// 失败时护栏丢弃临时文件，最终路径不被触碰。
func (w *worker) attempt(ctx context.Context, it contract.WorkItem, userMsg string) (int64, error) {
	guard, err := fsguard.Begin(it.SummaryPath)
	if err != nil {
		return 0, err
	}
	defer guard.Discard()

	// 0 表示不限时：不挂整体截止
	var attemptCtx context.Context
	var cancel context.CancelFunc
	if it.RequestTimeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, it.RequestTimeout)
	} else {
		attemptCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	body, err := w.deps.Client.Stream(attemptCtx, w.deps.SystemPrompt, userMsg)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	// idle 在每次尝试时解析：先完成的 Long 流回填的样本立即惠及后续派发
	idle := it.IdleTimeout
	sample := false
	if p := w.deps.Policy; p != nil {
		idle = p.EffectiveIdle(it.Channel, idle)
		sample = p.AdaptiveIdle && p.History != nil && it.Channel == contract.Long
	}
	sres, err := stream.Consume(attemptCtx, body, guard, stream.Options{
		IdleTimeout:     idle,
		Abort:           cancel,
		SampleIntervals: sample,
	})
	if err != nil {
		return sres.Bytes, err
	}
	if err := guard.Commit(); err != nil {
		return sres.Bytes, err
	}
	if sample {
		w.deps.Policy.History.RecordAll(sres.Intervals)
	}
	return sres.Bytes, nil
}
