package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// 轮询/重试原语, 传播等待、审批等待、按步健康等待共用同一套
// 有界语义: 最大次数 + 固定间隔 + 总时限, 可被 context 取消.

// ErrExhausted 重试次数或总时限耗尽
var ErrExhausted = errors.New("重试次数或时限已耗尽")

// Config 轮询配置
type Config struct {
	Interval    time.Duration // 每次尝试间隔
	Timeout     time.Duration // 总时限, 0 表示不限
	MaxAttempts int           // 最大尝试次数, 0 表示不限
}

// errNotReady 内部哨兵: 条件尚未满足, 继续轮询
var errNotReady = errors.New("not ready")

// Poll 以固定间隔轮询条件函数直到满足.
// fn 返回 (true, nil) 表示满足; (false, nil) 继续等待; 返回错误立即终止.
// 次数或时限耗尽返回 ErrExhausted.
func Poll(ctx context.Context, cfg Config, fn func(context.Context) (bool, error)) error {
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	var b backoff.BackOff = backoff.NewConstantBackOff(cfg.Interval)
	if cfg.MaxAttempts > 0 {
		b = backoff.WithMaxRetries(b, uint64(cfg.MaxAttempts-1))
	}
	b = backoff.WithContext(b, ctx)

	err := backoff.Retry(func() error {
		done, err := fn(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !done {
			return errNotReady
		}
		return nil
	}, b)

	if err == nil {
		return nil
	}
	if errors.Is(err, errNotReady) || errors.Is(err, context.DeadlineExceeded) {
		return ErrExhausted
	}
	return err
}

// Do 带指数退避执行操作, retryable 判定错误是否可重试.
// 不可重试错误立即返回; 重试耗尽返回最后一次错误.
func Do(ctx context.Context, cfg Config, op func(context.Context) error, retryable func(error) bool) error {
	exp := backoff.NewExponentialBackOff()
	if cfg.Interval > 0 {
		exp.InitialInterval = cfg.Interval
	}
	if cfg.Timeout > 0 {
		exp.MaxElapsedTime = cfg.Timeout
	}

	var b backoff.BackOff = exp
	if cfg.MaxAttempts > 0 {
		b = backoff.WithMaxRetries(b, uint64(cfg.MaxAttempts-1))
	}
	b = backoff.WithContext(b, ctx)

	return backoff.Retry(func() error {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if retryable != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b)
}

// Sleep 等待固定时长, 可被 context 打断
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
