package xretry

import (
	"context"
	"math"
	"time"

	retry "github.com/avast/retry-go/v5"
)

// Timer 等待计时器，用于在测试中替换真实时钟。
type Timer = retry.Timer

type executeOptions struct {
	timer   Timer
	onRetry func(attempt int, err error, wait time.Duration)
}

// ExecuteOption Execute 的配置选项。
type ExecuteOption func(*executeOptions)

// WithTimer 设置等待计时器。
func WithTimer(t Timer) ExecuteOption {
	return func(o *executeOptions) {
		if t != nil {
			o.timer = t
		}
	}
}

// WithOnRetry 设置重试回调。attempt 为刚失败的尝试序号（从 1 开始），
// wait 为下一次尝试前的等待时间。
func WithOnRetry(f func(attempt int, err error, wait time.Duration)) ExecuteOption {
	return func(o *executeOptions) {
		if f != nil {
			o.onRetry = f
		}
	}
}

// Execute 按 policy 执行 fn，直到成功、遇到致命错误、用尽尝试次数或 ctx 结束。
//
// 返回值：
//   - 成功：nil
//   - 致命错误：原样返回
//   - 可重试错误用尽尝试次数：*ExhaustedError
//   - ctx 在等待期间结束：ctx 的错误（包装最后一次尝试的错误）
func Execute(ctx context.Context, policy Policy, fn func(ctx context.Context) error, opts ...ExecuteOption) error {
	_, err := ExecuteValue(ctx, policy, func(ctx context.Context) (struct{}, error) {
		if fn == nil {
			return struct{}{}, ErrNilFunc
		}
		return struct{}{}, fn(ctx)
	}, opts...)
	return err
}

// ExecuteValue 是 Execute 的泛型版本，返回最后一次成功尝试的结果。
func ExecuteValue[T any](ctx context.Context, policy Policy, fn func(ctx context.Context) (T, error), opts ...ExecuteOption) (T, error) {
	var zero T
	if fn == nil {
		return zero, ErrNilFunc
	}
	if err := policy.Validate(); err != nil {
		return zero, err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	o := &executeOptions{}
	for _, opt := range opts {
		opt(o)
	}

	// attempts 只在 retry-go 的串行执行路径中被修改
	attempts := 0
	retryOpts := []retry.Option{
		retry.Context(ctx),
		retry.Attempts(uint(policy.MaxAttempts)),
		retry.LastErrorOnly(true),
		retry.WrapContextErrorWithLastError(true),
		retry.RetryIf(IsRetryable),
		// retry-go 的 n 为刚失败的尝试序号（从 1 开始）
		retry.DelayType(func(n uint, _ error, _ retry.DelayContext) time.Duration {
			return policy.Backoff(uintToInt(n))
		}),
	}
	if o.timer != nil {
		retryOpts = append(retryOpts, retry.WithTimer(o.timer))
	}
	if o.onRetry != nil {
		retryOpts = append(retryOpts, retry.OnRetry(func(n uint, err error) {
			// OnRetry 的 n 从 0 开始
			attempt := uintToInt(n) + 1
			if attempt < policy.MaxAttempts && IsRetryable(err) {
				o.onRetry(attempt, err, policy.Backoff(attempt))
			}
		}))
	}

	v, err := retry.NewWithData[T](retryOpts...).Do(func() (T, error) {
		attempts++
		return fn(ctx)
	})
	if err == nil {
		return v, nil
	}
	if ctx.Err() == nil && IsRetryable(err) && attempts >= policy.MaxAttempts {
		return zero, &ExhaustedError{Attempts: attempts, Err: err}
	}
	return zero, err
}

func uintToInt(n uint) int {
	if n > uint(math.MaxInt) {
		return math.MaxInt
	}
	return int(n)
}
