package xkv

import (
	"context"
	"log/slog"
	"time"

	"github.com/omeyang/xkv/pkg/observability/xmetrics"
	"github.com/omeyang/xkv/pkg/resilience/xretry"
)

// Retrying 在 Database 之上按 xretry.Policy 重试可重试的存储错误。
//
// 每次尝试都是一个完整的事务；事务函数因此可能被多次调用。
// 转发给被装饰 Database 的选项默认附带 WithRetryLimit(0)，使每次尝试
// 只提交一次，重试次数完全由 policy 决定；调用方显式传入的 WithRetryLimit 优先。
// 非存储错误（事务函数自身返回的错误）视为致命错误，不会重试。
type Retrying struct {
	db       Database
	policy   xretry.Policy
	executor Executor
	logger   *slog.Logger
	timer    xretry.Timer

	attempts xmetrics.Counter
	retries  xmetrics.Counter
}

// RetryingOption Retrying 的配置选项。
type RetryingOption func(*Retrying)

// WithRetryMetrics 记录 "{name}.run.attempts" 与 "{name}.run.retries" 计数。
func WithRetryMetrics(registry xmetrics.Registry, name string) RetryingOption {
	return func(r *Retrying) {
		if registry == nil {
			return
		}
		r.attempts = registry.Counter(metricName(name, MetricRunAttempt))
		r.retries = registry.Counter(metricName(name, MetricRunRetries))
	}
}

// WithRetryExecutor 设置异步调用的执行器。
func WithRetryExecutor(e Executor) RetryingOption {
	return func(r *Retrying) {
		if e != nil {
			r.executor = e
		}
	}
}

// WithRetryLogger 设置日志记录器。
func WithRetryLogger(l *slog.Logger) RetryingOption {
	return func(r *Retrying) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithRetryTimer 设置退避计时器，测试使用。
func WithRetryTimer(t xretry.Timer) RetryingOption {
	return func(r *Retrying) {
		r.timer = t
	}
}

// NewRetrying 创建重试装饰器。policy 非法时返回错误。
func NewRetrying(db Database, policy xretry.Policy, opts ...RetryingOption) (*Retrying, error) {
	if db == nil {
		return nil, &ConfigError{Violations: []string{"database is required"}}
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	r := &Retrying{
		db:       db,
		policy:   policy,
		executor: goExecutor{},
		logger:   slog.Default(),
		attempts: xmetrics.NoopRegistry{}.Counter(""),
		retries:  xmetrics.NoopRegistry{}.Counter(""),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

// Policy 返回重试策略。
func (r *Retrying) Policy() xretry.Policy { return r.policy }

// Unwrap 返回被装饰的 Database。
func (r *Retrying) Unwrap() Database { return r.db }

// Read 以重试策略执行只读事务。
func (r *Retrying) Read(ctx context.Context, fn ReadFunc, opts ...TxOption) error {
	if fn == nil {
		return ErrNilFunc
	}
	return r.execute(ctx, "read", func(ctx context.Context) error {
		return r.db.Read(ctx, fn, singleAttempt(opts)...)
	})
}

// Run 以重试策略执行读写事务。
func (r *Retrying) Run(ctx context.Context, fn RunFunc, opts ...TxOption) error {
	if fn == nil {
		return ErrNilFunc
	}
	return r.execute(ctx, "run", func(ctx context.Context) error {
		return r.db.Run(ctx, fn, singleAttempt(opts)...)
	})
}

// ReadAsync 在执行器上调用 Read。
func (r *Retrying) ReadAsync(ctx context.Context, fn ReadFunc, opts ...TxOption) *Future {
	if fn == nil {
		return completedFuture(ErrNilFunc)
	}
	f, complete := NewFuture()
	r.executor.Execute(func() {
		completeGuarded(complete, func() error { return r.Read(ctx, fn, opts...) })
	})
	return f
}

// RunAsync 在执行器上调用 Run。
func (r *Retrying) RunAsync(ctx context.Context, fn RunFunc, opts ...TxOption) *Future {
	if fn == nil {
		return completedFuture(ErrNilFunc)
	}
	f, complete := NewFuture()
	r.executor.Execute(func() {
		completeGuarded(complete, func() error { return r.Run(ctx, fn, opts...) })
	})
	return f
}

// singleAttempt 在 opts 之前插入 WithRetryLimit(0)。选项按顺序应用，后者覆盖前者。
func singleAttempt(opts []TxOption) []TxOption {
	out := make([]TxOption, 0, len(opts)+1)
	out = append(out, WithRetryLimit(0))
	return append(out, opts...)
}

func (r *Retrying) execute(ctx context.Context, op string, attempt func(ctx context.Context) error) error {
	execOpts := []xretry.ExecuteOption{
		xretry.WithOnRetry(func(n int, err error, wait time.Duration) {
			r.retries.Add(1)
			r.logger.Debug("retrying transaction",
				slog.String("op", op),
				slog.Int("attempt", n),
				slog.Duration("wait", wait),
				slog.Any("error", err),
			)
		}),
	}
	if r.timer != nil {
		execOpts = append(execOpts, xretry.WithTimer(r.timer))
	}
	return xretry.Execute(ctx, r.policy, func(ctx context.Context) error {
		r.attempts.Add(1)
		return attempt(ctx)
	}, execOpts...)
}

// Busyness 透传被装饰 Database 的饱和度。
func (r *Retrying) Busyness() float64 { return r.db.Busyness() }

// Close 关闭被装饰的 Database。
func (r *Retrying) Close() error { return r.db.Close() }

var _ Database = (*Retrying)(nil)
