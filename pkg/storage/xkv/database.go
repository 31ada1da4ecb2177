package xkv

import (
	"context"
	"time"
)

// ReadTransaction 只读事务视图。
//
// 同一事务内的所有读取使用第一次读取时固定的快照版本。
// 事务对象只在事务函数执行期间有效，不能被保存或跨 goroutine 使用。
type ReadTransaction interface {
	// Get 读取键值，键不存在时返回 nil, nil。
	Get(key string) ([]byte, error)

	// ReadRevision 返回事务的快照版本，尚未固定时先获取当前版本。
	ReadRevision() (int64, error)
}

// Transaction 读写事务视图。写入在事务函数返回后统一提交。
type Transaction interface {
	ReadTransaction

	// Set 写入键值，提交前对本事务的 Get 可见。
	Set(key string, value []byte)

	// Clear 删除键。
	Clear(key string)
}

// ReadFunc 只读事务函数。可能因冲突被多次调用，应当没有外部副作用。
type ReadFunc func(ctx context.Context, tx ReadTransaction) error

// RunFunc 读写事务函数。可能因冲突被多次调用，应当没有外部副作用。
type RunFunc func(ctx context.Context, tx Transaction) error

// Database 事务型键值存储的能力接口。
//
// 连接（*Conn）、指标装饰器（*Instrumented）与重试装饰器（*Retrying）
// 都实现此接口，可以相互组合。
type Database interface {
	// Read 执行只读事务，阻塞直到完成。
	Read(ctx context.Context, fn ReadFunc, opts ...TxOption) error

	// Run 执行读写事务，阻塞直到提交完成。
	Run(ctx context.Context, fn RunFunc, opts ...TxOption) error

	// ReadAsync 异步执行只读事务，立即返回 Future。
	ReadAsync(ctx context.Context, fn ReadFunc, opts ...TxOption) *Future

	// RunAsync 异步执行读写事务，立即返回 Future。
	RunAsync(ctx context.Context, fn RunFunc, opts ...TxOption) *Future

	// Busyness 返回连接饱和度，取值 [0, 1]。
	Busyness() float64

	// Close 关闭连接，幂等。
	Close() error
}

// Executor 异步事务的执行上下文。
type Executor interface {
	Execute(task func())
}

// ExecutorFunc 函数适配器。
type ExecutorFunc func(task func())

// Execute 调用 f。
func (f ExecutorFunc) Execute(task func()) { f(task) }

// goExecutor 为每个任务启动一个 goroutine。
type goExecutor struct{}

func (goExecutor) Execute(task func()) { go task() }

// EventRecorder 存储事件耗时记录器。
type EventRecorder interface {
	RecordEvent(event string, d time.Duration)
}

// 存储事件名称。
const (
	EventGet        = "get"
	EventCommit     = "commit"
	EventConflict   = "conflict"
	EventRetryDelay = "retry_delay"
)

type nopRecorder struct{}

func (nopRecorder) RecordEvent(string, time.Duration) {}

// TxOption 单个事务的选项。
type TxOption func(*txOptions)

type txOptions struct {
	timeout    time.Duration
	retryLimit int
}

func applyTxOptions(opts []TxOption) txOptions {
	o := txOptions{retryLimit: -1}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// WithTimeout 设置事务超时，覆盖事务内部的全部尝试。d <= 0 表示不限制。
func WithTimeout(d time.Duration) TxOption {
	return func(o *txOptions) {
		o.timeout = d
	}
}

// WithRetryLimit 设置事务内部冲突重试的上限。n < 0 表示不限制（直到超时或 ctx 结束）。
func WithRetryLimit(n int) TxOption {
	return func(o *txOptions) {
		o.retryLimit = n
	}
}

// ReadValue 执行只读事务并返回 fn 的结果。
func ReadValue[T any](ctx context.Context, db Database, fn func(ctx context.Context, tx ReadTransaction) (T, error), opts ...TxOption) (T, error) {
	var out T
	if fn == nil {
		return out, ErrNilFunc
	}
	err := db.Read(ctx, func(ctx context.Context, tx ReadTransaction) error {
		v, err := fn(ctx, tx)
		if err != nil {
			return err
		}
		out = v
		return nil
	}, opts...)
	return out, err
}

// RunValue 执行读写事务并返回 fn 的结果（最后一次成功提交的那次调用）。
func RunValue[T any](ctx context.Context, db Database, fn func(ctx context.Context, tx Transaction) (T, error), opts ...TxOption) (T, error) {
	var out T
	if fn == nil {
		return out, ErrNilFunc
	}
	err := db.Run(ctx, func(ctx context.Context, tx Transaction) error {
		v, err := fn(ctx, tx)
		if err != nil {
			return err
		}
		out = v
		return nil
	}, opts...)
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
