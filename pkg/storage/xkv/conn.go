package xkv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/omeyang/xkv/pkg/resilience/xretry"
)

// 事务内部冲突重试的退避：2ms 起翻倍，封顶 200ms。
var conflictBackoff = xretry.Policy{MaxAttempts: 1, InitialDelay: 2 * time.Millisecond, MaxDelay: 200 * time.Millisecond}

// Conn 是到存储集群的一个连接，实现 Database。
//
// Conn 并发安全；并发事务数受 maxConcurrentTransactions 限制，
// Busyness 返回在途事务数与容量之比。
type Conn struct {
	backend    backend
	descriptor ClusterDescriptor
	dataCenter string

	sem      *semaphore.Weighted
	capacity int64
	inflight atomic.Int64

	executor Executor
	recorder EventRecorder
	logger   *slog.Logger

	closed  atomic.Bool
	onClose func()
}

func newConn(b backend, descriptor ClusterDescriptor, o *openOptions) *Conn {
	return &Conn{
		backend:    b,
		descriptor: descriptor,
		dataCenter: o.dataCenter,
		sem:        semaphore.NewWeighted(o.maxConcurrent),
		capacity:   o.maxConcurrent,
		executor:   o.executor,
		recorder:   o.recorder,
		logger:     o.logger,
	}
}

// Descriptor 返回连接的集群描述符。
func (c *Conn) Descriptor() ClusterDescriptor { return c.descriptor }

// DataCenter 返回连接的数据中心标签。
func (c *Conn) DataCenter() string { return c.dataCenter }

// Read 执行只读事务。
func (c *Conn) Read(ctx context.Context, fn ReadFunc, opts ...TxOption) error {
	if fn == nil {
		return ErrNilFunc
	}
	return c.transact(ctx, "read", true, applyTxOptions(opts), func(ctx context.Context, tx *transaction) error {
		return fn(ctx, tx)
	})
}

// Run 执行读写事务。
func (c *Conn) Run(ctx context.Context, fn RunFunc, opts ...TxOption) error {
	if fn == nil {
		return ErrNilFunc
	}
	return c.transact(ctx, "run", false, applyTxOptions(opts), func(ctx context.Context, tx *transaction) error {
		return fn(ctx, tx)
	})
}

// ReadAsync 在 Executor 上执行只读事务。
func (c *Conn) ReadAsync(ctx context.Context, fn ReadFunc, opts ...TxOption) *Future {
	if fn == nil {
		return completedFuture(ErrNilFunc)
	}
	f, complete := NewFuture()
	c.executor.Execute(func() {
		completeGuarded(complete, func() error { return c.Read(ctx, fn, opts...) })
	})
	return f
}

// RunAsync 在 Executor 上执行读写事务。
func (c *Conn) RunAsync(ctx context.Context, fn RunFunc, opts ...TxOption) *Future {
	if fn == nil {
		return completedFuture(ErrNilFunc)
	}
	f, complete := NewFuture()
	c.executor.Execute(func() {
		completeGuarded(complete, func() error { return c.Run(ctx, fn, opts...) })
	})
	return f
}

// Busyness 返回在途事务数与容量之比，取值 [0, 1]。
func (c *Conn) Busyness() float64 {
	if c.capacity <= 0 {
		return 0
	}
	b := float64(c.inflight.Load()) / float64(c.capacity)
	return min(max(b, 0), 1)
}

// Close 关闭连接，幂等。
func (c *Conn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	if c.onClose != nil {
		c.onClose()
	}
	if err := c.backend.close(); err != nil {
		return fmt.Errorf("xkv: close connection: %w", err)
	}
	c.logger.Debug("connection closed",
		slog.String("cluster", c.descriptor.String()),
		slog.String("data_center", c.dataCenter),
	)
	return nil
}

// transact 执行事务：冲突等可重试错误在 retryLimit 以内重试，超时覆盖全部尝试。
func (c *Conn) transact(ctx context.Context, op string, readOnly bool, o txOptions, body func(context.Context, *transaction) error) error {
	if c.closed.Load() {
		return &StoreError{Op: op, Code: CodeDatabaseClosed, Err: ErrDatabaseClosed}
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return classify(op, err)
	}
	c.inflight.Add(1)
	defer func() {
		c.inflight.Add(-1)
		c.sem.Release(1)
	}()

	for retries := 0; ; retries++ {
		start := time.Now()
		err := c.attempt(ctx, readOnly, body)
		if err == nil {
			return nil
		}

		var se *StoreError
		if !errors.As(err, &se) {
			// 事务函数自身的错误原样返回
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return classify(op, ctxErr)
		}
		if !se.Code.Transient() || (o.retryLimit >= 0 && retries >= o.retryLimit) {
			return err
		}
		if se.Code == CodeNotCommitted {
			c.recorder.RecordEvent(EventConflict, time.Since(start))
		}
		if err := c.backoff(ctx, retries+1); err != nil {
			return classify(op, err)
		}
		if c.closed.Load() {
			return &StoreError{Op: op, Code: CodeDatabaseClosed, Err: ErrDatabaseClosed}
		}
	}
}

func (c *Conn) attempt(ctx context.Context, readOnly bool, body func(context.Context, *transaction) error) error {
	tx := newTransaction(ctx, c.backend, c.recorder, readOnly)
	if err := body(ctx, tx); err != nil {
		return err
	}
	return tx.commit()
}

func (c *Conn) backoff(ctx context.Context, n int) error {
	d := conflictBackoff.Backoff(n)
	c.recorder.RecordEvent(EventRetryDelay, d)
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ Database = (*Conn)(nil)
