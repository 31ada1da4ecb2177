package xkv

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/omeyang/xkv/pkg/observability/xmetrics"
	"github.com/omeyang/xkv/pkg/resilience/xretry"
	"github.com/omeyang/xkv/pkg/util/xpool"
)

// instantTimer 记录等待时长并立即返回
type instantTimer struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (t *instantTimer) After(d time.Duration) <-chan time.Time {
	t.mu.Lock()
	t.waits = append(t.waits, d)
	t.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

func (t *instantTimer) recorded() []time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]time.Duration(nil), t.waits...)
}

var testRetryPolicy = xretry.Policy{MaxAttempts: 4, InitialDelay: 10 * time.Millisecond, MaxDelay: 25 * time.Millisecond}

func unavailable() error {
	return &StoreError{Op: "get", Code: CodeUnavailable, Err: errors.New("no leader")}
}

func conflict() error {
	return &StoreError{Op: "commit", Code: CodeNotCommitted, Err: errConflict}
}

// TestRetrying_SucceedsAfterTransient 测试暂时性错误被重试，退避按策略增长
func TestRetrying_SucceedsAfterTransient(t *testing.T) {
	db := &fakeDatabase{runErrs: []error{unavailable(), conflict(), unavailable()}}
	reg := xmetrics.NewMemoryRegistry()
	timer := &instantTimer{}
	r, err := NewRetrying(db, testRetryPolicy, WithRetryMetrics(reg, "fdb"), WithRetryTimer(timer))
	require.NoError(t, err)

	require.NoError(t, r.Run(context.Background(), func(context.Context, Transaction) error { return nil }))

	_, runs := db.counts()
	assert.Equal(t, 4, runs)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 25 * time.Millisecond}, timer.recorded())
	assert.Equal(t, int64(4), reg.CounterValue("fdb.run.attempts"))
	assert.Equal(t, int64(3), reg.CounterValue("fdb.run.retries"))
}

// TestRetrying_FatalNotRetried 测试致命错误只尝试一次并原样返回
func TestRetrying_FatalNotRetried(t *testing.T) {
	userErr := errors.New("validation failed")
	denied := &StoreError{Op: "get", Code: CodePermissionDenied}

	for _, fatal := range []error{userErr, denied} {
		db := &fakeDatabase{runErrs: []error{fatal}}
		r, err := NewRetrying(db, testRetryPolicy, WithRetryTimer(&instantTimer{}))
		require.NoError(t, err)

		err = r.Run(context.Background(), func(context.Context, Transaction) error { return nil })
		assert.Same(t, fatal, err)
		_, runs := db.counts()
		assert.Equal(t, 1, runs)
	}
}

// TestRetrying_Exhausted 测试用尽尝试次数后返回 ExhaustedError
func TestRetrying_Exhausted(t *testing.T) {
	db := &fakeDatabase{readErrs: []error{conflict(), conflict(), conflict(), conflict(), conflict()}}
	r, err := NewRetrying(db, testRetryPolicy, WithRetryTimer(&instantTimer{}))
	require.NoError(t, err)

	err = r.Read(context.Background(), func(context.Context, ReadTransaction) error { return nil })
	var ex *xretry.ExhaustedError
	require.ErrorAs(t, err, &ex)
	assert.Equal(t, 4, ex.Attempts)
	assert.Equal(t, CodeNotCommitted, CodeOf(err))
	reads, _ := db.counts()
	assert.Equal(t, 4, reads)
}

// TestRetrying_ContextCancelled 测试等待期间 ctx 结束
func TestRetrying_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	db := &fakeDatabase{runErrs: []error{unavailable(), unavailable()}, onRun: cancel}
	r, err := NewRetrying(db, xretry.Policy{MaxAttempts: 5, InitialDelay: time.Hour, MaxDelay: time.Hour})
	require.NoError(t, err)

	err = r.Run(ctx, func(context.Context, Transaction) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
	_, runs := db.counts()
	assert.Equal(t, 1, runs)
}

func TestRetrying_Async(t *testing.T) {
	db := &fakeDatabase{runErrs: []error{unavailable()}}
	var executed int
	var mu sync.Mutex
	exec := ExecutorFunc(func(task func()) {
		mu.Lock()
		executed++
		mu.Unlock()
		go task()
	})
	r, err := NewRetrying(db, testRetryPolicy, WithRetryTimer(&instantTimer{}), WithRetryExecutor(exec))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, r.RunAsync(ctx, func(context.Context, Transaction) error { return nil }).Wait(ctx))
	require.NoError(t, r.ReadAsync(ctx, func(context.Context, ReadTransaction) error { return nil }).Wait(ctx))
	mu.Lock()
	assert.Equal(t, 2, executed)
	mu.Unlock()

	assert.ErrorIs(t, r.RunAsync(ctx, nil).Wait(ctx), ErrNilFunc)
	assert.ErrorIs(t, r.ReadAsync(ctx, nil).Wait(ctx), ErrNilFunc)
}

// TestRetrying_ConnTransientSingleAttempt 测试装饰真实连接时每次尝试只访问一次存储，
// 持续不可用在用尽策略次数后返回 ExhaustedError
func TestRetrying_ConnTransientSingleAttempt(t *testing.T) {
	c, mem := newTestConn(t)
	var gets atomic.Int32
	mem.setHooks(func(string) error {
		gets.Add(1)
		return status.Error(codes.Unavailable, "no leader")
	}, nil)
	reg := xmetrics.NewMemoryRegistry()
	timer := &instantTimer{}
	policy := xretry.Policy{MaxAttempts: 3, InitialDelay: 10 * time.Millisecond, MaxDelay: 100 * time.Millisecond}
	r, err := NewRetrying(c, policy, WithRetryMetrics(reg, "fdb"), WithRetryTimer(timer))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = r.Run(ctx, func(_ context.Context, tx Transaction) error {
		_, err := tx.Get("/k")
		return err
	})

	var ex *xretry.ExhaustedError
	require.ErrorAs(t, err, &ex)
	assert.Equal(t, 3, ex.Attempts)
	assert.Equal(t, CodeUnavailable, CodeOf(err))
	assert.False(t, IsTransient(err), "用尽后不再可重试")
	assert.Equal(t, int32(3), gets.Load())
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, timer.recorded())
	assert.Equal(t, int64(3), reg.CounterValue("fdb.run.attempts"))
	assert.Equal(t, int64(2), reg.CounterValue("fdb.run.retries"))
}

// TestRetrying_CallerRetryLimitWins 测试调用方显式的 WithRetryLimit 覆盖单次尝试的默认值
func TestRetrying_CallerRetryLimitWins(t *testing.T) {
	c, mem := newTestConn(t)
	var gets atomic.Int32
	mem.setHooks(func(string) error {
		if gets.Add(1) <= 2 {
			return status.Error(codes.Unavailable, "no leader")
		}
		return nil
	}, nil)
	reg := xmetrics.NewMemoryRegistry()
	r, err := NewRetrying(c, testRetryPolicy, WithRetryMetrics(reg, "fdb"), WithRetryTimer(&instantTimer{}))
	require.NoError(t, err)

	err = r.Read(context.Background(), func(_ context.Context, tx ReadTransaction) error {
		_, err := tx.Get("/k")
		return err
	}, WithRetryLimit(2))
	require.NoError(t, err)
	assert.Equal(t, int32(3), gets.Load(), "连接内部重试两次")
	assert.Equal(t, int64(1), reg.CounterValue("fdb.run.attempts"))
	assert.Zero(t, reg.CounterValue("fdb.run.retries"))
}

// TestRetrying_AsyncPanicCompletes 测试事务函数 panic 且执行器恢复时 Future 仍然完成
func TestRetrying_AsyncPanicCompletes(t *testing.T) {
	pool := xpool.New(1, 1)
	t.Cleanup(func() { _ = pool.Close() })
	r, err := NewRetrying(panickingDatabase{&fakeDatabase{}}, testRetryPolicy, WithRetryExecutor(pool))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err = r.RunAsync(ctx, func(context.Context, Transaction) error { return nil }).Wait(ctx)
	require.ErrorIs(t, err, ErrTransactionPanicked)
	assert.Contains(t, err.Error(), "boom")

	err = r.ReadAsync(ctx, func(context.Context, ReadTransaction) error { return nil }).Wait(ctx)
	assert.ErrorIs(t, err, ErrTransactionPanicked)
}

// panickingDatabase 同步调用直接 panic
type panickingDatabase struct{ Database }

func (panickingDatabase) Read(context.Context, ReadFunc, ...TxOption) error { panic("boom") }

func (panickingDatabase) Run(context.Context, RunFunc, ...TxOption) error { panic("boom") }

func TestNewRetrying_Invalid(t *testing.T) {
	_, err := NewRetrying(nil, testRetryPolicy)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewRetrying(&fakeDatabase{}, xretry.Policy{MaxAttempts: 0})
	assert.ErrorIs(t, err, xretry.ErrInvalidPolicy)
}

// TestRetrying_Delegates 测试 Busyness 与 Close 透传
func TestRetrying_Delegates(t *testing.T) {
	db := &fakeDatabase{busy: 0.5}
	r, err := NewRetrying(db, testRetryPolicy)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, r.Busyness(), 1e-9)
	assert.Same(t, db, r.Unwrap())
	assert.Equal(t, testRetryPolicy, r.Policy())
	require.NoError(t, r.Close())
	assert.True(t, db.closed)
}
