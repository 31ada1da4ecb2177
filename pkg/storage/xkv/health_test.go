package xkv

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// recordingDatabase 执行事务函数并记录收到的事务选项
type recordingDatabase struct {
	fakeDatabase
	tx      ReadTransaction
	gotOpts txOptions
	panics  bool
}

func (p *recordingDatabase) Read(ctx context.Context, fn ReadFunc, opts ...TxOption) error {
	if p.panics {
		panic("driver exploded")
	}
	p.gotOpts = applyTxOptions(opts)
	return fn(ctx, p.tx)
}

// stubTx 固定返回值的只读事务
type stubTx struct {
	mu    sync.Mutex
	keys  []string
	value []byte
	err   error
}

func (s *stubTx) Get(key string) ([]byte, error) {
	s.mu.Lock()
	s.keys = append(s.keys, key)
	s.mu.Unlock()
	return s.value, s.err
}

func (s *stubTx) ReadRevision() (int64, error) { return 1, nil }

func newTestHealthCheck(t *testing.T, db Database, opts ...HealthOption) *HealthCheck {
	t.Helper()
	h, err := NewHealthCheck(db, "fdb", "health-checking", 5*time.Second, 5, opts...)
	require.NoError(t, err)
	return h
}

// TestHealthCheck_Healthy 测试探测键不存在时健康，且使用配置的超时与重试次数
func TestHealthCheck_Healthy(t *testing.T) {
	tx := &stubTx{}
	db := &recordingDatabase{tx: tx}
	h := newTestHealthCheck(t, db, WithKeyGenerator(func() string { return "check-1" }))

	res := h.Check(context.Background())
	assert.True(t, res.IsHealthy())
	assert.Equal(t, []string{"/health-checking/check-1"}, tx.keys)
	assert.Equal(t, txOptions{timeout: 5 * time.Second, retryLimit: 5}, db.gotOpts)
}

// TestHealthCheck_RandomKeys 测试默认探测键为 uuid 且每次不同
func TestHealthCheck_RandomKeys(t *testing.T) {
	tx := &stubTx{}
	h := newTestHealthCheck(t, &recordingDatabase{tx: tx})

	h.Check(context.Background())
	h.Check(context.Background())
	require.Len(t, tx.keys, 2)
	assert.NotEqual(t, tx.keys[0], tx.keys[1])
	for _, k := range tx.keys {
		require.True(t, strings.HasPrefix(k, "/health-checking/"), k)
		_, err := uuid.Parse(strings.TrimPrefix(k, "/health-checking/"))
		assert.NoError(t, err)
	}
}

// TestHealthCheck_StoreError 测试存储错误时不健康且描述包含错误码
func TestHealthCheck_StoreError(t *testing.T) {
	storeErr := classify("get", status.Error(codes.DeadlineExceeded, "request timed out"))
	h := newTestHealthCheck(t, &recordingDatabase{tx: &stubTx{err: storeErr}})

	res := h.Check(context.Background())
	assert.False(t, res.IsHealthy())
	assert.Contains(t, res.Detail, "timed_out")
	assert.ErrorIs(t, res.Err, storeErr)
}

// TestHealthCheck_ExistingValue 测试探测键有值时读取完成即健康
func TestHealthCheck_ExistingValue(t *testing.T) {
	h := newTestHealthCheck(t, &recordingDatabase{tx: &stubTx{value: []byte("x")}})
	res := h.Check(context.Background())
	assert.True(t, res.IsHealthy(), res.Detail)

	c, mem := newTestConn(t)
	h = newTestHealthCheck(t, c, WithKeyGenerator(func() string { return "fixed" }))
	put(t, mem, h.Subspace()+"fixed", "left over")
	res = h.Check(context.Background())
	assert.True(t, res.IsHealthy(), res.Detail)
}

// TestHealthCheck_Panic 测试 panic 被捕获为不健康
func TestHealthCheck_Panic(t *testing.T) {
	h := newTestHealthCheck(t, &recordingDatabase{panics: true})
	res := h.Check(context.Background())
	assert.False(t, res.IsHealthy())
	assert.Contains(t, res.Detail, "driver exploded")
}

// TestHealthCheck_NeverWrites 测试健康检查对真实连接只读不写
func TestHealthCheck_NeverWrites(t *testing.T) {
	events := &eventLog{}
	c, _ := newTestConn(t, WithEventRecorder(events))
	h := newTestHealthCheck(t, c)

	res := h.Check(context.Background())
	require.True(t, res.IsHealthy(), res.Detail)
	assert.Equal(t, 1, events.count(EventGet))
	assert.Zero(t, events.count(EventCommit))
}

// TestHealthCheck_ClosedConn 测试连接关闭后不健康
func TestHealthCheck_ClosedConn(t *testing.T) {
	c, _ := newTestConn(t)
	require.NoError(t, c.Close())
	res := newTestHealthCheck(t, c).Check(context.Background())
	assert.False(t, res.IsHealthy())
	assert.Contains(t, res.Detail, "database_closed")
}

func TestNewHealthCheck_Invalid(t *testing.T) {
	_, err := NewHealthCheck(nil, "", "/", 0, -1)
	var ce *ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Len(t, ce.Violations, 5)
}

func TestSubspace(t *testing.T) {
	assert.Equal(t, "/health-checking/", Subspace("health-checking"))
	assert.Equal(t, "/a/b/", Subspace("/a/b/"))
	h := newTestHealthCheck(t, &fakeDatabase{})
	assert.Equal(t, "/health-checking/", h.Subspace())
	assert.Equal(t, "fdb", h.Name())
}
