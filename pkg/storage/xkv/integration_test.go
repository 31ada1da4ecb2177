//go:build integration

package xkv

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 集成测试需要真实的 etcd 服务。
// 运行方式: go test -tags=integration -v ./pkg/storage/xkv/...
//
// 环境变量:
//   - ETCD_ENDPOINTS: etcd 端点（逗号分隔），默认 "localhost:2379"

func testEndpoints() string {
	if ep := os.Getenv("ETCD_ENDPOINTS"); ep != "" {
		return ep
	}
	return "localhost:2379"
}

func openIntegration(t *testing.T) *Conn {
	t.Helper()
	d, err := NewDriver(DefaultAPIVersion)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := d.Open(ctx, testEndpoints(), WithDataCenter("it"), WithDialTimeout(3*time.Second))
	if err != nil {
		t.Skipf("无法连接 etcd (%s): %v", testEndpoints(), err)
	}
	t.Cleanup(func() { _ = d.StopNetwork() })

	hc := newIntegrationHealthCheck(t, conn)
	if res := hc.Check(ctx); !res.IsHealthy() {
		t.Skipf("etcd 不可用 (%s): %s", testEndpoints(), res.Detail)
	}
	return conn
}

// newIntegrationHealthCheck 创建集成测试用的健康检查
func newIntegrationHealthCheck(t *testing.T, db Database) *HealthCheck {
	t.Helper()
	h, err := NewHealthCheck(db, "it", DefaultHealthSubspace, 3*time.Second, 1)
	require.NoError(t, err)
	return h
}

func testPrefix() string {
	return "/xkv-it/" + uuid.NewString() + "/"
}

func TestIntegration_RunRead(t *testing.T) {
	conn := openIntegration(t)
	ctx := context.Background()
	key := testPrefix() + "k"

	require.NoError(t, conn.Run(ctx, func(_ context.Context, tx Transaction) error {
		tx.Set(key, []byte("v1"))
		return nil
	}))
	v, err := ReadValue(ctx, conn, func(_ context.Context, tx ReadTransaction) ([]byte, error) {
		return tx.Get(key)
	})
	require.NoError(t, err)
	assert.Equal(t, "v1", string(v))

	require.NoError(t, conn.Run(ctx, func(_ context.Context, tx Transaction) error {
		tx.Clear(key)
		return nil
	}))
	v, err = ReadValue(ctx, conn, func(_ context.Context, tx ReadTransaction) ([]byte, error) {
		return tx.Get(key)
	})
	require.NoError(t, err)
	assert.Nil(t, v)
}

// TestIntegration_ConcurrentIncrements 测试并发递增在冲突重试后没有丢失更新
func TestIntegration_ConcurrentIncrements(t *testing.T) {
	conn := openIntegration(t)
	ctx := context.Background()
	key := testPrefix() + "counter"

	const workers, perWorker = 4, 10
	var wg sync.WaitGroup
	errs := make(chan error, workers*perWorker)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWorker {
				errs <- conn.Run(ctx, func(_ context.Context, tx Transaction) error {
					v, err := tx.Get(key)
					if err != nil {
						return err
					}
					tx.Set(key, append(v, 'x'))
					return nil
				}, WithTimeout(10*time.Second))
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	v, err := ReadValue(ctx, conn, func(_ context.Context, tx ReadTransaction) ([]byte, error) {
		return tx.Get(key)
	})
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("x", workers*perWorker), string(v))
}

// TestIntegration_SnapshotRevision 测试快照版本与 etcd revision 一致
func TestIntegration_SnapshotRevision(t *testing.T) {
	conn := openIntegration(t)
	ctx := context.Background()
	key := testPrefix() + "snap"

	require.NoError(t, conn.Run(ctx, func(_ context.Context, tx Transaction) error {
		tx.Set(key, []byte("before"))
		return nil
	}))
	err := conn.Read(ctx, func(_ context.Context, tx ReadTransaction) error {
		rev, err := tx.ReadRevision()
		require.NoError(t, err)
		assert.Positive(t, rev)

		require.NoError(t, conn.Run(ctx, func(_ context.Context, w Transaction) error {
			w.Set(key, []byte("after"))
			return nil
		}))

		v, err := tx.Get(key)
		require.NoError(t, err)
		assert.Equal(t, "before", string(v))
		return nil
	})
	require.NoError(t, err)
}
