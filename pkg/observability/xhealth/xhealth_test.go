package xhealth

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func healthyChecker() Checker {
	return CheckerFunc(func(context.Context) Result { return Healthy() })
}

func failingChecker(detail string) Checker {
	return CheckerFunc(func(context.Context) Result { return Unhealthy(detail, errors.New(detail)) })
}

func TestResult(t *testing.T) {
	h := Healthy()
	assert.True(t, h.IsHealthy())
	assert.Equal(t, "healthy", h.Status.String())
	assert.False(t, h.Timestamp.IsZero())

	u := Unhealthy("", errors.New("boom"))
	assert.False(t, u.IsHealthy())
	assert.Equal(t, "boom", u.Detail)
	assert.Equal(t, "unhealthy", u.Status.String())

	assert.Equal(t, "unhealthy", Unhealthy("", nil).Detail)
	assert.False(t, Result{}.IsHealthy())
}

// TestRegistry 测试注册、注销与运行
func TestRegistry(t *testing.T) {
	reg := NewRegistry()

	assert.ErrorIs(t, reg.Register("", healthyChecker()), ErrEmptyName)
	assert.ErrorIs(t, reg.Register("a", nil), ErrNilChecker)
	require.NoError(t, reg.Register("a", healthyChecker()))
	require.NoError(t, reg.Register("b", failingChecker("down")))
	assert.ErrorIs(t, reg.Register("a", healthyChecker()), ErrDuplicateCheck)
	assert.Equal(t, []string{"a", "b"}, reg.Names())

	res, err := reg.Run(context.Background(), "b")
	require.NoError(t, err)
	assert.Equal(t, "down", res.Detail)
	_, err = reg.Run(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrCheckNotFound)

	all := reg.RunAll(context.Background())
	require.Len(t, all, 2)
	assert.True(t, all["a"].IsHealthy())
	assert.False(t, all["b"].IsHealthy())
	assert.False(t, AllHealthy(all))

	reg.Unregister("b")
	reg.Unregister("missing")
	assert.True(t, AllHealthy(reg.RunAll(context.Background())))
}

func TestScheduler_RunOnce(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("kv", failingChecker("timeout")))

	var rounds atomic.Int32
	sched, err := NewScheduler(reg, time.Minute, WithListener(func(map[string]Result) { rounds.Add(1) }))
	require.NoError(t, err)

	results := sched.RunOnce(context.Background())
	assert.False(t, results["kv"].IsHealthy())
	assert.Equal(t, int32(1), rounds.Load())
	assert.Equal(t, "timeout", sched.Last()["kv"].Detail)

	require.NoError(t, sched.Stop(context.Background()))
}

// TestScheduler_Periodic 测试 cron 周期触发
func TestScheduler_Periodic(t *testing.T) {
	if testing.Short() {
		t.Skip("periodic scheduling waits for the cron tick")
	}
	reg := NewRegistry()
	var calls atomic.Int32
	require.NoError(t, reg.Register("kv", CheckerFunc(func(context.Context) Result {
		calls.Add(1)
		return Healthy()
	})))

	sched, err := NewScheduler(reg, time.Second)
	require.NoError(t, err)
	sched.Start()
	assert.Eventually(t, func() bool { return calls.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
	require.NoError(t, sched.Stop(context.Background()))
}

func TestScheduler_InvalidInterval(t *testing.T) {
	_, err := NewScheduler(NewRegistry(), 0)
	assert.ErrorIs(t, err, ErrInvalidInterval)
}

// TestGRPCReporter 测试结果映射为 SERVING/NOT_SERVING
func TestGRPCReporter(t *testing.T) {
	server := health.NewServer()
	reporter := NewGRPCReporter(server)

	status := func(service string) healthpb.HealthCheckResponse_ServingStatus {
		resp, err := server.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
		require.NoError(t, err)
		return resp.GetStatus()
	}

	reporter.Publish(map[string]Result{"kv": Healthy(), "other": Healthy()})
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status(""))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status("kv"))

	reporter.Publish(map[string]Result{"kv": Unhealthy("down", nil), "other": Healthy()})
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status(""))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status("kv"))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status("other"))
}
