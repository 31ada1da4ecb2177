package xrun

import (
	"context"
	"errors"
	"net"
	"os"
	"sync/atomic"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestGroup_ServiceError(t *testing.T) {
	want := errors.New("trigger")
	var stopped atomic.Bool

	g, ctx := NewGroup(context.Background())
	g.Go(func(ctx context.Context) error {
		<-ctx.Done()
		stopped.Store(true)
		return ctx.Err()
	})
	g.GoWithName("failing", func(context.Context) error { return want })

	assert.Same(t, want, g.Wait())
	assert.True(t, stopped.Load())
	assert.Error(t, ctx.Err())
}

// TestGroup_CancelCause 测试 Cancel 的原因透传给 Wait
func TestGroup_CancelCause(t *testing.T) {
	cause := errors.New("shutdown")
	g, _ := NewGroup(context.Background())
	g.Go(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	g.Cancel(cause)
	assert.Same(t, cause, g.Wait())

	g2, _ := NewGroup(context.Background())
	g2.Go(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	g2.Cancel(nil)
	assert.NoError(t, g2.Wait())
}

func TestGroup_NilFunc(t *testing.T) {
	g, _ := NewGroup(context.Background())
	g.Go(nil)
	assert.ErrorIs(t, g.Wait(), ErrNilFunc)
}

// TestRun_Signal 测试收到信号时返回 SignalError
func TestRun_Signal(t *testing.T) {
	sigc := make(chan os.Signal, 1)
	ctx := withTestSigChan(context.Background(), sigc)

	err := Run(ctx, func(ctx context.Context) error {
		sigc <- syscall.SIGTERM
		<-ctx.Done()
		return ctx.Err()
	})

	require.ErrorIs(t, err, ErrSignal)
	var sigErr *SignalError
	require.ErrorAs(t, err, &sigErr)
	assert.Equal(t, syscall.SIGTERM, sigErr.Signal)
	assert.Equal(t, "received signal terminated", sigErr.Error())
}

func TestRunServices(t *testing.T) {
	var ran atomic.Int32
	svc := ServiceFunc(func(context.Context) error {
		ran.Add(1)
		return nil
	})
	err := RunServices(context.Background(), []Option{WithoutSignalHandler()}, svc, svc)
	assert.NoError(t, err)
	assert.Equal(t, int32(2), ran.Load())

	err = RunServices(context.Background(), []Option{WithoutSignalHandler()}, nil)
	assert.ErrorIs(t, err, ErrNilService)
}

type fakeGRPCServer struct {
	stop    chan struct{}
	stopped atomic.Bool
}

func (f *fakeGRPCServer) Serve(net.Listener) error {
	<-f.stop
	return errors.New("server stopped")
}

func (f *fakeGRPCServer) GracefulStop() {
	if f.stopped.CompareAndSwap(false, true) {
		close(f.stop)
	}
}

// TestGRPCServer 测试 ctx 取消触发 GracefulStop 并正常返回
func TestGRPCServer(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer lis.Close()

	srv := &fakeGRPCServer{stop: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- GRPCServer(srv, lis)(ctx) }()

	cancel()
	assert.NoError(t, <-done)
	assert.True(t, srv.stopped.Load())

	assert.ErrorIs(t, GRPCServer(nil, lis)(context.Background()), ErrNilServer)
}
