package xkv

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFuture_CompleteOnce(t *testing.T) {
	f, complete := NewFuture()
	assert.NoError(t, f.Err())

	first := errors.New("first")
	complete(first)
	complete(errors.New("second"))

	<-f.Done()
	assert.Same(t, first, f.Err())
	assert.Same(t, first, f.Wait(context.Background()))
}

// TestFuture_WaitContext 测试 ctx 先结束时 Wait 返回 ctx 错误
func TestFuture_WaitContext(t *testing.T) {
	f, complete := NewFuture()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, f.Wait(ctx), context.DeadlineExceeded)
	complete(nil)
	assert.NoError(t, f.Wait(context.Background()))
}

// TestFuture_WhenComplete 测试回调在下游 Future 完成之前执行
func TestFuture_WhenComplete(t *testing.T) {
	f, complete := NewFuture()
	var called atomic.Bool
	boom := errors.New("boom")

	next := f.WhenComplete(func(err error) {
		assert.Same(t, boom, err)
		called.Store(true)
	})
	complete(boom)

	assert.Same(t, boom, next.Wait(context.Background()))
	assert.True(t, called.Load())
}

func TestFuture_WhenCompleteNil(t *testing.T) {
	next := completedFuture(nil).WhenComplete(nil)
	require.NoError(t, next.Wait(context.Background()))
}
