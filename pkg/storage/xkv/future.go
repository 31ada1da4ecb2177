package xkv

import (
	"context"
	"fmt"
	"sync"
)

// Future 异步事务的结果句柄。
type Future struct {
	done chan struct{}
	once sync.Once
	err  error
}

// NewFuture 创建未完成的 Future 及其完成函数。完成函数只有第一次调用生效。
func NewFuture() (*Future, func(error)) {
	f := &Future{done: make(chan struct{})}
	return f, f.complete
}

// completedFuture 返回已完成的 Future。
func completedFuture(err error) *Future {
	f, complete := NewFuture()
	complete(err)
	return f
}

// completeGuarded 以 fn 的结果完成 Future。fn panic 时先以 ErrTransactionPanicked
// 完成 Future，再继续 panic，由执行器决定是否恢复。
func completeGuarded(complete func(error), fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			complete(fmt.Errorf("%w: %v", ErrTransactionPanicked, r))
			panic(r)
		}
	}()
	complete(fn())
}

func (f *Future) complete(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

// Done 返回完成时关闭的 channel。
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait 等待完成并返回结果错误。ctx 先结束时返回 ctx 的错误，但不影响异步操作本身。
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err 返回结果错误，未完成时返回 nil。
func (f *Future) Err() error {
	select {
	case <-f.done:
		return f.err
	default:
		return nil
	}
}

// WhenComplete 返回一个新的 Future：在 f 完成后先执行 fn，再以相同的结果完成。
// fn 在完成 f 的 goroutine 之外的独立 goroutine 中执行。
func (f *Future) WhenComplete(fn func(err error)) *Future {
	next, complete := NewFuture()
	go func() {
		<-f.done
		if fn != nil {
			defer func() { complete(f.err) }()
			fn(f.err)
		} else {
			complete(f.err)
		}
	}()
	return next
}
