package xpool

import (
	"log/slog"
	"runtime/debug"
	"sync"
)

// Pool 固定 worker 数量的任务池。
type Pool struct {
	workers int
	queue   chan func()
	opts    options

	// mu 保护 closed 与向 queue 的发送，保证 Close 后不会向已关闭的 channel 发送
	mu     sync.RWMutex
	closed bool

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New 创建并启动 Pool。workers 最小为 1，queueSize 最小为 0（无缓冲）。
func New(workers, queueSize int, opts ...Option) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	p := &Pool{
		workers: workers,
		queue:   make(chan func(), queueSize),
		opts:    o,
	}
	p.wg.Add(workers)
	for range workers {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.queue {
		p.run(task)
	}
}

func (p *Pool) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			p.opts.logger.Error("xpool: task panic recovered",
				slog.String("pool", p.opts.name),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()
	task()
}

// Execute 提交任务，队列满时阻塞。Pool 关闭后任务在调用方 goroutine 中执行。
func (p *Pool) Execute(task func()) {
	if task == nil {
		return
	}
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		p.run(task)
		return
	}
	p.queue <- task
	p.mu.RUnlock()
}

// Close 拒绝新任务入队，等待已入队任务执行完毕。幂等。
func (p *Pool) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.queue)
		p.mu.Unlock()
		p.wg.Wait()
	})
	return nil
}

// Workers 返回 worker 数量。
func (p *Pool) Workers() int { return p.workers }
