package xhealth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Listener 接收每一轮检查的全部结果。
type Listener func(results map[string]Result)

type schedulerOptions struct {
	logger    *slog.Logger
	listeners []Listener
	timeout   time.Duration
}

// SchedulerOption Scheduler 配置选项。
type SchedulerOption func(*schedulerOptions)

// WithLogger 设置日志记录器，默认 slog.Default()。
func WithLogger(logger *slog.Logger) SchedulerOption {
	return func(o *schedulerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithListener 添加结果监听器。
func WithListener(l Listener) SchedulerOption {
	return func(o *schedulerOptions) {
		if l != nil {
			o.listeners = append(o.listeners, l)
		}
	}
}

// WithRoundTimeout 设置单轮检查的超时，默认等于调度间隔。
func WithRoundTimeout(d time.Duration) SchedulerOption {
	return func(o *schedulerOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// Scheduler 周期运行 Registry 中的全部检查。
type Scheduler struct {
	registry *Registry
	cron     *cron.Cron
	opts     *schedulerOptions

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.RWMutex
	last map[string]Result
}

// NewScheduler 创建调度器，按 "@every interval" 运行。
func NewScheduler(registry *Registry, interval time.Duration, opts ...SchedulerOption) (*Scheduler, error) {
	if interval <= 0 {
		return nil, ErrInvalidInterval
	}
	o := &schedulerOptions{logger: slog.Default(), timeout: interval}
	for _, opt := range opts {
		opt(o)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		registry: registry,
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		opts:     o,
		ctx:      ctx,
		cancel:   cancel,
		last:     make(map[string]Result),
	}
	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", interval), s.tick); err != nil {
		cancel()
		return nil, fmt.Errorf("xhealth: schedule checks: %w", err)
	}
	return s, nil
}

func (s *Scheduler) tick() {
	ctx, cancel := context.WithTimeout(s.ctx, s.opts.timeout)
	defer cancel()
	s.RunOnce(ctx)
}

// RunOnce 立即运行一轮检查，更新缓存并通知监听器。
func (s *Scheduler) RunOnce(ctx context.Context) map[string]Result {
	results := s.registry.RunAll(ctx)

	s.mu.Lock()
	s.last = results
	s.mu.Unlock()

	for name, r := range results {
		if !r.IsHealthy() {
			s.opts.logger.Warn("health check failed",
				slog.String("check", name),
				slog.String("detail", r.Detail),
			)
		}
	}
	for _, l := range s.opts.listeners {
		l(results)
	}
	return results
}

// Last 返回最近一轮的结果副本。
func (s *Scheduler) Last() map[string]Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Result, len(s.last))
	for k, v := range s.last {
		out[k] = v
	}
	return out
}

// Start 启动周期调度。
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop 停止调度并等待正在运行的一轮结束，ctx 结束时提前返回。
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
