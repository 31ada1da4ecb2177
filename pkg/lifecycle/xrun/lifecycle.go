package xrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Managed 受管组件接口。
type Managed interface {
	// Start 启动组件。
	Start(ctx context.Context) error
	// Stop 停止组件，应当幂等。
	Stop(ctx context.Context) error
}

// Registrar 受管组件注册接口。组件只依赖此接口。
type Registrar interface {
	Manage(name string, m Managed) error
}

type namedManaged struct {
	name string
	m    Managed
}

// Lifecycle 按注册顺序启动、按相反顺序停止受管组件。
type Lifecycle struct {
	opts *options

	mu      sync.Mutex
	items   []namedManaged
	started []namedManaged
	running bool
}

// NewLifecycle 创建 Lifecycle。
func NewLifecycle(opts ...Option) *Lifecycle {
	return &Lifecycle{opts: applyOptions(opts)}
}

// Manage 注册受管组件。启动后不能再注册。
func (l *Lifecycle) Manage(name string, m Managed) error {
	if m == nil {
		return ErrNilManaged
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return ErrAlreadyStarted
	}
	for _, it := range l.items {
		if it.name == name {
			return fmt.Errorf("%w: %s", ErrDuplicateManaged, name)
		}
	}
	l.items = append(l.items, namedManaged{name: name, m: m})
	return nil
}

// Names 返回已注册组件的名称（注册顺序）。
func (l *Lifecycle) Names() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	names := make([]string, len(l.items))
	for i, it := range l.items {
		names[i] = it.name
	}
	return names
}

// Start 按注册顺序启动全部组件。
// 任一组件启动失败时，按相反顺序停止已启动的组件，返回启动错误（连同停止错误）。
func (l *Lifecycle) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return ErrAlreadyStarted
	}
	l.running = true

	for _, it := range l.items {
		if err := it.m.Start(ctx); err != nil {
			startErr := &ComponentError{Name: it.name, Phase: "start", Err: err}
			l.opts.logger.Error("component start failed",
				slog.String("lifecycle", l.opts.name),
				slog.String("component", it.name),
				slog.Any("error", err),
			)
			return errors.Join(startErr, l.stopLocked(ctx))
		}
		l.started = append(l.started, it)
		l.opts.logger.Debug("component started",
			slog.String("lifecycle", l.opts.name),
			slog.String("component", it.name),
		)
	}
	return nil
}

// Stop 按启动的相反顺序停止组件，汇总全部错误。未启动时为空操作。
func (l *Lifecycle) Stop(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stopLocked(ctx)
}

func (l *Lifecycle) stopLocked(ctx context.Context) error {
	var errs []error
	for i := len(l.started) - 1; i >= 0; i-- {
		it := l.started[i]
		if err := it.m.Stop(ctx); err != nil {
			l.opts.logger.Warn("component stop failed",
				slog.String("lifecycle", l.opts.name),
				slog.String("component", it.name),
				slog.Any("error", err),
			)
			errs = append(errs, &ComponentError{Name: it.name, Phase: "stop", Err: err})
			continue
		}
		l.opts.logger.Debug("component stopped",
			slog.String("lifecycle", l.opts.name),
			slog.String("component", it.name),
		)
	}
	l.started = nil
	l.running = false
	return errors.Join(errs...)
}

// Service 把 Lifecycle 适配为 Service：启动全部组件，阻塞到 ctx 取消，然后停止。
// 停止使用不受 ctx 取消影响的 context。
func (l *Lifecycle) Service() Service {
	return ServiceFunc(func(ctx context.Context) error {
		if err := l.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return l.Stop(context.WithoutCancel(ctx))
	})
}

// ManagedFuncs 用一对函数实现 Managed，nil 函数视为空操作。
type ManagedFuncs struct {
	StartFunc func(ctx context.Context) error
	StopFunc  func(ctx context.Context) error
}

// Start 调用 StartFunc。
func (f ManagedFuncs) Start(ctx context.Context) error {
	if f.StartFunc == nil {
		return nil
	}
	return f.StartFunc(ctx)
}

// Stop 调用 StopFunc。
func (f ManagedFuncs) Stop(ctx context.Context) error {
	if f.StopFunc == nil {
		return nil
	}
	return f.StopFunc(ctx)
}

var (
	_ Registrar = (*Lifecycle)(nil)
	_ Managed   = ManagedFuncs{}
)
