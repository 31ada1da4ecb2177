package xkv

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/omeyang/xkv/pkg/observability/xmetrics"
)

// 指标名称后缀。完整名称为 "{name}.{suffix}"。
const (
	MetricRead       = "read.timeInNanos"
	MetricReadAsync  = "readAsync.timeInNanos"
	MetricRun        = "run.timeInNanos"
	MetricRunAsync   = "runAsync.timeInNanos"
	MetricBusyness   = "MainThreadBusyness"
	MetricRunAttempt = "run.attempts"
	MetricRunRetries = "run.retries"
)

// Instrumented 为 Database 的每次调用记录耗时，并以 gauge 暴露 Busyness。
// 结果与错误原样透传。
type Instrumented struct {
	db       Database
	registry xmetrics.Registry
	name     string

	read      xmetrics.Timer
	readAsync xmetrics.Timer
	run       xmetrics.Timer
	runAsync  xmetrics.Timer
}

// NewInstrumented 创建指标装饰器并注册 "{name}.MainThreadBusyness" gauge。
func NewInstrumented(db Database, registry xmetrics.Registry, name string) (*Instrumented, error) {
	if db == nil {
		return nil, fmt.Errorf("xkv: instrumented: database is nil")
	}
	if registry == nil {
		return nil, fmt.Errorf("xkv: instrumented: registry is nil")
	}
	if strings.TrimSpace(name) == "" {
		return nil, &ConfigError{Violations: []string{"name is required"}}
	}
	in := &Instrumented{
		db:        db,
		registry:  registry,
		name:      name,
		read:      registry.Timer(metricName(name, MetricRead)),
		readAsync: registry.Timer(metricName(name, MetricReadAsync)),
		run:       registry.Timer(metricName(name, MetricRun)),
		runAsync:  registry.Timer(metricName(name, MetricRunAsync)),
	}
	if err := registry.RegisterGauge(metricName(name, MetricBusyness), db.Busyness); err != nil {
		return nil, fmt.Errorf("xkv: register busyness gauge: %w", err)
	}
	return in, nil
}

func metricName(name, suffix string) string {
	return name + "." + suffix
}

// Name 返回指标名称前缀。
func (in *Instrumented) Name() string { return in.name }

// Unwrap 返回被装饰的 Database。
func (in *Instrumented) Unwrap() Database { return in.db }

// Read 记录 "{name}.read.timeInNanos"。
func (in *Instrumented) Read(ctx context.Context, fn ReadFunc, opts ...TxOption) error {
	sw := in.read.Start()
	defer sw.Stop()
	return in.db.Read(ctx, fn, opts...)
}

// Run 记录 "{name}.run.timeInNanos"。
func (in *Instrumented) Run(ctx context.Context, fn RunFunc, opts ...TxOption) error {
	sw := in.run.Start()
	defer sw.Stop()
	return in.db.Run(ctx, fn, opts...)
}

// ReadAsync 记录 "{name}.readAsync.timeInNanos"，计时在返回的 Future 完成之前停止。
func (in *Instrumented) ReadAsync(ctx context.Context, fn ReadFunc, opts ...TxOption) *Future {
	sw := in.readAsync.Start()
	return in.async(sw, func() *Future { return in.db.ReadAsync(ctx, fn, opts...) })
}

// RunAsync 记录 "{name}.runAsync.timeInNanos"，计时在返回的 Future 完成之前停止。
func (in *Instrumented) RunAsync(ctx context.Context, fn RunFunc, opts ...TxOption) *Future {
	sw := in.runAsync.Start()
	return in.async(sw, func() *Future { return in.db.RunAsync(ctx, fn, opts...) })
}

func (in *Instrumented) async(sw *xmetrics.Stopwatch, start func() *Future) *Future {
	var f *Future
	func() {
		// 同步 panic 时也要停止计时
		defer func() {
			if f == nil {
				sw.Stop()
			}
		}()
		f = start()
	}()
	return f.WhenComplete(func(error) { sw.Stop() })
}

// Busyness 透传被装饰 Database 的饱和度。
func (in *Instrumented) Busyness() float64 { return in.db.Busyness() }

// Close 关闭被装饰的 Database。
func (in *Instrumented) Close() error { return in.db.Close() }

// RecordEvent 实现 EventRecorder，记录到 "{name}.{event}" 计时器。
func (in *Instrumented) RecordEvent(event string, d time.Duration) {
	in.registry.Timer(metricName(in.name, event)).Update(d)
}

// NewEventRecorder 返回把存储事件记录到 "{name}.{event}" 计时器的 EventRecorder。
func NewEventRecorder(registry xmetrics.Registry, name string) EventRecorder {
	if registry == nil {
		return nopRecorder{}
	}
	return RecorderFunc(func(event string, d time.Duration) {
		registry.Timer(metricName(name, event)).Update(d)
	})
}

// RecorderFunc 函数适配器。
type RecorderFunc func(event string, d time.Duration)

// RecordEvent 调用 f。
func (f RecorderFunc) RecordEvent(event string, d time.Duration) { f(event, d) }

var (
	_ Database      = (*Instrumented)(nil)
	_ EventRecorder = (*Instrumented)(nil)
)
