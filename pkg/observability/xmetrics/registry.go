package xmetrics

import (
	"sync/atomic"
	"time"
)

// Registry 指标注册表接口。
//
// 同名 Timer 多次获取返回同一个实例；gauge 名称不可重复注册。
type Registry interface {
	// Timer 返回 name 对应的计时器，不存在时创建。
	Timer(name string) Timer

	// Counter 返回 name 对应的单调计数器，不存在时创建。
	Counter(name string) Counter

	// RegisterGauge 注册一个派生 gauge。
	// fn 在每次读取（采集）时被调用，实现不得缓存其返回值。
	RegisterGauge(name string, fn func() float64) error
}

// Timer 计时器接口。
type Timer interface {
	// Start 开始一次作用域计时。
	Start() *Stopwatch

	// Update 直接记录一次耗时。
	Update(d time.Duration)
}

// Counter 单调计数器接口。
type Counter interface {
	// Add 增加计数，n 必须非负。
	Add(n int64)
}

// Stopwatch 表示一次作用域计时。
//
// Stop 可以被多次调用（例如 defer 与完成回调同时触发），只有第一次生效。
type Stopwatch struct {
	timer   Timer
	start   time.Time
	stopped atomic.Bool
}

// StartStopwatch 以当前时间为起点创建绑定到 t 的 Stopwatch。
// Timer 实现的 Start 方法通常直接返回 StartStopwatch(self)。
func StartStopwatch(t Timer) *Stopwatch {
	return &Stopwatch{timer: t, start: time.Now()}
}

// Stop 结束计时并记录耗时，返回本次记录的耗时。
// 重复调用返回 0 且不再记录。nil Stopwatch 安全。
func (s *Stopwatch) Stop() time.Duration {
	if s == nil || !s.stopped.CompareAndSwap(false, true) {
		return 0
	}
	d := time.Since(s.start)
	if s.timer != nil {
		s.timer.Update(d)
	}
	return d
}

// Stopped 返回是否已经停止。
func (s *Stopwatch) Stopped() bool {
	if s == nil {
		return true
	}
	return s.stopped.Load()
}

// NoopRegistry 是空实现。
type NoopRegistry struct{}

// Timer 返回空计时器。
func (NoopRegistry) Timer(string) Timer { return noopTimer{} }

// Counter 返回空计数器。
func (NoopRegistry) Counter(string) Counter { return noopCounter{} }

// RegisterGauge 忽略注册，返回 nil。
func (NoopRegistry) RegisterGauge(string, func() float64) error { return nil }

type noopTimer struct{}

func (t noopTimer) Start() *Stopwatch { return StartStopwatch(t) }

func (noopTimer) Update(time.Duration) {}

type noopCounter struct{}

func (noopCounter) Add(int64) {}

// 编译时接口检查
var (
	_ Registry = NoopRegistry{}
	_ Timer    = noopTimer{}
	_ Counter  = noopCounter{}
)
