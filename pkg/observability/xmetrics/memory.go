package xmetrics

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// TimerSnapshot 是内存计时器的快照。
type TimerSnapshot struct {
	Count int64
	Total time.Duration
	Max   time.Duration
}

// Mean 返回平均耗时，无记录时为 0。
func (s TimerSnapshot) Mean() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Count)
}

// MemoryRegistry 进程内 Registry 实现，记录每个计时器的次数与累计耗时。
type MemoryRegistry struct {
	mu       sync.Mutex
	timers   map[string]*memoryTimer
	counters map[string]*memoryCounter
	gauges   map[string]func() float64
}

// NewMemoryRegistry 创建内存 Registry。
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		timers:   make(map[string]*memoryTimer),
		counters: make(map[string]*memoryCounter),
		gauges:   make(map[string]func() float64),
	}
}

// Timer 返回 name 对应的计时器。
func (r *MemoryRegistry) Timer(name string) Timer {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.timers[name]
	if !ok {
		t = &memoryTimer{}
		r.timers[name] = t
	}
	return t
}

// Counter 返回 name 对应的计数器。
func (r *MemoryRegistry) Counter(name string) Counter {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.counters[name]
	if !ok {
		c = &memoryCounter{}
		r.counters[name] = c
	}
	return c
}

// RegisterGauge 注册 gauge。
func (r *MemoryRegistry) RegisterGauge(name string, fn func() float64) error {
	if name == "" {
		return ErrEmptyName
	}
	if fn == nil {
		return ErrNilGaugeFunc
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.gauges[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateMetric, name)
	}
	r.gauges[name] = fn
	return nil
}

// TimerSnapshot 返回计时器快照；计时器不存在时 ok 为 false。
func (r *MemoryRegistry) TimerSnapshot(name string) (snap TimerSnapshot, ok bool) {
	r.mu.Lock()
	t, ok := r.timers[name]
	r.mu.Unlock()
	if !ok {
		return TimerSnapshot{}, false
	}
	return t.snapshot(), true
}

// CounterValue 返回计数器当前值，不存在时为 0。
func (r *MemoryRegistry) CounterValue(name string) int64 {
	r.mu.Lock()
	c, ok := r.counters[name]
	r.mu.Unlock()
	if !ok {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Gauge 读取 gauge 当前值。每次调用都会执行注册的取值函数。
func (r *MemoryRegistry) Gauge(name string) (float64, bool) {
	r.mu.Lock()
	fn, ok := r.gauges[name]
	r.mu.Unlock()
	if !ok {
		return 0, false
	}
	return fn(), true
}

// Names 返回所有已创建指标的名称（已排序）。
func (r *MemoryRegistry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.timers)+len(r.counters)+len(r.gauges))
	for n := range r.timers {
		names = append(names, n)
	}
	for n := range r.counters {
		names = append(names, n)
	}
	for n := range r.gauges {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

type memoryTimer struct {
	mu   sync.Mutex
	snap TimerSnapshot
}

func (t *memoryTimer) Start() *Stopwatch { return StartStopwatch(t) }

func (t *memoryTimer) Update(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.Count++
	t.snap.Total += d
	if d > t.snap.Max {
		t.snap.Max = d
	}
}

func (t *memoryTimer) snapshot() TimerSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snap
}

type memoryCounter struct {
	mu    sync.Mutex
	value int64
}

func (c *memoryCounter) Add(n int64) {
	if n <= 0 {
		return
	}
	c.mu.Lock()
	c.value += n
	c.mu.Unlock()
}

var (
	_ Registry = (*MemoryRegistry)(nil)
	_ Timer    = (*memoryTimer)(nil)
	_ Counter  = (*memoryCounter)(nil)
)
