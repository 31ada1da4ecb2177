package xmetrics

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const defaultInstrumentationName = "github.com/omeyang/xkv/pkg/observability/xmetrics"

// 计时器直方图的默认桶边界（纳秒），覆盖 100µs 到 5s。
var defaultTimerBuckets = []float64{
	1e5, 2.5e5, 5e5,
	1e6, 2.5e6, 5e6,
	1e7, 2.5e7, 5e7,
	1e8, 2.5e8, 5e8,
	1e9, 2.5e9, 5e9,
}

type otelConfig struct {
	instrumentationName string
	meterProvider       metric.MeterProvider
	logger              *slog.Logger
	buckets             []float64
}

// Option 定义 OTel Registry 的配置选项。
type Option func(*otelConfig)

// WithInstrumentationName 设置 OTel instrumentation 名称。
func WithInstrumentationName(name string) Option {
	return func(cfg *otelConfig) {
		if name != "" {
			cfg.instrumentationName = name
		}
	}
}

// WithMeterProvider 设置 MeterProvider，默认使用 otel.GetMeterProvider()。
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(cfg *otelConfig) {
		if provider != nil {
			cfg.meterProvider = provider
		}
	}
}

// WithLogger 设置 instrument 创建失败时使用的日志记录器。
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *otelConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithTimerBuckets 设置计时器直方图的桶边界（纳秒）。
func WithTimerBuckets(bounds ...float64) Option {
	return func(cfg *otelConfig) {
		if len(bounds) > 0 {
			cfg.buckets = append([]float64(nil), bounds...)
		}
	}
}

// OTelRegistry 基于 OpenTelemetry metric API 的 Registry 实现。
type OTelRegistry struct {
	meter   metric.Meter
	logger  *slog.Logger
	buckets []float64

	mu       sync.Mutex
	timers   map[string]Timer
	counters map[string]Counter
	gauges   map[string]metric.Registration
}

// NewOTelRegistry 创建基于 OpenTelemetry 的 Registry。
func NewOTelRegistry(opts ...Option) *OTelRegistry {
	cfg := &otelConfig{
		instrumentationName: defaultInstrumentationName,
		meterProvider:       otel.GetMeterProvider(),
		logger:              slog.Default(),
		buckets:             defaultTimerBuckets,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return &OTelRegistry{
		meter:    cfg.meterProvider.Meter(cfg.instrumentationName),
		logger:   cfg.logger,
		buckets:  cfg.buckets,
		timers:   make(map[string]Timer),
		counters: make(map[string]Counter),
		gauges:   make(map[string]metric.Registration),
	}
}

// Timer 返回 name 对应的计时器。
// instrument 创建失败时记录日志并返回空计时器，调用方无需处理错误。
func (r *OTelRegistry) Timer(name string) Timer {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.timers[name]; ok {
		return t
	}
	hist, err := r.meter.Int64Histogram(
		name,
		metric.WithDescription("operation duration"),
		metric.WithUnit("ns"),
		metric.WithExplicitBucketBoundaries(r.buckets...),
	)
	if err != nil {
		r.logger.Warn("xmetrics: create timer failed",
			slog.String("name", name),
			slog.Any("error", err),
		)
		return noopTimer{}
	}
	t := &otelTimer{hist: hist}
	r.timers[name] = t
	return t
}

// Counter 返回 name 对应的计数器。
// instrument 创建失败时记录日志并返回空计数器。
func (r *OTelRegistry) Counter(name string) Counter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.counters[name]; ok {
		return c
	}
	counter, err := r.meter.Int64Counter(name, metric.WithUnit("1"))
	if err != nil {
		r.logger.Warn("xmetrics: create counter failed",
			slog.String("name", name),
			slog.Any("error", err),
		)
		return noopCounter{}
	}
	c := &otelCounter{counter: counter}
	r.counters[name] = c
	return c
}

// RegisterGauge 注册一个 Float64ObservableGauge，fn 在每次采集时被调用。
func (r *OTelRegistry) RegisterGauge(name string, fn func() float64) error {
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
	gauge, err := r.meter.Float64ObservableGauge(name)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrCreateInstrument, name, err)
	}
	reg, err := r.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveFloat64(gauge, fn())
		return nil
	}, gauge)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrCreateInstrument, name, err)
	}
	r.gauges[name] = reg
	return nil
}

// Close 注销所有 gauge 回调。已创建的计时器和计数器不受影响。
func (r *OTelRegistry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for name, reg := range r.gauges {
		if err := reg.Unregister(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(r.gauges, name)
	}
	return firstErr
}

type otelTimer struct {
	hist metric.Int64Histogram
}

func (t *otelTimer) Start() *Stopwatch { return StartStopwatch(t) }

func (t *otelTimer) Update(d time.Duration) {
	t.hist.Record(context.Background(), d.Nanoseconds())
}

type otelCounter struct {
	counter metric.Int64Counter
}

func (c *otelCounter) Add(n int64) {
	if n <= 0 {
		return
	}
	c.counter.Add(context.Background(), n)
}

var (
	_ Registry = (*OTelRegistry)(nil)
	_ Timer    = (*otelTimer)(nil)
	_ Counter  = (*otelCounter)(nil)
)
