package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v3"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/omeyang/xkv/pkg/lifecycle/xrun"
	"github.com/omeyang/xkv/pkg/observability/xhealth"
	"github.com/omeyang/xkv/pkg/observability/xmetrics"
	"github.com/omeyang/xkv/pkg/util/xpool"
)

const (
	defaultListen          = ":9090"
	defaultCheckInterval   = 10 * time.Second
	defaultMetricsInterval = time.Minute
	defaultWorkers         = 8
)

type serveOptions struct {
	listen          string
	checkInterval   time.Duration
	metricsInterval time.Duration
	workers         int
}

func createServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "常驻运行，暴露 gRPC 健康检查并周期输出指标",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "listen",
				Aliases: []string{"l"},
				Usage:   "gRPC 健康检查监听地址",
				Value:   defaultListen,
			},
			&cli.DurationFlag{
				Name:  "check-interval",
				Usage: "健康检查间隔",
				Value: defaultCheckInterval,
			},
			&cli.DurationFlag{
				Name:  "metrics-interval",
				Usage: "指标输出间隔",
				Value: defaultMetricsInterval,
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "异步事务执行器的工作协程数",
				Value: defaultWorkers,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			eo, lo := globalOptions(cmd)
			so := serveOptions{
				listen:          cmd.String("listen"),
				checkInterval:   cmd.Duration("check-interval"),
				metricsInterval: cmd.Duration("metrics-interval"),
				workers:         cmd.Int("workers"),
			}
			logger, closeLog, err := newLogger(lo, os.Stderr)
			if err != nil {
				return err
			}
			defer func() { _ = closeLog() }()
			return cmdServe(ctx, eo, so, logger)
		},
	}
}

func (o serveOptions) validate() error {
	if o.listen == "" {
		return newUsageError("listen address is required")
	}
	if o.checkInterval <= 0 {
		return newUsageError("check-interval must be > 0")
	}
	if o.metricsInterval <= 0 {
		return newUsageError("metrics-interval must be > 0")
	}
	if o.workers < 1 {
		return newUsageError("workers must be >= 1")
	}
	return nil
}

// cmdServe 组装存储并运行到 ctx 取消或收到信号。
//
// 健康检查结果发布到 gRPC 健康服务，每个检查名对应一个 service，"" 为整体状态。
// 指标由 OTel SDK 采集并周期性写入日志。
func cmdServe(ctx context.Context, eo envOptions, so serveOptions, logger *slog.Logger) error {
	if err := so.validate(); err != nil {
		return err
	}

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = provider.Shutdown(context.WithoutCancel(ctx)) }()
	metrics := xmetrics.NewOTelRegistry(
		xmetrics.WithMeterProvider(provider),
		xmetrics.WithInstrumentationName("github.com/omeyang/xkv/cmd/xkvctl"),
		xmetrics.WithLogger(logger),
	)
	defer func() { _ = metrics.Close() }()

	pool := xpool.New(so.workers, so.workers*4, xpool.WithLogger(logger), xpool.WithName("xkv-async"))
	defer func() { _ = pool.Close() }()

	lis, err := net.Listen("tcp", so.listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", so.listen, err)
	}

	e, err := newEnv(ctx, eo, metrics, pool, logger)
	if err != nil {
		_ = lis.Close()
		return err
	}

	healthServer := health.NewServer()
	grpcServer := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	sched, err := xhealth.NewScheduler(e.health, so.checkInterval,
		xhealth.WithLogger(logger),
		xhealth.WithListener(xhealth.NewGRPCReporter(healthServer).Publish),
	)
	if err != nil {
		_ = lis.Close()
		return errors.Join(err, e.lifecycle.Stop(ctx))
	}

	reporter := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := reporter.AddFunc(fmt.Sprintf("@every %s", so.metricsInterval), func() {
		logCollected(ctx, reader, logger)
	}); err != nil {
		_ = lis.Close()
		return errors.Join(fmt.Errorf("schedule metrics: %w", err), e.lifecycle.Stop(ctx))
	}

	logger.Info("serving",
		slog.String("name", e.cfg.Name),
		slog.String("listen", lis.Addr().String()),
		slog.Duration("check_interval", so.checkInterval),
	)

	err = xrun.RunServices(ctx,
		[]xrun.Option{xrun.WithLogger(logger), xrun.WithName("xkvctl")},
		e.lifecycle.Service(),
		xrun.ServiceFunc(schedulerService(sched)),
		xrun.ServiceFunc(cronService(reporter)),
		xrun.ServiceFunc(xrun.GRPCServer(grpcServer, lis)),
	)
	logCollected(context.WithoutCancel(ctx), reader, logger)
	if err == nil || errors.Is(err, xrun.ErrSignal) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// schedulerService 先运行一轮检查再开始周期调度，ctx 取消时停止。
func schedulerService(s *xhealth.Scheduler) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		s.RunOnce(ctx)
		s.Start()
		<-ctx.Done()
		return s.Stop(context.WithoutCancel(ctx))
	}
}

// cronService 运行 cron 调度器直到 ctx 取消，并等待正在执行的任务结束。
func cronService(c *cron.Cron) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		c.Start()
		<-ctx.Done()
		<-c.Stop().Done()
		return nil
	}
}

// logCollected 采集一次 OTel 指标并逐个写入日志。
func logCollected(ctx context.Context, reader *sdkmetric.ManualReader, logger *slog.Logger) {
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		logger.Warn("collect metrics failed", slog.Any("error", err))
		return
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			logMetric(logger, m)
		}
	}
}

func logMetric(logger *slog.Logger, m metricdata.Metrics) {
	switch data := m.Data.(type) {
	case metricdata.Histogram[int64]:
		for _, dp := range data.DataPoints {
			attrs := []any{
				slog.String("name", m.Name),
				slog.Uint64("count", dp.Count),
				slog.Duration("total", time.Duration(dp.Sum)),
			}
			if v, ok := dp.Max.Value(); ok {
				attrs = append(attrs, slog.Duration("max", time.Duration(v)))
			}
			logger.Info("timer", attrs...)
		}
	case metricdata.Sum[int64]:
		for _, dp := range data.DataPoints {
			logger.Info("counter", slog.String("name", m.Name), slog.Int64("value", dp.Value))
		}
	case metricdata.Gauge[float64]:
		for _, dp := range data.DataPoints {
			logger.Info("gauge", slog.String("name", m.Name), slog.Float64("value", dp.Value))
		}
	}
}
