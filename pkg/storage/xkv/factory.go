package xkv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/omeyang/xkv/pkg/lifecycle/xrun"
	"github.com/omeyang/xkv/pkg/observability/xhealth"
	"github.com/omeyang/xkv/pkg/observability/xmetrics"
	"github.com/omeyang/xkv/pkg/resilience/xretry"
)

// Deps Build 依赖的外部组件。Metrics、Lifecycle、Health 必填。
type Deps struct {
	Metrics   xmetrics.Registry
	Lifecycle xrun.Registrar
	Health    xhealth.Registrar

	// Driver 为 nil 时按 Config.APIVersion 新建连接 etcd 的 Driver。
	Driver *Driver
	// Executor 异步事务的执行器，nil 时每个任务一个 goroutine。
	Executor Executor
	Logger   *slog.Logger
	// RetryTimer 重试退避的计时器，nil 时使用真实时钟。
	RetryTimer xretry.Timer
}

// Build 按配置打开数据库，注册健康检查与生命周期，返回带指标的 Database。
//
// 组装顺序为 Instrumented(Retrying(Conn))；未启用重试时为 Instrumented(Conn)。
// 健康检查直接使用 Conn。打开之后的任意步骤失败都会停止 Driver 的网络。
func Build(ctx context.Context, cfg Config, deps Deps) (*Instrumented, error) {
	if err := validateBuild(&cfg, &deps); err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	driver := deps.Driver
	if driver == nil {
		d, err := NewDriver(cfg.APIVersion)
		if err != nil {
			return nil, err
		}
		driver = d
	}

	if err := cfg.Security.ApplyTo(driver.NetworkOptions()); err != nil {
		return nil, fmt.Errorf("xkv: apply security: %w", err)
	}

	conn, err := driver.Open(ctx, cfg.ClusterDescriptor,
		WithDataCenter(cfg.DataCenter),
		WithExecutor(deps.Executor),
		WithEventRecorder(NewEventRecorder(deps.Metrics, cfg.Name)),
		WithMaxConcurrentTransactions(cfg.MaxConcurrentTransactions),
		WithDialTimeout(cfg.DialTimeout),
		WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("xkv: open %s: %w", cfg.Name, err)
	}

	db, err := assemble(cfg, deps, conn, driver, logger)
	if err != nil {
		return nil, errors.Join(err, driver.StopNetwork())
	}

	logger.Info("finished setting up database",
		slog.String("name", cfg.Name),
		slog.String("cluster", conn.Descriptor().String()),
		slog.String("data_center", cfg.DataCenter),
	)
	return db, nil
}

func assemble(cfg Config, deps Deps, conn *Conn, driver *Driver, logger *slog.Logger) (*Instrumented, error) {
	var inner Database = conn
	if cfg.RetryPolicy.Enabled {
		r, err := NewRetrying(conn, cfg.RetryPolicy.Policy(),
			WithRetryMetrics(deps.Metrics, cfg.Name),
			WithRetryExecutor(deps.Executor),
			WithRetryLogger(logger),
			WithRetryTimer(deps.RetryTimer),
		)
		if err != nil {
			return nil, err
		}
		inner = r
	}

	db, err := NewInstrumented(inner, deps.Metrics, cfg.Name)
	if err != nil {
		return nil, err
	}

	hc, err := NewHealthCheck(conn, cfg.Name, cfg.HealthCheck.Subspace,
		cfg.HealthCheck.Timeout, cfg.HealthCheck.Retries, WithHealthLogger(logger))
	if err != nil {
		return nil, err
	}
	if err := deps.Health.Register(cfg.Name, hc); err != nil {
		return nil, fmt.Errorf("xkv: register health check: %w", err)
	}

	if err := deps.Lifecycle.Manage(cfg.Name, NewManager(driver, cfg.Name, logger)); err != nil {
		deps.Health.Unregister(cfg.Name)
		return nil, fmt.Errorf("xkv: manage database: %w", err)
	}
	return db, nil
}

func validateBuild(cfg *Config, deps *Deps) error {
	var violations []string
	if err := cfg.Validate(); err != nil {
		var ce *ConfigError
		if errors.As(err, &ce) {
			violations = append(violations, ce.Violations...)
		}
	}
	if deps.Metrics == nil {
		violations = append(violations, "deps.Metrics is required")
	}
	if deps.Lifecycle == nil {
		violations = append(violations, "deps.Lifecycle is required")
	}
	if deps.Health == nil {
		violations = append(violations, "deps.Health is required")
	}
	if len(violations) > 0 {
		return &ConfigError{Violations: violations}
	}
	return nil
}
