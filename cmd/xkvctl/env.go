package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/omeyang/xkv/pkg/config/xconf"
	"github.com/omeyang/xkv/pkg/lifecycle/xrun"
	"github.com/omeyang/xkv/pkg/observability/xhealth"
	"github.com/omeyang/xkv/pkg/observability/xmetrics"
	"github.com/omeyang/xkv/pkg/storage/xkv"
)

// configRoot 是配置文件中 xkv 配置所在的根键。
const configRoot = "xkv"

const (
	storeEtcd   = "etcd"
	storeMemory = "memory"
)

// envOptions 是构建运行环境所需的全局选项。
type envOptions struct {
	configPath string
	cluster    string
	dataCenter string
	store      string
}

// loadConfig 读取配置文件并应用命令行覆盖项，未配置的字段保留默认值。
func loadConfig(o envOptions) (xkv.Config, error) {
	overrides := xconf.WithOverrides(map[string]any{
		configRoot + ".clusterDescriptor": o.cluster,
		configRoot + ".dataCenter":        o.dataCenter,
	})

	var (
		c   *xconf.Config
		err error
	)
	if o.configPath == "" {
		c, err = xconf.NewFromBytes(nil, xconf.FormatJSON, overrides)
	} else {
		c, err = xconf.New(o.configPath, overrides)
	}
	if err != nil {
		return xkv.Config{}, &usageError{msg: "load config", err: err}
	}

	cfg := xkv.DefaultConfig()
	if c.Exists(configRoot) {
		if err := c.Unmarshal(configRoot, &cfg); err != nil {
			return xkv.Config{}, &usageError{msg: "load config", err: err}
		}
	}
	return cfg, nil
}

// env 是一次命令执行所需的存储及其配套组件。
type env struct {
	cfg       xkv.Config
	db        *xkv.Instrumented
	health    *xhealth.Registry
	lifecycle *xrun.Lifecycle
	logger    *slog.Logger
}

// newEnv 加载配置并组装存储。store 为 memory 时使用进程内后端，不需要 etcd。
func newEnv(ctx context.Context, o envOptions, metrics xmetrics.Registry, executor xkv.Executor, logger *slog.Logger) (*env, error) {
	cfg, err := loadConfig(o)
	if err != nil {
		return nil, err
	}

	health := xhealth.NewRegistry()
	lifecycle := xrun.NewLifecycle(xrun.WithLogger(logger), xrun.WithName(cfg.Name))
	deps := xkv.Deps{
		Metrics:   metrics,
		Lifecycle: lifecycle,
		Health:    health,
		Executor:  executor,
		Logger:    logger,
	}

	switch o.store {
	case "", storeEtcd:
	case storeMemory:
		if cfg.ClusterDescriptor == "" {
			cfg.ClusterDescriptor = "memory:local@127.0.0.1:2379"
		}
		driver, err := xkv.NewMemoryDriver(cfg.APIVersion)
		if err != nil {
			return nil, &usageError{msg: "invalid config", err: err}
		}
		deps.Driver = driver
	default:
		return nil, newUsageError("unknown store %q", o.store)
	}

	db, err := xkv.Build(ctx, cfg, deps)
	if err != nil {
		if errors.Is(err, xkv.ErrInvalidConfig) {
			return nil, &usageError{msg: "invalid config", err: err}
		}
		return nil, fmt.Errorf("build database: %w", err)
	}
	return &env{
		cfg:       cfg,
		db:        db,
		health:    health,
		lifecycle: lifecycle,
		logger:    logger,
	}, nil
}

// do 启动生命周期，执行 fn，然后停止生命周期。
func (e *env) do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := e.lifecycle.Start(ctx); err != nil {
		return err
	}
	err := fn(ctx)
	if stopErr := e.lifecycle.Stop(context.WithoutCancel(ctx)); stopErr != nil {
		e.logger.Warn("stop lifecycle failed", slog.Any("error", stopErr))
	}
	return err
}
