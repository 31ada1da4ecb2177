package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"

	"github.com/urfave/cli/v3"

	"github.com/omeyang/xkv/pkg/observability/xhealth"
	"github.com/omeyang/xkv/pkg/observability/xmetrics"
	"github.com/omeyang/xkv/pkg/storage/xkv"
)

// 创建所有子命令。
func createCommands() []*cli.Command {
	return []*cli.Command{
		createCheckCommand(),
		createGetCommand(),
		createPutCommand(),
		createDeleteCommand(),
		createServeCommand(),
	}
}

func createCheckCommand() *cli.Command {
	return &cli.Command{
		Name:  "check",
		Usage: "运行一次健康检查",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withEnv(ctx, cmd, func(ctx context.Context, e *env) error {
				return cmdCheck(ctx, e.health, os.Stdout)
			})
		},
	}
}

func createGetCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "读取一个键",
		ArgsUsage: "<key>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return newUsageError("get requires exactly one <key>")
			}
			key := cmd.Args().First()
			return withEnv(ctx, cmd, func(ctx context.Context, e *env) error {
				return cmdGet(ctx, e.db, os.Stdout, os.Stderr, key)
			})
		},
	}
}

func createPutCommand() *cli.Command {
	return &cli.Command{
		Name:      "put",
		Usage:     "写入一个键",
		ArgsUsage: "<key> <value>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 2 {
				return newUsageError("put requires <key> <value>")
			}
			key, value := cmd.Args().Get(0), cmd.Args().Get(1)
			return withEnv(ctx, cmd, func(ctx context.Context, e *env) error {
				return cmdPut(ctx, e.db, key, []byte(value))
			})
		},
	}
}

func createDeleteCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Aliases:   []string{"del"},
		Usage:     "删除一个键",
		ArgsUsage: "<key>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return newUsageError("delete requires exactly one <key>")
			}
			key := cmd.Args().First()
			return withEnv(ctx, cmd, func(ctx context.Context, e *env) error {
				return cmdDelete(ctx, e.db, key)
			})
		},
	}
}

// globalOptions 读取根命令的全局选项。
func globalOptions(cmd *cli.Command) (envOptions, logOptions) {
	return envOptions{
			configPath: cmd.String("config"),
			cluster:    cmd.String("cluster"),
			dataCenter: cmd.String("data-center"),
			store:      cmd.String("store"),
		}, logOptions{
			level:  cmd.String("log-level"),
			format: cmd.String("log-format"),
			file:   cmd.String("log-file"),
		}
}

// withEnv 为一次性命令组装存储并执行 fn，结束后以 debug 级别输出事务指标。
func withEnv(ctx context.Context, cmd *cli.Command, fn func(ctx context.Context, e *env) error) error {
	eo, lo := globalOptions(cmd)
	logger, closeLog, err := newLogger(lo, os.Stderr)
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	metrics := xmetrics.NewMemoryRegistry()
	e, err := newEnv(ctx, eo, metrics, nil, logger)
	if err != nil {
		return err
	}
	err = e.do(ctx, func(ctx context.Context) error { return fn(ctx, e) })
	logMemoryMetrics(logger, metrics)
	return err
}

// cmdCheck 运行全部健康检查并逐行输出结果，存在不健康项时退出码为 1。
func cmdCheck(ctx context.Context, reg *xhealth.Registry, out io.Writer) error {
	results := reg.RunAll(ctx)
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		r := results[name]
		if r.IsHealthy() {
			fmt.Fprintf(out, "%s\t%s\n", name, r.Status)
			continue
		}
		fmt.Fprintf(out, "%s\t%s\t%s\n", name, r.Status, r.Detail)
	}
	if !xhealth.AllHealthy(results) {
		return &exitError{code: 1}
	}
	return nil
}

// cmdGet 输出键的值，键不存在时退出码为 1。
func cmdGet(ctx context.Context, db xkv.Database, out, errOut io.Writer, key string) error {
	v, err := xkv.ReadValue(ctx, db, func(_ context.Context, tx xkv.ReadTransaction) ([]byte, error) {
		return tx.Get(key)
	})
	if err != nil {
		return err
	}
	if v == nil {
		fmt.Fprintf(errOut, "key %q not found\n", key)
		return &exitError{code: 1}
	}
	fmt.Fprintf(out, "%s\n", v)
	return nil
}

func cmdPut(ctx context.Context, db xkv.Database, key string, value []byte) error {
	return db.Run(ctx, func(_ context.Context, tx xkv.Transaction) error {
		tx.Set(key, value)
		return nil
	})
}

func cmdDelete(ctx context.Context, db xkv.Database, key string) error {
	return db.Run(ctx, func(_ context.Context, tx xkv.Transaction) error {
		tx.Clear(key)
		return nil
	})
}

// logMemoryMetrics 以 debug 级别输出内存 Registry 中的计时器与计数器。
func logMemoryMetrics(logger *slog.Logger, reg *xmetrics.MemoryRegistry) {
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	for _, name := range reg.Names() {
		if snap, ok := reg.TimerSnapshot(name); ok {
			logger.Debug("timer",
				slog.String("name", name),
				slog.Int64("count", snap.Count),
				slog.Duration("mean", snap.Mean()),
				slog.Duration("max", snap.Max),
			)
			continue
		}
		if v, ok := reg.Gauge(name); ok {
			logger.Debug("gauge", slog.String("name", name), slog.Float64("value", v))
			continue
		}
		logger.Debug("counter", slog.String("name", name), slog.Int64("value", reg.CounterValue(name)))
	}
}
