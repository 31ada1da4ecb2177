// xkvctl 是 xkv 事务存储的命令行工具。
//
// 用法:
//
//	xkvctl [全局选项] <命令> [命令参数]
//
// 全局选项:
//
//	-c, --config       配置文件路径（YAML/JSON，根键 xkv）
//	    --cluster      集群描述符，覆盖配置文件中的 clusterDescriptor
//	    --data-center  数据中心标识，覆盖配置文件中的 dataCenter
//	    --store        存储后端: etcd 或 memory (默认: etcd)
//	    --log-level    日志级别: debug/info/warn/error (默认: info)
//	    --log-format   日志格式: text/json (默认: text)
//	    --log-file     日志文件路径，设置后按大小滚动
//
// 命令:
//
//	check              运行一次健康检查
//	get <key>          读取一个键
//	put <key> <value>  写入一个键
//	delete <key>       删除一个键
//	serve              常驻运行，暴露 gRPC 健康检查并周期输出指标
//
// 退出码:
//
//	0: 命令执行成功（check 命令: 存储健康）
//	1: 命令执行失败、键不存在或存储不健康
//	2: 参数错误（缺少必需参数、配置无效、未知命令等）
//
// 示例:
//
//	xkvctl -c /etc/xkv.yaml check
//	xkvctl --cluster "prod:a1@10.0.0.1:2379" --data-center dc1 get /orders/42
//	xkvctl --store memory --data-center dev put /k v
//	xkvctl -c /etc/xkv.yaml serve --listen :9090
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v3"
)

// 版本信息（可通过 -ldflags 注入，例如:
//
//	go build -ldflags "-X main.Version=1.0.0 -X main.GitCommit=$(git rev-parse --short HEAD) -X main.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
//
// ）。
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run())
}

// createApp 创建 CLI 应用。
func createApp() *cli.Command {
	return &cli.Command{
		Name:    "xkvctl",
		Usage:   "xkv 事务存储命令行工具",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "配置文件路径（YAML/JSON）",
			},
			&cli.StringFlag{
				Name:  "cluster",
				Usage: "集群描述符 description:id@host:port[,host:port...]",
			},
			&cli.StringFlag{
				Name:  "data-center",
				Usage: "数据中心标识",
			},
			&cli.StringFlag{
				Name:  "store",
				Usage: "存储后端: etcd 或 memory",
				Value: storeEtcd,
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "日志级别: debug/info/warn/error",
				Value: "info",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "日志格式: text/json",
				Value: "text",
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "日志文件路径（为空时输出到 stderr）",
			},
		},
		Commands:       createCommands(),
		DefaultCommand: "help",
		Authors: []any{
			"XKit Team",
		},
		// 退出码统一由 run() 映射，禁止 urfave/cli 直接调用 os.Exit。
		ExitErrHandler: func(_ context.Context, _ *cli.Command, err error) {
			if _, ok := err.(cli.ExitCoder); ok {
				fmt.Fprintln(os.Stderr, err)
			}
		},
	}
}

func run() int {
	app := createApp()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	setupSignalHandler(cancel)

	return exitCode(app.Run(ctx, os.Args))
}

// exitCode 把命令错误映射为进程退出码。
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exitError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}
	var usageErr *usageError
	if errors.As(err, &usageErr) {
		fmt.Fprintf(os.Stderr, "参数错误: %v\n", usageErr)
		return 2
	}
	if isCLIUsageError(err) {
		return 2
	}
	fmt.Fprintf(os.Stderr, "错误: %v\n", err)
	return 1
}

// exitError 表示需要非零退出码但已完成输出的场景。
type exitError struct {
	code int
}

func (e *exitError) Error() string { return "" }

// usageError 表示参数或配置错误，退出码为 2。
type usageError struct {
	msg string
	err error
}

func (e *usageError) Error() string {
	if e.err == nil {
		return e.msg
	}
	return e.msg + ": " + e.err.Error()
}

func (e *usageError) Unwrap() error { return e.err }

func newUsageError(format string, args ...any) *usageError {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

// cliUsagePrefixes 是 urfave/cli 参数解析错误的消息前缀。
var cliUsagePrefixes = []string{
	"flag provided but not defined",
	"invalid value",
	"No help topic for",
	"Required flag",
	"flag needs an argument",
}

func isCLIUsageError(err error) bool {
	msg := err.Error()
	for _, p := range cliUsagePrefixes {
		if strings.HasPrefix(msg, p) {
			return true
		}
	}
	return false
}

// setupSignalHandler 第一次信号取消 ctx，第二次信号强制退出。
func setupSignalHandler(cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()

		<-sigCh
		signal.Stop(sigCh)
		os.Exit(130)
	}()
}
