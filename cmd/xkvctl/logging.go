package main

import (
	"io"
	"log/slog"

	"github.com/omeyang/xkv/pkg/observability/xlog"
)

type logOptions struct {
	level  string
	format string
	file   string
}

// newLogger 按选项创建日志记录器，返回的 close 函数关闭日志文件。
// file 为空时写入 stderr。
func newLogger(opts logOptions, stderr io.Writer) (*slog.Logger, func() error, error) {
	b := xlog.New().
		SetOutput(stderr).
		SetLevelString(opts.level).
		SetFormat(opts.format)
	if opts.file != "" {
		b.SetRotation(opts.file)
	}
	logger, closeFn, err := b.Build()
	if err != nil {
		return nil, nil, &usageError{msg: "configure logging", err: err}
	}
	return logger, closeFn, nil
}
