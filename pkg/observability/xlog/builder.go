package xlog

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/omeyang/xkv/pkg/observability/xrotate"
)

// Builder 日志配置构建器。设置过程中的第一个错误在 Build 时返回。
type Builder struct {
	output  io.Writer
	level   Level
	format  string
	rotator xrotate.Rotator
	err     error
}

// New 创建配置构建器，默认 info 级别、text 格式、写入 stderr。
func New() *Builder {
	return &Builder{
		output: os.Stderr,
		level:  LevelInfo,
		format: "text",
	}
}

// SetOutput 设置日志输出目标
func (b *Builder) SetOutput(w io.Writer) *Builder {
	if w != nil && b.rotator == nil {
		b.output = w
	}
	return b
}

// SetLevel 设置日志级别
func (b *Builder) SetLevel(level Level) *Builder {
	b.level = level
	return b
}

// SetLevelString 通过字符串设置日志级别
func (b *Builder) SetLevelString(s string) *Builder {
	level, err := ParseLevel(s)
	if err != nil {
		b.fail(err)
		return b
	}
	return b.SetLevel(level)
}

// SetFormat 设置输出格式：text 或 json。空值使用 text。
func (b *Builder) SetFormat(format string) *Builder {
	normalized := strings.ToLower(strings.TrimSpace(format))
	switch normalized {
	case "":
		b.format = "text"
	case "text", "json":
		b.format = normalized
	default:
		b.fail(fmt.Errorf("xlog: unknown format %q", format))
	}
	return b
}

// SetRotation 把输出切换为按大小轮转的文件，之后的 SetOutput 不再生效。
func (b *Builder) SetRotation(filename string, opts ...xrotate.Option) *Builder {
	if b.err != nil {
		return b
	}
	rotator, err := xrotate.NewLumberjack(filename, opts...)
	if err != nil {
		b.fail(err)
		return b
	}
	b.rotator = rotator
	b.output = rotator
	return b
}

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// Build 构建 Logger，返回的清理函数关闭轮转文件，可重复调用。
// 配置有误时已打开的轮转文件会被关闭。
func (b *Builder) Build() (*slog.Logger, func() error, error) {
	if b.err != nil {
		if b.rotator != nil {
			_ = b.rotator.Close()
		}
		return nil, nil, b.err
	}

	opts := &slog.HandlerOptions{Level: slog.Level(b.level)}
	var handler slog.Handler
	switch b.format {
	case "json":
		handler = slog.NewJSONHandler(b.output, opts)
	default:
		handler = slog.NewTextHandler(b.output, opts)
	}
	return slog.New(handler), b.cleanup(), nil
}

func (b *Builder) cleanup() func() error {
	var once sync.Once
	rotator := b.rotator
	return func() error {
		var err error
		once.Do(func() {
			if rotator != nil {
				err = rotator.Close()
			}
		})
		return err
	}
}
