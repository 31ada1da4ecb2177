package xrun

import (
	"errors"
	"fmt"
	"os"
)

var (
	// ErrSignal 表示因收到系统信号而终止。
	// 使用 errors.Is(err, ErrSignal) 判断是否为信号错误。
	ErrSignal = errors.New("received signal")

	// ErrNilFunc 表示传入的服务函数为 nil。
	ErrNilFunc = errors.New("xrun: nil func")

	// ErrNilService 表示传入的 Service 为 nil。
	ErrNilService = errors.New("xrun: nil service")

	// ErrNilServer 表示传入的服务器为 nil。
	ErrNilServer = errors.New("xrun: nil server")

	// ErrNilManaged 表示受管组件为 nil。
	ErrNilManaged = errors.New("xrun: nil managed component")

	// ErrDuplicateManaged 表示同名组件已注册。
	ErrDuplicateManaged = errors.New("xrun: managed component already registered")

	// ErrAlreadyStarted 表示 Lifecycle 已经启动，不能再注册或重复启动。
	ErrAlreadyStarted = errors.New("xrun: lifecycle already started")
)

// SignalError 包含触发终止的具体信号信息。
//
//	var sigErr *xrun.SignalError
//	if errors.As(err, &sigErr) {
//	    fmt.Printf("received signal: %v\n", sigErr.Signal)
//	}
type SignalError struct {
	Signal os.Signal
}

// Error 实现 error 接口。
func (e *SignalError) Error() string {
	if e.Signal == nil {
		return "received signal <nil>"
	}
	return fmt.Sprintf("received signal %s", e.Signal)
}

// Is 支持 errors.Is(err, ErrSignal) 判断。
func (e *SignalError) Is(target error) bool {
	return target == ErrSignal
}

// Unwrap 返回 ErrSignal。
func (e *SignalError) Unwrap() error {
	return ErrSignal
}

// ComponentError 表示某个受管组件启动或停止失败。
type ComponentError struct {
	Name string
	// Phase 为 "start" 或 "stop"。
	Phase string
	Err   error
}

func (e *ComponentError) Error() string {
	return fmt.Sprintf("xrun: %s %q: %v", e.Phase, e.Name, e.Err)
}

func (e *ComponentError) Unwrap() error { return e.Err }
