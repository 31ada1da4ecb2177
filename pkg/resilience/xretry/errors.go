package xretry

import (
	"errors"
	"fmt"
)

// 参数错误。
var (
	// ErrInvalidPolicy 表示 Policy 参数不合法。
	ErrInvalidPolicy = errors.New("xretry: invalid policy")
	// ErrNilFunc 表示传入的函数为 nil。
	ErrNilFunc = errors.New("xretry: nil func")
)

// RetryableError 可重试错误接口
// 实现此接口的错误会被识别为可重试或不可重试
type RetryableError interface {
	error
	Retryable() bool
}

// PermanentError 永久性错误（不应重试）
type PermanentError struct {
	Err error
}

// NewPermanentError 创建永久性错误
func NewPermanentError(err error) *PermanentError {
	return &PermanentError{Err: err}
}

func (e *PermanentError) Error() string {
	if e.Err == nil {
		return "permanent error"
	}
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error { return e.Err }

// Retryable 总是返回 false。
func (e *PermanentError) Retryable() bool { return false }

// TemporaryError 临时性错误（应该重试）
type TemporaryError struct {
	Err error
}

// NewTemporaryError 创建临时性错误
func NewTemporaryError(err error) *TemporaryError {
	return &TemporaryError{Err: err}
}

func (e *TemporaryError) Error() string {
	if e.Err == nil {
		return "temporary error"
	}
	return e.Err.Error()
}

func (e *TemporaryError) Unwrap() error { return e.Err }

// Retryable 总是返回 true。
func (e *TemporaryError) Retryable() bool { return true }

// IsRetryable 检查错误是否可重试
// 规则：
//   - nil 错误：不需要重试
//   - 错误链中实现 RetryableError 接口：根据 Retryable() 返回值判断
//   - 其他错误：视为致命错误，不重试
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var re RetryableError
	if errors.As(err, &re) {
		return re.Retryable()
	}
	return false
}

// IsPermanent 检查错误是否为致命错误
func IsPermanent(err error) bool {
	return err != nil && !IsRetryable(err)
}

// ExhaustedError 表示可重试错误用尽了全部尝试次数。
type ExhaustedError struct {
	// Attempts 实际执行的尝试次数。
	Attempts int
	// Err 最后一次尝试的错误。
	Err error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("xretry: gave up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Retryable 始终返回 false，外层重试不会再展开已用尽的尝试。
func (e *ExhaustedError) Retryable() bool { return false }

// IsExhausted 判断 err 是否为 *ExhaustedError。
func IsExhausted(err error) bool {
	var ee *ExhaustedError
	return errors.As(err, &ee)
}
