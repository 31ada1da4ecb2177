package xkv

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"go.etcd.io/etcd/api/v3/v3rpc/rpctypes"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/omeyang/xkv/pkg/resilience/xretry"
)

// 错误定义。
var (
	// ErrEmptyKey 键名为空。
	ErrEmptyKey = errors.New("xkv: key is empty")

	// ErrNilFunc 事务函数为 nil。
	ErrNilFunc = errors.New("xkv: transaction func is nil")

	// ErrDatabaseClosed 数据库连接已关闭。
	ErrDatabaseClosed = errors.New("xkv: database is closed")

	// ErrAlreadyOpen Driver 已经打开过数据库。
	ErrAlreadyOpen = errors.New("xkv: driver already opened a database")

	// ErrNetworkStopped Driver 的网络已停止。
	ErrNetworkStopped = errors.New("xkv: driver network stopped")

	// ErrOptionsFrozen 数据库打开后不能再修改网络选项。
	ErrOptionsFrozen = errors.New("xkv: network options are frozen after open")

	// ErrInvalidDescriptor 集群描述符格式无效。
	ErrInvalidDescriptor = errors.New("xkv: invalid cluster descriptor")

	// ErrInvalidConfig 配置无效。所有 *ConfigError 都满足 errors.Is(err, ErrInvalidConfig)。
	ErrInvalidConfig = errors.New("xkv: invalid configuration")

	// ErrReadOnly 在只读事务中写入。
	ErrReadOnly = errors.New("xkv: write in read-only transaction")

	// ErrTransactionPanicked 异步事务函数 panic。
	ErrTransactionPanicked = errors.New("xkv: transaction panicked")
)

// Code 存储错误码。
type Code int

// 存储错误码。
const (
	CodeUnknown Code = iota
	// CodeNotCommitted 乐观事务冲突。
	CodeNotCommitted
	// CodeTimedOut 事务超时。
	CodeTimedOut
	// CodeUnavailable 集群暂不可用（无 leader、连接中断等）。
	CodeUnavailable
	// CodeTooOld 读取的快照版本已被压缩。
	CodeTooOld
	// CodePermissionDenied 认证或授权失败。
	CodePermissionDenied
	// CodeInvalidRequest 请求不合法。
	CodeInvalidRequest
	// CodeDatabaseClosed 连接已关闭。
	CodeDatabaseClosed
	// CodeCancelled 调用方取消。
	CodeCancelled
)

var codeNames = map[Code]string{
	CodeUnknown:          "unknown",
	CodeNotCommitted:     "not_committed",
	CodeTimedOut:         "timed_out",
	CodeUnavailable:      "unavailable",
	CodeTooOld:           "transaction_too_old",
	CodePermissionDenied: "permission_denied",
	CodeInvalidRequest:   "invalid_request",
	CodeDatabaseClosed:   "database_closed",
	CodeCancelled:        "cancelled",
}

// String 返回错误码名称。
func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("code(%d)", int(c))
}

// Transient 返回该错误码是否可以重试。
func (c Code) Transient() bool {
	switch c {
	case CodeNotCommitted, CodeTimedOut, CodeUnavailable, CodeTooOld:
		return true
	default:
		return false
	}
}

// StoreError 存储层错误，携带分类后的错误码。
//
// StoreError 实现 xretry.RetryableError：只有 Transient 错误码可重试。
type StoreError struct {
	Op   string
	Code Code
	Err  error
}

func (e *StoreError) Error() string {
	var b strings.Builder
	b.WriteString("xkv: ")
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Code.String())
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *StoreError) Unwrap() error { return e.Err }

// Retryable 实现 xretry.RetryableError。
func (e *StoreError) Retryable() bool { return e.Code.Transient() }

// IsTransient 判断错误链中是否有可重试的 StoreError。*xretry.ExhaustedError 不算可重试。
func IsTransient(err error) bool {
	if xretry.IsExhausted(err) {
		return false
	}
	var se *StoreError
	return errors.As(err, &se) && se.Code.Transient()
}

// IsFatal 判断错误是否为（非 nil 的）不可重试错误。
func IsFatal(err error) bool {
	return err != nil && !IsTransient(err)
}

// CodeOf 返回错误链中 StoreError 的错误码，不存在时为 CodeUnknown。
func CodeOf(err error) Code {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Code
	}
	return CodeUnknown
}

// ConfigError 汇总配置校验失败的所有原因。
type ConfigError struct {
	Violations []string
}

func (e *ConfigError) Error() string {
	return "xkv: invalid configuration: " + strings.Join(e.Violations, "; ")
}

// Is 支持 errors.Is(err, ErrInvalidConfig)。
func (e *ConfigError) Is(target error) bool { return target == ErrInvalidConfig }

// IsConfigError 判断是否为配置错误。
func IsConfigError(err error) bool {
	return errors.Is(err, ErrInvalidConfig)
}

// classify 把底层错误转换为 *StoreError。已经是 *StoreError 的错误原样返回。
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Code: codeFor(err), Err: err}
}

func codeFor(err error) Code {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimedOut
	case errors.Is(err, context.Canceled):
		return CodeCancelled
	case errors.Is(err, ErrDatabaseClosed), errors.Is(err, ErrNetworkStopped):
		return CodeDatabaseClosed
	case errors.Is(err, ErrEmptyKey), errors.Is(err, ErrReadOnly):
		return CodeInvalidRequest
	case errors.Is(err, rpctypes.ErrCompacted):
		return CodeTooOld
	}

	var ee rpctypes.EtcdError
	if errors.As(err, &ee) {
		return codeForGRPC(ee.Code())
	}
	if s, ok := status.FromError(err); ok {
		return codeForGRPC(s.Code())
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return CodeUnavailable
	}
	return CodeUnknown
}

func codeForGRPC(c codes.Code) Code {
	switch c {
	case codes.OK:
		return CodeUnknown
	case codes.DeadlineExceeded:
		return CodeTimedOut
	case codes.Unavailable, codes.ResourceExhausted:
		return CodeUnavailable
	case codes.Aborted:
		return CodeNotCommitted
	case codes.PermissionDenied, codes.Unauthenticated:
		return CodePermissionDenied
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange, codes.AlreadyExists, codes.NotFound:
		return CodeInvalidRequest
	case codes.Canceled:
		return CodeCancelled
	default:
		return CodeUnknown
	}
}
