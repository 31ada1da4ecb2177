package xhealth

import (
	"context"
	"time"
)

// Status 健康状态。
type Status int

const (
	// StatusUnhealthy 不健康。零值即为不健康。
	StatusUnhealthy Status = iota
	// StatusHealthy 健康。
	StatusHealthy
)

// String 返回状态名称。
func (s Status) String() string {
	if s == StatusHealthy {
		return "healthy"
	}
	return "unhealthy"
}

// Result 一次健康检查的结果。
type Result struct {
	Status Status
	// Detail 不健康时的描述，健康时可为空。
	Detail string
	// Err 导致不健康的原始错误，可能为 nil（例如 panic）。
	Err       error
	Timestamp time.Time
}

// Healthy 返回健康结果。
func Healthy() Result {
	return Result{Status: StatusHealthy, Timestamp: time.Now()}
}

// Unhealthy 返回不健康结果。detail 为空时使用 err 的文本。
func Unhealthy(detail string, err error) Result {
	if detail == "" && err != nil {
		detail = err.Error()
	}
	if detail == "" {
		detail = "unhealthy"
	}
	return Result{Status: StatusUnhealthy, Detail: detail, Err: err, Timestamp: time.Now()}
}

// IsHealthy 返回结果是否健康。
func (r Result) IsHealthy() bool { return r.Status == StatusHealthy }

// Checker 健康检查接口。
//
// Check 必须返回 Result 而不是错误；实现应自行处理 panic 与超时。
type Checker interface {
	Check(ctx context.Context) Result
}

// CheckerFunc 函数适配器。
type CheckerFunc func(ctx context.Context) Result

// Check 调用 f。
func (f CheckerFunc) Check(ctx context.Context) Result { return f(ctx) }

// Registrar 健康检查注册接口。组件只依赖此接口。
type Registrar interface {
	Register(name string, c Checker) error
	Unregister(name string)
}

var _ Checker = CheckerFunc(nil)
