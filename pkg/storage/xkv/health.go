package xkv

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/omeyang/xkv/pkg/observability/xhealth"
)

// HealthCheck 通过读取一个随机探测键检查数据库是否可用。
//
// 探测键位于 "/{subspace}/" 之下且从不写入，所以读到空值即为健康。
// 检查从不写入数据。
type HealthCheck struct {
	db       Database
	name     string
	subspace string
	timeout  time.Duration
	retries  int
	keyGen   func() string
	logger   *slog.Logger
}

// HealthOption HealthCheck 的配置选项。
type HealthOption func(*HealthCheck)

// WithKeyGenerator 设置探测键的随机部分生成器，默认 uuid.NewString。
func WithKeyGenerator(gen func() string) HealthOption {
	return func(h *HealthCheck) {
		if gen != nil {
			h.keyGen = gen
		}
	}
}

// WithHealthLogger 设置日志记录器。
func WithHealthLogger(l *slog.Logger) HealthOption {
	return func(h *HealthCheck) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewHealthCheck 创建健康检查。timeout 为单次检查的事务超时，
// retries 为事务内部冲突重试的上限。
func NewHealthCheck(db Database, name, subspace string, timeout time.Duration, retries int, opts ...HealthOption) (*HealthCheck, error) {
	var violations []string
	if db == nil {
		violations = append(violations, "database is required")
	}
	if strings.TrimSpace(name) == "" {
		violations = append(violations, "healthCheck name is required")
	}
	if strings.Trim(subspace, "/ ") == "" {
		violations = append(violations, "healthCheck.subspace is required")
	}
	if timeout <= 0 {
		violations = append(violations, "healthCheck.timeout must be > 0")
	}
	if retries < 0 {
		violations = append(violations, "healthCheck.retries must be >= 0")
	}
	if len(violations) > 0 {
		return nil, &ConfigError{Violations: violations}
	}
	h := &HealthCheck{
		db:       db,
		name:     name,
		subspace: strings.Trim(subspace, "/"),
		timeout:  timeout,
		retries:  retries,
		keyGen:   uuid.NewString,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h, nil
}

// Name 返回健康检查名称。
func (h *HealthCheck) Name() string { return h.name }

// Subspace 返回探测键的前缀 "/{subspace}/"。
func (h *HealthCheck) Subspace() string { return Subspace(h.subspace) }

// Subspace 返回子空间的键前缀 "/{name}/"。
func Subspace(name string) string {
	return "/" + strings.Trim(name, "/") + "/"
}

// Check 执行一次探测读取。
func (h *HealthCheck) Check(ctx context.Context) (res xhealth.Result) {
	defer func() {
		if r := recover(); r != nil {
			res = xhealth.Unhealthy(fmt.Sprintf("health check panicked: %v", r), nil)
			h.logger.Error("health check panicked",
				slog.String("name", h.name),
				slog.Any("panic", r),
			)
		}
	}()
	if ctx == nil {
		ctx = context.Background()
	}

	key := h.Subspace() + h.keyGen()
	err := h.db.Read(ctx, func(_ context.Context, tx ReadTransaction) error {
		v, err := tx.Get(key)
		if err != nil {
			return err
		}
		if v != nil {
			h.logger.Debug("health check key has a value",
				slog.String("name", h.name),
				slog.String("key", key),
			)
		}
		return nil
	}, WithTimeout(h.timeout), WithRetryLimit(h.retries))
	if err != nil {
		h.logger.Warn("health check failed",
			slog.String("name", h.name),
			slog.Any("error", err),
		)
		return xhealth.Unhealthy(healthDetail(err), err)
	}
	return xhealth.Healthy()
}

func healthDetail(err error) string {
	if code := CodeOf(err); code != CodeUnknown {
		return fmt.Sprintf("store error %s: %v", code, err)
	}
	return err.Error()
}

var _ xhealth.Checker = (*HealthCheck)(nil)
