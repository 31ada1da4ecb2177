package xretry

import (
	"fmt"
	"time"
)

// Policy 有界指数退避重试策略。
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// NewPolicy 创建并校验 Policy。
func NewPolicy(maxAttempts int, initialDelay, maxDelay time.Duration) (Policy, error) {
	p := Policy{MaxAttempts: maxAttempts, InitialDelay: initialDelay, MaxDelay: maxDelay}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// Validate 校验 Policy 参数。
func (p Policy) Validate() error {
	switch {
	case p.MaxAttempts < 1:
		return fmt.Errorf("%w: maxAttempts must be >= 1, got %d", ErrInvalidPolicy, p.MaxAttempts)
	case p.InitialDelay < 0:
		return fmt.Errorf("%w: initialDelay must be >= 0, got %s", ErrInvalidPolicy, p.InitialDelay)
	case p.MaxDelay < p.InitialDelay:
		return fmt.Errorf("%w: maxDelay %s < initialDelay %s", ErrInvalidPolicy, p.MaxDelay, p.InitialDelay)
	}
	return nil
}

// Backoff 返回第 n 次失败后的等待时间：min(InitialDelay*2^(n-1), MaxDelay)。
// n < 1 时返回 0。结果不会溢出，且随 n 单调不减。
func (p Policy) Backoff(n int) time.Duration {
	if n < 1 || p.InitialDelay <= 0 {
		return 0
	}
	d := p.InitialDelay
	for i := 1; i < n; i++ {
		if d >= p.MaxDelay || d > p.MaxDelay/2 {
			return p.MaxDelay
		}
		d *= 2
	}
	return min(d, p.MaxDelay)
}

// Decision 描述一次失败之后的处理方式。
type Decision struct {
	// Retry 为 true 表示应继续重试。
	Retry bool
	// Wait 下一次尝试前的等待时间，仅 Retry 为 true 时有意义。
	Wait time.Duration
}

// Decide 根据刚失败的第 attempt 次尝试（从 1 开始）及其错误决定下一步。
func (p Policy) Decide(attempt int, err error) Decision {
	if !IsRetryable(err) || attempt >= p.MaxAttempts {
		return Decision{}
	}
	return Decision{Retry: true, Wait: p.Backoff(attempt)}
}
