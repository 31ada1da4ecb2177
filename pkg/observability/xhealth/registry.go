package xhealth

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Registry 按名称管理健康检查，并发安全。
type Registry struct {
	mu     sync.RWMutex
	checks map[string]Checker
}

// NewRegistry 创建空注册表。
func NewRegistry() *Registry {
	return &Registry{checks: make(map[string]Checker)}
}

// Register 注册检查。名称不可重复。
func (r *Registry) Register(name string, c Checker) error {
	if name == "" {
		return ErrEmptyName
	}
	if c == nil {
		return ErrNilChecker
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.checks[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateCheck, name)
	}
	r.checks[name] = c
	return nil
}

// Unregister 注销检查，不存在时忽略。
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	delete(r.checks, name)
	r.mu.Unlock()
}

// Names 返回已注册检查的名称（已排序）。
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.checks))
	for n := range r.checks {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Run 运行单个检查。
func (r *Registry) Run(ctx context.Context, name string) (Result, error) {
	r.mu.RLock()
	c, ok := r.checks[name]
	r.mu.RUnlock()
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrCheckNotFound, name)
	}
	return c.Check(ctx), nil
}

// RunAll 并发运行全部检查，返回名称到结果的映射。
func (r *Registry) RunAll(ctx context.Context) map[string]Result {
	r.mu.RLock()
	checks := make(map[string]Checker, len(r.checks))
	for n, c := range r.checks {
		checks[n] = c
	}
	r.mu.RUnlock()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string]Result, len(checks))
	)
	for name, c := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := c.Check(ctx)
			mu.Lock()
			results[name] = res
			mu.Unlock()
		}()
	}
	wg.Wait()
	return results
}

// AllHealthy 判断结果集是否全部健康。空结果集视为健康。
func AllHealthy(results map[string]Result) bool {
	for _, r := range results {
		if !r.IsHealthy() {
			return false
		}
	}
	return true
}

var _ Registrar = (*Registry)(nil)
