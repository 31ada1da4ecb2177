package xkv

import (
	"fmt"
	"strings"
	"time"

	"github.com/omeyang/xkv/pkg/resilience/xretry"
)

// Config 数据库配置，可通过 xconf 从 YAML/JSON 加载（koanf 标签）。
type Config struct {
	// Name 指标前缀、健康检查与生命周期的注册名称。
	Name string `json:"name" yaml:"name" koanf:"name"`

	APIVersion int `json:"apiVersion" yaml:"apiVersion" koanf:"apiVersion"`

	// ClusterDescriptor 集群描述符字符串或描述符文件路径。
	ClusterDescriptor string `json:"clusterDescriptor" yaml:"clusterDescriptor" koanf:"clusterDescriptor"`

	DataCenter string          `json:"dataCenter" yaml:"dataCenter" koanf:"dataCenter"`
	Security   *SecurityConfig `json:"security,omitempty" yaml:"security,omitempty" koanf:"security"`

	HealthCheck HealthCheckConfig `json:"healthCheck" yaml:"healthCheck" koanf:"healthCheck"`
	RetryPolicy RetryPolicyConfig `json:"retryPolicy" yaml:"retryPolicy" koanf:"retryPolicy"`

	MaxConcurrentTransactions int64         `json:"maxConcurrentTransactions" yaml:"maxConcurrentTransactions" koanf:"maxConcurrentTransactions"`
	DialTimeout               time.Duration `json:"dialTimeout" yaml:"dialTimeout" koanf:"dialTimeout"`
}

// HealthCheckConfig 健康检查配置。
type HealthCheckConfig struct {
	Retries  int           `json:"retries" yaml:"retries" koanf:"retries"`
	Timeout  time.Duration `json:"timeout" yaml:"timeout" koanf:"timeout"`
	Subspace string        `json:"subspace" yaml:"subspace" koanf:"subspace"`
}

// RetryPolicyConfig 事务级重试配置。Enabled 为 false 时不包装重试装饰器。
type RetryPolicyConfig struct {
	Enabled      bool          `json:"enabled" yaml:"enabled" koanf:"enabled"`
	MaxAttempts  int           `json:"maxAttempts" yaml:"maxAttempts" koanf:"maxAttempts"`
	InitialDelay time.Duration `json:"initialDelay" yaml:"initialDelay" koanf:"initialDelay"`
	MaxDelay     time.Duration `json:"maxDelay" yaml:"maxDelay" koanf:"maxDelay"`
}

// Policy 转换为 xretry.Policy。
func (c RetryPolicyConfig) Policy() xretry.Policy {
	return xretry.Policy{MaxAttempts: c.MaxAttempts, InitialDelay: c.InitialDelay, MaxDelay: c.MaxDelay}
}

// 配置默认值。
const (
	DefaultName              = "xkv"
	DefaultAPIVersion        = 600
	DefaultHealthRetries     = 5
	DefaultHealthTimeout     = 5 * time.Second
	DefaultHealthSubspace    = "health-checking"
	DefaultRetryMaxAttempts  = 10
	DefaultRetryInitialDelay = 10 * time.Millisecond
	DefaultRetryMaxDelay     = time.Second
)

// DefaultConfig 返回带默认值的配置。ClusterDescriptor 与 DataCenter 没有默认值。
func DefaultConfig() Config {
	return Config{
		Name:       DefaultName,
		APIVersion: DefaultAPIVersion,
		HealthCheck: HealthCheckConfig{
			Retries:  DefaultHealthRetries,
			Timeout:  DefaultHealthTimeout,
			Subspace: DefaultHealthSubspace,
		},
		RetryPolicy: RetryPolicyConfig{
			Enabled:      true,
			MaxAttempts:  DefaultRetryMaxAttempts,
			InitialDelay: DefaultRetryInitialDelay,
			MaxDelay:     DefaultRetryMaxDelay,
		},
		MaxConcurrentTransactions: DefaultMaxConcurrentTransactions,
		DialTimeout:               DefaultDialTimeout,
	}
}

// Validate 校验配置，返回包含全部问题的 *ConfigError。
func (c *Config) Validate() error {
	var v []string
	if strings.TrimSpace(c.Name) == "" {
		v = append(v, "name is required")
	}
	if c.APIVersion < MinAPIVersion {
		v = append(v, fmt.Sprintf("apiVersion must be >= %d, got %d", MinAPIVersion, c.APIVersion))
	}
	if strings.TrimSpace(c.ClusterDescriptor) == "" {
		v = append(v, "clusterDescriptor is required")
	} else if _, err := ParseClusterDescriptor(c.ClusterDescriptor); err != nil {
		v = append(v, "clusterDescriptor: "+err.Error())
	}
	if strings.TrimSpace(c.DataCenter) == "" {
		v = append(v, "dataCenter is required")
	}
	v = append(v, c.Security.violations()...)

	if c.HealthCheck.Retries < 0 {
		v = append(v, "healthCheck.retries must be >= 0")
	}
	if c.HealthCheck.Timeout <= 0 {
		v = append(v, "healthCheck.timeout must be > 0")
	}
	if strings.Trim(c.HealthCheck.Subspace, "/ ") == "" {
		v = append(v, "healthCheck.subspace is required")
	}
	if c.RetryPolicy.Enabled {
		if err := c.RetryPolicy.Policy().Validate(); err != nil {
			v = append(v, "retryPolicy: "+err.Error())
		}
	}
	if c.MaxConcurrentTransactions < 1 {
		v = append(v, "maxConcurrentTransactions must be >= 1")
	}
	if c.DialTimeout <= 0 {
		v = append(v, "dialTimeout must be > 0")
	}

	if len(v) > 0 {
		return &ConfigError{Violations: v}
	}
	return nil
}
