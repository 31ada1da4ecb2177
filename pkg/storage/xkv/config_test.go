package xkv

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xkv/pkg/config/xconf"
)

func validConfig() Config {
	cfg := DefaultConfig()
	cfg.ClusterDescriptor = "test:1@127.0.0.1:2379"
	cfg.DataCenter = "dc1"
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "xkv", cfg.Name)
	assert.Equal(t, 600, cfg.APIVersion)
	assert.Equal(t, HealthCheckConfig{Retries: 5, Timeout: 5 * time.Second, Subspace: "health-checking"}, cfg.HealthCheck)
	assert.True(t, cfg.RetryPolicy.Enabled)
	assert.Equal(t, 10, cfg.RetryPolicy.MaxAttempts)
	assert.Equal(t, int64(1024), cfg.MaxConcurrentTransactions)
	assert.Nil(t, cfg.Security)

	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig, "缺少描述符与数据中心")
	c := validConfig()
	assert.NoError(t, c.Validate())
}

// TestConfig_ValidateCollectsAll 测试校验汇总所有问题
func TestConfig_ValidateCollectsAll(t *testing.T) {
	cfg := Config{
		APIVersion:  10,
		Security:    &SecurityConfig{Type: SecurityTypeMultiFile},
		HealthCheck: HealthCheckConfig{Retries: -1},
		RetryPolicy: RetryPolicyConfig{Enabled: true},
	}
	err := cfg.Validate()
	var ce *ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.Violations, "name is required")
	assert.Contains(t, ce.Violations, "clusterDescriptor is required")
	assert.Contains(t, ce.Violations, "dataCenter is required")
	assert.Contains(t, ce.Violations, "security.password is required")
	assert.Contains(t, ce.Violations, "healthCheck.retries must be >= 0")
	assert.Contains(t, ce.Violations, "healthCheck.timeout must be > 0")
	assert.Contains(t, ce.Violations, "healthCheck.subspace is required")
	assert.Contains(t, ce.Violations, "maxConcurrentTransactions must be >= 1")
	assert.Contains(t, ce.Violations, "dialTimeout must be > 0")
	assert.Len(t, ce.Violations, 13)
}

func TestConfig_RetryDisabledSkipsPolicy(t *testing.T) {
	cfg := validConfig()
	cfg.RetryPolicy = RetryPolicyConfig{Enabled: false}
	assert.NoError(t, cfg.Validate())
}

func TestConfig_InvalidDescriptor(t *testing.T) {
	cfg := validConfig()
	cfg.ClusterDescriptor = "bad"
	assert.ErrorContains(t, cfg.Validate(), "clusterDescriptor")
}

// TestConfig_LoadYAML 测试通过 xconf 加载配置，未出现的字段保留默认值
func TestConfig_LoadYAML(t *testing.T) {
	data := []byte(`
xkv:
  name: orders
  clusterDescriptor: "orders:abc@10.0.0.1:2379,10.0.0.2:2379"
  dataCenter: eu-west-1
  security:
    type: multi-file
    password: pw
    certificateChainFilePath: /certs/chain.pem
    keyFilePath: /certs/key.pem
  healthCheck:
    timeout: 2s
  retryPolicy:
    initialDelay: 50ms
`)
	c, err := xconf.NewFromBytes(data, xconf.FormatYAML)
	require.NoError(t, err)

	cfg := DefaultConfig()
	require.NoError(t, c.Unmarshal("xkv", &cfg))
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "orders", cfg.Name)
	assert.Equal(t, "eu-west-1", cfg.DataCenter)
	assert.Equal(t, 2*time.Second, cfg.HealthCheck.Timeout)
	assert.Equal(t, 5, cfg.HealthCheck.Retries)
	assert.Equal(t, "health-checking", cfg.HealthCheck.Subspace)
	assert.Equal(t, 50*time.Millisecond, cfg.RetryPolicy.InitialDelay)
	assert.Equal(t, time.Second, cfg.RetryPolicy.MaxDelay)
	assert.True(t, cfg.RetryPolicy.Enabled)
	require.NotNil(t, cfg.Security)
	assert.True(t, cfg.Security.IsEnabled())
	assert.Empty(t, cfg.Security.CAFile)
	assert.Equal(t, 600, cfg.APIVersion)
}
