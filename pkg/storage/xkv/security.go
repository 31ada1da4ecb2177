package xkv

import (
	"fmt"
	"sort"
	"sync"
)

// SecurityTypeMultiFile 证书、私钥、CA 分别存放在独立文件中的安全配置类型。
const SecurityTypeMultiFile = "multi-file"

// DefaultCAFile 未配置 caFilePath 时使用的 CA 文件。
const DefaultCAFile = "/etc/ssl/certs/ca-bundle.crt"

// SecurityConfig 传输层安全配置，Type 为类型标识。
type SecurityConfig struct {
	Type string `json:"type" yaml:"type" koanf:"type"`

	// Enabled 为 nil 时视为 true。
	Enabled *bool `json:"enabled,omitempty" yaml:"enabled,omitempty" koanf:"enabled"`

	Password    string `json:"password" yaml:"password" koanf:"password"`
	CAFile      string `json:"caFilePath" yaml:"caFilePath" koanf:"caFilePath"`
	VerifyPeers string `json:"verifyPeers,omitempty" yaml:"verifyPeers,omitempty" koanf:"verifyPeers"`
	CertFile    string `json:"certificateChainFilePath" yaml:"certificateChainFilePath" koanf:"certificateChainFilePath"`
	KeyFile     string `json:"keyFilePath" yaml:"keyFilePath" koanf:"keyFilePath"`
}

// SecurityVariant 一种安全配置类型的校验与应用逻辑。
type SecurityVariant interface {
	// Validate 返回缺失或非法字段的描述，合法时返回 nil。
	Validate(cfg *SecurityConfig) []string
	// Apply 把配置写入网络选项。
	Apply(cfg *SecurityConfig, opts *NetworkOptions) error
}

var (
	variantsMu sync.RWMutex
	variants   = map[string]SecurityVariant{
		SecurityTypeMultiFile: multiFileSecurity{},
	}
)

// RegisterSecurityType 注册安全配置类型。同名类型会被覆盖。
func RegisterSecurityType(name string, v SecurityVariant) {
	if name == "" || v == nil {
		return
	}
	variantsMu.Lock()
	variants[name] = v
	variantsMu.Unlock()
}

// SecurityTypes 返回已注册的类型名称（已排序）。
func SecurityTypes() []string {
	variantsMu.RLock()
	defer variantsMu.RUnlock()
	names := make([]string, 0, len(variants))
	for n := range variants {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func lookupVariant(name string) (SecurityVariant, bool) {
	variantsMu.RLock()
	defer variantsMu.RUnlock()
	v, ok := variants[name]
	return v, ok
}

// IsEnabled 返回配置是否生效。nil 配置视为未启用。
func (s *SecurityConfig) IsEnabled() bool {
	if s == nil {
		return false
	}
	return s.Enabled == nil || *s.Enabled
}

// Validate 校验已启用配置的必填字段。未启用时总是合法。
func (s *SecurityConfig) Validate() error {
	if violations := s.violations(); len(violations) > 0 {
		return &ConfigError{Violations: violations}
	}
	return nil
}

func (s *SecurityConfig) violations() []string {
	if !s.IsEnabled() {
		return nil
	}
	if s.Type == "" {
		return []string{"security.type is required"}
	}
	v, ok := lookupVariant(s.Type)
	if !ok {
		return []string{fmt.Sprintf("security.type %q is not registered (known: %v)", s.Type, SecurityTypes())}
	}
	return v.Validate(s)
}

// ApplyTo 把安全配置写入网络选项。未启用或 nil 配置不做任何修改。
// 必须在打开数据库之前调用，之后返回 ErrOptionsFrozen。
func (s *SecurityConfig) ApplyTo(opts *NetworkOptions) error {
	if !s.IsEnabled() {
		return nil
	}
	if err := s.Validate(); err != nil {
		return err
	}
	v, _ := lookupVariant(s.Type)
	return v.Apply(s, opts)
}

type multiFileSecurity struct{}

func (multiFileSecurity) Validate(cfg *SecurityConfig) []string {
	var out []string
	if cfg.Password == "" {
		out = append(out, "security.password is required")
	}
	if cfg.CertFile == "" {
		out = append(out, "security.certificateChainFilePath is required")
	}
	if cfg.KeyFile == "" {
		out = append(out, "security.keyFilePath is required")
	}
	if cfg.VerifyPeers != "" {
		if _, err := parseVerifyPeers(cfg.VerifyPeers); err != nil {
			out = append(out, "security.verifyPeers: "+err.Error())
		}
	}
	return out
}

func (multiFileSecurity) Apply(cfg *SecurityConfig, opts *NetworkOptions) error {
	caFile := cfg.CAFile
	if caFile == "" {
		caFile = DefaultCAFile
	}
	if err := opts.SetTLSPassword(cfg.Password); err != nil {
		return err
	}
	if err := opts.SetTLSCAPath(caFile); err != nil {
		return err
	}
	if cfg.VerifyPeers != "" {
		if err := opts.SetTLSVerifyPeers([]byte(cfg.VerifyPeers)); err != nil {
			return err
		}
	}
	if err := opts.SetTLSCertPath(cfg.CertFile); err != nil {
		return err
	}
	return opts.SetTLSKeyPath(cfg.KeyFile)
}
