package xkv

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"strings"
	"sync"

	"go.etcd.io/etcd/client/pkg/v3/transport"
)

// 网络选项名称，出现在 NetworkOptions.Calls 中。
const (
	OptionTLSPassword    = "tls_password"
	OptionTLSCAPath      = "tls_ca_path"
	OptionTLSVerifyPeers = "tls_verify_peers"
	OptionTLSCertPath    = "tls_cert_path"
	OptionTLSKeyPath     = "tls_key_path"
)

// NetworkCall 记录一次网络选项设置。密码类的值被隐藏。
type NetworkCall struct {
	Option string
	Value  string
}

// NetworkOptions 连接的传输层选项。打开数据库之后不可再修改。
type NetworkOptions struct {
	mu     sync.Mutex
	frozen bool
	calls  []NetworkCall

	password    string
	caPath      string
	verifyPeers []byte
	certPath    string
	keyPath     string
}

func (n *NetworkOptions) set(option, display string, apply func()) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.frozen {
		return fmt.Errorf("%w: %s", ErrOptionsFrozen, option)
	}
	apply()
	n.calls = append(n.calls, NetworkCall{Option: option, Value: display})
	return nil
}

// SetTLSPassword 设置私钥密码。
func (n *NetworkOptions) SetTLSPassword(password string) error {
	return n.set(OptionTLSPassword, "***", func() { n.password = password })
}

// SetTLSCAPath 设置 CA 证书文件路径。
func (n *NetworkOptions) SetTLSCAPath(path string) error {
	return n.set(OptionTLSCAPath, path, func() { n.caPath = path })
}

// SetTLSVerifyPeers 设置对端校验规则，例如 "Check.Valid=0" 或 "S.CN=etcd.internal"。
func (n *NetworkOptions) SetTLSVerifyPeers(rule []byte) error {
	return n.set(OptionTLSVerifyPeers, string(rule), func() { n.verifyPeers = append([]byte(nil), rule...) })
}

// SetTLSCertPath 设置证书链文件路径。
func (n *NetworkOptions) SetTLSCertPath(path string) error {
	return n.set(OptionTLSCertPath, path, func() { n.certPath = path })
}

// SetTLSKeyPath 设置私钥文件路径。
func (n *NetworkOptions) SetTLSKeyPath(path string) error {
	return n.set(OptionTLSKeyPath, path, func() { n.keyPath = path })
}

// Calls 返回按顺序记录的全部设置调用。
func (n *NetworkOptions) Calls() []NetworkCall {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]NetworkCall(nil), n.calls...)
}

// Frozen 返回选项是否已冻结。
func (n *NetworkOptions) Frozen() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.frozen
}

func (n *NetworkOptions) freeze() {
	n.mu.Lock()
	n.frozen = true
	n.mu.Unlock()
}

// tlsConfig 根据已设置的选项构建 TLS 配置，没有任何 TLS 选项时返回 nil。
func (n *NetworkOptions) tlsConfig() (*tls.Config, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.caPath == "" && n.certPath == "" && n.keyPath == "" {
		return nil, nil
	}
	peers, err := parseVerifyPeers(string(n.verifyPeers))
	if err != nil {
		return nil, err
	}

	info := transport.TLSInfo{
		TrustedCAFile:      n.caPath,
		ServerName:         peers.serverName,
		InsecureSkipVerify: peers.skipVerify,
	}
	if n.password == "" {
		info.CertFile = n.certPath
		info.KeyFile = n.keyPath
	}
	cfg, err := info.ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("xkv: build tls config: %w", err)
	}
	if n.password != "" && n.certPath != "" {
		cert, err := loadEncryptedKeyPair(n.certPath, n.keyPath, n.password)
		if err != nil {
			return nil, err
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}

// loadEncryptedKeyPair 读取证书链与（可能加密的）PEM 私钥。
func loadEncryptedKeyPair(certPath, keyPath, password string) (tls.Certificate, error) {
	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("xkv: read certificate: %w", err)
	}
	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("xkv: read key: %w", err)
	}
	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return tls.Certificate{}, fmt.Errorf("xkv: key %s: no PEM block", keyPath)
	}
	//nolint:staticcheck // 加密 PEM 私钥只能通过 DecryptPEMBlock 解密
	if x509.IsEncryptedPEMBlock(block) {
		//nolint:staticcheck
		der, err := x509.DecryptPEMBlock(block, []byte(password))
		if err != nil {
			return tls.Certificate{}, fmt.Errorf("xkv: decrypt key %s: %w", keyPath, err)
		}
		keyPEM = pem.EncodeToMemory(&pem.Block{Type: block.Type, Bytes: der})
	}
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("xkv: load key pair: %w", err)
	}
	return cert, nil
}

type verifyPeers struct {
	skipVerify bool
	serverName string
}

// parseVerifyPeers 解析逗号分隔的对端校验规则。
// 支持 Check.Valid=0（不校验证书）与 S.CN=<name>（校验服务端证书主题 CN）。
func parseVerifyPeers(rule string) (verifyPeers, error) {
	var vp verifyPeers
	for clause := range strings.SplitSeq(rule, ",") {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			continue
		}
		k, v, ok := strings.Cut(clause, "=")
		if !ok {
			return verifyPeers{}, fmt.Errorf("xkv: verify peers %q: missing '='", clause)
		}
		switch strings.TrimSpace(k) {
		case "Check.Valid":
			vp.skipVerify = strings.TrimSpace(v) == "0"
		case "S.CN":
			vp.serverName = strings.TrimSpace(v)
		default:
			return verifyPeers{}, fmt.Errorf("xkv: verify peers %q: unsupported field", clause)
		}
	}
	return vp, nil
}
