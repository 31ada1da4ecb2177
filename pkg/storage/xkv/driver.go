package xkv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// MinAPIVersion 支持的最低 API 版本。
const MinAPIVersion = 100

// Driver 打开数据库连接的构建器。
//
// 每个 Driver 只能打开一次数据库；网络选项在打开之前设置，之后冻结。
// StopNetwork 关闭该 Driver 打开的所有连接。
type Driver struct {
	apiVersion int
	network    *NetworkOptions
	dial       func(ctx context.Context, d ClusterDescriptor, o *openOptions) (backend, error)

	mu      sync.Mutex
	opened  bool
	stopped bool
	conns   []*Conn
}

// NewDriver 创建连接 etcd 集群的 Driver。apiVersion 必须 >= MinAPIVersion。
func NewDriver(apiVersion int) (*Driver, error) {
	if apiVersion < MinAPIVersion {
		return nil, &ConfigError{Violations: []string{
			fmt.Sprintf("apiVersion %d is below the minimum %d", apiVersion, MinAPIVersion),
		}}
	}
	d := &Driver{apiVersion: apiVersion, network: &NetworkOptions{}}
	d.dial = d.dialEtcd
	return d, nil
}

// NewMemoryDriver 创建使用进程内存储的 Driver，集群描述符只做格式校验。
// 同一 Driver 打开的连接共享数据。
func NewMemoryDriver(apiVersion int) (*Driver, error) {
	d, err := NewDriver(apiVersion)
	if err != nil {
		return nil, err
	}
	mem := newMemoryBackend()
	d.dial = func(context.Context, ClusterDescriptor, *openOptions) (backend, error) {
		return mem, nil
	}
	return d, nil
}

// APIVersion 返回 Driver 的 API 版本。
func (d *Driver) APIVersion() int { return d.apiVersion }

// NetworkOptions 返回传输层选项。
func (d *Driver) NetworkOptions() *NetworkOptions { return d.network }

// Open 解析集群描述符并打开数据库连接。
func (d *Driver) Open(ctx context.Context, descriptor string, opts ...OpenOption) (*Conn, error) {
	o := defaultOpenOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	if o.dataCenter == "" {
		return nil, &ConfigError{Violations: []string{"dataCenter is required"}}
	}
	if o.maxConcurrent < 1 {
		return nil, &ConfigError{Violations: []string{"maxConcurrentTransactions must be >= 1"}}
	}
	desc, err := ParseClusterDescriptor(descriptor)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	switch {
	case d.stopped:
		return nil, ErrNetworkStopped
	case d.opened:
		return nil, ErrAlreadyOpen
	}
	d.network.freeze()

	if ctx == nil {
		ctx = context.Background()
	}
	b, err := d.dial(ctx, desc, o)
	if err != nil {
		return nil, err
	}
	d.opened = true

	conn := newConn(b, desc, o)
	conn.onClose = func() { d.forget(conn) }
	d.conns = append(d.conns, conn)

	o.logger.Info("database opened",
		slog.String("cluster", desc.String()),
		slog.String("data_center", o.dataCenter),
		slog.Int("api_version", d.apiVersion),
	)
	return conn, nil
}

func (d *Driver) dialEtcd(_ context.Context, desc ClusterDescriptor, o *openOptions) (backend, error) {
	tlsCfg, err := d.network.tlsConfig()
	if err != nil {
		return nil, err
	}
	return dialEtcd(dialConfig{
		endpoints:            desc.Endpoints,
		dialTimeout:          o.dialTimeout,
		keepAliveTime:        o.keepAliveTime,
		keepAliveTimeout:     o.keepAliveTimeout,
		dataCenter:           o.dataCenter,
		tls:                  tlsCfg,
		username:             o.username,
		password:             o.password,
		rejectOldCluster:     o.rejectOldCluster,
		permitWithoutStreams: true,
	})
}

func (d *Driver) forget(c *Conn) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, cc := range d.conns {
		if cc == c {
			d.conns = append(d.conns[:i], d.conns[i+1:]...)
			return
		}
	}
}

// StopNetwork 关闭该 Driver 打开的所有连接，幂等。停止后不能再打开数据库。
func (d *Driver) StopNetwork() error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	conns := d.conns
	d.conns = nil
	d.mu.Unlock()

	var errs []error
	for _, c := range conns {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Stopped 返回网络是否已停止。
func (d *Driver) Stopped() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopped
}

// OpenOption 打开数据库时的选项。
type OpenOption func(*openOptions)

type openOptions struct {
	dataCenter       string
	maxConcurrent    int64
	executor         Executor
	recorder         EventRecorder
	logger           *slog.Logger
	dialTimeout      time.Duration
	keepAliveTime    time.Duration
	keepAliveTimeout time.Duration
	username         string
	password         string
	rejectOldCluster bool
}

// 打开选项默认值。
const (
	DefaultMaxConcurrentTransactions = 1024
	DefaultDialTimeout               = 5 * time.Second
	DefaultKeepAliveTime             = 30 * time.Second
	DefaultKeepAliveTimeout          = 10 * time.Second
)

func defaultOpenOptions() *openOptions {
	return &openOptions{
		maxConcurrent:    DefaultMaxConcurrentTransactions,
		executor:         goExecutor{},
		recorder:         nopRecorder{},
		logger:           slog.Default(),
		dialTimeout:      DefaultDialTimeout,
		keepAliveTime:    DefaultKeepAliveTime,
		keepAliveTimeout: DefaultKeepAliveTimeout,
	}
}

// WithDataCenter 设置数据中心标签，必填。
func WithDataCenter(dc string) OpenOption {
	return func(o *openOptions) {
		o.dataCenter = dc
	}
}

// WithMaxConcurrentTransactions 设置并发事务上限。
func WithMaxConcurrentTransactions(n int64) OpenOption {
	return func(o *openOptions) {
		o.maxConcurrent = n
	}
}

// WithExecutor 设置异步事务的执行器，nil 时保持默认（每个任务一个 goroutine）。
func WithExecutor(e Executor) OpenOption {
	return func(o *openOptions) {
		if e != nil {
			o.executor = e
		}
	}
}

// WithEventRecorder 设置存储事件耗时记录器。
func WithEventRecorder(r EventRecorder) OpenOption {
	return func(o *openOptions) {
		if r != nil {
			o.recorder = r
		}
	}
}

// WithLogger 设置日志记录器。
func WithLogger(l *slog.Logger) OpenOption {
	return func(o *openOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithDialTimeout 设置建立连接的超时。
func WithDialTimeout(d time.Duration) OpenOption {
	return func(o *openOptions) {
		if d > 0 {
			o.dialTimeout = d
		}
	}
}

// WithKeepAlive 设置 gRPC keepalive 间隔与超时。
func WithKeepAlive(interval, timeout time.Duration) OpenOption {
	return func(o *openOptions) {
		if interval > 0 {
			o.keepAliveTime = interval
		}
		if timeout > 0 {
			o.keepAliveTimeout = timeout
		}
	}
}

// WithAuth 设置 etcd 用户名和密码。
func WithAuth(username, password string) OpenOption {
	return func(o *openOptions) {
		o.username = username
		o.password = password
	}
}

// WithRejectOldCluster 拒绝连接过旧版本的集群。
func WithRejectOldCluster(reject bool) OpenOption {
	return func(o *openOptions) {
		o.rejectOldCluster = reject
	}
}
