package xkv

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"
)

// etcdKV 是 etcdBackend 使用的 clientv3.KV 子集。
type etcdKV interface {
	Get(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.GetResponse, error)
	Txn(ctx context.Context) clientv3.Txn
}

// 确保 clientv3.KV 满足 etcdKV。
var _ etcdKV = clientv3.KV(nil)

// etcdBackend 基于 etcd MVCC 版本与 Txn 比较实现 backend。
type etcdBackend struct {
	kv     etcdKV
	client *clientv3.Client
}

// revisionKey 只用于获取集群当前版本。
const revisionKey = "\x00"

type dialConfig struct {
	endpoints            []string
	dialTimeout          time.Duration
	keepAliveTime        time.Duration
	keepAliveTimeout     time.Duration
	dataCenter           string
	tls                  *tls.Config
	username, password   string
	rejectOldCluster     bool
	permitWithoutStreams bool
}

func dialEtcd(cfg dialConfig) (*etcdBackend, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                cfg.keepAliveTime,
			Timeout:             cfg.keepAliveTimeout,
			PermitWithoutStream: cfg.permitWithoutStreams,
		}),
	}
	if cfg.dataCenter != "" {
		dialOpts = append(dialOpts, grpc.WithUserAgent(userAgent(cfg.dataCenter)))
	}

	client, err := clientv3.New(clientv3.Config{
		Endpoints:        cfg.endpoints,
		DialTimeout:      cfg.dialTimeout,
		TLS:              cfg.tls,
		Username:         cfg.username,
		Password:         cfg.password,
		RejectOldCluster: cfg.rejectOldCluster,
		DialOptions:      dialOpts,
	})
	if err != nil {
		return nil, fmt.Errorf("xkv: create etcd client: %w", err)
	}
	return &etcdBackend{kv: client, client: client}, nil
}

// userAgent 把数据中心标签作为 locality 提示放入 gRPC user-agent。
func userAgent(dataCenter string) string {
	return "xkv dc/" + dataCenter
}

func (b *etcdBackend) get(ctx context.Context, key string, rev int64) (readResult, error) {
	var opts []clientv3.OpOption
	if rev > 0 {
		opts = append(opts, clientv3.WithRev(rev))
	}
	resp, err := b.kv.Get(ctx, key, opts...)
	if err != nil {
		return readResult{}, err
	}
	res := readResult{revision: resp.Header.GetRevision()}
	if rev > 0 {
		res.revision = rev
	}
	if len(resp.Kvs) > 0 {
		kv := resp.Kvs[0]
		res.value = kv.Value
		res.modRevision = kv.ModRevision
	}
	return res, nil
}

func (b *etcdBackend) revision(ctx context.Context) (int64, error) {
	resp, err := b.kv.Get(ctx, revisionKey, clientv3.WithCountOnly())
	if err != nil {
		return 0, err
	}
	return resp.Header.GetRevision(), nil
}

func (b *etcdBackend) commit(ctx context.Context, reads map[string]int64, writes []mutation) (bool, error) {
	cmps := make([]clientv3.Cmp, 0, len(reads))
	for key, modRev := range reads {
		cmps = append(cmps, clientv3.Compare(clientv3.ModRevision(key), "=", modRev))
	}
	ops := make([]clientv3.Op, 0, len(writes))
	for _, w := range writes {
		if w.delete {
			ops = append(ops, clientv3.OpDelete(w.key))
			continue
		}
		ops = append(ops, clientv3.OpPut(w.key, string(w.value)))
	}
	resp, err := b.kv.Txn(ctx).If(cmps...).Then(ops...).Commit()
	if err != nil {
		return false, err
	}
	return resp.Succeeded, nil
}

func (b *etcdBackend) close() error {
	if b.client == nil {
		return nil
	}
	return b.client.Close()
}
