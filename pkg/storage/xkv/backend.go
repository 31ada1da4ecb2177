package xkv

import (
	"context"
	"sort"
	"sync"
)

// mutation 事务提交时的一次写入。
type mutation struct {
	key    string
	value  []byte
	delete bool
}

// readResult 一次快照读取的结果。modRevision 为 0 表示键不存在。
type readResult struct {
	value       []byte
	modRevision int64
	revision    int64
}

// backend 事务层依赖的最小存储原语。
//
// get 在 rev 快照上读取（rev 为 0 时读取最新值并返回当前版本）；
// commit 在 reads 中每个键的 ModRevision 未变化时原子地应用 writes，
// 比较失败时返回 false, nil。
type backend interface {
	get(ctx context.Context, key string, rev int64) (readResult, error)
	revision(ctx context.Context) (int64, error)
	commit(ctx context.Context, reads map[string]int64, writes []mutation) (bool, error)
	close() error
}

// memoryBackend 进程内多版本存储，用于测试和不依赖集群的场景。
type memoryBackend struct {
	mu       sync.Mutex
	rev      int64
	versions map[string][]memoryVersion

	// 故障注入钩子，测试使用
	getHook    func(key string) error
	commitHook func() error
}

type memoryVersion struct {
	rev    int64
	value  []byte
	delete bool
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{rev: 1, versions: make(map[string][]memoryVersion)}
}

func (m *memoryBackend) get(ctx context.Context, key string, rev int64) (readResult, error) {
	if err := ctx.Err(); err != nil {
		return readResult{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getHook != nil {
		if err := m.getHook(key); err != nil {
			return readResult{}, err
		}
	}
	if rev == 0 {
		rev = m.rev
	}
	res := readResult{revision: rev}
	if v, ok := m.versionAt(key, rev); ok && !v.delete {
		res.value = append([]byte(nil), v.value...)
		res.modRevision = v.rev
	}
	return res, nil
}

func (m *memoryBackend) versionAt(key string, rev int64) (memoryVersion, bool) {
	vs := m.versions[key]
	i := sort.Search(len(vs), func(i int) bool { return vs[i].rev > rev })
	if i == 0 {
		return memoryVersion{}, false
	}
	return vs[i-1], true
}

func (m *memoryBackend) revision(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rev, nil
}

func (m *memoryBackend) commit(ctx context.Context, reads map[string]int64, writes []mutation) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.commitHook != nil {
		if err := m.commitHook(); err != nil {
			return false, err
		}
	}
	for key, modRev := range reads {
		cur := int64(0)
		if v, ok := m.versionAt(key, m.rev); ok && !v.delete {
			cur = v.rev
		}
		if cur != modRev {
			return false, nil
		}
	}
	if len(writes) == 0 {
		return true, nil
	}
	m.rev++
	for _, w := range writes {
		m.versions[w.key] = append(m.versions[w.key], memoryVersion{
			rev:    m.rev,
			value:  append([]byte(nil), w.value...),
			delete: w.delete,
		})
	}
	return true, nil
}

func (m *memoryBackend) close() error { return nil }

// setHooks 并发安全地设置故障注入钩子。
func (m *memoryBackend) setHooks(get func(string) error, commit func() error) {
	m.mu.Lock()
	m.getHook = get
	m.commitHook = commit
	m.mu.Unlock()
}
