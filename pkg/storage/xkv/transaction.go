package xkv

import (
	"context"
	"errors"
	"time"
)

// transaction 是一次事务尝试的状态：固定快照、读集合与缓冲写入。
type transaction struct {
	ctx      context.Context
	backend  backend
	recorder EventRecorder
	readOnly bool

	rev    int64
	reads  map[string]int64
	writes map[string]mutation
	order  []string
	err    error
}

func newTransaction(ctx context.Context, b backend, rec EventRecorder, readOnly bool) *transaction {
	return &transaction{
		ctx:      ctx,
		backend:  b,
		recorder: rec,
		readOnly: readOnly,
		reads:    make(map[string]int64),
	}
}

// Get 读取键值。本事务缓冲的写入优先可见。
func (t *transaction) Get(key string) ([]byte, error) {
	if key == "" {
		return nil, &StoreError{Op: "get", Code: CodeInvalidRequest, Err: ErrEmptyKey}
	}
	if w, ok := t.writes[key]; ok {
		if w.delete {
			return nil, nil
		}
		return append([]byte(nil), w.value...), nil
	}

	start := time.Now()
	res, err := t.backend.get(t.ctx, key, t.rev)
	t.recorder.RecordEvent(EventGet, time.Since(start))
	if err != nil {
		return nil, classify("get", err)
	}
	if t.rev == 0 {
		t.rev = res.revision
	}
	if _, seen := t.reads[key]; !seen {
		t.reads[key] = res.modRevision
	}
	if res.modRevision == 0 {
		return nil, nil
	}
	return res.value, nil
}

// ReadRevision 返回快照版本，未固定时从存储获取并固定。
func (t *transaction) ReadRevision() (int64, error) {
	if t.rev != 0 {
		return t.rev, nil
	}
	rev, err := t.backend.revision(t.ctx)
	if err != nil {
		return 0, classify("read revision", err)
	}
	t.rev = rev
	return rev, nil
}

// Set 缓冲写入。
func (t *transaction) Set(key string, value []byte) {
	t.buffer(mutation{key: key, value: append([]byte(nil), value...)})
}

// Clear 缓冲删除。
func (t *transaction) Clear(key string) {
	t.buffer(mutation{key: key, delete: true})
}

func (t *transaction) buffer(m mutation) {
	switch {
	case t.readOnly:
		t.fail(&StoreError{Op: "set", Code: CodeInvalidRequest, Err: ErrReadOnly})
		return
	case m.key == "":
		t.fail(&StoreError{Op: "set", Code: CodeInvalidRequest, Err: ErrEmptyKey})
		return
	}
	if t.writes == nil {
		t.writes = make(map[string]mutation)
	}
	if _, ok := t.writes[m.key]; !ok {
		t.order = append(t.order, m.key)
	}
	t.writes[m.key] = m
}

func (t *transaction) fail(err error) {
	if t.err == nil {
		t.err = err
	}
}

// commit 提交缓冲的写入。没有写入时不访问存储。
func (t *transaction) commit() error {
	if t.err != nil {
		return t.err
	}
	if t.readOnly || len(t.writes) == 0 {
		return nil
	}
	writes := make([]mutation, 0, len(t.order))
	for _, k := range t.order {
		writes = append(writes, t.writes[k])
	}

	start := time.Now()
	ok, err := t.backend.commit(t.ctx, t.reads, writes)
	t.recorder.RecordEvent(EventCommit, time.Since(start))
	if err != nil {
		return classify("commit", err)
	}
	if !ok {
		return &StoreError{Op: "commit", Code: CodeNotCommitted, Err: errConflict}
	}
	return nil
}

var errConflict = errors.New("read set changed before commit")

var (
	_ Transaction     = (*transaction)(nil)
	_ ReadTransaction = (*transaction)(nil)
)
