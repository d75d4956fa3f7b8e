package snapshot

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"slices"
	"sync"
)

// MemoryStore keeps snapshots in process. It follows the same activation and
// retention rules as PostgresStore.
type MemoryStore struct {
	mu     sync.Mutex
	rows   []ConfigSnapshot
	nextID int64
	opts   options
}

func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{nextID: 1, opts: newOptions(opts)}
}

func (m *MemoryStore) Current(_ context.Context, namespace string) (*ConfigSnapshot, error) {
	namespace = namespaceOrDefault(namespace)

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, row := range m.rows {
		if row.Namespace == namespace && row.IsActive {
			out := clone(row)
			return &out, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) Replace(_ context.Context, s ConfigSnapshot) (int64, error) {
	s, err := prepare(s, m.opts)
	if err != nil {
		return 0, errors.Join(ErrReplaceFailed, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.rows {
		if m.rows[i].Namespace == s.Namespace {
			m.rows[i].IsActive = false
		}
	}

	s.ID = m.nextID
	m.nextID++
	m.rows = append(m.rows, clone(s))
	m.gc(s.Namespace)
	return s.ID, nil
}

func (m *MemoryStore) History(_ context.Context, namespace string) ([]ConfigSnapshot, error) {
	namespace = namespaceOrDefault(namespace)

	m.mu.Lock()
	defer m.mu.Unlock()

	var out []ConfigSnapshot
	for _, row := range m.rows {
		if row.Namespace == namespace {
			out = append(out, clone(row))
		}
	}
	slices.SortFunc(out, newestFirst)
	return out, nil
}

// gc must be called with the lock held.
func (m *MemoryStore) gc(namespace string) {
	var ns []ConfigSnapshot
	for _, row := range m.rows {
		if row.Namespace == namespace {
			ns = append(ns, row)
		}
	}
	if len(ns) <= m.opts.retention {
		return
	}
	slices.SortFunc(ns, activeThenNewest)

	drop := make(map[int64]struct{}, len(ns)-m.opts.retention)
	for _, row := range ns[m.opts.retention:] {
		drop[row.ID] = struct{}{}
	}
	m.rows = slices.DeleteFunc(m.rows, func(row ConfigSnapshot) bool {
		_, ok := drop[row.ID]
		return ok
	})
}

// activeThenNewest ranks the active row ahead of the rest, so it always
// counts toward retention even when its CreatedAt is older.
func activeThenNewest(a, b ConfigSnapshot) int {
	if a.IsActive != b.IsActive {
		if a.IsActive {
			return -1
		}
		return 1
	}
	return newestFirst(a, b)
}

func newestFirst(a, b ConfigSnapshot) int {
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(b.ID, a.ID)
}

func clone(s ConfigSnapshot) ConfigSnapshot {
	s.JSON = bytes.Clone(s.JSON)
	if s.Version != nil {
		v := *s.Version
		s.Version = &v
	}
	if s.ETag != nil {
		v := *s.ETag
		s.ETag = &v
	}
	return s
}
