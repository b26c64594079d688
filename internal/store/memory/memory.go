package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/oggyb/muzz-introductions/internal/store"
)

// Store is an in-memory implementation of store.Store. It is safe for concurrent
// use and is primarily intended for tests and local development.
type Store struct {
	mu     sync.RWMutex
	tables map[store.Table]*table
}

type table struct {
	rows  map[string]store.Item
	order []string // insertion order
}

var _ store.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{tables: make(map[store.Table]*table)}
}

func (s *Store) tableLocked(name store.Table) *table {
	t, ok := s.tables[name]
	if !ok {
		t = &table{rows: make(map[string]store.Item)}
		s.tables[name] = t
	}
	return t
}

func (s *Store) Get(ctx context.Context, name store.Table, key string) (store.Item, error) {
	if err := ctx.Err(); err != nil {
		return store.Item{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tables[name]
	if !ok {
		return store.Item{}, store.ErrNotFound
	}
	it, ok := t.rows[key]
	if !ok {
		return store.Item{}, store.ErrNotFound
	}
	return copyItem(it), nil
}

func (s *Store) Put(ctx context.Context, w store.Write) (int64, error) {
	if err := s.Transact(ctx, w); err != nil {
		return 0, err
	}
	return w.ExpectedVersion + 1, nil
}

func (s *Store) Transact(ctx context.Context, writes ...store.Write) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool, len(writes))
	for _, w := range writes {
		id := string(w.Table) + "/" + w.Key
		if seen[id] {
			return fmt.Errorf("memory: duplicate key %s in transaction", id)
		}
		seen[id] = true

		current := int64(0)
		if t, ok := s.tables[w.Table]; ok {
			if it, ok := t.rows[w.Key]; ok {
				current = it.Version
			}
		}
		if current != w.ExpectedVersion {
			return fmt.Errorf("%w: %s/%s at version %d, expected %d",
				store.ErrConflict, w.Table, w.Key, current, w.ExpectedVersion)
		}
	}

	for _, w := range writes {
		t := s.tableLocked(w.Table)
		if _, exists := t.rows[w.Key]; !exists {
			t.order = append(t.order, w.Key)
		}
		t.rows[w.Key] = store.Item{
			Table:   w.Table,
			Key:     w.Key,
			Value:   append([]byte(nil), w.Value...),
			Version: w.ExpectedVersion + 1,
		}
	}
	return nil
}

func (s *Store) Scan(ctx context.Context, name store.Table, keep func(store.Item) bool) ([]store.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tables[name]
	if !ok {
		return nil, nil
	}
	var out []store.Item
	for _, key := range t.order {
		it := t.rows[key]
		if keep == nil || keep(it) {
			out = append(out, copyItem(it))
		}
	}
	return out, nil
}

func (s *Store) Close() error { return nil }

func copyItem(it store.Item) store.Item {
	it.Value = append([]byte(nil), it.Value...)
	return it
}
