package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/oggyb/muzz-introductions/internal/store"
)

// Versioned pairs a decoded record with the store version it was read at. Pass
// Version back when building the write so the store can detect lost updates.
type Versioned[T any] struct {
	Value   T
	Version int64
}

// collection is a typed JSON view of one logical table.
type collection[T any] struct {
	s     store.Store
	table store.Table
}

func (c collection[T]) get(ctx context.Context, key string) (Versioned[T], error) {
	it, err := c.s.Get(ctx, c.table, key)
	if err != nil {
		return Versioned[T]{}, err
	}
	var v T
	if err := json.Unmarshal(it.Value, &v); err != nil {
		return Versioned[T]{}, fmt.Errorf("failed to decode %s/%s: %w", c.table, key, err)
	}
	return Versioned[T]{Value: v, Version: it.Version}, nil
}

// write encodes v as a conditional write against version (0 = create).
func (c collection[T]) write(key string, v T, version int64) (store.Write, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return store.Write{}, fmt.Errorf("failed to encode %s/%s: %w", c.table, key, err)
	}
	return store.Write{Table: c.table, Key: key, Value: b, ExpectedVersion: version}, nil
}

// scan decodes inside the store's predicate so the backend only returns the
// items keep accepts. Each item is decoded once.
func (c collection[T]) scan(ctx context.Context, keep func(T) bool) ([]Versioned[T], error) {
	var decodeErr error
	kept := make(map[string]T)
	items, err := c.s.Scan(ctx, c.table, func(it store.Item) bool {
		if decodeErr != nil {
			return false
		}
		var v T
		if err := json.Unmarshal(it.Value, &v); err != nil {
			decodeErr = fmt.Errorf("failed to decode %s/%s: %w", c.table, it.Key, err)
			return false
		}
		if keep != nil && !keep(v) {
			return false
		}
		kept[it.Key] = v
		return true
	})
	if err != nil {
		return nil, err
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	out := make([]Versioned[T], 0, len(items))
	for _, it := range items {
		out = append(out, Versioned[T]{Value: kept[it.Key], Version: it.Version})
	}
	return out, nil
}

// NewID returns a fresh random identifier.
func NewID() string { return uuid.NewString() }

// WithRetry runs fn until it succeeds, fails with something other than a version
// conflict, or attempts are exhausted. fn must redo its reads on every call.
func WithRetry(ctx context.Context, attempts int, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = ctx.Err(); err != nil {
			return err
		}
		if err = fn(); err == nil || !store.IsConflict(err) {
			return err
		}
	}
	return err
}
