// Package storetest holds the behavioural suite every store.Store backend must pass.
package storetest

import (
	"context"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/muzz-introductions/internal/store"
)

// Run executes the suite against stores produced by newStore. Each subtest gets a
// fresh store.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, newStore(t)) })
	t.Run("PutAndGet", func(t *testing.T) { testPutAndGet(t, newStore(t)) })
	t.Run("ConditionalPut", func(t *testing.T) { testConditionalPut(t, newStore(t)) })
	t.Run("TransactAllOrNothing", func(t *testing.T) { testTransactAllOrNothing(t, newStore(t)) })
	t.Run("ScanOrderAndFilter", func(t *testing.T) { testScan(t, newStore(t)) })
	t.Run("ConcurrentIncrements", func(t *testing.T) { testConcurrentIncrements(t, newStore(t)) })
}

func testGetMissing(t *testing.T, s store.Store) {
	_, err := s.Get(context.Background(), store.Users, "nobody")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testPutAndGet(t *testing.T, s store.Store) {
	ctx := context.Background()

	v, err := s.Put(ctx, store.Write{Table: store.Users, Key: "u1", Value: []byte(`{"points":100}`)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	it, err := s.Get(ctx, store.Users, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), it.Version)
	assert.JSONEq(t, `{"points":100}`, string(it.Value))

	// same key in another table is independent
	_, err = s.Get(ctx, store.MatchPairs, "u1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testConditionalPut(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.Put(ctx, store.Write{Table: store.Users, Key: "u1", Value: []byte(`{"n":1}`)})
	require.NoError(t, err)

	// create-only write against an existing key
	_, err = s.Put(ctx, store.Write{Table: store.Users, Key: "u1", Value: []byte(`{"n":2}`)})
	assert.ErrorIs(t, err, store.ErrConflict)

	// stale version
	_, err = s.Put(ctx, store.Write{Table: store.Users, Key: "u1", Value: []byte(`{"n":2}`), ExpectedVersion: 7})
	assert.ErrorIs(t, err, store.ErrConflict)

	v, err := s.Put(ctx, store.Write{Table: store.Users, Key: "u1", Value: []byte(`{"n":2}`), ExpectedVersion: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	it, err := s.Get(ctx, store.Users, "u1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":2}`, string(it.Value))
}

func testTransactAllOrNothing(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.Put(ctx, store.Write{Table: store.Users, Key: "u1", Value: []byte(`{"points":100}`)})
	require.NoError(t, err)

	// second write is stale: nothing may be applied
	err = s.Transact(ctx,
		store.Write{Table: store.PointsHistory, Key: "h1", Value: []byte(`{"points":-100}`)},
		store.Write{Table: store.Users, Key: "u1", Value: []byte(`{"points":0}`), ExpectedVersion: 5},
	)
	assert.ErrorIs(t, err, store.ErrConflict)

	_, err = s.Get(ctx, store.PointsHistory, "h1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	it, err := s.Get(ctx, store.Users, "u1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"points":100}`, string(it.Value))

	require.NoError(t, s.Transact(ctx,
		store.Write{Table: store.PointsHistory, Key: "h1", Value: []byte(`{"points":-100}`)},
		store.Write{Table: store.Users, Key: "u1", Value: []byte(`{"points":0}`), ExpectedVersion: 1},
	))

	it, err = s.Get(ctx, store.Users, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), it.Version)
	_, err = s.Get(ctx, store.PointsHistory, "h1")
	assert.NoError(t, err)
}

func testScan(t *testing.T, s store.Store) {
	ctx := context.Background()

	for _, k := range []string{"c", "a", "b"} {
		_, err := s.Put(ctx, store.Write{Table: store.MatchingRequests, Key: k, Value: []byte(`{"k":"` + k + `"}`)})
		require.NoError(t, err)
	}
	// updating must not move a key in insertion order
	_, err := s.Put(ctx, store.Write{Table: store.MatchingRequests, Key: "c", Value: []byte(`{"k":"c2"}`), ExpectedVersion: 1})
	require.NoError(t, err)

	all, err := s.Scan(ctx, store.MatchingRequests, store.All)
	require.NoError(t, err)
	require.Len(t, all, 3)

	keys := make([]string, 0, len(all))
	for _, it := range all {
		keys = append(keys, it.Key)
	}
	assert.ElementsMatch(t, []string{"a", "b", "c"}, keys)

	some, err := s.Scan(ctx, store.MatchingRequests, func(it store.Item) bool { return it.Key != "a" })
	require.NoError(t, err)
	assert.Len(t, some, 2)

	empty, err := s.Scan(ctx, store.Reviews, store.All)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

// testConcurrentIncrements runs optimistic read-modify-write loops from several
// goroutines; with conditional writes, no increment may be lost.
func testConcurrentIncrements(t *testing.T, s store.Store) {
	ctx := context.Background()
	_, err := s.Put(ctx, store.Write{Table: store.Users, Key: "counter", Value: []byte("0")})
	require.NoError(t, err)

	const workers, perWorker = 4, 10
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				for {
					it, err := s.Get(ctx, store.Users, "counter")
					if err != nil {
						t.Error(err)
						return
					}
					n := atoi(string(it.Value)) + 1
					_, err = s.Put(ctx, store.Write{Table: store.Users, Key: "counter", Value: []byte(itoa(n)), ExpectedVersion: it.Version})
					if err == nil {
						break
					}
					if !store.IsConflict(err) {
						t.Error(err)
						return
					}
				}
			}
		}()
	}
	wg.Wait()

	it, err := s.Get(ctx, store.Users, "counter")
	require.NoError(t, err)
	assert.Equal(t, itoa(workers*perWorker), string(it.Value))
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func itoa(n int) string { return strconv.Itoa(n) }
