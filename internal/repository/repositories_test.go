package repository_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/oggyb/muzz-introductions/internal/db"
	"github.com/oggyb/muzz-introductions/internal/domain"
	"github.com/oggyb/muzz-introductions/internal/repository"
	"github.com/oggyb/muzz-introductions/internal/store"
	"github.com/oggyb/muzz-introductions/internal/store/sqlstore"
)

// setup in-memory DB
func setupRepos(t *testing.T) *repository.Repositories {
	t.Helper()
	return repository.New(setupStore(t))
}

func setupStore(t *testing.T) store.Store {
	t.Helper()
	database, err := db.Open("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()), &gorm.Config{
		Logger:         gormlogger.Discard,
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := database.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	s := sqlstore.New(database)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestUsers_CreateIsCreateOnly(t *testing.T) {
	ctx := context.Background()
	repos := setupRepos(t)

	u := domain.User{UserID: "u1", Points: 100}
	require.NoError(t, repos.Users.Create(ctx, u))
	assert.True(t, store.IsConflict(repos.Users.Create(ctx, u)))

	got, err := repos.Users.Get(ctx, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 100, got.Value.Points)
	assert.EqualValues(t, 1, got.Version)

	_, err = repos.Users.Get(ctx, "missing")
	assert.True(t, store.IsNotFound(err))
}

func TestCommit_StaleVersionWritesNothing(t *testing.T) {
	ctx := context.Background()
	repos := setupRepos(t)
	require.NoError(t, repos.Users.Create(ctx, domain.User{UserID: "u1", Points: 100}))

	v, err := repos.Users.Get(ctx, "u1")
	require.NoError(t, err)

	u := v.Value
	u.Points = 0
	userW, err := repos.Users.Write(u, v.Version)
	require.NoError(t, err)
	histW, err := repos.Points.Write(domain.PointsHistory{ID: "h1", UserID: "u1", Points: -100})
	require.NoError(t, err)
	require.NoError(t, repos.Commit(ctx, userW, histW))

	// replaying the same writes is stale on both rows
	assert.True(t, store.IsConflict(repos.Commit(ctx, userW, histW)))

	hist, err := repos.Points.ListByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, hist, 1)
}

func TestPairs_IndexAndLookup(t *testing.T) {
	ctx := context.Background()
	repos := setupRepos(t)

	pair := domain.MatchPair{MatchID: "p1", MatchAID: "r1", MatchBID: "r2", UserAID: "a", UserBID: "b", Status: domain.StatusConfirmed}
	pw, err := repos.Pairs.Write(pair, 0)
	require.NoError(t, err)
	ia, err := repos.Pairs.IndexWrite("r1", "p1")
	require.NoError(t, err)
	ib, err := repos.Pairs.IndexWrite("r2", "p1")
	require.NoError(t, err)
	require.NoError(t, repos.Commit(ctx, pw, ia, ib))

	id, ok, err := repos.Pairs.Lookup(ctx, "r2")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, domain.PairID("p1"), id)

	_, ok, err = repos.Pairs.Lookup(ctx, "r9")
	require.NoError(t, err)
	assert.False(t, ok)

	// a request can only ever be indexed once
	again, err := repos.Pairs.IndexWrite("r1", "p2")
	require.NoError(t, err)
	assert.True(t, store.IsConflict(repos.Commit(ctx, again)))

	mine, err := repos.Pairs.ListForUser(ctx, "b")
	require.NoError(t, err)
	assert.Len(t, mine, 1)
	confirmed, err := repos.Pairs.ListByStatus(ctx, domain.StatusConfirmed)
	require.NoError(t, err)
	assert.Len(t, confirmed, 1)
}

func TestReviews_OnePerReviewerAndPair(t *testing.T) {
	ctx := context.Background()
	repos := setupRepos(t)

	rv := domain.Review{ReviewID: "x", MatchID: "p1", ReviewerID: "a", TargetID: "b"}
	w, err := repos.Reviews.Write(rv)
	require.NoError(t, err)
	assert.Equal(t, repository.ReviewKey("p1", "a"), w.Key)
	require.NoError(t, repos.Commit(ctx, w))
	assert.True(t, store.IsConflict(repos.Commit(ctx, w)))

	got, ok, err := repos.Reviews.Find(ctx, "p1", "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "b", got.TargetID)

	_, ok, err = repos.Reviews.Find(ctx, "p1", "b")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStats_MissingRowIsZero(t *testing.T) {
	repos := setupRepos(t)

	v, err := repos.Stats.Get(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Zero(t, v.Version)
	assert.Equal(t, "nobody", v.Value.UserID)
	assert.NotNil(t, v.Value.PositiveTags)
}

func TestRequests_ListFilters(t *testing.T) {
	ctx := context.Background()
	repos := setupRepos(t)

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, st := range []domain.Status{domain.StatusWaiting, domain.StatusFailed, domain.StatusWaiting} {
		w, err := repos.Requests.Write(domain.MatchingRequest{
			MatchID:     domain.RequestID(fmt.Sprintf("r%d", i)),
			RequesterID: fmt.Sprintf("u%d", i%2),
			Status:      st,
			CreatedAt:   now,
		}, 0)
		require.NoError(t, err)
		require.NoError(t, repos.Commit(ctx, w))
	}

	waiting, err := repos.Requests.ListByStatus(ctx, domain.StatusWaiting)
	require.NoError(t, err)
	assert.Len(t, waiting, 2)

	mine, err := repos.Requests.ListByRequester(ctx, "u0")
	require.NoError(t, err)
	assert.Len(t, mine, 2)
}

func TestWithRetry(t *testing.T) {
	ctx := context.Background()

	calls := 0
	err := repository.WithRetry(ctx, 3, func() error {
		calls++
		if calls < 3 {
			return store.ErrConflict
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = repository.WithRetry(ctx, 2, func() error { calls++; return store.ErrConflict })
	assert.True(t, store.IsConflict(err))
	assert.Equal(t, 2, calls)

	boom := errors.New("boom")
	calls = 0
	err = repository.WithRetry(ctx, 5, func() error { calls++; return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, repository.WithRetry(canceled, 5, func() error { return nil }), context.Canceled)
}

// countingStore records how many items each Scan handed back.
type countingStore struct {
	store.Store
	returned int
}

func (c *countingStore) Scan(ctx context.Context, table store.Table, keep func(store.Item) bool) ([]store.Item, error) {
	items, err := c.Store.Scan(ctx, table, keep)
	c.returned += len(items)
	return items, err
}

func TestScan_FiltersInsideStore(t *testing.T) {
	ctx := context.Background()
	counting := &countingStore{Store: setupStore(t)}
	repos := repository.New(counting)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	var writes []store.Write
	for i, user := range []string{"u1", "u2", "u3", "u1"} {
		w, err := repos.Requests.Write(domain.MatchingRequest{
			MatchID:     domain.RequestID(fmt.Sprintf("r%d", i)),
			RequesterID: user,
			Status:      domain.StatusWaiting,
			CreatedAt:   now.Add(time.Duration(i) * time.Minute),
		}, 0)
		require.NoError(t, err)
		writes = append(writes, w)
	}
	require.NoError(t, repos.Commit(ctx, writes...))

	got, err := repos.Requests.ListByRequester(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, domain.RequestID("r0"), got[0].Value.MatchID)
	assert.Equal(t, domain.RequestID("r3"), got[1].Value.MatchID)
	assert.EqualValues(t, 1, got[0].Version)
	assert.Equal(t, 2, counting.returned)
}
