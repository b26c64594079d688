package pairs_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/muzz-introductions/internal/domain"
	svcErr "github.com/oggyb/muzz-introductions/internal/errors"
	"github.com/oggyb/muzz-introductions/internal/service/pairs"
	"github.com/oggyb/muzz-introductions/internal/service/points"
	"github.com/oggyb/muzz-introductions/internal/service/requests"
	"github.com/oggyb/muzz-introductions/internal/service/servicetest"
)

type fixture struct {
	env   *servicetest.Env
	reqs  *requests.Registry
	pairs *pairs.Registry
}

func setup(t *testing.T) *fixture {
	t.Helper()
	env := servicetest.New(t)
	reqs := requests.NewRegistry(env.App, points.NewLedger(env.App))
	return &fixture{env: env, reqs: reqs, pairs: pairs.NewRegistry(env.App, reqs)}
}

func (f *fixture) request(t *testing.T, userID string) domain.RequestID {
	t.Helper()
	ctx := context.Background()
	f.env.SeedUsers(t, servicetest.User(userID, 100))
	u, err := f.env.App.Repos.Users.Get(ctx, userID)
	require.NoError(t, err)
	req, writes, err := f.reqs.PrepareCreate(u, 100)
	require.NoError(t, err)
	require.NoError(t, f.env.App.Repos.Commit(ctx, writes...))
	return req.MatchID
}

func TestConfirm_LinksBothRequests(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a, b := f.request(t, "alice"), f.request(t, "bob")

	pair, err := f.pairs.Confirm(ctx, a, b)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, pair.Status)
	assert.NotEqual(t, string(a), string(pair.MatchID), "pair ids are distinct from request ids")
	assert.Equal(t, "alice", pair.UserAID)
	assert.Equal(t, "bob", pair.UserBID)

	for _, id := range []domain.RequestID{a, b} {
		req, err := f.reqs.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusConfirmed, req.Value.Status)
		assert.Equal(t, pair.MatchID, req.Value.PairID)

		byReq, ok, err := f.pairs.ByRequest(ctx, id)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, pair.MatchID, byReq.Value.MatchID)
	}

	found, ok, err := f.pairs.Find(ctx, "bob")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, pair.MatchID, found.Value.MatchID)

	viaReq, err := f.pairs.Resolve(ctx, string(a))
	require.NoError(t, err)
	assert.Equal(t, pair.MatchID, viaReq.Value.MatchID)
}

func TestConfirm_RejectsAlreadyPaired(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a, b, c := f.request(t, "alice"), f.request(t, "bob"), f.request(t, "carol")

	_, err := f.pairs.Confirm(ctx, a, b)
	require.NoError(t, err)

	_, err = f.pairs.Confirm(ctx, a, c)
	assert.ErrorIs(t, err, svcErr.ErrAlreadyPaired)
	assert.Equal(t, svcErr.KindInvalidOperation, svcErr.KindOf(err))
}

func TestConfirm_RejectsSelfAndUnknown(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a := f.request(t, "alice")

	_, err := f.pairs.Confirm(ctx, a, a)
	assert.Equal(t, svcErr.KindInvalidOperation, svcErr.KindOf(err))

	_, err = f.pairs.Confirm(ctx, a, "nope")
	assert.Equal(t, svcErr.KindNotFound, svcErr.KindOf(err))
}

func TestConfirm_ConcurrentOperatorsPairOnce(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a, b, c := f.request(t, "alice"), f.request(t, "bob"), f.request(t, "carol")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, other := range []domain.RequestID{b, c} {
		wg.Add(1)
		go func(i int, other domain.RequestID) {
			defer wg.Done()
			_, errs[i] = f.pairs.Confirm(ctx, a, other)
		}(i, other)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		}
	}
	assert.Equal(t, 1, succeeded)

	all, err := f.pairs.ListForUser(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestFind_UnpairedUser(t *testing.T) {
	f := setup(t)
	f.request(t, "alice")

	_, ok, err := f.pairs.Find(context.Background(), "alice")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.pairs.Resolve(context.Background(), "nothing")
	assert.Equal(t, svcErr.KindNotFound, svcErr.KindOf(err))
}
