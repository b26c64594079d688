package requests_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/muzz-introductions/internal/domain"
	svcErr "github.com/oggyb/muzz-introductions/internal/errors"
	"github.com/oggyb/muzz-introductions/internal/service/points"
	"github.com/oggyb/muzz-introductions/internal/service/requests"
	"github.com/oggyb/muzz-introductions/internal/service/servicetest"
)

func setupRegistry(t *testing.T) (*servicetest.Env, *requests.Registry) {
	t.Helper()
	env := servicetest.NewSQL(t)
	return env, requests.NewRegistry(env.App, points.NewLedger(env.App))
}

// create runs PrepareCreate and commits it, the way the coordinator does.
func create(t *testing.T, env *servicetest.Env, reg *requests.Registry, userID string) domain.MatchingRequest {
	t.Helper()
	ctx := context.Background()
	u, err := env.App.Repos.Users.Get(ctx, userID)
	require.NoError(t, err)
	req, writes, err := reg.PrepareCreate(u, 100)
	require.NoError(t, err)
	require.NoError(t, env.App.Repos.Commit(ctx, writes...))
	return req
}

func TestPrepareCreate_DebitsAndStartsWaiting(t *testing.T) {
	env, reg := setupRegistry(t)
	env.SeedUsers(t, servicetest.User("u1", 100))

	req := create(t, env, reg, "u1")
	assert.Equal(t, domain.StatusWaiting, req.Status)
	assert.Empty(t, req.DateChoices.Dates)
	assert.EqualValues(t, 0, env.Points(t, "u1"))

	active, ok, err := reg.Active(context.Background(), "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, req.MatchID, active.Value.MatchID)
}

func TestPrepareCreate_InsufficientPointsWritesNothing(t *testing.T) {
	env, reg := setupRegistry(t)
	env.SeedUsers(t, servicetest.User("u1", 40))

	u, err := env.App.Repos.Users.Get(context.Background(), "u1")
	require.NoError(t, err)
	_, writes, err := reg.PrepareCreate(u, 100)
	require.ErrorIs(t, err, svcErr.ErrInsufficientPoints)
	assert.Nil(t, writes)

	_, ok, err := reg.Active(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPrepareFail_RefundsExactlyOnce(t *testing.T) {
	env, reg := setupRegistry(t)
	env.SeedUsers(t, servicetest.User("u1", 100))
	ctx := context.Background()
	req := create(t, env, reg, "u1")

	v, err := reg.Get(ctx, req.MatchID)
	require.NoError(t, err)
	u, err := env.App.Repos.Users.Get(ctx, "u1")
	require.NoError(t, err)

	failed, writes, err := reg.PrepareFail(v, u, "no partner")
	require.NoError(t, err)
	require.NoError(t, env.App.Repos.Commit(ctx, writes...))
	assert.True(t, failed.Refunded)
	assert.EqualValues(t, 100, env.Points(t, "u1"))

	// a second attempt is an illegal transition, not a second refund
	v, err = reg.Get(ctx, req.MatchID)
	require.NoError(t, err)
	u, err = env.App.Repos.Users.Get(ctx, "u1")
	require.NoError(t, err)
	_, _, err = reg.PrepareFail(v, u, "again")
	var te *domain.TransitionError
	assert.True(t, errors.As(err, &te))
	assert.EqualValues(t, 100, env.Points(t, "u1"))
}

func TestTransition_EnforcesTable(t *testing.T) {
	env, reg := setupRegistry(t)
	env.SeedUsers(t, servicetest.User("u1", 100))
	ctx := context.Background()
	req := create(t, env, reg, "u1")

	_, err := reg.Transition(ctx, req.MatchID, domain.StatusScheduled, "skip")
	assert.ErrorIs(t, err, svcErr.ErrInvalidTransition)

	_, err = reg.Transition(ctx, req.MatchID, domain.StatusFailed, "")
	assert.Equal(t, svcErr.KindInvalidOperation, svcErr.KindOf(err))

	got, err := reg.Transition(ctx, req.MatchID, domain.StatusMatched, "operator")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusMatched, got.Status)
	require.Len(t, got.Transitions, 1)
	assert.Equal(t, domain.StatusWaiting, got.Transitions[0].From)
	assert.Equal(t, "operator", got.Transitions[0].Reason)

	_, err = reg.Transition(ctx, "missing", domain.StatusMatched, "")
	assert.Equal(t, svcErr.KindNotFound, svcErr.KindOf(err))
}

func TestListWaiting_PaginatesInCreationOrder(t *testing.T) {
	env, reg := setupRegistry(t)
	ctx := context.Background()

	var ids []domain.RequestID
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		env.SeedUsers(t, servicetest.User(id, 100))
		ids = append(ids, create(t, env, reg, id).MatchID)
		env.Clock.Advance(time.Minute)
	}
	// not waiting anymore
	_, err := reg.Transition(ctx, ids[2], domain.StatusMatched, "")
	require.NoError(t, err)

	page, next, err := reg.ListWaiting(ctx, "", 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[0], page[0].MatchID)
	assert.Equal(t, ids[1], page[1].MatchID)
	require.NotEmpty(t, next)

	page, next, err = reg.ListWaiting(ctx, next, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[3], page[0].MatchID)
	assert.Equal(t, ids[4], page[1].MatchID)
	assert.Empty(t, next)

	_, _, err = reg.ListWaiting(ctx, "!!", 2)
	assert.Equal(t, svcErr.KindInvalidOperation, svcErr.KindOf(err))
}

func TestLatest_FallsBackToTerminal(t *testing.T) {
	env, reg := setupRegistry(t)
	env.SeedUsers(t, servicetest.User("u1", 100))
	ctx := context.Background()

	_, ok, err := reg.Latest(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)

	req := create(t, env, reg, "u1")
	v, err := reg.Get(ctx, req.MatchID)
	require.NoError(t, err)
	u, err := env.App.Repos.Users.Get(ctx, "u1")
	require.NoError(t, err)
	_, writes, err := reg.PrepareFail(v, u, "timeout")
	require.NoError(t, err)
	require.NoError(t, env.App.Repos.Commit(ctx, writes...))

	latest, ok, err := reg.Latest(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.StatusFailed, latest.Value.Status)
}
