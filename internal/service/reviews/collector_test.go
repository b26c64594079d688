package reviews_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/muzz-introductions/internal/domain"
	svcErr "github.com/oggyb/muzz-introductions/internal/errors"
	"github.com/oggyb/muzz-introductions/internal/service/reviews"
	"github.com/oggyb/muzz-introductions/internal/service/servicetest"
	"github.com/oggyb/muzz-introductions/internal/store"
)

func scheduledPair(id string) domain.MatchPair {
	return domain.MatchPair{
		MatchID: domain.PairID(id),
		UserAID: "a",
		UserBID: "b",
		Status:  domain.StatusScheduled,
	}
}

func rating(v int) domain.Rating {
	return domain.Rating{Appearance: v, Conversation: v, Manners: v, Honesty: v}
}

func submit(t *testing.T, env *servicetest.Env, c *reviews.Collector, pair domain.MatchPair, in reviews.Input) domain.Review {
	t.Helper()
	ctx := context.Background()
	r, writes, err := c.PrepareSubmit(ctx, pair, in)
	require.NoError(t, err)
	require.NoError(t, env.App.Repos.Commit(ctx, writes...))
	return r
}

func TestSubmit_RunningAverageAndTagUnion(t *testing.T) {
	env := servicetest.New(t)
	c := reviews.NewCollector(env.App)
	ctx := context.Background()

	submit(t, env, c, scheduledPair("p1"), reviews.Input{
		ReviewerID: "a", TargetID: "b", Rating: domain.Rating{Appearance: 4, Conversation: 5, Manners: 5, Honesty: 5},
		Tags: []string{"kind", "funny", "kind"},
	})
	submit(t, env, c, scheduledPair("p2"), reviews.Input{
		ReviewerID: "a", TargetID: "b", Rating: domain.Rating{Appearance: 2, Conversation: 3, Manners: 5, Honesty: 4},
		Tags: []string{"funny", "punctual"},
	})

	stats, err := c.Stats(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalReviews)
	assert.InDelta(t, 3.0, stats.AvgAppearance, 1e-9)
	assert.InDelta(t, 4.0, stats.AvgConversation, 1e-9)
	assert.InDelta(t, 4.5, stats.AvgHonesty, 1e-9)
	assert.Equal(t, []string{"kind", "funny", "punctual"}, stats.PositiveTags)
}

func TestSubmit_Authorization(t *testing.T) {
	env := servicetest.New(t)
	c := reviews.NewCollector(env.App)
	ctx := context.Background()
	pair := scheduledPair("p1")

	cases := []reviews.Input{
		{ReviewerID: "mallory", TargetID: "b", Rating: rating(3)},
		{ReviewerID: "a", TargetID: "mallory", Rating: rating(3)},
		{ReviewerID: "a", TargetID: "a", Rating: rating(3)},
	}
	for _, in := range cases {
		_, _, err := c.PrepareSubmit(ctx, pair, in)
		assert.ErrorIs(t, err, svcErr.ErrNotAuthorized)
	}
}

func TestSubmit_RejectsClosedPairsBadRatingsAndDuplicates(t *testing.T) {
	env := servicetest.New(t)
	c := reviews.NewCollector(env.App)
	ctx := context.Background()

	closed := scheduledPair("p1")
	closed.Status = domain.StatusConfirmed
	_, _, err := c.PrepareSubmit(ctx, closed, reviews.Input{ReviewerID: "a", TargetID: "b", Rating: rating(3)})
	assert.Equal(t, svcErr.KindInvalidOperation, svcErr.KindOf(err))

	_, _, err = c.PrepareSubmit(ctx, scheduledPair("p1"), reviews.Input{ReviewerID: "a", TargetID: "b", Rating: rating(6)})
	assert.Equal(t, svcErr.KindInvalidOperation, svcErr.KindOf(err))

	in := reviews.Input{ReviewerID: "a", TargetID: "b", Rating: rating(3)}
	submit(t, env, c, scheduledPair("p1"), in)
	_, _, err = c.PrepareSubmit(ctx, scheduledPair("p1"), in)
	assert.Equal(t, svcErr.KindInvalidOperation, svcErr.KindOf(err))
}

func TestSubmit_StoreRejectsRacingDuplicate(t *testing.T) {
	env := servicetest.New(t)
	c := reviews.NewCollector(env.App)
	ctx := context.Background()
	in := reviews.Input{ReviewerID: "a", TargetID: "b", Rating: rating(3)}

	// both prepared before either commits
	_, w1, err := c.PrepareSubmit(ctx, scheduledPair("p1"), in)
	require.NoError(t, err)
	_, w2, err := c.PrepareSubmit(ctx, scheduledPair("p1"), in)
	require.NoError(t, err)

	require.NoError(t, env.App.Repos.Commit(ctx, w1...))
	assert.True(t, store.IsConflict(env.App.Repos.Commit(ctx, w2...)))

	stats, err := c.Stats(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalReviews)
}

func TestContactExchangeReady(t *testing.T) {
	cases := []struct {
		name   string
		a, b   *bool
		expect bool
	}{
		{"none", nil, nil, false},
		{"one side only", ptr(true), nil, false},
		{"one declines", ptr(true), ptr(false), false},
		{"both decline", ptr(false), ptr(false), false},
		{"mutual", ptr(true), ptr(true), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := servicetest.New(t)
			c := reviews.NewCollector(env.App)
			pair := scheduledPair("p1")
			if tc.a != nil {
				submit(t, env, c, pair, reviews.Input{ReviewerID: "a", TargetID: "b", Rating: rating(4), WantToMeetAgain: *tc.a})
			}
			if tc.b != nil {
				submit(t, env, c, pair, reviews.Input{ReviewerID: "b", TargetID: "a", Rating: rating(4), WantToMeetAgain: *tc.b})
			}
			ready, err := c.ContactExchangeReady(context.Background(), pair)
			require.NoError(t, err)
			assert.Equal(t, tc.expect, ready)
		})
	}
}

func TestStats_NeverReviewed(t *testing.T) {
	env := servicetest.New(t)
	c := reviews.NewCollector(env.App)

	stats, err := c.Stats(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Zero(t, stats.TotalReviews)
	assert.NotNil(t, stats.PositiveTags)
}

func ptr(b bool) *bool { return &b }
