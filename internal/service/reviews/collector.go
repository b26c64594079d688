package reviews

import (
	"context"
	"fmt"
	"strings"

	"github.com/oggyb/muzz-introductions/internal/app"
	"github.com/oggyb/muzz-introductions/internal/domain"
	svcErr "github.com/oggyb/muzz-introductions/internal/errors"
	"github.com/oggyb/muzz-introductions/internal/repository"
	"github.com/oggyb/muzz-introductions/internal/store"
)

// Collector records post-date reviews and keeps ReviewStats current.
type Collector struct {
	appCtx *app.AppContext
}

func NewCollector(appCtx *app.AppContext) *Collector {
	return &Collector{appCtx: appCtx}
}

// Input is one reviewer's evaluation.
type Input struct {
	ReviewerID      string
	TargetID        string
	Rating          domain.Rating
	WantToMeetAgain bool
	Tags            []string
	Comment         string
}

// PrepareSubmit validates in against pair and returns the review plus writes
// for the review row and the target's updated stats.
//
// Behavior:
//   - The pair must be scheduled or completed.
//   - Reviewer and target must be the pair's two parties (ErrNotAuthorized).
//   - Ratings must be within 1..5.
//   - A reviewer reviews a pair at most once; the review key enforces it in the store too.
func (c *Collector) PrepareSubmit(ctx context.Context, pair domain.MatchPair, in Input) (domain.Review, []store.Write, error) {
	if pair.Side(in.ReviewerID) == "" || in.TargetID != pair.Counterpart(in.ReviewerID) || in.TargetID == in.ReviewerID {
		return domain.Review{}, nil, fmt.Errorf("%w: reviewer %s, target %s, match %s",
			svcErr.ErrNotAuthorized, in.ReviewerID, in.TargetID, pair.MatchID)
	}
	if pair.Status != domain.StatusScheduled && pair.Status != domain.StatusCompleted {
		return domain.Review{}, nil, svcErr.InvalidOperation("match %s is %s, reviews are not open", pair.MatchID, pair.Status)
	}
	if !in.Rating.Valid() {
		return domain.Review{}, nil, svcErr.InvalidOperation("ratings must be between 1 and 5")
	}

	if _, exists, err := c.appCtx.Repos.Reviews.Find(ctx, pair.MatchID, in.ReviewerID); err != nil {
		return domain.Review{}, nil, err
	} else if exists {
		return domain.Review{}, nil, svcErr.InvalidOperation("user %s already reviewed match %s", in.ReviewerID, pair.MatchID)
	}

	now := c.appCtx.Now()
	review := domain.Review{
		ReviewID:        repository.NewID(),
		MatchID:         pair.MatchID,
		ReviewerID:      in.ReviewerID,
		TargetID:        in.TargetID,
		Rating:          in.Rating,
		WantToMeetAgain: in.WantToMeetAgain,
		Tags:            normalizeTags(in.Tags),
		Comment:         strings.TrimSpace(in.Comment),
		CreatedAt:       now,
	}

	stats, err := c.appCtx.Repos.Stats.Get(ctx, in.TargetID)
	if err != nil {
		return domain.Review{}, nil, err
	}
	updated := Accumulate(stats.Value, review)

	reviewW, err := c.appCtx.Repos.Reviews.Write(review)
	if err != nil {
		return domain.Review{}, nil, err
	}
	statsW, err := c.appCtx.Repos.Stats.Write(updated, stats.Version)
	if err != nil {
		return domain.Review{}, nil, err
	}
	return review, []store.Write{reviewW, statsW}, nil
}

// Accumulate folds one review into the running aggregate:
// avg' = (avg*(n-1) + new) / n, and tags are unioned in first-seen order.
func Accumulate(s domain.ReviewStats, r domain.Review) domain.ReviewStats {
	n := float64(s.TotalReviews + 1)
	step := func(avg float64, v int) float64 { return (avg*(n-1) + float64(v)) / n }

	s.UserID = r.TargetID
	s.AvgAppearance = step(s.AvgAppearance, r.Rating.Appearance)
	s.AvgConversation = step(s.AvgConversation, r.Rating.Conversation)
	s.AvgManners = step(s.AvgManners, r.Rating.Manners)
	s.AvgHonesty = step(s.AvgHonesty, r.Rating.Honesty)
	s.TotalReviews++
	s.PositiveTags = union(s.PositiveTags, r.Tags)
	s.LastReviewedAt = r.CreatedAt
	return s
}

// ExchangeReady is the contact-exchange policy: both reviews present and both
// want to meet again.
func ExchangeReady(a, b *domain.Review) bool {
	return a != nil && b != nil && a.WantToMeetAgain && b.WantToMeetAgain
}

// ContactExchangeReady loads both reviews of pair and applies ExchangeReady.
func (c *Collector) ContactExchangeReady(ctx context.Context, pair domain.MatchPair) (bool, error) {
	a, b, err := c.reviewsOf(ctx, pair)
	if err != nil {
		return false, err
	}
	return ExchangeReady(a, b), nil
}

// ForPair returns the pair's reviews (zero, one or two), A's first.
func (c *Collector) ForPair(ctx context.Context, pair domain.MatchPair) ([]domain.Review, error) {
	a, b, err := c.reviewsOf(ctx, pair)
	if err != nil {
		return nil, err
	}
	out := []domain.Review{}
	for _, r := range []*domain.Review{a, b} {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, nil
}

// Find returns the review reviewerID wrote for the pair, nil if none.
func (c *Collector) Find(ctx context.Context, pairID domain.PairID, reviewerID string) (*domain.Review, error) {
	r, ok, err := c.appCtx.Repos.Reviews.Find(ctx, pairID, reviewerID)
	if err != nil || !ok {
		return nil, err
	}
	return &r, nil
}

// Stats returns the user's aggregate; users never reviewed get a zero row.
func (c *Collector) Stats(ctx context.Context, userID string) (domain.ReviewStats, error) {
	v, err := c.appCtx.Repos.Stats.Get(ctx, userID)
	if err != nil {
		return domain.ReviewStats{}, svcErr.Map(err)
	}
	return v.Value, nil
}

func (c *Collector) reviewsOf(ctx context.Context, pair domain.MatchPair) (*domain.Review, *domain.Review, error) {
	a, err := c.Find(ctx, pair.MatchID, pair.UserAID)
	if err != nil {
		return nil, nil, err
	}
	b, err := c.Find(ctx, pair.MatchID, pair.UserBID)
	if err != nil {
		return nil, nil, err
	}
	return a, b, nil
}

func normalizeTags(tags []string) []string {
	return union(nil, tags)
}

func union(into, tags []string) []string {
	out := make([]string, 0, len(into)+len(tags))
	seen := make(map[string]struct{}, cap(out))
	for _, list := range [][]string{into, tags} {
		for _, t := range list {
			t = strings.TrimSpace(t)
			if t == "" {
				continue
			}
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}
