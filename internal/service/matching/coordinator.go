package matching

import (
	"context"
	"fmt"
	"time"

	"github.com/oggyb/muzz-introductions/internal/app"
	"github.com/oggyb/muzz-introductions/internal/domain"
	svcErr "github.com/oggyb/muzz-introductions/internal/errors"
	"github.com/oggyb/muzz-introductions/internal/events"
	"github.com/oggyb/muzz-introductions/internal/metrics"
	"github.com/oggyb/muzz-introductions/internal/repository"
	"github.com/oggyb/muzz-introductions/internal/service/pairs"
	"github.com/oggyb/muzz-introductions/internal/service/points"
	"github.com/oggyb/muzz-introductions/internal/service/requests"
	"github.com/oggyb/muzz-introductions/internal/service/reviews"
	"github.com/oggyb/muzz-introductions/internal/service/schedule"
	"github.com/oggyb/muzz-introductions/internal/store"
)

// Coordinator is the lifecycle façade the transport layer talks to.
// Every mutating operation reads what it needs, prepares its writes through the
// owning component, and commits them in one Store transaction. The whole cycle
// is re-run when another writer got there first.
type Coordinator struct {
	appCtx *app.AppContext

	Ledger   *points.Ledger
	Requests *requests.Registry
	Pairs    *pairs.Registry
	Reviews  *reviews.Collector
}

// New wires the components on top of appCtx.
func New(appCtx *app.AppContext) *Coordinator {
	ledger := points.NewLedger(appCtx)
	reqs := requests.NewRegistry(appCtx, ledger)
	return &Coordinator{
		appCtx:   appCtx,
		Ledger:   ledger,
		Requests: reqs,
		Pairs:    pairs.NewRegistry(appCtx, reqs),
		Reviews:  reviews.NewCollector(appCtx),
	}
}

// run executes one read-modify-write cycle with conflict retries, maps the
// error into the service taxonomy, and records the outcome.
func (c *Coordinator) run(ctx context.Context, op string, fn func() error) error {
	start := time.Now()
	err := svcErr.Map(repository.WithRetry(ctx, c.appCtx.MaxRetries(), fn))

	outcome := "ok"
	if err != nil {
		outcome = svcErr.KindOf(err).String()
		if svcErr.KindOf(err) == svcErr.KindInternal {
			c.appCtx.Logger.Error(op+" failed", "err", err)
		} else {
			c.appCtx.Logger.Debug(op+" rejected", "err", err)
		}
	}
	metrics.RecordOperation(op, outcome, time.Since(start))
	return err
}

func (c *Coordinator) user(ctx context.Context, userID string) (repository.Versioned[domain.User], error) {
	u, err := c.appCtx.Repos.Users.Get(ctx, userID)
	if store.IsNotFound(err) {
		return u, svcErr.NotFound("user %s not found", userID)
	}
	return u, err
}

func (c *Coordinator) emit(typ, userID, matchID string, attrs map[string]any) {
	c.appCtx.Events.Emit(events.Event{Type: typ, UserID: userID, MatchID: matchID, Attrs: attrs})
}

// RequestMatching debits the matching cost and opens a waiting request.
//
// Behavior:
//   - The user needs a profile and preferences and must not be flagged red/black.
//   - Only one active request per user (ErrActiveRequest).
//   - Fewer points than the cost → ErrInsufficientPoints, balance untouched.
//
// Example:
//
//	id, err := coord.RequestMatching(ctx, "u1")
func (c *Coordinator) RequestMatching(ctx context.Context, userID string) (domain.RequestID, error) {
	c.appCtx.Logger.Debug("RequestMatching called", "user", userID)

	var id domain.RequestID
	err := c.run(ctx, "RequestMatching", func() error {
		u, err := c.user(ctx, userID)
		if err != nil {
			return err
		}
		if !u.Value.HasProfile || !u.Value.HasPreferences {
			return fmt.Errorf("%w: profile and preferences are required", svcErr.ErrNotEligible)
		}
		if !u.Value.Status.CanRequest() {
			return fmt.Errorf("%w: account is restricted", svcErr.ErrNotEligible)
		}
		if _, active, err := c.Requests.Active(ctx, userID); err != nil {
			return err
		} else if active {
			return svcErr.ErrActiveRequest
		}

		req, writes, err := c.Requests.PrepareCreate(u, c.appCtx.Config.Matching.Cost)
		if err != nil {
			return err
		}
		if err := c.appCtx.Repos.Commit(ctx, writes...); err != nil {
			return err
		}
		id = req.MatchID
		return nil
	})
	if err != nil {
		return "", err
	}

	c.emit(events.TypeRequested, userID, string(id), map[string]any{"cost": c.appCtx.Config.Matching.Cost})
	return id, nil
}

// ListWaiting is the operator listing of unpaired requests.
func (c *Coordinator) ListWaiting(ctx context.Context, token string, limit int) ([]domain.MatchingRequest, string, error) {
	reqs, next, err := c.Requests.ListWaiting(ctx, token, limit)
	return reqs, next, svcErr.Map(err)
}

// ConfirmMatching pairs the active requests of userA and userB. matchID must be
// one of those two requests.
func (c *Coordinator) ConfirmMatching(ctx context.Context, matchID, userAID, userBID string) (domain.PairID, error) {
	c.appCtx.Logger.Debug("ConfirmMatching called", "match", matchID, "user_a", userAID, "user_b", userBID)

	if userAID == userBID {
		return "", svcErr.InvalidOperation("cannot pair user %s with themself", userAID)
	}

	var pairID domain.PairID
	err := c.run(ctx, "ConfirmMatching", func() error {
		ra, err := c.activeRequest(ctx, userAID)
		if err != nil {
			return err
		}
		rb, err := c.activeRequest(ctx, userBID)
		if err != nil {
			return err
		}
		if string(ra.Value.MatchID) != matchID && string(rb.Value.MatchID) != matchID {
			return svcErr.InvalidOperation("request %s belongs to neither %s nor %s", matchID, userAID, userBID)
		}

		pair, writes, err := c.Pairs.PrepareConfirm(ra, rb)
		if err != nil {
			return err
		}
		if err := c.appCtx.Repos.Commit(ctx, writes...); err != nil {
			return err
		}
		pairID = pair.MatchID
		return nil
	})
	if err != nil {
		return "", err
	}

	c.emit(events.TypeConfirmed, "", string(pairID), map[string]any{"userA": userAID, "userB": userBID})
	return pairID, nil
}

func (c *Coordinator) activeRequest(ctx context.Context, userID string) (repository.Versioned[domain.MatchingRequest], error) {
	if _, err := c.user(ctx, userID); err != nil {
		return repository.Versioned[domain.MatchingRequest]{}, err
	}
	v, ok, err := c.Requests.Active(ctx, userID)
	if err != nil {
		return v, err
	}
	if !ok {
		return v, svcErr.NotFound("user %s has no active matching request", userID)
	}
	return v, nil
}

// SubmitChoicesInput is one side's schedule submission. MatchID may name the
// pair or the submitter's request.
type SubmitChoicesInput struct {
	MatchID             string
	UserID              string
	Dates               []string
	Locations           []string
	AcceptOtherSchedule bool
}

// SubmitChoices records a side's dates and locations, resolves the schedule
// once both sides submitted, and propagates the pair status onto both requests.
// Identical resubmissions write nothing and emit nothing.
func (c *Coordinator) SubmitChoices(ctx context.Context, in SubmitChoicesInput) (domain.Status, error) {
	c.appCtx.Logger.Debug("SubmitChoices called", "match", in.MatchID, "user", in.UserID, "accept_other", in.AcceptOtherSchedule)

	var (
		pair    domain.MatchPair
		outcome schedule.Outcome
	)
	err := c.run(ctx, "SubmitChoices", func() error {
		v, err := c.Pairs.Resolve(ctx, in.MatchID)
		if err != nil {
			return err
		}
		pair = v.Value
		now := c.appCtx.Now()

		outcome, err = schedule.Submit(&pair, schedule.Submission{
			UserID:              in.UserID,
			Dates:               in.Dates,
			Locations:           in.Locations,
			AcceptOtherSchedule: in.AcceptOtherSchedule,
		}, now)
		if err != nil || !outcome.Changed {
			return err
		}

		pairW, err := c.appCtx.Repos.Pairs.Write(pair, v.Version)
		if err != nil {
			return err
		}
		reqWrites, err := c.syncRequests(ctx, pair, func(req *domain.MatchingRequest) (bool, error) {
			changed := false
			if req.RequesterID == in.UserID {
				if pair.Side(in.UserID) == "A" {
					req.DateChoices = pair.UserAChoices
				} else {
					req.DateChoices = pair.UserBChoices
				}
				req.UpdatedAt = now
				changed = true
			}
			switch {
			case pair.Status == domain.StatusScheduled && req.Status != domain.StatusScheduled:
				if err := requests.Apply(req, domain.StatusScheduled, "schedule agreed", now); err != nil {
					return false, err
				}
				at := now
				req.PhotoVisibleAt = &at
				changed = true
			case pair.Status == domain.StatusMismatched && req.Status == domain.StatusConfirmed:
				if err := requests.Apply(req, domain.StatusMismatched, "no common date or location", now); err != nil {
					return false, err
				}
				changed = true
			}
			return changed, nil
		})
		if err != nil {
			return err
		}
		return c.appCtx.Repos.Commit(ctx, append(reqWrites, pairW)...)
	})
	if err != nil {
		return "", err
	}

	if outcome.Changed {
		c.emit(events.TypeChoices, in.UserID, string(pair.MatchID), nil)
		switch pair.Status {
		case domain.StatusScheduled:
			c.emit(events.TypeScheduled, "", string(pair.MatchID), map[string]any{"date": pair.FinalDate, "location": pair.FinalLocation})
		case domain.StatusMismatched:
			c.emit(events.TypeMismatched, "", string(pair.MatchID), nil)
		}
	}
	return pair.Status, nil
}

// syncRequests loads both requests of pair, lets mutate adjust each, and
// returns writes for the ones mutate reported as changed.
func (c *Coordinator) syncRequests(ctx context.Context, pair domain.MatchPair, mutate func(req *domain.MatchingRequest) (bool, error)) ([]store.Write, error) {
	var writes []store.Write
	for _, id := range []domain.RequestID{pair.MatchAID, pair.MatchBID} {
		v, err := c.Requests.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		req := v.Value
		changed, err := mutate(&req)
		if err != nil {
			return nil, err
		}
		if !changed {
			continue
		}
		w, err := c.appCtx.Repos.Requests.Write(req, v.Version)
		if err != nil {
			return nil, err
		}
		writes = append(writes, w)
	}
	return writes, nil
}
