package matching

import (
	"context"
	"fmt"
	"time"

	"github.com/oggyb/muzz-introductions/internal/domain"
	svcErr "github.com/oggyb/muzz-introductions/internal/errors"
	"github.com/oggyb/muzz-introductions/internal/events"
	"github.com/oggyb/muzz-introductions/internal/logger"
	"github.com/oggyb/muzz-introductions/internal/metrics"
	"github.com/oggyb/muzz-introductions/internal/repository"
	"github.com/oggyb/muzz-introductions/internal/service/pairs"
	"github.com/oggyb/muzz-introductions/internal/service/points"
	"github.com/oggyb/muzz-introductions/internal/service/requests"
	"github.com/oggyb/muzz-introductions/internal/service/reviews"
	"github.com/oggyb/muzz-introductions/internal/service/schedule"
	"github.com/oggyb/muzz-introductions/internal/store"
)

// ReviewInput is a post-date review. MatchID may name the pair or the
// reviewer's request.
type ReviewInput struct {
	MatchID         string
	ReviewerID      string
	TargetID        string
	Rating          domain.Rating
	WantToMeetAgain bool
	Tags            []string
	Comment         string
}

// SubmitReview records a review and advances the lifecycle.
//
// Behavior:
//   - First review of a scheduled pair: pair and both requests → completed.
//   - The reviewer's request → reviewed.
//   - Second review: pair → reviewed, then pair and both requests → exchanged
//     when both want to meet again, finished otherwise.
func (c *Coordinator) SubmitReview(ctx context.Context, in ReviewInput) (string, error) {
	c.appCtx.Logger.Debug("SubmitReview called", "match", in.MatchID, "reviewer", in.ReviewerID)

	var (
		review domain.Review
		pair   domain.MatchPair
		both   bool
	)
	err := c.run(ctx, "SubmitReview", func() error {
		v, err := c.Pairs.Resolve(ctx, in.MatchID)
		if err != nil {
			return err
		}
		pair = v.Value
		now := c.appCtx.Now()

		var writes []store.Write
		review, writes, err = c.Reviews.PrepareSubmit(ctx, pair, reviews.Input{
			ReviewerID:      in.ReviewerID,
			TargetID:        in.TargetID,
			Rating:          in.Rating,
			WantToMeetAgain: in.WantToMeetAgain,
			Tags:            in.Tags,
			Comment:         in.Comment,
		})
		if err != nil {
			return err
		}

		theirs, err := c.Reviews.Find(ctx, pair.MatchID, in.TargetID)
		if err != nil {
			return err
		}
		both = theirs != nil

		if pair.Status == domain.StatusScheduled {
			if err := pairs.Apply(&pair, domain.StatusCompleted, now); err != nil {
				return err
			}
		}
		next := domain.StatusFinished
		if both {
			if reviews.ExchangeReady(&review, theirs) {
				next = domain.StatusExchanged
			}
			if err := pairs.Apply(&pair, domain.StatusReviewed, now); err != nil {
				return err
			}
			if err := pairs.Apply(&pair, next, now); err != nil {
				return err
			}
		}

		reqWrites, err := c.syncRequests(ctx, pair, func(req *domain.MatchingRequest) (bool, error) {
			changed := false
			if req.Status == domain.StatusScheduled {
				if err := requests.Apply(req, domain.StatusCompleted, "date took place", now); err != nil {
					return false, err
				}
				changed = true
			}
			if req.RequesterID == in.ReviewerID {
				if err := requests.Apply(req, domain.StatusReviewed, "review "+review.ReviewID, now); err != nil {
					return false, err
				}
				changed = true
			}
			if both {
				if err := requests.Apply(req, next, "both reviews in", now); err != nil {
					return false, err
				}
				changed = true
			}
			return changed, nil
		})
		if err != nil {
			return err
		}

		pairW, err := c.appCtx.Repos.Pairs.Write(pair, v.Version)
		if err != nil {
			return err
		}
		writes = append(writes, pairW)
		return c.appCtx.Repos.Commit(ctx, append(writes, reqWrites...)...)
	})
	if err != nil {
		return "", err
	}

	c.emit(events.TypeReviewed, in.ReviewerID, string(pair.MatchID), map[string]any{"wantToMeetAgain": review.WantToMeetAgain})
	if both {
		typ := events.TypeFinished
		if pair.Status == domain.StatusExchanged {
			typ = events.TypeExchanged
		}
		c.emit(typ, "", string(pair.MatchID), nil)
	}
	return review.ReviewID, nil
}

// FailMatching moves a waiting request to failed and refunds its debit.
// Failing an already failed request is a no-op, so retries never refund twice.
func (c *Coordinator) FailMatching(ctx context.Context, requestID domain.RequestID, reason string) error {
	c.appCtx.Logger.Debug("FailMatching called", "request", requestID, "reason", reason)

	var (
		req     domain.MatchingRequest
		changed bool
	)
	err := c.run(ctx, "FailMatching", func() error {
		v, err := c.Requests.Get(ctx, requestID)
		if err != nil {
			return err
		}
		if v.Value.Status == domain.StatusFailed {
			changed = false
			return nil
		}
		u, err := c.user(ctx, v.Value.RequesterID)
		if err != nil {
			return err
		}
		var writes []store.Write
		req, writes, err = c.Requests.PrepareFail(v, u, reason)
		if err != nil {
			return err
		}
		if err := c.appCtx.Repos.Commit(ctx, writes...); err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil || !changed {
		return err
	}

	c.emit(events.TypeFailed, req.RequesterID, string(req.MatchID), map[string]any{"reason": reason})
	c.emit(events.TypeRefunded, req.RequesterID, string(req.MatchID), map[string]any{"amount": req.Debited})
	return nil
}

// FinishMatching closes the user's exchanged request. The pair is finished
// once both requests are.
func (c *Coordinator) FinishMatching(ctx context.Context, userID string) error {
	c.appCtx.Logger.Debug("FinishMatching called", "user", userID)

	var pairID domain.PairID
	err := c.run(ctx, "FinishMatching", func() error {
		active, err := c.activeRequest(ctx, userID)
		if err != nil {
			return err
		}
		if active.Value.Status != domain.StatusExchanged {
			return svcErr.InvalidOperation("request %s is %s, only exchanged matches can be finished",
				active.Value.MatchID, active.Value.Status)
		}
		pv, err := c.Pairs.Get(ctx, active.Value.PairID)
		if err != nil {
			return err
		}
		pair := pv.Value
		pairID = pair.MatchID
		now := c.appCtx.Now()

		req, reqW, err := c.Requests.PrepareTransition(active, domain.StatusFinished, "finished by user")
		if err != nil {
			return err
		}
		writes := []store.Write{reqW}

		other, err := c.Requests.Get(ctx, pair.RequestOf(pair.Counterpart(userID)))
		if err != nil {
			return err
		}
		if other.Value.Status == domain.StatusFinished && req.Status == domain.StatusFinished {
			if err := pairs.Apply(&pair, domain.StatusFinished, now); err != nil {
				return err
			}
			pairW, err := c.appCtx.Repos.Pairs.Write(pair, pv.Version)
			if err != nil {
				return err
			}
			writes = append(writes, pairW)
		}
		return c.appCtx.Repos.Commit(ctx, writes...)
	})
	if err != nil {
		return err
	}

	c.emit(events.TypeFinished, userID, string(pairID), nil)
	return nil
}

// ChargePoints credits points (purchases and rewards) and returns the balance.
func (c *Coordinator) ChargePoints(ctx context.Context, userID string, amount int64, reason string) (int64, error) {
	c.appCtx.Logger.Debug("ChargePoints called", "user", userID, "amount", amount)

	typ := domain.PointsCharge
	if reason == domain.PointsReward {
		typ = domain.PointsReward
	}
	if reason == "" {
		reason = "points charge"
	}
	start := time.Now()
	balance, err := c.Ledger.Credit(ctx, userID, points.Entry{Amount: amount, Type: typ, Description: reason})
	outcome := "ok"
	if err != nil {
		outcome = svcErr.KindOf(err).String()
	}
	metrics.RecordOperation("ChargePoints", outcome, time.Since(start))
	return balance, err
}

// SetUserStatus changes the moderation flag and appends a UserStatusHistory row.
// Setting the current flag again is a no-op.
func (c *Coordinator) SetUserStatus(ctx context.Context, userID string, status domain.UserStatus, reason string) (domain.User, error) {
	c.appCtx.Logger.Debug("SetUserStatus called", "user", userID, "status", status)

	if !status.Valid() {
		return domain.User{}, svcErr.InvalidOperation("unknown user status %q", status)
	}

	var (
		out  domain.User
		from domain.UserStatus
	)
	err := c.run(ctx, "SetUserStatus", func() error {
		u, err := c.user(ctx, userID)
		if err != nil {
			return err
		}
		out = u.Value
		from = u.Value.Status
		if from == status {
			return nil
		}

		now := c.appCtx.Now()
		out.Status = status
		out.UpdatedAt = now
		userW, err := c.appCtx.Repos.Users.Write(out, u.Version)
		if err != nil {
			return err
		}
		histW, err := c.appCtx.Repos.StatusHistory.Write(domain.UserStatusHistory{
			ID:        repository.NewID(),
			UserID:    userID,
			From:      from,
			To:        status,
			Reason:    reason,
			Timestamp: now,
		})
		if err != nil {
			return err
		}
		return c.appCtx.Repos.Commit(ctx, userW, histW)
	})
	if err != nil {
		return domain.User{}, err
	}
	if from != status {
		c.emit(events.TypeStatusChanged, userID, "", map[string]any{"from": from, "to": status})
	}
	return out, nil
}

// AutoReport summarises one auto-process tick.
type AutoReport struct {
	Failed    int `json:"failed"`
	Completed int `json:"completed"`
	Errors    int `json:"errors"`
}

// AutoProcess is the periodic re-evaluation of pending matches.
//
// Behavior:
//   - Waiting requests older than the configured wait TTL are failed and refunded.
//   - Scheduled pairs whose agreed date lies before today are completed.
//   - Each record is its own transaction; one failure does not stop the tick.
func (c *Coordinator) AutoProcess(ctx context.Context, now time.Time) (AutoReport, error) {
	start := time.Now()
	log := c.appCtx.Logger.With("job", "auto_process")
	var rep AutoReport

	cutoff := now.Add(-c.appCtx.Config.Matching.WaitTTL)
	waiting, err := c.appCtx.Repos.Requests.ListByStatus(ctx, domain.StatusWaiting)
	if err != nil {
		return rep, svcErr.Map(err)
	}
	for _, v := range waiting {
		if !v.Value.CreatedAt.Before(cutoff) {
			continue
		}
		reason := fmt.Sprintf("no match within %s", c.appCtx.Config.Matching.WaitTTL)
		if err := c.FailMatching(ctx, v.Value.MatchID, reason); err != nil {
			log.Warn("auto fail skipped", "request", v.Value.MatchID, "err", err)
			rep.Errors++
			continue
		}
		rep.Failed++
	}

	scheduled, err := c.Pairs.ListByStatus(ctx, domain.StatusScheduled)
	if err != nil {
		return rep, svcErr.Map(err)
	}
	for _, v := range scheduled {
		if !schedule.DatePassed(v.Value.FinalDate, now) {
			continue
		}
		done, err := c.completePair(ctx, v.Value.MatchID)
		if err != nil {
			log.Warn("auto complete skipped", "pair", v.Value.MatchID, "err", err)
			rep.Errors++
			continue
		}
		if done {
			rep.Completed++
		}
	}

	metrics.RecordAutoProcess(rep.Failed, rep.Completed)
	log.Info("auto process finished", "failed", rep.Failed, "completed", rep.Completed, "errors", rep.Errors, logger.Elapsed(start))
	c.emit(events.TypeAutoProcessTick, "", "", map[string]any{"failed": rep.Failed, "completed": rep.Completed})
	return rep, nil
}

// completePair moves a scheduled pair and its requests to completed.
// done is false when someone else already moved the pair on.
func (c *Coordinator) completePair(ctx context.Context, id domain.PairID) (bool, error) {
	var done bool
	err := c.run(ctx, "CompletePair", func() error {
		done = false
		v, err := c.Pairs.Get(ctx, id)
		if err != nil {
			return err
		}
		pair := v.Value
		if pair.Status != domain.StatusScheduled {
			return nil
		}
		now := c.appCtx.Now()
		if err := pairs.Apply(&pair, domain.StatusCompleted, now); err != nil {
			return err
		}
		reqWrites, err := c.syncRequests(ctx, pair, func(req *domain.MatchingRequest) (bool, error) {
			if req.Status != domain.StatusScheduled {
				return false, nil
			}
			return true, requests.Apply(req, domain.StatusCompleted, "date passed", now)
		})
		if err != nil {
			return err
		}
		pairW, err := c.appCtx.Repos.Pairs.Write(pair, v.Version)
		if err != nil {
			return err
		}
		if err := c.appCtx.Repos.Commit(ctx, append(reqWrites, pairW)...); err != nil {
			return err
		}
		done = true
		return nil
	})
	return done, err
}
