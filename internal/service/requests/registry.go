package requests

import (
	"context"
	"sort"
	"time"

	"github.com/oggyb/muzz-introductions/internal/app"
	"github.com/oggyb/muzz-introductions/internal/domain"
	svcErr "github.com/oggyb/muzz-introductions/internal/errors"
	"github.com/oggyb/muzz-introductions/internal/repository"
	"github.com/oggyb/muzz-introductions/internal/service/points"
	"github.com/oggyb/muzz-introductions/internal/store"
	"github.com/oggyb/muzz-introductions/internal/utils/pagination"
)

// Registry owns MatchingRequest records and their status.
type Registry struct {
	appCtx *app.AppContext
	ledger *points.Ledger
}

// NewRegistry creates a Registry. The ledger pays for creation and refunds failures.
func NewRegistry(appCtx *app.AppContext, ledger *points.Ledger) *Registry {
	return &Registry{appCtx: appCtx, ledger: ledger}
}

// Apply moves req to status `to` through the central transition table and
// records the step. req is only modified when the edge exists.
func Apply(req *domain.MatchingRequest, to domain.Status, reason string, now time.Time) error {
	if err := domain.RequestMachine.Check(req.Status, to); err != nil {
		return err
	}
	req.Transitions = append(req.Transitions, domain.Transition{From: req.Status, To: to, At: now, Reason: reason})
	req.Status = to
	req.UpdatedAt = now
	return nil
}

// PrepareCreate debits the matching cost from requester and builds a new
// waiting request. Both records are returned as writes for one transaction.
func (r *Registry) PrepareCreate(requester repository.Versioned[domain.User], cost int64) (domain.MatchingRequest, []store.Write, error) {
	now := r.appCtx.Now()
	req := domain.MatchingRequest{
		MatchID:     domain.RequestID(repository.NewID()),
		RequesterID: requester.Value.UserID,
		Status:      domain.StatusWaiting,
		DateChoices: domain.Choices{Dates: []string{}, Locations: []string{}},
		Debited:     cost,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	_, writes, err := r.ledger.PrepareDebit(requester, points.Entry{
		Amount:      cost,
		Type:        domain.PointsMatchingRequest,
		Description: "matching request " + string(req.MatchID),
	})
	if err != nil {
		return domain.MatchingRequest{}, nil, err
	}

	reqW, err := r.appCtx.Repos.Requests.Write(req, 0)
	if err != nil {
		return domain.MatchingRequest{}, nil, err
	}
	return req, append(writes, reqW), nil
}

// PrepareTransition applies `to` on a copy of v and returns it with its write.
func (r *Registry) PrepareTransition(v repository.Versioned[domain.MatchingRequest], to domain.Status, reason string) (domain.MatchingRequest, store.Write, error) {
	req := v.Value
	if err := Apply(&req, to, reason, r.appCtx.Now()); err != nil {
		return domain.MatchingRequest{}, store.Write{}, err
	}
	w, err := r.appCtx.Repos.Requests.Write(req, v.Version)
	return req, w, err
}

// PrepareFail moves the request to failed and refunds its debit, once.
// requester must be the request's owner, read in the same cycle.
func (r *Registry) PrepareFail(v repository.Versioned[domain.MatchingRequest], requester repository.Versioned[domain.User], reason string) (domain.MatchingRequest, []store.Write, error) {
	req := v.Value
	if err := Apply(&req, domain.StatusFailed, reason, r.appCtx.Now()); err != nil {
		return domain.MatchingRequest{}, nil, err
	}

	var writes []store.Write
	if req.Debited > 0 && !req.Refunded {
		req.Refunded = true
		_, refund, err := r.ledger.PrepareCredit(requester, points.Entry{
			Amount:      req.Debited,
			Type:        domain.PointsMatchingRefund,
			Description: "refund for matching request " + string(req.MatchID),
		})
		if err != nil {
			return domain.MatchingRequest{}, nil, err
		}
		writes = append(writes, refund...)
	}

	reqW, err := r.appCtx.Repos.Requests.Write(req, v.Version)
	if err != nil {
		return domain.MatchingRequest{}, nil, err
	}
	return req, append(writes, reqW), nil
}

// Get returns a request by id.
func (r *Registry) Get(ctx context.Context, id domain.RequestID) (repository.Versioned[domain.MatchingRequest], error) {
	v, err := r.appCtx.Repos.Requests.Get(ctx, id)
	if store.IsNotFound(err) {
		return v, svcErr.NotFound("matching request %s not found", id)
	}
	return v, err
}

// Active returns the user's non-terminal request. ok is false when there is none.
func (r *Registry) Active(ctx context.Context, userID string) (repository.Versioned[domain.MatchingRequest], bool, error) {
	all, err := r.appCtx.Repos.Requests.ListByRequester(ctx, userID)
	if err != nil {
		return repository.Versioned[domain.MatchingRequest]{}, false, err
	}
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].Value.Status.Active() {
			return all[i], true, nil
		}
	}
	return repository.Versioned[domain.MatchingRequest]{}, false, nil
}

// Latest returns the user's active request, or failing that their newest one.
func (r *Registry) Latest(ctx context.Context, userID string) (repository.Versioned[domain.MatchingRequest], bool, error) {
	if v, ok, err := r.Active(ctx, userID); err != nil || ok {
		return v, ok, err
	}
	all, err := r.ListForUser(ctx, userID)
	if err != nil || len(all) == 0 {
		return repository.Versioned[domain.MatchingRequest]{}, false, err
	}
	return repository.Versioned[domain.MatchingRequest]{Value: all[len(all)-1]}, true, nil
}

// ListForUser returns every request the user made, oldest first.
func (r *Registry) ListForUser(ctx context.Context, userID string) ([]domain.MatchingRequest, error) {
	rows, err := r.appCtx.Repos.Requests.ListByRequester(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.MatchingRequest, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Value)
	}
	sortByCreation(out)
	return out, nil
}

// ListWaiting returns waiting requests in creation order (ties broken by id).
//
// Behavior:
//   - limit <= 0 returns everything after the cursor.
//   - A non-empty next token means more rows may follow.
//   - A malformed token is an InvalidOperation.
//
// Example:
//
//	reqs, next, err := reg.ListWaiting(ctx, "", 20)
func (r *Registry) ListWaiting(ctx context.Context, token string, limit int) ([]domain.MatchingRequest, string, error) {
	cursor, err := pagination.Decode(token)
	if err != nil {
		return nil, "", svcErr.InvalidOperation("%s", err.Error())
	}

	rows, err := r.appCtx.Repos.Requests.ListByStatus(ctx, domain.StatusWaiting)
	if err != nil {
		return nil, "", err
	}
	all := make([]domain.MatchingRequest, 0, len(rows))
	for _, row := range rows {
		if cursor.Empty() || cursor.Precedes(row.Value.CreatedAt, string(row.Value.MatchID)) {
			all = append(all, row.Value)
		}
	}
	sortForPaging(all)

	if limit <= 0 || len(all) <= limit {
		return all, "", nil
	}
	page := all[:limit]
	last := page[len(page)-1]
	next, err := pagination.Encode(pagination.After(last.CreatedAt, string(last.MatchID)))
	if err != nil {
		return nil, "", err
	}
	return page, next, nil
}

// Transition is the standalone form of PrepareTransition, retried on conflicts.
// Failing a request must go through PrepareFail so the refund is not skipped.
func (r *Registry) Transition(ctx context.Context, id domain.RequestID, to domain.Status, reason string) (domain.MatchingRequest, error) {
	if to == domain.StatusFailed {
		return domain.MatchingRequest{}, svcErr.InvalidOperation("use the fail operation to fail a request")
	}
	var out domain.MatchingRequest
	err := repository.WithRetry(ctx, r.appCtx.MaxRetries(), func() error {
		v, err := r.Get(ctx, id)
		if err != nil {
			return err
		}
		req, w, err := r.PrepareTransition(v, to, reason)
		if err != nil {
			return err
		}
		if err := r.appCtx.Repos.Commit(ctx, w); err != nil {
			return err
		}
		out = req
		return nil
	})
	if err != nil {
		return domain.MatchingRequest{}, svcErr.Map(err)
	}
	return out, nil
}

// sortByCreation keeps insertion order among equal timestamps.
func sortByCreation(reqs []domain.MatchingRequest) {
	sort.SliceStable(reqs, func(i, j int) bool { return reqs[i].CreatedAt.Before(reqs[j].CreatedAt) })
}

// sortForPaging is a total order matching pagination.Cursor.
func sortForPaging(reqs []domain.MatchingRequest) {
	sort.Slice(reqs, func(i, j int) bool {
		if !reqs[i].CreatedAt.Equal(reqs[j].CreatedAt) {
			return reqs[i].CreatedAt.Before(reqs[j].CreatedAt)
		}
		return reqs[i].MatchID < reqs[j].MatchID
	})
}
