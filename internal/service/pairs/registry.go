package pairs

import (
	"context"
	"fmt"
	"time"

	"github.com/oggyb/muzz-introductions/internal/app"
	"github.com/oggyb/muzz-introductions/internal/domain"
	svcErr "github.com/oggyb/muzz-introductions/internal/errors"
	"github.com/oggyb/muzz-introductions/internal/repository"
	"github.com/oggyb/muzz-introductions/internal/service/requests"
	"github.com/oggyb/muzz-introductions/internal/store"
)

// Registry owns MatchPair records and the request → pair index.
type Registry struct {
	appCtx   *app.AppContext
	requests *requests.Registry
}

func NewRegistry(appCtx *app.AppContext, reqs *requests.Registry) *Registry {
	return &Registry{appCtx: appCtx, requests: reqs}
}

// Apply moves p to status `to` through the pair transition table.
func Apply(p *domain.MatchPair, to domain.Status, now time.Time) error {
	if err := domain.PairMachine.Check(p.Status, to); err != nil {
		return err
	}
	p.Status = to
	p.UpdatedAt = now
	return nil
}

// PrepareConfirm pairs two waiting requests. Both requests go waiting → matched
// → confirmed and point at the new pair; the pair and both index rows are
// created. Index rows are create-only, so a request raced into another pair
// makes the commit fail with a conflict.
//
// Behavior:
//   - The two requests must be distinct and belong to different users.
//   - Both must be waiting and not yet paired.
func (r *Registry) PrepareConfirm(a, b repository.Versioned[domain.MatchingRequest]) (domain.MatchPair, []store.Write, error) {
	if a.Value.MatchID == b.Value.MatchID {
		return domain.MatchPair{}, nil, svcErr.InvalidOperation("cannot pair a request with itself")
	}
	if a.Value.RequesterID == b.Value.RequesterID {
		return domain.MatchPair{}, nil, svcErr.InvalidOperation("cannot pair user %s with themself", a.Value.RequesterID)
	}
	for _, v := range []repository.Versioned[domain.MatchingRequest]{a, b} {
		if v.Value.PairID != "" {
			return domain.MatchPair{}, nil, fmt.Errorf("%w: %s is in pair %s", svcErr.ErrAlreadyPaired, v.Value.MatchID, v.Value.PairID)
		}
		if v.Value.Status != domain.StatusWaiting {
			return domain.MatchPair{}, nil, svcErr.InvalidOperation("request %s is %s, not waiting", v.Value.MatchID, v.Value.Status)
		}
	}

	now := r.appCtx.Now()
	pair := domain.MatchPair{
		MatchID:      domain.PairID(repository.NewID()),
		MatchAID:     a.Value.MatchID,
		MatchBID:     b.Value.MatchID,
		UserAID:      a.Value.RequesterID,
		UserBID:      b.Value.RequesterID,
		UserAChoices: domain.Choices{Dates: []string{}, Locations: []string{}},
		UserBChoices: domain.Choices{Dates: []string{}, Locations: []string{}},
		Status:       domain.StatusConfirmed,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	var writes []store.Write
	pairW, err := r.appCtx.Repos.Pairs.Write(pair, 0)
	if err != nil {
		return domain.MatchPair{}, nil, err
	}
	writes = append(writes, pairW)

	for _, v := range []repository.Versioned[domain.MatchingRequest]{a, b} {
		req := v.Value
		if err := requests.Apply(&req, domain.StatusMatched, "paired", now); err != nil {
			return domain.MatchPair{}, nil, err
		}
		if err := requests.Apply(&req, domain.StatusConfirmed, "pair "+string(pair.MatchID), now); err != nil {
			return domain.MatchPair{}, nil, err
		}
		req.PairID = pair.MatchID

		reqW, err := r.appCtx.Repos.Requests.Write(req, v.Version)
		if err != nil {
			return domain.MatchPair{}, nil, err
		}
		idxW, err := r.appCtx.Repos.Pairs.IndexWrite(req.MatchID, pair.MatchID)
		if err != nil {
			return domain.MatchPair{}, nil, err
		}
		writes = append(writes, reqW, idxW)
	}
	return pair, writes, nil
}

// Confirm is the standalone form of PrepareConfirm.
func (r *Registry) Confirm(ctx context.Context, a, b domain.RequestID) (domain.MatchPair, error) {
	var out domain.MatchPair
	err := repository.WithRetry(ctx, r.appCtx.MaxRetries(), func() error {
		ra, err := r.requests.Get(ctx, a)
		if err != nil {
			return err
		}
		rb, err := r.requests.Get(ctx, b)
		if err != nil {
			return err
		}
		pair, writes, err := r.PrepareConfirm(ra, rb)
		if err != nil {
			return err
		}
		if err := r.appCtx.Repos.Commit(ctx, writes...); err != nil {
			return err
		}
		out = pair
		return nil
	})
	if err != nil {
		return domain.MatchPair{}, svcErr.Map(err)
	}
	return out, nil
}

// Get returns a pair by id.
func (r *Registry) Get(ctx context.Context, id domain.PairID) (repository.Versioned[domain.MatchPair], error) {
	v, err := r.appCtx.Repos.Pairs.Get(ctx, id)
	if store.IsNotFound(err) {
		return v, svcErr.NotFound("match %s not found", id)
	}
	return v, err
}

// ByRequest resolves a request id through the index.
func (r *Registry) ByRequest(ctx context.Context, id domain.RequestID) (repository.Versioned[domain.MatchPair], bool, error) {
	pairID, ok, err := r.appCtx.Repos.Pairs.Lookup(ctx, id)
	if err != nil || !ok {
		return repository.Versioned[domain.MatchPair]{}, false, err
	}
	v, err := r.Get(ctx, pairID)
	if err != nil {
		return v, false, err
	}
	return v, true, nil
}

// Resolve accepts either a PairID or a RequestID and returns the pair.
// Pair ids are tried first; the two id spaces never overlap.
func (r *Registry) Resolve(ctx context.Context, id string) (repository.Versioned[domain.MatchPair], error) {
	v, err := r.appCtx.Repos.Pairs.Get(ctx, domain.PairID(id))
	if err == nil {
		return v, nil
	}
	if !store.IsNotFound(err) {
		return v, err
	}
	v, ok, err := r.ByRequest(ctx, domain.RequestID(id))
	if err != nil {
		return v, err
	}
	if !ok {
		return v, svcErr.NotFound("match %s not found", id)
	}
	return v, nil
}

// Find returns the pair attached to the user's active request.
//
// Behavior:
//   - No active request, or an active request not yet paired → ok=false.
//   - The pair's side is cross-checked against the request's requesterId.
func (r *Registry) Find(ctx context.Context, userID string) (repository.Versioned[domain.MatchPair], bool, error) {
	active, ok, err := r.requests.Active(ctx, userID)
	if err != nil || !ok {
		return repository.Versioned[domain.MatchPair]{}, false, err
	}
	pair, ok, err := r.ByRequest(ctx, active.Value.MatchID)
	if err != nil || !ok {
		return pair, false, err
	}
	if pair.Value.RequestOf(userID) != active.Value.MatchID || active.Value.RequesterID != userID {
		return repository.Versioned[domain.MatchPair]{}, false,
			svcErr.Internal(fmt.Errorf("pair %s does not reference request %s of %s", pair.Value.MatchID, active.Value.MatchID, userID))
	}
	return pair, true, nil
}

// ListForUser returns every pair the user belongs to.
func (r *Registry) ListForUser(ctx context.Context, userID string) ([]domain.MatchPair, error) {
	rows, err := r.appCtx.Repos.Pairs.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.MatchPair, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Value)
	}
	return out, nil
}

// ListByStatus returns pairs currently in status.
func (r *Registry) ListByStatus(ctx context.Context, status domain.Status) ([]repository.Versioned[domain.MatchPair], error) {
	return r.appCtx.Repos.Pairs.ListByStatus(ctx, status)
}
