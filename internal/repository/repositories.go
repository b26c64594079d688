package repository

import (
	"context"
	"errors"

	"github.com/oggyb/muzz-introductions/internal/domain"
	"github.com/oggyb/muzz-introductions/internal/store"
)

// Repositories bundles the typed views of every logical table. All of them share
// one Store, so writes built by different repositories can be committed together.
type Repositories struct {
	store store.Store

	Users         *UserRepository
	Requests      *RequestRepository
	Pairs         *PairRepository
	Reviews       *ReviewRepository
	Stats         *StatsRepository
	Points        *PointsHistoryRepository
	StatusHistory *StatusHistoryRepository
}

// New wires every repository onto s.
func New(s store.Store) *Repositories {
	return &Repositories{
		store:         s,
		Users:         &UserRepository{c: collection[domain.User]{s, store.Users}},
		Requests:      &RequestRepository{c: collection[domain.MatchingRequest]{s, store.MatchingRequests}},
		Pairs:         &PairRepository{c: collection[domain.MatchPair]{s, store.MatchPairs}, idx: collection[domain.PairIndexEntry]{s, store.PairIndex}},
		Reviews:       &ReviewRepository{c: collection[domain.Review]{s, store.Reviews}},
		Stats:         &StatsRepository{c: collection[domain.ReviewStats]{s, store.ReviewStats}},
		Points:        &PointsHistoryRepository{c: collection[domain.PointsHistory]{s, store.PointsHistory}},
		StatusHistory: &StatusHistoryRepository{c: collection[domain.UserStatusHistory]{s, store.UserStatusHistory}},
	}
}

// Commit applies writes atomically.
func (r *Repositories) Commit(ctx context.Context, writes ...store.Write) error {
	return r.store.Transact(ctx, writes...)
}

// UserRepository provides access to Users.
type UserRepository struct{ c collection[domain.User] }

func (r *UserRepository) Get(ctx context.Context, userID string) (Versioned[domain.User], error) {
	return r.c.get(ctx, userID)
}

func (r *UserRepository) Write(u domain.User, version int64) (store.Write, error) {
	return r.c.write(u.UserID, u, version)
}

// Create inserts a new user; used by the seeder and tests (signup lives elsewhere).
func (r *UserRepository) Create(ctx context.Context, u domain.User) error {
	w, err := r.Write(u, 0)
	if err != nil {
		return err
	}
	_, err = r.c.s.Put(ctx, w)
	return err
}

// RequestRepository provides access to MatchingRequests.
type RequestRepository struct{ c collection[domain.MatchingRequest] }

func (r *RequestRepository) Get(ctx context.Context, id domain.RequestID) (Versioned[domain.MatchingRequest], error) {
	return r.c.get(ctx, string(id))
}

func (r *RequestRepository) Write(req domain.MatchingRequest, version int64) (store.Write, error) {
	return r.c.write(string(req.MatchID), req, version)
}

// ListByRequester returns every request the user ever made, oldest first.
func (r *RequestRepository) ListByRequester(ctx context.Context, userID string) ([]Versioned[domain.MatchingRequest], error) {
	return r.c.scan(ctx, func(m domain.MatchingRequest) bool { return m.RequesterID == userID })
}

// ListByStatus returns requests currently in status, in insertion order.
func (r *RequestRepository) ListByStatus(ctx context.Context, status domain.Status) ([]Versioned[domain.MatchingRequest], error) {
	return r.c.scan(ctx, func(m domain.MatchingRequest) bool { return m.Status == status })
}

// PairRepository provides access to MatchPairs and the request → pair index.
type PairRepository struct {
	c   collection[domain.MatchPair]
	idx collection[domain.PairIndexEntry]
}

func (r *PairRepository) Get(ctx context.Context, id domain.PairID) (Versioned[domain.MatchPair], error) {
	return r.c.get(ctx, string(id))
}

func (r *PairRepository) Write(p domain.MatchPair, version int64) (store.Write, error) {
	return r.c.write(string(p.MatchID), p, version)
}

// IndexWrite is create-only: a request that is already indexed makes the
// whole transaction fail with a conflict.
func (r *PairRepository) IndexWrite(requestID domain.RequestID, pairID domain.PairID) (store.Write, error) {
	return r.idx.write(string(requestID), domain.PairIndexEntry{RequestID: requestID, PairID: pairID}, 0)
}

// Lookup resolves a request id to its pair id. ok is false when unpaired.
func (r *PairRepository) Lookup(ctx context.Context, requestID domain.RequestID) (domain.PairID, bool, error) {
	e, err := r.idx.get(ctx, string(requestID))
	if errors.Is(err, store.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return e.Value.PairID, true, nil
}

// ListForUser returns every pair the user belongs to.
func (r *PairRepository) ListForUser(ctx context.Context, userID string) ([]Versioned[domain.MatchPair], error) {
	return r.c.scan(ctx, func(p domain.MatchPair) bool { return p.UserAID == userID || p.UserBID == userID })
}

// ListByStatus returns pairs currently in status.
func (r *PairRepository) ListByStatus(ctx context.Context, status domain.Status) ([]Versioned[domain.MatchPair], error) {
	return r.c.scan(ctx, func(p domain.MatchPair) bool { return p.Status == status })
}

// ReviewRepository provides access to Reviews. Keys are pairID#reviewerID, so a
// reviewer can review a pair at most once.
type ReviewRepository struct{ c collection[domain.Review] }

func ReviewKey(pairID domain.PairID, reviewerID string) string {
	return string(pairID) + "#" + reviewerID
}

func (r *ReviewRepository) Write(rv domain.Review) (store.Write, error) {
	return r.c.write(ReviewKey(rv.MatchID, rv.ReviewerID), rv, 0)
}

// Find returns the review reviewerID wrote for pairID, if any.
func (r *ReviewRepository) Find(ctx context.Context, pairID domain.PairID, reviewerID string) (domain.Review, bool, error) {
	v, err := r.c.get(ctx, ReviewKey(pairID, reviewerID))
	if errors.Is(err, store.ErrNotFound) {
		return domain.Review{}, false, nil
	}
	if err != nil {
		return domain.Review{}, false, err
	}
	return v.Value, true, nil
}

// StatsRepository provides access to ReviewStats.
type StatsRepository struct{ c collection[domain.ReviewStats] }

// Get returns the user's stats; a user never reviewed yields a zero row at version 0.
func (r *StatsRepository) Get(ctx context.Context, userID string) (Versioned[domain.ReviewStats], error) {
	v, err := r.c.get(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return Versioned[domain.ReviewStats]{Value: domain.ReviewStats{UserID: userID, PositiveTags: []string{}}}, nil
	}
	return v, err
}

func (r *StatsRepository) Write(s domain.ReviewStats, version int64) (store.Write, error) {
	return r.c.write(s.UserID, s, version)
}

// PointsHistoryRepository provides access to the append-only PointsHistory.
type PointsHistoryRepository struct{ c collection[domain.PointsHistory] }

func (r *PointsHistoryRepository) Write(h domain.PointsHistory) (store.Write, error) {
	return r.c.write(h.ID, h, 0)
}

func (r *PointsHistoryRepository) ListByUser(ctx context.Context, userID string) ([]domain.PointsHistory, error) {
	rows, err := r.c.scan(ctx, func(h domain.PointsHistory) bool { return h.UserID == userID })
	return values(rows), err
}

// StatusHistoryRepository provides access to UserStatusHistory.
type StatusHistoryRepository struct{ c collection[domain.UserStatusHistory] }

func (r *StatusHistoryRepository) Write(h domain.UserStatusHistory) (store.Write, error) {
	return r.c.write(h.ID, h, 0)
}

func (r *StatusHistoryRepository) ListByUser(ctx context.Context, userID string) ([]domain.UserStatusHistory, error) {
	rows, err := r.c.scan(ctx, func(h domain.UserStatusHistory) bool { return h.UserID == userID })
	return values(rows), err
}

func values[T any](rows []Versioned[T]) []T {
	out := make([]T, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Value)
	}
	return out
}
