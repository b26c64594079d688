package points

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/oggyb/muzz-introductions/internal/app"
	"github.com/oggyb/muzz-introductions/internal/domain"
	svcErr "github.com/oggyb/muzz-introductions/internal/errors"
	"github.com/oggyb/muzz-introductions/internal/events"
	"github.com/oggyb/muzz-introductions/internal/repository"
	"github.com/oggyb/muzz-introductions/internal/store"
)

// Ledger is the only component allowed to change User.Points. Every mutation
// writes the balance and exactly one PointsHistory row in the same transaction.
type Ledger struct {
	appCtx *app.AppContext
}

// NewLedger creates a Ledger with dependencies from AppContext.
func NewLedger(appCtx *app.AppContext) *Ledger {
	return &Ledger{appCtx: appCtx}
}

// Entry describes one balance change.
type Entry struct {
	Amount      int64
	Type        string
	Description string
}

// PrepareDebit validates a debit against u and returns the updated user plus
// the writes to commit. Nothing is persisted.
//
// Behavior:
//   - Amount must be positive.
//   - Fails with ErrInsufficientPoints when the balance is lower than Amount.
//   - The history row carries a negative delta.
func (l *Ledger) PrepareDebit(u repository.Versioned[domain.User], e Entry) (domain.User, []store.Write, error) {
	if e.Amount <= 0 {
		return domain.User{}, nil, svcErr.InvalidOperation("debit amount must be positive, got %d", e.Amount)
	}
	if u.Value.Points < e.Amount {
		return domain.User{}, nil, fmt.Errorf("%w: user %s has %d, needs %d",
			svcErr.ErrInsufficientPoints, u.Value.UserID, u.Value.Points, e.Amount)
	}
	return l.prepare(u, -e.Amount, e)
}

// PrepareCredit is PrepareDebit's positive counterpart.
func (l *Ledger) PrepareCredit(u repository.Versioned[domain.User], e Entry) (domain.User, []store.Write, error) {
	if e.Amount <= 0 {
		return domain.User{}, nil, svcErr.InvalidOperation("credit amount must be positive, got %d", e.Amount)
	}
	if u.Value.Points > math.MaxInt64-e.Amount {
		return domain.User{}, nil, svcErr.InvalidOperation("credit of %d would overflow the balance of user %s", e.Amount, u.Value.UserID)
	}
	return l.prepare(u, e.Amount, e)
}

func (l *Ledger) prepare(u repository.Versioned[domain.User], delta int64, e Entry) (domain.User, []store.Write, error) {
	now := l.appCtx.Now()

	updated := u.Value
	updated.Points += delta
	updated.UpdatedAt = now

	userW, err := l.appCtx.Repos.Users.Write(updated, u.Version)
	if err != nil {
		return domain.User{}, nil, err
	}
	histW, err := l.appCtx.Repos.Points.Write(domain.PointsHistory{
		ID:          repository.NewID(),
		UserID:      updated.UserID,
		Timestamp:   now,
		Type:        e.Type,
		Points:      delta,
		Description: e.Description,
	})
	if err != nil {
		return domain.User{}, nil, err
	}
	return updated, []store.Write{userW, histW}, nil
}

// Debit removes points and returns the new balance.
//
// Example:
//
//	ledger.Debit(ctx, "u1", points.Entry{Amount: 100, Type: domain.PointsMatchingRequest})
func (l *Ledger) Debit(ctx context.Context, userID string, e Entry) (int64, error) {
	return l.apply(ctx, userID, e, l.PrepareDebit)
}

// Credit adds points and returns the new balance.
func (l *Ledger) Credit(ctx context.Context, userID string, e Entry) (int64, error) {
	balance, err := l.apply(ctx, userID, e, l.PrepareCredit)
	if err == nil {
		l.appCtx.Events.Emit(events.Event{
			Type:   events.TypeCharged,
			UserID: userID,
			Attrs:  map[string]any{"amount": e.Amount, "type": e.Type},
		})
	}
	return balance, err
}

type prepareFunc func(repository.Versioned[domain.User], Entry) (domain.User, []store.Write, error)

func (l *Ledger) apply(ctx context.Context, userID string, e Entry, prepare prepareFunc) (int64, error) {
	l.appCtx.Logger.Debug("ledger apply", "user", userID, "amount", e.Amount, "type", e.Type)

	var balance int64
	err := repository.WithRetry(ctx, l.appCtx.MaxRetries(), func() error {
		u, err := l.user(ctx, userID)
		if err != nil {
			return err
		}
		updated, writes, err := prepare(u, e)
		if err != nil {
			return err
		}
		if err := l.appCtx.Repos.Commit(ctx, writes...); err != nil {
			return err
		}
		balance = updated.Points
		return nil
	})
	if err != nil {
		l.appCtx.Logger.Error("ledger apply failed", "user", userID, "type", e.Type, "err", err)
		return 0, svcErr.Map(err)
	}
	return balance, nil
}

// Balance returns the user's current points.
func (l *Ledger) Balance(ctx context.Context, userID string) (int64, error) {
	u, err := l.user(ctx, userID)
	if err != nil {
		return 0, svcErr.Map(err)
	}
	return u.Value.Points, nil
}

// History returns the user's ledger rows, oldest first.
func (l *Ledger) History(ctx context.Context, userID string) ([]domain.PointsHistory, error) {
	rows, err := l.appCtx.Repos.Points.ListByUser(ctx, userID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Timestamp.Before(rows[j].Timestamp) })
	return rows, nil
}

func (l *Ledger) user(ctx context.Context, userID string) (repository.Versioned[domain.User], error) {
	u, err := l.appCtx.Repos.Users.Get(ctx, userID)
	if store.IsNotFound(err) {
		return u, svcErr.NotFound("user %s not found", userID)
	}
	return u, err
}
