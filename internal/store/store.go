// Package store defines the versioned key/value abstraction every record in the
// system is persisted through.
//
// Each logical table holds opaque JSON values keyed by string. Every value carries
// a monotonically increasing version; writes are conditional on the version the
// caller last observed, so concurrent read-modify-write cycles on the same key
// cannot silently overwrite each other.
package store

import (
	"context"
	"errors"
)

// Table names one logical table.
type Table string

const (
	Users             Table = "Users"
	MatchingRequests  Table = "MatchingRequests"
	MatchPairs        Table = "MatchPairs"
	PairIndex         Table = "PairIndex"
	Reviews           Table = "Reviews"
	ReviewStats       Table = "ReviewStats"
	PointsHistory     Table = "PointsHistory"
	UserStatusHistory Table = "UserStatusHistory"
)

// Tables lists every logical table, in the order backends create them.
var Tables = []Table{
	Users, MatchingRequests, MatchPairs, PairIndex,
	Reviews, ReviewStats, PointsHistory, UserStatusHistory,
}

var (
	// ErrNotFound is returned by Get when the key does not exist.
	ErrNotFound = errors.New("store: record not found")
	// ErrConflict is returned when a conditional write observed a different version.
	ErrConflict = errors.New("store: version conflict")
)

// Item is a stored value together with its current version.
type Item struct {
	Table   Table
	Key     string
	Value   []byte
	Version int64
}

// Write is a conditional put. ExpectedVersion 0 means the key must not exist yet.
// On success the stored version becomes ExpectedVersion+1.
type Write struct {
	Table           Table
	Key             string
	Value           []byte
	ExpectedVersion int64
}

// Store is implemented by every persistence backend.
type Store interface {
	Get(ctx context.Context, table Table, key string) (Item, error)
	Put(ctx context.Context, w Write) (int64, error)
	// Transact applies all writes or none. Any version mismatch yields ErrConflict.
	Transact(ctx context.Context, writes ...Write) error
	// Scan returns the items of table accepted by keep, in insertion order where
	// the backend can provide one.
	Scan(ctx context.Context, table Table, keep func(Item) bool) ([]Item, error)
	Close() error
}

// All accepts every item; pass it to Scan for a full listing.
func All(Item) bool { return true }

// IsConflict reports whether err is a version conflict.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsNotFound reports whether err is a missing record.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
