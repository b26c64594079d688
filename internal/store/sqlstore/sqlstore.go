package sqlstore

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/oggyb/muzz-introductions/internal/db"
	"github.com/oggyb/muzz-introductions/internal/store"
)

// Store implements store.Store on the gorm `records` table (MySQL in production,
// SQLite in tests).
type Store struct {
	db *gorm.DB
}

var _ store.Store = (*Store)(nil)

// New creates a store bound to the given DB connection. The schema must already
// be migrated (db.Open does that).
func New(database *gorm.DB) *Store {
	return &Store{db: database}
}

// Get loads one record.
func (s *Store) Get(ctx context.Context, table store.Table, key string) (store.Item, error) {
	var rec db.Record
	err := s.db.WithContext(ctx).
		Where("tbl = ? AND record_key = ?", string(table), key).
		Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.Item{}, store.ErrNotFound
	}
	if err != nil {
		return store.Item{}, err
	}
	return toItem(rec), nil
}

// Put is a single-write transaction.
func (s *Store) Put(ctx context.Context, w store.Write) (int64, error) {
	if err := s.Transact(ctx, w); err != nil {
		return 0, err
	}
	return w.ExpectedVersion + 1, nil
}

// Transact applies every write inside one SQL transaction.
//
// Behavior:
//   - ExpectedVersion == 0 → INSERT; an existing row (unique idx_tbl_key) is a conflict.
//   - ExpectedVersion  > 0 → UPDATE ... WHERE version = expected; zero rows affected is a conflict.
//   - Any conflict rolls back the whole transaction.
func (s *Store) Transact(ctx context.Context, writes ...store.Write) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, w := range writes {
			if err := apply(tx, w); err != nil {
				return err
			}
		}
		return nil
	})
}

func apply(tx *gorm.DB, w store.Write) error {
	if w.ExpectedVersion == 0 {
		var count int64
		if err := tx.Model(&db.Record{}).
			Where("tbl = ? AND record_key = ?", string(w.Table), w.Key).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("%w: %s/%s already exists", store.ErrConflict, w.Table, w.Key)
		}
		rec := db.Record{Tbl: string(w.Table), RecordKey: w.Key, Value: string(w.Value), Version: 1}
		if err := tx.Create(&rec).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("%w: %s/%s already exists", store.ErrConflict, w.Table, w.Key)
			}
			return err
		}
		return nil
	}

	res := tx.Model(&db.Record{}).
		Where("tbl = ? AND record_key = ? AND version = ?", string(w.Table), w.Key, w.ExpectedVersion).
		Updates(map[string]any{
			"value":   string(w.Value),
			"version": w.ExpectedVersion + 1,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s/%s is not at version %d", store.ErrConflict, w.Table, w.Key, w.ExpectedVersion)
	}
	return nil
}

// Scan returns the table's rows in insertion order (seq ASC).
func (s *Store) Scan(ctx context.Context, table store.Table, keep func(store.Item) bool) ([]store.Item, error) {
	var recs []db.Record
	if err := s.db.WithContext(ctx).
		Where("tbl = ?", string(table)).
		Order("seq ASC").
		Find(&recs).Error; err != nil {
		return nil, err
	}

	var out []store.Item
	for _, r := range recs {
		it := toItem(r)
		if keep == nil || keep(it) {
			out = append(out, it)
		}
	}
	return out, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toItem(r db.Record) store.Item {
	return store.Item{
		Table:   store.Table(r.Tbl),
		Key:     r.RecordKey,
		Value:   []byte(r.Value),
		Version: r.Version,
	}
}
