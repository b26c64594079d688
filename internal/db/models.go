package db

import (
	"time"
)

// Record is the single physical table behind every logical store table.
//
// Unique index: idx_tbl_key(tbl, record_key)
//   - One row per logical (table, key); duplicate inserts fail, which is what
//     create-only writes rely on.
//
// Fields:
//   - Seq: insertion order, used to keep scans stable.
//   - Tbl: logical table name (Users, MatchingRequests, ...).
//   - RecordKey: primary key inside the logical table.
//   - Value: JSON document.
//   - Version: bumped on every write; conditional updates match on it.
type Record struct {
	Seq       int64     `gorm:"primaryKey;autoIncrement"`
	Tbl       string    `gorm:"size:64;not null;uniqueIndex:idx_tbl_key,priority:1"`
	RecordKey string    `gorm:"size:191;not null;uniqueIndex:idx_tbl_key,priority:2"`
	Value     string    `gorm:"type:text;not null"`
	Version   int64     `gorm:"not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (Record) TableName() string { return "records" }
