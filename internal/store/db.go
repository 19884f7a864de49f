// Package store provides GORM-backed persistence for the support desk.
//
// Correctness of message dedup and conversation creation is pushed onto
// storage-level atomic upsert / insert-or-ignore semantics rather than
// in-process locking, so concurrent callers (live events, backfill, agent
// sends) and even multiple processes converge on the same state.
package store

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/zapdesk/zapdesk/internal/model"
)

// Sentinel errors surfaced by the stores.
var (
	// ErrNotFound means the referenced record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate means a natural-key conflict was rejected (not absorbed).
	ErrDuplicate = errors.New("duplicate record")
)

// Open connects to the configured database and migrates the schema.
// Supported drivers: postgres (production) and sqlite (development, tests).
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(
		&model.Attendant{},
		&model.Account{},
		&model.Conversation{},
		&model.Message{},
		&model.ReadMarker{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}
