package db

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/yungbote/organizer-backend/internal/types"
)

// OpenSQLite opens an on-disk or in-memory sqlite database with the full
// schema migrated. Used by tests and the one-shot CLI mode, where a Postgres
// instance is not assumed.
func OpenSQLite(path string) (*gorm.DB, error) {
	if path == "" {
		path = "file::memory:?cache=shared"
	}
	gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	if err := gdb.AutoMigrate(
		&types.Job{},
		&types.DocumentItem{},
		&types.DuplicateGroup{},
		&types.DuplicateGroupMember{},
		&types.VersionChain{},
		&types.VersionChainMember{},
		&types.OrganizationPlan{},
		&types.ShortcutRecord{},
		&types.ExecutionLogEntry{},
	); err != nil {
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	return gdb, nil
}
