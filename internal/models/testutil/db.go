// Package testutil provides shared database fixtures for
// tests.
package testutil

import (
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	pkgdb "github.com/epivar-cloud/epivar/pkg/db"
)

// OpenTestDB returns an in-memory sqlite connection with the
// full schema migrated.
func OpenTestDB(tb testing.TB) *gorm.DB {
	tb.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}

	if err := pkgdb.MigrateWith(conn); err != nil {
		tb.Fatalf("migrate: %v", err)
	}
	return conn
}

// CloseDB closes the underlying sql connection if available.
func CloseDB(conn *gorm.DB) {
	if conn == nil {
		return
	}
	if sqlDB, err := conn.DB(); err == nil {
		sqlDB.Close()
	}
}
