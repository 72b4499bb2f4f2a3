// Package dbtest opens migrated in-memory databases for package tests.
package dbtest

import (
	"context"
	"fmt"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"horse.fit/cargoscoop/internal/db"
)

// Open returns a fresh, fully migrated pool backed by a private in-memory
// sqlite database. The pool is closed when the test ends.
func Open(t testing.TB) *db.Pool {
	t.Helper()

	dsn := fmt.Sprintf("file:cargoscoop_%s?mode=memory&cache=shared", uuid.NewString())
	gdb, err := gorm.Open(sqlite.Open(dsn), db.GORMConfig("silent", "test"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	// A single connection keeps the shared-cache database alive and
	// serializes writers the way sqlite expects.
	sqlDB.SetMaxOpenConns(1)

	pool, err := db.NewPoolFromGORM(context.Background(), gdb)
	if err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	t.Cleanup(func() { _ = pool.Close() })
	return pool
}
