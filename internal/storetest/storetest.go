// Package storetest opens migrated in-memory stores for tests.
package storetest

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/suPer8Hu/picgen-bot/internal/db"
	"github.com/suPer8Hu/picgen-bot/internal/store"
	"gorm.io/gorm"
)

var seq atomic.Uint64

// Open returns a store over a fresh, migrated in-memory SQLite database.
func Open(t testing.TB) (*store.Store, *gorm.DB) {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, seq.Add(1))

	gdb, err := db.Connect(dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	s := store.New(gdb)
	t.Cleanup(func() {
		s.Close()
		_ = db.Close(gdb)
	})
	return s, gdb
}
