// Package testutil wires an in-memory database and small fixtures for service tests.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/mealsub/internal/events"
	menudomain "github.com/smallbiznis/mealsub/internal/menu/domain"
	"github.com/smallbiznis/mealsub/internal/migration"
	vendordomain "github.com/smallbiznis/mealsub/internal/vendors/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var dbSeq int64
var dbSeqMu sync.Mutex

// OpenDB returns a migrated private sqlite database. A single connection keeps
// the in-memory database alive and serializes writers.
func OpenDB(t testing.TB) *gorm.DB {
	t.Helper()

	dbSeqMu.Lock()
	dbSeq++
	name := fmt.Sprintf("file:mealsub_test_%d?mode=memory&cache=shared", dbSeq)
	dbSeqMu.Unlock()

	db, err := gorm.Open(sqlite.Open(name), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := migration.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func Node(t testing.TB) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return node
}

func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func SeedVendor(t testing.TB, db *gorm.DB, node *snowflake.Node, capacity int) vendordomain.Vendor {
	t.Helper()
	now := time.Now().UTC()
	id := node.Generate()
	vendor := vendordomain.Vendor{
		ID:              id,
		Name:            "Vendor " + id.String(),
		Slug:            "vendor-" + id.String(),
		MonthlyCapacity: capacity,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := db.Create(&vendor).Error; err != nil {
		t.Fatalf("seed vendor: %v", err)
	}
	return vendor
}

func SeedMenu(t testing.TB, db *gorm.DB, node *snowflake.Node, vendorID snowflake.ID, mealType menudomain.MealType, price string) menudomain.Menu {
	t.Helper()
	now := time.Now().UTC()
	menu := menudomain.Menu{
		ID:        node.Generate(),
		VendorID:  vendorID,
		Name:      string(mealType) + " set",
		MealType:  mealType,
		Price:     decimal.RequireFromString(price),
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.Create(&menu).Error; err != nil {
		t.Fatalf("seed menu: %v", err)
	}
	return menu
}

// RecordingEmitter keeps every emitted event in memory.
type RecordingEmitter struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *RecordingEmitter) Emit(_ context.Context, evts ...events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evts...)
}

func (r *RecordingEmitter) Events() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

func (r *RecordingEmitter) Types() []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Type, 0, len(r.events))
	for _, evt := range r.events {
		out = append(out, evt.Type)
	}
	return out
}

func (r *RecordingEmitter) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
