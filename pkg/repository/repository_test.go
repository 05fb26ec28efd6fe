package repository

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/mealsub/pkg/db/option"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type dish struct {
	ID        int64 `gorm:"primaryKey"`
	Vendor    string
	CreatedAt time.Time
}

func openDishes(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, conn.AutoMigrate(&dish{}))
	return conn
}

func TestFindFiltersByExampleAndOrders(t *testing.T) {
	conn := openDishes(t)
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, conn.Create([]*dish{
		{ID: 1, Vendor: "warung", CreatedAt: base},
		{ID: 2, Vendor: "warung", CreatedAt: base.Add(time.Hour)},
		{ID: 3, Vendor: "bowl", CreatedAt: base.Add(2 * time.Hour)},
	}).Error)

	store := ProvideStore[dish](conn)
	rows, err := store.Find(context.Background(), &dish{Vendor: "warung"},
		option.WithSortBy(option.WithQuerySortBy("created_at", "desc", map[string]bool{"created_at": true})),
	)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, int64(2), rows[0].ID)
	require.Equal(t, int64(1), rows[1].ID)
}

func TestFindWithoutMatchesReturnsEmptySlice(t *testing.T) {
	conn := openDishes(t)

	rows, err := ProvideStore[dish](conn).WithTrx(conn).Find(context.Background(), &dish{Vendor: "nobody"})
	require.NoError(t, err)
	require.NotNil(t, rows)
	require.Empty(t, rows)
}
