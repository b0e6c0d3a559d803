package sellers

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupStatsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	sellerStats := `
CREATE TABLE IF NOT EXISTS seller_stats (
  seller_id TEXT PRIMARY KEY,
  units_sold INTEGER NOT NULL DEFAULT 0,
  revenue_cents INTEGER NOT NULL DEFAULT 0,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(sellerStats).Error)
	t.Cleanup(func() {
		db.Exec("DELETE FROM seller_stats")
	})
	return db
}

func TestCreditSaleUpsertsAndAccumulates(t *testing.T) {
	db := setupStatsTestDB(t)
	ctx := context.Background()
	sink := NewStatsSink()
	sellerID := uuid.New()

	require.NoError(t, sink.CreditSale(ctx, db, sellerID, 2, 20000))
	require.NoError(t, sink.CreditSale(ctx, db, sellerID, 1, 5000))

	stats, err := sink.GetStats(ctx, db, sellerID)
	require.NoError(t, err)
	require.Equal(t, 3, stats.UnitsSold)
	require.Equal(t, 25000, stats.RevenueCents)
}

func TestCreditSaleValidation(t *testing.T) {
	db := setupStatsTestDB(t)
	ctx := context.Background()
	sink := NewStatsSink()

	require.Error(t, sink.CreditSale(ctx, nil, uuid.New(), 1, 100))
	require.Error(t, sink.CreditSale(ctx, db, uuid.Nil, 1, 100))
	// Zero deltas are a no-op, not an error.
	require.NoError(t, sink.CreditSale(ctx, db, uuid.New(), 0, 0))
}

func TestGetStatsUnknownSellerIsZero(t *testing.T) {
	db := setupStatsTestDB(t)
	sink := NewStatsSink()
	sellerID := uuid.New()

	stats, err := sink.GetStats(context.Background(), db, sellerID)
	require.NoError(t, err)
	require.Equal(t, sellerID, stats.SellerID)
	require.Zero(t, stats.UnitsSold)
	require.Zero(t, stats.RevenueCents)
}
