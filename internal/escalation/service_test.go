package escalation

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/vendiqhq/vendiq-backend/internal/orders"
	"github.com/vendiqhq/vendiq-backend/internal/sellers"
	"github.com/vendiqhq/vendiq-backend/pkg/config"
	"github.com/vendiqhq/vendiq-backend/pkg/db"
	"github.com/vendiqhq/vendiq-backend/pkg/db/models"
	"github.com/vendiqhq/vendiq-backend/pkg/enums"
	"github.com/vendiqhq/vendiq-backend/pkg/outbox"
)

type recordingOutbox struct {
	events []outbox.DomainEvent
}

func (r *recordingOutbox) Emit(_ context.Context, _ *gorm.DB, event outbox.DomainEvent) error {
	r.events = append(r.events, event)
	return nil
}

type escalationHarness struct {
	svc    *Service
	db     *gorm.DB
	repo   orders.Repository
	stats  sellers.StatsSink
	outbox *recordingOutbox
	now    time.Time
}

func setupEscalationTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	schema := []string{
		`CREATE TABLE IF NOT EXISTS stock_items (
  product_id TEXT PRIMARY KEY,
  available_qty INTEGER NOT NULL DEFAULT 0,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  buyer_id TEXT NOT NULL,
  currency TEXT NOT NULL DEFAULT 'USD',
  shipping_address TEXT,
  status TEXT NOT NULL DEFAULT 'pending',
  subtotal_cents INTEGER NOT NULL,
  shipping_cents INTEGER NOT NULL DEFAULT 0,
  tax_cents INTEGER NOT NULL DEFAULT 0,
  discount_cents INTEGER NOT NULL DEFAULT 0,
  total_cents INTEGER NOT NULL,
  payment_intent_id TEXT NOT NULL UNIQUE,
  payment_confirmation_id TEXT,
  paid_at DATETIME,
  shipped_at DATETIME,
  delivered_at DATETIME,
  cancelled_at DATETIME,
  estimated_delivery_at DATETIME NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS order_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  seller_id TEXT NOT NULL,
  name TEXT NOT NULL,
  unit_price_cents INTEGER NOT NULL,
  qty INTEGER NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  seller_credited_at DATETIME,
  cancelled_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS seller_stats (
  seller_id TEXT PRIMARY KEY,
  units_sold INTEGER NOT NULL DEFAULT 0,
  revenue_cents INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`,
	}
	for _, stmt := range schema {
		require.NoError(t, conn.Exec(stmt).Error)
	}
	t.Cleanup(func() {
		for _, table := range []string{"order_items", "orders", "stock_items", "seller_stats"} {
			conn.Exec("DELETE FROM " + table)
		}
	})
	return conn
}

func newEscalationHarness(t *testing.T) *escalationHarness {
	t.Helper()

	conn := setupEscalationTestDB(t)
	h := &escalationHarness{
		db:     conn,
		repo:   orders.NewRepository(conn),
		stats:  sellers.NewStatsSink(),
		outbox: &recordingOutbox{},
		now:    time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
	}
	svc, err := NewService(ServiceParams{
		Repo:   h.repo,
		Tx:     db.NewFromGorm(conn),
		Outbox: h.outbox,
		Stats:  h.stats,
		Evaluator: NewEvaluator(config.EscalationConfig{
			PendingAfter:    2 * time.Hour,
			ProcessingAfter: 48 * time.Hour,
			ShippedAfter:    120 * time.Hour,
		}),
	})
	require.NoError(t, err)
	h.svc = svc
	return h
}

func (h *escalationHarness) seedOrder(t *testing.T, status enums.OrderStatus, age time.Duration, items []models.OrderItem) *models.Order {
	t.Helper()
	subtotal := 0
	for _, item := range items {
		subtotal += item.LineTotalCents()
	}
	order := &models.Order{
		BuyerID:             uuid.New(),
		Currency:            enums.CurrencyUSD,
		Status:              status,
		SubtotalCents:       subtotal,
		ShippingCents:       99,
		TotalCents:          subtotal + 99,
		PaymentIntentID:     "intent-" + uuid.NewString(),
		EstimatedDeliveryAt: h.now.Add(120 * time.Hour),
		Items:               items,
	}
	created, err := h.repo.Create(context.Background(), order)
	require.NoError(t, err)

	// Backdate creation so the evaluator sees the intended age.
	createdAt := h.now.Add(-age)
	require.NoError(t, h.db.Model(&models.Order{}).
		Where("id = ?", created.ID).
		Update("created_at", createdAt).Error)
	reloaded, err := h.repo.FindByID(context.Background(), created.ID)
	require.NoError(t, err)
	return reloaded
}

func TestApplyPromotesStalePendingOneStep(t *testing.T) {
	h := newEscalationHarness(t)
	ctx := context.Background()

	productID := uuid.New()
	require.NoError(t, h.db.Create(&models.StockItem{ProductID: productID, AvailableQty: 5}).Error)

	order := h.seedOrder(t, enums.OrderStatusPending, 3*time.Hour, []models.OrderItem{
		{ProductID: productID, SellerID: uuid.New(), Name: "ceramic mug", UnitPriceCents: 50, Qty: 2, Status: enums.OrderStatusPending},
	})

	got, err := h.svc.Apply(ctx, order, h.now)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusProcessing, got.Status)
	require.Len(t, got.Items, 1)
	require.Equal(t, enums.OrderStatusProcessing, got.Items[0].Status)

	// Promotion is purely a status walk; stock is untouched.
	var stock models.StockItem
	require.NoError(t, h.db.Where("product_id = ?", productID).First(&stock).Error)
	require.Equal(t, 5, stock.AvailableQty)

	require.Len(t, h.outbox.events, 1)
	require.Equal(t, enums.EventOrderEscalated, h.outbox.events[0].EventType)
}

func TestApplyIsIdempotentPerEvaluation(t *testing.T) {
	h := newEscalationHarness(t)
	ctx := context.Background()

	// Far past every threshold, but each evaluation moves one step, and
	// re-applying with the same observed snapshot does nothing.
	order := h.seedOrder(t, enums.OrderStatusPending, 7*24*time.Hour, []models.OrderItem{
		{ProductID: uuid.New(), SellerID: uuid.New(), Name: "ceramic mug", UnitPriceCents: 50, Qty: 1, Status: enums.OrderStatusPending},
	})

	first, err := h.svc.Apply(ctx, order, h.now)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusProcessing, first.Status)

	// Same stale snapshot again: the guarded write misses and the fresher
	// row comes back unchanged.
	second, err := h.svc.Apply(ctx, order, h.now)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusProcessing, second.Status)
	require.Len(t, h.outbox.events, 1, "no duplicate escalation event")
}

func TestApplyFreshOrderIsNoop(t *testing.T) {
	h := newEscalationHarness(t)
	ctx := context.Background()

	order := h.seedOrder(t, enums.OrderStatusPending, 30*time.Minute, []models.OrderItem{
		{ProductID: uuid.New(), SellerID: uuid.New(), Name: "ceramic mug", UnitPriceCents: 50, Qty: 1, Status: enums.OrderStatusPending},
	})

	got, err := h.svc.Apply(ctx, order, h.now)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusPending, got.Status)
	require.Empty(t, h.outbox.events)
}

func TestApplyDeliveryCreditsSellersOnce(t *testing.T) {
	h := newEscalationHarness(t)
	ctx := context.Background()

	sellerID := uuid.New()
	order := h.seedOrder(t, enums.OrderStatusShipped, 121*time.Hour, []models.OrderItem{
		{ProductID: uuid.New(), SellerID: sellerID, Name: "ceramic mug", UnitPriceCents: 50, Qty: 2, Status: enums.OrderStatusShipped},
	})

	got, err := h.svc.Apply(ctx, order, h.now)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusDelivered, got.Status)
	require.NotNil(t, got.DeliveredAt)

	stats, err := h.stats.GetStats(ctx, h.db, sellerID)
	require.NoError(t, err)
	require.Equal(t, 2, stats.UnitsSold)
	require.Equal(t, 100, stats.RevenueCents)

	// Replaying the stale snapshot does not double-credit.
	_, err = h.svc.Apply(ctx, order, h.now)
	require.NoError(t, err)
	stats, err = h.stats.GetStats(ctx, h.db, sellerID)
	require.NoError(t, err)
	require.Equal(t, 2, stats.UnitsSold)
	require.Equal(t, 100, stats.RevenueCents)
}

func TestApplySkipsCancelledItems(t *testing.T) {
	h := newEscalationHarness(t)
	ctx := context.Background()

	cancelledAt := h.now.Add(-time.Hour)
	order := h.seedOrder(t, enums.OrderStatusProcessing, 49*time.Hour, []models.OrderItem{
		{ProductID: uuid.New(), SellerID: uuid.New(), Name: "ceramic mug", UnitPriceCents: 50, Qty: 1, Status: enums.OrderStatusProcessing},
		{ProductID: uuid.New(), SellerID: uuid.New(), Name: "walnut tray", UnitPriceCents: 100, Qty: 1,
			Status: enums.OrderStatusCancelled, CancelledAt: &cancelledAt},
	})

	got, err := h.svc.Apply(ctx, order, h.now)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusShipped, got.Status)
	for _, item := range got.Items {
		if item.CancelledAt != nil {
			require.Equal(t, enums.OrderStatusCancelled, item.Status)
		} else {
			require.Equal(t, enums.OrderStatusShipped, item.Status)
		}
	}
}
