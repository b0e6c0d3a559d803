package payments

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/vendiqhq/vendiq-backend/internal/inventory"
	"github.com/vendiqhq/vendiq-backend/internal/orders"
	"github.com/vendiqhq/vendiq-backend/pkg/db"
	"github.com/vendiqhq/vendiq-backend/pkg/db/models"
	"github.com/vendiqhq/vendiq-backend/pkg/enums"
	pkgerrors "github.com/vendiqhq/vendiq-backend/pkg/errors"
	"github.com/vendiqhq/vendiq-backend/pkg/outbox"
	"github.com/vendiqhq/vendiq-backend/pkg/types"
)

type recordingOutbox struct {
	events []outbox.DomainEvent
}

func (r *recordingOutbox) Emit(_ context.Context, _ *gorm.DB, event outbox.DomainEvent) error {
	r.events = append(r.events, event)
	return nil
}

type reconcileHarness struct {
	svc      Service
	db       *gorm.DB
	repo     orders.Repository
	ledger   inventory.Ledger
	verifier *Verifier
	outbox   *recordingOutbox
	now      time.Time
}

func setupReconcileTestDB(t *testing.T) *gorm.DB {
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
	}
	for _, stmt := range schema {
		require.NoError(t, conn.Exec(stmt).Error)
	}
	t.Cleanup(func() {
		for _, table := range []string{"order_items", "orders", "stock_items"} {
			conn.Exec("DELETE FROM " + table)
		}
	})
	return conn
}

func newReconcileHarness(t *testing.T) *reconcileHarness {
	t.Helper()

	conn := setupReconcileTestDB(t)
	h := &reconcileHarness{
		db:       conn,
		repo:     orders.NewRepository(conn),
		ledger:   inventory.NewLedger(),
		verifier: NewVerifier("wh-secret"),
		outbox:   &recordingOutbox{},
		now:      time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
	}
	svc, err := NewService(ServiceParams{
		Repo:     h.repo,
		Tx:       db.NewFromGorm(conn),
		Outbox:   h.outbox,
		Ledger:   h.ledger,
		Verifier: h.verifier,
		Now:      func() time.Time { return h.now },
	})
	require.NoError(t, err)
	h.svc = svc
	return h
}

func (h *reconcileHarness) seedStock(t *testing.T, productID uuid.UUID, qty int) {
	t.Helper()
	require.NoError(t, h.db.Create(&models.StockItem{ProductID: productID, AvailableQty: qty}).Error)
}

func (h *reconcileHarness) seedPendingOrder(t *testing.T, intentID string, items []models.OrderItem) *models.Order {
	t.Helper()
	addr := types.ShippingAddress{
		Street: "12 Harbor Way", City: "Oakland", State: "CA",
		Zip: "94607", Country: "US", Phone: "+15105550114",
	}
	subtotal := 0
	for _, item := range items {
		subtotal += item.LineTotalCents()
	}
	order := &models.Order{
		BuyerID:             uuid.New(),
		Currency:            enums.CurrencyUSD,
		ShippingAddress:     &addr,
		Status:              enums.OrderStatusPending,
		SubtotalCents:       subtotal,
		ShippingCents:       99,
		TaxCents:            18 * subtotal / 100,
		TotalCents:          subtotal + 99 + 18*subtotal/100,
		PaymentIntentID:     intentID,
		EstimatedDeliveryAt: h.now.Add(120 * time.Hour),
		Items:               items,
	}
	created, err := h.repo.Create(context.Background(), order)
	require.NoError(t, err)
	return created
}

func TestReconcileMarksPaidAndDecrementsStockOnce(t *testing.T) {
	h := newReconcileHarness(t)
	ctx := context.Background()

	productA := uuid.New()
	productB := uuid.New()
	h.seedStock(t, productA, 5)
	h.seedStock(t, productB, 5)

	order := h.seedPendingOrder(t, "intent-1", []models.OrderItem{
		{ProductID: productA, SellerID: uuid.New(), Name: "ceramic mug", UnitPriceCents: 50, Qty: 2},
		{ProductID: productB, SellerID: uuid.New(), Name: "walnut tray", UnitPriceCents: 100, Qty: 1},
	})

	proof := h.verifier.Sign("intent-1", "conf-1")
	got, err := h.svc.Reconcile(ctx, ReconcileInput{
		PaymentIntentID: "intent-1",
		ConfirmationID:  "conf-1",
		Proof:           proof,
	})
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusProcessing, got.Status)
	require.NotNil(t, got.PaidAt)
	require.NotNil(t, got.PaymentConfirmationID)
	require.Equal(t, "conf-1", *got.PaymentConfirmationID)
	for _, item := range got.Items {
		require.Equal(t, enums.OrderStatusProcessing, item.Status)
	}

	qty, err := h.ledger.GetAvailable(ctx, h.db, productA)
	require.NoError(t, err)
	require.Equal(t, 3, qty)
	qty, err = h.ledger.GetAvailable(ctx, h.db, productB)
	require.NoError(t, err)
	require.Equal(t, 4, qty)

	require.Len(t, h.outbox.events, 1)
	require.Equal(t, enums.EventOrderPaid, h.outbox.events[0].EventType)
	require.Equal(t, order.ID, h.outbox.events[0].AggregateID)

	// Replaying the same confirmation is a no-op: no second decrement, no
	// second event.
	got, err = h.svc.Reconcile(ctx, ReconcileInput{
		PaymentIntentID: "intent-1",
		ConfirmationID:  "conf-1",
		Proof:           proof,
	})
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusProcessing, got.Status)

	qty, err = h.ledger.GetAvailable(ctx, h.db, productA)
	require.NoError(t, err)
	require.Equal(t, 3, qty)
	require.Len(t, h.outbox.events, 1)
}

func TestReconcileRejectsTamperedProofBeforeAnyWrite(t *testing.T) {
	h := newReconcileHarness(t)
	ctx := context.Background()

	productID := uuid.New()
	h.seedStock(t, productID, 5)
	order := h.seedPendingOrder(t, "intent-1", []models.OrderItem{
		{ProductID: productID, SellerID: uuid.New(), Name: "ceramic mug", UnitPriceCents: 50, Qty: 2},
	})

	// Proof signed for a different confirmation id.
	_, err := h.svc.Reconcile(ctx, ReconcileInput{
		PaymentIntentID: "intent-1",
		ConfirmationID:  "conf-1",
		Proof:           h.verifier.Sign("intent-1", "conf-other"),
	})
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeSignatureMismatch), "got %v", err)

	reloaded, err := h.repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusPending, reloaded.Status)
	require.Nil(t, reloaded.PaidAt)

	qty, err := h.ledger.GetAvailable(ctx, h.db, productID)
	require.NoError(t, err)
	require.Equal(t, 5, qty)
}

func TestReconcileInsufficientStockRollsBackEverything(t *testing.T) {
	h := newReconcileHarness(t)
	ctx := context.Background()

	productA := uuid.New()
	productB := uuid.New()
	h.seedStock(t, productA, 5)
	h.seedStock(t, productB, 0)

	order := h.seedPendingOrder(t, "intent-1", []models.OrderItem{
		{ProductID: productA, SellerID: uuid.New(), Name: "ceramic mug", UnitPriceCents: 50, Qty: 2},
		{ProductID: productB, SellerID: uuid.New(), Name: "walnut tray", UnitPriceCents: 100, Qty: 1},
	})

	_, err := h.svc.Reconcile(ctx, ReconcileInput{
		PaymentIntentID: "intent-1",
		ConfirmationID:  "conf-1",
		Proof:           h.verifier.Sign("intent-1", "conf-1"),
	})
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStockInsufficient), "got %v", err)

	// The first line's decrement and the paid stamp both rolled back.
	qty, err := h.ledger.GetAvailable(ctx, h.db, productA)
	require.NoError(t, err)
	require.Equal(t, 5, qty)

	reloaded, err := h.repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusPending, reloaded.Status)
	require.Nil(t, reloaded.PaidAt)
	require.Empty(t, h.outbox.events)
}

func TestReconcileCancelledOrderRejected(t *testing.T) {
	h := newReconcileHarness(t)
	ctx := context.Background()

	order := h.seedPendingOrder(t, "intent-1", []models.OrderItem{
		{ProductID: uuid.New(), SellerID: uuid.New(), Name: "ceramic mug", UnitPriceCents: 50, Qty: 1},
	})
	require.NoError(t, h.db.Model(&models.Order{}).
		Where("id = ?", order.ID).
		Update("status", enums.OrderStatusCancelled).Error)

	_, err := h.svc.Reconcile(ctx, ReconcileInput{
		PaymentIntentID: "intent-1",
		ConfirmationID:  "conf-1",
		Proof:           h.verifier.Sign("intent-1", "conf-1"),
	})
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInvalidTransition), "got %v", err)
}

func TestReconcileUnknownIntent(t *testing.T) {
	h := newReconcileHarness(t)

	_, err := h.svc.Reconcile(context.Background(), ReconcileInput{
		PaymentIntentID: "intent-missing",
		ConfirmationID:  "conf-1",
		Proof:           h.verifier.Sign("intent-missing", "conf-1"),
	})
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound), "got %v", err)
}

// staleItemRepo reports every guarded item update as lost to a concurrent
// writer, standing in for a cancellation that committed between the order
// snapshot and the item flip.
type staleItemRepo struct {
	orders.Repository
}

func (r staleItemRepo) WithTx(tx *gorm.DB) orders.Repository {
	return staleItemRepo{Repository: r.Repository.WithTx(tx)}
}

func (r staleItemRepo) UpdateItemStatusGuarded(context.Context, uuid.UUID, enums.OrderStatus, enums.OrderStatus, map[string]any) (bool, error) {
	return false, nil
}

func TestReconcileConflictsWhenItemChangesUnderneath(t *testing.T) {
	h := newReconcileHarness(t)
	ctx := context.Background()

	productID := uuid.New()
	h.seedStock(t, productID, 5)
	order := h.seedPendingOrder(t, "intent-1", []models.OrderItem{
		{ProductID: productID, SellerID: uuid.New(), Name: "ceramic mug", UnitPriceCents: 50, Qty: 2},
	})

	svc, err := NewService(ServiceParams{
		Repo:     staleItemRepo{Repository: h.repo},
		Tx:       db.NewFromGorm(h.db),
		Outbox:   h.outbox,
		Ledger:   h.ledger,
		Verifier: h.verifier,
		Now:      func() time.Time { return h.now },
	})
	require.NoError(t, err)

	_, err = svc.Reconcile(ctx, ReconcileInput{
		PaymentIntentID: "intent-1",
		ConfirmationID:  "conf-1",
		Proof:           h.verifier.Sign("intent-1", "conf-1"),
	})
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict), "got %v", err)

	// The paid stamp, the aggregate flip, and the decrement all rolled back.
	reloaded, err := h.repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusPending, reloaded.Status)
	require.Nil(t, reloaded.PaidAt)

	qty, err := h.ledger.GetAvailable(ctx, h.db, productID)
	require.NoError(t, err)
	require.Equal(t, 5, qty)
	require.Empty(t, h.outbox.events)
}

func TestReconcileSkipsCancelledItems(t *testing.T) {
	h := newReconcileHarness(t)
	ctx := context.Background()

	productA := uuid.New()
	productB := uuid.New()
	h.seedStock(t, productA, 5)
	h.seedStock(t, productB, 5)

	cancelledAt := h.now.Add(-time.Hour)
	_ = h.seedPendingOrder(t, "intent-1", []models.OrderItem{
		{ProductID: productA, SellerID: uuid.New(), Name: "ceramic mug", UnitPriceCents: 50, Qty: 2},
		{ProductID: productB, SellerID: uuid.New(), Name: "walnut tray", UnitPriceCents: 100, Qty: 1,
			Status: enums.OrderStatusCancelled, CancelledAt: &cancelledAt},
	})

	got, err := h.svc.Reconcile(ctx, ReconcileInput{
		PaymentIntentID: "intent-1",
		ConfirmationID:  "conf-1",
		Proof:           h.verifier.Sign("intent-1", "conf-1"),
	})
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusProcessing, got.Status)

	qty, err := h.ledger.GetAvailable(ctx, h.db, productB)
	require.NoError(t, err)
	require.Equal(t, 5, qty, "cancelled line takes no stock")
}
