package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vendiqhq/vendiq-backend/internal/inventory"
	"github.com/vendiqhq/vendiq-backend/internal/products"
	"github.com/vendiqhq/vendiq-backend/internal/sellers"
	"github.com/vendiqhq/vendiq-backend/pkg/db/models"
	"github.com/vendiqhq/vendiq-backend/pkg/enums"
	pkgerrors "github.com/vendiqhq/vendiq-backend/pkg/errors"
	"github.com/vendiqhq/vendiq-backend/pkg/gateway"
	"github.com/vendiqhq/vendiq-backend/pkg/logger"
	"github.com/vendiqhq/vendiq-backend/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// IntentCreator registers a payment intent with the external gateway.
type IntentCreator interface {
	CreateIntent(ctx context.Context, params gateway.IntentCreateParams) (*gateway.Intent, error)
}

// Escalator promotes a stale order forward by at most one time-gated step.
// Get routes every read through it so promotion has a single evaluation
// point.
type Escalator interface {
	Apply(ctx context.Context, order *models.Order, now time.Time) (*models.Order, error)
}

// Service defines the order aggregate's write and read operations.
type Service interface {
	Create(ctx context.Context, input CreateOrderInput) (*CreateOrderResult, error)
	Get(ctx context.Context, orderID, viewerID uuid.UUID, role enums.MemberRole) (*models.Order, error)
	ListForBuyer(ctx context.Context, buyerID uuid.UUID) ([]models.Order, error)
	Transition(ctx context.Context, input TransitionInput) (*models.Order, error)
	Cancel(ctx context.Context, input CancelInput) (*models.Order, error)
	SellerView(ctx context.Context, orderID, sellerID uuid.UUID) (*SellerOrderSummary, error)
}

// ServiceParams collects the dependencies for NewService.
type ServiceParams struct {
	Repo      Repository
	Tx        txRunner
	DB        *gorm.DB
	Outbox    outboxPublisher
	Catalog   products.Catalog
	Ledger    inventory.Ledger
	Stats     sellers.StatsSink
	Pricer    *Pricer
	Gateway   IntentCreator
	Escalator Escalator
	LeadTime  time.Duration
	Logger    *logger.Logger
	Now       func() time.Time
}

type service struct {
	repo      Repository
	tx        txRunner
	db        *gorm.DB
	outbox    outboxPublisher
	catalog   products.Catalog
	ledger    inventory.Ledger
	stats     sellers.StatsSink
	pricer    *Pricer
	gw        IntentCreator
	escalator Escalator
	leadTime  time.Duration
	logg      *logger.Logger
	now       func() time.Time
}

// NewService builds the order service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db handle required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("product catalog required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("stock ledger required")
	}
	if params.Stats == nil {
		return nil, fmt.Errorf("seller stats sink required")
	}
	if params.Pricer == nil {
		return nil, fmt.Errorf("pricer required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("gateway client required")
	}
	if params.Escalator == nil {
		return nil, fmt.Errorf("escalator required")
	}
	if params.LeadTime <= 0 {
		return nil, fmt.Errorf("delivery lead time must be positive")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:      params.Repo,
		tx:        params.Tx,
		db:        params.DB,
		outbox:    params.Outbox,
		catalog:   params.Catalog,
		ledger:    params.Ledger,
		stats:     params.Stats,
		pricer:    params.Pricer,
		gw:        params.Gateway,
		escalator: params.Escalator,
		leadTime:  params.LeadTime,
		logg:      params.Logger,
		now:       now,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateOrderInput) (*CreateOrderResult, error) {
	if input.BuyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "buyer identity missing")
	}
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order must contain at least one item")
	}
	for _, line := range input.Items {
		if line.ProductID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
		}
		if line.Qty < 1 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item quantity must be at least 1")
		}
	}
	if err := input.ShippingAddress.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid shipping address")
	}

	ids := make([]uuid.UUID, 0, len(input.Items))
	for _, line := range input.Items {
		ids = append(ids, line.ProductID)
	}
	listings, err := s.catalog.FindActiveByIDs(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}

	// Availability is checked optimistically here; nothing is reserved.
	// Reconciliation re-checks authoritatively before decrementing.
	items := make([]models.OrderItem, 0, len(input.Items))
	for _, line := range input.Items {
		listing, ok := listings[line.ProductID]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound,
				fmt.Sprintf("product %s not found", line.ProductID))
		}
		available := 0
		if listing.Stock != nil {
			available = listing.Stock.AvailableQty
		}
		if line.Qty > available {
			return nil, pkgerrors.New(pkgerrors.CodeStockInsufficient,
				fmt.Sprintf("insufficient stock for product %s", line.ProductID))
		}
		items = append(items, models.OrderItem{
			ProductID:      listing.ID,
			SellerID:       listing.SellerID,
			Name:           listing.Name,
			UnitPriceCents: listing.PriceCents,
			Qty:            line.Qty,
			Status:         enums.OrderStatusPending,
		})
	}

	breakdown := s.pricer.Price(items)
	now := s.now()

	// The id is assigned up front so the gateway intent can reference the
	// order it pays for.
	orderID := uuid.New()
	intent, err := s.gw.CreateIntent(ctx, gateway.IntentCreateParams{
		OrderID:     orderID,
		AmountCents: int64(breakdown.TotalCents),
		SourceID:    input.PaymentSourceID,
		BuyerID:     input.BuyerID.String(),
		Note:        "order checkout",
	})
	if err != nil {
		return nil, err
	}

	address := input.ShippingAddress
	order := &models.Order{
		ID:                  orderID,
		BuyerID:             input.BuyerID,
		Currency:            enums.CurrencyUSD,
		ShippingAddress:     &address,
		Status:              enums.OrderStatusPending,
		SubtotalCents:       breakdown.SubtotalCents,
		ShippingCents:       breakdown.ShippingCents,
		TaxCents:            breakdown.TaxCents,
		DiscountCents:       breakdown.DiscountCents,
		TotalCents:          breakdown.TotalCents,
		PaymentIntentID:     intent.ID,
		EstimatedDeliveryAt: now.Add(s.leadTime),
		Items:               items,
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist order")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			Actor:         &outbox.ActorRef{UserID: input.BuyerID, Role: enums.MemberRoleBuyer.String()},
			Data: OrderCreatedEvent{
				OrderID:         order.ID,
				BuyerID:         order.BuyerID,
				TotalCents:      order.TotalCents,
				ItemCount:       len(order.Items),
				PaymentIntentID: order.PaymentIntentID,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithOrderID(ctx, order.ID.String())
		s.logg.Info(logCtx, "order created")
	}
	return &CreateOrderResult{Order: order, PaymentIntentID: order.PaymentIntentID}, nil
}

func (s *service) Get(ctx context.Context, orderID, viewerID uuid.UUID, role enums.MemberRole) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if err := authorizeView(order, viewerID, role); err != nil {
		return nil, err
	}
	return s.escalator.Apply(ctx, order, s.now())
}

func (s *service) ListForBuyer(ctx context.Context, buyerID uuid.UUID) ([]models.Order, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "buyer identity missing")
	}
	rows, err := s.repo.ListByBuyer(ctx, buyerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	now := s.now()
	out := make([]models.Order, 0, len(rows))
	for i := range rows {
		promoted, err := s.escalator.Apply(ctx, &rows[i], now)
		if err != nil {
			return nil, err
		}
		out = append(out, *promoted)
	}
	return out, nil
}

func (s *service) Transition(ctx context.Context, input TransitionInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity missing")
	}
	if !input.NewStatus.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("unknown order status %q", input.NewStatus))
	}

	if input.NewStatus == enums.OrderStatusCancelled {
		return s.Cancel(ctx, CancelInput{
			OrderID:   input.OrderID,
			ActorID:   input.ActorID,
			ActorRole: input.ActorRole,
			ItemIDs:   input.ItemIDs,
		})
	}

	var result *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByID(ctx, input.OrderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}

		targets, err := resolveScope(order, input.ActorID, input.ActorRole, input.ItemIDs, false)
		if err != nil {
			return err
		}

		// Forward movement into processing is reserved for payment
		// reconciliation on unpaid orders.
		if input.NewStatus == enums.OrderStatusProcessing && order.PaidAt == nil {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition,
				"order cannot advance to processing before payment")
		}

		// Validate every targeted item before mutating anything.
		for _, item := range targets {
			if err := ValidateTransition(item.Status, input.NewStatus); err != nil {
				return err
			}
		}

		now := s.now()
		targetIDs := make([]uuid.UUID, 0, len(targets))
		for _, item := range targets {
			ok, err := repo.UpdateItemStatusGuarded(ctx, item.ID, item.Status, input.NewStatus, nil)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update item status")
			}
			if !ok {
				return pkgerrors.New(pkgerrors.CodeConflict, "order item was modified concurrently")
			}
			targetIDs = append(targetIDs, item.ID)
		}

		if input.NewStatus == enums.OrderStatusDelivered {
			if err := s.creditDelivered(ctx, tx, repo, targets, now); err != nil {
				return err
			}
		}

		// Reload items and reconcile the aggregate.
		refreshed, err := repo.FindByID(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
		}
		next := ReconcileAggregate(order.Status, refreshed.Items)
		if next != order.Status {
			extra := aggregateStamps(next, now)
			ok, err := repo.UpdateOrderStatusGuarded(ctx, order.ID, order.Status, next, extra)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
			}
			if !ok {
				return pkgerrors.New(pkgerrors.CodeConflict, "order was modified concurrently")
			}
		}

		result, err = repo.FindByID(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     eventForStatus(input.NewStatus),
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			Actor:         &outbox.ActorRef{UserID: input.ActorID, Role: input.ActorRole.String()},
			Data: OrderStatusChangedEvent{
				OrderID:    order.ID,
				BuyerID:    order.BuyerID,
				FromStatus: order.Status,
				ToStatus:   result.Status,
				ItemIDs:    targetIDs,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) Cancel(ctx context.Context, input CancelInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity missing")
	}

	var result *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByID(ctx, input.OrderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}

		if order.Status == enums.OrderStatusDelivered || order.Status == enums.OrderStatusCancelled {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition,
				fmt.Sprintf("cannot cancel a %s order", order.Status))
		}

		targets, err := resolveScope(order, input.ActorID, input.ActorRole, input.ItemIDs, true)
		if err != nil {
			return err
		}

		now := s.now()
		stockTaken := order.PaidAt != nil
		cancelled := make([]uuid.UUID, 0, len(targets))
		for _, item := range targets {
			if item.Status == enums.OrderStatusCancelled {
				continue
			}
			if err := ValidateTransition(item.Status, enums.OrderStatusCancelled); err != nil {
				return err
			}
			// Guarded on the snapshot status so a racing cancel or payment
			// reconciliation surfaces as a conflict rather than a double
			// restore.
			ok, err := repo.UpdateItemStatusGuarded(ctx, item.ID, item.Status,
				enums.OrderStatusCancelled, map[string]any{"cancelled_at": now})
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel item")
			}
			if !ok {
				return pkgerrors.New(pkgerrors.CodeConflict, "order item was modified concurrently")
			}
			// Stock was only taken at reconciliation; an unpaid order has
			// nothing to restore.
			if stockTaken {
				if err := s.ledger.Increment(ctx, tx, item.ProductID, item.Qty); err != nil {
					return err
				}
			}
			cancelled = append(cancelled, item.ID)
		}

		refreshed, err := repo.FindByID(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
		}
		next := ReconcileAggregate(order.Status, refreshed.Items)
		if next != order.Status {
			extra := aggregateStamps(next, now)
			ok, err := repo.UpdateOrderStatusGuarded(ctx, order.ID, order.Status, next, extra)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
			}
			if !ok {
				return pkgerrors.New(pkgerrors.CodeConflict, "order was modified concurrently")
			}
		}

		result, err = repo.FindByID(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
		}

		if len(cancelled) == 0 {
			return nil
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCancelled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			Actor:         &outbox.ActorRef{UserID: input.ActorID, Role: input.ActorRole.String()},
			Data: OrderStatusChangedEvent{
				OrderID:    order.ID,
				BuyerID:    order.BuyerID,
				FromStatus: order.Status,
				ToStatus:   result.Status,
				ItemIDs:    cancelled,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) SellerView(ctx context.Context, orderID, sellerID uuid.UUID) (*SellerOrderSummary, error) {
	if sellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "seller identity missing")
	}
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}

	own := make([]models.OrderItem, 0, len(order.Items))
	subtotal := 0
	for _, item := range order.Items {
		if item.SellerID != sellerID {
			continue
		}
		own = append(own, item)
		if item.Status != enums.OrderStatusCancelled {
			subtotal += item.LineTotalCents()
		}
	}
	if len(own) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "seller has no items in order")
	}

	// Shipping and tax are the order's flat values, not a proportional
	// split; summing seller views across a multi-seller order therefore
	// overcounts both.
	return &SellerOrderSummary{
		OrderID:       order.ID,
		SellerID:      sellerID,
		Status:        ReconcileAggregate(order.Status, own),
		Items:         own,
		SubtotalCents: subtotal,
		ShippingCents: order.ShippingCents,
		TaxCents:      order.TaxCents,
		TotalCents:    subtotal + order.ShippingCents + order.TaxCents,
		CreatedAt:     order.CreatedAt,
	}, nil
}

// creditDelivered credits each newly delivered item's seller exactly once,
// guarded by the item's seller_credited_at stamp.
func (s *service) creditDelivered(ctx context.Context, tx *gorm.DB, repo Repository, items []models.OrderItem, now time.Time) error {
	for _, item := range items {
		if item.SellerCreditedAt != nil {
			continue
		}
		if err := s.stats.CreditSale(ctx, tx, item.SellerID, item.Qty, item.LineTotalCents()); err != nil {
			return err
		}
		if err := repo.UpdateItem(ctx, item.ID, map[string]any{"seller_credited_at": now}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "stamp seller credit")
		}
	}
	return nil
}

// resolveScope returns the items the actor may touch. Sellers are limited
// to their own items; buyers must own the order; admins see everything.
// When forCancel is false, buyers are rejected outright since forward
// movement is a seller/admin concern.
func resolveScope(order *models.Order, actorID uuid.UUID, role enums.MemberRole, itemIDs []uuid.UUID, forCancel bool) ([]models.OrderItem, error) {
	var pool []models.OrderItem
	switch role {
	case enums.MemberRoleAdmin:
		pool = order.Items
	case enums.MemberRoleBuyer:
		if order.BuyerID != actorID {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to buyer")
		}
		if !forCancel {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "buyers cannot advance order status")
		}
		pool = order.Items
	case enums.MemberRoleSeller:
		for _, item := range order.Items {
			if item.SellerID == actorID {
				pool = append(pool, item)
			}
		}
		if len(pool) == 0 {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "seller has no items in order")
		}
	default:
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, fmt.Sprintf("unknown actor role %q", role))
	}

	if len(itemIDs) == 0 {
		return pool, nil
	}

	byID := make(map[uuid.UUID]models.OrderItem, len(pool))
	for _, item := range pool {
		byID[item.ID] = item
	}
	out := make([]models.OrderItem, 0, len(itemIDs))
	for _, id := range itemIDs {
		item, ok := byID[id]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden,
				fmt.Sprintf("item %s is not in the actor's scope", id))
		}
		out = append(out, item)
	}
	return out, nil
}

func authorizeView(order *models.Order, viewerID uuid.UUID, role enums.MemberRole) error {
	switch role {
	case enums.MemberRoleAdmin:
		return nil
	case enums.MemberRoleBuyer:
		if order.BuyerID == viewerID {
			return nil
		}
	case enums.MemberRoleSeller:
		for _, item := range order.Items {
			if item.SellerID == viewerID {
				return nil
			}
		}
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "order is not visible to the viewer")
}

func aggregateStamps(next enums.OrderStatus, now time.Time) map[string]any {
	switch next {
	case enums.OrderStatusShipped:
		return map[string]any{"shipped_at": now}
	case enums.OrderStatusDelivered:
		return map[string]any{"delivered_at": now}
	case enums.OrderStatusCancelled:
		return map[string]any{"cancelled_at": now}
	default:
		return nil
	}
}

func eventForStatus(status enums.OrderStatus) enums.OutboxEventType {
	switch status {
	case enums.OrderStatusShipped:
		return enums.EventOrderShipped
	case enums.OrderStatusDelivered:
		return enums.EventOrderDelivered
	case enums.OrderStatusCancelled:
		return enums.EventOrderCancelled
	default:
		return enums.EventOrderPaid
	}
}
