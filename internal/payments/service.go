package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/vendiqhq/vendiq-backend/internal/inventory"
	"github.com/vendiqhq/vendiq-backend/internal/orders"
	"github.com/vendiqhq/vendiq-backend/pkg/db/models"
	"github.com/vendiqhq/vendiq-backend/pkg/enums"
	pkgerrors "github.com/vendiqhq/vendiq-backend/pkg/errors"
	"github.com/vendiqhq/vendiq-backend/pkg/logger"
	"github.com/vendiqhq/vendiq-backend/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ReconcileInput is a gateway payment confirmation to be applied to the
// matching order.
type ReconcileInput struct {
	PaymentIntentID string
	ConfirmationID  string
	Proof           string
}

// OrderPaidEvent is emitted once payment is reconciled onto the order.
type OrderPaidEvent struct {
	OrderID        string `json:"order_id"`
	BuyerID        string `json:"buyer_id"`
	ConfirmationID string `json:"confirmation_id"`
	TotalCents     int    `json:"total_cents"`
}

// Service reconciles gateway confirmations against orders: it flips
// pending orders to processing, stamps payment metadata, and takes stock.
type Service interface {
	Reconcile(ctx context.Context, input ReconcileInput) (*models.Order, error)
}

// ServiceParams collects the dependencies for NewService.
type ServiceParams struct {
	Repo     orders.Repository
	Tx       txRunner
	Outbox   outboxPublisher
	Ledger   inventory.Ledger
	Verifier *Verifier
	Logger   *logger.Logger
	Now      func() time.Time
}

type service struct {
	repo     orders.Repository
	tx       txRunner
	outbox   outboxPublisher
	ledger   inventory.Ledger
	verifier *Verifier
	logg     *logger.Logger
	now      func() time.Time
}

// NewService builds the payment reconciliation service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("stock ledger required")
	}
	if params.Verifier == nil {
		return nil, fmt.Errorf("proof verifier required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:     params.Repo,
		tx:       params.Tx,
		outbox:   params.Outbox,
		ledger:   params.Ledger,
		verifier: params.Verifier,
		logg:     params.Logger,
		now:      now,
	}, nil
}

func (s *service) Reconcile(ctx context.Context, input ReconcileInput) (*models.Order, error) {
	intentID := strings.TrimSpace(input.PaymentIntentID)
	confirmationID := strings.TrimSpace(input.ConfirmationID)
	if intentID == "" || confirmationID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "intent and confirmation ids required")
	}

	// Authenticity comes first: nothing is read or written until the proof
	// checks out.
	if !s.verifier.Verify(intentID, confirmationID, input.Proof) {
		return nil, pkgerrors.New(pkgerrors.CodeSignatureMismatch, "payment proof does not match")
	}

	var result *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByPaymentIntent(ctx, intentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "no order for payment intent")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}

		switch order.Status {
		case enums.OrderStatusProcessing, enums.OrderStatusShipped, enums.OrderStatusDelivered:
			// Redelivered confirmation: the order already moved on, nothing
			// to reapply.
			result = order
			return nil
		case enums.OrderStatusCancelled:
			return pkgerrors.New(pkgerrors.CodeInvalidTransition,
				"cannot reconcile payment onto a cancelled order")
		}

		now := s.now()
		ok, err := repo.UpdateOrderStatusGuarded(ctx, order.ID,
			enums.OrderStatusPending, enums.OrderStatusProcessing,
			map[string]any{
				"paid_at":                 now,
				"payment_confirmation_id": confirmationID,
			})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order paid")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConflict, "order was modified concurrently")
		}

		// Payment is the point where availability becomes authoritative. A
		// shortfall on any line rolls the whole reconciliation back. Each
		// item flip is guarded on the snapshot status, so a cancellation
		// racing this confirmation conflicts instead of losing its stock.
		for _, item := range order.Items {
			if item.Status == enums.OrderStatusCancelled {
				continue
			}
			ok, err := repo.UpdateItemStatusGuarded(ctx, item.ID, item.Status, enums.OrderStatusProcessing, nil)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "advance item status")
			}
			if !ok {
				return pkgerrors.New(pkgerrors.CodeConflict, "order item was modified concurrently")
			}
			if err := s.ledger.Decrement(ctx, tx, item.ProductID, item.Qty); err != nil {
				return err
			}
		}

		result, err = repo.FindByID(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			Data: OrderPaidEvent{
				OrderID:        order.ID.String(),
				BuyerID:        order.BuyerID.String(),
				ConfirmationID: confirmationID,
				TotalCents:     order.TotalCents,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithOrderID(ctx, result.ID.String())
		s.logg.Info(logCtx, "payment reconciled")
	}
	return result, nil
}
