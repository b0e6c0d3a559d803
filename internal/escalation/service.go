package escalation

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/vendiqhq/vendiq-backend/internal/orders"
	"github.com/vendiqhq/vendiq-backend/internal/sellers"
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

// Service promotes stale orders forward. It backs both the lazy path
// (order reads route through Apply) and the periodic sweep, so the two
// share one set of rules and one write path.
type Service struct {
	repo   orders.Repository
	tx     txRunner
	outbox outboxPublisher
	stats  sellers.StatsSink
	eval   Evaluator
	logg   *logger.Logger
}

// ServiceParams collects the dependencies for NewService.
type ServiceParams struct {
	Repo      orders.Repository
	Tx        txRunner
	Outbox    outboxPublisher
	Stats     sellers.StatsSink
	Evaluator Evaluator
	Logger    *logger.Logger
}

// NewService builds the escalation service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Stats == nil {
		return nil, fmt.Errorf("seller stats sink required")
	}
	return &Service{
		repo:   params.Repo,
		tx:     params.Tx,
		outbox: params.Outbox,
		stats:  params.Stats,
		eval:   params.Evaluator,
		logg:   params.Logger,
	}, nil
}

// Evaluator exposes the threshold rules, mainly for the sweep's cutoff
// queries.
func (s *Service) Evaluator() Evaluator {
	return s.eval
}

// Apply advances the order one step when its age calls for it. The status
// write is guarded on the observed value, so when a concurrent writer gets
// there first the promotion quietly becomes a no-op and the fresher row is
// returned. Applying twice is therefore the same as applying once.
func (s *Service) Apply(ctx context.Context, order *models.Order, now time.Time) (*models.Order, error) {
	next, due := s.eval.Next(order.Status, order.CreatedAt, now)
	if !due {
		return order, nil
	}

	promoted := false
	var result *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		ok, err := repo.UpdateOrderStatusGuarded(ctx, order.ID, order.Status, next, stampsFor(next, now))
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "escalate order")
		}
		if !ok {
			// Another writer moved the order first; surface their state.
			result, err = repo.FindByID(ctx, order.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
			}
			return nil
		}
		promoted = true

		err = repo.UpdateItemsStatusForOrder(ctx, order.ID, []enums.OrderStatus{order.Status}, next)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "escalate items")
		}

		result, err = repo.FindByID(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
		}

		if next == enums.OrderStatusDelivered {
			if err := s.creditDelivered(ctx, tx, repo, result, now); err != nil {
				return err
			}
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderEscalated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			Data: orders.OrderStatusChangedEvent{
				OrderID:    order.ID,
				BuyerID:    order.BuyerID,
				FromStatus: order.Status,
				ToStatus:   next,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	if promoted && s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"order_id": order.ID.String(),
			"from":     order.Status.String(),
			"to":       next.String(),
		})
		s.logg.Info(logCtx, "order escalated")
	}
	return result, nil
}

func (s *Service) creditDelivered(ctx context.Context, tx *gorm.DB, repo orders.Repository, order *models.Order, now time.Time) error {
	for _, item := range order.Items {
		if item.Status != enums.OrderStatusDelivered || item.SellerCreditedAt != nil {
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

func stampsFor(next enums.OrderStatus, now time.Time) map[string]any {
	switch next {
	case enums.OrderStatusShipped:
		return map[string]any{"shipped_at": now}
	case enums.OrderStatusDelivered:
		return map[string]any{"delivered_at": now}
	default:
		return nil
	}
}
