package escalation

import (
	"time"

	"github.com/vendiqhq/vendiq-backend/pkg/config"
	"github.com/vendiqhq/vendiq-backend/pkg/enums"
)

// Evaluator decides whether an order's age entitles it to move forward.
// Thresholds are all measured from creation time, and a single evaluation
// advances at most one step no matter how stale the order is; repeated
// reads walk a very old order forward one state at a time.
type Evaluator struct {
	pendingAfter    time.Duration
	processingAfter time.Duration
	shippedAfter    time.Duration
}

// NewEvaluator builds an evaluator from the configured thresholds.
func NewEvaluator(cfg config.EscalationConfig) Evaluator {
	return Evaluator{
		pendingAfter:    cfg.PendingAfter,
		processingAfter: cfg.ProcessingAfter,
		shippedAfter:    cfg.ShippedAfter,
	}
}

// Next returns the status the order should advance to, if any. Terminal
// statuses never move.
func (e Evaluator) Next(status enums.OrderStatus, createdAt, now time.Time) (enums.OrderStatus, bool) {
	age := now.Sub(createdAt)
	switch status {
	case enums.OrderStatusPending:
		if age >= e.pendingAfter {
			return enums.OrderStatusProcessing, true
		}
	case enums.OrderStatusProcessing:
		if age >= e.processingAfter {
			return enums.OrderStatusShipped, true
		}
	case enums.OrderStatusShipped:
		if age >= e.shippedAfter {
			return enums.OrderStatusDelivered, true
		}
	}
	return status, false
}

// Threshold reports the age past which the given status becomes stale.
// The second return is false for terminal statuses.
func (e Evaluator) Threshold(status enums.OrderStatus) (time.Duration, bool) {
	switch status {
	case enums.OrderStatusPending:
		return e.pendingAfter, true
	case enums.OrderStatusProcessing:
		return e.processingAfter, true
	case enums.OrderStatusShipped:
		return e.shippedAfter, true
	default:
		return 0, false
	}
}
