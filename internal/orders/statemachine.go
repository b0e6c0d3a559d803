package orders

import (
	"fmt"

	"github.com/vendiqhq/vendiq-backend/pkg/db/models"
	"github.com/vendiqhq/vendiq-backend/pkg/enums"
	pkgerrors "github.com/vendiqhq/vendiq-backend/pkg/errors"
)

// transitions is the authoritative table for both the aggregate order
// status and each item's status. Anything not listed here is rejected.
var transitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending:    {enums.OrderStatusProcessing, enums.OrderStatusCancelled},
	enums.OrderStatusProcessing: {enums.OrderStatusShipped, enums.OrderStatusCancelled},
	enums.OrderStatusShipped:    {enums.OrderStatusDelivered, enums.OrderStatusCancelled},
	enums.OrderStatusDelivered:  {},
	enums.OrderStatusCancelled:  {},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns a typed error for illegal moves so callers can
// surface it without mutating anything.
func ValidateTransition(from, to enums.OrderStatus) error {
	if !to.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown order status %q", to))
	}
	if !CanTransition(from, to) {
		return pkgerrors.New(pkgerrors.CodeInvalidTransition,
			fmt.Sprintf("cannot transition order from %s to %s", from, to))
	}
	return nil
}

// NextForward returns the single forward step from the given status, or
// false when the status has no forward successor (terminal states and
// cancellation are never produced here).
func NextForward(from enums.OrderStatus) (enums.OrderStatus, bool) {
	switch from {
	case enums.OrderStatusPending:
		return enums.OrderStatusProcessing, true
	case enums.OrderStatusProcessing:
		return enums.OrderStatusShipped, true
	case enums.OrderStatusShipped:
		return enums.OrderStatusDelivered, true
	default:
		return "", false
	}
}

// ReconcileAggregate derives the aggregate status after a subset of items
// changed: when every item shares one status the aggregate adopts it,
// otherwise the aggregate keeps its last explicit value. Mixed states are
// deliberately not averaged or inferred.
func ReconcileAggregate(current enums.OrderStatus, items []models.OrderItem) enums.OrderStatus {
	if len(items) == 0 {
		return current
	}
	uniform := items[0].Status
	for _, item := range items[1:] {
		if item.Status != uniform {
			return current
		}
	}
	return uniform
}
