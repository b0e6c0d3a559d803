package orders

import (
	"testing"

	"github.com/vendiqhq/vendiq-backend/pkg/db/models"
	"github.com/vendiqhq/vendiq-backend/pkg/enums"
	pkgerrors "github.com/vendiqhq/vendiq-backend/pkg/errors"
)

func TestCanTransitionTable(t *testing.T) {
	allowed := map[[2]enums.OrderStatus]bool{
		{enums.OrderStatusPending, enums.OrderStatusProcessing}:   true,
		{enums.OrderStatusPending, enums.OrderStatusCancelled}:    true,
		{enums.OrderStatusProcessing, enums.OrderStatusShipped}:   true,
		{enums.OrderStatusProcessing, enums.OrderStatusCancelled}: true,
		{enums.OrderStatusShipped, enums.OrderStatusDelivered}:    true,
		{enums.OrderStatusShipped, enums.OrderStatusCancelled}:    true,
	}

	all := []enums.OrderStatus{
		enums.OrderStatusPending,
		enums.OrderStatusProcessing,
		enums.OrderStatusShipped,
		enums.OrderStatusDelivered,
		enums.OrderStatusCancelled,
	}

	for _, from := range all {
		for _, to := range all {
			want := allowed[[2]enums.OrderStatus{from, to}]
			if got := CanTransition(from, to); got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestValidateTransitionErrors(t *testing.T) {
	err := ValidateTransition(enums.OrderStatusDelivered, enums.OrderStatusShipped)
	if !pkgerrors.HasCode(err, pkgerrors.CodeInvalidTransition) {
		t.Fatalf("expected invalid transition error, got %v", err)
	}

	err = ValidateTransition(enums.OrderStatusPending, enums.OrderStatus("limbo"))
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for unknown status, got %v", err)
	}

	if err := ValidateTransition(enums.OrderStatusPending, enums.OrderStatusProcessing); err != nil {
		t.Fatalf("expected legal transition, got %v", err)
	}
}

func TestNextForward(t *testing.T) {
	steps := map[enums.OrderStatus]enums.OrderStatus{
		enums.OrderStatusPending:    enums.OrderStatusProcessing,
		enums.OrderStatusProcessing: enums.OrderStatusShipped,
		enums.OrderStatusShipped:    enums.OrderStatusDelivered,
	}
	for from, want := range steps {
		got, ok := NextForward(from)
		if !ok || got != want {
			t.Errorf("NextForward(%s) = %s/%v, want %s", from, got, ok, want)
		}
	}
	for _, terminal := range []enums.OrderStatus{enums.OrderStatusDelivered, enums.OrderStatusCancelled} {
		if _, ok := NextForward(terminal); ok {
			t.Errorf("NextForward(%s) should not advance", terminal)
		}
	}
}

func TestReconcileAggregate(t *testing.T) {
	items := []models.OrderItem{
		{Status: enums.OrderStatusCancelled},
		{Status: enums.OrderStatusCancelled},
	}
	if got := ReconcileAggregate(enums.OrderStatusProcessing, items); got != enums.OrderStatusCancelled {
		t.Fatalf("uniform items should set aggregate, got %s", got)
	}

	mixed := []models.OrderItem{
		{Status: enums.OrderStatusCancelled},
		{Status: enums.OrderStatusProcessing},
	}
	if got := ReconcileAggregate(enums.OrderStatusProcessing, mixed); got != enums.OrderStatusProcessing {
		t.Fatalf("mixed items should keep aggregate, got %s", got)
	}

	if got := ReconcileAggregate(enums.OrderStatusPending, nil); got != enums.OrderStatusPending {
		t.Fatalf("empty items should keep aggregate, got %s", got)
	}
}
