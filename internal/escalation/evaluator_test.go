package escalation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vendiqhq/vendiq-backend/pkg/config"
	"github.com/vendiqhq/vendiq-backend/pkg/enums"
)

func testEvaluator() Evaluator {
	return NewEvaluator(config.EscalationConfig{
		PendingAfter:    2 * time.Hour,
		ProcessingAfter: 48 * time.Hour,
		ShippedAfter:    120 * time.Hour,
	})
}

func TestEvaluatorNext(t *testing.T) {
	eval := testEvaluator()
	created := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name   string
		status enums.OrderStatus
		age    time.Duration
		want   enums.OrderStatus
		due    bool
	}{
		{"fresh pending stays", enums.OrderStatusPending, time.Hour, enums.OrderStatusPending, false},
		{"stale pending advances", enums.OrderStatusPending, 3 * time.Hour, enums.OrderStatusProcessing, true},
		{"threshold is inclusive", enums.OrderStatusPending, 2 * time.Hour, enums.OrderStatusProcessing, true},
		{"fresh processing stays", enums.OrderStatusProcessing, 24 * time.Hour, enums.OrderStatusProcessing, false},
		{"stale processing ships", enums.OrderStatusProcessing, 49 * time.Hour, enums.OrderStatusShipped, true},
		{"stale shipped delivers", enums.OrderStatusShipped, 121 * time.Hour, enums.OrderStatusDelivered, true},
		{"delivered never moves", enums.OrderStatusDelivered, 1000 * time.Hour, enums.OrderStatusDelivered, false},
		{"cancelled never moves", enums.OrderStatusCancelled, 1000 * time.Hour, enums.OrderStatusCancelled, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			next, due := eval.Next(tc.status, created, created.Add(tc.age))
			require.Equal(t, tc.due, due)
			require.Equal(t, tc.want, next)
		})
	}
}

func TestEvaluatorAdvancesOneStepOnly(t *testing.T) {
	eval := testEvaluator()
	created := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	// A week-old pending order is past every threshold but still only
	// earns a single step.
	next, due := eval.Next(enums.OrderStatusPending, created, created.Add(7*24*time.Hour))
	require.True(t, due)
	require.Equal(t, enums.OrderStatusProcessing, next)
}

func TestEvaluatorThreshold(t *testing.T) {
	eval := testEvaluator()

	d, ok := eval.Threshold(enums.OrderStatusPending)
	require.True(t, ok)
	require.Equal(t, 2*time.Hour, d)

	_, ok = eval.Threshold(enums.OrderStatusDelivered)
	require.False(t, ok)
	_, ok = eval.Threshold(enums.OrderStatusCancelled)
	require.False(t, ok)
}
