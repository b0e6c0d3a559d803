package escalation

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/vendiqhq/vendiq-backend/internal/orders"
	"github.com/vendiqhq/vendiq-backend/pkg/enums"
	"github.com/vendiqhq/vendiq-backend/pkg/logger"
	"github.com/vendiqhq/vendiq-backend/pkg/metrics"
)

const sweepLockScope = "escalation:sweep"

type sweepLocker interface {
	AcquireLock(ctx context.Context, scope string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, scope string) error
}

// Sweeper periodically walks stale orders through the escalation service
// so promotion does not depend on someone reading the order. Only one
// instance sweeps at a time; the redis lock keeps overlapping deployments
// from double-walking the same batch.
type Sweeper struct {
	repo      orders.Repository
	svc       *Service
	locker    sweepLocker
	metrics   *metrics.JobMetrics
	batchSize int
	lockTTL   time.Duration
	logg      *logger.Logger
	now       func() time.Time
}

// SweeperParams collects the dependencies for NewSweeper.
type SweeperParams struct {
	Repo      orders.Repository
	Service   *Service
	Locker    sweepLocker
	Metrics   *metrics.JobMetrics
	BatchSize int
	LockTTL   time.Duration
	Logger    *logger.Logger
	Now       func() time.Time
}

// NewSweeper builds the escalation sweeper.
func NewSweeper(params SweeperParams) (*Sweeper, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Service == nil {
		return nil, fmt.Errorf("escalation service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = 200
	}
	ttl := params.LockTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Sweeper{
		repo:      params.Repo,
		svc:       params.Service,
		locker:    params.Locker,
		metrics:   params.Metrics,
		batchSize: batch,
		lockTTL:   ttl,
		logg:      params.Logger,
		now:       now,
	}, nil
}

// RunOnce performs a single sweep. It is safe to call from a ticker; when
// the lock is held elsewhere the run returns immediately.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	started := s.now()
	defer func() {
		s.metrics.ObserveDuration("escalation_sweep", s.now().Sub(started))
	}()

	if s.locker != nil {
		got, err := s.locker.AcquireLock(ctx, sweepLockScope, s.lockTTL)
		if err != nil {
			s.metrics.IncFailure("escalation_sweep")
			return 0, err
		}
		if !got {
			return 0, nil
		}
		defer func() {
			if err := s.locker.ReleaseLock(ctx, sweepLockScope); err != nil && s.logg != nil {
				s.logg.Warn(ctx, "failed to release sweep lock")
			}
		}()
	}

	promoted, err := s.sweep(ctx)
	if err != nil {
		s.metrics.IncFailure("escalation_sweep")
		return promoted, err
	}
	s.metrics.IncSuccess("escalation_sweep")
	s.metrics.AddEscalated(promoted)
	if s.logg != nil && promoted > 0 {
		logCtx := s.logg.WithField(ctx, "promoted", promoted)
		s.logg.Info(logCtx, "escalation sweep finished")
	}
	return promoted, nil
}

func (s *Sweeper) sweep(ctx context.Context) (int, error) {
	now := s.now()
	eval := s.svc.Evaluator()
	statuses := []enums.OrderStatus{
		enums.OrderStatusPending,
		enums.OrderStatusProcessing,
		enums.OrderStatusShipped,
	}

	promoted := 0
	var errs error
	for _, status := range statuses {
		threshold, ok := eval.Threshold(status)
		if !ok {
			continue
		}
		cutoff := now.Add(-threshold)
		stale, err := s.repo.FindStaleByStatus(ctx, status, cutoff, s.batchSize)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("list stale %s orders: %w", status, err))
			continue
		}
		for i := range stale {
			before := stale[i].Status
			after, err := s.svc.Apply(ctx, &stale[i], now)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("escalate order %s: %w", stale[i].ID, err))
				continue
			}
			if after.Status != before {
				promoted++
			}
		}
	}
	return promoted, errs
}
