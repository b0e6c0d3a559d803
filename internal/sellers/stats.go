package sellers

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vendiqhq/vendiq-backend/pkg/db/models"
	pkgerrors "github.com/vendiqhq/vendiq-backend/pkg/errors"
)

// StatsSink accumulates per-seller sales counters. CreditSale runs on the
// caller's transaction; the caller is responsible for invoking it exactly
// once per delivered item.
type StatsSink interface {
	CreditSale(ctx context.Context, tx *gorm.DB, sellerID uuid.UUID, unitsDelta, revenueDeltaCents int) error
	GetStats(ctx context.Context, db *gorm.DB, sellerID uuid.UUID) (*models.SellerStats, error)
}

type statsSink struct{}

// NewStatsSink returns the seller stats projection backed by seller_stats.
func NewStatsSink() StatsSink {
	return statsSink{}
}

// CreditSale upserts the seller row and bumps both counters atomically.
func (statsSink) CreditSale(ctx context.Context, tx *gorm.DB, sellerID uuid.UUID, unitsDelta, revenueDeltaCents int) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for seller credit")
	}
	if sellerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "seller id required")
	}
	if unitsDelta <= 0 && revenueDeltaCents <= 0 {
		return nil
	}

	row := models.SellerStats{
		SellerID:     sellerID,
		UnitsSold:    unitsDelta,
		RevenueCents: revenueDeltaCents,
	}
	err := tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "seller_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"units_sold":    gorm.Expr("seller_stats.units_sold + ?", unitsDelta),
			"revenue_cents": gorm.Expr("seller_stats.revenue_cents + ?", revenueDeltaCents),
		}),
	}).Create(&row).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "credit seller sale")
	}
	return nil
}

func (statsSink) GetStats(ctx context.Context, db *gorm.DB, sellerID uuid.UUID) (*models.SellerStats, error) {
	if db == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "db handle required")
	}
	var stats models.SellerStats
	err := db.WithContext(ctx).
		Where("seller_id = ?", sellerID).
		First(&stats).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &models.SellerStats{SellerID: sellerID}, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load seller stats")
	}
	return &stats, nil
}
