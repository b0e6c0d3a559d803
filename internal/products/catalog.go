package products

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vendiqhq/vendiq-backend/pkg/db/models"
	pkgerrors "github.com/vendiqhq/vendiq-backend/pkg/errors"
)

// Catalog exposes the read surface order creation needs: the current
// listing (for the price/name snapshot) and its stock counter.
type Catalog interface {
	FindActiveByIDs(ctx context.Context, db *gorm.DB, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
}

type catalog struct{}

// NewCatalog returns the product catalog reader.
func NewCatalog() Catalog {
	return catalog{}
}

func (catalog) FindActiveByIDs(ctx context.Context, db *gorm.DB, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	if db == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "db handle required")
	}
	if len(ids) == 0 {
		return map[uuid.UUID]models.Product{}, nil
	}

	var rows []models.Product
	err := db.WithContext(ctx).
		Preload("Stock").
		Where("id IN ?", ids).
		Where("is_active = ?", true).
		Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
	}

	out := make(map[uuid.UUID]models.Product, len(rows))
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}
