package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vendiqhq/vendiq-backend/pkg/db/models"
	pkgerrors "github.com/vendiqhq/vendiq-backend/pkg/errors"
)

// Ledger exposes the per-product stock counter. Decrement and Increment
// run on the caller's transaction so stock movement commits or rolls back
// together with the order state change that caused it.
type Ledger interface {
	GetAvailable(ctx context.Context, db *gorm.DB, productID uuid.UUID) (int, error)
	Decrement(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error
	Increment(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error
}

type ledger struct{}

// NewLedger returns the stock ledger backed by the stock_items table.
func NewLedger() Ledger {
	return ledger{}
}

func (ledger) GetAvailable(ctx context.Context, db *gorm.DB, productID uuid.UUID) (int, error) {
	if db == nil {
		return 0, errors.New("db handle required")
	}
	var item models.StockItem
	err := db.WithContext(ctx).
		Where("product_id = ?", productID).
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stock item")
	}
	return item.AvailableQty, nil
}

// Decrement takes qty units, guarded so the counter can never go negative.
// Zero rows affected means another transaction got there first.
func (ledger) Decrement(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error {
	if qty <= 0 {
		return nil
	}
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for stock decrement")
	}

	res := tx.WithContext(ctx).Exec(`
		UPDATE stock_items
		SET available_qty = available_qty - ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE product_id = ? AND available_qty >= ?
	`, qty, productID, qty)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "decrement stock")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeStockInsufficient,
			fmt.Sprintf("insufficient stock for product %s", productID))
	}
	return nil
}

// Increment restores qty units, creating the counter row if the product
// has never carried stock.
func (ledger) Increment(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error {
	if qty <= 0 {
		return nil
	}
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for stock restore")
	}

	res := tx.WithContext(ctx).Exec(`
		UPDATE stock_items
		SET available_qty = available_qty + ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE product_id = ?
	`, qty, productID)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "restore stock")
	}
	if res.RowsAffected == 0 {
		item := models.StockItem{ProductID: productID, AvailableQty: qty}
		if err := tx.WithContext(ctx).Create(&item).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create stock item")
		}
	}
	return nil
}
