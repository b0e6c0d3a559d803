package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vendiqhq/vendiq-backend/pkg/db/models"
	"github.com/vendiqhq/vendiq-backend/pkg/enums"
)

// Repository defines persistence operations for the order aggregate.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) (*models.Order, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByPaymentIntent(ctx context.Context, intentID string) (*models.Order, error)
	ListByBuyer(ctx context.Context, buyerID uuid.UUID) ([]models.Order, error)
	FindStaleByStatus(ctx context.Context, status enums.OrderStatus, cutoff time.Time, limit int) ([]models.Order, error)
	UpdateOrder(ctx context.Context, orderID uuid.UUID, updates map[string]any) error
	// UpdateOrderStatusGuarded flips the aggregate status only when the
	// persisted row still carries the expected value. False means another
	// writer advanced the order first.
	UpdateOrderStatusGuarded(ctx context.Context, orderID uuid.UUID, expected, next enums.OrderStatus, extra map[string]any) (bool, error)
	UpdateItem(ctx context.Context, itemID uuid.UUID, updates map[string]any) error
	// UpdateItemStatusGuarded flips one item's status only when the
	// persisted row still carries the expected value, mirroring the
	// aggregate guard. False means a concurrent writer touched the item
	// first.
	UpdateItemStatusGuarded(ctx context.Context, itemID uuid.UUID, expected, next enums.OrderStatus, extra map[string]any) (bool, error)
	UpdateItemsStatusForOrder(ctx context.Context, orderID uuid.UUID, only []enums.OrderStatus, next enums.OrderStatus) error
}
