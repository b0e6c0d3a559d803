package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/vendiqhq/vendiq-backend/pkg/enums"
)

// OrderItem captures the per-product snapshot within an order. Name and
// unit price are copied from the catalog at creation time. Each item
// carries its own status so a subset can be cancelled independently.
type OrderItem struct {
	ID               uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID          uuid.UUID         `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID        uuid.UUID         `gorm:"column:product_id;type:uuid;not null"`
	SellerID         uuid.UUID         `gorm:"column:seller_id;type:uuid;not null;index"`
	Name             string            `gorm:"column:name;not null"`
	UnitPriceCents   int               `gorm:"column:unit_price_cents;not null"`
	Qty              int               `gorm:"column:qty;not null"`
	Status           enums.OrderStatus `gorm:"column:status;type:order_status;not null;default:'pending'"`
	SellerCreditedAt *time.Time        `gorm:"column:seller_credited_at"`
	CancelledAt      *time.Time        `gorm:"column:cancelled_at"`
	CreatedAt        time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

// LineTotalCents is the item's contribution to the order subtotal.
func (i OrderItem) LineTotalCents() int {
	return i.UnitPriceCents * i.Qty
}
