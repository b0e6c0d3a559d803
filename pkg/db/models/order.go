package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/vendiqhq/vendiq-backend/pkg/enums"
	"github.com/vendiqhq/vendiq-backend/pkg/types"
)

// Order is the purchase aggregate. Pricing fields and the shipping address
// are snapshots taken at creation time and never recomputed afterwards.
type Order struct {
	ID                    uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BuyerID               uuid.UUID              `gorm:"column:buyer_id;type:uuid;not null"`
	Currency              enums.Currency         `gorm:"column:currency;type:text;not null;default:'USD'"`
	ShippingAddress       *types.ShippingAddress `gorm:"column:shipping_address;type:jsonb;serializer:json"`
	Status                enums.OrderStatus      `gorm:"column:status;type:order_status;not null;default:'pending'"`
	SubtotalCents         int                    `gorm:"column:subtotal_cents;not null"`
	ShippingCents         int                    `gorm:"column:shipping_cents;not null;default:0"`
	TaxCents              int                    `gorm:"column:tax_cents;not null;default:0"`
	DiscountCents         int                    `gorm:"column:discount_cents;not null;default:0"`
	TotalCents            int                    `gorm:"column:total_cents;not null"`
	PaymentIntentID       string                 `gorm:"column:payment_intent_id;not null;uniqueIndex:uq_orders_payment_intent"`
	PaymentConfirmationID *string                `gorm:"column:payment_confirmation_id"`
	PaidAt                *time.Time             `gorm:"column:paid_at"`
	ShippedAt             *time.Time             `gorm:"column:shipped_at"`
	DeliveredAt           *time.Time             `gorm:"column:delivered_at"`
	CancelledAt           *time.Time             `gorm:"column:cancelled_at"`
	EstimatedDeliveryAt   time.Time              `gorm:"column:estimated_delivery_at;not null"`
	Items                 []OrderItem            `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt             time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}
