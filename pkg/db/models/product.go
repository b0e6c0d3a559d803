package models

import (
	"time"

	"github.com/google/uuid"
)

// Product is the canonical seller listing. Orders snapshot the name and
// price at creation, so catalog edits never rewrite historical orders.
type Product struct {
	ID         uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SellerID   uuid.UUID  `gorm:"column:seller_id;type:uuid;not null;index"`
	Name       string     `gorm:"column:name;not null"`
	PriceCents int        `gorm:"column:price_cents;not null"`
	IsActive   bool       `gorm:"column:is_active;not null;default:true"`
	Stock      *StockItem `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
