package models

import (
	"time"

	"github.com/google/uuid"
)

// SellerStats is the per-seller sales projection maintained at payment
// confirmation. Counters only ever increase; cancellations after payment
// do not claw revenue back.
type SellerStats struct {
	SellerID     uuid.UUID `gorm:"column:seller_id;type:uuid;primaryKey"`
	UnitsSold    int       `gorm:"column:units_sold;not null;default:0"`
	RevenueCents int       `gorm:"column:revenue_cents;not null;default:0"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
