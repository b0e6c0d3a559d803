package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/vendiqhq/vendiq-backend/pkg/db/models"
	"github.com/vendiqhq/vendiq-backend/pkg/enums"
	"github.com/vendiqhq/vendiq-backend/pkg/types"
)

// LineInput is one requested product line at creation time.
type LineInput struct {
	ProductID uuid.UUID `json:"product_id"`
	Qty       int       `json:"qty"`
}

// CreateOrderInput captures everything the creation service needs.
type CreateOrderInput struct {
	BuyerID         uuid.UUID
	Items           []LineInput
	ShippingAddress types.ShippingAddress
	// PaymentSourceID is the tokenized payment source collected by the
	// checkout client and forwarded to the gateway when registering the
	// intent.
	PaymentSourceID string
}

// CreateOrderResult returns the persisted order plus the intent handle the
// caller needs to complete payment out-of-band.
type CreateOrderResult struct {
	Order           *models.Order
	PaymentIntentID string
}

// TransitionInput describes an explicit status change request.
type TransitionInput struct {
	OrderID   uuid.UUID
	ActorID   uuid.UUID
	ActorRole enums.MemberRole
	NewStatus enums.OrderStatus
	// ItemIDs optionally scopes the change to specific items. Empty means
	// the full order for buyers/admins, or every item owned by the actor
	// for sellers.
	ItemIDs []uuid.UUID
}

// CancelInput describes a cancellation request; semantics mirror
// TransitionInput's item scoping.
type CancelInput struct {
	OrderID   uuid.UUID
	ActorID   uuid.UUID
	ActorRole enums.MemberRole
	ItemIDs   []uuid.UUID
}

// SellerOrderSummary is the seller-scoped projection of an order. Shipping
// and tax carry the order's flat values rather than a proportional split.
type SellerOrderSummary struct {
	OrderID       uuid.UUID          `json:"order_id"`
	SellerID      uuid.UUID          `json:"seller_id"`
	Status        enums.OrderStatus  `json:"status"`
	Items         []models.OrderItem `json:"items"`
	SubtotalCents int                `json:"subtotal_cents"`
	ShippingCents int                `json:"shipping_cents"`
	TaxCents      int                `json:"tax_cents"`
	TotalCents    int                `json:"total_cents"`
	CreatedAt     time.Time          `json:"created_at"`
}

// OrderCreatedEvent is emitted when an order is persisted.
type OrderCreatedEvent struct {
	OrderID         uuid.UUID `json:"order_id"`
	BuyerID         uuid.UUID `json:"buyer_id"`
	TotalCents      int       `json:"total_cents"`
	ItemCount       int       `json:"item_count"`
	PaymentIntentID string    `json:"payment_intent_id"`
}

// OrderStatusChangedEvent is emitted on explicit transitions, cancellation,
// and escalation.
type OrderStatusChangedEvent struct {
	OrderID    uuid.UUID         `json:"order_id"`
	BuyerID    uuid.UUID         `json:"buyer_id"`
	FromStatus enums.OrderStatus `json:"from_status"`
	ToStatus   enums.OrderStatus `json:"to_status"`
	ItemIDs    []uuid.UUID       `json:"item_ids,omitempty"`
}
