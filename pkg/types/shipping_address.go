package types

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

var addressValidator = validator.New(validator.WithRequiredStructEnabled())

// ShippingAddress is the delivery address snapshot embedded on an order.
// It is stored by value at creation time; later edits to the buyer's
// address book never touch it. Every field is required.
type ShippingAddress struct {
	Street  string `json:"street" validate:"required"`
	City    string `json:"city" validate:"required"`
	State   string `json:"state" validate:"required"`
	Zip     string `json:"zip" validate:"required"`
	Country string `json:"country" validate:"required"`
	Phone   string `json:"phone" validate:"required"`
}

// Validate reports the first missing required field.
func (a ShippingAddress) Validate() error {
	trimmed := ShippingAddress{
		Street:  strings.TrimSpace(a.Street),
		City:    strings.TrimSpace(a.City),
		State:   strings.TrimSpace(a.State),
		Zip:     strings.TrimSpace(a.Zip),
		Country: strings.TrimSpace(a.Country),
		Phone:   strings.TrimSpace(a.Phone),
	}
	return addressValidator.Struct(trimmed)
}
