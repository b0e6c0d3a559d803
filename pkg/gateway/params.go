package gateway

import (
	"strings"

	"github.com/google/uuid"
	sq "github.com/square/square-go-sdk"
)

// IntentCreateParams encapsulates the inputs for registering a payment
// intent. The order ID rides along as the gateway reference so the webhook
// payload can be matched back to the aggregate.
type IntentCreateParams struct {
	OrderID        uuid.UUID
	AmountCents    int64
	SourceID       string
	BuyerID        string
	Note           string
	IdempotencyKey string
}

func (p IntentCreateParams) toSquareRequest(idempotencyKey, locationID, currency string) *sq.CreatePaymentRequest {
	req := &sq.CreatePaymentRequest{
		IdempotencyKey: idempotencyKey,
		LocationID:     ptrString(locationID),
		CustomerID:     ptrString(p.BuyerID),
		SourceID:       p.SourceID,
		Autocomplete:   boolPtr(false),
	}
	if p.AmountCents > 0 {
		req.AmountMoney = moneyPtr(p.AmountCents, currency)
	}
	if trimmed := strings.TrimSpace(p.Note); trimmed != "" {
		req.Note = ptrString(trimmed)
	}
	if p.OrderID != uuid.Nil {
		req.ReferenceID = ptrString(p.OrderID.String())
	}
	return req
}

func ptrString(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}

func boolPtr(value bool) *bool {
	return &value
}

func int64Ptr(value int64) *int64 {
	return &value
}

func currencyPtr(code string) *sq.Currency {
	trimmed := strings.ToUpper(strings.TrimSpace(code))
	if trimmed == "" {
		trimmed = "USD"
	}
	c := sq.Currency(trimmed)
	return &c
}

func moneyPtr(amount int64, currency string) *sq.Money {
	if amount == 0 {
		return nil
	}
	return &sq.Money{
		Amount:   int64Ptr(amount),
		Currency: currencyPtr(currency),
	}
}
