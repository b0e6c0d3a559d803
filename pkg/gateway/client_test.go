package gateway

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/google/uuid"
	sqcore "github.com/square/square-go-sdk/core"

	pkgerrors "github.com/vendiqhq/vendiq-backend/pkg/errors"
)

func TestEnsureIdempotencyKey(t *testing.T) {
	c := &Client{}
	if got := c.ensureIdempotencyKey("pref", "custom-key"); got != "custom-key" {
		t.Fatalf("expected provided key, got %q", got)
	}
	if got := c.ensureIdempotencyKey("prefix", ""); !strings.HasPrefix(got, "prefix-") {
		t.Fatalf("generated idempotency key %q missing prefix", got)
	}
}

func TestRedact(t *testing.T) {
	c := &Client{}
	if out := c.redact("source_id", "cnon:abc"); out != "[REDACTED]" {
		t.Fatalf("expected redacted value, got %v", out)
	}
	if v := c.redact("status", "ok"); v != "ok" {
		t.Fatalf("unexpected redaction for safe key")
	}
}

func TestDomainCodeForStatus(t *testing.T) {
	tests := []struct {
		status int
		code   pkgerrors.Code
	}{
		{http.StatusUnauthorized, pkgerrors.CodeUnauthorized},
		{http.StatusForbidden, pkgerrors.CodeForbidden},
		{http.StatusNotFound, pkgerrors.CodeNotFound},
		{http.StatusConflict, pkgerrors.CodeConflict},
		{http.StatusBadRequest, pkgerrors.CodeValidation},
		{http.StatusUnprocessableEntity, pkgerrors.CodeInvalidTransition},
		{http.StatusGatewayTimeout, pkgerrors.CodeGatewayTimeout},
		{http.StatusInternalServerError, pkgerrors.CodeDependency},
	}
	for _, tt := range tests {
		if got := domainCodeForStatus(tt.status); got != tt.code {
			t.Fatalf("status %d expected %s got %s", tt.status, tt.code, got)
		}
	}
}

func TestMapGatewayError(t *testing.T) {
	c := &Client{}
	table := []struct {
		name     string
		err      error
		wantCode pkgerrors.Code
	}{
		{
			name:     "authentication error",
			err:      sqcore.NewAPIError(http.StatusUnauthorized, errors.New(`{"errors":[{"category":"AUTHENTICATION_ERROR","code":"UNAUTHORIZED"}]}`)),
			wantCode: pkgerrors.CodeUnauthorized,
		},
		{
			name:     "idempotency key reused",
			err:      sqcore.NewAPIError(http.StatusConflict, errors.New(`{"errors":[{"category":"API_ERROR","code":"IDEMPOTENCY_KEY_REUSED"}]}`)),
			wantCode: pkgerrors.CodeConflict,
		},
		{
			name:     "deadline exceeded",
			err:      context.DeadlineExceeded,
			wantCode: pkgerrors.CodeGatewayTimeout,
		},
		{
			name:     "unknown transport error",
			err:      errors.New("connection refused"),
			wantCode: pkgerrors.CodeDependency,
		},
	}
	for _, tt := range table {
		mapped := c.mapGatewayError(tt.err, "operation")
		if mapped == nil {
			t.Fatalf("%s: expected error", tt.name)
		}
		typed := pkgerrors.As(mapped)
		if typed == nil {
			t.Fatalf("%s: result is not a coded error", tt.name)
		}
		if typed.Code() != tt.wantCode {
			t.Fatalf("%s: expected code %s, got %s", tt.name, tt.wantCode, typed.Code())
		}
	}
}

func TestIntentCreateParamsToRequest(t *testing.T) {
	orderID := uuid.New()
	params := IntentCreateParams{
		OrderID:     orderID,
		AmountCents: 335,
		SourceID:    "cnon:card-nonce",
		BuyerID:     "buyer-1",
		Note:        "order checkout",
	}
	req := params.toSquareRequest("key-1", "loc-1", "USD")

	if req.IdempotencyKey != "key-1" {
		t.Fatalf("unexpected idempotency key %q", req.IdempotencyKey)
	}
	if req.SourceID != "cnon:card-nonce" {
		t.Fatalf("unexpected source id %q", req.SourceID)
	}
	if req.Autocomplete == nil || *req.Autocomplete {
		t.Fatalf("intent must be created without autocomplete")
	}
	if req.AmountMoney == nil || *req.AmountMoney.Amount != 335 {
		t.Fatalf("unexpected amount money %+v", req.AmountMoney)
	}
	if req.ReferenceID == nil || *req.ReferenceID != orderID.String() {
		t.Fatalf("expected order id as reference, got %v", req.ReferenceID)
	}
}

func TestNormalizeEnv(t *testing.T) {
	if env, err := normalizeEnv(""); err != nil || env != sandboxEnv {
		t.Fatalf("empty env should default to sandbox, got %q err=%v", env, err)
	}
	if env, err := normalizeEnv("Production"); err != nil || env != productionEnv {
		t.Fatalf("expected production, got %q err=%v", env, err)
	}
	if _, err := normalizeEnv("staging"); err == nil {
		t.Fatalf("expected error for unknown environment")
	}
}
