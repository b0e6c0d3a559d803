package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestNewCarriesCodeAndMessage(t *testing.T) {
	err := New(CodeStockInsufficient, "not enough stock for product")
	if err.Code() != CodeStockInsufficient {
		t.Fatalf("unexpected code %s", err.Code())
	}
	if err.Message() != "not enough stock for product" {
		t.Fatalf("unexpected message %q", err.Message())
	}
	if err.Error() != "STOCK_INSUFFICIENT: not enough stock for product" {
		t.Fatalf("unexpected rendering %q", err.Error())
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stdErrors.New("row locked")
	err := Wrap(CodeConflict, cause, "concurrent update")
	if !stdErrors.Is(err, cause) {
		t.Fatal("expected wrapped cause to survive errors.Is")
	}
	if As(err).Code() != CodeConflict {
		t.Fatalf("unexpected code %s", As(err).Code())
	}
}

func TestAsThroughWrapping(t *testing.T) {
	inner := New(CodeSignatureMismatch, "proof mismatch")
	outer := fmt.Errorf("reconcile payment: %w", inner)
	typed := As(outer)
	if typed == nil {
		t.Fatal("expected typed error through fmt wrapping")
	}
	if typed.Code() != CodeSignatureMismatch {
		t.Fatalf("unexpected code %s", typed.Code())
	}
}

func TestHasCode(t *testing.T) {
	err := New(CodeInvalidTransition, "delivered is terminal")
	if !HasCode(err, CodeInvalidTransition) {
		t.Fatal("expected HasCode to match")
	}
	if HasCode(err, CodeValidation) {
		t.Fatal("unexpected code match")
	}
	if HasCode(stdErrors.New("plain"), CodeInternal) {
		t.Fatal("plain errors carry no code")
	}
}

func TestMetadataForKnownCodes(t *testing.T) {
	cases := []struct {
		code   Code
		status int
	}{
		{CodeValidation, http.StatusBadRequest},
		{CodeStockInsufficient, http.StatusConflict},
		{CodeSignatureMismatch, http.StatusUnauthorized},
		{CodeInvalidTransition, http.StatusUnprocessableEntity},
		{CodeGatewayTimeout, http.StatusGatewayTimeout},
	}
	for _, tc := range cases {
		if got := MetadataFor(tc.code).HTTPStatus; got != tc.status {
			t.Fatalf("code %s expected %d got %d", tc.code, tc.status, got)
		}
	}
}

func TestMetadataForUnknownCodeFallsBack(t *testing.T) {
	meta := MetadataFor(Code("NOPE"))
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal fallback, got %d", meta.HTTPStatus)
	}
}

func TestDumpCollectsChain(t *testing.T) {
	err := Wrap(CodeDependency, stdErrors.New("dial tcp: refused"), "decrement stock")
	dump := Dump(err)
	if dump.Code != CodeDependency {
		t.Fatalf("unexpected code %s", dump.Code)
	}
	if len(dump.Chain) != 2 {
		t.Fatalf("expected chain of 2, got %d", len(dump.Chain))
	}
}
