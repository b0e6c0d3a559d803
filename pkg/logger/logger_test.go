package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestInfoIncludesServiceAndContextFields(t *testing.T) {
	var buf bytes.Buffer
	logg := New(Options{ServiceName: "api", Level: zerolog.InfoLevel, Output: &buf})

	ctx := logg.WithOrderID(context.Background(), "ord-123")
	ctx = logg.WithActorRole(ctx, "seller")
	logg.Info(ctx, "order updated")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not json: %v", err)
	}
	if entry["service"] != "api" {
		t.Fatalf("missing service field: %v", entry)
	}
	if entry["order_id"] != "ord-123" {
		t.Fatalf("missing order_id field: %v", entry)
	}
	if entry["actor_role"] != "seller" {
		t.Fatalf("missing actor_role field: %v", entry)
	}
	if entry["message"] != "order updated" {
		t.Fatalf("unexpected message: %v", entry)
	}
}

func TestContextFieldsDoNotLeakAcrossContexts(t *testing.T) {
	var buf bytes.Buffer
	logg := New(Options{ServiceName: "api", Output: &buf})

	_ = logg.WithField(context.Background(), "order_id", "ord-a")
	logg.Info(context.Background(), "plain")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not json: %v", err)
	}
	if _, ok := entry["order_id"]; ok {
		t.Fatal("field attached to a derived context leaked into the base logger")
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("debug") != zerolog.DebugLevel {
		t.Fatal("debug not parsed")
	}
	if ParseLevel("") != zerolog.InfoLevel {
		t.Fatal("empty should default to info")
	}
	if ParseLevel("bogus") != zerolog.InfoLevel {
		t.Fatal("unknown should default to info")
	}
}
