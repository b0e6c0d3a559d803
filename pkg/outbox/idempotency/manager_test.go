package idempotency

import (
	"context"
	"testing"
	"time"
)

type fakeStore struct {
	data map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]string)}
}

func (s *fakeStore) Get(ctx context.Context, key string) (string, error) {
	return s.data[key], nil
}

func (s *fakeStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, exists := s.data[key]; exists {
		return false, nil
	}
	s.data[key] = "1"
	return true, nil
}

func (s *fakeStore) IdempotencyKey(scope, id string) string {
	return "vq:idempotency:" + scope + ":" + id
}

func (s *fakeStore) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}

func TestCheckAndMarkProcessed(t *testing.T) {
	ctx := context.Background()
	manager, err := NewManager(newFakeStore(), time.Hour)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	seen, err := manager.CheckAndMarkProcessed(ctx, "webhook:payments", "conf-123")
	if err != nil {
		t.Fatalf("first check failed: %v", err)
	}
	if seen {
		t.Fatalf("first delivery should not be marked processed")
	}

	seen, err = manager.CheckAndMarkProcessed(ctx, "webhook:payments", "conf-123")
	if err != nil {
		t.Fatalf("second check failed: %v", err)
	}
	if !seen {
		t.Fatalf("replay should be detected")
	}
}

func TestDeleteAllowsReprocessing(t *testing.T) {
	ctx := context.Background()
	manager, _ := NewManager(newFakeStore(), time.Hour)

	if _, err := manager.CheckAndMarkProcessed(ctx, "webhook:payments", "conf-9"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := manager.Delete(ctx, "webhook:payments", "conf-9"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	seen, err := manager.CheckAndMarkProcessed(ctx, "webhook:payments", "conf-9")
	if err != nil || seen {
		t.Fatalf("expected fresh processing after delete, seen=%v err=%v", seen, err)
	}
}

func TestManagerValidation(t *testing.T) {
	if _, err := NewManager(nil, time.Hour); err == nil {
		t.Fatalf("expected error for nil store")
	}
	manager, _ := NewManager(newFakeStore(), time.Hour)
	if _, err := manager.CheckAndMarkProcessed(context.Background(), "", "id"); err == nil {
		t.Fatalf("expected error for empty consumer")
	}
	if _, err := manager.CheckAndMarkProcessed(context.Background(), "consumer", " "); err == nil {
		t.Fatalf("expected error for empty id")
	}
}
