package session

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStoreDefaultsToIdle(t *testing.T) {
	store := NewMemoryStore(time.Minute)

	s, err := store.Get(context.Background(), 42)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if s.State != StateIdle {
		t.Fatalf("expected idle, got %s", s.State)
	}
}

func TestMemoryStoreSaveAndReset(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	ctx := context.Background()

	if err := store.Save(ctx, 42, Session{State: StateAwaitingPhoneNumber, PlanCode: "1", Amount: "1000"}); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	s, _ := store.Get(ctx, 42)
	if s.State != StateAwaitingPhoneNumber || s.PlanCode != "1" || s.Amount != "1000" {
		t.Fatalf("unexpected session: %+v", s)
	}

	if err := store.Reset(ctx, 42); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	s, _ = store.Get(ctx, 42)
	if s.State != StateIdle {
		t.Fatalf("expected idle after reset, got %s", s.State)
	}
}

func TestMemoryStoreExpiresEntries(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	_ = store.Save(context.Background(), 42, Session{State: StateAwaitingPaymentResult})
	now = now.Add(2 * time.Minute)

	s, _ := store.Get(context.Background(), 42)
	if s.State != StateIdle {
		t.Fatalf("expected expired session to read as idle, got %s", s.State)
	}
}

func TestMemoryStoreResetIfRequestKeepsNewerRequest(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	ctx := context.Background()

	_ = store.Save(ctx, 42, Session{State: StateAwaitingPaymentResult, RequestID: "ws_CO_B"})

	reset, err := store.ResetIfRequest(ctx, 42, "ws_CO_A")
	if err != nil || reset {
		t.Fatalf("expected no reset for another request, got reset=%v err=%v", reset, err)
	}
	s, _ := store.Get(ctx, 42)
	if s.State != StateAwaitingPaymentResult || s.RequestID != "ws_CO_B" {
		t.Fatalf("expected session to keep tracking ws_CO_B, got %+v", s)
	}

	reset, err = store.ResetIfRequest(ctx, 42, "ws_CO_B")
	if err != nil || !reset {
		t.Fatalf("expected reset for the tracked request, got reset=%v err=%v", reset, err)
	}
	s, _ = store.Get(ctx, 42)
	if s.State != StateIdle {
		t.Fatalf("expected idle, got %s", s.State)
	}

	if reset, _ := store.ResetIfRequest(ctx, 7, "ws_CO_B"); reset {
		t.Fatal("expected no reset for a user without a session")
	}
}
