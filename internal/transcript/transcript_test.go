package transcript

import (
	"context"
	"errors"
	"testing"
)

const testPrompt = "You are a data analyst."

func newTestStore(t *testing.T) Store {
	t.Helper()
	store, err := NewStore(StoreTypeMemory, testPrompt)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	return store
}

func TestGetOrCreateMintsFreshID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tr, id, err := store.GetOrCreate(ctx, "")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if id == "" {
		t.Fatal("Expected a minted session id")
	}
	if len(tr.Messages) != 1 || tr.Messages[0].Role != RoleSystem {
		t.Fatalf("Expected a single seeded system message, got %+v", tr.Messages)
	}
	if tr.Messages[0].Content != testPrompt {
		t.Errorf("System message content mismatch: %q", tr.Messages[0].Content)
	}
}

func TestGetOrCreateSelfHealsOnUnknownID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, id, err := store.GetOrCreate(ctx, "garbage-session-id")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if id == "garbage-session-id" {
		t.Error("Expected a fresh id for an unknown session, got the garbled one back")
	}
}

func TestGetOrCreateReturnsExisting(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, id, _ := store.GetOrCreate(ctx, "")
	if err := store.AppendUser(ctx, id, "hello"); err != nil {
		t.Fatalf("AppendUser failed: %v", err)
	}

	tr, id2, err := store.GetOrCreate(ctx, id)
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if id2 != id {
		t.Errorf("Expected same id back, got %s vs %s", id2, id)
	}
	if len(tr.Messages) != 2 {
		t.Errorf("Expected 2 messages, got %d", len(tr.Messages))
	}
}

func TestMintedIDsAreDistinct(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		_, id, err := store.GetOrCreate(ctx, "")
		if err != nil {
			t.Fatalf("GetOrCreate failed: %v", err)
		}
		if seen[id] {
			t.Fatalf("Duplicate session id after %d creations: %s", i, id)
		}
		seen[id] = true
	}
}

func TestSystemMessageStaysFirstAndSingular(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, id, _ := store.GetOrCreate(ctx, "")
	for i := 0; i < 5; i++ {
		if err := store.AppendUser(ctx, id, "q"); err != nil {
			t.Fatalf("AppendUser failed: %v", err)
		}
		if err := store.AppendAssistant(ctx, id, "a"); err != nil {
			t.Fatalf("AppendAssistant failed: %v", err)
		}
	}

	tr, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	systemCount := 0
	for _, m := range tr.Messages {
		if m.Role == RoleSystem {
			systemCount++
		}
	}
	if systemCount != 1 {
		t.Errorf("Expected exactly one system message, got %d", systemCount)
	}
	if tr.Messages[0].Role != RoleSystem {
		t.Errorf("Expected system message first, got %s", tr.Messages[0].Role)
	}
}

func TestAppendAssistantBeforeUserIsRejected(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, id, _ := store.GetOrCreate(ctx, "")
	if err := store.AppendAssistant(ctx, id, "answer"); !errors.Is(err, ErrOutOfOrder) {
		t.Errorf("Expected ErrOutOfOrder, got %v", err)
	}

	// Two user messages in a row are equally invalid.
	if err := store.AppendUser(ctx, id, "q"); err != nil {
		t.Fatalf("AppendUser failed: %v", err)
	}
	if err := store.AppendUser(ctx, id, "q2"); !errors.Is(err, ErrOutOfOrder) {
		t.Errorf("Expected ErrOutOfOrder for user/user adjacency, got %v", err)
	}
}

func TestAppendToUnknownSession(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.AppendUser(ctx, "missing", "q"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, id, _ := store.GetOrCreate(ctx, "")
	tr, _ := store.Get(ctx, id)
	tr.Messages[0].Content = "tampered"

	fresh, _ := store.Get(ctx, id)
	if fresh.Messages[0].Content != testPrompt {
		t.Error("Mutating a returned transcript leaked into the store")
	}
}

func TestFactoryRejectsBadConfig(t *testing.T) {
	if _, err := NewStore(StoreTypeRedis, testPrompt); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig for redis without client, got %v", err)
	}
	if _, err := NewStore("bolt", testPrompt); !errors.Is(err, ErrInvalidStoreType) {
		t.Errorf("Expected ErrInvalidStoreType, got %v", err)
	}
}
