package feedback

import (
	"context"
	"errors"
	"testing"
)

func TestRecordAndGet(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	if err := store.Record(ctx, "sum of a?", `result = df["a"].sum()`, RatingUp); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	e, err := store.Get(ctx, "sum of a?")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if e.Rating != RatingUp {
		t.Errorf("Expected %s, got %s", RatingUp, e.Rating)
	}
	if e.Code != `result = df["a"].sum()` {
		t.Errorf("Code not stored: %q", e.Code)
	}
}

func TestLastWriteWins(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	if err := store.Record(ctx, "q", "code-1", RatingUp); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := store.Record(ctx, "q", "code-2", RatingDown); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	e, err := store.Get(ctx, "q")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if e.Rating != RatingDown || e.Code != "code-2" {
		t.Errorf("Expected the second write to win, got %+v", e)
	}
}

func TestInvalidRating(t *testing.T) {
	store := NewStore()
	if err := store.Record(context.Background(), "q", "code", "meh"); !errors.Is(err, ErrInvalidRating) {
		t.Errorf("Expected ErrInvalidRating, got %v", err)
	}
}

func TestGetUnknownQuestion(t *testing.T) {
	store := NewStore()
	if _, err := store.Get(context.Background(), "never asked"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
