// Package feedback records thumbs-up/thumbs-down ratings for generated
// snippets, keyed by the originating question. Last write wins; no rating
// history is kept.
package feedback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Ratings accepted by Record.
const (
	RatingUp   = "thumbs_up"
	RatingDown = "thumbs_down"
)

// Common errors for feedback operations.
var (
	ErrInvalidRating = errors.New("invalid rating")
	ErrNotFound      = errors.New("no feedback recorded for question")
)

// Entry is one recorded rating.
type Entry struct {
	Question  string    `json:"question"`
	Code      string    `json:"code"`
	Rating    string    `json:"rating"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists ratings. Record overwrites any prior entry for the same
// question text.
type Store interface {
	Record(ctx context.Context, question, code, rating string) error
	Get(ctx context.Context, question string) (*Entry, error)
	Close() error
}

func validateRating(rating string) error {
	if rating != RatingUp && rating != RatingDown {
		return fmt.Errorf("%w: %q", ErrInvalidRating, rating)
	}
	return nil
}

type memoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewStore creates an in-memory feedback store.
func NewStore() Store {
	return &memoryStore{entries: make(map[string]*Entry)}
}

func (s *memoryStore) Record(ctx context.Context, question, code, rating string) error {
	if err := validateRating(rating); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[question] = &Entry{
		Question:  question,
		Code:      code,
		Rating:    rating,
		UpdatedAt: time.Now(),
	}
	return nil
}

func (s *memoryStore) Get(ctx context.Context, question string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[question]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, question)
	}
	copy := *e
	return &copy, nil
}

func (s *memoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	return nil
}
