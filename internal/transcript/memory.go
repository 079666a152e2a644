package transcript

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memoryStore implements Store using an in-memory map. Entries live for the
// lifetime of the process; there is no eviction.
type memoryStore struct {
	mu           sync.RWMutex
	sessions     map[string]*Transcript
	systemPrompt string
}

func newMemoryStore(systemPrompt string) *memoryStore {
	return &memoryStore{
		sessions:     make(map[string]*Transcript),
		systemPrompt: systemPrompt,
	}
}

func (s *memoryStore) GetOrCreate(ctx context.Context, id string) (*Transcript, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id != "" {
		if t, ok := s.sessions[id]; ok {
			return t.clone(), id, nil
		}
	}

	// Unknown or empty id: mint a fresh one and seed the transcript.
	id = uuid.NewString()
	t := newTranscript(id, s.systemPrompt)
	s.sessions[id] = t
	return t.clone(), id, nil
}

func (s *memoryStore) Get(ctx context.Context, id string) (*Transcript, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return t.clone(), nil
}

func (s *memoryStore) AppendUser(ctx context.Context, id, content string) error {
	return s.append(id, RoleUser, content)
}

func (s *memoryStore) AppendAssistant(ctx context.Context, id, content string) error {
	return s.append(id, RoleAssistant, content)
}

func (s *memoryStore) append(id, role, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := validateAppend(t, role); err != nil {
		return err
	}

	now := time.Now()
	t.Messages = append(t.Messages, Message{Role: role, Content: content, Time: now})
	t.UpdatedAt = now
	return nil
}

func (s *memoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = nil
	return nil
}
