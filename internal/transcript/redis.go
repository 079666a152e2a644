package transcript

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	transcriptKeyPrefix = "transcript:"
	defaultRedisTTL     = 24 * time.Hour
)

// redisStore implements Store using Redis. Transcripts are stored as JSON
// blobs; appends run inside WATCH/MULTI/EXEC so two writers cannot lose each
// other's messages. The TTL gives deployments an eviction policy the
// in-memory store deliberately lacks.
type redisStore struct {
	client       *redis.Client
	ttl          time.Duration
	systemPrompt string
}

func newRedisStore(client *redis.Client, ttl time.Duration, systemPrompt string) *redisStore {
	if ttl <= 0 {
		ttl = defaultRedisTTL
	}
	return &redisStore{client: client, ttl: ttl, systemPrompt: systemPrompt}
}

func (s *redisStore) GetOrCreate(ctx context.Context, id string) (*Transcript, string, error) {
	if id != "" {
		t, err := s.Get(ctx, id)
		if err == nil {
			return t, id, nil
		}
	}

	id = uuid.NewString()
	t := newTranscript(id, s.systemPrompt)
	val, err := json.Marshal(t)
	if err != nil {
		return nil, "", err
	}
	if err := s.client.Set(ctx, s.key(id), val, s.ttl).Err(); err != nil {
		return nil, "", err
	}
	return t, id, nil
}

func (s *redisStore) Get(ctx context.Context, id string) (*Transcript, error) {
	val, err := s.client.Get(ctx, s.key(id)).Result()
	if err == redis.Nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	var t Transcript
	if err := json.Unmarshal([]byte(val), &t); err != nil {
		return nil, err
	}

	// Refresh TTL on read; failure is not fatal.
	_ = s.client.Expire(ctx, s.key(id), s.ttl).Err()

	return &t, nil
}

func (s *redisStore) AppendUser(ctx context.Context, id, content string) error {
	return s.append(ctx, id, RoleUser, content)
}

func (s *redisStore) AppendAssistant(ctx context.Context, id, content string) error {
	return s.append(ctx, id, RoleAssistant, content)
}

func (s *redisStore) append(ctx context.Context, id, role, content string) error {
	key := s.key(id)

	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		val, err := tx.Get(ctx, key).Result()
		if err == redis.Nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if err != nil {
			return err
		}

		var t Transcript
		if err := json.Unmarshal([]byte(val), &t); err != nil {
			return err
		}
		if err := validateAppend(&t, role); err != nil {
			return err
		}

		now := time.Now()
		t.Messages = append(t.Messages, Message{Role: role, Content: content, Time: now})
		t.UpdatedAt = now

		newVal, err := json.Marshal(&t)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, newVal, s.ttl)
			return nil
		})
		return err
	}, key)
}

func (s *redisStore) Close() error {
	return s.client.Close()
}

func (s *redisStore) key(id string) string {
	return transcriptKeyPrefix + id
}
