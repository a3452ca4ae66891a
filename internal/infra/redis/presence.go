package redis

import (
	"context"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// PresenceStore tracks live room connections in Redis so every instance
// sees the same online set. Each room is a hash of participant id to open
// connection count; the key expires when a room goes quiet for ttl.
type PresenceStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewPresenceStore(client *redis.Client, ttl time.Duration) *PresenceStore {
	return &PresenceStore{client: client, ttl: ttl}
}

func (s *PresenceStore) Touch(ctx context.Context, roomID, participantID string) error {
	key := presenceKey(roomID)
	pipe := s.client.TxPipeline()
	pipe.HIncrBy(ctx, key, participantID, 1)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *PresenceStore) Drop(ctx context.Context, roomID, participantID string) error {
	key := presenceKey(roomID)
	left, err := s.client.HIncrBy(ctx, key, participantID, -1).Result()
	if err != nil {
		return err
	}
	if left <= 0 {
		return s.client.HDel(ctx, key, participantID).Err()
	}
	return nil
}

func (s *PresenceStore) Online(ctx context.Context, roomID string) ([]string, error) {
	ids, err := s.client.HKeys(ctx, presenceKey(roomID)).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

func presenceKey(roomID string) string {
	return "quizroom:presence:" + roomID
}
