package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eldtechnologies/attestlog/internal/chain"
)

// RedisStore keeps chains in Redis: one hash per session keyed by seq,
// plus a sorted set indexing sessions by last activity. Durability depends
// on the server's AOF configuration; for crash-safety guarantees use the
// SQLite or Postgres backends.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to redisURL (redis://...).
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &RedisStore{client: client}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// sessionMessagesKey returns the key of a session's message hash.
func sessionMessagesKey(sessionID string) string {
	return fmt.Sprintf("session:%s:messages", sessionID)
}

const (
	sessionsIndexKey = "sessions:index"
	sessionsLastKey  = "sessions:last_ts"
)

type redisRecord struct {
	chain.Message
	Digest string `json:"digest"`
}

// Put appends one signed message, tolerating only duplicates whose digest
// matches the stored record.
func (s *RedisStore) Put(ctx context.Context, msg *chain.Message) error {
	digest, err := msg.Digest()
	if err != nil {
		return fmt.Errorf("store put: %w", err)
	}

	data, err := json.Marshal(redisRecord{Message: *msg, Digest: digest})
	if err != nil {
		return err
	}

	key := sessionMessagesKey(msg.SessionID)
	field := strconv.FormatInt(msg.Seq, 10)

	set, err := s.client.HSetNX(ctx, key, field, string(data)).Result()
	if err != nil {
		return err
	}
	if !set {
		raw, err := s.client.HGet(ctx, key, field).Result()
		if err != nil {
			return err
		}
		var existing redisRecord
		if err := json.Unmarshal([]byte(raw), &existing); err != nil {
			return err
		}
		if existing.Digest != digest {
			return fmt.Errorf("%w: session %q seq %d", ErrConflict, msg.SessionID, msg.Seq)
		}
		return nil
	}

	pipe := s.client.Pipeline()
	pipe.ZAdd(ctx, sessionsIndexKey, redis.Z{
		Score:  float64(time.Now().UnixMilli()),
		Member: msg.SessionID,
	})
	pipe.HSet(ctx, sessionsLastKey, msg.SessionID, msg.Timestamp)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) loadAll(ctx context.Context, sessionID string) ([]chain.Message, error) {
	raw, err := s.client.HGetAll(ctx, sessionMessagesKey(sessionID)).Result()
	if err != nil {
		return nil, err
	}

	msgs := make([]chain.Message, 0, len(raw))
	for _, v := range raw {
		var rec redisRecord
		if err := json.Unmarshal([]byte(v), &rec); err != nil {
			return nil, err
		}
		msgs = append(msgs, rec.Message)
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].Seq < msgs[j].Seq })
	return msgs, nil
}

// GetChain returns the full chain of a session in ascending seq order.
func (s *RedisStore) GetChain(ctx context.Context, sessionID string) ([]chain.Message, error) {
	return s.loadAll(ctx, sessionID)
}

// GetMessages returns the most recent limit messages in ascending order.
func (s *RedisStore) GetMessages(ctx context.Context, sessionID string, limit int) ([]chain.Message, error) {
	msgs, err := s.loadAll(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

// ListSessions lists sessions ordered by latest activity.
func (s *RedisStore) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	ids, err := s.client.ZRevRange(ctx, sessionsIndexKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}

	infos := make([]SessionInfo, 0, len(ids))
	for _, id := range ids {
		count, err := s.client.HLen(ctx, sessionMessagesKey(id)).Result()
		if err != nil {
			return nil, err
		}
		last, err := s.client.HGet(ctx, sessionsLastKey, id).Result()
		if err != nil && err != redis.Nil {
			return nil, err
		}
		infos = append(infos, SessionInfo{
			SessionID:     id,
			MessageCount:  count,
			LastTimestamp: last,
		})
	}
	return infos, nil
}
