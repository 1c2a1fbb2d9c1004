package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements CacheStore on Redis. Every descriptor lives under its
// own key with a TTL; a set indexes the ids for listing.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// NewRedisClient connects and pings.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return client, nil
}

const indexKey = "sessions:index"

func descriptorKey(sessionID string) string {
	return fmt.Sprintf("session:%s:descriptor", sessionID)
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) SetSession(ctx context.Context, d *Descriptor, ttl time.Duration) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, descriptorKey(d.ID), data, ttl)
	pipe.SAdd(ctx, indexKey, d.ID)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisStore) GetSession(ctx context.Context, sessionID string) (*Descriptor, error) {
	data, err := r.client.Get(ctx, descriptorKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &d, nil
}

func (r *RedisStore) DeleteSession(ctx context.Context, sessionID string) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, descriptorKey(sessionID))
	pipe.SRem(ctx, indexKey, sessionID)
	_, err := pipe.Exec(ctx)
	return err
}

// ListSessions reads every indexed descriptor and drops index entries whose
// key has expired.
func (r *RedisStore) ListSessions(ctx context.Context) ([]*Descriptor, error) {
	ids, err := r.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read index: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = descriptorKey(id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read sessions: %w", err)
	}

	var (
		out   []*Descriptor
		stale []interface{}
	)
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var d Descriptor
		if err := json.Unmarshal([]byte(s), &d); err != nil {
			stale = append(stale, ids[i])
			continue
		}
		out = append(out, &d)
	}
	if len(stale) > 0 {
		if err := r.client.SRem(ctx, indexKey, stale...).Err(); err != nil {
			return nil, fmt.Errorf("failed to prune index: %w", err)
		}
	}

	sortDescriptors(out)
	return out, nil
}

func (r *RedisStore) Touch(ctx context.Context, sessionID string, ttl time.Duration) error {
	ok, err := r.client.Expire(ctx, descriptorKey(sessionID), ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return nil
}
