package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "payments-bot:session:"

// resetIfRequestScript deletes the session only when its request_id matches.
var resetIfRequestScript = redis.NewScript(`
local raw = redis.call("GET", KEYS[1])
if not raw then
	return 0
end
local ok, s = pcall(cjson.decode, raw)
if not ok or type(s) ~= "table" or s.request_id ~= ARGV[1] then
	return 0
end
redis.call("DEL", KEYS[1])
return 1
`)

type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (r *RedisStore) Get(ctx context.Context, userID int64) (Session, error) {
	raw, err := r.client.Get(ctx, key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Idle(), nil
	}
	if err != nil {
		return Session{}, fmt.Errorf("redis get failed: %w", err)
	}

	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return Idle(), nil
	}
	return normalize(s), nil
}

func (r *RedisStore) Save(ctx context.Context, userID int64, s Session) error {
	raw, err := json.Marshal(normalize(s))
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, key(userID), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisStore) Reset(ctx context.Context, userID int64) error {
	if err := r.client.Del(ctx, key(userID)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func (r *RedisStore) ResetIfRequest(ctx context.Context, userID int64, requestID string) (bool, error) {
	if requestID == "" {
		return false, nil
	}
	deleted, err := resetIfRequestScript.Run(ctx, r.client, []string{key(userID)}, requestID).Int()
	if err != nil {
		return false, fmt.Errorf("redis conditional delete failed: %w", err)
	}
	return deleted == 1, nil
}

func key(userID int64) string {
	return keyPrefix + strconv.FormatInt(userID, 10)
}
