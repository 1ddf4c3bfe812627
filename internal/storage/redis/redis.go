package redis

import (
	"Allowance/internal/config"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

const prefix = "allowance:idempotency"

// responses are kept long enough to absorb client retries, no longer
const responseTTL = 24 * time.Hour

var ErrNotFound = errors.New("cached response not found")

// CachedResponse is a replayable copy of a completed mutating request.
type CachedResponse struct {
	Status int    `json:"status"`
	Body   []byte `json:"body"`
}

type Cache struct {
	client *redis.Client
}

func New(redisConfig config.RedisConfig) *Cache {
	redisClient := redis.NewClient(&redis.Options{
		Addr:     redisConfig.Host + ":" + strconv.Itoa(redisConfig.Port),
		Password: redisConfig.Password,
		DB:       redisConfig.Db,
	})

	return &Cache{
		client: redisClient,
	}
}

func (c *Cache) GetResponse(ctx context.Context, key string) (CachedResponse, error) {
	const method = "GetResponse"
	log := slog.With("method", method)

	data, err := c.client.Get(ctx, prefix+":"+key).Result()
	if errors.Is(err, redis.Nil) {
		return CachedResponse{}, ErrNotFound
	}
	if err != nil {
		log.Error("failed to get cached response", "key", key, "err", err)
		return CachedResponse{}, fmt.Errorf("failed to get cached response: %w", err)
	}

	var resp CachedResponse
	if err := json.Unmarshal([]byte(data), &resp); err != nil {
		log.Error("failed to unmarshal cached response", "key", key, "err", err)
		return CachedResponse{}, fmt.Errorf("failed to unmarshal cached response: %w", err)
	}

	log.Debug("idempotency hit", "key", key)
	return resp, nil
}

func (c *Cache) SaveResponse(ctx context.Context, key string, status int, body []byte) error {
	const method = "SaveResponse"
	log := slog.With("method", method)

	value, err := json.Marshal(CachedResponse{Status: status, Body: body})
	if err != nil {
		return fmt.Errorf("failed to marshal cached response: %w", err)
	}

	if err := c.client.Set(ctx, prefix+":"+key, value, responseTTL).Err(); err != nil {
		log.Error("failed to save cached response", "key", key, "err", err)
		return fmt.Errorf("failed to save cached response: %w", err)
	}

	log.Debug("idempotency key saved", "key", key)
	return nil
}
