package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/dfs-qubo/internal/optimizer"
)

const (
	resultPrefix = "optimization:"
	quboPrefix   = "qubo:"
)

// ErrCacheMiss is returned when no entry exists for a key
var ErrCacheMiss = errors.New("cache miss")

// ResultCache stores solve results and built QUBOs keyed by request digest
type ResultCache struct {
	client *redis.Client
	logger *logrus.Logger
}

// NewClient parses a redis URL and checks the connection
func NewClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

func NewResultCache(client *redis.Client, logger *logrus.Logger) *ResultCache {
	return &ResultCache{
		client: client,
		logger: logger,
	}
}

// RequestKey digests any JSON-encodable request into a stable cache key
func RequestKey(request interface{}) (string, error) {
	data, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("failed to marshal cache key: %w", err)
	}
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:]), nil
}

// SetResult stores a solve result
func (c *ResultCache) SetResult(ctx context.Context, key string, result *optimizer.Result, expiration time.Duration) error {
	if err := c.set(ctx, resultPrefix+key, result, expiration); err != nil {
		return err
	}

	c.logger.WithFields(logrus.Fields{
		"cache_key":  resultPrefix + key,
		"expiration": expiration,
		"strategy":   result.Strategy,
	}).Debug("Cached optimization result")
	return nil
}

// GetResult retrieves a solve result, or ErrCacheMiss
func (c *ResultCache) GetResult(ctx context.Context, key string) (*optimizer.Result, error) {
	var result optimizer.Result
	if err := c.get(ctx, resultPrefix+key, &result); err != nil {
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"cache_key": resultPrefix + key,
		"strategy":  result.Strategy,
	}).Debug("Retrieved optimization result from cache")
	return &result, nil
}

// SetQUBO stores any encoded QUBO response under the qubo prefix
func (c *ResultCache) SetQUBO(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return c.set(ctx, quboPrefix+key, value, expiration)
}

// GetQUBO decodes a cached QUBO response into dest
func (c *ResultCache) GetQUBO(ctx context.Context, key string, dest interface{}) error {
	return c.get(ctx, quboPrefix+key, dest)
}

// GetStatus returns cache statistics
func (c *ResultCache) GetStatus(ctx context.Context) map[string]interface{} {
	status := map[string]interface{}{
		"service":   "qubo-cache",
		"timestamp": time.Now(),
		"connected": c.client.Ping(ctx).Err() == nil,
	}

	if dbSize := c.client.DBSize(ctx); dbSize.Err() == nil {
		status["db_size"] = dbSize.Val()
	}
	if keys, err := c.client.Keys(ctx, resultPrefix+"*").Result(); err == nil {
		status["optimization_keys"] = len(keys)
	}
	if keys, err := c.client.Keys(ctx, quboPrefix+"*").Result(); err == nil {
		status["qubo_keys"] = len(keys)
	}

	return status
}

// Flush clears every cached result and QUBO
func (c *ResultCache) Flush(ctx context.Context) error {
	deleted := 0
	for _, prefix := range []string{resultPrefix, quboPrefix} {
		keys, err := c.client.Keys(ctx, prefix+"*").Result()
		if err != nil {
			return fmt.Errorf("failed to get %s keys: %w", prefix, err)
		}
		if len(keys) == 0 {
			continue
		}
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("failed to delete %s keys: %w", prefix, err)
		}
		deleted += len(keys)
	}

	c.logger.WithField("deleted_keys", deleted).Info("Flushed optimization cache")
	return nil
}

func (c *ResultCache) set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}
	if err := c.client.Set(ctx, key, data, expiration).Err(); err != nil {
		return fmt.Errorf("failed to set cache entry: %w", err)
	}
	return nil
}

func (c *ResultCache) get(ctx context.Context, key string, dest interface{}) error {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCacheMiss
		}
		return fmt.Errorf("failed to get cache entry: %w", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to unmarshal cache entry: %w", err)
	}
	return nil
}
