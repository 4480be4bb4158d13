package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"reporting-gateway/internal/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	refreshTokenPrefix = "refresh_token:"
	rateLimitPrefix    = "rate_limit:"
)

// RedisStore keeps refresh tokens and login rate-limit counters in Redis, so
// they are shared between gateway instances and survive restarts.
type RedisStore struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisStore connects to redisURL and verifies the connection
func NewRedisStore(ctx context.Context, redisURL string, logger *zap.Logger) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opt)

	// Test the connection
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return &RedisStore{
		client: client,
		logger: logger,
	}, nil
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Store saves refresh token data with a TTL matching its lifetime
func (s *RedisStore) Store(ctx context.Context, token string, data *models.RefreshTokenData, ttl time.Duration) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}

	if err := s.client.Set(ctx, refreshTokenPrefix+token, payload, ttl).Err(); err != nil {
		s.logger.Error("Failed to store refresh token", zap.Error(err))
		return err
	}

	return nil
}

// Take reads and deletes the token in one GETDEL round trip.
func (s *RedisStore) Take(ctx context.Context, token string) (*models.RefreshTokenData, error) {
	payload, err := s.client.GetDel(ctx, refreshTokenPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		s.logger.Error("Failed to take refresh token", zap.Error(err))
		return nil, err
	}

	var data models.RefreshTokenData
	if err := json.Unmarshal(payload, &data); err != nil {
		s.logger.Error("Failed to unmarshal refresh token data", zap.Error(err))
		return nil, err
	}

	return &data, nil
}

// CheckRateLimit counts a hit for key in a fixed window and reports whether
// the limit has been exceeded.
func (s *RedisStore) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	redisKey := rateLimitPrefix + key
	count, err := s.client.Incr(ctx, redisKey).Result()
	if err != nil {
		s.logger.Error("Failed to increment rate limit counter", zap.String("key", key), zap.Error(err))
		return false, err
	}

	// Set expiration on first request
	if count == 1 {
		if err := s.client.Expire(ctx, redisKey, window).Err(); err != nil {
			s.logger.Error("Failed to set rate limit expiration", zap.Error(err))
		}
	}

	return count > int64(limit), nil
}
