package market

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"index-signal-engine/config"
	"index-signal-engine/internal/models"
)

// CachedSource wraps a CandleSource with a Redis window cache. Cache failures
// degrade gracefully: a miss or a Redis error falls through to the inner
// source, and write failures are logged, not returned.
type CachedSource struct {
	inner  CandleSource
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

func NewCachedSource(inner CandleSource, cfg config.RedisConfig, logger zerolog.Logger) (*CachedSource, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("redis is not enabled in configuration")
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	ttl := time.Duration(cfg.TTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CachedSource{inner: inner, client: client, ttl: ttl, logger: logger}, nil
}

func cacheKey(symbol string, timeframe models.Timeframe, limit int) string {
	return fmt.Sprintf("candles:%s:%s:%d", symbol, timeframe, limit)
}

func (s *CachedSource) Fetch(ctx context.Context, symbol string, timeframe models.Timeframe, limit int) ([]models.Candle, error) {
	key := cacheKey(symbol, timeframe, limit)

	payload, err := s.client.Get(ctx, key).Bytes()
	if err == nil {
		var candles []models.Candle
		if jsonErr := json.Unmarshal(payload, &candles); jsonErr == nil {
			return candles, nil
		}
		// Corrupt entry; drop it and refetch.
		s.client.Del(ctx, key)
	} else if err != redis.Nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("redis read failed, falling through")
	}

	candles, err := s.inner.Fetch(ctx, symbol, timeframe, limit)
	if err != nil {
		return nil, err
	}

	if payload, jsonErr := json.Marshal(candles); jsonErr == nil {
		if setErr := s.client.Set(ctx, key, payload, s.ttl).Err(); setErr != nil {
			s.logger.Warn().Err(setErr).Str("key", key).Msg("redis write failed")
		}
	}
	return candles, nil
}

// Close releases the Redis connection pool.
func (s *CachedSource) Close() error { return s.client.Close() }
