package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/arunvm123/concerttrack/config"
	"github.com/arunvm123/concerttrack/model"
	"github.com/redis/go-redis/v9"
)

const listKeyPattern = "concerts:list:*"

type RedisConcertCache struct {
	client *redis.Client
}

func NewRedisConcertCache(ctx context.Context, cfg *config.Redis) (*RedisConcertCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.GetRedisURL(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisConcertCacheFromClient(client), nil
}

func NewRedisConcertCacheFromClient(client *redis.Client) *RedisConcertCache {
	return &RedisConcertCache{client: client}
}

// Cache key generators
func concertKey(concertID int64) string {
	return fmt.Sprintf("concert:%d:details", concertID)
}

func concertListKey(listKey string) string {
	return fmt.Sprintf("concerts:list:%s", listKey)
}

// Concert details caching
func (r *RedisConcertCache) GetConcert(ctx context.Context, concertID int64) (*model.Concert, error) {
	data, err := r.client.Get(ctx, concertKey(concertID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // Cache miss
		}
		return nil, err
	}

	var concert model.Concert
	if err := json.Unmarshal(data, &concert); err != nil {
		return nil, err
	}
	return &concert, nil
}

func (r *RedisConcertCache) SetConcert(ctx context.Context, concert *model.Concert, ttl time.Duration) error {
	data, err := json.Marshal(concert)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, concertKey(concert.ID), data, ttl).Err()
}

func (r *RedisConcertCache) InvalidateConcert(ctx context.Context, concertID int64) error {
	return r.client.Del(ctx, concertKey(concertID)).Err()
}

// Concert list caching
func (r *RedisConcertCache) GetConcertList(ctx context.Context, listKey string) ([]model.Concert, error) {
	data, err := r.client.Get(ctx, concertListKey(listKey)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // Cache miss
		}
		return nil, err
	}

	concerts := make([]model.Concert, 0)
	if err := json.Unmarshal(data, &concerts); err != nil {
		return nil, err
	}
	return concerts, nil
}

func (r *RedisConcertCache) SetConcertList(ctx context.Context, listKey string, concerts []model.Concert, ttl time.Duration) error {
	if concerts == nil {
		concerts = []model.Concert{}
	}
	data, err := json.Marshal(concerts)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, concertListKey(listKey), data, ttl).Err()
}

// InvalidateConcertLists drops every cached list. Any mutation can change
// the membership of any list, so lists are never invalidated selectively.
func (r *RedisConcertCache) InvalidateConcertLists(ctx context.Context) error {
	var keys []string
	iter := r.client.Scan(ctx, 0, listKeyPattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}

	if len(keys) > 0 {
		return r.client.Del(ctx, keys...).Err()
	}
	return nil
}

// Health check
func (r *RedisConcertCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisConcertCache) Close() error {
	return r.client.Close()
}
