package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"layanan/internal/config"
	"layanan/internal/models"

	"github.com/redis/go-redis/v9"
)

const (
	timerKeyPrefix      = "service_timer:"
	lastLocationKey     = "device_state:last_location"
	sessionIdentityKey  = "device_state:session"
	defaultTimerRetains = 24 * time.Hour
)

// NewRedisClient builds a redis client from config.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func timerKey(bookingID int64) string {
	return fmt.Sprintf("%s%d", timerKeyPrefix, bookingID)
}

// RedisTimerStore keeps service timers as JSON under service_timer:{booking_id}.
// Records expire a retention window after the countdown would have ended.
type RedisTimerStore struct {
	client    *redis.Client
	retention time.Duration
}

func NewRedisTimerStore(client *redis.Client) *RedisTimerStore {
	return &RedisTimerStore{client: client, retention: defaultTimerRetains}
}

func (r *RedisTimerStore) GetTimer(ctx context.Context, bookingID int64) (*models.ServiceTimerState, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, timerKey(bookingID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get timer from redis: %w", err)
	}

	var state models.ServiceTimerState
	if err := json.Unmarshal([]byte(val), &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal timer: %w", err)
	}
	return &state, nil
}

func (r *RedisTimerStore) SaveTimer(ctx context.Context, state *models.ServiceTimerState) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if state == nil {
		return fmt.Errorf("timer state is nil")
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal timer: %w", err)
	}
	ttl := time.Duration(state.TotalSeconds)*time.Second + r.retention
	if err := r.client.Set(ctx, timerKey(state.BookingID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set timer in redis: %w", err)
	}
	return nil
}

func (r *RedisTimerStore) DeleteTimer(ctx context.Context, bookingID int64) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.Del(ctx, timerKey(bookingID)).Err(); err != nil {
		return fmt.Errorf("failed to delete timer from redis: %w", err)
	}
	return nil
}

// RedisStateStore keeps device-scoped blobs without expiry.
type RedisStateStore struct {
	client *redis.Client
}

func NewRedisStateStore(client *redis.Client) *RedisStateStore {
	return &RedisStateStore{client: client}
}

func (r *RedisStateStore) GetLastLocation(ctx context.Context) (*models.LastLocation, error) {
	var loc models.LastLocation
	ok, err := r.get(ctx, lastLocationKey, &loc)
	if err != nil || !ok {
		return nil, err
	}
	return &loc, nil
}

func (r *RedisStateStore) SaveLastLocation(ctx context.Context, loc models.LastLocation) error {
	return r.set(ctx, lastLocationKey, loc)
}

func (r *RedisStateStore) GetSession(ctx context.Context) (*models.SessionIdentity, error) {
	var s models.SessionIdentity
	ok, err := r.get(ctx, sessionIdentityKey, &s)
	if err != nil || !ok {
		return nil, err
	}
	return &s, nil
}

func (r *RedisStateStore) SaveSession(ctx context.Context, session models.SessionIdentity) error {
	return r.set(ctx, sessionIdentityKey, session)
}

func (r *RedisStateStore) get(ctx context.Context, key string, out any) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get %s from redis: %w", key, err)
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return true, nil
}

func (r *RedisStateStore) set(ctx context.Context, key string, val any) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	data, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	if err := r.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set %s in redis: %w", key, err)
	}
	return nil
}

// Ping checks the redis connection.
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
