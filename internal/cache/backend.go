package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"

	"github.com/bigkaa/goartstore/cloud-drive/internal/config"
)

// ErrMiss — ключ отсутствует в backend-е.
var ErrMiss = errors.New("cache: ключ не найден")

// Backend — хранилище байтовых значений с TTL.
// Ошибки backend-а поднимаются только до Store, дальше не идут.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
	Ping(ctx context.Context) error
	Close() error
}

// --- Redis ---

// Redis — backend поверх go-redis. Общий для всех инстансов сервиса,
// поэтому инвалидация видна сразу во всех процессах.
type Redis struct {
	client *redis.Client
}

// NewRedis создаёт backend по URL (redis://[:password@]host:port/db).
func NewRedis(redisURL string) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("некорректный URL Redis: %w", err)
	}
	return &Redis{client: redis.NewClient(opts)}, nil
}

// NewRedisFromClient оборачивает готовый клиент.
func NewRedisFromClient(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// Get возвращает значение или ErrMiss.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	return val, err
}

// Set записывает значение с TTL.
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

// Delete удаляет ключи одной командой DEL.
func (r *Redis) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}

// Exists проверяет наличие ключа.
func (r *Redis) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Ping проверяет доступность Redis.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close закрывает клиент.
func (r *Redis) Close() error {
	return r.client.Close()
}

// --- In-process LRU ---

// localEntry — значение с собственным сроком жизни.
type localEntry struct {
	value     []byte
	expiresAt time.Time
}

// Local — in-process backend на expirable LRU. Подходит для одного
// инстанса: инвалидация не видна другим процессам.
// LRU удаляет записи не позже maxTTL, точный TTL каждой записи
// проверяется при чтении.
type Local struct {
	lru *expirable.LRU[string, localEntry]
	now func() time.Time
}

// NewLocal создаёт in-process backend.
func NewLocal(maxSize int, maxTTL time.Duration) *Local {
	return &Local{
		lru: expirable.NewLRU[string, localEntry](maxSize, nil, maxTTL),
		now: time.Now,
	}
}

// Get возвращает значение или ErrMiss.
func (l *Local) Get(_ context.Context, key string) ([]byte, error) {
	e, ok := l.lru.Get(key)
	if !ok {
		return nil, ErrMiss
	}
	if !e.expiresAt.IsZero() && !l.now().Before(e.expiresAt) {
		l.lru.Remove(key)
		return nil, ErrMiss
	}
	return e.value, nil
}

// Set записывает значение с TTL (0 — без собственного срока, только maxTTL).
func (l *Local) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := localEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = l.now().Add(ttl)
	}
	l.lru.Add(key, e)
	return nil
}

// Delete удаляет ключи.
func (l *Local) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		l.lru.Remove(k)
	}
	return nil
}

// Exists проверяет наличие неистёкшего ключа.
func (l *Local) Exists(ctx context.Context, key string) (bool, error) {
	_, err := l.Get(ctx, key)
	if errors.Is(err, ErrMiss) {
		return false, nil
	}
	return err == nil, err
}

// Ping всегда успешен.
func (l *Local) Ping(context.Context) error { return nil }

// Close очищает кэш.
func (l *Local) Close() error {
	l.lru.Purge()
	return nil
}

// Open создаёт backend по конфигурации сервиса.
func Open(cfg config.CacheConfig) (Backend, error) {
	switch cfg.Backend {
	case config.CacheBackendMemory:
		return NewLocal(cfg.LocalSize, MaxTTL), nil
	case config.CacheBackendRedis:
		return NewRedis(cfg.RedisURL)
	default:
		return nil, fmt.Errorf("неизвестный backend кэша %q", cfg.Backend)
	}
}
