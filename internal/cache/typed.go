package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// envelope — формат хранимого значения: версия схемы + данные.
type envelope struct {
	V int             `json:"v"`
	D json.RawMessage `json:"d"`
}

// Typed связывает пространство ключей с Go-типом значения.
type Typed[T any] struct {
	store *Store
	ns    Namespace
}

// NewTyped создаёт типизированный доступ к пространству ключей.
func NewTyped[T any](store *Store, ns Namespace) *Typed[T] {
	return &Typed[T]{store: store, ns: ns}
}

// Key возвращает полный ключ для id.
func (t *Typed[T]) Key(id string) string {
	return t.ns.Key(id)
}

// Get читает значение. Повреждённое значение или значение другой версии
// схемы удаляется и считается промахом.
func (t *Typed[T]) Get(ctx context.Context, id string) (T, bool) {
	var zero T
	key := t.ns.Key(id)

	raw, ok := t.store.Get(ctx, key)
	if !ok {
		return zero, false
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.evict(ctx, key, "повреждённый конверт", err)
		return zero, false
	}
	if env.V != t.ns.Version {
		t.store.logger.Warn("Версия схемы значения не совпадает, ключ удалён",
			slog.String("key", logKey(key)),
			slog.Int("stored", env.V),
			slog.Int("expected", t.ns.Version),
		)
		t.store.Remove(ctx, key)
		return zero, false
	}

	var v T
	if err := json.Unmarshal(env.D, &v); err != nil {
		t.evict(ctx, key, "ошибка десериализации", err)
		return zero, false
	}
	return v, true
}

// Set записывает значение с TTL пространства.
func (t *Typed[T]) Set(ctx context.Context, id string, v T) {
	t.SetTTL(ctx, id, v, t.ns.TTL)
}

// SetTTL записывает значение с явным TTL.
func (t *Typed[T]) SetTTL(ctx context.Context, id string, v T, ttl time.Duration) {
	key := t.ns.Key(id)

	data, err := json.Marshal(v)
	if err != nil {
		t.store.logger.Error("Ошибка сериализации значения кэша",
			slog.String("key", logKey(key)),
			slog.String("error", err.Error()),
		)
		return
	}
	raw, err := json.Marshal(envelope{V: t.ns.Version, D: data})
	if err != nil {
		return
	}
	t.store.Set(ctx, key, raw, ttl)
}

// Remove удаляет значение.
func (t *Typed[T]) Remove(ctx context.Context, id string) {
	t.store.Remove(ctx, t.ns.Key(id))
}

func (t *Typed[T]) evict(ctx context.Context, key, reason string, err error) {
	t.store.logger.Warn("Некорректное значение в кэше, ключ удалён",
		slog.String("key", logKey(key)),
		slog.String("reason", reason),
		slog.String("error", err.Error()),
	)
	t.store.Remove(ctx, key)
}
