// Пакет cache — fail-open cache-aside слой для всех кэшируемых фактов
// (валидность токенов, владение и существование файлов, пользователи).
// Кэш — только оптимизация: любая ошибка backend-а логируется, считается
// в метриках и превращается в промах (Get/Exists) или no-op (Set/Remove).
package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus-метрики кэша.
var (
	cacheRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cd_cache_requests_total",
		Help: "Обращения к кэшу по пространству ключей и результату (hit, miss, error).",
	}, []string{"namespace", "result"})

	cacheErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cd_cache_backend_errors_total",
		Help: "Ошибки backend-а кэша по операции (поглощены fail-open политикой).",
	}, []string{"op"})

	cacheInvalidationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cd_cache_invalidated_keys_total",
		Help: "Количество ключей, удалённых синхронной инвалидацией.",
	})
)

// Store — fail-open обёртка над Backend.
type Store struct {
	backend Backend
	timeout time.Duration
	logger  *slog.Logger
}

// NewStore создаёт Store. opTimeout ограничивает одну операцию backend-а
// (0 — без ограничения), чтобы недоступный кэш добавлял задержку,
// но не блокировал запрос.
func NewStore(backend Backend, opTimeout time.Duration, logger *slog.Logger) *Store {
	return &Store{
		backend: backend,
		timeout: opTimeout,
		logger:  logger.With(slog.String("component", "cache")),
	}
}

// opContext ограничивает операцию таймаутом.
func (s *Store) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// Get возвращает значение по ключу. Ошибка backend-а — промах.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool) {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	ns := namespaceOf(key)
	val, err := s.backend.Get(opCtx, key)
	switch {
	case err == nil:
		cacheRequestsTotal.WithLabelValues(ns, "hit").Inc()
		s.logger.Debug("Cache hit", slog.String("key", logKey(key)))
		return val, true
	case errors.Is(err, ErrMiss):
		cacheRequestsTotal.WithLabelValues(ns, "miss").Inc()
		s.logger.Debug("Cache miss", slog.String("key", logKey(key)))
		return nil, false
	default:
		cacheRequestsTotal.WithLabelValues(ns, "error").Inc()
		cacheErrorsTotal.WithLabelValues("get").Inc()
		s.logger.Error("Ошибка чтения из кэша, используется источник истины",
			slog.String("key", logKey(key)),
			slog.String("error", err.Error()),
		)
		return nil, false
	}
}

// Set записывает значение. Ошибка backend-а логируется и игнорируется.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	if err := s.backend.Set(opCtx, key, value, ttl); err != nil {
		cacheErrorsTotal.WithLabelValues("set").Inc()
		s.logger.Error("Ошибка записи в кэш",
			slog.String("key", logKey(key)),
			slog.String("error", err.Error()),
		)
		return
	}
	s.logger.Debug("Cache set", slog.String("key", logKey(key)), slog.Duration("ttl", ttl))
}

// Remove удаляет ключи одним пакетом. Ошибка backend-а логируется и игнорируется.
func (s *Store) Remove(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	if err := s.backend.Delete(opCtx, keys...); err != nil {
		cacheErrorsTotal.WithLabelValues("delete").Inc()
		s.logger.Error("Ошибка удаления ключей из кэша",
			slog.Any("keys", logKeys(keys)),
			slog.String("error", err.Error()),
		)
		return
	}
	cacheInvalidationsTotal.Add(float64(len(keys)))
	s.logger.Debug("Ключи удалены из кэша", slog.Any("keys", logKeys(keys)))
}

// Exists проверяет наличие ключа. Ошибка backend-а — false.
func (s *Store) Exists(ctx context.Context, key string) bool {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	ok, err := s.backend.Exists(opCtx, key)
	if err != nil {
		cacheErrorsTotal.WithLabelValues("exists").Inc()
		s.logger.Error("Ошибка проверки ключа в кэше",
			slog.String("key", logKey(key)),
			slog.String("error", err.Error()),
		)
		return false
	}
	return ok
}

// CheckReady — проверка готовности для health endpoint.
// Недоступный кэш не делает сервис неготовым: статус degraded.
func (s *Store) CheckReady() (status, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := s.backend.Ping(ctx); err != nil {
		return "degraded", "кэш недоступен, запросы идут в источник истины: " + err.Error()
	}
	return "ok", "кэш доступен"
}

// Close закрывает backend.
func (s *Store) Close() error {
	return s.backend.Close()
}
