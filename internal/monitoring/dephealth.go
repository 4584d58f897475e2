// Пакет monitoring — мониторинг зависимостей сервиса через topologymetrics SDK.
//
// Сервисы мониторят:
//   - PostgreSQL — SQL checker через существующий pgxpool (connection pool mode, critical)
//   - соседние сервисы — HTTP checker к /health/ready (gateway)
//
// Метрики доступны на /metrics вместе с остальными Prometheus-метриками:
//   - app_dependency_health — состояние зависимости (1 = ok, 0 = fail)
//   - app_dependency_latency_seconds — задержка проверки
package monitoring

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/httpcheck" // HTTP checker для сервисов
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/pgcheck"     // PostgreSQL checker (pool mode)
	"github.com/prometheus/client_golang/prometheus"
)

// ErrNoDependencies — мониторить нечего.
var ErrNoDependencies = errors.New("monitoring: не задано ни одной зависимости")

// HTTPDependency — соседний сервис, проверяемый по HTTP.
type HTTPDependency struct {
	// Name — имя зависимости в метриках (e.g. "identity-service")
	Name string
	// URL — базовый URL сервиса
	URL string
	// HealthPath — путь проверки, по умолчанию /health/ready
	HealthPath string
	// Critical — отказ зависимости делает сервис неработоспособным
	Critical bool
}

// Options — параметры мониторинга.
type Options struct {
	// ServiceID — имя вершины графа текущего сервиса
	ServiceID string
	// Group — имя группы в метриках
	Group string
	// CheckInterval — интервал проверки зависимостей
	CheckInterval time.Duration
	// DB — *sql.DB из pgxpool через stdlib.OpenDBFromPool(); nil — без PostgreSQL
	DB *sql.DB
	// DBURL — URL PostgreSQL для меток (не для подключения)
	DBURL string
	// HTTP — соседние сервисы
	HTTP []HTTPDependency
	// Registerer — Prometheus registerer; nil — глобальный
	Registerer prometheus.Registerer
}

// Monitor — мониторинг зависимостей через topologymetrics.
type Monitor struct {
	dh     *dephealth.DepHealth
	logger *slog.Logger
}

// New создаёт мониторинг зависимостей.
func New(opts Options, logger *slog.Logger) (*Monitor, error) {
	if opts.DB == nil && len(opts.HTTP) == 0 {
		return nil, ErrNoDependencies
	}

	dhOpts := []dephealth.Option{dephealth.WithLogger(logger)}

	if opts.DB != nil {
		// pgcheck.New + AddDependency напрямую, без contrib/sqldb
		dhOpts = append(dhOpts, dephealth.AddDependency("postgresql", dephealth.TypePostgres,
			pgcheck.New(pgcheck.WithDB(opts.DB)),
			dephealth.FromURL(opts.DBURL),
			dephealth.CheckInterval(opts.CheckInterval),
			dephealth.Critical(true),
		))
	}

	for _, dep := range opts.HTTP {
		path := dep.HealthPath
		if path == "" {
			path = "/health/ready"
		}
		dhOpts = append(dhOpts, dephealth.HTTP(dep.Name,
			dephealth.FromURL(dep.URL),
			dephealth.WithHTTPHealthPath(path),
			dephealth.CheckInterval(opts.CheckInterval),
			dephealth.Critical(dep.Critical),
		))
	}

	if opts.Registerer != nil {
		dhOpts = append(dhOpts, dephealth.WithRegisterer(opts.Registerer))
	}

	dh, err := dephealth.New(opts.ServiceID, opts.Group, dhOpts...)
	if err != nil {
		return nil, err
	}

	return &Monitor{
		dh:     dh,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

// Start запускает периодическую проверку зависимостей.
func (m *Monitor) Start(ctx context.Context) error {
	m.logger.Info("Мониторинг зависимостей запущен")
	return m.dh.Start(ctx)
}

// Stop останавливает мониторинг зависимостей.
func (m *Monitor) Stop() {
	m.dh.Stop()
	m.logger.Info("Мониторинг зависимостей остановлен")
}

// Health возвращает текущее состояние зависимостей.
// Ключ — имя зависимости, значение — true если ok.
func (m *Monitor) Health() map[string]bool {
	return m.dh.Health()
}

// CheckReady — сводка по зависимостям для /health/ready.
// Недоступная зависимость даёт degraded: сервис отвечает сам, но часть запросов вернёт 503.
func (m *Monitor) CheckReady() (status, message string) {
	var failed []string
	for name, ok := range m.Health() {
		if !ok {
			failed = append(failed, name)
		}
	}
	if len(failed) == 0 {
		return "ok", "зависимости доступны"
	}
	sort.Strings(failed)
	return "degraded", "недоступны: " + strings.Join(failed, ", ")
}

// StartOrWarn создаёт и запускает мониторинг. Ошибки не фатальны:
// сервис работает и без topologymetrics. Возвращает nil, если мониторинг не запущен.
func StartOrWarn(ctx context.Context, opts Options, logger *slog.Logger) *Monitor {
	m, err := New(opts, logger)
	if err != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", err.Error()),
		)
		return nil
	}
	if err := m.Start(ctx); err != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", err.Error()))
		return nil
	}
	logger.Info("topologymetrics запущен",
		slog.String("group", opts.Group),
		slog.String("check_interval", opts.CheckInterval.String()),
	)
	return m
}
