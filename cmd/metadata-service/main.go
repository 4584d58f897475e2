// main.go — точка входа Metadata Service.
// OwnershipGuard, HTTP-граница метаданных и потребитель UploadEvent.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/goartstore/cloud-drive/internal/api/handlers"
	"github.com/bigkaa/goartstore/cloud-drive/internal/api/middleware"
	"github.com/bigkaa/goartstore/cloud-drive/internal/cache"
	"github.com/bigkaa/goartstore/cloud-drive/internal/config"
	"github.com/bigkaa/goartstore/cloud-drive/internal/database"
	"github.com/bigkaa/goartstore/cloud-drive/internal/metadata"
	"github.com/bigkaa/goartstore/cloud-drive/internal/monitoring"
	"github.com/bigkaa/goartstore/cloud-drive/internal/relay"
	"github.com/bigkaa/goartstore/cloud-drive/internal/repository"
	"github.com/bigkaa/goartstore/cloud-drive/internal/server"
)

const serviceName = "metadata-service"

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.LoadMetadata()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	// 2. Настройка логгера
	logger := config.SetupLogger(cfg.Server)
	logger.Info("Metadata Service запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Server.Port),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Миграции и подключение к PostgreSQL
	if err := database.Migrate(cfg.DB, database.SchemaMetadata, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}
	pool, err := database.Connect(ctx, cfg.DB, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 3.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode)
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 4. Кэш
	backend, err := cache.Open(cfg.Cache)
	if err != nil {
		logger.Error("Ошибка настройки кэша", slog.String("error", err.Error()))
		os.Exit(1)
	}
	store := cache.NewStore(backend, cfg.Cache.OpTimeout, logger)
	defer store.Close()

	// 5. OwnershipGuard
	files := repository.NewFileMetadataRepository(pool)
	guard := metadata.NewGuard(files, store, logger)

	// 6. RabbitMQ и потребитель UploadEvent
	conn, err := relay.Dial(ctx, cfg.Broker, serviceName, logger)
	if err != nil {
		logger.Error("Ошибка подключения к RabbitMQ", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer conn.Close()

	consumer := relay.NewConsumer(conn, cfg.Broker, logger)
	events := metadata.NewEventHandler(guard, logger)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := consumer.Run(ctx, events.Handle); err != nil && !errors.Is(err, relay.ErrClosed) {
			logger.Error("Потребитель UploadEvent остановлен с ошибкой", slog.String("error", err.Error()))
		}
	}()

	// 7. topologymetrics — мониторинг PostgreSQL
	monitor := monitoring.StartOrWarn(ctx, monitoring.Options{
		ServiceID:     serviceName,
		Group:         cfg.Dephealth.Group,
		CheckInterval: cfg.Dephealth.CheckInterval,
		DB:            pgDB,
		DBURL:         cfg.DB.URL(),
	}, logger)

	// 8. Обработчики
	health := handlers.NewHealthHandler(serviceName,
		handlers.Check{Name: "postgresql", Checker: database.NewReadinessChecker(pool)},
		handlers.Check{Name: "rabbitmq", Checker: conn},
		handlers.Check{Name: "cache", Checker: store},
	)
	metadataHandler := handlers.NewMetadataHandler(guard, logger)

	// 9. HTTP-сервер (блокирующий вызов с graceful shutdown)
	srv := server.New(cfg.Server, logger, func(r chi.Router) {
		health.Routes(r)
		metadataHandler.Routes(r)
	},
		middleware.Metrics(serviceName),
		middleware.RequestLogger(logger),
	)
	if err := srv.Run(ctx); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 10. Остановка фоновых задач: текущее сообщение возвращается в очередь
	logger.Info("Останавливаем фоновые задачи...")
	cancel()
	wg.Wait()
	if monitor != nil {
		monitor.Stop()
	}

	logger.Info("Metadata Service остановлен")
}
