// main.go — точка входа Identity Service.
// Пользователи, выпуск токенов, TokenAuthority и удалённые проверки токенов.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/goartstore/cloud-drive/internal/api/handlers"
	"github.com/bigkaa/goartstore/cloud-drive/internal/api/middleware"
	"github.com/bigkaa/goartstore/cloud-drive/internal/cache"
	"github.com/bigkaa/goartstore/cloud-drive/internal/config"
	"github.com/bigkaa/goartstore/cloud-drive/internal/database"
	"github.com/bigkaa/goartstore/cloud-drive/internal/identity"
	"github.com/bigkaa/goartstore/cloud-drive/internal/monitoring"
	"github.com/bigkaa/goartstore/cloud-drive/internal/repository"
	"github.com/bigkaa/goartstore/cloud-drive/internal/server"
)

const serviceName = "identity-service"

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.LoadIdentity()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	// 2. Настройка логгера
	logger := config.SetupLogger(cfg.Server)
	logger.Info("Identity Service запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Server.Port),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Миграции и подключение к PostgreSQL
	if err := database.Migrate(cfg.DB, database.SchemaIdentity, logger); err != nil {
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

	// 4. Кэш (fail-open: недоступный Redis не мешает старту)
	backend, err := cache.Open(cfg.Cache)
	if err != nil {
		logger.Error("Ошибка настройки кэша", slog.String("error", err.Error()))
		os.Exit(1)
	}
	store := cache.NewStore(backend, cfg.Cache.OpTimeout, logger)
	defer store.Close()

	// 5. Ключ подписи, выпуск и проверка токенов
	key, err := identity.LoadOrGenerateKey(cfg.JWTPrivateKeyPath, logger)
	if err != nil {
		logger.Error("Ошибка загрузки ключа подписи", slog.String("error", err.Error()))
		os.Exit(1)
	}
	issuer, err := identity.NewTokenIssuer(ctx, key, cfg.JWTKeyID, cfg.JWTIssuer, cfg.JWTTTL)
	if err != nil {
		logger.Error("Ошибка инициализации выпуска токенов", slog.String("error", err.Error()))
		os.Exit(1)
	}
	verifier, err := identity.NewVerifier(issuer.Storage(), cfg.JWTIssuer, cfg.JWTLeeway)
	if err != nil {
		logger.Error("Ошибка инициализации проверки токенов", slog.String("error", err.Error()))
		os.Exit(1)
	}
	authority := identity.NewTokenAuthority(verifier, store, logger)

	// 6. Репозиторий и сервис пользователей
	users := repository.NewUserRepository(pool)
	authSvc := identity.NewAuthService(users, issuer, store, cfg.BcryptCost, logger)

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
		handlers.Check{Name: "cache", Checker: store},
	)
	identityHandler := handlers.NewIdentityHandler(authSvc, authority, issuer, logger)

	// 9. HTTP-сервер (блокирующий вызов с graceful shutdown)
	srv := server.New(cfg.Server, logger, func(r chi.Router) {
		health.Routes(r)
		identityHandler.Routes(r)
	},
		middleware.Metrics(serviceName),
		middleware.RequestLogger(logger),
	)
	if err := srv.Run(ctx); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 10. Остановка фоновых задач
	if monitor != nil {
		monitor.Stop()
	}

	logger.Info("Identity Service остановлен")
}
