// main.go — точка входа API Gateway.
// Проверка bearer-токенов через Identity Service и ConsistencyCoordinator
// для удаления и скачивания файлов.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/goartstore/cloud-drive/internal/api/handlers"
	"github.com/bigkaa/goartstore/cloud-drive/internal/api/middleware"
	"github.com/bigkaa/goartstore/cloud-drive/internal/client"
	"github.com/bigkaa/goartstore/cloud-drive/internal/config"
	"github.com/bigkaa/goartstore/cloud-drive/internal/coordinator"
	"github.com/bigkaa/goartstore/cloud-drive/internal/monitoring"
	"github.com/bigkaa/goartstore/cloud-drive/internal/server"
)

const serviceName = "gateway"

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.LoadGateway()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	// 2. Настройка логгера
	logger := config.SetupLogger(cfg.Server)
	logger.Info("API Gateway запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Server.Port),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. HTTP-клиенты сервисов
	httpClient, err := client.NewHTTPClient(cfg.CACertPath, cfg.ClientTimeout, logger)
	if err != nil {
		logger.Error("Ошибка создания HTTP-клиента", slog.String("error", err.Error()))
		os.Exit(1)
	}
	// Скачивание ограничено контекстом запроса, а не общим таймаутом клиента
	streamClient, err := client.NewHTTPClient(cfg.CACertPath, 0, logger)
	if err != nil {
		logger.Error("Ошибка создания HTTP-клиента", slog.String("error", err.Error()))
		os.Exit(1)
	}

	identityClient := client.NewIdentity(httpClient, cfg.IdentityURL, logger)
	metadataClient := client.NewMetadata(httpClient, cfg.MetadataURL, logger)
	storageClient := client.NewStorage(streamClient, cfg.StorageURL, logger)

	// 4. ConsistencyCoordinator
	coord := coordinator.New(metadataClient, storageClient, logger)

	// 5. topologymetrics — мониторинг сервисов
	monitor := monitoring.StartOrWarn(ctx, monitoring.Options{
		ServiceID:     serviceName,
		Group:         cfg.Dephealth.Group,
		CheckInterval: cfg.Dephealth.CheckInterval,
		HTTP: []monitoring.HTTPDependency{
			{Name: "identity-service", URL: cfg.IdentityURL, Critical: true},
			{Name: "metadata-service", URL: cfg.MetadataURL, Critical: true},
			{Name: "storage-service", URL: cfg.StorageURL, Critical: false},
		},
	}, logger)

	// 6. Обработчики
	var checks []handlers.Check
	if monitor != nil {
		checks = append(checks, handlers.Check{Name: "dependencies", Checker: monitor})
	}
	health := handlers.NewHealthHandler(serviceName, checks...)
	gatewayHandler := handlers.NewGatewayHandler(coord, metadataClient, logger)

	// 7. HTTP-сервер: bearer-проверка всех путей, кроме health и metrics
	srv := server.New(cfg.Server, logger, func(r chi.Router) {
		health.Routes(r)
		gatewayHandler.Routes(r)
	},
		middleware.Metrics(serviceName),
		middleware.RequestLogger(logger),
		middleware.BearerAuth(identityClient, logger, "/health", "/metrics"),
	)
	if err := srv.Run(ctx); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 8. Остановка фоновых задач
	if monitor != nil {
		monitor.Stop()
	}

	logger.Info("API Gateway остановлен")
}
