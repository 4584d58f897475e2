// main.go — точка входа Storage Service.
// Хранение blob-ов на диске и публикация UploadEvent после успешной записи.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/goartstore/cloud-drive/internal/api/handlers"
	"github.com/bigkaa/goartstore/cloud-drive/internal/api/middleware"
	"github.com/bigkaa/goartstore/cloud-drive/internal/config"
	"github.com/bigkaa/goartstore/cloud-drive/internal/relay"
	"github.com/bigkaa/goartstore/cloud-drive/internal/server"
	"github.com/bigkaa/goartstore/cloud-drive/internal/storage"
	"github.com/bigkaa/goartstore/cloud-drive/internal/storage/filestore"
)

const serviceName = "storage-service"

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.LoadStorage()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	// 2. Настройка логгера
	logger := config.SetupLogger(cfg.Server)
	logger.Info("Storage Service запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Server.Port),
		slog.String("data_dir", cfg.DataDir),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Файловое хранилище
	store, err := filestore.New(cfg.DataDir)
	if err != nil {
		logger.Error("Ошибка инициализации хранилища", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. RabbitMQ и публикация UploadEvent
	conn, err := relay.Dial(ctx, cfg.Broker, serviceName, logger)
	if err != nil {
		logger.Error("Ошибка подключения к RabbitMQ", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer conn.Close()

	publisher := relay.NewPublisher(conn, cfg.Broker, logger)
	defer publisher.Close()

	// 5. Сервис хранения
	svc := storage.NewService(store, publisher, cfg.MaxFileSize, cfg.AllowedExtensions, logger)

	// 6. Обработчики
	health := handlers.NewHealthHandler(serviceName,
		handlers.Check{Name: "storage", Checker: store},
		handlers.Check{Name: "rabbitmq", Checker: conn},
	)
	storageHandler := handlers.NewStorageHandler(svc, cfg.MaxFileSize, logger)

	// 7. HTTP-сервер (блокирующий вызов с graceful shutdown)
	srv := server.New(cfg.Server, logger, func(r chi.Router) {
		health.Routes(r)
		storageHandler.Routes(r)
	},
		middleware.Metrics(serviceName),
		middleware.RequestLogger(logger),
	)
	if err := srv.Run(ctx); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Storage Service остановлен")
}
