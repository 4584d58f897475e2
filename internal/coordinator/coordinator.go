// Пакет coordinator — согласованность метаданных и blob-ов на стороне gateway.
//
// Удаление: удаление метаданных авторитетно и синхронно, удаление blob-а —
// компенсирующий вызов без гарантии. Blob может пережить метаданные,
// метаданные не переживают удаление, о котором сообщено клиенту.
// Скачивание: сначала проверка владения, затем поток из Storage.
// Сразу после загрузки файл может быть недоступен (NotFound/Forbidden),
// пока Metadata Service не обработал событие загрузки.
package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/cloud-drive/internal/domain/apperr"
)

// compensationTimeout — время на удаление blob-а после удаления метаданных.
const compensationTimeout = 10 * time.Second

var (
	deletesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cd_coordinator_deletes_total",
		Help: "Удаления файлов через gateway по результату.",
	}, []string{"result"})

	compensationFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cd_coordinator_compensation_failures_total",
		Help: "Неудачные удаления blob-ов после удаления метаданных (осиротевшие blob-ы).",
	})
)

// Metadata — вызовы Metadata Service.
type Metadata interface {
	ValidateOwnership(ctx context.Context, fileID, userID uuid.UUID) (bool, error)
	Delete(ctx context.Context, fileID, userID uuid.UUID) error
}

// Storage — вызовы Storage Service.
type Storage interface {
	Delete(ctx context.Context, fileID uuid.UUID) error
	Download(ctx context.Context, fileID uuid.UUID) (*http.Response, error)
}

// Coordinator — последовательности вызовов Metadata и Storage.
type Coordinator struct {
	metadata Metadata
	storage  Storage
	logger   *slog.Logger
}

// New создаёт координатор.
func New(metadata Metadata, storage Storage, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		metadata: metadata,
		storage:  storage,
		logger:   logger.With(slog.String("component", "consistency_coordinator")),
	}
}

// Delete удаляет метаданные (ошибки NotFound/Forbidden возвращаются как есть),
// затем пытается удалить blob. Ошибка удаления blob-а только логируется.
func (c *Coordinator) Delete(ctx context.Context, fileID, userID uuid.UUID) error {
	if err := c.metadata.Delete(ctx, fileID, userID); err != nil {
		deletesTotal.WithLabelValues(resultOf(err)).Inc()
		return err
	}

	// клиент уже может отключиться, blob удаляем независимо от его контекста
	compCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	err := c.storage.Delete(compCtx, fileID)
	switch {
	case err == nil:
	case errors.Is(err, apperr.ErrNotFound):
		c.logger.Info("Blob уже отсутствует в хранилище",
			slog.String("file_id", fileID.String()),
		)
	default:
		compensationFailuresTotal.Inc()
		c.logger.Warn("Метаданные удалены, но blob удалить не удалось",
			slog.String("file_id", fileID.String()),
			slog.String("user_id", userID.String()),
			slog.String("error", err.Error()),
		)
	}

	deletesTotal.WithLabelValues("ok").Inc()
	c.logger.Info("Файл удалён",
		slog.String("file_id", fileID.String()),
		slog.String("user_id", userID.String()),
	)
	return nil
}

// Authorize проверяет владение перед скачиванием. Forbidden, если файл
// не принадлежит пользователю или его метаданные ещё не видны.
func (c *Coordinator) Authorize(ctx context.Context, fileID, userID uuid.UUID) error {
	belongs, err := c.metadata.ValidateOwnership(ctx, fileID, userID)
	if err != nil {
		return err
	}
	if !belongs {
		c.logger.Warn("Доступ к файлу запрещён",
			slog.String("file_id", fileID.String()),
			slog.String("user_id", userID.String()),
		)
		return apperr.Forbidden("файл %s недоступен пользователю", fileID)
	}
	return nil
}

// Download авторизует скачивание и открывает поток из Storage.
// Вызывающий код закрывает resp.Body.
func (c *Coordinator) Download(ctx context.Context, fileID, userID uuid.UUID) (*http.Response, error) {
	if err := c.Authorize(ctx, fileID, userID); err != nil {
		return nil, err
	}

	resp, err := c.storage.Download(ctx, fileID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			c.logger.Error("Метаданные есть, а blob отсутствует",
				slog.String("file_id", fileID.String()),
			)
		}
		return nil, err
	}

	c.logger.Info("Скачивание авторизовано",
		slog.String("file_id", fileID.String()),
		slog.String("user_id", userID.String()),
	)
	return resp, nil
}

func resultOf(err error) string {
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		return "not_found"
	case apperr.KindForbidden:
		return "forbidden"
	case apperr.KindUnavailable:
		return "unavailable"
	}
	return "error"
}
