package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/bigkaa/goartstore/cloud-drive/internal/domain/apperr"
	"github.com/bigkaa/goartstore/cloud-drive/internal/domain/model"
)

// Creator создаёт запись метаданных идемпотентно по fileId.
type Creator interface {
	Create(ctx context.Context, rec *model.FileMetadata) (bool, error)
}

// EventHandler обрабатывает UploadEvent из очереди file_metadata_queue.
// Ошибка обработки приводит к nack без повторной постановки в очередь.
type EventHandler struct {
	creator Creator
	logger  *slog.Logger
}

// NewEventHandler создаёт обработчик событий загрузки.
func NewEventHandler(creator Creator, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		creator: creator,
		logger:  logger.With(slog.String("component", "upload_consumer")),
	}
}

// Handle декодирует событие и создаёт запись. Повтор события — no-op.
func (h *EventHandler) Handle(ctx context.Context, body []byte) error {
	var ev model.UploadEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return apperr.Validation("некорректное сообщение: %v", err)
	}
	if ev.FileID == uuid.Nil || ev.UserID == uuid.Nil {
		return apperr.Validation("в событии нет fileId или userId")
	}
	if ev.FileName == "" || ev.StoragePath == "" {
		return apperr.Validation("в событии %s нет fileName или storagePath", ev.FileID)
	}
	if ev.FileSize < 0 {
		return apperr.Validation("отрицательный размер файла в событии %s", ev.FileID)
	}

	created, err := h.creator.Create(ctx, ev.ToMetadata())
	if err != nil {
		return fmt.Errorf("создание метаданных %s: %w", ev.FileID, err)
	}

	h.logger.Info("Событие загрузки обработано",
		slog.String("file_id", ev.FileID.String()),
		slog.String("user_id", ev.UserID.String()),
		slog.Bool("created", created),
	)
	return nil
}
