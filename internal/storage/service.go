// Пакет storage — сервис Storage: загрузка blob-ов с публикацией
// UploadEvent, скачивание, удаление и атрибуты файлов.
package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/cloud-drive/internal/domain/apperr"
	"github.com/bigkaa/goartstore/cloud-drive/internal/domain/model"
	"github.com/bigkaa/goartstore/cloud-drive/internal/storage/attr"
	"github.com/bigkaa/goartstore/cloud-drive/internal/storage/filestore"
)

var operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "cd_storage_operations_total",
	Help: "Операции Storage Service по типу и результату.",
}, []string{"operation", "result"})

// EventPublisher публикует событие загрузки.
type EventPublisher interface {
	Publish(ctx context.Context, message any) error
}

// UploadParams — параметры загрузки.
type UploadParams struct {
	// Reader — поток содержимого файла
	Reader io.Reader
	// OriginalName — имя файла у клиента
	OriginalName string
	// ContentType — MIME-тип из multipart part
	ContentType string
	// Size — заявленный размер (0, если неизвестен)
	Size int64
	// UserID — владелец (заголовок userId)
	UserID uuid.UUID
}

// Download — открытый blob для отдачи клиенту.
type Download struct {
	File    *model.StoredFile
	Content io.ReadSeekCloser
}

// Service — бизнес-логика Storage Service.
type Service struct {
	store             *filestore.FileStore
	publisher         EventPublisher
	maxFileSize       int64
	allowedExtensions []string
	logger            *slog.Logger
	now               func() time.Time
}

// NewService создаёт сервис хранения.
func NewService(
	store *filestore.FileStore,
	publisher EventPublisher,
	maxFileSize int64,
	allowedExtensions []string,
	logger *slog.Logger,
) *Service {
	return &Service{
		store:             store,
		publisher:         publisher,
		maxFileSize:       maxFileSize,
		allowedExtensions: allowedExtensions,
		logger:            logger.With(slog.String("component", "storage_service")),
		now:               time.Now,
	}
}

// Upload сохраняет blob, записывает атрибуты и публикует UploadEvent.
// Событие публикуется ровно один раз и только после успешной записи.
// Если брокер не подтвердил событие, возвращается Unavailable, а blob остаётся
// на диске: событие могло дойти до брокера, и тогда метаданные появятся.
// Blob без метаданных допустим, метаданные без blob-а нет.
func (s *Service) Upload(ctx context.Context, p UploadParams) (*model.StoredFile, error) {
	if err := s.validate(p); err != nil {
		operationsTotal.WithLabelValues("upload", "rejected").Inc()
		return nil, err
	}

	fileID := uuid.New()
	ext := strings.ToLower(filepath.Ext(p.OriginalName))

	// читаем на байт больше лимита, чтобы поймать превышение без заявленного размера
	saved, err := s.store.Save(io.LimitReader(p.Reader, s.maxFileSize+1), fileID)
	if err != nil {
		operationsTotal.WithLabelValues("upload", "error").Inc()
		return nil, apperr.Internal(err, "ошибка сохранения файла")
	}

	switch {
	case saved.Size == 0:
		s.discard(fileID)
		operationsTotal.WithLabelValues("upload", "rejected").Inc()
		return nil, apperr.Validation("файл пуст")
	case saved.Size > s.maxFileSize:
		s.discard(fileID)
		operationsTotal.WithLabelValues("upload", "rejected").Inc()
		return nil, apperr.Validation("размер файла превышает максимум %d байт", s.maxFileSize)
	}

	file := &model.StoredFile{
		ID:           fileID,
		FileName:     fileID.String() + ext,
		OriginalName: p.OriginalName,
		ContentType:  contentTypeOf(p.ContentType, ext),
		Size:         saved.Size,
		Checksum:     saved.Checksum,
		UserID:       p.UserID,
		StoragePath:  saved.FullPath,
		UploadedAt:   s.now().UTC(),
	}

	if err := attr.Write(attr.PathFor(saved.FullPath), file); err != nil {
		s.discard(fileID)
		operationsTotal.WithLabelValues("upload", "error").Inc()
		return nil, apperr.Internal(err, "ошибка записи атрибутов файла")
	}

	if err := s.publisher.Publish(ctx, file.UploadEvent()); err != nil {
		operationsTotal.WithLabelValues("upload", "unconfirmed").Inc()
		s.logger.Error("Событие загрузки не подтверждено брокером, blob оставлен на диске",
			slog.String("file_id", fileID.String()),
			slog.String("storage_path", saved.FullPath),
			slog.String("error", err.Error()),
		)
		if apperr.KindOf(err) == apperr.KindUnavailable {
			return nil, err
		}
		return nil, apperr.Unavailable(err, "брокер сообщений недоступен")
	}

	operationsTotal.WithLabelValues("upload", "success").Inc()
	s.logger.Info("Файл загружен",
		slog.String("file_id", fileID.String()),
		slog.String("user_id", p.UserID.String()),
		slog.String("original_name", p.OriginalName),
		slog.Int64("size", saved.Size),
		slog.String("checksum", saved.Checksum),
	)
	return file, nil
}

// Info возвращает атрибуты файла. NotFound, если blob-а нет.
func (s *Service) Info(_ context.Context, fileID uuid.UUID) (*model.StoredFile, error) {
	if !s.store.Exists(fileID) {
		return nil, apperr.NotFound("файл %s не найден", fileID)
	}

	file, err := attr.Read(attr.PathFor(s.store.Path(fileID)))
	if err != nil {
		return nil, apperr.Internal(err, "ошибка чтения атрибутов файла")
	}
	return file, nil
}

// Download открывает blob. Вызывающий код закрывает Content.
func (s *Service) Download(ctx context.Context, fileID uuid.UUID) (*Download, error) {
	file, err := s.Info(ctx, fileID)
	if err != nil {
		return nil, err
	}

	f, err := s.store.Open(fileID)
	if err != nil {
		if errors.Is(err, filestore.ErrNotFound) {
			return nil, apperr.NotFound("файл %s не найден", fileID)
		}
		return nil, apperr.Internal(err, "ошибка открытия файла")
	}

	operationsTotal.WithLabelValues("download", "success").Inc()
	s.logger.Info("Файл отдан на скачивание",
		slog.String("file_id", fileID.String()),
		slog.String("file_name", file.FileName),
	)
	return &Download{File: file, Content: f}, nil
}

// Delete удаляет blob и его атрибуты. NotFound, если blob-а нет.
func (s *Service) Delete(_ context.Context, fileID uuid.UUID) error {
	if err := s.store.Delete(fileID); err != nil {
		if errors.Is(err, filestore.ErrNotFound) {
			operationsTotal.WithLabelValues("delete", "not_found").Inc()
			return apperr.NotFound("файл %s не найден", fileID)
		}
		operationsTotal.WithLabelValues("delete", "error").Inc()
		return apperr.Internal(err, "ошибка удаления файла")
	}

	if err := attr.Delete(attr.PathFor(s.store.Path(fileID))); err != nil {
		s.logger.Warn("Не удалось удалить attr.json",
			slog.String("file_id", fileID.String()),
			slog.String("error", err.Error()),
		)
	}

	operationsTotal.WithLabelValues("delete", "success").Inc()
	s.logger.Info("Файл удалён", slog.String("file_id", fileID.String()))
	return nil
}

// validate проверяет заявленные параметры до записи на диск.
func (s *Service) validate(p UploadParams) error {
	if p.UserID == uuid.Nil {
		return apperr.Validation("не указан пользователь")
	}
	if p.Reader == nil || p.OriginalName == "" {
		return apperr.Validation("файл пуст")
	}
	if p.Size > s.maxFileSize {
		return apperr.Validation("размер файла превышает максимум %d байт", s.maxFileSize)
	}

	ext := strings.ToLower(filepath.Ext(p.OriginalName))
	if !slices.Contains(s.allowedExtensions, ext) {
		return apperr.Validation("расширение %q не разрешено, допустимые: %s",
			ext, strings.Join(s.allowedExtensions, ", "))
	}
	return nil
}

// discard удаляет blob и атрибуты после неудачной загрузки.
func (s *Service) discard(fileID uuid.UUID) {
	path := s.store.Path(fileID)
	if err := s.store.Delete(fileID); err != nil && !errors.Is(err, filestore.ErrNotFound) {
		s.logger.Error("Не удалось удалить blob после ошибки загрузки",
			slog.String("file_id", fileID.String()),
			slog.String("error", err.Error()),
		)
	}
	if err := attr.Delete(attr.PathFor(path)); err != nil {
		s.logger.Warn("Не удалось удалить attr.json после ошибки загрузки",
			slog.String("file_id", fileID.String()),
			slog.String("error", err.Error()),
		)
	}
}

// contentTypeOf берёт MIME-тип из multipart part, иначе — по расширению.
func contentTypeOf(declared, ext string) string {
	if idx := strings.Index(declared, ";"); idx != -1 {
		declared = strings.TrimSpace(declared[:idx])
	}
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	switch ext {
	case ".pdf":
		return "application/pdf"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".txt":
		return "text/plain"
	case ".zip":
		return "application/zip"
	}
	return "application/octet-stream"
}
