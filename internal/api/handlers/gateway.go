package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bigkaa/goartstore/cloud-drive/internal/api/errors"
	"github.com/bigkaa/goartstore/cloud-drive/internal/domain/model"
)

// FileCoordinator — согласованные операции над файлом (метаданные + blob).
type FileCoordinator interface {
	Delete(ctx context.Context, fileID, userID uuid.UUID) error
	Download(ctx context.Context, fileID, userID uuid.UUID) (*http.Response, error)
}

// MetadataReader — чтение метаданных от имени пользователя.
type MetadataReader interface {
	Get(ctx context.Context, fileID, userID uuid.UUID) (*model.FileMetadata, error)
	List(ctx context.Context, userID uuid.UUID) ([]model.FileMetadata, error)
}

// proxiedHeaders — заголовки ответа Storage Service, передаваемые клиенту при скачивании.
var proxiedHeaders = []string{
	"Content-Type",
	"Content-Length",
	"Content-Disposition",
	"Content-Range",
	"Accept-Ranges",
	"ETag",
	"Last-Modified",
}

// GatewayHandler — пользовательские endpoints API Gateway.
// Пользователь берётся из контекста (BearerAuth).
type GatewayHandler struct {
	coordinator FileCoordinator
	metadata    MetadataReader
	logger      *slog.Logger
}

// NewGatewayHandler создаёт обработчик API Gateway.
func NewGatewayHandler(coordinator FileCoordinator, metadata MetadataReader, logger *slog.Logger) *GatewayHandler {
	return &GatewayHandler{
		coordinator: coordinator,
		metadata:    metadata,
		logger:      logger.With(slog.String("component", "gateway_handler")),
	}
}

// Routes регистрирует маршруты API Gateway.
func (h *GatewayHandler) Routes(r chi.Router) {
	r.Get("/api/v1/files", h.ListFiles)
	r.Get("/api/v1/files/{id}", h.GetFile)
	r.Get("/api/v1/files/{id}/download", h.DownloadFile)
	r.Delete("/api/v1/files/{id}", h.DeleteFile)
}

// ListFiles обрабатывает GET /api/v1/files.
func (h *GatewayHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerFromContext(w, r)
	if !ok {
		return
	}

	files, err := h.metadata.List(r.Context(), userID)
	if err != nil {
		errors.FromDomain(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, fileListResponse{Files: files})
}

// GetFile обрабатывает GET /api/v1/files/{id}.
func (h *GatewayHandler) GetFile(w http.ResponseWriter, r *http.Request) {
	fileID, ok := idParam(w, r)
	if !ok {
		return
	}
	userID, ok := callerFromContext(w, r)
	if !ok {
		return
	}

	rec, err := h.metadata.Get(r.Context(), fileID, userID)
	if err != nil {
		errors.FromDomain(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// DownloadFile обрабатывает GET /api/v1/files/{id}/download:
// проверка владельца, затем потоковая отдача blob-а из Storage Service.
func (h *GatewayHandler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	fileID, ok := idParam(w, r)
	if !ok {
		return
	}
	userID, ok := callerFromContext(w, r)
	if !ok {
		return
	}

	resp, err := h.coordinator.Download(r.Context(), fileID, userID)
	if err != nil {
		errors.FromDomain(w, h.logger, err)
		return
	}
	defer resp.Body.Close()

	for _, name := range proxiedHeaders {
		if v := resp.Header.Get(name); v != "" {
			w.Header().Set(name, v)
		}
	}
	w.WriteHeader(resp.StatusCode)

	if _, err := io.Copy(w, resp.Body); err != nil {
		// заголовки уже отправлены, остаётся только залогировать
		h.logger.Warn("Прервана отдача файла",
			slog.String("file_id", fileID.String()),
			slog.String("error", err.Error()),
		)
	}
}

// DeleteFile обрабатывает DELETE /api/v1/files/{id}.
func (h *GatewayHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	fileID, ok := idParam(w, r)
	if !ok {
		return
	}
	userID, ok := callerFromContext(w, r)
	if !ok {
		return
	}

	if err := h.coordinator.Delete(r.Context(), fileID, userID); err != nil {
		errors.FromDomain(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Файл удалён"})
}
