package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bigkaa/goartstore/cloud-drive/internal/api/errors"
	"github.com/bigkaa/goartstore/cloud-drive/internal/domain/model"
)

// OwnershipGuard — операции Metadata Service над записями файлов.
type OwnershipGuard interface {
	CheckOwnership(ctx context.Context, fileID, userID uuid.UUID) (bool, error)
	GetMetadata(ctx context.Context, fileID, userID uuid.UUID) (*model.FileMetadata, error)
	ListUserFiles(ctx context.Context, userID uuid.UUID) ([]model.FileMetadata, error)
	Delete(ctx context.Context, fileID, userID uuid.UUID) error
}

// MetadataHandler — обработчик endpoints Metadata Service.
// Вызывающий определяется заголовком userId, который выставляет gateway.
type MetadataHandler struct {
	guard  OwnershipGuard
	logger *slog.Logger
}

// NewMetadataHandler создаёт обработчик Metadata Service.
func NewMetadataHandler(guard OwnershipGuard, logger *slog.Logger) *MetadataHandler {
	return &MetadataHandler{
		guard:  guard,
		logger: logger.With(slog.String("component", "metadata_handler")),
	}
}

type ownershipResponse struct {
	BelongsToUser bool `json:"belongsToUser"`
}

type fileListResponse struct {
	Files []model.FileMetadata `json:"files"`
}

// Routes регистрирует маршруты Metadata Service.
func (h *MetadataHandler) Routes(r chi.Router) {
	r.Get("/api/v1/files", h.ListFiles)
	r.Get("/api/v1/files/{id}", h.GetFile)
	r.Delete("/api/v1/files/{id}", h.DeleteFile)
	r.Post("/api/v1/files/{id}/validate-ownership", h.ValidateOwnership)
}

// ValidateOwnership обрабатывает POST /api/v1/files/{id}/validate-ownership.
// Отсутствующий файл и чужой файл неразличимы: belongsToUser=false.
func (h *MetadataHandler) ValidateOwnership(w http.ResponseWriter, r *http.Request) {
	fileID, ok := idParam(w, r)
	if !ok {
		return
	}
	userID, ok := callerFromHeader(w, r)
	if !ok {
		return
	}

	belongs, err := h.guard.CheckOwnership(r.Context(), fileID, userID)
	if err != nil {
		errors.FromDomain(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ownershipResponse{BelongsToUser: belongs})
}

// GetFile обрабатывает GET /api/v1/files/{id}.
func (h *MetadataHandler) GetFile(w http.ResponseWriter, r *http.Request) {
	fileID, ok := idParam(w, r)
	if !ok {
		return
	}
	userID, ok := callerFromHeader(w, r)
	if !ok {
		return
	}

	rec, err := h.guard.GetMetadata(r.Context(), fileID, userID)
	if err != nil {
		errors.FromDomain(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// ListFiles обрабатывает GET /api/v1/files.
func (h *MetadataHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerFromHeader(w, r)
	if !ok {
		return
	}

	files, err := h.guard.ListUserFiles(r.Context(), userID)
	if err != nil {
		errors.FromDomain(w, h.logger, err)
		return
	}
	if files == nil {
		files = []model.FileMetadata{}
	}
	writeJSON(w, http.StatusOK, fileListResponse{Files: files})
}

// DeleteFile обрабатывает DELETE /api/v1/files/{id}: 404, 403 или 200.
func (h *MetadataHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	fileID, ok := idParam(w, r)
	if !ok {
		return
	}
	userID, ok := callerFromHeader(w, r)
	if !ok {
		return
	}

	if err := h.guard.Delete(r.Context(), fileID, userID); err != nil {
		errors.FromDomain(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Файл удалён"})
}
