package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bigkaa/goartstore/cloud-drive/internal/api/errors"
	"github.com/bigkaa/goartstore/cloud-drive/internal/domain/model"
	"github.com/bigkaa/goartstore/cloud-drive/internal/storage"
)

// multipartMemory — часть multipart, которая держится в памяти; остальное уходит во временный файл.
const multipartMemory = 32 << 20

// StorageService — операции Storage Service.
type StorageService interface {
	Upload(ctx context.Context, p storage.UploadParams) (*model.StoredFile, error)
	Info(ctx context.Context, fileID uuid.UUID) (*model.StoredFile, error)
	Download(ctx context.Context, fileID uuid.UUID) (*storage.Download, error)
	Delete(ctx context.Context, fileID uuid.UUID) error
}

// StorageHandler — обработчик файловых endpoints Storage Service.
type StorageHandler struct {
	svc         StorageService
	maxFileSize int64
	logger      *slog.Logger
}

// NewStorageHandler создаёт обработчик Storage Service.
func NewStorageHandler(svc StorageService, maxFileSize int64, logger *slog.Logger) *StorageHandler {
	return &StorageHandler{
		svc:         svc,
		maxFileSize: maxFileSize,
		logger:      logger.With(slog.String("component", "storage_handler")),
	}
}

type uploadResponse struct {
	FileID     uuid.UUID `json:"fileId"`
	FileName   string    `json:"fileName"`
	Size       int64     `json:"size"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// Routes регистрирует маршруты Storage Service.
func (h *StorageHandler) Routes(r chi.Router) {
	r.Post("/api/v1/files/upload", h.UploadFile)
	r.Get("/api/v1/files/{id}/download", h.DownloadFile)
	r.Get("/api/v1/files/{id}/info", h.FileInfo)
	r.Delete("/api/v1/files/{id}", h.DeleteFile)
}

// UploadFile обрабатывает POST /api/v1/files/upload.
// Multipart form: file (обязательно). Владелец — заголовок userId.
func (h *StorageHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerFromHeader(w, r)
	if !ok {
		return
	}

	// запас на заголовки multipart
	r.Body = http.MaxBytesReader(w, r.Body, h.maxFileSize+1<<20)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		errors.ValidationError(w, fmt.Sprintf("Ошибка парсинга multipart: %s", err.Error()))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		errors.ValidationError(w, "Поле 'file' обязательно")
		return
	}
	defer file.Close()

	stored, err := h.svc.Upload(r.Context(), storage.UploadParams{
		Reader:       file,
		OriginalName: header.Filename,
		ContentType:  header.Header.Get("Content-Type"),
		Size:         header.Size,
		UserID:       userID,
	})
	if err != nil {
		errors.FromDomain(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, uploadResponse{
		FileID:     stored.ID,
		FileName:   stored.FileName,
		Size:       stored.Size,
		UploadedAt: stored.UploadedAt,
	})
}

// DownloadFile обрабатывает GET /api/v1/files/{id}/download.
// Поддерживает Range-запросы через http.ServeContent.
func (h *StorageHandler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	fileID, ok := idParam(w, r)
	if !ok {
		return
	}

	dl, err := h.svc.Download(r.Context(), fileID)
	if err != nil {
		errors.FromDomain(w, h.logger, err)
		return
	}
	defer dl.Content.Close()

	w.Header().Set("Content-Type", dl.File.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": dl.File.OriginalName,
	}))
	w.Header().Set("ETag", `"`+dl.File.Checksum+`"`)
	http.ServeContent(w, r, dl.File.OriginalName, dl.File.UploadedAt, dl.Content)
}

// FileInfo обрабатывает GET /api/v1/files/{id}/info.
func (h *StorageHandler) FileInfo(w http.ResponseWriter, r *http.Request) {
	fileID, ok := idParam(w, r)
	if !ok {
		return
	}

	file, err := h.svc.Info(r.Context(), fileID)
	if err != nil {
		errors.FromDomain(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, file)
}

// DeleteFile обрабатывает DELETE /api/v1/files/{id}.
func (h *StorageHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	fileID, ok := idParam(w, r)
	if !ok {
		return
	}

	if err := h.svc.Delete(r.Context(), fileID); err != nil {
		errors.FromDomain(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Файл удалён"})
}
