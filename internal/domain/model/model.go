// Пакет model — доменные модели cloud-drive.
package model

import (
	"time"

	"github.com/google/uuid"
)

// User — пользователь Identity Service.
type User struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"passwordHash"`
	CreatedAt    time.Time `json:"createdAt"`
}

// FileMetadata — запись метаданных файла (источник истины — Metadata Service).
type FileMetadata struct {
	ID             uuid.UUID  `json:"id"`
	FileName       string     `json:"fileName"`
	OriginalName   string     `json:"originalName"`
	Size           int64      `json:"size"`
	ContentType    string     `json:"contentType"`
	UserID         uuid.UUID  `json:"userId"`
	StoragePath    string     `json:"storagePath"`
	UploadedAt     time.Time  `json:"uploadedAt"`
	LastAccessedAt *time.Time `json:"lastAccessedAt,omitempty"`
	IsDeleted      bool       `json:"isDeleted"`
	DeletedAt      *time.Time `json:"deletedAt,omitempty"`
}

// BelongsTo проверяет, что запись принадлежит пользователю.
func (f *FileMetadata) BelongsTo(userID uuid.UUID) bool {
	return f.UserID == userID
}

// UploadEvent — сообщение о завершённой загрузке (exchange file_events).
// Формат полей — стабильный контракт между Storage и Metadata Service.
type UploadEvent struct {
	FileID       uuid.UUID `json:"fileId"`
	UserID       uuid.UUID `json:"userId"`
	FileName     string    `json:"fileName"`
	OriginalName string    `json:"originalName"`
	StoragePath  string    `json:"storagePath"`
	FileSize     int64     `json:"fileSize"`
	ContentType  string    `json:"contentType"`
	UploadedAt   time.Time `json:"uploadedAt"`
}

// ToMetadata строит запись метаданных из события загрузки.
func (e UploadEvent) ToMetadata() *FileMetadata {
	uploadedAt := e.UploadedAt.UTC()
	lastAccessed := uploadedAt
	return &FileMetadata{
		ID:             e.FileID,
		FileName:       e.FileName,
		OriginalName:   e.OriginalName,
		Size:           e.FileSize,
		ContentType:    e.ContentType,
		UserID:         e.UserID,
		StoragePath:    e.StoragePath,
		UploadedAt:     uploadedAt,
		LastAccessedAt: &lastAccessed,
	}
}

// StoredFile — атрибуты blob-а в Storage Service (attr.json).
type StoredFile struct {
	ID           uuid.UUID `json:"id"`
	FileName     string    `json:"fileName"`
	OriginalName string    `json:"originalName"`
	ContentType  string    `json:"contentType"`
	Size         int64     `json:"size"`
	Checksum     string    `json:"checksum"`
	UserID       uuid.UUID `json:"userId"`
	StoragePath  string    `json:"storagePath"`
	UploadedAt   time.Time `json:"uploadedAt"`
}

// UploadEvent строит событие загрузки для публикации.
func (s *StoredFile) UploadEvent() UploadEvent {
	return UploadEvent{
		FileID:       s.ID,
		UserID:       s.UserID,
		FileName:     s.FileName,
		OriginalName: s.OriginalName,
		StoragePath:  s.StoragePath,
		FileSize:     s.Size,
		ContentType:  s.ContentType,
		UploadedAt:   s.UploadedAt,
	}
}
