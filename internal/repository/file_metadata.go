package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/goartstore/cloud-drive/internal/domain/model"
)

// FileMetadataRepository — доступ к таблице file_metadata.
// Все запросы, кроме FindAny, видят только неудалённые записи.
type FileMetadataRepository interface {
	// Insert вставляет запись, если записи с таким id ещё нет.
	// created = false — запись уже была (в том числе удалённая).
	Insert(ctx context.Context, f *model.FileMetadata) (created bool, err error)
	// FindAny возвращает запись по id, включая удалённые.
	FindAny(ctx context.Context, id uuid.UUID) (*model.FileMetadata, error)
	// Get возвращает неудалённую запись по id.
	Get(ctx context.Context, id uuid.UUID) (*model.FileMetadata, error)
	// Exists проверяет наличие неудалённой записи.
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	// OwnerOf возвращает владельца неудалённой записи.
	OwnerOf(ctx context.Context, id uuid.UUID) (uuid.UUID, error)
	// ListByUser возвращает неудалённые файлы пользователя, новые первыми.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*model.FileMetadata, error)
	// SoftDelete помечает запись удалённой. ErrNotFound — нет неудалённой записи.
	SoftDelete(ctx context.Context, id uuid.UUID, at time.Time) error
	// TouchLastAccessed обновляет время последнего обращения.
	TouchLastAccessed(ctx context.Context, id uuid.UUID, at time.Time) error
}

const fileColumns = `id, file_name, original_name, size, content_type, user_id,
	storage_path, uploaded_at, last_accessed_at, is_deleted, deleted_at`

type fileMetadataRepo struct {
	db DBTX
}

// NewFileMetadataRepository создаёт репозиторий метаданных файлов.
func NewFileMetadataRepository(db DBTX) FileMetadataRepository {
	return &fileMetadataRepo{db: db}
}

func (r *fileMetadataRepo) Insert(ctx context.Context, f *model.FileMetadata) (bool, error) {
	query := `
		INSERT INTO file_metadata (id, file_name, original_name, size, content_type,
			user_id, storage_path, uploaded_at, last_accessed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`

	tag, err := r.db.Exec(ctx, query,
		f.ID, f.FileName, f.OriginalName, f.Size, f.ContentType,
		f.UserID, f.StoragePath, f.UploadedAt, f.LastAccessedAt,
	)
	if err != nil {
		return false, fmt.Errorf("ошибка вставки метаданных файла: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *fileMetadataRepo) FindAny(ctx context.Context, id uuid.UUID) (*model.FileMetadata, error) {
	row := r.db.QueryRow(ctx, `SELECT `+fileColumns+` FROM file_metadata WHERE id = $1`, id)
	return scanFile(row)
}

func (r *fileMetadataRepo) Get(ctx context.Context, id uuid.UUID) (*model.FileMetadata, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+fileColumns+` FROM file_metadata WHERE id = $1 AND is_deleted = FALSE`, id)
	return scanFile(row)
}

func (r *fileMetadataRepo) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM file_metadata WHERE id = $1 AND is_deleted = FALSE)`, id,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки существования файла: %w", err)
	}
	return exists, nil
}

func (r *fileMetadataRepo) OwnerOf(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	var owner uuid.UUID
	err := r.db.QueryRow(ctx,
		`SELECT user_id FROM file_metadata WHERE id = $1 AND is_deleted = FALSE`, id,
	).Scan(&owner)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, ErrNotFound
		}
		return uuid.Nil, fmt.Errorf("ошибка получения владельца файла: %w", err)
	}
	return owner, nil
}

func (r *fileMetadataRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]*model.FileMetadata, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+fileColumns+`
		FROM file_metadata
		WHERE user_id = $1 AND is_deleted = FALSE
		ORDER BY uploaded_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка файлов: %w", err)
	}
	defer rows.Close()

	var result []*model.FileMetadata
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	return result, rows.Err()
}

func (r *fileMetadataRepo) SoftDelete(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE file_metadata
		SET is_deleted = TRUE, deleted_at = $2
		WHERE id = $1 AND is_deleted = FALSE`, id, at)
	if err != nil {
		return fmt.Errorf("ошибка удаления файла: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *fileMetadataRepo) TouchLastAccessed(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE file_metadata SET last_accessed_at = $2
		WHERE id = $1 AND is_deleted = FALSE`, id, at)
	if err != nil {
		return fmt.Errorf("ошибка обновления времени доступа: %w", err)
	}
	return nil
}

// scanFile сканирует строку file_metadata (pgx.Row или pgx.Rows).
func scanFile(row pgx.Row) (*model.FileMetadata, error) {
	f := &model.FileMetadata{}
	err := row.Scan(
		&f.ID, &f.FileName, &f.OriginalName, &f.Size, &f.ContentType, &f.UserID,
		&f.StoragePath, &f.UploadedAt, &f.LastAccessedAt, &f.IsDeleted, &f.DeletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка сканирования метаданных файла: %w", err)
	}
	return f, nil
}
