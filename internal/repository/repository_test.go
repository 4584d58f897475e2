package repository

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bigkaa/goartstore/cloud-drive/internal/database"
	"github.com/bigkaa/goartstore/cloud-drive/internal/database/dbtest"
	"github.com/bigkaa/goartstore/cloud-drive/internal/domain/model"
)

// setupTestDB запускает PostgreSQL контейнер и применяет обе схемы.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	cfg := dbtest.StartPostgres(t)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	for _, schema := range []database.Schema{database.SchemaIdentity, database.SchemaMetadata} {
		if err := database.Migrate(cfg, schema, logger); err != nil {
			t.Fatalf("Ошибка миграций %s: %v", schema, err)
		}
	}

	pool, err := database.Connect(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("Ошибка подключения: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	return pool
}

func newFile(owner uuid.UUID, uploadedAt time.Time) *model.FileMetadata {
	id := uuid.New()
	return &model.FileMetadata{
		ID:           id,
		FileName:     id.String(),
		OriginalName: "report.pdf",
		Size:         1024,
		ContentType:  "application/pdf",
		UserID:       owner,
		StoragePath:  "/data/" + id.String(),
		UploadedAt:   uploadedAt.UTC().Truncate(time.Microsecond),
	}
}

// --- Тесты UserRepository ---

func TestUserRepository(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewUserRepository(pool)

	u := &model.User{
		ID:           uuid.New(),
		Username:     "alice",
		Email:        "Alice@Example.com",
		PasswordHash: "hash",
	}
	if err := repo.Create(ctx, u); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}
	if u.CreatedAt.IsZero() {
		t.Error("CreatedAt не установлен")
	}

	got, err := repo.GetByEmail(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("GetByEmail() ошибка: %v", err)
	}
	if got.ID != u.ID {
		t.Errorf("GetByEmail().ID = %s, хотели %s", got.ID, u.ID)
	}

	got, err = repo.GetByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetByID() ошибка: %v", err)
	}
	if got.Username != "alice" {
		t.Errorf("Username = %q, хотели alice", got.Username)
	}

	exists, err := repo.ExistsByEmail(ctx, "ALICE@example.com")
	if err != nil || !exists {
		t.Errorf("ExistsByEmail() = %v, %v; хотели true", exists, err)
	}

	dup := &model.User{ID: uuid.New(), Username: "alice2", Email: "alice@example.com", PasswordHash: "h"}
	if err := repo.Create(ctx, dup); !errors.Is(err, ErrConflict) {
		t.Errorf("Create() дубликата email: ошибка = %v, хотели ErrConflict", err)
	}

	if _, err := repo.GetByID(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID() несуществующего: ошибка = %v, хотели ErrNotFound", err)
	}
}

// --- Тесты FileMetadataRepository ---

func TestFileMetadata_InsertIdempotent(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewFileMetadataRepository(pool)

	f := newFile(uuid.New(), time.Now())

	created, err := repo.Insert(ctx, f)
	if err != nil || !created {
		t.Fatalf("Insert() = %v, %v; хотели true, nil", created, err)
	}
	created, err = repo.Insert(ctx, f)
	if err != nil || created {
		t.Fatalf("повторный Insert() = %v, %v; хотели false, nil", created, err)
	}

	var count int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM file_metadata WHERE id = $1`, f.ID).Scan(&count); err != nil {
		t.Fatalf("Ошибка подсчёта: %v", err)
	}
	if count != 1 {
		t.Errorf("записей = %d, хотели 1", count)
	}
}

func TestFileMetadata_TombstoneExcluded(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewFileMetadataRepository(pool)

	owner := uuid.New()
	f := newFile(owner, time.Now())
	if _, err := repo.Insert(ctx, f); err != nil {
		t.Fatalf("Insert() ошибка: %v", err)
	}

	if ok, err := repo.Exists(ctx, f.ID); err != nil || !ok {
		t.Fatalf("Exists() = %v, %v; хотели true", ok, err)
	}
	gotOwner, err := repo.OwnerOf(ctx, f.ID)
	if err != nil || gotOwner != owner {
		t.Fatalf("OwnerOf() = %s, %v; хотели %s", gotOwner, err, owner)
	}

	if err := repo.SoftDelete(ctx, f.ID, time.Now()); err != nil {
		t.Fatalf("SoftDelete() ошибка: %v", err)
	}

	if ok, _ := repo.Exists(ctx, f.ID); ok {
		t.Error("Exists() после удаления должен вернуть false")
	}
	if _, err := repo.OwnerOf(ctx, f.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("OwnerOf() после удаления: ошибка = %v, хотели ErrNotFound", err)
	}
	if _, err := repo.Get(ctx, f.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() после удаления: ошибка = %v, хотели ErrNotFound", err)
	}
	if err := repo.SoftDelete(ctx, f.ID, time.Now()); !errors.Is(err, ErrNotFound) {
		t.Errorf("повторный SoftDelete(): ошибка = %v, хотели ErrNotFound", err)
	}

	tomb, err := repo.FindAny(ctx, f.ID)
	if err != nil {
		t.Fatalf("FindAny() ошибка: %v", err)
	}
	if !tomb.IsDeleted || tomb.DeletedAt == nil {
		t.Errorf("FindAny() = %+v, хотели удалённую запись с deleted_at", tomb)
	}
}

func TestFileMetadata_ListByUser(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewFileMetadataRepository(pool)

	owner := uuid.New()
	base := time.Now().Add(-time.Hour)
	older := newFile(owner, base)
	newer := newFile(owner, base.Add(time.Minute))
	deleted := newFile(owner, base.Add(2*time.Minute))
	foreign := newFile(uuid.New(), base)

	for _, f := range []*model.FileMetadata{older, newer, deleted, foreign} {
		if _, err := repo.Insert(ctx, f); err != nil {
			t.Fatalf("Insert() ошибка: %v", err)
		}
	}
	if err := repo.SoftDelete(ctx, deleted.ID, time.Now()); err != nil {
		t.Fatalf("SoftDelete() ошибка: %v", err)
	}

	list, err := repo.ListByUser(ctx, owner)
	if err != nil {
		t.Fatalf("ListByUser() ошибка: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("ListByUser() вернул %d записей, хотели 2", len(list))
	}
	if list[0].ID != newer.ID || list[1].ID != older.ID {
		t.Error("ListByUser() должен возвращать новые файлы первыми")
	}
}

func TestFileMetadata_TouchLastAccessed(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewFileMetadataRepository(pool)

	f := newFile(uuid.New(), time.Now().Add(-time.Hour))
	if _, err := repo.Insert(ctx, f); err != nil {
		t.Fatalf("Insert() ошибка: %v", err)
	}

	at := time.Now().UTC().Truncate(time.Microsecond)
	if err := repo.TouchLastAccessed(ctx, f.ID, at); err != nil {
		t.Fatalf("TouchLastAccessed() ошибка: %v", err)
	}

	got, err := repo.Get(ctx, f.ID)
	if err != nil {
		t.Fatalf("Get() ошибка: %v", err)
	}
	if got.LastAccessedAt == nil || !got.LastAccessedAt.Equal(at) {
		t.Errorf("LastAccessedAt = %v, хотели %v", got.LastAccessedAt, at)
	}
}
