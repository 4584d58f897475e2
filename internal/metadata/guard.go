// Пакет metadata — OwnershipGuard (существование и владение файлами
// поверх трёх уровней кэша) и потребитель событий загрузки.
package metadata

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/bigkaa/goartstore/cloud-drive/internal/cache"
	"github.com/bigkaa/goartstore/cloud-drive/internal/domain/apperr"
	"github.com/bigkaa/goartstore/cloud-drive/internal/domain/model"
	"github.com/bigkaa/goartstore/cloud-drive/internal/repository"
)

// Guard — источник фактов о существовании и владении файлами.
// Чтения идут через кэш, изменения — через репозиторий с синхронной
// инвалидацией всех зависимых ключей одним пакетом.
type Guard struct {
	repo     repository.FileMetadataRepository
	store    *cache.Store
	exists   *cache.Typed[bool]
	owners   *cache.Typed[string]
	files    *cache.Typed[model.FileMetadata]
	listings *cache.Typed[[]model.FileMetadata]
	group    singleflight.Group
	logger   *slog.Logger
	now      func() time.Time

	// repeatInvalidation — задержка повторной инвалидации после изменения
	repeatInvalidation time.Duration
}

// defaultRepeatInvalidation — через это время ключи файла удаляются повторно:
// читатель, загрузивший запись до изменения, мог записать её в кэш после
// первой инвалидации.
const defaultRepeatInvalidation = 500 * time.Millisecond

// NewGuard создаёт Guard.
func NewGuard(repo repository.FileMetadataRepository, store *cache.Store, logger *slog.Logger) *Guard {
	return &Guard{
		repo:     repo,
		store:    store,
		exists:   cache.NewTyped[bool](store, cache.FileExists),
		owners:   cache.NewTyped[string](store, cache.UserByFileID),
		files:    cache.NewTyped[model.FileMetadata](store, cache.FileByID),
		listings: cache.NewTyped[[]model.FileMetadata](store, cache.FilesByUserID),
		logger:   logger.With(slog.String("component", "ownership_guard")),
		now:      time.Now,

		repeatInvalidation: defaultRepeatInvalidation,
	}
}

// Exists возвращает NotFound, если неудалённого файла нет.
// Результат кэшируется независимо от исхода.
func (g *Guard) Exists(ctx context.Context, fileID uuid.UUID) error {
	key := fileID.String()

	exists, ok := g.exists.Get(ctx, key)
	if !ok {
		res, err, _ := g.group.Do("exists:"+key, func() (any, error) {
			found, err := g.repo.Exists(ctx, fileID)
			if err != nil {
				return false, err
			}
			g.exists.Set(ctx, key, found)
			return found, nil
		})
		if err != nil {
			return apperr.Internal(err, "ошибка проверки существования файла")
		}
		exists = res.(bool)
	}

	if !exists {
		return apperr.NotFound("файл %s не найден", fileID)
	}
	return nil
}

// CheckOwnership сообщает, принадлежит ли неудалённый файл пользователю.
// В кэше хранится id владельца, а не булев ответ, поэтому прогретый
// для одного пользователя факт не отвечает за другого.
func (g *Guard) CheckOwnership(ctx context.Context, fileID, userID uuid.UUID) (bool, error) {
	key := fileID.String()

	owner, ok := g.owners.Get(ctx, key)
	if !ok {
		res, err, _ := g.group.Do("owner:"+key, func() (any, error) {
			id, err := g.repo.OwnerOf(ctx, fileID)
			switch {
			case errors.Is(err, repository.ErrNotFound):
				// нет живого файла — пустой владелец
				g.owners.Set(ctx, key, "")
				return "", nil
			case err != nil:
				return "", err
			}
			g.owners.Set(ctx, key, id.String())
			return id.String(), nil
		})
		if err != nil {
			return false, apperr.Internal(err, "ошибка проверки владельца файла")
		}
		owner = res.(string)
	}

	return owner != "" && owner == userID.String(), nil
}

// BelongsToUser возвращает Forbidden, если файл не принадлежит пользователю.
func (g *Guard) BelongsToUser(ctx context.Context, fileID, userID uuid.UUID) error {
	belongs, err := g.CheckOwnership(ctx, fileID, userID)
	if err != nil {
		return err
	}
	if !belongs {
		return apperr.Forbidden("файл %s не принадлежит пользователю", fileID)
	}
	return nil
}

// GetMetadata возвращает запись файла владельцу и обновляет время доступа.
func (g *Guard) GetMetadata(ctx context.Context, fileID, userID uuid.UUID) (*model.FileMetadata, error) {
	key := fileID.String()

	if rec, ok := g.files.Get(ctx, key); ok {
		// запись в кэше сама по себе проверяется на владельца
		if !rec.BelongsTo(userID) {
			return nil, apperr.Forbidden("файл %s не принадлежит пользователю", fileID)
		}
		g.touch(ctx, &rec)
		return &rec, nil
	}

	if err := g.Exists(ctx, fileID); err != nil {
		return nil, err
	}
	if err := g.BelongsToUser(ctx, fileID, userID); err != nil {
		return nil, err
	}

	rec, err := g.repo.Get(ctx, fileID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("файл %s не найден", fileID)
		}
		return nil, apperr.Internal(err, "ошибка получения метаданных файла")
	}
	if !rec.BelongsTo(userID) {
		return nil, apperr.Forbidden("файл %s не принадлежит пользователю", fileID)
	}

	g.files.Set(ctx, key, *rec)
	g.touch(ctx, rec)
	return rec, nil
}

// ListUserFiles возвращает неудалённые файлы пользователя, новые первыми.
// Пустой список не кэшируется.
func (g *Guard) ListUserFiles(ctx context.Context, userID uuid.UUID) ([]model.FileMetadata, error) {
	key := userID.String()

	if files, ok := g.listings.Get(ctx, key); ok {
		return files, nil
	}

	recs, err := g.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperr.Internal(err, "ошибка получения списка файлов")
	}

	files := make([]model.FileMetadata, 0, len(recs))
	for _, r := range recs {
		files = append(files, *r)
	}
	if len(files) > 0 {
		g.listings.Set(ctx, key, files)
	}
	return files, nil
}

// Create создаёт запись, если записи с таким fileId ещё нет.
// Повтор с тем же владельцем — no-op (created = false), с другим — Conflict.
func (g *Guard) Create(ctx context.Context, rec *model.FileMetadata) (bool, error) {
	if rec.ID == uuid.Nil || rec.UserID == uuid.Nil {
		return false, apperr.Validation("fileId и userId обязательны")
	}

	created, err := g.repo.Insert(ctx, rec)
	if err != nil {
		return false, apperr.Internal(err, "ошибка создания метаданных файла")
	}

	if !created {
		existing, err := g.repo.FindAny(ctx, rec.ID)
		if err != nil {
			return false, apperr.Internal(err, "ошибка чтения существующей записи")
		}
		if existing.UserID != rec.UserID {
			return false, apperr.Conflict("файл %s уже зарегистрирован за другим пользователем", rec.ID)
		}
		g.logger.Info("Запись уже существует, повторное событие пропущено",
			slog.String("file_id", rec.ID.String()),
			slog.Bool("deleted", existing.IsDeleted),
		)
		return false, nil
	}

	g.invalidate(ctx, rec.ID, rec.UserID)

	g.logger.Info("Метаданные файла созданы",
		slog.String("file_id", rec.ID.String()),
		slog.String("user_id", rec.UserID.String()),
	)
	return true, nil
}

// Delete помечает файл удалённым. NotFound — файла нет, Forbidden — чужой файл.
// Решение принимается по репозиторию, а не по кэшу.
func (g *Guard) Delete(ctx context.Context, fileID, userID uuid.UUID) error {
	owner, err := g.repo.OwnerOf(ctx, fileID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("файл %s не найден", fileID)
		}
		return apperr.Internal(err, "ошибка проверки владельца файла")
	}
	if owner != userID {
		return apperr.Forbidden("файл %s не принадлежит пользователю", fileID)
	}

	if err := g.repo.SoftDelete(ctx, fileID, g.now().UTC()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("файл %s не найден", fileID)
		}
		return apperr.Internal(err, "ошибка удаления метаданных файла")
	}

	g.invalidate(ctx, fileID, userID)

	g.logger.Info("Метаданные файла удалены",
		slog.String("file_id", fileID.String()),
		slog.String("user_id", userID.String()),
	)
	return nil
}

// invalidate удаляет все зависимые от файла ключи одним пакетом
// и повторяет удаление через repeatInvalidation.
func (g *Guard) invalidate(ctx context.Context, fileID, userID uuid.UUID) {
	id := fileID.String()
	keys := []string{
		g.files.Key(id),
		g.owners.Key(id),
		g.exists.Key(id),
		g.listings.Key(userID.String()),
	}
	g.store.Remove(ctx, keys...)

	if g.repeatInvalidation <= 0 {
		return
	}
	time.AfterFunc(g.repeatInvalidation, func() {
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		g.store.Remove(rctx, keys...)
	})
}

// touch обновляет время последнего доступа. Ошибка не прерывает чтение.
func (g *Guard) touch(ctx context.Context, rec *model.FileMetadata) {
	now := g.now().UTC()
	if err := g.repo.TouchLastAccessed(ctx, rec.ID, now); err != nil {
		g.logger.Warn("Не удалось обновить время доступа",
			slog.String("file_id", rec.ID.String()),
			slog.String("error", err.Error()),
		)
		return
	}
	rec.LastAccessedAt = &now
}
