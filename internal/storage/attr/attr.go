// Пакет attr — sidecar-файлы атрибутов blob-ов (<fileId>.attr.json).
// Запись атомарная: temp → fsync → rename.
package attr

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bigkaa/goartstore/cloud-drive/internal/domain/model"
)

// Suffix — суффикс файла атрибутов.
const Suffix = ".attr.json"

// maxAttrFileSize — максимальный размер attr.json (4 КБ).
const maxAttrFileSize = 4096

// ErrNotFound — файла атрибутов нет.
var ErrNotFound = errors.New("attr.json не найден")

// PathFor возвращает путь attr.json для blob-а.
// Пример: "/data/<id>" → "/data/<id>.attr.json"
func PathFor(blobPath string) string {
	return blobPath + Suffix
}

// Write атомарно записывает атрибуты.
func Write(path string, file *model.StoredFile) error {
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("ошибка сериализации атрибутов: %w", err)
	}
	if len(data) > maxAttrFileSize {
		return fmt.Errorf("размер attr.json (%d байт) превышает максимум (%d байт)", len(data), maxAttrFileSize)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("не удалось создать директорию %s: %w", filepath.Dir(path), err)
	}

	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("ошибка создания временного файла: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка записи: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка fsync: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка закрытия файла: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка атомарного переименования: %w", err)
	}
	return nil
}

// Read читает атрибуты. ErrNotFound, если файла нет.
func Read(path string) (*model.StoredFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("ошибка чтения attr.json %s: %w", path, err)
	}

	var file model.StoredFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("ошибка десериализации attr.json %s: %w", path, err)
	}
	return &file, nil
}

// Delete удаляет attr.json. Отсутствие файла — не ошибка.
func Delete(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ошибка удаления attr.json %s: %w", path, err)
	}
	return nil
}
