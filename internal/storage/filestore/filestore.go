// Пакет filestore — blob-файлы Storage Service на локальном диске.
// Имя blob-а — fileId. Запись потоковая, SHA-256 считается на лету.
package filestore

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// ErrNotFound — blob отсутствует на диске.
var ErrNotFound = errors.New("blob не найден")

// FileStore — blob-файлы в одной директории.
type FileStore struct {
	// dataDir — корневая директория хранения (FS_DATA_DIR)
	dataDir string
}

// SaveResult — результат записи blob-а.
type SaveResult struct {
	// FullPath — абсолютный путь blob-а на диске
	FullPath string
	// Size — количество записанных байт
	Size int64
	// Checksum — SHA-256 содержимого
	Checksum string
}

// New создаёт FileStore и при необходимости директорию данных.
func New(dataDir string) (*FileStore, error) {
	abs, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("некорректный путь %s: %w", dataDir, err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию данных %s: %w", abs, err)
	}
	return &FileStore{dataDir: abs}, nil
}

// Save записывает данные из reader в blob fileID.
// Паттерн: temp файл → запись + SHA-256 → fsync → rename.
// При ошибке temp файл удаляется.
func (fs *FileStore) Save(reader io.Reader, fileID uuid.UUID) (*SaveResult, error) {
	fullPath := fs.Path(fileID)
	tmpPath := fullPath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	hasher := sha256.New()
	size, err := io.Copy(f, io.TeeReader(reader, hasher))
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка записи данных: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка fsync: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return &SaveResult{
		FullPath: fullPath,
		Size:     size,
		Checksum: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// Open открывает blob для чтения. Вызывающий код закрывает файл.
func (fs *FileStore) Open(fileID uuid.UUID) (*os.File, error) {
	f, err := os.Open(fs.Path(fileID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, fileID)
		}
		return nil, fmt.Errorf("ошибка открытия blob %s: %w", fileID, err)
	}
	return f, nil
}

// Delete удаляет blob. ErrNotFound, если его нет.
func (fs *FileStore) Delete(fileID uuid.UUID) error {
	err := os.Remove(fs.Path(fileID))
	switch {
	case os.IsNotExist(err):
		return fmt.Errorf("%w: %s", ErrNotFound, fileID)
	case err != nil:
		return fmt.Errorf("ошибка удаления blob %s: %w", fileID, err)
	}
	return nil
}

// Exists проверяет наличие blob-а.
func (fs *FileStore) Exists(fileID uuid.UUID) bool {
	_, err := os.Stat(fs.Path(fileID))
	return err == nil
}

// Path возвращает абсолютный путь blob-а.
func (fs *FileStore) Path(fileID uuid.UUID) string {
	return filepath.Join(fs.dataDir, fileID.String())
}

// DataDir возвращает путь к директории данных.
func (fs *FileStore) DataDir() string {
	return fs.dataDir
}

// CheckReady — проверка готовности: директория данных доступна на запись.
func (fs *FileStore) CheckReady() (status, message string) {
	probe, err := os.CreateTemp(fs.dataDir, ".ready-*")
	if err != nil {
		return "fail", fmt.Sprintf("директория данных недоступна на запись: %v", err)
	}
	name := probe.Name()
	probe.Close()
	os.Remove(name)
	return "ok", "директория данных доступна"
}
