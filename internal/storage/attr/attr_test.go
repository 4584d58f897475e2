package attr

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/goartstore/cloud-drive/internal/domain/model"
)

func TestPathFor(t *testing.T) {
	if got := PathFor("/data/abc"); got != "/data/abc.attr.json" {
		t.Errorf("PathFor = %s", got)
	}
}

func TestWriteRead(t *testing.T) {
	path := PathFor(filepath.Join(t.TempDir(), "blob"))
	file := &model.StoredFile{
		ID:           uuid.New(),
		FileName:     "x.pdf",
		OriginalName: "отчёт.pdf",
		ContentType:  "application/pdf",
		Size:         42,
		Checksum:     "abc",
		UserID:       uuid.New(),
		StoragePath:  "/data/blob",
		UploadedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	if err := Write(path, file); err != nil {
		t.Fatalf("Write ошибка: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("временный файл не удалён")
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read ошибка: %v", err)
	}
	if got.ID != file.ID || got.UserID != file.UserID || got.OriginalName != file.OriginalName {
		t.Errorf("прочитано %+v, ожидалось %+v", got, file)
	}
	if !got.UploadedAt.Equal(file.UploadedAt) {
		t.Errorf("UploadedAt = %v", got.UploadedAt)
	}
}

func TestWrite_TooLarge(t *testing.T) {
	path := PathFor(filepath.Join(t.TempDir(), "blob"))
	file := &model.StoredFile{OriginalName: strings.Repeat("я", 3000)}

	if err := Write(path, file); err == nil {
		t.Fatal("ожидалась ошибка превышения размера")
	}
}

func TestReadDelete_Missing(t *testing.T) {
	path := PathFor(filepath.Join(t.TempDir(), "blob"))

	if _, err := Read(path); !errors.Is(err, ErrNotFound) {
		t.Errorf("Read: ошибка = %v, ожидалась ErrNotFound", err)
	}
	if err := Delete(path); err != nil {
		t.Errorf("Delete отсутствующего файла: %v", err)
	}
}

func TestRead_Corrupted(t *testing.T) {
	path := PathFor(filepath.Join(t.TempDir(), "blob"))
	if err := os.WriteFile(path, []byte("{broken"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := Read(path)
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("ошибка = %v, ожидалась ошибка десериализации", err)
	}
}
