package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/bigkaa/goartstore/cloud-drive/internal/domain/apperr"
	"github.com/bigkaa/goartstore/cloud-drive/internal/domain/model"
	"github.com/bigkaa/goartstore/cloud-drive/internal/storage/filestore"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockPublisher — мок EventPublisher.
type mockPublisher struct {
	PublishFn func(ctx context.Context, message any) error
	events    []model.UploadEvent
}

func (m *mockPublisher) Publish(ctx context.Context, message any) error {
	if m.PublishFn != nil {
		if err := m.PublishFn(ctx, message); err != nil {
			return err
		}
	}
	ev, ok := message.(model.UploadEvent)
	if !ok {
		return errors.New("неожиданный тип сообщения")
	}
	m.events = append(m.events, ev)
	return nil
}

var testExtensions = []string{".pdf", ".jpg", ".jpeg", ".png", ".txt", ".zip"}

func newTestService(t *testing.T, pub *mockPublisher, maxSize int64) (*Service, *filestore.FileStore) {
	t.Helper()
	fs, err := filestore.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return NewService(fs, pub, maxSize, testExtensions, testLogger()), fs
}

func upload(s *Service, name, content string, user uuid.UUID) (*model.StoredFile, error) {
	return s.Upload(context.Background(), UploadParams{
		Reader:       strings.NewReader(content),
		OriginalName: name,
		ContentType:  "text/plain; charset=utf-8",
		Size:         int64(len(content)),
		UserID:       user,
	})
}

func TestUpload_PublishesEventOnce(t *testing.T) {
	pub := &mockPublisher{}
	s, fs := newTestService(t, pub, 1024)
	user := uuid.New()

	file, err := upload(s, "Notes.TXT", "hello world", user)
	if err != nil {
		t.Fatalf("Upload ошибка: %v", err)
	}

	if len(pub.events) != 1 {
		t.Fatalf("событий = %d, ожидалось 1", len(pub.events))
	}
	ev := pub.events[0]
	if ev.FileID != file.ID || ev.UserID != user || ev.FileSize != 11 {
		t.Errorf("событие = %+v", ev)
	}
	if ev.FileName != file.ID.String()+".txt" || ev.OriginalName != "Notes.TXT" {
		t.Errorf("имена в событии: %s / %s", ev.FileName, ev.OriginalName)
	}
	if ev.ContentType != "text/plain" {
		t.Errorf("ContentType = %s", ev.ContentType)
	}
	if ev.StoragePath != fs.Path(file.ID) {
		t.Errorf("StoragePath = %s", ev.StoragePath)
	}

	// формат сообщения — стабильный контракт
	body, _ := json.Marshal(ev)
	for _, field := range []string{"fileId", "userId", "fileName", "originalName", "storagePath", "fileSize", "contentType", "uploadedAt"} {
		if !bytes.Contains(body, []byte(`"`+field+`"`)) {
			t.Errorf("в сообщении нет поля %s: %s", field, body)
		}
	}
}

func TestUpload_Validation(t *testing.T) {
	pub := &mockPublisher{}
	s, fs := newTestService(t, pub, 10)
	user := uuid.New()

	cases := []struct {
		name    string
		file    string
		content string
		user    uuid.UUID
	}{
		{"запрещённое расширение", "run.exe", "data", user},
		{"без расширения", "README", "data", user},
		{"пустой файл", "a.txt", "", user},
		{"превышение размера", "a.txt", "01234567890", user},
		{"без пользователя", "a.txt", "data", uuid.Nil},
	}
	for _, tc := range cases {
		_, err := upload(s, tc.file, tc.content, tc.user)
		if !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("%s: ошибка = %v, ожидалась Validation", tc.name, err)
		}
	}

	if len(pub.events) != 0 {
		t.Errorf("событий = %d, ожидалось 0", len(pub.events))
	}
	entries, _ := os.ReadDir(fs.DataDir())
	if len(entries) != 0 {
		t.Errorf("на диске остались файлы: %d", len(entries))
	}
}

func TestUpload_UndeclaredSizeOverLimit(t *testing.T) {
	pub := &mockPublisher{}
	s, fs := newTestService(t, pub, 5)

	_, err := s.Upload(context.Background(), UploadParams{
		Reader:       strings.NewReader("0123456789"),
		OriginalName: "a.txt",
		UserID:       uuid.New(),
	})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("ошибка = %v, ожидалась Validation", err)
	}
	entries, _ := os.ReadDir(fs.DataDir())
	if len(entries) != 0 {
		t.Errorf("на диске остались файлы: %d", len(entries))
	}
}

func TestUpload_UnconfirmedPublishKeepsBlob(t *testing.T) {
	// Событие передано брокеру, но подтверждение не пришло
	var handed []model.UploadEvent
	pub := &mockPublisher{PublishFn: func(_ context.Context, message any) error {
		handed = append(handed, message.(model.UploadEvent))
		return context.DeadlineExceeded
	}}
	s, _ := newTestService(t, pub, 1024)

	_, err := upload(s, "a.txt", "data", uuid.New())
	if !errors.Is(err, apperr.ErrUnavailable) {
		t.Fatalf("ошибка = %v, ожидалась Unavailable", err)
	}
	if len(handed) != 1 {
		t.Fatalf("брокеру передано событий: %d, ожидалось 1", len(handed))
	}

	// Потребитель создаст метаданные по событию: blob должен быть доступен
	ev := handed[0]
	info, err := s.Info(context.Background(), ev.FileID)
	if err != nil {
		t.Fatalf("blob удалён после неподтверждённой публикации: %v", err)
	}
	if info.Size != ev.FileSize || info.UserID != ev.UserID {
		t.Errorf("атрибуты = %+v, событие = %+v", info, ev)
	}
	dl, err := s.Download(context.Background(), ev.FileID)
	if err != nil {
		t.Fatalf("Download ошибка: %v", err)
	}
	data, _ := io.ReadAll(dl.Content)
	dl.Content.Close()
	if string(data) != "data" {
		t.Errorf("содержимое = %q", data)
	}
}

func TestInfoDownloadDelete(t *testing.T) {
	pub := &mockPublisher{}
	s, _ := newTestService(t, pub, 1024)
	ctx := context.Background()

	file, err := upload(s, "a.pdf", "%PDF-1.4", uuid.New())
	if err != nil {
		t.Fatal(err)
	}

	info, err := s.Info(ctx, file.ID)
	if err != nil {
		t.Fatalf("Info ошибка: %v", err)
	}
	if info.Checksum != file.Checksum || info.ContentType != "text/plain" {
		t.Errorf("Info = %+v", info)
	}

	dl, err := s.Download(ctx, file.ID)
	if err != nil {
		t.Fatalf("Download ошибка: %v", err)
	}
	data, _ := io.ReadAll(dl.Content)
	dl.Content.Close()
	if string(data) != "%PDF-1.4" {
		t.Errorf("содержимое = %q", data)
	}

	if err := s.Delete(ctx, file.ID); err != nil {
		t.Fatalf("Delete ошибка: %v", err)
	}
	if err := s.Delete(ctx, file.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("повторный Delete: ошибка = %v, ожидалась NotFound", err)
	}
	if _, err := s.Info(ctx, file.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Info после удаления: ошибка = %v, ожидалась NotFound", err)
	}
	if _, err := s.Download(ctx, file.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Download после удаления: ошибка = %v, ожидалась NotFound", err)
	}
}

func TestContentTypeOf(t *testing.T) {
	cases := map[[2]string]string{
		{"", ".png"}:                         "image/png",
		{"application/octet-stream", ".zip"}: "application/zip",
		{"image/jpeg", ".jpg"}:               "image/jpeg",
		{"", ".bin"}:                         "application/octet-stream",
	}
	for in, want := range cases {
		if got := contentTypeOf(in[0], in[1]); got != want {
			t.Errorf("contentTypeOf(%q, %q) = %s, ожидалось %s", in[0], in[1], got, want)
		}
	}
}
