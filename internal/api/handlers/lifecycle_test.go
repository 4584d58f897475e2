package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bigkaa/goartstore/cloud-drive/internal/api/middleware"
	"github.com/bigkaa/goartstore/cloud-drive/internal/cache"
	"github.com/bigkaa/goartstore/cloud-drive/internal/client"
	"github.com/bigkaa/goartstore/cloud-drive/internal/coordinator"
	"github.com/bigkaa/goartstore/cloud-drive/internal/domain/apperr"
	"github.com/bigkaa/goartstore/cloud-drive/internal/domain/model"
	"github.com/bigkaa/goartstore/cloud-drive/internal/metadata"
	"github.com/bigkaa/goartstore/cloud-drive/internal/repository"
)

// memFileRepo — in-memory реализация repository.FileMetadataRepository.
type memFileRepo struct {
	mu      sync.Mutex
	records map[uuid.UUID]*model.FileMetadata
}

func newMemFileRepo() *memFileRepo {
	return &memFileRepo{records: make(map[uuid.UUID]*model.FileMetadata)}
}

func (m *memFileRepo) live(id uuid.UUID) (*model.FileMetadata, bool) {
	r, ok := m.records[id]
	if !ok || r.IsDeleted {
		return nil, false
	}
	return r, true
}

func (m *memFileRepo) Insert(_ context.Context, f *model.FileMetadata) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[f.ID]; ok {
		return false, nil
	}
	cp := *f
	m.records[f.ID] = &cp
	return true, nil
}

func (m *memFileRepo) FindAny(_ context.Context, id uuid.UUID) (*model.FileMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memFileRepo) Get(_ context.Context, id uuid.UUID) (*model.FileMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.live(id)
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memFileRepo) Exists(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.live(id)
	return ok, nil
}

func (m *memFileRepo) OwnerOf(_ context.Context, id uuid.UUID) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.live(id)
	if !ok {
		return uuid.Nil, repository.ErrNotFound
	}
	return r.UserID, nil
}

func (m *memFileRepo) ListByUser(_ context.Context, userID uuid.UUID) ([]*model.FileMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.FileMetadata
	for _, r := range m.records {
		if r.UserID == userID && !r.IsDeleted {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UploadedAt.After(out[j].UploadedAt) })
	return out, nil
}

func (m *memFileRepo) SoftDelete(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.live(id)
	if !ok {
		return repository.ErrNotFound
	}
	r.IsDeleted = true
	r.DeletedAt = &at
	return nil
}

func (m *memFileRepo) TouchLastAccessed(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.live(id); ok {
		r.LastAccessedAt = &at
	}
	return nil
}

// recordingStorage — Storage Service, запоминающий удаления.
type recordingStorage struct {
	mu      sync.Mutex
	deleted []uuid.UUID
}

func (s *recordingStorage) Delete(_ context.Context, fileID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, fileID)
	return nil
}

func (s *recordingStorage) Download(context.Context, uuid.UUID) (*http.Response, error) {
	return nil, apperr.NotFound("blob отсутствует")
}

func (s *recordingStorage) deletes() []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uuid.UUID(nil), s.deleted...)
}

// fileSystem — Metadata Service (guard, потребитель событий, HTTP) и gateway
// поверх общего кэша и in-memory репозитория.
type fileSystem struct {
	events   *metadata.EventHandler
	metadata func(chi.Router)
	gateway  func(chi.Router)
	storage  *recordingStorage
}

func newFileSystem(t *testing.T) *fileSystem {
	t.Helper()
	logger := testLogger()

	store := cache.NewStore(cache.NewLocal(1000, cache.MaxTTL), 0, logger)
	guard := metadata.NewGuard(newMemFileRepo(), store, logger)
	metadataHandler := NewMetadataHandler(guard, logger)

	metadataRouter := chi.NewRouter()
	metadataHandler.Routes(metadataRouter)
	srv := httptest.NewServer(metadataRouter)
	t.Cleanup(srv.Close)

	metadataClient := client.NewMetadata(srv.Client(), srv.URL, logger)
	storage := &recordingStorage{}
	coord := coordinator.New(metadataClient, storage, logger)

	return &fileSystem{
		events:   metadata.NewEventHandler(guard, logger),
		metadata: metadataHandler.Routes,
		gateway:  NewGatewayHandler(coord, metadataClient, logger).Routes,
		storage:  storage,
	}
}

func (fs *fileSystem) publish(t *testing.T, ev model.UploadEvent) {
	t.Helper()
	body, err := json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}
	if err := fs.events.Handle(context.Background(), body); err != nil {
		t.Fatalf("Handle ошибка: %v", err)
	}
}

// metadataGet — GET /api/v1/files/{id} к Metadata Service от имени пользователя.
func (fs *fileSystem) metadataGet(fileID, userID uuid.UUID) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/files/"+fileID.String(), nil)
	req.Header.Set(middleware.UserIDHeader, userID.String())
	return serve(fs.metadata, req)
}

func (fs *fileSystem) gatewayDo(method string, fileID, userID uuid.UUID) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/api/v1/files/"+fileID.String(), nil)
	return serve(fs.gateway, authenticated(req, userID))
}

func uploadEvent(fileID, userID uuid.UUID) model.UploadEvent {
	return model.UploadEvent{
		FileID:       fileID,
		UserID:       userID,
		FileName:     fileID.String() + ".pdf",
		OriginalName: "report.pdf",
		StoragePath:  "/data/" + fileID.String() + ".pdf",
		FileSize:     4096,
		ContentType:  "application/pdf",
		UploadedAt:   time.Now().UTC(),
	}
}

func TestLifecycle_UploadEventMakesFileVisibleToOwnerOnly(t *testing.T) {
	fs := newFileSystem(t)
	fileID, owner, stranger := uuid.New(), uuid.New(), uuid.New()
	ev := uploadEvent(fileID, owner)

	fs.publish(t, ev)

	rec := fs.metadataGet(fileID, owner)
	if rec.Code != http.StatusOK {
		t.Fatalf("владелец: статус = %d, ожидался 200", rec.Code)
	}
	var got model.FileMetadata
	decodeBody(t, rec, &got)
	if got.ID != fileID || got.UserID != owner {
		t.Errorf("запись = %+v", got)
	}
	if got.Size != ev.FileSize || got.OriginalName != ev.OriginalName || got.FileName != ev.FileName {
		t.Errorf("size=%d originalName=%q fileName=%q не совпадают с событием",
			got.Size, got.OriginalName, got.FileName)
	}

	if rec := fs.metadataGet(fileID, stranger); rec.Code != http.StatusForbidden {
		t.Errorf("чужой пользователь: статус = %d, ожидался 403", rec.Code)
	}

	// Через gateway: тот же ответ после проверки токена
	if rec := fs.gatewayDo(http.MethodGet, fileID, owner); rec.Code != http.StatusOK {
		t.Errorf("gateway владелец: статус = %d, ожидался 200", rec.Code)
	}
	if rec := fs.gatewayDo(http.MethodGet, fileID, stranger); rec.Code != http.StatusForbidden {
		t.Errorf("gateway чужой: статус = %d, ожидался 403", rec.Code)
	}
}

func TestLifecycle_DeleteRemovesMetadataAndBlob(t *testing.T) {
	fs := newFileSystem(t)
	fileID, owner, stranger := uuid.New(), uuid.New(), uuid.New()
	fs.publish(t, uploadEvent(fileID, owner))

	// прогреваем все уровни кэша
	if rec := fs.metadataGet(fileID, owner); rec.Code != http.StatusOK {
		t.Fatalf("статус до удаления = %d", rec.Code)
	}

	if rec := fs.gatewayDo(http.MethodDelete, fileID, stranger); rec.Code != http.StatusForbidden {
		t.Errorf("удаление чужим: статус = %d, ожидался 403", rec.Code)
	}
	if n := len(fs.storage.deletes()); n != 0 {
		t.Fatalf("после отказа в удалении blob удалялся %d раз", n)
	}

	if rec := fs.gatewayDo(http.MethodDelete, fileID, owner); rec.Code != http.StatusOK {
		t.Fatalf("удаление владельцем: статус = %d, ожидался 200", rec.Code)
	}
	if got := fs.storage.deletes(); len(got) != 1 || got[0] != fileID {
		t.Errorf("удаления blob-а = %v, ожидалось [%s]", got, fileID)
	}

	if rec := fs.metadataGet(fileID, owner); rec.Code != http.StatusNotFound {
		t.Errorf("после удаления: статус = %d, ожидался 404", rec.Code)
	}
	if rec := fs.gatewayDo(http.MethodGet, fileID, owner); rec.Code != http.StatusNotFound {
		t.Errorf("gateway после удаления: статус = %d, ожидался 404", rec.Code)
	}
	if rec := fs.gatewayDo(http.MethodDelete, fileID, owner); rec.Code != http.StatusNotFound {
		t.Errorf("повторное удаление: статус = %d, ожидался 404", rec.Code)
	}

	// Повтор события загрузки не возвращает удалённый файл
	fs.publish(t, uploadEvent(fileID, owner))
	if rec := fs.metadataGet(fileID, owner); rec.Code != http.StatusNotFound {
		t.Errorf("после повтора события: статус = %d, ожидался 404", rec.Code)
	}
}
