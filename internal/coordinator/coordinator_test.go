package coordinator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/bigkaa/goartstore/cloud-drive/internal/domain/apperr"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockMetadata — мок Metadata.
type mockMetadata struct {
	ValidateOwnershipFn func(ctx context.Context, fileID, userID uuid.UUID) (bool, error)
	DeleteFn            func(ctx context.Context, fileID, userID uuid.UUID) error
	calls               []string
}

func (m *mockMetadata) ValidateOwnership(ctx context.Context, fileID, userID uuid.UUID) (bool, error) {
	m.calls = append(m.calls, "metadata.validate")
	return m.ValidateOwnershipFn(ctx, fileID, userID)
}

func (m *mockMetadata) Delete(ctx context.Context, fileID, userID uuid.UUID) error {
	m.calls = append(m.calls, "metadata.delete")
	return m.DeleteFn(ctx, fileID, userID)
}

// mockStorage — мок Storage.
type mockStorage struct {
	DeleteFn   func(ctx context.Context, fileID uuid.UUID) error
	DownloadFn func(ctx context.Context, fileID uuid.UUID) (*http.Response, error)
	deletes    int
	downloads  int
}

func (m *mockStorage) Delete(ctx context.Context, fileID uuid.UUID) error {
	m.deletes++
	if m.DeleteFn == nil {
		return nil
	}
	return m.DeleteFn(ctx, fileID)
}

func (m *mockStorage) Download(ctx context.Context, fileID uuid.UUID) (*http.Response, error) {
	m.downloads++
	return m.DownloadFn(ctx, fileID)
}

func TestDelete_MetadataThenStorage(t *testing.T) {
	md := &mockMetadata{DeleteFn: func(context.Context, uuid.UUID, uuid.UUID) error { return nil }}
	st := &mockStorage{}
	c := New(md, st, testLogger())

	if err := c.Delete(context.Background(), uuid.New(), uuid.New()); err != nil {
		t.Fatalf("Delete ошибка: %v", err)
	}
	if len(md.calls) != 1 || md.calls[0] != "metadata.delete" {
		t.Errorf("вызовы metadata = %v", md.calls)
	}
	if st.deletes != 1 {
		t.Errorf("удалений blob-а = %d, ожидалось 1", st.deletes)
	}
}

func TestDelete_MetadataErrorsAreReturnedAndStorageUntouched(t *testing.T) {
	for _, metaErr := range []error{
		apperr.NotFound("файл не найден"),
		apperr.Forbidden("чужой файл"),
		apperr.Unavailable(nil, "metadata-service недоступен"),
	} {
		md := &mockMetadata{DeleteFn: func(context.Context, uuid.UUID, uuid.UUID) error { return metaErr }}
		st := &mockStorage{}
		c := New(md, st, testLogger())

		err := c.Delete(context.Background(), uuid.New(), uuid.New())
		if apperr.KindOf(err) != apperr.KindOf(metaErr) {
			t.Errorf("ошибка = %v, ожидалась %v", err, metaErr)
		}
		if st.deletes != 0 {
			t.Errorf("%v: blob удалён при ошибке метаданных", metaErr)
		}
	}
}

func TestDelete_StorageFailureIsCompensatedNotReturned(t *testing.T) {
	md := &mockMetadata{DeleteFn: func(context.Context, uuid.UUID, uuid.UUID) error { return nil }}
	st := &mockStorage{DeleteFn: func(context.Context, uuid.UUID) error {
		return apperr.Unavailable(errors.New("connection refused"), "storage-service недоступен")
	}}
	c := New(md, st, testLogger())

	before := testutil.ToFloat64(compensationFailuresTotal)
	if err := c.Delete(context.Background(), uuid.New(), uuid.New()); err != nil {
		t.Fatalf("ошибка хранилища не должна возвращаться: %v", err)
	}
	if got := testutil.ToFloat64(compensationFailuresTotal) - before; got != 1 {
		t.Errorf("прирост счётчика компенсаций = %v, ожидался 1", got)
	}
}

func TestDelete_StorageNotFoundIsNotAFailure(t *testing.T) {
	md := &mockMetadata{DeleteFn: func(context.Context, uuid.UUID, uuid.UUID) error { return nil }}
	st := &mockStorage{DeleteFn: func(context.Context, uuid.UUID) error { return apperr.NotFound("нет") }}
	c := New(md, st, testLogger())

	before := testutil.ToFloat64(compensationFailuresTotal)
	if err := c.Delete(context.Background(), uuid.New(), uuid.New()); err != nil {
		t.Fatal(err)
	}
	if got := testutil.ToFloat64(compensationFailuresTotal) - before; got != 0 {
		t.Errorf("прирост счётчика компенсаций = %v, ожидался 0", got)
	}
}

func TestDelete_StorageCallSurvivesClientCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	md := &mockMetadata{DeleteFn: func(context.Context, uuid.UUID, uuid.UUID) error {
		cancel() // клиент отключился после удаления метаданных
		return nil
	}}
	st := &mockStorage{DeleteFn: func(ctx context.Context, _ uuid.UUID) error {
		return ctx.Err()
	}}
	c := New(md, st, testLogger())

	before := testutil.ToFloat64(compensationFailuresTotal)
	if err := c.Delete(ctx, uuid.New(), uuid.New()); err != nil {
		t.Fatal(err)
	}
	if got := testutil.ToFloat64(compensationFailuresTotal) - before; got != 0 {
		t.Errorf("удаление blob-а получило отменённый контекст")
	}
}

func TestDownload_AuthorizesFirst(t *testing.T) {
	owner := uuid.New()
	md := &mockMetadata{ValidateOwnershipFn: func(_ context.Context, _ uuid.UUID, userID uuid.UUID) (bool, error) {
		return userID == owner, nil
	}}
	st := &mockStorage{DownloadFn: func(context.Context, uuid.UUID) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader("data"))}, nil
	}}
	c := New(md, st, testLogger())
	fileID := uuid.New()

	resp, err := c.Download(context.Background(), fileID, owner)
	if err != nil {
		t.Fatalf("Download владельца: %v", err)
	}
	resp.Body.Close()

	_, err = c.Download(context.Background(), fileID, uuid.New())
	if !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("Download чужого: ошибка = %v, ожидался Forbidden", err)
	}
	if st.downloads != 1 {
		t.Errorf("скачиваний = %d, ожидалось 1", st.downloads)
	}
}

func TestAuthorize_PropagatesUnavailable(t *testing.T) {
	md := &mockMetadata{ValidateOwnershipFn: func(context.Context, uuid.UUID, uuid.UUID) (bool, error) {
		return false, apperr.Unavailable(nil, "metadata-service недоступен")
	}}
	c := New(md, &mockStorage{}, testLogger())

	if err := c.Authorize(context.Background(), uuid.New(), uuid.New()); !errors.Is(err, apperr.ErrUnavailable) {
		t.Errorf("ошибка = %v, ожидалась Unavailable", err)
	}
}
