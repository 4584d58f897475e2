package client

import (
	"context"
	"encoding/json"
	"encoding/pem"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	apierrors "github.com/bigkaa/goartstore/cloud-drive/internal/api/errors"
	"github.com/bigkaa/goartstore/cloud-drive/internal/domain/apperr"
	"github.com/bigkaa/goartstore/cloud-drive/internal/domain/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// --- Identity ---

func TestIdentityClient_ValidateToken(t *testing.T) {
	user := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/auth/validate-token" {
			t.Errorf("неожиданный запрос %s %s", r.Method, r.URL.Path)
		}
		var req tokenRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Token == "good" {
			writeJSON(w, http.StatusOK, map[string]any{"isValid": true, "userId": user.String()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"isValid": false})
	}))
	defer srv.Close()

	c := NewIdentity(srv.Client(), srv.URL+"/", testLogger())

	valid, id, err := c.ValidateToken(context.Background(), "good")
	if err != nil || !valid || id != user {
		t.Errorf("good: valid=%v id=%s err=%v", valid, id, err)
	}

	valid, id, err = c.ValidateToken(context.Background(), "bad")
	if err != nil || valid || id != uuid.Nil {
		t.Errorf("bad: valid=%v id=%s err=%v", valid, id, err)
	}
}

func TestIdentityClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewIdentity(&http.Client{Timeout: time.Second}, url, testLogger())
	_, _, err := c.ValidateToken(context.Background(), "x")
	if !errors.Is(err, apperr.ErrUnavailable) {
		t.Errorf("ошибка = %v, ожидалась Unavailable", err)
	}
}

// --- Metadata ---

func TestMetadataClient_ForwardsUserIDAndMapsErrors(t *testing.T) {
	owner := uuid.New()
	known := uuid.New()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller := r.Header.Get("userId")
		switch {
		case r.URL.Path == "/api/v1/files/"+known.String()+"/validate-ownership":
			writeJSON(w, http.StatusOK, map[string]bool{"belongsToUser": caller == owner.String()})
		case r.URL.Path == "/api/v1/files/"+known.String() && caller != owner.String():
			apierrors.Forbidden(w, "чужой файл")
		case r.URL.Path == "/api/v1/files/"+known.String() && r.Method == http.MethodDelete:
			writeJSON(w, http.StatusOK, map[string]string{"message": "ok"})
		case r.URL.Path == "/api/v1/files/"+known.String():
			writeJSON(w, http.StatusOK, model.FileMetadata{ID: known, UserID: owner, OriginalName: "a.txt"})
		case r.URL.Path == "/api/v1/files":
			writeJSON(w, http.StatusOK, map[string]any{"files": []model.FileMetadata{{ID: known, UserID: owner}}})
		default:
			apierrors.NotFound(w, "файл не найден")
		}
	}))
	defer srv.Close()

	c := NewMetadata(srv.Client(), srv.URL, testLogger())
	ctx := context.Background()
	stranger := uuid.New()

	if ok, err := c.ValidateOwnership(ctx, known, owner); err != nil || !ok {
		t.Errorf("ValidateOwnership владельца: %v %v", ok, err)
	}
	if ok, err := c.ValidateOwnership(ctx, known, stranger); err != nil || ok {
		t.Errorf("ValidateOwnership чужого: %v %v", ok, err)
	}

	rec, err := c.Get(ctx, known, owner)
	if err != nil || rec.OriginalName != "a.txt" {
		t.Errorf("Get: %+v %v", rec, err)
	}

	_, err = c.Get(ctx, known, stranger)
	if !errors.Is(err, apperr.ErrForbidden) || apperr.MessageOf(err) != "чужой файл" {
		t.Errorf("Get чужого: ошибка = %v, ожидался Forbidden", err)
	}

	if err := c.Delete(ctx, uuid.New(), owner); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Delete отсутствующего: ошибка = %v, ожидался NotFound", err)
	}
	if err := c.Delete(ctx, known, owner); err != nil {
		t.Errorf("Delete: %v", err)
	}

	files, err := c.List(ctx, owner)
	if err != nil || len(files) != 1 || files[0].ID != known {
		t.Errorf("List: %+v %v", files, err)
	}
}

// --- Storage ---

func TestStorageClient_DownloadAndDelete(t *testing.T) {
	id := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/v1/files/"+id.String()+"/download":
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte("содержимое"))
		case r.URL.Path == "/api/v1/files/"+id.String() && r.Method == http.MethodDelete:
			writeJSON(w, http.StatusOK, map[string]string{"message": "ok"})
		case r.Method == http.MethodDelete:
			apierrors.NotFound(w, "файл не найден")
		default:
			apierrors.ServiceUnavailable(w, "диск недоступен")
		}
	}))
	defer srv.Close()

	c := NewStorage(srv.Client(), srv.URL, testLogger())
	ctx := context.Background()

	resp, err := c.Download(ctx, id)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "содержимое" {
		t.Errorf("тело = %q", body)
	}

	if _, err := c.Download(ctx, uuid.New()); !errors.Is(err, apperr.ErrUnavailable) {
		t.Errorf("Download при 503: ошибка = %v, ожидалась Unavailable", err)
	}
	if err := c.Delete(ctx, id); err != nil {
		t.Errorf("Delete: %v", err)
	}
	if err := c.Delete(ctx, uuid.New()); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Delete отсутствующего: ошибка = %v, ожидался NotFound", err)
	}
}

// --- TLS ---

func TestNewHTTPClient_CACert(t *testing.T) {
	if _, err := NewHTTPClient("", time.Second, testLogger()); err != nil {
		t.Fatalf("без CA: %v", err)
	}

	if _, err := NewHTTPClient(filepath.Join(t.TempDir(), "missing.pem"), time.Second, testLogger()); err == nil {
		t.Error("ожидалась ошибка для отсутствующего файла")
	}

	bad := filepath.Join(t.TempDir(), "bad.pem")
	if err := os.WriteFile(bad, []byte("не сертификат"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewHTTPClient(bad, time.Second, testLogger()); err == nil {
		t.Error("ожидалась ошибка для файла без PEM")
	}

	srv := httptest.NewTLSServer(http.NotFoundHandler())
	defer srv.Close()
	good := filepath.Join(t.TempDir(), "ca.pem")
	if err := os.WriteFile(good, certPEM(srv), 0o600); err != nil {
		t.Fatal(err)
	}
	c, err := NewHTTPClient(good, time.Second, testLogger())
	if err != nil {
		t.Fatalf("с CA: %v", err)
	}
	resp, err := c.Get(srv.URL)
	if err != nil {
		t.Fatalf("TLS-запрос с доверенным CA: %v", err)
	}
	resp.Body.Close()
}

// certPEM кодирует сертификат тестового TLS-сервера в PEM.
func certPEM(srv *httptest.Server) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: srv.Certificate().Raw})
}
