// Пакет client — HTTP-клиенты gateway к Identity, Metadata и Storage Service.
// Ответы с ошибками восстанавливаются в доменные ошибки apperr,
// сетевые сбои становятся apperr.Unavailable.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	apierrors "github.com/bigkaa/goartstore/cloud-drive/internal/api/errors"
	"github.com/bigkaa/goartstore/cloud-drive/internal/api/middleware"
	"github.com/bigkaa/goartstore/cloud-drive/internal/domain/apperr"
)

// NewHTTPClient создаёт http.Client с таймаутом и, при caCertPath,
// дополнительным CA в пуле доверия.
func NewHTTPClient(caCertPath string, timeout time.Duration, logger *slog.Logger) (*http.Client, error) {
	transport := &http.Transport{
		MaxIdleConnsPerHost: 10,
	}

	if caCertPath != "" {
		tlsConfig, err := buildTLSConfig(caCertPath)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA-сертификата: %w", err)
		}
		transport.TLSClientConfig = tlsConfig
		logger.Info("CA-сертификат добавлен в пул доверия",
			slog.String("ca_cert", caCertPath),
		)
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}, nil
}

// buildTLSConfig создаёт TLS-конфигурацию с кастомным CA-сертификатом.
func buildTLSConfig(caCertPath string) (*tls.Config, error) {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, fmt.Errorf("чтение CA-сертификата: %w", err)
	}

	caCertPool, err := x509.SystemCertPool()
	if err != nil {
		caCertPool = x509.NewCertPool()
	}
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("в %s нет PEM-сертификатов", caCertPath)
	}

	return &tls.Config{
		RootCAs:    caCertPool,
		MinVersion: tls.VersionTLS12,
	}, nil
}

// base — общая часть клиентов: базовый URL, http.Client, имя сервиса для ошибок.
type base struct {
	http    *http.Client
	baseURL string
	service string
	logger  *slog.Logger
}

func newBase(httpClient *http.Client, baseURL, service, component string, logger *slog.Logger) base {
	return base{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		service: service,
		logger:  logger.With(slog.String("component", component)),
	}
}

// do выполняет запрос. body сериализуется в JSON, если не nil.
// userID, если не Nil, передаётся в заголовке userId.
// Вызывающий код закрывает resp.Body при успехе.
func (b *base) do(ctx context.Context, method, path string, userID uuid.UUID, body any) (*http.Response, error) {
	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("сериализация запроса к %s: %w", b.service, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("создание запроса к %s: %w", b.service, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if userID != uuid.Nil {
		req.Header.Set(middleware.UserIDHeader, userID.String())
	}

	resp, err := b.http.Do(req) //nolint:gosec // URL из конфигурации
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		b.logger.Warn("Сервис недоступен",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return nil, apperr.Unavailable(err, "%s недоступен", b.service)
	}
	return resp, nil
}

// doJSON выполняет запрос и декодирует ответ 2xx в out (если не nil).
// Ответы 4xx/5xx превращаются в доменные ошибки.
func (b *base) doJSON(ctx context.Context, method, path string, userID uuid.UUID, body, out any) error {
	resp, err := b.do(ctx, method, path, userID, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apierrors.ToDomain(resp, b.service)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperr.Internal(err, "некорректный ответ %s", b.service)
	}
	return nil
}
