package client

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	apierrors "github.com/bigkaa/goartstore/cloud-drive/internal/api/errors"
)

// StorageClient — вызовы Storage Service.
type StorageClient struct {
	base
}

// NewStorage создаёт клиент Storage Service.
func NewStorage(httpClient *http.Client, baseURL string, logger *slog.Logger) *StorageClient {
	return &StorageClient{base: newBase(httpClient, baseURL, "storage-service", "storage_client", logger)}
}

// Delete — DELETE /api/v1/files/{id}.
func (c *StorageClient) Delete(ctx context.Context, fileID uuid.UUID) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/v1/files/"+fileID.String(), uuid.Nil, nil, nil)
}

// Download — GET /api/v1/files/{id}/download.
// Возвращает ответ 200, вызывающий код ОБЯЗАН закрыть resp.Body.
func (c *StorageClient) Download(ctx context.Context, fileID uuid.UUID) (*http.Response, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/v1/files/"+fileID.String()+"/download", uuid.Nil, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, apierrors.ToDomain(resp, c.service)
	}
	return resp, nil
}
