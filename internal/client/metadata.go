package client

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/bigkaa/goartstore/cloud-drive/internal/domain/model"
)

// MetadataClient — вызовы Metadata Service от имени пользователя.
type MetadataClient struct {
	base
}

// NewMetadata создаёт клиент Metadata Service.
func NewMetadata(httpClient *http.Client, baseURL string, logger *slog.Logger) *MetadataClient {
	return &MetadataClient{base: newBase(httpClient, baseURL, "metadata-service", "metadata_client", logger)}
}

// ValidateOwnership — POST /api/v1/files/{id}/validate-ownership.
func (c *MetadataClient) ValidateOwnership(ctx context.Context, fileID, userID uuid.UUID) (bool, error) {
	var resp struct {
		BelongsToUser bool `json:"belongsToUser"`
	}
	path := "/api/v1/files/" + fileID.String() + "/validate-ownership"
	if err := c.doJSON(ctx, http.MethodPost, path, userID, nil, &resp); err != nil {
		return false, err
	}
	return resp.BelongsToUser, nil
}

// Delete — DELETE /api/v1/files/{id}. 404/403 возвращаются как NotFound/Forbidden.
func (c *MetadataClient) Delete(ctx context.Context, fileID, userID uuid.UUID) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/v1/files/"+fileID.String(), userID, nil, nil)
}

// Get — GET /api/v1/files/{id}.
func (c *MetadataClient) Get(ctx context.Context, fileID, userID uuid.UUID) (*model.FileMetadata, error) {
	var rec model.FileMetadata
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/files/"+fileID.String(), userID, nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// List — GET /api/v1/files.
func (c *MetadataClient) List(ctx context.Context, userID uuid.UUID) ([]model.FileMetadata, error) {
	var resp struct {
		Files []model.FileMetadata `json:"files"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/files", userID, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Files == nil {
		resp.Files = []model.FileMetadata{}
	}
	return resp.Files, nil
}
