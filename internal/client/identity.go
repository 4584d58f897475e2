package client

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
)

// IdentityClient — удалённые вызовы TokenAuthority.
type IdentityClient struct {
	base
}

// NewIdentity создаёт клиент Identity Service.
func NewIdentity(httpClient *http.Client, baseURL string, logger *slog.Logger) *IdentityClient {
	return &IdentityClient{base: newBase(httpClient, baseURL, "identity-service", "identity_client", logger)}
}

type tokenRequest struct {
	Token string `json:"token"`
}

// ValidateToken — POST /api/auth/validate-token.
// Невалидный токен — (false, Nil, nil); ошибка — только при недоступности сервиса.
func (c *IdentityClient) ValidateToken(ctx context.Context, token string) (bool, uuid.UUID, error) {
	var resp struct {
		IsValid bool   `json:"isValid"`
		UserID  string `json:"userId"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/auth/validate-token", uuid.Nil, tokenRequest{Token: token}, &resp); err != nil {
		return false, uuid.Nil, err
	}
	if !resp.IsValid {
		return false, uuid.Nil, nil
	}

	userID, err := uuid.Parse(resp.UserID)
	if err != nil {
		c.logger.Warn("Identity вернул валидный токен без userId", slog.String("user_id", resp.UserID))
		return false, uuid.Nil, nil
	}
	return true, userID, nil
}
