package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bigkaa/goartstore/cloud-drive/internal/api/errors"
	"github.com/bigkaa/goartstore/cloud-drive/internal/api/middleware"
	"github.com/bigkaa/goartstore/cloud-drive/internal/domain/model"
	"github.com/bigkaa/goartstore/cloud-drive/internal/identity"
)

// AuthService — регистрация, вход и чтение пользователей.
type AuthService interface {
	Register(ctx context.Context, username, email, password string) (*identity.AuthResult, error)
	Login(ctx context.Context, email, password string) (*identity.AuthResult, error)
	GetUser(ctx context.Context, id uuid.UUID) (*model.User, error)
}

// TokenAuthority — проверка и отзыв токенов.
type TokenAuthority interface {
	Validate(ctx context.Context, token string) bool
	GetUserID(ctx context.Context, token string) (uuid.UUID, bool)
	Revoke(ctx context.Context, token string) error
}

// JWKSProvider отдаёт публичные ключи подписи.
type JWKSProvider interface {
	JWKS(ctx context.Context) (json.RawMessage, error)
}

// IdentityHandler — обработчик endpoints Identity Service.
type IdentityHandler struct {
	auth      AuthService
	authority TokenAuthority
	jwks      JWKSProvider
	logger    *slog.Logger
}

// NewIdentityHandler создаёт обработчик Identity Service.
func NewIdentityHandler(auth AuthService, authority TokenAuthority, jwks JWKSProvider, logger *slog.Logger) *IdentityHandler {
	return &IdentityHandler{
		auth:      auth,
		authority: authority,
		jwks:      jwks,
		logger:    logger.With(slog.String("component", "identity_handler")),
	}
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenRequest struct {
	Token string `json:"token"`
}

// userResponse — публичное представление пользователя (без хеша пароля).
type userResponse struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

type authResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      userResponse `json:"user"`
}

type validateResponse struct {
	IsValid bool `json:"isValid"`
}

type validateTokenResponse struct {
	IsValid bool   `json:"isValid"`
	UserID  string `json:"userId,omitempty"`
}

type userIDResponse struct {
	UserID string `json:"userId"`
}

// Routes регистрирует маршруты Identity Service.
func (h *IdentityHandler) Routes(r chi.Router) {
	r.Post("/api/auth/register", h.Register)
	r.Post("/api/auth/login", h.Login)
	r.Post("/api/auth/validate", h.Validate)
	r.Post("/api/auth/validate-token", h.ValidateToken)
	r.Post("/api/auth/user-id", h.UserID)
	r.Post("/api/auth/logout", h.Logout)
	r.Get("/api/users/{id}", h.GetUser)
	r.Get("/.well-known/jwks.json", h.JWKS)
}

// Register обрабатывает POST /api/auth/register.
func (h *IdentityHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.auth.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		errors.FromDomain(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAuthResponse(res))
}

// Login обрабатывает POST /api/auth/login.
func (h *IdentityHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		errors.FromDomain(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuthResponse(res))
}

// Validate обрабатывает POST /api/auth/validate.
// Токен берётся из тела, а если его нет — из Authorization.
func (h *IdentityHandler) Validate(w http.ResponseWriter, r *http.Request) {
	token, ok := h.token(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, validateResponse{IsValid: h.authority.Validate(r.Context(), token)})
}

// ValidateToken обрабатывает POST /api/auth/validate-token.
// Плохой токен — 200 с isValid=false, а не ошибка.
func (h *IdentityHandler) ValidateToken(w http.ResponseWriter, r *http.Request) {
	token, ok := h.token(w, r)
	if !ok {
		return
	}

	userID, valid := h.authority.GetUserID(r.Context(), token)
	if !valid {
		writeJSON(w, http.StatusOK, validateTokenResponse{IsValid: false})
		return
	}
	writeJSON(w, http.StatusOK, validateTokenResponse{IsValid: true, UserID: userID.String()})
}

// UserID обрабатывает POST /api/auth/user-id. Для плохого токена userId пустой.
func (h *IdentityHandler) UserID(w http.ResponseWriter, r *http.Request) {
	token, ok := h.token(w, r)
	if !ok {
		return
	}

	resp := userIDResponse{}
	if userID, valid := h.authority.GetUserID(r.Context(), token); valid {
		resp.UserID = userID.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

// Logout обрабатывает POST /api/auth/logout: отзывает bearer-токен.
func (h *IdentityHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.BearerToken(r)
	if !ok {
		errors.Unauthorized(w, "Отсутствует или неверен заголовок Authorization: ожидается Bearer <token>")
		return
	}

	if err := h.authority.Revoke(r.Context(), token); err != nil {
		errors.FromDomain(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Токен отозван"})
}

// GetUser обрабатывает GET /api/users/{id}. Пользователь видит только себя.
func (h *IdentityHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	token, ok := middleware.BearerToken(r)
	if !ok {
		errors.Unauthorized(w, "Отсутствует или неверен заголовок Authorization: ожидается Bearer <token>")
		return
	}
	caller, valid := h.authority.GetUserID(r.Context(), token)
	if !valid {
		errors.Unauthorized(w, "Недействительный или просроченный токен")
		return
	}
	if caller != id {
		errors.Forbidden(w, "Доступ к чужому профилю запрещён")
		return
	}

	u, err := h.auth.GetUser(r.Context(), id)
	if err != nil {
		errors.FromDomain(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// JWKS обрабатывает GET /.well-known/jwks.json.
func (h *IdentityHandler) JWKS(w http.ResponseWriter, r *http.Request) {
	raw, err := h.jwks.JWKS(r.Context())
	if err != nil {
		h.logger.Error("Ошибка формирования JWKS", slog.String("error", err.Error()))
		errors.InternalError(w, "Ошибка формирования JWKS")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

// token извлекает токен из тела {token} или заголовка Authorization.
func (h *IdentityHandler) token(w http.ResponseWriter, r *http.Request) (string, bool) {
	if r.ContentLength != 0 {
		var req tokenRequest
		if !decodeJSON(w, r, &req) {
			return "", false
		}
		if req.Token != "" {
			return req.Token, true
		}
	}
	if token, ok := middleware.BearerToken(r); ok {
		return token, true
	}
	errors.ValidationError(w, "Токен не передан")
	return "", false
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{ID: u.ID, Username: u.Username, Email: u.Email, CreatedAt: u.CreatedAt}
}

func toAuthResponse(res *identity.AuthResult) authResponse {
	return authResponse{Token: res.Token, ExpiresAt: res.ExpiresAt, User: toUserResponse(res.User)}
}
