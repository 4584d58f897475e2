package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	apierrors "github.com/bigkaa/goartstore/cloud-drive/internal/api/errors"
)

// UserIDHeader — заголовок с id пользователя, который gateway передаёт сервисам.
const UserIDHeader = "userId"

// contextKey — тип для ключей контекста.
type contextKey string

// ContextKeyUserID — id аутентифицированного пользователя в контексте запроса.
const ContextKeyUserID contextKey = "user_id"

// TokenValidator проверяет bearer-токен и возвращает владельца.
// Ошибка означает недоступность проверяющего сервиса, а не плохой токен.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (valid bool, userID uuid.UUID, err error)
}

// BearerToken извлекает токен из заголовка Authorization: Bearer <token>.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// BearerAuth проверяет токен каждого запроса, кроме путей с префиксами skip.
// id владельца токена кладётся в контекст (UserIDFromContext).
func BearerAuth(validator TokenValidator, logger *slog.Logger, skip ...string) func(http.Handler) http.Handler {
	logger = logger.With(slog.String("component", "bearer_auth"))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, prefix := range skip {
				if strings.HasPrefix(r.URL.Path, prefix) {
					next.ServeHTTP(w, r)
					return
				}
			}

			token, ok := BearerToken(r)
			if !ok {
				apierrors.Unauthorized(w, "Отсутствует или неверен заголовок Authorization: ожидается Bearer <token>")
				return
			}

			valid, userID, err := validator.ValidateToken(r.Context(), token)
			if err != nil {
				logger.Error("Проверка токена недоступна",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				apierrors.ServiceUnavailable(w, "Сервис проверки токенов недоступен")
				return
			}
			if !valid || userID == uuid.Nil {
				logger.Debug("Отклонён невалидный токен", slog.String("path", r.URL.Path))
				apierrors.Unauthorized(w, "Недействительный или просроченный токен")
				return
			}

			recordUserID(r.Context(), userID)
			ctx := context.WithValue(r.Context(), ContextKeyUserID, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserIDFromContext возвращает id пользователя, установленный BearerAuth.
func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(ContextKeyUserID).(uuid.UUID)
	return id, ok && id != uuid.Nil
}

// UserIDFromHeader разбирает заголовок userId. Сервисы за gateway
// принимают идентичность вызывающего только из этого заголовка.
func UserIDFromHeader(r *http.Request) (uuid.UUID, bool) {
	raw := r.Header.Get(UserIDHeader)
	if raw == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}
