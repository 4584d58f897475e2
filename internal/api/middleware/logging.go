// Пакет middleware — HTTP middleware сервисов cloud-drive:
// логирование запросов, Prometheus-метрики, bearer-аутентификация
// на gateway и идентификатор пользователя из заголовка userId.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// responseWriter — обёртка для перехвата статус-кода и размера ответа.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// requestInfo — сведения о запросе, которые внутренние middleware
// сообщают логгеру (BearerAuth выполняется уже внутри RequestLogger).
type requestInfo struct {
	userID uuid.UUID
}

type requestInfoKey struct{}

// recordUserID сообщает логгеру запроса аутентифицированного пользователя.
func recordUserID(ctx context.Context, userID uuid.UUID) {
	if info, ok := ctx.Value(requestInfoKey{}).(*requestInfo); ok {
		info.userID = userID
	}
}

// probePrefixes — пути проб и сбора метрик, успешные запросы к ним логируются на DEBUG.
var probePrefixes = []string{"/health/", "/metrics"}

func isProbe(path string) bool {
	for _, p := range probePrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// RequestLogger логирует каждый HTTP-запрос: метод, путь, статус,
// длительность, размер ответа, remote_addr и user_id вызывающего
// (из заголовка userId или из bearer-токена на gateway).
// Уровень: INFO (1xx-3xx), WARN (4xx), ERROR (5xx); успешные пробы — DEBUG.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	logger = logger.With(slog.String("component", "http"))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := newResponseWriter(w)

			info := &requestInfo{}
			if id, ok := UserIDFromHeader(r); ok {
				info.userID = id
			}
			r = r.WithContext(context.WithValue(r.Context(), requestInfoKey{}, info))

			next.ServeHTTP(wrapped, r)

			level := slog.LevelInfo
			switch {
			case wrapped.statusCode >= 500:
				level = slog.LevelError
			case wrapped.statusCode >= 400:
				level = slog.LevelWarn
			case isProbe(r.URL.Path):
				level = slog.LevelDebug
			}

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", wrapped.statusCode),
				slog.Duration("duration", time.Since(start)),
				slog.Int64("bytes", wrapped.written),
				slog.String("remote_addr", r.RemoteAddr),
			}
			if info.userID != uuid.Nil {
				attrs = append(attrs, slog.String("user_id", info.userID.String()))
			}
			logger.LogAttrs(r.Context(), level, "HTTP запрос", attrs...)
		})
	}
}
