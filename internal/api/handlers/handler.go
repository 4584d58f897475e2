// Пакет handlers — HTTP-обработчики сервисов cloud-drive.
// Каждый обработчик регистрирует свои маршруты через Routes(chi.Router),
// ошибки сервисного слоя переводятся в HTTP через errors.FromDomain.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bigkaa/goartstore/cloud-drive/internal/api/errors"
	"github.com/bigkaa/goartstore/cloud-drive/internal/api/middleware"
)

// maxJSONBody — ограничение тела JSON-запросов.
const maxJSONBody = 1 << 20

// messageResponse — ответ операций без данных.
type messageResponse struct {
	Message string `json:"message"`
}

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeJSON разбирает тело запроса. При ошибке пишет 400 и возвращает false.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(dst); err != nil {
		errors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return false
	}
	return true
}

// idParam разбирает {id} из пути. При ошибке пишет 400 и возвращает false.
func idParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		errors.ValidationError(w, "Некорректный идентификатор: ожидается UUID")
		return uuid.Nil, false
	}
	return id, true
}

// callerFromHeader возвращает вызывающего из заголовка userId.
// Без заголовка пишет 401.
func callerFromHeader(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, ok := middleware.UserIDFromHeader(r)
	if !ok {
		errors.Unauthorized(w, "Отсутствует или некорректен заголовок userId")
		return uuid.Nil, false
	}
	return id, true
}

// callerFromContext возвращает пользователя, проверенного BearerAuth.
func callerFromContext(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		errors.Unauthorized(w, "Требуется аутентификация")
		return uuid.Nil, false
	}
	return id, true
}
