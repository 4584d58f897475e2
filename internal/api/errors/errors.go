// Пакет errors — ответы с ошибками в едином формате cloud-drive:
// {"error": {"code": "...", "message": "..."}}.
// Все HTTP-ответы с ошибками пишутся через WriteError или FromDomain.
package errors

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/bigkaa/goartstore/cloud-drive/internal/domain/apperr"
)

// Машиночитаемые коды ошибок.
const (
	CodeValidationError    = "VALIDATION_ERROR"
	CodeNotFound           = "NOT_FOUND"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeConflict           = "CONFLICT"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeInternalError      = "INTERNAL_ERROR"
)

// Body — тело ответа ошибки.
type Body struct {
	Error Detail `json:"error"`
}

// Detail — детали ошибки.
type Detail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError записывает ответ ошибки в стандартном формате.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(Body{
		Error: Detail{
			Code:    code,
			Message: message,
		},
	})
}

// FromDomain переводит доменную ошибку в HTTP-ответ.
// Внутренние ошибки логируются, клиенту уходит только общее сообщение.
func FromDomain(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		NotFound(w, apperr.MessageOf(err))
	case apperr.KindForbidden:
		Forbidden(w, apperr.MessageOf(err))
	case apperr.KindConflict:
		Conflict(w, apperr.MessageOf(err))
	case apperr.KindUnauthorized:
		Unauthorized(w, apperr.MessageOf(err))
	case apperr.KindValidation:
		ValidationError(w, apperr.MessageOf(err))
	case apperr.KindUnavailable:
		logger.Warn("Зависимость недоступна", slog.String("error", err.Error()))
		ServiceUnavailable(w, apperr.MessageOf(err))
	default:
		logger.Error("Внутренняя ошибка", slog.String("error", err.Error()))
		InternalError(w, "Внутренняя ошибка сервера")
	}
}

// ToDomain восстанавливает доменную ошибку из ответа удалённого сервиса.
// Тело читается не больше 64 КБ.
func ToDomain(resp *http.Response, service string) error {
	var body Body
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body)

	msg := body.Error.Message
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return apperr.NotFound("%s", msg)
	case http.StatusForbidden:
		return apperr.Forbidden("%s", msg)
	case http.StatusConflict:
		return apperr.Conflict("%s", msg)
	case http.StatusUnauthorized:
		return apperr.Unauthorized("%s", msg)
	case http.StatusBadRequest:
		return apperr.Validation("%s", msg)
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return apperr.Unavailable(nil, "%s недоступен: %s", service, msg)
	}
	return apperr.Internal(nil, "%s вернул статус %d: %s", service, resp.StatusCode, msg)
}

// --- Конструкторы для типичных ошибок ---

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// NotFound — 404 ресурс не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// Unauthorized — 401 требуется аутентификация.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

// Forbidden — 403 недостаточно прав.
func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeForbidden, message)
}

// Conflict — 409 конфликт.
func Conflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeConflict, message)
}

// ServiceUnavailable — 503 зависимость недоступна.
func ServiceUnavailable(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusServiceUnavailable, CodeServiceUnavailable, message)
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}
