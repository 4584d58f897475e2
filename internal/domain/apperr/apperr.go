// Пакет apperr — доменные ошибки с явным видом (kind).
// Вид ошибки проходит через всю цепочку вызовов guard → service → handler
// и отображается в HTTP-статус только на границе сервиса.
package apperr

import (
	"errors"
	"fmt"
)

// Kind — вид доменной ошибки.
type Kind int

const (
	// KindInternal — непредвиденная ошибка (БД, сеть до другого сервиса).
	KindInternal Kind = iota
	// KindNotFound — проверка существования не прошла.
	KindNotFound
	// KindForbidden — проверка владения не прошла.
	KindForbidden
	// KindConflict — попытка повторного создания с противоречащими данными.
	KindConflict
	// KindUnauthorized — отсутствующий или недействительный токен / учётные данные.
	KindUnauthorized
	// KindValidation — некорректные входные данные.
	KindValidation
	// KindUnavailable — зависимость недоступна и операцию нельзя завершить.
	KindUnavailable
)

// String возвращает имя вида для логов.
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	case KindValidation:
		return "validation"
	case KindUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

// Error — доменная ошибка.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Error реализует интерфейс error.
func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Kind.String()
	}
}

// Unwrap возвращает причину.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is сравнивает по виду: errors.Is(err, apperr.ErrNotFound) истинно
// для любой ошибки вида KindNotFound.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Err == nil
}

// Эталонные ошибки для errors.Is.
var (
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrForbidden    = &Error{Kind: KindForbidden}
	ErrConflict     = &Error{Kind: KindConflict}
	ErrUnauthorized = &Error{Kind: KindUnauthorized}
	ErrValidation   = &Error{Kind: KindValidation}
	ErrUnavailable  = &Error{Kind: KindUnavailable}
)

// NotFound создаёт ошибку вида KindNotFound.
func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Forbidden создаёт ошибку вида KindForbidden.
func Forbidden(format string, args ...any) *Error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

// Conflict создаёт ошибку вида KindConflict.
func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// Unauthorized создаёт ошибку вида KindUnauthorized.
func Unauthorized(format string, args ...any) *Error {
	return &Error{Kind: KindUnauthorized, Message: fmt.Sprintf(format, args...)}
}

// Validation создаёт ошибку вида KindValidation.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Unavailable оборачивает ошибку недоступной зависимости.
func Unavailable(err error, format string, args ...any) *Error {
	return &Error{Kind: KindUnavailable, Message: fmt.Sprintf(format, args...), Err: err}
}

// Internal оборачивает непредвиденную ошибку.
func Internal(err error, format string, args ...any) *Error {
	return &Error{Kind: KindInternal, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf возвращает вид ошибки. Ошибки вне пакета считаются KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf возвращает сообщение доменной ошибки или пустую строку.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return ""
}
