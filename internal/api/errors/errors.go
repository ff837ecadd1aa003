// Пакет errors — конструкторы ошибок HTTP API сервиса таймеров.
// Единый формат: {"error": {"code": "...", "message": "..."}}.
// Все HTTP-ответы с ошибками должны использовать WriteError.
package errors //nolint:revive // конфликт имени со stdlib, импортируется как apierrors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/bigkaa/stagetimer/internal/domain/registry"
)

// Коды ошибок HTTP-слоя. Коды домена — registry.Code*.
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeFileTooLarge    = "FILE_TOO_LARGE"
	CodeRequestTooLarge = "REQUEST_TOO_LARGE"
	CodeInternalError   = "INTERNAL_ERROR"
)

// errorBody — структура тела ответа ошибки.
type errorBody struct {
	Error errorDetail `json:"error"`
}

// errorDetail — детали ошибки.
type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError записывает ответ ошибки в стандартном формате.
// statusCode — HTTP статус-код, code — машиночитаемый код, message — описание.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// statusByCode — HTTP статусы для кодов ошибок реестра.
var statusByCode = map[string]int{
	registry.CodeTimerNotFound:   http.StatusNotFound,
	registry.CodeUnknownFeature:  http.StatusBadRequest,
	registry.CodeNoFile:          http.StatusBadRequest,
	registry.CodeEmptyFilename:   http.StatusBadRequest,
	registry.CodeUnsupportedType: http.StatusBadRequest,
	registry.CodeStorageError:    http.StatusInternalServerError,
}

// FromRegistry записывает ошибку реестра с соответствующим HTTP статусом.
// Ошибки без кода отдаются как 500 INTERNAL_ERROR.
func FromRegistry(w http.ResponseWriter, err error) {
	var regErr *registry.Error
	if !stderrors.As(err, &regErr) {
		InternalError(w, "внутренняя ошибка")
		return
	}

	status, ok := statusByCode[regErr.Code]
	if !ok {
		status = http.StatusInternalServerError
	}

	// Детали ошибки хранилища (пути, errno) наружу не отдаются
	WriteError(w, status, regErr.Code, regErr.Message)
}

// --- Конструкторы для типичных ошибок ---

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// FileTooLarge — 413 файл превышает лимит.
func FileTooLarge(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusRequestEntityTooLarge, CodeFileTooLarge, message)
}

// RequestTooLarge — 413 тело JSON-запроса превышает лимит.
func RequestTooLarge(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusRequestEntityTooLarge, CodeRequestTooLarge, message)
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}
