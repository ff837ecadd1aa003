// timers.go — HTTP handlers управления таймерами.
// Каждый endpoint соответствует одной операции реестра. Операции над
// несуществующим таймером (кроме флагов и изображений) отвечают {"ok": true}.
package handlers

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/stagetimer/internal/api/errors"
	"github.com/bigkaa/stagetimer/internal/api/middleware"
	"github.com/bigkaa/stagetimer/internal/domain/model"
	"github.com/bigkaa/stagetimer/internal/domain/registry"
)

// multipartMemory — часть multipart-формы, удерживаемая в памяти;
// остальное буферизуется во временные файлы.
const multipartMemory = 1 << 20

// maxJSONBody — лимит тела JSON-запросов управления таймером.
// Сообщение длиннее MaxMessageLength принимается и обрезается.
const maxJSONBody = 1 << 20

// Notifier — получатель уведомлений об изменении состояния (push-канал).
type Notifier interface {
	Notify()
}

// TimersHandler — обработчик endpoints управления таймерами.
type TimersHandler struct {
	reg           *registry.Registry
	notifier      Notifier
	maxUploadSize int64
	logger        *slog.Logger
}

// NewTimersHandler создаёт обработчик управления таймерами.
// notifier — nil, если push-канал не используется.
func NewTimersHandler(reg *registry.Registry, notifier Notifier, maxUploadSize int64, logger *slog.Logger) *TimersHandler {
	return &TimersHandler{
		reg:           reg,
		notifier:      notifier,
		maxUploadSize: maxUploadSize,
		logger:        logger.With(slog.String("component", "timers_handler")),
	}
}

// okResponse — ответ успешной операции.
type okResponse struct {
	OK       bool            `json:"ok"`
	ID       string          `json:"id,omitempty"`
	Features *model.Features `json:"features,omitempty"`
	ImageURL string          `json:"image_url,omitempty"`
}

// timerRequest — тело JSON-запросов управления таймером.
// Поля, отсутствующие в запросе, остаются nil.
type timerRequest struct {
	Label    *string         `json:"label"`
	Duration json.RawMessage `json:"duration"`
	Message  *string         `json:"message"`
	Feature  json.RawMessage `json:"feature"`
	Enabled  json.RawMessage `json:"enabled"`
}

// AddTimer обрабатывает POST /api/timers/add.
// При достигнутом лимите отвечает {"ok": true} без id.
func (h *TimersHandler) AddTimer(w http.ResponseWriter, _ *http.Request) {
	id, created := h.reg.Add()
	if created {
		h.changed("add")
	} else {
		middleware.OperationsTotal.WithLabelValues("add", "limit").Inc()
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true, ID: id})
}

// RemoveTimer обрабатывает POST /api/timer/{id}/remove.
func (h *TimersHandler) RemoveTimer(w http.ResponseWriter, r *http.Request) {
	h.reg.Remove(chi.URLParam(r, "id"))
	h.changed("remove")
	writeOK(w)
}

// SetLabel обрабатывает POST /api/timer/{id}/label. Тело: {"label": "..."}.
func (h *TimersHandler) SetLabel(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeTimerRequest(w, r)
	if !ok {
		return
	}

	label := ""
	if req.Label != nil {
		label = *req.Label
	}
	h.reg.SetLabel(chi.URLParam(r, "id"), label)
	h.changed("label")
	writeOK(w)
}

// StartTimer обрабатывает POST /api/timer/{id}/start. Тело: {"duration": секунды}.
// duration принимается числом или строкой с целым числом; дробная часть отбрасывается.
func (h *TimersHandler) StartTimer(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeTimerRequest(w, r)
	if !ok {
		return
	}

	duration, err := parseDuration(req.Duration)
	if err != nil {
		errors.ValidationError(w, err.Error())
		return
	}
	h.reg.Start(chi.URLParam(r, "id"), duration)
	h.changed("start")
	writeOK(w)
}

// StopTimer обрабатывает POST /api/timer/{id}/stop.
func (h *TimersHandler) StopTimer(w http.ResponseWriter, r *http.Request) {
	h.reg.Stop(chi.URLParam(r, "id"))
	h.changed("stop")
	writeOK(w)
}

// ResetTimer обрабатывает POST /api/timer/{id}/reset.
func (h *TimersHandler) ResetTimer(w http.ResponseWriter, r *http.Request) {
	h.reg.Reset(chi.URLParam(r, "id"))
	h.changed("reset")
	writeOK(w)
}

// SetMessage обрабатывает POST /api/timer/{id}/message. Тело: {"message": "..."}.
// Отсутствующее поле очищает сообщение.
func (h *TimersHandler) SetMessage(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeTimerRequest(w, r)
	if !ok {
		return
	}

	message := ""
	if req.Message != nil {
		message = *req.Message
	}
	h.reg.SetMessage(chi.URLParam(r, "id"), message)
	h.changed("message")
	writeOK(w)
}

// SetFeature обрабатывает POST /api/timer/{id}/feature.
// Тело: {"feature": "timer"|"message", "enabled": bool}.
// enabled приводится к bool по правилам истинности JSON-значений.
func (h *TimersHandler) SetFeature(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeTimerRequest(w, r)
	if !ok {
		return
	}

	var name string
	if len(req.Feature) > 0 {
		// Нестроковое значение — неизвестный флаг
		_ = json.Unmarshal(req.Feature, &name)
	}

	features, err := h.reg.SetFeature(chi.URLParam(r, "id"), name, truthy(req.Enabled))
	if err != nil {
		h.failed("feature", err)
		errors.FromRegistry(w, err)
		return
	}

	h.changed("feature")
	writeJSON(w, http.StatusOK, okResponse{OK: true, Features: &features})
}

// UploadImage обрабатывает POST /api/timer/{id}/image.
// Multipart form: image (обязательно), png/jpg/jpeg/gif.
func (h *TimersHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)

	var upload *registry.Upload

	err := r.ParseMultipartForm(multipartMemory)
	switch {
	case err == nil:
		defer r.MultipartForm.RemoveAll() //nolint:errcheck // временные файлы формы
	case isTooLarge(err):
		h.failed("image", err)
		errors.FileTooLarge(w, fmt.Sprintf("Размер запроса превышает %d байт", h.maxUploadSize))
		return
	case stderrors.Is(err, http.ErrNotMultipart):
		// Файла нет: реестр ответит TIMER_NOT_FOUND или NO_FILE
	default:
		h.failed("image", err)
		errors.ValidationError(w, "Ошибка разбора multipart: "+err.Error())
		return
	}

	if err == nil {
		file, header, ferr := r.FormFile("image")
		if ferr == nil {
			defer file.Close()
			upload = &registry.Upload{Filename: header.Filename, Reader: file}
		}
	}

	url, err := h.reg.AttachImage(id, upload)
	if err != nil {
		h.failed("image", err)
		if isTooLarge(err) {
			errors.FileTooLarge(w, fmt.Sprintf("Размер запроса превышает %d байт", h.maxUploadSize))
			return
		}
		errors.FromRegistry(w, err)
		return
	}

	h.changed("image")
	writeJSON(w, http.StatusOK, okResponse{OK: true, ImageURL: url})
}

// DeleteImage обрабатывает DELETE /api/timer/{id}/image.
func (h *TimersHandler) DeleteImage(w http.ResponseWriter, r *http.Request) {
	if err := h.reg.DetachImage(chi.URLParam(r, "id")); err != nil {
		h.failed("image_delete", err)
		errors.FromRegistry(w, err)
		return
	}

	h.changed("image_delete")
	writeOK(w)
}

// changed фиксирует успешную операцию и уведомляет push-канал.
func (h *TimersHandler) changed(operation string) {
	middleware.OperationsTotal.WithLabelValues(operation, "ok").Inc()
	middleware.TimersTotal.Set(float64(h.reg.Count()))
	if h.notifier != nil {
		h.notifier.Notify()
	}
}

// failed фиксирует неуспешную операцию.
func (h *TimersHandler) failed(operation string, err error) {
	middleware.OperationsTotal.WithLabelValues(operation, "error").Inc()
	h.logger.Debug("Операция отклонена",
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
}

// decodeTimerRequest читает JSON-тело запроса. Пустое тело — пустой объект.
// При некорректном JSON пишет 400, при теле больше maxJSONBody — 413,
// и возвращает false.
func decodeTimerRequest(w http.ResponseWriter, r *http.Request) (*timerRequest, bool) {
	var req timerRequest

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err != nil {
		if isTooLarge(err) {
			errors.RequestTooLarge(w, fmt.Sprintf("Размер тела запроса превышает %d байт", maxJSONBody))
			return nil, false
		}
		errors.ValidationError(w, "Ошибка чтения тела запроса: "+err.Error())
		return nil, false
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return &req, true
	}

	if err := json.Unmarshal(body, &req); err != nil {
		errors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return nil, false
	}
	return &req, true
}

// parseDuration разбирает длительность в секундах: число (дробная часть
// отбрасывается) или строка с целым числом. Отсутствие и null — 0.
func parseDuration(raw json.RawMessage) (int64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return 0, nil
	}

	var num float64
	if err := json.Unmarshal(raw, &num); err == nil {
		return clampSeconds(num), nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("некорректная длительность %q", s)
		}
		return n, nil
	}

	return 0, stderrors.New("некорректная длительность: ожидалось число секунд")
}

// clampSeconds отбрасывает дробную часть и ограничивает значение диапазоном int64.
func clampSeconds(v float64) int64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v >= math.MaxInt64:
		return math.MaxInt64
	case v <= math.MinInt64:
		return math.MinInt64
	}
	return int64(v)
}

// truthy приводит JSON-значение к bool: false, null, 0, "", [] и {} — ложь,
// остальное — истина. Отсутствующее значение — ложь.
func truthy(raw json.RawMessage) bool {
	if len(bytes.TrimSpace(raw)) == 0 {
		return false
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}

	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case float64:
		return val != 0
	case string:
		return val != ""
	case []any:
		return len(val) > 0
	case map[string]any:
		return len(val) > 0
	}
	return true
}

// isTooLarge проверяет, что ошибка вызвана превышением MaxBytesReader.
func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return stderrors.As(err, &maxErr)
}

func writeOK(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// writeJSON вспомогательная функция для записи JSON-ответа.
func writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}
