// Пакет registry — реестр таймеров обратного отсчёта.
//
// Реестр владеет всеми таймерами (не более MaxTimers) и обеспечивает
// сквозные инварианты: выдачу идентификаторов по правилу max+1,
// связь флага "timer" с состоянием отсчёта и владение файлами изображений
// (один файл — один таймер, удаление при замене и при удалении таймера).
//
// Потокобезопасен через sync.RWMutex: мутации под Lock, снимки под RLock.
package registry

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/bigkaa/stagetimer/internal/domain/model"
	"github.com/bigkaa/stagetimer/internal/storage/filestore"
)

const (
	// MaxTimers — максимальное количество таймеров в реестре.
	MaxTimers = 3
	// MaxMessageLength — максимальная длина сообщения в символах (code points).
	MaxMessageLength = 256
	// MaxDurationSeconds — верхняя граница длительности: момент окончания
	// должен представляться через time.Duration.
	MaxDurationSeconds = math.MaxInt64 / int64(time.Second)
)

// Коды ошибок реестра. Операции над несуществующим таймером, кроме
// флагов и изображений, ошибок не возвращают.
const (
	CodeTimerNotFound   = "TIMER_NOT_FOUND"
	CodeUnknownFeature  = "UNKNOWN_FEATURE"
	CodeNoFile          = "NO_FILE"
	CodeEmptyFilename   = "EMPTY_FILENAME"
	CodeUnsupportedType = "UNSUPPORTED_TYPE"
	CodeStorageError    = "STORAGE_ERROR"
)

// allowedExtensions — допустимые расширения изображений (в нижнем регистре).
var allowedExtensions = map[string]bool{
	"png":  true,
	"jpg":  true,
	"jpeg": true,
	"gif":  true,
}

// ImageStore — хранилище файлов изображений.
// DeleteFile не должен считать ошибкой отсутствие файла.
type ImageStore interface {
	SaveFile(reader io.Reader, storageName string) (*filestore.SaveResult, error)
	DeleteFile(storageName string) error
}

// Upload — загружаемый файл изображения.
type Upload struct {
	// Filename — оригинальное имя файла у клиента
	Filename string
	// Reader — содержимое файла
	Reader io.Reader
}

// Error — ошибка операции реестра с машиночитаемым кодом.
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Registry — реестр таймеров.
type Registry struct {
	mu      sync.RWMutex
	timers  map[string]*model.Timer
	store   ImageStore
	clock   clockwork.Clock
	newName func() string
	logger  *slog.Logger
}

// New создаёт пустой реестр.
// clock — источник времени (clockwork.NewRealClock() в production).
func New(store ImageStore, clock clockwork.Clock, logger *slog.Logger) *Registry {
	return &Registry{
		timers:  make(map[string]*model.Timer),
		store:   store,
		clock:   clock,
		newName: randomName,
		logger:  logger.With(slog.String("component", "timer_registry")),
	}
}

// SetNameGenerator заменяет генератор имён файлов изображений.
func (r *Registry) SetNameGenerator(fn func() string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.newName = fn
}

// Add создаёт новый таймер с идентификатором max(id)+1.
// При заполненном реестре ничего не делает и возвращает false.
func (r *Registry) Add() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.timers) >= MaxTimers {
		r.logger.Debug("Лимит таймеров достигнут", slog.Int("max", MaxTimers))
		return "", false
	}

	maxID := 0
	for id := range r.timers {
		if n, err := strconv.Atoi(id); err == nil && n > maxID {
			maxID = n
		}
	}
	id := strconv.Itoa(maxID + 1)
	r.timers[id] = model.NewTimer(id)

	r.logger.Info("Таймер создан", slog.String("timer_id", id))
	return id, true
}

// Remove удаляет таймер вместе с его изображением.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.timers[id]
	if !ok {
		return
	}
	r.releaseImage(t)
	delete(r.timers, id)

	r.logger.Info("Таймер удалён", slog.String("timer_id", id))
}

// SetLabel меняет название таймера. Пустое (после trim) значение игнорируется.
func (r *Registry) SetLabel(id, label string) {
	label = strings.TrimSpace(label)

	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.timers[id]
	if !ok || label == "" {
		return
	}
	t.Label = label
}

// Start запускает отсчёт с заданной длительностью заново,
// отбрасывая ранее замороженное время. Отрицательная длительность → 0,
// превышающая MaxDurationSeconds → MaxDurationSeconds.
func (r *Registry) Start(id string, durationSeconds int64) {
	switch {
	case durationSeconds < 0:
		durationSeconds = 0
	case durationSeconds > MaxDurationSeconds:
		durationSeconds = MaxDurationSeconds
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.timers[id]
	if !ok {
		return
	}
	endsAt := r.clock.Now().Add(time.Duration(durationSeconds) * time.Second)
	t.DurationSeconds = durationSeconds
	t.EndsAt = &endsAt
	t.Running = true

	r.logger.Debug("Таймер запущен",
		slog.String("timer_id", id),
		slog.Int64("duration", durationSeconds),
	)
}

// Stop замораживает оставшееся время. Повторный вызов ничего не меняет.
func (r *Registry) Stop(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.timers[id]
	if !ok {
		return
	}
	t.Freeze(r.clock.Now())

	r.logger.Debug("Таймер остановлен",
		slog.String("timer_id", id),
		slog.Int64("remaining", t.DurationSeconds),
	)
}

// Reset обнуляет таймер и останавливает отсчёт.
func (r *Registry) Reset(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.timers[id]
	if !ok {
		return
	}
	t.DurationSeconds = 0
	t.EndsAt = nil
	t.Running = false
}

// SetMessage сохраняет сообщение, обрезанное до MaxMessageLength символов.
func (r *Registry) SetMessage(id, message string) {
	message = truncateRunes(message, MaxMessageLength)

	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.timers[id]
	if !ok {
		return
	}
	t.Message = message
}

// SetFeature включает или выключает флаг видимости и возвращает
// итоговый набор флагов. Выключение "timer" у запущенного таймера
// останавливает отсчёт (как Stop).
//
// Ошибки:
//   - TIMER_NOT_FOUND — таймер не существует
//   - UNKNOWN_FEATURE — неизвестное имя флага
func (r *Registry) SetFeature(id, name string, enabled bool) (model.Features, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.timers[id]
	if !ok {
		return model.Features{}, notFound(id)
	}
	if !t.Features.Set(name, enabled) {
		return model.Features{}, &Error{
			Code:    CodeUnknownFeature,
			Message: fmt.Sprintf("неизвестный флаг %q", name),
		}
	}

	if name == model.FeatureTimer && !enabled && t.Running {
		t.Freeze(r.clock.Now())
		r.logger.Debug("Таймер остановлен при скрытии виджета",
			slog.String("timer_id", id),
			slog.Int64("remaining", t.DurationSeconds),
		)
	}

	return t.Features, nil
}

// AttachImage сохраняет изображение и привязывает его к таймеру,
// удаляя предыдущее. Возвращает внешний URL файла.
//
// Файл записывается вне блокировки; перед привязкой проверяется, что
// таймер всё ещё тот же. Если таймер удалён во время записи, новый файл
// удаляется и возвращается TIMER_NOT_FOUND.
//
// Ошибки:
//   - TIMER_NOT_FOUND — таймер не существует
//   - NO_FILE — файл не передан
//   - EMPTY_FILENAME — пустое имя файла
//   - UNSUPPORTED_TYPE — расширение не из png, jpg, jpeg, gif
//   - STORAGE_ERROR — ошибка записи на диск
func (r *Registry) AttachImage(id string, upload *Upload) (string, error) {
	r.mu.RLock()
	owner, ok := r.timers[id]
	newName := r.newName
	r.mu.RUnlock()

	if !ok {
		return "", notFound(id)
	}
	if upload == nil || upload.Reader == nil {
		return "", &Error{Code: CodeNoFile, Message: "файл не передан"}
	}

	filename := strings.TrimSpace(upload.Filename)
	if filename == "" {
		return "", &Error{Code: CodeEmptyFilename, Message: "пустое имя файла"}
	}

	ext, ok := imageExtension(filename)
	if !ok {
		return "", &Error{
			Code:    CodeUnsupportedType,
			Message: fmt.Sprintf("неподдерживаемый тип файла %q", filename),
		}
	}

	storageName := newName() + "." + ext
	saved, err := r.store.SaveFile(upload.Reader, storageName)
	if err != nil {
		r.logger.Error("Ошибка сохранения изображения",
			slog.String("timer_id", id),
			slog.String("error", err.Error()),
		)
		return "", &Error{
			Code:    CodeStorageError,
			Message: "ошибка сохранения файла",
			Err:     err,
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.timers[id]; !ok || t != owner {
		r.deleteImage(storageName)
		return "", notFound(id)
	}

	r.releaseImage(owner)
	owner.ImageFile = storageName

	r.logger.Info("Изображение привязано",
		slog.String("timer_id", id),
		slog.String("file", storageName),
		slog.Int64("size", saved.Size),
		slog.String("checksum", saved.Checksum),
	)

	return owner.ImageURL(), nil
}

// DetachImage удаляет изображение таймера. Отсутствие изображения — не ошибка.
//
// Ошибки:
//   - TIMER_NOT_FOUND — таймер не существует
func (r *Registry) DetachImage(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.timers[id]
	if !ok {
		return notFound(id)
	}
	r.releaseImage(t)
	return nil
}

// Snapshot возвращает снимки всех таймеров, вычисленные на текущий момент.
func (r *Registry) Snapshot() map[string]model.View {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := r.clock.Now()
	result := make(map[string]model.View, len(r.timers))
	for id, t := range r.timers {
		result[id] = t.View(now)
	}
	return result
}

// Count возвращает количество таймеров.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.timers)
}

// releaseImage отвязывает изображение от таймера и удаляет файл.
// Вызывается под r.mu.Lock().
func (r *Registry) releaseImage(t *model.Timer) {
	if t.ImageFile == "" {
		return
	}
	r.deleteImage(t.ImageFile)
	t.ImageFile = ""
}

// deleteImage удаляет файл; ошибка только логируется.
func (r *Registry) deleteImage(storageName string) {
	if err := r.store.DeleteFile(storageName); err != nil {
		r.logger.Warn("Не удалось удалить изображение",
			slog.String("file", storageName),
			slog.String("error", err.Error()),
		)
	}
}

func notFound(id string) *Error {
	return &Error{
		Code:    CodeTimerNotFound,
		Message: fmt.Sprintf("таймер %s не найден", id),
	}
}

// imageExtension возвращает расширение (после последней точки) в нижнем
// регистре, если оно допустимо.
func imageExtension(filename string) (string, bool) {
	idx := strings.LastIndex(filename, ".")
	if idx < 0 {
		return "", false
	}
	ext := strings.ToLower(filename[idx+1:])
	return ext, allowedExtensions[ext]
}

// truncateRunes оставляет первые n символов строки.
func truncateRunes(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// randomName генерирует имя файла: uuid v4 без дефисов.
func randomName() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
