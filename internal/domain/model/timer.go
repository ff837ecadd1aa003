// Пакет model — доменные модели сервиса таймеров.
// Timer — один слот обратного отсчёта; View — его неизменяемое
// представление для клиентов пульта и экрана.
package model

import (
	"fmt"
	"time"
)

// Имена флагов видимости виджетов.
const (
	FeatureTimer   = "timer"
	FeatureMessage = "message"
)

// UploadsPrefix — внешний префикс URL для загруженных изображений.
const UploadsPrefix = "/uploads/"

// Features — флаги видимости виджетов. Всегда заполнены полностью:
// значения по умолчанию выставляются при создании таймера.
type Features struct {
	Timer   bool `json:"timer"`
	Message bool `json:"message"`
}

// DefaultFeatures возвращает флаги нового таймера (все виджеты видимы).
func DefaultFeatures() Features {
	return Features{Timer: true, Message: true}
}

// IsKnownFeature проверяет, поддерживается ли флаг с таким именем.
func IsKnownFeature(name string) bool {
	return name == FeatureTimer || name == FeatureMessage
}

// Set выставляет флаг по имени. Возвращает false для неизвестного имени.
func (f *Features) Set(name string, enabled bool) bool {
	switch name {
	case FeatureTimer:
		f.Timer = enabled
	case FeatureMessage:
		f.Message = enabled
	default:
		return false
	}
	return true
}

// Timer — таймер обратного отсчёта.
//
// Инвариант: Running == true тогда и только тогда, когда EndsAt != nil.
// Пока таймер запущен, оставшееся время вычисляется из EndsAt;
// в остановленном состоянии DurationSeconds хранит замороженный остаток.
type Timer struct {
	ID    string
	Label string

	// DurationSeconds — длительность при старте или замороженный остаток.
	DurationSeconds int64

	// EndsAt — момент окончания отсчёта (только для запущенного таймера).
	EndsAt *time.Time

	Running bool
	Message string

	Features Features

	// ImageFile — имя файла изображения в хранилище (пусто — нет изображения).
	ImageFile string
}

// NewTimer создаёт остановленный таймер с нулевой длительностью.
func NewTimer(id string) *Timer {
	return &Timer{
		ID:       id,
		Label:    fmt.Sprintf("Event %s", id),
		Features: DefaultFeatures(),
	}
}

// Remaining возвращает оставшиеся секунды на момент now.
// Для остановленного таймера — замороженная длительность. Для запущенного —
// целая часть (EndsAt - now), не меньше нуля. Истёкший таймер остаётся
// запущенным и показывает 0 до явной остановки оператором.
func (t *Timer) Remaining(now time.Time) int64 {
	if !t.Running || t.EndsAt == nil {
		return t.DurationSeconds
	}
	remaining := int64(t.EndsAt.Sub(now) / time.Second)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Freeze останавливает отсчёт, сохраняя остаток в DurationSeconds.
func (t *Timer) Freeze(now time.Time) {
	t.DurationSeconds = t.Remaining(now)
	t.EndsAt = nil
	t.Running = false
}

// ImageURL возвращает внешний адрес изображения или пустую строку.
func (t *Timer) ImageURL() string {
	if t.ImageFile == "" {
		return ""
	}
	return UploadsPrefix + t.ImageFile
}

// View — снимок состояния таймера для клиентов.
// Формат совпадает с ответом /api/state.
type View struct {
	Label            string   `json:"label"`
	EndTS            *float64 `json:"end_ts"`
	Duration         int64    `json:"duration"`
	Running          bool     `json:"running"`
	Message          string   `json:"message"`
	DisplayRemaining string   `json:"display_remaining"`
	Features         Features `json:"features"`
	ImageURL         *string  `json:"image_url"`
}

// View строит снимок таймера на момент now.
func (t *Timer) View(now time.Time) View {
	v := View{
		Label:            t.Label,
		Duration:         t.DurationSeconds,
		Running:          t.Running,
		Message:          t.Message,
		DisplayRemaining: FormatSeconds(t.Remaining(now)),
		Features:         t.Features,
	}

	// end_ts — unix-время в секундах с дробной частью
	if t.EndsAt != nil {
		ts := float64(t.EndsAt.UnixNano()) / float64(time.Second)
		v.EndTS = &ts
	}

	if url := t.ImageURL(); url != "" {
		v.ImageURL = &url
	}

	return v
}

// FormatSeconds форматирует секунды как MM:SS, а при ненулевых часах — HH:MM:SS.
func FormatSeconds(sec int64) string {
	if sec < 0 {
		sec = 0
	}
	m, s := sec/60, sec%60
	h, m := m/60, m%60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// State — полное состояние реестра для клиентов: id таймера → снимок.
// Общий формат ответа /api/state и сообщений push-канала.
type State struct {
	Timers map[string]View `json:"timers"`
}
