// state.go — обработчик GET /api/state.
package handlers

import (
	"net/http"

	"github.com/bigkaa/stagetimer/internal/domain/model"
)

// SnapshotSource — источник снимков состояния таймеров.
type SnapshotSource interface {
	Snapshot() map[string]model.View
}

// StateHandler отдаёт полное состояние реестра для пульта и экрана.
type StateHandler struct {
	source SnapshotSource
}

// NewStateHandler создаёт обработчик состояния.
func NewStateHandler(source SnapshotSource) *StateHandler {
	return &StateHandler{source: source}
}

// GetState обрабатывает GET /api/state.
// Снимок вычисляется на момент запроса и не кэшируется.
func (h *StateHandler) GetState(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, model.State{Timers: h.source.Snapshot()})
}
