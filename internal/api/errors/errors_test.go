package errors //nolint:revive // конфликт имени со stdlib

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bigkaa/stagetimer/internal/domain/registry"
)

func TestFromRegistry(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"таймер не найден", &registry.Error{Code: registry.CodeTimerNotFound, Message: "нет"}, http.StatusNotFound, registry.CodeTimerNotFound},
		{"неизвестный флаг", &registry.Error{Code: registry.CodeUnknownFeature}, http.StatusBadRequest, registry.CodeUnknownFeature},
		{"неподдерживаемый тип", &registry.Error{Code: registry.CodeUnsupportedType}, http.StatusBadRequest, registry.CodeUnsupportedType},
		{"ошибка хранилища", &registry.Error{Code: registry.CodeStorageError, Err: fmt.Errorf("/data/x: EIO")}, http.StatusInternalServerError, registry.CodeStorageError},
		{"обёрнутая ошибка реестра", fmt.Errorf("attach: %w", &registry.Error{Code: registry.CodeNoFile}), http.StatusBadRequest, registry.CodeNoFile},
		{"ошибка без кода", fmt.Errorf("boom"), http.StatusInternalServerError, CodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			FromRegistry(rec, tt.err)

			if rec.Code != tt.wantStatus {
				t.Errorf("статус %d, ожидалось %d", rec.Code, tt.wantStatus)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}

			var body errorBody
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("некорректный JSON: %v", err)
			}
			if body.Error.Code != tt.wantCode {
				t.Errorf("код %s, ожидалось %s", body.Error.Code, tt.wantCode)
			}
		})
	}
}
