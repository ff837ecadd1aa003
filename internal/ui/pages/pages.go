// Пакет pages — встроенные страницы пульта управления и экрана.
// HTML встраивается в бинарник через //go:embed; данные страницы
// получают из /api/state и /ws/state.
package pages

import (
	"embed"
	"net/http"
)

//go:embed html/control.html html/display.html
var content embed.FS

// Control обрабатывает GET / — пульт управления таймерами.
func Control() http.HandlerFunc {
	return page("html/control.html")
}

// Display обрабатывает GET /display — экран для сцены или браузерного источника.
func Display() http.HandlerFunc {
	return page("html/display.html")
}

// page отдаёт встроенный HTML-файл. Содержимое читается один раз.
func page(name string) http.HandlerFunc {
	body, err := content.ReadFile(name)
	if err != nil {
		// Имена фиксированы директивой go:embed
		panic("pages: встроенный файл не найден: " + name)
	}

	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = w.Write(body)
	}
}
