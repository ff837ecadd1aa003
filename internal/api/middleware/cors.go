// cors.go — CORS для страниц экрана, открытых с другого origin
// (например, браузерный источник в OBS).
package middleware

import (
	"net/http"
	"net/url"

	"github.com/rs/cors"
)

// NewCORS создаёт CORS-обработчик для списка origins ("*" — любые).
func NewCORS(origins []string) *cors.Cors {
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodDelete,
		},
		AllowedHeaders: []string{"*"},
	})
}

// OriginChecker возвращает проверку Origin для websocket upgrade:
// запросы без Origin и с того же хоста разрешены, остальные — по правилам CORS.
func OriginChecker(c *cors.Cors) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if u, err := url.Parse(origin); err == nil && u.Host == r.Host {
			return true
		}
		return c.OriginAllowed(r)
	}
}
