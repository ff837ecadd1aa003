// metrics.go — Prometheus метрики сервиса таймеров.
// HTTP метрики: st_http_requests_total, st_http_request_duration_seconds.
// Бизнес-метрики (st_timers_total, st_operations_total, st_push_clients)
// обновляются из handlers и push-хаба.
package middleware

import (
	"bufio"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP метрики
var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "st_http_requests_total",
			Help: "Общее количество HTTP-запросов к сервису таймеров",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "st_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к сервису таймеров в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Бизнес-метрики
var (
	// TimersTotal — текущее количество таймеров в реестре.
	TimersTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "st_timers_total",
			Help: "Текущее количество таймеров",
		},
	)

	// OperationsTotal — количество операций над таймерами.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "st_operations_total",
			Help: "Общее количество операций над таймерами",
		},
		[]string{"operation", "result"},
	)

	// PushClients — количество подключённых websocket-клиентов.
	PushClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "st_push_clients",
			Help: "Количество подключённых клиентов push-канала",
		},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
// Записывает количество запросов и длительность для каждого endpoint.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			normalizedPath := normalizePath(r.URL.Path)

			wrapped := newMetricsResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(wrapped.statusCode)

			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(duration)
		})
	}
}

// metricsResponseWriter — обёртка для перехвата статус-кода.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack нужен для websocket upgrade за middleware.
func (rw *metricsResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	rw.statusCode = http.StatusSwitchingProtocols
	return http.NewResponseController(rw.ResponseWriter).Hijack()
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (rw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// normalizePath заменяет идентификаторы в пути на шаблоны для предотвращения
// роста кардинальности метрик.
// /api/timer/2/start → /api/timer/{id}/start, /uploads/ab12.png → /uploads/{file}
func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/api/timer/"):
		rest := strings.TrimPrefix(path, "/api/timer/")
		_, action, found := strings.Cut(rest, "/")
		if !found || action == "" || strings.Contains(action, "/") {
			return "/api/timer/{id}"
		}
		return "/api/timer/{id}/" + action
	case strings.HasPrefix(path, "/uploads/"):
		return "/uploads/{file}"
	case path == "/", path == "/display", path == "/api/state",
		path == "/api/timers/add", path == "/ws/state",
		path == "/health/live", path == "/health/ready", path == "/metrics":
		return path
	}
	// Неизвестные пути (404) схлопываются в один лейбл
	return "other"
}
