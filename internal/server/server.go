// Пакет server — HTTP-сервер сервиса таймеров с graceful shutdown.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path"
	"strings"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bigkaa/stagetimer/internal/api/handlers"
	"github.com/bigkaa/stagetimer/internal/api/middleware"
	"github.com/bigkaa/stagetimer/internal/config"
	"github.com/bigkaa/stagetimer/internal/ui/pages"
)

// Handlers — набор обработчиков, монтируемых в роутер.
type Handlers struct {
	Timers *handlers.TimersHandler
	State  *handlers.StateHandler
	Health *handlers.HealthHandler
	// Push — websocket endpoint /ws/state (nil — не монтируется)
	Push http.Handler
	// UploadDir — директория, раздаваемая по /uploads/
	UploadDir string
}

// Server — HTTP-сервер сервиса таймеров.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт новый HTTP-сервер с настроенными routes и middleware.
func New(cfg *config.Config, logger *slog.Logger, h Handlers) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewRouter(cfg, logger, h),
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// NewRouter собирает chi-роутер со всеми endpoints.
func NewRouter(cfg *config.Config, logger *slog.Logger, h Handlers) http.Handler {
	router := chi.NewRouter()

	// Middleware
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.NewCORS(cfg.CORSOrigins).Handler)

	// Страницы
	router.Get("/", pages.Control())
	router.Get("/display", pages.Display())

	// API
	router.Get("/api/state", h.State.GetState)
	router.Post("/api/timers/add", h.Timers.AddTimer)
	router.Route("/api/timer/{id}", func(r chi.Router) {
		r.Post("/remove", h.Timers.RemoveTimer)
		r.Post("/label", h.Timers.SetLabel)
		r.Post("/start", h.Timers.StartTimer)
		r.Post("/stop", h.Timers.StopTimer)
		r.Post("/reset", h.Timers.ResetTimer)
		r.Post("/message", h.Timers.SetMessage)
		r.Post("/feature", h.Timers.SetFeature)
		r.Post("/image", h.Timers.UploadImage)
		r.Delete("/image", h.Timers.DeleteImage)
	})

	// Push-канал
	if h.Push != nil {
		router.Get("/ws/state", h.Push.ServeHTTP)
	}

	// Загруженные изображения
	router.Handle("/uploads/*", http.StripPrefix("/uploads/",
		http.FileServer(uploadsFS{root: http.Dir(h.UploadDir)})))

	// Служебные endpoints
	router.Get("/health/live", h.Health.HealthLive)
	router.Get("/health/ready", h.Health.HealthReady)
	router.Handle("/metrics", promhttp.Handler())

	return router
}

// uploadsFS раздаёт только обычные файлы директории загрузок:
// без листинга директорий, скрытых и временных файлов.
type uploadsFS struct {
	root http.FileSystem
}

func (fs uploadsFS) Open(name string) (http.File, error) {
	base := path.Base(name)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, ".tmp") {
		return nil, os.ErrNotExist
	}

	f, err := fs.root.Open(name)
	if err != nil {
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.IsDir() {
		f.Close()
		return nil, os.ErrNotExist
	}
	return f, nil
}

// OnShutdown регистрирует функцию, вызываемую при graceful shutdown
// (например, остановка push-канала с hijacked-подключениями).
func (s *Server) OnShutdown(fn func()) {
	s.httpServer.RegisterOnShutdown(fn)
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown с таймаутом cfg.ShutdownTimeout.
func (s *Server) Run() error {
	// Канал для ошибок сервера
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...",
		slog.Duration("timeout", s.cfg.ShutdownTimeout),
	)
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
