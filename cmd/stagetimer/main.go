// Точка входа сервиса таймеров обратного отсчёта для сцены.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jonboulle/clockwork"

	"github.com/bigkaa/stagetimer/internal/api/handlers"
	"github.com/bigkaa/stagetimer/internal/api/middleware"
	"github.com/bigkaa/stagetimer/internal/config"
	"github.com/bigkaa/stagetimer/internal/domain/registry"
	"github.com/bigkaa/stagetimer/internal/push"
	"github.com/bigkaa/stagetimer/internal/server"
	"github.com/bigkaa/stagetimer/internal/storage/filestore"
)

func main() {
	// .env (необязательный) до разбора переменных окружения
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка конфигурации: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка конфигурации: %v\n", err)
		os.Exit(1)
	}

	logger := config.SetupLogger(cfg)
	logger.Info("Сервис таймеров запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("upload_dir", cfg.UploadDir),
	)

	// --- Инициализация компонентов ---

	// 1. Хранилище изображений
	store, err := filestore.New(cfg.UploadDir)
	if err != nil {
		logger.Error("Ошибка инициализации хранилища", slog.String("error", err.Error()))
		os.Exit(1)
	}
	cleanUploads(store, cfg.CleanUploads, logger)

	// 2. Реестр таймеров
	reg := registry.New(store, clockwork.NewRealClock(), logger)
	middleware.TimersTotal.Set(0)

	// 3. Push-канал
	cors := middleware.NewCORS(cfg.CORSOrigins)
	hub := push.NewHub(reg, clockwork.NewRealClock(), cfg.PushInterval,
		middleware.OriginChecker(cors), logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	// --- HTTP-сервер ---

	srv := server.New(cfg, logger, server.Handlers{
		Timers:    handlers.NewTimersHandler(reg, hub, cfg.MaxUploadSize, logger),
		State:     handlers.NewStateHandler(reg),
		Health:    handlers.NewHealthHandler(store.DataDir(), reg),
		Push:      hub,
		UploadDir: store.DataDir(),
	})
	srv.OnShutdown(cancel)

	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
