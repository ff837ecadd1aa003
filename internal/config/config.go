// Пакет config — загрузка и валидация конфигурации сервиса таймеров
// из переменных окружения и необязательного .env файла.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации сервиса.
type Config struct {
	// Порт HTTP-сервера
	Port int
	// Директория загруженных изображений
	UploadDir string
	// Максимальный размер тела запроса загрузки изображения в байтах
	MaxUploadSize int64
	// Удалять файлы из директории загрузок при старте
	CleanUploads bool

	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// Интервал периодической рассылки состояния по websocket
	PushInterval time.Duration
	// Разрешённые CORS origins ("*" — любые)
	CORSOrigins []string

	// Таймауты HTTP-сервера
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// LoadDotEnv загружает переменные из .env файла (путь из ST_ENV_FILE,
// по умолчанию ".env"). Уже заданные переменные окружения не перезаписываются.
// Отсутствие файла — не ошибка.
func LoadDotEnv() error {
	path := getEnvDefault("ST_ENV_FILE", ".env")

	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("ST_ENV_FILE: ошибка чтения %s: %w", path, err)
	}
	return nil
}

// Load загружает конфигурацию из переменных окружения, валидирует
// значения и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}

	// ST_PORT — порт HTTP-сервера (по умолчанию 8000)
	port, err := getEnvInt("ST_PORT", 8000)
	if err != nil {
		return nil, fmt.Errorf("ST_PORT: %w", err)
	}
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("ST_PORT: значение %d вне допустимого диапазона 1-65535", port)
	}
	cfg.Port = port

	// ST_UPLOAD_DIR — директория изображений (по умолчанию ./uploads)
	cfg.UploadDir = getEnvDefault("ST_UPLOAD_DIR", "./uploads")

	// ST_MAX_UPLOAD_SIZE — лимит тела запроса загрузки (по умолчанию 10 MB)
	maxUploadSize, err := getEnvInt64("ST_MAX_UPLOAD_SIZE", 10485760)
	if err != nil {
		return nil, fmt.Errorf("ST_MAX_UPLOAD_SIZE: %w", err)
	}
	if maxUploadSize <= 0 {
		return nil, fmt.Errorf("ST_MAX_UPLOAD_SIZE: значение должно быть положительным")
	}
	cfg.MaxUploadSize = maxUploadSize

	// ST_CLEAN_UPLOADS — очистка директории загрузок при старте (по умолчанию false).
	// Состояние таймеров не переживает перезапуск, поэтому файлы прошлого
	// запуска никому не принадлежат.
	cfg.CleanUploads, err = getEnvBool("ST_CLEAN_UPLOADS", false)
	if err != nil {
		return nil, fmt.Errorf("ST_CLEAN_UPLOADS: %w", err)
	}

	// ST_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("ST_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("ST_LOG_LEVEL: %w", err)
	}

	// ST_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("ST_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("ST_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// ST_PUSH_INTERVAL — периодическая рассылка состояния (по умолчанию 1s)
	cfg.PushInterval, err = getEnvDuration("ST_PUSH_INTERVAL", time.Second)
	if err != nil {
		return nil, fmt.Errorf("ST_PUSH_INTERVAL: %w", err)
	}
	if cfg.PushInterval <= 0 {
		return nil, fmt.Errorf("ST_PUSH_INTERVAL: значение должно быть положительным")
	}

	// ST_CORS_ORIGINS — список origins через запятую (по умолчанию "*")
	cfg.CORSOrigins = splitList(getEnvDefault("ST_CORS_ORIGINS", "*"))
	if len(cfg.CORSOrigins) == 0 {
		return nil, fmt.Errorf("ST_CORS_ORIGINS: пустой список")
	}

	// ST_HTTP_*_TIMEOUT — таймауты HTTP-сервера
	cfg.HTTPReadTimeout, err = getEnvDuration("ST_HTTP_READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("ST_HTTP_READ_TIMEOUT: %w", err)
	}
	cfg.HTTPWriteTimeout, err = getEnvDuration("ST_HTTP_WRITE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("ST_HTTP_WRITE_TIMEOUT: %w", err)
	}
	cfg.HTTPIdleTimeout, err = getEnvDuration("ST_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("ST_HTTP_IDLE_TIMEOUT: %w", err)
	}

	// ST_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 10s)
	cfg.ShutdownTimeout, err = getEnvDuration("ST_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("ST_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvInt64 возвращает int64 значение переменной окружения или значение по умолчанию.
func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvBool возвращает bool значение переменной окружения или значение по умолчанию.
// Допустимы значения strconv.ParseBool: 1, t, true, 0, f, false и т.п.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное логическое значение: %q", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 500ms, 1s, 30s)", val)
	}
	return d, nil
}

// splitList разбивает список через запятую, отбрасывая пустые элементы.
func splitList(val string) []string {
	var out []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
