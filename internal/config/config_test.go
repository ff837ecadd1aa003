package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// stEnvKeys — все переменные окружения сервиса.
var stEnvKeys = []string{
	"ST_PORT", "ST_UPLOAD_DIR", "ST_MAX_UPLOAD_SIZE", "ST_CLEAN_UPLOADS",
	"ST_LOG_LEVEL", "ST_LOG_FORMAT", "ST_PUSH_INTERVAL", "ST_CORS_ORIGINS",
	"ST_HTTP_READ_TIMEOUT", "ST_HTTP_WRITE_TIMEOUT", "ST_HTTP_IDLE_TIMEOUT",
	"ST_SHUTDOWN_TIMEOUT", "ST_ENV_FILE",
}

// clearAllSTEnvVars очищает переменные ST_* на время теста.
// Пустое значение эквивалентно незаданной переменной.
func clearAllSTEnvVars(t *testing.T) {
	t.Helper()
	for _, k := range stEnvKeys {
		t.Setenv(k, "")
	}
}

// setEnvVars устанавливает переменные окружения на время теста.
func setEnvVars(t *testing.T, vars map[string]string) {
	t.Helper()
	for k, v := range vars {
		t.Setenv(k, v)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearAllSTEnvVars(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	if cfg.Port != 8000 {
		t.Errorf("Port = %d, ожидалось 8000", cfg.Port)
	}
	if cfg.UploadDir != "./uploads" {
		t.Errorf("UploadDir = %q, ожидалось ./uploads", cfg.UploadDir)
	}
	if cfg.MaxUploadSize != 10485760 {
		t.Errorf("MaxUploadSize = %d, ожидалось 10485760", cfg.MaxUploadSize)
	}
	if cfg.CleanUploads {
		t.Error("CleanUploads по умолчанию должен быть false")
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, ожидалось INFO", cfg.LogLevel)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %q, ожидалось json", cfg.LogFormat)
	}
	if cfg.PushInterval != time.Second {
		t.Errorf("PushInterval = %v, ожидалось 1s", cfg.PushInterval)
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "*" {
		t.Errorf("CORSOrigins = %v, ожидалось [*]", cfg.CORSOrigins)
	}
	if cfg.HTTPReadTimeout != 30*time.Second ||
		cfg.HTTPWriteTimeout != 60*time.Second ||
		cfg.HTTPIdleTimeout != 120*time.Second {
		t.Errorf("неожиданные таймауты: %v/%v/%v",
			cfg.HTTPReadTimeout, cfg.HTTPWriteTimeout, cfg.HTTPIdleTimeout)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("ShutdownTimeout = %v, ожидалось 10s", cfg.ShutdownTimeout)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	clearAllSTEnvVars(t)
	setEnvVars(t, map[string]string{
		"ST_PORT":             "9090",
		"ST_UPLOAD_DIR":       "/var/lib/stagetimer",
		"ST_MAX_UPLOAD_SIZE":  "2048",
		"ST_CLEAN_UPLOADS":    "true",
		"ST_LOG_LEVEL":        "DEBUG",
		"ST_LOG_FORMAT":       "text",
		"ST_PUSH_INTERVAL":    "250ms",
		"ST_CORS_ORIGINS":     "https://obs.local, https://stage.example.com ,",
		"ST_SHUTDOWN_TIMEOUT": "3s",
	})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	if cfg.Port != 9090 || cfg.UploadDir != "/var/lib/stagetimer" || cfg.MaxUploadSize != 2048 {
		t.Errorf("неожиданные значения: %+v", cfg)
	}
	if !cfg.CleanUploads {
		t.Error("CleanUploads должен быть true")
	}
	if cfg.LogLevel != slog.LevelDebug || cfg.LogFormat != "text" {
		t.Errorf("логирование: %v/%s", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.PushInterval != 250*time.Millisecond {
		t.Errorf("PushInterval = %v, ожидалось 250ms", cfg.PushInterval)
	}
	if len(cfg.CORSOrigins) != 2 ||
		cfg.CORSOrigins[0] != "https://obs.local" ||
		cfg.CORSOrigins[1] != "https://stage.example.com" {
		t.Errorf("CORSOrigins = %v", cfg.CORSOrigins)
	}
	if cfg.ShutdownTimeout != 3*time.Second {
		t.Errorf("ShutdownTimeout = %v, ожидалось 3s", cfg.ShutdownTimeout)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"порт не число", "ST_PORT", "abc"},
		{"порт ноль", "ST_PORT", "0"},
		{"порт слишком большой", "ST_PORT", "70000"},
		{"размер не число", "ST_MAX_UPLOAD_SIZE", "10MB"},
		{"размер отрицательный", "ST_MAX_UPLOAD_SIZE", "-1"},
		{"некорректный bool", "ST_CLEAN_UPLOADS", "yes please"},
		{"уровень логов", "ST_LOG_LEVEL", "verbose"},
		{"формат логов", "ST_LOG_FORMAT", "xml"},
		{"интервал без единиц", "ST_PUSH_INTERVAL", "1"},
		{"нулевой интервал", "ST_PUSH_INTERVAL", "0s"},
		{"пустой список origins", "ST_CORS_ORIGINS", " , "},
		{"таймаут чтения", "ST_HTTP_READ_TIMEOUT", "long"},
		{"таймаут shutdown", "ST_SHUTDOWN_TIMEOUT", "10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearAllSTEnvVars(t)
			t.Setenv(tt.key, tt.val)

			if _, err := Load(); err == nil {
				t.Errorf("%s=%q: ожидалась ошибка", tt.key, tt.val)
			}
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	clearAllSTEnvVars(t)

	path := filepath.Join(t.TempDir(), "stagetimer.env")
	content := "ST_PORT=8123\nST_LOG_FORMAT=text\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("ошибка записи .env: %v", err)
	}

	// Уже заданная переменная не перезаписывается
	t.Setenv("ST_LOG_FORMAT", "json")
	t.Setenv("ST_ENV_FILE", path)
	// godotenv не трогает существующие переменные, даже пустые:
	// t.Setenv регистрирует восстановление, затем переменная удаляется
	t.Setenv("ST_PORT", "")
	os.Unsetenv("ST_PORT")

	if err := LoadDotEnv(); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 8123 {
		t.Errorf("Port = %d, ожидалось 8123 из .env", cfg.Port)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %q, переменная окружения должна иметь приоритет", cfg.LogFormat)
	}
}

func TestLoadDotEnv_MissingFile(t *testing.T) {
	clearAllSTEnvVars(t)
	t.Setenv("ST_ENV_FILE", filepath.Join(t.TempDir(), "absent.env"))

	if err := LoadDotEnv(); err != nil {
		t.Errorf("отсутствующий .env не должен быть ошибкой: %v", err)
	}
}

func TestSetupLogger(t *testing.T) {
	for _, format := range []string{"json", "text"} {
		logger := SetupLogger(&Config{LogLevel: slog.LevelWarn, LogFormat: format})
		if logger == nil {
			t.Fatalf("SetupLogger(%s) вернул nil", format)
		}
		if logger.Enabled(context.Background(), slog.LevelInfo) {
			t.Errorf("формат %s: INFO не должен быть включён при уровне WARN", format)
		}
	}
}
