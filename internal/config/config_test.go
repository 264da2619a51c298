package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// setEnvVars устанавливает переменные окружения для теста и возвращает
// функцию очистки. Всегда вызывать defer cleanup().
func setEnvVars(t *testing.T, vars map[string]string) func() {
	t.Helper()

	// Сохраняем оригинальные значения
	originals := make(map[string]string)
	origSet := make(map[string]bool)
	for k := range vars {
		if v, ok := os.LookupEnv(k); ok {
			originals[k] = v
			origSet[k] = true
		}
	}

	// Устанавливаем новые
	for k, v := range vars {
		os.Setenv(k, v)
	}

	return func() {
		for k := range vars {
			if origSet[k] {
				os.Setenv(k, originals[k])
			} else {
				os.Unsetenv(k)
			}
		}
	}
}

// clearAllVKEnvVars очищает все переменные окружения VK_* для чистого теста.
func clearAllVKEnvVars(t *testing.T) func() {
	t.Helper()
	keys := []string{
		"VK_DATA_DIR", "VK_LISTEN_HOST", "VK_PORT",
		"VK_LOG_LEVEL", "VK_LOG_FORMAT",
		"VK_SHUTDOWN_TIMEOUT", "VK_RECONCILE_INTERVAL",
		"VK_CREATE_ROLLBACK_MAX_ENTRIES", "VK_PLACEHOLDER_FILE",
		"VK_HTTP_READ_TIMEOUT", "VK_HTTP_WRITE_TIMEOUT", "VK_HTTP_IDLE_TIMEOUT",
		"VK_WATCH_VAULTS", "VK_WATCH_DEBOUNCE",
	}
	originals := make(map[string]string)
	origSet := make(map[string]bool)
	for _, k := range keys {
		if v, ok := os.LookupEnv(k); ok {
			originals[k] = v
			origSet[k] = true
		}
		os.Unsetenv(k)
	}
	return func() {
		for _, k := range keys {
			if origSet[k] {
				os.Setenv(k, originals[k])
			} else {
				os.Unsetenv(k)
			}
		}
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	cleanup := clearAllVKEnvVars(t)
	defer cleanup()

	// Каталог конфигурации пользователя берётся из HOME / XDG_CONFIG_HOME
	home := t.TempDir()
	cleanupHome := setEnvVars(t, map[string]string{
		"HOME":            home,
		"XDG_CONFIG_HOME": filepath.Join(home, ".config"),
		"AppData":         filepath.Join(home, "AppData"),
	})
	defer cleanupHome()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	base, err := os.UserConfigDir()
	if err != nil {
		t.Fatalf("UserConfigDir: %v", err)
	}
	if cfg.DataDir != filepath.Join(base, "vaultkeeper") {
		t.Errorf("DataDir: ожидалось %q, получено %q", filepath.Join(base, "vaultkeeper"), cfg.DataDir)
	}
	if cfg.ListenHost != "127.0.0.1" {
		t.Errorf("ListenHost: ожидалось '127.0.0.1', получено %q", cfg.ListenHost)
	}
	if cfg.Port != 8790 {
		t.Errorf("Port: ожидалось 8790, получено %d", cfg.Port)
	}
	if cfg.Addr() != "127.0.0.1:8790" {
		t.Errorf("Addr: ожидалось '127.0.0.1:8790', получено %q", cfg.Addr())
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel: ожидалось INFO, получено %v", cfg.LogLevel)
	}
	if cfg.LogFormat != "text" {
		t.Errorf("LogFormat: ожидалось 'text', получено %q", cfg.LogFormat)
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("ShutdownTimeout: ожидалось 5s, получено %v", cfg.ShutdownTimeout)
	}
	if cfg.ReconcileInterval != 10*time.Minute {
		t.Errorf("ReconcileInterval: ожидалось 10m, получено %v", cfg.ReconcileInterval)
	}
	if cfg.CreateRollbackMaxEntries != 1 {
		t.Errorf("CreateRollbackMaxEntries: ожидалось 1, получено %d", cfg.CreateRollbackMaxEntries)
	}
	if cfg.PlaceholderFile != "Welcome.md" {
		t.Errorf("PlaceholderFile: ожидалось 'Welcome.md', получено %q", cfg.PlaceholderFile)
	}
	if cfg.HTTPReadTimeout != 30*time.Second {
		t.Errorf("HTTPReadTimeout: ожидалось 30s, получено %v", cfg.HTTPReadTimeout)
	}
	if cfg.HTTPWriteTimeout != 5*time.Minute {
		t.Errorf("HTTPWriteTimeout: ожидалось 5m, получено %v", cfg.HTTPWriteTimeout)
	}
	if cfg.HTTPIdleTimeout != 2*time.Minute {
		t.Errorf("HTTPIdleTimeout: ожидалось 2m, получено %v", cfg.HTTPIdleTimeout)
	}
	if !cfg.WatchVaults {
		t.Error("WatchVaults: ожидалось true")
	}
	if cfg.WatchDebounce != 2*time.Second {
		t.Errorf("WatchDebounce: ожидалось 2s, получено %v", cfg.WatchDebounce)
	}
}

func TestLoad_AllCustomValues(t *testing.T) {
	cleanup := clearAllVKEnvVars(t)
	defer cleanup()

	dataDir := t.TempDir()
	cleanupVars := setEnvVars(t, map[string]string{
		"VK_DATA_DIR":                    dataDir,
		"VK_LISTEN_HOST":                 "::1",
		"VK_PORT":                        "9000",
		"VK_LOG_LEVEL":                   "debug",
		"VK_LOG_FORMAT":                  "json",
		"VK_SHUTDOWN_TIMEOUT":            "10s",
		"VK_RECONCILE_INTERVAL":          "1m",
		"VK_CREATE_ROLLBACK_MAX_ENTRIES": "3",
		"VK_PLACEHOLDER_FILE":            "README.md",
		"VK_HTTP_READ_TIMEOUT":           "1s",
		"VK_HTTP_WRITE_TIMEOUT":          "2s",
		"VK_HTTP_IDLE_TIMEOUT":           "3s",
		"VK_WATCH_VAULTS":                "false",
		"VK_WATCH_DEBOUNCE":              "250ms",
	})
	defer cleanupVars()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	if cfg.DataDir != dataDir {
		t.Errorf("DataDir: ожидалось %q, получено %q", dataDir, cfg.DataDir)
	}
	if cfg.Addr() != "[::1]:9000" {
		t.Errorf("Addr: ожидалось '[::1]:9000', получено %q", cfg.Addr())
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel: ожидалось DEBUG, получено %v", cfg.LogLevel)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat: ожидалось 'json', получено %q", cfg.LogFormat)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("ShutdownTimeout: ожидалось 10s, получено %v", cfg.ShutdownTimeout)
	}
	if cfg.ReconcileInterval != time.Minute {
		t.Errorf("ReconcileInterval: ожидалось 1m, получено %v", cfg.ReconcileInterval)
	}
	if cfg.CreateRollbackMaxEntries != 3 {
		t.Errorf("CreateRollbackMaxEntries: ожидалось 3, получено %d", cfg.CreateRollbackMaxEntries)
	}
	if cfg.PlaceholderFile != "README.md" {
		t.Errorf("PlaceholderFile: ожидалось 'README.md', получено %q", cfg.PlaceholderFile)
	}
	if cfg.HTTPReadTimeout != time.Second || cfg.HTTPWriteTimeout != 2*time.Second || cfg.HTTPIdleTimeout != 3*time.Second {
		t.Errorf("HTTP таймауты: получено %v/%v/%v", cfg.HTTPReadTimeout, cfg.HTTPWriteTimeout, cfg.HTTPIdleTimeout)
	}
	if cfg.WatchVaults {
		t.Error("WatchVaults: ожидалось false")
	}
	if cfg.WatchDebounce != 250*time.Millisecond {
		t.Errorf("WatchDebounce: ожидалось 250ms, получено %v", cfg.WatchDebounce)
	}
}

func TestLoad_RelativeDataDir(t *testing.T) {
	cleanup := clearAllVKEnvVars(t)
	defer cleanup()

	cleanupVars := setEnvVars(t, map[string]string{"VK_DATA_DIR": "data"})
	defer cleanupVars()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if !filepath.IsAbs(cfg.DataDir) {
		t.Errorf("DataDir должен быть абсолютным, получено %q", cfg.DataDir)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"порт не число", "VK_PORT", "abc"},
		{"порт ниже диапазона", "VK_PORT", "80"},
		{"порт выше диапазона", "VK_PORT", "70000"},
		{"не loopback", "VK_LISTEN_HOST", "0.0.0.0"},
		{"внешний адрес", "VK_LISTEN_HOST", "192.168.1.10"},
		{"уровень логов", "VK_LOG_LEVEL", "verbose"},
		{"формат логов", "VK_LOG_FORMAT", "xml"},
		{"таймаут shutdown", "VK_SHUTDOWN_TIMEOUT", "soon"},
		{"интервал сверки", "VK_RECONCILE_INTERVAL", "0s"},
		{"порог отката не число", "VK_CREATE_ROLLBACK_MAX_ENTRIES", "one"},
		{"порог отката отрицательный", "VK_CREATE_ROLLBACK_MAX_ENTRIES", "-1"},
		{"заглушка с путём", "VK_PLACEHOLDER_FILE", "sub/Welcome.md"},
		{"скрытая заглушка", "VK_PLACEHOLDER_FILE", ".hidden"},
		{"таймаут чтения", "VK_HTTP_READ_TIMEOUT", "1x"},
		{"наблюдение не булево", "VK_WATCH_VAULTS", "maybe"},
		{"нулевой debounce", "VK_WATCH_DEBOUNCE", "0s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cleanup := clearAllVKEnvVars(t)
			defer cleanup()

			cleanupVars := setEnvVars(t, map[string]string{
				"VK_DATA_DIR": t.TempDir(),
				tt.key:        tt.value,
			})
			defer cleanupVars()

			if _, err := Load(); err == nil {
				t.Errorf("ожидалась ошибка для %s=%q", tt.key, tt.value)
			}
		})
	}
}

func TestLoad_LocalhostAllowed(t *testing.T) {
	cleanup := clearAllVKEnvVars(t)
	defer cleanup()

	cleanupVars := setEnvVars(t, map[string]string{
		"VK_DATA_DIR":    t.TempDir(),
		"VK_LISTEN_HOST": "localhost",
	})
	defer cleanupVars()

	if _, err := Load(); err != nil {
		t.Errorf("localhost должен быть допустим: %v", err)
	}
}

func TestLoad_ValidLogLevels(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"DEBUG", slog.LevelDebug},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			cleanup := clearAllVKEnvVars(t)
			defer cleanup()

			cleanupVars := setEnvVars(t, map[string]string{
				"VK_DATA_DIR":  t.TempDir(),
				"VK_LOG_LEVEL": tt.input,
			})
			defer cleanupVars()

			cfg, err := Load()
			if err != nil {
				t.Fatalf("неожиданная ошибка: %v", err)
			}
			if cfg.LogLevel != tt.expected {
				t.Errorf("LogLevel: ожидалось %v, получено %v", tt.expected, cfg.LogLevel)
			}
		})
	}
}

func TestSetupLogger(t *testing.T) {
	tests := []struct {
		name   string
		format string
	}{
		{"json", "json"},
		{"text", "text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				LogLevel:  slog.LevelInfo,
				LogFormat: tt.format,
			}
			logger := SetupLogger(cfg)
			if logger == nil {
				t.Fatal("SetupLogger вернул nil")
			}
		})
	}
}

func TestNewLogger_WritesToWriter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{LogLevel: slog.LevelWarn, LogFormat: "json"}, &buf)

	logger.Info("скрыто")
	logger.Warn("видно", slog.String("key", "value"))

	out := buf.String()
	if strings.Contains(out, "скрыто") {
		t.Errorf("INFO не должен проходить при уровне WARN: %s", out)
	}
	if !strings.Contains(out, `"msg":"видно"`) || !strings.Contains(out, `"key":"value"`) {
		t.Errorf("ожидалась JSON-запись WARN, получено: %s", out)
	}
}
