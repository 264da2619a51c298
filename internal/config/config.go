// Пакет config — загрузка и валидация конфигурации vaultkeeper
// из переменных окружения.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// appDirName — имя директории приложения внутри пользовательского
// каталога конфигурации (os.UserConfigDir).
const appDirName = "vaultkeeper"

// Config содержит все параметры конфигурации vaultkeeper.
type Config struct {
	// Директория данных приложения: vaults.json, operation.wal, lock-файл
	DataDir string
	// Адрес, на котором слушает HTTP API (только loopback)
	ListenHost string
	// Порт HTTP API (диапазон 1024-65535)
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
	// Интервал фоновой сверки реестра с файловой системой
	ReconcileInterval time.Duration
	// Максимальное число записей в директории недосозданного хранилища,
	// при котором откат удаляет директорию
	CreateRollbackMaxEntries int
	// Имя файла-заглушки, создаваемого в новом хранилище
	PlaceholderFile string
	// Запускать сверку при удалении директории хранилища извне
	WatchVaults bool
	// Пауза после события файловой системы перед запуском сверки
	WatchDebounce time.Duration

	// Таймауты HTTP-сервера
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// Addr возвращает адрес HTTP-сервера host:port.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.ListenHost, strconv.Itoa(c.Port))
}

// Load загружает конфигурацию из переменных окружения, валидирует
// значения и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// VK_DATA_DIR — директория данных (по умолчанию {UserConfigDir}/vaultkeeper)
	cfg.DataDir, err = resolveDataDir(os.Getenv("VK_DATA_DIR"))
	if err != nil {
		return nil, fmt.Errorf("VK_DATA_DIR: %w", err)
	}

	// VK_LISTEN_HOST — только loopback (по умолчанию 127.0.0.1)
	cfg.ListenHost = getEnvDefault("VK_LISTEN_HOST", "127.0.0.1")
	if !isLoopback(cfg.ListenHost) {
		return nil, fmt.Errorf("VK_LISTEN_HOST: %q не является loopback-адресом", cfg.ListenHost)
	}

	// VK_PORT — порт HTTP API (по умолчанию 8790)
	port, err := getEnvInt("VK_PORT", 8790)
	if err != nil {
		return nil, fmt.Errorf("VK_PORT: %w", err)
	}
	if port < 1024 || port > 65535 {
		return nil, fmt.Errorf("VK_PORT: значение %d вне допустимого диапазона 1024-65535", port)
	}
	cfg.Port = port

	// VK_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("VK_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("VK_LOG_LEVEL: %w", err)
	}

	// VK_LOG_FORMAT — формат логов (по умолчанию text, процесс запускается из десктопного приложения)
	cfg.LogFormat = getEnvDefault("VK_LOG_FORMAT", "text")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("VK_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// VK_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("VK_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("VK_SHUTDOWN_TIMEOUT: %w", err)
	}

	// VK_RECONCILE_INTERVAL — интервал сверки (по умолчанию 10m)
	cfg.ReconcileInterval, err = getEnvDuration("VK_RECONCILE_INTERVAL", 10*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("VK_RECONCILE_INTERVAL: %w", err)
	}
	if cfg.ReconcileInterval <= 0 {
		return nil, fmt.Errorf("VK_RECONCILE_INTERVAL: значение должно быть положительным")
	}

	// VK_CREATE_ROLLBACK_MAX_ENTRIES — порог отката создания (по умолчанию 1:
	// пустая директория или только файл-заглушка)
	cfg.CreateRollbackMaxEntries, err = getEnvInt("VK_CREATE_ROLLBACK_MAX_ENTRIES", 1)
	if err != nil {
		return nil, fmt.Errorf("VK_CREATE_ROLLBACK_MAX_ENTRIES: %w", err)
	}
	if cfg.CreateRollbackMaxEntries < 0 {
		return nil, fmt.Errorf("VK_CREATE_ROLLBACK_MAX_ENTRIES: значение не может быть отрицательным")
	}

	// VK_PLACEHOLDER_FILE — имя файла-заглушки (по умолчанию Welcome.md)
	cfg.PlaceholderFile = getEnvDefault("VK_PLACEHOLDER_FILE", "Welcome.md")
	if cfg.PlaceholderFile != filepath.Base(cfg.PlaceholderFile) || strings.HasPrefix(cfg.PlaceholderFile, ".") {
		return nil, fmt.Errorf("VK_PLACEHOLDER_FILE: %q должно быть именем файла без пути", cfg.PlaceholderFile)
	}

	// VK_WATCH_VAULTS — наблюдение за директориями хранилищ (по умолчанию true)
	cfg.WatchVaults, err = getEnvBool("VK_WATCH_VAULTS", true)
	if err != nil {
		return nil, fmt.Errorf("VK_WATCH_VAULTS: %w", err)
	}

	cfg.WatchDebounce, err = getEnvDuration("VK_WATCH_DEBOUNCE", 2*time.Second)
	if err != nil {
		return nil, fmt.Errorf("VK_WATCH_DEBOUNCE: %w", err)
	}
	if cfg.WatchDebounce <= 0 {
		return nil, fmt.Errorf("VK_WATCH_DEBOUNCE: значение должно быть положительным")
	}

	cfg.HTTPReadTimeout, err = getEnvDuration("VK_HTTP_READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("VK_HTTP_READ_TIMEOUT: %w", err)
	}
	cfg.HTTPWriteTimeout, err = getEnvDuration("VK_HTTP_WRITE_TIMEOUT", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("VK_HTTP_WRITE_TIMEOUT: %w", err)
	}
	cfg.HTTPIdleTimeout, err = getEnvDuration("VK_HTTP_IDLE_TIMEOUT", 2*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("VK_HTTP_IDLE_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
// Логи пишутся в stdout.
func SetupLogger(cfg *Config) *slog.Logger {
	logger := NewLogger(cfg, os.Stdout)
	slog.SetDefault(logger)
	return logger
}

// NewLogger создаёт slog-логгер с уровнем и форматом из конфигурации.
// Служебные команды CLI пишут логи в stderr, оставляя stdout для результата.
func NewLogger(cfg *Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// --- Вспомогательные функции ---

// resolveDataDir возвращает абсолютный путь директории данных.
// Пустое значение: каталог приложения в пользовательской конфигурации ОС
// (~/.config, ~/Library/Application Support, %AppData%).
func resolveDataDir(val string) (string, error) {
	if val == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("не удалось определить каталог конфигурации пользователя: %w", err)
		}
		return filepath.Join(base, appDirName), nil
	}
	abs, err := filepath.Abs(val)
	if err != nil {
		return "", fmt.Errorf("некорректный путь %q: %w", val, err)
	}
	return abs, nil
}

// isLoopback проверяет, что host является loopback-адресом или localhost.
func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

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

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q (допустимые: true, false, 1, 0)", val)
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
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 6h)", val)
	}
	return d, nil
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
