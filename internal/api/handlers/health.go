// health.go — обработчики health endpoints.
package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/bigkaa/vaultkeeper/internal/config"
)

// statusFail — строковая константа для статуса "fail" в health checks.
const statusFail = "fail"

// TransactionChecker — проверка наличия незавершённой WAL-транзакции.
type TransactionChecker interface {
	HasActiveTransaction() (bool, error)
}

// HealthHandler реализует health endpoints: /health/live, /health/ready.
type HealthHandler struct {
	version string
	// dataDir — директория данных (vaults.json, operation.wal)
	dataDir string
	// tx — WAL для проверки активной транзакции
	tx TransactionChecker
}

// NewHealthHandler создаёт обработчик health endpoints.
func NewHealthHandler(dataDir string, tx TransactionChecker) *HealthHandler {
	return &HealthHandler{
		version: config.Version,
		dataDir: dataDir,
		tx:      tx,
	}
}

// HealthLive обрабатывает GET /health/live.
// Возвращает 200, если процесс жив. Не проверяет зависимости.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   "vaultkeeper",
	})
}

// HealthReady обрабатывает GET /health/ready.
// Проверяет: директория данных доступна на запись, состояние WAL.
// Активная транзакция даёт degraded: операции над хранилищами
// будут отклоняться до перезапуска.
func (h *HealthHandler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	overallStatus := "ok"
	httpStatus := http.StatusOK

	fsCheck := h.checkFilesystem()
	if fsCheck["status"] != "ok" {
		overallStatus = statusFail
		httpStatus = http.StatusServiceUnavailable
	}

	walCheck := h.checkWAL()
	switch walCheck["status"] {
	case statusFail:
		overallStatus = statusFail
		httpStatus = http.StatusServiceUnavailable
	case "degraded":
		if overallStatus != statusFail {
			overallStatus = "degraded"
		}
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   "vaultkeeper",
		"checks": map[string]any{
			"filesystem": fsCheck,
			"wal":        walCheck,
		},
	})
}

// checkFilesystem проверяет доступность директории данных на запись.
func (h *HealthHandler) checkFilesystem() map[string]any {
	if h.dataDir == "" {
		return map[string]any{
			"status":  "ok",
			"message": "Проверка не настроена",
		}
	}

	testFile := filepath.Join(h.dataDir, ".health_check")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return map[string]any{
			"status":  statusFail,
			"message": "Директория данных недоступна для записи: " + err.Error(),
		}
	}
	_ = os.Remove(testFile)

	return map[string]any{
		"status": "ok",
	}
}

// checkWAL проверяет наличие незавершённой транзакции.
func (h *HealthHandler) checkWAL() map[string]any {
	if h.tx == nil {
		return map[string]any{
			"status":  "ok",
			"message": "Проверка не настроена",
		}
	}

	active, err := h.tx.HasActiveTransaction()
	if err != nil {
		return map[string]any{
			"status":  statusFail,
			"message": "Ошибка проверки WAL: " + err.Error(),
		}
	}
	if active {
		return map[string]any{
			"status":  "degraded",
			"message": "Есть незавершённая транзакция, требуется перезапуск",
		}
	}

	return map[string]any{
		"status": "ok",
	}
}
