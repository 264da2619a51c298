// wal.go — обработчики состояния WAL: текущая запись и результат
// восстановления при старте.
package handlers

import (
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/vaultkeeper/internal/api/errors"
	"github.com/bigkaa/vaultkeeper/internal/storage/wal"
)

// WALInspector — чтение текущей WAL-записи (реализуется *wal.WAL).
type WALInspector interface {
	CurrentEntry() (*wal.Entry, error)
}

// WALHandler — обработчик endpoints WAL.
type WALHandler struct {
	wal      WALInspector
	recovery wal.RecoveryResult
	logger   *slog.Logger
}

// NewWALHandler создаёт обработчик WAL. recovery: результат
// RecoverIncomplete, выполненного при старте.
func NewWALHandler(inspector WALInspector, recovery wal.RecoveryResult, logger *slog.Logger) *WALHandler {
	return &WALHandler{
		wal:      inspector,
		recovery: recovery,
		logger:   logger.With(slog.String("component", "wal_handler")),
	}
}

// walStateResponse — ответ GET /api/v1/wal.
type walStateResponse struct {
	Active bool       `json:"active"`
	Entry  *wal.Entry `json:"entry"`
}

// GetCurrent обрабатывает GET /api/v1/wal.
func (h *WALHandler) GetCurrent(w http.ResponseWriter, _ *http.Request) {
	entry, err := h.wal.CurrentEntry()
	if err != nil {
		h.logger.Error("Ошибка чтения WAL", slog.String("error", err.Error()))
		apierrors.InternalError(w, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, walStateResponse{Active: entry != nil, Entry: entry})
}

// GetRecovery обрабатывает GET /api/v1/recovery.
// UI показывает сообщение, если при старте был выполнен откат.
func (h *WALHandler) GetRecovery(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.recovery)
}
