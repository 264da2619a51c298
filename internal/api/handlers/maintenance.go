// maintenance.go — обработчики /api/v1/maintenance/reconcile.
// Делегирует reconciliation в ReconcileService.
package handlers

import (
	"net/http"

	apierrors "github.com/bigkaa/vaultkeeper/internal/api/errors"
	"github.com/bigkaa/vaultkeeper/internal/service"
)

// ReconcileRunner — интерфейс для запуска reconciliation.
// Позволяет тестировать handler без полного ReconcileService.
type ReconcileRunner interface {
	// RunOnce выполняет один цикл reconciliation.
	// Возвращает результат и флаг "уже выполняется".
	RunOnce() (*service.ReconcileResult, bool)
	// Last возвращает результат последнего прогона или nil.
	Last() *service.ReconcileResult
}

// MaintenanceHandler — обработчик endpoints обслуживания.
type MaintenanceHandler struct {
	reconciler ReconcileRunner
}

// NewMaintenanceHandler создаёт обработчик maintenance endpoints.
func NewMaintenanceHandler(reconciler ReconcileRunner) *MaintenanceHandler {
	return &MaintenanceHandler{reconciler: reconciler}
}

// Reconcile обрабатывает POST /api/v1/maintenance/reconcile.
// Запускает синхронный цикл reconciliation и возвращает результат.
// Если reconciliation уже выполняется, ответ 409 RECONCILE_IN_PROGRESS.
func (h *MaintenanceHandler) Reconcile(w http.ResponseWriter, _ *http.Request) {
	result, inProgress := h.reconciler.RunOnce()
	if inProgress {
		apierrors.ReconcileInProgress(w, "Reconciliation уже выполняется")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// LastReconcile обрабатывает GET /api/v1/maintenance/reconcile.
// 404, если сверка ещё не выполнялась.
func (h *MaintenanceHandler) LastReconcile(w http.ResponseWriter, _ *http.Request) {
	result := h.reconciler.Last()
	if result == nil {
		apierrors.NotFound(w, "Reconciliation ещё не выполнялась")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
