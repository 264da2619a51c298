// handler.go — APIHandler собирает доменные handlers и регистрирует
// их маршруты в chi-роутере.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// APIHandler — единая точка регистрации всех endpoints API.
type APIHandler struct {
	vaults      *VaultsHandler
	wal         *WALHandler
	system      *SystemHandler
	maintenance *MaintenanceHandler
	health      *HealthHandler
}

// NewAPIHandler создаёт единый handler для всех endpoints.
func NewAPIHandler(
	vaults *VaultsHandler,
	walHandler *WALHandler,
	system *SystemHandler,
	maintenance *MaintenanceHandler,
	health *HealthHandler,
) *APIHandler {
	return &APIHandler{
		vaults:      vaults,
		wal:         walHandler,
		system:      system,
		maintenance: maintenance,
		health:      health,
	}
}

// Register монтирует маршруты в роутер.
func (h *APIHandler) Register(r chi.Router) {
	r.Get("/health/live", h.health.HealthLive)
	r.Get("/health/ready", h.health.HealthReady)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/info", h.system.GetInfo)

		r.Route("/vaults", func(r chi.Router) {
			r.Get("/", h.vaults.List)
			r.Post("/", h.vaults.Create)
			r.Post("/cleanup", h.vaults.CleanupBroken)
			r.Delete("/{id}", h.vaults.Delete)
			r.Post("/{id}/open", h.vaults.Open)
		})

		r.Get("/wal", h.wal.GetCurrent)
		r.Get("/recovery", h.wal.GetRecovery)

		r.Get("/maintenance/reconcile", h.maintenance.LastReconcile)
		r.Post("/maintenance/reconcile", h.maintenance.Reconcile)
	})
}

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
