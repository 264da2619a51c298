// system.go — обработчик GET /api/v1/info (информация о процессе vaultkeeper).
package handlers

import (
	"net/http"
	"os"

	"github.com/bigkaa/vaultkeeper/internal/config"
)

// VaultCounter — количество зарегистрированных хранилищ.
type VaultCounter interface {
	Count() int
}

// SystemHandler — обработчик системных endpoints.
type SystemHandler struct {
	cfg          *config.Config
	vaults       VaultCounter
	walPath      string
	registryPath string
}

// NewSystemHandler создаёт обработчик системных endpoints.
func NewSystemHandler(cfg *config.Config, vaults VaultCounter, walPath, registryPath string) *SystemHandler {
	return &SystemHandler{
		cfg:          cfg,
		vaults:       vaults,
		walPath:      walPath,
		registryPath: registryPath,
	}
}

// infoResponse — ответ GET /api/v1/info.
type infoResponse struct {
	Version                  string `json:"version"`
	PID                      int    `json:"pid"`
	DataDir                  string `json:"data_dir"`
	WALPath                  string `json:"wal_path"`
	RegistryPath             string `json:"registry_path"`
	Vaults                   int    `json:"vaults"`
	CreateRollbackMaxEntries int    `json:"create_rollback_max_entries"`
	PlaceholderFile          string `json:"placeholder_file"`
}

// GetInfo обрабатывает GET /api/v1/info.
func (h *SystemHandler) GetInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, infoResponse{
		Version:                  config.Version,
		PID:                      os.Getpid(),
		DataDir:                  h.cfg.DataDir,
		WALPath:                  h.walPath,
		RegistryPath:             h.registryPath,
		Vaults:                   h.vaults.Count(),
		CreateRollbackMaxEntries: h.cfg.CreateRollbackMaxEntries,
		PlaceholderFile:          h.cfg.PlaceholderFile,
	})
}
