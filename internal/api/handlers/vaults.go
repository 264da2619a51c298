// vaults.go — обработчики /api/v1/vaults: список, создание, удаление,
// очистка битых хранилищ, открытие.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/vaultkeeper/internal/api/errors"
	"github.com/bigkaa/vaultkeeper/internal/domain/model"
	"github.com/bigkaa/vaultkeeper/internal/service"
	"github.com/bigkaa/vaultkeeper/internal/storage/wal"
)

// maxRequestBody — ограничение тела запроса создания хранилища.
const maxRequestBody = 64 << 10

// VaultOperator — операции над хранилищами (реализуется service.VaultService).
type VaultOperator interface {
	List() []model.VaultStatus
	ActiveID() string
	Create(params service.CreateParams) (model.Vault, error)
	Delete(id string, deleteFiles bool) error
	CleanupBroken() (*service.CleanupResult, error)
	Open(id string) (model.Vault, error)
}

// VaultsHandler — обработчик endpoints хранилищ.
type VaultsHandler struct {
	vaults VaultOperator
	logger *slog.Logger
}

// NewVaultsHandler создаёт обработчик хранилищ.
func NewVaultsHandler(vaults VaultOperator, logger *slog.Logger) *VaultsHandler {
	return &VaultsHandler{
		vaults: vaults,
		logger: logger.With(slog.String("component", "vaults_handler")),
	}
}

// vaultListResponse — ответ GET /api/v1/vaults.
type vaultListResponse struct {
	Vaults        []model.VaultStatus `json:"vaults"`
	ActiveVaultID *string             `json:"active_vault_id"`
	Total         int                 `json:"total"`
	Broken        int                 `json:"broken"`
}

// createVaultRequest — тело POST /api/v1/vaults.
type createVaultRequest struct {
	Name      string `json:"name"`
	ParentDir string `json:"parent_dir"`
}

// cleanupResponse — ответ POST /api/v1/vaults/cleanup.
type cleanupResponse struct {
	Removed []model.Vault `json:"removed"`
	Count   int           `json:"count"`
}

// List обрабатывает GET /api/v1/vaults.
func (h *VaultsHandler) List(w http.ResponseWriter, _ *http.Request) {
	vaults := h.vaults.List()

	resp := vaultListResponse{Vaults: vaults, Total: len(vaults)}
	for _, v := range vaults {
		if v.IsBroken() {
			resp.Broken++
		}
	}
	if id := h.vaults.ActiveID(); id != "" {
		resp.ActiveVaultID = &id
	}

	writeJSON(w, http.StatusOK, resp)
}

// Create обрабатывает POST /api/v1/vaults.
func (h *VaultsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createVaultRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректное тело запроса: "+err.Error())
		return
	}

	vault, err := h.vaults.Create(service.CreateParams{Name: req.Name, ParentDir: req.ParentDir})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, vault)
}

// Delete обрабатывает DELETE /api/v1/vaults/{id}?delete_files=bool.
func (h *VaultsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	deleteFiles := false
	if raw := r.URL.Query().Get("delete_files"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			apierrors.ValidationError(w, "Параметр delete_files должен быть true или false")
			return
		}
		deleteFiles = v
	}

	if err := h.vaults.Delete(id, deleteFiles); err != nil {
		h.writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// CleanupBroken обрабатывает POST /api/v1/vaults/cleanup.
func (h *VaultsHandler) CleanupBroken(w http.ResponseWriter, _ *http.Request) {
	result, err := h.vaults.CleanupBroken()
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, cleanupResponse{
		Removed: result.Removed,
		Count:   len(result.Removed),
	})
}

// Open обрабатывает POST /api/v1/vaults/{id}/open.
func (h *VaultsHandler) Open(w http.ResponseWriter, r *http.Request) {
	vault, err := h.vaults.Open(chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, vault)
}

// writeServiceError преобразует ошибку сервиса в HTTP-ответ.
func (h *VaultsHandler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case wal.IsConflict(err):
		apierrors.TransactionPending(w, wal.ErrTransactionActive.Error())
	case errors.Is(err, service.ErrVaultNotFound):
		apierrors.NotFound(w, err.Error())
	case errors.Is(err, service.ErrInvalidVault):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrVaultExists):
		apierrors.AlreadyExists(w, err.Error())
	case errors.Is(err, service.ErrVaultBroken):
		apierrors.VaultBroken(w, err.Error())
	default:
		h.logger.Error("Ошибка операции над хранилищем", slog.String("error", err.Error()))
		apierrors.InternalError(w, err.Error())
	}
}
