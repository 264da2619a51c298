// Пакет service — бизнес-логика vaultkeeper.
// vaults.go — создание, удаление и очистка хранилищ в WAL-транзакциях.
package service

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/vaultkeeper/internal/domain/model"
	"github.com/bigkaa/vaultkeeper/internal/registry"
	"github.com/bigkaa/vaultkeeper/internal/storage/vaultfs"
	"github.com/bigkaa/vaultkeeper/internal/storage/wal"
)

var (
	// ErrVaultNotFound — хранилище не зарегистрировано.
	ErrVaultNotFound = errors.New("хранилище не найдено")
	// ErrInvalidVault — некорректные параметры хранилища.
	ErrInvalidVault = errors.New("некорректные параметры хранилища")
	// ErrVaultExists — хранилище уже существует (в реестре или на диске).
	ErrVaultExists = errors.New("хранилище уже существует")
	// ErrVaultBroken — директория хранилища отсутствует.
	ErrVaultBroken = errors.New("директория хранилища отсутствует")
)

// vaultOperationsTotal — результаты операций над хранилищами.
// result: success, failed, conflict.
var vaultOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "vk_vault_operations_total",
	Help: "Количество операций над хранилищами",
}, []string{"operation", "result"})

// CreateParams — параметры создания хранилища.
type CreateParams struct {
	// Name — отображаемое имя, из него же строится имя директории
	Name string
	// ParentDir — абсолютный путь к директории, в которой создаётся хранилище
	ParentDir string
}

// CleanupResult — результат удаления битых хранилищ из реестра.
type CleanupResult struct {
	Removed []model.Vault
}

// VaultService — операции над хранилищами. Каждая многошаговая операция
// выполняется внутри WAL-транзакции:
//
//	Begin → InProgress → изменения ФС → изменение реестра → Completed → Commit
//
// Реестр меняется последним, поэтому при падении процесса откат
// при следующем старте восстанавливает его из снимка.
//
// Изменяющие операции выполняются под mu целиком, от проверок и снимка
// реестра до Commit или отката: снимок в WAL-записи всегда совпадает
// с реестром на момент Begin.
type VaultService struct {
	mu                 sync.Mutex
	wal                *wal.WAL
	reg                *registry.Registry
	placeholder        string
	placeholderContent []byte
	logger             *slog.Logger
}

// NewVaultService создаёт сервис хранилищ.
func NewVaultService(
	walEngine *wal.WAL,
	reg *registry.Registry,
	placeholder string,
	logger *slog.Logger,
) *VaultService {
	if placeholder == "" {
		placeholder = vaultfs.DefaultPlaceholder
	}
	return &VaultService{
		wal:                walEngine,
		reg:                reg,
		placeholder:        placeholder,
		placeholderContent: []byte(vaultfs.DefaultPlaceholderContent),
		logger:             logger.With(slog.String("component", "vault_service")),
	}
}

// List возвращает хранилища с состоянием директории.
func (s *VaultService) List() []model.VaultStatus {
	vaults := s.reg.List()
	result := make([]model.VaultStatus, 0, len(vaults))
	for _, v := range vaults {
		state := model.StateOK
		if !vaultfs.IsDir(v.Path) {
			state = model.StateBroken
		}
		result = append(result, model.VaultStatus{Vault: v, State: state})
	}
	return result
}

// Get возвращает хранилище по ID.
func (s *VaultService) Get(id string) (model.Vault, error) {
	v, err := s.reg.Get(id)
	if errors.Is(err, registry.ErrNotFound) {
		return model.Vault{}, fmt.Errorf("%w: %s", ErrVaultNotFound, id)
	}
	return v, err
}

// Create создаёт директорию хранилища с файлом-заглушкой и регистрирует его.
//
// Существующий путь не принимается даже как пустая директория:
// откат создания удаляет директорию, а чужую удалять нельзя.
//
// Поток:
//  1. Валидация и проверка, что путь свободен
//  2. WAL Begin(CreateVault) + InProgress
//  3. Создание директории и заглушки
//  4. Регистрация в реестре
//  5. WAL Completed + Commit
func (s *VaultService) Create(params CreateParams) (model.Vault, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return model.Vault{}, fmt.Errorf("%w: имя не задано", ErrInvalidVault)
	}
	if !filepath.IsAbs(params.ParentDir) {
		return model.Vault{}, fmt.Errorf("%w: путь %q должен быть абсолютным", ErrInvalidVault, params.ParentDir)
	}

	path := filepath.Join(filepath.Clean(params.ParentDir), vaultfs.SanitizeName(name))

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, found := s.reg.FindByPath(path); found {
		return model.Vault{}, fmt.Errorf("%w: %s", ErrVaultExists, path)
	}
	if vaultfs.Exists(path) {
		if !vaultfs.IsDir(path) {
			return model.Vault{}, fmt.Errorf("%w: %s не является директорией", ErrInvalidVault, path)
		}
		return model.Vault{}, fmt.Errorf("%w: директория %s уже существует", ErrVaultExists, path)
	}

	vault := model.Vault{
		ID:        uuid.New().String(),
		Name:      name,
		Path:      path,
		CreatedAt: time.Now().UTC(),
	}

	if _, err := s.wal.Begin(wal.CreateVault{VaultID: vault.ID, VaultPath: path}); err != nil {
		return model.Vault{}, s.beginFailed("create", err)
	}

	if err := s.wal.UpdateStatus(wal.StatusInProgress); err != nil {
		return model.Vault{}, s.abort("create", "", err)
	}

	if err := vaultfs.CreateDir(path, s.placeholder, s.placeholderContent); err != nil {
		return model.Vault{}, s.abort("create", "", fmt.Errorf("ошибка создания директории хранилища: %w", err))
	}

	if err := s.reg.Add(vault); err != nil {
		if rmErr := vaultfs.RemoveDir(path); rmErr != nil {
			s.logger.Error("Не удалось удалить директорию после ошибки регистрации",
				slog.String("path", path),
				slog.String("error", rmErr.Error()),
			)
		}
		return model.Vault{}, s.abort("create", "", err)
	}

	s.finish("create")

	s.logger.Info("Хранилище создано",
		slog.String("vault_id", vault.ID),
		slog.String("name", vault.Name),
		slog.String("path", path),
	)

	return vault, nil
}

// Delete удаляет хранилище из реестра и, если deleteFiles, его директорию.
//
// Поток:
//  1. Поиск в реестре, снимок vaults.json
//  2. WAL Begin(DeleteVault со снимком) + InProgress
//  3. Удаление директории (если запрошено)
//  4. Удаление из реестра
//  5. WAL Completed + Commit
func (s *VaultService) Delete(id string, deleteFiles bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	vault, err := s.Get(id)
	if err != nil {
		return err
	}

	snapshot, err := s.reg.Snapshot()
	if err != nil {
		return err
	}

	op := wal.DeleteVault{
		VaultID:        vault.ID,
		VaultPath:      vault.Path,
		DeleteFiles:    deleteFiles,
		RegistryBackup: snapshot,
	}
	if _, err := s.wal.Begin(op); err != nil {
		return s.beginFailed("delete", err)
	}

	if err := s.wal.UpdateStatus(wal.StatusInProgress); err != nil {
		return s.abort("delete", snapshot, err)
	}

	if deleteFiles {
		if err := vaultfs.RemoveDir(vault.Path); err != nil {
			return s.abort("delete", snapshot, fmt.Errorf("ошибка удаления директории хранилища: %w", err))
		}
	}

	if _, err := s.reg.Remove(vault.ID); err != nil {
		return s.abort("delete", snapshot, err)
	}

	s.finish("delete")

	s.logger.Info("Хранилище удалено",
		slog.String("vault_id", vault.ID),
		slog.String("path", vault.Path),
		slog.Bool("delete_files", deleteFiles),
	)

	return nil
}

// CleanupBroken удаляет из реестра хранилища, директория которых отсутствует.
// Если битых хранилищ нет, транзакция не начинается.
func (s *VaultService) CleanupBroken() (*CleanupResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	broken := s.reg.Broken(vaultfs.IsDir)
	if len(broken) == 0 {
		return &CleanupResult{Removed: []model.Vault{}}, nil
	}

	ids := make([]string, 0, len(broken))
	for _, v := range broken {
		ids = append(ids, v.ID)
	}

	snapshot, err := s.reg.Snapshot()
	if err != nil {
		return nil, err
	}

	if _, err := s.wal.Begin(wal.CleanupBrokenVaults{RegistryBackup: snapshot, VaultIDs: ids}); err != nil {
		return nil, s.beginFailed("cleanup_broken", err)
	}

	if err := s.wal.UpdateStatus(wal.StatusInProgress); err != nil {
		return nil, s.abort("cleanup_broken", snapshot, err)
	}

	if _, err := s.reg.Remove(ids...); err != nil {
		return nil, s.abort("cleanup_broken", snapshot, err)
	}

	s.finish("cleanup_broken")

	s.logger.Info("Битые хранилища удалены из реестра",
		slog.Int("count", len(ids)),
		slog.Any("vault_ids", ids),
	)

	return &CleanupResult{Removed: broken}, nil
}

// Open делает хранилище активным.
func (s *VaultService) Open(id string) (model.Vault, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	vault, err := s.Get(id)
	if err != nil {
		return model.Vault{}, err
	}
	if !vaultfs.IsDir(vault.Path) {
		return model.Vault{}, fmt.Errorf("%w: %s", ErrVaultBroken, vault.Path)
	}
	return s.reg.SetActive(id, time.Now())
}

// beginFailed учитывает отказ Begin. Конфликт возвращается как есть:
// обработчик отличает его через wal.IsConflict.
func (s *VaultService) beginFailed(operation string, err error) error {
	if wal.IsConflict(err) {
		vaultOperationsTotal.WithLabelValues(operation, "conflict").Inc()
		return err
	}
	vaultOperationsTotal.WithLabelValues(operation, "failed").Inc()
	s.logger.Error("Ошибка создания WAL-транзакции",
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
	return err
}

// abort обрабатывает ошибку после Begin: реестр возвращается к снимку
// (если он был снят), запись WAL помечается rolled_back и остаётся на диске
// до следующего старта.
func (s *VaultService) abort(operation, snapshot string, cause error) error {
	if snapshot != "" {
		if err := s.reg.Restore(snapshot); err != nil {
			s.logger.Error("Не удалось восстановить реестр после ошибки",
				slog.String("operation", operation),
				slog.String("error", err.Error()),
			)
		}
	}

	if err := s.wal.MarkFailed(cause.Error()); err != nil {
		s.logger.Error("Не удалось пометить WAL-транзакцию как неудачную",
			slog.String("operation", operation),
			slog.String("error", err.Error()),
		)
	}

	vaultOperationsTotal.WithLabelValues(operation, "failed").Inc()
	s.logger.Error("Операция над хранилищем не выполнена",
		slog.String("operation", operation),
		slog.String("error", cause.Error()),
	)

	return cause
}

// finish завершает успешную транзакцию. Изменения уже применены,
// поэтому ошибки Completed/Commit только логируются.
func (s *VaultService) finish(operation string) {
	if err := s.wal.UpdateStatus(wal.StatusCompleted); err != nil {
		s.logger.Error("Ошибка перевода WAL в completed (изменения применены)",
			slog.String("operation", operation),
			slog.String("error", err.Error()),
		)
	} else if err := s.wal.Commit(); err != nil {
		s.logger.Error("Ошибка коммита WAL (изменения применены)",
			slog.String("operation", operation),
			slog.String("error", err.Error()),
		)
	}

	vaultOperationsTotal.WithLabelValues(operation, "success").Inc()
}

// ActiveID возвращает ID активного хранилища или пустую строку.
func (s *VaultService) ActiveID() string {
	return s.reg.ActiveID()
}
