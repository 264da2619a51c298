// Пакет registry — реестр хранилищ, персистентный в vaults.json.
//
// Реестр загружается целиком в память при старте и перезаписывается
// целиком при каждом изменении (durable.WriteSynced). Открыть реестр
// можно только после восстановления WAL: Open требует токен,
// выданный wal.RecoverIncomplete.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/bigkaa/vaultkeeper/internal/domain/model"
	"github.com/bigkaa/vaultkeeper/internal/storage/durable"
	"github.com/bigkaa/vaultkeeper/internal/storage/wal"
)

// FileName — имя файла реестра в директории данных приложения.
const FileName = "vaults.json"

var (
	// ErrNotRecovered — реестр открывается без токена восстановления WAL.
	ErrNotRecovered = errors.New("реестр нельзя открыть до восстановления WAL")
	// ErrNotFound — хранилище с указанным ID не зарегистрировано.
	ErrNotFound = errors.New("хранилище не найдено")
	// ErrDuplicate — хранилище с таким ID или путём уже зарегистрировано.
	ErrDuplicate = errors.New("хранилище уже зарегистрировано")
)

// document — формат vaults.json на диске.
type document struct {
	Vaults        []model.Vault `json:"vaults"`
	ActiveVaultID *string       `json:"active_vault_id"`
}

// Registry — потокобезопасный реестр хранилищ.
// Порядок хранилищ соответствует порядку регистрации.
type Registry struct {
	path   string
	mu     sync.RWMutex
	doc    document
	logger *slog.Logger
}

// Open загружает реестр из path. Отсутствующий файл означает пустой реестр.
func Open(token *wal.Recovered, path string, logger *slog.Logger) (*Registry, error) {
	if !token.Valid() {
		return nil, ErrNotRecovered
	}

	r := &Registry{
		path:   path,
		logger: logger.With(slog.String("component", "registry")),
	}

	if err := r.load(); err != nil {
		return nil, err
	}

	r.logger.Info("Реестр хранилищ загружен",
		slog.String("path", path),
		slog.Int("vaults", len(r.doc.Vaults)),
	)

	return r, nil
}

// Path возвращает путь к vaults.json.
func (r *Registry) Path() string {
	return r.path
}

// Snapshot возвращает текущее содержимое vaults.json байт в байт.
// Если файла ещё нет, возвращается сериализованный пустой реестр. Результат
// сохраняется в WAL как registry_backup перед изменением реестра.
func (r *Registry) Snapshot() (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	data, err := os.ReadFile(r.path)
	if err == nil {
		return string(data), nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("ошибка чтения реестра %s: %w", r.path, err)
	}

	data, err = encode(document{})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// List возвращает копию списка хранилищ.
func (r *Registry) List() []model.Vault {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]model.Vault, len(r.doc.Vaults))
	copy(result, r.doc.Vaults)
	return result
}

// Get возвращает хранилище по ID.
func (r *Registry) Get(id string) (model.Vault, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, v := range r.doc.Vaults {
		if v.ID == id {
			return v, nil
		}
	}
	return model.Vault{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Count возвращает количество зарегистрированных хранилищ.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.doc.Vaults)
}

// ActiveID возвращает ID активного хранилища или пустую строку.
func (r *Registry) ActiveID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.doc.ActiveVaultID == nil {
		return ""
	}
	return *r.doc.ActiveVaultID
}

// FindByPath возвращает хранилище с указанным путём.
func (r *Registry) FindByPath(path string) (model.Vault, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, v := range r.doc.Vaults {
		if v.Path == path {
			return v, true
		}
	}
	return model.Vault{}, false
}

// Add регистрирует хранилище и сохраняет реестр.
func (r *Registry) Add(v model.Vault) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.doc.Vaults {
		if existing.ID == v.ID || existing.Path == v.Path {
			return fmt.Errorf("%w: %s", ErrDuplicate, v.Path)
		}
	}

	next := r.cloneDoc()
	next.Vaults = append(next.Vaults, v)

	if err := r.save(next); err != nil {
		return err
	}

	r.logger.Debug("Хранилище зарегистрировано",
		slog.String("vault_id", v.ID),
		slog.String("path", v.Path),
	)
	return nil
}

// Remove удаляет хранилища по ID и сохраняет реестр одной записью.
// Неизвестные ID пропускаются. Если удаляется активное хранилище,
// активное сбрасывается. Возвращает число удалённых записей.
func (r *Registry) Remove(ids ...string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	next := r.cloneDoc()
	kept := next.Vaults[:0]
	for _, v := range next.Vaults {
		if _, ok := drop[v.ID]; !ok {
			kept = append(kept, v)
		}
	}
	removed := len(next.Vaults) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	next.Vaults = kept

	if next.ActiveVaultID != nil {
		if _, ok := drop[*next.ActiveVaultID]; ok {
			next.ActiveVaultID = nil
		}
	}

	if err := r.save(next); err != nil {
		return 0, err
	}

	r.logger.Debug("Хранилища удалены из реестра", slog.Int("count", removed))
	return removed, nil
}

// SetActive делает хранилище активным и обновляет LastOpenedAt.
func (r *Registry) SetActive(id string, now time.Time) (model.Vault, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.cloneDoc()
	idx := -1
	for i := range next.Vaults {
		if next.Vaults[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return model.Vault{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	opened := now.UTC()
	next.Vaults[idx].LastOpenedAt = &opened
	activeID := id
	next.ActiveVaultID = &activeID

	if err := r.save(next); err != nil {
		return model.Vault{}, err
	}
	return next.Vaults[idx], nil
}

// Broken возвращает хранилища, директория которых отсутствует.
func (r *Registry) Broken(exists func(path string) bool) []model.Vault {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var broken []model.Vault
	for _, v := range r.doc.Vaults {
		if !exists(v.Path) {
			broken = append(broken, v)
		}
	}
	return broken
}

// Restore перезаписывает vaults.json снимком и перечитывает реестр.
// Используется при ошибке операции внутри работающего процесса.
func (r *Registry) Restore(snapshot string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := durable.WriteSynced(r.path, []byte(snapshot)); err != nil {
		return fmt.Errorf("ошибка восстановления реестра: %w", err)
	}

	if err := r.loadLocked(); err != nil {
		return err
	}

	r.logger.Info("Реестр восстановлен из снимка",
		slog.Int("vaults", len(r.doc.Vaults)),
	)
	return nil
}

// load читает vaults.json в память.
func (r *Registry) load() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadLocked()
}

func (r *Registry) loadLocked() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			r.doc = document{}
			return nil
		}
		return fmt.Errorf("ошибка чтения реестра %s: %w", r.path, err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("ошибка разбора реестра %s: %w", r.path, err)
	}
	r.doc = doc
	return nil
}

// save записывает документ на диск и только затем заменяет состояние в памяти.
func (r *Registry) save(next document) error {
	data, err := encode(next)
	if err != nil {
		return err
	}

	if err := durable.WriteSynced(r.path, data); err != nil {
		return fmt.Errorf("ошибка сохранения реестра: %w", err)
	}

	r.doc = next
	return nil
}

func (r *Registry) cloneDoc() document {
	next := document{
		Vaults: make([]model.Vault, len(r.doc.Vaults)),
	}
	copy(next.Vaults, r.doc.Vaults)
	if r.doc.ActiveVaultID != nil {
		id := *r.doc.ActiveVaultID
		next.ActiveVaultID = &id
	}
	return next
}

func encode(doc document) ([]byte, error) {
	if doc.Vaults == nil {
		doc.Vaults = []model.Vault{}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации реестра: %w", err)
	}
	return data, nil
}
