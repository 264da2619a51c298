package wal

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/vaultkeeper/internal/storage/durable"
)

// DefaultCreateRollbackMaxEntries — максимальное число записей в директории
// недосозданного хранилища, при котором откат удаляет её целиком:
// пустая директория или директория только с файлом-заглушкой,
// который создаётся первым при инициализации хранилища.
const DefaultCreateRollbackMaxEntries = 1

// WAL — менеджер транзакций над единственным файлом operation.wal.
//
// Протокол вызывающего кода:
//  1. Begin — до любых изменений реестра и файловой системы
//  2. UpdateStatus(StatusInProgress) — перед реальной работой
//  3. UpdateStatus(StatusCompleted) + Commit при успехе
//  4. MarkFailed — при явной ошибке; либо падение процесса,
//     после которого откат выполнит RecoverIncomplete при следующем старте
type WAL struct {
	// path — путь к operation.wal
	path string
	// registryPath — путь к vaults.json, восстанавливаемому при откате
	registryPath string
	// createRollbackMaxEntries — порог удаления директории при откате CreateVault
	createRollbackMaxEntries int
	// mu — сериализация вызовов внутри процесса
	mu     sync.Mutex
	logger *slog.Logger
}

// Option — параметр WAL.
type Option func(*WAL)

// WithCreateRollbackMaxEntries задаёт порог удаления директории
// при откате CreateVault. Отрицательные значения игнорируются.
func WithCreateRollbackMaxEntries(n int) Option {
	return func(w *WAL) {
		if n >= 0 {
			w.createRollbackMaxEntries = n
		}
	}
}

// New создаёт менеджер WAL. Создаёт директорию WAL-файла, если её нет,
// и проверяет, что она доступна для записи.
func New(path, registryPath string, logger *slog.Logger, opts ...Option) (*WAL, error) {
	if path == "" {
		return nil, fmt.Errorf("путь к файлу WAL не задан")
	}
	if registryPath == "" {
		return nil, fmt.Errorf("путь к реестру хранилищ не задан")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию WAL %s: %w", dir, err)
	}

	// Проверяем доступность на запись через temp файл
	testFile := filepath.Join(dir, ".wal_write_test")
	if err := os.WriteFile(testFile, []byte("ok"), 0o640); err != nil {
		return nil, fmt.Errorf("директория WAL %s недоступна для записи: %w", dir, err)
	}
	_ = os.Remove(testFile)

	w := &WAL{
		path:                     path,
		registryPath:             registryPath,
		createRollbackMaxEntries: DefaultCreateRollbackMaxEntries,
		logger:                   logger.With(slog.String("component", "wal")),
	}
	for _, opt := range opts {
		opt(w)
	}

	return w, nil
}

// Begin создаёт новую WAL-запись со статусом pending и возвращает
// идентификатор транзакции. Запись создаётся эксклюзивно: если WAL-файл
// уже существует, возвращается ошибка KindConflict, файл не изменяется.
func (w *WAL) Begin(op Operation) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	entry := &Entry{
		ID:        uuid.New().String(),
		Operation: op,
		StartedAt: time.Now().UTC(),
		Status:    StatusPending,
	}

	data, err := encodeEntry(entry)
	if err != nil {
		return "", serializationError("begin", w.path, err)
	}

	if err := durable.CreateExclusive(w.path, data); err != nil {
		if errors.Is(err, fs.ErrExist) {
			transactionsTotal.WithLabelValues(opLabel(op), "conflict").Inc()
			w.logger.Warn("Попытка начать транзакцию при активной WAL-записи",
				slog.String("operation", opLabel(op)),
			)
			return "", conflictError("begin", w.path)
		}
		return "", ioError("begin", w.path, err)
	}

	activeTransaction.Set(1)
	transactionsTotal.WithLabelValues(opLabel(op), "begun").Inc()

	w.logger.Debug("WAL транзакция начата",
		slog.String("tx_id", entry.ID),
		slog.String("operation", opLabel(op)),
	)

	return entry.ID, nil
}

// UpdateStatus переписывает статус текущей записи.
// Без WAL-файла ничего не делает.
func (w *WAL) UpdateStatus(status Status) error {
	if !status.IsValid() {
		return serializationError("update_status", w.path,
			fmt.Errorf("недопустимый статус %q", status))
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	entry, ok, err := w.readEntry("update_status")
	if err != nil || !ok {
		return err
	}

	if !entry.Status.CanTransitionTo(status) {
		w.logger.Warn("Нештатный переход статуса WAL",
			slog.String("tx_id", entry.ID),
			slog.String("from", string(entry.Status)),
			slog.String("to", string(status)),
		)
	}

	entry.Status = status
	if err := w.writeEntry("update_status", entry); err != nil {
		return err
	}

	w.logger.Debug("Статус WAL обновлён",
		slog.String("tx_id", entry.ID),
		slog.String("status", string(status)),
	)

	return nil
}

// MarkFailed переводит текущую запись в rolled_back с сообщением об ошибке.
// Без WAL-файла ничего не делает.
func (w *WAL) MarkFailed(message string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.markFailedLocked(message)
}

func (w *WAL) markFailedLocked(message string) error {
	entry, ok, err := w.readEntry("mark_failed")
	if err != nil || !ok {
		return err
	}

	entry.Status = StatusRolledBack
	entry.Error = &message

	if err := w.writeEntry("mark_failed", entry); err != nil {
		return err
	}

	transactionsTotal.WithLabelValues(opLabel(entry.Operation), "failed").Inc()

	w.logger.Warn("WAL транзакция помечена как неудачная",
		slog.String("tx_id", entry.ID),
		slog.String("operation", opLabel(entry.Operation)),
		slog.String("error", message),
	)

	return nil
}

// Commit удаляет WAL-файл и освобождает слот транзакции.
// Без WAL-файла ничего не делает.
func (w *WAL) Commit() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.commitLocked()
}

func (w *WAL) commitLocked() error {
	exists, err := durable.Exists(w.path)
	if err != nil {
		return ioError("commit", w.path, err)
	}
	if !exists {
		return nil
	}

	// Метка операции нужна только для метрик, нечитаемая запись не мешает коммиту
	label := "unknown"
	if data, readErr := os.ReadFile(w.path); readErr == nil {
		if entry, decErr := decodeEntry(data); decErr == nil {
			label = opLabel(entry.Operation)
		}
	}

	if err := durable.Remove(w.path); err != nil {
		return ioError("commit", w.path, err)
	}

	activeTransaction.Set(0)
	transactionsTotal.WithLabelValues(label, "committed").Inc()

	w.logger.Debug("WAL транзакция завершена", slog.String("operation", label))

	return nil
}

// HasActiveTransaction сообщает, существует ли WAL-файл.
func (w *WAL) HasActiveTransaction() (bool, error) {
	exists, err := durable.Exists(w.path)
	if err != nil {
		return false, ioError("has_active_transaction", w.path, err)
	}
	return exists, nil
}

// CurrentEntry возвращает текущую WAL-запись или nil, если её нет.
func (w *WAL) CurrentEntry() (*Entry, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	entry, _, err := w.readEntry("get_current_entry")
	return entry, err
}

// Path возвращает путь к WAL-файлу.
func (w *WAL) Path() string {
	return w.path
}

// readEntry читает WAL-запись. ok=false, если файла нет.
func (w *WAL) readEntry(op string) (*Entry, bool, error) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, ioError(op, w.path, fmt.Errorf("ошибка чтения файла: %w", err))
	}

	entry, err := decodeEntry(data)
	if err != nil {
		return nil, false, serializationError(op, w.path, fmt.Errorf("ошибка десериализации: %w", err))
	}

	return entry, true, nil
}

// writeEntry перезаписывает WAL-файл целиком.
func (w *WAL) writeEntry(op string, entry *Entry) error {
	data, err := encodeEntry(entry)
	if err != nil {
		return serializationError(op, w.path, fmt.Errorf("ошибка сериализации: %w", err))
	}

	if err := durable.WriteSynced(w.path, data); err != nil {
		return ioError(op, w.path, err)
	}

	return nil
}
