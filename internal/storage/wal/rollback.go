package wal

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/bigkaa/vaultkeeper/internal/storage/durable"
	"github.com/bigkaa/vaultkeeper/internal/storage/vaultfs"
)

// Типы откаченных операций в RecoveryResult.
const (
	RecoveryDeleteVault   = "delete_vault"
	RecoveryCreateVault   = "create_vault"
	RecoveryCleanupBroken = "cleanup_broken"
)

// rollback откатывает прерванную операцию. Вызывается только из
// RecoverIncomplete. Возвращает описание и тип операции.
func (w *WAL) rollback(entry *Entry) (string, string, error) {
	switch op := entry.Operation.(type) {
	case DeleteVault:
		if err := w.restoreRegistry(op.RegistryBackup); err != nil {
			return "", "", err
		}
		return fmt.Sprintf("Откат незавершённого удаления хранилища: %s", op.VaultID),
			RecoveryDeleteVault, nil

	case CreateVault:
		if err := w.cleanupCreatedDir(op.VaultPath); err != nil {
			return "", "", err
		}
		return fmt.Sprintf("Очищено незавершённое создание хранилища: %s", op.VaultID),
			RecoveryCreateVault, nil

	case CleanupBrokenVaults:
		if err := w.restoreRegistry(op.RegistryBackup); err != nil {
			return "", "", err
		}
		return fmt.Sprintf("Откат незавершённой очистки %d битых хранилищ", len(op.VaultIDs)),
			RecoveryCleanupBroken, nil

	default:
		return "", "", serializationError("recover", w.path,
			fmt.Errorf("неизвестная операция %T", entry.Operation))
	}
}

// restoreRegistry перезаписывает vaults.json снимком из WAL байт в байт.
// Удалённые с диска файлы хранилищ не восстанавливаются.
func (w *WAL) restoreRegistry(backup string) error {
	if err := durable.WriteSynced(w.registryPath, []byte(backup)); err != nil {
		return ioError("recover", w.registryPath, fmt.Errorf("ошибка восстановления реестра: %w", err))
	}

	w.logger.Info("Реестр восстановлен из снимка WAL",
		slog.String("registry", w.registryPath),
		slog.Int("bytes", len(backup)),
	)
	return nil
}

// cleanupCreatedDir удаляет директорию недосозданного хранилища, если
// в ней не больше createRollbackMaxEntries записей. Заполненная директория
// считается признаком того, что создание в основном прошло или пользователь
// уже положил туда данные: такая директория не трогается.
func (w *WAL) cleanupCreatedDir(path string) error {
	if path == "" {
		return nil
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return ioError("recover", path, err)
	}

	if !info.IsDir() {
		w.logger.Warn("Путь хранилища не является директорией, оставлен без изменений",
			slog.String("path", path),
		)
		return nil
	}

	count, err := vaultfs.CountEntries(path)
	if err != nil {
		return ioError("recover", path, err)
	}

	if count > w.createRollbackMaxEntries {
		w.logger.Warn("Директория хранилища не пуста, оставлена без изменений",
			slog.String("path", path),
			slog.Int("entries", count),
			slog.Int("threshold", w.createRollbackMaxEntries),
		)
		return nil
	}

	if err := vaultfs.RemoveDir(path); err != nil {
		return ioError("recover", path, err)
	}

	w.logger.Info("Удалена директория недосозданного хранилища",
		slog.String("path", path),
		slog.Int("entries", count),
	)
	return nil
}
