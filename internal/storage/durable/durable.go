// Пакет durable — синхронная запись файлов с fsync.
// Все изменения персистентного состояния (WAL, vaults.json, заглушки
// хранилищ) проходят через этот пакет. Успешный возврат означает,
// что содержимое переживёт падение процесса (но не отказ диска).
package durable

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	dirPerm  = 0o750
	filePerm = 0o640
)

// TmpSuffix — суффикс временного файла при атомарной перезаписи.
const TmpSuffix = ".tmp"

// WriteSynced полностью заменяет содержимое файла path.
// Паттерн: MkdirAll → temp файл → write → fsync → atomic rename.
// При любой ошибке temp файл удаляется, прежнее содержимое path не меняется.
func WriteSynced(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("не удалось создать директорию %s: %w", dir, err)
	}

	tmpPath := path + TmpSuffix

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, filePerm)
	if err != nil {
		return fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("ошибка записи: %w", err)
	}

	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return nil
}

// CreateExclusive создаёт файл path, только если он ещё не существует,
// записывает data и делает fsync. Проверка существования и создание
// выполняются одним системным вызовом (O_EXCL).
//
// Если файл уже есть, возвращаемая ошибка удовлетворяет
// errors.Is(err, fs.ErrExist), существующий файл не трогается.
// При ошибке записи частично созданный файл удаляется.
func CreateExclusive(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("не удалось создать директорию %s: %w", dir, err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, filePerm)
	if err != nil {
		return fmt.Errorf("ошибка эксклюзивного создания %s: %w", path, err)
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return fmt.Errorf("ошибка записи: %w", err)
	}

	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	return nil
}

// ReadFile читает файл целиком.
func ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения %s: %w", path, err)
	}
	return data, nil
}

// Remove удаляет файл. Возвращает nil, если файл уже не существует.
func Remove(path string) error {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("ошибка удаления %s: %w", path, err)
	}
	return nil
}

// Exists проверяет существование файла.
// Ошибки, отличные от «не найден», возвращаются вызывающему.
func Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("ошибка проверки %s: %w", path, err)
}
