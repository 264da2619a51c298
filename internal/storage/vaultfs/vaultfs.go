// Пакет vaultfs — операции с директориями хранилищ (vault) на диске.
// Создание директории с файлом-заглушкой, удаление дерева,
// подсчёт непосредственных записей директории.
package vaultfs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/bigkaa/vaultkeeper/internal/storage/durable"
)

// DefaultPlaceholder — имя файла-заглушки, создаваемого первым
// при инициализации хранилища.
const DefaultPlaceholder = "Welcome.md"

// DefaultPlaceholderContent — содержимое заглушки по умолчанию.
const DefaultPlaceholderContent = "# Welcome\n\nThis is your new vault.\n"

// CreateDir создаёт директорию хранилища и записывает в неё заглушку.
// Если директория уже существует и не пуста, возвращается ошибка.
func CreateDir(path, placeholder string, content []byte) error {
	entries, err := os.ReadDir(path)
	switch {
	case err == nil && len(entries) > 0:
		return fmt.Errorf("директория %s уже существует и не пуста", path)
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("ошибка проверки директории %s: %w", path, err)
	}

	if err := os.MkdirAll(path, 0o750); err != nil {
		return fmt.Errorf("не удалось создать директорию хранилища %s: %w", path, err)
	}

	if placeholder == "" {
		return nil
	}

	if err := durable.WriteSynced(filepath.Join(path, placeholder), content); err != nil {
		return fmt.Errorf("ошибка записи заглушки %s: %w", placeholder, err)
	}

	return nil
}

// RemoveDir удаляет директорию хранилища целиком.
// Возвращает nil, если директория уже не существует.
func RemoveDir(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("ошибка удаления директории %s: %w", path, err)
	}
	return nil
}

// Exists проверяет существование пути (файл или директория).
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// IsDir проверяет, что путь существует и является директорией.
func IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// CountEntries возвращает количество непосредственных записей директории,
// включая скрытые.
func CountEntries(path string) (int, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return 0, fmt.Errorf("ошибка чтения директории %s: %w", path, err)
	}
	return len(entries), nil
}

// SanitizeName убирает небезопасные символы из имени хранилища
// для использования в качестве имени директории.
// Оставляет буквы, цифры, пробел, дефис и подчёркивание.
// Имя приводится к NFC: в NFD "й" приходит как "и" плюс
// комбинирующий знак, который иначе был бы отброшен.
func SanitizeName(s string) string {
	var result strings.Builder
	for _, r := range norm.NFC.String(strings.TrimSpace(s)) {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' || r == ' ' ||
			(r >= 0x0400 && r <= 0x04FF) { // Кириллица
			result.WriteRune(r)
		}
	}
	name := strings.TrimSpace(result.String())
	if runes := []rune(name); len(runes) > 64 {
		name = strings.TrimSpace(string(runes[:64]))
	}
	if name == "" {
		return "vault"
	}
	return name
}
