package vaultfs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestCreateDir проверяет создание директории хранилища с заглушкой.
func TestCreateDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "My Vault")

	if err := CreateDir(path, DefaultPlaceholder, []byte(DefaultPlaceholderContent)); err != nil {
		t.Fatalf("ошибка создания: %v", err)
	}

	if !IsDir(path) {
		t.Fatal("директория хранилища не создана")
	}

	n, err := CountEntries(path)
	if err != nil {
		t.Fatalf("ошибка подсчёта: %v", err)
	}
	if n != 1 {
		t.Errorf("ожидалась 1 запись (заглушка), получено %d", n)
	}

	data, err := os.ReadFile(filepath.Join(path, DefaultPlaceholder))
	if err != nil {
		t.Fatalf("заглушка не найдена: %v", err)
	}
	if string(data) != DefaultPlaceholderContent {
		t.Errorf("неожиданное содержимое заглушки: %q", data)
	}
}

// TestCreateDir_ExistingEmpty проверяет, что пустая существующая директория допустима.
func TestCreateDir_ExistingEmpty(t *testing.T) {
	path := t.TempDir()

	if err := CreateDir(path, DefaultPlaceholder, nil); err != nil {
		t.Fatalf("пустая директория должна приниматься: %v", err)
	}
}

// TestCreateDir_ExistingNonEmpty проверяет отказ для непустой директории.
func TestCreateDir_ExistingNonEmpty(t *testing.T) {
	path := t.TempDir()
	if err := os.WriteFile(filepath.Join(path, "note.md"), []byte("x"), 0o640); err != nil {
		t.Fatalf("ошибка подготовки: %v", err)
	}

	if err := CreateDir(path, DefaultPlaceholder, nil); err == nil {
		t.Error("ожидалась ошибка для непустой директории")
	}
}

// TestRemoveDir проверяет удаление дерева и идемпотентность.
func TestRemoveDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault")
	if err := os.MkdirAll(filepath.Join(path, "sub"), 0o750); err != nil {
		t.Fatalf("ошибка подготовки: %v", err)
	}

	if err := RemoveDir(path); err != nil {
		t.Fatalf("ошибка удаления: %v", err)
	}
	if Exists(path) {
		t.Error("директория должна быть удалена")
	}

	if err := RemoveDir(path); err != nil {
		t.Errorf("повторное удаление не должно возвращать ошибку: %v", err)
	}
}

// TestCountEntries_Hidden проверяет, что скрытые записи учитываются.
func TestCountEntries_Hidden(t *testing.T) {
	path := t.TempDir()
	for _, name := range []string{".obsidian", "Welcome.md"} {
		if err := os.WriteFile(filepath.Join(path, name), nil, 0o640); err != nil {
			t.Fatalf("ошибка подготовки: %v", err)
		}
	}

	n, err := CountEntries(path)
	if err != nil {
		t.Fatalf("ошибка подсчёта: %v", err)
	}
	if n != 2 {
		t.Errorf("ожидалось 2 записи, получено %d", n)
	}
}

// TestSanitizeName проверяет очистку имени хранилища.
func TestSanitizeName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Notes", "Notes"},
		{"  My Notes  ", "My Notes"},
		{"a/b\\c:d", "abcd"},
		{"Заметки 2026", "Заметки 2026"},
		{"../..", "vault"},
		{"", "vault"},
		{strings.Repeat("я", 100), strings.Repeat("я", 64)},
		// NFD: "и" + U+0306
		{"Мои\u0306 архив", "Мой архив"},
	}

	for _, tt := range tests {
		result := SanitizeName(tt.input)
		if result != tt.expected {
			t.Errorf("SanitizeName(%q): ожидалось %q, получено %q", tt.input, tt.expected, result)
		}
	}
}
