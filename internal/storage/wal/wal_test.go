package wal

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// testLogger возвращает логгер для тестов (вывод подавляется).
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError, // подавляем debug/info/warn в тестах
	}))
}

// newTestWAL создаёт WAL во временной директории.
func newTestWAL(t *testing.T, opts ...Option) *WAL {
	t.Helper()
	dir := t.TempDir()
	w, err := New(filepath.Join(dir, FileName), filepath.Join(dir, "vaults.json"), testLogger(), opts...)
	if err != nil {
		t.Fatalf("ошибка создания WAL: %v", err)
	}
	return w
}

// TestNew_CreatesDirectory проверяет, что New создаёт директорию WAL.
func TestNew_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "app")

	w, err := New(filepath.Join(dir, FileName), filepath.Join(dir, "vaults.json"), testLogger())
	if err != nil {
		t.Fatalf("ожидалось успешное создание WAL, получена ошибка: %v", err)
	}

	if w.Path() != filepath.Join(dir, FileName) {
		t.Errorf("ожидался путь %s, получен %s", filepath.Join(dir, FileName), w.Path())
	}

	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("директория WAL не создана: %v", err)
	}
	if !info.IsDir() {
		t.Fatalf("WAL path не является директорией")
	}
}

// TestNew_EmptyPaths проверяет ошибку при незаданных путях.
func TestNew_EmptyPaths(t *testing.T) {
	if _, err := New("", "/tmp/vaults.json", testLogger()); err == nil {
		t.Error("ожидалась ошибка при пустом пути WAL")
	}
	if _, err := New("/tmp/operation.wal", "", testLogger()); err == nil {
		t.Error("ожидалась ошибка при пустом пути реестра")
	}
}

// TestBegin проверяет создание новой транзакции.
func TestBegin(t *testing.T) {
	w := newTestWAL(t)

	op := DeleteVault{
		VaultID:        "vault-1",
		VaultPath:      "/home/user/Notes",
		DeleteFiles:    true,
		RegistryBackup: `{"vaults":[{"id":"vault-1"}]}`,
	}

	id, err := w.Begin(op)
	if err != nil {
		t.Fatalf("ошибка создания транзакции: %v", err)
	}
	if id == "" {
		t.Error("идентификатор транзакции не должен быть пустым")
	}

	active, err := w.HasActiveTransaction()
	if err != nil {
		t.Fatalf("ошибка проверки активной транзакции: %v", err)
	}
	if !active {
		t.Error("после Begin транзакция должна быть активной")
	}

	entry, err := w.CurrentEntry()
	if err != nil {
		t.Fatalf("ошибка чтения: %v", err)
	}
	if entry == nil {
		t.Fatal("ожидалась текущая запись")
	}
	if entry.ID != id {
		t.Errorf("ожидался id %s, получен %s", id, entry.ID)
	}
	if entry.Status != StatusPending {
		t.Errorf("ожидался статус %s, получен %s", StatusPending, entry.Status)
	}
	if entry.Error != nil {
		t.Errorf("ошибка должна отсутствовать, получено %q", *entry.Error)
	}
	if entry.StartedAt.IsZero() {
		t.Error("StartedAt не должен быть нулевым")
	}

	got, ok := entry.Operation.(DeleteVault)
	if !ok {
		t.Fatalf("ожидалась операция DeleteVault, получена %T", entry.Operation)
	}
	if got != op {
		t.Errorf("операция изменилась при записи: %+v != %+v", got, op)
	}
}

// TestBegin_Conflict проверяет, что вторая транзакция отклоняется
// и не меняет существующий WAL-файл.
func TestBegin_Conflict(t *testing.T) {
	w := newTestWAL(t)

	if _, err := w.Begin(CreateVault{VaultID: "v1", VaultPath: "/a"}); err != nil {
		t.Fatalf("ошибка первой транзакции: %v", err)
	}

	before, err := os.ReadFile(w.Path())
	if err != nil {
		t.Fatalf("ошибка чтения: %v", err)
	}

	_, err = w.Begin(CreateVault{VaultID: "v2", VaultPath: "/b"})
	if err == nil {
		t.Fatal("ожидалась ошибка конфликта")
	}
	if !IsConflict(err) {
		t.Errorf("ожидалась ошибка вида %s, получено: %v", KindConflict, err)
	}
	if !strings.Contains(err.Error(), "перезапустите приложение") {
		t.Errorf("сообщение должно предлагать перезапуск: %v", err)
	}

	after, err := os.ReadFile(w.Path())
	if err != nil {
		t.Fatalf("ошибка чтения: %v", err)
	}
	if string(before) != string(after) {
		t.Error("содержимое WAL изменилось после отклонённой транзакции")
	}
}

// TestCommit проверяет удаление WAL-файла.
func TestCommit(t *testing.T) {
	w := newTestWAL(t)

	if _, err := w.Begin(CreateVault{VaultID: "v1", VaultPath: "/a"}); err != nil {
		t.Fatalf("ошибка создания транзакции: %v", err)
	}

	if err := w.Commit(); err != nil {
		t.Fatalf("ошибка коммита: %v", err)
	}

	active, err := w.HasActiveTransaction()
	if err != nil {
		t.Fatalf("ошибка проверки: %v", err)
	}
	if active {
		t.Error("после Commit транзакция не должна быть активной")
	}
	if _, err := os.Stat(w.Path()); !os.IsNotExist(err) {
		t.Error("WAL-файл должен быть удалён")
	}

	// Слот освобождён, новая транзакция возможна
	if _, err := w.Begin(CreateVault{VaultID: "v2", VaultPath: "/b"}); err != nil {
		t.Errorf("после Commit новая транзакция должна начинаться: %v", err)
	}
}

// TestNoActiveTransaction_NoOps проверяет, что операции без WAL-файла ничего не делают.
func TestNoActiveTransaction_NoOps(t *testing.T) {
	w := newTestWAL(t)

	if err := w.UpdateStatus(StatusInProgress); err != nil {
		t.Errorf("UpdateStatus без WAL не должен возвращать ошибку: %v", err)
	}
	if err := w.MarkFailed("boom"); err != nil {
		t.Errorf("MarkFailed без WAL не должен возвращать ошибку: %v", err)
	}
	if err := w.Commit(); err != nil {
		t.Errorf("Commit без WAL не должен возвращать ошибку: %v", err)
	}

	if _, err := os.Stat(w.Path()); !os.IsNotExist(err) {
		t.Error("WAL-файл не должен появляться после no-op вызовов")
	}

	entry, err := w.CurrentEntry()
	if err != nil {
		t.Fatalf("ошибка чтения: %v", err)
	}
	if entry != nil {
		t.Errorf("ожидалось отсутствие записи, получено %+v", entry)
	}
}

// TestUpdateStatus проверяет обновление статуса без изменения неизменяемых полей.
func TestUpdateStatus(t *testing.T) {
	w := newTestWAL(t)

	id, err := w.Begin(CleanupBrokenVaults{RegistryBackup: "{}", VaultIDs: []string{"a", "b"}})
	if err != nil {
		t.Fatalf("ошибка создания транзакции: %v", err)
	}
	before, _ := w.CurrentEntry()

	for _, status := range []Status{StatusInProgress, StatusCompleted} {
		if err := w.UpdateStatus(status); err != nil {
			t.Fatalf("ошибка обновления статуса %s: %v", status, err)
		}

		entry, err := w.CurrentEntry()
		if err != nil {
			t.Fatalf("ошибка чтения: %v", err)
		}
		if entry.Status != status {
			t.Errorf("ожидался статус %s, получен %s", status, entry.Status)
		}
		if entry.ID != id {
			t.Errorf("id изменился: %s → %s", id, entry.ID)
		}
		if !entry.StartedAt.Equal(before.StartedAt) {
			t.Errorf("started_at изменился: %v → %v", before.StartedAt, entry.StartedAt)
		}
		op := entry.Operation.(CleanupBrokenVaults)
		if len(op.VaultIDs) != 2 || op.RegistryBackup != "{}" {
			t.Errorf("операция изменилась: %+v", op)
		}
	}
}

// TestUpdateStatus_Invalid проверяет отказ для статуса вне множества.
func TestUpdateStatus_Invalid(t *testing.T) {
	w := newTestWAL(t)

	err := w.UpdateStatus(Status("done"))
	if err == nil {
		t.Fatal("ожидалась ошибка для недопустимого статуса")
	}
	if KindOf(err) != KindSerialization {
		t.Errorf("ожидался вид %s, получен %s", KindSerialization, KindOf(err))
	}
}

// TestMarkFailed проверяет перевод в rolled_back с сообщением.
func TestMarkFailed(t *testing.T) {
	w := newTestWAL(t)

	if _, err := w.Begin(CreateVault{VaultID: "v1", VaultPath: "/a"}); err != nil {
		t.Fatalf("ошибка создания транзакции: %v", err)
	}

	if err := w.MarkFailed("диск заполнен"); err != nil {
		t.Fatalf("ошибка MarkFailed: %v", err)
	}

	entry, err := w.CurrentEntry()
	if err != nil {
		t.Fatalf("ошибка чтения: %v", err)
	}
	if entry.Status != StatusRolledBack {
		t.Errorf("ожидался статус %s, получен %s", StatusRolledBack, entry.Status)
	}
	if entry.Error == nil || *entry.Error != "диск заполнен" {
		t.Errorf("ожидалось сообщение об ошибке, получено %v", entry.Error)
	}
}

// TestFileFormat проверяет формат operation.wal на диске.
func TestFileFormat(t *testing.T) {
	w := newTestWAL(t)

	if _, err := w.Begin(DeleteVault{VaultID: "v1", VaultPath: "/a", RegistryBackup: "{}"}); err != nil {
		t.Fatalf("ошибка создания транзакции: %v", err)
	}

	data, err := os.ReadFile(w.Path())
	if err != nil {
		t.Fatalf("ошибка чтения: %v", err)
	}

	if !strings.Contains(string(data), "\n  \"id\"") {
		t.Errorf("ожидался pretty-printed JSON, получено:\n%s", data)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("невалидный JSON: %v", err)
	}

	for _, key := range []string{"id", "operation", "started_at", "status", "error"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("в записи отсутствует ключ %q", key)
		}
	}
	if raw["status"] != "pending" {
		t.Errorf("ожидался статус pending, получен %v", raw["status"])
	}
	if raw["error"] != nil {
		t.Errorf("ожидался error = null, получено %v", raw["error"])
	}

	op := raw["operation"].(map[string]any)
	if op["type"] != "delete_vault" {
		t.Errorf("ожидался тег delete_vault, получен %v", op["type"])
	}
	for _, key := range []string{"vault_id", "vault_path", "delete_files", "registry_backup"} {
		if _, ok := op[key]; !ok {
			t.Errorf("в операции отсутствует ключ %q", key)
		}
	}
}

// TestDecodeEntry_Invalid проверяет отказ для повреждённых записей.
func TestDecodeEntry_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", "garbage"},
		{"truncated", `{"id":"x","operation":{"type":"create_vault"`},
		{"unknown operation", `{"id":"x","operation":{"type":"rename_vault"},"status":"pending"}`},
		{"missing operation", `{"id":"x","status":"pending"}`},
		{"unknown status", `{"id":"x","operation":{"type":"create_vault","vault_id":"v1","vault_path":"/tmp/v1"},"status":"paused"}`},
		{"missing id", `{"operation":{"type":"create_vault","vault_id":"v1","vault_path":"/tmp/v1"},"status":"pending"}`},
		{"delete without registry_backup", `{"id":"x","operation":{"type":"delete_vault","vault_id":"v1","vault_path":"/tmp/v1","delete_files":true},"status":"pending"}`},
		{"delete with null registry_backup", `{"id":"x","operation":{"type":"delete_vault","vault_id":"v1","vault_path":"/tmp/v1","delete_files":true,"registry_backup":null},"status":"pending"}`},
		{"delete without delete_files", `{"id":"x","operation":{"type":"delete_vault","vault_id":"v1","vault_path":"/tmp/v1","registry_backup":"{}"},"status":"pending"}`},
		{"delete with vault_id only", `{"id":"b0c3","operation":{"type":"delete_vault","vault_id":"v1"},"started_at":"2024-05-01T10:00:00Z","status":"pending","error":null}`},
		{"create without vault_path", `{"id":"x","operation":{"type":"create_vault","vault_id":"v1"},"status":"pending"}`},
		{"cleanup without vault_ids", `{"id":"x","operation":{"type":"cleanup_broken_vaults","registry_backup":"{}"},"status":"pending"}`},
		{"cleanup without registry_backup", `{"id":"x","operation":{"type":"cleanup_broken_vaults","vault_ids":["v1"]},"status":"pending"}`},
	}

	for _, tt := range tests {
		if _, err := decodeEntry([]byte(tt.data)); err == nil {
			t.Errorf("%s: ожидалась ошибка десериализации", tt.name)
		}
	}
}

// TestStatusTransitions проверяет матрицу переходов статуса.
func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusInProgress, true},
		{StatusPending, StatusRolledBack, true},
		{StatusInProgress, StatusCompleted, true},
		{StatusInProgress, StatusRolledBack, true},
		{StatusPending, StatusCompleted, false},
		{StatusCompleted, StatusPending, false},
		{StatusRolledBack, StatusInProgress, false},
		{StatusInProgress, StatusInProgress, true},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
			t.Errorf("%s → %s: ожидалось %v, получено %v", tt.from, tt.to, tt.want, got)
		}
	}

	if !StatusCompleted.IsTerminal() || !StatusRolledBack.IsTerminal() {
		t.Error("completed и rolled_back должны быть терминальными")
	}
	if StatusPending.IsTerminal() || StatusInProgress.IsTerminal() {
		t.Error("pending и in_progress не должны быть терминальными")
	}
}

// TestConcurrentBegin проверяет, что из параллельных Begin успешен ровно один.
func TestConcurrentBegin(t *testing.T) {
	w := newTestWAL(t)

	const goroutines = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, conflicts := 0, 0

	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()

			_, err := w.Begin(CreateVault{VaultID: "v", VaultPath: "/a"})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case IsConflict(err):
				conflicts++
			default:
				t.Errorf("неожиданная ошибка: %v", err)
			}
		}()
	}

	wg.Wait()

	if succeeded != 1 {
		t.Errorf("ожидалась 1 успешная транзакция, получено %d", succeeded)
	}
	if conflicts != goroutines-1 {
		t.Errorf("ожидалось %d конфликтов, получено %d", goroutines-1, conflicts)
	}
}

// TestCrossInstanceConflict проверяет исключение через файл, а не мьютекс:
// два независимых WAL над одним путём.
func TestCrossInstanceConflict(t *testing.T) {
	dir := t.TempDir()
	walPath := filepath.Join(dir, FileName)
	regPath := filepath.Join(dir, "vaults.json")

	a, err := New(walPath, regPath, testLogger())
	if err != nil {
		t.Fatalf("ошибка создания WAL: %v", err)
	}
	b, err := New(walPath, regPath, testLogger())
	if err != nil {
		t.Fatalf("ошибка создания WAL: %v", err)
	}

	if _, err := a.Begin(CreateVault{VaultID: "v1", VaultPath: "/a"}); err != nil {
		t.Fatalf("ошибка транзакции: %v", err)
	}
	if _, err := b.Begin(CreateVault{VaultID: "v2", VaultPath: "/b"}); !IsConflict(err) {
		t.Errorf("ожидался конфликт во втором экземпляре, получено: %v", err)
	}
}
