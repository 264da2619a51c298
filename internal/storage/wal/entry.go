// Пакет wal — файловый Write-Ahead Log для атомарности разрушающих
// операций с хранилищами (удаление, создание, очистка битых записей).
//
// Единственный файл operation.wal в директории данных приложения.
// Его наличие и есть признак незавершённой транзакции: отдельного
// lock-файла нет. Одновременно может существовать не более одной
// WAL-записи.
package wal

import (
	"encoding/json"
	"fmt"
	"time"
)

// FileName — имя файла WAL в директории данных приложения.
const FileName = "operation.wal"

// Entry — запись WAL. Хранится как pretty-printed JSON в operation.wal.
// После создания меняются только Status и Error.
type Entry struct {
	// ID — уникальный идентификатор транзакции (UUID v4)
	ID string

	// Operation — защищаемая операция с данными для отката
	Operation Operation

	// StartedAt — время начала транзакции (UTC)
	StartedAt time.Time

	// Status — текущий статус транзакции
	Status Status

	// Error — диагностическое сообщение (nil, если ошибки не было)
	Error *string
}

// entryJSON — формат записи на диске.
type entryJSON struct {
	ID        string          `json:"id"`
	Operation json.RawMessage `json:"operation"`
	StartedAt time.Time       `json:"started_at"`
	Status    Status          `json:"status"`
	Error     *string         `json:"error"`
}

// MarshalJSON кодирует запись вместе с тегом операции.
func (e Entry) MarshalJSON() ([]byte, error) {
	op, err := marshalOperation(e.Operation)
	if err != nil {
		return nil, err
	}

	return json.Marshal(entryJSON{
		ID:        e.ID,
		Operation: op,
		StartedAt: e.StartedAt,
		Status:    e.Status,
		Error:     e.Error,
	})
}

// UnmarshalJSON декодирует запись. Отсутствие id, операции или статуса считается ошибкой.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw entryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if raw.ID == "" {
		return fmt.Errorf("в WAL-записи отсутствует id")
	}
	if raw.Status == "" {
		return fmt.Errorf("в WAL-записи отсутствует status")
	}

	op, err := unmarshalOperation(raw.Operation)
	if err != nil {
		return err
	}

	*e = Entry{
		ID:        raw.ID,
		Operation: op,
		StartedAt: raw.StartedAt,
		Status:    raw.Status,
		Error:     raw.Error,
	}
	return nil
}

// encodeEntry сериализует запись в формат файла WAL.
func encodeEntry(entry *Entry) ([]byte, error) {
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return nil, err
	}
	return data, nil
}

// decodeEntry разбирает содержимое файла WAL.
func decodeEntry(data []byte) (*Entry, error) {
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}
