package wal

import (
	"errors"
	"fmt"
)

// ErrorKind — вид ошибки WAL. Закрытое множество.
type ErrorKind string

const (
	// KindIO — ошибка файловой системы (создание директории, чтение,
	// запись, fsync, удаление)
	KindIO ErrorKind = "IO_FAILURE"
	// KindSerialization — повреждённое или нечитаемое содержимое WAL
	KindSerialization ErrorKind = "SERIALIZATION_FAILURE"
	// KindConflict — попытка начать транзакцию при уже активной
	KindConflict ErrorKind = "CONFLICT"
)

// ErrTransactionActive — предыдущая транзакция не завершена.
// Восстановление выполняется только при старте приложения.
var ErrTransactionActive = errors.New(
	"невозможно начать новую транзакцию: предыдущая транзакция не завершена, " +
		"перезапустите приложение для восстановления")

// Error — ошибка WAL с видом и контекстом.
type Error struct {
	Kind ErrorKind // Машиночитаемый вид ошибки
	Op   string    // Операция WAL (begin, update_status, recover, ...)
	Path string    // Файл, с которым работали
	Err  error     // Исходная ошибка
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("wal %s (%s) %s: %v", e.Op, e.Kind, e.Path, e.Err)
	}
	return fmt.Sprintf("wal %s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf возвращает вид ошибки WAL или пустую строку,
// если ошибка не из этого пакета.
func KindOf(err error) ErrorKind {
	var we *Error
	if errors.As(err, &we) {
		return we.Kind
	}
	return ""
}

// IsConflict проверяет, вызвана ли ошибка активной транзакцией.
func IsConflict(err error) bool {
	return KindOf(err) == KindConflict
}

func ioError(op, path string, err error) error {
	return &Error{Kind: KindIO, Op: op, Path: path, Err: err}
}

func serializationError(op, path string, err error) error {
	return &Error{Kind: KindSerialization, Op: op, Path: path, Err: err}
}

func conflictError(op, path string) error {
	return &Error{Kind: KindConflict, Op: op, Path: path, Err: ErrTransactionActive}
}
