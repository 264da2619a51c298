package wal

import (
	"log/slog"

	"github.com/bigkaa/vaultkeeper/internal/storage/durable"
)

// Сообщения результата восстановления.
const (
	recoveredErrorMessage = "Восстановлено после прерванной операции"
	cleanedUpMessage      = "Очищена завершённая транзакция"
)

// RecoveryResult — результат проверки WAL при старте.
// Предназначен для уведомления пользователя.
type RecoveryResult struct {
	// Recovered — был ли выполнен откат
	Recovered bool `json:"recovered"`
	// Message — описание выполненных действий
	Message string `json:"message,omitempty"`
	// OperationType — тип откаченной операции (delete_vault, create_vault, cleanup_broken)
	OperationType string `json:"operationType,omitempty"`
}

// Recovered — подтверждение того, что восстановление WAL выполнено.
// Выдаётся только RecoverIncomplete и требуется для открытия реестра,
// поэтому реестр нельзя прочитать раньше, чем завершится откат.
type Recovered struct {
	result RecoveryResult
	valid  bool
}

// Result возвращает результат восстановления.
func (r *Recovered) Result() RecoveryResult {
	if r == nil {
		return RecoveryResult{}
	}
	return r.result
}

// Valid возвращает true, если токен выдан RecoverIncomplete.
func (r *Recovered) Valid() bool {
	return r != nil && r.valid
}

// RecoverIncomplete проверяет WAL при старте приложения.
// Вызывается один раз, до того как любой другой компонент прочитает реестр.
//
//   - WAL-файла нет: восстанавливать нечего.
//   - pending / in_progress — операция прервана: откат по типу операции,
//     затем статус rolled_back и удаление файла.
//   - completed / rolled_back — операция уже в безопасном состоянии:
//     файл просто удаляется.
//
// Нечитаемая запись или ошибка отката фатальны: WAL-файл
// остаётся на месте для повторной попытки при следующем старте.
func (w *WAL) RecoverIncomplete() (*Recovered, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	// Хвост прерванной перезаписи статуса
	if err := durable.Remove(w.path + durable.TmpSuffix); err != nil {
		return nil, ioError("recover", w.path, err)
	}

	entry, ok, err := w.readEntry("recover")
	if err != nil {
		recoveriesTotal.WithLabelValues("unknown", "failed").Inc()
		w.logger.Error("Не удалось прочитать WAL-запись при восстановлении",
			slog.String("path", w.path),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	if !ok {
		activeTransaction.Set(0)
		return &Recovered{valid: true}, nil
	}

	log := w.logger.With(
		slog.String("tx_id", entry.ID),
		slog.String("operation", opLabel(entry.Operation)),
		slog.String("status", string(entry.Status)),
		slog.Time("started_at", entry.StartedAt),
	)

	if entry.Status.IsTerminal() {
		if err := w.commitLocked(); err != nil {
			recoveriesTotal.WithLabelValues(opLabel(entry.Operation), "failed").Inc()
			return nil, err
		}
		recoveriesTotal.WithLabelValues(opLabel(entry.Operation), "cleaned").Inc()
		log.Info("Удалена WAL-запись завершённой транзакции")

		return &Recovered{
			result: RecoveryResult{Recovered: false, Message: cleanedUpMessage},
			valid:  true,
		}, nil
	}

	log.Warn("Обнаружена незавершённая WAL-транзакция, выполняется откат")

	message, kind, err := w.rollback(entry)
	if err != nil {
		recoveriesTotal.WithLabelValues(opLabel(entry.Operation), "failed").Inc()
		log.Error("Ошибка отката WAL-транзакции", slog.String("error", err.Error()))
		return nil, err
	}

	if err := w.markFailedLocked(recoveredErrorMessage); err != nil {
		recoveriesTotal.WithLabelValues(opLabel(entry.Operation), "failed").Inc()
		return nil, err
	}
	if err := w.commitLocked(); err != nil {
		recoveriesTotal.WithLabelValues(opLabel(entry.Operation), "failed").Inc()
		return nil, err
	}

	recoveriesTotal.WithLabelValues(opLabel(entry.Operation), "rolled_back").Inc()
	log.Info("WAL-транзакция откачена", slog.String("summary", message))

	return &Recovered{
		result: RecoveryResult{
			Recovered:     true,
			Message:       message,
			OperationType: kind,
		},
		valid: true,
	}, nil
}
