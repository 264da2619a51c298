package wal

import (
	"encoding/json"
	"fmt"
)

// Status — статус транзакции WAL.
//
//	pending → in_progress → completed
//	pending | in_progress → rolled_back
type Status string

const (
	// StatusPending — запись создана, операция ещё не начата
	StatusPending Status = "pending"
	// StatusInProgress — операция выполняется
	StatusInProgress Status = "in_progress"
	// StatusCompleted — операция успешно завершена, ожидается commit
	StatusCompleted Status = "completed"
	// StatusRolledBack — операция отменена (ошибка или восстановление)
	StatusRolledBack Status = "rolled_back"
)

// validTransitions — матрица штатных переходов статуса.
var validTransitions = map[Status]map[Status]bool{
	StatusPending:    {StatusInProgress: true, StatusRolledBack: true},
	StatusInProgress: {StatusCompleted: true, StatusRolledBack: true},
	StatusCompleted:  {},
	StatusRolledBack: {},
}

// IsValid проверяет, что статус входит в закрытое множество.
func (s Status) IsValid() bool {
	_, ok := validTransitions[s]
	return ok
}

// IsTerminal возвращает true для completed и rolled_back:
// операция дошла до безопасного состояния, откатывать нечего.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusRolledBack
}

// CanTransitionTo проверяет, является ли переход штатным.
// Повтор того же статуса допустим.
func (s Status) CanTransitionTo(target Status) bool {
	if s == target {
		return true
	}
	return validTransitions[s][target]
}

// UnmarshalJSON отклоняет неизвестные статусы.
func (s *Status) UnmarshalJSON(data []byte) error {
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	st := Status(v)
	if !st.IsValid() {
		return fmt.Errorf("недопустимый статус WAL: %q", v)
	}
	*s = st
	return nil
}
