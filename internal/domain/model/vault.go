// Пакет model — доменные модели vaultkeeper.
// Vault — запись реестра хранилищ, используется как in-memory
// представление и как элемент vaults.json на диске.
package model

import (
	"time"
)

// Vault — зарегистрированное хранилище заметок.
type Vault struct {
	// ID — уникальный идентификатор хранилища (UUID v4)
	ID string `json:"id"`

	// Name — отображаемое имя
	Name string `json:"name"`

	// Path — абсолютный путь к директории хранилища
	Path string `json:"path"`

	// CreatedAt — дата и время регистрации (UTC)
	CreatedAt time.Time `json:"created_at"`

	// LastOpenedAt — когда хранилище последний раз делали активным.
	// nil, если ни разу не открывалось.
	LastOpenedAt *time.Time `json:"last_opened_at,omitempty"`
}

// VaultState — состояние хранилища относительно файловой системы.
type VaultState string

const (
	// StateOK — директория хранилища существует
	StateOK VaultState = "ok"
	// StateBroken — директория отсутствует (удалена или перемещена вне приложения)
	StateBroken VaultState = "broken"
)

// VaultStatus — хранилище с вычисленным состоянием. Возвращается API.
type VaultStatus struct {
	Vault
	State VaultState `json:"state"`
}

// IsBroken проверяет, отсутствует ли директория хранилища.
func (s VaultStatus) IsBroken() bool {
	return s.State == StateBroken
}
