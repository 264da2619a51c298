package wal

import (
	"encoding/json"
	"fmt"
)

// OperationType — тег операции в JSON.
type OperationType string

const (
	// OpDeleteVault — удаление хранилища (с файлами или без)
	OpDeleteVault OperationType = "delete_vault"
	// OpCreateVault — создание хранилища
	OpCreateVault OperationType = "create_vault"
	// OpCleanupBrokenVaults — удаление битых записей из реестра
	OpCleanupBrokenVaults OperationType = "cleanup_broken_vaults"
)

// Operation — закрытое множество операций, защищаемых WAL.
// Реализации: DeleteVault, CreateVault, CleanupBrokenVaults.
type Operation interface {
	// Type возвращает тег операции.
	Type() OperationType
	operation()
}

// DeleteVault — удаление хранилища.
type DeleteVault struct {
	VaultID     string `json:"vault_id"`
	VaultPath   string `json:"vault_path"`
	DeleteFiles bool   `json:"delete_files"`
	// RegistryBackup — содержимое vaults.json до начала операции
	RegistryBackup string `json:"registry_backup"`
}

// CreateVault — создание хранилища.
type CreateVault struct {
	VaultID   string `json:"vault_id"`
	VaultPath string `json:"vault_path"`
}

// CleanupBrokenVaults — удаление из реестра хранилищ, чьих директорий больше нет.
type CleanupBrokenVaults struct {
	// RegistryBackup — содержимое vaults.json до начала операции
	RegistryBackup string   `json:"registry_backup"`
	VaultIDs       []string `json:"vault_ids"`
}

func (DeleteVault) Type() OperationType         { return OpDeleteVault }
func (CreateVault) Type() OperationType         { return OpCreateVault }
func (CleanupBrokenVaults) Type() OperationType { return OpCleanupBrokenVaults }

func (DeleteVault) operation()         {}
func (CreateVault) operation()         {}
func (CleanupBrokenVaults) operation() {}

// marshalOperation кодирует операцию с внутренним тегом "type".
func marshalOperation(op Operation) ([]byte, error) {
	switch o := op.(type) {
	case DeleteVault:
		return json.Marshal(struct {
			Type OperationType `json:"type"`
			DeleteVault
		}{o.Type(), o})
	case CreateVault:
		return json.Marshal(struct {
			Type OperationType `json:"type"`
			CreateVault
		}{o.Type(), o})
	case CleanupBrokenVaults:
		if o.VaultIDs == nil {
			o.VaultIDs = []string{}
		}
		return json.Marshal(struct {
			Type OperationType `json:"type"`
			CleanupBrokenVaults
		}{o.Type(), o})
	case nil:
		return nil, fmt.Errorf("операция не задана")
	default:
		return nil, fmt.Errorf("неизвестная операция %T", op)
	}
}

// requiredFields — поля, без которых операцию нельзя откатить.
var requiredFields = map[OperationType][]string{
	OpDeleteVault:         {"vault_id", "vault_path", "delete_files", "registry_backup"},
	OpCreateVault:         {"vault_id", "vault_path"},
	OpCleanupBrokenVaults: {"registry_backup", "vault_ids"},
}

// unmarshalOperation декодирует операцию по тегу "type".
// Отсутствующее или null обязательное поле считается ошибкой.
func unmarshalOperation(data json.RawMessage) (Operation, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, fmt.Errorf("в WAL-записи отсутствует operation")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}

	var tag OperationType
	if raw, ok := fields["type"]; ok {
		if err := json.Unmarshal(raw, &tag); err != nil {
			return nil, err
		}
	}

	required, known := requiredFields[tag]
	if !known {
		return nil, fmt.Errorf("неизвестный тип операции %q", tag)
	}
	for _, name := range required {
		raw, ok := fields[name]
		if !ok || string(raw) == "null" {
			return nil, fmt.Errorf("в операции %s отсутствует поле %s", tag, name)
		}
	}

	var (
		op  Operation
		err error
	)
	switch tag {
	case OpDeleteVault:
		var v DeleteVault
		err = json.Unmarshal(data, &v)
		op = v
	case OpCreateVault:
		var v CreateVault
		err = json.Unmarshal(data, &v)
		op = v
	case OpCleanupBrokenVaults:
		var v CleanupBrokenVaults
		err = json.Unmarshal(data, &v)
		op = v
	}
	if err != nil {
		return nil, err
	}
	return op, nil
}
