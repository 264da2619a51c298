package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/bigkaa/vaultkeeper/internal/config"
)

// jsonOut — вывод служебных команд в JSON.
var jsonOut bool

var rootCmd = &cobra.Command{
	Use:   "vaultkeeper",
	Short: "Локальный сервис управления хранилищами заметок",
	Long: `vaultkeeper ведёт реестр хранилищ (vaults.json) и выполняет создание,
удаление и очистку хранилищ атомарно через журнал operation.wal.

Без подкоманды запускается HTTP API (то же, что "vaultkeeper serve").
Параметры задаются переменными окружения VK_*.`,
	Version:       config.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Вывод в формате JSON")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "vaultkeeper: %v\n", err)
		os.Exit(1)
	}
}

// printJSON выводит значение как отформатированный JSON.
func printJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
