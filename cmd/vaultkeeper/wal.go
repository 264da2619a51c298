package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/bigkaa/vaultkeeper/internal/config"
	"github.com/bigkaa/vaultkeeper/internal/registry"
	"github.com/bigkaa/vaultkeeper/internal/storage/wal"
)

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "wal",
		Short: "Показать текущую запись operation.wal",
		Long: `Выводит запись WAL, если она есть. Ничего не изменяет:
откат выполняет "vaultkeeper recover" или старт сервера.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWAL(cmd)
		},
	})
}

// walStatus — вывод команды wal в JSON.
type walStatus struct {
	Path   string     `json:"path"`
	Active bool       `json:"active"`
	Entry  *wal.Entry `json:"entry"`
}

func runWAL(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("ошибка конфигурации: %w", err)
	}
	logger := config.NewLogger(cfg, cmd.ErrOrStderr())

	walEngine, err := wal.New(
		filepath.Join(cfg.DataDir, wal.FileName),
		filepath.Join(cfg.DataDir, registry.FileName),
		logger,
	)
	if err != nil {
		return err
	}

	entry, err := walEngine.CurrentEntry()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOut {
		return printJSON(out, walStatus{Path: walEngine.Path(), Active: entry != nil, Entry: entry})
	}

	if entry == nil {
		fmt.Fprintf(out, "WAL пуст: %s\n", walEngine.Path())
		return nil
	}

	fmt.Fprintf(out, "WAL: %s\n", walEngine.Path())
	fmt.Fprintf(out, "  id:        %s\n", entry.ID)
	fmt.Fprintf(out, "  operation: %s\n", entry.Operation.Type())
	fmt.Fprintf(out, "  status:    %s\n", entry.Status)
	fmt.Fprintf(out, "  started:   %s\n", entry.StartedAt.Local().Format(time.DateTime))
	if entry.Error != nil {
		fmt.Fprintf(out, "  error:     %s\n", *entry.Error)
	}
	return nil
}
