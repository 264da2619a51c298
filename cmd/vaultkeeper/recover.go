package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bigkaa/vaultkeeper/internal/config"
	"github.com/bigkaa/vaultkeeper/internal/instance"
)

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "recover",
		Short: "Откатить прерванную операцию без запуска API",
		Long: `Выполняет то же восстановление, что и при старте сервера:
прерванная операция из operation.wal откатывается, завершённая запись удаляется.
Требует, чтобы vaultkeeper не был запущен на той же директории данных.

Пример:
  vaultkeeper recover
  vaultkeeper recover --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRecover(cmd)
		},
	})
}

func runRecover(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("ошибка конфигурации: %w", err)
	}
	logger := config.NewLogger(cfg, cmd.ErrOrStderr())

	lock, err := instance.Acquire(cfg.DataDir, "cli", logger)
	if err != nil {
		return err
	}
	defer lock.Release()

	_, recovered, err := recoverWAL(cfg, logger)
	if err != nil {
		return err
	}

	res := recovered.Result()
	out := cmd.OutOrStdout()
	if jsonOut {
		return printJSON(out, res)
	}

	switch {
	case res.Recovered:
		fmt.Fprintf(out, "Откачена операция %s: %s\n", res.OperationType, res.Message)
	case res.Message != "":
		fmt.Fprintln(out, res.Message)
	default:
		fmt.Fprintln(out, "Незавершённых операций нет")
	}
	return nil
}
