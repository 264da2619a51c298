package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/bigkaa/vaultkeeper/internal/api/handlers"
	"github.com/bigkaa/vaultkeeper/internal/config"
	"github.com/bigkaa/vaultkeeper/internal/instance"
	"github.com/bigkaa/vaultkeeper/internal/registry"
	"github.com/bigkaa/vaultkeeper/internal/server"
	"github.com/bigkaa/vaultkeeper/internal/service"
	"github.com/bigkaa/vaultkeeper/internal/storage/wal"
)

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Запустить HTTP API",
		Long: `Захватывает директорию данных, откатывает прерванную операцию
из operation.wal, загружает реестр и запускает HTTP API на loopback-адресе.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	})
}

func runServe(ctx context.Context) error {
	// Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("ошибка конфигурации: %w", err)
	}

	logger := config.SetupLogger(cfg)
	logger.Info("vaultkeeper запускается",
		slog.String("version", config.Version),
		slog.String("data_dir", cfg.DataDir),
		slog.String("addr", cfg.Addr()),
	)

	// 1. Один процесс на директорию данных
	lock, err := instance.Acquire(cfg.DataDir, cfg.Addr(), logger)
	if err != nil {
		logger.Error("Директория данных занята другим процессом", slog.String("error", err.Error()))
		return err
	}
	defer lock.Release()

	// 2. WAL и восстановление прерванной операции.
	// Реестр открывается только после RecoverIncomplete.
	walEngine, recovered, err := recoverWAL(cfg, logger)
	if err != nil {
		return err
	}

	// 3. Реестр хранилищ
	reg, err := registry.Open(recovered, filepath.Join(cfg.DataDir, registry.FileName), logger)
	if err != nil {
		logger.Error("Ошибка открытия реестра", slog.String("error", err.Error()))
		return err
	}
	logger.Info("Реестр загружен", slog.Int("vaults", reg.Count()))

	// 4. Сервисы
	vaultSvc := service.NewVaultService(walEngine, reg, cfg.PlaceholderFile, logger)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// 5. Фоновая сверка реестра с файловой системой
	reconcileSvc := service.NewReconcileService(reg, cfg.ReconcileInterval, logger)
	reconcileSvc.Start(ctx)
	defer reconcileSvc.Stop()

	// 5.1 Сверка по событиям файловой системы
	if cfg.WatchVaults {
		watcher := service.NewVaultWatcher(reg, reconcileSvc, cfg.WatchDebounce, logger)
		if err := watcher.Start(ctx); err != nil {
			logger.Warn("Наблюдение за хранилищами недоступно, остаётся периодическая сверка",
				slog.String("error", err.Error()),
			)
		} else {
			defer watcher.Stop()
		}
	}

	// 6. Handlers
	apiHandler := handlers.NewAPIHandler(
		handlers.NewVaultsHandler(vaultSvc, logger),
		handlers.NewWALHandler(walEngine, recovered.Result(), logger),
		handlers.NewSystemHandler(cfg, reg, walEngine.Path(), reg.Path()),
		handlers.NewMaintenanceHandler(reconcileSvc),
		handlers.NewHealthHandler(cfg.DataDir, walEngine),
	)

	// 7. HTTP-сервер
	srv := server.New(cfg, logger, apiHandler)
	if err := srv.Run(ctx); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Остановка фоновых процессов...")
	return nil
}

// recoverWAL создаёт менеджер WAL и откатывает прерванную операцию.
// Вызывается под блокировкой директории данных.
func recoverWAL(cfg *config.Config, logger *slog.Logger) (*wal.WAL, *wal.Recovered, error) {
	walEngine, err := wal.New(
		filepath.Join(cfg.DataDir, wal.FileName),
		filepath.Join(cfg.DataDir, registry.FileName),
		logger,
		wal.WithCreateRollbackMaxEntries(cfg.CreateRollbackMaxEntries),
	)
	if err != nil {
		logger.Error("Ошибка инициализации WAL", slog.String("error", err.Error()))
		return nil, nil, err
	}

	recovered, err := walEngine.RecoverIncomplete()
	if err != nil {
		logger.Error("Ошибка восстановления WAL", slog.String("error", err.Error()))
		return nil, nil, err
	}

	if res := recovered.Result(); res.Recovered {
		logger.Warn("Прерванная операция откачена",
			slog.String("operation", res.OperationType),
			slog.String("message", res.Message),
		)
	} else if res.Message != "" {
		logger.Info(res.Message)
	}

	return walEngine, recovered, nil
}
