// watcher.go — наблюдение за родительскими директориями хранилищ.
//
// Когда директорию хранилища удаляют, переименовывают или возвращают
// на место в обход vaultkeeper, сверка запускается сразу, не дожидаясь
// тикера VK_RECONCILE_INTERVAL. События одной пачки схлопываются:
// сверка выполняется один раз через debounce после последнего события.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/vaultkeeper/internal/registry"
)

// watchResyncInterval — как часто список наблюдаемых директорий
// пересчитывается по реестру без внешних событий.
const watchResyncInterval = time.Minute

var watchTriggersTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "vk_watch_triggers_total",
	Help: "Количество сверок, запущенных событиями файловой системы",
})

// Reconciler — однократный запуск сверки.
type Reconciler interface {
	RunOnce() (*ReconcileResult, bool)
}

// VaultWatcher запускает сверку по событиям файловой системы.
type VaultWatcher struct {
	reg      *registry.Registry
	runner   Reconciler
	debounce time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	watched map[string]struct{}
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewVaultWatcher создаёт наблюдатель. Наблюдение начинается в Start.
func NewVaultWatcher(
	reg *registry.Registry,
	runner Reconciler,
	debounce time.Duration,
	logger *slog.Logger,
) *VaultWatcher {
	return &VaultWatcher{
		reg:      reg,
		runner:   runner,
		debounce: debounce,
		logger:   logger.With(slog.String("component", "watcher")),
		watched:  make(map[string]struct{}),
	}
}

// Start подписывается на родительские директории зарегистрированных
// хранилищ и запускает горутину обработки событий.
func (vw *VaultWatcher) Start(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("не удалось создать наблюдатель файловой системы: %w", err)
	}

	vw.mu.Lock()
	vw.watcher = w
	vw.mu.Unlock()

	n := vw.Sync()

	wCtx, cancel := context.WithCancel(ctx)
	vw.cancel = cancel
	vw.done = make(chan struct{})
	go vw.run(wCtx)

	vw.logger.Info("Наблюдение за хранилищами запущено",
		slog.Int("dirs", n),
		slog.String("debounce", vw.debounce.String()),
	)
	return nil
}

// Stop останавливает наблюдение и ждёт завершения горутины.
func (vw *VaultWatcher) Stop() {
	if vw.cancel == nil {
		return
	}
	vw.cancel()
	<-vw.done

	vw.mu.Lock()
	defer vw.mu.Unlock()
	if err := vw.watcher.Close(); err != nil {
		vw.logger.Warn("Ошибка закрытия наблюдателя", slog.String("error", err.Error()))
	}
	vw.logger.Info("Наблюдение за хранилищами остановлено")
}

// Sync приводит набор наблюдаемых директорий к текущему реестру.
// Возвращает число наблюдаемых директорий.
func (vw *VaultWatcher) Sync() int {
	want := make(map[string]struct{})
	for _, v := range vw.reg.List() {
		want[filepath.Dir(v.Path)] = struct{}{}
	}

	vw.mu.Lock()
	defer vw.mu.Unlock()

	for dir := range vw.watched {
		if _, ok := want[dir]; ok {
			continue
		}
		// Удалённая директория снимается с наблюдения сама, ошибку игнорируем
		_ = vw.watcher.Remove(dir)
		delete(vw.watched, dir)
	}

	for dir := range want {
		if _, ok := vw.watched[dir]; ok {
			continue
		}
		if err := vw.watcher.Add(dir); err != nil {
			vw.logger.Debug("Директория недоступна для наблюдения",
				slog.String("dir", dir),
				slog.String("error", err.Error()),
			)
			continue
		}
		vw.watched[dir] = struct{}{}
	}

	return len(vw.watched)
}

func (vw *VaultWatcher) run(ctx context.Context) {
	defer close(vw.done)

	resync := time.NewTicker(watchResyncInterval)
	defer resync.Stop()

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-vw.watcher.Events:
			if !ok {
				return
			}
			if !vw.relevant(ev) {
				continue
			}
			vw.logger.Debug("Изменение директории хранилища",
				slog.String("path", ev.Name),
				slog.String("op", ev.Op.String()),
			)
			if timer == nil {
				timer = time.NewTimer(vw.debounce)
			} else {
				timer.Reset(vw.debounce)
			}
			fire = timer.C

		case err, ok := <-vw.watcher.Errors:
			if !ok {
				return
			}
			vw.logger.Warn("Ошибка наблюдателя файловой системы", slog.String("error", err.Error()))

		case <-fire:
			fire = nil
			watchTriggersTotal.Inc()
			if _, busy := vw.runner.RunOnce(); busy {
				vw.logger.Debug("Сверка уже выполняется, событие поглощено")
			}
			vw.Sync()

		case <-resync.C:
			vw.Sync()
		}
	}
}

// relevant — событие затрагивает директорию хранилища
// или наблюдаемую родительскую директорию.
func (vw *VaultWatcher) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return false
	}

	name := filepath.Clean(ev.Name)
	if _, ok := vw.reg.FindByPath(name); ok {
		return true
	}

	vw.mu.Lock()
	defer vw.mu.Unlock()
	_, ok := vw.watched[name]
	return ok
}
