// reconcile.go — фоновая сверка реестра хранилищ с файловой системой.
//
// Сверка обнаруживает:
//   - broken: хранилище в реестре, директории нет
//   - not_directory: по пути хранилища лежит не директория
//
// Реестр не изменяется: удаление битых хранилищ выполняет пользователь
// через CleanupBroken. Результат последнего прогона отдаётся API и
// отражается в метриках vk_vaults_total.
//
// Запускается как горутина с периодическим тикером (VK_RECONCILE_INTERVAL).
package service

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/vaultkeeper/internal/registry"
)

// Prometheus метрики Reconciliation
var (
	// reconcileRunsTotal — количество запусков reconciliation.
	reconcileRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vk_reconcile_runs_total",
		Help: "Общее количество запусков reconciliation",
	})

	// reconcileDurationSeconds — длительность выполнения reconciliation.
	reconcileDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vk_reconcile_duration_seconds",
		Help:    "Длительность выполнения reconciliation в секундах",
		Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5},
	})

	// vaultsTotal — количество хранилищ по состоянию.
	vaultsTotal = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vk_vaults_total",
		Help: "Текущее количество зарегистрированных хранилищ",
	}, []string{"state"})
)

// Типы проблем reconciliation.
const (
	IssueBroken       = "broken"
	IssueNotDirectory = "not_directory"
)

// ReconcileIssue — проблема, найденная сверкой.
type ReconcileIssue struct {
	Type        string `json:"type"`
	VaultID     string `json:"vault_id"`
	Path        string `json:"path"`
	Description string `json:"description"`
}

// ReconcileSummary — сводка прогона.
type ReconcileSummary struct {
	Ok     int `json:"ok"`
	Broken int `json:"broken"`
}

// ReconcileResult — результат одного прогона.
type ReconcileResult struct {
	StartedAt     time.Time        `json:"started_at"`
	CompletedAt   time.Time        `json:"completed_at"`
	VaultsChecked int              `json:"vaults_checked"`
	Issues        []ReconcileIssue `json:"issues"`
	Summary       ReconcileSummary `json:"summary"`
}

// ReconcileService — сервис фоновой сверки хранилищ.
type ReconcileService struct {
	reg      *registry.Registry
	interval time.Duration
	logger   *slog.Logger

	mu        sync.Mutex // защита от параллельного запуска
	inProcess bool       // reconciliation в процессе выполнения
	last      *ReconcileResult
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewReconcileService создаёт сервис reconciliation.
func NewReconcileService(
	reg *registry.Registry,
	interval time.Duration,
	logger *slog.Logger,
) *ReconcileService {
	return &ReconcileService{
		reg:      reg,
		interval: interval,
		logger:   logger.With(slog.String("component", "reconcile")),
	}
}

// Start выполняет первую сверку и запускает фоновую горутину
// с периодическим тикером.
func (rs *ReconcileService) Start(ctx context.Context) {
	rsCtx, cancel := context.WithCancel(ctx)
	rs.cancel = cancel
	rs.done = make(chan struct{})

	rs.RunOnce()
	go rs.run(rsCtx)

	rs.logger.Info("Reconciliation запущена",
		slog.String("interval", rs.interval.String()),
	)
}

// Stop останавливает фоновой процесс reconciliation и ждёт завершения горутины.
func (rs *ReconcileService) Stop() {
	if rs.cancel != nil {
		rs.cancel()
		<-rs.done
	}
	rs.logger.Info("Reconciliation остановлена")
}

// IsInProgress возвращает true, если reconciliation выполняется.
func (rs *ReconcileService) IsInProgress() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.inProcess
}

// Last возвращает результат последнего прогона или nil.
func (rs *ReconcileService) Last() *ReconcileResult {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.last
}

// run — основной цикл фоновой горутины.
func (rs *ReconcileService) run(ctx context.Context) {
	defer close(rs.done)

	ticker := time.NewTicker(rs.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rs.RunOnce()
		}
	}
}

// RunOnce выполняет один цикл reconciliation.
// Потокобезопасен: если reconciliation уже выполняется, возвращает nil, true.
func (rs *ReconcileService) RunOnce() (*ReconcileResult, bool) {
	rs.mu.Lock()
	if rs.inProcess {
		rs.mu.Unlock()
		rs.logger.Warn("Reconciliation уже выполняется, пропуск")
		return nil, true
	}
	rs.inProcess = true
	rs.mu.Unlock()

	defer func() {
		rs.mu.Lock()
		rs.inProcess = false
		rs.mu.Unlock()
	}()

	startedAt := time.Now().UTC()

	vaults := rs.reg.List()
	issues := make([]ReconcileIssue, 0)
	for _, v := range vaults {
		info, err := os.Stat(v.Path)
		switch {
		case err != nil:
			issues = append(issues, ReconcileIssue{
				Type:        IssueBroken,
				VaultID:     v.ID,
				Path:        v.Path,
				Description: "Директория хранилища не найдена",
			})
		case !info.IsDir():
			issues = append(issues, ReconcileIssue{
				Type:        IssueNotDirectory,
				VaultID:     v.ID,
				Path:        v.Path,
				Description: "Путь хранилища не является директорией",
			})
		}
	}

	completedAt := time.Now().UTC()
	duration := completedAt.Sub(startedAt)

	summary := ReconcileSummary{
		Ok:     len(vaults) - len(issues),
		Broken: len(issues),
	}

	reconcileRunsTotal.Inc()
	reconcileDurationSeconds.Observe(duration.Seconds())
	vaultsTotal.WithLabelValues("ok").Set(float64(summary.Ok))
	vaultsTotal.WithLabelValues("broken").Set(float64(summary.Broken))

	level := slog.LevelInfo
	if len(issues) > 0 {
		level = slog.LevelWarn
	}
	rs.logger.Log(context.Background(), level, "Reconciliation завершена",
		slog.Int("vaults_checked", len(vaults)),
		slog.Int("broken", summary.Broken),
		slog.Duration("duration", duration),
	)

	result := &ReconcileResult{
		StartedAt:     startedAt,
		CompletedAt:   completedAt,
		VaultsChecked: len(vaults),
		Issues:        issues,
		Summary:       summary,
	}

	rs.mu.Lock()
	rs.last = result
	rs.mu.Unlock()

	return result, false
}
