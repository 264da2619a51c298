package wal

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus метрики WAL
var (
	// transactionsTotal — события жизненного цикла транзакций по типу операции.
	// result: begun, committed, failed, conflict.
	transactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vk_wal_transactions_total",
		Help: "Количество событий WAL-транзакций",
	}, []string{"operation", "result"})

	// recoveriesTotal — результаты восстановления при старте.
	// outcome: rolled_back, cleaned, failed.
	recoveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vk_wal_recoveries_total",
		Help: "Количество обработанных при старте WAL-записей",
	}, []string{"operation", "outcome"})

	// activeTransaction — 1, если WAL-файл существует.
	activeTransaction = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vk_wal_active_transaction",
		Help: "Наличие незавершённой WAL-транзакции (0/1)",
	})
)

// opLabel возвращает метку операции для метрик.
func opLabel(op Operation) string {
	if op == nil {
		return "unknown"
	}
	return string(op.Type())
}
