// Package metrics 提供 Prometheus helper，包含常用 counter/gauge/histogram 模板
package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/nilebridge/cargoledger/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 指标集合
type Metrics struct {
	// HTTP 请求计数
	HTTPRequestsTotal *prometheus.CounterVec
	// HTTP 请求耗时
	HTTPRequestDuration prometheus.Histogram

	// 数据库查询耗时
	DBQueryDuration prometheus.Histogram

	// 业务指标
	PaymentsTotal         *prometheus.CounterVec
	EntriesTotal          *prometheus.CounterVec
	RecomputesTotal       prometheus.Counter
	RecomputeDuration     prometheus.Histogram
	LockConflictsTotal    prometheus.Counter
	CashboxMovementsTotal *prometheus.CounterVec
}

// New 创建指标实例
func New(serviceName string) *Metrics {
	return &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cargoledger",
			Subsystem: serviceName,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "cargoledger",
			Subsystem: serviceName,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		DBQueryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "cargoledger",
			Subsystem: serviceName,
			Name:      "db_query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		PaymentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cargoledger",
			Subsystem: serviceName,
			Name:      "payments_total",
			Help:      "Total payment operations processed",
		}, []string{"kind"}),
		EntriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cargoledger",
			Subsystem: serviceName,
			Name:      "ledger_entries_total",
			Help:      "Total ledger entries created",
		}, []string{"type"}),
		RecomputesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cargoledger",
			Subsystem: serviceName,
			Name:      "balance_recomputes_total",
			Help:      "Total client balance recomputations",
		}),
		RecomputeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "cargoledger",
			Subsystem: serviceName,
			Name:      "balance_recompute_duration_seconds",
			Help:      "Client balance recomputation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		LockConflictsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cargoledger",
			Subsystem: serviceName,
			Name:      "lock_conflicts_total",
			Help:      "Total row lock wait timeouts and deadlocks",
		}),
		CashboxMovementsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cargoledger",
			Subsystem: serviceName,
			Name:      "cashbox_movements_total",
			Help:      "Total cashbox movements recorded",
		}, []string{"type"}),
	}
}

// Register 注册所有指标
func (m *Metrics) Register() error {
	collectors := []prometheus.Collector{
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.DBQueryDuration,
		m.PaymentsTotal,
		m.EntriesTotal,
		m.RecomputesTotal,
		m.RecomputeDuration,
		m.LockConflictsTotal,
		m.CashboxMovementsTotal,
	}

	for _, c := range collectors {
		if err := prometheus.DefaultRegisterer.Register(c); err != nil {
			logger.Error(context.Background(), "Failed to register metric", "error", err)
			return err
		}
	}

	logger.Info(context.Background(), "Metrics registered successfully")
	return nil
}

// StartHTTPServer 启动 Prometheus HTTP 服务器
func StartHTTPServer(port int, path string) error {
	if path == "" {
		path = "/metrics"
	}

	http.Handle(path, promhttp.Handler())

	addr := fmt.Sprintf(":%d", port)
	logger.Info(context.Background(), "Starting Prometheus HTTP server", "addr", addr, "path", path)

	go func() {
		if err := http.ListenAndServe(addr, nil); err != nil {
			logger.Error(context.Background(), "Failed to start Prometheus HTTP server", "error", err)
		}
	}()

	return nil
}
