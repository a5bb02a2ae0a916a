package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/usecase"
)

// PrometheusRecorder 操作次數、耗時與重試次數
type PrometheusRecorder struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	retries    *prometheus.CounterVec
}

// NewPrometheusRecorder 建立並註冊指標
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	r := &PrometheusRecorder{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wallet",
			Subsystem: "ledger",
			Name:      "operations_total",
			Help:      "Ledger operations by type and result code.",
		}, []string{"operation", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "wallet",
			Subsystem: "ledger",
			Name:      "operation_duration_seconds",
			Help:      "Time spent in read-validate-mutate-append.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wallet",
			Subsystem: "ledger",
			Name:      "conflict_retries_total",
			Help:      "Operations retried after a concurrent modification.",
		}, []string{"operation"}),
	}
	reg.MustRegister(r.operations, r.duration, r.retries)
	return r
}

func (r *PrometheusRecorder) ObserveOperation(operation string, code domain.Code, elapsed time.Duration) {
	label := string(code)
	if label == "" {
		label = "OK"
	}
	r.operations.WithLabelValues(operation, label).Inc()
	r.duration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func (r *PrometheusRecorder) ObserveRetry(operation string) {
	r.retries.WithLabelValues(operation).Inc()
}

var _ usecase.Recorder = (*PrometheusRecorder)(nil)
