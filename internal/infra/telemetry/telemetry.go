package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/arklim/moodwell/internal/core/port"
)

// IdentityMetrics counts identity operations by outcome.
type IdentityMetrics struct {
	operations *prometheus.CounterVec
}

// NewIdentityMetrics registers moodwell_identity_operations_total on reg.
// A nil reg falls back to the default registerer.
func NewIdentityMetrics(reg prometheus.Registerer) *IdentityMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	return &IdentityMetrics{
		operations: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "moodwell",
			Subsystem: "identity",
			Name:      "operations_total",
			Help:      "Identity operations partitioned by operation and outcome",
		}, []string{"operation", "outcome"}),
	}
}

func (m *IdentityMetrics) RecordOperation(operation, outcome string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
}

// Operations exposes the underlying vector for assertions.
func (m *IdentityMetrics) Operations() *prometheus.CounterVec {
	return m.operations
}

var _ port.OperationRecorder = (*IdentityMetrics)(nil)
