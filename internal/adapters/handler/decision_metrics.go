package handler

import (
	"github.com/IANDYI/breeding-service/internal/core/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "breeding",
			Name:      "batches_total",
			Help:      "Total number of bulk operations by resulting status",
		},
		[]string{"status"},
	)

	SubjectDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "breeding",
			Name:      "subject_decisions_total",
			Help:      "Per-subject decisions by outcome and blocking kind",
		},
		[]string{"outcome", "kind"},
	)

	DiagnosisEvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "breeding",
			Name:      "diagnosis_evaluations_total",
			Help:      "Diagnosis window checks by exam type and validity",
		},
		[]string{"exam_type", "valid"},
	)
)

func recordBatch(result domain.BatchResult) {
	BatchesTotal.WithLabelValues(string(result.Status)).Inc()
	for _, d := range result.Decisions {
		SubjectDecisionsTotal.WithLabelValues(string(d.Outcome), string(d.ErrorKind)).Inc()
	}
}

func recordEvaluation(result domain.WindowResult) {
	valid := "false"
	if result.Valid {
		valid = "true"
	}
	DiagnosisEvaluationsTotal.WithLabelValues(string(result.ExamType), valid).Inc()
}
