package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RecordsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "diagnoml_records_ingested_total",
		Help: "Minimal dataset records accepted at the intake boundary.",
	})

	RecordsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "diagnoml_records_rejected_total",
		Help: "Intake rejections by reason.",
	}, []string{"reason"})

	PredictionsServed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "diagnoml_predictions_served_total",
		Help: "Predictions served by risk category.",
	}, []string{"risk_category"})

	FeedbackAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "diagnoml_feedback_accepted_total",
		Help: "Ground-truth feedback records accepted.",
	})

	DriftAggregateScore = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "diagnoml_drift_aggregate_score",
		Help: "Aggregate PSI of the most recent drift report.",
	})

	OrchestratorTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "diagnoml_orchestrator_transitions_total",
		Help: "Orchestrator state transitions.",
	}, []string{"from", "to"})

	TrainingRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "diagnoml_training_runs_total",
		Help: "Training runs by outcome (promoted, rejected, skipped).",
	}, []string{"outcome"})

	ProductionModelVersion = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "diagnoml_production_model_version",
		Help: "Version id of the model currently in production.",
	})
)

func Handler() http.Handler {
	return promhttp.Handler()
}
