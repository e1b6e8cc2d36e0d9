package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vidforensics/backend/pkg/circuitbreaker"
)

var (
	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vidforensics_stage_duration_seconds",
			Help:    "Pipeline stage duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"stage", "status"},
	)

	AnalysesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vidforensics_analyses_total",
			Help: "Total analysis requests by endpoint and outcome",
		},
		[]string{"endpoint", "status"},
	)

	VerdictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vidforensics_verdicts_total",
			Help: "Final verdicts issued",
		},
		[]string{"verdict"},
	)

	RiskScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vidforensics_risk_score",
			Help:    "Misinformation risk score distribution",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		},
	)

	ClaimVerdicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vidforensics_claim_verdicts_total",
			Help: "Per-claim fact-check verdicts",
		},
		[]string{"verdict"},
	)

	ClaimDegradations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vidforensics_claim_degradations_total",
			Help: "Claims forced to unclear because evidence or reasoning was unavailable",
		},
		[]string{"reason"},
	)

	RetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vidforensics_retries_total",
			Help: "Retried upstream operations",
		},
		[]string{"op"},
	)

	PollAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vidforensics_poll_attempts_total",
			Help: "Remote job status polls",
		},
		[]string{"job", "state"},
	)

	ModelOutputRepairs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vidforensics_model_output_repairs_total",
			Help: "Model outputs that needed a JSON repair call",
		},
		[]string{"stage", "outcome"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vidforensics_circuit_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"name"},
	)

	AIDetections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vidforensics_ai_detections_total",
			Help: "AI-generation detection outcomes",
		},
		[]string{"source", "result"},
	)

	RateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vidforensics_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		},
	)
)

func Init() {
	prometheus.MustRegister(StageDuration)
	prometheus.MustRegister(AnalysesTotal)
	prometheus.MustRegister(VerdictsTotal)
	prometheus.MustRegister(RiskScore)
	prometheus.MustRegister(ClaimVerdicts)
	prometheus.MustRegister(ClaimDegradations)
	prometheus.MustRegister(RetriesTotal)
	prometheus.MustRegister(PollAttempts)
	prometheus.MustRegister(ModelOutputRepairs)
	prometheus.MustRegister(CircuitBreakerState)
	prometheus.MustRegister(AIDetections)
	prometheus.MustRegister(RateLimited)
}

// RecordRetry matches retry.Config.OnRetry.
func RecordRetry(op string, attempt int, err error) {
	RetriesTotal.WithLabelValues(op).Inc()
}

// BreakerStateChanged matches circuitbreaker.Config.OnStateChange.
func BreakerStateChanged(name string, from, to circuitbreaker.State) {
	CircuitBreakerState.WithLabelValues(name).Set(float64(to))
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
