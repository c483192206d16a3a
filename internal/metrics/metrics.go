package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/liamcoop/churn/internal/logger"
)

// Outcome labels for Predictions
const (
	OutcomeChurn = "churn"
	OutcomeStay  = "stay"
)

var (
	Predictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "churn",
			Subsystem: "predictor",
			Name:      "predictions_total",
			Help:      "Total number of successful predictions by outcome.",
		},
		[]string{"outcome"},
	)

	PredictionErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "churn",
			Subsystem: "predictor",
			Name:      "prediction_errors_total",
			Help:      "Total number of model calls that returned an error.",
		},
	)

	ProbabilityMissing = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "churn",
			Subsystem: "predictor",
			Name:      "probability_missing_total",
			Help:      "Predictions returned without a probability.",
		},
	)

	PredictionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "churn",
			Subsystem: "predictor",
			Name:      "prediction_duration_seconds",
			Help:      "Time spent aligning features and calling the model.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		},
	)

	ModelLoaded = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "churn",
			Subsystem: "model",
			Name:      "loaded",
			Help:      "1 when the model artifact was loaded, 0 otherwise.",
		},
	)

	ExpectedColumns = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "churn",
			Subsystem: "model",
			Name:      "expected_columns",
			Help:      "Number of input columns the loaded model declares, -1 when it declares none.",
		},
	)
)

func init() {
	// Safe register; ignore duplicate registration in case of multiple imports
	_ = prometheus.Register(Predictions)
	_ = prometheus.Register(PredictionErrors)
	_ = prometheus.Register(ProbabilityMissing)
	_ = prometheus.Register(PredictionDuration)
	_ = prometheus.Register(ModelLoaded)
	_ = prometheus.Register(ExpectedColumns)

	_ = prometheus.Register(counterFunc("log_errors_total", "Errors logged, before sampling.", &logger.TotalErrors))
	_ = prometheus.Register(counterFunc("log_warnings_total", "Warnings logged, before sampling.", &logger.TotalWarnings))
	_ = prometheus.Register(counterFunc("http_5xx_total", "HTTP 5xx responses.", &logger.Total5xxErrors))
	_ = prometheus.Register(counterFunc("http_4xx_total", "HTTP 4xx responses.", &logger.Total4xxErrors))
}

func counterFunc(name, help string, v *atomic.Int64) prometheus.CounterFunc {
	return prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Namespace: "churn",
			Name:      name,
			Help:      help,
		},
		func() float64 { return float64(v.Load()) },
	)
}

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
