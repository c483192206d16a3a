package scoring

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/liamcoop/churn/features"
	"github.com/liamcoop/churn/internal/logger"
	"github.com/liamcoop/churn/internal/metrics"
	"github.com/liamcoop/churn/model"
)

// Loader reads the model artifact at most once per process
type Loader struct {
	path string

	once      sync.Once
	predictor *Predictor
	err       error
}

// NewLoader creates a loader for the artifact at path
func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// Path returns the artifact location
func (l *Loader) Path() string {
	return l.path
}

// Load returns the predictor for the artifact. The first call reads the
// file; later calls return the same predictor, or the same error. A failed
// load is not retried.
func (l *Loader) Load() (*Predictor, error) {
	l.once.Do(func() {
		m, err := model.LoadFile(l.path)
		if err != nil {
			l.err = err
			metrics.ModelLoaded.Set(0)
			logger.Error("failed to load model", "path", l.path, "error", err)
			return
		}

		l.predictor = NewPredictor(m)
		metrics.ModelLoaded.Set(1)

		if names, ok := l.predictor.Schema(); ok {
			metrics.ExpectedColumns.Set(float64(len(names)))
			logger.Info("model loaded", "path", l.path, "expected_columns", len(names))
		} else {
			metrics.ExpectedColumns.Set(-1)
			logger.Info("model loaded without expected columns, input will be passed through", "path", l.path)
		}
	})
	return l.predictor, l.err
}

// Predictor runs form input through a loaded model. It holds no mutable
// state and is safe for concurrent use as long as the model is.
type Predictor struct {
	model     model.Model
	proba     model.ProbabilityPredictor
	schema    []string
	hasSchema bool
}

// NewPredictor wraps a loaded model, discovering its optional capabilities
func NewPredictor(m model.Model) *Predictor {
	p := &Predictor{model: m}

	if sp, ok := m.(model.SchemaProvider); ok {
		p.schema, p.hasSchema = sp.FeatureNames()
	}
	if pp, ok := m.(model.ProbabilityPredictor); ok {
		p.proba = pp
	}

	return p
}

// Schema returns the columns the model expects, false when it declares none
func (p *Predictor) Schema() ([]string, bool) {
	if !p.hasSchema {
		return nil, false
	}
	out := make([]string, len(p.schema))
	copy(out, p.schema)
	return out, true
}

// HasProbability reports whether the model can return class probabilities
func (p *Predictor) HasProbability() bool {
	return p.proba != nil
}

// Align builds the row handed to the model. Without a declared schema the
// input is passed through unchanged.
func (p *Predictor) Align(in features.RawInput) *features.Row {
	if !p.hasSchema {
		return features.Passthrough(in)
	}

	row := features.Reconcile(in, p.schema)

	if matched := features.MatchedContractColumns(in.ContractType, p.schema); len(matched) != 1 && p.hasContractColumns() {
		logger.Debug("contract type did not match exactly one column",
			"contract_type", in.ContractType,
			"matched", matched,
		)
	}

	return row
}

func (p *Predictor) hasContractColumns() bool {
	for _, c := range p.schema {
		if strings.HasPrefix(c, features.ContractPrefix) {
			return true
		}
	}
	return false
}

// Result is the outcome of one prediction
type Result struct {
	RequestID   string
	Churn       bool
	Probability *float64
	Prediction  model.Prediction
	Row         *features.Row
}

// Message is the banner shown to the user
func (r *Result) Message() string {
	text := "Customer is likely to stay"
	if r.Churn {
		text = "Customer is likely to churn"
	}
	if r.Probability != nil {
		text += fmt.Sprintf(" (Probability: %.2f)", *r.Probability)
	}
	return text
}

// PredictionError is returned when the model call fails
type PredictionError struct {
	RequestID string
	Err       error
}

func (e *PredictionError) Error() string {
	return fmt.Sprintf("prediction failed: %v", e.Err)
}

func (e *PredictionError) Unwrap() error {
	return e.Err
}

// Predict aligns the input, calls the model and classifies its output.
// A failing probability call only drops the probability from the result.
func (p *Predictor) Predict(in features.RawInput) (*Result, error) {
	start := time.Now()
	defer func() {
		metrics.PredictionDuration.Observe(time.Since(start).Seconds())
	}()

	requestID := uuid.NewString()
	row := p.Align(in)

	raw, err := p.model.Predict(row)
	if err == nil && raw == nil {
		err = errors.New("model returned no prediction")
	}
	if err != nil {
		metrics.PredictionErrors.Inc()
		logger.ErrorPrediction(requestID, err)
		return nil, &PredictionError{RequestID: requestID, Err: err}
	}

	result := &Result{
		RequestID:  requestID,
		Churn:      model.Classify(raw),
		Prediction: raw,
		Row:        row,
	}

	if p.proba != nil {
		dist, err := p.proba.PredictProba(row)
		if err != nil {
			logger.Warn("probability unavailable", "request_id", requestID, "error", err)
		} else if prob, ok := model.ProbabilityOf(dist); ok {
			result.Probability = &prob
		} else {
			logger.Warn("probability unavailable", "request_id", requestID, "distribution", dist)
		}
	}

	if result.Probability == nil {
		metrics.ProbabilityMissing.Inc()
	}

	outcome := metrics.OutcomeStay
	if result.Churn {
		outcome = metrics.OutcomeChurn
	}
	metrics.Predictions.WithLabelValues(outcome).Inc()

	logger.Info("prediction",
		"request_id", requestID,
		"outcome", outcome,
		"raw", raw.String(),
		"columns", row.Len(),
	)

	return result, nil
}
