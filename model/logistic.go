package model

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/liamcoop/churn/features"
)

// Logistic output modes
const (
	OutputLabel = "label"
	OutputScore = "score"
)

// LogisticRegression is a binary logistic model over named columns
type LogisticRegression struct {
	schema

	intercept float64
	weights   []weight
	threshold float64
	output    string
	labels    []string
}

type weight struct {
	column string
	w      float64
}

func newLogisticRegression(a *Artifact) (*LogisticRegression, error) {
	if len(a.Coefficients) == 0 {
		return nil, errors.New("logistic model needs at least one coefficient")
	}

	m := &LogisticRegression{
		schema:    newSchema(a.FeatureNames),
		intercept: a.Intercept,
		threshold: 0.5,
		output:    a.Output,
	}

	if a.Threshold != nil {
		if *a.Threshold <= 0 || *a.Threshold >= 1 {
			return nil, fmt.Errorf("threshold must be in (0, 1), got %g", *a.Threshold)
		}
		m.threshold = *a.Threshold
	}

	switch a.Output {
	case "", OutputLabel:
		m.output = OutputLabel
	case OutputScore:
	default:
		return nil, fmt.Errorf("unknown output %q (must be %s or %s)", a.Output, OutputLabel, OutputScore)
	}

	if a.Labels != nil {
		if len(a.Labels) != 2 {
			return nil, fmt.Errorf("labels must name exactly 2 classes, got %d", len(a.Labels))
		}
		m.labels = append([]string(nil), a.Labels...)
	}

	declared := make(map[string]bool, len(a.FeatureNames))
	for _, n := range a.FeatureNames {
		declared[n] = true
	}

	for column, w := range a.Coefficients {
		if m.ok && !declared[column] {
			return nil, fmt.Errorf("coefficient %q is not a declared feature", column)
		}
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, fmt.Errorf("coefficient %q is not finite", column)
		}
		m.weights = append(m.weights, weight{column: column, w: w})
	}
	// fixed order keeps the sum reproducible
	sort.Slice(m.weights, func(i, j int) bool { return m.weights[i].column < m.weights[j].column })

	return m, nil
}

// PredictProba returns [p(stay), p(churn)]
func (m *LogisticRegression) PredictProba(row *features.Row) ([]float64, error) {
	p, err := m.probability(row)
	if err != nil {
		return nil, err
	}
	return []float64{1 - p, p}, nil
}

// Predict returns the class label, or the churn probability when the model
// is configured to output scores
func (m *LogisticRegression) Predict(row *features.Row) (Prediction, error) {
	p, err := m.probability(row)
	if err != nil {
		return nil, err
	}

	if m.output == OutputScore {
		return FloatScore(p), nil
	}

	class := 0
	if p >= m.threshold {
		class = 1
	}
	if m.labels != nil {
		return StringLabel(m.labels[class]), nil
	}
	return IntLabel(class), nil
}

func (m *LogisticRegression) probability(row *features.Row) (float64, error) {
	z := m.intercept
	for _, w := range m.weights {
		v, ok := row.Get(w.column)
		if !ok {
			return 0, fmt.Errorf("feature %q missing from input", w.column)
		}
		x, ok := v.Float()
		if !ok {
			return 0, fmt.Errorf("could not convert %q to float for feature %q", v.Category, w.column)
		}
		z += w.w * x
	}
	return sigmoid(z), nil
}

func sigmoid(z float64) float64 {
	return 1.0 / (1.0 + math.Exp(-z))
}
