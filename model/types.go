package model

import (
	"strconv"
	"strings"

	"github.com/liamcoop/churn/features"
)

// Model is a loaded churn classifier
type Model interface {
	// Predict returns the raw prediction for a single row
	Predict(row *features.Row) (Prediction, error)
}

// ProbabilityPredictor is implemented by models that can report a class
// probability distribution for a row
type ProbabilityPredictor interface {
	PredictProba(row *features.Row) ([]float64, error)
}

// SchemaProvider is implemented by models that declare the columns they were
// trained on. The boolean is false when the model carries no such list.
type SchemaProvider interface {
	FeatureNames() ([]string, bool)
}

// Prediction is the raw output of a model. It is one of IntLabel,
// FloatScore or StringLabel.
type Prediction interface {
	// Churn reports whether the value denotes a churning customer
	Churn() bool
	// Value returns the underlying int64, float64 or string
	Value() any
	String() string
}

// IntLabel is an integer class label
type IntLabel int64

// Churn is true for label 1
func (l IntLabel) Churn() bool    { return l == 1 }
func (l IntLabel) Value() any     { return int64(l) }
func (l IntLabel) String() string { return strconv.FormatInt(int64(l), 10) }

// FloatScore is a continuous score
type FloatScore float64

// Churn is true for scores at or above 0.5
func (s FloatScore) Churn() bool    { return float64(s) >= 0.5 }
func (s FloatScore) Value() any     { return float64(s) }
func (s FloatScore) String() string { return strconv.FormatFloat(float64(s), 'g', -1, 64) }

// StringLabel is a textual class label
type StringLabel string

var churnLabels = map[string]bool{
	"yes":   true,
	"churn": true,
	"true":  true,
	"1":     true,
	"y":     true,
}

// Churn is true for yes, churn, true, 1 and y, ignoring case
func (l StringLabel) Churn() bool    { return churnLabels[strings.ToLower(string(l))] }
func (l StringLabel) Value() any     { return string(l) }
func (l StringLabel) String() string { return string(l) }
