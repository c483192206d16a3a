package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where the model artifact is read from unless configured otherwise
const DefaultPath = "model.json"

// ErrModelUnavailable is returned when the artifact is missing or cannot be loaded
var ErrModelUnavailable = errors.New("model unavailable")

// Artifact kinds
const (
	KindLogistic   = "logistic"
	KindExpression = "expression"
)

// Artifact is the serialized form of a trained model
type Artifact struct {
	Kind string `json:"kind" yaml:"kind"`

	// FeatureNames lists the training columns in order. Absent means the
	// model does not declare them.
	FeatureNames []string `json:"feature_names,omitempty" yaml:"feature_names,omitempty"`

	// logistic
	Intercept    float64            `json:"intercept,omitempty" yaml:"intercept,omitempty"`
	Coefficients map[string]float64 `json:"coefficients,omitempty" yaml:"coefficients,omitempty"`
	Threshold    *float64           `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	Output       string             `json:"output,omitempty" yaml:"output,omitempty"`
	Labels       []string           `json:"labels,omitempty" yaml:"labels,omitempty"`

	// expression
	Predict      string `json:"predict,omitempty" yaml:"predict,omitempty"`
	PredictProba string `json:"predict_proba,omitempty" yaml:"predict_proba,omitempty"`
}

// LoadFile reads and builds the model stored at path. Every failure wraps
// ErrModelUnavailable.
func LoadFile(path string) (Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}

	a, err := Decode(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrModelUnavailable, path, err)
	}

	m, err := Build(a)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrModelUnavailable, path, err)
	}

	return m, nil
}

// Decode parses an artifact. ext selects YAML for .yaml/.yml, JSON otherwise.
func Decode(data []byte, ext string) (*Artifact, error) {
	var a Artifact

	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &a); err != nil {
			return nil, fmt.Errorf("failed to parse yaml artifact: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, fmt.Errorf("failed to parse json artifact: %w", err)
		}
	}

	return &a, nil
}

// Build constructs the model described by an artifact
func Build(a *Artifact) (Model, error) {
	if a == nil {
		return nil, errors.New("empty artifact")
	}

	if err := validateFeatureNames(a.FeatureNames); err != nil {
		return nil, err
	}

	switch a.Kind {
	case KindLogistic:
		m, err := newLogisticRegression(a)
		if err != nil {
			return nil, err
		}
		return m, nil
	case KindExpression:
		return newExpressionModel(a)
	case "":
		return nil, errors.New("artifact kind is required")
	default:
		return nil, fmt.Errorf("unknown artifact kind %q (must be one of: %s, %s)", a.Kind, KindLogistic, KindExpression)
	}
}

func validateFeatureNames(names []string) error {
	seen := make(map[string]bool, len(names))
	for i, n := range names {
		if n == "" {
			return fmt.Errorf("feature name at position %d is empty", i)
		}
		if seen[n] {
			return fmt.Errorf("duplicate feature name %q", n)
		}
		seen[n] = true
	}
	return nil
}

// schema is embedded by models to implement SchemaProvider
type schema struct {
	names []string
	ok    bool
}

func newSchema(names []string) schema {
	if names == nil {
		return schema{}
	}
	out := make([]string, len(names))
	copy(out, names)
	return schema{names: out, ok: true}
}

func (s schema) FeatureNames() ([]string, bool) {
	if !s.ok {
		return nil, false
	}
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out, true
}
