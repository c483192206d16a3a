package model

import (
	"errors"
	"fmt"
	"math"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"

	"github.com/liamcoop/churn/features"
)

// Cost limit of 1,000,000 stops runaway expressions
const expressionCostLimit = 1000000

// featuresVariable is the name the row is bound to inside expressions
const featuresVariable = "features"

// ExpressionModel scores rows with CEL expressions, e.g.
//
//	features["arpu"] > 70.0 && features["tenure_months"] < 12.0 ? "Yes" : "No"
type ExpressionModel struct {
	schema

	predict cel.Program
	proba   cel.Program
}

// newExpressionModel returns an ExpressionProbability when the artifact has a
// predict_proba expression, a bare ExpressionModel otherwise
func newExpressionModel(a *Artifact) (Model, error) {
	if a.Predict == "" {
		return nil, errors.New("expression model needs a predict expression")
	}

	env, err := cel.NewEnv(
		cel.Variable(featuresVariable, cel.MapType(cel.StringType, cel.DynType)),
		cel.CrossTypeNumericComparisons(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	m := &ExpressionModel{schema: newSchema(a.FeatureNames)}

	m.predict, err = compileExpression(env, a.Predict)
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}

	if a.PredictProba != "" {
		m.proba, err = compileExpression(env, a.PredictProba)
		if err != nil {
			return nil, fmt.Errorf("predict_proba: %w", err)
		}
		return ExpressionProbability{m}, nil
	}

	return m, nil
}

func compileExpression(env *cel.Env, expression string) (cel.Program, error) {
	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}

	prog, err := env.Program(ast, cel.CostLimit(expressionCostLimit))
	if err != nil {
		return nil, fmt.Errorf("program creation error: %w", err)
	}

	return prog, nil
}

func evaluate(prog cel.Program, row *features.Row) (ref.Val, error) {
	out, _, err := prog.Eval(map[string]any{featuresVariable: row.Map()})
	if err != nil {
		return nil, fmt.Errorf("evaluation error: %w", err)
	}
	return out, nil
}

// Predict evaluates the predict expression. Booleans are reported as 1/0 labels.
func (m *ExpressionModel) Predict(row *features.Row) (Prediction, error) {
	out, err := evaluate(m.predict, row)
	if err != nil {
		return nil, err
	}

	switch v := out.Value().(type) {
	case int64:
		return IntLabel(v), nil
	case uint64:
		return IntLabel(int64(v)), nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("prediction is not a finite number: %g", v)
		}
		return FloatScore(v), nil
	case string:
		return StringLabel(v), nil
	case bool:
		if v {
			return IntLabel(1), nil
		}
		return IntLabel(0), nil
	default:
		return nil, fmt.Errorf("unsupported prediction type %s", out.Type().TypeName())
	}
}

// ExpressionProbability wraps an ExpressionModel that has a predict_proba
// expression so that it satisfies ProbabilityPredictor
type ExpressionProbability struct {
	*ExpressionModel
}

// PredictProba evaluates the predict_proba expression. A number p is read
// as the churn probability and returned as [1-p, p]; a list is returned as is.
func (m ExpressionProbability) PredictProba(row *features.Row) ([]float64, error) {
	out, err := evaluate(m.proba, row)
	if err != nil {
		return nil, err
	}

	switch v := out.(type) {
	case types.Double:
		return []float64{1 - float64(v), float64(v)}, nil
	case types.Int:
		return []float64{1 - float64(v), float64(v)}, nil
	case traits.Lister:
		size, ok := v.Size().(types.Int)
		if !ok {
			return nil, errors.New("probability list has no size")
		}
		dist := make([]float64, 0, int(size))
		for i := types.Int(0); i < size; i++ {
			switch x := v.Get(i).(type) {
			case types.Double:
				dist = append(dist, float64(x))
			case types.Int:
				dist = append(dist, float64(x))
			default:
				return nil, fmt.Errorf("probability entry %d is %s, not a number", i, x.Type().TypeName())
			}
		}
		return dist, nil
	default:
		return nil, fmt.Errorf("unsupported probability type %s", out.Type().TypeName())
	}
}
