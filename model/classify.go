package model

import "math"

// Classify turns a raw prediction into a churn decision.
// A nil prediction is not churn.
func Classify(p Prediction) bool {
	if p == nil {
		return false
	}
	return p.Churn()
}

// ProbabilityOf picks the churn probability out of a class distribution:
// the second entry for two or more classes, otherwise the only one.
// It returns false when the distribution is empty or the entry is not a
// probability.
func ProbabilityOf(dist []float64) (float64, bool) {
	if len(dist) == 0 {
		return 0, false
	}

	p := dist[0]
	if len(dist) > 1 {
		p = dist[1]
	}

	if math.IsNaN(p) || p < 0 || p > 1 {
		return 0, false
	}
	return p, true
}
