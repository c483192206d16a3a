package main

import (
	"github.com/liamcoop/churn/features"
	"github.com/liamcoop/churn/scoring"
)

// API Request and Response Models

// PredictRequest is the JSON body of POST /api/v1/predict
type PredictRequest struct {
	TenureMonths   int     `json:"tenure_months" example:"12"`
	MonthlyCharges float64 `json:"monthly_charges" example:"79.99"`
	TotalCharges   float64 `json:"total_charges" example:"959.88"`
	ContractType   string  `json:"contract_type" example:"Month-to-month"`
}

// RawInput converts the request into form input
func (r PredictRequest) RawInput() features.RawInput {
	return features.RawInput{
		TenureMonths:   r.TenureMonths,
		MonthlyCharges: r.MonthlyCharges,
		TotalCharges:   r.TotalCharges,
		ContractType:   r.ContractType,
	}
}

// PredictResponse represents one prediction in API responses
type PredictResponse struct {
	RequestID   string         `json:"request_id" example:"123e4567-e89b-12d3-a456-426614174000"`
	Churn       bool           `json:"churn" example:"true"`
	Label       string         `json:"label" example:"churn"`
	Prediction  any            `json:"prediction"`
	Probability *float64       `json:"probability,omitempty" example:"0.82"`
	Message     string         `json:"message" example:"Customer is likely to churn (Probability: 0.82)"`
	Features    map[string]any `json:"features"`
}

func newPredictResponse(r *scoring.Result) PredictResponse {
	label := "stay"
	if r.Churn {
		label = "churn"
	}
	return PredictResponse{
		RequestID:   r.RequestID,
		Churn:       r.Churn,
		Label:       label,
		Prediction:  r.Prediction.Value(),
		Probability: r.Probability,
		Message:     r.Message(),
		Features:    r.Row.Map(),
	}
}

// SchemaResponse lists the columns the loaded model expects
type SchemaResponse struct {
	Declared     bool     `json:"declared" example:"true"`
	FeatureNames []string `json:"feature_names"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status          string `json:"status" example:"healthy"`
	ModelLoaded     bool   `json:"model_loaded" example:"true"`
	HasProbability  bool   `json:"has_probability" example:"true"`
	ExpectedColumns *int   `json:"expected_columns,omitempty" example:"5"`
	Error           string `json:"error,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error     string `json:"error" example:"invalid input"`
	Details   string `json:"details,omitempty" example:"invalid tenure_months: must be between 0 and 72, got 80"`
	RequestID string `json:"request_id,omitempty"`
}
