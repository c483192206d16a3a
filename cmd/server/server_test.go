package main

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/liamcoop/churn/scoring"
)

const logisticArtifact = `{
	"kind": "logistic",
	"feature_names": [
		"tenure_months",
		"arpu",
		"contract_type_month-to-month",
		"contract_type_one year",
		"contract_type_two year"
	],
	"intercept": -1.0,
	"coefficients": {
		"tenure_months": -0.08,
		"arpu": 0.03,
		"contract_type_month-to-month": 1.2,
		"contract_type_one year": -0.6,
		"contract_type_two year": -1.5
	}
}`

// setupServer writes artifact to a temp dir and builds a server around it.
// An empty artifact leaves the file absent.
func setupServer(t *testing.T, name, artifact string) *Server {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if artifact != "" {
		if err := os.WriteFile(path, []byte(artifact), 0o600); err != nil {
			t.Fatalf("Failed to write artifact: %v", err)
		}
	}

	server, err := NewServer(scoring.NewLoader(path))
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	return server
}

func TestIndex_RendersForm(t *testing.T) {
	server := setupServer(t, "model.json", logisticArtifact)

	status, body := getPage(t, server, "/")

	if status != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", status)
	}
	for _, want := range []string{
		"Customer Churn Prediction App",
		`name="tenure_months"`,
		`name="monthly_charges"`,
		`name="total_charges"`,
		`<option value="Month-to-month" selected>`,
		`<option value="One year">`,
		`<option value="Two year">`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("Expected page to contain %q", want)
		}
	}
	if strings.Contains(body, `data-kind="churn"`) || strings.Contains(body, `data-kind="stay"`) {
		t.Error("Expected no prediction banner before submission")
	}
}

func TestMissingModel_EveryPageShowsConfigurationError(t *testing.T) {
	server := setupServer(t, "model.json", "")

	// Step 1: the page shows the error instead of the form
	t.Log("Step 1: Loading index without a model...")
	status, body := getPage(t, server, "/")
	if status != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", status)
	}
	if !strings.Contains(body, "not found or failed to load") || !strings.Contains(body, "model.json") {
		t.Errorf("Expected configuration error naming the artifact, got:\n%s", body)
	}
	if strings.Contains(body, "<form") {
		t.Error("Expected no form when the model is unavailable")
	}

	// Step 2: a submission does not produce a prediction
	t.Log("Step 2: Submitting the form without a model...")
	status, body = postForm(t, server, formValues("12", "79.99", "959.88", "Month-to-month"))
	if status != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", status)
	}
	if !strings.Contains(body, `data-kind="configuration"`) {
		t.Error("Expected configuration banner")
	}
	if strings.Contains(body, "Customer is likely") {
		t.Error("Expected no prediction")
	}

	// Step 3: health reports the failure
	t.Log("Step 3: Checking health...")
	resp := makeRequest(t, server, "GET", "/api/v1/health", nil, http.StatusServiceUnavailable)
	if resp["status"] != "unhealthy" || resp["model_loaded"] != false {
		t.Errorf("Expected unhealthy response, got %v", resp)
	}

	// Step 4: the API refuses predictions
	t.Log("Step 4: Calling the prediction API...")
	makeRequest(t, server, "POST", "/api/v1/predict", map[string]interface{}{
		"tenure_months":   12,
		"monthly_charges": 79.99,
		"total_charges":   959.88,
		"contract_type":   "Month-to-month",
	}, http.StatusServiceUnavailable)
}

func TestInvalidModel_TreatedAsMissing(t *testing.T) {
	server := setupServer(t, "model.json", `{"kind": "forest"}`)

	status, body := getPage(t, server, "/")
	if status != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", status)
	}
	if !strings.Contains(body, `data-kind="configuration"`) {
		t.Error("Expected configuration banner for an unreadable artifact")
	}
}

func TestPredictForm_Churn(t *testing.T) {
	server := setupServer(t, "model.json", logisticArtifact)

	// short tenure, high charges, monthly contract
	status, body := postForm(t, server, formValues("2", "95", "190", "Month-to-month"))

	if status != http.StatusOK {
		t.Fatalf("Expected status 200, got %d:\n%s", status, body)
	}
	if !strings.Contains(body, `data-kind="churn"`) {
		t.Errorf("Expected churn banner, got:\n%s", body)
	}
	if !strings.Contains(body, "Customer is likely to churn (Probability: 0.") {
		t.Error("Expected churn message with probability")
	}
	// submitted values are kept in the form
	if !strings.Contains(body, `value="95.00"`) {
		t.Error("Expected submitted monthly charges to be echoed")
	}
}

func TestPredictForm_Stay(t *testing.T) {
	server := setupServer(t, "model.json", logisticArtifact)

	status, body := postForm(t, server, formValues("60", "20", "1200", "Two year"))

	if status != http.StatusOK {
		t.Fatalf("Expected status 200, got %d:\n%s", status, body)
	}
	if !strings.Contains(body, `data-kind="stay"`) {
		t.Errorf("Expected stay banner, got:\n%s", body)
	}
	if !strings.Contains(body, "Customer is likely to stay (Probability: 0.") {
		t.Error("Expected stay message with probability")
	}
	if !strings.Contains(body, `<option value="Two year" selected>`) {
		t.Error("Expected submitted contract type to stay selected")
	}
}

func TestPredictForm_ValidationError(t *testing.T) {
	server := setupServer(t, "model.json", logisticArtifact)

	tests := []struct {
		name   string
		values url.Values
		field  string
	}{
		{"tenure above range", formValues("73", "50", "50", "Month-to-month"), "tenure_months"},
		{"tenure not a number", formValues("twelve", "50", "50", "Month-to-month"), "tenure_months"},
		{"negative charges", formValues("12", "-1", "50", "Month-to-month"), "monthly_charges"},
		{"unknown contract", formValues("12", "50", "50", "Weekly"), "contract_type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := postForm(t, server, tt.values)

			if status != http.StatusBadRequest {
				t.Errorf("Expected status 400, got %d", status)
			}
			if !strings.Contains(body, `data-kind="validation"`) || !strings.Contains(body, "invalid "+tt.field) {
				t.Errorf("Expected validation banner for %s, got:\n%s", tt.field, body)
			}
			if strings.Contains(body, "Customer is likely") {
				t.Error("Expected no prediction for invalid input")
			}
		})
	}
}

func TestPredictForm_PredictionError(t *testing.T) {
	// the model reads a column the form never produces
	server := setupServer(t, "model.json", `{
		"kind": "expression",
		"feature_names": ["tenure_months", "arpu"],
		"predict": "features[\"senior_citizen\"] > 0 ? 1 : 0"
	}`)

	status, body := postForm(t, server, formValues("12", "50", "600", "One year"))

	if status != http.StatusUnprocessableEntity {
		t.Errorf("Expected status 422, got %d", status)
	}
	if !strings.Contains(body, `data-kind="prediction"`) || !strings.Contains(body, "Prediction failed: ") {
		t.Errorf("Expected prediction failure banner, got:\n%s", body)
	}
	if strings.Contains(body, `data-kind="churn"`) || strings.Contains(body, `data-kind="stay"`) {
		t.Error("Expected no outcome banner after a failed prediction")
	}
	// the form is still usable
	if !strings.Contains(body, "<form") {
		t.Error("Expected form after a prediction failure")
	}
}

func TestAPI_Predict(t *testing.T) {
	server := setupServer(t, "model.json", logisticArtifact)

	resp := makeRequest(t, server, "POST", "/api/v1/predict", map[string]interface{}{
		"tenure_months":   2,
		"monthly_charges": 95.0,
		"total_charges":   190.0,
		"contract_type":   "Month-to-month",
	}, http.StatusOK)

	if resp["churn"] != true || resp["label"] != "churn" {
		t.Errorf("Expected churn, got %v", resp)
	}
	if resp["prediction"] != float64(1) {
		t.Errorf("Expected raw prediction 1, got %v", resp["prediction"])
	}
	if _, ok := resp["probability"].(float64); !ok {
		t.Errorf("Expected probability, got %v", resp["probability"])
	}
	if id, _ := resp["request_id"].(string); id == "" {
		t.Error("Expected request id")
	}

	feats, ok := resp["features"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected features object, got %v", resp["features"])
	}
	if len(feats) != 5 {
		t.Errorf("Expected 5 aligned columns, got %d", len(feats))
	}
	if feats["arpu"] != float64(95) || feats["contract_type_month-to-month"] != float64(1) || feats["contract_type_two year"] != float64(0) {
		t.Errorf("Unexpected aligned features: %v", feats)
	}
}

func TestAPI_NonFiniteScoreIsPredictionError(t *testing.T) {
	server := setupServer(t, "model.json", `{
		"kind": "expression",
		"feature_names": ["arpu"],
		"predict": "features[\"arpu\"] * 0.0 / 0.0"
	}`)

	resp := makeRequest(t, server, "POST", "/api/v1/predict", map[string]interface{}{
		"tenure_months":   12,
		"monthly_charges": 79.99,
		"total_charges":   959.88,
		"contract_type":   "Month-to-month",
	}, http.StatusUnprocessableEntity)

	if resp["error"] != "prediction failed" {
		t.Errorf("Expected prediction failed error, got %v", resp)
	}
	if details, _ := resp["details"].(string); !strings.Contains(details, "not a finite number") {
		t.Errorf("Expected non-finite details, got %v", resp["details"])
	}
}

func TestRespondJSON_UnencodableValue(t *testing.T) {
	rec := httptest.NewRecorder()
	respondJSON(rec, http.StatusOK, map[string]any{"score": math.NaN()})

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Error("Expected an error body")
	}
}

func TestAPI_PredictValidation(t *testing.T) {
	server := setupServer(t, "model.json", logisticArtifact)

	resp := makeRequest(t, server, "POST", "/api/v1/predict", map[string]interface{}{
		"tenure_months":   80,
		"monthly_charges": 50.0,
		"total_charges":   50.0,
		"contract_type":   "Month-to-month",
	}, http.StatusBadRequest)
	if resp["error"] != "invalid input" {
		t.Errorf("Expected invalid input error, got %v", resp)
	}

	// unknown fields are rejected
	makeRequest(t, server, "POST", "/api/v1/predict", map[string]interface{}{
		"tenure_months": 12,
		"gender":        "Female",
	}, http.StatusBadRequest)
}

func TestAPI_SchemaAndHealth(t *testing.T) {
	server := setupServer(t, "model.yaml", `
kind: expression
predict: 'features["monthly_charges"] > 70.0 ? "Yes" : "No"'
`)

	health := makeRequest(t, server, "GET", "/api/v1/health", nil, http.StatusOK)
	if health["status"] != "healthy" || health["has_probability"] != false {
		t.Errorf("Unexpected health response: %v", health)
	}
	if _, ok := health["expected_columns"]; ok {
		t.Error("Expected no column count for a model without declared columns")
	}

	schema := makeRequest(t, server, "GET", "/api/v1/schema", nil, http.StatusOK)
	if schema["declared"] != false {
		t.Errorf("Expected undeclared schema, got %v", schema)
	}

	// raw input is passed through unchanged
	resp := makeRequest(t, server, "POST", "/api/v1/predict", map[string]interface{}{
		"tenure_months":   12,
		"monthly_charges": 79.99,
		"total_charges":   959.88,
		"contract_type":   "One year",
	}, http.StatusOK)
	if resp["prediction"] != "Yes" || resp["churn"] != true {
		t.Errorf("Expected Yes/churn, got %v", resp)
	}
	if _, ok := resp["probability"]; ok {
		t.Error("Expected no probability from a model without predict_proba")
	}
	if resp["message"] != "Customer is likely to churn" {
		t.Errorf("Unexpected message %v", resp["message"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	server := setupServer(t, "model.json", logisticArtifact)

	postForm(t, server, formValues("2", "95", "190", "Month-to-month"))

	status, body := getPage(t, server, "/metrics")
	if status != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", status)
	}
	if !strings.Contains(body, "churn_predictor_predictions_total") {
		t.Error("Expected prediction counter in metrics output")
	}
}

// Helper functions

func formValues(tenure, monthly, total, contract string) url.Values {
	return url.Values{
		"tenure_months":   {tenure},
		"monthly_charges": {monthly},
		"total_charges":   {total},
		"contract_type":   {contract},
	}
}

func getPage(t *testing.T, h http.Handler, path string) (int, string) {
	t.Helper()

	req := httptest.NewRequest("GET", path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	return rec.Code, rec.Body.String()
}

func postForm(t *testing.T, h http.Handler, values url.Values) (int, string) {
	t.Helper()

	req := httptest.NewRequest("POST", "/predict", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	return rec.Code, rec.Body.String()
}

func makeRequest(t *testing.T, h http.Handler, method, path string, body interface{}, expectedStatus int) map[string]interface{} {
	t.Helper()

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req := httptest.NewRequest(method, path, reqBody)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != expectedStatus {
		t.Fatalf("Expected status %d, got %d: %s", expectedStatus, rec.Code, rec.Body.String())
	}

	var result map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	return result
}
