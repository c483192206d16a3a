package main

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/microcosm-cc/bluemonday"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/liamcoop/churn/features"
	"github.com/liamcoop/churn/internal/logger"
	"github.com/liamcoop/churn/internal/metrics"
	"github.com/liamcoop/churn/model"
	"github.com/liamcoop/churn/scoring"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

const pageTitle = "Churn Prediction"

type Server struct {
	predictor *scoring.Predictor // nil when the model failed to load
	loadErr   error
	modelPath string
	pages     *template.Template
	sanitizer *bluemonday.Policy
	handler   http.Handler
}

// NewServer loads the model through loader and sets up routes. A model that
// fails to load does not fail construction: the server then answers every
// request with the configuration error.
func NewServer(loader *scoring.Loader) (*Server, error) {
	pages, err := template.ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	predictor, loadErr := loader.Load()

	s := &Server{
		predictor: predictor,
		loadErr:   loadErr,
		modelPath: loader.Path(),
		pages:     pages,
		sanitizer: bluemonday.StrictPolicy(),
	}

	s.setupRoutes()

	return s, nil
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Form
	r.Get("/", s.handleIndex)
	r.Post("/predict", s.handlePredictForm)

	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/schema", s.handleSchema)
		r.Post("/predict", s.handlePredict)
	})

	s.handler = otelhttp.NewHandler(r, "churn")
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// fatalMessage is shown in place of the form when the model could not be loaded
func (s *Server) fatalMessage() string {
	return fmt.Sprintf("Model file '%s' not found or failed to load. Place the file in the app directory.", s.modelPath)
}

type pageData struct {
	Title           string
	FatalError      string
	Input           features.RawInput
	Contracts       []string
	ValidationError string
	PredictionError template.HTML
	Result          *scoring.Result
}

func (s *Server) newPage(in features.RawInput) *pageData {
	return &pageData{
		Title:     pageTitle,
		Input:     in,
		Contracts: features.ContractTypes,
	}
}

func (s *Server) render(w http.ResponseWriter, status int, data *pageData) {
	countStatus(status)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.pages.ExecuteTemplate(w, "index", data); err != nil {
		logger.Error("failed to render page", "error", err)
	}
}

func (s *Server) renderFatal(w http.ResponseWriter) {
	data := s.newPage(features.DefaultInput())
	data.FatalError = s.fatalMessage()
	s.render(w, http.StatusServiceUnavailable, data)
}

// Index handler
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if s.predictor == nil {
		s.renderFatal(w)
		return
	}
	s.render(w, http.StatusOK, s.newPage(features.DefaultInput()))
}

// Form submission handler
func (s *Server) handlePredictForm(w http.ResponseWriter, r *http.Request) {
	if s.predictor == nil {
		s.renderFatal(w)
		return
	}

	if err := r.ParseForm(); err != nil {
		data := s.newPage(features.DefaultInput())
		data.ValidationError = "invalid form submission"
		s.render(w, http.StatusBadRequest, data)
		return
	}

	in, err := features.ParseForm(r.PostForm)
	if err != nil {
		data := s.newPage(in)
		data.ValidationError = err.Error()
		s.render(w, http.StatusBadRequest, data)
		return
	}

	data := s.newPage(in)

	result, err := s.predictor.Predict(in)
	if err != nil {
		data.PredictionError = s.predictionErrorHTML(err)
		s.render(w, http.StatusUnprocessableEntity, data)
		return
	}

	data.Result = result
	s.render(w, http.StatusOK, data)
}

// predictionErrorHTML strips any markup the model put in its error text
func (s *Server) predictionErrorHTML(err error) template.HTML {
	var perr *scoring.PredictionError
	if errors.As(err, &perr) {
		err = perr.Err
	}
	return template.HTML(s.sanitizer.Sanitize(err.Error()))
}

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.predictor == nil {
		respondJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status:      "unhealthy",
			ModelLoaded: false,
			Error:       s.loadErr.Error(),
		})
		return
	}

	resp := HealthResponse{
		Status:         "healthy",
		ModelLoaded:    true,
		HasProbability: s.predictor.HasProbability(),
	}
	if names, ok := s.predictor.Schema(); ok {
		n := len(names)
		resp.ExpectedColumns = &n
	}
	respondJSON(w, http.StatusOK, resp)
}

// Schema handler
func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	if s.predictor == nil {
		respondError(w, http.StatusServiceUnavailable, s.fatalMessage(), s.loadErr)
		return
	}

	names, ok := s.predictor.Schema()
	respondJSON(w, http.StatusOK, SchemaResponse{
		Declared:     ok,
		FeatureNames: names,
	})
}

// Prediction handler
func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	if s.predictor == nil {
		respondError(w, http.StatusServiceUnavailable, s.fatalMessage(), s.loadErr)
		return
	}

	var req PredictRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	in := req.RawInput()
	if err := features.ValidateInput(in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid input", err)
		return
	}

	result, err := s.predictor.Predict(in)
	if err != nil {
		var perr *scoring.PredictionError
		if errors.As(err, &perr) {
			respondJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
				Error:     "prediction failed",
				Details:   perr.Err.Error(),
				RequestID: perr.RequestID,
			})
			countStatus(http.StatusUnprocessableEntity)
			return
		}
		respondError(w, http.StatusInternalServerError, "prediction failed", err)
		return
	}

	respondJSON(w, http.StatusOK, newPredictResponse(result))
}

// Helper functions

// respondJSON encodes before writing the status so an unencodable value
// becomes a 500 instead of an empty response
func respondJSON(w http.ResponseWriter, status int, data any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		logger.Error("failed to encode response", "error", err)
		logger.ErrorHttp5xx()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"failed to encode response"}` + "\n"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		logger.Error("failed to write response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	countStatus(status)

	response := ErrorResponse{Error: message}
	if err != nil {
		response.Details = err.Error()
	}
	respondJSON(w, status, response)
}

func countStatus(status int) {
	switch {
	case status >= 500:
		logger.ErrorHttp5xx()
	case status >= 400:
		logger.WarnHttp4xx(status)
	}
}

type config struct {
	Port            string
	ModelPath       string
	LogLevel        slog.Level
	ErrorSampleRate int
}

func loadConfig() (config, error) {
	cfg := config{
		Port:            os.Getenv("PORT"),
		ModelPath:       os.Getenv("MODEL_PATH"),
		ErrorSampleRate: 1,
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.ModelPath == "" {
		cfg.ModelPath = model.DefaultPath
	}

	level, err := logger.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		return cfg, err
	}
	cfg.LogLevel = level

	if raw := os.Getenv("ERROR_SAMPLE_RATE"); raw != "" {
		rate, err := strconv.Atoi(raw)
		if err != nil || rate < 1 {
			return cfg, fmt.Errorf("invalid ERROR_SAMPLE_RATE %q: must be a positive integer", raw)
		}
		cfg.ErrorSampleRate = rate
	}

	return cfg, nil
}

func main() {
	// Optional .env next to the binary
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("failed to read .env", "error", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		logger.Fatal("invalid configuration", "error", err)
	}
	logger.SetLevel(cfg.LogLevel)
	logger.SetSampleRate(cfg.ErrorSampleRate)

	server, err := NewServer(scoring.NewLoader(cfg.ModelPath))
	if err != nil {
		logger.Fatal("failed to create server", "error", err)
	}
	if server.loadErr != nil {
		logger.Error("predictions disabled until the model artifact is fixed and the server restarted",
			"path", cfg.ModelPath,
			"error", server.loadErr,
		)
	}

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed to start", "error", err)
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("server stopped")
}
