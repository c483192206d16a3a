package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/liamcoop/churn/features"
	"github.com/liamcoop/churn/internal/logger"
	"github.com/liamcoop/churn/model"
	"github.com/liamcoop/churn/scoring"
)

func main() {
	var modelPath string
	var command string
	var in features.RawInput

	flag.StringVar(&modelPath, "model", "", "Path to the model artifact (default MODEL_PATH or model.json)")
	flag.StringVar(&command, "command", "schema", "Command: schema, align, predict")
	flag.IntVar(&in.TenureMonths, "tenure", 1, "Tenure in months")
	flag.Float64Var(&in.MonthlyCharges, "monthly", 50, "Monthly charges")
	flag.Float64Var(&in.TotalCharges, "total", 50, "Total charges")
	flag.StringVar(&in.ContractType, "contract", features.ContractMonthToMonth, "Contract type")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("failed to read .env", "error", err)
	}
	// .env may set LOG_LEVEL and ERROR_SAMPLE_RATE
	if err := logger.ApplyEnv(); err != nil {
		logger.Warn("invalid logging configuration", "error", err)
	}

	// Check for model path from flag or environment
	if modelPath == "" {
		modelPath = os.Getenv("MODEL_PATH")
	}
	if modelPath == "" {
		modelPath = model.DefaultPath
	}

	predictor, err := scoring.NewLoader(modelPath).Load()
	if err != nil {
		logger.Fatal("failed to load model", "path", modelPath, "error", err)
	}

	// Execute command
	switch command {
	case "schema":
		names, ok := predictor.Schema()
		if !ok {
			fmt.Println("Model declares no expected columns; input is passed through unchanged")
			return
		}
		fmt.Printf("Model expects %d columns:\n", len(names))
		for _, n := range names {
			fmt.Printf("  %s\n", n)
		}
		if matched := features.MatchedContractColumns(in.ContractType, names); len(matched) != 1 {
			fmt.Printf("Contract type %q matches %d columns: %v\n", in.ContractType, len(matched), matched)
		}

	case "align":
		if err := features.ValidateInput(in); err != nil {
			logger.Fatal("invalid input", "error", err)
		}
		printJSON(predictor.Align(in).Map())

	case "predict":
		if err := features.ValidateInput(in); err != nil {
			logger.Fatal("invalid input", "error", err)
		}
		result, err := predictor.Predict(in)
		if err != nil {
			logger.Fatal("prediction failed", "error", err)
		}
		fmt.Println(result.Message())
		fmt.Printf("Raw prediction: %s\n", result.Prediction)

	default:
		logger.Fatal("unknown command (use: schema, align, predict)", "command", command)
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		logger.Fatal("failed to encode output", "error", err)
	}
}
