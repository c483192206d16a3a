package features

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
)

// MaxTenureMonths is the upper bound accepted for tenure
const MaxTenureMonths = 72

// ValidationError reports a form field that failed validation
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// ValidateInput checks the ranges the form enforces.
// Returns the first violation found, nil if the input is valid.
func ValidateInput(in RawInput) error {
	if in.TenureMonths < 0 || in.TenureMonths > MaxTenureMonths {
		return &ValidationError{
			Field:   ColumnTenure,
			Message: fmt.Sprintf("must be between 0 and %d, got %d", MaxTenureMonths, in.TenureMonths),
		}
	}

	if err := validateCharge(ColumnMonthlyCharges, in.MonthlyCharges); err != nil {
		return err
	}
	if err := validateCharge(ColumnTotalCharges, in.TotalCharges); err != nil {
		return err
	}

	if !isContractType(in.ContractType) {
		return &ValidationError{
			Field:   ColumnContractType,
			Message: fmt.Sprintf("must be one of %s, got %q", strings.Join(ContractTypes, ", "), in.ContractType),
		}
	}

	return nil
}

// ParseForm reads a RawInput from submitted form values and validates it
func ParseForm(values url.Values) (RawInput, error) {
	var in RawInput

	tenure := strings.TrimSpace(values.Get(ColumnTenure))
	n, err := strconv.Atoi(tenure)
	if err != nil {
		return in, &ValidationError{Field: ColumnTenure, Message: fmt.Sprintf("%q is not a whole number", tenure)}
	}
	in.TenureMonths = n

	if in.MonthlyCharges, err = parseCharge(values, ColumnMonthlyCharges); err != nil {
		return in, err
	}
	if in.TotalCharges, err = parseCharge(values, ColumnTotalCharges); err != nil {
		return in, err
	}

	in.ContractType = strings.TrimSpace(values.Get(ColumnContractType))

	return in, ValidateInput(in)
}

func parseCharge(values url.Values, field string) (float64, error) {
	raw := strings.TrimSpace(values.Get(field))
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, &ValidationError{Field: field, Message: fmt.Sprintf("%q is not a number", raw)}
	}
	return f, nil
}

func validateCharge(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return &ValidationError{Field: field, Message: "must be a finite number"}
	}
	if v < 0 {
		return &ValidationError{Field: field, Message: fmt.Sprintf("must be >= 0, got %g", v)}
	}
	return nil
}

func isContractType(s string) bool {
	for _, c := range ContractTypes {
		if s == c {
			return true
		}
	}
	return false
}
