package features

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Contract types offered on the form
const (
	ContractMonthToMonth = "Month-to-month"
	ContractOneYear      = "One year"
	ContractTwoYear      = "Two year"
)

// ContractTypes lists the selectable contract types in display order
var ContractTypes = []string{ContractMonthToMonth, ContractOneYear, ContractTwoYear}

// Raw input column names, used when the input is passed to the model unchanged
const (
	ColumnTenure         = "tenure_months"
	ColumnMonthlyCharges = "monthly_charges"
	ColumnTotalCharges   = "total_charges"
	ColumnContractType   = "contract_type"
)

// RawInput holds the customer attributes entered on the form.
// TotalCharges is collected but not mapped onto any model column.
type RawInput struct {
	TenureMonths   int     `json:"tenure_months"`
	MonthlyCharges float64 `json:"monthly_charges"`
	TotalCharges   float64 `json:"total_charges"`
	ContractType   string  `json:"contract_type"`
}

// DefaultInput returns the values the form is pre-filled with
func DefaultInput() RawInput {
	return RawInput{
		TenureMonths:   1,
		MonthlyCharges: 50.0,
		TotalCharges:   50.0,
		ContractType:   ContractMonthToMonth,
	}
}

// Value is one cell of a feature row. It is numeric unless coercion failed,
// in which case the original text is kept as a category.
type Value struct {
	Number      float64
	Category    string
	Categorical bool
}

// Numeric returns a numeric cell
func Numeric(f float64) Value {
	return Value{Number: f}
}

// Categorical returns a categorical cell
func Categorical(s string) Value {
	return Value{Category: s, Categorical: true}
}

// Coerce converts an arbitrary value into a cell, preferring a numeric
// representation and falling back to a categorical one.
func Coerce(v any) Value {
	switch x := v.(type) {
	case nil:
		return Numeric(0)
	case Value:
		return x
	case int:
		return Numeric(float64(x))
	case int32:
		return Numeric(float64(x))
	case int64:
		return Numeric(float64(x))
	case uint64:
		return Numeric(float64(x))
	case float32:
		return Numeric(float64(x))
	case float64:
		return Numeric(x)
	case bool:
		if x {
			return Numeric(1)
		}
		return Numeric(0)
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(x), 64); err == nil {
			return Numeric(f)
		}
		return Categorical(x)
	default:
		return Categorical(fmt.Sprint(v))
	}
}

// Float returns the numeric value of the cell, false for categorical cells
func (v Value) Float() (float64, bool) {
	if v.Categorical {
		return 0, false
	}
	return v.Number, true
}

// Interface returns the cell as float64 or string
func (v Value) Interface() any {
	if v.Categorical {
		return v.Category
	}
	return v.Number
}

func (v Value) String() string {
	if v.Categorical {
		return v.Category
	}
	if v.Number == math.Trunc(v.Number) && math.Abs(v.Number) < 1e15 {
		return strconv.FormatFloat(v.Number, 'f', -1, 64)
	}
	return strconv.FormatFloat(v.Number, 'g', -1, 64)
}

// Row is a single-row feature vector. Its column set is fixed at creation;
// Set refuses columns outside of it.
type Row struct {
	columns []string
	values  map[string]Value
}

// NewRow creates a row with every column initialised to zero
func NewRow(columns []string) *Row {
	r := &Row{
		columns: make([]string, len(columns)),
		values:  make(map[string]Value, len(columns)),
	}
	copy(r.columns, columns)
	for _, c := range columns {
		r.values[c] = Numeric(0)
	}
	return r
}

// Columns returns the column names in declared order
func (r *Row) Columns() []string {
	out := make([]string, len(r.columns))
	copy(out, r.columns)
	return out
}

// Len returns the number of columns
func (r *Row) Len() int {
	return len(r.columns)
}

// Get returns the value of a column
func (r *Row) Get(column string) (Value, bool) {
	v, ok := r.values[column]
	return v, ok
}

// Set assigns a column. It returns false when the column is not part of the row.
func (r *Row) Set(column string, v Value) bool {
	if _, ok := r.values[column]; !ok {
		return false
	}
	r.values[column] = v
	return true
}

// Map returns the row as column -> float64|string
func (r *Row) Map() map[string]any {
	out := make(map[string]any, len(r.values))
	for c, v := range r.values {
		out[c] = v.Interface()
	}
	return out
}
