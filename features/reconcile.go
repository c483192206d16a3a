package features

import (
	"math"
	"strings"
)

// Column names the reconciler knows how to fill
const (
	ColumnARPU     = "arpu"
	ContractPrefix = "contract_type_"
)

// Reconcile builds the feature row a model trained on expected expects from
// the form input. Columns the form cannot fill stay at zero. The returned
// row has exactly the expected columns, in order.
func Reconcile(in RawInput, expected []string) *Row {
	cells := make(map[string]any, len(expected))
	for _, c := range expected {
		cells[c] = 0
	}

	if _, ok := cells[ColumnTenure]; ok {
		cells[ColumnTenure] = in.TenureMonths
	}

	// arpu stands in for monthly charges
	if _, ok := cells[ColumnARPU]; ok {
		cells[ColumnARPU] = arpu(in.MonthlyCharges)
	}

	for _, c := range MatchedContractColumns(in.ContractType, expected) {
		cells[c] = 1
	}

	row := NewRow(expected)
	for _, c := range expected {
		row.Set(c, Coerce(cells[c]))
	}
	return row
}

// Passthrough returns the form input as a row without any reconciliation.
// Used when the model does not declare the columns it was trained on.
func Passthrough(in RawInput) *Row {
	row := NewRow([]string{ColumnTenure, ColumnMonthlyCharges, ColumnTotalCharges, ColumnContractType})
	row.Set(ColumnTenure, Coerce(in.TenureMonths))
	row.Set(ColumnMonthlyCharges, Coerce(in.MonthlyCharges))
	row.Set(ColumnTotalCharges, Coerce(in.TotalCharges))
	row.Set(ColumnContractType, Coerce(in.ContractType))
	return row
}

// MatchedContractColumns returns the contract one-hot columns of expected
// that match the selected contract type. The match is a case-insensitive
// containment test in either direction, so it may select zero or several
// columns depending on how the training encoder named its categories.
func MatchedContractColumns(selection string, expected []string) []string {
	sel := strings.ToLower(selection)

	var matched []string
	for _, c := range expected {
		if !strings.HasPrefix(c, ContractPrefix) {
			continue
		}
		key := strings.ToLower(strings.TrimPrefix(c, ContractPrefix))
		if strings.Contains(sel, key) || strings.Contains(key, sel) {
			matched = append(matched, c)
		}
	}
	return matched
}

func arpu(monthly float64) float64 {
	if math.IsNaN(monthly) || math.IsInf(monthly, 0) {
		return 0.0
	}
	return monthly
}
