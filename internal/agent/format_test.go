package agent

import (
	"strings"
	"testing"
)

func TestFormatCurrencyChileanGrouping(t *testing.T) {
	got := FormatCurrency(1234567)
	if got != "$1.234.567" {
		t.Fatalf("FormatCurrency(1234567) = %q, want $1.234.567", got)
	}
	if got := FormatCurrency(950); got != "$950" {
		t.Fatalf("FormatCurrency(950) = %q", got)
	}
}

func TestFormatAnswerEmptyRows(t *testing.T) {
	got := FormatAnswer(nil, ShapeSingleValue)
	if got != noResultsMessage {
		t.Fatalf("empty rows = %q", got)
	}
}

func TestFormatAnswerSingleMoneyValue(t *testing.T) {
	rows := []map[string]any{{"total_amount": float64(50000)}}
	got := FormatAnswer(rows, ShapeSingleValue)
	if got != "$50.000" {
		t.Fatalf("single value = %q, want $50.000", got)
	}
}

func TestFormatAnswerList(t *testing.T) {
	rows := []map[string]any{
		{"name": "Caty", "amount": float64(50000)},
		{"name": "Pedro", "amount": float64(20000)},
	}
	got := FormatAnswer(rows, ShapeList)
	if !strings.Contains(got, "1. ") || !strings.Contains(got, "2. ") {
		t.Fatalf("list not numbered: %q", got)
	}
	if !strings.Contains(got, "$50.000") {
		t.Fatalf("amounts not rendered as currency: %q", got)
	}
	if !strings.Contains(got, "Caty") {
		t.Fatalf("names missing: %q", got)
	}
}

func TestFormatAnswerComparison(t *testing.T) {
	rows := []map[string]any{
		{"direction": "me deben", "total": float64(80000)},
		{"direction": "debo", "total": float64(15000)},
	}
	got := FormatAnswer(rows, ShapeComparison)
	if !strings.Contains(got, " vs ") {
		t.Fatalf("comparison missing separator: %q", got)
	}
}

func TestFormatAnswerNilValue(t *testing.T) {
	rows := []map[string]any{{"due_date": nil}}
	got := FormatAnswer(rows, ShapeSingleValue)
	if got != "-" {
		t.Fatalf("nil value = %q, want -", got)
	}
}

func TestDetectShape(t *testing.T) {
	single := []map[string]any{{"total": float64(1)}}
	if got := DetectShape(single); got != ShapeSingleValue {
		t.Fatalf("single = %s", got)
	}
	pair := []map[string]any{
		{"total": float64(1)},
		{"total": float64(2)},
	}
	if got := DetectShape(pair); got != ShapeComparison {
		t.Fatalf("pair = %s", got)
	}
	many := []map[string]any{
		{"name": "a", "amount": float64(1), "due_date": "2026-01-01"},
		{"name": "b", "amount": float64(2), "due_date": "2026-02-01"},
		{"name": "c", "amount": float64(3), "due_date": "2026-03-01"},
	}
	if got := DetectShape(many); got != ShapeList {
		t.Fatalf("many = %s", got)
	}
}
