package agent

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Result rows arrive as flat maps from the execution gateway. The
// formatter turns them into a short natural-language answer in the
// user's language; amounts are rendered as Chilean pesos.

const noResultsMessage = "No encontré resultados para tu pregunta."

var clPrinter = message.NewPrinter(language.MustParse("es-CL"))

var moneyColumnHints = []string{"amount", "total", "sum", "balance", "monto", "deuda"}

// FormatAnswer renders executed rows according to the detected result
// shape. It never errors: malformed rows degrade to a generic listing.
func FormatAnswer(rows []map[string]any, shape ResultShape) string {
	if len(rows) == 0 {
		return noResultsMessage
	}

	switch shape {
	case ShapeSingleValue, ShapeAggregation:
		if len(rows) == 1 && len(rows[0]) == 1 {
			return formatSingleValue(rows[0])
		}
		return formatList(rows)
	case ShapeComparison:
		if len(rows) == 2 {
			return formatComparison(rows)
		}
		return formatList(rows)
	default:
		return formatList(rows)
	}
}

// DetectShape classifies executed rows when the generator did not
// commit to a shape up front.
func DetectShape(rows []map[string]any) ResultShape {
	switch {
	case len(rows) == 1 && len(rows[0]) == 1:
		return ShapeSingleValue
	case len(rows) == 2 && sameColumns(rows[0], rows[1]) && len(rows[0]) <= 2:
		return ShapeComparison
	default:
		return ShapeList
	}
}

func sameColumns(a, b map[string]any) bool {
	if len(a) != len(b) {
		return false
	}
	for key := range a {
		if _, ok := b[key]; !ok {
			return false
		}
	}
	return true
}

func formatSingleValue(row map[string]any) string {
	for column, value := range row {
		return formatValue(column, value)
	}
	return noResultsMessage
}

func formatComparison(rows []map[string]any) string {
	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		lines = append(lines, formatRow(row))
	}
	return strings.Join(lines, " vs ")
}

func formatList(rows []map[string]any) string {
	var b strings.Builder
	for i, row := range rows {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d. %s", i+1, formatRow(row))
	}
	return b.String()
}

func formatRow(row map[string]any) string {
	columns := make([]string, 0, len(row))
	for column := range row {
		columns = append(columns, column)
	}
	sort.Strings(columns)

	parts := make([]string, 0, len(columns))
	for _, column := range columns {
		parts = append(parts, fmt.Sprintf("%s: %s", column, formatValue(column, row[column])))
	}
	return strings.Join(parts, ", ")
}

func formatValue(column string, value any) string {
	if value == nil {
		return "-"
	}
	switch v := value.(type) {
	case float64:
		if isMoneyColumn(column) {
			return FormatCurrency(v)
		}
		return clPrinter.Sprintf("%v", number.Decimal(v))
	case int64:
		if isMoneyColumn(column) {
			return FormatCurrency(float64(v))
		}
		return clPrinter.Sprintf("%v", number.Decimal(v))
	case bool:
		if v {
			return "sí"
		}
		return "no"
	default:
		return fmt.Sprintf("%v", v)
	}
}

func isMoneyColumn(column string) bool {
	lowered := strings.ToLower(column)
	for _, hint := range moneyColumnHints {
		if strings.Contains(lowered, hint) {
			return true
		}
	}
	return false
}

// FormatCurrency renders an amount in Chilean pesos, thousands
// separated and without cents.
func FormatCurrency(amount float64) string {
	return clPrinter.Sprintf("$%v", number.Decimal(amount, number.MaxFractionDigits(0)))
}
