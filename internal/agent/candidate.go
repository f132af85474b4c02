package agent

import (
	"regexp"
	"strings"
)

// ResultShape tells the formatter how to present the executed rows.
type ResultShape string

const (
	ShapeSingleValue ResultShape = "single_value"
	ShapeList        ResultShape = "list"
	ShapeAggregation ResultShape = "aggregation"
	ShapeComparison  ResultShape = "comparison"
)

// Complexity is a coarse label attached to every candidate for
// observability and audit records.
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

// ParseShape maps a caller-supplied shape name to its enum value. An
// empty name is valid and means the shape should be detected from the
// result rows.
func ParseShape(name string) (ResultShape, bool) {
	switch ResultShape(name) {
	case "", ShapeSingleValue, ShapeList, ShapeAggregation, ShapeComparison:
		return ResultShape(name), true
	}
	return "", false
}

// GeneratedCandidate is one proposed statement from the generator model,
// before any validation has run.
type GeneratedCandidate struct {
	SQL         string
	Explanation string
	Complexity  Complexity
}

var (
	ctePattern      = regexp.MustCompile(`(?i)\bwith\s+\w+\s+as\b`)
	subqueryPattern = regexp.MustCompile(`(?i)\(\s*select\b`)
)

// EstimateComplexity classifies a statement by its structural features.
func EstimateComplexity(sqlText string) Complexity {
	normalized := strings.ToLower(sqlText)
	joins := len(joinPattern.FindAllString(normalized, -1))
	subqueries := len(subqueryPattern.FindAllString(normalized, -1))

	if ctePattern.MatchString(normalized) || subqueries > 2 || joins > 2 {
		return ComplexityComplex
	}
	if joins > 0 || aggregatePattern.MatchString(normalized) || subqueries > 0 {
		return ComplexityModerate
	}
	return ComplexitySimple
}
