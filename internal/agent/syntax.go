package agent

import (
	"fmt"
	"regexp"
	"strings"
)

// First line of defense: deterministic, model-free and database-free.
// Runs before the semantic review and again right before execution.

const (
	defaultMaxSQLLength = 2000
	defaultMaxJoins     = 3
)

var destructiveKeywords = []string{
	"DROP", "DELETE", "UPDATE", "INSERT", "ALTER", "CREATE",
	"TRUNCATE", "GRANT", "REVOKE", "EXECUTE", "CALL",
}

var dangerousFunctions = []string{
	"pg_sleep", "pg_read_file", "pg_write_file", "pg_ls_dir",
	"dblink", "dblink_exec", "dblink_connect",
	"lo_import", "lo_export", "lo_unlink",
	"copy", "pg_catalog", "pg_stat",
}

var systemSchemas = []string{"pg_catalog", "information_schema", "pg_temp", "auth"}

var defaultAllowedTables = []string{"agreements", "tenant_contacts", "contact_profiles"}

var (
	selectPrefixPattern = regexp.MustCompile(`(?i)^\s*select`)
	tableRefPattern     = regexp.MustCompile(`(?i)(?:from|join)\s+"?(\w+)"?`)
	joinPattern         = regexp.MustCompile(`(?i)\bjoin\b`)
	aggregatePattern    = regexp.MustCompile(`(?i)\b(sum|count|avg|max|min)\s*\(`)
	groupByPattern      = regexp.MustCompile(`(?i)\bgroup\s+by\b`)
	unionPattern        = regexp.MustCompile(`(?i)\bunion\b`)
	lineCommentPattern  = regexp.MustCompile(`--[^\n]*`)
	blockCommentPattern = regexp.MustCompile(`(?s)/\*.*?\*/`)
	whitespacePattern   = regexp.MustCompile(`\s+`)
)

type SyntaxOptions struct {
	RequiredTenantID string
	MaxJoins         int
	MaxLength        int
	AllowedTables    []string
}

type SyntaxResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// ValidateSyntax checks one candidate statement against the fixed policy
// rule set. All errors are blocking; warnings are informational only.
func ValidateSyntax(sqlText string, opts SyntaxOptions) SyntaxResult {
	var errs, warnings []string

	maxLength := opts.MaxLength
	if maxLength <= 0 {
		maxLength = defaultMaxSQLLength
	}
	maxJoins := opts.MaxJoins
	if maxJoins <= 0 {
		maxJoins = defaultMaxJoins
	}
	allowedTables := opts.AllowedTables
	if len(allowedTables) == 0 {
		allowedTables = defaultAllowedTables
	}

	trimmed := strings.TrimSpace(sqlText)
	normalized := strings.ToLower(trimmed)

	if trimmed == "" {
		return SyntaxResult{Valid: false, Errors: []string{"empty query"}}
	}
	if len(trimmed) > maxLength {
		errs = append(errs, fmt.Sprintf("query too long (%d chars, max %d)", len(trimmed), maxLength))
	}

	if !selectPrefixPattern.MatchString(trimmed) {
		errs = append(errs, "query must start with SELECT")
	}

	for _, keyword := range destructiveKeywords {
		if wholeWordMatch(normalized, strings.ToLower(keyword)) {
			errs = append(errs, fmt.Sprintf("forbidden keyword detected: %s", keyword))
		}
	}

	for _, fn := range dangerousFunctions {
		if wholeWordMatch(normalized, fn) {
			errs = append(errs, fmt.Sprintf("dangerous function detected: %s", fn))
		}
	}

	if !strings.Contains(normalized, "tenant_id") || !strings.Contains(normalized, "where") {
		errs = append(errs, "CRITICAL: missing tenant_id filter in WHERE clause")
	} else {
		tenantPattern := regexp.MustCompile(`(?i)tenant_id\s*=\s*['"]` + regexp.QuoteMeta(opts.RequiredTenantID) + `['"]`)
		if opts.RequiredTenantID == "" || !tenantPattern.MatchString(trimmed) {
			errs = append(errs, fmt.Sprintf("CRITICAL: tenant_id does not match the expected value (%s)", opts.RequiredTenantID))
		}
	}

	// A ';' with anything after it means statement stacking.
	withoutTrailing := strings.TrimRight(trimmed, " \t\r\n")
	if idx := strings.Index(withoutTrailing, ";"); idx != -1 && idx < len(withoutTrailing)-1 {
		errs = append(errs, "multiple statements detected (;): only one query is allowed")
	}

	joinCount := len(joinPattern.FindAllString(normalized, -1))
	if joinCount > maxJoins {
		errs = append(errs, fmt.Sprintf("too many JOINs (%d, max %d)", joinCount, maxJoins))
	}

	allowed := make(map[string]bool, len(allowedTables))
	for _, table := range allowedTables {
		allowed[strings.ToLower(table)] = true
	}
	for _, table := range extractTables(normalized) {
		if !allowed[table] {
			errs = append(errs, fmt.Sprintf("table not allowed: %s (allowed: %s)", table, strings.Join(allowedTables, ", ")))
		}
	}

	if strings.Contains(normalized, "--") || strings.Contains(normalized, "/*") {
		warnings = append(warnings, "query contains comments; manual review recommended")
	}
	if unionPattern.MatchString(normalized) {
		warnings = append(warnings, "query contains UNION; verify it is not a bypass attempt")
	}

	for _, schemaName := range systemSchemas {
		pattern := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(schemaName) + `\.`)
		if pattern.MatchString(normalized) {
			errs = append(errs, fmt.Sprintf("access to system schema forbidden: %s", schemaName))
		}
	}

	openParens := strings.Count(normalized, "(")
	closeParens := strings.Count(normalized, ")")
	if openParens != closeParens {
		errs = append(errs, "unbalanced parentheses")
	}
	if openParens > 10 {
		warnings = append(warnings, "deeply nested subqueries; may cause timeouts")
	}

	if aggregatePattern.MatchString(normalized) && !groupByPattern.MatchString(normalized) && joinCount > 0 {
		warnings = append(warnings, "aggregation without GROUP BY combined with JOINs; verify the expected result")
	}

	return SyntaxResult{Valid: len(errs) == 0, Errors: errs, Warnings: warnings}
}

func wholeWordMatch(haystack, word string) bool {
	pattern := regexp.MustCompile(`\b` + regexp.QuoteMeta(word) + `\b`)
	return pattern.MatchString(haystack)
}

func extractTables(normalizedSQL string) []string {
	matches := tableRefPattern.FindAllStringSubmatch(normalizedSQL, -1)
	seen := make(map[string]bool, len(matches))
	tables := make([]string, 0, len(matches))
	for _, match := range matches {
		name := strings.ToLower(match[1])
		if seen[name] {
			continue
		}
		seen[name] = true
		tables = append(tables, name)
	}
	return tables
}

// SanitizeForLog strips comments, collapses whitespace and truncates the
// statement so raw candidates never bloat operator logs. Logging only,
// never an input to execution.
func SanitizeForLog(sqlText string) string {
	sanitized := lineCommentPattern.ReplaceAllString(sqlText, "")
	sanitized = blockCommentPattern.ReplaceAllString(sanitized, "")
	sanitized = strings.TrimSpace(whitespacePattern.ReplaceAllString(sanitized, " "))
	if len(sanitized) > 500 {
		sanitized = sanitized[:500] + "... (truncated)"
	}
	return sanitized
}
