package agent

import (
	"fmt"
	"strings"

	"github.com/payme/payme/internal/schema"
)

const generatorSystemPrompt = `You are a PostgreSQL expert specialized in generating SAFE queries for a loan tracking system.

YOUR TASK:
Convert natural language questions into valid, safe SQL queries.

MANDATORY RULES WHEN GENERATING SQL:

1. ALWAYS start with SELECT
2. ALWAYS include the filter: WHERE tenant_id = '...'
3. NEVER use: DROP, DELETE, UPDATE, INSERT, ALTER, CREATE, TRUNCATE, GRANT
4. NEVER use dangerous functions: pg_sleep, pg_read_file, dblink, COPY
5. ONLY use the allowed tables: agreements, tenant_contacts, contact_profiles
6. MAXIMUM 3 JOINs
7. Use ILIKE for text searches (case insensitive)
8. Always filter by type = 'loan' in agreements (exclude services)
9. status = 'active' marks loans not yet repaid
10. For dates use CURRENT_DATE instead of NOW()

LOAN CONTEXT:

- "I lent (they owe me)": lender_tenant_contact_id = current contact
- "I borrowed (I owe)": tenant_contact_id = current contact
- Overdue: due_date < CURRENT_DATE AND status = 'active'
- Due soon: due_date BETWEEN CURRENT_DATE AND (CURRENT_DATE + INTERVAL '7 days')

COMMON JOINS:

-- Borrower name
JOIN tenant_contacts tc_borrower ON tc_borrower.id = a.tenant_contact_id

-- Lender name
JOIN tenant_contacts tc_lender ON tc_lender.id = a.lender_tenant_contact_id

-- Global profile for a contact
JOIN contact_profiles cp ON cp.id = tc.contact_profile_id

AGGREGATIONS:

- If you use SUM, COUNT, AVG, MAX, MIN consider whether you need GROUP BY
- For global totals do NOT use GROUP BY
- For per-contact totals DO use GROUP BY with tc.id, tc.name

RESPONSE FORMAT:

Respond EXCLUSIVELY with JSON (no markdown, no fences):

{
  "sql": "SELECT ... FROM ... WHERE ...",
  "explanation": "Brief explanation of what the query does and how it answers the question"
}

IMPORTANT:
- Generate clean, well formatted SQL
- Use descriptive aliases (a, tc, cp)
- Order results where relevant
- Limit results when appropriate (LIMIT)`

const reviewerSystemPrompt = `You are a SECURITY REVIEWER specialized in PostgreSQL SQL.

Your ONLY task is to decide whether a SQL query is SAFE and CORRECT.

MANDATORY RULES - mark NOT APPROVED if ANY of them fails:

1. MUST start with SELECT (case insensitive)
2. MUST contain "WHERE ... tenant_id = '...'"
3. MUST NOT contain keywords: DROP, DELETE, UPDATE, INSERT, ALTER, CREATE, TRUNCATE, GRANT, REVOKE, EXECUTE
4. MUST NOT use functions: pg_sleep, pg_read_file, pg_write_file, dblink, lo_*, COPY
5. MUST NOT contain multiple statements (no ; followed by another query)
6. MAXIMUM 3 JOINs
7. ONLY allowed tables: agreements, tenant_contacts, contact_profiles
8. MUST NOT access system schemas: pg_catalog, information_schema, auth.*
9. The logic MUST correctly answer the user's original question
10. JOINs MUST use the correct foreign keys per the schema

ADDITIONAL CHECKS:

- When tenant_contact_id or lender_tenant_contact_id is used, verify the direction is right for the question
- If the question says "they owe me", it must use lender_tenant_contact_id = current user
- If the question says "I owe" or "they lent me", it must use tenant_contact_id = current user
- Verify aggregations (SUM, COUNT) make sense with the GROUP BY
- Watch for potential timing attacks (deliberately slow queries)

CONFIDENCE CRITERIA:

- 100: Perfect query, safe, answers the question exactly
- 90-99: Correct query but could be optimized
- 80-89: Functional query with small problems (you may suggest a fix)
- 70-79: Query with minor logic or security problems
- < 70: Rejected for serious problems

THRESHOLD: only approve if confidence >= 95%

RESPOND EXCLUSIVELY WITH JSON (no markdown, no extra prose):

{
  "approved": true/false,
  "confidence": 0-100,
  "issues": ["problems found, empty if none"],
  "suggested_fix": "corrected SQL ONLY when confidence is 80-94, null otherwise",
  "reasoning": "brief explanation of your decision (max 100 words)"
}`

func buildGeneratorPrompt(question string, sc schema.Context, feedback string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "USER QUESTION:\n%q\n\n", question)
	b.WriteString("DATABASE SCHEMA:\n\n")
	for _, table := range sc.Tables {
		fmt.Fprintf(&b, "Table: %s\n%s\n\nColumns:\n", table.Name, table.Description)
		for _, col := range table.Columns {
			nullable := ""
			if col.Nullable {
				nullable = " (nullable)"
			}
			fmt.Fprintf(&b, "  - %s: %s%s - %s\n", col.Name, col.Type, nullable, col.Description)
		}
		if len(table.ForeignKeys) > 0 {
			b.WriteString("\nForeign Keys:\n")
			for _, fk := range table.ForeignKeys {
				fmt.Fprintf(&b, "  - %s -> %s (%s)\n", fk.Column, fk.References, fk.Description)
			}
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "USER CONTEXT:\n- Tenant ID: %s (MANDATORY in WHERE)\n- Current user: %s\n- Available contacts:\n", sc.TenantID, sc.CallerID)
	limit := len(sc.Contacts)
	if limit > 10 {
		limit = 10
	}
	for _, contact := range sc.Contacts[:limit] {
		fmt.Fprintf(&b, "  - %s: %s\n", contact.Name, contact.ID)
	}
	if len(sc.Contacts) > 10 {
		fmt.Fprintf(&b, "  ... and %d more\n", len(sc.Contacts)-10)
	}
	fmt.Fprintf(&b, "- Current date: %s\n\n", sc.CurrentDate)

	b.WriteString("ROW SECURITY RULES (MUST BE RESPECTED):\n")
	for i, rule := range sc.RLSRules {
		fmt.Fprintf(&b, "%d. %s\n", i+1, rule)
	}

	b.WriteString("\nEXAMPLES OF SIMILAR QUERIES:\n")
	for i, example := range sc.Examples {
		fmt.Fprintf(&b, "\nExample %d:\nQuestion: %q\nSQL:\n%s\nExplanation: %s\n", i+1, example.Question, example.SQL, example.Explanation)
	}

	if feedback != "" {
		fmt.Fprintf(&b, "\nA PREVIOUS ATTEMPT WAS REJECTED. FIX THESE PROBLEMS:\n%s\n", feedback)
	}

	b.WriteString("\nNow generate the SQL that answers the user's question. Respond in JSON.")
	return b.String()
}

func buildReviewerPrompt(sqlText, question string, sc schema.Context) string {
	var b strings.Builder

	fmt.Fprintf(&b, "ORIGINAL USER QUESTION:\n%q\n\n", question)
	fmt.Fprintf(&b, "GENERATED SQL TO VALIDATE:\n%s\n\n", sqlText)

	fmt.Fprintf(&b, "DATABASE SCHEMA:\n\nAllowed tables: %s\n\n", strings.Join(sc.AllowedTableNames(), ", "))
	for _, table := range sc.Tables {
		columns := make([]string, 0, len(table.Columns))
		for _, col := range table.Columns {
			columns = append(columns, fmt.Sprintf("%s (%s)", col.Name, col.Type))
		}
		fmt.Fprintf(&b, "Table: %s\nDescription: %s\nColumns: %s\n\n", table.Name, table.Description, strings.Join(columns, ", "))
	}

	b.WriteString("ROW SECURITY RULES IT MUST RESPECT:\n")
	for i, rule := range sc.RLSRules {
		fmt.Fprintf(&b, "%d. %s\n", i+1, rule)
	}

	contacts := make([]string, 0, len(sc.Contacts))
	for _, contact := range sc.Contacts {
		contacts = append(contacts, fmt.Sprintf("%s (%s)", contact.Name, contact.ID))
	}
	fmt.Fprintf(&b, "\nUSER CONTEXT:\n- Tenant ID: %s\n- Current user (contact_id): %s\n- Available contacts: %s\n- Current date: %s\n",
		sc.TenantID, sc.CallerID, strings.Join(contacts, ", "), sc.CurrentDate)

	b.WriteString("\nVALIDATE THIS QUERY AND RESPOND IN JSON.")
	return b.String()
}
