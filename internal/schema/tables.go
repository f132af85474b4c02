package schema

import "fmt"

// The allow-list is closed on purpose: table definitions are hard-coded
// rather than discovered from the catalog, so a schema migration can never
// silently widen what the agent may query.
func allowedTables() []Table {
	return []Table{
		{
			Name:        "agreements",
			Description: "Loans and agreements between the user and their contacts",
			Columns: []Column{
				{Name: "id", Type: "UUID", Nullable: false, Description: "Unique loan id"},
				{Name: "tenant_id", Type: "UUID", Nullable: false, Description: "Tenant id (MANDATORY in WHERE)"},
				{Name: "tenant_contact_id", Type: "UUID", Nullable: false, Description: "Contact receiving the loan (borrower)"},
				{Name: "lender_tenant_contact_id", Type: "UUID", Nullable: false, Description: "Contact granting the loan (lender)"},
				{Name: "type", Type: "agreement_type", Nullable: false, Description: "Agreement type: \"loan\" or \"service\""},
				{Name: "status", Type: "agreement_status", Nullable: false, Description: "Status: \"active\", \"completed\" or \"cancelled\""},
				{Name: "amount", Type: "NUMERIC", Nullable: false, Description: "Loan amount in Chilean pesos"},
				{Name: "due_date", Type: "DATE", Nullable: true, Description: "Loan due date"},
				{Name: "description", Type: "TEXT", Nullable: true, Description: "Loan description or notes"},
				{Name: "created_at", Type: "TIMESTAMPTZ", Nullable: false, Description: "Record creation time"},
			},
			PrimaryKey: "id",
			ForeignKeys: []ForeignKey{
				{Column: "tenant_id", References: "tenants(id)", Description: "Owning tenant"},
				{Column: "tenant_contact_id", References: "tenant_contacts(id)", Description: "Contact receiving the loan (borrower)"},
				{Column: "lender_tenant_contact_id", References: "tenant_contacts(id)", Description: "Contact granting the loan (lender)"},
			},
		},
		{
			Name:        "tenant_contacts",
			Description: "Contacts of the tenant (includes the user themselves)",
			Columns: []Column{
				{Name: "id", Type: "UUID", Nullable: false, Description: "Unique contact id within the tenant"},
				{Name: "tenant_id", Type: "UUID", Nullable: false, Description: "Tenant id (MANDATORY in WHERE)"},
				{Name: "contact_profile_id", Type: "UUID", Nullable: false, Description: "Reference to the global contact profile"},
				{Name: "name", Type: "VARCHAR", Nullable: false, Description: "Contact name as customized by the tenant"},
				{Name: "nickname", Type: "VARCHAR", Nullable: true, Description: "Nickname or short name"},
				{Name: "opt_in_status", Type: "opt_in_status", Nullable: false, Description: "WhatsApp opt-in status"},
				{Name: "created_at", Type: "TIMESTAMPTZ", Nullable: false, Description: "Record creation time"},
			},
			PrimaryKey: "id",
			ForeignKeys: []ForeignKey{
				{Column: "tenant_id", References: "tenants(id)", Description: "Owning tenant"},
				{Column: "contact_profile_id", References: "contact_profiles(id)", Description: "Global contact profile"},
			},
		},
		{
			Name:        "contact_profiles",
			Description: "Global contact profiles (shared across tenants)",
			Columns: []Column{
				{Name: "id", Type: "UUID", Nullable: false, Description: "Unique profile id"},
				{Name: "phone_e164", Type: "VARCHAR", Nullable: true, Description: "Phone in E.164 format (+56912345678)"},
				{Name: "telegram_id", Type: "BIGINT", Nullable: true, Description: "Telegram id"},
				{Name: "created_at", Type: "TIMESTAMPTZ", Nullable: false, Description: "Record creation time"},
			},
			PrimaryKey:  "id",
			ForeignKeys: nil,
		},
	}
}

func rlsRules(tenantID, callerID string) []string {
	return []string{
		fmt.Sprintf("CRITICAL: every query MUST filter by tenant_id = '%s'", tenantID),
		fmt.Sprintf("The current user is the contact with id = '%s'", callerID),
		fmt.Sprintf("Loans I GRANTED (they owe me): lender_tenant_contact_id = '%s'", callerID),
		fmt.Sprintf("Loans I RECEIVED (I owe): tenant_contact_id = '%s'", callerID),
		"Only these tables may be queried: agreements, tenant_contacts, contact_profiles",
		"No JOINs against: users, tenants, whatsapp_messages, auth.*",
		"status = 'active' marks loans not yet returned",
		"status = 'completed' marks returned/settled loans",
		"due_date < CURRENT_DATE marks overdue loans",
		"type = 'loan' filters out service agreements",
	}
}

func fewShotExamples(tenantID, callerID string) []Example {
	return []Example{
		{
			Question: "cuánto me deben en total",
			SQL: fmt.Sprintf(`SELECT SUM(amount) as total_owed
FROM agreements
WHERE tenant_id = '%s'
  AND type = 'loan'
  AND status = 'active'
  AND lender_tenant_contact_id = '%s'`, tenantID, callerID),
			Explanation: "Sum of active loans where I am the lender",
		},
		{
			Question: "cuánto le debo a Caty",
			SQL: fmt.Sprintf(`SELECT SUM(a.amount) as total_owed
FROM agreements a
JOIN tenant_contacts tc ON tc.id = a.lender_tenant_contact_id
WHERE a.tenant_id = '%s'
  AND a.type = 'loan'
  AND a.status = 'active'
  AND a.tenant_contact_id = '%s'
  AND tc.name ILIKE '%%caty%%'`, tenantID, callerID),
			Explanation: "Sum of loans where Caty is the lender and I am the borrower",
		},
		{
			Question: "préstamos vencidos",
			SQL: fmt.Sprintf(`SELECT a.id, a.amount, a.due_date,
       tc_borrower.name as borrower_name,
       tc_lender.name as lender_name
FROM agreements a
JOIN tenant_contacts tc_borrower ON tc_borrower.id = a.tenant_contact_id
JOIN tenant_contacts tc_lender ON tc_lender.id = a.lender_tenant_contact_id
WHERE a.tenant_id = '%s'
  AND a.type = 'loan'
  AND a.status = 'active'
  AND a.due_date < CURRENT_DATE
  AND (a.lender_tenant_contact_id = '%s' OR a.tenant_contact_id = '%s')
ORDER BY a.due_date ASC`, tenantID, callerID, callerID),
			Explanation: "Overdue loans where I participate as lender or borrower",
		},
		{
			Question: "contactos con más de 2 préstamos activos",
			SQL: fmt.Sprintf(`SELECT tc.name, COUNT(a.id) as loan_count, SUM(a.amount) as total_amount
FROM tenant_contacts tc
JOIN agreements a ON (a.tenant_contact_id = tc.id OR a.lender_tenant_contact_id = tc.id)
WHERE a.tenant_id = '%s'
  AND a.type = 'loan'
  AND a.status = 'active'
  AND (a.lender_tenant_contact_id = '%s' OR a.tenant_contact_id = '%s')
  AND tc.id != '%s'
GROUP BY tc.id, tc.name
HAVING COUNT(a.id) > 2
ORDER BY loan_count DESC`, tenantID, callerID, callerID, callerID),
			Explanation: "Contacts holding several active loans with me",
		},
	}
}
