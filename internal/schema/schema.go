package schema

import "context"

type Column struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Nullable    bool   `json:"nullable"`
	Description string `json:"description"`
}

type ForeignKey struct {
	Column      string `json:"column"`
	References  string `json:"references"`
	Description string `json:"description"`
}

type Table struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Columns     []Column     `json:"columns"`
	PrimaryKey  string       `json:"primary_key"`
	ForeignKeys []ForeignKey `json:"foreign_keys"`
}

type Contact struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Example struct {
	Question    string `json:"question"`
	SQL         string `json:"sql"`
	Explanation string `json:"explanation"`
}

// Context is the immutable per-request snapshot handed to the generator
// and the semantic reviewer. It carries everything needed to produce and
// judge a query without touching the database again.
type Context struct {
	Tables      []Table   `json:"tables"`
	RLSRules    []string  `json:"rls_rules"`
	TenantID    string    `json:"tenant_id"`
	CallerID    string    `json:"caller_id"`
	Contacts    []Contact `json:"contacts"`
	Examples    []Example `json:"examples"`
	CurrentDate string    `json:"current_date"`
}

func (c Context) AllowedTableNames() []string {
	names := make([]string, 0, len(c.Tables))
	for _, table := range c.Tables {
		names = append(names, table.Name)
	}
	return names
}

// ContactDirectory resolves the caller's known contacts. Implementations
// must scope lookups to exactly one tenant.
type ContactDirectory interface {
	ListContacts(ctx context.Context, tenantID string, limit int) ([]Contact, error)
}
