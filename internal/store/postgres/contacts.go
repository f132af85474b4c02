package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/payme/payme/internal/schema"
)

// ContactRepository is the tenant-scoped contact directory backing the
// schema snapshot. The tenant filter is applied server-side on every
// query; there is no unscoped variant.
type ContactRepository struct {
	db *sql.DB
}

func NewContactRepository(db *sql.DB) *ContactRepository {
	return &ContactRepository{db: db}
}

func (r *ContactRepository) HealthCheck(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping db: %w", err)
	}
	return nil
}

func (r *ContactRepository) ListContacts(ctx context.Context, tenantID string, limit int) ([]schema.Contact, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant id is required")
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT id, name
FROM tenant_contacts
WHERE tenant_id = $1
ORDER BY name ASC
LIMIT $2`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	contacts := make([]schema.Contact, 0)
	for rows.Next() {
		var contact schema.Contact
		if err := rows.Scan(&contact.ID, &contact.Name); err != nil {
			return nil, fmt.Errorf("scan contact row: %w", err)
		}
		contacts = append(contacts, contact)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contact rows: %w", err)
	}
	return contacts, nil
}
