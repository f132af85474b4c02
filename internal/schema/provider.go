package schema

import (
	"context"
	"fmt"
	"time"
)

const defaultContactLimit = 50

type Provider struct {
	directory    ContactDirectory
	contactLimit int
	now          func() time.Time
}

func NewProvider(directory ContactDirectory, contactLimit int) (*Provider, error) {
	if directory == nil {
		return nil, fmt.Errorf("contact directory is required")
	}
	if contactLimit <= 0 {
		contactLimit = defaultContactLimit
	}
	return &Provider{directory: directory, contactLimit: contactLimit, now: time.Now}, nil
}

// Snapshot assembles the per-request schema context. A directory failure is
// a hard error: without the contact list no query can be safely generated.
func (p *Provider) Snapshot(ctx context.Context, tenantID, callerID string) (Context, error) {
	if tenantID == "" {
		return Context{}, fmt.Errorf("tenant id is required")
	}
	if callerID == "" {
		return Context{}, fmt.Errorf("caller id is required")
	}

	contacts, err := p.directory.ListContacts(ctx, tenantID, p.contactLimit)
	if err != nil {
		return Context{}, fmt.Errorf("list contacts for tenant %q: %w", tenantID, err)
	}

	return Context{
		Tables:      allowedTables(),
		RLSRules:    rlsRules(tenantID, callerID),
		TenantID:    tenantID,
		CallerID:    callerID,
		Contacts:    contacts,
		Examples:    fewShotExamples(tenantID, callerID),
		CurrentDate: p.now().UTC().Format("2006-01-02"),
	}, nil
}
