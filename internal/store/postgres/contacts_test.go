package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func TestListContactsScopedToTenant(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewContactRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`
SELECT id, name
FROM tenant_contacts
WHERE tenant_id = $1
ORDER BY name ASC
LIMIT $2`)).
		WithArgs("tenant-1", 50).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
			AddRow("contact-2", "Caty").
			AddRow("contact-7", "Pedro"))

	contacts, err := repo.ListContacts(context.Background(), "tenant-1", 50)
	if err != nil {
		t.Fatalf("ListContacts() error = %v", err)
	}
	if len(contacts) != 2 {
		t.Fatalf("len(contacts) = %d", len(contacts))
	}
	if contacts[0].Name != "Caty" || contacts[0].ID != "contact-2" {
		t.Fatalf("first contact = %+v", contacts[0])
	}
	assertSQLMock(t, mock)
}

func TestListContactsDefaultsLimit(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewContactRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM tenant_contacts")).
		WithArgs("tenant-1", 50).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))

	contacts, err := repo.ListContacts(context.Background(), "tenant-1", 0)
	if err != nil {
		t.Fatalf("ListContacts() error = %v", err)
	}
	if len(contacts) != 0 {
		t.Fatalf("len(contacts) = %d", len(contacts))
	}
	assertSQLMock(t, mock)
}

func TestListContactsRequiresTenant(t *testing.T) {
	db, _ := newSQLMock(t)
	repo := NewContactRepository(db)

	if _, err := repo.ListContacts(context.Background(), "", 10); err == nil {
		t.Fatal("expected error for missing tenant id")
	}
}

func TestListContactsPropagatesQueryError(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewContactRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM tenant_contacts")).
		WithArgs("tenant-1", 10).
		WillReturnError(errors.New("connection reset"))

	if _, err := repo.ListContacts(context.Background(), "tenant-1", 10); err == nil {
		t.Fatal("expected query error to surface")
	}
	assertSQLMock(t, mock)
}

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}
