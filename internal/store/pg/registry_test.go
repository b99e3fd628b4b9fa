package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/forgeerp/forgeerp/internal/registry"
)

func newMock(t *testing.T) (*RegistryStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &RegistryStore{db: db}, mock
}

func TestInstallInsertsFreshRow(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery("select 1 from modules").
		WithArgs("mod-1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectQuery("select id, is_active, created_at from client_modules").
		WithArgs("client-1", "mod-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "is_active", "created_at"}))
	mock.ExpectExec("insert into client_modules").
		WithArgs(sqlmock.AnyArg(), "client-1", "mod-1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	inst, err := store.Install(context.Background(), "client-1", "mod-1", map[string]any{"dc": "fsn1"})
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if inst.ID == "" || !inst.IsActive {
		t.Fatalf("expected fresh active installation, got %+v", inst)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInstallConflictsOnActiveRow(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery("select 1 from modules").
		WithArgs("mod-1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectQuery("select id, is_active, created_at from client_modules").
		WithArgs("client-1", "mod-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "is_active", "created_at"}).
			AddRow("inst-1", true, time.Now()))
	mock.ExpectRollback()

	if _, err := store.Install(context.Background(), "client-1", "mod-1", nil); !errors.Is(err, registry.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInstallReactivatesInactiveRow(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery("select 1 from modules").
		WithArgs("mod-1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectQuery("select id, is_active, created_at from client_modules").
		WithArgs("client-1", "mod-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "is_active", "created_at"}).
			AddRow("inst-1", false, time.Now()))
	mock.ExpectQuery("update client_modules").
		WithArgs("client-1", "mod-1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"config"}).AddRow([]byte(`{"dc":"hel1"}`)))
	mock.ExpectCommit()

	inst, err := store.Install(context.Background(), "client-1", "mod-1", map[string]any{"dc": "hel1"})
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if inst.ID != "inst-1" || !inst.IsActive {
		t.Fatalf("expected reactivated installation, got %+v", inst)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInstallUnknownModule(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery("select 1 from modules").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))
	mock.ExpectRollback()

	if _, err := store.Install(context.Background(), "client-1", "missing", nil); !errors.Is(err, registry.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUninstallMissingRow(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectExec("update client_modules set is_active=false").
		WithArgs("client-1", "mod-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.Uninstall(context.Background(), "client-1", "mod-1"); !errors.Is(err, registry.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
