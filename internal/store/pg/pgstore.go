// Package pg holds the PostgreSQL implementations of every store interface.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

type Store struct {
	db *sql.DB
}

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Auth() *AuthStore         { return &AuthStore{db: s.db} }
func (s *Store) Tenants() *TenantStore    { return &TenantStore{db: s.db} }
func (s *Store) Registry() *RegistryStore { return &RegistryStore{db: s.db} }
func (s *Store) Changes() *ChangeStore    { return &ChangeStore{db: s.db} }

// mapError translates postgres constraint violations into the calling
// package's sentinels: 23505 unique_violation, 23503 foreign_key_violation.
func mapError(err error, conflict, notFound error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return conflict
		case "23503":
			return notFound
		}
	}
	return err
}
