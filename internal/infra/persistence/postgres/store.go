// Package postgres provides the PostgreSQL-backed registration store. The
// schema is managed by the embedded migrations, applied on open.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sync"

	"prodigymun/internal/infra/persistence/sqlrepo"
	"prodigymun/pkg/domain"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

//go:embed migrations/*.sql
var migrations embed.FS

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.RegistrationStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	// DefaultDSN is used when no DSN is configured.
	DefaultDSN = "postgres://localhost/prodigymun?sslmode=disable"

	uniqueViolation = "23505"
	naturalKeyIndex = "registrations_natural_key"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Dialect is the postgres flavour of the shared SQL repository.
var Dialect = sqlrepo.Dialect{
	Name:              "postgres",
	Numbered:          true,
	IsUniqueViolation: isUniqueViolation,
}

// Store is a registration table on a PostgreSQL server.
type Store struct {
	*sqlrepo.Repo
}

// NewStore connects with dsn (DefaultDSN when empty), applies pending
// migrations, and returns the store.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}
	db, err := open(dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := migrateUp(dsn); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{Repo: sqlrepo.New(db, Dialect)}, nil
}

func open(dsn string) (*sql.DB, error) {
	openMu.Lock()
	defer openMu.Unlock()
	return sqlOpen(defaultDriver, dsn)
}

// migrateUp runs on its own connection pool because the migration driver
// closes the handle it is given.
func migrateUp(dsn string) error {
	db, err := open(dsn)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	driver, err := migratepgx.WithInstance(db, &migratepgx.Config{})
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("migration driver: %w", err)
	}
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		_ = driver.Close()
		return fmt.Errorf("load migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "pgx5", driver)
	if err != nil {
		_ = driver.Close()
		return fmt.Errorf("init migrations: %w", err)
	}
	defer func() { _, _ = m.Close() }()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == uniqueViolation && (pgErr.ConstraintName == "" || pgErr.ConstraintName == naturalKeyIndex)
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
