// Package sqlite provides the embedded-file registration store. Schema changes
// are applied from the embedded migrations on open.
package sqlite

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"prodigymun/internal/infra/persistence/sqlrepo"
	"prodigymun/pkg/domain"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

//go:embed migrations/*.sql
var migrations embed.FS

// DefaultPath is used when no path is configured.
const DefaultPath = "prodigymun.db"

// Compile-time contract assertion.
var _ domain.RegistrationStore = (*Store)(nil)

// Store is a registration table in a single SQLite file.
type Store struct {
	*sqlrepo.Repo
	path string
}

// lowerFunc is registered on every connection. SQLite's LOWER only folds ASCII.
const lowerFunc = "go_lower"

func init() {
	msqlite.MustRegisterDeterministicScalarFunction(lowerFunc, 1, goLower)
}

func goLower(_ *msqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case nil:
		return nil, nil
	case string:
		return strings.ToLower(v), nil
	case []byte:
		return strings.ToLower(string(v)), nil
	default:
		return v, nil
	}
}

// Dialect is the sqlite flavour of the shared SQL repository.
var Dialect = sqlrepo.Dialect{
	Name:              "sqlite",
	Lower:             lowerFunc,
	EncodeTime:        func(t time.Time) any { return t.UTC().Format(sqlrepo.TimeLayout) },
	IsUniqueViolation: isUniqueViolation,
}

// NewStore opens (creating if needed) the database at path and migrates it.
func NewStore(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; the unique index still decides duplicate races.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := migrateUp(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{Repo: sqlrepo.New(db, Dialect), path: path}, nil
}

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	// m.Close would close db as well, so only the source is released.
	defer func() { _ = src.Close() }()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
			return true
		}
		if code&0xff == sqlite3.SQLITE_CONSTRAINT {
			return strings.Contains(sqliteErr.Error(), "UNIQUE")
		}
	}
	return false
}
