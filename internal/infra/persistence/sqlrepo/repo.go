// Package sqlrepo implements domain.RegistrationStore on top of database/sql.
// The sqlite and postgres backends share this repository and differ only in
// their Dialect.
package sqlrepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"prodigymun/pkg/domain"
)

// Dialect captures the backend-specific bits of SQL generation and error mapping.
type Dialect struct {
	// Name is used in error messages.
	Name string
	// Numbered switches ? placeholders to $1..$n.
	Numbered bool
	// EncodeTime converts a timestamp into the driver parameter stored in created_at.
	EncodeTime func(time.Time) any
	// IsUniqueViolation reports whether err came from the natural-key index.
	IsUniqueViolation func(error) bool
	// Lower names the SQL function that case-folds name for search. It must
	// fold the same characters as strings.ToLower. Defaults to LOWER.
	Lower string
}

// Rebind rewrites ? placeholders for the dialect.
func (d Dialect) Rebind(query string) string {
	if !d.Numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Repo is a registration table accessed through database/sql.
type Repo struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// Compile-time contract assertion.
var _ domain.RegistrationStore = (*Repo)(nil)

// New wraps db. The schema must already be migrated.
func New(db *sql.DB, dialect Dialect) *Repo {
	if dialect.EncodeTime == nil {
		dialect.EncodeTime = func(t time.Time) any { return t.UTC() }
	}
	if dialect.Lower == "" {
		dialect.Lower = "LOWER"
	}
	if dialect.IsUniqueViolation == nil {
		dialect.IsUniqueViolation = func(error) bool { return false }
	}
	return &Repo{db: db, dialect: dialect, now: func() time.Time { return time.Now().UTC() }}
}

// SetNowFunc overrides the clock used when CreatedAt is zero.
func (r *Repo) SetNowFunc(fn func() time.Time) {
	if fn != nil {
		r.now = fn
	}
}

// DB exposes the underlying handle.
func (r *Repo) DB() *sql.DB { return r.db }

const selectColumns = `SELECT id, name, class, division, committee, email, suggestions, status, created_at FROM registrations`

func (r *Repo) storeErr(op string, err error) error {
	return domain.StoreError{Op: r.dialect.Name + " " + op, Err: err}
}

// FindByNaturalKey returns the registration matching key exactly.
func (r *Repo) FindByNaturalKey(ctx context.Context, key domain.NaturalKey) (domain.Registration, bool, error) {
	row := r.db.QueryRowContext(ctx, r.dialect.Rebind(selectColumns+` WHERE name = ? AND class = ? AND division = ?`), key.Name, key.Class, key.Division)
	reg, err := scanRegistration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Registration{}, false, nil
	}
	if err != nil {
		return domain.Registration{}, false, r.storeErr("find by natural key", err)
	}
	return reg, true, nil
}

// Insert stores reg and returns it with the assigned id. A natural-key
// collision surfaces as domain.DuplicateRegistrationError.
func (r *Repo) Insert(ctx context.Context, reg domain.Registration) (domain.Registration, error) {
	if reg.CreatedAt.IsZero() {
		reg.CreatedAt = r.now()
	}
	reg.CreatedAt = reg.CreatedAt.UTC()
	if reg.Status == "" {
		reg.Status = domain.StatusPending
	}
	const q = `INSERT INTO registrations (name, class, division, committee, email, suggestions, status, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`
	err := r.db.QueryRowContext(ctx, r.dialect.Rebind(q),
		reg.Name, reg.Class, reg.Division, reg.Committee,
		nullable(reg.Email), nullable(reg.Suggestions),
		string(reg.Status), r.dialect.EncodeTime(reg.CreatedAt),
	).Scan(&reg.ID)
	if err != nil {
		if r.dialect.IsUniqueViolation(err) {
			return domain.Registration{}, domain.DuplicateRegistrationError{Key: reg.Key()}
		}
		return domain.Registration{}, r.storeErr("insert", err)
	}
	return reg, nil
}

// Get returns the registration with id.
func (r *Repo) Get(ctx context.Context, id int64) (domain.Registration, error) {
	row := r.db.QueryRowContext(ctx, r.dialect.Rebind(selectColumns+` WHERE id = ?`), id)
	reg, err := scanRegistration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Registration{}, domain.NotFoundError{ID: id}
	}
	if err != nil {
		return domain.Registration{}, r.storeErr("get", err)
	}
	return reg, nil
}

// List returns registrations matching filter ordered by created_at then id.
func (r *Repo) List(ctx context.Context, filter domain.ListFilter) ([]domain.Registration, error) {
	where, args := buildWhere(filter, r.dialect.Lower)
	query := selectColumns + where + ` ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(query), args...)
	if err != nil {
		return nil, r.storeErr("list", err)
	}
	defer func() { _ = rows.Close() }()
	out := make([]domain.Registration, 0)
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, r.storeErr("scan", err)
		}
		out = append(out, reg)
	}
	if err := rows.Err(); err != nil {
		return nil, r.storeErr("iterate", err)
	}
	return out, nil
}

// UpdateStatus overwrites the status of id and returns the updated record.
func (r *Repo) UpdateStatus(ctx context.Context, id int64, status domain.Status) (domain.Registration, error) {
	const q = `UPDATE registrations SET status = ? WHERE id = ?
RETURNING id, name, class, division, committee, email, suggestions, status, created_at`
	reg, err := scanRegistration(r.db.QueryRowContext(ctx, r.dialect.Rebind(q), string(status), id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Registration{}, domain.NotFoundError{ID: id}
	}
	if err != nil {
		return domain.Registration{}, r.storeErr("update status", err)
	}
	return reg, nil
}

// Delete permanently removes id.
func (r *Repo) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, r.dialect.Rebind(`DELETE FROM registrations WHERE id = ?`), id)
	if err != nil {
		return r.storeErr("delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return r.storeErr("delete", err)
	}
	if n == 0 {
		return domain.NotFoundError{ID: id}
	}
	return nil
}

// Tally groups registrations by committee, class, and status in one query.
func (r *Repo) Tally(ctx context.Context) (domain.TallyRows, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT committee, class, status, COUNT(*) FROM registrations GROUP BY committee, class, status`)
	if err != nil {
		return nil, r.storeErr("tally", err)
	}
	defer func() { _ = rows.Close() }()
	var out domain.TallyRows
	for rows.Next() {
		var (
			row    domain.TallyRow
			status string
		)
		if err := rows.Scan(&row.Committee, &row.Class, &status, &row.Count); err != nil {
			return nil, r.storeErr("scan tally", err)
		}
		row.Status = domain.Status(status)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, r.storeErr("iterate tally", err)
	}
	return out, nil
}

// Close closes the database handle.
func (r *Repo) Close() error { return r.db.Close() }

func buildWhere(filter domain.ListFilter, lower string) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
	}
	if len(filter.Committees) > 0 {
		marks := strings.TrimSuffix(strings.Repeat("?, ", len(filter.Committees)), ", ")
		clauses = append(clauses, "committee IN ("+marks+")")
		for _, c := range filter.Committees {
			args = append(args, c)
		}
	}
	if filter.Class != "" {
		clauses = append(clauses, "class = ?")
		args = append(args, filter.Class)
	}
	if filter.Division != "" {
		clauses = append(clauses, "division = ?")
		args = append(args, filter.Division)
	}
	if filter.Search != "" {
		clauses = append(clauses, lower+`(name) LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(strings.ToLower(filter.Search))+"%")
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRegistration(row rowScanner) (domain.Registration, error) {
	var (
		reg         domain.Registration
		email       sql.NullString
		suggestions sql.NullString
		status      string
		created     any
	)
	if err := row.Scan(&reg.ID, &reg.Name, &reg.Class, &reg.Division, &reg.Committee, &email, &suggestions, &status, &created); err != nil {
		return domain.Registration{}, err
	}
	ts, err := decodeTime(created)
	if err != nil {
		return domain.Registration{}, err
	}
	reg.Status = domain.Status(status)
	reg.CreatedAt = ts
	if email.Valid {
		reg.Email = &email.String
	}
	if suggestions.Valid {
		reg.Suggestions = &suggestions.String
	}
	return reg, nil
}

// TimeLayout is the fixed-width text encoding used where created_at is TEXT,
// so lexical order matches chronological order.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

func decodeTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case string:
		return parseTime(t)
	case []byte:
		return parseTime(string(t))
	default:
		return time.Time{}, fmt.Errorf("unsupported created_at type %T", v)
	}
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range []string{TimeLayout, time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("parse created_at %q", s)
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
