package domain

import (
	"context"
	"slices"
)

// RegistrationStore is the durable keyed storage for registrations. Insert must
// reject natural-key collisions atomically with DuplicateRegistrationError so
// that concurrent intake of the same student stores exactly one record.
type RegistrationStore interface {
	FindByNaturalKey(ctx context.Context, key NaturalKey) (Registration, bool, error)
	Insert(ctx context.Context, reg Registration) (Registration, error)
	Get(ctx context.Context, id int64) (Registration, error)
	List(ctx context.Context, filter ListFilter) ([]Registration, error)
	UpdateStatus(ctx context.Context, id int64, status Status) (Registration, error)
	Delete(ctx context.Context, id int64) error
	Tally(ctx context.Context) (TallyRows, error)
	Close() error
}

// TallyRow is one group of the (committee, class, status) aggregation.
type TallyRow struct {
	Committee string
	Class     string
	Status    Status
	Count     int
}

// TallyRows is the full grouped aggregation returned by a store.
type TallyRows []TallyRow

// CountFilter is a predicate set over tally groups. Empty sets match all.
type CountFilter struct {
	Committees []string
	Classes    []string
	Statuses   []Status
}

func (f CountFilter) match(row TallyRow) bool {
	if len(f.Committees) > 0 && !slices.Contains(f.Committees, row.Committee) {
		return false
	}
	if len(f.Classes) > 0 && !slices.Contains(f.Classes, row.Class) {
		return false
	}
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, row.Status) {
		return false
	}
	return true
}

// CountWhere sums the groups matching filter.
func (rows TallyRows) CountWhere(filter CountFilter) int {
	total := 0
	for _, row := range rows {
		if filter.match(row) {
			total += row.Count
		}
	}
	return total
}
