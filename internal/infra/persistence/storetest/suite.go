// Package storetest holds the behavioural contract every domain.RegistrationStore
// backend must satisfy. Backend packages call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"prodigymun/pkg/domain"
)

// Factory opens a fresh, empty store for one subtest.
type Factory func(t *testing.T) domain.RegistrationStore

var base = time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)

// Fixture builds a pending registration created at base+offset minutes.
func Fixture(name, class, division, committee string, offset int) domain.Registration {
	return domain.Registration{
		Name:      name,
		Class:     class,
		Division:  division,
		Committee: committee,
		Status:    domain.StatusPending,
		CreatedAt: base.Add(time.Duration(offset) * time.Minute),
	}
}

func ptr(s string) *string { return &s }

// Run executes the full contract against stores produced by open.
func Run(t *testing.T, open Factory) {
	t.Helper()
	cases := []struct {
		name string
		fn   func(*testing.T, domain.RegistrationStore)
	}{
		{"InsertAssignsIDAndRoundTrips", testInsertRoundTrip},
		{"InsertRejectsDuplicateNaturalKey", testInsertDuplicate},
		{"NaturalKeyIsExact", testNaturalKeyExact},
		{"ListOrdersByCreatedAt", testListOrder},
		{"ListFilters", testListFilters},
		{"UpdateStatusIdempotent", testUpdateStatus},
		{"UpdateStatusMissing", testUpdateStatusMissing},
		{"DeleteRemovesPermanently", testDelete},
		{"DeleteFreesNaturalKey", testDeleteFreesKey},
		{"TallyGroups", testTally},
		{"ConcurrentInsertSameKey", testConcurrentInsert},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := open(t)
			t.Cleanup(func() { _ = store.Close() })
			tc.fn(t, store)
		})
	}
}

func mustInsert(t *testing.T, store domain.RegistrationStore, reg domain.Registration) domain.Registration {
	t.Helper()
	created, err := store.Insert(context.Background(), reg)
	if err != nil {
		t.Fatalf("insert %s: %v", reg.Name, err)
	}
	return created
}

func testInsertRoundTrip(t *testing.T, store domain.RegistrationStore) {
	ctx := context.Background()
	reg := Fixture("Asha Rao", "10th", "B", "lok-sabha", 0)
	reg.Email = ptr("asha@example.com")
	reg.Suggestions = ptr("More crisis committees")
	created := mustInsert(t, store, reg)
	if created.ID <= 0 {
		t.Fatalf("expected assigned id, got %d", created.ID)
	}
	got, err := store.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != reg.Name || got.Class != reg.Class || got.Division != reg.Division || got.Committee != reg.Committee {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.Email == nil || *got.Email != "asha@example.com" || got.Suggestions == nil || *got.Suggestions != "More crisis committees" {
		t.Fatalf("optional fields lost: %+v", got)
	}
	if got.Status != domain.StatusPending {
		t.Fatalf("expected pending, got %q", got.Status)
	}
	if !got.CreatedAt.Equal(reg.CreatedAt) {
		t.Fatalf("created at mismatch: %v vs %v", got.CreatedAt, reg.CreatedAt)
	}
	plain := mustInsert(t, store, Fixture("Ravi Kumar", "9th", "C", "unsc", 1))
	if plain.ID == created.ID {
		t.Fatalf("expected distinct ids")
	}
	if got, _ := store.Get(ctx, plain.ID); got.Email != nil || got.Suggestions != nil {
		t.Fatalf("expected absent optional fields, got %+v", got)
	}
	if _, err := store.Get(ctx, 999999); !errors.As(err, new(domain.NotFoundError)) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func testInsertDuplicate(t *testing.T, store domain.RegistrationStore) {
	mustInsert(t, store, Fixture("Asha Rao", "10th", "B", "lok-sabha", 0))
	dup := Fixture("Asha Rao", "10th", "B", "unsc", 1)
	dup.Email = ptr("other@example.com")
	_, err := store.Insert(context.Background(), dup)
	var dupErr domain.DuplicateRegistrationError
	if !errors.As(err, &dupErr) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	if dupErr.Key != dup.Key() {
		t.Fatalf("unexpected key %+v", dupErr.Key)
	}
	all, err := store.List(context.Background(), domain.ListFilter{})
	if err != nil || len(all) != 1 {
		t.Fatalf("expected single record, got %d (%v)", len(all), err)
	}
}

func testNaturalKeyExact(t *testing.T, store domain.RegistrationStore) {
	ctx := context.Background()
	mustInsert(t, store, Fixture("Asha Rao", "10th", "B", "lok-sabha", 0))
	for _, key := range []domain.NaturalKey{
		{Name: "asha rao", Class: "10th", Division: "B"},
		{Name: "Asha Rao ", Class: "10th", Division: "B"},
		{Name: "Asha Rao", Class: "11th", Division: "B"},
		{Name: "Asha Rao", Class: "10th", Division: "C"},
	} {
		if _, found, err := store.FindByNaturalKey(ctx, key); err != nil || found {
			t.Fatalf("key %+v: found=%v err=%v", key, found, err)
		}
		reg := Fixture(key.Name, key.Class, key.Division, "unsc", 1)
		if _, err := store.Insert(ctx, reg); err != nil {
			t.Fatalf("insert variant %+v: %v", key, err)
		}
	}
	got, found, err := store.FindByNaturalKey(ctx, domain.NaturalKey{Name: "Asha Rao", Class: "10th", Division: "B"})
	if err != nil || !found || got.Committee != "lok-sabha" {
		t.Fatalf("expected exact match, got %+v found=%v err=%v", got, found, err)
	}
}

func testListOrder(t *testing.T, store domain.RegistrationStore) {
	mustInsert(t, store, Fixture("Third", "8th", "A", "unsc", 30))
	mustInsert(t, store, Fixture("First", "8th", "A", "unsc", 10))
	mustInsert(t, store, Fixture("Second", "8th", "A", "unsc", 20))
	list, err := store.List(context.Background(), domain.ListFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 || list[0].Name != "First" || list[1].Name != "Second" || list[2].Name != "Third" {
		t.Fatalf("unexpected order: %+v", list)
	}
}

func testListFilters(t *testing.T, store domain.RegistrationStore) {
	ctx := context.Background()
	a := mustInsert(t, store, Fixture("Asha Rao", "12th", "A", "lok-sabha", 0))
	mustInsert(t, store, Fixture("Ravi Kumar", "9th", "B", "unsc", 1))
	mustInsert(t, store, Fixture("Meera Shah", "12th", "B", "who", 2))
	mustInsert(t, store, Fixture("Élodie Ñúñez", "11th", "C", "unga", 3))
	if _, err := store.UpdateStatus(ctx, a.ID, domain.StatusConfirmed); err != nil {
		t.Fatalf("update: %v", err)
	}
	cases := []struct {
		filter domain.ListFilter
		want   int
	}{
		{domain.ListFilter{Status: domain.StatusConfirmed}, 1},
		{domain.ListFilter{Status: domain.StatusPending}, 3},
		{domain.ListFilter{Committees: []string{"unsc", "who"}}, 2},
		{domain.ListFilter{Class: "12th"}, 2},
		{domain.ListFilter{Division: "B"}, 2},
		{domain.ListFilter{Search: "RAO"}, 1},
		{domain.ListFilter{Search: "élodie"}, 1},
		{domain.ListFilter{Search: "ÑÚÑEZ"}, 1},
		{domain.ListFilter{Search: "odie ñ"}, 1},
		{domain.ListFilter{Search: "a", Class: "12th", Division: "B"}, 1},
		{domain.ListFilter{Committees: []string{"nato"}}, 0},
	}
	for _, tc := range cases {
		got, err := store.List(ctx, tc.filter)
		if err != nil {
			t.Fatalf("list %+v: %v", tc.filter, err)
		}
		if len(got) != tc.want {
			t.Fatalf("filter %+v: expected %d, got %d", tc.filter, tc.want, len(got))
		}
	}
}

func testUpdateStatus(t *testing.T, store domain.RegistrationStore) {
	ctx := context.Background()
	created := mustInsert(t, store, Fixture("Asha Rao", "10th", "B", "lok-sabha", 0))
	first, err := store.UpdateStatus(ctx, created.ID, domain.StatusConfirmed)
	if err != nil {
		t.Fatalf("first update: %v", err)
	}
	second, err := store.UpdateStatus(ctx, created.ID, domain.StatusConfirmed)
	if err != nil {
		t.Fatalf("second update: %v", err)
	}
	if first.Status != domain.StatusConfirmed || second.Status != domain.StatusConfirmed {
		t.Fatalf("unexpected statuses %q %q", first.Status, second.Status)
	}
	if !second.CreatedAt.Equal(created.CreatedAt) || second.Name != created.Name || second.Committee != created.Committee {
		t.Fatalf("update touched other fields: %+v", second)
	}
	back, err := store.UpdateStatus(ctx, created.ID, domain.StatusPending)
	if err != nil || back.Status != domain.StatusPending {
		t.Fatalf("expected unrestricted transition back to pending: %+v %v", back, err)
	}
}

func testUpdateStatusMissing(t *testing.T, store domain.RegistrationStore) {
	_, err := store.UpdateStatus(context.Background(), 424242, domain.StatusConfirmed)
	var nf domain.NotFoundError
	if !errors.As(err, &nf) || nf.ID != 424242 {
		t.Fatalf("expected not found for 424242, got %v", err)
	}
}

func testDelete(t *testing.T, store domain.RegistrationStore) {
	ctx := context.Background()
	keep := mustInsert(t, store, Fixture("Keep", "8th", "A", "unsc", 0))
	gone := mustInsert(t, store, Fixture("Gone", "8th", "A", "unsc", 1))
	if err := store.Delete(ctx, gone.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	list, _ := store.List(ctx, domain.ListFilter{})
	if len(list) != 1 || list[0].ID != keep.ID {
		t.Fatalf("unexpected list after delete: %+v", list)
	}
	if err := store.Delete(ctx, gone.ID); !errors.As(err, new(domain.NotFoundError)) {
		t.Fatalf("expected not found on repeat delete, got %v", err)
	}
}

func testDeleteFreesKey(t *testing.T, store domain.RegistrationStore) {
	ctx := context.Background()
	first := mustInsert(t, store, Fixture("Asha Rao", "10th", "B", "lok-sabha", 0))
	if err := store.Delete(ctx, first.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	again := mustInsert(t, store, Fixture("Asha Rao", "10th", "B", "unsc", 1))
	if again.ID == first.ID {
		t.Fatalf("expected a new id after re-registration")
	}
}

func testTally(t *testing.T, store domain.RegistrationStore) {
	ctx := context.Background()
	mustInsert(t, store, Fixture("A1", "12th", "A", "lok-sabha", 0))
	mustInsert(t, store, Fixture("A2", "12th", "B", "lok-sabha", 1))
	c := mustInsert(t, store, Fixture("A3", "9th", "A", "unsc", 2))
	if _, err := store.UpdateStatus(ctx, c.ID, domain.StatusRejected); err != nil {
		t.Fatalf("update: %v", err)
	}
	rows, err := store.Tally(ctx)
	if err != nil {
		t.Fatalf("tally: %v", err)
	}
	if got := rows.CountWhere(domain.CountFilter{}); got != 3 {
		t.Fatalf("total = %d", got)
	}
	if got := rows.CountWhere(domain.CountFilter{Committees: []string{"lok-sabha"}, Classes: []string{"12th"}}); got != 2 {
		t.Fatalf("lok-sabha seniors = %d", got)
	}
	if got := rows.CountWhere(domain.CountFilter{Statuses: []domain.Status{domain.StatusRejected}}); got != 1 {
		t.Fatalf("rejected = %d", got)
	}
}

func testConcurrentInsert(t *testing.T, store domain.RegistrationStore) {
	const workers = 16
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		successes  int
		duplicates int
		others     []error
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, err := store.Insert(context.Background(), Fixture("Asha Rao", "10th", "B", "lok-sabha", i))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.As(err, new(domain.DuplicateRegistrationError)):
				duplicates++
			default:
				others = append(others, err)
			}
		}(i)
	}
	close(start)
	wg.Wait()
	if len(others) > 0 {
		t.Fatalf("unexpected errors: %v", others)
	}
	if successes != 1 || duplicates != workers-1 {
		t.Fatalf("expected 1 success and %d duplicates, got %d and %d", workers-1, successes, duplicates)
	}
	list, err := store.List(context.Background(), domain.ListFilter{})
	if err != nil || len(list) != 1 {
		t.Fatalf("expected exactly one stored record, got %d (%v)", len(list), err)
	}
}
