package core

import (
	"context"
	"errors"
	"sync"
	"testing"

	"prodigymun/internal/infra/persistence/memory"
	"prodigymun/pkg/domain"
)

func TestCreateThenListIncludesPendingRecord(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	in := validInput()
	in.Email = "asha@example.com"
	in.Suggestions = "  More crisis sessions  "
	created := mustCreate(t, svc, in)
	if created.ID == 0 {
		t.Fatalf("expected assigned id")
	}
	if created.Status != StatusPending {
		t.Fatalf("expected pending, got %s", created.Status)
	}
	if created.Email == nil || *created.Email != "asha@example.com" {
		t.Fatalf("unexpected email %v", created.Email)
	}
	if created.Suggestions == nil || *created.Suggestions != "More crisis sessions" {
		t.Fatalf("expected trimmed suggestions, got %v", created.Suggestions)
	}

	regs, err := svc.List(ctx, ListFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	matches := 0
	for _, reg := range regs {
		if reg.Name == in.Name && reg.Class == in.Class && reg.Division == in.Division {
			matches++
			if reg.Status != StatusPending {
				t.Fatalf("listed status %s", reg.Status)
			}
		}
	}
	if matches != 1 {
		t.Fatalf("expected exactly one match, got %d", matches)
	}
}

func TestCreateStoresEmptyOptionalFieldsAsAbsent(t *testing.T) {
	svc, _ := newTestService(t)
	in := validInput()
	in.Email = "   "
	reg := mustCreate(t, svc, in)
	if reg.Email != nil || reg.Suggestions != nil {
		t.Fatalf("expected nil optional fields, got %v %v", reg.Email, reg.Suggestions)
	}
}

func TestCreateStampsClock(t *testing.T) {
	svc, _ := newTestService(t, WithClock(stubClock{t: fixedNow}))
	reg := mustCreate(t, svc, validInput())
	if !reg.CreatedAt.Equal(fixedNow) {
		t.Fatalf("expected createdAt %v, got %v", fixedNow, reg.CreatedAt)
	}
}

func TestCreateRejectsDuplicateNaturalKey(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	mustCreate(t, svc, validInput())

	again := validInput()
	again.Committee = "unsc"
	again.Email = "other@example.com"
	_, err := svc.Create(ctx, again)
	var dup domain.DuplicateRegistrationError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateRegistrationError, got %v", err)
	}
	if dup.Key != (NaturalKey{Name: "Asha Rao", Class: "10th", Division: "B"}) {
		t.Fatalf("unexpected key %+v", dup.Key)
	}

	// Exact equality: a different casing is a different student.
	lower := validInput()
	lower.Name = "asha rao"
	mustCreate(t, svc, lower)
}

func TestCreateReportsStoreLevelDuplicate(t *testing.T) {
	store := racingStore{Store: memory.NewStore()}
	svc := NewService(store)
	mustCreate(t, svc, validInput())

	_, err := svc.Create(context.Background(), validInput())
	if domain.KindOf(err) != domain.KindDuplicate {
		t.Fatalf("expected duplicate kind from store constraint, got %v", err)
	}
	regs, _ := store.List(context.Background(), ListFilter{})
	if len(regs) != 1 {
		t.Fatalf("expected one stored record, got %d", len(regs))
	}
}

func TestConcurrentCreateStoresExactlyOne(t *testing.T) {
	const workers = 24
	store := racingStore{Store: memory.NewStore()}
	svc := NewService(store)

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		successes  int
		duplicates int
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := svc.Create(context.Background(), validInput())
			mu.Lock()
			defer mu.Unlock()
			switch domain.KindOf(err) {
			case "":
				successes++
			case domain.KindDuplicate:
				duplicates++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if successes != 1 || duplicates != workers-1 {
		t.Fatalf("expected 1 success and %d duplicates, got %d and %d", workers-1, successes, duplicates)
	}
	regs, err := svc.List(context.Background(), ListFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(regs) != 1 {
		t.Fatalf("expected exactly one stored record, got %d", len(regs))
	}
}

func TestCreateValidationLeavesStoreUntouched(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)

	_, err := svc.Create(ctx, RegistrationInput{Name: "A", Class: "7th", Committee: "mars-council", Email: "nope"})
	var verr domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	fields := map[string]string{}
	for _, v := range verr.Violations {
		fields[v.Field] = v.Message
	}
	want := map[string]string{
		"name":      "Name must be at least 2 characters",
		"class":     "Please select a valid class",
		"division":  "Please select your division",
		"committee": "Please select a valid committee",
		"email":     "Invalid email address",
	}
	for field, msg := range want {
		if fields[field] != msg {
			t.Fatalf("field %s: expected %q, got %q (all: %v)", field, msg, fields[field], fields)
		}
	}
	regs, _ := store.List(ctx, ListFilter{})
	if len(regs) != 0 {
		t.Fatalf("expected no partial write, got %d records", len(regs))
	}
}

func TestUpdateStatusIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	reg := mustCreate(t, svc, validInput())

	first, err := svc.UpdateStatus(ctx, reg.ID, StatusConfirmed)
	if err != nil {
		t.Fatalf("first update: %v", err)
	}
	second, err := svc.UpdateStatus(ctx, reg.ID, StatusConfirmed)
	if err != nil {
		t.Fatalf("second update: %v", err)
	}
	if first != second {
		t.Fatalf("second update changed state: %+v vs %+v", first, second)
	}
	if second.Status != StatusConfirmed || !second.CreatedAt.Equal(reg.CreatedAt) || second.Name != reg.Name {
		t.Fatalf("unexpected record after update: %+v", second)
	}

	// Transitions are unrestricted.
	back, err := svc.UpdateStatus(ctx, reg.ID, StatusPending)
	if err != nil || back.Status != StatusPending {
		t.Fatalf("revert to pending: %+v %v", back, err)
	}
}

func TestUpdateStatusErrors(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	reg := mustCreate(t, svc, validInput())

	if _, err := svc.UpdateStatus(ctx, 999, StatusConfirmed); domain.KindOf(err) != domain.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := svc.UpdateStatus(ctx, reg.ID, Status("archived")); domain.KindOf(err) != domain.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	got, err := svc.Get(ctx, reg.ID)
	if err != nil || got.Status != StatusPending {
		t.Fatalf("invalid update must not write: %+v %v", got, err)
	}
}

func TestDeleteRemovesAndRepeatFails(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	reg := mustCreate(t, svc, validInput())

	if err := svc.Delete(ctx, reg.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	regs, err := svc.List(ctx, ListFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, r := range regs {
		if r.ID == reg.ID {
			t.Fatalf("deleted id %d still listed", reg.ID)
		}
	}
	var nf domain.NotFoundError
	if err := svc.Delete(ctx, reg.ID); !errors.As(err, &nf) || nf.ID != reg.ID {
		t.Fatalf("expected NotFoundError for %d, got %v", reg.ID, err)
	}
	if _, err := svc.Get(ctx, reg.ID); domain.KindOf(err) != domain.KindNotFound {
		t.Fatalf("expected get not found, got %v", err)
	}
	// The natural key is free again.
	mustCreate(t, svc, validInput())
}

func TestListOrdersByCreationAndFilters(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	first := mustCreate(t, svc, RegistrationInput{Name: "Zara Khan", Class: "12th", Division: "A", Committee: "unsc"})
	second := mustCreate(t, svc, RegistrationInput{Name: "Arjun Mehta", Class: "9th", Division: "C", Committee: "lok-sabha"})
	third := mustCreate(t, svc, RegistrationInput{Name: "Meera Iyer", Class: "12th", Division: "A", Committee: "rajya-sabha"})
	if _, err := svc.UpdateStatus(ctx, third.ID, StatusConfirmed); err != nil {
		t.Fatalf("update: %v", err)
	}

	all, err := svc.List(ctx, ListFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 || all[0].ID != first.ID || all[1].ID != second.ID || all[2].ID != third.ID {
		t.Fatalf("unexpected order: %+v", all)
	}

	cases := []struct {
		name  string
		query ListQuery
		want  []int64
	}{
		{"status", ListQuery{Status: "confirmed"}, []int64{third.ID}},
		{"category", ListQuery{Category: "indian"}, []int64{second.ID, third.ID}},
		{"domestic alias", ListQuery{Category: "domestic", Class: "12th"}, []int64{third.ID}},
		{"committee in category", ListQuery{Category: "international", Committee: "unsc"}, []int64{first.ID}},
		{"committee outside category", ListQuery{Category: "international", Committee: "lok-sabha"}, nil},
		{"division", ListQuery{Division: "C"}, []int64{second.ID}},
		{"search", ListQuery{Search: "  MEHTA "}, []int64{second.ID}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			filter, err := svc.ResolveFilter(tc.query)
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			regs, err := svc.List(ctx, filter)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(regs) != len(tc.want) {
				t.Fatalf("expected %v, got %+v", tc.want, regs)
			}
			for i, id := range tc.want {
				if regs[i].ID != id {
					t.Fatalf("position %d: expected %d, got %d", i, id, regs[i].ID)
				}
			}
		})
	}
}

func TestResolveFilterRejectsUnknownValues(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.ResolveFilter(ListQuery{Status: "done", Category: "galactic", Class: "7th", Division: "Z"})
	var verr domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(verr.Violations) != 4 {
		t.Fatalf("expected 4 violations, got %+v", verr.Violations)
	}
	if _, err := svc.List(context.Background(), ListFilter{Status: "done"}); domain.KindOf(err) != domain.KindValidation {
		t.Fatalf("expected list to reject invalid status, got %v", err)
	}
}

func TestCommittees(t *testing.T) {
	svc, _ := newTestService(t)
	all, err := svc.Committees("")
	if err != nil || len(all) != 19 {
		t.Fatalf("expected 19 committees, got %d (%v)", len(all), err)
	}
	indian, err := svc.Committees("indian")
	if err != nil || len(indian) != 6 {
		t.Fatalf("expected 6 domestic committees, got %d (%v)", len(indian), err)
	}
	if _, err := svc.Committees("lunar"); domain.KindOf(err) != domain.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestStoreFailuresSurfaceAsStoreErrors(t *testing.T) {
	ctx := context.Background()
	svc := NewService(failingStore{})

	if _, err := svc.Create(ctx, validInput()); domain.KindOf(err) != domain.KindStore {
		t.Fatalf("create: expected store kind, got %v", err)
	}
	if _, err := svc.List(ctx, ListFilter{}); !errors.Is(err, errStoreDown) {
		t.Fatalf("list: expected wrapped cause, got %v", err)
	}
	if _, err := svc.Stats(ctx); domain.KindOf(err) != domain.KindStore {
		t.Fatalf("stats: expected store kind, got %v", err)
	}
	if _, err := svc.UpdateStatus(ctx, 1, StatusRejected); domain.KindOf(err) != domain.KindStore {
		t.Fatalf("update: expected store kind, got %v", err)
	}
	if err := svc.Delete(ctx, 1); domain.KindOf(err) != domain.KindStore {
		t.Fatalf("delete: expected store kind, got %v", err)
	}
}
