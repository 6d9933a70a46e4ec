// Package memory provides an in-memory implementation of the registration
// store used for tests and ephemeral environments.
package memory

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"prodigymun/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.RegistrationStore = (*Store)(nil)

type (
	// Registration aliases domain.Registration for in-memory persistence operations.
	Registration = domain.Registration
	// NaturalKey aliases domain.NaturalKey.
	NaturalKey = domain.NaturalKey
)

type memoryState struct {
	registrations map[int64]Registration
	byKey         map[NaturalKey]int64
	nextID        int64
}

func newMemoryState() memoryState {
	return memoryState{
		registrations: make(map[int64]Registration),
		byKey:         make(map[NaturalKey]int64),
		nextID:        1,
	}
}

// Store is a mutex-guarded registration table. The natural-key index is
// checked and written under the same lock as the insert.
type Store struct {
	mu    sync.RWMutex
	state memoryState
	nowFn func() time.Time
}

// NewStore constructs an empty in-memory store.
func NewStore() *Store {
	return &Store{
		state: newMemoryState(),
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

// SetNowFunc overrides the clock (tests).
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn != nil {
		s.nowFn = fn
	}
}

// FindByNaturalKey returns the registration matching key exactly.
func (s *Store) FindByNaturalKey(_ context.Context, key NaturalKey) (Registration, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.state.byKey[key]
	if !ok {
		return Registration{}, false, nil
	}
	return cloneRegistration(s.state.registrations[id]), true, nil
}

// Insert assigns an id and stores reg, failing when the natural key is taken.
func (s *Store) Insert(_ context.Context, reg Registration) (Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := reg.Key()
	if _, exists := s.state.byKey[key]; exists {
		return Registration{}, domain.DuplicateRegistrationError{Key: key}
	}
	reg.ID = s.state.nextID
	s.state.nextID++
	if reg.CreatedAt.IsZero() {
		reg.CreatedAt = s.nowFn()
	}
	if reg.Status == "" {
		reg.Status = domain.StatusPending
	}
	s.state.registrations[reg.ID] = cloneRegistration(reg)
	s.state.byKey[key] = reg.ID
	return cloneRegistration(reg), nil
}

// Get returns the registration with id.
func (s *Store) Get(_ context.Context, id int64) (Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	reg, ok := s.state.registrations[id]
	if !ok {
		return Registration{}, domain.NotFoundError{ID: id}
	}
	return cloneRegistration(reg), nil
}

// List returns registrations matching filter ordered by CreatedAt then ID.
func (s *Store) List(_ context.Context, filter domain.ListFilter) ([]Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	search := strings.ToLower(filter.Search)
	out := make([]Registration, 0, len(s.state.registrations))
	for _, reg := range s.state.registrations {
		if filter.Status != "" && reg.Status != filter.Status {
			continue
		}
		if len(filter.Committees) > 0 && !slices.Contains(filter.Committees, reg.Committee) {
			continue
		}
		if filter.Class != "" && reg.Class != filter.Class {
			continue
		}
		if filter.Division != "" && reg.Division != filter.Division {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(reg.Name), search) {
			continue
		}
		out = append(out, cloneRegistration(reg))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// UpdateStatus overwrites the status of id. Setting the current status again succeeds.
func (s *Store) UpdateStatus(_ context.Context, id int64, status domain.Status) (Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.state.registrations[id]
	if !ok {
		return Registration{}, domain.NotFoundError{ID: id}
	}
	reg.Status = status
	s.state.registrations[id] = reg
	return cloneRegistration(reg), nil
}

// Delete permanently removes id.
func (s *Store) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.state.registrations[id]
	if !ok {
		return domain.NotFoundError{ID: id}
	}
	delete(s.state.registrations, id)
	delete(s.state.byKey, reg.Key())
	return nil
}

type tallyKey struct {
	committee string
	class     string
	status    domain.Status
}

// Tally groups registrations by committee, class, and status.
func (s *Store) Tally(_ context.Context) (domain.TallyRows, error) {
	s.mu.RLock()
	counts := make(map[tallyKey]int)
	for _, reg := range s.state.registrations {
		counts[tallyKey{committee: reg.Committee, class: reg.Class, status: reg.Status}]++
	}
	s.mu.RUnlock()
	rows := make(domain.TallyRows, 0, len(counts))
	for k, n := range counts {
		rows = append(rows, domain.TallyRow{Committee: k.committee, Class: k.class, Status: k.status, Count: n})
	}
	return rows, nil
}

// Close is a no-op for the memory store.
func (s *Store) Close() error { return nil }

func cloneRegistration(r Registration) Registration {
	cp := r
	if r.Email != nil {
		v := *r.Email
		cp.Email = &v
	}
	if r.Suggestions != nil {
		v := *r.Suggestions
		cp.Suggestions = &v
	}
	return cp
}
