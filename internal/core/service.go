// Package core implements the registration service: intake with duplicate
// detection, status triage, deletion, statistics, and CSV export. Every
// operation runs through one instrumentation wrapper that traces, logs,
// measures, and audits it.
package core

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"prodigymun/internal/blob"
	"prodigymun/internal/catalog"
	"prodigymun/pkg/domain"

	"github.com/go-playground/validator/v10"
	gocache "github.com/patrickmn/go-cache"
)

const statsCacheKey = "stats"

// Service exposes the registration lifecycle over a RegistrationStore.
type Service struct {
	store         RegistrationStore
	catalog       *catalog.Catalog
	validate      *validator.Validate
	clock         Clock
	logger        Logger
	audit         AuditRecorder
	metrics       MetricsRecorder
	tracer        Tracer
	blobs         blob.Store
	presignExpiry time.Duration

	statsMu    sync.Mutex
	statsGen   uint64
	statsCache *gocache.Cache
}

// NewService constructs a service backed by the supplied store.
func NewService(store RegistrationStore, opts ...ServiceOption) *Service {
	options := defaultServiceOptions()
	for _, opt := range opts {
		opt(&options)
	}
	svc := &Service{
		store:         store,
		catalog:       options.catalog,
		validate:      newValidator(options.catalog),
		clock:         options.clock,
		logger:        options.logger,
		audit:         options.audit,
		metrics:       options.metrics,
		tracer:        options.tracer,
		blobs:         options.blobs,
		presignExpiry: options.presignExpiry,
	}
	if options.statsCacheTTL > 0 {
		// No janitor goroutine: expired entries are dropped on read.
		svc.statsCache = gocache.New(options.statsCacheTTL, 0)
	}
	return svc
}

// Store returns the underlying registration store.
func (s *Service) Store() RegistrationStore { return s.store }

// Catalog returns the committee catalog the service validates against.
func (s *Service) Catalog() *catalog.Catalog { return s.catalog }

// Create validates in and stores a new pending registration. A natural-key
// collision fails with DuplicateRegistrationError whether it is caught by the
// lookup or by the store's uniqueness constraint.
func (s *Service) Create(ctx context.Context, in RegistrationInput) (Registration, error) {
	in = normalizeInput(in)
	var created Registration
	err := s.run(ctx, "create", true, func(ctx context.Context) (string, error) {
		if err := s.validateInput(in); err != nil {
			return "", err
		}
		key := NaturalKey{Name: in.Name, Class: in.Class, Division: in.Division}
		if _, found, err := s.store.FindByNaturalKey(ctx, key); err != nil {
			return "", err
		} else if found {
			return "", domain.DuplicateRegistrationError{Key: key}
		}
		reg, err := s.store.Insert(ctx, Registration{
			Name:        in.Name,
			Class:       in.Class,
			Division:    in.Division,
			Committee:   in.Committee,
			Email:       optional(in.Email),
			Suggestions: optional(in.Suggestions),
			Status:      StatusPending,
			CreatedAt:   s.clock.Now().UTC(),
		})
		if err != nil {
			return "", err
		}
		s.invalidateStats()
		created = reg
		return formatID(reg.ID), nil
	})
	return created, err
}

// List returns the registrations matching filter ordered by creation time.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Registration, error) {
	var regs []Registration
	err := s.run(ctx, "list", false, func(ctx context.Context) (string, error) {
		if err := validateFilter(filter); err != nil {
			return "", err
		}
		var err error
		regs, err = s.store.List(ctx, filter)
		return "", err
	})
	return regs, err
}

// Get returns the registration with id.
func (s *Service) Get(ctx context.Context, id int64) (Registration, error) {
	var reg Registration
	err := s.run(ctx, "get", false, func(ctx context.Context) (string, error) {
		var err error
		reg, err = s.store.Get(ctx, id)
		return formatID(id), err
	})
	return reg, err
}

// UpdateStatus overwrites the status of registration id. Setting the current
// status again succeeds without change.
func (s *Service) UpdateStatus(ctx context.Context, id int64, status Status) (Registration, error) {
	var updated Registration
	err := s.run(ctx, "update_status", true, func(ctx context.Context) (string, error) {
		if !status.Valid() {
			return formatID(id), domain.NewValidationError("status", "oneof", "Invalid status")
		}
		var err error
		updated, err = s.store.UpdateStatus(ctx, id, status)
		if err != nil {
			return formatID(id), err
		}
		s.invalidateStats()
		return formatID(id), nil
	})
	return updated, err
}

// Delete permanently removes registration id.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.run(ctx, "delete", true, func(ctx context.Context) (string, error) {
		if err := s.store.Delete(ctx, id); err != nil {
			return formatID(id), err
		}
		s.invalidateStats()
		return formatID(id), nil
	})
}

// Stats returns the aggregate rollup over every registration.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := s.run(ctx, "stats", false, func(ctx context.Context) (string, error) {
		cached, gen, ok := s.cachedStats()
		if ok {
			stats = cached
			return "", nil
		}
		rows, err := s.store.Tally(ctx)
		if err != nil {
			return "", err
		}
		stats = computeStats(rows, s.catalog)
		s.storeStats(stats, gen)
		return "", nil
	})
	return stats, err
}

// Committees lists the catalog, optionally narrowed to one category.
func (s *Service) Committees(category string) ([]Committee, error) {
	if category == "" {
		return s.catalog.All(), nil
	}
	cat, err := domain.ParseCategory(category)
	if err != nil {
		return nil, domain.NewValidationError("category", "oneof", "Unknown committee category")
	}
	return s.catalog.FilterByCategory(cat), nil
}

func (s *Service) cachedStats() (Stats, uint64, bool) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	if s.statsCache == nil {
		return Stats{}, s.statsGen, false
	}
	if v, ok := s.statsCache.Get(statsCacheKey); ok {
		return v.(Stats), s.statsGen, true
	}
	return Stats{}, s.statsGen, false
}

// storeStats caches stats unless a write landed since gen was read.
func (s *Service) storeStats(stats Stats, gen uint64) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	if s.statsCache == nil || gen != s.statsGen {
		return
	}
	s.statsCache.SetDefault(statsCacheKey, stats)
}

func (s *Service) invalidateStats() {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	s.statsGen++
	if s.statsCache != nil {
		s.statsCache.Delete(statsCacheKey)
	}
}

// run wraps one operation with tracing, logging, metrics, and (for mutations)
// auditing. fn returns the id of the affected registration, if any.
func (s *Service) run(ctx context.Context, op string, audited bool, fn func(context.Context) (string, error)) error {
	ctx, span := s.tracer.Start(ctx, op)
	start := s.clock.Now()
	s.logger.Debug("operation started", "component", "core", "operation", op)

	entityID, err := fn(ctx)
	duration := s.clock.Now().Sub(start)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, duration)

	if err != nil {
		switch domain.KindOf(err) {
		case domain.KindStore, domain.KindInternal:
			s.logger.Error("operation failed", "component", "core", "operation", op, "id", entityID, "error", err, "duration", duration)
		default:
			s.logger.Warn("operation rejected", "component", "core", "operation", op, "id", entityID, "error", err, "duration", duration)
		}
		if audited {
			s.recordAudit(ctx, op, entityID, duration, err)
		}
		return err
	}
	s.logger.Debug("operation finished", "component", "core", "operation", op, "id", entityID, "duration", duration)
	if audited {
		s.recordAudit(ctx, op, entityID, duration, nil)
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, op, entityID string, duration time.Duration, err error) {
	entry := AuditEntry{
		Operation: op,
		EntityID:  entityID,
		Status:    AuditStatusSuccess,
		Duration:  duration,
		Timestamp: s.clock.Now().UTC(),
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
	}
	s.audit.Record(ctx, entry)
}

func validateFilter(filter ListFilter) error {
	switch {
	case filter.Status != "" && !filter.Status.Valid():
		return domain.NewValidationError("status", "oneof", "Unknown status")
	case filter.Class != "" && !domain.ValidClass(filter.Class):
		return domain.NewValidationError("class", "class", fieldMessages["class.class"])
	case filter.Division != "" && !domain.ValidDivision(filter.Division):
		return domain.NewValidationError("division", "division", fieldMessages["division.division"])
	}
	return nil
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// ErrArchiveDisabled is returned by archive operations when no blob store is configured.
var ErrArchiveDisabled = errors.New("export archive storage is not configured")
