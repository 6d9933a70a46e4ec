package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"prodigymun/internal/catalog"
	"prodigymun/internal/infra/persistence/memory"
	"prodigymun/pkg/domain"
)

var fixedNow = time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)

type stubClock struct{ t time.Time }

func (s stubClock) Now() time.Time { return s.t }

// steppingClock advances by one minute on every read.
type steppingClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Minute)
	return c.t
}

type captureLogger struct {
	mu    sync.Mutex
	calls []string
}

func (c *captureLogger) record(prefix, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, prefix+msg)
}

func (c *captureLogger) Debug(msg string, _ ...any) { c.record("d:", msg) }
func (c *captureLogger) Info(msg string, _ ...any)  { c.record("i:", msg) }
func (c *captureLogger) Warn(msg string, _ ...any)  { c.record("w:", msg) }
func (c *captureLogger) Error(msg string, _ ...any) { c.record("e:", msg) }

func (c *captureLogger) count(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, call := range c.calls {
		if len(call) >= len(prefix) && call[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

type captureAuditRecorder struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (c *captureAuditRecorder) Record(_ context.Context, entry AuditEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entry)
}

func (c *captureAuditRecorder) has(op string, status AuditStatus, predicate func(AuditEntry) bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, entry := range c.entries {
		if entry.Operation == op && entry.Status == status {
			if predicate == nil || predicate(entry) {
				return true
			}
		}
	}
	return false
}

type metricsCall struct {
	op       string
	success  bool
	duration time.Duration
}

type captureMetricsRecorder struct {
	mu    sync.Mutex
	calls []metricsCall
}

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, metricsCall{op: op, success: success, duration: duration})
}

func (c *captureMetricsRecorder) has(op string, success bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, call := range c.calls {
		if call.op == op && call.success == success {
			return true
		}
	}
	return false
}

type spanRecord struct {
	op  string
	err error
}

type captureTracer struct {
	mu      sync.Mutex
	started []string
	ended   []spanRecord
}

func (c *captureTracer) Start(ctx context.Context, op string) (context.Context, TraceSpan) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = append(c.started, op)
	return ctx, &captureSpan{tracer: c, op: op}
}

func (c *captureTracer) has(op string, success bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, record := range c.ended {
		if record.op == op && (record.err == nil) == success {
			return true
		}
	}
	return false
}

type captureSpan struct {
	tracer *captureTracer
	op     string
}

func (s *captureSpan) End(err error) {
	s.tracer.mu.Lock()
	defer s.tracer.mu.Unlock()
	s.tracer.ended = append(s.tracer.ended, spanRecord{op: s.op, err: err})
}

// failingStore fails every call with a StoreError.
type failingStore struct{}

var errStoreDown = errors.New("database unavailable")

func (failingStore) fail(op string) error { return domain.StoreError{Op: op, Err: errStoreDown} }

func (f failingStore) FindByNaturalKey(context.Context, NaturalKey) (Registration, bool, error) {
	return Registration{}, false, f.fail("find")
}
func (f failingStore) Insert(context.Context, Registration) (Registration, error) {
	return Registration{}, f.fail("insert")
}
func (f failingStore) Get(context.Context, int64) (Registration, error) {
	return Registration{}, f.fail("get")
}
func (f failingStore) List(context.Context, ListFilter) ([]Registration, error) {
	return nil, f.fail("list")
}
func (f failingStore) UpdateStatus(context.Context, int64, Status) (Registration, error) {
	return Registration{}, f.fail("update")
}
func (f failingStore) Delete(context.Context, int64) error { return f.fail("delete") }
func (f failingStore) Tally(context.Context) (domain.TallyRows, error) {
	return nil, f.fail("tally")
}
func (failingStore) Close() error { return nil }

// countingStore counts Tally calls on top of a memory store.
type countingStore struct {
	*memory.Store
	mu      sync.Mutex
	tallies int
}

func (c *countingStore) Tally(ctx context.Context) (domain.TallyRows, error) {
	c.mu.Lock()
	c.tallies++
	c.mu.Unlock()
	return c.Store.Tally(ctx)
}

func (c *countingStore) tallyCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tallies
}

// racingStore hides existing rows from FindByNaturalKey so that only the
// store's uniqueness constraint can reject a duplicate.
type racingStore struct {
	*memory.Store
}

func (racingStore) FindByNaturalKey(context.Context, NaturalKey) (Registration, bool, error) {
	return Registration{}, false, nil
}

func newTestService(t *testing.T, opts ...ServiceOption) (*Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	opts = append([]ServiceOption{WithClock(&steppingClock{t: fixedNow})}, opts...)
	return NewService(store, opts...), store
}

func twoCommitteeCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.Parse([]byte(`version: 1
committees:
  - id: lok-sabha
    name: Lok Sabha
    description: Lower House
    category: indian
  - id: unsc
    name: UNSC
    description: Security Council
    category: international
`))
	if err != nil {
		t.Fatalf("parse catalog: %v", err)
	}
	return c
}

func validInput() RegistrationInput {
	return RegistrationInput{
		Name:      "Asha Rao",
		Class:     "10th",
		Division:  "B",
		Committee: "lok-sabha",
	}
}

func mustCreate(t *testing.T, svc *Service, in RegistrationInput) Registration {
	t.Helper()
	reg, err := svc.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("create %q: %v", in.Name, err)
	}
	return reg
}
