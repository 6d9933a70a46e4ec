package sqlrepo

import (
	"errors"
	"strings"
	"testing"
	"time"

	"prodigymun/pkg/domain"
)

func TestRebind(t *testing.T) {
	q := "SELECT * FROM r WHERE a = ? AND b IN (?, ?)"
	if got := (Dialect{}).Rebind(q); got != q {
		t.Fatalf("expected passthrough, got %q", got)
	}
	if got := (Dialect{Numbered: true}).Rebind(q); got != "SELECT * FROM r WHERE a = $1 AND b IN ($2, $3)" {
		t.Fatalf("unexpected rebind %q", got)
	}
}

func TestBuildWhere(t *testing.T) {
	if where, args := buildWhere(domain.ListFilter{}, "LOWER"); where != "" || args != nil {
		t.Fatalf("expected empty where, got %q %v", where, args)
	}
	where, args := buildWhere(domain.ListFilter{
		Status:     domain.StatusConfirmed,
		Committees: []string{"unsc", "who"},
		Class:      "12th",
		Division:   "B",
		Search:     "50%_Ra",
	}, "LOWER")
	want := ` WHERE status = ? AND committee IN (?, ?) AND class = ? AND division = ? AND LOWER(name) LIKE ? ESCAPE '\'`
	if where != want {
		t.Fatalf("unexpected where\n got %q\nwant %q", where, want)
	}
	if len(args) != 6 || args[5] != `%50\%\_ra%` {
		t.Fatalf("unexpected args %v", args)
	}
	if strings.Count(where, "?") != len(args) {
		t.Fatalf("placeholder/arg mismatch")
	}
	if where, _ := buildWhere(domain.ListFilter{Search: "x"}, "go_lower"); where != ` WHERE go_lower(name) LIKE ? ESCAPE '\'` {
		t.Fatalf("dialect lower not applied: %q", where)
	}
}

func TestDecodeTime(t *testing.T) {
	want := time.Date(2025, 7, 1, 9, 30, 0, 500, time.UTC)
	for _, v := range []any{want, want.Format(TimeLayout), []byte(want.Format(time.RFC3339Nano))} {
		got, err := decodeTime(v)
		if err != nil || !got.Equal(want) {
			t.Fatalf("decode %v: %v %v", v, got, err)
		}
	}
	if _, err := decodeTime(42); err == nil {
		t.Fatalf("expected unsupported type error")
	}
	if _, err := decodeTime("yesterday"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestTimeLayoutSortsLexically(t *testing.T) {
	early := time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC).Format(TimeLayout)
	late := time.Date(2025, 7, 1, 9, 0, 0, 500_000_000, time.UTC).Format(TimeLayout)
	if !(early < late) || len(early) != len(late) {
		t.Fatalf("layout not lexically ordered: %q %q", early, late)
	}
}

func TestNewDefaults(t *testing.T) {
	r := New(nil, Dialect{Name: "test"})
	if r.dialect.IsUniqueViolation(errors.New("x")) {
		t.Fatalf("default unique detector must be false")
	}
	ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.FixedZone("IST", 19800))
	if got := r.dialect.EncodeTime(ts).(time.Time); got.Location() != time.UTC {
		t.Fatalf("expected utc encoding")
	}
	err := r.storeErr("get", errors.New("boom"))
	if domain.KindOf(err) != domain.KindStore || !strings.Contains(err.Error(), "test get") {
		t.Fatalf("unexpected store error %v", err)
	}
}
