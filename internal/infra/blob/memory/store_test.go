package memory

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"prodigymun/internal/blob/core"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()
	fixed := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	s.SetNowFunc(func() time.Time { return fixed })
	if s.Driver() != core.DriverMemory {
		t.Fatalf("unexpected driver %s", s.Driver())
	}
	info, err := s.Put(ctx, "exports/a.csv", strings.NewReader("Name\n"), core.PutOptions{ContentType: "text/csv", Metadata: map[string]string{"rows": "0"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != 5 || !info.LastModified.Equal(fixed) || info.Metadata["rows"] != "0" {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := s.Put(ctx, "exports/a.csv", strings.NewReader("x"), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	got, rc, err := s.Get(ctx, "exports/a.csv")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != "Name\n" || got.ContentType != "text/csv" {
		t.Fatalf("unexpected get %q %+v", body, got)
	}
	got.Metadata["rows"] = "mutated"
	if head, _ := s.Head(ctx, "exports/a.csv"); head.Metadata["rows"] != "0" {
		t.Fatalf("metadata leaked")
	}
	if _, err := s.Put(ctx, "other/b.csv", strings.NewReader("b"), core.PutOptions{}); err != nil {
		t.Fatalf("put other: %v", err)
	}
	list, _ := s.List(ctx, "exports/")
	if len(list) != 1 || list[0].Key != "exports/a.csv" {
		t.Fatalf("unexpected list %+v", list)
	}
	if all, _ := s.List(ctx, ""); len(all) != 2 {
		t.Fatalf("expected 2 blobs, got %d", len(all))
	}
	if _, err := s.PresignURL(ctx, "exports/a.csv", core.SignedURLOptions{}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected unsupported presign")
	}
	if ok, _ := s.Delete(ctx, "exports/a.csv"); !ok {
		t.Fatalf("expected delete to report existing")
	}
	if ok, _ := s.Delete(ctx, "exports/a.csv"); ok {
		t.Fatalf("expected second delete to report missing")
	}
	if _, err := s.Head(ctx, "exports/a.csv"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryStoreRejectsBadKeys(t *testing.T) {
	s := New()
	if _, err := s.Put(context.Background(), "../escape", strings.NewReader(""), core.PutOptions{}); err == nil {
		t.Fatalf("expected traversal rejected")
	}
	if _, _, err := s.Get(context.Background(), ""); err == nil {
		t.Fatalf("expected empty key rejected")
	}
}
