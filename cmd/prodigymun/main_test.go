package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"prodigymun/internal/config"
	"prodigymun/internal/core"

	"golang.org/x/crypto/bcrypt"
)

// isolateEnv keeps ambient configuration out of the command under test.
func isolateEnv(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	names := []string{"PORT", "DEBUG", "BIND_ADDR", "STORAGE_DRIVER", "SQLITE_PATH", "TRACING", "BLOB_DRIVER"}
	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(name, "PRODIGYMUN_") {
			names = append(names, name)
		}
	}
	for _, name := range names {
		t.Setenv(name, "")
		_ = os.Unsetenv(name)
	}
}

func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCommand()
	root.SetArgs(args)
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetIn(strings.NewReader(stdin))
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestCommitteesCommand(t *testing.T) {
	isolateEnv(t)
	out, _, err := execute(t, "", "committees", "--category", "international", "--storage", "memory")
	if err != nil {
		t.Fatalf("committees: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 14 {
		t.Fatalf("expected header plus 13 committees, got %d lines:\n%s", len(lines), out)
	}
	if !strings.Contains(out, "unsc") || strings.Contains(out, "lok-sabha") {
		t.Fatalf("unexpected committee listing:\n%s", out)
	}

	if _, _, err := execute(t, "", "committees", "--category", "lunar", "--storage", "memory"); err == nil {
		t.Fatalf("expected unknown category error")
	}
}

func TestHashPasswordCommand(t *testing.T) {
	isolateEnv(t)
	out, _, err := execute(t, "", "hash-password", "--storage", "memory", "hunter22")
	if err != nil {
		t.Fatalf("hash-password: %v", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(strings.TrimSpace(out)), []byte("hunter22")); err != nil {
		t.Fatalf("hash does not verify: %v", err)
	}

	out, _, err = execute(t, "from stdin\n", "hash-password", "--storage", "memory")
	if err != nil {
		t.Fatalf("hash-password stdin: %v", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(strings.TrimSpace(out)), []byte("from stdin")); err != nil {
		t.Fatalf("stdin hash does not verify: %v", err)
	}

	if _, _, err := execute(t, "", "hash-password", "--storage", "memory"); err == nil {
		t.Fatalf("expected error for empty input")
	}
}

func TestInvalidStorageFlag(t *testing.T) {
	isolateEnv(t)
	_, _, err := execute(t, "", "committees", "--storage", "floppy")
	if err == nil || !strings.Contains(err.Error(), "storageDriver") {
		t.Fatalf("expected storage validation error, got %v", err)
	}
}

func TestExportCommandWritesFilteredCSV(t *testing.T) {
	isolateEnv(t)
	dbPath := filepath.Join(t.TempDir(), "mun.db")
	ctx := context.Background()

	store, err := core.OpenPersistentStore(ctx, core.StorageOptions{Driver: core.StorageSQLite, SQLitePath: dbPath})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	svc := core.NewService(store)
	for _, in := range []core.RegistrationInput{
		{Name: "Asha Rao", Class: "10th", Division: "B", Committee: "lok-sabha"},
		{Name: "Ben Thomas", Class: "12th", Division: "A", Committee: "unsc"},
	} {
		if _, err := svc.Create(ctx, in); err != nil {
			t.Fatalf("seed %s: %v", in.Name, err)
		}
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	t.Setenv("PRODIGYMUN_SQLITE_PATH", dbPath)
	outPath := filepath.Join(t.TempDir(), "out.csv")
	if _, _, err := execute(t, "", "export", "--storage", "sqlite", "--category", "indian", "--out", outPath); err != nil {
		t.Fatalf("export: %v", err)
	}
	f, err := os.Open(outPath)
	if err != nil {
		t.Fatalf("open export: %v", err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("parse export: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected header plus one row, got %v", records)
	}
	if records[1][0] != "Asha Rao" || records[1][3] != "Lok Sabha" {
		t.Fatalf("unexpected row %v", records[1])
	}
}

func TestNewAppServesAPI(t *testing.T) {
	cfg := config.Default()
	cfg.StorageDriver = string(core.StorageMemory)
	cfg.BlobDriver = "memory"
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	a, err := newApp(context.Background(), cfg, logger, io.Discard)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	defer a.close(context.Background())

	srv := httptest.NewServer(a.handler)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/registrations", "application/json",
		strings.NewReader(`{"name":"Asha Rao","class":"10th","division":"B","committee":"lok-sabha"}`))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create status %d", resp.StatusCode)
	}

	resp, err = http.Post(srv.URL+"/api/registrations/exports", "application/json", nil)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("archive status %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	for _, want := range []string{"prodigymun_http_requests_total", "prodigymun_registrations_created_total", "go_goroutines"} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("metrics missing %s", want)
		}
	}
}

func TestNewAppRequiresPasswordWhenAuthEnforced(t *testing.T) {
	cfg := config.Default()
	cfg.StorageDriver = string(core.StorageMemory)
	cfg.BlobDriver = "memory"
	cfg.AdminRequireAuth = true
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	if _, err := newApp(context.Background(), cfg, logger, io.Discard); err == nil {
		t.Fatalf("expected error without admin password")
	}
}
