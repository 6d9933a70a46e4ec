package core

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strconv"
	"time"

	"prodigymun/internal/blob"
)

// ArchivePrefix is the blob key prefix under which CSV exports are archived.
const ArchivePrefix = "exports/"

const archiveStampLayout = "20060102T150405.000000000Z"

// ExportColumns is the CSV header row.
var ExportColumns = []string{"Name", "Class", "Division", "Committee", "Status", "Email", "Suggestions", "Registration Time"}

// ExportCSV writes the registrations matching filter to w and returns the
// number of data rows written.
func (s *Service) ExportCSV(ctx context.Context, w io.Writer, filter ListFilter) (int, error) {
	var rows int
	err := s.run(ctx, "export", false, func(ctx context.Context) (string, error) {
		var err error
		rows, err = s.writeCSV(ctx, w, filter)
		return "", err
	})
	return rows, err
}

// ArchiveExport renders the filtered CSV into the blob store and returns the
// stored object, with a download URL when the backend can presign one.
func (s *Service) ArchiveExport(ctx context.Context, filter ListFilter) (blob.Info, error) {
	var info blob.Info
	err := s.run(ctx, "archive_export", true, func(ctx context.Context) (string, error) {
		if s.blobs == nil {
			return "", ErrArchiveDisabled
		}
		var buf bytes.Buffer
		rows, err := s.writeCSV(ctx, &buf, filter)
		if err != nil {
			return "", err
		}
		key := ArchiveKey(s.clock.Now())
		info, err = s.blobs.Put(ctx, key, &buf, blob.PutOptions{
			ContentType: "text/csv",
			Metadata:    map[string]string{"rows": strconv.Itoa(rows)},
		})
		if err != nil {
			return key, err
		}
		info.URL = s.presign(ctx, key)
		return key, nil
	})
	return info, err
}

// ListArchives returns the archived exports ordered by key, oldest first.
func (s *Service) ListArchives(ctx context.Context) ([]blob.Info, error) {
	var infos []blob.Info
	err := s.run(ctx, "list_archives", false, func(ctx context.Context) (string, error) {
		if s.blobs == nil {
			return "", ErrArchiveDisabled
		}
		var err error
		infos, err = s.blobs.List(ctx, ArchivePrefix)
		return "", err
	})
	return infos, err
}

// ArchiveKey returns the blob key for an export taken at t.
func ArchiveKey(t time.Time) string {
	return ArchivePrefix + "mun_registrations_" + t.UTC().Format(archiveStampLayout) + ".csv"
}

func (s *Service) presign(ctx context.Context, key string) string {
	url, err := s.blobs.PresignURL(ctx, key, blob.SignedURLOptions{Method: "GET", Expiry: s.presignExpiry})
	if err != nil {
		if !errors.Is(err, blob.ErrUnsupported) {
			s.logger.Warn("presign archive failed", "component", "core", "id", key, "error", err)
		}
		return ""
	}
	return url
}

func (s *Service) writeCSV(ctx context.Context, w io.Writer, filter ListFilter) (int, error) {
	if err := validateFilter(filter); err != nil {
		return 0, err
	}
	regs, err := s.store.List(ctx, filter)
	if err != nil {
		return 0, err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(ExportColumns); err != nil {
		return 0, err
	}
	for _, reg := range regs {
		if err := cw.Write(s.exportRecord(reg)); err != nil {
			return 0, err
		}
	}
	cw.Flush()
	return len(regs), cw.Error()
}

func (s *Service) exportRecord(reg Registration) []string {
	email := "Not provided"
	if reg.Email != nil {
		email = *reg.Email
	}
	suggestions := ""
	if reg.Suggestions != nil {
		suggestions = *reg.Suggestions
	}
	return []string{
		reg.Name,
		reg.Class,
		reg.Division,
		s.catalog.DisplayName(reg.Committee),
		string(reg.Status),
		email,
		suggestions,
		reg.CreatedAt.UTC().Format(time.RFC3339),
	}
}
