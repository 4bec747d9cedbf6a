package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/alanyoungcy/tradepilot/internal/domain"
)

const contentTypeJSONL = "application/x-ndjson"

// multipartThreshold switches uploads to the multipart manager.
const multipartThreshold = 8 * 1024 * 1024

// Archiver implements domain.Archiver. Decisions older than the cutoff are
// written as one JSONL file per day and then deleted from the database.
// The audit log is append-only, so it is copied, never deleted.
type Archiver struct {
	writer    domain.BlobWriter
	reader    domain.BlobReader
	decisions domain.DecisionStore
	audit     domain.AuditStore
}

// NewArchiver creates an Archiver.
func NewArchiver(writer domain.BlobWriter, reader domain.BlobReader, decisions domain.DecisionStore, audit domain.AuditStore) *Archiver {
	return &Archiver{writer: writer, reader: reader, decisions: decisions, audit: audit}
}

// ArchiveDecisions uploads every decision created before the cutoff to
// archive/decisions/YYYY-MM-DD.jsonl, deletes them from the store, and
// records the run in the audit log. It returns the number archived.
func (a *Archiver) ArchiveDecisions(ctx context.Context, before time.Time) (int64, error) {
	decisions, err := a.decisions.ListBefore(ctx, before, 0)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive decisions query: %w", err)
	}
	if len(decisions) == 0 {
		return 0, nil
	}

	byDay := make(map[string][]domain.Decision)
	for _, d := range decisions {
		day := d.Timestamp.UTC().Format("2006-01-02")
		byDay[day] = append(byDay[day], d)
	}
	days := make([]string, 0, len(byDay))
	for day := range byDay {
		days = append(days, day)
	}
	sort.Strings(days)

	paths := make([]string, 0, len(days))
	for _, day := range days {
		path, err := upload(ctx, a, "decisions", day, byDay[day])
		if err != nil {
			return 0, err
		}
		paths = append(paths, path)
	}

	deleted, err := a.decisions.DeleteBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive decisions delete: %w", err)
	}

	count := int64(len(decisions))
	if err := a.audit.Log(ctx, "archive.decisions", map[string]any{
		"paths":   paths,
		"count":   count,
		"deleted": deleted,
		"before":  before.UTC().Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive decisions audit log: %w", err)
	}
	return count, nil
}

// ArchiveAudit copies the audit rows of the day ending at before to
// archive/audit/YYYY-MM-DD.jsonl. A day already archived is skipped.
func (a *Archiver) ArchiveAudit(ctx context.Context, before time.Time) (int64, error) {
	since := before.Add(-24 * time.Hour)
	day := since.UTC().Format("2006-01-02")
	path := archivePath("audit", day, 0)

	exists, err := a.reader.Exists(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit check: %w", err)
	}
	if exists {
		return 0, nil
	}

	entries, err := a.audit.List(ctx, domain.ListOpts{Since: &since, Until: &before})
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit query: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}
	// List is newest first; archives read oldest first.
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })

	if _, err := upload(ctx, a, "audit", day, entries); err != nil {
		return 0, err
	}
	return int64(len(entries)), nil
}

// upload writes records to the first free path for kind and day.
func upload[T any](ctx context.Context, a *Archiver, kind, day string, records []T) (string, error) {
	buf, err := marshalJSONL(records)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive %s marshal: %w", kind, err)
	}

	path := ""
	for n := 0; ; n++ {
		path = archivePath(kind, day, n)
		exists, err := a.reader.Exists(ctx, path)
		if err != nil {
			return "", fmt.Errorf("s3blob: archive %s check: %w", kind, err)
		}
		if !exists {
			break
		}
	}

	if len(buf) >= multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), contentTypeJSONL)
	}
	if err != nil {
		return "", fmt.Errorf("s3blob: archive %s upload: %w", kind, err)
	}
	return path, nil
}

// archivePath builds the object key for an archive file. Later runs for a
// day that already has a file get a numeric suffix.
//
//	archive/decisions/2026-01-31.jsonl
//	archive/decisions/2026-01-31.1.jsonl
func archivePath(kind, day string, n int) string {
	if n == 0 {
		return fmt.Sprintf("archive/%s/%s.jsonl", kind, day)
	}
	return fmt.Sprintf("archive/%s/%s.%d.jsonl", kind, day, n)
}

// marshalJSONL serialises records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Compile-time interface check.
var _ domain.Archiver = (*Archiver)(nil)
