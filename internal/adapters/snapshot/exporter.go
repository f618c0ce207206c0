// Package snapshot writes fact document exports to blob storage and seeds the
// fact store from previously exported or hand-written documents.
package snapshot

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"statefacts/internal/blob"
	"statefacts/pkg/domain"
)

// Format selects the artifact encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// ParseFormat accepts "json" and "csv", case-insensitively. Empty means JSON.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatJSON, nil
	case FormatJSON, FormatCSV:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported export format %s", s)
	}
}

// ContentType returns the MIME type stored alongside the artifact.
func (f Format) ContentType() string {
	if f == FormatCSV {
		return "text/csv"
	}
	return "application/json"
}

// Artifact describes a stored export.
type Artifact struct {
	Key         string    `json:"key"`
	Format      Format    `json:"format"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	Documents   int       `json:"documents"`
	Facts       int       `json:"facts"`
	CreatedAt   time.Time `json:"created_at"`
}

// Source lists every stored fact document.
type Source interface {
	ListDocuments(ctx context.Context) ([]domain.FactDocument, error)
}

// ExportInput configures a single export.
type ExportInput struct {
	// Key overrides the generated exports/facts-<timestamp>.<format> key.
	Key       string
	Format    Format
	Overwrite bool
}

// Exporter renders fact documents and stores them as blobs.
type Exporter struct {
	source Source
	store  blob.Store
	now    func() time.Time
}

// ExporterOption configures an Exporter.
type ExporterOption func(*Exporter)

// WithClock overrides the time source used for keys and timestamps.
func WithClock(now func() time.Time) ExporterOption {
	return func(e *Exporter) {
		if now != nil {
			e.now = now
		}
	}
}

// NewExporter constructs an exporter over source and store.
func NewExporter(source Source, store blob.Store, opts ...ExporterOption) *Exporter {
	e := &Exporter{source: source, store: store, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// DefaultKey returns the key used when ExportInput.Key is empty.
func DefaultKey(at time.Time, format Format) string {
	return fmt.Sprintf("exports/facts-%s.%s", at.UTC().Format("20060102T150405Z"), format)
}

// Export snapshots every fact document into one blob.
func (e *Exporter) Export(ctx context.Context, input ExportInput) (Artifact, error) {
	if e.source == nil || e.store == nil {
		return Artifact{}, errors.New("exporter not configured")
	}
	format := input.Format
	if format == "" {
		format = FormatJSON
	}
	docs, err := e.source.ListDocuments(ctx)
	if err != nil {
		return Artifact{}, fmt.Errorf("list documents: %w", err)
	}
	payload, err := materialize(format, docs)
	if err != nil {
		return Artifact{}, err
	}

	now := e.now().UTC()
	key := strings.TrimSpace(input.Key)
	if key == "" {
		key = DefaultKey(now, format)
	}
	opts := blob.PutOptions{
		ContentType: format.ContentType(),
		Metadata: map[string]string{
			"documents": strconv.Itoa(len(docs)),
			"format":    string(format),
		},
	}
	var info blob.Info
	if input.Overwrite {
		info, err = blob.Replace(ctx, e.store, key, payload, opts)
	} else {
		info, err = e.store.Put(ctx, key, bytes.NewReader(payload), opts)
	}
	if err != nil {
		return Artifact{}, fmt.Errorf("store export %s: %w", key, err)
	}

	facts := 0
	for _, d := range docs {
		facts += len(d.Facts)
	}
	return Artifact{
		Key:         info.Key,
		Format:      format,
		ContentType: format.ContentType(),
		SizeBytes:   int64(len(payload)),
		Documents:   len(docs),
		Facts:       facts,
		CreatedAt:   now,
	}, nil
}

var csvHeader = []string{"stateCode", "position", "funfact", "version", "updated_at"}

// materialize encodes docs. CSV emits one row per fact with its 1-based position.
func materialize(format Format, docs []domain.FactDocument) ([]byte, error) {
	if docs == nil {
		docs = []domain.FactDocument{}
	}
	switch format {
	case FormatJSON:
		payload, err := json.MarshalIndent(docs, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal json: %w", err)
		}
		return append(payload, '\n'), nil
	case FormatCSV:
		buf := &bytes.Buffer{}
		w := csv.NewWriter(buf)
		if err := w.Write(csvHeader); err != nil {
			return nil, err
		}
		for _, d := range docs {
			updated := ""
			if !d.UpdatedAt.IsZero() {
				updated = d.UpdatedAt.UTC().Format(time.RFC3339)
			}
			for i, fact := range d.Facts {
				row := []string{d.StateCode, strconv.Itoa(i + 1), fact, strconv.FormatInt(d.Version, 10), updated}
				if err := w.Write(row); err != nil {
					return nil, err
				}
			}
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported export format %s", format)
	}
}
