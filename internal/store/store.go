package store

import (
	"context"
	"time"

	"github.com/nhle/notafiscal/internal/model"
)

// RunKind identifies the operation a Run records.
type RunKind string

const (
	RunSearch  RunKind = "search"
	RunExtract RunKind = "extract"
)

// Run is the summary of one search or extraction.
type Run struct {
	ID         string    `json:"id" yaml:"id"`
	Kind       RunKind   `json:"kind" yaml:"kind"`
	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at" yaml:"finished_at"`

	// Scanned is the number of messages (search) or documents (extract)
	// processed before the run ended.
	Scanned   int `json:"scanned" yaml:"scanned"`
	Matched   int `json:"matched" yaml:"matched"`
	Succeeded int `json:"succeeded" yaml:"succeeded"`
	Skipped   int `json:"skipped" yaml:"skipped"`
	Failed    int `json:"failed" yaml:"failed"`

	Cancelled bool   `json:"cancelled" yaml:"cancelled"`
	Error     string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Store defines the persistence interface for search runs, the attachments
// they matched and the extracted line items.
type Store interface {
	// === Runs ===

	RecordRun(ctx context.Context, run *Run) error
	Runs(ctx context.Context, limit int) ([]Run, error)

	// === Attachment matches ===

	SaveMatches(ctx context.Context, runID string, matches []model.AttachmentMatch) error
	LatestMatches(ctx context.Context) (*Run, []model.AttachmentMatch, error)

	// === Line items ===

	SaveItems(ctx context.Context, items []model.LineItem) (int, error)
	Items(ctx context.Context) ([]model.LineItem, error)
	ClearItems(ctx context.Context) (int64, error)

	Close() error
}
