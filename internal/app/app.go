// Package app wires the mailbox, the extractor and the store into the
// operations offered by the command line: listing, note search, item
// extraction and reports.
package app

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/notafiscal/internal/extract"
	"github.com/nhle/notafiscal/internal/jobs"
	"github.com/nhle/notafiscal/internal/mailbox"
	"github.com/nhle/notafiscal/internal/model"
	"github.com/nhle/notafiscal/internal/store"
)

// ErrNoSearch is returned when extraction is requested before any search
// result was saved.
var ErrNoSearch = errors.New("no saved search results; run search first")

// Session is the part of a mailbox session the operations use.
// *mailbox.Session implements it.
type Session interface {
	CountInbox(ctx context.Context) int
	ListRecent(ctx context.Context, limit int, onItem func(model.MessageSummary)) ([]model.MessageSummary, error)
	FetchFullEmail(ctx context.Context, uid string) (*model.FullEmail, error)
	SearchNotes(ctx context.Context, opts mailbox.SearchOptions) ([]model.AttachmentMatch, error)
	DownloadAttachments(
		ctx context.Context,
		selections []model.Selection,
		dir string,
		onProgress func(done, total int),
	) ([]model.DownloadedAttachment, error)
	Close() error
}

// Opener returns a connected session owned by the calling goroutine.
type Opener func(ctx context.Context) (Session, error)

// MailboxOpener opens sessions of client.
func MailboxOpener(client *mailbox.Client) Opener {
	return func(ctx context.Context) (Session, error) {
		s, err := client.Open(ctx)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// BatchExtractor turns downloaded documents into deduplicated line items.
// *extract.Extractor implements it.
type BatchExtractor interface {
	Run(
		ctx context.Context,
		atts []model.DownloadedAttachment,
		onProgress func(done, total int, name string),
	) *extract.BatchResult
}

// App holds the wired dependencies of every operation.
type App struct {
	cfg       *model.AppConfig
	store     store.Store
	open      Opener
	extractor BatchExtractor
	runner    *jobs.Runner
	log       *zap.SugaredLogger

	now func() time.Time
}

// New creates an App. open and extractor may be nil for commands that only
// read the store.
func New(
	cfg *model.AppConfig,
	st store.Store,
	open Opener,
	extractor BatchExtractor,
	log *zap.SugaredLogger,
) *App {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &App{
		cfg:       cfg,
		store:     st,
		open:      open,
		extractor: extractor,
		runner:    jobs.NewRunner(log),
		log:       log,
		now:       time.Now,
	}
}

// Config returns the configuration the App was created with.
func (a *App) Config() *model.AppConfig { return a.cfg }

// Store returns the persistence layer.
func (a *App) Store() store.Store { return a.store }

// Runner returns the gates guarding background operations.
func (a *App) Runner() *jobs.Runner { return a.runner }

func (a *App) session(ctx context.Context) (Session, error) {
	if a.open == nil {
		return nil, errors.New("no mailbox configured")
	}
	return a.open(ctx)
}
