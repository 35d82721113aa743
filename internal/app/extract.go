package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/nhle/notafiscal/internal/extract"
	"github.com/nhle/notafiscal/internal/jobs"
	"github.com/nhle/notafiscal/internal/model"
	"github.com/nhle/notafiscal/internal/notes"
	"github.com/nhle/notafiscal/internal/store"
)

// ExtractOutcome is the value of a finished extraction job.
type ExtractOutcome struct {
	// Selected is the number of attachments requested after the
	// XML-over-PDF preference was applied.
	Selected   int
	Downloaded []model.DownloadedAttachment
	Dir        string

	Batch *extract.BatchResult

	// Added is the number of items new to the store.
	Added int
}

// StartExtract downloads the given matches into a fresh directory under
// dir and extracts their items, under the extraction gate. The job's
// value is an *ExtractOutcome.
func (a *App) StartExtract(
	ctx context.Context, matches []model.AttachmentMatch, dir string,
) (*jobs.Job, error) {
	return a.runner.Go(ctx, a.runner.Extraction, "extract", func(
		ctx context.Context, progress func(done, total int, label string),
	) (any, error) {
		out, err := a.extract(ctx, matches, dir, progress)
		if err != nil {
			return nil, err
		}
		return out, nil
	})
}

func (a *App) extract(
	ctx context.Context,
	matches []model.AttachmentMatch,
	dir string,
	progress func(done, total int, label string),
) (*ExtractOutcome, error) {
	if a.extractor == nil {
		return nil, errors.New("no extractor configured")
	}

	run := &store.Run{Kind: store.RunExtract, StartedAt: a.now()}
	selections := make([]model.Selection, 0, len(matches))
	for _, m := range matches {
		selections = append(selections, m.Selection())
	}
	selections = notes.PreferXML(selections)

	out := &ExtractOutcome{
		Selected: len(selections),
		Dir:      filepath.Join(dir, run.StartedAt.Format("20060102-150405")),
	}
	if len(selections) == 0 {
		out.Batch = &extract.BatchResult{}
		return out, nil
	}

	downloaded, err := a.download(ctx, selections, out.Dir, progress)
	if err != nil {
		return nil, err
	}
	out.Downloaded = downloaded

	out.Batch = a.extractor.Run(ctx, downloaded, func(done, total int, name string) {
		progress(done, total, name)
	})

	// Whatever was extracted before a cancellation is kept.
	saveCtx := context.WithoutCancel(ctx)
	out.Added, err = a.store.SaveItems(saveCtx, out.Batch.Items)
	if err != nil {
		return nil, fmt.Errorf("saving items: %w", err)
	}

	run.FinishedAt = a.now()
	run.Scanned = out.Batch.Succeeded + len(out.Batch.Skipped) + len(out.Batch.Failures)
	run.Matched = out.Selected
	run.Succeeded = out.Batch.Succeeded
	run.Skipped = len(out.Batch.Skipped)
	run.Failed = len(out.Batch.Failures)
	run.Cancelled = out.Batch.Cancelled || ctx.Err() != nil
	if err := a.store.RecordRun(saveCtx, run); err != nil {
		a.log.Errorw("recording extraction run failed", "error", err)
	}

	a.log.Infow("extraction finished",
		"documents", out.Batch.Total,
		"succeeded", out.Batch.Succeeded,
		"skipped", len(out.Batch.Skipped),
		"failed", len(out.Batch.Failures),
		"items", len(out.Batch.Items),
		"added", out.Added,
	)
	return out, nil
}

func (a *App) download(
	ctx context.Context,
	selections []model.Selection,
	dir string,
	progress func(done, total int, label string),
) ([]model.DownloadedAttachment, error) {
	s, err := a.session(ctx)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	downloaded, err := s.DownloadAttachments(ctx, selections, dir, func(done, total int) {
		progress(done, total, fmt.Sprintf("downloading message %d of %d", done, total))
	})
	if err != nil {
		return nil, fmt.Errorf("downloading attachments: %w", err)
	}
	a.log.Debugw("attachments downloaded", "count", len(downloaded), "dir", dir)
	return downloaded, nil
}
