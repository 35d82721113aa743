package app

import (
	"context"
	"fmt"

	"github.com/nhle/notafiscal/internal/jobs"
	"github.com/nhle/notafiscal/internal/mailbox"
	"github.com/nhle/notafiscal/internal/model"
	"github.com/nhle/notafiscal/internal/store"
)

// SearchRequest holds the filters of one note search. Empty fields fall
// back to the configured defaults.
type SearchRequest struct {
	Kinds   []model.NoteKind
	Limit   int
	Include []string
	Exclude []string
}

// SearchOutcome is the value of a finished search job.
type SearchOutcome struct {
	RunID     string
	Scanned   int
	Matches   []model.AttachmentMatch
	Cancelled bool
}

func (a *App) searchOptions(req SearchRequest) mailbox.SearchOptions {
	opts := mailbox.SearchOptions{
		Kinds:   req.Kinds,
		Limit:   req.Limit,
		Include: req.Include,
		Exclude: req.Exclude,
	}
	if len(opts.Kinds) == 0 {
		for _, k := range a.cfg.Search.Kinds {
			opts.Kinds = append(opts.Kinds, model.NoteKind(k))
		}
	}
	if opts.Limit <= 0 {
		opts.Limit = a.cfg.Search.Limit
	}
	if opts.Include == nil {
		opts.Include = a.cfg.Search.IncludeKeywords
	}
	if opts.Exclude == nil {
		opts.Exclude = a.cfg.Search.ExcludeKeywords
	}
	return opts
}

// StartSearch launches a note search under the email gate. The job's
// value is a *SearchOutcome; the matches are saved even when the search is
// cancelled.
func (a *App) StartSearch(ctx context.Context, req SearchRequest) (*jobs.Job, error) {
	return a.runner.Go(ctx, a.runner.Email, "search", func(
		ctx context.Context, progress func(done, total int, label string),
	) (any, error) {
		out, err := a.search(ctx, req, progress)
		if err != nil {
			return nil, err
		}
		return out, nil
	})
}

func (a *App) search(
	ctx context.Context, req SearchRequest, progress func(done, total int, label string),
) (*SearchOutcome, error) {
	run := &store.Run{Kind: store.RunSearch, StartedAt: a.now()}
	out := &SearchOutcome{}

	opts := a.searchOptions(req)
	opts.OnProgress = func(done, total int) {
		out.Scanned = done
		progress(done, total, fmt.Sprintf("message %d of %d", done, total))
	}

	s, err := a.session(ctx)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	matches, err := s.SearchNotes(ctx, opts)
	out.Matches = matches
	out.Cancelled = ctx.Err() != nil

	run.FinishedAt = a.now()
	run.Scanned = out.Scanned
	run.Matched = len(matches)
	run.Cancelled = out.Cancelled
	if err != nil {
		run.Error = err.Error()
	}

	// The run is recorded with a fresh context so a cancelled search still
	// leaves its partial result behind.
	saveCtx := context.WithoutCancel(ctx)
	if recErr := a.store.RecordRun(saveCtx, run); recErr != nil {
		a.log.Errorw("recording search run failed", "error", recErr)
	}
	if err != nil {
		return nil, err
	}
	if err := a.store.SaveMatches(saveCtx, run.ID, matches); err != nil {
		return nil, fmt.Errorf("saving search results: %w", err)
	}

	out.RunID = run.ID
	a.log.Infow("search finished",
		"scanned", out.Scanned,
		"matches", len(matches),
		"cancelled", out.Cancelled,
	)
	return out, nil
}

// LatestMatches returns the saved result of the most recent search.
func (a *App) LatestMatches(ctx context.Context) (*store.Run, []model.AttachmentMatch, error) {
	run, matches, err := a.store.LatestMatches(ctx)
	if err != nil {
		return nil, nil, err
	}
	if run == nil {
		return nil, nil, ErrNoSearch
	}
	return run, matches, nil
}

// SelectMatches returns the saved matches whose message UID is in uids,
// or every saved match when uids is empty.
func (a *App) SelectMatches(ctx context.Context, uids []string) ([]model.AttachmentMatch, error) {
	_, matches, err := a.LatestMatches(ctx)
	if err != nil {
		return nil, err
	}
	if len(uids) == 0 {
		return matches, nil
	}

	want := make(map[string]bool, len(uids))
	for _, u := range uids {
		want[u] = true
	}
	var out []model.AttachmentMatch
	for _, m := range matches {
		if want[m.UID] {
			out = append(out, m)
		}
	}
	return out, nil
}
