package mailbox

import (
	"context"
	"fmt"

	"github.com/nhle/notafiscal/internal/model"
	"github.com/nhle/notafiscal/internal/notes"
)

const (
	// MaxScan bounds how many recent messages one search inspects.
	MaxScan = 5000

	// probeEvery is the number of scanned messages between NOOP probes.
	probeEvery = 50
)

// SearchOptions configures SearchNotes.
type SearchOptions struct {
	Kinds   []model.NoteKind
	Limit   int
	Include []string
	Exclude []string

	// OnProgress is called before each message with its 1-based index
	// and the number of messages to scan.
	OnProgress func(done, total int)

	// OnResult is called for every accepted attachment as it is found.
	OnResult func(model.AttachmentMatch)
}

// SearchNotes scans the most recent min(Limit, MaxScan) messages, newest
// first, and returns the attachments accepted by the keyword and kind
// filter, in scan order.
//
// Cancelling ctx stops the scan before the next message; the matches found
// so far are returned with a nil error. A command already sent to the
// server is not interrupted. Messages that fail to fetch or parse are
// skipped; only authentication failures and connections that stay broken
// after a reconnect abort the scan.
func (s *Session) SearchNotes(
	ctx context.Context, opts SearchOptions,
) ([]model.AttachmentMatch, error) {
	if opts.Limit <= 0 {
		return nil, nil
	}
	if err := s.ensure(ctx); err != nil {
		return nil, err
	}

	uids, err := s.allUIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("searching notes: %w", err)
	}

	limit := opts.Limit
	if limit > MaxScan {
		limit = MaxScan
	}
	toScan := newestFirst(uids, limit)
	filter := notes.NewFilter(opts.Kinds, opts.Include, opts.Exclude)

	s.log.Infow("scanning messages",
		"messages", len(toScan),
		"kinds", filter.Kinds,
		"include", filter.Include,
		"exclude", filter.Exclude,
	)

	var results []model.AttachmentMatch
	total := len(toScan)
	for idx, uid := range toScan {
		n := idx + 1
		if ctx.Err() != nil {
			s.log.Infow("search cancelled", "scanned", idx, "total", total)
			break
		}

		if opts.OnProgress != nil {
			opts.OnProgress(n, total)
		}

		if n%probeEvery == 0 {
			if err := s.ensure(ctx); err != nil {
				return results, err
			}
		}

		raw, err := s.fetchFull(ctx, uid)
		if err != nil {
			if IsConnectionError(err) || IsAuthError(err) {
				return results, err
			}
			s.log.Debugw("skipping message", "uid", uid, "error", err)
			continue
		}
		if len(raw) == 0 {
			continue
		}

		msg, err := parseMessage(raw)
		if err != nil {
			s.log.Debugw("skipping unparseable message", "uid", uid, "error", err)
			continue
		}

		msg.header.UID = formatUID(uid)
		matches := filter.Screen(msg.header, msg.filenames())
		for _, m := range matches {
			s.log.Debugw("attachment accepted", "uid", m.UID, "filename", m.Filename)
			results = append(results, m)
			if opts.OnResult != nil {
				opts.OnResult(m)
			}
		}
	}

	return results, nil
}
