package mailbox

import (
	"context"
	"fmt"

	"github.com/nhle/notafiscal/internal/model"
)

// CountInbox returns the number of INBOX messages, or 0 when the count
// cannot be obtained.
func (s *Session) CountInbox(ctx context.Context) int {
	uids, err := s.allUIDs(ctx)
	if err != nil {
		s.log.Warnw("counting INBOX failed", "error", err)
		return 0
	}
	return len(uids)
}

// ListRecent returns the limit most recent messages, newest first. Headers
// come from a header-only fetch, falling back to the full message when that
// section is missing or unparseable. onItem, when non-nil, is called
// synchronously for every summary as it is produced. Messages that fail to
// fetch are skipped.
func (s *Session) ListRecent(
	ctx context.Context, limit int, onItem func(model.MessageSummary),
) ([]model.MessageSummary, error) {
	if limit <= 0 {
		return nil, nil
	}

	uids, err := s.allUIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing recent messages: %w", err)
	}

	var out []model.MessageSummary
	for _, uid := range newestFirst(uids, limit) {
		if ctx.Err() != nil {
			break
		}

		raw, err := s.fetchHeader(ctx, uid)
		if IsConnectionError(err) || IsAuthError(err) {
			return out, err
		}

		hdr, perr := parseHeaderBlock(raw)
		if err != nil || perr != nil {
			full, ferr := s.fetchFull(ctx, uid)
			if IsConnectionError(ferr) || IsAuthError(ferr) {
				return out, ferr
			}
			if ferr != nil || len(full) == 0 {
				s.log.Debugw("skipping message", "uid", uid, "error", ferr)
				continue
			}
			msg, merr := parseMessage(full)
			if merr != nil {
				s.log.Debugw("skipping unparseable message", "uid", uid, "error", merr)
				continue
			}
			hdr = msg.header
		}

		item := model.MessageSummary{
			UID:     formatUID(uid),
			Subject: hdr.Subject,
			Sender:  hdr.Sender,
			Date:    hdr.Date,
		}
		out = append(out, item)
		if onItem != nil {
			onItem(item)
		}
	}

	return out, nil
}

// FetchFullEmail returns the parsed content of one message.
func (s *Session) FetchFullEmail(
	ctx context.Context, uid string,
) (*model.FullEmail, error) {
	id, err := parseUID(uid)
	if err != nil {
		return nil, err
	}

	raw, err := s.fetchFull(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetching email %s: %w", uid, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("fetching email %s: empty response", uid)
	}

	msg, err := parseMessage(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing email %s: %w", uid, err)
	}

	full := &model.FullEmail{
		UID:          uid,
		Subject:      msg.header.Subject,
		Sender:       msg.header.Sender,
		Date:         msg.header.Date,
		TextBody:     msg.textBody,
		HTMLBody:     msg.htmlBody,
		InlineImages: msg.inline,
	}
	for _, a := range msg.attachments {
		full.Attachments = append(full.Attachments, model.AttachmentInfo{
			Filename:    a.filename,
			ContentType: a.contentType,
			Size:        int64(len(a.data)),
		})
	}

	return full, nil
}
