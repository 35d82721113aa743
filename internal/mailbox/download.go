package mailbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/nhle/notafiscal/internal/model"
)

// DownloadAttachments fetches each selected message once and writes the
// requested attachment parts to dir/<uid>/<filename>, so equal names in
// different messages do not collide. Attachments that are not
// in the message, empty payloads and messages that fail to fetch are
// skipped silently. onProgress receives the 1-based message index and the
// number of distinct messages.
func (s *Session) DownloadAttachments(
	ctx context.Context,
	selections []model.Selection,
	dir string,
	onProgress func(done, total int),
) ([]model.DownloadedAttachment, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating download directory %s: %w", dir, err)
	}

	var order []string
	byUID := make(map[string][]model.Selection)
	for _, sel := range selections {
		if _, ok := byUID[sel.UID]; !ok {
			order = append(order, sel.UID)
		}
		byUID[sel.UID] = append(byUID[sel.UID], sel)
	}

	var out []model.DownloadedAttachment
	total := len(order)
	for i, uidStr := range order {
		if ctx.Err() != nil {
			break
		}
		if onProgress != nil {
			onProgress(i+1, total)
		}

		uid, err := parseUID(uidStr)
		if err != nil {
			s.log.Debugw("skipping selection", "uid", uidStr, "error", err)
			continue
		}

		raw, err := s.fetchFull(ctx, uid)
		if err != nil {
			if IsConnectionError(err) || IsAuthError(err) {
				return out, err
			}
			s.log.Debugw("skipping message", "uid", uidStr, "error", err)
			continue
		}

		msg, err := parseMessage(raw)
		if err != nil {
			s.log.Debugw("skipping unparseable message", "uid", uidStr, "error", err)
			continue
		}

		wanted := make(map[string]model.NoteKind)
		for _, sel := range byUID[uidStr] {
			if sel.Filename != "" {
				wanted[sel.Filename] = sel.Kind
			}
		}

		for _, part := range msg.attachments {
			kind, ok := wanted[part.filename]
			if len(wanted) > 0 && !ok {
				continue
			}
			if part.filename == "" || len(part.data) == 0 {
				continue
			}
			if kind == "" {
				kind = model.KindFromFilename(part.filename)
			}

			msgDir := filepath.Join(dir, uidStr)
			if err := os.MkdirAll(msgDir, 0o755); err != nil {
				return out, fmt.Errorf("creating download directory %s: %w", msgDir, err)
			}
			path := filepath.Join(msgDir, filepath.Base(part.filename))
			if err := os.WriteFile(path, part.data, 0o644); err != nil {
				return out, fmt.Errorf("writing attachment %s: %w", path, err)
			}
			s.log.Debugw("attachment saved",
				"uid", uidStr,
				"path", path,
				"size", humanize.Bytes(uint64(len(part.data))),
			)

			out = append(out, model.DownloadedAttachment{
				UID:       uidStr,
				Filename:  part.filename,
				Kind:      kind,
				LocalPath: path,
			})
		}
	}

	return out, nil
}
