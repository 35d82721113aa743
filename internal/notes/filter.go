// Package notes decides which messages and attachments of a mailbox scan
// are invoice documents worth extracting.
package notes

import (
	"fmt"
	"strings"

	"github.com/nhle/notafiscal/internal/model"
)

// MessageHeader is the metadata of one scanned message.
type MessageHeader struct {
	UID     string
	Subject string
	Sender  string
	Date    string
}

// Filter holds the attachment kinds and keyword lists of a note search.
// Keywords are matched as case-insensitive substrings.
type Filter struct {
	Kinds   []model.NoteKind
	Include []string
	Exclude []string
}

// NewFilter normalizes keywords (trimmed, lowercased, blanks dropped).
// An empty kinds list selects both PDF and XML.
func NewFilter(kinds []model.NoteKind, include, exclude []string) Filter {
	if len(kinds) == 0 {
		kinds = []model.NoteKind{model.KindPDF, model.KindXML}
	}
	return Filter{
		Kinds:   kinds,
		Include: normalizeKeywords(include),
		Exclude: normalizeKeywords(exclude),
	}
}

// haystack combines subject and sender into the text that email-level
// keywords are matched against. The body is not considered.
func haystack(subject, sender string) string {
	return strings.ToLower(subject + " " + sender)
}

// ExcludesMessage reports whether an exclude keyword occurs in the
// subject or sender. Such a message yields no matches at all.
func (f Filter) ExcludesMessage(subject, sender string) bool {
	return containsAny(haystack(subject, sender), f.Exclude)
}

// MatchesMessage reports whether an include keyword occurs in the subject
// or sender. It is false when there are no include keywords.
func (f Filter) MatchesMessage(subject, sender string) bool {
	return containsAny(haystack(subject, sender), f.Include)
}

// Accept decides a single attachment. msgMatched is the result of
// MatchesMessage for the owning message.
func (f Filter) Accept(msgMatched bool, filename string) (model.NoteKind, bool) {
	lower := strings.ToLower(filename)
	if lower == "" {
		return "", false
	}

	kind := model.KindFromFilename(lower)
	if kind == "" || !f.selects(kind) {
		return "", false
	}

	if len(f.Include) > 0 && !msgMatched && !containsAny(lower, f.Include) {
		return "", false
	}

	if containsAny(lower, f.Exclude) {
		return "", false
	}

	return kind, true
}

// Screen applies the message and attachment rules to one message and
// returns its matches in the order of filenames.
func (f Filter) Screen(h MessageHeader, filenames []string) []model.AttachmentMatch {
	if f.ExcludesMessage(h.Subject, h.Sender) {
		return nil
	}

	msgMatched := f.MatchesMessage(h.Subject, h.Sender)

	var out []model.AttachmentMatch
	for _, name := range filenames {
		kind, ok := f.Accept(msgMatched, name)
		if !ok {
			continue
		}
		out = append(out, model.AttachmentMatch{
			UID:      h.UID,
			Date:     h.Date,
			Sender:   h.Sender,
			Subject:  h.Subject,
			Filename: name,
			Kind:     kind,
		})
	}
	return out
}

func (f Filter) selects(kind model.NoteKind) bool {
	for _, k := range f.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// ParseKinds parses a comma-separated kind list such as "pdf,xml".
func ParseKinds(s string) ([]model.NoteKind, error) {
	var kinds []model.NoteKind
	seen := make(map[model.NoteKind]bool)
	for _, tok := range strings.Split(s, ",") {
		tok = strings.ToUpper(strings.TrimSpace(tok))
		if tok == "" {
			continue
		}
		kind := model.NoteKind(tok)
		if kind != model.KindPDF && kind != model.KindXML {
			return nil, fmt.Errorf("unknown note type %q (want pdf or xml)", tok)
		}
		if !seen[kind] {
			seen[kind] = true
			kinds = append(kinds, kind)
		}
	}
	return kinds, nil
}

// SplitKeywords splits a comma-separated keyword list.
func SplitKeywords(s string) []string {
	var out []string
	for _, tok := range strings.Split(s, ",") {
		if tok = strings.TrimSpace(tok); tok != "" {
			out = append(out, tok)
		}
	}
	return out
}

func normalizeKeywords(in []string) []string {
	out := make([]string, 0, len(in))
	for _, k := range in {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			out = append(out, k)
		}
	}
	return out
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}
