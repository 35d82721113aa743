package model

import "strings"

// NoteKind identifies the document type of an invoice attachment.
type NoteKind string

const (
	KindPDF NoteKind = "PDF"
	KindXML NoteKind = "XML"
)

// Extension returns the lowercase filename suffix that selects this kind.
func (k NoteKind) Extension() string {
	switch k {
	case KindPDF:
		return ".pdf"
	case KindXML:
		return ".xml"
	default:
		return ""
	}
}

// KindFromFilename derives the kind from the filename suffix alone.
// It returns "" for any other extension.
func KindFromFilename(name string) NoteKind {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".pdf"):
		return KindPDF
	case strings.HasSuffix(lower, ".xml"):
		return KindXML
	default:
		return ""
	}
}

// AttachmentMatch is one attachment that passed the keyword and type
// filters of a note search.
type AttachmentMatch struct {
	UID      string   `json:"uid" db:"uid"`
	Date     string   `json:"date" db:"date"`
	Sender   string   `json:"from" db:"sender"`
	Subject  string   `json:"subject" db:"subject"`
	Filename string   `json:"filename" db:"filename"`
	Kind     NoteKind `json:"type" db:"kind"`
}

// Selection returns the download request for this match.
func (m AttachmentMatch) Selection() Selection {
	return Selection{UID: m.UID, Filename: m.Filename, Kind: m.Kind}
}

// Selection identifies one attachment to download.
type Selection struct {
	UID      string   `json:"uid"`
	Filename string   `json:"filename"`
	Kind     NoteKind `json:"type"`
}

// DownloadedAttachment is an attachment written to the staging directory.
// The caller owns cleanup of LocalPath.
type DownloadedAttachment struct {
	UID       string   `json:"uid"`
	Filename  string   `json:"filename"`
	Kind      NoteKind `json:"type"`
	LocalPath string   `json:"path"`
}
