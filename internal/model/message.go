package model

// MessageSummary holds the lightweight header data of one INBOX message.
// Date is the raw server-provided Date header, left unparsed.
type MessageSummary struct {
	UID     string `json:"uid"`
	Subject string `json:"subject"`
	Sender  string `json:"sender"`
	Date    string `json:"date"`
}

// AttachmentInfo describes one attachment part of a message.
type AttachmentInfo struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// FullEmail is the fully parsed content of a single message.
type FullEmail struct {
	UID     string `json:"uid"`
	Subject string `json:"subject"`
	Sender  string `json:"sender"`
	Date    string `json:"date"`

	// TextBody and HTMLBody hold the first text/plain and text/html
	// non-attachment parts found while walking the MIME tree.
	TextBody string `json:"body_text"`
	HTMLBody string `json:"body_html"`

	Attachments []AttachmentInfo `json:"attachments"`

	// InlineImages maps both "cid:<id>" and "<id>" to a base64 data URI
	// so HTML bodies resolve either reference style.
	InlineImages map[string]string `json:"cid_map"`
}
