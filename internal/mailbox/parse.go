package mailbox

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"
	"github.com/gabriel-vasile/mimetype"

	"github.com/nhle/notafiscal/internal/notes"
)

// attachmentPart is one attachment with its decoded payload.
type attachmentPart struct {
	filename    string
	contentType string
	data        []byte
}

// parsedMessage is the result of walking one RFC 5322 message.
type parsedMessage struct {
	header      notes.MessageHeader
	textBody    string
	htmlBody    string
	attachments []attachmentPart
	inline      map[string]string
}

func (p *parsedMessage) filenames() []string {
	names := make([]string, 0, len(p.attachments))
	for _, a := range p.attachments {
		names = append(names, a.filename)
	}
	return names
}

// decodeHeader extracts Subject, From and Date, decoding RFC 2047 words.
// Undecodable values fall back to the raw header text.
func decodeHeader(h message.Header) notes.MessageHeader {
	mh := mail.Header{Header: h}

	subject, err := mh.Subject()
	if err != nil {
		subject = h.Get("Subject")
	}
	from, err := mh.Text("From")
	if err != nil {
		from = h.Get("From")
	}

	return notes.MessageHeader{
		Subject: subject,
		Sender:  from,
		Date:    h.Get("Date"),
	}
}

// parseHeaderBlock parses a header-only fetch response.
func parseHeaderBlock(raw []byte) (notes.MessageHeader, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return notes.MessageHeader{}, fmt.Errorf("empty header section")
	}
	h, err := textproto.ReadHeader(bufio.NewReader(bytes.NewReader(raw)))
	if err != nil {
		return notes.MessageHeader{}, fmt.Errorf("parsing header section: %w", err)
	}
	return decodeHeader(message.Header{Header: h}), nil
}

// parseMessage walks the MIME tree of a full message. Attachments are
// parts whose Content-Disposition says "attachment"; a single-part message
// counts as an attachment when it carries a filename. Bodies hold the first
// text/plain and text/html non-attachment parts.
func parseMessage(raw []byte) (*parsedMessage, error) {
	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("reading message: %w", err)
	}

	parsed := &parsedMessage{
		header: decodeHeader(entity.Header),
		inline: make(map[string]string),
	}

	if entity.MultipartReader() == nil {
		if err := parsed.addSinglePart(entity); err != nil {
			return nil, err
		}
		return parsed, nil
	}

	err = entity.Walk(func(_ []int, part *message.Entity, err error) error {
		if err != nil && !message.IsUnknownCharset(err) {
			return err
		}
		if part == nil || part.MultipartReader() != nil {
			return nil
		}
		return parsed.addPart(part)
	})
	if err != nil {
		return nil, fmt.Errorf("walking MIME parts: %w", err)
	}

	return parsed, nil
}

func (p *parsedMessage) addSinglePart(e *message.Entity) error {
	body, err := io.ReadAll(e.Body)
	if err != nil {
		return fmt.Errorf("reading body: %w", err)
	}

	contentType := mediaType(e.Header)
	if name := partFilename(e.Header); name != "" {
		p.attachments = append(p.attachments, attachmentPart{
			filename:    name,
			contentType: contentType,
			data:        body,
		})
		return nil
	}

	if contentType == "text/html" {
		p.htmlBody = string(body)
	} else {
		p.textBody = string(body)
	}
	return nil
}

func (p *parsedMessage) addPart(e *message.Entity) error {
	body, err := io.ReadAll(e.Body)
	if err != nil {
		// A single broken part does not spoil the rest of the message.
		return nil
	}

	contentType := mediaType(e.Header)

	if isAttachment(e.Header) {
		p.attachments = append(p.attachments, attachmentPart{
			filename:    partFilename(e.Header),
			contentType: contentType,
			data:        body,
		})
		return nil
	}

	if cid := strings.TrimSpace(e.Header.Get("Content-Id")); cid != "" && len(body) > 0 {
		p.addInline(cid, contentType, body)
	}

	switch contentType {
	case "text/html":
		if p.htmlBody == "" {
			p.htmlBody = string(body)
		}
	case "text/plain":
		if p.textBody == "" {
			p.textBody = string(body)
		}
	}
	return nil
}

// addInline registers a Content-ID part as a data URI under both the
// "cid:" and the bare form of its id.
func (p *parsedMessage) addInline(cid, contentType string, body []byte) {
	cid = strings.TrimSuffix(strings.TrimPrefix(cid, "<"), ">")
	if contentType == "" {
		contentType = mimetype.Detect(body).String()
	}
	uri := "data:" + contentType + ";base64," +
		base64.StdEncoding.EncodeToString(body)
	p.inline[cid] = uri
	p.inline["cid:"+cid] = uri
}

// mediaType returns the lowercase media type, "" when absent or invalid.
func mediaType(h message.Header) string {
	t, _, err := h.ContentType()
	if err != nil {
		return ""
	}
	return strings.ToLower(t)
}

// isAttachment reports whether the part's Content-Disposition is
// "attachment". Headers go-message cannot parse, such as an unquoted
// filename with spaces, are matched on the raw text.
func isAttachment(h message.Header) bool {
	disp, _, err := h.ContentDisposition()
	if err != nil {
		return strings.Contains(strings.ToLower(h.Get("Content-Disposition")), "attachment")
	}
	return strings.EqualFold(disp, "attachment")
}

// partFilename returns the decoded filename from Content-Disposition or,
// failing that, the Content-Type name parameter. A malformed disposition
// falls back to the raw filename= text.
func partFilename(h message.Header) string {
	ah := mail.AttachmentHeader{Header: h}
	if name, err := ah.Filename(); err == nil && name != "" {
		return name
	}
	if _, params, err := h.ContentType(); err == nil && params["name"] != "" {
		return params["name"]
	}
	return rawParam(h.Get("Content-Disposition"), "filename")
}

// rawParam returns the value of key in a parameter list that
// mime.ParseMediaType rejects. The value runs up to the next ';'.
func rawParam(header, key string) string {
	lower := strings.ToLower(header)
	i := strings.Index(lower, key+"=")
	if i < 0 {
		return ""
	}
	v := header[i+len(key)+1:]
	if j := strings.IndexByte(v, ';'); j >= 0 {
		v = v[:j]
	}
	return strings.Trim(strings.TrimSpace(v), `"'`)
}
