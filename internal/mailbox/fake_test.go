package mailbox

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/emersion/go-imap/v2"
	"go.uber.org/zap"
)

// fakeServer stands in for an IMAP INBOX. Every dial hands out a new
// fakeConn backed by the same state.
type fakeServer struct {
	uids      []imap.UID
	messages  map[imap.UID][]byte
	headers   map[imap.UID][]byte
	fetchErr  map[imap.UID]error
	searchErr error
	dialErr   error

	// dropFetches makes the next n full fetches fail below the IMAP
	// status level, as a reset socket would.
	dropFetches int

	dials      int
	noops      int
	fullFetchs int
}

func newFakeServer() *fakeServer {
	return &fakeServer{
		messages: make(map[imap.UID][]byte),
		headers:  make(map[imap.UID][]byte),
		fetchErr: make(map[imap.UID]error),
	}
}

func (f *fakeServer) add(uid imap.UID, raw []byte) {
	f.uids = append(f.uids, uid)
	f.messages[uid] = raw
}

func (f *fakeServer) dial(context.Context) (conn, error) {
	f.dials++
	if f.dialErr != nil {
		return nil, f.dialErr
	}
	return &fakeConn{srv: f}, nil
}

func (f *fakeServer) session() *Session {
	return &Session{dial: f.dial, addr: "imap.test:993", log: zap.NewNop().Sugar()}
}

type fakeConn struct {
	srv    *fakeServer
	closed bool
}

func (c *fakeConn) searchAll() ([]imap.UID, error) {
	if c.srv.searchErr != nil {
		return nil, c.srv.searchErr
	}
	return append([]imap.UID(nil), c.srv.uids...), nil
}

func (c *fakeConn) fetchHeader(uid imap.UID) ([]byte, error) {
	if h, ok := c.srv.headers[uid]; ok {
		return h, nil
	}
	if _, ok := c.srv.messages[uid]; !ok {
		return nil, fmt.Errorf("UID %d: %w", uid, errMessageNotFound)
	}
	return nil, nil
}

func (c *fakeConn) fetchFull(uid imap.UID) ([]byte, error) {
	c.srv.fullFetchs++
	if c.srv.dropFetches > 0 {
		c.srv.dropFetches--
		return nil, errors.New("read tcp: connection reset by peer")
	}
	if err, ok := c.srv.fetchErr[uid]; ok {
		return nil, err
	}
	raw, ok := c.srv.messages[uid]
	if !ok {
		return nil, fmt.Errorf("UID %d: %w", uid, errMessageNotFound)
	}
	return raw, nil
}

func (c *fakeConn) noop() error {
	c.srv.noops++
	return nil
}

func (c *fakeConn) close() error {
	c.closed = true
	return nil
}

// buildMessage renders a multipart/mixed message with a short text body
// and one base64 attachment per filename. Each attachment holds
// "content of <filename>".
func buildMessage(subject, from string, attachments ...string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("Date: Mon, 06 Oct 2025 10:00:00 -0300\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: multipart/mixed; boundary=\"BOUNDARY\"\r\n\r\n")
	b.WriteString("--BOUNDARY\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString("Segue em anexo.\r\n")
	for _, name := range attachments {
		b.WriteString("--BOUNDARY\r\n")
		b.WriteString("Content-Type: application/octet-stream; name=\"" + name + "\"\r\n")
		b.WriteString("Content-Disposition: attachment; filename=\"" + name + "\"\r\n")
		b.WriteString("Content-Transfer-Encoding: base64\r\n\r\n")
		b.WriteString(base64.StdEncoding.EncodeToString([]byte("content of "+name)) + "\r\n")
	}
	b.WriteString("--BOUNDARY--\r\n")
	return []byte(b.String())
}
