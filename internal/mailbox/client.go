// Package mailbox provides UID-addressed read access to the INBOX of an
// IMAP account. A Client is shared freely; each worker goroutine opens its
// own Session, which owns one connection.
package mailbox

import (
	"context"
	"errors"
	"net"
	"strconv"

	"github.com/emersion/go-imap/v2"
	"go.uber.org/zap"

	"github.com/nhle/notafiscal/internal/logger"
)

// Config holds the IMAP account settings.
type Config struct {
	Server   string
	Port     int
	Address  string
	Password string
}

func (c Config) addr() string {
	return net.JoinHostPort(c.Server, strconv.Itoa(c.Port))
}

// Client creates per-worker sessions against one IMAP account.
type Client struct {
	cfg  Config
	dial dialFunc
	log  *zap.SugaredLogger
}

// NewClient creates a new IMAP client configuration. No connection is made
// until a Session needs one.
func NewClient(cfg Config, log *zap.SugaredLogger) *Client {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Client{cfg: cfg, dial: dialIMAP(cfg), log: log}
}

// NewSession returns an unconnected session. The connection is created on
// first use and must be released with Close by the goroutine that owns it.
func (c *Client) NewSession() *Session {
	return &Session{
		dial: c.dial,
		addr: c.cfg.addr(),
		log: c.log.With(
			"imap", c.cfg.addr(),
			"account", logger.MaskEmail(c.cfg.Address),
		),
	}
}

// Open returns a connected session.
func (c *Client) Open(ctx context.Context) (*Session, error) {
	s := c.NewSession()
	if err := s.Connect(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Session is one IMAP connection owned by a single goroutine. It is not
// safe for concurrent use.
type Session struct {
	dial dialFunc
	addr string
	log  *zap.SugaredLogger
	conn conn
}

// Connect opens the TLS session, authenticates and selects INBOX. It is a
// no-op when the session is already connected.
func (s *Session) Connect(ctx context.Context) error {
	if s.conn != nil {
		return nil
	}

	c, err := s.dial(ctx)
	if err != nil {
		return err
	}
	s.conn = c
	s.log.Debug("IMAP session connected")
	return nil
}

// Close logs out and drops the connection. The session may be reused; it
// reconnects on the next operation.
func (s *Session) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.close()
	s.conn = nil
	return err
}

func (s *Session) reset() {
	if s.conn != nil {
		_ = s.conn.close()
	}
	s.conn = nil
}

// ensure verifies the connection with NOOP and reconnects when the probe
// fails.
func (s *Session) ensure(ctx context.Context) error {
	if err := s.Connect(ctx); err != nil {
		return err
	}

	if err := s.conn.noop(); err != nil {
		s.log.Debugw("NOOP failed, reconnecting", "error", err)
		s.reset()
		return s.Connect(ctx)
	}
	return nil
}

// withRetry runs op on the current connection. When op fails below the
// IMAP status level (a dropped socket, a protocol error), the session
// reconnects once and retries; a second failure is returned as a
// ConnectionError. Server NO/BAD replies are returned as is.
func (s *Session) withRetry(
	ctx context.Context, name string, op func(conn) error,
) error {
	if err := s.Connect(ctx); err != nil {
		return err
	}

	err := op(s.conn)
	if err == nil || isStatusError(err) || errors.Is(err, errMessageNotFound) {
		return err
	}

	s.log.Debugw("IMAP command failed, reconnecting", "command", name, "error", err)
	s.reset()
	if err := s.Connect(ctx); err != nil {
		return err
	}

	err = op(s.conn)
	if err == nil || isStatusError(err) || errors.Is(err, errMessageNotFound) {
		return err
	}
	s.reset()
	return &ConnectionError{Addr: s.addr, Op: name, Err: err}
}

// allUIDs returns every INBOX UID in ascending order.
func (s *Session) allUIDs(ctx context.Context) ([]imap.UID, error) {
	var uids []imap.UID
	err := s.withRetry(ctx, "UID SEARCH", func(c conn) error {
		var err error
		uids, err = c.searchAll()
		return err
	})
	return uids, err
}

func (s *Session) fetchFull(ctx context.Context, uid imap.UID) ([]byte, error) {
	var raw []byte
	err := s.withRetry(ctx, "UID FETCH", func(c conn) error {
		var err error
		raw, err = c.fetchFull(uid)
		return err
	})
	return raw, err
}

func (s *Session) fetchHeader(ctx context.Context, uid imap.UID) ([]byte, error) {
	var raw []byte
	err := s.withRetry(ctx, "UID FETCH", func(c conn) error {
		var err error
		raw, err = c.fetchHeader(uid)
		return err
	})
	return raw, err
}

// newestFirst returns the last n UIDs in descending order.
func newestFirst(uids []imap.UID, n int) []imap.UID {
	if n <= 0 {
		return nil
	}
	if n > len(uids) {
		n = len(uids)
	}
	tail := uids[len(uids)-n:]
	out := make([]imap.UID, 0, n)
	for i := len(tail) - 1; i >= 0; i-- {
		out = append(out, tail[i])
	}
	return out
}

func formatUID(uid imap.UID) string {
	return strconv.FormatUint(uint64(uid), 10)
}

// parseUID converts a string UID to an imap.UID.
func parseUID(s string) (imap.UID, error) {
	uid, err := strconv.ParseUint(s, 10, 32)
	if err != nil || uid == 0 {
		return 0, errors.New("invalid UID " + strconv.Quote(s))
	}
	return imap.UID(uid), nil
}
