package mailbox

import (
	"context"
	"fmt"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

// conn is one authenticated IMAP connection with INBOX selected. A conn
// belongs to exactly one Session and is never used concurrently.
type conn interface {
	searchAll() ([]imap.UID, error)
	fetchHeader(uid imap.UID) ([]byte, error)
	fetchFull(uid imap.UID) ([]byte, error)
	noop() error
	close() error
}

// dialFunc opens a new conn.
type dialFunc func(ctx context.Context) (conn, error)

// headerSection is BODY.PEEK[HEADER.FIELDS (FROM SUBJECT DATE)].
var headerSection = &imap.FetchItemBodySection{
	Specifier:    imap.PartSpecifierHeader,
	HeaderFields: []string{"From", "Subject", "Date"},
	Peek:         true,
}

// fullSection is BODY.PEEK[]; peeking keeps the \Seen flag untouched.
var fullSection = &imap.FetchItemBodySection{
	Peek: true,
}

// imapConn wraps a go-imap v2 client.
type imapConn struct {
	client *imapclient.Client
}

// dialIMAP connects over implicit TLS, authenticates and selects INBOX.
// The go-imap dialer does not take a context; ctx is only checked before
// dialing.
func dialIMAP(cfg Config) dialFunc {
	return func(ctx context.Context) (conn, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		addr := cfg.addr()

		client, err := imapclient.DialTLS(addr, nil)
		if err != nil {
			return nil, &ConnectionError{Addr: addr, Op: "dial", Err: err}
		}

		if err := client.Login(cfg.Address, cfg.Password).Wait(); err != nil {
			_ = client.Close()
			if isStatusError(err) {
				return nil, &AuthError{Address: cfg.Address, Err: err}
			}
			return nil, &ConnectionError{Addr: addr, Op: "login", Err: err}
		}

		if _, err := client.Select("INBOX", nil).Wait(); err != nil {
			_ = client.Logout().Wait()
			_ = client.Close()
			return nil, &ConnectionError{
				Addr: addr,
				Op:   "select",
				Err:  fmt.Errorf("selecting INBOX: %w", err),
			}
		}

		return &imapConn{client: client}, nil
	}
}

// searchAll runs UID SEARCH ALL.
func (c *imapConn) searchAll() ([]imap.UID, error) {
	data, err := c.client.UIDSearch(&imap.SearchCriteria{}, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching messages: %w", err)
	}
	return data.AllUIDs(), nil
}

func (c *imapConn) fetchHeader(uid imap.UID) ([]byte, error) {
	return c.fetchSection(uid, headerSection)
}

func (c *imapConn) fetchFull(uid imap.UID) ([]byte, error) {
	return c.fetchSection(uid, fullSection)
}

// fetchSection runs UID FETCH for a single body section. A nil slice with
// a nil error means the server answered without that section.
func (c *imapConn) fetchSection(
	uid imap.UID, section *imap.FetchItemBodySection,
) ([]byte, error) {
	fetchCmd := c.client.Fetch(imap.UIDSetNum(uid), &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{section},
	})
	defer fetchCmd.Close()

	msg := fetchCmd.Next()
	if msg == nil {
		if err := fetchCmd.Close(); err != nil {
			return nil, fmt.Errorf("fetching UID %d: %w", uid, err)
		}
		return nil, fmt.Errorf("UID %d: %w", uid, errMessageNotFound)
	}

	buf, err := msg.Collect()
	if err != nil {
		return nil, fmt.Errorf("collecting UID %d: %w", uid, err)
	}

	if err := fetchCmd.Close(); err != nil {
		return nil, fmt.Errorf("closing fetch of UID %d: %w", uid, err)
	}

	return buf.FindBodySection(section), nil
}

func (c *imapConn) noop() error {
	return c.client.Noop().Wait()
}

func (c *imapConn) close() error {
	_ = c.client.Logout().Wait()
	return c.client.Close()
}
