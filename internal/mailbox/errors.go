package mailbox

import (
	"errors"
	"fmt"

	"github.com/emersion/go-imap/v2"
)

// AuthError indicates that the IMAP server rejected the login. For Gmail
// this almost always means a wrong or revoked app password.
type AuthError struct {
	Address string
	Err     error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf(
		"authentication failed for %s (check credentials): %v",
		e.Address, e.Err,
	)
}

func (e *AuthError) Unwrap() error { return e.Err }

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// ConnectionError indicates a network, TLS or protocol failure that a
// reconnect did not fix.
type ConnectionError struct {
	Addr string
	Op   string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("IMAP %s on %s: %v", e.Op, e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// IsConnectionError reports whether err (or any error in its chain) is a
// ConnectionError.
func IsConnectionError(err error) bool {
	var connErr *ConnectionError
	return errors.As(err, &connErr)
}

// isStatusError reports whether err is a tagged NO/BAD reply from the
// server, meaning the connection itself is still usable.
func isStatusError(err error) bool {
	var imapErr *imap.Error
	return errors.As(err, &imapErr)
}

var errMessageNotFound = errors.New("message not found")
