package extract

import (
	"errors"
	"fmt"
)

// ErrTextTooShort is returned when a document has too little text to be
// worth sending to the model server.
var ErrTextTooShort = errors.New("text too short for extraction")

// ServiceUnavailableError indicates that the model server could not be
// reached at all.
type ServiceUnavailableError struct {
	URL    string
	Reason string
	Err    error
}

func (e *ServiceUnavailableError) Error() string {
	return fmt.Sprintf("LLM service at %s %s: %v", e.URL, e.Reason, e.Err)
}

func (e *ServiceUnavailableError) Unwrap() error { return e.Err }

// IsServiceUnavailable reports whether err (or any error in its chain) is a
// ServiceUnavailableError.
func IsServiceUnavailable(err error) bool {
	var target *ServiceUnavailableError
	return errors.As(err, &target)
}

// MalformedResponseError indicates a model reply that is not usable: no
// text, no parseable JSON object, or no items.
type MalformedResponseError struct {
	Reason  string
	Excerpt string
	Err     error
}

func (e *MalformedResponseError) Error() string {
	msg := "malformed LLM response: " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Excerpt != "" {
		msg += fmt.Sprintf(" (response: %q)", e.Excerpt)
	}
	return msg
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// IsMalformedResponse reports whether err (or any error in its chain) is a
// MalformedResponseError.
func IsMalformedResponse(err error) bool {
	var target *MalformedResponseError
	return errors.As(err, &target)
}

// FileError records the failure of one document in a batch. It never
// aborts the batch.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("extracting %s: %v", e.Path, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
