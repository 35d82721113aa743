package app

import (
	"context"

	"github.com/nhle/notafiscal/internal/model"
)

// TestConnection logs in and returns the number of INBOX messages.
func (a *App) TestConnection(ctx context.Context) (int, error) {
	s, err := a.session(ctx)
	if err != nil {
		return 0, err
	}
	defer s.Close()

	n := s.CountInbox(ctx)
	a.log.Infow("connection ok", "messages", n)
	return n, nil
}

// ListRecent returns the limit most recent INBOX messages, newest first,
// calling onItem for each as it arrives.
func (a *App) ListRecent(
	ctx context.Context, limit int, onItem func(model.MessageSummary),
) ([]model.MessageSummary, error) {
	s, err := a.session(ctx)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	return s.ListRecent(ctx, limit, onItem)
}

// Email returns the parsed content of the message with uid.
func (a *App) Email(ctx context.Context, uid string) (*model.FullEmail, error) {
	s, err := a.session(ctx)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	return s.FetchFullEmail(ctx, uid)
}
