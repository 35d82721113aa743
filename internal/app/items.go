package app

import (
	"context"

	"github.com/nhle/notafiscal/internal/items"
	"github.com/nhle/notafiscal/internal/model"
)

// Items returns the stored items matching query and their summary.
func (a *App) Items(ctx context.Context, query string) ([]model.LineItem, items.Summary, error) {
	all, err := a.store.Items(ctx)
	if err != nil {
		return nil, items.Summary{}, err
	}
	filtered := items.Filter(all, query)
	return filtered, items.Summarize(filtered), nil
}
