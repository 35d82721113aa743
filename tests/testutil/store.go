// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nhle/notafiscal/internal/model"
	"github.com/nhle/notafiscal/internal/store"
)

// NewTestStore creates an in-memory SQLiteStore with all migrations applied.
// It automatically closes the store when the test completes.
func NewTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:", nil)
	require.NoError(t, err, "creating test store")

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}

// Item builds a line item whose total is quantity times unit value.
func Item(document, description string, quantity, unit float64) model.LineItem {
	return model.LineItem{
		DocumentLabel: document,
		Description:   description,
		Quantity:      quantity,
		UnitValue:     unit,
		TotalValue:    quantity * unit,
	}
}
