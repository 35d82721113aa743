// Package items aggregates extracted line items: duplicate removal and the
// summary reports shown by the items command.
package items

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/nhle/notafiscal/internal/model"
)

// keyPlaces is the number of decimal places numeric fields are rounded to
// before comparison.
const keyPlaces = 6

// Key identifies a line item for duplicate detection. Two items with the
// same document label, the same description up to case and surrounding
// whitespace, and the same rounded quantity, unit value and total value
// are duplicates.
type Key struct {
	Document    string
	Description string
	Quantity    string
	UnitValue   string
	TotalValue  string
}

// KeyOf returns the duplicate-detection key of item.
func KeyOf(item model.LineItem) Key {
	return Key{
		Document:    item.DocumentLabel,
		Description: strings.ToLower(strings.TrimSpace(item.Description)),
		Quantity:    rounded(item.Quantity),
		UnitValue:   rounded(item.UnitValue),
		TotalValue:  rounded(item.TotalValue),
	}
}

// String joins the key fields with the unit separator. Equal keys have
// equal strings.
func (k Key) String() string {
	return strings.Join([]string{
		k.Document, k.Description, k.Quantity, k.UnitValue, k.TotalValue,
	}, "\x1f")
}

func rounded(v float64) string {
	return decimal.NewFromFloat(finite(v)).Round(keyPlaces).String()
}

// finite maps NaN and infinities to 0; decimal cannot represent them.
func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// Set accumulates line items, dropping any item whose key was already
// added. The first occurrence wins and insertion order is kept. The zero
// value is not usable; call NewSet.
type Set struct {
	seen  map[Key]struct{}
	items []model.LineItem
}

// NewSet returns an empty Set.
func NewSet() *Set {
	return &Set{seen: make(map[Key]struct{})}
}

// Add appends the items not yet present and returns how many were added.
func (s *Set) Add(items ...model.LineItem) int {
	added := 0
	for _, it := range items {
		k := KeyOf(it)
		if _, dup := s.seen[k]; dup {
			continue
		}
		s.seen[k] = struct{}{}
		s.items = append(s.items, it)
		added++
	}
	return added
}

// Contains reports whether an item with the same key was added.
func (s *Set) Contains(item model.LineItem) bool {
	_, ok := s.seen[KeyOf(item)]
	return ok
}

// Len returns the number of distinct items.
func (s *Set) Len() int { return len(s.items) }

// Items returns a copy of the distinct items in insertion order.
func (s *Set) Items() []model.LineItem {
	return append([]model.LineItem(nil), s.items...)
}

// Dedup returns items without duplicates, keeping first occurrences.
func Dedup(items []model.LineItem) []model.LineItem {
	s := NewSet()
	s.Add(items...)
	return s.Items()
}
