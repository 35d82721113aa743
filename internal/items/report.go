package items

import (
	"cmp"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/nhle/notafiscal/internal/model"
)

// DocumentTotal groups the items of one source document.
type DocumentTotal struct {
	Document string           `json:"documento" yaml:"documento"`
	Count    int              `json:"itens" yaml:"itens"`
	Total    float64          `json:"valor_total" yaml:"valor_total"`
	Items    []model.LineItem `json:"-" yaml:"-"`
}

// ProductTotal consolidates identical descriptions across documents.
type ProductTotal struct {
	Product   string  `json:"produto" yaml:"produto"`
	Quantity  float64 `json:"quantidade" yaml:"quantidade"`
	Total     float64 `json:"valor_total" yaml:"valor_total"`
	Documents int     `json:"documentos" yaml:"documentos"`
}

// Stats is the quick overview of an item list.
type Stats struct {
	Records         int            `json:"registros" yaml:"registros"`
	UniqueProducts  int            `json:"produtos_unicos" yaml:"produtos_unicos"`
	UniqueDocuments int            `json:"documentos_unicos" yaml:"documentos_unicos"`
	TotalQuantity   float64        `json:"quantidade_total" yaml:"quantidade_total"`
	TotalValue      float64        `json:"valor_total" yaml:"valor_total"`
	AvgQuantity     float64        `json:"quantidade_media" yaml:"quantidade_media"`
	AvgValue        float64        `json:"valor_medio" yaml:"valor_medio"`
	MostExpensive   model.LineItem `json:"mais_caro" yaml:"mais_caro"`
	Cheapest        model.LineItem `json:"mais_barato" yaml:"mais_barato"`
}

// Summary is the count and value total of a (possibly filtered) list.
type Summary struct {
	Count int     `json:"itens" yaml:"itens"`
	Total float64 `json:"valor_total" yaml:"valor_total"`
}

// sum adds the selected field of every item using decimal arithmetic.
func sum(items []model.LineItem, field func(model.LineItem) float64) float64 {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(decimal.NewFromFloat(finite(field(it))))
	}
	f, _ := total.Float64()
	return f
}

func quantity(it model.LineItem) float64 { return it.Quantity }
func totalValue(it model.LineItem) float64 { return it.TotalValue }

func productKey(it model.LineItem) string {
	return strings.ToLower(strings.TrimSpace(it.Description))
}

// ByDocument groups items by document label, sorted by total value
// descending. Documents with equal totals keep first-seen order.
func ByDocument(items []model.LineItem) []DocumentTotal {
	var order []string
	groups := make(map[string][]model.LineItem)
	for _, it := range items {
		if _, ok := groups[it.DocumentLabel]; !ok {
			order = append(order, it.DocumentLabel)
		}
		groups[it.DocumentLabel] = append(groups[it.DocumentLabel], it)
	}

	out := make([]DocumentTotal, 0, len(order))
	for _, doc := range order {
		g := groups[doc]
		out = append(out, DocumentTotal{
			Document: doc,
			Count:    len(g),
			Total:    sum(g, totalValue),
			Items:    g,
		})
	}
	slices.SortStableFunc(out, func(a, b DocumentTotal) int {
		return cmp.Compare(b.Total, a.Total)
	})
	return out
}

// ByProduct sums quantity and value per normalized description and counts
// the distinct documents each product appears in. Sorted by total value
// descending.
func ByProduct(items []model.LineItem) []ProductTotal {
	var order []string
	groups := make(map[string][]model.LineItem)
	for _, it := range items {
		k := productKey(it)
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], it)
	}

	out := make([]ProductTotal, 0, len(order))
	for _, k := range order {
		g := groups[k]
		docs := make(map[string]struct{})
		for _, it := range g {
			docs[it.DocumentLabel] = struct{}{}
		}
		out = append(out, ProductTotal{
			Product:   k,
			Quantity:  sum(g, quantity),
			Total:     sum(g, totalValue),
			Documents: len(docs),
		})
	}
	slices.SortStableFunc(out, func(a, b ProductTotal) int {
		return cmp.Compare(b.Total, a.Total)
	})
	return out
}

func top(items []model.LineItem, n int, field func(model.LineItem) float64) []model.LineItem {
	sorted := append([]model.LineItem(nil), items...)
	slices.SortStableFunc(sorted, func(a, b model.LineItem) int {
		return cmp.Compare(field(b), field(a))
	})
	if n >= 0 && n < len(sorted) {
		sorted = sorted[:n]
	}
	return sorted
}

// TopByValue returns the n items with the highest total value.
func TopByValue(items []model.LineItem, n int) []model.LineItem {
	return top(items, n, totalValue)
}

// TopByQuantity returns the n items with the highest quantity.
func TopByQuantity(items []model.LineItem, n int) []model.LineItem {
	return top(items, n, quantity)
}

// ComputeStats summarizes items. The zero Stats is returned for an empty
// list.
func ComputeStats(items []model.LineItem) Stats {
	if len(items) == 0 {
		return Stats{}
	}

	products := make(map[string]struct{})
	docs := make(map[string]struct{})
	cheapest, priciest := items[0], items[0]
	for _, it := range items {
		products[productKey(it)] = struct{}{}
		docs[it.DocumentLabel] = struct{}{}
		if it.TotalValue < cheapest.TotalValue {
			cheapest = it
		}
		if it.TotalValue >= priciest.TotalValue {
			priciest = it
		}
	}

	n := float64(len(items))
	st := Stats{
		Records:         len(items),
		UniqueProducts:  len(products),
		UniqueDocuments: len(docs),
		TotalQuantity:   sum(items, quantity),
		TotalValue:      sum(items, totalValue),
		MostExpensive:   priciest,
		Cheapest:        cheapest,
	}
	st.AvgQuantity = st.TotalQuantity / n
	st.AvgValue = st.TotalValue / n
	return st
}

// Filter returns the items whose description or document label contains
// query, case-insensitively. A blank query returns all items.
func Filter(items []model.LineItem, query string) []model.LineItem {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return items
	}

	var out []model.LineItem
	for _, it := range items {
		if strings.Contains(strings.ToLower(it.Description), q) ||
			strings.Contains(strings.ToLower(it.DocumentLabel), q) {
			out = append(out, it)
		}
	}
	return out
}

// Summarize counts items and sums their total values.
func Summarize(items []model.LineItem) Summary {
	return Summary{Count: len(items), Total: sum(items, totalValue)}
}
