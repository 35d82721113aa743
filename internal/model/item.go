package model

// LineItem is one product line extracted from an invoice document.
// Numeric fields are in document currency; unparseable values are 0.
type LineItem struct {
	// DocumentLabel is the base filename of the source document.
	DocumentLabel string  `json:"documento" yaml:"documento" db:"document"`
	Description   string  `json:"descricao" yaml:"descricao" db:"description"`
	Quantity      float64 `json:"quantidade" yaml:"quantidade" db:"quantity"`
	UnitValue     float64 `json:"valor_unit" yaml:"valor_unit" db:"unit_value"`
	TotalValue    float64 `json:"valor_total" yaml:"valor_total" db:"total_value"`
}
