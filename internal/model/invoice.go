package model

import "math"

// totalTolerance is the rounding slack allowed between total_ttc and
// total_ht + vat before an invoice is flagged as inconsistent.
const totalTolerance = 0.05

// LineItem is a single purchased item on an invoice.
type LineItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
}

// InvoiceRecord is the fixed extraction shape produced by the AI backend.
// Extraction is best effort; amounts are carried as reported, not recomputed.
type InvoiceRecord struct {
	ShopName string     `json:"shop_name"`
	Date     string     `json:"date"` // YYYY-MM-DD
	TotalHT  float64    `json:"total_ht"`
	TotalTTC float64    `json:"total_ttc"`
	VAT      float64    `json:"vat"`
	Items    []LineItem `json:"items"`
}

// TotalsConsistent reports whether total_ttc matches total_ht + vat within
// rounding tolerance. Violations are logged by callers, never fatal.
func (r *InvoiceRecord) TotalsConsistent() bool {
	return math.Abs(r.TotalTTC-(r.TotalHT+r.VAT)) <= totalTolerance
}
