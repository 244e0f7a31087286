package extract

import (
	"encoding/json"
	"strconv"
	"strings"

	"invoicesheet/internal/model"
)

// flexFloat tolerates numbers delivered as strings ("12,30 €") or null.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" || s == `""` {
		*f = 0
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var raw string
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
		raw = strings.NewReplacer(",", ".", "€", "", "$", "", " ", "", " ", "").Replace(raw)
		if raw == "" {
			*f = 0
			return nil
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return err
		}
		*f = flexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

type rawItem struct {
	Description string    `json:"description"`
	Name        string    `json:"name"`
	Quantity    flexFloat `json:"quantity"`
	UnitPrice   flexFloat `json:"unit_price"`
	Price       flexFloat `json:"price"`
}

type rawInvoice struct {
	ShopName string    `json:"shop_name"`
	Date     string    `json:"date"`
	TotalHT  flexFloat `json:"total_ht"`
	TotalTTC flexFloat `json:"total_ttc"`
	VAT      flexFloat `json:"vat"`
	Items    []rawItem `json:"items"`
}

// stripFences removes a surrounding markdown code fence some models emit
// despite the json_object response format.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// parseInvoice coerces the model's reply into the fixed invoice shape.
// Unparseable shapes become a parse-kind Error, never loosely-typed data.
func parseInvoice(content string) (*model.InvoiceRecord, *Error) {
	var raw rawInvoice
	if err := json.Unmarshal([]byte(stripFences(content)), &raw); err != nil {
		return nil, &Error{Kind: KindParse, Msg: "response is not valid invoice JSON", Err: err}
	}

	record := &model.InvoiceRecord{
		ShopName: strings.TrimSpace(raw.ShopName),
		Date:     strings.TrimSpace(raw.Date),
		TotalHT:  float64(raw.TotalHT),
		TotalTTC: float64(raw.TotalTTC),
		VAT:      float64(raw.VAT),
		Items:    make([]model.LineItem, 0, len(raw.Items)),
	}
	for _, it := range raw.Items {
		desc := strings.TrimSpace(it.Description)
		if desc == "" {
			desc = strings.TrimSpace(it.Name)
		}
		price := float64(it.UnitPrice)
		if price == 0 {
			price = float64(it.Price)
		}
		qty := float64(it.Quantity)
		if qty == 0 {
			qty = 1
		}
		record.Items = append(record.Items, model.LineItem{
			Description: desc,
			Quantity:    qty,
			UnitPrice:   price,
		})
	}

	if record.ShopName == "" && record.TotalTTC == 0 {
		return nil, &Error{Kind: KindParse, Msg: "required fields missing after coercion"}
	}
	return record, nil
}
