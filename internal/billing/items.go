package billing

import (
	"strconv"
	"strings"

	"github.com/scoopstack/backend-scoopstack/internal/catalog"
)

// LineItem is one editable row of a bill draft.
type LineItem struct {
	ProductName string  `json:"productName"`
	Quantity    float64 `json:"quantity"`
	Unit        string  `json:"unit"`
	Price       float64 `json:"price"`
	Free        bool    `json:"free"`
	Total       float64 `json:"total"`
}

// Line editor field names, mirroring the bill form columns.
const (
	FieldProductName = "productName"
	FieldQuantity    = "quantity"
	FieldUnit        = "unit"
	FieldPrice       = "price"
)

// NewLines returns n blank rows. Quantity starts at 1 so typing a product
// name immediately yields a sensible total.
func NewLines(n int) []LineItem {
	lines := make([]LineItem, n)
	for i := range lines {
		lines[i].Quantity = 1
	}
	return lines
}

// AddLine appends one blank row to the draft.
func AddLine(lines []LineItem) []LineItem {
	return append(lines, LineItem{Quantity: 1})
}

// UpdateLine applies a single field edit to the row at idx and recomputes its
// total. Out-of-range indices are a no-op. Numeric fields that fail to parse
// are coerced to zero. Editing the product name to an exact (case-insensitive)
// catalog match auto-fills the price and always overwrites the unit.
func UpdateLine(lines []LineItem, idx int, field, value string, products []catalog.Product) []LineItem {
	if idx < 0 || idx >= len(lines) {
		return lines
	}
	line := &lines[idx]

	switch field {
	case FieldProductName:
		line.ProductName = value
		if p, ok := matchProduct(products, value); ok {
			line.Price = autoPrice(p)
			line.Unit = p.Unit
		}
	case FieldQuantity:
		line.Quantity = parseAmount(value)
	case FieldUnit:
		line.Unit = value
	case FieldPrice:
		line.Price = parseAmount(value)
	}

	line.Total = lineTotal(*line)
	return lines
}

// ToggleFree flips the free flag on the row at idx and recomputes its total.
// Out-of-range indices are a no-op.
func ToggleFree(lines []LineItem, idx int) []LineItem {
	if idx < 0 || idx >= len(lines) {
		return lines
	}
	lines[idx].Free = !lines[idx].Free
	lines[idx].Total = lineTotal(lines[idx])
	return lines
}

// Recompute refreshes every row total. Used when a draft arrives over the
// wire and the stored totals cannot be trusted.
func Recompute(lines []LineItem) []LineItem {
	for i := range lines {
		lines[i].Total = lineTotal(lines[i])
	}
	return lines
}

// Filled reports whether the row carries any user-entered value.
func (l LineItem) Filled() bool {
	return l.ProductName != "" || l.Unit != "" || l.Price != 0 || l.Free || l.Quantity != 1
}

func lineTotal(l LineItem) float64 {
	if l.Free {
		return 0
	}
	return l.Price * l.Quantity
}

func matchProduct(products []catalog.Product, name string) (catalog.Product, bool) {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return catalog.Product{}, false
	}
	for _, p := range products {
		if strings.ToLower(p.Name) == needle {
			return p, true
		}
	}
	return catalog.Product{}, false
}

// autoPrice prefers the selling price, falls back to the cost price, and
// settles on zero when the product has neither.
func autoPrice(p catalog.Product) float64 {
	if p.SellingPrice != nil {
		return *p.SellingPrice
	}
	if p.Price != nil {
		return *p.Price
	}
	return 0
}

func parseAmount(value string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0
	}
	return v
}
