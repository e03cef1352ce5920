package billing

import "fmt"

// BillTotals aggregates a draft's money figures. Values carry full float
// precision; formatting to two decimals happens only at render time.
type BillTotals struct {
	SubTotal        float64 `json:"subTotal"`
	TotalQuantity   float64 `json:"totalQuantity"`
	Discount        float64 `json:"discount"`
	DiscountedTotal float64 `json:"discountedTotal"`
}

// Totals sums the non-free rows and applies the percentage discount. Quantity
// is summed across every row, free ones included.
func Totals(lines []LineItem, discount float64) BillTotals {
	var subTotal, totalQty float64
	for _, l := range lines {
		totalQty += l.Quantity
		if l.Free {
			continue
		}
		subTotal += l.Price * l.Quantity
	}
	return BillTotals{
		SubTotal:        subTotal,
		TotalQuantity:   totalQty,
		Discount:        discount,
		DiscountedTotal: subTotal - subTotal*discount/100,
	}
}

// FormatAmount renders a money value with the rupee prefix and two decimals.
func FormatAmount(v float64) string {
	return fmt.Sprintf("₹%.2f", v)
}
