package store

import "github.com/shopspring/decimal"

// CartSummary is a cart snapshot with its derived totals
type CartSummary struct {
	Items      []CartItem      `json:"items"`
	TotalItems int             `json:"total_items"`
	TotalPrice decimal.Decimal `json:"total_price"`
	Savings    decimal.Decimal `json:"savings"`
	IsOpen     bool            `json:"is_open"`
}

func Summarize(items []CartItem, open bool) CartSummary {
	if items == nil {
		items = []CartItem{}
	}
	return CartSummary{
		Items:      items,
		TotalItems: TotalItems(items),
		TotalPrice: TotalPrice(items),
		Savings:    Savings(items),
		IsOpen:     open,
	}
}

func TotalItems(items []CartItem) int {
	n := 0
	for _, it := range items {
		n += it.Quantity
	}
	return n
}

func TotalPrice(items []CartItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.LineTotal())
	}
	return total
}

// Savings sums (base price - unit price) × quantity over discounted lines.
// Lines priced by a variant override have no known base price and are skipped.
func Savings(items []CartItem) decimal.Decimal {
	saved := decimal.Zero
	for _, it := range items {
		if it.Variant != nil && it.Variant.SellingPrice != nil {
			continue
		}
		diff := it.Product.BasePrice.Sub(it.Product.SellingPrice)
		if diff.IsPositive() {
			saved = saved.Add(diff.Mul(decimal.NewFromInt(int64(it.Quantity))))
		}
	}
	return saved
}
