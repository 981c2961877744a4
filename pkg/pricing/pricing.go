// Package pricing holds the money arithmetic shared by the catalog, cart and orders.
package pricing

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// EffectivePrice applies a sale percentage to sellingPrice and rounds half-up to
// a whole currency unit. A nil or non-positive percentage leaves the price unchanged.
func EffectivePrice(sellingPrice int64, salePercentage *float64) int64 {
	if salePercentage == nil || *salePercentage <= 0 {
		return sellingPrice
	}
	price := decimal.NewFromInt(sellingPrice)
	discount := price.Mul(decimal.NewFromFloat(*salePercentage)).Div(hundred)
	return price.Sub(discount).Round(0).IntPart()
}

// LineTotal is unit price times quantity.
func LineTotal(price int64, quantity int) int64 {
	return price * int64(quantity)
}

// Average returns sum/count rounded half-up to two decimal places.
func Average(sum int64, count int64) float64 {
	if count <= 0 {
		return 0
	}
	avg := decimal.NewFromInt(sum).DivRound(decimal.NewFromInt(count), 2)
	f, _ := avg.Float64()
	return f
}
