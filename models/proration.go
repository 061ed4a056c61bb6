package models

import "github.com/shopspring/decimal"

var oneHundred = decimal.NewFromInt(100)

type ProrationSummary struct {
	Subtotal        decimal.Decimal `json:"subtotal"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	SurchargeAmount decimal.Decimal `json:"surcharge_amount"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
}

// AllocateAdjustments spreads an order-level discount and surcharge across
// sale lines in proportion to each line's subtotal. Every share is rounded
// to 2 decimal places; the last line takes the remainder so the shares sum
// to the rounded totals exactly. The surcharge applies after the discount.
func AllocateAdjustments(items []SaleItem, discountPercent, surchargePercent decimal.Decimal) ([]SaleItem, ProrationSummary) {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.Subtotal)
	}

	discountTotal := subtotal.Mul(discountPercent).Div(oneHundred).Round(2)
	surchargeTotal := subtotal.Sub(discountTotal).Mul(surchargePercent).Div(oneHundred).Round(2)

	discountShares := prorate(items, subtotal, discountTotal)
	surchargeShares := prorate(items, subtotal, surchargeTotal)

	result := make([]SaleItem, len(items))
	for i, item := range items {
		item.DiscountAmount = discountShares[i]
		item.SurchargeAmount = surchargeShares[i]
		item.TotalAmount = item.Subtotal.Sub(discountShares[i]).Add(surchargeShares[i])
		result[i] = item
	}

	summary := ProrationSummary{
		Subtotal:        subtotal,
		DiscountAmount:  discountTotal,
		SurchargeAmount: surchargeTotal,
		TotalAmount:     subtotal.Sub(discountTotal).Add(surchargeTotal),
	}
	return result, summary
}

// prorate splits total across items by subtotal proportion. All shares but
// the last are rounded independently; the last absorbs the rounding drift.
// A zero subtotal puts the whole total on the last item.
func prorate(items []SaleItem, subtotal, total decimal.Decimal) []decimal.Decimal {
	shares := make([]decimal.Decimal, len(items))
	if len(items) == 0 {
		return shares
	}

	allocated := decimal.Zero
	for i := 0; i < len(items)-1; i++ {
		share := decimal.Zero
		if !subtotal.IsZero() {
			share = total.Mul(items[i].Subtotal).Div(subtotal).Round(2)
		}
		shares[i] = share
		allocated = allocated.Add(share)
	}
	shares[len(items)-1] = total.Sub(allocated)
	return shares
}
