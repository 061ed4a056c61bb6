package models

import (
	"context"

	"bitbucket.org/mmdatafocus/retail_backend/config"
	"github.com/shopspring/decimal"
)

type StockAuditFinding struct {
	ProductId int             `json:"product_id"`
	Name      string          `json:"name"`
	Sku       string          `json:"sku"`
	StockQty  decimal.Decimal `json:"stock_qty"`
	Problem   string          `json:"problem"`
}

// AuditStock scans for products that violate the stock invariants: a
// negative stock quantity (should be impossible after a committed mutation),
// a composite carrying its own stock, and a composite with no components.
func AuditStock(ctx context.Context) ([]StockAuditFinding, error) {
	db := config.GetDB()
	var products []*Product
	if err := db.WithContext(ctx).Preload("Components").Find(&products).Error; err != nil {
		return nil, err
	}

	findings := []StockAuditFinding{}
	for _, product := range products {
		composite := product.IsComposite != nil && *product.IsComposite
		if product.StockQty.IsNegative() {
			findings = append(findings, StockAuditFinding{
				ProductId: product.ID,
				Name:      product.Name,
				Sku:       product.Sku,
				StockQty:  product.StockQty,
				Problem:   "negative stock",
			})
		}
		if composite && !product.StockQty.IsZero() {
			findings = append(findings, StockAuditFinding{
				ProductId: product.ID,
				Name:      product.Name,
				Sku:       product.Sku,
				StockQty:  product.StockQty,
				Problem:   "composite product holds own stock",
			})
		}
		if composite && len(product.Components) == 0 {
			findings = append(findings, StockAuditFinding{
				ProductId: product.ID,
				Name:      product.Name,
				Sku:       product.Sku,
				StockQty:  product.StockQty,
				Problem:   "composite product has no components",
			})
		}
	}
	return findings, nil
}
