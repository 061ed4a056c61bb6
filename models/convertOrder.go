package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/retail_backend/config"
	"bitbucket.org/mmdatafocus/retail_backend/utils"
	"github.com/shopspring/decimal"
)

type ConvertOrderInput struct {
	DocumentType     DocumentType     `json:"document_type"`
	DiscountPercent  decimal.Decimal  `json:"discount_percent"`
	SurchargePercent decimal.Decimal  `json:"surcharge_percent"`
	Payments         []NewSalePayment `json:"payments" binding:"required"`
}

// ConvertOrderToInvoice turns a pending or processing order into a sale.
//
// The order already holds the stock reservation, so the conversion first
// restores the order items' stock and then deducts the sale items' stock.
// For an unchanged item list the two cancel out, and the movement log shows
// the reservation passing from the order to the sale. Stock runs before the
// ledger posting, and the whole thing is one transaction under the sales
// lock: any failure leaves order, stock and ledger untouched.
func ConvertOrderToInvoice(ctx context.Context, orderId int, input *ConvertOrderInput) (*Sale, error) {
	documentType := input.DocumentType
	if documentType == "" {
		documentType = DocumentTypeInvoice
	}

	release, err := utils.EntityLock(ctx, "sales", orderId, "sale", "ConvertOrderToInvoice")
	if err != nil {
		return nil, err
	}
	defer release()

	userId, _ := utils.GetUserIdFromContext(ctx)
	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	defer func() {
		_ = tx.Rollback().Error
	}()

	order, err := getOrderForEdit(tx, orderId)
	if err != nil {
		return nil, err
	}
	if len(order.Items) == 0 {
		return nil, ErrEmptyItemList
	}

	restoreRef := StockMovementRef{Reason: StockMovementReasonOrderConvert, OrderId: &order.ID}
	if err := RestoreOrderItemsStock(tx, order.Items, restoreRef); err != nil {
		return nil, err
	}

	items := make([]SaleItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, SaleItem{
			ProductId: item.ProductId,
			Qty:       item.Qty,
			Unit:      item.Unit,
			UnitPrice: item.UnitPrice,
			Subtotal:  item.LineTotal,
		})
	}

	sale := Sale{
		CustomerId:       order.CustomerId,
		OrderId:          &order.ID,
		DocumentType:     documentType,
		SaleDateTime:     time.Now(),
		DiscountPercent:  input.DiscountPercent,
		SurchargePercent: input.SurchargePercent,
		UserId:           userId,
	}
	deductRef := StockMovementRef{Reason: StockMovementReasonOrderConvert, OrderId: &order.ID}
	result, err := createSaleCore(tx, &sale, items, input.Payments, deductRef)
	if err != nil {
		return nil, err
	}

	if err := tx.Model(order).UpdateColumn("status", OrderStatusInvoiced).Error; err != nil {
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	config.GetLogger().WithContext(ctx).Infof(
		"order %d converted to %s %d, total %s", order.ID, result.DocumentType,
		result.ID, result.TotalAmount.StringFixed(2))
	return result, nil
}
