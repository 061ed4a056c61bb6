package models

import (
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/retail_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Stock mutation is isolated in this file: every change to Product.StockQty
// goes through ApplyStockDelta so conversion, composite expansion and the
// never-negative invariant are enforced in exactly one place.

type StockMovementReason string

const (
	StockMovementReasonOrderCreate     StockMovementReason = "OrderCreate"
	StockMovementReasonOrderEdit       StockMovementReason = "OrderEdit"
	StockMovementReasonOrderItemDelete StockMovementReason = "OrderItemDelete"
	StockMovementReasonOrderCancel     StockMovementReason = "OrderCancel"
	StockMovementReasonOrderConvert    StockMovementReason = "OrderConvert"
	StockMovementReasonSale            StockMovementReason = "Sale"
)

// StockMovement is the append-only audit trail of stock changes, one row per
// affected component product. Qty is signed in base units.
type StockMovement struct {
	ID         int                 `gorm:"primary_key" json:"id"`
	ProductId  int                 `gorm:"index;not null" json:"product_id"`
	Qty        decimal.Decimal     `gorm:"type:decimal(20,4);not null" json:"qty"`
	StockAfter decimal.Decimal     `gorm:"type:decimal(20,4);not null" json:"stock_after"`
	Reason     StockMovementReason `gorm:"size:30;not null;index" json:"reason"`
	OrderId    *int                `gorm:"index" json:"order_id"`
	SaleId     *int                `gorm:"index" json:"sale_id"`
	UserId     int                 `gorm:"index" json:"user_id"`
	CreatedAt  time.Time           `gorm:"autoCreateTime" json:"created_at"`
}

// StockMovementRef attributes a mutation to its originating document.
type StockMovementRef struct {
	Reason  StockMovementReason
	OrderId *int
	SaleId  *int
}

// ApplyStockDelta expands the product (unit conversion + composite
// components) and applies the signed delta to every affected component row.
//
// It must run inside the caller's transaction: each component row is read
// under FOR UPDATE, and a deduction that would go negative returns
// ErrInsufficientStock so the caller's rollback undoes the portions already
// applied. All-or-nothing per logical operation.
func ApplyStockDelta(tx *gorm.DB, productId int, qty decimal.Decimal, unit string, direction StockDirection, ref StockMovementRef) ([]StockPortion, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx is nil")
	}

	product, err := getProductForStock(tx, productId)
	if err != nil {
		return nil, err
	}

	portions, err := product.ExpandComponents(qty, unit)
	if err != nil {
		return nil, err
	}

	userId, _ := utils.GetUserIdFromContext(tx.Statement.Context)

	for _, portion := range portions {
		var component Product
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&component, portion.ProductId).Error; err != nil {
			return nil, fmt.Errorf("product %d: %w", portion.ProductId, ErrProductNotFound)
		}

		delta := portion.BaseQty
		if direction == StockDirectionOut {
			delta = delta.Neg()
		}
		newStock := component.StockQty.Add(delta)
		if direction == StockDirectionOut && newStock.IsNegative() {
			return nil, fmt.Errorf("product %d (%s): need %s, have %s: %w",
				component.ID, component.Name, portion.BaseQty, component.StockQty, ErrInsufficientStock)
		}

		if err := tx.Model(&Product{}).Where("id = ?", component.ID).
			UpdateColumn("stock_qty", newStock).Error; err != nil {
			return nil, err
		}

		movement := StockMovement{
			ProductId:  component.ID,
			Qty:        delta,
			StockAfter: newStock,
			Reason:     ref.Reason,
			OrderId:    ref.OrderId,
			SaleId:     ref.SaleId,
			UserId:     userId,
		}
		if err := tx.Create(&movement).Error; err != nil {
			return nil, err
		}
	}

	return portions, nil
}

// DeductOrderItemsStock deducts stock for every item of an order, in item
// order, stopping at the first failure.
func DeductOrderItemsStock(tx *gorm.DB, items []OrderItem, ref StockMovementRef) error {
	for _, item := range items {
		if _, err := ApplyStockDelta(tx, item.ProductId, item.Qty, item.Unit, StockDirectionOut, ref); err != nil {
			return err
		}
	}
	return nil
}

// RestoreOrderItemsStock reverses the stock effect of every item of an
// order. Used by edit (before re-applying the new items), item deletion and
// cancellation; restoration cannot fail the never-negative check.
func RestoreOrderItemsStock(tx *gorm.DB, items []OrderItem, ref StockMovementRef) error {
	for _, item := range items {
		if _, err := ApplyStockDelta(tx, item.ProductId, item.Qty, item.Unit, StockDirectionIn, ref); err != nil {
			return err
		}
	}
	return nil
}
