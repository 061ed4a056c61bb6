package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/retail_backend/config"
	"bitbucket.org/mmdatafocus/retail_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Order reserves physical stock: creating one deducts stock for every item,
// cancelling or deleting one puts it back. Conversion to an invoice hands
// the reservation over to the sale.
type Order struct {
	ID              int             `gorm:"primary_key" json:"id"`
	CustomerId      *int            `gorm:"index" json:"customer_id"`
	Customer        *Customer       `json:"customer"`
	Status          OrderStatus     `gorm:"type:ENUM('Pending','Processing','Completed','Invoiced','Cancelled');not null;default:'Pending'" json:"status"`
	OrderDateTime   time.Time       `gorm:"index;not null" json:"order_date_time"`
	DeliveryAddress string          `gorm:"size:255" json:"delivery_address"`
	DeliveryDate    *time.Time      `json:"delivery_date"`
	DeliveryNotes   string          `gorm:"size:255" json:"delivery_notes"`
	TotalAmount     decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"total_amount"`
	Items           []OrderItem     `gorm:"foreignKey:OrderId" json:"items"`
	UserId          int             `json:"user_id"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type OrderItem struct {
	ID        int             `gorm:"primary_key" json:"id"`
	OrderId   int             `gorm:"index;not null" json:"order_id"`
	ProductId int             `gorm:"index;not null" json:"product_id"`
	Product   *Product        `json:"product"`
	Qty       decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"qty"`
	Unit      string          `gorm:"size:20;not null" json:"unit"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_price"`
	LineTotal decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"line_total"`
}

type NewOrderItem struct {
	ProductId int             `json:"product_id" binding:"required"`
	Qty       decimal.Decimal `json:"qty" binding:"required"`
	Unit      string          `json:"unit" binding:"required"`
}

type NewOrder struct {
	CustomerId      *int           `json:"customer_id"`
	DeliveryAddress string         `json:"delivery_address"`
	DeliveryDate    *time.Time     `json:"delivery_date"`
	DeliveryNotes   string         `json:"delivery_notes"`
	Items           []NewOrderItem `json:"items" binding:"required"`
}

func (input *NewOrder) validate(ctx context.Context) error {
	if len(input.Items) == 0 {
		return ErrEmptyItemList
	}
	if input.CustomerId != nil {
		if err := utils.ValidateResourceId[Customer](ctx, *input.CustomerId); err != nil {
			return fmt.Errorf("customer %d: %w", *input.CustomerId, ErrCustomerNotFound)
		}
	}
	for _, item := range input.Items {
		if !item.Qty.IsPositive() {
			return errors.New("item qty must be positive")
		}
	}
	return nil
}

// buildOrderItems resolves products and prices each line. The price of a
// line is the declared price for the unit it is sold in, never derived from
// the conversion factor.
func buildOrderItems(tx *gorm.DB, inputs []NewOrderItem) ([]OrderItem, decimal.Decimal, error) {
	items := make([]OrderItem, 0, len(inputs))
	total := decimal.Zero
	for _, input := range inputs {
		product, err := getProductForStock(tx, input.ProductId)
		if err != nil {
			return nil, decimal.Zero, err
		}
		unitPrice, err := product.UnitPrice(input.Unit)
		if err != nil {
			return nil, decimal.Zero, err
		}
		lineTotal := unitPrice.Mul(input.Qty).Round(2)
		items = append(items, OrderItem{
			ProductId: input.ProductId,
			Qty:       input.Qty,
			Unit:      input.Unit,
			UnitPrice: unitPrice,
			LineTotal: lineTotal,
		})
		total = total.Add(lineTotal)
	}
	return items, total, nil
}

func CreateOrder(ctx context.Context, input *NewOrder) (*Order, error) {
	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	userId, _ := utils.GetUserIdFromContext(ctx)
	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	defer func() {
		_ = tx.Rollback().Error
	}()

	items, total, err := buildOrderItems(tx, input.Items)
	if err != nil {
		return nil, err
	}

	order := Order{
		CustomerId:      input.CustomerId,
		Status:          OrderStatusPending,
		OrderDateTime:   time.Now(),
		DeliveryAddress: input.DeliveryAddress,
		DeliveryDate:    input.DeliveryDate,
		DeliveryNotes:   input.DeliveryNotes,
		TotalAmount:     total,
		Items:           items,
		UserId:          userId,
	}
	if err := tx.Create(&order).Error; err != nil {
		return nil, err
	}

	ref := StockMovementRef{Reason: StockMovementReasonOrderCreate, OrderId: &order.ID}
	if err := DeductOrderItemsStock(tx, order.Items, ref); err != nil {
		return nil, err
	}

	return &order, tx.Commit().Error
}

// UpdateOrderItems replaces an order's item list. Stock for every old item
// is restored, then stock for every new item is deducted; no diffing, so a
// qty edit shows up as two movements.
func UpdateOrderItems(ctx context.Context, orderId int, inputs []NewOrderItem) (*Order, error) {
	if len(inputs) == 0 {
		return nil, ErrEmptyItemList
	}
	for _, item := range inputs {
		if !item.Qty.IsPositive() {
			return nil, errors.New("item qty must be positive")
		}
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	defer func() {
		_ = tx.Rollback().Error
	}()

	order, err := getOrderForEdit(tx, orderId)
	if err != nil {
		return nil, err
	}

	ref := StockMovementRef{Reason: StockMovementReasonOrderEdit, OrderId: &order.ID}
	if err := RestoreOrderItemsStock(tx, order.Items, ref); err != nil {
		return nil, err
	}
	if err := tx.Where("order_id = ?", order.ID).Delete(&OrderItem{}).Error; err != nil {
		return nil, err
	}

	items, total, err := buildOrderItems(tx, inputs)
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i].OrderId = order.ID
	}
	if err := tx.Create(&items).Error; err != nil {
		return nil, err
	}
	if err := tx.Model(order).UpdateColumn("total_amount", total).Error; err != nil {
		return nil, err
	}

	if err := DeductOrderItemsStock(tx, items, ref); err != nil {
		return nil, err
	}

	order.Items = items
	order.TotalAmount = total
	return order, tx.Commit().Error
}

// UpdateOrder edits delivery metadata only; items go through
// UpdateOrderItems.
func UpdateOrder(ctx context.Context, orderId int, input *NewOrder) (*Order, error) {
	order, err := utils.FetchModel[Order](ctx, orderId, "Items", "Customer")
	if err != nil {
		return nil, fmt.Errorf("order %d: %w", orderId, ErrOrderNotFound)
	}
	if order.Status.Terminal() {
		return nil, fmt.Errorf("order %d: %w", orderId, ErrAlreadyInvoiced)
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Model(order).Updates(map[string]interface{}{
		"DeliveryAddress": input.DeliveryAddress,
		"DeliveryDate":    input.DeliveryDate,
		"DeliveryNotes":   input.DeliveryNotes,
	}).Error; err != nil {
		return nil, err
	}
	return order, nil
}

func UpdateOrderStatus(ctx context.Context, orderId int, status OrderStatus) (*Order, error) {
	if !status.IsValid() {
		return nil, errors.New("invalid order status")
	}
	if status == OrderStatusInvoiced || status == OrderStatusCompleted {
		return nil, errors.New("orders settle through conversion, not status updates")
	}
	if status == OrderStatusCancelled {
		return CancelOrder(ctx, orderId)
	}

	order, err := utils.FetchModel[Order](ctx, orderId, "Items")
	if err != nil {
		return nil, fmt.Errorf("order %d: %w", orderId, ErrOrderNotFound)
	}
	if order.Status.Terminal() {
		return nil, fmt.Errorf("order %d: %w", orderId, ErrAlreadyInvoiced)
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Model(order).
		UpdateColumn("status", status).Error; err != nil {
		return nil, err
	}
	order.Status = status
	return order, nil
}

func DeleteOrderItem(ctx context.Context, orderItemId int) (*Order, error) {
	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	defer func() {
		_ = tx.Rollback().Error
	}()

	var item OrderItem
	if err := tx.First(&item, orderItemId).Error; err != nil {
		return nil, fmt.Errorf("order item %d: %w", orderItemId, utils.ErrorRecordNotFound)
	}

	order, err := getOrderForEdit(tx, item.OrderId)
	if err != nil {
		return nil, err
	}
	lastItem := len(order.Items) == 1

	ref := StockMovementRef{Reason: StockMovementReasonOrderItemDelete, OrderId: &order.ID}
	if err := RestoreOrderItemsStock(tx, []OrderItem{item}, ref); err != nil {
		return nil, err
	}
	if err := tx.Delete(&item).Error; err != nil {
		return nil, err
	}

	total := order.TotalAmount.Sub(item.LineTotal)
	if err := tx.Model(order).UpdateColumn("total_amount", total).Error; err != nil {
		return nil, err
	}
	order.TotalAmount = total

	// Removing the only item leaves nothing to invoice; the order ends the
	// same way a cancellation would.
	if lastItem {
		if err := tx.Model(order).UpdateColumn("status", OrderStatusCancelled).Error; err != nil {
			return nil, err
		}
		order.Status = OrderStatusCancelled
	}

	remaining := order.Items[:0]
	for _, existing := range order.Items {
		if existing.ID != item.ID {
			remaining = append(remaining, existing)
		}
	}
	order.Items = remaining
	return order, tx.Commit().Error
}

// CancelOrder restores the stock reservation and parks the order in a
// terminal state. Invoiced orders cannot be cancelled; the sale owns the
// stock by then.
func CancelOrder(ctx context.Context, orderId int) (*Order, error) {
	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	defer func() {
		_ = tx.Rollback().Error
	}()

	order, err := getOrderForEdit(tx, orderId)
	if err != nil {
		return nil, err
	}

	ref := StockMovementRef{Reason: StockMovementReasonOrderCancel, OrderId: &order.ID}
	if err := RestoreOrderItemsStock(tx, order.Items, ref); err != nil {
		return nil, err
	}
	if err := tx.Model(order).UpdateColumn("status", OrderStatusCancelled).Error; err != nil {
		return nil, err
	}
	order.Status = OrderStatusCancelled
	return order, tx.Commit().Error
}

// DeleteOrder removes the order outright. Non-terminal orders get their
// stock back first; cancelled orders already did.
func DeleteOrder(ctx context.Context, orderId int) (*Order, error) {
	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	defer func() {
		_ = tx.Rollback().Error
	}()

	var order Order
	if err := tx.Preload("Items").First(&order, orderId).Error; err != nil {
		return nil, fmt.Errorf("order %d: %w", orderId, ErrOrderNotFound)
	}
	if order.Status == OrderStatusInvoiced {
		return nil, fmt.Errorf("order %d: %w", orderId, ErrAlreadyInvoiced)
	}

	if order.Status != OrderStatusCancelled {
		ref := StockMovementRef{Reason: StockMovementReasonOrderCancel, OrderId: &order.ID}
		if err := RestoreOrderItemsStock(tx, order.Items, ref); err != nil {
			return nil, err
		}
	}
	if err := tx.Where("order_id = ?", order.ID).Delete(&OrderItem{}).Error; err != nil {
		return nil, err
	}
	if err := tx.Delete(&order).Error; err != nil {
		return nil, err
	}
	return &order, tx.Commit().Error
}

func GetOrder(ctx context.Context, id int) (*Order, error) {
	order, err := utils.FetchModel[Order](ctx, id, "Items", "Items.Product", "Customer")
	if err != nil {
		return nil, fmt.Errorf("order %d: %w", id, ErrOrderNotFound)
	}
	return order, nil
}

type OrderFilter struct {
	CustomerId *int         `json:"customer_id"`
	Status     *OrderStatus `json:"status"`
	FromDate   *time.Time   `json:"from_date"`
	ToDate     *time.Time   `json:"to_date"`
}

func GetOrders(ctx context.Context, filter *OrderFilter) ([]*Order, error) {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Preload("Items").Preload("Customer")
	if filter != nil {
		if filter.CustomerId != nil {
			dbCtx = dbCtx.Where("customer_id = ?", *filter.CustomerId)
		}
		if filter.Status != nil {
			dbCtx = dbCtx.Where("status = ?", *filter.Status)
		}
		if filter.FromDate != nil {
			dbCtx = dbCtx.Where("order_date_time >= ?", *filter.FromDate)
		}
		if filter.ToDate != nil {
			dbCtx = dbCtx.Where("order_date_time <= ?", *filter.ToDate)
		}
	}

	var results []*Order
	if err := dbCtx.Order("order_date_time DESC, id DESC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// getOrderForEdit loads an order with its items under FOR UPDATE and rejects
// orders whose stock reservation is no longer editable.
func getOrderForEdit(tx *gorm.DB, orderId int) (*Order, error) {
	var order Order
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Items").First(&order, orderId).Error; err != nil {
		return nil, fmt.Errorf("order %d: %w", orderId, ErrOrderNotFound)
	}
	if order.Status.Terminal() {
		return nil, fmt.Errorf("order %d is %s: %w", orderId, order.Status, ErrAlreadyInvoiced)
	}
	return &order, nil
}
