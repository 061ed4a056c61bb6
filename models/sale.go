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
)

// Sale is the financial document. Once created it is immutable apart from
// payment-status bookkeeping; corrections go through notes.
type Sale struct {
	ID               int             `gorm:"primary_key" json:"id"`
	CustomerId       *int            `gorm:"index" json:"customer_id"`
	Customer         *Customer       `json:"customer"`
	OrderId          *int            `gorm:"index" json:"order_id"`
	DocumentType     DocumentType    `gorm:"type:ENUM('Receipt','Invoice');not null" json:"document_type"`
	SaleDateTime     time.Time       `gorm:"index;not null" json:"sale_date_time"`
	Subtotal         decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"subtotal"`
	DiscountPercent  decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"discount_percent"`
	DiscountAmount   decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"discount_amount"`
	SurchargePercent decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"surcharge_percent"`
	SurchargeAmount  decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"surcharge_amount"`
	TotalAmount      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"total_amount"`
	PaymentStatus    SaleStatus      `gorm:"type:ENUM('Completed','OnAccount','PartialPaid');not null" json:"payment_status"`
	Items            []SaleItem      `gorm:"foreignKey:SaleId" json:"items"`
	Payments         []SalePayment   `gorm:"foreignKey:SaleId" json:"payments"`
	UserId           int             `json:"user_id"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type SaleItem struct {
	ID              int             `gorm:"primary_key" json:"id"`
	SaleId          int             `gorm:"index;not null" json:"sale_id"`
	ProductId       int             `gorm:"index;not null" json:"product_id"`
	Product         *Product        `json:"product"`
	Qty             decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"qty"`
	Unit            string          `gorm:"size:20;not null" json:"unit"`
	UnitPrice       decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_price"`
	Subtotal        decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"subtotal"`
	DiscountAmount  decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"discount_amount"`
	SurchargeAmount decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"surcharge_amount"`
	TotalAmount     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"total_amount"`
}

type SalePayment struct {
	ID     int             `gorm:"primary_key" json:"id"`
	SaleId int             `gorm:"index;not null" json:"sale_id"`
	Method PaymentMethod   `gorm:"type:ENUM('Cash','Transfer','Card','CurrentAccount');not null" json:"method"`
	Amount decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
}

type NewSalePayment struct {
	Method PaymentMethod   `json:"method" binding:"required"`
	Amount decimal.Decimal `json:"amount" binding:"required"`
}

type NewSaleItem struct {
	ProductId int             `json:"product_id" binding:"required"`
	Qty       decimal.Decimal `json:"qty" binding:"required"`
	Unit      string          `json:"unit" binding:"required"`
}

type NewSale struct {
	CustomerId       *int             `json:"customer_id"`
	DocumentType     DocumentType     `json:"document_type"`
	DiscountPercent  decimal.Decimal  `json:"discount_percent"`
	SurchargePercent decimal.Decimal  `json:"surcharge_percent"`
	Items            []NewSaleItem    `json:"items"`
	Payments         []NewSalePayment `json:"payments" binding:"required"`
}

// buildSaleItems resolves products and prices each line with the declared
// per-unit price, before proration.
func buildSaleItems(tx *gorm.DB, inputs []NewSaleItem) ([]SaleItem, error) {
	items := make([]SaleItem, 0, len(inputs))
	for _, input := range inputs {
		if !input.Qty.IsPositive() {
			return nil, errors.New("item qty must be positive")
		}
		product, err := getProductForStock(tx, input.ProductId)
		if err != nil {
			return nil, err
		}
		unitPrice, err := product.UnitPrice(input.Unit)
		if err != nil {
			return nil, err
		}
		items = append(items, SaleItem{
			ProductId: input.ProductId,
			Qty:       input.Qty,
			Unit:      input.Unit,
			UnitPrice: unitPrice,
			Subtotal:  unitPrice.Mul(input.Qty).Round(2),
		})
	}
	return items, nil
}

// splitPayments validates the split against the computed total and returns
// the portion settled immediately and the portion left on the current
// account.
func splitPayments(payments []NewSalePayment, total decimal.Decimal) (immediate, onAccount decimal.Decimal, err error) {
	paid := decimal.Zero
	for _, payment := range payments {
		if !payment.Method.IsValid() {
			return decimal.Zero, decimal.Zero, fmt.Errorf("payment method %q: %w", payment.Method, ErrInvalidPaymentSplit)
		}
		if payment.Amount.IsNegative() {
			return decimal.Zero, decimal.Zero, fmt.Errorf("negative payment amount: %w", ErrInvalidPaymentSplit)
		}
		paid = paid.Add(payment.Amount)
		if payment.Method == PaymentMethodCurrentAccount {
			onAccount = onAccount.Add(payment.Amount)
		} else {
			immediate = immediate.Add(payment.Amount)
		}
	}
	if !paid.Equal(total) {
		return decimal.Zero, decimal.Zero, fmt.Errorf("payments %s do not match total %s: %w",
			paid.StringFixed(2), total.StringFixed(2), ErrInvalidPaymentSplit)
	}
	return immediate, onAccount, nil
}

func paymentStatus(immediate, onAccount decimal.Decimal) SaleStatus {
	switch {
	case onAccount.IsZero():
		return SaleStatusCompleted
	case immediate.IsZero():
		return SaleStatusOnAccount
	default:
		return SaleStatusPartial
	}
}

// createSaleCore runs the shared tail of both sale paths inside the caller's
// transaction: proration, sale persistence, stock deduction and ledger
// posting, in that order. Stock runs before the ledger so an
// ErrInsufficientStock rollback never leaves ledger rows behind.
func createSaleCore(tx *gorm.DB, sale *Sale, items []SaleItem, payments []NewSalePayment, stockRef StockMovementRef) (*Sale, error) {
	if len(items) == 0 {
		return nil, ErrEmptyItemList
	}

	prorated, summary := AllocateAdjustments(items, sale.DiscountPercent, sale.SurchargePercent)
	sale.Subtotal = summary.Subtotal
	sale.DiscountAmount = summary.DiscountAmount
	sale.SurchargeAmount = summary.SurchargeAmount
	sale.TotalAmount = summary.TotalAmount
	sale.Items = prorated

	immediate, onAccount, err := splitPayments(payments, sale.TotalAmount)
	if err != nil {
		return nil, err
	}
	if !onAccount.IsZero() && sale.CustomerId == nil {
		return nil, fmt.Errorf("current account payment needs a customer: %w", ErrInvalidPaymentSplit)
	}
	sale.PaymentStatus = paymentStatus(immediate, onAccount)

	if err := tx.Create(sale).Error; err != nil {
		return nil, err
	}
	for _, payment := range payments {
		row := SalePayment{SaleId: sale.ID, Method: payment.Method, Amount: payment.Amount}
		if err := tx.Create(&row).Error; err != nil {
			return nil, err
		}
		sale.Payments = append(sale.Payments, row)
	}

	stockRef.SaleId = &sale.ID
	for _, item := range sale.Items {
		if _, err := ApplyStockDelta(tx, item.ProductId, item.Qty, item.Unit, StockDirectionOut, stockRef); err != nil {
			return nil, err
		}
	}

	// Every sale by an account holder lands on the statement: a debit for
	// the full total and a credit for whatever was settled immediately. A
	// fully-paid sale nets to zero but both rows still appear. Customers
	// without an account only get ledger rows when one is required, i.e.
	// when part of the total is left on account.
	if sale.CustomerId != nil {
		account, err := getCustomerAccountForUpdate(tx, *sale.CustomerId)
		if err != nil {
			if !errors.Is(err, ErrAccountNotFound) {
				return nil, err
			}
			if !onAccount.IsZero() {
				return nil, err
			}
			return sale, nil
		}
		if _, err := postAccountTransaction(tx, account, &LedgerEntry{
			Type:                TransactionTypeDebit,
			Amount:              sale.TotalAmount,
			Description:         fmt.Sprintf("%s #%d", sale.DocumentType, sale.ID),
			TransactionDateTime: sale.SaleDateTime,
			SaleId:              &sale.ID,
		}); err != nil {
			return nil, err
		}
		if !immediate.IsZero() {
			if _, err := postAccountTransaction(tx, account, &LedgerEntry{
				Type:                TransactionTypeCredit,
				Amount:              immediate,
				Description:         fmt.Sprintf("Payment on %s #%d", sale.DocumentType, sale.ID),
				TransactionDateTime: sale.SaleDateTime,
				SaleId:              &sale.ID,
			}); err != nil {
				return nil, err
			}
		}
	}

	return sale, nil
}

// CreateSale is the direct counter-sale path, no order involved.
func CreateSale(ctx context.Context, input *NewSale) (*Sale, error) {
	if len(input.Items) == 0 {
		return nil, ErrEmptyItemList
	}
	if input.CustomerId != nil {
		if err := utils.ValidateResourceId[Customer](ctx, *input.CustomerId); err != nil {
			return nil, fmt.Errorf("customer %d: %w", *input.CustomerId, ErrCustomerNotFound)
		}
	}
	documentType := input.DocumentType
	if documentType == "" {
		documentType = DocumentTypeReceipt
	}

	lockId := 0
	if input.CustomerId != nil {
		lockId = *input.CustomerId
	}
	release, err := utils.EntityLock(ctx, "sales", lockId, "sale", "CreateSale")
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

	items, err := buildSaleItems(tx, input.Items)
	if err != nil {
		return nil, err
	}

	sale := Sale{
		CustomerId:       input.CustomerId,
		DocumentType:     documentType,
		SaleDateTime:     time.Now(),
		DiscountPercent:  input.DiscountPercent,
		SurchargePercent: input.SurchargePercent,
		UserId:           userId,
	}
	result, err := createSaleCore(tx, &sale, items, input.Payments, StockMovementRef{Reason: StockMovementReasonSale})
	if err != nil {
		return nil, err
	}
	return result, tx.Commit().Error
}

func GetSale(ctx context.Context, id int) (*Sale, error) {
	sale, err := utils.FetchModel[Sale](ctx, id, "Items", "Items.Product", "Payments", "Customer")
	if err != nil {
		return nil, fmt.Errorf("sale %d: %w", id, utils.ErrorRecordNotFound)
	}
	return sale, nil
}

type SaleFilter struct {
	CustomerId *int       `json:"customer_id"`
	FromDate   *time.Time `json:"from_date"`
	ToDate     *time.Time `json:"to_date"`
}

func GetSales(ctx context.Context, filter *SaleFilter) ([]*Sale, error) {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Preload("Items").Preload("Payments").Preload("Customer")
	if filter != nil {
		if filter.CustomerId != nil {
			dbCtx = dbCtx.Where("customer_id = ?", *filter.CustomerId)
		}
		if filter.FromDate != nil {
			dbCtx = dbCtx.Where("sale_date_time >= ?", *filter.FromDate)
		}
		if filter.ToDate != nil {
			dbCtx = dbCtx.Where("sale_date_time <= ?", *filter.ToDate)
		}
	}

	var results []*Sale
	if err := dbCtx.Order("sale_date_time DESC, id DESC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
