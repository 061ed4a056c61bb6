package models

import (
	"database/sql/driver"
	"fmt"

	"github.com/shopspring/decimal"
)

// TransactionType is the closed debit/credit tag of a ledger entry.
// It is deliberately a two-variant type with a strict Scanner so the balance
// fold is total: an unrecognized tag coming out of the database is an error,
// never a silently ignored row.
type TransactionType string

const (
	TransactionTypeDebit  TransactionType = "Debit"
	TransactionTypeCredit TransactionType = "Credit"
)

// Apply folds one transaction into a running balance.
// Debit increases the amount the customer owes, credit decreases it.
func (t TransactionType) Apply(balance, amount decimal.Decimal) (decimal.Decimal, error) {
	switch t {
	case TransactionTypeDebit:
		return balance.Add(amount), nil
	case TransactionTypeCredit:
		return balance.Sub(amount), nil
	}
	return balance, fmt.Errorf("invalid transaction type %q", string(t))
}

func (t TransactionType) Value() (driver.Value, error) {
	switch t {
	case TransactionTypeDebit, TransactionTypeCredit:
		return string(t), nil
	}
	return nil, fmt.Errorf("invalid transaction type %q", string(t))
}

func (t *TransactionType) Scan(value interface{}) error {
	var s string
	switch v := value.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("transaction type must be a string, got %T", value)
	}
	switch TransactionType(s) {
	case TransactionTypeDebit:
		*t = TransactionTypeDebit
	case TransactionTypeCredit:
		*t = TransactionTypeCredit
	default:
		return fmt.Errorf("invalid transaction type %q", s)
	}
	return nil
}

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "Pending"
	OrderStatusProcessing OrderStatus = "Processing"
	OrderStatusCompleted  OrderStatus = "Completed"
	OrderStatusInvoiced   OrderStatus = "Invoiced"
	OrderStatusCancelled  OrderStatus = "Cancelled"
)

// Terminal reports whether the order can no longer be converted or edited.
// Completed and Invoiced orders have already produced a sale; Cancelled
// orders have had their stock restored.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusInvoiced || s == OrderStatusCancelled
}

func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusCompleted,
		OrderStatusInvoiced, OrderStatusCancelled:
		return true
	}
	return false
}

type PaymentMethod string

const (
	PaymentMethodCash           PaymentMethod = "Cash"
	PaymentMethodTransfer       PaymentMethod = "Transfer"
	PaymentMethodCard           PaymentMethod = "Card"
	PaymentMethodCurrentAccount PaymentMethod = "CurrentAccount"
)

func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodTransfer, PaymentMethodCard, PaymentMethodCurrentAccount:
		return true
	}
	return false
}

type DocumentType string

const (
	DocumentTypeReceipt DocumentType = "Receipt"
	DocumentTypeInvoice DocumentType = "Invoice"
)

type SaleStatus string

const (
	SaleStatusCompleted SaleStatus = "Completed"
	SaleStatusOnAccount SaleStatus = "OnAccount"
	SaleStatusPartial   SaleStatus = "PartialPaid"
)

// StockDirection is the sign of a stock mutation.
type StockDirection int

const (
	StockDirectionOut StockDirection = -1 // deduction: order/sale item created
	StockDirectionIn  StockDirection = 1  // restoration: item deleted, order edited or cancelled
)
