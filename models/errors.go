package models

import "errors"

// Engine failures are typed sentinels so callers can branch with errors.Is
// instead of string matching. Wrapped variants keep the entity context:
// fmt.Errorf("product %d: %w", id, ErrInsufficientStock).
var (
	ErrUnknownUnit         = errors.New("unknown unit for product")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrAlreadyInvoiced     = errors.New("order already invoiced")
	ErrAccountNotFound     = errors.New("account not found")
	ErrProductNotFound     = errors.New("product not found")
	ErrOrderNotFound       = errors.New("order not found")
	ErrCustomerNotFound    = errors.New("customer not found")
	ErrEmptyItemList       = errors.New("item list is empty")
	ErrInvalidPaymentSplit = errors.New("payment amounts do not sum to sale total")
)
