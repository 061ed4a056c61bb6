package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/retail_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Account is a customer's current account. Balance is a cache of the
// transaction history; the ledger rows are the source of truth and the
// balance can always be rebuilt from them.
type Account struct {
	ID          int             `gorm:"primary_key" json:"id"`
	CustomerId  int             `gorm:"uniqueIndex;not null" json:"customer_id"`
	Balance     decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"balance"`
	CreditLimit decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"credit_limit"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func GetAccount(ctx context.Context, id int) (*Account, error) {
	account, err := utils.FetchModel[Account](ctx, id)
	if err != nil {
		return nil, fmt.Errorf("account %d: %w", id, ErrAccountNotFound)
	}
	return account, nil
}

// getAccountForUpdate loads the account row under FOR UPDATE so that
// concurrent postings serialize on it.
func getAccountForUpdate(tx *gorm.DB, accountId int) (*Account, error) {
	var account Account
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&account, accountId).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("account %d: %w", accountId, ErrAccountNotFound)
		}
		return nil, err
	}
	return &account, nil
}

// getCustomerAccountForUpdate resolves a customer's account under FOR UPDATE.
func getCustomerAccountForUpdate(tx *gorm.DB, customerId int) (*Account, error) {
	var account Account
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("customer_id = ?", customerId).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("customer %d: %w", customerId, ErrAccountNotFound)
		}
		return nil, err
	}
	return &account, nil
}
