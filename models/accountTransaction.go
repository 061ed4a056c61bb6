package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/retail_backend/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AccountTransaction is an append-only ledger row. Once written, only the
// BalanceAfter cache may be rewritten (by balance recomputation); every
// other column is frozen and rows are never deleted.
type AccountTransaction struct {
	ID                  int             `gorm:"primary_key" json:"id"`
	AccountId           int             `gorm:"index;not null" json:"account_id"`
	Type                TransactionType `gorm:"type:ENUM('Debit','Credit');not null" json:"type"`
	Amount              decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	BalanceAfter        decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"balance_after"`
	Description         string          `gorm:"size:255" json:"description"`
	TransactionDateTime time.Time       `gorm:"index;not null" json:"transaction_date_time"`
	SaleId              *int            `gorm:"index" json:"sale_id"`
	NoteId              *int            `gorm:"index" json:"note_id"`
	UserId              int             `json:"user_id"`
	UserName            string          `gorm:"size:100" json:"user_name"`
	CorrelationId       string          `gorm:"size:36" json:"correlation_id"`
	CreatedAt           time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (t *AccountTransaction) BeforeUpdate(tx *gorm.DB) error {
	// Allow only the replay cache to be rewritten.
	allowed := map[string]bool{
		"BalanceAfter": true,
		"UpdatedAt":    true,
	}
	if tx == nil || tx.Statement == nil || tx.Statement.Schema == nil {
		return nil
	}
	for _, f := range tx.Statement.Schema.Fields {
		if tx.Statement.Changed(f.Name) && !allowed[f.Name] {
			return errors.New("immutable ledger: only the balance_after cache may be updated on account_transactions")
		}
	}
	return nil
}

func (t *AccountTransaction) BeforeDelete(tx *gorm.DB) error {
	return errors.New("immutable ledger: account_transactions cannot be deleted")
}

type AccountStatementFilter struct {
	AccountId int        `json:"account_id" binding:"required"`
	FromDate  *time.Time `json:"from_date"`
	ToDate    *time.Time `json:"to_date"`
}

// GetAccountTransactions returns the ledger rows for an account in replay
// order, oldest first.
func GetAccountTransactions(ctx context.Context, filter *AccountStatementFilter) ([]*AccountTransaction, error) {
	if _, err := GetAccount(ctx, filter.AccountId); err != nil {
		return nil, err
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("account_id = ?", filter.AccountId)
	if filter.FromDate != nil {
		dbCtx = dbCtx.Where("transaction_date_time >= ?", *filter.FromDate)
	}
	if filter.ToDate != nil {
		dbCtx = dbCtx.Where("transaction_date_time <= ?", *filter.ToDate)
	}

	var results []*AccountTransaction
	if err := dbCtx.Order("transaction_date_time, id").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
