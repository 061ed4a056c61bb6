package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/retail_backend/config"
	"bitbucket.org/mmdatafocus/retail_backend/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// LedgerEntry is what a caller wants appended; the posting code fills in
// the running balance.
type LedgerEntry struct {
	Type                TransactionType
	Amount              decimal.Decimal
	Description         string
	TransactionDateTime time.Time
	SaleId              *int
	NoteId              *int
}

// PostAccountTransaction row-locks the account and appends one ledger row
// inside the caller's transaction.
func PostAccountTransaction(tx *gorm.DB, accountId int, entry *LedgerEntry) (*AccountTransaction, error) {
	account, err := getAccountForUpdate(tx, accountId)
	if err != nil {
		return nil, err
	}
	return postAccountTransaction(tx, account, entry)
}

// postAccountTransaction appends one ledger row inside the caller's
// transaction. The account row must already be locked FOR UPDATE; the new
// BalanceAfter is derived from the locked balance so concurrent postings
// cannot interleave.
func postAccountTransaction(tx *gorm.DB, account *Account, entry *LedgerEntry) (*AccountTransaction, error) {
	if entry.Amount.IsNegative() {
		return nil, errors.New("transaction amount cannot be negative")
	}
	newBalance, err := entry.Type.Apply(account.Balance, entry.Amount)
	if err != nil {
		return nil, err
	}

	userId, _ := utils.GetUserIdFromContext(tx.Statement.Context)
	userName, _ := utils.GetUserNameFromContext(tx.Statement.Context)
	correlationId, ok := utils.GetCorrelationIdFromContext(tx.Statement.Context)
	if !ok {
		correlationId = uuid.NewString()
	}
	transaction := AccountTransaction{
		AccountId:           account.ID,
		Type:                entry.Type,
		Amount:              entry.Amount,
		BalanceAfter:        newBalance,
		Description:         entry.Description,
		TransactionDateTime: entry.TransactionDateTime,
		SaleId:              entry.SaleId,
		NoteId:              entry.NoteId,
		UserId:              userId,
		UserName:            userName,
		CorrelationId:       correlationId,
	}
	if err := tx.Create(&transaction).Error; err != nil {
		return nil, err
	}

	if err := tx.Model(account).UpdateColumn("balance", newBalance).Error; err != nil {
		return nil, err
	}
	account.Balance = newBalance
	return &transaction, nil
}

// replayBalance folds a transaction history into the final balance plus the
// running balance after each row. Input must already be in replay order.
func replayBalance(opening decimal.Decimal, transactions []*AccountTransaction) (decimal.Decimal, []decimal.Decimal, error) {
	balance := opening
	snapshots := make([]decimal.Decimal, len(transactions))
	for i, transaction := range transactions {
		var err error
		balance, err = transaction.Type.Apply(balance, transaction.Amount)
		if err != nil {
			return decimal.Zero, nil, err
		}
		snapshots[i] = balance
	}
	return balance, snapshots, nil
}

// RecomputeAccountBalance replays the full ledger of an account from a zero
// opening balance, rewrites each row's BalanceAfter cache and the account's
// cached balance. Idempotent; safe to run while postings are happening
// because the account row is held FOR UPDATE for the duration.
func RecomputeAccountBalance(ctx context.Context, accountId int) (*Account, error) {
	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	defer func() {
		_ = tx.Rollback().Error
	}()

	account, err := getAccountForUpdate(tx, accountId)
	if err != nil {
		return nil, err
	}

	var transactions []*AccountTransaction
	if err := tx.Where("account_id = ?", accountId).
		Order("transaction_date_time, id").Find(&transactions).Error; err != nil {
		return nil, err
	}

	balance, snapshots, err := replayBalance(decimal.Zero, transactions)
	if err != nil {
		return nil, err
	}
	for i, transaction := range transactions {
		if !transaction.BalanceAfter.Equal(snapshots[i]) {
			if err := tx.Model(transaction).
				UpdateColumn("balance_after", snapshots[i]).Error; err != nil {
				return nil, err
			}
		}
	}

	if !account.Balance.Equal(balance) {
		config.GetLogger().WithContext(ctx).Errorf(
			"account %d cached balance %s drifted from replayed %s",
			accountId, account.Balance.String(), balance.String())
		if err := tx.Model(account).UpdateColumn("balance", balance).Error; err != nil {
			return nil, err
		}
		account.Balance = balance
	}

	return account, tx.Commit().Error
}
