package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/retail_backend/config"
	"bitbucket.org/mmdatafocus/retail_backend/utils"
	"github.com/shopspring/decimal"
)

// Note is a manual debit or credit memo against a customer. When the
// customer has a current account the note posts exactly one ledger row in
// the same transaction; once that row exists the note can never be deleted,
// only compensated by a note of the opposite type.
type Note struct {
	ID            int                 `gorm:"primary_key" json:"id"`
	CustomerId    int                 `gorm:"index;not null" json:"customer_id"`
	Customer      *Customer           `json:"customer"`
	NoteType      TransactionType     `gorm:"type:ENUM('Debit','Credit');not null" json:"note_type"`
	Amount        decimal.Decimal     `gorm:"type:decimal(20,4);not null" json:"amount"`
	Reason        string              `gorm:"size:255;not null" json:"reason"`
	TransactionId *int                `gorm:"index" json:"transaction_id"`
	Transaction   *AccountTransaction `gorm:"foreignKey:TransactionId" json:"transaction"`
	UserId        int                 `json:"user_id"`
	CreatedAt     time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewNote struct {
	CustomerId int             `json:"customer_id" binding:"required"`
	NoteType   TransactionType `json:"note_type" binding:"required"`
	Amount     decimal.Decimal `json:"amount" binding:"required"`
	Reason     string          `json:"reason" binding:"required"`
}

func (input *NewNote) validate(ctx context.Context) error {
	if input.NoteType != TransactionTypeDebit && input.NoteType != TransactionTypeCredit {
		return errors.New("note type must be Debit or Credit")
	}
	if !input.Amount.IsPositive() {
		return errors.New("note amount must be positive")
	}
	if input.Reason == "" {
		return errors.New("note reason is required")
	}
	if err := utils.ValidateResourceId[Customer](ctx, input.CustomerId); err != nil {
		return fmt.Errorf("customer %d: %w", input.CustomerId, ErrCustomerNotFound)
	}
	return nil
}

func CreateNote(ctx context.Context, input *NewNote) (*Note, error) {
	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	userId, _ := utils.GetUserIdFromContext(ctx)
	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	defer func() {
		_ = tx.Rollback().Error
	}()

	note := Note{
		CustomerId: input.CustomerId,
		NoteType:   input.NoteType,
		Amount:     input.Amount,
		Reason:     input.Reason,
		UserId:     userId,
	}
	if err := tx.Create(&note).Error; err != nil {
		return nil, err
	}

	account, err := getCustomerAccountForUpdate(tx, input.CustomerId)
	if err == nil {
		transaction, postErr := postAccountTransaction(tx, account, &LedgerEntry{
			Type:                input.NoteType,
			Amount:              input.Amount,
			Description:         fmt.Sprintf("%s note: %s", input.NoteType, input.Reason),
			TransactionDateTime: time.Now(),
			NoteId:              &note.ID,
		})
		if postErr != nil {
			return nil, postErr
		}
		if err := tx.Model(&note).
			UpdateColumn("transaction_id", transaction.ID).Error; err != nil {
			return nil, err
		}
		note.TransactionId = &transaction.ID
		note.Transaction = transaction
	} else if !errors.Is(err, ErrAccountNotFound) {
		return nil, err
	}

	return &note, tx.Commit().Error
}

// DeleteNote removes a memo that never touched the ledger. A note with a
// posted transaction stays; issue a compensating note of the opposite type
// instead.
func DeleteNote(ctx context.Context, id int) (*Note, error) {
	note, err := utils.FetchModel[Note](ctx, id)
	if err != nil {
		return nil, fmt.Errorf("note %d: %w", id, utils.ErrorRecordNotFound)
	}
	if note.TransactionId != nil {
		return nil, errors.New("note has a posted transaction, create a compensating note instead")
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Delete(note).Error; err != nil {
		return nil, err
	}
	return note, nil
}

func GetNote(ctx context.Context, id int) (*Note, error) {
	note, err := utils.FetchModel[Note](ctx, id, "Customer", "Transaction")
	if err != nil {
		return nil, fmt.Errorf("note %d: %w", id, utils.ErrorRecordNotFound)
	}
	return note, nil
}

func GetNotes(ctx context.Context, customerId *int) ([]*Note, error) {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Preload("Customer").Preload("Transaction")
	if customerId != nil {
		dbCtx = dbCtx.Where("customer_id = ?", *customerId)
	}

	var results []*Note
	if err := dbCtx.Order("created_at DESC, id DESC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
