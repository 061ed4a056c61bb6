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

type Customer struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"index;size:100;not null" json:"name" binding:"required"`
	Email     string    `gorm:"size:100" json:"email"`
	Phone     string    `gorm:"size:30" json:"phone"`
	Address   string    `gorm:"size:255" json:"address"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	Account   *Account  `gorm:"foreignKey:CustomerId" json:"account"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewCustomer struct {
	Name    string `json:"name" binding:"required"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	// OpenAccount creates the customer's current account alongside.
	OpenAccount bool            `json:"open_account"`
	CreditLimit decimal.Decimal `json:"credit_limit"`
}

func (input *NewCustomer) validate(ctx context.Context, id int) error {
	if err := utils.ValidateUnique[Customer](ctx, "name", input.Name, id); err != nil {
		return err
	}
	if input.Email != "" && !utils.IsValidEmail(input.Email) {
		return errors.New("invalid email")
	}
	if input.Phone != "" {
		if err := utils.ValidatePhoneNumber(input.Phone, utils.CountryCode); err != nil {
			return errors.New("invalid phone number")
		}
	}
	return nil
}

func CreateCustomer(ctx context.Context, input *NewCustomer) (*Customer, error) {
	if err := input.validate(ctx, 0); err != nil {
		return nil, err
	}

	customer := Customer{
		Name:     input.Name,
		Email:    input.Email,
		Phone:    input.Phone,
		Address:  input.Address,
		IsActive: utils.NewTrue(),
	}
	if input.OpenAccount {
		customer.Account = &Account{
			Balance:     decimal.Zero,
			CreditLimit: input.CreditLimit,
		}
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&customer).Error; err != nil {
		return nil, err
	}
	return &customer, nil
}

func UpdateCustomer(ctx context.Context, id int, input *NewCustomer) (*Customer, error) {
	if err := input.validate(ctx, id); err != nil {
		return nil, err
	}

	customer, err := utils.FetchModel[Customer](ctx, id, "Account")
	if err != nil {
		return nil, fmt.Errorf("customer %d: %w", id, ErrCustomerNotFound)
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Model(customer).Updates(map[string]interface{}{
		"Name":    input.Name,
		"Email":   input.Email,
		"Phone":   input.Phone,
		"Address": input.Address,
	}).Error; err != nil {
		return nil, err
	}

	// opening an account later is allowed; closing one is not (history)
	if input.OpenAccount && customer.Account == nil {
		account := Account{
			CustomerId:  customer.ID,
			Balance:     decimal.Zero,
			CreditLimit: input.CreditLimit,
		}
		if err := db.WithContext(ctx).Create(&account).Error; err != nil {
			return nil, err
		}
		customer.Account = &account
	} else if customer.Account != nil {
		if err := db.WithContext(ctx).Model(customer.Account).
			UpdateColumn("credit_limit", input.CreditLimit).Error; err != nil {
			return nil, err
		}
	}

	return customer, nil
}

func DeleteCustomer(ctx context.Context, id int) (*Customer, error) {
	customer, err := utils.FetchModel[Customer](ctx, id, "Account")
	if err != nil {
		return nil, fmt.Errorf("customer %d: %w", id, ErrCustomerNotFound)
	}

	if customer.Account != nil {
		count, err := utils.ResourceCountWhere[AccountTransaction](ctx, "account_id = ?", customer.Account.ID)
		if err != nil {
			return nil, err
		}
		if count > 0 {
			return nil, errors.New("customer account has transactions")
		}
	}
	count, err := utils.ResourceCountWhere[Order](ctx, "customer_id = ?", id)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("customer has orders")
	}
	count, err = utils.ResourceCountWhere[Sale](ctx, "customer_id = ?", id)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("customer has sales")
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	defer func() { _ = tx.Rollback().Error }()
	if customer.Account != nil {
		if err := tx.Delete(customer.Account).Error; err != nil {
			return nil, err
		}
	}
	if err := tx.Delete(customer).Error; err != nil {
		return nil, err
	}
	return customer, tx.Commit().Error
}

func GetCustomer(ctx context.Context, id int) (*Customer, error) {
	customer, err := utils.FetchModel[Customer](ctx, id, "Account")
	if err != nil {
		return nil, fmt.Errorf("customer %d: %w", id, ErrCustomerNotFound)
	}
	return customer, nil
}

func GetCustomers(ctx context.Context, name *string) ([]*Customer, error) {
	db := config.GetDB()
	var results []*Customer

	dbCtx := db.WithContext(ctx).Preload("Account")
	if name != nil && len(*name) > 0 {
		dbCtx = dbCtx.Where("name LIKE ?", "%"+*name+"%")
	}
	if err := dbCtx.Order("name").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
