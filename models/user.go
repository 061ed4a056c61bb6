package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/retail_backend/config"
	"bitbucket.org/mmdatafocus/retail_backend/utils"
)

// User records who performed an operation. There is no session layer here;
// callers put the user id on the context and every document and ledger row
// carries it.
type User struct {
	ID        int       `gorm:"primary_key" json:"id"`
	UserName  string    `gorm:"uniqueIndex;size:50;not null" json:"user_name"`
	Password  string    `gorm:"size:100;not null" json:"-"`
	Name      string    `gorm:"size:100" json:"name"`
	IsAdmin   *bool     `gorm:"not null;default:false" json:"is_admin"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewUser struct {
	UserName string `json:"user_name" binding:"required"`
	Password string `json:"password" binding:"required"`
	Name     string `json:"name"`
	IsAdmin  bool   `json:"is_admin"`
}

func CreateUser(ctx context.Context, input *NewUser) (*User, error) {
	if len(input.Password) < 8 {
		return nil, errors.New("password must be at least 8 characters")
	}
	if err := utils.ValidateUnique[User](ctx, "user_name", input.UserName, 0); err != nil {
		return nil, err
	}

	hashed, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	user := User{
		UserName: input.UserName,
		Password: string(hashed),
		Name:     input.Name,
		IsActive: utils.NewTrue(),
	}
	if input.IsAdmin {
		user.IsAdmin = utils.NewTrue()
	} else {
		user.IsAdmin = utils.NewFalse()
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// CheckUserCredentials verifies a username/password pair for the admin
// endpoints' basic auth. There is no session machinery.
func CheckUserCredentials(ctx context.Context, userName, password string) (*User, error) {
	db := config.GetDB()
	var user User
	if err := db.WithContext(ctx).
		Where("user_name = ? AND is_active = true", userName).
		First(&user).Error; err != nil {
		return nil, errors.New("invalid credentials")
	}
	if err := utils.ComparePassword(user.Password, password); err != nil {
		return nil, errors.New("invalid credentials")
	}
	return &user, nil
}
