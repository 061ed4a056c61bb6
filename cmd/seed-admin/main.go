// seed-admin creates or updates the initial admin user.
//
// Usage:
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... \
//	  go run ./cmd/seed-admin [--username admin] [--password ...]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/retail_backend/config"
	"bitbucket.org/mmdatafocus/retail_backend/models"
	"bitbucket.org/mmdatafocus/retail_backend/utils"
	"gorm.io/gorm"
)

func main() {
	username := flag.String("username", "retailAdmin", "Admin username")
	password := flag.String("password", "", "Required: admin password (min 8 characters)")
	name := flag.String("name", "Retail Admin", "Display name")
	flag.Parse()

	if len(*password) < 8 {
		fmt.Fprintln(os.Stderr, "--password is required (min 8 characters)")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}

	ctx := context.Background()
	ctx = utils.SetUserNameInContext(ctx, "seed-admin")
	ctx = utils.SetIsAdminInContext(ctx, true)

	var existing models.User
	err := db.WithContext(ctx).Where("user_name = ?", *username).First(&existing).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		fmt.Fprintf(os.Stderr, "failed to lookup user: %v\n", err)
		os.Exit(1)
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		user, err := models.CreateUser(ctx, &models.NewUser{
			UserName: *username,
			Password: *password,
			Name:     *name,
			IsAdmin:  true,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create admin user: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("created admin user %q (id %d)\n", user.UserName, user.ID)
		return
	}

	hashed, err := utils.HashPassword(*password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to hash password: %v\n", err)
		os.Exit(1)
	}
	if err := db.WithContext(ctx).Model(&existing).Updates(map[string]interface{}{
		"Password": string(hashed),
		"Name":     *name,
		"IsAdmin":  true,
		"IsActive": true,
	}).Error; err != nil {
		fmt.Fprintf(os.Stderr, "failed to update admin user: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("updated admin user %q (id %d)\n", existing.UserName, existing.ID)
}
