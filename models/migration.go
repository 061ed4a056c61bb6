package models

import (
	"log"

	"bitbucket.org/mmdatafocus/retail_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Product{}, &UnitConversion{}, &BundleComponent{},
		&Customer{}, &Account{}, &AccountTransaction{},
		&Order{}, &OrderItem{},
		&Sale{}, &SaleItem{}, &SalePayment{},
		&StockMovement{},
		&Note{},
		&User{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
