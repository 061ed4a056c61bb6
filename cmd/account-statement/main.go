// account-statement exports one account's transaction history to an xlsx
// file: date, description, debit, credit, running balance.
//
// Usage:
//
//	go run ./cmd/account-statement --account-id N [--out statement.xlsx]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/retail_backend/config"
	"bitbucket.org/mmdatafocus/retail_backend/models"
	"github.com/xuri/excelize/v2"
)

func main() {
	accountID := flag.Int("account-id", 0, "Required: account id")
	out := flag.String("out", "statement.xlsx", "Output file path")
	flag.Parse()

	if *accountID <= 0 {
		fmt.Fprintln(os.Stderr, "--account-id is required")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}

	ctx := context.Background()
	account, err := models.GetAccount(ctx, *accountID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "account lookup failed: %v\n", err)
		os.Exit(1)
	}
	transactions, err := models.GetAccountTransactions(ctx, &models.AccountStatementFilter{AccountId: *accountID})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load transactions: %v\n", err)
		os.Exit(1)
	}

	f := excelize.NewFile()
	if _, err := f.NewSheet("Sheet1"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create sheet: %v\n", err)
		os.Exit(1)
	}

	f.SetCellValue("Sheet1", "A1", "Date")
	f.SetCellValue("Sheet1", "B1", "Description")
	f.SetCellValue("Sheet1", "C1", "Debit")
	f.SetCellValue("Sheet1", "D1", "Credit")
	f.SetCellValue("Sheet1", "E1", "Balance")

	for i, t := range transactions {
		row := fmt.Sprint(i + 2)
		f.SetCellValue("Sheet1", "A"+row, t.TransactionDateTime.Format("2006-01-02 15:04"))
		f.SetCellValue("Sheet1", "B"+row, t.Description)
		if t.Type == models.TransactionTypeDebit {
			f.SetCellValue("Sheet1", "C"+row, t.Amount.StringFixed(2))
		} else {
			f.SetCellValue("Sheet1", "D"+row, t.Amount.StringFixed(2))
		}
		f.SetCellValue("Sheet1", "E"+row, t.BalanceAfter.StringFixed(2))
	}

	if err := f.SaveAs(*out); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write %s: %v\n", *out, err)
		os.Exit(1)
	}
	fmt.Printf("account %d: %d transactions, balance %s, written to %s\n",
		account.ID, len(transactions), account.Balance.StringFixed(2), *out)
}
