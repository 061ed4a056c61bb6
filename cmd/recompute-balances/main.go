// recompute-balances replays every account's transaction ledger and repairs
// the cached Balance and BalanceAfter snapshots. Safe to rerun.
//
// Usage:
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... \
//	  go run ./cmd/recompute-balances [--account-id N]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/retail_backend/config"
	"bitbucket.org/mmdatafocus/retail_backend/models"
	"bitbucket.org/mmdatafocus/retail_backend/utils"
	"github.com/sirupsen/logrus"
)

func main() {
	accountID := flag.Int("account-id", 0, "Optional: recompute a single account")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	logger := config.GetLogger()

	ctx := context.Background()
	ctx = utils.SetUserNameInContext(ctx, "recompute-balances")
	ctx = utils.SetIsAdminInContext(ctx, true)

	var accountIDs []int
	if *accountID > 0 {
		accountIDs = []int{*accountID}
	} else {
		if err := db.WithContext(ctx).Model(&models.Account{}).
			Order("id").Pluck("id", &accountIDs).Error; err != nil {
			fmt.Fprintf(os.Stderr, "failed to list accounts: %v\n", err)
			os.Exit(1)
		}
	}

	failed := 0
	for _, id := range accountIDs {
		account, err := models.RecomputeAccountBalance(ctx, id)
		if err != nil {
			failed++
			logger.WithFields(logrus.Fields{
				"account_id": id,
			}).Error("recompute failed: " + err.Error())
			continue
		}
		fmt.Printf("account %d: balance %s\n", account.ID, account.Balance.StringFixed(2))
	}

	fmt.Printf("done: %d accounts, %d failed\n", len(accountIDs), failed)
	if failed > 0 {
		os.Exit(1)
	}
}
