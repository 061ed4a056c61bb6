// stock-audit lists products whose stock state violates the invariants:
// negative stock, composites carrying their own stock, composites with no
// components. Exit code 1 when anything is found.
package main

import (
	"context"
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/retail_backend/config"
	"bitbucket.org/mmdatafocus/retail_backend/models"
)

func main() {
	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}

	findings, err := models.AuditStock(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "audit failed: %v\n", err)
		os.Exit(1)
	}

	if len(findings) == 0 {
		fmt.Println("stock audit clean")
		return
	}
	for _, finding := range findings {
		fmt.Printf("product %d (%s, sku %s): %s (stock %s)\n",
			finding.ProductId, finding.Name, finding.Sku, finding.Problem,
			finding.StockQty.StringFixed(4))
	}
	os.Exit(1)
}
