package models_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/retail_backend/config"
	"bitbucket.org/mmdatafocus/retail_backend/models"
	"bitbucket.org/mmdatafocus/retail_backend/utils"
	"github.com/shopspring/decimal"
)

func setupIntegrationEnv(t *testing.T) context.Context {
	t.Helper()
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	// Wire env for config.Connect* helpers.
	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "retail_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	ctx := context.Background()
	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Test")
	return ctx
}

func fetchStock(t *testing.T, ctx context.Context, productId int) decimal.Decimal {
	t.Helper()
	product, err := models.GetProduct(ctx, productId)
	if err != nil {
		t.Fatalf("GetProduct(%d): %v", productId, err)
	}
	return product.StockQty
}

func TestOrderConversion_StockAndLedger(t *testing.T) {
	ctx := setupIntegrationEnv(t)

	// Rice by the kg, 100 in stock, bag(5kg) presentation priced at 40.
	rice, err := models.CreateProduct(ctx, &models.NewProduct{
		Name:         "Rice",
		Sku:          "RICE-001",
		BaseUnit:     "kg",
		SalesPrice:   decimal.NewFromInt(10),
		OpeningStock: decimal.NewFromInt(100),
		UnitConversions: []models.NewUnitConversion{
			{Unit: "bag(5kg)", Factor: decimal.NewFromInt(5), SalesPrice: decimal.NewFromInt(40)},
		},
	})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}

	customer, err := models.CreateCustomer(ctx, &models.NewCustomer{
		Name:        "Maria Gomez",
		OpenAccount: true,
		CreditLimit: decimal.NewFromInt(1000),
	})
	if err != nil {
		t.Fatalf("CreateCustomer: %v", err)
	}
	if customer.Account == nil {
		t.Fatal("customer account was not opened")
	}

	// 1) Order of 2 bags reserves the stock: 100 - 10 = 90.
	order, err := models.CreateOrder(ctx, &models.NewOrder{
		CustomerId: &customer.ID,
		Items: []models.NewOrderItem{
			{ProductId: rice.ID, Qty: decimal.NewFromInt(2), Unit: "bag(5kg)"},
		},
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if stock := fetchStock(t, ctx, rice.ID); !stock.Equal(decimal.NewFromInt(90)) {
		t.Fatalf("stock after order = %s, want 90", stock)
	}
	if !order.TotalAmount.Equal(decimal.NewFromInt(80)) {
		t.Fatalf("order total = %s, want 80 (declared bag price)", order.TotalAmount)
	}

	// 2) Converting keeps stock at 90: the order reservation passes to the
	// sale.
	sale, err := models.ConvertOrderToInvoice(ctx, order.ID, &models.ConvertOrderInput{
		Payments: []models.NewSalePayment{
			{Method: models.PaymentMethodCash, Amount: decimal.NewFromInt(40)},
			{Method: models.PaymentMethodCurrentAccount, Amount: decimal.NewFromInt(40)},
		},
	})
	if err != nil {
		t.Fatalf("ConvertOrderToInvoice: %v", err)
	}
	if stock := fetchStock(t, ctx, rice.ID); !stock.Equal(decimal.NewFromInt(90)) {
		t.Fatalf("stock after conversion = %s, want 90", stock)
	}
	if !sale.TotalAmount.Equal(decimal.NewFromInt(80)) {
		t.Fatalf("sale total = %s, want 80", sale.TotalAmount)
	}
	if sale.PaymentStatus != models.SaleStatusPartial {
		t.Fatalf("payment status = %s, want PartialPaid", sale.PaymentStatus)
	}

	// 3) Ledger: debit 80 for the invoice, credit 40 for the cash part,
	// balance 40.
	transactions, err := models.GetAccountTransactions(ctx, &models.AccountStatementFilter{
		AccountId: customer.Account.ID,
	})
	if err != nil {
		t.Fatalf("GetAccountTransactions: %v", err)
	}
	if len(transactions) != 2 {
		t.Fatalf("got %d ledger rows, want 2", len(transactions))
	}
	if transactions[0].Type != models.TransactionTypeDebit || !transactions[0].Amount.Equal(decimal.NewFromInt(80)) {
		t.Errorf("row 1 = %s %s, want Debit 80", transactions[0].Type, transactions[0].Amount)
	}
	if transactions[1].Type != models.TransactionTypeCredit || !transactions[1].Amount.Equal(decimal.NewFromInt(40)) {
		t.Errorf("row 2 = %s %s, want Credit 40", transactions[1].Type, transactions[1].Amount)
	}
	account, err := models.GetAccount(ctx, customer.Account.ID)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if !account.Balance.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("balance = %s, want 40", account.Balance)
	}

	// 4) A second conversion attempt must fail and change nothing.
	_, err = models.ConvertOrderToInvoice(ctx, order.ID, &models.ConvertOrderInput{
		Payments: []models.NewSalePayment{
			{Method: models.PaymentMethodCash, Amount: decimal.NewFromInt(80)},
		},
	})
	if !errors.Is(err, models.ErrAlreadyInvoiced) {
		t.Fatalf("second conversion err = %v, want ErrAlreadyInvoiced", err)
	}
	if stock := fetchStock(t, ctx, rice.ID); !stock.Equal(decimal.NewFromInt(90)) {
		t.Fatalf("stock after failed conversion = %s, want 90", stock)
	}

	// 5) Recompute is idempotent on a consistent ledger.
	recomputed, err := models.RecomputeAccountBalance(ctx, customer.Account.ID)
	if err != nil {
		t.Fatalf("RecomputeAccountBalance: %v", err)
	}
	if !recomputed.Balance.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("recomputed balance = %s, want 40", recomputed.Balance)
	}
}

func TestOrderEdit_RestoresThenReapplies(t *testing.T) {
	ctx := setupIntegrationEnv(t)

	beans, err := models.CreateProduct(ctx, &models.NewProduct{
		Name:         "Beans",
		Sku:          "BEANS-001",
		BaseUnit:     "kg",
		SalesPrice:   decimal.NewFromInt(5),
		OpeningStock: decimal.NewFromInt(10),
	})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}

	order, err := models.CreateOrder(ctx, &models.NewOrder{
		Items: []models.NewOrderItem{
			{ProductId: beans.ID, Qty: decimal.NewFromInt(4), Unit: "kg"},
		},
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if stock := fetchStock(t, ctx, beans.ID); !stock.Equal(decimal.NewFromInt(6)) {
		t.Fatalf("stock after order = %s, want 6", stock)
	}

	// Edit to 7 kg: restore 4, deduct 7.
	if _, err := models.UpdateOrderItems(ctx, order.ID, []models.NewOrderItem{
		{ProductId: beans.ID, Qty: decimal.NewFromInt(7), Unit: "kg"},
	}); err != nil {
		t.Fatalf("UpdateOrderItems: %v", err)
	}
	if stock := fetchStock(t, ctx, beans.ID); !stock.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("stock after edit = %s, want 3", stock)
	}

	// An edit that exceeds available stock (3 free + 7 reserved = 10) must
	// fail and leave the reservation untouched.
	_, err = models.UpdateOrderItems(ctx, order.ID, []models.NewOrderItem{
		{ProductId: beans.ID, Qty: decimal.NewFromInt(20), Unit: "kg"},
	})
	if !errors.Is(err, models.ErrInsufficientStock) {
		t.Fatalf("oversized edit err = %v, want ErrInsufficientStock", err)
	}
	if stock := fetchStock(t, ctx, beans.ID); !stock.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("stock after failed edit = %s, want 3", stock)
	}
	edited, err := models.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if len(edited.Items) != 1 || !edited.Items[0].Qty.Equal(decimal.NewFromInt(7)) {
		t.Fatalf("order items changed by failed edit: %+v", edited.Items)
	}

	// Cancelling gives everything back.
	if _, err := models.CancelOrder(ctx, order.ID); err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
	if stock := fetchStock(t, ctx, beans.ID); !stock.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("stock after cancel = %s, want 10", stock)
	}
}

func TestSaleInsufficientStock_RollsBackEverything(t *testing.T) {
	ctx := setupIntegrationEnv(t)

	flour, err := models.CreateProduct(ctx, &models.NewProduct{
		Name:         "Flour",
		Sku:          "FLOUR-001",
		BaseUnit:     "kg",
		SalesPrice:   decimal.NewFromInt(3),
		OpeningStock: decimal.NewFromInt(5),
	})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	customer, err := models.CreateCustomer(ctx, &models.NewCustomer{
		Name:        "Low Stock Buyer",
		OpenAccount: true,
	})
	if err != nil {
		t.Fatalf("CreateCustomer: %v", err)
	}

	_, err = models.CreateSale(ctx, &models.NewSale{
		CustomerId: &customer.ID,
		Items: []models.NewSaleItem{
			{ProductId: flour.ID, Qty: decimal.NewFromInt(8), Unit: "kg"},
		},
		Payments: []models.NewSalePayment{
			{Method: models.PaymentMethodCurrentAccount, Amount: decimal.NewFromInt(24)},
		},
	})
	if !errors.Is(err, models.ErrInsufficientStock) {
		t.Fatalf("CreateSale err = %v, want ErrInsufficientStock", err)
	}

	// Nothing stuck: stock unchanged, no sale rows, no ledger rows.
	if stock := fetchStock(t, ctx, flour.ID); !stock.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("stock after failed sale = %s, want 5", stock)
	}
	sales, err := models.GetSales(ctx, &models.SaleFilter{CustomerId: &customer.ID})
	if err != nil {
		t.Fatalf("GetSales: %v", err)
	}
	if len(sales) != 0 {
		t.Fatalf("found %d stranded sales, want 0", len(sales))
	}
	transactions, err := models.GetAccountTransactions(ctx, &models.AccountStatementFilter{
		AccountId: customer.Account.ID,
	})
	if err != nil {
		t.Fatalf("GetAccountTransactions: %v", err)
	}
	if len(transactions) != 0 {
		t.Fatalf("found %d stranded ledger rows, want 0", len(transactions))
	}
}

func TestCashSaleByAccountHolder_PostsDebitAndCredit(t *testing.T) {
	ctx := setupIntegrationEnv(t)

	sugar, err := models.CreateProduct(ctx, &models.NewProduct{
		Name:         "Sugar",
		Sku:          "SUGAR-001",
		BaseUnit:     "kg",
		SalesPrice:   decimal.NewFromInt(6),
		OpeningStock: decimal.NewFromInt(20),
	})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	customer, err := models.CreateCustomer(ctx, &models.NewCustomer{
		Name:        "Cash Regular",
		OpenAccount: true,
	})
	if err != nil {
		t.Fatalf("CreateCustomer: %v", err)
	}

	// Fully cash-paid, yet the account statement must show the purchase:
	// debit 30 for the sale, credit 30 for the payment, net zero.
	sale, err := models.CreateSale(ctx, &models.NewSale{
		CustomerId: &customer.ID,
		Items: []models.NewSaleItem{
			{ProductId: sugar.ID, Qty: decimal.NewFromInt(5), Unit: "kg"},
		},
		Payments: []models.NewSalePayment{
			{Method: models.PaymentMethodCash, Amount: decimal.NewFromInt(30)},
		},
	})
	if err != nil {
		t.Fatalf("CreateSale: %v", err)
	}
	if sale.PaymentStatus != models.SaleStatusCompleted {
		t.Fatalf("payment status = %s, want Completed", sale.PaymentStatus)
	}

	transactions, err := models.GetAccountTransactions(ctx, &models.AccountStatementFilter{
		AccountId: customer.Account.ID,
	})
	if err != nil {
		t.Fatalf("GetAccountTransactions: %v", err)
	}
	if len(transactions) != 2 {
		t.Fatalf("got %d ledger rows, want debit+credit", len(transactions))
	}
	if transactions[0].Type != models.TransactionTypeDebit || !transactions[0].Amount.Equal(decimal.NewFromInt(30)) {
		t.Errorf("row 1 = %s %s, want Debit 30", transactions[0].Type, transactions[0].Amount)
	}
	if transactions[1].Type != models.TransactionTypeCredit || !transactions[1].Amount.Equal(decimal.NewFromInt(30)) {
		t.Errorf("row 2 = %s %s, want Credit 30", transactions[1].Type, transactions[1].Amount)
	}
	account, err := models.GetAccount(ctx, customer.Account.ID)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if !account.Balance.IsZero() {
		t.Fatalf("balance = %s, want 0", account.Balance)
	}

	// A walk-in without an account still buys for cash, with no ledger rows
	// anywhere to post to.
	walkIn, err := models.CreateCustomer(ctx, &models.NewCustomer{Name: "Walk In"})
	if err != nil {
		t.Fatalf("CreateCustomer: %v", err)
	}
	if _, err := models.CreateSale(ctx, &models.NewSale{
		CustomerId: &walkIn.ID,
		Items: []models.NewSaleItem{
			{ProductId: sugar.ID, Qty: decimal.NewFromInt(1), Unit: "kg"},
		},
		Payments: []models.NewSalePayment{
			{Method: models.PaymentMethodCash, Amount: decimal.NewFromInt(6)},
		},
	}); err != nil {
		t.Fatalf("CreateSale for walk-in: %v", err)
	}
}

func TestDeleteLastOrderItem_CancelsOrder(t *testing.T) {
	ctx := setupIntegrationEnv(t)

	oats, err := models.CreateProduct(ctx, &models.NewProduct{
		Name:         "Oats",
		Sku:          "OATS-001",
		BaseUnit:     "kg",
		SalesPrice:   decimal.NewFromInt(4),
		OpeningStock: decimal.NewFromInt(10),
	})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}

	order, err := models.CreateOrder(ctx, &models.NewOrder{
		Items: []models.NewOrderItem{
			{ProductId: oats.ID, Qty: decimal.NewFromInt(3), Unit: "kg"},
		},
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if stock := fetchStock(t, ctx, oats.ID); !stock.Equal(decimal.NewFromInt(7)) {
		t.Fatalf("stock after order = %s, want 7", stock)
	}

	created, err := models.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if len(created.Items) != 1 {
		t.Fatalf("got %d items, want 1", len(created.Items))
	}

	// Removing the only item empties the order: reservation comes back and
	// the order ends cancelled.
	emptied, err := models.DeleteOrderItem(ctx, created.Items[0].ID)
	if err != nil {
		t.Fatalf("DeleteOrderItem: %v", err)
	}
	if emptied.Status != models.OrderStatusCancelled {
		t.Fatalf("status = %s, want Cancelled", emptied.Status)
	}
	if !emptied.TotalAmount.IsZero() {
		t.Fatalf("total = %s, want 0", emptied.TotalAmount)
	}
	if stock := fetchStock(t, ctx, oats.ID); !stock.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("stock after emptying = %s, want 10", stock)
	}

	// The cancelled order is terminal.
	_, err = models.UpdateOrderItems(ctx, order.ID, []models.NewOrderItem{
		{ProductId: oats.ID, Qty: decimal.NewFromInt(1), Unit: "kg"},
	})
	if !errors.Is(err, models.ErrAlreadyInvoiced) {
		t.Fatalf("edit of emptied order err = %v, want ErrAlreadyInvoiced", err)
	}
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("retail-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("retail-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=retail_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
