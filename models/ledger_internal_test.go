package models

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
)

func TestReplayBalance_Worked(t *testing.T) {
	transactions := []*AccountTransaction{
		{Type: TransactionTypeDebit, Amount: decimal.NewFromInt(100)},
		{Type: TransactionTypeCredit, Amount: decimal.NewFromInt(40)},
		{Type: TransactionTypeDebit, Amount: decimal.RequireFromString("19.95")},
	}

	balance, snapshots, err := replayBalance(decimal.Zero, transactions)
	if err != nil {
		t.Fatalf("replayBalance: %v", err)
	}
	if !balance.Equal(decimal.RequireFromString("79.95")) {
		t.Errorf("final balance = %s, want 79.95", balance)
	}
	want := []string{"100", "60", "79.95"}
	for i, snapshot := range snapshots {
		if !snapshot.Equal(decimal.RequireFromString(want[i])) {
			t.Errorf("snapshot %d = %s, want %s", i, snapshot, want[i])
		}
	}
}

func TestReplayBalance_RejectsUnknownType(t *testing.T) {
	transactions := []*AccountTransaction{
		{Type: TransactionType("Refund"), Amount: decimal.NewFromInt(5)},
	}
	if _, _, err := replayBalance(decimal.Zero, transactions); err == nil {
		t.Fatal("expected error for unknown transaction type")
	}
}

// Replaying any history must land on the same balance as folding it
// incrementally, and each snapshot must equal the incremental balance at
// that point. This is the invariant RecomputeAccountBalance repairs toward.
func TestReplayBalance_MatchesIncrementalFold(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for run := 0; run < 200; run++ {
		n := rng.Intn(40)
		transactions := make([]*AccountTransaction, n)
		incremental := decimal.Zero
		for i := range transactions {
			txnType := TransactionTypeDebit
			if rng.Intn(2) == 0 {
				txnType = TransactionTypeCredit
			}
			amount := decimal.New(int64(rng.Intn(1000000)), -2)
			transactions[i] = &AccountTransaction{Type: txnType, Amount: amount}

			var err error
			incremental, err = txnType.Apply(incremental, amount)
			if err != nil {
				t.Fatalf("run %d: Apply: %v", run, err)
			}
			transactions[i].BalanceAfter = incremental
		}

		final, snapshots, err := replayBalance(decimal.Zero, transactions)
		if err != nil {
			t.Fatalf("run %d: replayBalance: %v", run, err)
		}
		if !final.Equal(incremental) {
			t.Fatalf("run %d: replay %s != incremental %s", run, final, incremental)
		}
		for i, snapshot := range snapshots {
			if !snapshot.Equal(transactions[i].BalanceAfter) {
				t.Fatalf("run %d: snapshot %d = %s, want %s", run, i, snapshot, transactions[i].BalanceAfter)
			}
		}
	}
}

func TestTransactionTypeScan_RejectsUnknownTag(t *testing.T) {
	var txnType TransactionType
	if err := txnType.Scan("Debit"); err != nil {
		t.Fatalf("Scan(Debit): %v", err)
	}
	if err := txnType.Scan([]byte("Credit")); err != nil {
		t.Fatalf("Scan(Credit bytes): %v", err)
	}
	if err := txnType.Scan("Adjustment"); err == nil {
		t.Fatal("Scan accepted an unknown tag")
	}
}
