package wallet

import (
	"context"
	"errors"
	"testing"

	"github.com/zulandar/coinchat/internal/billing"
	"github.com/zulandar/coinchat/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&models.Wallet{}, &models.LedgerEntry{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newLedger(t *testing.T, db *gorm.DB, user string) *Ledger {
	t.Helper()
	l, err := NewLedger(LedgerOpts{DB: db, UserID: user})
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}
	return l
}

func TestNewLedger_Validation(t *testing.T) {
	if _, err := NewLedger(LedgerOpts{UserID: "a"}); err == nil {
		t.Error("expected error for nil db")
	}
	if _, err := NewLedger(LedgerOpts{DB: testDB(t)}); err == nil {
		t.Error("expected error for empty user id")
	}
}

func TestBalance_NoWallet(t *testing.T) {
	l := newLedger(t, testDB(t), "alice")
	bal, err := l.Balance(context.Background(), "CO")
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if bal != 0 {
		t.Errorf("Balance = %d, want 0", bal)
	}
}

func TestCreditThenDebit(t *testing.T) {
	l := newLedger(t, testDB(t), "alice")
	ctx := context.Background()

	bal, err := l.Credit(ctx, "CO", 20)
	if err != nil {
		t.Fatalf("Credit: %v", err)
	}
	if bal != 20 {
		t.Errorf("Credit balance = %d, want 20", bal)
	}
	bal, _ = l.Credit(ctx, "CO", 5)
	if bal != 25 {
		t.Errorf("second Credit balance = %d, want 25", bal)
	}

	bal, err = l.Debit(ctx, "CO", 5)
	if err != nil {
		t.Fatalf("Debit: %v", err)
	}
	if bal != 20 {
		t.Errorf("Debit balance = %d, want 20", bal)
	}
	if got, _ := l.Balance(ctx, "CO"); got != 20 {
		t.Errorf("Balance = %d, want 20", got)
	}
}

func TestDebit_Insufficient(t *testing.T) {
	l := newLedger(t, testDB(t), "alice")
	ctx := context.Background()

	if _, err := l.Debit(ctx, "CO", 5); !errors.Is(err, billing.ErrInsufficientFunds) {
		t.Errorf("Debit without wallet error = %v, want ErrInsufficientFunds", err)
	}

	l.Credit(ctx, "CO", 3)
	if _, err := l.Debit(ctx, "CO", 5); !errors.Is(err, billing.ErrInsufficientFunds) {
		t.Errorf("Debit over balance error = %v, want ErrInsufficientFunds", err)
	}
	if got, _ := l.Balance(ctx, "CO"); got != 3 {
		t.Errorf("Balance = %d, want 3 (unchanged)", got)
	}
	entries, _ := l.Entries(ctx, "CO", 0)
	if len(entries) != 1 {
		t.Errorf("entries = %d, want only the credit", len(entries))
	}
}

func TestDebit_InvalidAmount(t *testing.T) {
	l := newLedger(t, testDB(t), "alice")
	if _, err := l.Debit(context.Background(), "CO", 0); err == nil {
		t.Error("expected error for zero debit")
	}
	if _, err := l.Credit(context.Background(), "CO", -1); err == nil {
		t.Error("expected error for negative credit")
	}
}

func TestEntries_AuditTrail(t *testing.T) {
	l := newLedger(t, testDB(t), "alice")
	ctx := context.Background()
	l.Credit(ctx, "CO", 10)
	l.Debit(ctx, "CO", 5)
	l.Debit(ctx, "CO", 5)

	entries, err := l.Entries(ctx, "CO", 0)
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("len(entries) = %d, want 3", len(entries))
	}
	// Newest first.
	want := []struct {
		amount, balance int64
		reason          string
	}{
		{-5, 0, ReasonMessage},
		{-5, 5, ReasonMessage},
		{10, 10, ReasonCredit},
	}
	for i, w := range want {
		e := entries[i]
		if e.Amount != w.amount || e.Balance != w.balance || e.Reason != w.reason {
			t.Errorf("entries[%d] = %+d/%d/%s, want %+d/%d/%s", i, e.Amount, e.Balance, e.Reason, w.amount, w.balance, w.reason)
		}
	}

	limited, _ := l.Entries(ctx, "CO", 1)
	if len(limited) != 1 || limited[0].Amount != -5 {
		t.Errorf("Entries(limit 1) = %+v", limited)
	}
}

func TestLedger_IsolatedPerUserAndCurrency(t *testing.T) {
	db := testDB(t)
	alice := newLedger(t, db, "alice")
	bob := newLedger(t, db, "bob")
	ctx := context.Background()

	alice.Credit(ctx, "CO", 10)
	alice.Credit(ctx, "GEM", 1)

	if got, _ := bob.Balance(ctx, "CO"); got != 0 {
		t.Errorf("bob CO = %d, want 0", got)
	}
	if got, _ := alice.Balance(ctx, "GEM"); got != 1 {
		t.Errorf("alice GEM = %d, want 1", got)
	}
	if entries, _ := bob.Entries(ctx, "CO", 0); len(entries) != 0 {
		t.Errorf("bob sees %d entries", len(entries))
	}
}

func TestLedger_WithGate(t *testing.T) {
	l := newLedger(t, testDB(t), "alice")
	ctx := context.Background()
	l.Credit(ctx, "CO", 7)

	g, err := billing.NewGate(billing.GateOpts{Ledger: l, Currency: "CO", Cost: 5})
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}
	res, err := g.Reserve(ctx)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	st, err := g.Settle(ctx, res, billing.OutcomeSuccess)
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if st.Balance != 2 {
		t.Errorf("balance = %d, want 2", st.Balance)
	}
	if _, err := g.Reserve(ctx); !errors.Is(err, billing.ErrInsufficientFunds) {
		t.Errorf("Reserve at 2 error = %v, want ErrInsufficientFunds", err)
	}
}
