// Package wallet keeps per-user virtual-currency balances in the database,
// with an audit entry for every change.
package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/zulandar/coinchat/internal/billing"
	"github.com/zulandar/coinchat/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Ledger reasons recorded on LedgerEntry rows.
const (
	ReasonMessage = "message"
	ReasonCredit  = "credit"
)

// LedgerOpts configures a Ledger.
type LedgerOpts struct {
	DB     *gorm.DB
	UserID string
	Logger *zap.Logger
}

// Ledger is a billing.Ledger for one user backed by the wallets table.
type Ledger struct {
	db     *gorm.DB
	userID string
	log    *zap.Logger
}

var _ billing.Ledger = (*Ledger)(nil)

// NewLedger returns the ledger of opts.UserID.
func NewLedger(opts LedgerOpts) (*Ledger, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("wallet: ledger: db is required")
	}
	if opts.UserID == "" {
		return nil, fmt.Errorf("wallet: ledger: user id is required")
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Ledger{db: opts.DB, userID: opts.UserID, log: log}, nil
}

// Balance returns the balance in currency. A user without a wallet has a
// zero balance.
func (l *Ledger) Balance(ctx context.Context, currency string) (int64, error) {
	var w models.Wallet
	err := l.db.WithContext(ctx).
		Where("user_id = ? AND currency = ?", l.userID, currency).
		First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("wallet: balance: %w", err)
	}
	return w.Balance, nil
}

// Debit subtracts amount in a single conditional update, so the balance
// never goes negative even with concurrent writers.
func (l *Ledger) Debit(ctx context.Context, currency string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("wallet: debit: amount must be positive, got %d", amount)
	}
	var balance int64
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var w models.Wallet
		err := tx.Where("user_id = ? AND currency = ?", l.userID, currency).First(&w).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: no %s wallet", billing.ErrInsufficientFunds, currency)
		}
		if err != nil {
			return fmt.Errorf("find wallet: %w", err)
		}

		result := tx.Model(&models.Wallet{}).
			Where("id = ? AND balance >= ?", w.ID, amount).
			Update("balance", gorm.Expr("balance - ?", amount))
		if result.Error != nil {
			return fmt.Errorf("update balance: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: balance %d, debit %d", billing.ErrInsufficientFunds, w.Balance, amount)
		}

		if err := tx.First(&w, w.ID).Error; err != nil {
			return fmt.Errorf("reload wallet: %w", err)
		}
		balance = w.Balance
		return tx.Create(&models.LedgerEntry{
			WalletID: w.ID,
			Amount:   -amount,
			Balance:  balance,
			Reason:   ReasonMessage,
		}).Error
	})
	if err != nil {
		return 0, fmt.Errorf("wallet: debit: %w", err)
	}
	l.log.Debug("wallet debited",
		zap.String("user_id", l.userID),
		zap.String("currency", currency),
		zap.Int64("amount", amount),
		zap.Int64("balance", balance),
	)
	return balance, nil
}

// Credit adds amount, creating the wallet on first use. The core never
// credits; top-ups come from the operator CLI.
func (l *Ledger) Credit(ctx context.Context, currency string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("wallet: credit: amount must be positive, got %d", amount)
	}
	var balance int64
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		w := models.Wallet{UserID: l.userID, Currency: currency}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "currency"}},
			DoNothing: true,
		}).Create(&w).Error; err != nil {
			return fmt.Errorf("ensure wallet: %w", err)
		}
		if err := tx.Where("user_id = ? AND currency = ?", l.userID, currency).First(&w).Error; err != nil {
			return fmt.Errorf("find wallet: %w", err)
		}
		if err := tx.Model(&models.Wallet{}).
			Where("id = ?", w.ID).
			Update("balance", gorm.Expr("balance + ?", amount)).Error; err != nil {
			return fmt.Errorf("update balance: %w", err)
		}
		balance = w.Balance + amount
		return tx.Create(&models.LedgerEntry{
			WalletID: w.ID,
			Amount:   amount,
			Balance:  balance,
			Reason:   ReasonCredit,
		}).Error
	})
	if err != nil {
		return 0, fmt.Errorf("wallet: credit: %w", err)
	}
	l.log.Info("wallet credited",
		zap.String("user_id", l.userID),
		zap.String("currency", currency),
		zap.Int64("amount", amount),
		zap.Int64("balance", balance),
	)
	return balance, nil
}

// Entries returns the most recent ledger entries in currency, newest
// first. limit <= 0 returns all of them.
func (l *Ledger) Entries(ctx context.Context, currency string, limit int) ([]models.LedgerEntry, error) {
	var w models.Wallet
	err := l.db.WithContext(ctx).
		Where("user_id = ? AND currency = ?", l.userID, currency).
		First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("wallet: entries: %w", err)
	}

	q := l.db.WithContext(ctx).Where("wallet_id = ?", w.ID).Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var entries []models.LedgerEntry
	if err := q.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("wallet: entries: %w", err)
	}
	return entries, nil
}
