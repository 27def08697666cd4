package models

import "time"

// Wallet holds a user's balance in a single virtual currency.
type Wallet struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	UserID    string `gorm:"size:64;not null;uniqueIndex:idx_wallet_user_currency"`
	Currency  string `gorm:"size:16;not null;uniqueIndex:idx_wallet_user_currency"`
	Balance   int64  `gorm:"not null;default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Entries []LedgerEntry `gorm:"foreignKey:WalletID"`
}

// LedgerEntry records a single balance mutation. Debits are negative.
type LedgerEntry struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	WalletID  uint   `gorm:"not null;index"`
	Amount    int64  `gorm:"not null"`
	Balance   int64  `gorm:"not null"`         // balance after this entry
	Reason    string `gorm:"size:32;not null"` // "message", "credit"
	CreatedAt time.Time
}
