package models

import (
	"time"

	"github.com/google/uuid"
)

// TransactionType classifies a wallet ledger entry.
type TransactionType string

const (
	TransactionTopUp       TransactionType = "topup"
	TransactionRidePayment TransactionType = "ride_payment"
	TransactionRefund      TransactionType = "refund"
	TransactionWithdrawal  TransactionType = "withdrawal"
)

// Wallet represents a user's wallet
type Wallet struct {
	ID           uuid.UUID            `json:"id" db:"id"`
	UserID       uuid.UUID            `json:"user_id" db:"user_id"`
	Balance      float64              `json:"balance" db:"balance"`
	CreatedAt    time.Time            `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at" db:"updated_at"`
	Transactions []*WalletTransaction `json:"transactions,omitempty"`
}

// WalletTransaction is an append-only ledger entry. Amount is signed: debits are negative.
type WalletTransaction struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	WalletID      uuid.UUID       `json:"wallet_id" db:"wallet_id"`
	Type          TransactionType `json:"type" db:"type"`
	Amount        float64         `json:"amount" db:"amount"`
	Description   string          `json:"description" db:"description"`
	RideID        *uuid.UUID      `json:"ride_id,omitempty" db:"ride_id"`
	BalanceBefore float64         `json:"balance_before" db:"balance_before"`
	BalanceAfter  float64         `json:"balance_after" db:"balance_after"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}
