package wallet

import (
	"errors"

	"github.com/google/uuid"
	"github.com/richxcame/ridecore/pkg/models"
)

var (
	ErrWalletNotFound         = errors.New("wallet not found")
	ErrInsufficientBalance    = errors.New("insufficient wallet balance")
	ErrInvalidAmount          = errors.New("amount must be greater than zero")
	ErrInvalidTransactionType = errors.New("invalid transaction type for this operation")
)

// recentTransactions is how many entries GetWallet embeds.
const recentTransactions = 20

// Entry is the ledger line a mutation wants to append. Amount is signed.
type Entry struct {
	Type        models.TransactionType
	Amount      float64
	Description string
	RideID      *uuid.UUID
}

// MutateFunc inspects the locked wallet and returns the entry to append.
// Returning an error aborts the transaction without side effects.
type MutateFunc func(w *models.Wallet) (*Entry, error)

type TopUpRequest struct {
	Amount float64 `json:"amount" binding:"required,gt=0"`
}

type WithdrawRequest struct {
	Amount float64 `json:"amount" binding:"required,gt=0"`
}

type TransactionsResponse struct {
	Transactions []*models.WalletTransaction `json:"transactions"`
	Total        int64                       `json:"total"`
}
