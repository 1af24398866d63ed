package wallet

import (
	"context"
	"errors"
	"math"

	"github.com/google/uuid"
	"github.com/richxcame/ridecore/pkg/common"
	"github.com/richxcame/ridecore/pkg/logger"
	"github.com/richxcame/ridecore/pkg/models"
	"go.uber.org/zap"
)

const (
	CodeInsufficientBalance common.ErrorCode = "INSUFFICIENT_BALANCE"
	CodeWalletNotFound      common.ErrorCode = "WALLET_NOT_FOUND"
	CodeInvalidAmount       common.ErrorCode = "INVALID_AMOUNT"
)

// Service is the ledger. Every balance change appends exactly one transaction.
type Service struct {
	repo RepositoryInterface
}

// NewService creates a new wallet service
func NewService(repo RepositoryInterface) *Service {
	return &Service{repo: repo}
}

// Credit adds amount to the user's wallet, creating it if absent. txType must be topup or refund.
func (s *Service) Credit(ctx context.Context, userID uuid.UUID, amount float64, txType models.TransactionType, rideID *uuid.UUID, description string) (*models.Wallet, error) {
	amount = roundMoney(amount)
	if amount <= 0 {
		return nil, ledgerError(ErrInvalidAmount)
	}
	if txType != models.TransactionTopUp && txType != models.TransactionRefund {
		return nil, ledgerError(ErrInvalidTransactionType)
	}

	w, t, err := s.repo.Mutate(ctx, userID, true, func(*models.Wallet) (*Entry, error) {
		return &Entry{Type: txType, Amount: amount, Description: description, RideID: rideID}, nil
	})
	if err != nil {
		return nil, ledgerError(err)
	}

	logger.InfoContext(ctx, "wallet credited",
		zap.String("user_id", userID.String()),
		zap.String("type", string(txType)),
		zap.Float64("amount", amount),
		zap.Float64("balance", t.BalanceAfter),
	)
	return w, nil
}

// Debit takes amount from the user's wallet as a ride payment. Without overdraft the
// wallet must exist and cover the amount; with overdraft it is created and may go negative.
func (s *Service) Debit(ctx context.Context, userID uuid.UUID, amount float64, rideID *uuid.UUID, description string, allowOverdraft bool) (*models.Wallet, error) {
	return s.debit(ctx, userID, amount, models.TransactionRidePayment, rideID, description, allowOverdraft)
}

func (s *Service) debit(ctx context.Context, userID uuid.UUID, amount float64, txType models.TransactionType, rideID *uuid.UUID, description string, allowOverdraft bool) (*models.Wallet, error) {
	amount = roundMoney(amount)
	if amount <= 0 {
		return nil, ledgerError(ErrInvalidAmount)
	}

	w, t, err := s.repo.Mutate(ctx, userID, allowOverdraft, func(w *models.Wallet) (*Entry, error) {
		if !allowOverdraft && w.Balance < amount {
			return nil, ErrInsufficientBalance
		}
		return &Entry{Type: txType, Amount: -amount, Description: description, RideID: rideID}, nil
	})
	if err != nil {
		return nil, ledgerError(err)
	}

	logger.InfoContext(ctx, "wallet debited",
		zap.String("user_id", userID.String()),
		zap.String("type", string(txType)),
		zap.Float64("amount", amount),
		zap.Float64("balance", t.BalanceAfter),
		zap.Bool("overdraft", t.BalanceAfter < 0),
	)
	return w, nil
}

// Balance returns the current balance, 0 when the user has no wallet.
func (s *Service) Balance(ctx context.Context, userID uuid.UUID) (float64, error) {
	balance, err := s.repo.GetBalance(ctx, userID)
	if err != nil {
		return 0, common.NewInternalError("failed to get wallet balance", err)
	}
	return balance, nil
}

// GetWallet returns the wallet with its most recent transactions, creating it on first access.
func (s *Service) GetWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	w, err := s.repo.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, common.NewInternalError("failed to get wallet", err)
	}

	transactions, _, err := s.repo.ListTransactions(ctx, w.ID, recentTransactions, 0)
	if err != nil {
		return nil, common.NewInternalError("failed to get wallet transactions", err)
	}
	w.Transactions = transactions
	return w, nil
}

func (s *Service) ListTransactions(ctx context.Context, userID uuid.UUID, page, limit int) ([]*models.WalletTransaction, int64, error) {
	w, err := s.repo.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, 0, common.NewInternalError("failed to get wallet", err)
	}

	transactions, total, err := s.repo.ListTransactions(ctx, w.ID, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, common.NewInternalError("failed to get wallet transactions", err)
	}
	return transactions, total, nil
}

func (s *Service) TopUp(ctx context.Context, userID uuid.UUID, amount float64) (*models.Wallet, error) {
	return s.Credit(ctx, userID, amount, models.TransactionTopUp, nil, "Wallet top-up")
}

func (s *Service) Withdraw(ctx context.Context, userID uuid.UUID, amount float64) (*models.Wallet, error) {
	return s.debit(ctx, userID, amount, models.TransactionWithdrawal, nil, "Wallet withdrawal", false)
}

func ledgerError(err error) error {
	switch {
	case errors.Is(err, ErrInsufficientBalance):
		return common.NewUnprocessableError("insufficient wallet balance", err).WithCode(CodeInsufficientBalance)
	case errors.Is(err, ErrWalletNotFound):
		return common.NewNotFoundError("wallet not found", err).WithCode(CodeWalletNotFound)
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInvalidTransactionType):
		return common.NewBadRequestError(err.Error(), err).WithCode(CodeInvalidAmount)
	default:
		return common.NewInternalError("wallet operation failed", err)
	}
}

func roundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}
