package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/richxcame/ridecore/pkg/database"
	"github.com/richxcame/ridecore/pkg/models"
)

// RepositoryInterface is the wallet store. Mutate is the only way balances change.
type RepositoryInterface interface {
	Mutate(ctx context.Context, userID uuid.UUID, createIfMissing bool, fn MutateFunc) (*models.Wallet, *models.WalletTransaction, error)
	GetOrCreate(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	GetBalance(ctx context.Context, userID uuid.UUID) (float64, error)
	ListTransactions(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]*models.WalletTransaction, int64, error)
}

// Repository handles database operations for wallets
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new wallet repository
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Mutate locks the user's wallet row, lets fn decide the entry, then writes the new
// balance and the transaction with balance_before/after in the same transaction.
func (r *Repository) Mutate(ctx context.Context, userID uuid.UUID, createIfMissing bool, fn MutateFunc) (*models.Wallet, *models.WalletTransaction, error) {
	var (
		wallet *models.Wallet
		entry  *models.WalletTransaction
	)

	err := database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if createIfMissing {
			if err := ensureWallet(ctx, tx, userID); err != nil {
				return err
			}
		}

		w := &models.Wallet{}
		err := tx.QueryRow(ctx, `
			SELECT id, user_id, balance, created_at, updated_at
			FROM wallets WHERE user_id = $1
			FOR UPDATE`, userID,
		).Scan(&w.ID, &w.UserID, &w.Balance, &w.CreatedAt, &w.UpdatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrWalletNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock wallet: %w", err)
		}

		e, err := fn(w)
		if err != nil {
			return err
		}

		t := &models.WalletTransaction{
			ID:            uuid.New(),
			WalletID:      w.ID,
			Type:          e.Type,
			Amount:        e.Amount,
			Description:   e.Description,
			RideID:        e.RideID,
			BalanceBefore: w.Balance,
			BalanceAfter:  roundMoney(w.Balance + e.Amount),
		}

		err = tx.QueryRow(ctx,
			`UPDATE wallets SET balance = $1, updated_at = NOW() WHERE id = $2 RETURNING updated_at`,
			t.BalanceAfter, w.ID,
		).Scan(&w.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to update wallet balance: %w", err)
		}

		err = tx.QueryRow(ctx, `
			INSERT INTO wallet_transactions (id, wallet_id, type, amount, description, ride_id,
				balance_before, balance_after, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
			RETURNING created_at`,
			t.ID, t.WalletID, t.Type, t.Amount, t.Description, t.RideID, t.BalanceBefore, t.BalanceAfter,
		).Scan(&t.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to create wallet transaction: %w", err)
		}

		w.Balance = t.BalanceAfter
		wallet, entry = w, t
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return wallet, entry, nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// ensureWallet creates the wallet if absent; concurrent creators converge on one row.
func ensureWallet(ctx context.Context, q execer, userID uuid.UUID) error {
	_, err := q.Exec(ctx,
		`INSERT INTO wallets (id, user_id, balance, created_at, updated_at)
		 VALUES ($1, $2, 0, NOW(), NOW())
		 ON CONFLICT (user_id) DO NOTHING`,
		uuid.New(), userID)
	if err != nil {
		return fmt.Errorf("failed to create wallet: %w", err)
	}
	return nil
}

// GetOrCreate returns the user's wallet, creating an empty one on first access.
func (r *Repository) GetOrCreate(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	if err := ensureWallet(ctx, r.db, userID); err != nil {
		return nil, err
	}

	w := &models.Wallet{}
	err := r.db.QueryRow(ctx,
		`SELECT id, user_id, balance, created_at, updated_at FROM wallets WHERE user_id = $1`, userID,
	).Scan(&w.ID, &w.UserID, &w.Balance, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return w, nil
}

// GetBalance returns 0 for a user without a wallet.
func (r *Repository) GetBalance(ctx context.Context, userID uuid.UUID) (float64, error) {
	var balance float64
	err := r.db.QueryRow(ctx, `SELECT balance FROM wallets WHERE user_id = $1`, userID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get wallet balance: %w", err)
	}
	return balance, nil
}

// ListTransactions returns a page of entries, newest first, with the total count.
func (r *Repository) ListTransactions(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]*models.WalletTransaction, int64, error) {
	var total int64
	if err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM wallet_transactions WHERE wallet_id = $1`, walletID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count wallet transactions: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, wallet_id, type, amount, description, ride_id, balance_before, balance_after, created_at
		FROM wallet_transactions
		WHERE wallet_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`, walletID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get wallet transactions: %w", err)
	}
	defer rows.Close()

	transactions := make([]*models.WalletTransaction, 0)
	for rows.Next() {
		t := &models.WalletTransaction{}
		if err := rows.Scan(&t.ID, &t.WalletID, &t.Type, &t.Amount, &t.Description, &t.RideID,
			&t.BalanceBefore, &t.BalanceAfter, &t.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan wallet transaction: %w", err)
		}
		transactions = append(transactions, t)
	}
	return transactions, total, rows.Err()
}
