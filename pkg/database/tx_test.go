package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestIsUniqueViolation(t *testing.T) {
	activeRide := &pgconn.PgError{Code: "23505", ConstraintName: "rides_one_active_per_passenger"}

	assert.True(t, IsUniqueViolation(activeRide))
	assert.True(t, IsUniqueViolation(fmt.Errorf("insert ride: %w", activeRide)))
	assert.True(t, IsUniqueViolation(activeRide, "rides_one_active_per_driver", "rides_one_active_per_passenger"))
	assert.False(t, IsUniqueViolation(activeRide, "vouchers_code_key"))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, IsUniqueViolation(errors.New("plain")))
	assert.False(t, IsUniqueViolation(nil))
}

func TestIsRetryableTxError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"serialization failure", &pgconn.PgError{Code: "40001"}, true},
		{"deadlock", fmt.Errorf("debit: %w", &pgconn.PgError{Code: "40P01"}), true},
		{"lock not available", &pgconn.PgError{Code: "55P03"}, true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"domain error", errors.New("insufficient balance"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryableTxError(tt.err))
		})
	}
}
