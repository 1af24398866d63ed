package cancellation

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidUserType = errors.New("user type must be passenger or driver")

// UserType says which party may pick a reason.
type UserType string

const (
	UserTypePassenger UserType = "passenger"
	UserTypeDriver    UserType = "driver"
)

func (t UserType) Valid() bool {
	return t == UserTypePassenger || t == UserTypeDriver
}

// Reason is an entry in the cancellation reason catalog.
type Reason struct {
	ID        uuid.UUID `json:"id"`
	Reason    string    `json:"reason"`
	ReasonAr  string    `json:"reason_ar"`
	UserType  UserType  `json:"user_type"`
	IsActive  bool      `json:"is_active"`
	SortOrder int       `json:"sort_order"`
	CreatedAt time.Time `json:"created_at"`
}

// Policy decides when a driver cancellation is penalized.
type Policy struct {
	PenaltyAmount           float64
	FreeCancellationsPerDay int
}

// DefaultPolicy penalizes the third driver cancellation of a day.
func DefaultPolicy() Policy {
	return Policy{PenaltyAmount: 1000, FreeCancellationsPerDay: 2}
}

// PenaltyDue reports whether a cancellation preceded by priorToday driver
// cancellations on the same day must be penalized.
func (p Policy) PenaltyDue(priorToday int) bool {
	return priorToday >= p.FreeCancellationsPerDay
}

// StartOfDay is local midnight of the day containing t.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

type CreateReasonRequest struct {
	Reason    string   `json:"reason" binding:"required"`
	ReasonAr  string   `json:"reason_ar" binding:"required"`
	UserType  UserType `json:"user_type" binding:"required,oneof=passenger driver"`
	SortOrder int      `json:"sort_order"`
}
