//go:build integration

package rides

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/richxcame/ridecore/internal/notifications"
	"github.com/richxcame/ridecore/pkg/models"
	"github.com/richxcame/ridecore/test/helpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// changedPlans is seeded by the initial migration.
var changedPlans = uuid.MustParse("6f1d0c52-2b7a-4c1e-9d2a-0a1b2c3d4e02")

func newIntegrationRepo(t *testing.T) (*Repository, func(models.UserRole) uuid.UUID) {
	pool := helpers.SetupTestDatabase(t)
	helpers.ResetTables(t, pool, helpers.AllTables...)
	repo := NewRepository(pool, notifications.NewOutbox(pool))
	return repo, func(role models.UserRole) uuid.UUID { return helpers.CreateUser(t, pool, role) }
}

func pendingRide(passengerID uuid.UUID) *models.Ride {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.Ride{
		ID:            uuid.New(),
		PassengerID:   passengerID,
		Pickup:        models.Location{Address: "Bitarap Turkmenistan", Latitude: 37.9601, Longitude: 58.3261},
		Dropoff:       models.Location{Address: "Oguzhan", Latitude: 37.9391, Longitude: 58.3870},
		Stops:         []models.Stop{},
		VehicleType:   models.VehicleEconomy,
		BaseFare:      30,
		FinalFare:     30,
		PaymentMethod: models.PaymentCash,
		PaymentStatus: models.PaymentStatusPending,
		Status:        models.RideStatusPending,
		DispatchedAt:  &now,
		CreatedAt:     now,
	}
}

func TestRepository_OneActiveRidePerPassenger(t *testing.T) {
	repo, createUser := newIntegrationRepo(t)
	ctx := context.Background()
	passengerID := createUser(models.RolePassenger)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = repo.CreateRide(ctx, pendingRide(passengerID))
		}(i)
	}
	wg.Wait()

	var created, rejected int
	for _, err := range errs {
		switch {
		case err == nil:
			created++
		case assert.ErrorIs(t, err, ErrAlreadyHasActiveRide):
			rejected++
		}
	}
	assert.Equal(t, 1, created)
	assert.Equal(t, 1, rejected)
}

func TestRepository_AcceptRideSingleWinner(t *testing.T) {
	repo, createUser := newIntegrationRepo(t)
	ctx := context.Background()
	ride := pendingRide(createUser(models.RolePassenger))
	require.NoError(t, repo.CreateRide(ctx, ride))

	driverIDs := []uuid.UUID{createUser(models.RoleDriver), createUser(models.RoleDriver), createUser(models.RoleDriver)}
	errs := make([]error, len(driverIDs))
	var wg sync.WaitGroup
	for i, id := range driverIDs {
		wg.Add(1)
		go func(i int, id uuid.UUID) {
			defer wg.Done()
			_, errs[i] = repo.AcceptRide(ctx, ride.ID, id, FareUpdate{DistanceKm: 6, DurationMinutes: 12, BaseFare: 40}, time.Now(), nil)
		}(i, id)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
			continue
		}
		assert.ErrorIs(t, err, ErrRideAlreadyAssigned)
	}
	assert.Equal(t, 1, winners)

	got, err := repo.GetRide(ctx, ride.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RideStatusAccepted, got.Status)
	assert.InDelta(t, 40.0, got.FinalFare, 0.001)
}

func TestRepository_CancelReturnsPreviousStatus(t *testing.T) {
	repo, createUser := newIntegrationRepo(t)
	ctx := context.Background()
	ride := pendingRide(createUser(models.RolePassenger))
	require.NoError(t, repo.CreateRide(ctx, ride))

	cancelled, prev, err := repo.CancelRide(ctx, ride.ID, Cancellation{
		By:       models.CancelledByPassenger,
		ActorID:  ride.PassengerID,
		ReasonID: changedPlans,
		Reason:   "Changed my plans",
		At:       time.Now(),
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, models.RideStatusPending, prev)
	assert.Equal(t, models.RideStatusCancelled, cancelled.Status)

	_, _, err = repo.CancelRide(ctx, ride.ID, Cancellation{By: models.CancelledByPassenger, ActorID: ride.PassengerID, ReasonID: changedPlans, At: time.Now()}, nil)
	assert.ErrorIs(t, err, ErrCannotCancelTerminalRide)

	// The passenger is free to request again.
	assert.NoError(t, repo.CreateRide(ctx, pendingRide(ride.PassengerID)))
}
