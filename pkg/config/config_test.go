package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("rides")
	require.NoError(t, err)

	assert.Equal(t, "rides", cfg.Server.ServiceName)
	assert.Equal(t, 1000.0, cfg.Rides.DriverPenalty)
	assert.Equal(t, 2, cfg.Rides.FreeDriverCancelsPerDay)
	assert.Equal(t, 10, cfg.Rides.LoyaltyPointsPerRide)
	assert.Equal(t, 10.0, cfg.Drivers.DefaultPickupRadiusKm)
	assert.Equal(t, time.Minute, cfg.Rides.SchedulerInterval())
	assert.Equal(t, 30*time.Second, cfg.Server.RequestTimeoutDuration())
	assert.False(t, cfg.Twilio.Enabled())
}

func TestLoadCustomValues(t *testing.T) {
	t.Setenv("RIDES_DRIVER_PENALTY", "250.5")
	t.Setenv("RIDES_FREE_DRIVER_CANCELS", "4")
	t.Setenv("OUTBOX_POLL_INTERVAL_MS", "250")
	t.Setenv("NATS_ENABLED", "true")

	cfg, err := Load("rides")
	require.NoError(t, err)

	assert.Equal(t, 250.5, cfg.Rides.DriverPenalty)
	assert.Equal(t, 4, cfg.Rides.FreeDriverCancelsPerDay)
	assert.Equal(t, 250*time.Millisecond, cfg.Outbox.PollInterval())
	assert.True(t, cfg.NATS.Enabled)
}

func TestLoadRejectsRequestTimeoutAboveMaximum(t *testing.T) {
	t.Setenv("REQUEST_TIMEOUT_SECONDS", "999")

	_, err := Load("rides")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REQUEST_TIMEOUT_SECONDS")
}

func TestLoadRejectsInvalidBreakerOverrides(t *testing.T) {
	t.Setenv("CB_SERVICE_OVERRIDES", "{not-json")

	_, err := Load("rides")
	require.Error(t, err)
}

func TestSettingsForAppliesOverrides(t *testing.T) {
	cfg := CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 1,
		TimeoutSeconds:   30,
		IntervalSeconds:  60,
		ServiceOverrides: map[string]CircuitBreakerSettings{
			"twilio": {FailureThreshold: 2, TimeoutSeconds: 10},
		},
	}

	twilio := cfg.SettingsFor("twilio")
	assert.Equal(t, 2, twilio.FailureThreshold)
	assert.Equal(t, 10, twilio.TimeoutSeconds)
	assert.Equal(t, 60, twilio.IntervalSeconds)

	nats := cfg.SettingsFor("nats")
	assert.Equal(t, 5, nats.FailureThreshold)
}

func TestDatabaseURL(t *testing.T) {
	db := DatabaseConfig{Host: "db", Port: "5432", User: "u", Password: "p", DBName: "ridecore", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@db:5432/ridecore?sslmode=disable", db.URL())
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=ridecore sslmode=disable", db.DSN())
}
