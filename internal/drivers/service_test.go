package drivers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/richxcame/ridecore/internal/notifications"
	"github.com/richxcame/ridecore/pkg/geo"
	"github.com/richxcame/ridecore/pkg/models"
	"github.com/richxcame/ridecore/pkg/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRepository struct {
	mock.Mock
}

func (m *mockRepository) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, id)
	u, _ := args.Get(0).(*models.User)
	return u, args.Error(1)
}

func (m *mockRepository) UpdateLocation(ctx context.Context, driverID uuid.UUID, p geo.Point) (*models.DriverState, error) {
	args := m.Called(ctx, driverID, p)
	ds, _ := args.Get(0).(*models.DriverState)
	return ds, args.Error(1)
}

func (m *mockRepository) SetOnline(ctx context.Context, driverID uuid.UUID, online bool) (*models.DriverState, error) {
	args := m.Called(ctx, driverID, online)
	ds, _ := args.Get(0).(*models.DriverState)
	return ds, args.Error(1)
}

func (m *mockRepository) UpdateSettings(ctx context.Context, driverID uuid.UUID, autoAccept *bool, radius *float64) (*models.DriverState, error) {
	args := m.Called(ctx, driverID, autoAccept, radius)
	ds, _ := args.Get(0).(*models.DriverState)
	return ds, args.Error(1)
}

func (m *mockRepository) ActiveRide(ctx context.Context, driverID uuid.UUID) (*ActiveRide, error) {
	args := m.Called(ctx, driverID)
	ar, _ := args.Get(0).(*ActiveRide)
	return ar, args.Error(1)
}

func (m *mockRepository) IncrementStats(ctx context.Context, driverID uuid.UUID, fare float64, points int) error {
	return m.Called(ctx, driverID, fare, points).Error(0)
}

func (m *mockRepository) ApplyRating(ctx context.Context, userID uuid.UUID, role models.UserRole, rating int) (float64, error) {
	args := m.Called(ctx, userID, role, rating)
	return args.Get(0).(float64), args.Error(1)
}

func (m *mockRepository) Ratings(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]float64, error) {
	args := m.Called(ctx, ids)
	r, _ := args.Get(0).(map[uuid.UUID]float64)
	return r, args.Error(1)
}

func (m *mockRepository) CompletedRidesSince(ctx context.Context, driverID uuid.UUID, since time.Time) (int, error) {
	args := m.Called(ctx, driverID, since)
	return args.Int(0), args.Error(1)
}

func (m *mockRepository) ListOnline(ctx context.Context) ([]OnlineDriver, error) {
	args := m.Called(ctx)
	d, _ := args.Get(0).([]OnlineDriver)
	return d, args.Error(1)
}

type recordingAppender struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (r *recordingAppender) Append(_ context.Context, events ...notifications.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	return nil
}

func newTestService(t *testing.T) (*Service, *mockRepository, redismock.ClientMock, *recordingAppender) {
	t.Helper()
	db, rmock := redismock.NewClientMock()
	repo := new(mockRepository)
	events := &recordingAppender{}
	locator := NewLocator(redis.Wrap(db), 50, 10)
	return NewService(repo, locator, events), repo, rmock, events
}

func floatPtr(f float64) *float64 { return &f }

func nearQuery(p geo.Point) *goredis.GeoSearchLocationQuery {
	return &goredis.GeoSearchLocationQuery{
		GeoSearchQuery: goredis.GeoSearchQuery{
			Longitude:  p.Longitude,
			Latitude:   p.Latitude,
			Radius:     50,
			RadiusUnit: "km",
			Sort:       "ASC",
		},
		WithCoord: true,
		WithDist:  true,
	}
}

func TestGetOnlineDriversNearRespectsEachDriversPickupRadius(t *testing.T) {
	svc, repo, rmock, _ := newTestService(t)
	pickup := geo.Point{Latitude: 30.0, Longitude: 31.0}
	close1, far, noRadius := uuid.New(), uuid.New(), uuid.New()

	rmock.ExpectGeoSearchLocation(onlineDriversKey, nearQuery(pickup)).SetVal([]goredis.GeoLocation{
		{Name: close1.String(), Latitude: 30.01, Longitude: 31.01, Dist: 1.5},
		{Name: far.String(), Latitude: 30.1, Longitude: 31.1, Dist: 14.7},
		{Name: noRadius.String(), Latitude: 30.05, Longitude: 31.05, Dist: 7.2},
	})
	rmock.ExpectHMGet(pickupRadiusKey, close1.String(), far.String(), noRadius.String()).
		SetVal([]interface{}{"3", "5", nil})

	repo.On("Ratings", mock.Anything, []uuid.UUID{close1, noRadius}).
		Return(map[uuid.UUID]float64{close1: 4.8, noRadius: 4.1}, nil)

	found, err := svc.GetOnlineDriversNear(context.Background(), pickup)
	require.NoError(t, err)
	require.Len(t, found, 2, "driver at 14.7 km with a 5 km radius is excluded")
	assert.Equal(t, close1, found[0].ID)
	assert.Equal(t, 4.8, found[0].Rating)
	assert.Equal(t, noRadius, found[1].ID, "missing radius falls back to the default 10 km")
	assert.NoError(t, rmock.ExpectationsWereMet())
}

func TestGetOnlineDriversNearEmpty(t *testing.T) {
	svc, _, rmock, _ := newTestService(t)
	p := geo.Point{Latitude: 1, Longitude: 1}
	rmock.ExpectGeoSearchLocation(onlineDriversKey, nearQuery(p)).SetVal([]goredis.GeoLocation{})

	found, err := svc.GetOnlineDriversNear(context.Background(), p)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestSetDriverLocationRejectsInvalidCoordinates(t *testing.T) {
	svc, repo, _, _ := newTestService(t)
	err := svc.SetDriverLocation(context.Background(), uuid.New(), geo.Point{Latitude: 91, Longitude: 0})
	assert.ErrorIs(t, err, ErrInvalidLocation)
	repo.AssertNotCalled(t, "UpdateLocation", mock.Anything, mock.Anything, mock.Anything)
}

func TestSetDriverLocationUpdatesIndexAndNotifiesPassenger(t *testing.T) {
	svc, repo, rmock, events := newTestService(t)
	driverID, passengerID, rideID := uuid.New(), uuid.New(), uuid.New()
	p := geo.Point{Latitude: 30.05, Longitude: 31.05}

	repo.On("UpdateLocation", mock.Anything, driverID, p).
		Return(&models.DriverState{IsOnline: true, PickupRadiusKm: 8}, nil)
	repo.On("ActiveRide", mock.Anything, driverID).
		Return(&ActiveRide{RideID: rideID, PassengerID: passengerID, Status: "accepted"}, nil)
	rmock.ExpectGeoAdd(onlineDriversKey, &goredis.GeoLocation{Name: driverID.String(), Longitude: p.Longitude, Latitude: p.Latitude}).SetVal(1)
	rmock.ExpectHSet(pickupRadiusKey, driverID.String(), 8.0).SetVal(1)

	require.NoError(t, svc.SetDriverLocation(context.Background(), driverID, p))
	assert.NoError(t, rmock.ExpectationsWereMet())

	require.Len(t, events.events, 1)
	ev := events.events[0]
	assert.Equal(t, notifications.EventDriverLocation, ev.Name)
	assert.Equal(t, notifications.TargetUser, ev.TargetKind)
	assert.Equal(t, passengerID.String(), ev.Target)
}

func TestSetDriverLocationOfflineSkipsIndex(t *testing.T) {
	svc, repo, rmock, events := newTestService(t)
	driverID := uuid.New()
	p := geo.Point{Latitude: 30, Longitude: 31}

	repo.On("UpdateLocation", mock.Anything, driverID, p).Return(&models.DriverState{IsOnline: false}, nil)
	repo.On("ActiveRide", mock.Anything, driverID).Return(nil, nil)

	require.NoError(t, svc.SetDriverLocation(context.Background(), driverID, p))
	assert.NoError(t, rmock.ExpectationsWereMet())
	assert.Empty(t, events.events)
}

func TestSetOnlineMirrorsReadModel(t *testing.T) {
	svc, repo, rmock, _ := newTestService(t)
	driverID := uuid.New()
	lat, lon := 30.0, 31.0

	repo.On("SetOnline", mock.Anything, driverID, true).
		Return(&models.DriverState{IsOnline: true, Latitude: &lat, Longitude: &lon, PickupRadiusKm: 10}, nil)
	repo.On("SetOnline", mock.Anything, driverID, false).Return(&models.DriverState{IsOnline: false}, nil)

	rmock.ExpectGeoAdd(onlineDriversKey, &goredis.GeoLocation{Name: driverID.String(), Longitude: lon, Latitude: lat}).SetVal(1)
	rmock.ExpectHSet(pickupRadiusKey, driverID.String(), 10.0).SetVal(1)
	rmock.ExpectZRem(onlineDriversKey, driverID.String()).SetVal(1)
	rmock.ExpectHDel(pickupRadiusKey, driverID.String()).SetVal(1)

	state, err := svc.SetOnline(context.Background(), driverID, true)
	require.NoError(t, err)
	assert.True(t, state.IsOnline)

	state, err = svc.SetOnline(context.Background(), driverID, false)
	require.NoError(t, err)
	assert.False(t, state.IsOnline)
	assert.NoError(t, rmock.ExpectationsWereMet())
}

func TestSetOnlineOfflineWithActiveRide(t *testing.T) {
	svc, repo, _, _ := newTestService(t)
	driverID := uuid.New()
	repo.On("SetOnline", mock.Anything, driverID, false).Return(nil, ErrActiveRideOnline)

	_, err := svc.SetOnline(context.Background(), driverID, false)
	assert.ErrorIs(t, err, ErrActiveRideOnline)
}

func TestApplyRatingValidatesRange(t *testing.T) {
	svc, repo, _, _ := newTestService(t)
	userID := uuid.New()
	repo.On("ApplyRating", mock.Anything, userID, models.RoleDriver, 4).Return(4.5, nil)

	_, err := svc.ApplyRating(context.Background(), userID, models.RoleDriver, 0)
	assert.ErrorIs(t, err, ErrRatingOutOfRange)
	_, err = svc.ApplyRating(context.Background(), userID, models.RoleDriver, 6)
	assert.ErrorIs(t, err, ErrRatingOutOfRange)

	avg, err := svc.ApplyRating(context.Background(), userID, models.RoleDriver, 4)
	require.NoError(t, err)
	assert.Equal(t, 4.5, avg)
}

func TestDriverLocationFallsBackToPersistedState(t *testing.T) {
	svc, repo, rmock, _ := newTestService(t)
	online, offline := uuid.New(), uuid.New()
	lat, lon := 29.9, 31.2

	rmock.ExpectGeoPos(onlineDriversKey, online.String()).SetVal([]*goredis.GeoPos{{Longitude: 31.0, Latitude: 30.0}})
	rmock.ExpectGeoPos(onlineDriversKey, offline.String()).SetVal([]*goredis.GeoPos{nil})
	repo.On("GetUser", mock.Anything, offline).Return(&models.User{
		ID: offline, Role: models.RoleDriver,
		Driver: &models.DriverState{Latitude: &lat, Longitude: &lon},
	}, nil)

	p, err := svc.DriverLocation(context.Background(), online)
	require.NoError(t, err)
	assert.Equal(t, geo.Point{Latitude: 30.0, Longitude: 31.0}, p)

	p, err = svc.DriverLocation(context.Background(), offline)
	require.NoError(t, err)
	assert.Equal(t, geo.Point{Latitude: lat, Longitude: lon}, p)
}

func TestEarningsCountsTodayAndWeek(t *testing.T) {
	svc, repo, _, _ := newTestService(t)
	driverID := uuid.New()
	now := time.Date(2026, 3, 12, 15, 0, 0, 0, time.UTC) // Thursday
	svc.now = func() time.Time { return now }

	repo.On("GetUser", mock.Anything, driverID).Return(&models.User{
		ID: driverID, Role: models.RoleDriver,
		Driver: &models.DriverState{EarningsToday: 113.5, EarningsWeek: 300, EarningsTotal: 1200, TotalRides: 40, Points: 400, Rating: 4.7},
	}, nil)
	repo.On("CompletedRidesSince", mock.Anything, driverID, time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC)).Return(1, nil)
	repo.On("CompletedRidesSince", mock.Anything, driverID, time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)).Return(3, nil)

	e, err := svc.Earnings(context.Background(), driverID)
	require.NoError(t, err)
	assert.Equal(t, 113.5, e.Today)
	assert.Equal(t, 1, e.TodayRides)
	assert.Equal(t, 3, e.WeekRides)
	assert.Equal(t, 40, e.TotalRides)
}

func TestUpdateSettingsValidatesRadius(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	_, err := svc.UpdateSettings(context.Background(), uuid.New(), &SettingsRequest{PickupRadiusKm: floatPtr(51)})
	assert.ErrorIs(t, err, ErrInvalidRadius)
}

func TestRebuildIndex(t *testing.T) {
	svc, repo, rmock, _ := newTestService(t)
	d := OnlineDriver{ID: uuid.New(), Location: geo.Point{Latitude: 30, Longitude: 31}, PickupRadiusKm: 6}
	repo.On("ListOnline", mock.Anything).Return([]OnlineDriver{d}, nil)
	rmock.ExpectGeoAdd(onlineDriversKey, &goredis.GeoLocation{Name: d.ID.String(), Longitude: 31, Latitude: 30}).SetVal(1)
	rmock.ExpectHSet(pickupRadiusKey, d.ID.String(), 6.0).SetVal(1)

	n, err := svc.RebuildIndex(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, rmock.ExpectationsWereMet())
}

func TestGetUserNotFound(t *testing.T) {
	svc, repo, _, _ := newTestService(t)
	id := uuid.New()
	repo.On("GetUser", mock.Anything, id).Return(nil, ErrUserNotFound)

	_, err := svc.GetUser(context.Background(), id)
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.False(t, errors.Is(err, ErrDriverNotFound))
}
