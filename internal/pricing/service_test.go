package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/google/uuid"
	"github.com/richxcame/ridecore/pkg/common"
	"github.com/richxcame/ridecore/pkg/geo"
	pkgredis "github.com/richxcame/ridecore/pkg/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRepository struct {
	mock.Mock
}

func (m *mockRepository) GetSettings(ctx context.Context) (*Settings, error) {
	args := m.Called(ctx)
	s, _ := args.Get(0).(*Settings)
	return s, args.Error(1)
}

func (m *mockRepository) SaveSettings(ctx context.Context, s *Settings) error {
	return m.Called(ctx, s).Error(0)
}

func (m *mockRepository) ListActiveCities(ctx context.Context) ([]*City, error) {
	args := m.Called(ctx)
	cities, _ := args.Get(0).([]*City)
	return cities, args.Error(1)
}

func (m *mockRepository) ListCities(ctx context.Context) ([]*City, error) {
	args := m.Called(ctx)
	cities, _ := args.Get(0).([]*City)
	return cities, args.Error(1)
}

func (m *mockRepository) GetCity(ctx context.Context, id uuid.UUID) (*City, error) {
	args := m.Called(ctx, id)
	city, _ := args.Get(0).(*City)
	return city, args.Error(1)
}

func (m *mockRepository) CreateCity(ctx context.Context, c *City) error {
	return m.Called(ctx, c).Error(0)
}

func (m *mockRepository) UpdateCity(ctx context.Context, c *City) error {
	return m.Called(ctx, c).Error(0)
}

var cairo = geo.Point{Latitude: 30.0444, Longitude: 31.2357}

func storedSettings() *Settings {
	return &Settings{
		BaseFare:           12,
		PricePerKm:         6,
		PricePerMinute:     1.5,
		MinFare:            20,
		VehicleMultipliers: VehicleMultipliers{Economy: 1, Comfort: 1.5, Premium: 2},
		SurgeMultiplier:    1.2,
		IsSurgeActive:      true,
		AppCommission:      15,
	}
}

func TestResolver_DefaultsWhenNothingStored(t *testing.T) {
	repo := new(mockRepository)
	repo.On("GetSettings", mock.Anything).Return(nil, nil)
	repo.On("ListActiveCities", mock.Anything).Return([]*City{}, nil)

	cfg := NewResolver(repo, nil, 0).ResolveForPoint(context.Background(), cairo)

	assert.Equal(t, DefaultConfig(), cfg)
	repo.AssertExpectations(t)
}

func TestResolver_CityOverridesMoneyFieldsOnly(t *testing.T) {
	city := &City{
		ID: uuid.New(), Name: "Cairo", IsActive: true,
		BaseFare: 8, PricePerKm: 4, PricePerMinute: 0.5, MinFare: 12,
		CenterLat: 30.05, CenterLon: 31.24, RadiusKm: 10,
	}
	far := &City{
		ID: uuid.New(), Name: "Alexandria", IsActive: true,
		BaseFare: 99, CenterLat: 31.2, CenterLon: 29.9, RadiusKm: 10,
	}

	repo := new(mockRepository)
	repo.On("GetSettings", mock.Anything).Return(storedSettings(), nil)
	repo.On("ListActiveCities", mock.Anything).Return([]*City{far, city}, nil)

	cfg := NewResolver(repo, nil, 0).ResolveForPoint(context.Background(), cairo)

	assert.Equal(t, SourceCity, cfg.Source)
	require.NotNil(t, cfg.CityID)
	assert.Equal(t, city.ID, *cfg.CityID)
	assert.Equal(t, 8.0, cfg.BaseFare)
	assert.Equal(t, 4.0, cfg.PricePerKm)
	assert.Equal(t, 0.5, cfg.PricePerMinute)
	assert.Equal(t, 12.0, cfg.MinFare)
	// global-only fields
	assert.Equal(t, 1.5, cfg.VehicleMultipliers.Comfort)
	assert.Equal(t, 1.2, cfg.SurgeMultiplier)
	assert.True(t, cfg.IsSurgeActive)
	assert.Equal(t, 15.0, cfg.AppCommission)
}

func TestResolver_FirstMatchingCityWins(t *testing.T) {
	older := &City{ID: uuid.New(), IsActive: true, BaseFare: 1, CenterLat: 30.04, CenterLon: 31.23, RadiusKm: 20}
	newer := &City{ID: uuid.New(), IsActive: true, BaseFare: 2, CenterLat: 30.04, CenterLon: 31.23, RadiusKm: 20}

	repo := new(mockRepository)
	repo.On("GetSettings", mock.Anything).Return(nil, nil)
	repo.On("ListActiveCities", mock.Anything).Return([]*City{older, newer}, nil)

	cfg := NewResolver(repo, nil, 0).ResolveForPoint(context.Background(), cairo)
	assert.Equal(t, older.ID, *cfg.CityID)
}

func TestResolver_StoreFailureFallsBackToDefaults(t *testing.T) {
	repo := new(mockRepository)
	repo.On("GetSettings", mock.Anything).Return(nil, errors.New("connection refused"))

	cfg := NewResolver(repo, nil, 0).ResolveForPoint(context.Background(), cairo)

	assert.Equal(t, DefaultConfig(), cfg)
	repo.AssertNotCalled(t, "ListActiveCities", mock.Anything)
}

func TestResolver_CacheHitSkipsStore(t *testing.T) {
	client, redisMock := redismock.NewClientMock()
	repo := new(mockRepository)
	resolver := NewResolver(repo, pkgredis.Wrap(client), 5*time.Minute)

	key, ok := cacheKey(cairo)
	require.True(t, ok)

	cached := DefaultConfig()
	cached.BaseFare = 42
	raw, err := json.Marshal(cached)
	require.NoError(t, err)
	redisMock.ExpectGet(key).SetVal(string(raw))

	cfg := resolver.ResolveForPoint(context.Background(), cairo)

	assert.Equal(t, 42.0, cfg.BaseFare)
	repo.AssertNotCalled(t, "GetSettings", mock.Anything)
	assert.NoError(t, redisMock.ExpectationsWereMet())
}

func TestResolver_CacheMissStoresResult(t *testing.T) {
	client, redisMock := redismock.NewClientMock()
	repo := new(mockRepository)
	repo.On("GetSettings", mock.Anything).Return(storedSettings(), nil)
	repo.On("ListActiveCities", mock.Anything).Return([]*City{}, nil)
	resolver := NewResolver(repo, pkgredis.Wrap(client), 5*time.Minute)

	key, _ := cacheKey(cairo)
	expected := DefaultConfig()
	applySettings(&expected, storedSettings())
	raw, err := json.Marshal(expected)
	require.NoError(t, err)

	redisMock.ExpectGet(key).RedisNil()
	redisMock.ExpectSet(key, string(raw), 5*time.Minute).SetVal("OK")

	cfg := resolver.ResolveForPoint(context.Background(), cairo)

	assert.Equal(t, expected, cfg)
	assert.NoError(t, redisMock.ExpectationsWereMet())
}

func TestResolver_Invalidate(t *testing.T) {
	client, redisMock := redismock.NewClientMock()
	resolver := NewResolver(new(mockRepository), pkgredis.Wrap(client), time.Minute)

	redisMock.ExpectScan(0, cacheKeyPrefix+"*", 100).SetVal([]string{"pricing:cell:871f1d489ffffff"}, 0)
	redisMock.ExpectDel("pricing:cell:871f1d489ffffff").SetVal(1)

	require.NoError(t, resolver.Invalidate(context.Background()))
	assert.NoError(t, redisMock.ExpectationsWereMet())
}

func newTestService(repo *mockRepository) *Service {
	return NewService(repo, NewResolver(repo, nil, 0))
}

func TestService_Quote(t *testing.T) {
	repo := new(mockRepository)
	repo.On("GetSettings", mock.Anything).Return(nil, nil)
	repo.On("ListActiveCities", mock.Anything).Return([]*City{}, nil)

	quote, err := newTestService(repo).Quote(context.Background(), QuoteRequest{
		Pickup:  geo.Point{Latitude: 30.0, Longitude: 31.0},
		Dropoff: geo.Point{Latitude: 30.1, Longitude: 31.1},
	})
	require.NoError(t, err)

	assert.Equal(t, 14.71, quote.DistanceKm)
	assert.Equal(t, 30, quote.DurationMinutes)
	assert.False(t, quote.SurgeActive)
	require.Len(t, quote.Estimates, 3)
	assert.Equal(t, 113.5, quote.Estimates[0].Fare)
	assert.Equal(t, 147.5, quote.Estimates[1].Fare)
	assert.Equal(t, 181.5, quote.Estimates[2].Fare)
}

func TestService_QuoteRejectsBadCoordinates(t *testing.T) {
	_, err := newTestService(new(mockRepository)).Quote(context.Background(), QuoteRequest{
		Pickup:  geo.Point{Latitude: 91, Longitude: 31},
		Dropoff: geo.Point{Latitude: 30, Longitude: 31},
	})

	appErr, ok := common.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, appErr.Code)
}

func TestService_GetSettingsFallsBackToDefaults(t *testing.T) {
	repo := new(mockRepository)
	repo.On("GetSettings", mock.Anything).Return(nil, nil)

	settings, err := newTestService(repo).GetSettings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10.0, settings.BaseFare)
	assert.Equal(t, 1.6, settings.VehicleMultipliers.Premium)
}

func TestService_UpdateSettings(t *testing.T) {
	t.Run("rejects non-positive multiplier", func(t *testing.T) {
		repo := new(mockRepository)
		s := storedSettings()
		s.VehicleMultipliers.Comfort = 0

		_, err := newTestService(repo).UpdateSettings(context.Background(), s)

		assert.ErrorIs(t, err, ErrInvalidMultiplier)
		repo.AssertNotCalled(t, "SaveSettings", mock.Anything, mock.Anything)
	})

	t.Run("saves valid settings", func(t *testing.T) {
		repo := new(mockRepository)
		s := storedSettings()
		repo.On("SaveSettings", mock.Anything, s).Return(nil)

		got, err := newTestService(repo).UpdateSettings(context.Background(), s)

		require.NoError(t, err)
		assert.Equal(t, s, got)
		repo.AssertExpectations(t)
	})
}

func TestService_CreateCityDefaults(t *testing.T) {
	repo := new(mockRepository)
	repo.On("CreateCity", mock.Anything, mock.AnythingOfType("*pricing.City")).Return(nil)

	city, err := newTestService(repo).CreateCity(context.Background(), &CityRequest{
		Name: "Giza", NameAr: "الجيزة", BaseFare: 9, PricePerKm: 4, PricePerMinute: 1, MinFare: 14,
		CenterLat: 30.01, CenterLon: 31.21,
	})

	require.NoError(t, err)
	assert.True(t, city.IsActive)
	assert.Equal(t, float64(defaultCityRadiusKm), city.RadiusKm)
	assert.NotEqual(t, uuid.Nil, city.ID)
}

func TestService_UpdateCityNotFound(t *testing.T) {
	repo := new(mockRepository)
	id := uuid.New()
	repo.On("GetCity", mock.Anything, id).Return(nil, ErrCityNotFound)

	_, err := newTestService(repo).UpdateCity(context.Background(), id, &CityRequest{Name: "x", NameAr: "y"})

	appErr, ok := common.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, appErr.Code)
}
