package redis

import (
	"context"
	"testing"

	"github.com/go-redis/redismock/v9"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeoSearchReturnsDistances(t *testing.T) {
	db, mock := redismock.NewClientMock()
	client := Wrap(db)

	mock.ExpectGeoSearchLocation("drivers:online", &goredis.GeoSearchLocationQuery{
		GeoSearchQuery: goredis.GeoSearchQuery{
			Longitude:  31.0,
			Latitude:   30.0,
			Radius:     50,
			RadiusUnit: "km",
			Sort:       "ASC",
			Count:      10,
		},
		WithCoord: true,
		WithDist:  true,
	}).SetVal([]goredis.GeoLocation{
		{Name: "driver-a", Longitude: 31.01, Latitude: 30.01, Dist: 1.2},
		{Name: "driver-b", Longitude: 31.1, Latitude: 30.1, Dist: 14.7},
	})

	members, err := client.GeoSearch(context.Background(), "drivers:online", 31.0, 30.0, 50, 10)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "driver-a", members[0].Name)
	assert.Equal(t, 1.2, members[0].DistanceKm)
	assert.Equal(t, 30.1, members[1].Latitude)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGeoPosMissingMember(t *testing.T) {
	db, mock := redismock.NewClientMock()
	client := Wrap(db)

	mock.ExpectGeoPos("drivers:online", "ghost").SetVal([]*goredis.GeoPos{nil})

	_, _, err := client.GeoPos(context.Background(), "drivers:online", "ghost")
	assert.True(t, IsNil(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGeoRemoveUsesZRem(t *testing.T) {
	db, mock := redismock.NewClientMock()
	client := Wrap(db)

	mock.ExpectZRem("drivers:online", "driver-a").SetVal(1)

	require.NoError(t, client.GeoRemove(context.Background(), "drivers:online", "driver-a"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHashGetManyKeepsFieldOrder(t *testing.T) {
	db, mock := redismock.NewClientMock()
	client := Wrap(db)

	mock.ExpectHMGet("drivers:radius", "a", "b").SetVal([]interface{}{"5", nil})

	vals, err := client.HashGetMany(context.Background(), "drivers:radius", "a", "b")
	require.NoError(t, err)
	require.Len(t, vals, 2)
	assert.Equal(t, "5", vals[0])
	assert.Nil(t, vals[1])
	assert.NoError(t, mock.ExpectationsWereMet())
}
