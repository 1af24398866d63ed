package pricing

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func setupQuoteRouter(repo *mockRepository) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewHandler(newTestService(repo))
	r.GET("/quotes", h.GetQuotes)
	return r
}

func TestHandler_GetQuotes(t *testing.T) {
	repo := new(mockRepository)
	repo.On("GetSettings", mock.Anything).Return(nil, nil)
	repo.On("ListActiveCities", mock.Anything).Return([]*City{}, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/quotes?pickup_lat=30&pickup_lon=31&dropoff_lat=30.1&dropoff_lon=31.1", nil)
	setupQuoteRouter(repo).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Success bool          `json:"success"`
		Data    QuoteResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, 113.5, body.Data.Estimates[0].Fare)
}

func TestHandler_GetQuotesWithStops(t *testing.T) {
	repo := new(mockRepository)
	repo.On("GetSettings", mock.Anything).Return(nil, nil)
	repo.On("ListActiveCities", mock.Anything).Return([]*City{}, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/quotes?pickup_lat=30&pickup_lon=31&dropoff_lat=30.1&dropoff_lon=31.1&stops=30.05,31.05", nil)
	setupQuoteRouter(repo).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandler_GetQuotesValidation(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"missing pickup", "/quotes?dropoff_lat=30.1&dropoff_lon=31.1"},
		{"non numeric", "/quotes?pickup_lat=abc&pickup_lon=31&dropoff_lat=30.1&dropoff_lon=31.1"},
		{"bad stops", "/quotes?pickup_lat=30&pickup_lon=31&dropoff_lat=30.1&dropoff_lon=31.1&stops=30.05"},
		{"out of range", "/quotes?pickup_lat=95&pickup_lon=31&dropoff_lat=30.1&dropoff_lon=31.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			setupQuoteRouter(new(mockRepository)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.query, nil))
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}
