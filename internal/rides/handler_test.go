package rides

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/richxcame/ridecore/internal/drivers"
	"github.com/richxcame/ridecore/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func rideRouter(h *Handler, userID uuid.UUID, role models.UserRole) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("user_id", userID)
		c.Set("user_role", role)
		c.Next()
	})
	r.POST("/rides", h.RequestRide)
	r.GET("/rides/:id", h.GetRide)
	r.POST("/rides/:id/cancel", h.CancelRide)
	r.POST("/driver/rides/:id/accept", h.AcceptRide)
	r.POST("/driver/rides/:id/complete", h.CompleteRide)
	r.POST("/driver/rides/:id/safety-check", h.SafetyCheck)
	return r
}

func TestHandler_RequestRideCreated(t *testing.T) {
	f := newFixture(t)
	f.directory.On("GetOnlineDriversNear", mock.Anything, mock.Anything).Return([]drivers.NearbyDriver{}, nil)
	r := rideRouter(NewHandler(f.svc), uuid.New(), models.RolePassenger)

	body := `{
		"pickup": {"address": "Bitarap Turkmenistan", "latitude": 37.9601, "longitude": 58.3261},
		"dropoff": {"address": "Oguzhan", "latitude": 37.9391, "longitude": 58.3870}
	}`
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/rides", bytes.NewBufferString(body)))

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"pending"`)
}

func TestHandler_RequestRideMissingDropoff(t *testing.T) {
	f := newFixture(t)
	r := rideRouter(NewHandler(f.svc), uuid.New(), models.RolePassenger)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/rides",
		bytes.NewBufferString(`{"pickup": {"address": "A", "latitude": 37.96, "longitude": 58.32}}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_GetRideInvalidID(t *testing.T) {
	f := newFixture(t)
	r := rideRouter(NewHandler(f.svc), uuid.New(), models.RolePassenger)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rides/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_AcceptRideConflict(t *testing.T) {
	f := newFixture(t)
	ride := f.seedRide(assigned(uuid.New(), models.RideStatusAccepted))
	driverID := uuid.New()
	f.directory.On("GetUser", mock.Anything, driverID).Return(testDriver(driverID), nil)
	r := rideRouter(NewHandler(f.svc), driverID, models.RoleDriver)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/driver/rides/"+ride.ID.String()+"/accept", nil))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "RIDE_ALREADY_ASSIGNED")
}

func TestHandler_CompleteRideWithoutBody(t *testing.T) {
	f := newFixture(t)
	driverID := uuid.New()
	ride := f.seedRide(assigned(driverID, models.RideStatusStarted))
	f.ledger.On("Debit", mock.Anything, driverID, 2.5, mock.Anything, "App commission", true).Return(&models.Wallet{}, nil)
	f.directory.On("IncrementDriverStats", mock.Anything, driverID, 25.0, 10).Return(nil)
	r := rideRouter(NewHandler(f.svc), driverID, models.RoleDriver)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/driver/rides/"+ride.ID.String()+"/complete", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"commission":2.5`)
}

func TestHandler_CancelRideRequiresReason(t *testing.T) {
	f := newFixture(t)
	ride := f.seedRide(nil)
	r := rideRouter(NewHandler(f.svc), ride.PassengerID, models.RolePassenger)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/rides/"+ride.ID.String()+"/cancel", bytes.NewBufferString(`{}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_SafetyCheckRejectsUnknownResponse(t *testing.T) {
	f := newFixture(t)
	driverID := uuid.New()
	ride := f.seedRide(assigned(driverID, models.RideStatusStarted))
	r := rideRouter(NewHandler(f.svc), driverID, models.RoleDriver)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/driver/rides/"+ride.ID.String()+"/safety-check",
		bytes.NewBufferString(`{"response":"maybe"}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
