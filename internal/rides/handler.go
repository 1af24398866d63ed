package rides

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/richxcame/ridecore/pkg/common"
	"github.com/richxcame/ridecore/pkg/middleware"
	"github.com/richxcame/ridecore/pkg/models"
)

// Handler handles HTTP requests for rides
type Handler struct {
	service *Service
}

// NewHandler creates a new rides handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// rideParams reads the caller and the :id ride parameter.
func rideParams(c *gin.Context) (userID, rideID uuid.UUID, ok bool) {
	userID, ok = middleware.RequireUserID(c)
	if !ok {
		return
	}
	rideID, ok = common.ParseUUIDParam(c, "id", "ride ID")
	return
}

func callerRole(c *gin.Context) models.UserRole {
	role, _ := middleware.GetUserRole(c)
	return role
}

// RequestRide handles creating a new ride request
func (h *Handler) RequestRide(c *gin.Context) {
	passengerID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}
	var req RequestRideRequest
	if !common.BindJSON(c, &req) {
		return
	}

	res, err := h.service.RequestRide(c.Request.Context(), passengerID, &req)
	if common.HandleServiceError(c, err, "failed to request ride") {
		return
	}
	common.CreatedResponse(c, res)
}

// RequestAgain books the route of a finished ride again
func (h *Handler) RequestAgain(c *gin.Context) {
	passengerID, rideID, ok := rideParams(c)
	if !ok {
		return
	}

	res, err := h.service.RequestAgain(c.Request.Context(), passengerID, rideID)
	if common.HandleServiceError(c, err, "failed to request ride") {
		return
	}
	common.CreatedResponse(c, res)
}

// GetRide handles getting a ride by ID
func (h *Handler) GetRide(c *gin.Context) {
	userID, rideID, ok := rideParams(c)
	if !ok {
		return
	}

	ride, err := h.service.GetRide(c.Request.Context(), rideID, userID, callerRole(c))
	if common.HandleServiceError(c, err, "failed to get ride") {
		return
	}
	common.SuccessResponse(c, ride)
}

// GetActiveRide returns the caller's current ride, or null
func (h *Handler) GetActiveRide(c *gin.Context) {
	userID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}

	ride, err := h.service.GetActiveRide(c.Request.Context(), userID, callerRole(c))
	if common.HandleServiceError(c, err, "failed to get active ride") {
		return
	}
	common.SuccessResponse(c, ride)
}

// GetRideHistory lists the caller's finished rides
func (h *Handler) GetRideHistory(c *gin.Context) {
	userID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}
	page, limit := common.ParsePagination(c)

	rides, total, err := h.service.RideHistory(c.Request.Context(), userID, callerRole(c), page, limit)
	if common.HandleServiceError(c, err, "failed to get ride history") {
		return
	}
	common.SuccessResponseWithMeta(c, rides, common.NewMeta(page, limit, total))
}

// CancelRide handles cancellation by the passenger or the assigned driver
func (h *Handler) CancelRide(c *gin.Context) {
	userID, rideID, ok := rideParams(c)
	if !ok {
		return
	}
	var req CancelRideRequest
	if !common.BindJSON(c, &req) {
		return
	}
	reasonID, err := uuid.Parse(req.ReasonID)
	if err != nil {
		common.AppErrorResponse(c, common.NewBadRequestError("invalid reason_id", err))
		return
	}

	res, err := h.service.CancelRide(c.Request.Context(), rideID, userID, callerRole(c), reasonID)
	if common.HandleServiceError(c, err, "failed to cancel ride") {
		return
	}
	common.SuccessMessageResponse(c, "Ride cancelled", res)
}

// RateRide handles rating the other party of a completed ride
func (h *Handler) RateRide(c *gin.Context) {
	userID, rideID, ok := rideParams(c)
	if !ok {
		return
	}
	var req RateRideRequest
	if !common.BindJSON(c, &req) {
		return
	}

	res, err := h.service.RateRide(c.Request.Context(), rideID, userID, callerRole(c), &req)
	if common.HandleServiceError(c, err, "failed to rate ride") {
		return
	}
	common.SuccessMessageResponse(c, "Rating submitted", res)
}

// GetIncomingRides lists open rides within the driver's pickup radius
func (h *Handler) GetIncomingRides(c *gin.Context) {
	driverID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}

	rides, err := h.service.IncomingRides(c.Request.Context(), driverID)
	if common.HandleServiceError(c, err, "failed to get incoming rides") {
		return
	}
	common.SuccessResponse(c, rides)
}

// GetUpcomingNearby lists open rides near the end of the driver's trip, ?radius= km
func (h *Handler) GetUpcomingNearby(c *gin.Context) {
	driverID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}
	radius := 0.0
	if c.Query("radius") != "" {
		if radius, ok = common.ParseFloatQuery(c, "radius"); !ok {
			return
		}
	}

	rides, err := h.service.UpcomingNearby(c.Request.Context(), driverID, radius)
	if common.HandleServiceError(c, err, "failed to get upcoming rides") {
		return
	}
	common.SuccessResponse(c, rides)
}

// AcceptRide handles a driver accepting a ride
func (h *Handler) AcceptRide(c *gin.Context) {
	driverID, rideID, ok := rideParams(c)
	if !ok {
		return
	}

	ride, err := h.service.AcceptRide(c.Request.Context(), rideID, driverID)
	if common.HandleServiceError(c, err, "failed to accept ride") {
		return
	}
	common.SuccessMessageResponse(c, "Ride accepted", ride)
}

func (h *Handler) ArriveAtPickup(c *gin.Context) {
	h.step(c, h.service.ArriveAtPickup, "Arrival at pickup recorded", "failed to update ride")
}

func (h *Handler) StartRide(c *gin.Context) {
	h.step(c, h.service.StartRide, "Ride started", "failed to start ride")
}

func (h *Handler) ArriveAtDestination(c *gin.Context) {
	h.step(c, h.service.ArriveAtDestination, "Arrival at destination recorded", "failed to update ride")
}

func (h *Handler) step(c *gin.Context, run func(ctx context.Context, rideID, driverID uuid.UUID) (*models.Ride, error), okMsg, failMsg string) {
	driverID, rideID, ok := rideParams(c)
	if !ok {
		return
	}

	ride, err := run(c.Request.Context(), rideID, driverID)
	if common.HandleServiceError(c, err, failMsg) {
		return
	}
	common.SuccessMessageResponse(c, okMsg, ride)
}

// CompleteRide handles a driver completing a ride. The body is optional.
func (h *Handler) CompleteRide(c *gin.Context) {
	driverID, rideID, ok := rideParams(c)
	if !ok {
		return
	}
	var req CompleteRideRequest
	if c.Request.ContentLength != 0 && !common.BindJSON(c, &req) {
		return
	}

	res, err := h.service.CompleteRide(c.Request.Context(), rideID, driverID, &req)
	if common.HandleServiceError(c, err, "failed to complete ride") {
		return
	}
	common.SuccessMessageResponse(c, "Ride completed", res)
}

// UpdateMeter records the metered distance
func (h *Handler) UpdateMeter(c *gin.Context) {
	driverID, rideID, ok := rideParams(c)
	if !ok {
		return
	}
	var req MeterRequest
	if !common.BindJSON(c, &req) {
		return
	}

	ride, err := h.service.UpdateMeter(c.Request.Context(), rideID, driverID, req.DistanceKm)
	if common.HandleServiceError(c, err, "failed to update meter") {
		return
	}
	common.SuccessResponse(c, ride)
}

// SafetyCheck records the driver's answer to a rest-stop safety check
func (h *Handler) SafetyCheck(c *gin.Context) {
	driverID, rideID, ok := rideParams(c)
	if !ok {
		return
	}
	var req SafetyCheckRequest
	if !common.BindJSON(c, &req) {
		return
	}

	ride, err := h.service.SafetyCheck(c.Request.Context(), rideID, driverID, req.Response)
	if common.HandleServiceError(c, err, "failed to record safety check") {
		return
	}
	msg := "Safety check recorded"
	if req.Response == SafetyResponseEmergency {
		msg = "Emergency reported, help is on the way"
	}
	common.SuccessMessageResponse(c, msg, ride)
}

// RegisterRoutes registers ride routes
func (h *Handler) RegisterRoutes(r *gin.Engine, jwtSecret string) {
	api := r.Group("/api/v1")
	api.Use(middleware.Auth(jwtSecret))

	passengers := api.Group("/rides")
	passengers.Use(middleware.RequireRole(models.RolePassenger))
	{
		passengers.POST("", h.RequestRide)
		passengers.GET("/active", h.GetActiveRide)
		passengers.GET("/history", h.GetRideHistory)
		passengers.GET("/:id", h.GetRide)
		passengers.POST("/:id/cancel", h.CancelRide)
		passengers.POST("/:id/rate", h.RateRide)
		passengers.POST("/:id/request-again", h.RequestAgain)
	}

	drivers := api.Group("/driver/rides")
	drivers.Use(middleware.RequireRole(models.RoleDriver))
	{
		drivers.GET("/incoming", h.GetIncomingRides)
		drivers.GET("/upcoming-nearby", h.GetUpcomingNearby)
		drivers.GET("/active", h.GetActiveRide)
		drivers.GET("/history", h.GetRideHistory)
		drivers.GET("/:id", h.GetRide)
		drivers.POST("/:id/accept", h.AcceptRide)
		drivers.POST("/:id/arrive", h.ArriveAtPickup)
		drivers.POST("/:id/start", h.StartRide)
		drivers.POST("/:id/arrive-destination", h.ArriveAtDestination)
		drivers.POST("/:id/complete", h.CompleteRide)
		drivers.POST("/:id/cancel", h.CancelRide)
		drivers.POST("/:id/rate", h.RateRide)
		drivers.PUT("/:id/meter", h.UpdateMeter)
		drivers.POST("/:id/safety-check", h.SafetyCheck)
	}

	admin := api.Group("/admin/rides")
	admin.Use(middleware.RequireRole(models.RoleAdmin))
	{
		admin.GET("/:id", h.GetRide)
	}
}
