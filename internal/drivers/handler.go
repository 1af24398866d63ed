package drivers

import (
	"github.com/gin-gonic/gin"
	"github.com/richxcame/ridecore/pkg/common"
	"github.com/richxcame/ridecore/pkg/geo"
	"github.com/richxcame/ridecore/pkg/middleware"
	"github.com/richxcame/ridecore/pkg/models"
)

// Handler handles HTTP requests for driver availability and lookup
type Handler struct {
	service *Service
}

// NewHandler creates a new drivers handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// UpdateStatus toggles the driver online or offline
func (h *Handler) UpdateStatus(c *gin.Context) {
	driverID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}
	var req StatusRequest
	if !common.BindJSON(c, &req) {
		return
	}

	state, err := h.service.SetOnline(c.Request.Context(), driverID, *req.IsOnline)
	if common.HandleServiceError(c, err, "failed to update status") {
		return
	}

	msg := "You are now offline"
	if state.IsOnline {
		msg = "You are now online"
	}
	common.SuccessMessageResponse(c, msg, gin.H{"is_online": state.IsOnline})
}

// UpdateLocation records the driver's current position
func (h *Handler) UpdateLocation(c *gin.Context) {
	driverID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}
	var req LocationRequest
	if !common.BindJSON(c, &req) {
		return
	}

	p := geo.Point{Latitude: *req.Latitude, Longitude: *req.Longitude}
	if err := h.service.SetDriverLocation(c.Request.Context(), driverID, p); common.HandleServiceError(c, err, "failed to update location") {
		return
	}
	common.SuccessMessageResponse(c, "Location updated", p)
}

func (h *Handler) UpdateSettings(c *gin.Context) {
	driverID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}
	var req SettingsRequest
	if !common.BindJSON(c, &req) {
		return
	}

	state, err := h.service.UpdateSettings(c.Request.Context(), driverID, &req)
	if common.HandleServiceError(c, err, "failed to update settings") {
		return
	}
	common.SuccessResponse(c, gin.H{
		"auto_accept":      state.AutoAccept,
		"pickup_radius_km": state.PickupRadiusKm,
	})
}

// GetEarnings returns the driver's earnings dashboard
func (h *Handler) GetEarnings(c *gin.Context) {
	driverID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}
	earnings, err := h.service.Earnings(c.Request.Context(), driverID)
	if common.HandleServiceError(c, err, "failed to get earnings") {
		return
	}
	common.SuccessResponse(c, earnings)
}

// GetNearbyDrivers lists online drivers around ?lat=&lon=, optionally within ?radius= km
func (h *Handler) GetNearbyDrivers(c *gin.Context) {
	lat, ok := common.ParseFloatQuery(c, "lat")
	if !ok {
		return
	}
	lon, ok := common.ParseFloatQuery(c, "lon")
	if !ok {
		return
	}
	p := geo.Point{Latitude: lat, Longitude: lon}
	if !p.Valid() {
		common.AppErrorResponse(c, common.NewBadRequestError(ErrInvalidLocation.Error(), ErrInvalidLocation))
		return
	}

	found, err := h.service.GetOnlineDriversNear(c.Request.Context(), p)
	if common.HandleServiceError(c, err, "failed to get nearby drivers") {
		return
	}

	if c.Query("radius") != "" {
		radius, ok := common.ParseFloatQuery(c, "radius")
		if !ok {
			return
		}
		filtered := found[:0]
		for _, d := range found {
			if d.DistanceKm <= radius {
				filtered = append(filtered, d)
			}
		}
		found = filtered
	}
	common.SuccessResponse(c, found)
}

// RegisterRoutes registers driver routes
func (h *Handler) RegisterRoutes(r *gin.Engine, jwtSecret string) {
	driver := r.Group("/api/v1/driver")
	driver.Use(middleware.Auth(jwtSecret))
	driver.Use(middleware.RequireRole(models.RoleDriver))
	{
		driver.PUT("/status", h.UpdateStatus)
		driver.PUT("/location", h.UpdateLocation)
		driver.PUT("/settings", h.UpdateSettings)
		driver.GET("/earnings", h.GetEarnings)
	}

	nearby := r.Group("/api/v1/drivers")
	nearby.Use(middleware.Auth(jwtSecret))
	nearby.Use(middleware.RequireRole(models.RolePassenger, models.RoleAdmin))
	{
		nearby.GET("/nearby", h.GetNearbyDrivers)
	}
}
