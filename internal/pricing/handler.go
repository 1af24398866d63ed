package pricing

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/richxcame/ridecore/pkg/common"
	"github.com/richxcame/ridecore/pkg/geo"
	"github.com/richxcame/ridecore/pkg/middleware"
	"github.com/richxcame/ridecore/pkg/models"
)

// Handler handles HTTP requests for pricing
type Handler struct {
	service *Service
}

// NewHandler creates a new pricing handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// GetQuotes returns one estimate per vehicle tier.
// Query: pickup_lat, pickup_lon, dropoff_lat, dropoff_lon and optional stops=lat,lon|lat,lon
func (h *Handler) GetQuotes(c *gin.Context) {
	var req QuoteRequest
	var ok bool

	if req.Pickup.Latitude, ok = common.ParseFloatQuery(c, "pickup_lat"); !ok {
		return
	}
	if req.Pickup.Longitude, ok = common.ParseFloatQuery(c, "pickup_lon"); !ok {
		return
	}
	if req.Dropoff.Latitude, ok = common.ParseFloatQuery(c, "dropoff_lat"); !ok {
		return
	}
	if req.Dropoff.Longitude, ok = common.ParseFloatQuery(c, "dropoff_lon"); !ok {
		return
	}

	if raw := c.Query("stops"); raw != "" {
		stops, err := parseStops(raw)
		if err != nil {
			common.ErrorResponse(c, http.StatusBadRequest, "invalid stops")
			return
		}
		req.Stops = stops
	}

	quote, err := h.service.Quote(c.Request.Context(), req)
	if common.HandleServiceError(c, err, "failed to calculate quotes") {
		return
	}
	common.SuccessResponse(c, quote)
}

func (h *Handler) GetSettings(c *gin.Context) {
	settings, err := h.service.GetSettings(c.Request.Context())
	if common.HandleServiceError(c, err, "failed to get pricing settings") {
		return
	}
	common.SuccessResponse(c, settings)
}

func (h *Handler) UpdateSettings(c *gin.Context) {
	var req Settings
	if !common.BindJSON(c, &req) {
		return
	}
	settings, err := h.service.UpdateSettings(c.Request.Context(), &req)
	if common.HandleServiceError(c, err, "failed to update pricing settings") {
		return
	}
	common.SuccessResponse(c, settings)
}

func (h *Handler) ListCities(c *gin.Context) {
	cities, err := h.service.ListCities(c.Request.Context())
	if common.HandleServiceError(c, err, "failed to list cities") {
		return
	}
	common.SuccessResponse(c, cities)
}

func (h *Handler) CreateCity(c *gin.Context) {
	var req CityRequest
	if !common.BindJSON(c, &req) {
		return
	}
	city, err := h.service.CreateCity(c.Request.Context(), &req)
	if common.HandleServiceError(c, err, "failed to create city") {
		return
	}
	common.CreatedResponse(c, city)
}

func (h *Handler) UpdateCity(c *gin.Context) {
	id, ok := common.ParseUUIDParam(c, "id", "city ID")
	if !ok {
		return
	}
	var req CityRequest
	if !common.BindJSON(c, &req) {
		return
	}
	city, err := h.service.UpdateCity(c.Request.Context(), id, &req)
	if common.HandleServiceError(c, err, "failed to update city") {
		return
	}
	common.SuccessResponse(c, city)
}

func parseStops(raw string) ([]geo.Point, error) {
	var stops []geo.Point
	for _, pair := range strings.Split(raw, "|") {
		parts := strings.Split(pair, ",")
		if len(parts) != 2 {
			return nil, strconv.ErrSyntax
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		if err != nil {
			return nil, err
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return nil, err
		}
		stops = append(stops, geo.Point{Latitude: lat, Longitude: lon})
	}
	return stops, nil
}

// RegisterRoutes registers pricing routes
func (h *Handler) RegisterRoutes(r *gin.Engine, jwtSecret string) {
	api := r.Group("/api/v1/pricing")
	api.Use(middleware.Auth(jwtSecret))
	{
		api.GET("/quotes", h.GetQuotes)
	}

	admin := r.Group("/api/v1/admin/pricing")
	admin.Use(middleware.Auth(jwtSecret))
	admin.Use(middleware.RequireRole(models.RoleAdmin))
	{
		admin.GET("/settings", h.GetSettings)
		admin.PUT("/settings", h.UpdateSettings)
		admin.GET("/cities", h.ListCities)
		admin.POST("/cities", h.CreateCity)
		admin.PUT("/cities/:id", h.UpdateCity)
	}
}
