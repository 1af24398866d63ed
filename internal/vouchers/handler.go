package vouchers

import (
	"github.com/gin-gonic/gin"
	"github.com/richxcame/ridecore/pkg/common"
	"github.com/richxcame/ridecore/pkg/middleware"
	"github.com/richxcame/ridecore/pkg/models"
)

// Handler handles HTTP requests for vouchers
type Handler struct {
	service *Service
}

// NewHandler creates a new voucher handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Apply prices a ride amount with a voucher without redeeming it
func (h *Handler) Apply(c *gin.Context) {
	userID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}

	var req ApplyRequest
	if !common.BindJSON(c, &req) {
		return
	}

	pricing, err := h.service.ValidateAndPrice(c.Request.Context(), req.Code, req.RideAmount, userID)
	if common.HandleServiceError(c, err, "failed to apply voucher") {
		return
	}
	common.SuccessResponse(c, pricing)
}

func (h *Handler) ListAvailable(c *gin.Context) {
	userID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}

	vouchers, err := h.service.ListAvailable(c.Request.Context(), userID)
	if common.HandleServiceError(c, err, "failed to list vouchers") {
		return
	}
	common.SuccessResponse(c, vouchers)
}

func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if !common.BindJSON(c, &req) {
		return
	}

	v, err := h.service.Create(c.Request.Context(), &req)
	if common.HandleServiceError(c, err, "failed to create voucher") {
		return
	}
	common.CreatedResponse(c, v)
}

// RegisterRoutes registers voucher routes
func (h *Handler) RegisterRoutes(r *gin.Engine, jwtSecret string) {
	api := r.Group("/api/v1/vouchers")
	api.Use(middleware.Auth(jwtSecret))
	api.Use(middleware.RequireRole(models.RolePassenger))
	{
		api.POST("/apply", h.Apply)
		api.GET("", h.ListAvailable)
	}

	admin := r.Group("/api/v1/admin/vouchers")
	admin.Use(middleware.Auth(jwtSecret))
	admin.Use(middleware.RequireRole(models.RoleAdmin))
	{
		admin.POST("", h.Create)
	}
}
