package cancellation

import (
	"github.com/gin-gonic/gin"
	"github.com/richxcame/ridecore/pkg/common"
	"github.com/richxcame/ridecore/pkg/middleware"
	"github.com/richxcame/ridecore/pkg/models"
)

// Handler handles HTTP requests for cancellation reasons
type Handler struct {
	service *Service
}

// NewHandler creates a new cancellation handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// ListReasons returns active reasons for ?userType=passenger|driver, defaulting to the caller's role.
func (h *Handler) ListReasons(c *gin.Context) {
	userType := UserType(c.Query("userType"))
	if userType == "" {
		if role, err := middleware.GetUserRole(c); err == nil && role == models.RoleDriver {
			userType = UserTypeDriver
		} else {
			userType = UserTypePassenger
		}
	}

	reasons, err := h.service.ListReasons(c.Request.Context(), userType)
	if common.HandleServiceError(c, err, "failed to get cancellation reasons") {
		return
	}
	common.SuccessResponse(c, reasons)
}

func (h *Handler) CreateReason(c *gin.Context) {
	var req CreateReasonRequest
	if !common.BindJSON(c, &req) {
		return
	}
	reason, err := h.service.CreateReason(c.Request.Context(), &req)
	if common.HandleServiceError(c, err, "failed to create cancellation reason") {
		return
	}
	common.CreatedResponse(c, reason)
}

// RegisterRoutes registers cancellation routes
func (h *Handler) RegisterRoutes(r *gin.Engine, jwtSecret string) {
	api := r.Group("/api/v1/cancellation-reasons")
	api.Use(middleware.Auth(jwtSecret))
	{
		api.GET("", h.ListReasons)
	}

	admin := r.Group("/api/v1/admin/cancellation-reasons")
	admin.Use(middleware.Auth(jwtSecret))
	admin.Use(middleware.RequireRole(models.RoleAdmin))
	{
		admin.POST("", h.CreateReason)
	}
}
