package wallet

import (
	"github.com/gin-gonic/gin"
	"github.com/richxcame/ridecore/pkg/common"
	"github.com/richxcame/ridecore/pkg/middleware"
)

// Handler handles HTTP requests for wallets
type Handler struct {
	service *Service
}

// NewHandler creates a new wallet handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// GetWallet returns the caller's wallet with recent transactions
func (h *Handler) GetWallet(c *gin.Context) {
	userID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}

	w, err := h.service.GetWallet(c.Request.Context(), userID)
	if common.HandleServiceError(c, err, "failed to get wallet") {
		return
	}
	common.SuccessResponse(c, w)
}

// GetTransactions returns a page of the caller's transactions
func (h *Handler) GetTransactions(c *gin.Context) {
	userID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}

	page, limit := common.ParsePagination(c)
	transactions, total, err := h.service.ListTransactions(c.Request.Context(), userID, page, limit)
	if common.HandleServiceError(c, err, "failed to get transactions") {
		return
	}
	common.SuccessResponseWithMeta(c, transactions, common.NewMeta(page, limit, total))
}

func (h *Handler) TopUp(c *gin.Context) {
	userID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}

	var req TopUpRequest
	if !common.BindJSON(c, &req) {
		return
	}

	w, err := h.service.TopUp(c.Request.Context(), userID, req.Amount)
	if common.HandleServiceError(c, err, "failed to top up wallet") {
		return
	}
	common.SuccessMessageResponse(c, "wallet topped up", w)
}

func (h *Handler) Withdraw(c *gin.Context) {
	userID, ok := middleware.RequireUserID(c)
	if !ok {
		return
	}

	var req WithdrawRequest
	if !common.BindJSON(c, &req) {
		return
	}

	w, err := h.service.Withdraw(c.Request.Context(), userID, req.Amount)
	if common.HandleServiceError(c, err, "failed to withdraw from wallet") {
		return
	}
	common.SuccessMessageResponse(c, "withdrawal recorded", w)
}

// RegisterRoutes registers wallet routes
func (h *Handler) RegisterRoutes(r *gin.Engine, jwtSecret string) {
	api := r.Group("/api/v1/wallet")
	api.Use(middleware.Auth(jwtSecret))
	{
		api.GET("", h.GetWallet)
		api.GET("/transactions", h.GetTransactions)
		api.POST("/topup", h.TopUp)
		api.POST("/withdraw", h.Withdraw)
	}
}
