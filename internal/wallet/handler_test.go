package wallet

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRouter(svc *Service, userID *uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if userID != nil {
			c.Set("user_id", *userID)
		}
		c.Next()
	})
	h := NewHandler(svc)
	r.GET("/wallet", h.GetWallet)
	r.POST("/wallet/topup", h.TopUp)
	r.POST("/wallet/withdraw", h.Withdraw)
	r.GET("/wallet/transactions", h.GetTransactions)
	return r
}

func TestHandler_TopUpAndGet(t *testing.T) {
	userID := uuid.New()
	router := setupRouter(NewService(newFakeRepository()), &userID)

	body, _ := json.Marshal(map[string]float64{"amount": 25})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/wallet/topup", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/wallet", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data struct {
			Balance      float64           `json:"balance"`
			Transactions []json.RawMessage `json:"transactions"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 25.0, resp.Data.Balance)
	assert.Len(t, resp.Data.Transactions, 1)
}

func TestHandler_TopUpValidation(t *testing.T) {
	userID := uuid.New()
	router := setupRouter(NewService(newFakeRepository()), &userID)

	for _, payload := range []string{`{}`, `{"amount":-5}`, `not json`} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/wallet/topup", bytes.NewBufferString(payload)))
		assert.Equal(t, http.StatusBadRequest, w.Code, payload)
	}
}

func TestHandler_WithdrawInsufficient(t *testing.T) {
	userID := uuid.New()
	router := setupRouter(NewService(newFakeRepository()), &userID)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/wallet/withdraw", bytes.NewBufferString(`{"amount":5}`)))
	// no wallet yet, withdrawals never create one
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_Unauthenticated(t *testing.T) {
	router := setupRouter(NewService(newFakeRepository()), nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/wallet", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandler_TransactionsPagination(t *testing.T) {
	userID := uuid.New()
	svc := NewService(newFakeRepository())
	for i := 0; i < 3; i++ {
		_, _ = svc.TopUp(t.Context(), userID, 1)
	}
	router := setupRouter(svc, &userID)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/wallet/transactions?page=1&limit=2", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data []json.RawMessage `json:"data"`
		Meta struct {
			Total      int64 `json:"total"`
			TotalPages int   `json:"total_pages"`
		} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Data, 2)
	assert.Equal(t, int64(3), resp.Meta.Total)
	assert.Equal(t, 2, resp.Meta.TotalPages)
}
