package payment

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/campuskit/campuskit/internal/subscription"
)

// Handler provides HTTP endpoints for the payment protocol.
type Handler struct {
	processor *Processor
}

// NewHandler creates a new payment handler.
func NewHandler(p *Processor) *Handler {
	return &Handler{processor: p}
}

// RegisterRoutes sets up the payment routes for tenant sessions.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/subscription/:tenantId/payment/order", h.CreateOrder)
	r.POST("/subscription/:tenantId/payment/verify", h.VerifyPayment)
}

// RegisterAdminRoutes sets up admin reconciliation routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.GET("/payments/pending", h.ListPending)
}

// CreateOrder handles POST /v1/subscription/:tenantId/payment/order.
func (h *Handler) CreateOrder(c *gin.Context) {
	tenantID := c.Param("tenantId")

	var req struct {
		Months int   `json:"months"`
		Amount int64 `json:"amount"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "months and amount required"})
		return
	}

	intent, err := h.processor.CreateOrder(c.Request.Context(), tenantID, req.Months, req.Amount)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidMonths):
			c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": "months must be positive"})
		case errors.Is(err, ErrAmountMismatch):
			c.JSON(http.StatusBadRequest, gin.H{"error": "amount_mismatch", "message": "amount does not match the configured monthly price"})
		case errors.Is(err, subscription.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "no subscription for this tenant"})
		case errors.Is(err, ErrGatewayTimeout):
			c.JSON(http.StatusGatewayTimeout, gin.H{"error": "gateway_timeout", "message": "payment gateway timed out, retry later"})
		case errors.Is(err, ErrGatewayUnavailable):
			c.JSON(http.StatusBadGateway, gin.H{"error": "gateway_error", "message": "payment gateway rejected the order, retry later"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to create order"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"order_id": intent.OrderID,
		"amount":   intent.Amount,
		"months":   intent.Months,
		"status":   intent.Status,
	})
}

// VerifyPayment handles POST /v1/subscription/:tenantId/payment/verify.
func (h *Handler) VerifyPayment(c *gin.Context) {
	tenantID := c.Param("tenantId")

	var req struct {
		OrderID   string `json:"order_id" binding:"required"`
		PaymentID string `json:"payment_id" binding:"required"`
		Signature string `json:"signature" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "order_id, payment_id and signature required"})
		return
	}
	settings, status, err := h.processor.VerifyAndApply(c.Request.Context(), tenantID, req.OrderID, req.PaymentID, req.Signature)
	if err != nil {
		switch {
		case errors.Is(err, ErrVerificationFailed):
			c.JSON(http.StatusBadRequest, gin.H{"error": "verification_failed", "message": "payment could not be verified"})
		case errors.Is(err, ErrReplayOrUnknown):
			c.JSON(http.StatusConflict, gin.H{"error": "replay_or_unknown_order", "message": "order is unknown or already processed"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to apply payment"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"settings": settings,
		"status":   status,
	})
}

// ListPending handles GET /v1/admin/payments/pending.
func (h *Handler) ListPending(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	intents, err := h.processor.ListPending(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to list pending payments"})
		return
	}
	if intents == nil {
		intents = []*Intent{}
	}

	c.JSON(http.StatusOK, gin.H{"intents": intents, "count": len(intents)})
}
