package subscription

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campuskit/campuskit/internal/validation"
)

// Handler provides HTTP endpoints for subscription state.
type Handler struct {
	service      *Service
	defaultPrice int64
}

// NewHandler creates a new subscription handler.
func NewHandler(service *Service, defaultPrice int64) *Handler {
	return &Handler{service: service, defaultPrice: defaultPrice}
}

// RegisterRoutes sets up the per-tenant subscription routes. The read is
// open to tenant sessions; the edit shares the path but takes the admin
// guard as route middleware.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup, adminOnly gin.HandlerFunc) {
	r.GET("/subscription/:tenantId", h.GetSubscription)
	r.PUT("/subscription/:tenantId", adminOnly, h.UpdateSubscription)
}

// RegisterAdminRoutes sets up admin-only collection routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/subscriptions", h.CreateSubscription)
	r.GET("/subscriptions", h.ListSubscriptions)
}

// GetSubscription handles GET /v1/subscription/:tenantId.
func (h *Handler) GetSubscription(c *gin.Context) {
	tenantID := c.Param("tenantId")

	settings, status, err := h.service.Get(c.Request.Context(), tenantID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "no subscription for this tenant"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to load subscription"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"settings": settings, "status": status})
}

// UpdateSubscription handles PUT /v1/subscription/:tenantId (admin only).
func (h *Handler) UpdateSubscription(c *gin.Context) {
	tenantID := c.Param("tenantId")

	var patch AdminPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "malformed patch body"})
		return
	}

	result, err := h.service.ApplyAdminEdit(c.Request.Context(), tenantID, patch)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidPrice):
			c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": "monthly price must be positive"})
		case errors.Is(err, ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "no subscription for this tenant"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to apply edit"})
		}
		return
	}

	c.JSON(http.StatusOK, result)
}

// CreateSubscription handles POST /v1/admin/subscriptions (initial setup).
func (h *Handler) CreateSubscription(c *gin.Context) {
	var req struct {
		TenantID     string `json:"tenant_id" binding:"required"`
		MonthlyPrice int64  `json:"monthly_price"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "tenant_id required"})
		return
	}
	if !validation.IsValidTenantID(req.TenantID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": "tenant_id must be lowercase alphanumeric with hyphens or underscores"})
		return
	}

	price := req.MonthlyPrice
	if price == 0 {
		price = h.defaultPrice
	}

	settings, err := h.service.Setup(c.Request.Context(), req.TenantID, price)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidPrice):
			c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": "monthly price must be positive"})
		case errors.Is(err, ErrTenantExists):
			c.JSON(http.StatusConflict, gin.H{"error": "already_exists", "message": "tenant already set up"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to set up subscription"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"settings": settings, "status": Resolve(settings, h.service.now())})
}

// ListSubscriptions handles GET /v1/admin/subscriptions.
func (h *Handler) ListSubscriptions(c *gin.Context) {
	results, err := h.service.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to list subscriptions"})
		return
	}
	if results == nil {
		results = []*EditResult{}
	}
	c.JSON(http.StatusOK, gin.H{"subscriptions": results, "count": len(results)})
}
