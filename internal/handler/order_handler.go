package handler

import (
	"context"
	"net/http"

	"github.com/cloud-wave-best-zizon/eshop-service/internal/auth"
	"github.com/cloud-wave-best-zizon/eshop-service/internal/domain"
	"github.com/cloud-wave-best-zizon/eshop-service/internal/service"
	"github.com/cloud-wave-best-zizon/eshop-service/pkg/middleware"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type OrderService interface {
	CreateOrder(ctx context.Context, req domain.CreateOrderRequest, requestID string) (*domain.Order, error)
	GetOrder(ctx context.Context, id string) (*domain.OrderDetails, error)
	ListOrders(ctx context.Context) ([]domain.OrderSummary, error)
	ListOrdersForUser(ctx context.Context, userID string) ([]domain.Order, error)
	UpdateStatus(ctx context.Context, id string, status domain.OrderStatus, requestID string) (*domain.Order, error)
	DeleteOrder(ctx context.Context, id, requestID string) error
	TotalSales(ctx context.Context) (decimal.Decimal, error)
	CountOrders(ctx context.Context) (int, error)
}

var _ OrderService = (*service.OrderService)(nil)

type OrderHandler struct {
	orderService OrderService
	enforceAdmin bool
	logger       *zap.Logger
}

func NewOrderHandler(orderService OrderService, enforceAdmin bool, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
		enforceAdmin: enforceAdmin,
		logger:       logger,
	}
}

// CreateOrder places an order for the user named in the body, defaulting to
// the caller. With admin enforcement on, non-admins always order for
// themselves.
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req domain.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, bindError(err))
		return
	}

	if claims, ok := auth.ClaimsFrom(c.Request.Context()); ok {
		if req.User == "" || (h.enforceAdmin && !claims.IsAdmin) {
			req.User = claims.UserID
		}
	}

	requestID := c.GetString(middleware.RequestIDKey)
	order, err := h.orderService.CreateOrder(c.Request.Context(), req, requestID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func (h *OrderHandler) GetOrder(c *gin.Context) {
	order, err := h.orderService.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) ListOrders(c *gin.Context) {
	orders, err := h.orderService.ListOrders(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (h *OrderHandler) ListUserOrders(c *gin.Context) {
	orders, err := h.orderService.ListOrdersForUser(c.Request.Context(), c.Param("userid"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	var req domain.UpdateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, bindError(err))
		return
	}
	order, err := h.orderService.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status, c.GetString(middleware.RequestIDKey))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) DeleteOrder(c *gin.Context) {
	if err := h.orderService.DeleteOrder(c.Request.Context(), c.Param("id"), c.GetString(middleware.RequestIDKey)); err != nil {
		respondError(c, h.logger, err)
		return
	}
	deleted(c, "order")
}

func (h *OrderHandler) TotalSales(c *gin.Context) {
	total, err := h.orderService.TotalSales(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"totalsales": total.InexactFloat64()})
}

func (h *OrderHandler) CountOrders(c *gin.Context) {
	n, err := h.orderService.CountOrders(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orderCount": n})
}
