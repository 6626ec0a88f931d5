package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/taskhive/task-marketplace/settlement-service/internal/interfaces"
	"github.com/taskhive/task-marketplace/settlement-service/internal/models"
	"github.com/taskhive/task-marketplace/settlement-service/internal/service"
	"github.com/taskhive/task-marketplace/settlement-service/internal/telemetry"
)

type PaymentHandler struct {
	payments  interfaces.PaymentRepository
	processor *service.PaymentProcessor
	refunds   *service.RefundProcessor
	stats     *service.StatsAggregator
}

func NewPaymentHandler(
	payments interfaces.PaymentRepository,
	processor *service.PaymentProcessor,
	refunds *service.RefundProcessor,
	stats *service.StatsAggregator,
) *PaymentHandler {
	return &PaymentHandler{
		payments:  payments,
		processor: processor,
		refunds:   refunds,
		stats:     stats,
	}
}

// caller reads the identity resolved by the upstream auth layer.
func caller(c *gin.Context) (models.Caller, bool) {
	userID, err := uuid.Parse(c.GetHeader("X-User-ID"))
	if err != nil {
		return models.Caller{}, false
	}
	role := models.Role(c.GetHeader("X-User-Role"))
	if role == "" {
		role = models.RoleUser
	}
	return models.Caller{UserID: userID, Role: role}, true
}

type createPaymentBody struct {
	TaskID uuid.UUID       `json:"task_id" binding:"required"`
	Amount decimal.Decimal `json:"amount" binding:"required"`
	Method string          `json:"method" binding:"required"`
}

func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	who, ok := caller(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing caller identity"})
		return
	}

	var body createPaymentBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	payment, err := h.processor.CreatePayment(c.Request.Context(), service.CreatePaymentRequest{
		PayerID: who.UserID,
		TaskID:  body.TaskID,
		Amount:  body.Amount,
		Method:  body.Method,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, payment)
}

type refundBody struct {
	Amount decimal.Decimal `json:"amount" binding:"required"`
	Reason string          `json:"reason" binding:"required"`
}

func (h *PaymentHandler) ProcessRefund(c *gin.Context) {
	who, ok := caller(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing caller identity"})
		return
	}

	paymentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payment id"})
		return
	}

	var body refundBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	refund, err := h.refunds.ProcessRefund(c.Request.Context(), service.RefundRequest{
		PaymentID: paymentID,
		Amount:    body.Amount,
		Reason:    body.Reason,
		Caller:    who,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, refund)
}

func (h *PaymentHandler) GetPayment(c *gin.Context) {
	paymentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payment id"})
		return
	}

	payment, err := h.payments.FindByID(c.Request.Context(), paymentID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, payment)
}

func (h *PaymentHandler) ListRefunds(c *gin.Context) {
	paymentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payment id"})
		return
	}

	refunds, err := h.payments.ListRefunds(c.Request.Context(), paymentID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"refunds": refunds})
}

func (h *PaymentHandler) GetStatistics(c *gin.Context) {
	from, ok := parseTime(c, "from")
	if !ok {
		return
	}
	to, ok := parseTime(c, "to")
	if !ok {
		return
	}

	stats, err := h.stats.GetStatistics(c.Request.Context(), from, to)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func parseTime(c *gin.Context, key string) (*time.Time, bool) {
	raw := c.Query(key)
	if raw == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + key + " timestamp, want RFC3339"})
		return nil, false
	}
	return &t, true
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrPaymentFailed), errors.Is(err, models.ErrRefundFailed):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrGatewayTimeout):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
	default:
		telemetry.Logger.Error("Unhandled error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
