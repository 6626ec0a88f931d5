package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/taskhive/task-marketplace/settlement-service/internal/handlers"
	"github.com/taskhive/task-marketplace/settlement-service/internal/telemetry"
)

func NewRouter(paymentHandler *handlers.PaymentHandler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(telemetry.TracingMiddleware())

	// Prometheus metrics
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "settlement-service"})
	})

	// Payment routes
	r.POST("/payments", paymentHandler.CreatePayment)
	r.GET("/payments/:id", paymentHandler.GetPayment)
	r.POST("/payments/:id/refunds", paymentHandler.ProcessRefund)
	r.GET("/payments/:id/refunds", paymentHandler.ListRefunds)
	r.GET("/statistics", paymentHandler.GetStatistics)

	return r
}
