package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"settlement-service/internal/apperr"
	"settlement-service/internal/models"
	"settlement-service/internal/service"
	"settlement-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	headerUserID         = "X-User-ID"
	headerIdempotencyKey = "Idempotency-Key"

	codeInvalidRequest = "INVALID_REQUEST"
	codeUnavailable    = "UNAVAILABLE"
)

// Settler runs one settlement attempt synchronously
type Settler interface {
	ConfirmPayment(ctx context.Context, req *service.ConfirmRequest) (*service.ConfirmResponse, error)
}

// RequestPublisher enqueues a settlement for asynchronous processing
type RequestPublisher interface {
	PublishSettlementRequested(ctx context.Context, event *models.SettlementRequestedEvent) error
}

// Pinger reports whether a dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	settler  Settler
	payments *service.PaymentService
	requests RequestPublisher
	pingers  map[string]Pinger
	logger   *zap.Logger
}

// NewHandler creates a new HTTP handler. requests may be nil, which disables
// the asynchronous confirm endpoint.
func NewHandler(settler Settler, payments *service.PaymentService, requests RequestPublisher) *Handler {
	return &Handler{
		settler:  settler,
		payments: payments,
		requests: requests,
		pingers:  make(map[string]Pinger),
		logger:   util.GetLogger(),
	}
}

// WithReadinessCheck adds a dependency to /ready
func (h *Handler) WithReadinessCheck(name string, pinger Pinger) *Handler {
	h.pingers[name] = pinger
	return h
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/payments/confirm", h.confirmPayment)
		v1.POST("/payments/confirm/async", h.confirmPaymentAsync)
		v1.GET("/payments/:id", h.getPayment)
		v1.GET("/orders/:orderNo/payments", h.getOrderPayments)
		v1.GET("/payment-logs/manual-checks", h.listManualChecks)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every registered dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := make(gin.H, len(h.pingers))
	ready := true
	for name, pinger := range h.pingers {
		if err := pinger.Ping(ctx); err != nil {
			checks[name] = err.Error()
			ready = false
			continue
		}
		checks[name] = "ok"
	}

	status := http.StatusOK
	state := "ready"
	if !ready {
		status = http.StatusServiceUnavailable
		state = "not_ready"
	}

	c.JSON(status, gin.H{
		"status": state,
		"checks": checks,
		"time":   time.Now().Unix(),
	})
}

// confirmPayment runs the settlement saga and answers with its outcome
func (h *Handler) confirmPayment(c *gin.Context) {
	req, ok := h.bindConfirmRequest(c)
	if !ok {
		return
	}

	resp, err := h.settler.ConfirmPayment(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// confirmPaymentAsync enqueues the settlement and returns a handle
func (h *Handler) confirmPaymentAsync(c *gin.Context) {
	if h.requests == nil {
		c.JSON(http.StatusServiceUnavailable, errorBody(codeUnavailable, string(apperr.CategoryInternal), "asynchronous settlement is disabled"))
		return
	}

	req, ok := h.bindConfirmRequest(c)
	if !ok {
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = uuid.New().String()
	}

	event := &models.SettlementRequestedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeSettlementRequested,
			Timestamp: time.Now(),
		},
		UserID:         req.UserID,
		OrderNo:        req.OrderNo,
		Provider:       req.Provider,
		SettlementType: req.SettlementType,
		Amount:         req.Amount,
		PaymentKey:     req.PaymentKey,
		IdempotencyKey: req.IdempotencyKey,
	}

	if err := h.requests.PublishSettlementRequested(c.Request.Context(), event); err != nil {
		h.logger.Error("Failed to enqueue settlement", zap.String("order_no", req.OrderNo), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, errorBody(codeUnavailable, string(apperr.CategoryInternal), "failed to enqueue settlement"))
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status":          "QUEUED",
		"event_id":        event.EventID,
		"order_no":        req.OrderNo,
		"idempotency_key": req.IdempotencyKey,
	})
}

// getPayment returns a payment with its audit trail
func (h *Handler) getPayment(c *gin.Context) {
	paymentID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody(codeInvalidRequest, string(apperr.CategoryRejected), "invalid payment id"))
		return
	}

	detail, err := h.payments.GetPayment(c.Request.Context(), paymentID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, detail)
}

// getOrderPayments returns every settlement attempt of an order
func (h *Handler) getOrderPayments(c *gin.Context) {
	payments, err := h.payments.GetPaymentsByOrderNo(c.Request.Context(), c.Param("orderNo"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payments": payments})
}

// listManualChecks returns the newest entries awaiting reconciliation
func (h *Handler) listManualChecks(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorBody(codeInvalidRequest, string(apperr.CategoryRejected), "invalid limit"))
			return
		}
		limit = parsed
	}

	logs, err := h.payments.ListManualChecks(c.Request.Context(), limit)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"logs": logs})
}

func (h *Handler) bindConfirmRequest(c *gin.Context) (*service.ConfirmRequest, bool) {
	userID, err := strconv.ParseInt(c.GetHeader(headerUserID), 10, 64)
	if err != nil || userID <= 0 {
		c.JSON(http.StatusUnauthorized, errorBody(codeInvalidRequest, string(apperr.CategoryRejected), "missing or invalid "+headerUserID+" header"))
		return nil, false
	}

	var req service.ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(codeInvalidRequest, string(apperr.CategoryRejected), err.Error()))
		return nil, false
	}

	req.UserID = userID
	req.IdempotencyKey = c.GetHeader(headerIdempotencyKey)
	return &req, true
}

func (h *Handler) respondError(c *gin.Context, err error) {
	code := apperr.CodeOf(err)
	message := err.Error()

	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		message = appErr.Message
	}
	if code == apperr.CodeInternal {
		h.logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
		message = "internal error"
	}

	c.JSON(apperr.HTTPStatus(code), errorBody(string(code), string(apperr.CategoryOf(code)), message))
}

func errorBody(code, category, message string) gin.H {
	return gin.H{
		"code":     code,
		"category": category,
		"message":  message,
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
