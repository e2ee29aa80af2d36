// Package api exposes the bridge to the hosting application's frontend
// over HTTP.
package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/polishcrew/syncbridge/internal/assets"
	"github.com/polishcrew/syncbridge/internal/state"
	"github.com/polishcrew/syncbridge/pkg/types"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Bridge is the façade surface the handlers need.
type Bridge interface {
	Bootstrap(ctx context.Context, st *state.State) types.SyncResult
	CreateBooking(ctx context.Context, req types.BookingRequest) (types.BookingResult, error)
	CreateStripeCheckout(ctx context.Context, payload json.RawMessage) (types.CheckoutResult, error)
	State() *state.State
	StateJSON() ([]byte, error)
	Initialised() bool
}

// Drainer is the queue surface the handlers need.
type Drainer interface {
	Drain(ctx context.Context) error
	Depth(ctx context.Context) int
}

// Handler handles HTTP API requests.
type Handler struct {
	bridge  Bridge
	drainer Drainer
	online  func() bool
}

// NewHandler creates a new API handler. online may be nil when no
// connectivity watcher is running.
func NewHandler(bridge Bridge, drainer Drainer, online func() bool) *Handler {
	if online == nil {
		online = func() bool { return false }
	}
	return &Handler{
		bridge:  bridge,
		drainer: drainer,
		online:  online,
	}
}

// SetupRoutes configures the API routes.
func SetupRoutes(router *gin.Engine, handler *Handler, cache *assets.Cache) {
	api := router.Group("/api/v1")
	{
		api.POST("/sync/bootstrap", handler.Bootstrap)
		api.POST("/sync/flush", handler.Flush)
		api.GET("/state", handler.GetState)
		api.POST("/bookings", handler.CreateBooking)
		api.POST("/checkout", handler.CreateCheckout)
	}

	router.GET("/health", handler.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if cache != nil {
		router.Any("/app/*filepath", cache.Handler())
	}
}

// Bootstrap re-runs a fetch+merge cycle against the bound local state.
func (h *Handler) Bootstrap(c *gin.Context) {
	st := h.bridge.State()
	if st == nil {
		st = state.New()
	}
	result := h.bridge.Bootstrap(c.Request.Context(), st)
	c.JSON(http.StatusOK, result)
}

// Flush triggers a manual queue drain.
func (h *Handler) Flush(c *gin.Context) {
	if err := h.drainer.Drain(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, types.ErrorResponse{
			Error:   "flush failed",
			Message: err.Error(),
			Code:    500,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "flushed",
		"pending": h.drainer.Depth(c.Request.Context()),
	})
}

// GetState returns the current local state tree. Marshalling happens
// inside the bridge lock so a concurrent bootstrap cannot tear the tree.
func (h *Handler) GetState(c *gin.Context) {
	raw, err := h.bridge.StateJSON()
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.ErrorResponse{
			Error:   "state unavailable",
			Message: err.Error(),
			Code:    500,
		})
		return
	}
	if raw == nil {
		c.JSON(http.StatusNotFound, types.ErrorResponse{
			Error:   "state not initialised",
			Message: "bootstrap has not run",
			Code:    404,
		})
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", raw)
}

// CreateBooking creates or queues a booking.
func (h *Handler) CreateBooking(c *gin.Context) {
	var req types.BookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{
			Error:   "invalid request",
			Message: err.Error(),
			Code:    400,
		})
		return
	}

	result, err := h.bridge.CreateBooking(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusBadGateway, types.ErrorResponse{
			Error:   "booking failed",
			Message: err.Error(),
			Code:    502,
		})
		return
	}

	if result.Queued {
		c.JSON(http.StatusAccepted, result)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// CreateCheckout creates or queues a checkout session.
func (h *Handler) CreateCheckout(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil || !json.Valid(payload) {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{
			Error:   "invalid request",
			Message: "body must be a JSON document",
			Code:    400,
		})
		return
	}

	result, checkoutErr := h.bridge.CreateStripeCheckout(c.Request.Context(), payload)
	if checkoutErr != nil {
		c.JSON(http.StatusBadGateway, types.ErrorResponse{
			Error:   "checkout failed",
			Message: checkoutErr.Error(),
			Code:    502,
		})
		return
	}

	if result.Queued {
		c.JSON(http.StatusAccepted, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

// HealthCheck provides service health information.
func (h *Handler) HealthCheck(c *gin.Context) {
	status := "healthy"
	if !h.online() {
		status = "degraded"
	}

	c.JSON(http.StatusOK, types.HealthResponse{
		Status:      status,
		Timestamp:   time.Now(),
		Version:     "1.0.0",
		Online:      h.online(),
		Initialised: h.bridge.Initialised(),
		QueueDepth:  h.drainer.Depth(c.Request.Context()),
	})
}
