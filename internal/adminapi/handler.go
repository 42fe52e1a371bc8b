package adminapi

import (
	stderrors "errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"notifier/internal/devices"
	"notifier/internal/locks"
	"notifier/internal/logger"
	"notifier/pkg/errors"
)

// Handler exposes the operational surface of the consumer: lock
// administration, device registration, and a status probe.
type Handler struct {
	gate    *locks.Gate
	devices *devices.Service
	logger  logger.Logger
	started time.Time
}

func NewHandler(gate *locks.Gate, deviceService *devices.Service, log logger.Logger) *Handler {
	return &Handler{
		gate:    gate,
		devices: deviceService,
		logger:  log,
		started: time.Now(),
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	{
		lockRoutes := v1.Group("/locks")
		{
			lockRoutes.GET("", h.ListLocks)
			lockRoutes.POST("", h.CreateLock)
			lockRoutes.DELETE("", h.DeleteLocks)
		}

		deviceRoutes := v1.Group("/devices")
		{
			deviceRoutes.POST("", h.RegisterDevice)
			deviceRoutes.GET("/:user_id", h.GetUserDevices)
		}

		v1.GET("/status", h.Status)
	}
}

func (h *Handler) handleError(c *gin.Context, err error) {
	h.logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)
	c.JSON(errors.ToHTTPStatus(err), errors.ToErrorResponse(err))
}

func (h *Handler) ListLocks(c *gin.Context) {
	query := locks.Query{
		Type:      locks.LockType(c.Query("type")),
		DeviceID:  c.Query("device_id"),
		MessageID: c.Query("message_id"),
	}

	found, err := h.gate.List(c.Request.Context(), query)
	if err != nil {
		h.handleError(c, errors.ErrInternal.WithCause(err))
		return
	}

	c.JSON(http.StatusOK, found)
}

type createLockRequest struct {
	Type           string `json:"type" binding:"required,oneof=global message device"`
	TimeoutSeconds int    `json:"timeout_seconds" binding:"required,min=1"`
	DeviceID       string `json:"device_id"`
	MessageID      string `json:"message_id"`
}

func (h *Handler) CreateLock(c *gin.Context) {
	var req createLockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	err := h.gate.AddLock(c.Request.Context(), locks.LockType(req.Type), req.TimeoutSeconds, req.DeviceID, req.MessageID)
	if err != nil {
		if stderrors.Is(err, locks.ErrAlreadyLocked) {
			h.handleError(c, errors.ErrConflict.WithCause(err))
			return
		}
		h.handleError(c, errors.ErrInternal.WithCause(err))
		return
	}

	c.Status(http.StatusCreated)
}

func (h *Handler) DeleteLocks(c *gin.Context) {
	query := locks.Query{
		Type:      locks.LockType(c.Query("type")),
		DeviceID:  c.Query("device_id"),
		MessageID: c.Query("message_id"),
	}

	// An empty query would drop every lock in the store.
	if query.Type == "" && query.DeviceID == "" && query.MessageID == "" {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(
			errors.ErrValidation.WithDetail("message", "at least one of type, device_id, message_id is required")))
		return
	}

	removed, err := h.gate.RemoveLocks(c.Request.Context(), query)
	if err != nil {
		h.handleError(c, errors.ErrInternal.WithCause(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

type registerDeviceRequest struct {
	UserID         string `json:"user_id" binding:"required"`
	RegistrationID string `json:"registration_id" binding:"required"`
	Platform       string `json:"platform"`
}

func (h *Handler) RegisterDevice(c *gin.Context) {
	var req registerDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	device := &devices.Device{
		UserID:         req.UserID,
		RegistrationID: req.RegistrationID,
		Platform:       req.Platform,
	}
	if err := h.devices.Register(c.Request.Context(), device); err != nil {
		h.handleError(c, errors.ErrInternal.WithCause(err))
		return
	}

	c.JSON(http.StatusCreated, device)
}

func (h *Handler) GetUserDevices(c *gin.Context) {
	ids, err := h.devices.RegistrationIDs(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		h.handleError(c, errors.ErrInternal.WithCause(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"registration_ids": ids})
}

func (h *Handler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"uptime":     time.Since(h.started).String(),
		"started_at": h.started,
	})
}
