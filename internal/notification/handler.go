package notification

import (
	"context"

	"notifier/internal/logger"
	"notifier/pkg/models"
)

// Handler adapts the notification service to the broker consumer contract.
// The returned bool is the ack decision: true acknowledges, false rejects
// the delivery for redelivery or dead-lettering per queue policy.
type Handler struct {
	service *Service
	logger  logger.Logger
}

func NewHandler(service *Service, log logger.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  log,
	}
}

func (h *Handler) HandleMessage(ctx context.Context, msg models.Message) bool {
	if err := h.service.Process(ctx, msg); err != nil {
		h.logger.ErrorwCtx(ctx, "Notification processing failed",
			"action", msg.DataArea.Process.Action,
			"error", err,
		)
		return false
	}
	return true
}
