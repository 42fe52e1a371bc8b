package notification

import (
	"context"
	"errors"
	"fmt"

	"notifier/internal/audit"
	"notifier/internal/config"
	"notifier/internal/devices"
	"notifier/internal/locks"
	"notifier/internal/logger"
	"notifier/internal/push"
	"notifier/pkg/models"
)

// Service runs one notification through the suppression gate and out to the
// push gateway, recording the outcome on the audit stream.
type Service struct {
	cfg        config.NotificationConfig
	gate       *locks.Gate
	devices    *devices.Service
	dispatcher *push.Dispatcher
	audit      *audit.Publisher
	logger     logger.Logger
}

func NewService(
	cfg config.NotificationConfig,
	gate *locks.Gate,
	deviceService *devices.Service,
	dispatcher *push.Dispatcher,
	auditPublisher *audit.Publisher,
	log logger.Logger,
) *Service {
	return &Service{
		cfg:        cfg,
		gate:       gate,
		devices:    deviceService,
		dispatcher: dispatcher,
		audit:      auditPublisher,
		logger:     log,
	}
}

// Process delivers one notification. A nil error means the message is done
// with, whether it was sent, suppressed, or had nothing to send to; an
// error means processing should be retried.
func (s *Service) Process(ctx context.Context, msg models.Message) error {
	note := msg.DataArea.Notification
	if note == nil {
		s.logger.WarnwCtx(ctx, "Message carries no notification payload, skipping",
			"action", msg.DataArea.Process.Action,
		)
		return nil
	}

	registrationIDs, err := s.resolveTargets(ctx, note)
	if err != nil {
		return fmt.Errorf("failed to resolve notification targets: %w", err)
	}
	if len(registrationIDs) == 0 {
		s.logger.InfowCtx(ctx, "Notification has no target devices",
			"notification_id", note.ID,
		)
		return nil
	}

	eval, err := s.gate.Evaluate(ctx, note.ID, registrationIDs)
	if err != nil {
		return fmt.Errorf("lock evaluation failed: %w", err)
	}

	if eval.Suppressed {
		s.logger.InfowCtx(ctx, "Notification suppressed by active lock",
			"notification_id", note.ID,
		)
		return nil
	}

	eligible := eval.EligibleDevices(registrationIDs)
	if len(eligible) == 0 {
		s.logger.InfowCtx(ctx, "All target devices are locked",
			"notification_id", note.ID,
			"devices", len(registrationIDs),
		)
		return nil
	}

	targets, err := s.acquireLocks(ctx, note.ID, eligible)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		s.logger.InfowCtx(ctx, "Notification already claimed by another consumer",
			"notification_id", note.ID,
		)
		return nil
	}

	outcomes, multicastID, err := s.dispatcher.Dispatch(ctx, push.Payload{
		RegistrationIDs: targets,
		Notification:    notificationBody(note),
		Data:            note.Data,
	})
	if err != nil {
		s.recordAudit(ctx, audit.Record{
			NotificationID: note.ID,
			Action:         msg.DataArea.Process.Action,
			Error:          err.Error(),
		})
		return fmt.Errorf("push dispatch failed: %w", err)
	}

	s.recordAudit(ctx, audit.Record{
		NotificationID: note.ID,
		MulticastID:    multicastID,
		Action:         msg.DataArea.Process.Action,
		Outcomes:       outcomes,
	})

	s.logger.InfowCtx(ctx, "Notification dispatched",
		"notification_id", note.ID,
		"devices", len(eligible),
		"multicast_id", multicastID,
	)
	return nil
}

// resolveTargets prefers explicit registration ids over a recipient lookup.
func (s *Service) resolveTargets(ctx context.Context, note *models.Notification) ([]string, error) {
	if len(note.RegistrationIDs) > 0 {
		return note.RegistrationIDs, nil
	}
	if note.RecipientID == "" {
		return nil, nil
	}
	return s.devices.RegistrationIDs(ctx, note.RecipientID)
}

// acquireLocks writes the message lock and one device lock per target
// before the gateway call, so a redelivery of the same message is
// suppressed even if the send below fails mid-flight. Losing the message
// lock race means another consumer owns this notification and nothing is
// sent; losing a device lock race drops only that device.
func (s *Service) acquireLocks(ctx context.Context, notificationID string, deviceIDs []string) ([]string, error) {
	if s.cfg.MessageLockSeconds > 0 {
		err := s.gate.AddLock(ctx, locks.LockTypeMessage, s.cfg.MessageLockSeconds, "", notificationID)
		if errors.Is(err, locks.ErrAlreadyLocked) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
	}

	if s.cfg.DeviceLockSeconds <= 0 {
		return deviceIDs, nil
	}

	targets := make([]string, 0, len(deviceIDs))
	for _, deviceID := range deviceIDs {
		err := s.gate.AddLock(ctx, locks.LockTypeDevice, s.cfg.DeviceLockSeconds, deviceID, notificationID)
		if errors.Is(err, locks.ErrAlreadyLocked) {
			continue
		}
		if err != nil {
			return nil, err
		}
		targets = append(targets, deviceID)
	}

	return targets, nil
}

func (s *Service) recordAudit(ctx context.Context, record audit.Record) {
	if err := s.audit.Publish(ctx, record); err != nil {
		s.logger.ErrorwCtx(ctx, "Failed to publish audit record",
			"notification_id", record.NotificationID,
			"error", err,
		)
	}
}

func notificationBody(note *models.Notification) map[string]interface{} {
	body := map[string]interface{}{}
	if note.Title != "" {
		body["title"] = note.Title
	}
	if note.Body != "" {
		body["body"] = note.Body
	}
	if len(body) == 0 {
		return nil
	}
	return body
}
