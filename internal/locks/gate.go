package locks

import (
	"context"
	"fmt"
	"time"

	"notifier/internal/logger"
	"notifier/pkg/metrics"
)

// Evaluation is the outcome of a gate check for one notification fan-out.
// When Suppressed is set the whole batch must not be sent. Otherwise
// Devices maps device ids to their lock status; devices absent from the
// map are eligible.
type Evaluation struct {
	Suppressed bool
	Devices    map[string]LockStatus
}

// EligibleDevices filters the candidate list down to devices without a
// blocking lock, preserving input order.
func (e *Evaluation) EligibleDevices(candidates []string) []string {
	if e.Suppressed {
		return nil
	}

	eligible := make([]string, 0, len(candidates))
	for _, id := range candidates {
		if e.Devices[id] != LockStatusExists {
			eligible = append(eligible, id)
		}
	}
	return eligible
}

// Gate makes suppression decisions from TTL lock records. The policy is
// two-tier: an unexpired global or message lock short-circuits the whole
// batch, while device locks throttle individual devices.
//
// Lock evaluation and lock creation are separate operations with no
// in-process exclusivity; correctness against duplicate-send races rests
// on the storage layer (see the unique lock index in pkg/migrations).
type Gate struct {
	repo   Repository
	logger logger.Logger
	now    func() time.Time
}

func NewGate(repo Repository, log logger.Logger) *Gate {
	return &Gate{
		repo:   repo,
		logger: log,
		now:    time.Now,
	}
}

// AddLock inserts a suppression record; created_at is set by the store.
func (g *Gate) AddLock(ctx context.Context, lockType LockType, timeoutSeconds int, deviceID, messageID string) error {
	lock := &Lock{
		Type:          lockType,
		TimeoutPeriod: timeoutSeconds,
		DeviceID:      deviceID,
		MessageID:     messageID,
	}

	if err := g.repo.Insert(ctx, lock); err != nil {
		return fmt.Errorf("failed to add %s lock: %w", lockType, err)
	}

	metrics.LocksCreatedTotal.WithLabelValues(string(lockType)).Inc()
	return nil
}

// Evaluate decides which of the target devices may receive the
// notification. A suppressed result means send nothing.
func (g *Gate) Evaluate(ctx context.Context, notificationID string, deviceIDs []string) (*Evaluation, error) {
	found, err := g.repo.FindForEvaluation(ctx, notificationID, deviceIDs)
	if err != nil {
		g.logger.ErrorwCtx(ctx, "Failed to retrieve message locks",
			"notification_id", notificationID,
			"error", err,
		)
		metrics.LockEvaluationsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	eval := &Evaluation{
		Devices: make(map[string]LockStatus),
	}
	now := g.now()

	for _, lock := range found {
		if lock.Expired(now) {
			if lock.Type == LockTypeDevice {
				eval.Devices[lock.DeviceID] = LockStatusExpired
			}
			continue
		}

		switch lock.Type {
		case LockTypeGlobal:
			eval.Suppressed = true
		case LockTypeMessage:
			if lock.MessageID == notificationID {
				eval.Suppressed = true
			}
		case LockTypeDevice:
			eval.Devices[lock.DeviceID] = LockStatusExists
		}
	}

	if eval.Suppressed {
		metrics.LockEvaluationsTotal.WithLabelValues("suppressed").Inc()
	} else {
		metrics.LockEvaluationsTotal.WithLabelValues("allowed").Inc()
	}

	return eval, nil
}

// List returns the locks matching the query.
func (g *Gate) List(ctx context.Context, q Query) ([]Lock, error) {
	return g.repo.Find(ctx, q)
}

// RemoveLocks deletes every lock matching the query. This is an
// unconditional delete-by-query; keep queries narrow.
func (g *Gate) RemoveLocks(ctx context.Context, q Query) (int64, error) {
	removed, err := g.repo.DeleteMany(ctx, q)
	if err != nil {
		g.logger.ErrorwCtx(ctx, "Failed to delete lock data",
			"query_type", string(q.Type),
			"error", err,
		)
		return 0, err
	}
	return removed, nil
}
