package locks

import (
	"time"
)

type LockType string

const (
	// LockTypeGlobal suppresses every notification while unexpired.
	LockTypeGlobal LockType = "global"
	// LockTypeMessage suppresses one notification across all devices.
	LockTypeMessage LockType = "message"
	// LockTypeDevice suppresses delivery to a single device.
	LockTypeDevice LockType = "device"
)

// LockStatus is the per-device verdict returned by Evaluate.
type LockStatus string

const (
	// LockStatusExists blocks delivery to the device.
	LockStatusExists LockStatus = "exists"
	// LockStatusExpired is informational; the device stays eligible.
	LockStatusExpired LockStatus = "expired"
)

// Lock is a TTL-scoped suppression record. Expiry is computed, never
// stored; an expired-but-not-deleted lock is inert on every read path.
type Lock struct {
	ID            string   `bson:"_id,omitempty"`
	Type          LockType `bson:"type"`
	DeviceID      string   `bson:"device_id,omitempty"`
	MessageID     string   `bson:"message_id,omitempty"`
	TimeoutPeriod int      `bson:"timeout_period"` // seconds
	CreatedAt     time.Time `bson:"created_at"`
}

// ExpiresAt computes created_at + timeout_period.
func (l Lock) ExpiresAt() time.Time {
	return l.CreatedAt.Add(time.Duration(l.TimeoutPeriod) * time.Second)
}

// Expired reports whether the lock has lapsed at the given instant. The
// boundary is exclusive: a lock is still live at exactly its expiry time.
// A lock missing created_at cannot be judged valid and counts as expired.
func (l Lock) Expired(now time.Time) bool {
	if l.CreatedAt.IsZero() {
		return true
	}
	return now.After(l.ExpiresAt())
}

// Query selects locks by exact field match; zero values match anything.
type Query struct {
	Type      LockType
	DeviceID  string
	MessageID string
}
