package devices

import (
	"time"
)

// Device is one push-capable app installation registered by a user.
type Device struct {
	ID             string    `bson:"_id,omitempty" json:"id"`
	UserID         string    `bson:"user_id" json:"user_id"`
	RegistrationID string    `bson:"registration_id" json:"registration_id"`
	Platform       string    `bson:"platform,omitempty" json:"platform,omitempty"`
	CreatedAt      time.Time `bson:"created_at" json:"created_at"`
}
