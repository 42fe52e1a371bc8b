package push

import (
	"fmt"
)

// OutcomeStatus classifies what happened to one device in a fan-out.
type OutcomeStatus string

const (
	OutcomeSent    OutcomeStatus = "sent"
	OutcomeError   OutcomeStatus = "error"
	OutcomeUnknown OutcomeStatus = "unknown"
)

// DeviceOutcome is the per-device result of a push send, in the same
// order as the request's registration id list.
type DeviceOutcome struct {
	Status         OutcomeStatus `json:"status"`
	RegistrationID string        `json:"registration_id"`
	MessageID      string        `json:"message_id,omitempty"`
	Message        string        `json:"message,omitempty"`
}

// Payload is the request body sent to the push gateway.
type Payload struct {
	RegistrationIDs []string               `json:"registration_ids"`
	Notification    map[string]interface{} `json:"notification,omitempty"`
	Data            map[string]interface{} `json:"data,omitempty"`
}

// Response captures the raw gateway reply together with the registration
// ids it answers for; the gateway correlates results by array position,
// so the ids must travel with the body.
type Response struct {
	StatusCode      int
	ContentType     string
	Body            []byte
	RegistrationIDs []string
}

// GatewayError is a batch-level failure: transport errors, non-200
// replies, and replies whose shape cannot be interpreted.
type GatewayError struct {
	Message    string
	StatusCode int
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("push gateway error (status %d): %s", e.StatusCode, e.Message)
}

const (
	errTimeout               = "TimeoutError"
	errRequest               = "RequestError"
	errInvalidJSONFormat     = "InvalidJSONFormat"
	errUnknownResponseFormat = "UnknownResponseFormat"
	errUnknownContentType    = "UnknownContentType"
)
