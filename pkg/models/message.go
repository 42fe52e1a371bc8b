package models

import (
	"encoding/json"
)

// Message is the business event envelope exchanged over the broker.
// The two envelope sections are typed; every other top-level field is
// opaque payload that round-trips untouched through decode and encode.
type Message struct {
	DataArea        DataArea        `json:"dataArea"`
	ApplicationArea ApplicationArea `json:"applicationArea"`

	// Extra holds top-level fields outside the envelope sections.
	Extra map[string]json.RawMessage `json:"-"`
}

type DataArea struct {
	Process      Process       `json:"process"`
	Notification *Notification `json:"notification,omitempty"`
}

// Process describes what produced the message.
type Process struct {
	Action string `json:"action"`
}

// ApplicationArea carries envelope metadata. DateCreated may be any JSON
// value; only its presence is validated.
type ApplicationArea struct {
	DateCreated interface{} `json:"dateCreated"`
}

// Notification is the payload of notification-delivery events. When
// RegistrationIDs is empty the handler resolves devices via RecipientID.
type Notification struct {
	ID              string                 `json:"id"`
	Title           string                 `json:"title,omitempty"`
	Body            string                 `json:"body,omitempty"`
	RecipientID     string                 `json:"recipient_id,omitempty"`
	RegistrationIDs []string               `json:"registration_ids,omitempty"`
	Data            map[string]interface{} `json:"data,omitempty"`
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	if raw, ok := fields["dataArea"]; ok {
		if err := json.Unmarshal(raw, &m.DataArea); err != nil {
			return err
		}
		delete(fields, "dataArea")
	}
	if raw, ok := fields["applicationArea"]; ok {
		if err := json.Unmarshal(raw, &m.ApplicationArea); err != nil {
			return err
		}
		delete(fields, "applicationArea")
	}

	if len(fields) > 0 {
		m.Extra = fields
	}
	return nil
}

func (m Message) MarshalJSON() ([]byte, error) {
	fields := make(map[string]json.RawMessage, len(m.Extra)+2)
	for k, v := range m.Extra {
		fields[k] = v
	}

	dataArea, err := json.Marshal(m.DataArea)
	if err != nil {
		return nil, err
	}
	fields["dataArea"] = dataArea

	applicationArea, err := json.Marshal(m.ApplicationArea)
	if err != nil {
		return nil, err
	}
	fields["applicationArea"] = applicationArea

	return json.Marshal(fields)
}

// Decode parses a wire-format message body.
func Decode(body []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}
