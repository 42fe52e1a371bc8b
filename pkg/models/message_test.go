package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	body := []byte(`{
		"dataArea": {
			"process": {"action": "notify"},
			"notification": {
				"id": "n-1",
				"title": "greetings",
				"recipient_id": "user-7",
				"registration_ids": ["dev1", "dev2"],
				"data": {"deep_link": "/orders/5"}
			}
		},
		"applicationArea": {"dateCreated": "2026-01-15T10:00:00Z"}
	}`)

	msg, err := Decode(body)
	require.NoError(t, err)

	assert.Equal(t, "notify", msg.DataArea.Process.Action)
	assert.Equal(t, "2026-01-15T10:00:00Z", msg.ApplicationArea.DateCreated)

	note := msg.DataArea.Notification
	require.NotNil(t, note)
	assert.Equal(t, "n-1", note.ID)
	assert.Equal(t, "user-7", note.RecipientID)
	assert.Equal(t, []string{"dev1", "dev2"}, note.RegistrationIDs)
	assert.Equal(t, "/orders/5", note.Data["deep_link"])
}

func TestDecodeRejectsMalformedJSON(t *testing.T) {
	_, err := Decode([]byte("{truncated"))
	assert.Error(t, err)
}

func TestMessageRoundTripPreservesUnknownSections(t *testing.T) {
	body := []byte(`{
		"dataArea": {"process": {"action": "notify"}},
		"applicationArea": {"dateCreated": 1763145600},
		"customArea": {"tenant": "acme", "nested": {"deep": [1, 2, 3]}},
		"anotherField": "untouched"
	}`)

	msg, err := Decode(body)
	require.NoError(t, err)

	encoded, err := json.Marshal(msg)
	require.NoError(t, err)

	assert.JSONEq(t, string(body), string(encoded))
}

func TestMessageWithoutNotification(t *testing.T) {
	msg, err := Decode([]byte(`{
		"dataArea": {"process": {"action": "sync"}},
		"applicationArea": {"dateCreated": "2026-01-15"}
	}`))
	require.NoError(t, err)
	assert.Nil(t, msg.DataArea.Notification)
}

func TestNumericDateCreatedSurvivesRoundTrip(t *testing.T) {
	msg, err := Decode([]byte(`{
		"dataArea": {"process": {"action": "notify"}},
		"applicationArea": {"dateCreated": 1763145600}
	}`))
	require.NoError(t, err)

	encoded, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.Contains(t, string(encoded), "1763145600")
}
