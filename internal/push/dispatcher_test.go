package push

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notifier/internal/config"
	"notifier/internal/logger"
)

func newTestDispatcher(url string) *Dispatcher {
	return NewDispatcher(config.PushGatewayConfig{
		URL:            url,
		APIKey:         "test-key",
		RequestTimeout: 2 * time.Second,
	}, nil, logger.NopLogger())
}

func gatewayStub(t *testing.T, contentType string, status int, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "key=test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestDispatchCorrelatesOutcomesByPosition(t *testing.T) {
	body := `{
		"multicast_id": 216,
		"success": 2,
		"failure": 1,
		"results": [
			{"message_id": "1:0101"},
			{"error": "NotRegistered"},
			{"message_id": "1:0102"}
		]
	}`
	server := gatewayStub(t, "application/json", http.StatusOK, body)
	dispatcher := newTestDispatcher(server.URL)

	outcomes, multicastID, err := dispatcher.Dispatch(context.Background(), Payload{
		RegistrationIDs: []string{"dev1", "dev2", "dev3"},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(216), multicastID)
	require.Len(t, outcomes, 3)

	assert.Equal(t, OutcomeSent, outcomes[0].Status)
	assert.Equal(t, "dev1", outcomes[0].RegistrationID)
	assert.Equal(t, "1:0101", outcomes[0].MessageID)

	assert.Equal(t, OutcomeError, outcomes[1].Status)
	assert.Equal(t, "dev2", outcomes[1].RegistrationID)
	assert.Equal(t, "NotRegistered", outcomes[1].Message)

	assert.Equal(t, OutcomeSent, outcomes[2].Status)
	assert.Equal(t, "dev3", outcomes[2].RegistrationID)
}

func TestDispatchResultWithNeitherFieldIsUnknown(t *testing.T) {
	body := `{"multicast_id": 1, "success": 0, "failure": 0, "results": [{}]}`
	server := gatewayStub(t, "application/json", http.StatusOK, body)
	dispatcher := newTestDispatcher(server.URL)

	outcomes, _, err := dispatcher.Dispatch(context.Background(), Payload{RegistrationIDs: []string{"dev1"}})
	require.NoError(t, err)

	require.Len(t, outcomes, 1)
	assert.Equal(t, OutcomeUnknown, outcomes[0].Status)
	assert.Equal(t, "UnknownResponseFormat", outcomes[0].Message)
}

func TestDispatchTextPlainBecomesValidationError(t *testing.T) {
	server := gatewayStub(t, "text/plain", http.StatusOK, "some preamble Error=InvalidRegistration")
	dispatcher := newTestDispatcher(server.URL)

	outcomes, _, err := dispatcher.Dispatch(context.Background(), Payload{RegistrationIDs: []string{"dev1"}})
	require.Error(t, err)
	assert.Nil(t, outcomes)

	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, "InvalidRegistration", gwErr.Message)
	assert.Equal(t, http.StatusBadRequest, gwErr.StatusCode)
}

func TestDispatchNon200IsBatchError(t *testing.T) {
	server := gatewayStub(t, "text/plain", http.StatusUnauthorized, "invalid api key")
	dispatcher := newTestDispatcher(server.URL)

	_, _, err := dispatcher.Dispatch(context.Background(), Payload{RegistrationIDs: []string{"dev1"}})
	require.Error(t, err)

	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, http.StatusUnauthorized, gwErr.StatusCode)
	assert.Equal(t, "invalid api key", gwErr.Message)
}

func TestDispatchMalformedJSON(t *testing.T) {
	server := gatewayStub(t, "application/json", http.StatusOK, "{not valid json")
	dispatcher := newTestDispatcher(server.URL)

	_, _, err := dispatcher.Dispatch(context.Background(), Payload{RegistrationIDs: []string{"dev1"}})

	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, "InvalidJSONFormat", gwErr.Message)
	assert.Equal(t, http.StatusBadRequest, gwErr.StatusCode)
}

func TestDispatchMissingEnvelopeFields(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "missing results",
			body: `{"multicast_id": 1, "success": 1, "failure": 0}`,
		},
		{
			name: "missing success",
			body: `{"multicast_id": 1, "failure": 0, "results": []}`,
		},
		{
			name: "missing failure",
			body: `{"multicast_id": 1, "success": 1, "results": []}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := gatewayStub(t, "application/json", http.StatusOK, tt.body)
			dispatcher := newTestDispatcher(server.URL)

			_, _, err := dispatcher.Dispatch(context.Background(), Payload{RegistrationIDs: []string{"dev1"}})

			var gwErr *GatewayError
			require.ErrorAs(t, err, &gwErr)
			assert.Equal(t, "UnknownResponseFormat", gwErr.Message)
			assert.Equal(t, http.StatusBadRequest, gwErr.StatusCode)
		})
	}
}

func TestDispatchUnknownContentType(t *testing.T) {
	server := gatewayStub(t, "application/xml", http.StatusOK, "<response/>")
	dispatcher := newTestDispatcher(server.URL)

	_, _, err := dispatcher.Dispatch(context.Background(), Payload{RegistrationIDs: []string{"dev1"}})

	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, "UnknownContentType", gwErr.Message)
	assert.Equal(t, http.StatusBadRequest, gwErr.StatusCode)
}

func TestDispatchTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	t.Cleanup(server.Close)

	dispatcher := NewDispatcher(config.PushGatewayConfig{
		URL:            server.URL,
		RequestTimeout: 50 * time.Millisecond,
	}, nil, logger.NopLogger())

	_, _, err := dispatcher.Dispatch(context.Background(), Payload{RegistrationIDs: []string{"dev1"}})
	require.Error(t, err)

	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, "TimeoutError", gwErr.Message)
	assert.Equal(t, -1, gwErr.StatusCode)
}

func TestDispatchConnectionRefused(t *testing.T) {
	// A closed server port yields a transport error, not a timeout.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	dispatcher := newTestDispatcher(url)

	_, _, err := dispatcher.Dispatch(context.Background(), Payload{RegistrationIDs: []string{"dev1"}})
	require.Error(t, err)

	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, -1, gwErr.StatusCode)
	assert.NotEqual(t, "TimeoutError", gwErr.Message)
	assert.NotEmpty(t, gwErr.Message)
}

func TestNormalizeEmptyResults(t *testing.T) {
	server := gatewayStub(t, "application/json; charset=utf-8", http.StatusOK,
		`{"multicast_id": 5, "success": 0, "failure": 0, "results": []}`)
	dispatcher := newTestDispatcher(server.URL)

	outcomes, multicastID, err := dispatcher.Dispatch(context.Background(), Payload{RegistrationIDs: nil})
	require.NoError(t, err)
	assert.Empty(t, outcomes)
	assert.Equal(t, int64(5), multicastID)
}
