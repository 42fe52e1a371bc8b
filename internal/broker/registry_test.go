package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegister(t *testing.T) {
	registry := NewRegistry()
	handler := &recordingHandler{result: true}

	require.NoError(t, registry.Register("queue-a", handler))

	got, ok := registry.Handler("queue-a")
	assert.True(t, ok)
	assert.Equal(t, handler, got)
}

func TestRegistryRejectsEmptyName(t *testing.T) {
	registry := NewRegistry()
	assert.Error(t, registry.Register("", &recordingHandler{}))
}

func TestRegistryRejectsNilHandler(t *testing.T) {
	registry := NewRegistry()
	assert.Error(t, registry.Register("queue-a", nil))
}

func TestRegistryRejectsDuplicate(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register("queue-a", &recordingHandler{}))

	err := registry.Register("queue-a", &recordingHandler{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestRegistryValidate(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register("queue-a", &recordingHandler{}))

	assert.NoError(t, registry.Validate([]string{"queue-a"}))

	err := registry.Validate([]string{"queue-a", "queue-c", "queue-b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue-b, queue-c")
}
