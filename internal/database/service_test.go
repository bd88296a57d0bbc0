package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewService(t *testing.T) {
	s := NewService()
	assert.Equal(t, 30*time.Second, s.connectionTimeout)
	assert.Equal(t, 3, s.maxRetries)
	assert.NotNil(t, s.logger)
	assert.NotNil(t, s.retryHandler)
}

func TestNewServiceWithOptions(t *testing.T) {
	s := NewServiceWithOptions(5*time.Second, 1, 10*time.Millisecond)
	assert.Equal(t, 5*time.Second, s.connectionTimeout)
	assert.Equal(t, 1, s.maxRetries)
	assert.Equal(t, 10*time.Millisecond, s.retryDelay)
}

func TestConnectFailure(t *testing.T) {
	// Port 1 refuses connections; a single attempt with a short timeout
	// fails fast.
	s := NewServiceWithOptions(500*time.Millisecond, 1, 10*time.Millisecond)

	cfg := Config{Host: "127.0.0.1", Port: 1, User: "u", Database: "d", SSLMode: "disable"}
	_, err := s.Connect(cfg)
	require.Error(t, err)
}

func TestCloseNil(t *testing.T) {
	s := NewService()
	assert.NoError(t, s.Close(nil))
}
