package natsclient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/gatherd/errors"
)

func TestNewDefaults(t *testing.T) {
	c, err := New("nats://localhost:4222", nil)
	require.NoError(t, err)
	assert.Equal(t, "gatherd", c.name)
	assert.Equal(t, -1, c.maxReconnects)
	assert.False(t, c.IsConnected())
}

func TestNewAppliesOptions(t *testing.T) {
	c, err := New("nats://localhost:4222", nil,
		WithName("bench"),
		WithMaxReconnects(3),
		WithReconnectWait(time.Second),
		WithConnectTimeout(250*time.Millisecond),
	)
	require.NoError(t, err)
	assert.Equal(t, "bench", c.name)
	assert.Equal(t, 3, c.maxReconnects)
	assert.Equal(t, time.Second, c.reconnectWait)
	assert.Equal(t, 250*time.Millisecond, c.connectWait)
}

func TestNewRejectsBadOptions(t *testing.T) {
	_, err := New("nats://localhost:4222", nil, WithName(""))
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	_, err = New("nats://localhost:4222", nil, WithReconnectWait(-time.Second))
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestPublishBeforeConnect(t *testing.T) {
	c, err := New("nats://localhost:4222", nil)
	require.NoError(t, err)

	err = c.Publish("gather.servo.data", []byte{1})
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
}

func TestCloseWithoutConnect(t *testing.T) {
	c, err := New("nats://localhost:4222", nil)
	require.NoError(t, err)
	c.Close() // must not panic
}
