package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountdownBeforeIssue(t *testing.T) {
	c := NewCountdown(time.Millisecond)
	status := c.Snapshot()
	assert.Empty(t, status.VehicleJWT)
	assert.Nil(t, status.ExpiresIn)
	assert.False(t, status.Expired)
	assert.False(t, c.Running())
}

func TestCountdownStartsAt599(t *testing.T) {
	c := NewCountdown(time.Hour)
	defer c.Stop()

	c.Start("jwt-1")
	status := c.Snapshot()
	require.NotNil(t, status.ExpiresIn)
	assert.Equal(t, TokenLifetimeSeconds, *status.ExpiresIn)
	assert.Equal(t, "jwt-1", status.VehicleJWT)
	assert.True(t, c.Running())
}

func TestCountdownExpiresWithoutClearingToken(t *testing.T) {
	c := NewCountdown(time.Microsecond)
	c.Start("jwt-1")

	require.Eventually(t, func() bool { return c.Snapshot().Expired }, 5*time.Second, time.Millisecond)

	status := c.Snapshot()
	assert.Equal(t, 0, *status.ExpiresIn)
	assert.Equal(t, "jwt-1", status.VehicleJWT)
	assert.Equal(t, "jwt-1", c.JWT())
	assert.False(t, c.Running())
}

func TestCountdownDecrements(t *testing.T) {
	c := NewCountdown(2 * time.Millisecond)
	defer c.Stop()

	c.Start("jwt-1")
	require.Eventually(t, func() bool {
		return *c.Snapshot().ExpiresIn < TokenLifetimeSeconds
	}, time.Second, time.Millisecond)
	assert.False(t, c.Snapshot().Expired)
}

func TestCountdownRestartOnReissue(t *testing.T) {
	c := NewCountdown(time.Microsecond)
	c.Start("jwt-1")
	require.Eventually(t, func() bool { return c.Snapshot().Expired }, 5*time.Second, time.Millisecond)

	setTick(c, time.Hour)
	c.Start("jwt-2")
	defer c.Stop()

	status := c.Snapshot()
	assert.Equal(t, "jwt-2", status.VehicleJWT)
	assert.Equal(t, TokenLifetimeSeconds, *status.ExpiresIn)
	assert.False(t, status.Expired)
}

func TestCountdownStopFreezesRemaining(t *testing.T) {
	c := NewCountdown(time.Millisecond)
	c.Start("jwt-1")
	c.Stop()
	assert.False(t, c.Running())

	frozen := *c.Snapshot().ExpiresIn
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, frozen, *c.Snapshot().ExpiresIn)
	assert.Equal(t, "jwt-1", c.Snapshot().VehicleJWT)

	c.Stop()
}

func TestCountdownSingleRunner(t *testing.T) {
	c := NewCountdown(time.Hour)
	defer c.Stop()

	c.Start("a")
	first := c.stop
	c.Start("b")
	assert.NotEqual(t, first, c.stop)

	select {
	case <-first:
	default:
		t.Fatal("previous run was not cancelled")
	}
}

func setTick(c *Countdown, tick time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tick = tick
}
