package session

import (
	"sync"
	"time"

	"github.com/pocket-telemetry/backend/internal/models"
)

// TokenLifetimeSeconds is the countdown start value after a JWT is issued.
const TokenLifetimeSeconds = 599

// Countdown tracks the remaining lifetime of a workspace's vehicle JWT.
// Each Start cancels the previous run; at most one ticker goroutine is alive.
type Countdown struct {
	mu        sync.Mutex
	tick      time.Duration
	jwt       string
	remaining int
	issued    bool
	stop      chan struct{}
}

// NewCountdown creates a countdown that decrements once per tick.
func NewCountdown(tick time.Duration) *Countdown {
	if tick <= 0 {
		tick = time.Second
	}
	return &Countdown{tick: tick}
}

// Start records jwt and restarts the countdown at TokenLifetimeSeconds.
func (c *Countdown) Start(jwt string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cancelLocked()
	c.jwt = jwt
	c.remaining = TokenLifetimeSeconds
	c.issued = true

	stop := make(chan struct{})
	c.stop = stop
	go c.run(stop, c.tick)
}

func (c *Countdown) run(stop chan struct{}, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			// A newer Start may have replaced this run between the tick and the lock.
			if c.stop != stop {
				c.mu.Unlock()
				return
			}
			c.remaining--
			if c.remaining <= 0 {
				c.remaining = 0
				c.stop = nil
				c.mu.Unlock()
				return
			}
			c.mu.Unlock()
		}
	}
}

// Stop halts the ticker without touching the token or remaining time.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelLocked()
}

func (c *Countdown) cancelLocked() {
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
}

// Running reports whether a ticker goroutine is active.
func (c *Countdown) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stop != nil
}

// JWT returns the current token text, which survives expiry.
func (c *Countdown) JWT() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.jwt
}

// Snapshot returns the current token status.
func (c *Countdown) Snapshot() models.TokenStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := models.TokenStatus{VehicleJWT: c.jwt}
	if c.issued {
		remaining := c.remaining
		status.ExpiresIn = &remaining
		status.Expired = remaining == 0
	}
	return status
}
