package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const (
	// MinIdleTimeout and MaxIdleTimeout bound the idle timeout, in minutes.
	MinIdleTimeout = 1
	MaxIdleTimeout = 10

	// DefaultIdleTimeout is used until a stored value is loaded.
	DefaultIdleTimeout = 10

	// DefaultIdleCheckInterval is how often the detector polls.
	DefaultIdleCheckInterval = 5 * time.Second
)

// ClampTimeout forces minutes into [MinIdleTimeout, MaxIdleTimeout].
func ClampTimeout(minutes int) int {
	if minutes < MinIdleTimeout {
		return MinIdleTimeout
	}
	if minutes > MaxIdleTimeout {
		return MaxIdleTimeout
	}
	return minutes
}

// IdleDetector tracks time since the last user activity and fires a
// callback once the configured timeout is exceeded.
type IdleDetector struct {
	mu             sync.Mutex
	timeoutMinutes int
	enabled        bool
	lastActivity   time.Time

	interval time.Duration
	clock    clockwork.Clock
	logger   *zap.Logger
}

// NewIdleDetector creates a disabled detector with the default timeout.
// A zero interval selects DefaultIdleCheckInterval; a nil clock the real one.
func NewIdleDetector(interval time.Duration, clock clockwork.Clock, logger *zap.Logger) *IdleDetector {
	if interval <= 0 {
		interval = DefaultIdleCheckInterval
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &IdleDetector{
		timeoutMinutes: DefaultIdleTimeout,
		lastActivity:   clock.Now(),
		interval:       interval,
		clock:          clock,
		logger:         logger,
	}
}

// RecordActivity resets the idle timer.
func (d *IdleDetector) RecordActivity() {
	d.mu.Lock()
	d.lastActivity = d.clock.Now()
	d.mu.Unlock()
}

// IsIdle is true only when enabled and the timeout has elapsed.
func (d *IdleDetector) IsIdle() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.isIdleLocked()
}

func (d *IdleDetector) isIdleLocked() bool {
	if !d.enabled {
		return false
	}
	timeout := time.Duration(d.timeoutMinutes) * time.Minute
	return d.clock.Since(d.lastActivity) >= timeout
}

// IdleSeconds returns whole seconds since the last activity.
func (d *IdleDetector) IdleSeconds() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(d.clock.Since(d.lastActivity) / time.Second)
}

// SetTimeout stores the clamped timeout and returns it.
func (d *IdleDetector) SetTimeout(minutes int) int {
	clamped := ClampTimeout(minutes)
	d.mu.Lock()
	d.timeoutMinutes = clamped
	d.mu.Unlock()
	return clamped
}

// Timeout returns the timeout in minutes.
func (d *IdleDetector) Timeout() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timeoutMinutes
}

// SetEnabled toggles tracking. Enabling always resets the idle timer so
// the detector cannot fire on stale inactivity.
func (d *IdleDetector) SetEnabled(enabled bool) {
	d.mu.Lock()
	d.enabled = enabled
	if enabled {
		d.lastActivity = d.clock.Now()
	}
	d.mu.Unlock()
}

// Enabled reports whether tracking is on.
func (d *IdleDetector) Enabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enabled
}

// Check runs one detector tick. When idle it resets the timer and
// returns true; the caller fires its callback exactly once per true.
func (d *IdleDetector) Check() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.isIdleLocked() {
		return false
	}
	d.lastActivity = d.clock.Now()
	return true
}

// Run polls until ctx is canceled, invoking onIdle once per idle period.
func (d *IdleDetector) Run(ctx context.Context, onIdle func()) error {
	ticker := d.clock.NewTicker(d.interval)
	defer ticker.Stop()

	d.logger.Info("idle detector started",
		zap.Duration("interval", d.interval),
		zap.Int("timeout_minutes", d.Timeout()))

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("idle detector stopping")
			return ctx.Err()

		case <-ticker.Chan():
			if d.Check() {
				d.logger.Info("idle timeout detected")
				onIdle()
			}
		}
	}
}
