package usecase

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/ficha/internal/domain"
)

// DefaultThreatGrace is how long THREAT_DETECTED lasts before reverting to LOCKED.
const DefaultThreatGrace = 3 * time.Second

// Shield is the enforcement state machine.
//
// Every status write bumps epoch. A scheduled revert carries the epoch it
// was created under and is a no-op if anything wrote the status since, so a
// stale timer can never clobber a newer state.
type Shield struct {
	mu     sync.Mutex
	status domain.ShieldStatus
	armed  bool // scan loop enforcing condition
	epoch  uint64
	revert clockwork.Timer

	// notifyMu serializes sink delivery; notified is the epoch of the last
	// delivered transition, older ones are dropped.
	notifyMu sync.Mutex
	notified uint64

	grace  time.Duration
	clock  clockwork.Clock
	sink   domain.EventSink
	onLock func()
	logger *zap.Logger
}

// ShieldOption configures a Shield.
type ShieldOption func(*Shield)

// WithShieldClock sets the clock used for revert timers.
func WithShieldClock(c clockwork.Clock) ShieldOption {
	return func(s *Shield) { s.clock = c }
}

// WithThreatGrace overrides DefaultThreatGrace.
func WithThreatGrace(d time.Duration) ShieldOption {
	return func(s *Shield) {
		if d > 0 {
			s.grace = d
		}
	}
}

// WithShieldSink reports every transition to sink.
func WithShieldSink(sink domain.EventSink) ShieldOption {
	return func(s *Shield) { s.sink = sink }
}

// WithLockHook runs fn after every Lock, outside the shield's lock.
// The agent uses it to refresh the protected-name replica.
func WithLockHook(fn func()) ShieldOption {
	return func(s *Shield) { s.onLock = fn }
}

// NewShield creates a shield in the LOCKED state with enforcement armed.
func NewShield(logger *zap.Logger, opts ...ShieldOption) *Shield {
	s := &Shield{
		status: domain.ShieldLocked,
		armed:  true,
		grace:  DefaultThreatGrace,
		clock:  clockwork.NewRealClock(),
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Status returns the current status.
func (s *Shield) Status() domain.ShieldStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// IsEnforcing reports whether the scan loop should act.
// It stays true through THREAT_DETECTED so a relaunch during the grace
// period is still killed.
func (s *Shield) IsEnforcing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.armed
}

// Activate unlocks the shield: any state -> ACTIVE, enforcement off.
func (s *Shield) Activate() {
	s.mu.Lock()
	epoch := s.writeLocked(domain.ShieldActive)
	s.armed = false
	s.mu.Unlock()

	s.logger.Info("shield activated, monitoring disabled")
	s.notify(domain.ShieldActive, epoch)
}

// Lock arms the shield: any state -> LOCKED, enforcement on.
func (s *Shield) Lock() {
	s.mu.Lock()
	epoch := s.writeLocked(domain.ShieldLocked)
	s.armed = true
	s.mu.Unlock()

	s.logger.Info("shield locked, monitoring enabled")
	s.notify(domain.ShieldLocked, epoch)
	if s.onLock != nil {
		s.onLock()
	}
}

// ThreatDetected records a kill: LOCKED or THREAT_DETECTED -> THREAT_DETECTED,
// and (re)schedules the revert to LOCKED after the grace period.
// Returns false when the shield is not enforcing.
func (s *Shield) ThreatDetected() bool {
	s.mu.Lock()
	if !s.armed || s.status == domain.ShieldActive {
		s.mu.Unlock()
		return false
	}
	epoch := s.writeLocked(domain.ShieldThreatDetected)
	s.revert = s.clock.AfterFunc(s.grace, func() { s.expireThreat(epoch) })
	s.mu.Unlock()

	s.notify(domain.ShieldThreatDetected, epoch)
	return true
}

// IdleTimeout auto-locks the shield unless it is already LOCKED.
// Returns whether a transition happened.
func (s *Shield) IdleTimeout() bool {
	s.mu.Lock()
	if s.status == domain.ShieldLocked {
		s.mu.Unlock()
		return false
	}
	epoch := s.writeLocked(domain.ShieldLocked)
	s.armed = true
	s.mu.Unlock()

	s.logger.Info("idle timeout, shield locked")
	s.notify(domain.ShieldLocked, epoch)
	if s.onLock != nil {
		s.onLock()
	}
	return true
}

// expireThreat is the revert timer body.
func (s *Shield) expireThreat(epoch uint64) {
	s.mu.Lock()
	if s.epoch != epoch || s.status != domain.ShieldThreatDetected {
		s.mu.Unlock()
		return
	}
	s.epoch++
	epoch = s.epoch
	s.status = domain.ShieldLocked
	s.revert = nil
	s.mu.Unlock()

	s.logger.Debug("threat grace elapsed, shield back to locked")
	s.notify(domain.ShieldLocked, epoch)
}

// writeLocked sets status, cancels any pending revert and returns the new epoch.
// Caller must hold s.mu.
func (s *Shield) writeLocked(status domain.ShieldStatus) uint64 {
	if s.revert != nil {
		s.revert.Stop()
		s.revert = nil
	}
	s.epoch++
	s.status = status
	return s.epoch
}

// notify delivers a transition written under epoch. Transitions reach the
// sink in epoch order; one overtaken by a newer write is never delivered,
// so the last status the sink saw always matches Status().
func (s *Shield) notify(status domain.ShieldStatus, epoch uint64) {
	if s.sink == nil {
		return
	}
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	if epoch <= s.notified {
		return
	}
	s.notified = epoch
	s.sink.ShieldChanged(status)
}
