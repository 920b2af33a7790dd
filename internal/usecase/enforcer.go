// Package usecase contains application business logic.
package usecase

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/ficha/internal/domain"
)

// DefaultScanInterval is the scan loop tick.
const DefaultScanInterval = time.Second

// EnforcerConfig holds scan loop settings.
type EnforcerConfig struct {
	Interval time.Duration   // Tick interval (default 1s)
	Clock    clockwork.Clock // Defaults to the real clock
}

// EnforcerImpl implements domain.ScanLoop.
type EnforcerImpl struct {
	processManager domain.ProcessManager
	protected      *ProtectedSet
	shield         *Shield
	interval       time.Duration
	clock          clockwork.Clock
	logger         *zap.Logger
}

// NewEnforcer creates a scan loop over the given replica, gated by shield.
func NewEnforcer(
	pm domain.ProcessManager,
	protected *ProtectedSet,
	shield *Shield,
	config EnforcerConfig,
	logger *zap.Logger,
) *EnforcerImpl {
	if config.Interval <= 0 {
		config.Interval = DefaultScanInterval
	}
	if config.Clock == nil {
		config.Clock = clockwork.NewRealClock()
	}
	return &EnforcerImpl{
		processManager: pm,
		protected:      protected,
		shield:         shield,
		interval:       config.Interval,
		clock:          config.Clock,
		logger:         logger,
	}
}

// ScanOnce runs one tick without a sink.
func (e *EnforcerImpl) ScanOnce(ctx context.Context) *domain.ScanResult {
	return e.scan(ctx, nil)
}

// Run ticks until ctx is canceled, passing every kill to sink.
func (e *EnforcerImpl) Run(ctx context.Context, sink func(domain.KillEvent)) error {
	ticker := e.clock.NewTicker(e.interval)
	defer ticker.Stop()

	e.logger.Info("scan loop started", zap.Duration("interval", e.interval))

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("scan loop stopping")
			return ctx.Err()

		case <-ticker.Chan():
			result := e.scan(ctx, sink)
			if len(result.KilledPIDs) > 0 {
				e.logger.Info("scan completed",
					zap.Int("processes_killed", len(result.KilledPIDs)),
					zap.Int64("duration_ms", result.DurationMs))
			}
		}
	}
}

// scan is a single tick. Every kill is reported to sink before the shield
// moves to THREAT_DETECTED.
func (e *EnforcerImpl) scan(ctx context.Context, sink func(domain.KillEvent)) *domain.ScanResult {
	start := e.clock.Now()
	result := &domain.ScanResult{
		KilledPIDs: make([]int, 0),
		Events:     make([]domain.KillEvent, 0),
		Errors:     make([]error, 0),
		ExecutedAt: start,
	}
	defer func() {
		result.DurationMs = e.clock.Since(start).Milliseconds()
	}()

	if !e.shield.IsEnforcing() {
		result.Skipped = true
		return result
	}

	protected := e.protected.Names()
	if len(protected) == 0 {
		return result
	}

	procs, err := e.processManager.Snapshot()
	if err != nil {
		e.logger.Warn("failed to enumerate processes", zap.Error(err))
		result.Errors = append(result.Errors, err)
		return result
	}

	self := e.processManager.GetCurrentPID()

	for _, proc := range procs {
		if ctx.Err() != nil {
			return result
		}
		if proc.PID == self || IsSystemProcess(proc.Name) {
			continue
		}
		result.Scanned++

		pattern, ok := MatchAny(protected, proc)
		if !ok {
			continue
		}

		if err := e.processManager.Kill(proc.PID); err != nil {
			e.logger.Warn("failed to kill process",
				zap.Int("pid", proc.PID),
				zap.String("name", proc.Name),
				zap.Error(err))
			result.Errors = append(result.Errors, err)
			continue
		}

		e.logger.Info("killed protected process",
			zap.Int("pid", proc.PID),
			zap.String("name", proc.Name),
			zap.String("pattern", pattern))

		ev := domain.KillEvent{
			PID:         proc.PID,
			ProcessName: proc.Name,
			Protected:   pattern,
			Timestamp:   e.clock.Now(),
		}
		result.KilledPIDs = append(result.KilledPIDs, proc.PID)
		result.Events = append(result.Events, ev)

		if sink != nil {
			sink(ev)
		}
		e.shield.ThreatDetected()
	}

	return result
}

// Ensure EnforcerImpl implements domain.ScanLoop.
var _ domain.ScanLoop = (*EnforcerImpl)(nil)
