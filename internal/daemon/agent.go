// Package daemon implements the long-running enforcement agent.
package daemon

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/ficha/internal/domain"
	"github.com/eliteGoblin/focusd/ficha/internal/usecase"
)

// ChangeWatcher reports out-of-process changes to the vault.
type ChangeWatcher interface {
	Run(ctx context.Context, onChange func()) error
}

// AgentConfig holds agent settings.
type AgentConfig struct {
	ScanInterval      time.Duration
	IdleCheckInterval time.Duration
	ThreatGrace       time.Duration
	AppVersion        string
	Clock             clockwork.Clock // Defaults to the real clock
}

// DefaultAgentConfig returns default agent configuration.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		ScanInterval:      usecase.DefaultScanInterval,
		IdleCheckInterval: usecase.DefaultIdleCheckInterval,
		ThreatGrace:       usecase.DefaultThreatGrace,
	}
}

// Agent is the enforcement daemon.
// It kills protected processes while the shield is armed, auto-locks the
// shield after inactivity, and follows policy changes made in the vault.
type Agent struct {
	config         AgentConfig
	processManager domain.ProcessManager
	vault          domain.Vault
	stealth        domain.StealthController
	sink           domain.EventSink
	watcher        ChangeWatcher
	logger         *zap.Logger

	protected *usecase.ProtectedSet
	shield    *usecase.Shield
	idle      *usecase.IdleDetector
	enforcer  *usecase.EnforcerImpl

	// Last applied policy state; policies are re-applied only on change.
	policyMu       sync.Mutex
	policiesLoaded bool
	stealthOn      bool
	idleOn         bool
}

// NewAgent creates an agent. sink and watcher may be nil.
func NewAgent(
	config AgentConfig,
	pm domain.ProcessManager,
	vault domain.Vault,
	stealth domain.StealthController,
	sink domain.EventSink,
	watcher ChangeWatcher,
	logger *zap.Logger,
) *Agent {
	if config.Clock == nil {
		config.Clock = clockwork.NewRealClock()
	}

	a := &Agent{
		config:         config,
		processManager: pm,
		vault:          vault,
		stealth:        stealth,
		sink:           sink,
		watcher:        watcher,
		logger:         logger,
		protected:      usecase.NewProtectedSet(),
	}

	a.shield = usecase.NewShield(logger,
		usecase.WithShieldClock(config.Clock),
		usecase.WithThreatGrace(config.ThreatGrace),
		usecase.WithShieldSink(shieldSink{a}),
		usecase.WithLockHook(a.refreshProtected),
	)
	a.idle = usecase.NewIdleDetector(config.IdleCheckInterval, config.Clock, logger)
	a.enforcer = usecase.NewEnforcer(pm, a.protected, a.shield, usecase.EnforcerConfig{
		Interval: config.ScanInterval,
		Clock:    config.Clock,
	}, logger)

	return a
}

// Shield exposes the state machine (for status and tests).
func (a *Agent) Shield() *usecase.Shield { return a.shield }

// Idle exposes the idle detector.
func (a *Agent) Idle() *usecase.IdleDetector { return a.idle }

// Protected exposes the protected-name replica.
func (a *Agent) Protected() *usecase.ProtectedSet { return a.protected }

// Start loads state from the vault and registers the agent.
// Run calls it; it is exported so the loops can be driven separately in tests.
func (a *Agent) Start() error {
	if minutes, err := a.vault.GetIdleTimeout(); err != nil {
		a.logger.Warn("failed to load idle timeout, using default", zap.Error(err))
	} else {
		a.idle.SetTimeout(minutes)
	}

	a.applyPolicies()
	a.refreshProtected()
	a.persistStatus(a.shield.Status())

	name := ""
	if a.stealth != nil {
		name, _ = a.stealth.Name()
	}
	info := domain.AgentInfo{
		PID:        a.processManager.GetCurrentPID(),
		Name:       name,
		StartedAt:  a.config.Clock.Now(),
		AppVersion: a.config.AppVersion,
	}
	if err := a.vault.RegisterAgent(info); err != nil {
		a.logger.Error("failed to register agent", zap.Error(err))
		return err
	}

	a.logger.Info("agent started",
		zap.Int("pid", info.PID),
		zap.String("name", info.Name),
		zap.Int("protected", a.protected.Len()),
		zap.Int("idle_timeout_min", a.idle.Timeout()))
	return nil
}

// Run starts the agent and blocks until ctx is canceled.
func (a *Agent) Run(ctx context.Context) error {
	if err := a.Start(); err != nil {
		return err
	}

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		a.enforcer.Run(ctx, a.onKill)
	}()
	go func() {
		defer wg.Done()
		a.idle.Run(ctx, a.onIdle)
	}()

	if a.watcher != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.watcher.Run(ctx, a.OnVaultChange); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Warn("vault watcher stopped, changes need a restart to apply", zap.Error(err))
			}
		}()
	}

	<-ctx.Done()
	wg.Wait()
	a.logger.Info("agent stopping")
	return ctx.Err()
}

// Activate unlocks the shield and counts as user activity.
func (a *Agent) Activate() {
	a.shield.Activate()
	a.idle.RecordActivity()
}

// Lock arms the shield. The lock hook refreshes the replica.
func (a *Agent) Lock() {
	a.shield.Lock()
	if _, err := a.vault.AddLog("Shield locked - monitoring enabled", domain.LogInfo, ""); err != nil {
		a.logger.Warn("failed to write security log", zap.Error(err))
	}
}

// RecordActivity resets the idle timer.
func (a *Agent) RecordActivity() {
	a.idle.RecordActivity()
}

// OnVaultChange re-reads everything the vault controls.
func (a *Agent) OnVaultChange() {
	a.logger.Debug("vault changed, reloading")
	a.refreshProtected()
	a.applyPolicies()
	if minutes, err := a.vault.GetIdleTimeout(); err != nil {
		a.logger.Warn("failed to reload idle timeout", zap.Error(err))
	} else if a.idle.Timeout() != usecase.ClampTimeout(minutes) {
		a.logger.Info("idle timeout changed", zap.Int("minutes", a.idle.SetTimeout(minutes)))
	}
}

// onKill runs for every terminated process, before the shield moves to
// THREAT_DETECTED.
func (a *Agent) onKill(ev domain.KillEvent) {
	if err := a.vault.RecordKill(ev); err != nil {
		a.logger.Warn("failed to record kill",
			zap.Int("pid", ev.PID),
			zap.String("name", ev.ProcessName),
			zap.Error(err))
	}
	if a.sink != nil {
		a.sink.ProcessKilled(ev.PID, ev.ProcessName)
	}
}

func (a *Agent) onIdle() {
	if !a.shield.IdleTimeout() {
		return
	}
	a.logger.Info("shield auto-locked due to inactivity")
	if _, err := a.vault.AddLog("Shield auto-locked due to inactivity", domain.LogWarning, ""); err != nil {
		a.logger.Warn("failed to write security log", zap.Error(err))
	}
	if a.sink != nil {
		a.sink.AutoLocked(true)
	}
}

// refreshProtected reloads the replica; on failure the last copy is kept.
func (a *Agent) refreshProtected() {
	if err := a.protected.Refresh(a.vault); err != nil {
		a.logger.Warn("failed to refresh protected apps, keeping previous list",
			zap.Int("protected", a.protected.Len()),
			zap.Error(err))
	}
}

// applyPolicies applies stealth and idle policies that changed since the
// last call. Enabling idle resets the timer, so an unchanged policy must not
// be re-applied on every vault write.
func (a *Agent) applyPolicies() {
	a.policyMu.Lock()
	defer a.policyMu.Unlock()

	if on, err := a.vault.IsPolicyEnabled(domain.PolicyStealth); err != nil {
		a.logger.Warn("failed to read stealth policy", zap.Error(err))
	} else if (!a.policiesLoaded && on) || (a.policiesLoaded && on != a.stealthOn) {
		a.setStealth(on)
		a.stealthOn = on
	}

	if on, err := a.vault.IsPolicyEnabled(domain.PolicyIdleAutoLock); err != nil {
		a.logger.Warn("failed to read idle policy", zap.Error(err))
	} else if !a.policiesLoaded || on != a.idleOn {
		a.idle.SetEnabled(on)
		a.idleOn = on
		a.logger.Info("idle auto-lock", zap.Bool("enabled", on))
	}

	a.policiesLoaded = true
}

func (a *Agent) setStealth(on bool) {
	if a.stealth == nil {
		return
	}
	var err error
	if on {
		err = a.stealth.Enable()
	} else {
		err = a.stealth.Disable()
	}
	if errors.Is(err, domain.ErrStealthUnsupported) {
		a.logger.Info("stealth mode not supported on this platform")
		return
	}
	if err != nil {
		a.logger.Warn("failed to apply stealth policy", zap.Bool("enabled", on), zap.Error(err))
	}
}

func (a *Agent) persistStatus(status domain.ShieldStatus) {
	if err := a.vault.SetShieldStatus(status); err != nil {
		a.logger.Debug("failed to persist shield status", zap.Error(err))
	}
}

// shieldSink persists every shield transition and forwards it to the agent's sink.
type shieldSink struct{ a *Agent }

func (s shieldSink) ShieldChanged(status domain.ShieldStatus) {
	s.a.persistStatus(status)
	if s.a.sink != nil {
		s.a.sink.ShieldChanged(status)
	}
}

func (s shieldSink) ProcessKilled(pid int, processName string) {
	if s.a.sink != nil {
		s.a.sink.ProcessKilled(pid, processName)
	}
}

func (s shieldSink) AutoLocked(locked bool) {
	if s.a.sink != nil {
		s.a.sink.AutoLocked(locked)
	}
}
