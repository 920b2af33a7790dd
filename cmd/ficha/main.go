// Package main is the CLI entry point for ficha.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eliteGoblin/focusd/ficha/internal/config"
	"github.com/eliteGoblin/focusd/ficha/internal/daemon"
	"github.com/eliteGoblin/focusd/ficha/internal/events"
	"github.com/eliteGoblin/focusd/ficha/internal/infra"
	"github.com/eliteGoblin/focusd/ficha/internal/usecase"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ficha",
	Short: "Endpoint enforcement agent - blocks protected apps while the shield is locked",
	Long: `ficha watches the process table and kills any protected application
launched while the shield is locked. Unlock the shield to use them.

Protected apps, policies and the security log live in an encrypted vault.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the enforcement agent in the foreground",
	Long: `Runs the agent until interrupted. The shield starts LOCKED.

Control a running agent with 'ficha unlock', 'ficha lock' and 'ficha activity'
(or SIGUSR1, SIGUSR2 and SIGHUP).`,
	RunE: runAgent,
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one enforcement scan immediately",
	Long:  `Kills running protected applications once, regardless of the agent's shield state.`,
	RunE:  runScan,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show agent and shield status",
	RunE:  runStatus,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Prints version, commit, and build time. Use --json for machine-readable output.`,
	Run:   runVersion,
}

var (
	configPath  string
	dataDirFlag string
	jsonOutput  bool
	printEvents bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default <data dir>/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "Data directory for the vault and log")
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")
	runCmd.Flags().BoolVar(&printEvents, "events", false, "Print agent events to stdout as JSON lines")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	addVaultCommands(rootCmd)
}

func loadConfig() (*config.Config, error) {
	path, optional := configPath, false
	if path == "" {
		path, optional = config.DefaultPath(), true
	}
	cfg, err := config.Load(path, optional)
	if err != nil {
		return nil, err
	}
	if dataDirFlag != "" {
		cfg.DataDir = dataDirFlag
		cfg.LogFile = filepath.Join(dataDirFlag, filepath.Base(cfg.LogFile))
	}
	return cfg, nil
}

// openVault unlocks the vault in the configured data directory, creating
// the key and database on first use.
func openVault(cfg *config.Config) (*infra.VaultImpl, error) {
	key, err := infra.EnsureKey(infra.NewFileKeyProvider(cfg.DataDir))
	if err != nil {
		return nil, fmt.Errorf("failed to load vault key: %w", err)
	}
	return infra.NewVault(cfg.DataDir, key, nil)
}

func runAgent(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	logger := createLogger(cfg.LogFile)
	defer func() { _ = logger.Sync() }()

	vault, err := openVault(cfg)
	if err != nil {
		logger.Error("failed to open vault", zap.Error(err))
		return err
	}
	defer vault.Close()

	pm := infra.NewProcessManager()
	// Signal 0 only probes the registered PID.
	if running, err := daemon.SignalAgent(vault, pm, 0); err == nil {
		return fmt.Errorf("agent already running (pid %d)", running.PID)
	}

	broker := events.NewBroker(nil, logger)
	if printEvents {
		ch := broker.Subscribe(0)
		defer broker.Unsubscribe(ch)
		go printEventLines(ch)
	}

	stealth := infra.NewStealthController(
		infra.ResolveDecoyName(cfg.Stealth.DecoyName),
		cfg.Stealth.OriginalName,
		logger,
	)
	watcher := infra.NewVaultWatcher(vault.Path(), cfg.WatchDebounce, logger)

	agent := daemon.NewAgent(daemon.AgentConfig{
		ScanInterval:      cfg.ScanInterval,
		IdleCheckInterval: cfg.IdleCheckInterval,
		ThreatGrace:       cfg.ThreatGrace,
		AppVersion:        Version,
	}, pm, vault, stealth, broker, watcher, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 4)
	signal.Notify(sigChan, append(daemon.ControlSignals(), syscall.SIGINT, syscall.SIGTERM)...)
	defer signal.Stop(sigChan)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-sigChan:
				if agent.HandleSignal(sig) {
					logger.Info("control signal handled", zap.String("signal", sig.String()))
					continue
				}
				logger.Info("received shutdown signal", zap.String("signal", sig.String()))
				cancel()
				return
			}
		}
	}()

	fmt.Printf("ficha agent running (pid %d), logging to %s\n", os.Getpid(), cfg.LogFile)
	if err := agent.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func printEventLines(ch chan events.Event) {
	enc := json.NewEncoder(os.Stdout)
	for ev := range ch {
		_ = enc.Encode(ev)
	}
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, _ := zap.NewDevelopment()
	defer func() { _ = logger.Sync() }()

	vault, err := openVault(cfg)
	if err != nil {
		return err
	}
	defer vault.Close()

	protected := usecase.NewProtectedSet()
	if err := protected.Refresh(vault); err != nil {
		return fmt.Errorf("failed to load protected apps: %w", err)
	}

	fmt.Println("\n=== Running Enforcement Scan ===")

	pm := infra.NewProcessManager()
	enforcer := usecase.NewEnforcer(pm, protected, usecase.NewShield(logger), usecase.EnforcerConfig{}, logger)
	result := enforcer.ScanOnce(context.Background())

	for _, ev := range result.Events {
		fmt.Printf("  Killed %s (PID %d, matched %q)\n", ev.ProcessName, ev.PID, ev.Protected)
		if err := vault.RecordKill(ev); err != nil {
			logger.Warn("failed to record kill", zap.Error(err))
		}
	}
	for _, err := range result.Errors {
		fmt.Printf("  Error: %v\n", err)
	}

	if len(result.KilledPIDs) == 0 {
		fmt.Println("\nNo protected applications running.")
	} else {
		fmt.Printf("\nTotal: %d processes killed\n", len(result.KilledPIDs))
	}
	fmt.Printf("Scanned %d processes in %dms\n", result.Scanned, result.DurationMs)
	if len(result.Errors) > 0 && !infra.DetectExecMode().IsRoot {
		fmt.Println("\nSome processes could not be killed. Run with sudo to cover other users.")
	}
	fmt.Println("================================")
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	vault, err := openVault(cfg)
	if err != nil {
		return err
	}
	defer vault.Close()

	pm := infra.NewProcessManager()

	fmt.Println("\n=== ficha Status ===")

	agent, err := vault.GetAgent()
	if err != nil {
		return err
	}
	if agent == nil || !pm.IsRunning(agent.PID) {
		fmt.Println("Agent: NOT RUNNING")
		fmt.Println("\nRun 'ficha run' to enable protection.")
	} else {
		status, _ := vault.GetShieldStatus()
		fmt.Printf("Agent: RUNNING (pid %d, name %q, version %s)\n", agent.PID, agent.Name, agent.AppVersion)
		fmt.Printf("Uptime: %s\n", time.Since(agent.StartedAt).Round(time.Second))
		fmt.Printf("Shield: %s\n", status)
	}

	mode := infra.DetectExecMode()
	fmt.Printf("\nExecution mode: %s\n", mode.Mode)
	fmt.Printf("Vault: %s\n", vault.Path())
	fmt.Printf("Log: %s\n", cfg.LogFile)

	if minutes, err := vault.GetIdleTimeout(); err == nil {
		fmt.Printf("Idle timeout: %d min\n", usecase.ClampTimeout(minutes))
	}

	policies, err := vault.Policies()
	if err != nil {
		return err
	}
	fmt.Println("\nPolicies:")
	for _, p := range policies {
		fmt.Printf("  [%s] %-28s %s\n", onOff(p.Enabled), p.Title, p.ID)
	}

	names, err := vault.GetProtectedNames()
	if err != nil {
		return err
	}
	fmt.Printf("\nProtected applications: %d\n", len(names))
	for _, n := range names {
		fmt.Printf("  - %s\n", n)
	}

	fmt.Println("====================")
	return nil
}

func onOff(b bool) string {
	if b {
		return "on "
	}
	return "off"
}

// createLogger builds the agent's file logger.
func createLogger(logFile string) *zap.Logger {
	config := zap.NewProductionConfig()
	config.OutputPaths = []string{logFile}
	config.ErrorOutputPaths = []string{logFile}
	config.EncoderConfig.TimeKey = "time"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		// Fallback to stderr if file logging fails
		logger, _ = zap.NewProduction()
	}
	return logger
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		fmt.Printf(`{"version":"%s","commit":"%s","build_time":"%s"}`+"\n",
			Version, Commit, BuildTime)
	} else {
		fmt.Printf("ficha %s (commit: %s, built: %s)\n",
			Version, Commit, BuildTime)
	}
}
