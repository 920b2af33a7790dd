package main

import (
	"errors"
	"fmt"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/eliteGoblin/focusd/ficha/internal/daemon"
	"github.com/eliteGoblin/focusd/ficha/internal/domain"
	"github.com/eliteGoblin/focusd/ficha/internal/infra"
	"github.com/eliteGoblin/focusd/ficha/internal/usecase"
)

var (
	appName     string
	appIcon     string
	appCategory string
	logLimit    int
)

func addVaultCommands(root *cobra.Command) {
	appsCmd := &cobra.Command{
		Use:   "apps",
		Short: "Manage protected applications",
	}
	appsListCmd := &cobra.Command{
		Use:   "list",
		Short: "List protected applications",
		RunE:  withVault(runAppsList),
	}
	appsAddCmd := &cobra.Command{
		Use:   "add <process-name>",
		Short: "Protect an application by process name",
		Args:  cobra.ExactArgs(1),
		RunE:  withVault(runAppsAdd),
	}
	appsAddCmd.Flags().StringVar(&appName, "name", "", "Display name (default derived from the process name)")
	appsAddCmd.Flags().StringVar(&appIcon, "icon", "📦", "Icon shown in the front end")
	appsAddCmd.Flags().StringVar(&appCategory, "category", "Custom", "Category")
	appsRemoveCmd := &cobra.Command{
		Use:   "remove <id|process-name>",
		Short: "Stop protecting an application",
		Args:  cobra.ExactArgs(1),
		RunE:  withVault(runAppsRemove),
	}
	appsCandidatesCmd := &cobra.Command{
		Use:   "candidates",
		Short: "List running applications that could be protected",
		RunE:  runAppsCandidates,
	}
	appsCmd.AddCommand(appsListCmd, appsAddCmd, appsRemoveCmd, appsCandidatesCmd)

	policyCmd := &cobra.Command{
		Use:   "policy",
		Short: "List or toggle security policies",
	}
	policyListCmd := &cobra.Command{
		Use:   "list",
		Short: "List security policies",
		RunE:  withVault(runPolicyList),
	}
	policyToggleCmd := &cobra.Command{
		Use:   "toggle <policy-id>",
		Short: "Toggle a security policy (a running agent picks it up)",
		Args:  cobra.ExactArgs(1),
		RunE:  withVault(runPolicyToggle),
	}
	policyCmd.AddCommand(policyListCmd, policyToggleCmd)

	idleCmd := &cobra.Command{
		Use:   "idle",
		Short: "Show or set the idle auto-lock timeout",
	}
	idleGetCmd := &cobra.Command{
		Use:   "get",
		Short: "Show the idle timeout in minutes",
		RunE:  withVault(runIdleGet),
	}
	idleSetCmd := &cobra.Command{
		Use:   "set <minutes>",
		Short: "Set the idle timeout (clamped to 1-10 minutes)",
		Args:  cobra.ExactArgs(1),
		RunE:  withVault(runIdleSet),
	}
	idleCmd.AddCommand(idleGetCmd, idleSetCmd)

	logsCmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the security log, newest first",
		RunE:  withVault(runLogs),
	}
	logsCmd.Flags().IntVar(&logLimit, "limit", 20, "Number of entries (0 for all)")

	unlockCmd := &cobra.Command{
		Use:   "unlock",
		Short: "Unlock the shield of the running agent",
		RunE:  withVault(signalCommand(daemon.SignalActivate, "shield unlocked")),
	}
	lockCmd := &cobra.Command{
		Use:   "lock",
		Short: "Lock the shield of the running agent",
		RunE:  withVault(signalCommand(daemon.SignalLock, "shield locked")),
	}
	activityCmd := &cobra.Command{
		Use:   "activity",
		Short: "Report user activity to the running agent (resets the idle timer)",
		RunE:  withVault(signalCommand(daemon.SignalActivity, "activity recorded")),
	}

	root.AddCommand(appsCmd, policyCmd, idleCmd, logsCmd, unlockCmd, lockCmd, activityCmd)
}

type vaultRunE func(vault domain.Vault, args []string) error

// withVault opens the vault for the duration of a command.
func withVault(fn vaultRunE) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		vault, err := openVault(cfg)
		if err != nil {
			return err
		}
		defer vault.Close()
		return fn(vault, args)
	}
}

func runAppsList(vault domain.Vault, args []string) error {
	apps, err := vault.ListProtectedApps()
	if err != nil {
		return err
	}
	fmt.Println("\n=== Protected Applications ===")
	for _, app := range apps {
		last := app.LastAttempt
		if last == "" {
			last = "never"
		}
		fmt.Printf("\n%s %s [%s]\n", app.Icon, app.Name, app.Category)
		fmt.Printf("  Process: %s\n", app.ProcessName)
		fmt.Printf("  Last attempt: %s\n", last)
		fmt.Printf("  ID: %s\n", app.ID)
	}
	fmt.Println("\n==============================")
	return nil
}

func runAppsAdd(vault domain.Vault, args []string) error {
	processName := args[0]
	name := appName
	if name == "" {
		name = usecase.DisplayName(processName)
	}

	app, err := vault.AddProtectedApp(name, processName, appIcon, appCategory)
	if err != nil {
		return err
	}
	if _, err := vault.AddLog(fmt.Sprintf("New application added to watch list: %s", app.Name), domain.LogInfo, app.Name); err != nil {
		return err
	}
	fmt.Printf("Protected %s (%s), id %s\n", app.Name, app.ProcessName, app.ID)
	return nil
}

func runAppsRemove(vault domain.Vault, args []string) error {
	apps, err := vault.ListProtectedApps()
	if err != nil {
		return err
	}
	for _, app := range apps {
		if app.ID == args[0] || app.ProcessName == args[0] {
			if err := vault.RemoveProtectedApp(app.ID); err != nil {
				return err
			}
			fmt.Printf("Removed %s (%s)\n", app.Name, app.ProcessName)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", domain.ErrAppNotFound, args[0])
}

func runAppsCandidates(cmd *cobra.Command, args []string) error {
	candidates, err := usecase.RunningCandidates(infra.NewProcessManager())
	if err != nil {
		return err
	}
	fmt.Println("\n=== Running Applications ===")
	for _, c := range candidates {
		fmt.Printf("  %-28s %-24s %s\n", c.Name, c.ProcessName, c.ExePath)
	}
	fmt.Println("\nProtect one with: ficha apps add <process-name>")
	return nil
}

func runPolicyList(vault domain.Vault, args []string) error {
	policies, err := vault.Policies()
	if err != nil {
		return err
	}
	for _, p := range policies {
		fmt.Printf("%s [%s] %s (%s)\n    %s\n", p.ID, onOff(p.Enabled), p.Title, p.Severity, p.Description)
	}
	return nil
}

func runPolicyToggle(vault domain.Vault, args []string) error {
	enabled, err := vault.TogglePolicy(args[0])
	if err != nil {
		return err
	}
	fmt.Printf("%s is now %s\n", args[0], onOff(enabled))
	return nil
}

func runIdleGet(vault domain.Vault, args []string) error {
	minutes, err := vault.GetIdleTimeout()
	if err != nil {
		return err
	}
	enabled, err := vault.IsPolicyEnabled(domain.PolicyIdleAutoLock)
	if err != nil {
		return err
	}
	fmt.Printf("Idle timeout: %d min (auto-lock %s)\n", usecase.ClampTimeout(minutes), onOff(enabled))
	return nil
}

func runIdleSet(vault domain.Vault, args []string) error {
	minutes, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid minutes %q: %w", args[0], err)
	}
	clamped := usecase.ClampTimeout(minutes)
	if err := vault.SetIdleTimeout(clamped); err != nil {
		return err
	}
	fmt.Printf("Idle timeout set to %d min\n", clamped)
	return nil
}

func runLogs(vault domain.Vault, args []string) error {
	logs, err := vault.Logs(logLimit)
	if err != nil {
		return err
	}
	for _, l := range logs {
		app := ""
		if l.App != "" {
			app = " [" + l.App + "]"
		}
		fmt.Printf("%s %-7s %s%s\n", l.Timestamp.Format("2006-01-02 15:04:05"), l.Type, l.Event, app)
	}
	return nil
}

func signalCommand(sig syscall.Signal, done string) vaultRunE {
	return func(vault domain.Vault, args []string) error {
		agent, err := daemon.SignalAgent(vault, infra.NewProcessManager(), sig)
		if errors.Is(err, daemon.ErrAgentNotRunning) {
			return fmt.Errorf("%w: start it with 'ficha run'", err)
		}
		if err != nil {
			return err
		}
		fmt.Printf("%s (agent pid %d)\n", done, agent.PID)
		return nil
	}
}
