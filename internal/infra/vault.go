package infra

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	sqlcipher "github.com/mutecomm/go-sqlcipher/v4"

	"github.com/eliteGoblin/focusd/ficha/internal/domain"
)

// Ensure sqlcipher driver is registered.
var _ = sqlcipher.ErrBusy

const (
	// VaultDBName is the vault file inside the data directory.
	VaultDBName = "vault.db"

	settingIdleTimeout        = "idle_timeout"
	settingShieldStatus       = "shield_status"
	defaultIdleTimeoutMinutes = 10

	// lastAttemptLayout matches what the front end shows next to each app.
	lastAttemptLayout = "15:04:05"
)

type seedApp struct {
	name, processName, icon, category string
}

var defaultApps = []seedApp{
	{"Brave Browser", "brave", "🌐", "Browser"},
	{"Google Chrome", "chrome", "🌐", "Browser"},
	{"Firefox", "firefox", "🦊", "Browser"},
	{"Discord", "discord", "💬", "Communication"},
	{"Slack", "slack", "💼", "Productivity"},
	{"Steam", "steam", "🎮", "Gaming"},
}

var defaultPolicies = []domain.SecurityPolicy{
	{
		ID:          domain.PolicyAutoKill,
		Title:       "Auto-kill unauthorized apps",
		Description: "Immediately terminate any protected application launched without authorization",
		Enabled:     true,
		Severity:    "high",
	},
	{
		ID:          domain.PolicyStealth,
		Title:       "Stealth Mode",
		Description: "Hide Ficha from process monitors and system utilities",
		Enabled:     false,
		Severity:    "medium",
	},
	{
		ID:          domain.PolicyRootPrevent,
		Title:       "Root Access Prevention",
		Description: "Block unauthorized sudo/root elevation attempts",
		Enabled:     true,
		Severity:    "high",
	},
	{
		ID:          domain.PolicyIdleAutoLock,
		Title:       "Session Lock on Idle",
		Description: "Automatically lock shield after 10 minutes of inactivity",
		Enabled:     false,
		Severity:    "low",
	},
}

// VaultImpl implements domain.Vault using a SQLCipher encrypted SQLite database.
type VaultImpl struct {
	db     *sql.DB
	dbPath string
	clock  clockwork.Clock
}

// NewVault opens (or creates and seeds) the encrypted vault in dataDir.
// The key is used as the SQLCipher passphrase via PRAGMA key. A nil clock
// means the real clock.
func NewVault(dataDir string, key []byte, clock clockwork.Clock) (*VaultImpl, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	dbPath := filepath.Join(dataDir, VaultDBName)
	db, err := sql.Open("sqlite3", vaultDSN(dbPath, key))
	if err != nil {
		return nil, fmt.Errorf("failed to open vault: %w", err)
	}

	// A wrong key only surfaces on the first real read.
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to vault: %w", err)
	}

	v := &VaultImpl{db: db, dbPath: dbPath, clock: clock}

	if err := v.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	if err := v.seed(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to seed vault: %w", err)
	}

	return v, nil
}

func (v *VaultImpl) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS protected_apps (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		process_name TEXT NOT NULL UNIQUE,
		icon TEXT NOT NULL,
		category TEXT NOT NULL,
		last_attempt TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS security_logs (
		id TEXT PRIMARY KEY,
		timestamp INTEGER NOT NULL,
		event TEXT NOT NULL,
		log_type TEXT NOT NULL,
		app TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS security_policies (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL,
		enabled INTEGER NOT NULL,
		severity TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS agent (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		pid INTEGER NOT NULL,
		process_name TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		app_version TEXT NOT NULL DEFAULT ''
	);
	`
	_, err := v.db.Exec(schema)
	return err
}

// seed inserts the default apps, policies and the first log on an empty vault.
func (v *VaultImpl) seed() error {
	var count int
	if err := v.db.QueryRow(`SELECT COUNT(*) FROM security_policies`).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	tx, err := v.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := v.clock.Now().UnixNano()
	for _, app := range defaultApps {
		if _, err := tx.Exec(`
			INSERT INTO protected_apps (id, name, process_name, icon, category, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			uuid.NewString(), app.name, app.processName, app.icon, app.category, now,
		); err != nil {
			return err
		}
	}

	for _, p := range defaultPolicies {
		if _, err := tx.Exec(`
			INSERT INTO security_policies (id, title, description, enabled, severity)
			VALUES (?, ?, ?, ?, ?)`,
			p.ID, p.Title, p.Description, boolToInt(p.Enabled), p.Severity,
		); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(`
		INSERT INTO security_logs (id, timestamp, event, log_type)
		VALUES (?, ?, ?, ?)`,
		uuid.NewString(), now, "Ficha Security Vault initialized", string(domain.LogInfo),
	); err != nil {
		return err
	}

	return tx.Commit()
}

// --- protected apps ---

// GetProtectedNames returns every protected process name.
func (v *VaultImpl) GetProtectedNames() ([]string, error) {
	rows, err := v.db.Query(`SELECT process_name FROM protected_apps ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// ListProtectedApps returns all protected apps, newest first.
func (v *VaultImpl) ListProtectedApps() ([]domain.ProtectedApp, error) {
	rows, err := v.db.Query(`
		SELECT id, name, process_name, icon, category, last_attempt, created_at
		FROM protected_apps ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var apps []domain.ProtectedApp
	for rows.Next() {
		var app domain.ProtectedApp
		var createdAt int64
		if err := rows.Scan(&app.ID, &app.Name, &app.ProcessName, &app.Icon,
			&app.Category, &app.LastAttempt, &createdAt); err != nil {
			return nil, err
		}
		app.CreatedAt = time.Unix(0, createdAt)
		apps = append(apps, app)
	}
	return apps, rows.Err()
}

// AddProtectedApp stores a new protected app. Process names are unique.
func (v *VaultImpl) AddProtectedApp(name, processName, icon, category string) (*domain.ProtectedApp, error) {
	if processName == "" {
		return nil, errors.New("process name is required")
	}
	if name == "" {
		name = processName
	}

	app := &domain.ProtectedApp{
		ID:          uuid.NewString(),
		Name:        name,
		ProcessName: processName,
		Icon:        icon,
		Category:    category,
		CreatedAt:   v.clock.Now(),
	}

	_, err := v.db.Exec(`
		INSERT INTO protected_apps (id, name, process_name, icon, category, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		app.ID, app.Name, app.ProcessName, app.Icon, app.Category, app.CreatedAt.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to add protected app %q: %w", processName, err)
	}
	return app, nil
}

// RemoveProtectedApp deletes a protected app by ID.
func (v *VaultImpl) RemoveProtectedApp(id string) error {
	result, err := v.db.Exec(`DELETE FROM protected_apps WHERE id = ?`, id)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("%w: %s", domain.ErrAppNotFound, id)
	}
	return nil
}

// RecordKill stamps last_attempt on the matched app and appends the
// attempt and kill log entries.
func (v *VaultImpl) RecordKill(ev domain.KillEvent) error {
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = v.clock.Now()
	}
	protected := ev.Protected
	if protected == "" {
		protected = ev.ProcessName
	}

	if _, err := v.db.Exec(`UPDATE protected_apps SET last_attempt = ? WHERE process_name = ?`,
		ts.Format(lastAttemptLayout), protected); err != nil {
		return fmt.Errorf("failed to update last attempt: %w", err)
	}

	if _, err := v.AddLog(fmt.Sprintf("Unauthorized launch attempt: %s", ev.ProcessName),
		domain.LogError, ev.ProcessName); err != nil {
		return err
	}
	_, err := v.AddLog(fmt.Sprintf("Process [%s] killed by Ficha Kernel (PID: %d)", ev.ProcessName, ev.PID),
		domain.LogSuccess, "")
	return err
}

// --- security logs ---

// AddLog appends a security log entry.
func (v *VaultImpl) AddLog(event string, logType domain.LogType, app string) (*domain.SecurityLog, error) {
	entry := &domain.SecurityLog{
		ID:        uuid.NewString(),
		Timestamp: v.clock.Now(),
		Event:     event,
		Type:      logType,
		App:       app,
	}
	_, err := v.db.Exec(`
		INSERT INTO security_logs (id, timestamp, event, log_type, app)
		VALUES (?, ?, ?, ?, ?)`,
		entry.ID, entry.Timestamp.UnixNano(), entry.Event, string(entry.Type), entry.App,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to add security log: %w", err)
	}
	return entry, nil
}

// Logs returns up to limit entries, most recent first. limit <= 0 means all.
func (v *VaultImpl) Logs(limit int) ([]domain.SecurityLog, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := v.db.Query(`
		SELECT id, timestamp, event, log_type, app
		FROM security_logs ORDER BY rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []domain.SecurityLog
	for rows.Next() {
		var entry domain.SecurityLog
		var ts int64
		var logType string
		if err := rows.Scan(&entry.ID, &ts, &entry.Event, &logType, &entry.App); err != nil {
			return nil, err
		}
		entry.Timestamp = time.Unix(0, ts)
		entry.Type = domain.LogType(logType)
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

// --- policies ---

// Policies returns all security policies in ID order.
func (v *VaultImpl) Policies() ([]domain.SecurityPolicy, error) {
	rows, err := v.db.Query(`SELECT id, title, description, enabled, severity FROM security_policies ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var policies []domain.SecurityPolicy
	for rows.Next() {
		var p domain.SecurityPolicy
		var enabled int
		if err := rows.Scan(&p.ID, &p.Title, &p.Description, &enabled, &p.Severity); err != nil {
			return nil, err
		}
		p.Enabled = enabled != 0
		policies = append(policies, p)
	}
	return policies, rows.Err()
}

// TogglePolicy flips a policy and returns its new state.
func (v *VaultImpl) TogglePolicy(id string) (bool, error) {
	result, err := v.db.Exec(`UPDATE security_policies SET enabled = NOT enabled WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return false, fmt.Errorf("%w: %s", domain.ErrPolicyNotFound, id)
	}
	return v.IsPolicyEnabled(id)
}

// IsPolicyEnabled reports whether a policy is enabled.
func (v *VaultImpl) IsPolicyEnabled(id string) (bool, error) {
	var enabled int
	err := v.db.QueryRow(`SELECT enabled FROM security_policies WHERE id = ?`, id).Scan(&enabled)
	if err == sql.ErrNoRows {
		return false, fmt.Errorf("%w: %s", domain.ErrPolicyNotFound, id)
	}
	if err != nil {
		return false, err
	}
	return enabled != 0, nil
}

// --- settings ---

// GetIdleTimeout returns the stored idle timeout in minutes (default 10).
func (v *VaultImpl) GetIdleTimeout() (int, error) {
	value, ok, err := v.getSetting(settingIdleTimeout)
	if err != nil {
		return 0, err
	}
	if !ok {
		return defaultIdleTimeoutMinutes, nil
	}
	minutes, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s setting %q: %w", settingIdleTimeout, value, err)
	}
	return minutes, nil
}

// SetIdleTimeout stores the idle timeout in minutes. Callers clamp.
func (v *VaultImpl) SetIdleTimeout(minutes int) error {
	return v.setSetting(settingIdleTimeout, strconv.Itoa(minutes))
}

// SetShieldStatus persists the last reported shield status.
func (v *VaultImpl) SetShieldStatus(status domain.ShieldStatus) error {
	return v.setSetting(settingShieldStatus, string(status))
}

// GetShieldStatus returns the last persisted shield status, or empty if
// no agent has reported one.
func (v *VaultImpl) GetShieldStatus() (domain.ShieldStatus, error) {
	value, _, err := v.getSetting(settingShieldStatus)
	return domain.ShieldStatus(value), err
}

func (v *VaultImpl) getSetting(key string) (string, bool, error) {
	var value string
	err := v.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (v *VaultImpl) setSetting(key, value string) error {
	_, err := v.db.Exec(`INSERT OR REPLACE INTO settings (key, value) VALUES (?, ?)`, key, value)
	return err
}

// --- agent ---

// RegisterAgent records the running agent, replacing any previous one.
func (v *VaultImpl) RegisterAgent(agent domain.AgentInfo) error {
	startedAt := agent.StartedAt
	if startedAt.IsZero() {
		startedAt = v.clock.Now()
	}
	_, err := v.db.Exec(`
		INSERT OR REPLACE INTO agent (id, pid, process_name, started_at, app_version)
		VALUES (1, ?, ?, ?, ?)`,
		agent.PID, agent.Name, startedAt.UnixNano(), agent.AppVersion,
	)
	return err
}

// GetAgent returns the registered agent, or nil if none.
func (v *VaultImpl) GetAgent() (*domain.AgentInfo, error) {
	var agent domain.AgentInfo
	var startedAt int64
	err := v.db.QueryRow(`SELECT pid, process_name, started_at, app_version FROM agent WHERE id = 1`).
		Scan(&agent.PID, &agent.Name, &startedAt, &agent.AppVersion)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	agent.StartedAt = time.Unix(0, startedAt)
	return &agent, nil
}

// Path returns the database file path.
func (v *VaultImpl) Path() string {
	return v.dbPath
}

// Close releases the database connection.
func (v *VaultImpl) Close() error {
	if v.db != nil {
		return v.db.Close()
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Ensure VaultImpl implements domain.Vault.
var _ domain.Vault = (*VaultImpl)(nil)
