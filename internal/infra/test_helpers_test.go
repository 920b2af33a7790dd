package infra

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

// testEpoch is a fixed wall time so last_attempt stamps are predictable.
var testEpoch = time.Date(2024, 5, 1, 14, 30, 5, 0, time.UTC)

// newTestVault creates a seeded vault in a temp directory.
func newTestVault(t *testing.T) (*VaultImpl, *clockwork.FakeClock, string) {
	t.Helper()
	dataDir := t.TempDir()
	key, err := GenerateKey()
	require.NoError(t, err)

	clock := clockwork.NewFakeClockAt(testEpoch)
	v, err := NewVault(dataDir, key, clock)
	require.NoError(t, err)

	t.Cleanup(func() { v.Close() })
	return v, clock, dataDir
}

// fakeNamer is an in-memory ProcessNamer.
type fakeNamer struct {
	name    string
	sets    int
	failSet error
}

func (f *fakeNamer) SetName(name string) error {
	if f.failSet != nil {
		return f.failSet
	}
	f.sets++
	f.name = name
	return nil
}

func (f *fakeNamer) Name() (string, error) {
	return f.name, nil
}
