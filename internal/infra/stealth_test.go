package infra

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/ficha/internal/domain"
)

func TestStealth_EnableDisable(t *testing.T) {
	namer := &fakeNamer{name: "ficha-app"}
	s := NewStealthWithNamer(namer, "", "", zap.NewNop())

	require.NoError(t, s.Enable())
	name, err := s.Name()
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultDecoyName, name)

	require.NoError(t, s.Disable())
	name, err = s.Name()
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultOriginalName, name)
}

func TestStealth_Idempotent(t *testing.T) {
	namer := &fakeNamer{name: "ficha-app"}
	s := NewStealthWithNamer(namer, "kworker", "ficha-app", zap.NewNop())

	require.NoError(t, s.Enable())
	require.NoError(t, s.Enable())
	assert.Equal(t, 1, namer.sets)

	require.NoError(t, s.Disable())
	require.NoError(t, s.Disable())
	assert.Equal(t, 2, namer.sets)
	assert.Equal(t, "ficha-app", namer.name)
}

func TestStealth_TruncatesToCommLimit(t *testing.T) {
	namer := &fakeNamer{}
	s := NewStealthWithNamer(namer, "a-very-long-decoy-process-name", "", zap.NewNop())

	require.NoError(t, s.Enable())
	assert.Equal(t, "a-very-long-dec", namer.name)
	assert.Len(t, namer.name, maxCommLen)
}

func TestStealth_PropagatesErrors(t *testing.T) {
	namer := &fakeNamer{failSet: errors.New("permission denied")}
	s := NewStealthWithNamer(namer, "", "", zap.NewNop())

	err := s.Enable()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "enable stealth")

	assert.Error(t, s.Disable())
}

func TestStealth_Unsupported(t *testing.T) {
	s := NewStealthWithNamer(unsupportedNamer{}, "", "", zap.NewNop())

	assert.True(t, errors.Is(s.Enable(), domain.ErrStealthUnsupported))
	assert.True(t, errors.Is(s.Disable(), domain.ErrStealthUnsupported))
	_, err := s.Name()
	assert.True(t, errors.Is(err, domain.ErrStealthUnsupported))
}
