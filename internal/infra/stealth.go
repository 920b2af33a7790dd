package infra

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/ficha/internal/domain"
)

// maxCommLen is the kernel's TASK_COMM_LEN minus the trailing NUL.
const maxCommLen = 15

// ProcessNamer is the platform capability behind stealth mode: get and set
// the calling process's OS-visible short name.
type ProcessNamer interface {
	SetName(name string) error
	Name() (string, error)
}

// unsupportedNamer is selected on platforms without a rename primitive.
type unsupportedNamer struct{}

func (unsupportedNamer) SetName(string) error   { return domain.ErrStealthUnsupported }
func (unsupportedNamer) Name() (string, error) { return "", domain.ErrStealthUnsupported }

// StealthImpl implements domain.StealthController on top of a ProcessNamer.
type StealthImpl struct {
	namer    ProcessNamer
	decoy    string
	original string
	logger   *zap.Logger
}

// NewStealthController selects the namer for the running platform.
// Empty names fall back to the domain defaults.
func NewStealthController(decoy, original string, logger *zap.Logger) domain.StealthController {
	return NewStealthWithNamer(newPlatformNamer(), decoy, original, logger)
}

// NewStealthWithNamer creates a controller over an explicit namer (for testing).
func NewStealthWithNamer(namer ProcessNamer, decoy, original string, logger *zap.Logger) *StealthImpl {
	if decoy == "" {
		decoy = domain.DefaultDecoyName
	}
	if original == "" {
		original = domain.DefaultOriginalName
	}
	return &StealthImpl{
		namer:    namer,
		decoy:    truncateComm(decoy),
		original: truncateComm(original),
		logger:   logger,
	}
}

// Enable switches the visible process name to the decoy.
func (s *StealthImpl) Enable() error {
	if err := s.rename(s.decoy); err != nil {
		return fmt.Errorf("enable stealth: %w", err)
	}
	s.logger.Info("stealth mode enabled", zap.String("name", s.decoy))
	return nil
}

// Disable restores the original process name.
func (s *StealthImpl) Disable() error {
	if err := s.rename(s.original); err != nil {
		return fmt.Errorf("disable stealth: %w", err)
	}
	s.logger.Info("stealth mode disabled", zap.String("name", s.original))
	return nil
}

// Name returns the currently visible process name.
func (s *StealthImpl) Name() (string, error) {
	return s.namer.Name()
}

func (s *StealthImpl) rename(name string) error {
	if current, err := s.namer.Name(); err == nil && current == name {
		return nil
	}
	return s.namer.SetName(name)
}

// truncateComm cuts name to what the kernel will store.
func truncateComm(name string) string {
	if len(name) > maxCommLen {
		return name[:maxCommLen]
	}
	return name
}

// Ensure StealthImpl implements domain.StealthController.
var _ domain.StealthController = (*StealthImpl)(nil)
