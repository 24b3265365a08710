//go:build !linux && !windows
// +build !linux,!windows

package executor

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// StubExecutor is a placeholder for unsupported platforms (macOS, BSD, etc.)
type StubExecutor struct {
	logger *zap.Logger
}

// NewExecutor creates a stub executor for unsupported platforms
func NewExecutor(logger *zap.Logger) (*StubExecutor, error) {
	logger.Warn("Power commands are not implemented for this platform")
	return &StubExecutor{logger: logger}, nil
}

// Shutdown returns an error indicating the platform is not supported
func (e *StubExecutor) Shutdown(ctx context.Context) error {
	return fmt.Errorf("host shutdown not implemented for this platform")
}

// Reboot returns an error indicating the platform is not supported
func (e *StubExecutor) Reboot(ctx context.Context) error {
	return fmt.Errorf("host reboot not implemented for this platform")
}
