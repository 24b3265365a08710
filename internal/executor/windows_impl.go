//go:build windows
// +build windows

package executor

import (
	"context"
	"fmt"
	"os/exec"

	"go.uber.org/zap"
)

// WindowsExecutor powers the host off through shutdown.exe
type WindowsExecutor struct {
	logger *zap.Logger
}

// NewExecutor creates a new platform-specific power executor (Windows implementation)
func NewExecutor(logger *zap.Logger) (*WindowsExecutor, error) {
	logger.Info("Windows power executor initialized")
	return &WindowsExecutor{logger: logger}, nil
}

// Shutdown powers the host off
func (e *WindowsExecutor) Shutdown(ctx context.Context) error {
	return e.exec(ctx, "/s")
}

// Reboot restarts the host
func (e *WindowsExecutor) Reboot(ctx context.Context) error {
	return e.exec(ctx, "/r")
}

func (e *WindowsExecutor) exec(ctx context.Context, mode string) error {
	e.logger.Info("Running shutdown.exe", zap.String("mode", mode))

	output, err := exec.CommandContext(ctx, "shutdown", mode, "/t", "0").CombinedOutput()
	if err != nil {
		return fmt.Errorf("shutdown %s failed: %w (output: %s)", mode, err, string(output))
	}
	return nil
}
