//go:build linux
// +build linux

package executor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// PowerCommand represents a detected power management command
type PowerCommand struct {
	Name     string
	Binary   string
	Shutdown []string
	Reboot   []string
}

var (
	// Ordered list of power commands to try (highest priority first)
	powerCommands = []PowerCommand{
		// systemd hosts (Volumio, Raspberry Pi OS)
		{Name: "systemctl", Binary: "systemctl", Shutdown: []string{"poweroff"}, Reboot: []string{"reboot"}},
		// sysvinit / busybox
		{Name: "shutdown", Binary: "shutdown", Shutdown: []string{"-h", "now"}, Reboot: []string{"-r", "now"}},
		{Name: "poweroff", Binary: "poweroff", Shutdown: []string{}, Reboot: nil},
	}

	// systemdMarker exists only when systemd is PID 1
	systemdMarker = "/run/systemd/system"
)

type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// LinuxExecutor powers the host off or reboots it through a system command
type LinuxExecutor struct {
	logger  *zap.Logger
	command PowerCommand
	run     runFunc
}

// NewExecutor creates a new platform-specific power executor (Linux implementation)
func NewExecutor(logger *zap.Logger) (*LinuxExecutor, error) {
	cmd := detectCommand(logger)
	if cmd.Binary == "" {
		return nil, fmt.Errorf("no supported power command found on this system")
	}

	logger.Info("Power command detected",
		zap.String("name", cmd.Name),
		zap.String("binary", cmd.Binary))

	return &LinuxExecutor{
		logger:  logger,
		command: cmd,
		run:     runCommand,
	}, nil
}

// detectCommand picks systemctl on systemd hosts, the first available command otherwise
func detectCommand(logger *zap.Logger) PowerCommand {
	_, err := os.Stat(systemdMarker)
	systemd := err == nil

	logger.Debug("Detecting power command", zap.Bool("systemd", systemd))

	if systemd {
		for _, cmd := range powerCommands {
			if cmd.Name == "systemctl" && commandExists(cmd.Binary) {
				return cmd
			}
		}
	}

	for _, cmd := range powerCommands {
		if cmd.Name == "systemctl" {
			// systemctl without systemd running cannot power anything off
			continue
		}
		if commandExists(cmd.Binary) {
			logger.Info("Using fallback power command", zap.String("name", cmd.Name))
			return cmd
		}
	}

	return PowerCommand{}
}

// commandExists checks if a binary exists in PATH
func commandExists(binary string) bool {
	_, err := exec.LookPath(binary)
	return err == nil
}

// Shutdown powers the host off
func (e *LinuxExecutor) Shutdown(ctx context.Context) error {
	return e.exec(ctx, "shutdown", e.command.Shutdown)
}

// Reboot restarts the host
func (e *LinuxExecutor) Reboot(ctx context.Context) error {
	if e.command.Reboot == nil {
		return fmt.Errorf("%s cannot reboot", e.command.Name)
	}
	return e.exec(ctx, "reboot", e.command.Reboot)
}

func (e *LinuxExecutor) exec(ctx context.Context, action string, args []string) error {
	e.logger.Info("Running power command",
		zap.String("action", action),
		zap.String("command", e.command.Binary),
		zap.String("args", strings.Join(args, " ")))

	output, err := e.run(ctx, e.command.Binary, args...)
	if err != nil {
		return fmt.Errorf("failed to %s with %s: %w (output: %s)",
			action, e.command.Name, err, strings.TrimSpace(string(output)))
	}
	return nil
}
