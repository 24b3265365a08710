package domain

import "context"

// Display is a character LCD as seen by the display controller.
// Implementations live in internal/lcd; a successful open is the readiness signal.
//
//go:generate mockgen -destination=mocks/display_mock.go -package=mocks github.com/genricoloni/raspdac/internal/domain Display,StateSource,PowerCommander
type Display interface {
	// SetCursor moves the cursor to the given 0-based column and row
	SetCursor(col, row int) error

	// Print writes text at the cursor position
	Print(text string) error

	// Clear blanks the display and homes the cursor
	Clear() error

	// Close releases the device
	Close() error
}

// StateSource pushes playback snapshots from the host player
type StateSource interface {
	// Start connects to the host. It blocks until the context is cancelled
	// or the source gives up.
	Start(ctx context.Context) error

	// Stop disconnects and closes the events channel
	Stop(ctx context.Context) error

	// Events returns a read-only channel of playback snapshots
	Events() <-chan PlaybackState

	// Refresh asks the host to push its current state again
	Refresh(ctx context.Context) error
}

// PowerCommander asks the host system to power off or reboot
type PowerCommander interface {
	Shutdown(ctx context.Context) error
	Reboot(ctx context.Context) error
}

// Lifecycle is the set of hooks the host used to drive the plugin.
// OnStart and OnStop follow the process lifecycle; the others are
// triggered externally (control API, shutdown button).
type Lifecycle interface {
	OnStart(ctx context.Context) error
	OnStop(ctx context.Context) error
	OnRestart(ctx context.Context) error
	OnHostShutdown(ctx context.Context) error
	OnHostReboot(ctx context.Context) error
}
