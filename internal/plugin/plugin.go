// Package plugin binds the display engine and the power board to the
// lifecycle hooks the host drives.
package plugin

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/genricoloni/raspdac/internal/domain"
	"github.com/genricoloni/raspdac/internal/power"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// buttonShutdownTimeout bounds the shutdown triggered by the power button
const buttonShutdownTimeout = 30 * time.Second

// DisplayEngine is the part of the engine the hooks drive
type DisplayEngine interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Restart(ctx context.Context) error
	CloseDisplay(ctx context.Context) error
}

// PowerBoard is the RaspDAC power board
type PowerBoard interface {
	Init() error
	Watch(onPress func()) error
	ShutdownSequence(ctx context.Context) error
	RebootSequence(ctx context.Context) error
	Release() error
}

// ShutdownWatcher reports host shutdowns started outside the daemon and
// holds them until the handler returns
type ShutdownWatcher interface {
	WatchShutdown(handle power.ShutdownHandler) error
	StopWatch() error
}

// Plugin implements domain.Lifecycle
type Plugin struct {
	logger    *zap.Logger
	engine    DisplayEngine
	board     PowerBoard
	watcher   ShutdownWatcher
	commander domain.PowerCommander

	// set once the board has been told the host is going down
	sequenced atomic.Bool
}

var _ domain.Lifecycle = (*Plugin)(nil)

// New creates the plugin
func New(
	logger *zap.Logger,
	engine DisplayEngine,
	board PowerBoard,
	watcher ShutdownWatcher,
	commander domain.PowerCommander,
) *Plugin {
	return &Plugin{
		logger:    logger,
		engine:    engine,
		board:     board,
		watcher:   watcher,
		commander: commander,
	}
}

// OnStart drives the power pins to their running levels, starts the display
// and begins watching the shutdown button
func (p *Plugin) OnStart(ctx context.Context) error {
	if err := p.board.Init(); err != nil {
		return fmt.Errorf("failed to initialise power board: %w", err)
	}
	if err := p.engine.Start(ctx); err != nil {
		return multierr.Append(err, p.board.Release())
	}
	if err := p.board.Watch(p.onButton); err != nil {
		return multierr.Append(err, p.OnStop(ctx))
	}
	if err := p.watcher.WatchShutdown(p.prepare); err != nil {
		p.logger.Warn("Host shutdowns will not reach the power board", zap.Error(err))
	}

	p.logger.Info("RaspDAC started")
	return nil
}

// onButton runs on the watcher goroutine
func (p *Plugin) onButton() {
	ctx, cancel := context.WithTimeout(context.Background(), buttonShutdownTimeout)
	defer cancel()

	if err := p.OnHostShutdown(ctx); err != nil {
		p.logger.Error("Shutdown from power button failed", zap.Error(err))
	}
}

// prepare closes the display and runs the board sequence once per host
// shutdown, whether the daemon or someone else started it. For shutdowns
// started elsewhere it runs while logind holds them.
func (p *Plugin) prepare(ctx context.Context, reboot bool) {
	if !p.sequenced.CompareAndSwap(false, true) {
		return
	}

	if err := p.engine.CloseDisplay(ctx); err != nil {
		p.logger.Warn("Failed to close display", zap.Bool("reboot", reboot), zap.Error(err))
	}

	sequence := p.board.ShutdownSequence
	if reboot {
		sequence = p.board.RebootSequence
	}
	if err := sequence(ctx); err != nil {
		p.logger.Warn("Power board sequence failed", zap.Bool("reboot", reboot), zap.Error(err))
	}
}

// OnStop closes the display, stops watching the button and host shutdowns
// and releases the pins
func (p *Plugin) OnStop(ctx context.Context) error {
	err := multierr.Combine(
		p.engine.Stop(ctx),
		p.watcher.StopWatch(),
		p.board.Release(),
	)
	if err != nil {
		p.logger.Error("RaspDAC stopped with errors", zap.Error(err))
		return err
	}

	p.logger.Info("RaspDAC stopped")
	return nil
}

// OnRestart closes the display and opens it again
func (p *Plugin) OnRestart(ctx context.Context) error {
	p.logger.Info("Restarting display")
	return p.engine.Restart(ctx)
}

// OnHostShutdown closes the display, signals the power board and powers
// the host off
func (p *Plugin) OnHostShutdown(ctx context.Context) error {
	p.logger.Info("Host shutdown requested")
	p.prepare(ctx, false)
	return p.commander.Shutdown(ctx)
}

// OnHostReboot closes the display, signals the power board and reboots
// the host
func (p *Plugin) OnHostReboot(ctx context.Context) error {
	p.logger.Info("Host reboot requested")
	p.prepare(ctx, true)
	return p.commander.Reboot(ctx)
}
