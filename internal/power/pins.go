// Package power drives the RaspDAC power board and asks the host to power off.
package power

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/genricoloni/raspdac/internal/config"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

const (
	// soft_shutdown stays high this long during a host shutdown
	shutdownPulse = time.Second
	// the board is told about a reboot only after this delay
	rebootDelay = 2 * time.Second
	// bounds each WaitForEdge so the watcher notices Release
	edgePollTimeout = 500 * time.Millisecond
)

// Pins talks to the power board: soft_shutdown and boot_ok are outputs,
// shutdown_button is an input watched on both edges. A nil pin is disabled.
type Pins struct {
	logger       *zap.Logger
	softShutdown gpio.PinOut
	bootOK       gpio.PinOut
	button       gpio.PinIn

	shutdownPulse time.Duration
	rebootDelay   time.Duration
	pollTimeout   time.Duration

	mu          sync.Mutex
	watchCancel context.CancelFunc
	wg          sync.WaitGroup
	pressed     atomic.Bool
}

// NewPins wraps already resolved pins
func NewPins(logger *zap.Logger, softShutdown, bootOK gpio.PinOut, button gpio.PinIn) *Pins {
	return &Pins{
		logger:        logger,
		softShutdown:  softShutdown,
		bootOK:        bootOK,
		button:        button,
		shutdownPulse: shutdownPulse,
		rebootDelay:   rebootDelay,
		pollTimeout:   edgePollTimeout,
	}
}

// OpenPins resolves the configured BCM pins. The periph host is only
// initialised when at least one pin is enabled.
func OpenPins(logger *zap.Logger, cfg *config.AppConfig) (*Pins, error) {
	p := cfg.Settings().Power
	if p.SoftShutdown == 0 && p.BootOK == 0 && p.ShutdownButton == 0 {
		logger.Info("Power board pins disabled")
		return NewPins(logger, nil, nil, nil), nil
	}

	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialise periph host: %w", err)
	}

	soft, err := lookup(p.SoftShutdown)
	if err != nil {
		return nil, fmt.Errorf("soft_shutdown: %w", err)
	}
	boot, err := lookup(p.BootOK)
	if err != nil {
		return nil, fmt.Errorf("boot_ok: %w", err)
	}
	button, err := lookup(p.ShutdownButton)
	if err != nil {
		return nil, fmt.Errorf("shutdown_button: %w", err)
	}

	logger.Info("Power board pins resolved",
		zap.Int("soft_shutdown", p.SoftShutdown),
		zap.Int("boot_ok", p.BootOK),
		zap.Int("shutdown_button", p.ShutdownButton))

	return NewPins(logger, soft, boot, button), nil
}

func lookup(bcm int) (gpio.PinIO, error) {
	if bcm == 0 {
		return nil, nil
	}
	pin := gpioreg.ByName(fmt.Sprintf("GPIO%d", bcm))
	if pin == nil {
		return nil, fmt.Errorf("GPIO%d not found", bcm)
	}
	return pin, nil
}

// Wired reports whether any output pin reaches the board
func (p *Pins) Wired() bool {
	return p.softShutdown != nil || p.bootOK != nil
}

// Init puts the outputs in their running state: soft_shutdown low, boot_ok high
func (p *Pins) Init() error {
	return multierr.Combine(
		p.set("soft_shutdown", p.softShutdown, gpio.Low),
		p.set("boot_ok", p.bootOK, gpio.High),
	)
}

// Watch calls onPress the first time the shutdown button changes level.
// It returns immediately; the watcher runs until Release.
func (p *Pins) Watch(onPress func()) error {
	if p.button == nil {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.watchCancel != nil {
		return nil
	}

	if err := p.button.In(gpio.PullNoChange, gpio.BothEdges); err != nil {
		return fmt.Errorf("failed to watch shutdown button: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.watchCancel = cancel
	p.wg.Add(1)
	go p.watch(ctx, onPress)

	p.logger.Info("Watching shutdown button", zap.String("pin", p.button.Name()))
	return nil
}

func (p *Pins) watch(ctx context.Context, onPress func()) {
	defer p.wg.Done()

	for ctx.Err() == nil {
		if !p.button.WaitForEdge(p.pollTimeout) {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		if p.pressed.CompareAndSwap(false, true) {
			p.logger.Info("Shutdown button pressed", zap.Stringer("level", p.button.Read()))
			onPress()
		}
	}
}

// ShutdownSequence tells the board the host is going down: soft_shutdown
// high and boot_ok low, then soft_shutdown back low after a pulse.
func (p *Pins) ShutdownSequence(ctx context.Context) error {
	err := multierr.Combine(
		p.set("soft_shutdown", p.softShutdown, gpio.High),
		p.set("boot_ok", p.bootOK, gpio.Low),
	)

	select {
	case <-time.After(p.shutdownPulse):
	case <-ctx.Done():
		err = multierr.Append(err, ctx.Err())
	}

	return multierr.Append(err, p.set("soft_shutdown", p.softShutdown, gpio.Low))
}

// RebootSequence raises soft_shutdown and boot_ok after the reboot delay
func (p *Pins) RebootSequence(ctx context.Context) error {
	select {
	case <-time.After(p.rebootDelay):
	case <-ctx.Done():
		return ctx.Err()
	}

	return multierr.Combine(
		p.set("soft_shutdown", p.softShutdown, gpio.High),
		p.set("boot_ok", p.bootOK, gpio.High),
	)
}

// Release stops the button watcher and halts every pin
func (p *Pins) Release() error {
	p.mu.Lock()
	cancel := p.watchCancel
	p.watchCancel = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
		p.wg.Wait()
	}

	var err error
	if p.button != nil {
		err = multierr.Append(err, p.button.Halt())
	}
	if p.softShutdown != nil {
		err = multierr.Append(err, p.softShutdown.Halt())
	}
	if p.bootOK != nil {
		err = multierr.Append(err, p.bootOK.Halt())
	}
	if err != nil {
		return fmt.Errorf("failed to release power pins: %w", err)
	}

	p.logger.Info("Power board pins released")
	return nil
}

func (p *Pins) set(name string, pin gpio.PinOut, level gpio.Level) error {
	if pin == nil {
		return nil
	}
	if err := pin.Out(level); err != nil {
		return fmt.Errorf("failed to drive %s %s: %w", name, level, err)
	}
	p.logger.Debug("Power pin set", zap.String("pin", name), zap.Stringer("level", level))
	return nil
}
