package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/genricoloni/raspdac/internal/display"
	"github.com/genricoloni/raspdac/internal/domain"
	"github.com/jonboulle/clockwork"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// refreshTimeout bounds the state refresh issued after the display opens
const refreshTimeout = 5 * time.Second

// ErrStopped is returned by requests made after the loop has exited
var ErrStopped = errors.New("engine stopped")

// DisplayOpener opens the LCD. A nil error means the device is ready.
type DisplayOpener func() (domain.Display, error)

// Options tunes the controllers the engine creates
type Options struct {
	Clock    clockwork.Clock // nil uses the real clock
	Interval time.Duration
	Width    int // LCD columns, 0 means display.Width
}

// Engine owns the display controller and feeds it from the state source.
// Every controller call happens on the loop goroutine; other goroutines
// reach it through requests.
type Engine struct {
	logger *zap.Logger
	source domain.StateSource
	open   DisplayOpener
	opts   Options

	requests chan func()

	mu      sync.Mutex
	ctrl    *display.Controller // owned by the loop once started
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
	stopped bool
}

// NewEngine creates an engine
func NewEngine(
	logger *zap.Logger,
	source domain.StateSource,
	open DisplayOpener,
	opts Options,
) *Engine {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Engine{
		logger:   logger,
		source:   source,
		open:     open,
		opts:     opts,
		requests: make(chan func()),
		done:     make(chan struct{}),
	}
}

// Start opens the display, starts the source and launches the loop.
// It returns once the controller is ready (non-blocking).
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return nil
	}
	if e.stopped {
		return ErrStopped
	}

	e.logger.Info("Engine starting...")

	ctrl, err := e.openController()
	if err != nil {
		return err
	}

	// The loop outlives the start context, which fx bounds with a timeout
	loopCtx, cancel := context.WithCancel(context.Background())
	e.ctrl = ctrl
	e.cancel = cancel
	e.started = true

	go e.runLoop(loopCtx, ctrl)
	go e.runSource(loopCtx)
	go e.refresh(loopCtx)

	return nil
}

func (e *Engine) openController() (*display.Controller, error) {
	dev, err := e.open()
	if err != nil {
		return nil, fmt.Errorf("failed to open display: %w", err)
	}
	ctrl := display.NewController(e.logger, dev, e.opts.Clock, e.opts.Interval, e.opts.Width)
	ctrl.OnDeviceReady()
	return ctrl, nil
}

func (e *Engine) runSource(ctx context.Context) {
	if err := e.source.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		e.logger.Error("State source stopped", zap.Error(err))
	}
}

// refresh asks the source for the current state so the display does not
// wait for the next change
func (e *Engine) refresh(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()

	if err := e.source.Refresh(ctx); err != nil {
		e.logger.Warn("Initial state refresh failed", zap.Error(err))
	}
}

// runLoop serialises source events, scroll ticks and requests
func (e *Engine) runLoop(ctx context.Context, ctrl *display.Controller) {
	defer close(e.done)

	events := e.source.Events()
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Engine loop stopped")
			return

		case state, ok := <-events:
			if !ok {
				e.logger.Info("State source events channel closed")
				events = nil
				continue
			}
			e.logger.Debug("Player state",
				zap.String("status", string(state.Status)),
				zap.String("artist", state.Artist),
				zap.String("title", state.Title))
			ctrl.PushState(state)

		case <-ctrl.TickC():
			ctrl.Tick()

		case req := <-e.requests:
			req()
			// Restart may have swapped the controller
			e.mu.Lock()
			ctrl = e.ctrl
			e.mu.Unlock()
		}
	}
}

// do runs fn on the loop goroutine and waits for its result. The result
// channel is buffered so fn never blocks on a caller that gave up.
func (e *Engine) do(ctx context.Context, fn func() error) error {
	e.mu.Lock()
	started := e.started
	e.mu.Unlock()
	if !started {
		return ErrStopped
	}

	result := make(chan error, 1)
	req := func() { result <- fn() }

	select {
	case e.requests <- req:
	case <-e.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CloseDisplay ends the current song and shuts the controller down
func (e *Engine) CloseDisplay(ctx context.Context) error {
	return e.do(ctx, func() error {
		ctrl := e.controller()
		ctrl.Stop()
		return ctrl.Shutdown(ctx)
	})
}

// Restart closes the display and opens it again, then asks for the state
func (e *Engine) Restart(ctx context.Context) error {
	if err := e.CloseDisplay(ctx); err != nil {
		return err
	}

	err := e.do(ctx, func() error {
		ctrl, err := e.openController()
		if err != nil {
			return err
		}
		e.mu.Lock()
		e.ctrl = ctrl
		e.mu.Unlock()
		return nil
	})
	if err != nil {
		return err
	}

	e.logger.Info("Display restarted")
	if err := e.source.Refresh(ctx); err != nil {
		e.logger.Warn("State refresh after restart failed", zap.Error(err))
	}
	return nil
}

// Snapshot returns what the display currently shows
func (e *Engine) Snapshot(ctx context.Context) (domain.DisplaySnapshot, error) {
	snaps := make(chan domain.DisplaySnapshot, 1)
	err := e.do(ctx, func() error {
		snaps <- e.controller().Snapshot()
		return nil
	})
	if err != nil {
		return domain.DisplaySnapshot{}, err
	}
	return <-snaps, nil
}

// Stop closes the display, stops the source and ends the loop
func (e *Engine) Stop(ctx context.Context) error {
	e.logger.Info("Engine stopping...")

	var errs error
	if err := e.CloseDisplay(ctx); err != nil && !errors.Is(err, ErrStopped) {
		errs = multierr.Append(errs, err)
	}
	if err := e.source.Stop(ctx); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("failed to stop state source: %w", err))
	}

	e.mu.Lock()
	cancel := e.cancel
	started := e.started
	e.started = false
	e.stopped = e.stopped || started
	e.mu.Unlock()

	if started {
		cancel()
		select {
		case <-e.done:
		case <-ctx.Done():
			errs = multierr.Append(errs, ctx.Err())
		}
	}

	e.logger.Info("Engine stopped")
	return errs
}

func (e *Engine) controller() *display.Controller {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ctrl
}
