package display

import (
	"context"
	"time"

	"github.com/genricoloni/raspdac/internal/domain"
	"github.com/jonboulle/clockwork"
	"github.com/rs/xid"
	"go.uber.org/zap"
)

// DefaultInterval is the scroll animation period
const DefaultInterval = 500 * time.Millisecond

// closeGrace lets an in-flight tick finish its device writes before the device is released
const closeGrace = 10 * time.Millisecond

// Controller renders playback state on a two-line LCD.
// It is not safe for concurrent use: every method must be called from the
// same goroutine (the engine loop), including the handling of TickC.
type Controller struct {
	logger   *zap.Logger
	device   domain.Display
	clock    clockwork.Clock
	interval time.Duration
	width    int

	ready          bool
	closeRequested bool
	locked         bool

	session    xid.ID
	current    *domain.PlaybackState
	renderData domain.PlaybackState
	elapsedMs  int64
	offset     int
	ticker     clockwork.Ticker
	lines      [2]string
}

// NewController creates a controller owning the given device, width
// columns wide. Nothing is written until OnDeviceReady is called.
func NewController(logger *zap.Logger, device domain.Display, clock clockwork.Clock, interval time.Duration, width int) *Controller {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	if width <= 0 {
		width = Width
	}
	return &Controller{
		logger:   logger,
		device:   device,
		clock:    clock,
		interval: interval,
		width:    width,
		session:  xid.New(),
	}
}

// OnDeviceReady clears the display and enables rendering
func (c *Controller) OnDeviceReady() {
	if c.closeRequested {
		return
	}
	c.ready = true
	c.clear()
	c.logger.Info("LCD initialization OK", zap.String("session", c.session.String()))
}

// PushState applies a new playback snapshot from the host
func (c *Controller) PushState(state domain.PlaybackState) {
	switch {
	case state.Status == domain.StatusStopped:
		c.elapsedMs = 0
		c.Stop()
	case c.needsRestart(state):
		c.elapsedMs = state.Seek
		c.Stop()
		c.session = xid.New()
		c.logger.Debug("Starting display session",
			zap.String("session", c.session.String()),
			zap.String("artist", state.Artist),
			zap.String("title", state.Title),
			zap.String("status", string(state.Status)))
		c.Render(state)
	default:
		// Same track: resync the counter, keep the animation going.
		// While paused the ticks stop advancing it.
		c.elapsedMs = state.Seek
	}

	s := state
	c.current = &s
}

// needsRestart detects track changes and resumes from stop
func (c *Controller) needsRestart(state domain.PlaybackState) bool {
	if c.current == nil {
		return true
	}
	if (state.Status == domain.StatusPlaying || state.Status == domain.StatusPaused) &&
		c.current.Status == domain.StatusStopped {
		return true
	}
	return !c.current.SameTrack(state)
}

// Render draws one frame for data and schedules the next ones
func (c *Controller) Render(data domain.PlaybackState) {
	if c.locked {
		c.logger.Info("Display info locked, skipped")
		return
	}
	if !c.ready {
		return
	}
	c.locked = true
	defer func() { c.locked = false }()

	if c.elapsedMs >= data.Duration*1000 {
		c.Stop()
		return
	}

	buf := ScrollBuffer(Label(data.Artist, data.Title), c.width)
	if c.offset >= len(buf)-c.width {
		c.offset = 0
	}

	c.print(buf[c.offset:c.offset+c.width], 0)
	c.print(fit(durationText(c.elapsedMs, data.Duration), c.width), 1)

	if c.ticker == nil {
		c.renderData = data
		c.ticker = c.clock.NewTicker(c.interval)
	}

	if len(buf) > c.width {
		c.offset++
	}
}

// TickC returns the channel of the active redraw timer, nil when idle.
// Receiving from a nil channel blocks, so the engine can select on it unconditionally.
func (c *Controller) TickC() <-chan time.Time {
	if c.ticker == nil {
		return nil
	}
	return c.ticker.Chan()
}

// Tick advances the animation by one interval and redraws
func (c *Controller) Tick() {
	if c.ticker == nil {
		return
	}
	if c.current == nil || c.current.Status != domain.StatusPaused {
		c.elapsedMs += c.interval.Milliseconds()
	}
	c.Render(c.renderData)
}

// Stop ends the animation: timer cancelled, offset reset, display cleared
func (c *Controller) Stop() {
	c.stopTimer()
	c.offset = 0
	c.clear()
	if c.current != nil {
		stopped := *c.current
		stopped.Status = domain.StatusStopped
		c.current = &stopped
	}
}

// Shutdown cancels the timer and releases the device after a grace delay.
// Only the first call does anything.
func (c *Controller) Shutdown(ctx context.Context) error {
	if c.closeRequested {
		return nil
	}
	c.closeRequested = true
	c.stopTimer()

	select {
	case <-c.clock.After(c.interval + closeGrace):
	case <-ctx.Done():
	}

	c.ready = false
	if c.device == nil {
		return nil
	}
	err := c.device.Close()
	c.device = nil
	if err != nil {
		c.logger.Error("Failed to release LCD", zap.Error(err))
		return err
	}
	c.logger.Info("LCD released", zap.String("session", c.session.String()))
	return nil
}

// Snapshot copies the session state
func (c *Controller) Snapshot() domain.DisplaySnapshot {
	snap := domain.DisplaySnapshot{
		SessionID:    c.session.String(),
		Ready:        c.ready,
		Running:      c.ticker != nil,
		ElapsedMs:    c.elapsedMs,
		ScrollOffset: c.offset,
		Lines:        c.lines,
	}
	if c.current != nil {
		cur := *c.current
		snap.Current = &cur
	}
	return snap
}

func (c *Controller) stopTimer() {
	if c.ticker != nil {
		c.ticker.Stop()
		c.ticker = nil
	}
}

func (c *Controller) clear() {
	c.lines = [2]string{}
	if !c.ready || c.device == nil {
		return
	}
	if err := c.device.Clear(); err != nil {
		c.logger.Error("Failed to clear LCD", zap.Error(err))
	}
}

func (c *Controller) print(text string, row int) {
	c.lines[row] = text
	if c.device == nil {
		return
	}
	if err := c.device.SetCursor(0, row); err != nil {
		c.logger.Error("Failed to move LCD cursor", zap.Int("row", row), zap.Error(err))
		return
	}
	if err := c.device.Print(text); err != nil {
		c.logger.Error("Failed to print on LCD", zap.Int("row", row), zap.Error(err))
	}
}
