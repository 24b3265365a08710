package display

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/genricoloni/raspdac/internal/domain"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// recordingDisplay logs every device call
type recordingDisplay struct {
	calls    []string
	closed   int
	printErr error
}

func (d *recordingDisplay) SetCursor(col, row int) error {
	d.calls = append(d.calls, fmt.Sprintf("cursor %d,%d", col, row))
	return nil
}

func (d *recordingDisplay) Print(text string) error {
	d.calls = append(d.calls, "print "+text)
	return d.printErr
}

func (d *recordingDisplay) Clear() error {
	d.calls = append(d.calls, "clear")
	return nil
}

func (d *recordingDisplay) Close() error {
	d.closed++
	return nil
}

func (d *recordingDisplay) reset() { d.calls = nil }

// countingTicker records whether the controller stopped it
type countingTicker struct {
	clockwork.Ticker
	stopped bool
}

func (t *countingTicker) Stop() {
	t.stopped = true
	t.Ticker.Stop()
}

// fakeClock is the part of clockwork's fake clock the tests drive
type fakeClock interface {
	clockwork.Clock
	Advance(d time.Duration)
}

// testClock never fires on its own; tests call Tick directly or Advance it.
// It counts the tickers it hands out and reports every grace wait.
type testClock struct {
	fakeClock
	tickers []*countingTicker
	waits   chan time.Duration
}

func newTestClock() *testClock {
	return &testClock{fakeClock: clockwork.NewFakeClock(), waits: make(chan time.Duration, 4)}
}

func (c *testClock) NewTicker(d time.Duration) clockwork.Ticker {
	t := &countingTicker{Ticker: c.fakeClock.NewTicker(d)}
	c.tickers = append(c.tickers, t)
	return t
}

func (c *testClock) After(d time.Duration) <-chan time.Time {
	ch := c.fakeClock.After(d)
	c.waits <- d
	return ch
}

func (c *testClock) active() int {
	n := 0
	for _, t := range c.tickers {
		if !t.stopped {
			n++
		}
	}
	return n
}

func newTestController(t *testing.T) (*Controller, *recordingDisplay, *testClock) {
	t.Helper()
	dev := &recordingDisplay{}
	clk := newTestClock()
	c := NewController(zap.NewNop(), dev, clk, DefaultInterval, Width)
	c.OnDeviceReady()
	dev.reset()
	return c, dev, clk
}

func playing(artist, title string, seek, duration int64) domain.PlaybackState {
	return domain.PlaybackState{
		Status:   domain.StatusPlaying,
		Artist:   artist,
		Title:    title,
		Seek:     seek,
		Duration: duration,
	}
}

func TestController_RenderBeforeReady(t *testing.T) {
	dev := &recordingDisplay{}
	clk := newTestClock()
	c := NewController(zap.NewNop(), dev, clk, DefaultInterval, Width)

	c.PushState(playing("A", "B", 0, 100))

	if len(dev.calls) != 0 {
		t.Errorf("expected no device writes before ready, got %v", dev.calls)
	}
	if c.Snapshot().Running {
		t.Error("expected no timer before ready")
	}
}

func TestController_OnDeviceReadyClears(t *testing.T) {
	dev := &recordingDisplay{}
	c := NewController(zap.NewNop(), dev, newTestClock(), DefaultInterval, Width)

	c.OnDeviceReady()

	if len(dev.calls) != 1 || dev.calls[0] != "clear" {
		t.Errorf("expected a single clear, got %v", dev.calls)
	}
	if !c.Snapshot().Ready {
		t.Error("expected controller to be ready")
	}
}

func TestController_ShortLabelDoesNotScroll(t *testing.T) {
	c, dev, clk := newTestController(t)

	c.PushState(playing("A", "B", 0, 100))

	expected := []string{
		"clear",
		"cursor 0,0", "print A-B             ",
		"cursor 0,1", "print " + FormatDuration(0, 100),
	}
	if fmt.Sprint(dev.calls) != fmt.Sprint(expected) {
		t.Errorf("unexpected device calls:\n got %q\nwant %q", dev.calls, expected)
	}
	if clk.active() != 1 {
		t.Fatalf("expected one active timer, got %d", clk.active())
	}

	for i := 0; i < 5; i++ {
		c.Tick()
	}
	snap := c.Snapshot()
	if snap.ScrollOffset != 0 {
		t.Errorf("short label should never scroll, offset %d", snap.ScrollOffset)
	}
	if snap.Lines[0] != "A-B             " {
		t.Errorf("unexpected first line %q", snap.Lines[0])
	}
	if snap.ElapsedMs != 2500 {
		t.Errorf("expected 2500ms elapsed, got %d", snap.ElapsedMs)
	}
}

func TestController_ScrollWrapsAtBoundary(t *testing.T) {
	c, _, _ := newTestController(t)
	// 20 characters: buffer is 20 + 10 + 16, wrap boundary 30
	c.PushState(playing("ABCDEFGHI", "KLMNOPQRST", 0, 300))

	if got := c.Snapshot().Lines[0]; got != "ABCDEFGHI-KLMNOP" {
		t.Fatalf("unexpected first window %q", got)
	}

	boundary := 20 + len(scrollSeparator)
	for i := 1; i < boundary; i++ {
		c.Tick()
		if off := c.Snapshot().ScrollOffset; off > boundary {
			t.Fatalf("offset %d exceeds %d", off, boundary)
		}
	}
	if off := c.Snapshot().ScrollOffset; off != boundary {
		t.Fatalf("expected offset %d before wrap, got %d", boundary, off)
	}
	if got := c.Snapshot().Lines[0]; got != " ABCDEFGHI-KLMNO" {
		t.Errorf("unexpected window before wrap %q", got)
	}

	c.Tick()
	snap := c.Snapshot()
	if snap.Lines[0] != "ABCDEFGHI-KLMNOP" {
		t.Errorf("expected wrap to label start, got %q", snap.Lines[0])
	}
	if snap.ScrollOffset != 1 {
		t.Errorf("expected offset 1 after wrap, got %d", snap.ScrollOffset)
	}
}

func TestController_PushStopped(t *testing.T) {
	c, dev, clk := newTestController(t)
	c.PushState(playing("ABCDEFGHI", "KLMNOPQRST", 12000, 300))
	c.Tick()
	c.Tick()
	dev.reset()

	stopped := playing("ABCDEFGHI", "KLMNOPQRST", 14000, 300)
	stopped.Status = domain.StatusStopped
	c.PushState(stopped)

	snap := c.Snapshot()
	if snap.ElapsedMs != 0 {
		t.Errorf("expected elapsed 0, got %d", snap.ElapsedMs)
	}
	if snap.Running || clk.active() != 0 {
		t.Error("expected no active timer")
	}
	if snap.ScrollOffset != 0 {
		t.Errorf("expected offset 0, got %d", snap.ScrollOffset)
	}
	if len(dev.calls) != 1 || dev.calls[0] != "clear" {
		t.Errorf("expected display cleared, got %v", dev.calls)
	}
	if snap.Current == nil || snap.Current.Status != domain.StatusStopped {
		t.Errorf("expected stopped state recorded, got %+v", snap.Current)
	}
	if c.TickC() != nil {
		t.Error("expected nil tick channel when idle")
	}
}

func TestController_SameTrackKeepsAnimation(t *testing.T) {
	c, dev, clk := newTestController(t)
	c.PushState(playing("ABCDEFGHI", "KLMNOPQRST", 0, 300))
	c.Tick()
	c.Tick()
	before := c.Snapshot()
	dev.reset()

	c.PushState(playing("ABCDEFGHI", "KLMNOPQRST", 30000, 300))

	snap := c.Snapshot()
	if snap.ScrollOffset != before.ScrollOffset {
		t.Errorf("expected offset %d kept, got %d", before.ScrollOffset, snap.ScrollOffset)
	}
	if snap.SessionID != before.SessionID {
		t.Error("expected the same session")
	}
	if snap.ElapsedMs != 30000 {
		t.Errorf("expected elapsed resynced to 30000, got %d", snap.ElapsedMs)
	}
	if len(dev.calls) != 0 {
		t.Errorf("expected no immediate redraw, got %v", dev.calls)
	}
	if len(clk.tickers) != 1 || clk.active() != 1 {
		t.Errorf("expected the original timer only, got %d created %d active", len(clk.tickers), clk.active())
	}
}

func TestController_TitleChangeRestarts(t *testing.T) {
	c, _, clk := newTestController(t)
	c.PushState(playing("ABCDEFGHI", "KLMNOPQRST", 0, 300))
	c.Tick()
	c.Tick()
	c.Tick()
	before := c.Snapshot()

	c.PushState(playing("ABCDEFGHI", "Another long title", 1000, 200))

	snap := c.Snapshot()
	if snap.ScrollOffset != 1 {
		t.Errorf("expected a fresh render at offset 0 then 1, got %d", snap.ScrollOffset)
	}
	if snap.SessionID == before.SessionID {
		t.Error("expected a new session")
	}
	if snap.ElapsedMs != 1000 {
		t.Errorf("expected elapsed from seek, got %d", snap.ElapsedMs)
	}
	if snap.Lines[0] != "ABCDEFGHI-Anothe" {
		t.Errorf("unexpected first line %q", snap.Lines[0])
	}
	if clk.active() != 1 {
		t.Errorf("expected exactly one active timer, got %d", clk.active())
	}
	if !clk.tickers[0].stopped {
		t.Error("expected the previous timer to be cancelled")
	}
}

func TestController_NeedsRestart(t *testing.T) {
	paused := playing("A", "B", 0, 100)
	paused.Status = domain.StatusPaused
	stopped := playing("A", "B", 0, 100)
	stopped.Status = domain.StatusStopped

	tests := []struct {
		name     string
		previous *domain.PlaybackState
		next     domain.PlaybackState
		expected bool
	}{
		{"no prior state", nil, playing("A", "B", 0, 100), true},
		{"resume from stop", &stopped, playing("A", "B", 0, 100), true},
		{"pause from stop", &stopped, paused, true},
		{"artist differs", &paused, playing("C", "B", 0, 100), true},
		{"title differs", &paused, playing("A", "C", 0, 100), true},
		{"pause resume", &paused, playing("A", "B", 5000, 100), false},
		{"seek while playing", ptr(playing("A", "B", 0, 100)), playing("A", "B", 9000, 100), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewController(zap.NewNop(), &recordingDisplay{}, newTestClock(), DefaultInterval, Width)
			c.current = tt.previous
			if got := c.needsRestart(tt.next); got != tt.expected {
				t.Errorf("needsRestart() = %v, expected %v", got, tt.expected)
			}
		})
	}
}

func ptr(s domain.PlaybackState) *domain.PlaybackState { return &s }

func TestController_PauseFreezesElapsed(t *testing.T) {
	c, _, _ := newTestController(t)
	c.PushState(playing("A", "B", 0, 100))
	c.Tick()

	paused := playing("A", "B", 4000, 100)
	paused.Status = domain.StatusPaused
	c.PushState(paused)
	c.Tick()
	c.Tick()

	snap := c.Snapshot()
	if snap.ElapsedMs != 4000 {
		t.Errorf("expected elapsed frozen at 4000, got %d", snap.ElapsedMs)
	}
	if snap.Lines[1] != FormatDuration(4000, 100) {
		t.Errorf("unexpected second line %q", snap.Lines[1])
	}
	if !snap.Running {
		t.Error("pause keeps the redraw timer")
	}
}

func TestController_EndOfTrack(t *testing.T) {
	c, dev, clk := newTestController(t)
	c.PushState(playing("A", "B", 1000, 2))
	c.Tick()
	dev.reset()

	// elapsed reaches 2000ms
	c.Tick()

	snap := c.Snapshot()
	if snap.Running || clk.active() != 0 {
		t.Error("expected timer cancelled at end of track")
	}
	if snap.ScrollOffset != 0 {
		t.Errorf("expected offset reset, got %d", snap.ScrollOffset)
	}
	if len(dev.calls) != 1 || dev.calls[0] != "clear" {
		t.Errorf("expected clear only, got %v", dev.calls)
	}
	if snap.Current == nil || snap.Current.Status != domain.StatusStopped {
		t.Errorf("expected current marked stopped, got %+v", snap.Current)
	}

	// Playing again after the natural end restarts the animation
	c.PushState(playing("A", "B", 0, 2))
	if !c.Snapshot().Running {
		t.Error("expected restart after end of track")
	}
}

func TestController_LockedRenderIsDropped(t *testing.T) {
	c, dev, clk := newTestController(t)
	c.locked = true

	c.Render(playing("ABCDEFGHI", "KLMNOPQRST", 0, 300))

	if len(dev.calls) != 0 {
		t.Errorf("expected no device writes, got %v", dev.calls)
	}
	snap := c.Snapshot()
	if snap.ScrollOffset != 0 || snap.Running || len(clk.tickers) != 0 {
		t.Errorf("expected state unchanged, got %+v", snap)
	}
}

func TestController_DeviceErrorsAreIgnored(t *testing.T) {
	c, dev, _ := newTestController(t)
	dev.printErr = errors.New("i2c: remote I/O error")

	c.PushState(playing("ABCDEFGHI", "KLMNOPQRST", 0, 300))
	c.Tick()

	snap := c.Snapshot()
	if !snap.Running || snap.ScrollOffset != 2 {
		t.Errorf("expected animation to continue, got %+v", snap)
	}
}

func TestController_ConfiguredWidth(t *testing.T) {
	dev := &recordingDisplay{}
	c := NewController(zap.NewNop(), dev, newTestClock(), DefaultInterval, 20)
	c.OnDeviceReady()

	// 20 characters fit a 20 column line and never scroll
	c.PushState(playing("ABCDEFGHI", "KLMNOPQRST", 0, 300))
	c.Tick()

	snap := c.Snapshot()
	if snap.Lines[0] != "ABCDEFGHI-KLMNOPQRST" {
		t.Errorf("unexpected first line %q", snap.Lines[0])
	}
	if snap.ScrollOffset != 0 {
		t.Errorf("expected no scrolling, offset %d", snap.ScrollOffset)
	}
	if expected := "   0.01:5.00        "; snap.Lines[1] != expected {
		t.Errorf("expected second line %q, got %q", expected, snap.Lines[1])
	}

	// A longer label wraps at the wider window
	c.PushState(playing("ABCDEFGHI", "KLMNOPQRSTUVWXYZ", 0, 300))
	if got := c.Snapshot().Lines[0]; got != "ABCDEFGHI-KLMNOPQRST" {
		t.Errorf("unexpected first window %q", got)
	}
	c.Tick()
	if got := c.Snapshot().Lines[0]; got != "BCDEFGHI-KLMNOPQRSTU" {
		t.Errorf("unexpected scrolled window %q", got)
	}
}

func TestController_ShutdownIsIdempotent(t *testing.T) {
	c, dev, clk := newTestController(t)
	c.PushState(playing("A", "B", 0, 100))

	done := make(chan error, 1)
	go func() { done <- c.Shutdown(context.Background()) }()

	var grace time.Duration
	select {
	case grace = <-clk.waits:
	case <-time.After(2 * time.Second):
		t.Fatal("Shutdown never waited for the grace period")
	}
	if grace != DefaultInterval+closeGrace {
		t.Errorf("expected a grace wait of %v, got %v", DefaultInterval+closeGrace, grace)
	}

	clk.Advance(grace - time.Millisecond)
	select {
	case <-done:
		t.Fatal("device closed before the grace period ended")
	case <-time.After(20 * time.Millisecond):
	}
	clk.Advance(time.Millisecond)
	if err := <-done; err != nil {
		t.Fatalf("Shutdown() failed: %v", err)
	}

	if err := c.Shutdown(context.Background()); err != nil {
		t.Fatalf("second Shutdown() failed: %v", err)
	}
	select {
	case d := <-clk.waits:
		t.Errorf("expected a single grace wait, got another of %v", d)
	default:
	}

	if dev.closed != 1 {
		t.Errorf("expected one device close, got %d", dev.closed)
	}
	if clk.active() != 0 {
		t.Error("expected timer cancelled")
	}

	dev.reset()
	c.PushState(playing("C", "D", 0, 100))
	c.OnDeviceReady()
	if len(dev.calls) != 0 {
		t.Errorf("expected no writes after shutdown, got %v", dev.calls)
	}
}

func TestController_ShutdownHonoursContext(t *testing.T) {
	dev := &recordingDisplay{}
	// the fake clock is never advanced, so only the context ends the wait
	c := NewController(zap.NewNop(), dev, clockwork.NewFakeClock(), DefaultInterval, Width)
	c.OnDeviceReady()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := c.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() failed: %v", err)
	}
	if dev.closed != 1 {
		t.Errorf("expected device closed, got %d", dev.closed)
	}
}
