//go:build linux
// +build linux

package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/genricoloni/raspdac/internal/domain"
	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"
)

const (
	mprisPrefix      = "org.mpris.MediaPlayer2."
	mprisPath        = "/org/mpris/MediaPlayer2"
	playerInterface  = "org.mpris.MediaPlayer2.Player"
	propMetadata     = playerInterface + ".Metadata"
	propStatus       = playerInterface + ".PlaybackStatus"
	propPosition     = playerInterface + ".Position"
	signalProperties = "org.freedesktop.DBus.Properties.PropertiesChanged"
	signalSeeked     = playerInterface + ".Seeked"
	signalNameOwner  = "org.freedesktop.DBus.NameOwnerChanged"
)

// MprisMonitor follows MPRIS players on D-Bus and emits their playback state
type MprisMonitor struct {
	logger          *zap.Logger
	bus             string
	events          chan domain.PlaybackState
	mu              sync.RWMutex
	running         bool
	closed          bool
	cancel          context.CancelFunc
	conn            DBusClient        // Interface for testability
	lastDropWarning time.Time         // Rate limiting for "channel full" warnings
	wg              sync.WaitGroup    // Tracks active producer goroutines
	playerNames     map[string]string // Maps unique bus names (:1.45) to well-known names (org.mpris.MediaPlayer2.mpd)
}

// NewMprisMonitor creates a monitor for the "session" or "system" bus
func NewMprisMonitor(logger *zap.Logger, bus string) *MprisMonitor {
	return &MprisMonitor{
		logger:      logger,
		bus:         bus,
		events:      make(chan domain.PlaybackState, 10),
		playerNames: make(map[string]string),
	}
}

// Start connects to the bus and follows players until the context is cancelled
func (m *MprisMonitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running || m.closed {
		m.mu.Unlock()
		return nil
	}
	m.running = true

	monitorCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.mu.Unlock()

	m.logger.Info("MPRIS monitor started", zap.String("bus", m.bus))

	conn, err := NewStdDBusClient(m.bus)
	if err != nil {
		m.logger.Error("Failed to connect to D-Bus", zap.String("bus", m.bus), zap.Error(err))
		m.mu.Lock()
		defer m.mu.Unlock()
		m.running = false
		m.cancel = nil
		return fmt.Errorf("%s bus connection failed: %w", m.bus, err)
	}

	// Stopped while connecting
	select {
	case <-monitorCtx.Done():
		m.logger.Info("Monitor stopped during D-Bus connection")
		if err := conn.Close(); err != nil {
			m.logger.Warn("Failed to close D-Bus connection", zap.Error(err))
		}
		return monitorCtx.Err()
	default:
	}

	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()

	m.wg.Add(1)
	func() {
		defer m.wg.Done()
		if err := m.detectExistingPlayers(); err != nil {
			m.logger.Warn("Failed to detect existing players", zap.Error(err))
		}
	}()

	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(mprisPath),
		dbus.WithMatchInterface("org.freedesktop.DBus.Properties"),
		dbus.WithMatchMember("PropertiesChanged"),
	); err != nil {
		m.logger.Error("Failed to add match signal", zap.Error(err))
		return fmt.Errorf("failed to add match signal: %w", err)
	}

	// Seeks do not change any property, players announce them with a signal
	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(mprisPath),
		dbus.WithMatchInterface(playerInterface),
		dbus.WithMatchMember("Seeked"),
	); err != nil {
		m.logger.Warn("Failed to add Seeked match signal", zap.Error(err))
	}

	if err := conn.AddMatchSignal(
		dbus.WithMatchInterface("org.freedesktop.DBus"),
		dbus.WithMatchMember("NameOwnerChanged"),
	); err != nil {
		m.logger.Warn("Failed to add NameOwnerChanged match signal", zap.Error(err))
	} else {
		m.logger.Info("Dynamic player tracking enabled via NameOwnerChanged")
	}

	m.wg.Add(1)
	go m.monitorSignals(monitorCtx)

	<-monitorCtx.Done()

	m.logger.Info("MPRIS monitor stopped")
	return monitorCtx.Err()
}

// Stop gracefully stops the monitor and closes the events channel
func (m *MprisMonitor) Stop(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	if m.cancel != nil {
		m.cancel()
	}
	m.running = false
	m.mu.Unlock()

	// Producers must be gone before the channel is closed
	m.logger.Debug("Waiting for monitoring goroutines to finish")
	m.wg.Wait()

	m.mu.Lock()
	close(m.events)
	if m.conn != nil {
		if err := m.conn.Close(); err != nil {
			m.logger.Warn("Failed to close D-Bus connection", zap.Error(err))
		}
		m.conn = nil
	}
	m.mu.Unlock()

	m.logger.Info("MPRIS monitor shutdown complete")
	return nil
}

// Events returns a read-only channel of playback snapshots
func (m *MprisMonitor) Events() <-chan domain.PlaybackState {
	return m.events
}

// Refresh re-reads every known player and emits its state
func (m *MprisMonitor) Refresh(ctx context.Context) error {
	m.mu.RLock()
	conn := m.conn
	players := make([]string, 0, len(m.playerNames))
	for _, name := range m.playerNames {
		players = append(players, name)
	}
	m.mu.RUnlock()

	if conn == nil {
		return errors.New("mpris monitor not connected")
	}

	var errs []error
	for _, name := range players {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := m.fetchPlayerState(name); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// detectExistingPlayers queries D-Bus for currently running MPRIS players
func (m *MprisMonitor) detectExistingPlayers() error {
	names, err := m.conn.ListNames()
	if err != nil {
		return fmt.Errorf("failed to list bus names: %w", err)
	}

	playerCount := 0
	for _, name := range names {
		if !strings.HasPrefix(name, mprisPrefix) {
			continue
		}
		playerCount++
		m.logger.Info("Detected MPRIS player", zap.String("name", name))

		uniqueName, err := m.conn.GetNameOwner(name)
		if err == nil {
			m.mu.Lock()
			m.playerNames[uniqueName] = name
			m.mu.Unlock()
			m.logger.Debug("Mapped player name",
				zap.String("unique", uniqueName),
				zap.String("wellKnown", name))
		}

		if err := m.fetchPlayerState(name); err != nil {
			m.logger.Warn("Failed to fetch initial state",
				zap.String("player", name),
				zap.Error(err))
		}
	}

	m.logger.Info("Player detection complete", zap.Int("count", playerCount))
	return nil
}

// fetchPlayerState reads metadata, status and position of one player and emits them.
// playerName may be a well-known or a unique bus name.
func (m *MprisMonitor) fetchPlayerState(playerName string) error {
	variant, err := m.conn.GetProperty(playerName, mprisPath, propMetadata)
	if err != nil {
		return fmt.Errorf("failed to get metadata: %w", err)
	}

	// Idle players may report nil or an unexpected type
	metadata, ok := variant.Value().(map[string]dbus.Variant)
	if !ok {
		m.logger.Debug("Metadata variant is not a map, skipping", zap.String("player", playerName))
		return nil
	}

	statusVariant, err := m.conn.GetProperty(playerName, mprisPath, propStatus)
	if err != nil {
		return fmt.Errorf("failed to get playback status: %w", err)
	}
	status, ok := statusVariant.Value().(string)
	if !ok {
		return fmt.Errorf("invalid playback status format")
	}

	state := m.parseState(m.getPlayerName(playerName), metadata, status, m.position(playerName))
	m.emit(state, "Emitted player state")
	return nil
}

// position returns the playback position in microseconds, 0 when unavailable
func (m *MprisMonitor) position(player string) int64 {
	variant, err := m.conn.GetProperty(player, mprisPath, propPosition)
	if err != nil {
		m.logger.Debug("Position unavailable", zap.String("player", player), zap.Error(err))
		return 0
	}
	pos, _ := variantInt64(variant)
	return pos
}

// monitorSignals listens for D-Bus signals and processes them
func (m *MprisMonitor) monitorSignals(ctx context.Context) {
	defer m.wg.Done()

	signals := make(chan *dbus.Signal, 10)
	m.conn.Signal(signals)

	m.logger.Info("Signal monitoring goroutine started")

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Signal monitoring goroutine stopped")
			return
		case sig := <-signals:
			if sig == nil {
				continue
			}
			switch sig.Name {
			case signalNameOwner:
				m.handleNameOwnerChanged(sig)
			case signalSeeked:
				m.handleSeeked(sig)
			default:
				m.handleSignal(sig)
			}
		}
	}
}

// handleNameOwnerChanged processes NameOwnerChanged signals to track player lifecycle
func (m *MprisMonitor) handleNameOwnerChanged(sig *dbus.Signal) {
	if len(sig.Body) < 3 {
		return
	}

	name, ok := sig.Body[0].(string)
	if !ok || !strings.HasPrefix(name, mprisPrefix) {
		return
	}

	oldOwner, _ := sig.Body[1].(string)
	newOwner, _ := sig.Body[2].(string)

	switch {
	case newOwner != "" && oldOwner == "":
		m.mu.Lock()
		m.playerNames[newOwner] = name
		m.mu.Unlock()

		m.logger.Info("New MPRIS player detected",
			zap.String("player", name),
			zap.String("unique", newOwner))

		if err := m.fetchPlayerState(name); err != nil {
			m.logger.Warn("Failed to fetch state from new player",
				zap.String("player", name),
				zap.Error(err))
		}

	case newOwner == "" && oldOwner != "":
		m.mu.Lock()
		delete(m.playerNames, oldOwner)
		m.mu.Unlock()

		m.logger.Info("MPRIS player removed",
			zap.String("player", name),
			zap.String("unique", oldOwner))

		// Nothing plays any more on that player
		m.emit(domain.PlaybackState{
			Status:  domain.StatusStopped,
			Service: strings.TrimPrefix(name, mprisPrefix),
		}, "Player gone, display stopped")

	case newOwner != "" && oldOwner != "":
		m.mu.Lock()
		delete(m.playerNames, oldOwner)
		m.playerNames[newOwner] = name
		m.mu.Unlock()

		m.logger.Debug("MPRIS player ownership changed",
			zap.String("player", name),
			zap.String("oldUnique", oldOwner),
			zap.String("newUnique", newOwner))
	}
}

// handleSeeked re-reads the player after a seek so the elapsed counter resyncs
func (m *MprisMonitor) handleSeeked(sig *dbus.Signal) {
	player := m.getPlayerName(sig.Sender)
	m.logger.Debug("Seek detected", zap.String("player", player))

	if err := m.fetchPlayerState(sig.Sender); err != nil {
		m.logger.Warn("Failed to fetch state after seek",
			zap.String("player", player),
			zap.Error(err))
	}
}

// handleSignal processes a PropertiesChanged signal.
// Body: interface name, changed properties, invalidated properties.
func (m *MprisMonitor) handleSignal(sig *dbus.Signal) {
	if sig.Name != signalProperties {
		return
	}

	if len(sig.Body) < 2 {
		return
	}

	interfaceName, ok := sig.Body[0].(string)
	if !ok || interfaceName != playerInterface {
		return
	}

	changedProps, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return
	}

	playerName := m.getPlayerName(sig.Sender)

	m.logger.Debug("Received PropertiesChanged signal",
		zap.String("sender", sig.Sender),
		zap.String("player", playerName),
		zap.Int("properties", len(changedProps)))

	metadataVariant, hasMetadata := changedProps["Metadata"]
	statusVariant, hasStatus := changedProps["PlaybackStatus"]

	if !hasMetadata && !hasStatus {
		return
	}

	var metadata map[string]dbus.Variant
	var status string

	if hasMetadata {
		var ok bool
		metadata, ok = metadataVariant.Value().(map[string]dbus.Variant)
		if !ok {
			m.logger.Warn("Invalid metadata format in signal, ignoring")
			return
		}
	}

	if hasStatus {
		var ok bool
		status, ok = statusVariant.Value().(string)
		if !ok {
			m.logger.Warn("Invalid playback status format in signal, ignoring")
			return
		}
	} else {
		variant, err := m.conn.GetProperty(sig.Sender, mprisPath, propStatus)
		if err == nil {
			if s, ok := variant.Value().(string); ok {
				status = s
			}
		}
	}

	// Status-only change: the display still needs artist and title
	if !hasMetadata {
		variant, err := m.conn.GetProperty(sig.Sender, mprisPath, propMetadata)
		if err == nil {
			if md, ok := variant.Value().(map[string]dbus.Variant); ok {
				metadata = md
			}
		}
	}

	state := m.parseState(playerName, metadata, status, m.position(sig.Sender))
	m.emit(state, "Media change detected")
}

// emit hands a snapshot to the consumer without blocking
func (m *MprisMonitor) emit(state domain.PlaybackState, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	select {
	case m.events <- state:
		m.logger.Debug(msg,
			zap.String("service", state.Service),
			zap.String("title", state.Title),
			zap.String("artist", state.Artist),
			zap.String("status", string(state.Status)))
	default:
		m.logChannelFullWarning()
	}
}

// parseState converts MPRIS metadata to a playback snapshot.
// mpris:length and Position are microseconds.
func (m *MprisMonitor) parseState(player string, metadata map[string]dbus.Variant, status string, positionUs int64) domain.PlaybackState {
	state := domain.PlaybackState{
		Service: strings.TrimPrefix(player, mprisPrefix),
	}

	switch status {
	case "Playing":
		state.Status = domain.StatusPlaying
	case "Paused":
		state.Status = domain.StatusPaused
	default:
		state.Status = domain.StatusStopped
	}

	if positionUs > 0 {
		state.Seek = positionUs / 1000
	}

	if metadata == nil {
		return state
	}

	if titleVar, ok := metadata["xesam:title"]; ok {
		if title, ok := titleVar.Value().(string); ok {
			state.Title = title
		}
	}

	// xesam:artist is a list; some players send a plain string
	if artistVar, ok := metadata["xesam:artist"]; ok {
		switch artists := artistVar.Value().(type) {
		case []string:
			if len(artists) > 0 {
				state.Artist = artists[0]
			}
		case string:
			state.Artist = artists
		default:
			m.logger.Debug("Unexpected artist type in metadata",
				zap.String("type", fmt.Sprintf("%T", artistVar.Value())))
		}
	}

	if albumVar, ok := metadata["xesam:album"]; ok {
		if album, ok := albumVar.Value().(string); ok {
			state.Album = album
		}
	}

	if lengthVar, ok := metadata["mpris:length"]; ok {
		if length, ok := variantInt64(lengthVar); ok && length > 0 {
			state.Duration = (length + 500_000) / 1_000_000
		}
	}

	return state
}

// getPlayerName returns the well-known player name for a unique bus name.
// Falls back to the unique name if no mapping exists.
func (m *MprisMonitor) getPlayerName(uniqueName string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if wellKnown, ok := m.playerNames[uniqueName]; ok {
		return wellKnown
	}
	return uniqueName
}

// logChannelFullWarning is called with mu held; at most one warning every 5 seconds
func (m *MprisMonitor) logChannelFullWarning() {
	const warningInterval = 5 * time.Second
	now := time.Now()

	if now.Sub(m.lastDropWarning) >= warningInterval {
		m.logger.Warn("Events channel full, dropping player state")
		m.lastDropWarning = now
	}
}

// variantInt64 reads the integer types players use for lengths and positions
func variantInt64(v dbus.Variant) (int64, bool) {
	switch n := v.Value().(type) {
	case int64:
		return n, true
	case uint64:
		return int64(n), true
	case int32:
		return int64(n), true
	case uint32:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}
