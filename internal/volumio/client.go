package volumio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/genricoloni/raspdac/internal/domain"
	"github.com/genricoloni/raspdac/internal/fetcher"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait = 10 * time.Second

	// used until the server handshake says otherwise
	defaultPingInterval = 25 * time.Second
	defaultPingTimeout  = 60 * time.Second
)

// ErrNotConnected is returned by emits while the socket is down
var ErrNotConnected = errors.New("volumio socket not connected")

// Client follows the Volumio player over its socket.io API.
// It is both the display's StateSource and a PowerCommander.
type Client struct {
	logger         *zap.Logger
	base           *url.URL
	fetcher        *fetcher.HTTPFetcher
	dialer         *websocket.Dialer
	reconnectDelay time.Duration
	events         chan domain.PlaybackState

	mu              sync.Mutex
	conn            *websocket.Conn
	running         bool
	closed          bool
	cancel          context.CancelFunc
	lastDropWarning time.Time
	wg              sync.WaitGroup

	writeMu sync.Mutex
}

// NewClient creates a client for the Volumio instance at rawURL (http://host:port)
func NewClient(logger *zap.Logger, rawURL string, reconnectDelay time.Duration, f *fetcher.HTTPFetcher) (*Client, error) {
	base, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid volumio url %q: %w", rawURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid volumio url %q: scheme must be http or https", rawURL)
	}
	if reconnectDelay <= 0 {
		reconnectDelay = 5 * time.Second
	}

	return &Client{
		logger:  logger,
		base:    base,
		fetcher: f,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
		reconnectDelay: reconnectDelay,
		events:         make(chan domain.PlaybackState, 10),
	}, nil
}

// socketURL returns the engine.io v3 websocket endpoint
func (c *Client) socketURL() string {
	u := *c.base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/socket.io/"
	u.RawQuery = url.Values{"EIO": {"3"}, "transport": {"websocket"}}.Encode()
	return u.String()
}

// restURL returns the REST endpoint for path
func (c *Client) restURL(path string) string {
	u := *c.base
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	u.RawQuery = ""
	return u.String()
}

// Start connects and follows the player until the context is cancelled or
// Stop is called, reconnecting after reconnectDelay whenever the socket drops.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running || c.closed {
		c.mu.Unlock()
		return nil
	}
	c.running = true
	clientCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.wg.Add(1)
	c.mu.Unlock()
	defer c.wg.Done()

	c.logger.Info("Volumio client started", zap.String("url", c.socketURL()))

	for {
		err := c.session(clientCtx)
		if clientCtx.Err() != nil {
			c.logger.Info("Volumio client stopped")
			return clientCtx.Err()
		}

		c.logger.Warn("Volumio connection lost, retrying",
			zap.Error(err),
			zap.Duration("delay", c.reconnectDelay))

		select {
		case <-clientCtx.Done():
			c.logger.Info("Volumio client stopped")
			return clientCtx.Err()
		case <-time.After(c.reconnectDelay):
		}
	}
}

// Stop disconnects and closes the events channel
func (c *Client) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	// From here on emits are dropped and Start refuses to run
	c.closed = true
	if c.cancel != nil {
		c.cancel()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		c.logger.Warn("Timed out waiting for the volumio session to end")
	}

	c.mu.Lock()
	c.running = false
	close(c.events)
	c.mu.Unlock()

	c.logger.Info("Volumio client shutdown complete")
	return nil
}

// Events returns a read-only channel of playback snapshots
func (c *Client) Events() <-chan domain.PlaybackState {
	return c.events
}

// Refresh asks Volumio to push its state. When the socket is down the state
// is read from the REST API instead.
func (c *Client) Refresh(ctx context.Context) error {
	err := c.Emit("getState")
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrNotConnected) {
		c.logger.Warn("getState emit failed, falling back to REST", zap.Error(err))
	}

	var s playerState
	if err := c.fetcher.FetchJSON(ctx, c.restURL("/api/v1/getState"), &s); err != nil {
		return fmt.Errorf("failed to refresh volumio state: %w", err)
	}
	c.emit(s.toDomain())
	return nil
}

// Shutdown asks Volumio to power the system off
func (c *Client) Shutdown(ctx context.Context) error {
	return c.Emit("shutdown")
}

// Reboot asks Volumio to restart the system
func (c *Client) Reboot(ctx context.Context) error {
	return c.Emit("reboot")
}

// Emit sends a socket.io event to Volumio
func (c *Client) Emit(name string, args ...any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	frame, err := encodeEvent(name, args...)
	if err != nil {
		return err
	}
	if err := c.write(conn, frame); err != nil {
		return fmt.Errorf("failed to emit %s: %w", name, err)
	}
	c.logger.Debug("Event emitted", zap.String("event", name))
	return nil
}

func (c *Client) write(conn *websocket.Conn, frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, frame)
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

// session runs one websocket connection until it fails or ctx ends
func (c *Client) session(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.socketURL(), nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}
	defer conn.Close()
	defer c.setConn(nil)

	stopWatch := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stopWatch()

	pingDone := make(chan struct{})
	defer close(pingDone)

	readWait := defaultPingInterval + defaultPingTimeout
	for {
		if err := conn.SetReadDeadline(time.Now().Add(readWait)); err != nil {
			return err
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read failed: %w", err)
		}
		if len(msg) == 0 {
			continue
		}

		switch msg[0] {
		case eioOpen:
			interval, timeout := defaultPingInterval, defaultPingTimeout
			var open openPacket
			if err := json.Unmarshal(msg[1:], &open); err != nil {
				c.logger.Warn("Malformed open packet", zap.Error(err))
			} else {
				if open.PingInterval > 0 {
					interval = time.Duration(open.PingInterval) * time.Millisecond
				}
				if open.PingTimeout > 0 {
					timeout = time.Duration(open.PingTimeout) * time.Millisecond
				}
			}
			readWait = interval + timeout
			c.logger.Debug("Engine.io session opened",
				zap.String("sid", open.SID),
				zap.Duration("pingInterval", interval))
			go c.pingLoop(conn, interval, pingDone)

		case eioPing:
			if err := c.write(conn, []byte{eioPong}); err != nil {
				return fmt.Errorf("pong failed: %w", err)
			}

		case eioPong, eioNoop:

		case eioClose:
			return errors.New("server closed the session")

		case eioMessage:
			if err := c.handleMessage(conn, msg[1:]); err != nil {
				return err
			}

		default:
			c.logger.Debug("Ignoring unknown packet", zap.ByteString("packet", msg))
		}
	}
}

// handleMessage processes a socket.io packet
func (c *Client) handleMessage(conn *websocket.Conn, data []byte) error {
	if len(data) == 0 {
		return nil
	}

	switch data[0] {
	case sioConnect:
		c.setConn(conn)
		c.logger.Info("Connected to Volumio", zap.String("url", c.base.String()))
		// Ask for the current state so the display starts without waiting for a change
		return c.Emit("getState")

	case sioDisconnect:
		c.setConn(nil)
		return errors.New("server disconnected the namespace")

	case sioError:
		c.logger.Warn("Socket.io error packet", zap.ByteString("payload", data[1:]))
		return nil

	case sioEvent:
		name, args, err := decodeEvent(data[1:])
		if err != nil {
			c.logger.Warn("Skipping undecodable event", zap.Error(err))
			return nil
		}
		if name != "pushState" || len(args) == 0 {
			return nil
		}

		var s playerState
		if err := json.Unmarshal(args[0], &s); err != nil {
			c.logger.Warn("Skipping malformed pushState", zap.Error(err))
			return nil
		}
		c.emit(s.toDomain())
	}
	return nil
}

// pingLoop keeps the engine.io session alive
func (c *Client) pingLoop(conn *websocket.Conn, interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := c.write(conn, []byte{eioPing}); err != nil {
				c.logger.Debug("Ping failed", zap.Error(err))
				return
			}
		}
	}
}

// emit hands a snapshot to the consumer without blocking
func (c *Client) emit(state domain.PlaybackState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	select {
	case c.events <- state:
		c.logger.Debug("Player state received",
			zap.String("status", string(state.Status)),
			zap.String("artist", state.Artist),
			zap.String("title", state.Title),
			zap.Int64("seek", state.Seek),
			zap.Int64("duration", state.Duration))
	default:
		c.logChannelFullWarning()
	}
}

// logChannelFullWarning is called with mu held and logs at most every 5 seconds
func (c *Client) logChannelFullWarning() {
	const warningInterval = 5 * time.Second
	now := time.Now()

	if now.Sub(c.lastDropWarning) >= warningInterval {
		c.logger.Warn("Events channel full, dropping player state")
		c.lastDropWarning = now
	}
}
