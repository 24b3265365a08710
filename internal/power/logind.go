package power

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	logindService   = "org.freedesktop.login1"
	logindPath      = "/org/freedesktop/login1"
	logindManager   = "org.freedesktop.login1.Manager"
	logindPowerOff  = logindManager + ".PowerOff"
	logindRebootCmd = logindManager + ".Reboot"
	logindInhibit   = logindManager + ".Inhibit"
	logindPrepare   = "PrepareForShutdown"

	systemdService  = "org.freedesktop.systemd1"
	systemdPath     = "/org/freedesktop/systemd1"
	systemdListJobs = "org.freedesktop.systemd1.Manager.ListJobs"
)

// prepareTimeout stays under logind's default InhibitDelayMaxSec of 5s
const prepareTimeout = 4500 * time.Millisecond

// rebootTargets are the systemd units queued when the host is rebooting
var rebootTargets = map[string]bool{
	"reboot.target": true,
	"kexec.target":  true,
}

// LogindBus is the part of the system bus the logind integration uses.
//
//go:generate mockgen -destination=mocks/logind_bus_mock.go -package=mocks github.com/genricoloni/raspdac/internal/power LogindBus
type LogindBus interface {
	// Close closes the bus connection
	Close() error

	// AddMatchSignal adds a signal match rule
	AddMatchSignal(options ...dbus.MatchOption) error

	// Signal registers a channel to receive signals
	Signal(ch chan<- *dbus.Signal)

	// RemoveSignal unregisters a channel added with Signal
	RemoveSignal(ch chan<- *dbus.Signal)

	// Call invokes a logind manager method
	Call(ctx context.Context, method string, args ...interface{}) error

	// Inhibit takes a logind inhibitor lock, held until the closer is closed
	Inhibit(ctx context.Context, what, who, why, mode string) (io.Closer, error)

	// QueuedUnits lists the units of the jobs systemd has queued
	QueuedUnits(ctx context.Context) ([]string, error)
}

// SystemBus is the godbus implementation of LogindBus
type SystemBus struct {
	conn *dbus.Conn
}

// NewSystemBus opens a private system bus connection
func NewSystemBus() (*SystemBus, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("system bus connection failed: %w", err)
	}
	return &SystemBus{conn: conn}, nil
}

// Close closes the bus connection
func (b *SystemBus) Close() error {
	return b.conn.Close()
}

// AddMatchSignal adds a signal match rule
func (b *SystemBus) AddMatchSignal(options ...dbus.MatchOption) error {
	return b.conn.AddMatchSignal(options...)
}

// Signal registers a channel to receive signals
func (b *SystemBus) Signal(ch chan<- *dbus.Signal) {
	b.conn.Signal(ch)
}

// RemoveSignal unregisters a channel added with Signal
func (b *SystemBus) RemoveSignal(ch chan<- *dbus.Signal) {
	b.conn.RemoveSignal(ch)
}

// Call invokes a logind manager method
func (b *SystemBus) Call(ctx context.Context, method string, args ...interface{}) error {
	return b.logind().CallWithContext(ctx, method, 0, args...).Err
}

// Inhibit takes a logind inhibitor lock. Logind hands back a file
// descriptor; the lock lasts until it is closed.
func (b *SystemBus) Inhibit(ctx context.Context, what, who, why, mode string) (io.Closer, error) {
	var fd dbus.UnixFD
	if err := b.logind().CallWithContext(ctx, logindInhibit, 0, what, who, why, mode).Store(&fd); err != nil {
		return nil, err
	}
	return os.NewFile(uintptr(fd), "logind-inhibitor"), nil
}

// QueuedUnits lists the units of the jobs systemd has queued
func (b *SystemBus) QueuedUnits(ctx context.Context) ([]string, error) {
	var jobs []struct {
		ID       uint32
		Unit     string
		Type     string
		State    string
		Job      dbus.ObjectPath
		UnitPath dbus.ObjectPath
	}
	obj := b.conn.Object(systemdService, dbus.ObjectPath(systemdPath))
	if err := obj.CallWithContext(ctx, systemdListJobs, 0).Store(&jobs); err != nil {
		return nil, err
	}

	units := make([]string, 0, len(jobs))
	for _, j := range jobs {
		units = append(units, j.Unit)
	}
	return units, nil
}

func (b *SystemBus) logind() dbus.BusObject {
	return b.conn.Object(logindService, dbus.ObjectPath(logindPath))
}

// ShutdownHandler runs the board sequence before the host goes down.
// reboot is true when the host is restarting rather than powering off.
type ShutdownHandler func(ctx context.Context, reboot bool)

// Logind powers the host off through systemd-logind and reports shutdowns
// started by anyone else.
type Logind struct {
	logger  *zap.Logger
	bus     LogindBus
	timeout time.Duration

	mu      sync.Mutex
	lock    io.Closer
	signals chan *dbus.Signal
	stop    chan struct{}
	wg      sync.WaitGroup
}

// NewLogind connects to logind on the system bus
func NewLogind(logger *zap.Logger) (*Logind, error) {
	bus, err := NewSystemBus()
	if err != nil {
		return nil, err
	}
	return NewLogindWithBus(logger, bus), nil
}

// NewLogindWithBus creates a logind client on an existing bus
func NewLogindWithBus(logger *zap.Logger, bus LogindBus) *Logind {
	return &Logind{logger: logger, bus: bus, timeout: prepareTimeout}
}

// OpenShutdownWatcher connects to logind for shutdown notifications.
// Without a system bus the returned watcher never fires.
func OpenShutdownWatcher(logger *zap.Logger) *Logind {
	l, err := NewLogind(logger)
	if err != nil {
		logger.Warn("Host shutdowns will not reach the power board", zap.Error(err))
		return &Logind{logger: logger}
	}
	return l
}

// Shutdown calls PowerOff without interactive authorisation
func (l *Logind) Shutdown(ctx context.Context) error {
	return l.call(ctx, logindPowerOff)
}

// Reboot calls Reboot without interactive authorisation
func (l *Logind) Reboot(ctx context.Context) error {
	return l.call(ctx, logindRebootCmd)
}

func (l *Logind) call(ctx context.Context, method string) error {
	if l.bus == nil {
		return ErrNoCommander
	}
	l.logger.Info("Calling logind", zap.String("method", method))

	if err := l.bus.Call(ctx, method, false); err != nil {
		return fmt.Errorf("logind %s failed: %w", method, err)
	}
	return nil
}

// WatchShutdown takes a delay inhibitor lock and calls handle when logind
// announces a shutdown. The lock is released once handle returns, letting
// the shutdown proceed.
func (l *Logind) WatchShutdown(handle ShutdownHandler) error {
	if l.bus == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stop != nil {
		return nil
	}

	err := l.bus.AddMatchSignal(
		dbus.WithMatchObjectPath(logindPath),
		dbus.WithMatchInterface(logindManager),
		dbus.WithMatchMember(logindPrepare),
	)
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", logindPrepare, err)
	}

	if err := l.inhibitLocked(); err != nil {
		return err
	}

	l.signals = make(chan *dbus.Signal, 4)
	l.stop = make(chan struct{})
	l.bus.Signal(l.signals)

	l.wg.Add(1)
	go l.watch(l.signals, l.stop, handle)

	l.logger.Info("Watching host shutdowns")
	return nil
}

func (l *Logind) watch(signals <-chan *dbus.Signal, stop <-chan struct{}, handle ShutdownHandler) {
	defer l.wg.Done()

	for {
		select {
		case <-stop:
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			if sig.Name != logindManager+"."+logindPrepare || len(sig.Body) != 1 {
				continue
			}
			active, _ := sig.Body[0].(bool)
			if active {
				l.prepare(handle)
				continue
			}

			// A cancelled shutdown: hold the lock again for the next one
			l.logger.Info("Host shutdown cancelled")
			l.mu.Lock()
			if err := l.inhibitLocked(); err != nil {
				l.logger.Warn("Failed to renew shutdown lock", zap.Error(err))
			}
			l.mu.Unlock()
		}
	}
}

func (l *Logind) prepare(handle ShutdownHandler) {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	reboot, err := l.rebooting(ctx)
	if err != nil {
		l.logger.Warn("Could not tell reboot from power off", zap.Error(err))
	}
	l.logger.Info("Host is going down", zap.Bool("reboot", reboot))

	handle(ctx, reboot)

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.releaseLocked(); err != nil {
		l.logger.Warn("Failed to release shutdown lock", zap.Error(err))
	}
}

func (l *Logind) rebooting(ctx context.Context) (bool, error) {
	units, err := l.bus.QueuedUnits(ctx)
	if err != nil {
		return false, err
	}
	for _, u := range units {
		if rebootTargets[u] {
			return true, nil
		}
	}
	return false, nil
}

func (l *Logind) inhibitLocked() error {
	if l.lock != nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	lock, err := l.bus.Inhibit(ctx, "shutdown", "raspdac", "Signal the RaspDAC power board", "delay")
	if err != nil {
		return fmt.Errorf("failed to take shutdown lock: %w", err)
	}
	l.lock = lock
	return nil
}

func (l *Logind) releaseLocked() error {
	if l.lock == nil {
		return nil
	}
	err := l.lock.Close()
	l.lock = nil
	return err
}

// StopWatch stops watching and releases the inhibitor lock
func (l *Logind) StopWatch() error {
	l.mu.Lock()
	stop, signals := l.stop, l.signals
	l.stop, l.signals = nil, nil
	l.mu.Unlock()

	if stop == nil {
		return nil
	}
	l.bus.RemoveSignal(signals)
	close(stop)
	l.wg.Wait()

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.releaseLocked()
}

// Close stops watching and releases the bus connection
func (l *Logind) Close() error {
	if l.bus == nil {
		return nil
	}
	return multierr.Combine(l.StopWatch(), l.bus.Close())
}
