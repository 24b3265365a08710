package power

import (
	"context"
	"errors"
	"fmt"

	"github.com/genricoloni/raspdac/internal/domain"
	"github.com/genricoloni/raspdac/internal/executor"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Values accepted in power.command
const (
	CommandAuto    = "auto"
	CommandVolumio = "volumio"
	CommandLogind  = "logind"
	CommandExec    = "exec"
)

// ErrNoCommander is returned when no way to power the host off is available
var ErrNoCommander = errors.New("no power commander available")

type namedCommander struct {
	name string
	domain.PowerCommander
}

// Fallback tries each commander in order until one succeeds
type Fallback struct {
	logger     *zap.Logger
	commanders []namedCommander
}

// NewFallback creates an empty chain; commanders are tried in the order added
func NewFallback(logger *zap.Logger) *Fallback {
	return &Fallback{logger: logger}
}

// Add appends a commander to the chain
func (f *Fallback) Add(name string, pc domain.PowerCommander) {
	f.commanders = append(f.commanders, namedCommander{name: name, PowerCommander: pc})
}

// Len returns the number of commanders in the chain
func (f *Fallback) Len() int {
	return len(f.commanders)
}

// Shutdown powers the host off with the first commander that accepts
func (f *Fallback) Shutdown(ctx context.Context) error {
	return f.try("shutdown", func(pc domain.PowerCommander) error { return pc.Shutdown(ctx) })
}

// Reboot restarts the host with the first commander that accepts
func (f *Fallback) Reboot(ctx context.Context) error {
	return f.try("reboot", func(pc domain.PowerCommander) error { return pc.Reboot(ctx) })
}

func (f *Fallback) try(action string, call func(domain.PowerCommander) error) error {
	if len(f.commanders) == 0 {
		return ErrNoCommander
	}

	var errs error
	for _, c := range f.commanders {
		err := call(c.PowerCommander)
		if err == nil {
			f.logger.Info("Host power command sent",
				zap.String("action", action),
				zap.String("via", c.name))
			return nil
		}
		f.logger.Warn("Power commander failed, trying next",
			zap.String("action", action),
			zap.String("via", c.name),
			zap.Error(err))
		errs = multierr.Append(errs, fmt.Errorf("%s: %w", c.name, err))
	}
	return fmt.Errorf("host %s failed: %w", action, errs)
}

// NewCommander builds the commander selected by power.command. volumio may
// be nil when the state source is not a Volumio client. "auto" chains
// Volumio, logind and the system command, skipping the unavailable ones.
func NewCommander(logger *zap.Logger, kind string, volumio domain.PowerCommander) (domain.PowerCommander, error) {
	switch kind {
	case CommandVolumio:
		if volumio == nil {
			return nil, fmt.Errorf("power.command %q needs the volumio source", kind)
		}
		return volumio, nil

	case CommandLogind:
		l, err := NewLogind(logger)
		if err != nil {
			return nil, err
		}
		return l, nil

	case CommandExec:
		e, err := executor.NewExecutor(logger)
		if err != nil {
			return nil, err
		}
		return e, nil

	case CommandAuto, "":
		chain := NewFallback(logger)
		if volumio != nil {
			chain.Add(CommandVolumio, volumio)
		}
		if l, err := NewLogind(logger); err == nil {
			chain.Add(CommandLogind, l)
		} else {
			logger.Debug("logind unavailable", zap.Error(err))
		}
		if e, err := executor.NewExecutor(logger); err == nil {
			chain.Add(CommandExec, e)
		} else {
			logger.Debug("No system power command", zap.Error(err))
		}
		logger.Info("Power commanders configured", zap.Int("count", chain.Len()))
		return chain, nil

	default:
		return nil, fmt.Errorf("unknown power.command %q", kind)
	}
}
