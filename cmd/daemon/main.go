package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/genricoloni/raspdac/internal/config"
	"github.com/genricoloni/raspdac/internal/control"
	"github.com/genricoloni/raspdac/internal/domain"
	"github.com/genricoloni/raspdac/internal/engine"
	"github.com/genricoloni/raspdac/internal/fetcher"
	"github.com/genricoloni/raspdac/internal/lcd"
	"github.com/genricoloni/raspdac/internal/monitor"
	"github.com/genricoloni/raspdac/internal/plugin"
	"github.com/genricoloni/raspdac/internal/power"
	"github.com/genricoloni/raspdac/internal/volumio"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// AppOptions is the complete dependency graph of the daemon
var AppOptions = fx.Options(
	// Provide dependencies
	fx.Provide(
		newLogger,
		config.NewAppConfig,
		fetcher.NewHTTPFetcher,
		newStateSource,
		newPowerCommander,
		newPins,
		newShutdownWatcher,
		newEngine,
		newPlugin,
		newControlServer,
	),

	// Lifecycle hooks
	fx.Invoke(registerHooks),
)

func main() {
	app := fx.New(
		// Logger configuration
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
		AppOptions,
	)

	// Handle graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Start the application
	if err := app.Start(ctx); err != nil {
		panic(err)
	}

	// Wait for interrupt signal
	<-ctx.Done()

	// Stop the application gracefully
	stopCtx, stopCancel := context.WithTimeout(context.Background(), app.StopTimeout())
	defer stopCancel()
	if err := app.Stop(stopCtx); err != nil {
		panic(err)
	}
}

// newLogger creates a zap logger at the configured log.level.
// "debug" switches to the development encoder.
func newLogger() (*zap.Logger, error) {
	level := "info"
	if s, _, err := config.Load(); err == nil && s.Log.Level != "" {
		level = s.Log.Level
	}
	return buildLogger(level)
}

func buildLogger(level string) (*zap.Logger, error) {
	if strings.EqualFold(level, "debug") {
		return zap.NewDevelopment()
	}

	cfg := zap.NewProductionConfig()
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

// newStateSource picks the playback state source named by source.kind
func newStateSource(logger *zap.Logger, cfg *config.AppConfig, f *fetcher.HTTPFetcher) (domain.StateSource, error) {
	s := cfg.Settings()
	switch cfg.GetSourceKind() {
	case "volumio":
		c, err := volumio.NewClient(logger, s.Volumio.URL, s.Volumio.ReconnectDelay, f)
		if err != nil {
			return nil, err
		}
		return c, nil
	case "mpris":
		return monitor.NewMprisMonitor(logger, s.MPRIS.Bus), nil
	default:
		return nil, fmt.Errorf("unknown source.kind %q", cfg.GetSourceKind())
	}
}

// newPowerCommander lets the Volumio client power the host off when it is the source
func newPowerCommander(logger *zap.Logger, cfg *config.AppConfig, src domain.StateSource) (domain.PowerCommander, error) {
	var viaVolumio domain.PowerCommander
	if c, ok := src.(*volumio.Client); ok {
		viaVolumio = c
	}
	return power.NewCommander(logger, cfg.Settings().Power.Command, viaVolumio)
}

func newPins(logger *zap.Logger, cfg *config.AppConfig) (*power.Pins, error) {
	return power.OpenPins(logger, cfg)
}

func newEngine(logger *zap.Logger, cfg *config.AppConfig, src domain.StateSource) *engine.Engine {
	open := func() (domain.Display, error) {
		return lcd.Open(logger, cfg.Settings())
	}
	return engine.NewEngine(logger, src, open, engine.Options{
		Interval: cfg.GetScrollInterval(),
		Width:    cfg.GetDisplayWidth(),
	})
}

// newShutdownWatcher follows host shutdowns through logind when a power
// board is wired, so the board is signalled however the host goes down
func newShutdownWatcher(lc fx.Lifecycle, logger *zap.Logger, pins *power.Pins) *power.Logind {
	if !pins.Wired() {
		return power.NewLogindWithBus(logger, nil)
	}

	w := power.OpenShutdownWatcher(logger)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return w.Close()
		},
	})
	return w
}

func newPlugin(
	logger *zap.Logger,
	eng *engine.Engine,
	pins *power.Pins,
	watcher *power.Logind,
	commander domain.PowerCommander,
) domain.Lifecycle {
	return plugin.New(logger, eng, pins, watcher, commander)
}

func newControlServer(logger *zap.Logger, cfg *config.AppConfig, lifecycle domain.Lifecycle, eng *engine.Engine) *control.Server {
	router := control.NewRouter(logger, lifecycle, eng, cfg.Settings().Control.AllowedOrigins)
	return control.NewServer(logger, cfg.GetControlAddr(), router)
}

// registerHooks binds the plugin and the control API to the application lifecycle
func registerHooks(lc fx.Lifecycle, logger *zap.Logger, lifecycle domain.Lifecycle, server *control.Server) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("RaspDAC daemon starting")
			if err := lifecycle.OnStart(ctx); err != nil {
				return err
			}
			if err := server.Start(ctx); err != nil {
				// fx does not run this hook's OnStop when its OnStart fails
				return multierr.Append(err, lifecycle.OnStop(ctx))
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Shutting down")
			if err := server.Stop(ctx); err != nil {
				logger.Warn("Control API shutdown failed", zap.Error(err))
			}
			return lifecycle.OnStop(ctx)
		},
	})
}
