package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/pourkiosk/internal/catalog"
	"github.com/roach88/pourkiosk/internal/clock"
	"github.com/roach88/pourkiosk/internal/config"
	"github.com/roach88/pourkiosk/internal/events"
	"github.com/roach88/pourkiosk/internal/hw"
	"github.com/roach88/pourkiosk/internal/store"
)

// Parts selects which pieces of the environment a command needs.
type Parts uint8

const (
	NeedBackend Parts = 1 << iota
	NeedStore
	NeedPublisher
)

// Env is everything a command may need, built from the --config file.
// Fields for parts that were not requested are nil.
type Env struct {
	Config  config.Config
	Catalog *catalog.Memory
	Backend hw.Backend
	Store   *store.Store
	Pub     events.Publisher
}

// LoadEnv loads the configuration and catalog, then opens the requested
// parts. Every failure is an ExitCommandError. On error, parts already
// opened are closed again.
func LoadEnv(opts *RootOptions, parts Parts) (*Env, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}

	cat, err := loadCatalog(cfg)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load catalog", err)
	}

	env := &Env{Config: cfg, Catalog: cat}

	if parts&NeedBackend != 0 {
		env.Backend, err = newBackend(cfg, cat)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to initialise hardware", err)
		}
	}

	if parts&NeedStore != 0 {
		slog.Debug("opening database", "path", cfg.Store.Path)
		env.Store, err = store.Open(cfg.Store.Path)
		if err != nil {
			env.Close()
			return nil, WrapExitError(ExitCommandError, "failed to open database", err)
		}
	}

	if parts&NeedPublisher != 0 {
		env.Pub, err = newPublisher(cfg)
		if err != nil {
			env.Close()
			return nil, WrapExitError(ExitCommandError, "failed to connect telemetry", err)
		}
	}

	return env, nil
}

// Close shuts every valve and releases what LoadEnv opened. Errors are
// logged.
func (e *Env) Close() {
	var errs []error
	if e.Backend != nil {
		errs = append(errs, e.Backend.Close())
	}
	if e.Pub != nil {
		errs = append(errs, e.Pub.Close())
	}
	if e.Store != nil {
		errs = append(errs, e.Store.Close())
	}
	if err := errors.Join(errs...); err != nil {
		slog.Error("error during shutdown", "error", err)
	}
}

func loadCatalog(cfg config.Config) (*catalog.Memory, error) {
	if cfg.Catalog.Path == "" {
		return catalog.NewMemory(catalog.Seed()...)
	}
	return catalog.LoadFile(cfg.Catalog.Path)
}

// newBackend builds the backend the config names. The choice is made once
// here and injected everywhere else.
func newBackend(cfg config.Config, cat *catalog.Memory) (hw.Backend, error) {
	switch cfg.Hardware.Backend {
	case config.BackendGPIO:
		g, err := hw.NewGPIO(cat.Lines()...)
		if err != nil {
			return nil, err
		}
		return g, nil
	case config.BackendSim:
		s, err := hw.NewSim(clock.Real{}, cfg.SimConfig(), cat.Lines()...)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Hardware.Backend)
	}
}

// newPublisher logs every event and, when a broker is configured, also
// publishes it over MQTT.
func newPublisher(cfg config.Config) (events.Publisher, error) {
	if cfg.MQTT.Broker == "" {
		return events.Log{}, nil
	}
	m, err := events.NewMQTT(cfg.MQTTConfig())
	if err != nil {
		return nil, err
	}
	return events.Multi{events.Log{}, m}, nil
}

// newFormatter builds the output formatter for a command. Verbose logs go to
// stderr so they never corrupt JSON output.
func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// signalContext returns a context cancelled on SIGINT or SIGTERM, or when
// the command's own context ends.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}
