package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/kbukum/dirtytables/component"
	"github.com/kbukum/dirtytables/config"
	"github.com/kbukum/dirtytables/fixture"
	"github.com/kbukum/dirtytables/logger"
	"github.com/kbukum/dirtytables/observability"
)

// options are the persistent flags shared by every command.
type options struct {
	configPath string
	connection string
	output     string
}

// app is the state one command runs with.
type app struct {
	cfg        *config.Config
	log        *logger.Logger
	components *component.Registry
	fixtures   *fixture.Manager
	connection string
	out        *printer
}

func newApp(ctx context.Context, opts *options, w io.Writer) (*app, error) {
	out, err := newPrinter(w, opts.output)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if cfg.Logging.NoColor {
		color.NoColor = true
	}
	log := logger.New(&cfg.Logging, cfg.Name)

	telemetry, err := observability.NewComponent(cfg.Observability, cfg.Name, log)
	if err != nil {
		return nil, err
	}
	components := component.NewRegistry(log)
	if err := components.Register(telemetry); err != nil {
		return nil, err
	}
	if err := components.StartAll(ctx); err != nil {
		return nil, err
	}

	fixtures, err := fixture.New(cfg, fixture.WithLogger(log), fixture.WithMetrics(telemetry.Metrics()))
	if err != nil {
		_ = components.StopAll(ctx)
		return nil, err
	}
	if _, ok := cfg.Connection(opts.connection); !ok {
		_ = components.StopAll(ctx)
		return nil, fmt.Errorf("connection %q is not configured (have %v)", opts.connection, cfg.ConnectionNames())
	}
	return &app{
		cfg:        cfg,
		log:        log,
		components: components,
		fixtures:   fixtures,
		connection: opts.connection,
		out:        out,
	}, nil
}

// close releases the connections before flushing telemetry.
func (a *app) close(ctx context.Context) error {
	return errors.Join(a.fixtures.Close(), a.components.StopAll(ctx))
}
