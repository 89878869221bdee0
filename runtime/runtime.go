// Package runtime is the lifecycle harness every worker service inherits:
// signal-driven shutdown, settings acquisition with retry, command
// subscription and graceful teardown.
package runtime

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/nats-io/nuid"
	"github.com/rs/zerolog"

	"github.com/GregAscolab/python-microservice-test/bus"
	"github.com/GregAscolab/python-microservice-test/command"
	"github.com/GregAscolab/python-microservice-test/pkg/x_log"
	"github.com/GregAscolab/python-microservice-test/settings"
)

// Logic is the service-specific part of a worker. Start registers commands
// on rt.Router, installs domain subscriptions and launches background tasks
// via rt.Go; Stop releases whatever Start acquired.
type Logic interface {
	Name() string
	Start(rt *Runtime) error
	Stop()
}

// Runtime owns one service process: its logger, bus client, settings
// document and shutdown event. One logical event loop per service; all
// background activities are tasks tracked by the runtime.
type Runtime struct {
	name string
	id   string
	opts Options

	Log      zerolog.Logger
	Client   *bus.Client
	Router   *command.Router
	Settings settings.Document

	logic  Logic
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds the runtime for a service.
func New(logic Logic, opts ...Option) *Runtime {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	logCfg := o.LogConfig
	if logCfg == nil {
		logCfg, _ = x_log.LoadConfig("")
	}
	log := x_log.Setup(logic.Name(), logCfg)

	rt := &Runtime{
		name:   logic.Name(),
		id:     nuid.Next(),
		opts:   o,
		Log:    log,
		Client: bus.New(logic.Name(), log),
		logic:  logic,
	}
	rt.ctx, rt.cancel = context.WithCancel(context.Background())
	rt.Router = command.NewRouter(logic.Name(), log)
	return rt
}

// Name returns the service name.
func (rt *Runtime) Name() string { return rt.name }

// ID returns the per-process instance id.
func (rt *Runtime) ID() string { return rt.id }

// Context returns the shutdown context; it is done once the service should
// stop.
func (rt *Runtime) Context() context.Context { return rt.ctx }

// Run executes the full lifecycle and blocks until shutdown completes.
func (rt *Runtime) Run() error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			rt.cancel()
		case <-rt.ctx.Done():
		}
	}()

	rt.Log.Info().Str("id", rt.id).Msg("starting service")

	url := rt.opts.BusURL
	if !rt.opts.SkipSettings {
		doc, err := rt.fetchSettings()
		if err != nil {
			// Shutdown requested while still waiting for settings.
			rt.Log.Info().Msg("shutdown before settings were available")
			return nil
		}
		rt.Settings = doc
		url = doc.String("global.nats_url", rt.opts.BusURL)
	} else {
		rt.Settings = settings.Document{}
	}

	if err := rt.Client.Connect(url); err != nil {
		return fmt.Errorf("bus connect: %w", err)
	}
	defer rt.Client.Disconnect()

	if _, err := rt.Client.Subscribe("commands."+rt.name, rt.Router.Handle); err != nil {
		return fmt.Errorf("subscribe commands: %w", err)
	}

	if err := rt.logic.Start(rt); err != nil {
		rt.cancel()
		rt.wg.Wait()
		return fmt.Errorf("start logic: %w", err)
	}

	rt.Log.Info().Msg("service is running")
	<-rt.ctx.Done()

	rt.Log.Info().Msg("stopping service")
	rt.logic.Stop()
	rt.wg.Wait()
	rt.Log.Info().Msg("service has stopped")
	return nil
}

// Shutdown requests a graceful stop, same as an interrupt signal.
func (rt *Runtime) Shutdown() {
	rt.cancel()
}

// Go runs fn as a tracked background task. Run waits for all tasks before
// disconnecting the bus client.
func (rt *Runtime) Go(fn func(ctx context.Context)) {
	rt.wg.Add(1)
	go func() {
		defer rt.wg.Done()
		fn(rt.ctx)
	}()
}

// Every ticks fn at the given period until shutdown. The first tick fires
// after one full period.
func (rt *Runtime) Every(period time.Duration, fn func()) {
	rt.Go(func(ctx context.Context) {
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn()
			}
		}
	})
}

// fetchSettings requests settings.get.all over a short-lived connection,
// retrying until it succeeds or shutdown fires.
func (rt *Runtime) fetchSettings() (settings.Document, error) {
	for {
		doc, err := rt.trySettingsOnce()
		if err == nil {
			rt.Log.Info().Msg("settings received")
			return doc, nil
		}
		rt.Log.Warn().Err(err).
			Dur("retry_in", rt.opts.RetryInterval).
			Msg("settings not available yet")

		select {
		case <-rt.ctx.Done():
			return nil, rt.ctx.Err()
		case <-time.After(rt.opts.RetryInterval):
		}
	}
}

func (rt *Runtime) trySettingsOnce() (settings.Document, error) {
	probe := bus.New(rt.name+"-settings-probe", rt.Log)
	if err := probe.Connect(rt.opts.BusURL); err != nil {
		return nil, err
	}
	defer probe.Disconnect()

	resp, err := probe.Request("settings.get.all", nil, rt.opts.SettingsTimeout)
	if err != nil {
		return nil, err
	}
	doc, err := settings.Parse(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("parse settings: %w", err)
	}
	return doc, nil
}
