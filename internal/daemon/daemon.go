// Package daemon assembles a running device from configuration: transport
// channels, tone output, journal, toggle input and the HTTP API.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/james-see/tonebridge/internal/config"
	"github.com/james-see/tonebridge/pkg/api"
	"github.com/james-see/tonebridge/pkg/device"
	"github.com/james-see/tonebridge/pkg/journal"
	"github.com/james-see/tonebridge/pkg/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	dialTimeout      = 5 * time.Second
	toggleSampleRate = 10 * time.Millisecond
	toggleDebounce   = 50 * time.Millisecond
)

type toggler interface {
	Toggle()
}

// Daemon is an assembled device with everything it owns
type Daemon struct {
	cfg     config.Config
	log     *zap.Logger
	dev     *device.Device
	mux     *transport.Mux
	inbox   *transport.BufferChannel
	journal *journal.Journal
	closers []io.Closer
}

// New opens every enabled channel, the output link and the journal. On error
// anything already opened is closed.
func New(cfg config.Config, log *zap.Logger) (_ *Daemon, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	d := &Daemon{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			_ = d.Close()
		}
	}()

	d.mux = transport.NewMux(log.Named("mux"))
	d.closers = append(d.closers, d.mux)
	for _, ep := range cfg.Enabled() {
		ch, err := transport.Open(ep, log.Named("transport"))
		if err != nil {
			return nil, fmt.Errorf("open channel %s: %w", ep.Name, err)
		}
		d.mux.Add(ch)
		log.Info("channel opened", zap.String("channel", ep.Name), zap.String("kind", string(ep.Kind)), zap.String("address", ep.Address))
	}
	if cfg.HTTP.Enabled {
		d.inbox = transport.NewBufferChannel(api.ChannelName, false)
		d.mux.Add(d.inbox)
	}

	out, err := d.openOutput()
	if err != nil {
		return nil, err
	}

	opts := []device.Option{
		device.WithLogger(log.Named("device")),
		device.WithOutput(out),
		device.WithSource(d.mux),
		device.WithCapacity(cfg.Device.Capacity),
		device.WithTickInterval(cfg.Device.TickInterval()),
		device.WithWatchdogWindow(cfg.Device.WatchdogWindow()),
	}
	if cfg.Journal.Path != "" {
		j, err := journal.Open(cfg.Journal.Path, journal.WithLogger(log.Named("journal")))
		if err != nil {
			return nil, err
		}
		d.journal = j
		d.closers = append(d.closers, j)
		opts = append(opts, device.WithRecorder(j))
	}
	d.dev = device.New(opts...)
	return d, nil
}

func (d *Daemon) openOutput() (device.Output, error) {
	switch d.cfg.Device.Output {
	case "none":
		return nil, nil
	case "log":
		return device.LogOutput{Logger: d.log.Named("output")}, nil
	}
	ep, _ := d.cfg.Endpoint(d.cfg.Device.Output)
	conn, err := transport.Dial(ep, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("dial output %s: %w", ep.Name, err)
	}
	d.closers = append(d.closers, conn)
	d.log.Info("forwarding tones", zap.String("channel", ep.Name), zap.String("address", ep.Address))
	return device.FrameOutput{W: conn, Logger: d.log.Named("output")}, nil
}

// Device returns the assembled device
func (d *Daemon) Device() *device.Device { return d.dev }

// Journal returns the journal, or nil when disabled
func (d *Daemon) Journal() *journal.Journal { return d.journal }

// Run drives the device loop, the toggle input, the toggle signal and the
// HTTP API until ctx is cancelled or one of them fails.
func (d *Daemon) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return d.dev.Run(ctx) })

	if path := d.cfg.Device.ToggleFile; path != "" {
		g.Go(func() error {
			d.dev.WatchLevel(ctx, toggleSampleRate, toggleDebounce, device.FileLevel(path))
			return nil
		})
	}

	g.Go(func() error {
		notifyToggle(ctx, d.dev, d.log)
		return nil
	})

	if d.inbox != nil {
		srv := api.NewServer(d.dev, d.inbox, d.log.Named("api"))
		g.Go(func() error { return api.StartServer(ctx, d.cfg.HTTP.Addr, srv) })
	}

	return g.Wait()
}

// Close releases channels, the output link and the journal
func (d *Daemon) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}
