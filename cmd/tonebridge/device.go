package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/james-see/tonebridge/internal/config"
	"github.com/james-see/tonebridge/internal/daemon"
	"github.com/james-see/tonebridge/pkg/device"
	"github.com/james-see/tonebridge/pkg/journal"
	"github.com/james-see/tonebridge/pkg/transport"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configFile string
	listenAddr string
	serialDev  string
	pipePath   string
	httpAddr   string
	deviceDB   string
	toggleFile string
	capacity   int

	journalDB    string
	journalQuery journal.Query
	journalSince time.Duration
	journalKind  string
)

var deviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Run a tone device in the foreground",
	Long: `Runs the device loop: commands arrive on the configured channels, streamed
tones sound immediately and an uploaded melody plays in a loop. Send SIGUSR1
or change --toggle-file from 0 to 1 to toggle playback.`,
	Args: cobra.NoArgs,
	RunE: runDevice,
}

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Show recorded device events",
	Args:  cobra.NoArgs,
	RunE:  runJournal,
}

func init() {
	f := deviceCmd.Flags()
	f.StringVarP(&configFile, "config", "c", "", "YAML or TOML config file")
	f.StringVar(&listenAddr, "listen", "", "Serve the TCP link on this address")
	f.StringVar(&serialDev, "serial", "", "Serve the serial link on this device")
	f.StringVar(&pipePath, "pipe", "", "Read commands from this named pipe")
	f.StringVar(&httpAddr, "http", "", "Serve the HTTP API on this address")
	f.StringVar(&deviceDB, "journal", "", "Record events to this SQLite file")
	f.StringVar(&toggleFile, "toggle-file", "", "Toggle playback on each 0 to 1 change of this file")
	f.IntVar(&capacity, "capacity", 0, "Melody capacity in notes")

	f = journalCmd.Flags()
	f.StringVar(&journalDB, "db", "tonebridge.db", "Journal SQLite file")
	f.StringVar(&journalKind, "kind", "", "Only events of this kind")
	f.StringVar(&journalQuery.Channel, "channel", "", "Only events from this channel")
	f.StringVar(&journalQuery.Session, "session", "", "Only events of this upload session")
	f.DurationVar(&journalSince, "since", 0, "Only events newer than this")
	f.IntVarP(&journalQuery.Limit, "limit", "n", 50, "Show at most this many recent events")
}

// deviceConfig loads the config file, if any, and applies flag overrides
func deviceConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if configFile != "" {
		var err error
		if cfg, err = config.Load(configFile); err != nil {
			return cfg, err
		}
	}

	flags := cmd.Flags()
	addChannel := func(ep transport.Endpoint) {
		cfg.Channels = append(cfg.Channels, config.ChannelConfig{Endpoint: ep, Enabled: true})
	}
	if flags.Changed("listen") || flags.Changed("serial") || flags.Changed("pipe") {
		// explicit links replace the configured ones; disabled entries stay for device.output
		kept := cfg.Channels[:0]
		for _, ch := range cfg.Channels {
			if !ch.Enabled {
				kept = append(kept, ch)
			}
		}
		cfg.Channels = kept
	}
	if listenAddr != "" {
		addChannel(transport.Endpoint{Name: "tcp", Kind: transport.KindTCP, Address: listenAddr})
	}
	if serialDev != "" {
		addChannel(transport.Endpoint{Name: "serial", Kind: transport.KindSerial, Address: serialDev, Baud: transport.DefaultBaud})
	}
	if pipePath != "" {
		addChannel(transport.Endpoint{Name: "pipe", Kind: transport.KindPipe, Address: pipePath})
	}
	if flags.Changed("http") {
		cfg.HTTP.Enabled = httpAddr != ""
		cfg.HTTP.Addr = httpAddr
	}
	if flags.Changed("journal") {
		cfg.Journal.Path = deviceDB
	}
	if flags.Changed("toggle-file") {
		cfg.Device.ToggleFile = toggleFile
	}
	if flags.Changed("capacity") {
		cfg.Device.Capacity = capacity
	}
	return cfg, cfg.Validate()
}

func runDevice(cmd *cobra.Command, args []string) error {
	cfg, err := deviceConfig(cmd)
	if err != nil {
		return err
	}

	d, err := daemon.New(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := d.Close(); err != nil {
			log.Warn("close", zap.Error(err))
		}
	}()

	ctx, stop := signalContext()
	defer stop()
	if cfg.HTTP.Enabled {
		log.Info("swagger docs", zap.String("url", fmt.Sprintf("http://%s/swagger/index.html", cfg.HTTP.Addr)))
	}
	return d.Run(ctx)
}

func runJournal(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(journalDB); err != nil {
		return fmt.Errorf("journal: %w", err)
	}
	j, err := journal.Open(journalDB, journal.WithLogger(log))
	if err != nil {
		return err
	}
	defer j.Close()

	q := journalQuery
	q.Kind = device.EventKind(journalKind)
	if journalSince > 0 {
		q.Since = time.Now().Add(-journalSince)
	}
	events, err := j.Events(context.Background(), q)
	if err != nil {
		return err
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("#666666"))).
		Headers("TIME", "KIND", "CHANNEL", "SESSION", "LENGTH", "PEERS", "DETAIL")
	for _, e := range events {
		t.Row(
			e.Time.Local().Format("2006-01-02 15:04:05.000"),
			string(e.Kind),
			e.Channel,
			shortID(e.Session),
			strconv.Itoa(e.Length),
			strconv.Itoa(e.Peers),
			e.Detail,
		)
	}
	fmt.Println(t)
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
