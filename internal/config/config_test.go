package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/james-see/tonebridge/pkg/transport"
)

const yamlConfig = `
device:
  capacity: 512
  tick_ms: 1
  output: board
channels:
  - name: usb
    kind: serial
    address: /dev/ttyUSB0
    enabled: true
  - name: ble
    kind: tcp
    address: 0.0.0.0:7070
    enabled: true
  - name: board
    kind: serial
    address: /dev/ttyACM0
    baud: 9600
http:
  enabled: true
  addr: 127.0.0.1:9090
journal:
  path: /var/lib/tonebridge/journal.db
log:
  level: debug
  format: json
`

const tomlConfig = `
[device]
watchdog_ms = 2500

[[channels]]
name = "fifo"
kind = "pipe"
address = "/tmp/tonebridge.in"
reply_path = "/tmp/tonebridge.out"
enabled = true
`

func TestParseYAML(t *testing.T) {
	cfg, err := Parse([]byte(yamlConfig), ".yaml")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if cfg.Device.Capacity != 512 || cfg.Device.TickInterval() != time.Millisecond {
		t.Errorf("device = %+v, want capacity 512 and 1ms tick", cfg.Device)
	}
	if cfg.Device.WatchdogWindow() != 5*time.Second {
		t.Errorf("WatchdogWindow() = %v, want default 5s", cfg.Device.WatchdogWindow())
	}
	if got := len(cfg.Enabled()); got != 2 {
		t.Errorf("len(Enabled()) = %d, want 2", got)
	}
	usb, ok := cfg.Endpoint("usb")
	if !ok || usb.Kind != transport.KindSerial || usb.Baud != transport.DefaultBaud {
		t.Errorf("Endpoint(usb) = %+v, %v; want serial at default baud", usb, ok)
	}
	board, _ := cfg.Endpoint("board")
	if board.Baud != 9600 {
		t.Errorf("board baud = %d, want 9600", board.Baud)
	}
	if cfg.HTTP.Addr != "127.0.0.1:9090" || cfg.Log.Format != "json" || cfg.Journal.Path == "" {
		t.Errorf("config = %+v, want http, log and journal sections applied", cfg)
	}
}

func TestParseTOML(t *testing.T) {
	cfg, err := Parse([]byte(tomlConfig), ".toml")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	fifo, ok := cfg.Endpoint("fifo")
	if !ok || fifo.Kind != transport.KindPipe || fifo.ReplyPath != "/tmp/tonebridge.out" {
		t.Errorf("Endpoint(fifo) = %+v, %v", fifo, ok)
	}
	if cfg.Device.WatchdogWindow() != 2500*time.Millisecond {
		t.Errorf("WatchdogWindow() = %v, want 2.5s", cfg.Device.WatchdogWindow())
	}
	if cfg.Device.Output != "log" || cfg.Log.Level != "info" {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tonebridge.yml")
	if err := os.WriteFile(path, []byte(yamlConfig), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err != nil {
		t.Errorf("Load() error = %v", err)
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("Load(missing) error = nil")
	}

	ini := filepath.Join(dir, "tonebridge.ini")
	if err := os.WriteFile(ini, []byte("x=1"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(ini); err == nil {
		t.Error("Load(.ini) error = nil, want unsupported format")
	}
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Default().Validate() = %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
		is      error
	}{
		{"default", func(*Config) {}, false, nil},
		{"no channels", func(c *Config) { c.Channels = nil; c.HTTP.Enabled = false }, true, ErrNoChannels},
		{"http only", func(c *Config) { c.Channels = nil }, false, nil},
		{"capacity too large", func(c *Config) { c.Device.Capacity = 70000 }, true, nil},
		{"bad kind", func(c *Config) { c.Channels[0].Kind = "carrier-pigeon" }, true, nil},
		{"disabled bad kind", func(c *Config) { c.Channels[0].Kind = "carrier-pigeon"; c.Channels[0].Enabled = false }, false, nil},
		{"duplicate names", func(c *Config) { c.Channels = append(c.Channels, c.Channels[0]) }, true, nil},
		{"unknown output", func(c *Config) { c.Device.Output = "speaker" }, true, nil},
		{"output on served channel", func(c *Config) { c.Device.Output = "tcp" }, true, nil},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, true, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.is != nil && !errors.Is(err, tt.is) {
				t.Errorf("Validate() error = %v, want %v", err, tt.is)
			}
		})
	}
}
