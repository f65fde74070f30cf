// Package config loads tonebridge configuration from YAML or TOML files.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/james-see/tonebridge/pkg/device"
	"github.com/james-see/tonebridge/pkg/melody"
	"github.com/james-see/tonebridge/pkg/transport"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// ErrNoChannels is returned when no channel is enabled
var ErrNoChannels = errors.New("config: no enabled channels")

// Config is the top-level configuration of a device process
type Config struct {
	Device   DeviceConfig    `yaml:"device" toml:"device"`
	Channels []ChannelConfig `yaml:"channels" toml:"channels"`
	HTTP     HTTPConfig      `yaml:"http" toml:"http"`
	Journal  JournalConfig   `yaml:"journal" toml:"journal"`
	Log      LogConfig       `yaml:"log" toml:"log"`
}

// DeviceConfig tunes the device loop
type DeviceConfig struct {
	Capacity   int    `yaml:"capacity" toml:"capacity"`
	TickMS     int    `yaml:"tick_ms" toml:"tick_ms"`
	WatchdogMS int    `yaml:"watchdog_ms" toml:"watchdog_ms"`
	Output     string `yaml:"output" toml:"output"` // "log", "none" or the name of a disabled channel to dial and forward tones to
	ToggleFile string `yaml:"toggle_file,omitempty" toml:"toggle_file,omitempty"`
}

// TickInterval returns the loop granularity
func (d DeviceConfig) TickInterval() time.Duration {
	return time.Duration(d.TickMS) * time.Millisecond
}

// WatchdogWindow returns the stream watchdog window
func (d DeviceConfig) WatchdogWindow() time.Duration {
	return time.Duration(d.WatchdogMS) * time.Millisecond
}

// ChannelConfig is one transport endpoint plus its enable flag
type ChannelConfig struct {
	transport.Endpoint `yaml:",inline"`
	Enabled            bool `yaml:"enabled" toml:"enabled"`
}

// HTTPConfig controls the status/control API
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Addr    string `yaml:"addr" toml:"addr"`
}

// JournalConfig controls the diagnostic journal
type JournalConfig struct {
	Path string `yaml:"path" toml:"path"` // empty disables the journal
}

// LogConfig controls logger construction
type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"` // auto, console or json
}

// Default returns the configuration used when no file is given
func Default() Config {
	return Config{
		Device: DeviceConfig{
			Capacity:   melody.DefaultCapacity,
			TickMS:     int(device.DefaultTickInterval / time.Millisecond),
			WatchdogMS: int(device.DefaultWatchdogWindow / time.Millisecond),
			Output:     "log",
		},
		Channels: []ChannelConfig{
			{Endpoint: transport.Endpoint{Name: "tcp", Kind: transport.KindTCP, Address: "127.0.0.1:7070"}, Enabled: true},
		},
		HTTP: HTTPConfig{Enabled: true, Addr: ":8080"},
		Log:  LogConfig{Level: "info", Format: "auto"},
	}
}

// Load reads path, choosing the decoder by extension, and fills unset fields from Default
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes data as YAML (.yaml/.yml) or TOML (.toml) and applies defaults
func Parse(data []byte, ext string) (Config, error) {
	var cfg Config
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse yaml: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse toml: %w", err)
		}
	default:
		return Config{}, fmt.Errorf("unsupported config format %q", ext)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	def := Default()
	if c.Device.Capacity <= 0 {
		c.Device.Capacity = def.Device.Capacity
	}
	if c.Device.TickMS <= 0 {
		c.Device.TickMS = def.Device.TickMS
	}
	if c.Device.WatchdogMS <= 0 {
		c.Device.WatchdogMS = def.Device.WatchdogMS
	}
	if c.Device.Output == "" {
		c.Device.Output = def.Device.Output
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = def.HTTP.Addr
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = def.Log.Format
	}
	for i := range c.Channels {
		ch := &c.Channels[i]
		if ch.Name == "" {
			ch.Name = fmt.Sprintf("%s%d", ch.Kind, i)
		}
		if ch.Kind == transport.KindSerial && ch.Baud <= 0 {
			ch.Baud = transport.DefaultBaud
		}
	}
}

// Enabled returns the endpoints of all enabled channels
func (c Config) Enabled() []transport.Endpoint {
	var out []transport.Endpoint
	for _, ch := range c.Channels {
		if ch.Enabled {
			out = append(out, ch.Endpoint)
		}
	}
	return out
}

// Endpoint looks up a channel by name
func (c Config) Endpoint(name string) (transport.Endpoint, bool) {
	for _, ch := range c.Channels {
		if ch.Name == name {
			return ch.Endpoint, true
		}
	}
	return transport.Endpoint{}, false
}

func (c Config) channelEnabled(name string) bool {
	for _, ch := range c.Channels {
		if ch.Name == name {
			return ch.Enabled
		}
	}
	return false
}

// Validate reports the first configuration problem found
func (c Config) Validate() error {
	// lengths travel as u16 on the wire
	if c.Device.Capacity <= 0 || c.Device.Capacity > math.MaxUint16 {
		return fmt.Errorf("device.capacity %d out of range 1..%d", c.Device.Capacity, math.MaxUint16)
	}
	seen := make(map[string]bool)
	for _, ch := range c.Channels {
		if seen[ch.Name] {
			return fmt.Errorf("duplicate channel name %q", ch.Name)
		}
		seen[ch.Name] = true
		if !ch.Enabled {
			continue
		}
		if err := ch.Endpoint.Validate(); err != nil {
			return err
		}
	}
	if len(c.Enabled()) == 0 && !c.HTTP.Enabled {
		return ErrNoChannels
	}
	switch c.Device.Output {
	case "log", "none":
	default:
		ep, ok := c.Endpoint(c.Device.Output)
		if !ok {
			return fmt.Errorf("device.output %q is not log, none or a channel name", c.Device.Output)
		}
		if c.channelEnabled(ep.Name) {
			return fmt.Errorf("device.output %q must name a disabled channel; it is dialed, not served", ep.Name)
		}
		if err := ep.Validate(); err != nil {
			return err
		}
	}
	switch c.Log.Format {
	case "auto", "console", "json":
	default:
		return fmt.Errorf("log.format %q must be auto, console or json", c.Log.Format)
	}
	return nil
}
