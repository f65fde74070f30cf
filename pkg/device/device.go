// Package device implements the receiving side of the tone protocol: the
// upload controller, the playback scheduler and the stream watchdog, all driven
// from one cooperative loop.
package device

import (
	"context"
	"io"
	"sync/atomic"
	"time"

	"github.com/james-see/tonebridge/pkg/melody"
	"github.com/james-see/tonebridge/pkg/protocol"
	"github.com/james-see/tonebridge/pkg/transport"
	"go.uber.org/zap"
)

// Defaults
const (
	DefaultTickInterval   = 2 * time.Millisecond
	DefaultWatchdogWindow = 5 * time.Second
)

// Poller is the command source polled once per loop step
type Poller interface {
	Poll(h transport.Handler)
	Peers() int
}

// Options configures a Device
type Options struct {
	Logger         *zap.Logger
	Output         Output
	Recorder       Recorder
	Source         Poller
	Capacity       int
	TickInterval   time.Duration
	WatchdogWindow time.Duration
}

// Option modifies Options
type Option func(*Options)

// WithLogger sets the diagnostics logger
func WithLogger(l *zap.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// WithOutput sets the tone sink
func WithOutput(out Output) Option {
	return func(o *Options) { o.Output = out }
}

// WithRecorder sets the diagnostic event recorder
func WithRecorder(r Recorder) Option {
	return func(o *Options) { o.Recorder = r }
}

// WithSource sets the command source, usually a *transport.Mux
func WithSource(p Poller) Option {
	return func(o *Options) { o.Source = p }
}

// WithCapacity sets the melody capacity in notes
func WithCapacity(n int) Option {
	return func(o *Options) { o.Capacity = n }
}

// WithTickInterval sets the loop granularity, which bounds pause latency
func WithTickInterval(d time.Duration) Option {
	return func(o *Options) { o.TickInterval = d }
}

// WithWatchdogWindow sets how long a streamed tone may sound without a fresh StreamNote
func WithWatchdogWindow(d time.Duration) Option {
	return func(o *Options) { o.WatchdogWindow = d }
}

func applyDefaultOptions(opts ...Option) Options {
	o := Options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Output == nil {
		o.Output = nopOutput{}
	}
	if o.Recorder == nil {
		o.Recorder = nopRecorder{}
	}
	if o.Capacity <= 0 {
		o.Capacity = melody.DefaultCapacity
	}
	if o.TickInterval <= 0 {
		o.TickInterval = DefaultTickInterval
	}
	if o.WatchdogWindow <= 0 {
		o.WatchdogWindow = DefaultWatchdogWindow
	}
	return o
}

// Device owns the melody buffers, the playback cursor and the upload session.
// All mutation happens inside Step (or HandleCommand called from Step); other
// goroutines interact only through Toggle and Snapshot.
type Device struct {
	log  *zap.Logger
	out  Output
	rec  Recorder
	src  Poller
	tick time.Duration

	committed *melody.Buffer
	staging   *melody.Buffer
	state     State
	session   *uploadSession
	play      playback
	stream    streamState
	frequency uint16
	peers     int
	now       time.Time

	toggles chan struct{}
	snap    atomic.Pointer[Snapshot]
}

// New allocates a device and both melody buffers
func New(opts ...Option) *Device {
	o := applyDefaultOptions(opts...)
	d := &Device{
		log:       o.Logger,
		out:       o.Output,
		rec:       o.Recorder,
		src:       o.Source,
		tick:      o.TickInterval,
		committed: melody.NewBuffer(o.Capacity),
		staging:   melody.NewBuffer(o.Capacity),
		state:     StateIdle,
		stream:    streamState{window: o.WatchdogWindow},
		toggles:   make(chan struct{}, 8),
	}
	d.play.paused = true
	d.publish()
	return d
}

// Run steps the device every tick interval until ctx is done, then silences output
func (d *Device) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.tick)
	defer ticker.Stop()

	d.log.Info("device loop started",
		zap.Duration("tick", d.tick),
		zap.Int("capacity", d.committed.Cap()),
		zap.Duration("watchdog", d.stream.window))

	d.Step(time.Now())
	for {
		select {
		case <-ctx.Done():
			d.silence()
			d.publish()
			d.log.Info("device loop stopped")
			return nil
		case now := <-ticker.C:
			d.Step(now)
		}
	}
}

// Step runs one iteration of the loop: poll channels, consume toggles,
// advance playback, check the stream watchdog, publish a snapshot.
func (d *Device) Step(now time.Time) {
	d.now = now
	if d.src != nil {
		d.src.Poll(d)
		d.setPeers(d.src.Peers())
	}
	d.drainToggles()
	d.tickPlayback(now)
	d.checkStream(now)
	d.publish()
}

// HandleCommand applies one decoded command. It must only be called from the loop goroutine.
func (d *Device) HandleCommand(channel string, cmd protocol.Command, reply io.Writer) {
	if cmd.Tag == protocol.TagStreamNote && d.state == StateReceiving {
		d.appendRecord(melody.Note{Frequency: cmd.Frequency, Duration: cmd.Duration})
		return
	}

	if cmd.Tag != protocol.TagStreamNote {
		d.log.Debug("command", zap.String("channel", channel), zap.Stringer("tag", cmd.Tag))
		d.record(EventCommand, channel, cmd.Tag.String())
	}

	switch cmd.Tag {
	case protocol.TagStartUpload:
		d.startUpload(channel)
	case protocol.TagEndUpload:
		d.endUpload(channel, reply)
	case protocol.TagPlay:
		d.resume("command")
	case protocol.TagStop:
		d.pause("command")
		d.silence()
	case protocol.TagStatusRequest:
		d.replyStatus(channel, reply)
	case protocol.TagStreamNote:
		d.streamNote(cmd.Frequency, cmd.Duration)
	}
}

// HandleUnknown logs an unrecognized tag; no state changes
func (d *Device) HandleUnknown(channel string, tag byte) {
	d.log.Warn("unknown command tag", zap.String("channel", channel), zap.Uint8("tag", tag))
	d.record(EventUnknownTag, channel, protocol.Tag(tag).String())
}

// HandlePeerLost accounts for a peer that was replaced on its channel before
// the channel ever read disconnected. The next Step restores the live count.
func (d *Device) HandlePeerLost(channel string, remaining int) {
	d.log.Debug("peer lost", zap.String("channel", channel), zap.Int("remaining", remaining))
	d.setPeers(remaining)
}

// Status returns the reply payload for a StatusRequest
func (d *Device) Status() protocol.Status {
	return protocol.Status{
		Length:      uint16(d.committed.Len()),
		CursorIndex: uint16(d.play.index),
		Paused:      d.state != StatePlaying,
		Receiving:   d.state == StateReceiving,
	}
}

func (d *Device) replyStatus(channel string, reply io.Writer) {
	b, _ := d.Status().MarshalBinary()
	d.writeReply(channel, reply, b)
}

func (d *Device) writeReply(channel string, reply io.Writer, b []byte) {
	if reply == nil {
		return
	}
	if _, err := reply.Write(b); err != nil {
		d.log.Warn("reply write failed", zap.String("channel", channel), zap.Error(err))
	}
}

// Toggle requests a pause/resume flip. Safe to call from any goroutine; each
// call is consumed exactly once by the loop.
func (d *Device) Toggle() {
	select {
	case d.toggles <- struct{}{}:
	default:
		d.log.Warn("toggle queue full; dropping toggle")
	}
}

func (d *Device) drainToggles() {
	for {
		select {
		case <-d.toggles:
			d.toggle()
		default:
			return
		}
	}
}

func (d *Device) setPeers(n int) {
	if n == d.peers {
		return
	}
	prev := d.peers
	d.peers = n
	d.log.Info("peer count changed", zap.Int("from", prev), zap.Int("to", n))
	d.record(EventPeers, "", "")
	if n == 0 && prev > 0 {
		d.abortUpload("last peer disconnected")
		d.releaseStream("last peer disconnected")
	}
}

func (d *Device) emit(frequency uint16) {
	d.frequency = frequency
	if frequency == 0 {
		d.out.Silence()
		return
	}
	d.out.Tone(frequency)
}

func (d *Device) silence() {
	d.stream.active = false
	if d.frequency != 0 {
		d.emit(0)
	}
}
