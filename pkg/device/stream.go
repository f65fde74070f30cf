package device

import (
	"time"

	"go.uber.org/zap"
)

// streamState tracks a tone started by a real-time StreamNote
type streamState struct {
	window time.Duration
	active bool      // a streamed nonzero tone is sounding
	last   time.Time // arrival of the most recent StreamNote
	until  time.Time // end of a finite streamed note; zero means hold
}

// streamNote retunes or silences the output immediately. The committed
// melody and the playback cursor are not touched.
func (d *Device) streamNote(frequency, duration uint16) {
	d.stream.last = d.now
	d.emit(frequency)

	if frequency == 0 {
		d.stream.active = false
		return
	}
	d.stream.active = true
	d.stream.until = time.Time{}
	if duration > 0 {
		d.stream.until = d.now.Add(time.Duration(duration) * time.Millisecond)
	}
}

// checkStream ends finite streamed notes and silences a held tone that has
// not been refreshed within the watchdog window.
func (d *Device) checkStream(now time.Time) {
	if !d.stream.active {
		return
	}
	if !d.stream.until.IsZero() && !now.Before(d.stream.until) {
		d.stream.active = false
		d.emit(0)
		return
	}
	if now.Sub(d.stream.last) >= d.stream.window {
		d.log.Warn("stream watchdog expired; silencing",
			zap.Uint16("frequency", d.frequency),
			zap.Duration("idle", now.Sub(d.stream.last)))
		d.record(EventWatchdog, "", "")
		d.stream.active = false
		d.emit(0)
	}
}

// releaseStream silences a streamed tone whose sender went away
func (d *Device) releaseStream(reason string) {
	if !d.stream.active {
		return
	}
	d.log.Warn("releasing streamed tone", zap.String("reason", reason))
	d.stream.active = false
	d.emit(0)
}
