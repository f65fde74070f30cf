package device

import (
	"time"

	"go.uber.org/zap"
)

// maxLag is how far the loop may fall behind a note deadline before the
// schedule is re-anchored to the current time instead of catching up.
const maxLag = 50 * time.Millisecond

// playback is the cursor into the committed melody
type playback struct {
	index    int
	paused   bool
	started  bool      // the note at index has been emitted
	deadline time.Time // when the note at index ends
}

func (p *playback) reset() {
	*p = playback{paused: true}
}

// resume: Paused -> Playing. Idle has nothing to play, Playing is unchanged,
// Receiving keeps playback suspended.
func (d *Device) resume(source string) {
	if d.state != StatePaused {
		d.log.Debug("play ignored", zap.Stringer("state", d.state), zap.String("source", source))
		return
	}
	d.state = StatePlaying
	d.play.paused = false
	d.play.started = false // restart the note under the cursor
	d.log.Info("playback resumed", zap.Int("cursor", d.play.index), zap.String("source", source))
}

// pause: Playing -> Paused, output silenced. Anything else is unchanged.
func (d *Device) pause(source string) {
	if d.state != StatePlaying {
		return
	}
	d.state = StatePaused
	d.play.paused = true
	d.play.started = false
	d.silence()
	d.log.Info("playback paused", zap.Int("cursor", d.play.index), zap.String("source", source))
}

func (d *Device) toggle() {
	switch d.state {
	case StatePlaying:
		d.pause("toggle")
	case StatePaused:
		d.resume("toggle")
	default:
		d.log.Debug("toggle ignored", zap.Stringer("state", d.state))
	}
}

// tickPlayback acts only while Playing. A note advances once its duration has
// fully elapsed; at most one advance happens per step.
func (d *Device) tickPlayback(now time.Time) {
	if d.state != StatePlaying {
		return
	}
	length := d.committed.Len()
	if length == 0 {
		d.state = StateIdle
		return
	}

	if !d.play.started {
		d.startNote(now)
		return
	}
	if now.Before(d.play.deadline) {
		return
	}

	start := d.play.deadline
	if now.Sub(start) > maxLag {
		start = now
	}
	d.play.index++
	if d.play.index >= length {
		d.play.index = 0
	}
	d.startNote(start)
}

func (d *Device) startNote(start time.Time) {
	n := d.committed.At(d.play.index)
	d.stream.active = false
	d.emit(n.Frequency)
	d.play.started = true
	d.play.deadline = start.Add(time.Duration(n.Duration) * time.Millisecond)
}
