// Package sender is the host side of the tone protocol: real-time streaming,
// melody upload and status queries.
package sender

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/james-see/tonebridge/pkg/melody"
	"github.com/james-see/tonebridge/pkg/protocol"
)

// DefaultKeepAlive is how often PlayNotes refreshes a held tone. It must stay
// below the device watchdog window.
const DefaultKeepAlive = 2 * time.Second

// Streamer forwards live frequency changes. Repeating the current frequency
// sends nothing; the device is assumed silent until the first update.
type Streamer struct {
	w     io.Writer
	last  uint16
	force bool
}

// NewStreamer returns a streamer writing frames to w
func NewStreamer(w io.Writer) *Streamer {
	return &Streamer{w: w}
}

// Update sends a StreamNote if freq differs from the last one sent. It
// reports whether a frame was written. A failed write leaves the last
// frequency unchanged so the next update retries.
func (s *Streamer) Update(freq uint16) (bool, error) {
	if !s.force && freq == s.last {
		return false, nil
	}
	if err := s.send(freq); err != nil {
		return false, err
	}
	return true, nil
}

// Refresh resends the current frequency unconditionally, keeping the device
// watchdog from expiring during a long note
func (s *Streamer) Refresh() error {
	return s.send(s.last)
}

// Reset forgets the last frequency so the next Update is always sent
func (s *Streamer) Reset() { s.force = true }

// Last returns the last frequency sent
func (s *Streamer) Last() uint16 { return s.last }

func (s *Streamer) send(freq uint16) error {
	if _, err := s.w.Write(protocol.StreamNote(freq, 0)); err != nil {
		return err
	}
	s.last = freq
	s.force = false
	return nil
}

// PlayNotes sounds notes in real time through the streamer, then silences.
// Held tones are refreshed every keepAlive; zero disables refreshing. A
// failed final silence is reported unless an earlier error already was.
func (s *Streamer) PlayNotes(ctx context.Context, notes []melody.Note, keepAlive time.Duration) (err error) {
	defer func() {
		if _, serr := s.Update(0); serr != nil && err == nil {
			err = fmt.Errorf("silence: %w", serr)
		}
	}()

	for _, n := range notes {
		if _, err := s.Update(n.Frequency); err != nil {
			return err
		}
		if err := s.hold(ctx, time.Duration(n.Duration)*time.Millisecond, keepAlive); err != nil {
			return err
		}
	}
	return nil
}

func (s *Streamer) hold(ctx context.Context, d, keepAlive time.Duration) error {
	end := time.NewTimer(d)
	defer end.Stop()

	var tick <-chan time.Time
	if keepAlive > 0 && s.last != 0 {
		t := time.NewTicker(keepAlive)
		defer t.Stop()
		tick = t.C
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-end.C:
			return nil
		case <-tick:
			if err := s.Refresh(); err != nil {
				return err
			}
		}
	}
}
