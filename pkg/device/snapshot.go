package device

import "time"

// Snapshot is an immutable view of the device published after every step
type Snapshot struct {
	State     State     `json:"state"`
	Length    int       `json:"length"`
	Capacity  int       `json:"capacity"`
	Cursor    int       `json:"cursor"`
	Paused    bool      `json:"paused"`
	Receiving bool      `json:"receiving"`
	Received  int       `json:"received"` // notes staged by the active upload session
	Session   string    `json:"session,omitempty"`
	Frequency uint16    `json:"frequency"` // what the output is sounding now
	Streaming bool      `json:"streaming"`
	Peers     int       `json:"peers"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Snapshot returns the most recently published state. Safe for concurrent use.
func (d *Device) Snapshot() Snapshot {
	return *d.snap.Load()
}

func (d *Device) publish() {
	s := &Snapshot{
		State:     d.state,
		Length:    d.committed.Len(),
		Capacity:  d.committed.Cap(),
		Cursor:    d.play.index,
		Paused:    d.state != StatePlaying,
		Receiving: d.state == StateReceiving,
		Frequency: d.frequency,
		Streaming: d.stream.active,
		Peers:     d.peers,
		UpdatedAt: d.now,
	}
	if d.session != nil {
		s.Received = d.staging.Len()
		s.Session = d.session.id
	}
	d.snap.Store(s)
}
