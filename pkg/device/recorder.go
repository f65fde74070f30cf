package device

import "time"

// EventKind classifies diagnostic events
type EventKind string

const (
	EventCommand         EventKind = "command"
	EventUnknownTag      EventKind = "unknown_tag"
	EventUploadStarted   EventKind = "upload_started"
	EventUploadCommitted EventKind = "upload_committed"
	EventUploadAborted   EventKind = "upload_aborted"
	EventUploadTruncated EventKind = "upload_truncated"
	EventWatchdog        EventKind = "watchdog"
	EventPeers           EventKind = "peers"
)

// Event is a best-effort diagnostic notification
type Event struct {
	Time    time.Time
	Kind    EventKind
	Channel string // provenance, empty for loop-internal events
	Session string
	Detail  string
	Length  int
	Peers   int
}

// Recorder receives diagnostic events. Implementations must not block the loop.
type Recorder interface {
	Record(e Event)
}

type nopRecorder struct{}

func (nopRecorder) Record(Event) {}

func (d *Device) record(kind EventKind, channel, detail string) {
	e := Event{
		Time:    d.now,
		Kind:    kind,
		Channel: channel,
		Detail:  detail,
		Length:  d.committed.Len(),
		Peers:   d.peers,
	}
	if d.session != nil {
		e.Session = d.session.id
	}
	d.rec.Record(e)
}
