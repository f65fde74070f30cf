package device

import (
	"io"
	"strconv"

	"github.com/google/uuid"
	"github.com/james-see/tonebridge/pkg/melody"
	"github.com/james-see/tonebridge/pkg/protocol"
	"go.uber.org/zap"
)

// uploadSession exists only between StartUpload and EndUpload (or abort).
// Records are staged in Device.staging; the write cursor is staging.Len().
type uploadSession struct {
	id        string
	channel   string
	truncated bool
}

func (d *Device) startUpload(channel string) {
	if d.session != nil {
		d.log.Info("upload restarted; discarding active session",
			zap.String("session", d.session.id), zap.Int("staged", d.staging.Len()))
	}

	// implicit Stop
	d.pause("upload")
	d.silence()

	d.staging.Reset()
	d.session = &uploadSession{id: uuid.New().String(), channel: channel}
	d.state = StateReceiving

	d.log.Info("upload started", zap.String("channel", channel), zap.String("session", d.session.id))
	d.record(EventUploadStarted, channel, "")
}

func (d *Device) appendRecord(n melody.Note) {
	if d.staging.Append(n) {
		return
	}
	if !d.session.truncated {
		d.session.truncated = true
		d.log.Warn("melody capacity reached; dropping further notes",
			zap.String("session", d.session.id), zap.Int("capacity", d.staging.Cap()))
		d.record(EventUploadTruncated, d.session.channel, strconv.Itoa(d.staging.Cap()))
	}
}

func (d *Device) endUpload(channel string, reply io.Writer) {
	if d.session == nil {
		d.log.Debug("end upload without session", zap.String("channel", channel))
		d.writeReply(channel, reply, protocol.EndUploadReply(uint16(d.committed.Len())))
		return
	}

	// the swap is the commit point: playback never sees a half-written melody
	d.committed, d.staging = d.staging, d.committed
	d.staging.Reset()

	d.play.reset()
	d.state = d.restingState()

	d.log.Info("upload committed",
		zap.String("channel", channel),
		zap.String("session", d.session.id),
		zap.Int("length", d.committed.Len()),
		zap.Bool("truncated", d.session.truncated))
	d.record(EventUploadCommitted, channel, "")
	d.session = nil

	d.writeReply(channel, reply, protocol.EndUploadReply(uint16(d.committed.Len())))
}

func (d *Device) abortUpload(reason string) {
	if d.session == nil {
		return
	}
	d.log.Warn("upload aborted",
		zap.String("session", d.session.id),
		zap.String("reason", reason),
		zap.Int("staged", d.staging.Len()))
	d.record(EventUploadAborted, d.session.channel, reason)

	d.staging.Reset()
	d.session = nil
	d.state = d.restingState()
}

// restingState is where the device settles when nothing is playing or uploading
func (d *Device) restingState() State {
	if d.committed.Len() == 0 {
		return StateIdle
	}
	return StatePaused
}
