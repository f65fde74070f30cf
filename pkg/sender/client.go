package sender

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/james-see/tonebridge/pkg/melody"
	"github.com/james-see/tonebridge/pkg/protocol"
	"go.uber.org/zap"
)

// ErrShortReply means the device closed the link before a full reply arrived
var ErrShortReply = errors.New("sender: short reply")

// DefaultReplyTimeout bounds how long a request waits for its reply
const DefaultReplyTimeout = 3 * time.Second

type deadliner interface {
	SetReadDeadline(t time.Time) error
}

// Client issues requests to a device over one link
type Client struct {
	rw      io.ReadWriter
	log     *zap.Logger
	timeout time.Duration
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithLogger sets the client logger
func WithLogger(l *zap.Logger) ClientOption {
	return func(c *Client) { c.log = l }
}

// WithReplyTimeout sets how long a request waits for its reply
func WithReplyTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.timeout = d }
}

// NewClient returns a client talking over rw
func NewClient(rw io.ReadWriter, opts ...ClientOption) *Client {
	c := &Client{rw: rw, log: zap.NewNop(), timeout: DefaultReplyTimeout}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Streamer returns a real-time streamer sharing the client's link
func (c *Client) Streamer() *Streamer {
	return NewStreamer(c.rw)
}

// Upload replaces the device melody with notes and returns the length the
// device committed, which is smaller than len(notes) when the device truncated.
func (c *Client) Upload(ctx context.Context, notes []melody.Note) (int, error) {
	frames := make([]byte, 0, 2+len(notes)*(1+protocol.StreamNotePayloadSize))
	frames = append(frames, protocol.StartUpload()...)
	for _, n := range notes {
		frames = append(frames, protocol.StreamNote(n.Frequency, n.Duration)...)
	}
	frames = append(frames, protocol.EndUpload()...)

	if _, err := c.rw.Write(frames); err != nil {
		return 0, fmt.Errorf("upload: %w", err)
	}
	reply, err := c.readExact(ctx, protocol.EndUploadReplySize)
	if err != nil {
		return 0, fmt.Errorf("upload: %w", err)
	}
	length, err := protocol.ParseEndUploadReply(reply)
	if err != nil {
		return 0, err
	}
	if int(length) < len(notes) {
		c.log.Warn("device truncated melody", zap.Int("sent", len(notes)), zap.Uint16("stored", length))
	}
	c.log.Info("melody uploaded", zap.Uint16("length", length))
	return int(length), nil
}

// Play resumes playback
func (c *Client) Play() error {
	_, err := c.rw.Write(protocol.Play())
	return err
}

// Stop pauses playback and silences the device
func (c *Client) Stop() error {
	_, err := c.rw.Write(protocol.Stop())
	return err
}

// Status queries the device state
func (c *Client) Status(ctx context.Context) (protocol.Status, error) {
	if _, err := c.rw.Write(protocol.StatusRequest()); err != nil {
		return protocol.Status{}, fmt.Errorf("status: %w", err)
	}
	reply, err := c.readExact(ctx, protocol.StatusSize)
	if err != nil {
		return protocol.Status{}, fmt.Errorf("status: %w", err)
	}
	return protocol.ParseStatus(reply)
}

// readExact reads n reply bytes, giving up when ctx is done or the reply
// timeout passes. Links that support read deadlines get one; serial ports
// return empty reads on their own timeout and are re-checked here.
func (c *Client) readExact(ctx context.Context, n int) ([]byte, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	if dl, ok := c.rw.(deadliner); ok {
		if deadline, ok := ctx.Deadline(); ok {
			_ = dl.SetReadDeadline(deadline)
			defer dl.SetReadDeadline(time.Time{})
		}
	}

	buf := make([]byte, n)
	got := 0
	for got < n {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m, err := c.rw.Read(buf[got:])
		got += m
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("%w: got %d of %d bytes", ErrShortReply, got, n)
			}
			if got < n && ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, err
		}
	}
	return buf, nil
}
