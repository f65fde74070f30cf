package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/james-see/tonebridge/pkg/converter"
	"github.com/james-see/tonebridge/pkg/melody"
	"github.com/james-see/tonebridge/pkg/sender"
	"github.com/james-see/tonebridge/pkg/transport"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	link        = transport.Endpoint{Name: "host", Kind: transport.KindTCP, Address: "127.0.0.1:7070"}
	linkKind    string
	dialTimeout time.Duration
	replyWait   time.Duration

	watchUpload bool
	playAfter   bool
	streamFile  string
	keepAlive   time.Duration
)

var uploadCmd = &cobra.Command{
	Use:   "upload <melody.bin|song.mid>",
	Short: "Replace the device melody with a melody or MIDI file",
	Args:  cobra.ExactArgs(1),
	RunE:  runUpload,
}

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Resume melody playback",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(c *sender.Client) error { return c.Play() })
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Pause playback and silence the device",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(c *sender.Client) error { return c.Stop() })
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Query melody length, cursor and flags",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var streamCmd = &cobra.Command{
	Use:   "stream [freq:ms ...]",
	Short: "Sound tones in real time, e.g. 440:250 0:100 523:400",
	Long: `Streams tones to the device as they should sound. Only frequency changes
are sent; the device is silenced when streaming ends or is interrupted.
With --file the notes of a melody or MIDI file are streamed instead.`,
	RunE: runStream,
}

func addLinkFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&linkKind, "link", string(link.Kind), "Link kind (serial, tcp, pipe)")
	f.StringVarP(&link.Address, "addr", "a", link.Address, "Serial device, TCP address or pipe path")
	f.IntVar(&link.Baud, "baud", transport.DefaultBaud, "Serial baud rate")
	f.StringVar(&link.ReplyPath, "reply-path", "", "Pipe replies are read from this path")
	f.DurationVar(&dialTimeout, "dial-timeout", 5*time.Second, "TCP connect timeout")
	f.DurationVar(&replyWait, "reply-timeout", sender.DefaultReplyTimeout, "How long to wait for device replies")
}

func init() {
	for _, c := range []*cobra.Command{uploadCmd, playCmd, stopCmd, statusCmd, streamCmd} {
		addLinkFlags(c)
	}
	uploadCmd.Flags().BoolVarP(&watchUpload, "watch", "w", false, "Re-upload whenever the file changes")
	uploadCmd.Flags().BoolVar(&playAfter, "play", false, "Start playback after each upload")
	streamCmd.Flags().StringVarP(&streamFile, "file", "f", "", "Stream the notes of a melody or MIDI file")
	streamCmd.Flags().DurationVar(&keepAlive, "keepalive", sender.DefaultKeepAlive, "Refresh held tones this often; 0 disables")
}

func dial() (io.ReadWriteCloser, error) {
	link.Kind = transport.Kind(linkKind)
	conn, err := transport.Dial(link, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("connect to device: %w", err)
	}
	log.Debug("connected", zap.String("kind", linkKind), zap.String("address", link.Address))
	return conn, nil
}

func withClient(fn func(*sender.Client) error) error {
	conn, err := dial()
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(sender.NewClient(conn, sender.WithLogger(log), sender.WithReplyTimeout(replyWait)))
}

func runUpload(cmd *cobra.Command, args []string) error {
	path := args[0]
	conv := converter.New(converter.WithLogger(log))

	return withClient(func(c *sender.Client) error {
		once := func() error {
			notes, err := conv.LoadFile(path)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), replyWait+time.Second)
			defer cancel()
			stored, err := c.Upload(ctx, notes)
			if err != nil {
				return err
			}
			fmt.Printf("Uploaded %s: %d of %d notes stored (%d ms)\n", path, stored, len(notes), melody.TotalDuration(notes[:stored]))
			if playAfter {
				return c.Play()
			}
			return nil
		}

		if err := once(); err != nil {
			return err
		}
		if !watchUpload {
			return nil
		}

		ctx, stop := signalContext()
		defer stop()
		fmt.Printf("Watching %s for changes (Ctrl-C to stop)\n", path)
		return sender.WatchFile(ctx, path, sender.DefaultDebounce, log, once)
	})
}

func runStatus(cmd *cobra.Command, args []string) error {
	return withClient(func(c *sender.Client) error {
		st, err := c.Status(context.Background())
		if err != nil {
			return err
		}
		fmt.Printf("length:    %d\n", st.Length)
		fmt.Printf("cursor:    %d\n", st.CursorIndex)
		fmt.Printf("paused:    %t\n", st.Paused)
		fmt.Printf("receiving: %t\n", st.Receiving)
		return nil
	})
}

func runStream(cmd *cobra.Command, args []string) error {
	var notes []melody.Note
	switch {
	case streamFile != "" && len(args) > 0:
		return fmt.Errorf("give either --file or tones, not both")
	case streamFile != "":
		var err error
		notes, err = converter.New(converter.WithLogger(log)).LoadFile(streamFile)
		if err != nil {
			return err
		}
	default:
		var err error
		notes, err = parseTones(args)
		if err != nil {
			return err
		}
	}
	if len(notes) == 0 {
		return fmt.Errorf("nothing to stream")
	}

	return withClient(func(c *sender.Client) error {
		ctx, stop := signalContext()
		defer stop()
		err := c.Streamer().PlayNotes(ctx, notes, keepAlive)
		if ctx.Err() != nil {
			return nil
		}
		return err
	})
}

// parseTones parses "freq:ms" pairs
func parseTones(args []string) ([]melody.Note, error) {
	notes := make([]melody.Note, 0, len(args))
	for _, a := range args {
		f, d, ok := strings.Cut(a, ":")
		if !ok {
			return nil, fmt.Errorf("tone %q: want freq:ms", a)
		}
		freq, err := strconv.ParseUint(f, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("tone %q: frequency: %w", a, err)
		}
		ms, err := strconv.ParseUint(d, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("tone %q: duration: %w", a, err)
		}
		notes = append(notes, melody.Note{Frequency: uint16(freq), Duration: uint16(ms)})
	}
	return notes, nil
}
