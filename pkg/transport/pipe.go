package transport

import (
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
)

// pipeFile joins an input path and an optional reply path into one stream
type pipeFile struct {
	in  *os.File
	out *os.File
}

func (p *pipeFile) Read(b []byte) (int, error) {
	if p.in == nil {
		return 0, io.EOF
	}
	return p.in.Read(b)
}

func (p *pipeFile) Write(b []byte) (int, error) {
	if p.out == nil {
		return len(b), nil
	}
	return p.out.Write(b)
}

func (p *pipeFile) Close() error {
	var err error
	if p.in != nil {
		err = p.in.Close()
	}
	if p.out != nil {
		err = errors.Join(err, p.out.Close())
	}
	return err
}

// OpenPipe opens a named pipe (or plain file) as a channel. Both ends are
// opened read-write so that opening a FIFO never blocks waiting for a peer.
// Replies are discarded when replyPath is empty.
func OpenPipe(name, path, replyPath string, log *zap.Logger) (*StreamChannel, error) {
	rwc, err := openPipeFile(path, replyPath)
	if err != nil {
		return nil, err
	}
	return NewStreamChannel(name, rwc, log), nil
}

func openPipeFile(path, replyPath string) (io.ReadWriteCloser, error) {
	in, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open pipe %s: %w", path, err)
	}
	p := &pipeFile{in: in}
	if replyPath != "" {
		out, err := os.OpenFile(replyPath, os.O_RDWR|os.O_CREATE, 0o644)
		if err != nil {
			_ = in.Close()
			return nil, fmt.Errorf("open reply pipe %s: %w", replyPath, err)
		}
		p.out = out
	}
	return p, nil
}

// dialPipe opens the host side: commands go to path, replies come from replyPath
func dialPipe(path, replyPath string) (io.ReadWriteCloser, error) {
	out, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open pipe %s: %w", path, err)
	}
	p := &pipeFile{out: out}
	if replyPath != "" {
		in, err := os.OpenFile(replyPath, os.O_RDWR|os.O_CREATE, 0o644)
		if err != nil {
			_ = out.Close()
			return nil, fmt.Errorf("open reply pipe %s: %w", replyPath, err)
		}
		p.in = in
	}
	return p, nil
}
