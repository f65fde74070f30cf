//go:build unix

package daemon

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
)

// notifyToggle flips playback on every SIGUSR1 until ctx is done
func notifyToggle(ctx context.Context, t toggler, log *zap.Logger) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGUSR1)
	defer signal.Stop(sig)

	for {
		select {
		case <-ctx.Done():
			return
		case <-sig:
			log.Debug("toggle signal received")
			t.Toggle()
		}
	}
}
