//go:build !unix

package daemon

import (
	"context"

	"go.uber.org/zap"
)

// notifyToggle is a no-op where SIGUSR1 does not exist
func notifyToggle(ctx context.Context, _ toggler, _ *zap.Logger) {
	<-ctx.Done()
}
