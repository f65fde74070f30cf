package device

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
)

// EdgeDetector turns a sampled level input (e.g. a touch pad) into discrete
// toggle events: one per debounced rising edge.
type EdgeDetector struct {
	Debounce time.Duration

	level    bool
	lastEdge time.Time
}

// Sample feeds the current level and reports whether it produced a toggle
func (e *EdgeDetector) Sample(level bool, now time.Time) bool {
	rising := level && !e.level
	e.level = level
	if !rising {
		return false
	}
	if !e.lastEdge.IsZero() && now.Sub(e.lastEdge) < e.Debounce {
		return false
	}
	e.lastEdge = now
	return true
}

// WatchLevel samples read every interval and issues a Toggle for each rising
// edge until ctx is done. Read errors are logged and sampling continues.
func (d *Device) WatchLevel(ctx context.Context, interval time.Duration, debounce time.Duration, read func() (bool, error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	edge := EdgeDetector{Debounce: debounce}
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			level, err := read()
			if err != nil {
				d.log.Debug("toggle input read failed", zap.Error(err))
				continue
			}
			if edge.Sample(level, now) {
				d.Toggle()
			}
		}
	}
}

// FileLevel reads a level from a file holding "0" or "1", such as a sysfs GPIO value
func FileLevel(path string) func() (bool, error) {
	return func() (bool, error) {
		b, err := os.ReadFile(path)
		if err != nil {
			return false, err
		}
		switch string(bytes.TrimSpace(b)) {
		case "1":
			return true, nil
		case "0":
			return false, nil
		default:
			return false, fmt.Errorf("unexpected level %q in %s", bytes.TrimSpace(b), path)
		}
	}
}
