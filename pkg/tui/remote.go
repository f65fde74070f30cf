package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/james-see/tonebridge/pkg/device"
)

// Remote is the device surface the monitor drives
type Remote interface {
	Status(ctx context.Context) (device.Snapshot, error)
	Play(ctx context.Context) error
	Stop(ctx context.Context) error
	Toggle(ctx context.Context) error
}

// HTTPRemote talks to a device through its HTTP API
type HTTPRemote struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPRemote returns a remote for the API at baseURL, e.g. http://localhost:8080
func NewHTTPRemote(baseURL string) *HTTPRemote {
	return &HTTPRemote{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		Client:  &http.Client{Timeout: 2 * time.Second},
	}
}

// Status fetches the latest device snapshot
func (r *HTTPRemote) Status(ctx context.Context) (device.Snapshot, error) {
	var snap device.Snapshot
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.BaseURL+"/api/v1/status", nil)
	if err != nil {
		return snap, err
	}
	resp, err := r.Client.Do(req)
	if err != nil {
		return snap, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return snap, fmt.Errorf("status: %s", resp.Status)
	}
	err = json.NewDecoder(resp.Body).Decode(&snap)
	return snap, err
}

// Play resumes playback
func (r *HTTPRemote) Play(ctx context.Context) error { return r.post(ctx, "/api/v1/play") }

// Stop pauses playback
func (r *HTTPRemote) Stop(ctx context.Context) error { return r.post(ctx, "/api/v1/stop") }

// Toggle flips between playing and paused
func (r *HTTPRemote) Toggle(ctx context.Context) error { return r.post(ctx, "/api/v1/toggle") }

func (r *HTTPRemote) post(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.BaseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := r.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s: %s", path, resp.Status)
	}
	return nil
}
