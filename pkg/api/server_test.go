package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/james-see/tonebridge/pkg/device"
	"github.com/james-see/tonebridge/pkg/melody"
	"github.com/james-see/tonebridge/pkg/protocol"
	"github.com/james-see/tonebridge/pkg/transport"
)

type fakeController struct {
	snap    device.Snapshot
	toggles int
}

func (f *fakeController) Snapshot() device.Snapshot { return f.snap }
func (f *fakeController) Toggle()                   { f.toggles++ }

func newTestServer(t *testing.T) (*gin.Engine, *fakeController, *transport.BufferChannel) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctl := &fakeController{snap: device.Snapshot{State: device.StatePlaying, Length: 3, Capacity: 2, Cursor: 1}}
	inbox := transport.NewBufferChannel(ChannelName, false)
	return NewServer(ctl, inbox, nil).NewRouter(), ctl, inbox
}

func decodeFrames(t *testing.T, b []byte) []protocol.Command {
	t.Helper()
	dec := protocol.NewDecoder()
	dec.Feed(b)
	var out []protocol.Command
	for {
		cmd, err := dec.Next()
		if errors.Is(err, protocol.ErrIncomplete) {
			return out
		}
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		out = append(out, cmd)
	}
}

func multipartBody(t *testing.T, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return &body, w.FormDataContentType()
}

func TestHealth(t *testing.T) {
	r, _, _ := newTestServer(t)
	for _, path := range []string{"/health", "/api/v1/health"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, w.Code)
		}
	}
}

func TestPreflight(t *testing.T) {
	r, _, _ := newTestServer(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/api/v1/play", nil))
	if w.Code != http.StatusNoContent {
		t.Errorf("OPTIONS /api/v1/play = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin = %q, want *", got)
	}
}

func TestStatus(t *testing.T) {
	r, _, _ := newTestServer(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("GET /api/v1/status = %d, want 200", w.Code)
	}
	var snap device.Snapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if snap.State != device.StatePlaying || snap.Length != 3 || snap.Cursor != 1 {
		t.Errorf("status = %+v, want playing, length 3, cursor 1", snap)
	}
}

func TestControlRoutesQueueFrames(t *testing.T) {
	tests := []struct {
		path string
		body string
		want protocol.Command
	}{
		{"/api/v1/play", "", protocol.Command{Tag: protocol.TagPlay}},
		{"/api/v1/stop", "", protocol.Command{Tag: protocol.TagStop}},
		{"/api/v1/stream", `{"frequency":440,"duration":250}`, protocol.Command{Tag: protocol.TagStreamNote, Frequency: 440, Duration: 250}},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			r, _, inbox := newTestServer(t)
			req := httptest.NewRequest(http.MethodPost, tt.path, strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != http.StatusAccepted {
				t.Fatalf("POST %s = %d, want 202: %s", tt.path, w.Code, w.Body.String())
			}
			got := decodeFrames(t, inbox.Poll())
			if len(got) != 1 || got[0] != tt.want {
				t.Errorf("queued %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestStreamRejectsBadBody(t *testing.T) {
	r, _, inbox := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/stream", strings.NewReader(`{"frequency":"high"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("POST /api/v1/stream = %d, want 400", w.Code)
	}
	if b := inbox.Poll(); len(b) != 0 {
		t.Errorf("queued %v after a bad request", b)
	}
}

func TestToggle(t *testing.T) {
	r, ctl, _ := newTestServer(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/toggle", nil))

	if w.Code != http.StatusAccepted || ctl.toggles != 1 {
		t.Errorf("POST /api/v1/toggle = %d with %d toggles, want 202 and 1", w.Code, ctl.toggles)
	}
}

func TestUpload(t *testing.T) {
	r, _, inbox := newTestServer(t)
	notes := []melody.Note{{Frequency: 440, Duration: 100}, {Frequency: 0, Duration: 50}, {Frequency: 523, Duration: 200}}
	body, contentType := multipartBody(t, "song.bin", melody.Marshal(notes))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/upload", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("POST /api/v1/upload = %d, want 202: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Notes     int  `json:"notes"`
		Stored    int  `json:"stored"`
		Truncated bool `json:"truncated"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Notes != 3 || resp.Stored != 2 || !resp.Truncated {
		t.Errorf("response = %+v, want 3 notes, 2 stored, truncated", resp)
	}

	frames := decodeFrames(t, inbox.Poll())
	if len(frames) != len(notes)+2 {
		t.Fatalf("queued %d frames, want %d", len(frames), len(notes)+2)
	}
	if frames[0].Tag != protocol.TagStartUpload || frames[len(frames)-1].Tag != protocol.TagEndUpload {
		t.Errorf("frames not bracketed by start/end upload: %+v", frames)
	}
	for i, n := range notes {
		if frames[i+1].Frequency != n.Frequency || frames[i+1].Duration != n.Duration {
			t.Errorf("record %d = %+v, want %v", i, frames[i+1], n)
		}
	}
}

func TestUploadWithoutFile(t *testing.T) {
	r, _, _ := newTestServer(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/upload", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("POST /api/v1/upload without file = %d, want 400", w.Code)
	}
}

func TestConvert(t *testing.T) {
	r, _, _ := newTestServer(t)
	notes := []melody.Note{{Frequency: 440, Duration: 100}}

	body, contentType := multipartBody(t, "song.bin", melody.Marshal(notes))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/convert?to=header", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("POST /api/v1/convert = %d, want 200: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "int melody[]") {
		t.Errorf("body = %q, want C arrays", w.Body.String())
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "song.h") {
		t.Errorf("Content-Disposition = %q, want song.h", cd)
	}

	body, contentType = multipartBody(t, "song.bin", melody.Marshal(notes))
	req = httptest.NewRequest(http.MethodPost, "/api/v1/convert?to=pcm", body)
	req.Header.Set("Content-Type", contentType)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("POST /api/v1/convert?to=pcm = %d, want 400", w.Code)
	}
}
