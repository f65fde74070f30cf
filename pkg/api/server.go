// Package api provides the REST API server for tonebridge
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/james-see/tonebridge/pkg/converter"
	"github.com/james-see/tonebridge/pkg/device"
	"github.com/james-see/tonebridge/pkg/melody"
	"github.com/james-see/tonebridge/pkg/protocol"
	"github.com/james-see/tonebridge/pkg/transport"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

// @title Tonebridge API
// @version 1.0
// @description Status and control API for a tone streaming and melody playback device
// @host localhost:8080
// @BasePath /api/v1

// ChannelName is the transport channel HTTP commands arrive on
const ChannelName = "http"

// Controller is the device surface the API needs
type Controller interface {
	Snapshot() device.Snapshot
	Toggle()
}

// Server exposes a device over HTTP. Commands are encoded as protocol frames
// and pushed into an in-memory channel, so they reach the device loop the
// same way as bytes from any other link.
type Server struct {
	ctl   Controller
	inbox *transport.BufferChannel
	conv  *converter.Converter
	log   *zap.Logger
}

// NewServer returns a server over ctl; inbox must be registered with the device's Mux
func NewServer(ctl Controller, inbox *transport.BufferChannel, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		ctl:   ctl,
		inbox: inbox,
		conv:  converter.New(converter.WithLogger(log)),
		log:   log,
	}
}

// NewRouter builds the gin engine with all routes
func (s *Server) NewRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestLogger(), allowBrowsers())
	r.GET("/health", s.health)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", s.health)
		v1.GET("/status", s.getStatus)
		v1.POST("/play", s.postPlay)
		v1.POST("/stop", s.postStop)
		v1.POST("/toggle", s.postToggle)
		v1.POST("/stream", s.postStream)
		v1.POST("/upload", s.postUpload)
		v1.POST("/convert", s.postConvert)
		v1.GET("/formats", listFormats)
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}

// StartServer serves the API on addr until ctx is cancelled
func StartServer(ctx context.Context, addr string, s *Server) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.NewRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.log.Info("api: listening", zap.String("addr", addr))

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("api: request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

// allowBrowsers lets a web page on another origin drive the device
func allowBrowsers() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", http.MethodGet+", "+http.MethodPost)
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// health godoc
// @Summary Liveness
// @Description Reports that the API is up along with the device state and peer count
// @Tags health
// @Produce json
// @Success 200 {object} map[string]any
// @Router /health [get]
func (s *Server) health(c *gin.Context) {
	snap := s.ctl.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"state":  snap.State.String(),
		"peers":  snap.Peers,
	})
}

// getStatus godoc
// @Summary Device status
// @Description Returns the latest snapshot published by the device loop
// @Tags device
// @Produce json
// @Success 200 {object} device.Snapshot
// @Router /api/v1/status [get]
func (s *Server) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.ctl.Snapshot())
}

// postPlay godoc
// @Summary Resume playback
// @Tags device
// @Produce json
// @Success 202 {object} map[string]string
// @Router /api/v1/play [post]
func (s *Server) postPlay(c *gin.Context) {
	s.inbox.Push(protocol.Play())
	c.JSON(http.StatusAccepted, gin.H{"queued": protocol.TagPlay.String()})
}

// postStop godoc
// @Summary Pause playback and silence output
// @Tags device
// @Produce json
// @Success 202 {object} map[string]string
// @Router /api/v1/stop [post]
func (s *Server) postStop(c *gin.Context) {
	s.inbox.Push(protocol.Stop())
	c.JSON(http.StatusAccepted, gin.H{"queued": protocol.TagStop.String()})
}

// postToggle godoc
// @Summary Toggle between playing and paused, like the touch input
// @Tags device
// @Produce json
// @Success 202 {object} map[string]string
// @Router /api/v1/toggle [post]
func (s *Server) postToggle(c *gin.Context) {
	s.ctl.Toggle()
	c.JSON(http.StatusAccepted, gin.H{"queued": "toggle"})
}

// StreamRequest is the body of a stream request
type StreamRequest struct {
	Frequency uint16 `json:"frequency"`
	Duration  uint16 `json:"duration"`
}

// postStream godoc
// @Summary Stream a tone
// @Description Sounds frequency immediately; 0 silences. A nonzero duration in ms ends the tone on its own.
// @Tags device
// @Accept json
// @Produce json
// @Param request body StreamRequest true "Tone to sound"
// @Success 202 {object} StreamRequest
// @Failure 400 {object} map[string]string
// @Router /api/v1/stream [post]
func (s *Server) postStream(c *gin.Context) {
	var req StreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid stream request: " + err.Error()})
		return
	}
	s.inbox.Push(protocol.StreamNote(req.Frequency, req.Duration))
	c.JSON(http.StatusAccepted, req)
}

// postUpload godoc
// @Summary Upload a melody
// @Description Replaces the device melody with an uploaded melody (.bin) or MIDI (.mid) file
// @Tags device
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Melody or MIDI file"
// @Success 202 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Router /api/v1/upload [post]
func (s *Server) postUpload(c *gin.Context) {
	notes, name, ok := s.readNotes(c)
	if !ok {
		return
	}

	frames := make([]byte, 0, 2+len(notes)*(1+protocol.StreamNotePayloadSize))
	frames = append(frames, protocol.StartUpload()...)
	for _, n := range notes {
		frames = append(frames, protocol.StreamNote(n.Frequency, n.Duration)...)
	}
	frames = append(frames, protocol.EndUpload()...)

	// replies to earlier uploads are not read by anyone
	s.inbox.Drain()
	s.inbox.Push(frames)

	capacity := s.ctl.Snapshot().Capacity
	stored := len(notes)
	if capacity > 0 && stored > capacity {
		stored = capacity
	}
	s.log.Info("api: upload queued", zap.String("file", name), zap.Int("notes", len(notes)), zap.Int("stored", stored))
	c.JSON(http.StatusAccepted, gin.H{
		"file":        name,
		"notes":       len(notes),
		"stored":      stored,
		"truncated":   stored < len(notes),
		"duration_ms": melody.TotalDuration(notes[:stored]),
	})
}

// postConvert godoc
// @Summary Convert a melody file
// @Description Upload a melody, MIDI or PCM file and receive it in another format
// @Tags convert
// @Accept multipart/form-data
// @Produce application/octet-stream
// @Param file formData file true "File to convert"
// @Param to query string true "Target format (melody, midi, header, wav)"
// @Success 200 {file} binary
// @Failure 400 {object} map[string]string
// @Router /api/v1/convert [post]
func (s *Server) postConvert(c *gin.Context) {
	to := converter.Format(c.Query("to"))
	notes, name, ok := s.readNotes(c)
	if !ok {
		return
	}

	result, err := s.conv.Encode(notes, to)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, converter.ErrUnsupported) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	outputName := strings.TrimSuffix(name, filepath.Ext(name))
	if outputName == "" {
		outputName = "converted"
	}
	outputName += extension(to)

	var contentType string
	switch to {
	case converter.FormatMIDI:
		contentType = "audio/midi"
	case converter.FormatWAV:
		contentType = "audio/wav"
	case converter.FormatHeader:
		contentType = "text/x-c"
	default:
		contentType = "application/octet-stream"
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", outputName))
	c.Data(http.StatusOK, contentType, result)
}

func extension(f converter.Format) string {
	switch f {
	case converter.FormatMIDI:
		return ".mid"
	case converter.FormatHeader:
		return ".h"
	case converter.FormatWAV:
		return ".wav"
	default:
		return ".bin"
	}
}

// readNotes decodes the uploaded "file" form field, writing an error response on failure
func (s *Server) readNotes(c *gin.Context) ([]melody.Note, string, bool) {
	// Get uploaded file
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		return nil, "", false
	}
	defer func() { _ = file.Close() }()

	// Read file content
	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read file"})
		return nil, "", false
	}

	format := converter.DetectFormat(header.Filename)
	if format == converter.FormatUnknown {
		format = converter.DetectFormatFromContent(data)
	}
	notes, err := s.conv.Decode(data, format)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, "", false
	}
	if len(notes) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file holds no notes"})
		return nil, "", false
	}
	return notes, header.Filename, true
}

// listFormats godoc
// @Summary List supported formats
// @Description Returns a list of supported file formats
// @Tags info
// @Produce json
// @Success 200 {object} map[string][]string
// @Router /api/v1/formats [get]
func listFormats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"formats":     []string{"melody", "midi", "header", "wav", "pcm"},
		"conversions": converter.GetSupportedConversions(),
	})
}
