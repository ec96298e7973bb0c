package stream

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"

	"thermal-monitor-go/internal/models"
)

// releaseCooldown is the minimum spacing between releasing one capture
// handle and opening the next. RTSP servers tend to reject back-to-back
// session churn.
const releaseCooldown = 2 * time.Second

// FrameSource wraps a video stream handle. Open must release any previous
// handle, connect and verify the stream by reading one probe frame.
type FrameSource interface {
	Open() error
	Close()
	Healthy() bool
	Read() (*models.Frame, error)
	Dimensions() (width, height int)
}

// CaptureSource is the gocv implementation of FrameSource over an RTSP URL
// (or local device index).
type CaptureSource struct {
	url string

	mu        sync.Mutex
	cap       *gocv.VideoCapture
	width     int
	height    int
	lastClose time.Time
}

func NewCaptureSource(url string) *CaptureSource {
	return &CaptureSource{url: url}
}

// Open connects to the stream and probes it. Safe to call on an already-open
// source; the prior handle is released first.
func (s *CaptureSource) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.releaseLocked()

	// Keep a gap between session teardown and the next connect attempt.
	if since := time.Since(s.lastClose); since < releaseCooldown {
		time.Sleep(releaseCooldown - since)
	}

	log.Info().Str("url", s.url).Msg("Connecting to video stream")

	cap, err := gocv.OpenVideoCapture(s.url)
	if err != nil {
		return fmt.Errorf("failed to open video stream %s: %w", s.url, err)
	}

	// Minimal buffer so reads always land near the live edge.
	cap.Set(gocv.VideoCaptureBufferSize, 1)

	if !cap.IsOpened() {
		cap.Close()
		return fmt.Errorf("video capture is not opened for %s", s.url)
	}

	// Probe one frame before declaring the stream usable.
	probe := gocv.NewMat()
	defer probe.Close()
	if ok := cap.Read(&probe); !ok || probe.Empty() {
		cap.Close()
		s.lastClose = time.Now()
		return fmt.Errorf("could not read probe frame from %s", s.url)
	}

	s.cap = cap
	s.width = probe.Cols()
	s.height = probe.Rows()

	log.Info().
		Int("width", s.width).
		Int("height", s.height).
		Msg("Video stream initialized")

	return nil
}

// Close releases the capture handle. Idempotent.
func (s *CaptureSource) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseLocked()
}

func (s *CaptureSource) releaseLocked() {
	if s.cap == nil {
		return
	}
	if err := s.cap.Close(); err != nil {
		log.Warn().Err(err).Msg("Error releasing capture handle")
	}
	s.cap = nil
	s.lastClose = time.Now()
}

// Healthy reports whether the handle is open and advertising a valid
// resolution.
func (s *CaptureSource) Healthy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cap == nil || !s.cap.IsOpened() {
		return false
	}

	width := s.cap.Get(gocv.VideoCaptureFrameWidth)
	height := s.cap.Get(gocv.VideoCaptureFrameHeight)
	return width > 0 && height > 0
}

// Read pulls one frame from the stream. The returned frame owns its pixel
// buffer (raw BGR24).
func (s *CaptureSource) Read() (*models.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cap == nil {
		return nil, fmt.Errorf("video stream is not open")
	}

	img := gocv.NewMat()
	defer img.Close()

	if ok := s.cap.Read(&img); !ok {
		return nil, fmt.Errorf("failed to read frame")
	}
	if img.Empty() {
		return nil, fmt.Errorf("read empty frame")
	}

	return &models.Frame{
		Data:      img.ToBytes(),
		Width:     img.Cols(),
		Height:    img.Rows(),
		Timestamp: time.Now(),
	}, nil
}

// Dimensions returns the resolution observed at the last successful Open.
func (s *CaptureSource) Dimensions() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height
}
