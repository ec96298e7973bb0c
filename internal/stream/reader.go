package stream

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"thermal-monitor-go/internal/metrics"
	"thermal-monitor-go/internal/models"
)

// Notifier receives severity-tagged messages about stream trouble and
// recovery. The reader never returns errors to its owner; this is the only
// escalation path.
type Notifier interface {
	Notify(severity models.Severity, message string)
}

// NotifierFunc adapts a closure to the Notifier interface.
type NotifierFunc func(severity models.Severity, message string)

func (f NotifierFunc) Notify(severity models.Severity, message string) {
	f(severity, message)
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) Notify(models.Severity, string) {}

// ReaderConfig holds the loop timings. Defaults match production behavior;
// tests shrink them.
type ReaderConfig struct {
	MaxConsecutiveErrors int
	// ReconnectSpacing is the minimum gap between reconnection attempts.
	ReconnectSpacing time.Duration
	// OffHoursPoll is how often the operating-hours gate is re-checked.
	OffHoursPoll time.Duration
	// ReconnectRetryDelay is the wait after a failed reconnection.
	ReconnectRetryDelay time.Duration
	// ReadBackoff is the wait after a failed read below the error threshold.
	ReadBackoff time.Duration
	// Tick caps the loop's CPU usage regardless of branch taken.
	Tick time.Duration
	// StopTimeout bounds how long Stop waits for the loop to exit.
	StopTimeout time.Duration
}

func DefaultReaderConfig() ReaderConfig {
	return ReaderConfig{
		MaxConsecutiveErrors: 5,
		ReconnectSpacing:     10 * time.Second,
		OffHoursPoll:         10 * time.Second,
		ReconnectRetryDelay:  5 * time.Second,
		ReadBackoff:          500 * time.Millisecond,
		Tick:                 10 * time.Millisecond,
		StopTimeout:          5 * time.Second,
	}
}

// Reader keeps a single latest frame available, reconnecting around stream
// failures in a background goroutine.
type Reader struct {
	cfg      ReaderConfig
	source   FrameSource
	inHours  func() bool
	notifier Notifier
	metrics  *metrics.Metrics

	frameMu sync.Mutex
	latest  *models.Frame

	stateMu           sync.Mutex
	consecutiveErrors int
	lastReconnect     time.Time
	lastAttempt       time.Time

	runMu   sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

func NewReader(cfg ReaderConfig, source FrameSource, inHours func() bool, notifier Notifier, m *metrics.Metrics) *Reader {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Reader{
		cfg:      cfg,
		source:   source,
		inHours:  inHours,
		notifier: notifier,
		metrics:  m,
	}
}

// Start launches the background read loop. Idempotent.
func (r *Reader) Start() {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	if r.running {
		log.Warn().Msg("Stream read loop is already running")
		return
	}

	r.resetErrors()
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	r.running = true
	go r.run()

	log.Info().Msg("Stream read loop started")
}

// Stop signals the loop and waits, bounded by StopTimeout, for it to exit.
// After Stop returns no further writes happen to the frame slot. Idempotent.
func (r *Reader) Stop() {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	if !r.running {
		return
	}

	close(r.stop)
	select {
	case <-r.done:
		log.Info().Msg("Stream read loop stopped")
	case <-time.After(r.cfg.StopTimeout):
		log.Error().Msg("Stream read loop did not stop within timeout")
	}
	r.running = false
}

// LatestFrame returns a defensive copy of the most recent frame, or nil when
// no frame has been captured yet. Never blocks waiting for a fresh frame.
func (r *Reader) LatestFrame() *models.Frame {
	r.frameMu.Lock()
	defer r.frameMu.Unlock()
	return r.latest.Clone()
}

// Health returns a snapshot of the reader's failure state.
func (r *Reader) Health() models.StreamHealth {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	width, height := r.source.Dimensions()
	return models.StreamHealth{
		ConsecutiveErrors: r.consecutiveErrors,
		LastReconnect:     r.lastReconnect,
		Width:             width,
		Height:            height,
	}
}

func (r *Reader) run() {
	defer close(r.done)

	for {
		select {
		case <-r.stop:
			return
		default:
		}

		r.iterate()

		if !r.sleep(r.cfg.Tick) {
			return
		}
	}
}

// iterate runs one pass of the state machine. Panics are contained so a bad
// iteration can never kill the loop.
func (r *Reader) iterate() {
	defer func() {
		if rec := recover(); rec != nil {
			n := r.incrementErrors()
			msg := fmt.Sprintf("Panic in stream read loop (%d): %v", n, rec)
			log.Error().Interface("panic", rec).Msg("Stream read loop panic recovered")
			r.notifier.Notify(models.SeverityError, msg)
			r.sleep(time.Second)
		}
	}()

	if !r.inHours() {
		r.sleep(r.cfg.OffHoursPoll)
		return
	}

	if !r.source.Healthy() {
		log.Warn().Msg("Stream unhealthy, attempting reconnect")
		if r.reconnect() {
			log.Info().Msg("Stream reconnected")
		} else {
			log.Error().Msg("Reconnection failed, waiting before retry")
			r.incrementErrors()
			r.sleep(r.cfg.ReconnectRetryDelay)
		}
		return
	}

	frame, err := r.source.Read()
	if err == nil {
		r.storeFrame(frame)
		r.resetErrors()
		if r.metrics != nil {
			r.metrics.FramesRead.Inc()
		}
		return
	}

	n := r.incrementErrors()
	if r.metrics != nil {
		r.metrics.ReadErrors.Inc()
	}
	log.Warn().
		Err(err).
		Int("consecutive_errors", n).
		Int("max_consecutive_errors", r.cfg.MaxConsecutiveErrors).
		Msg("Failed to read frame")

	if n >= r.cfg.MaxConsecutiveErrors {
		msg := fmt.Sprintf("Too many consecutive stream read errors (%d), forcing reconnection", n)
		log.Error().Msg(msg)
		r.notifier.Notify(models.SeverityError, msg)

		if r.reconnect() {
			r.notifier.Notify(models.SeverityInfo, "Stream reconnected successfully after repeated read errors")
		} else {
			r.sleep(r.cfg.ReconnectRetryDelay)
		}
	} else {
		r.sleep(r.cfg.ReadBackoff)
	}
}

// reconnect re-opens the source, honoring the minimum spacing between
// attempts. Returns true when the stream probes healthy again.
func (r *Reader) reconnect() bool {
	if r.metrics != nil {
		r.metrics.Reconnects.Inc()
	}

	r.stateMu.Lock()
	errs := r.consecutiveErrors
	wait := r.cfg.ReconnectSpacing - time.Since(r.lastAttempt)
	r.stateMu.Unlock()

	r.notifier.Notify(models.SeverityWarning,
		fmt.Sprintf("Attempting stream reconnection, consecutive errors: %d", errs))

	if wait > 0 {
		log.Info().Dur("wait", wait).Msg("Spacing out reconnection attempt")
		if !r.sleep(wait) {
			return false
		}
	}

	r.stateMu.Lock()
	r.lastAttempt = time.Now()
	r.stateMu.Unlock()

	if err := r.source.Open(); err != nil {
		log.Error().Err(err).Msg("Stream reconnection failed")
		r.notifier.Notify(models.SeverityError, fmt.Sprintf("Stream reconnection failed: %v", err))
		return false
	}

	width, height := r.source.Dimensions()
	r.notifier.Notify(models.SeverityInfo,
		fmt.Sprintf("Stream connected successfully, resolution: %dx%d", width, height))

	r.stateMu.Lock()
	r.lastReconnect = time.Now()
	r.consecutiveErrors = 0
	r.stateMu.Unlock()
	if r.metrics != nil {
		r.metrics.ConsecutiveErrs.Set(0)
	}
	return true
}

func (r *Reader) storeFrame(frame *models.Frame) {
	r.frameMu.Lock()
	r.latest = frame
	r.frameMu.Unlock()
}

func (r *Reader) incrementErrors() int {
	r.stateMu.Lock()
	r.consecutiveErrors++
	n := r.consecutiveErrors
	r.stateMu.Unlock()
	if r.metrics != nil {
		r.metrics.ConsecutiveErrs.Set(float64(n))
	}
	return n
}

func (r *Reader) resetErrors() {
	r.stateMu.Lock()
	r.consecutiveErrors = 0
	r.stateMu.Unlock()
	if r.metrics != nil {
		r.metrics.ConsecutiveErrs.Set(0)
	}
}

// sleep waits for d unless the loop is stopped first. Returns false when
// stopping.
func (r *Reader) sleep(d time.Duration) bool {
	select {
	case <-r.stop:
		return false
	case <-time.After(d):
		return true
	}
}
