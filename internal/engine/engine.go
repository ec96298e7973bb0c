package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"thermal-monitor-go/internal/metrics"
	"thermal-monitor-go/internal/models"
)

// FrameProvider hands out the most recent captured frame, or nil when none
// is available yet. Must never block.
type FrameProvider interface {
	LatestFrame() *models.Frame
}

// Detector runs inference on one frame. An empty slice means nothing was
// found; errors are reserved for inference failures.
type Detector interface {
	Detect(frame *models.Frame) ([]models.Detection, error)
}

// EventCreator opens a new event at the backend and returns its id.
type EventCreator interface {
	CreateEvent(ctx context.Context) (int64, error)
}

// LogSink forwards a severity-tagged message to the remote log endpoint,
// best effort.
type LogSink interface {
	SendLog(severity models.Severity, message string)
}

// Dispatcher accepts evidence tasks for asynchronous delivery. Dispatch must
// not block and its outcome is never reported back.
type Dispatcher interface {
	Dispatch(task *models.EvidenceTask)
}

// Publisher sends event lifecycle notifications. Optional; nil disables it.
type Publisher interface {
	Publish(subject string, v interface{}) error
}

// Config holds the engine's cadence and debounce settings.
type Config struct {
	// IdleInterval is the sampling interval with no active event.
	IdleInterval time.Duration
	// ActiveInterval is the sampling interval while an event is active.
	ActiveInterval time.Duration
	Thresholds     Thresholds

	// Tick is the loop granularity; interval changes take effect on the
	// next tick without restarting a timer.
	Tick time.Duration
	// OffHoursSleep is the long sleep used outside operating hours.
	OffHoursSleep time.Duration
	// OffHoursLogEvery throttles the out-of-hours log line.
	OffHoursLogEvery time.Duration
	// ErrorBackoff is the wait after a failed sample.
	ErrorBackoff time.Duration
	// NoFrameWait is the wait when the reader has no frame yet.
	NoFrameWait time.Duration

	EventsSubject string
}

func DefaultConfig() Config {
	return Config{
		IdleInterval:     5 * time.Second,
		ActiveInterval:   2 * time.Second,
		Thresholds:       Thresholds{CreateEvent: 3, CloseEvent: 5},
		Tick:             100 * time.Millisecond,
		OffHoursSleep:    30 * time.Second,
		OffHoursLogEvery: 300 * time.Second,
		ErrorBackoff:     5 * time.Second,
		NoFrameWait:      time.Second,
		EventsSubject:    "thermal.events",
	}
}

// Engine converts per-sample detections into event boundaries and feeds the
// evidence pipeline. All event state is owned by the control loop goroutine;
// the mutex only covers the Status snapshot.
type Engine struct {
	cfg       Config
	frames    FrameProvider
	detector  Detector
	events    EventCreator
	logs      LogSink
	evidence  Dispatcher
	publisher Publisher
	inHours   func() bool
	metrics   *metrics.Metrics

	mu         sync.Mutex
	state      models.EngineState
	counters   Counters
	eventID    int64
	lastSample time.Time
}

func New(cfg Config, frames FrameProvider, detector Detector, events EventCreator, logs LogSink, evidence Dispatcher, publisher Publisher, inHours func() bool, m *metrics.Metrics) *Engine {
	return &Engine{
		cfg:       cfg,
		frames:    frames,
		detector:  detector,
		events:    events,
		logs:      logs,
		evidence:  evidence,
		publisher: publisher,
		inHours:   inHours,
		metrics:   m,
		state:     models.StateNoDetection,
	}
}

// Status returns a read-only snapshot for the heartbeat and status API.
func (e *Engine) Status() models.EngineStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return models.EngineStatus{
		State:            e.state,
		EventActive:      e.eventID != 0,
		EventID:          e.eventID,
		WithDetection:    e.counters.WithDetection,
		WithoutDetection: e.counters.WithoutDetection,
		LastSample:       e.lastSample,
	}
}

// Run executes the control loop until ctx is cancelled. A single bad sample
// never terminates the loop.
func (e *Engine) Run(ctx context.Context) {
	log.Info().Msg("Starting monitoring loop")
	e.logs.SendLog(models.SeverityInfo, "Thermal monitoring system started successfully")

	e.mu.Lock()
	e.lastSample = time.Now()
	e.mu.Unlock()

	var lastOffHoursLog time.Time

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Monitoring loop stopped")
			return
		default:
		}

		if !e.inHours() {
			if time.Since(lastOffHoursLog) >= e.cfg.OffHoursLogEvery {
				log.Info().
					Str("time", time.Now().Format("15:04")).
					Msg("Outside operating hours, monitoring on standby")
				lastOffHoursLog = time.Now()
			}
			sleep(ctx, e.cfg.OffHoursSleep)
			continue
		}

		if time.Since(e.lastSampleTime()) >= e.currentInterval() {
			if err := e.sample(ctx); err != nil {
				log.Error().Err(err).Msg("Sample failed")
				e.logs.SendLog(models.SeverityError, fmt.Sprintf("Error in monitoring loop: %v", err))
				if e.metrics != nil {
					e.metrics.SampleErrors.Inc()
				}
				sleep(ctx, e.cfg.ErrorBackoff)
			}
		}

		sleep(ctx, e.cfg.Tick)
	}
}

// currentInterval adapts the sampling cadence to the debounce state.
func (e *Engine) currentInterval() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == models.StateEventActive {
		return e.cfg.ActiveInterval
	}
	return e.cfg.IdleInterval
}

func (e *Engine) lastSampleTime() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSample
}

// sample pulls the latest frame, runs the detector and advances the debounce
// state machine.
func (e *Engine) sample(ctx context.Context) error {
	frame := e.frames.LatestFrame()
	if frame == nil {
		log.Warn().Msg("No frame available yet, waiting")
		sleep(ctx, e.cfg.NoFrameWait)
		return nil
	}

	detections, err := e.detector.Detect(frame)
	if err != nil {
		return fmt.Errorf("detector failed: %w", err)
	}

	e.mu.Lock()
	e.lastSample = time.Now()
	e.mu.Unlock()
	if e.metrics != nil {
		e.metrics.Samples.Inc()
	}

	status := e.Status()
	log.Info().
		Str("state", string(status.State)).
		Int("detections", len(detections)).
		Int("with_detection", status.WithDetection).
		Int("without_detection", status.WithoutDetection).
		Msg("Sample processed")

	e.process(ctx, frame, detections)
	return nil
}

// process runs one debounce step and performs the requested side effects.
func (e *Engine) process(ctx context.Context, frame *models.Frame, detections []models.Detection) {
	detected := len(detections) > 0

	e.mu.Lock()
	state, counters, action := Advance(e.state, e.counters, detected, e.cfg.Thresholds)
	eventID := e.eventID
	e.mu.Unlock()

	switch action {
	case ActionCloseEvent:
		log.Info().Int64("event_id", eventID).Msg("Closing event")
		e.logs.SendLog(models.SeverityInfo,
			fmt.Sprintf("Event closed: %d - no detections for a prolonged period", eventID))
		e.notify(models.NotificationEventClosed, eventID)
		if e.metrics != nil {
			e.metrics.EventsClosed.Inc()
		}
		eventID = 0

	case ActionCreateEvent:
		id, err := e.events.CreateEvent(ctx)
		if err != nil {
			// Not retried within this detection streak; the counter must
			// fully reset before another attempt.
			log.Error().Err(err).Msg("Failed to create event")
			e.logs.SendLog(models.SeverityError, fmt.Sprintf("Failed to create event: %v", err))
		} else {
			eventID = id
			state = models.StateEventActive
			log.Info().Int64("event_id", id).Msg("Event active")
			e.notify(models.NotificationEventCreated, id)
			if e.metrics != nil {
				e.metrics.EventsCreated.Inc()
			}
		}
	}

	e.mu.Lock()
	e.state = state
	e.counters = counters
	e.eventID = eventID
	e.mu.Unlock()

	if state == models.StateEventActive && detected {
		e.evidence.Dispatch(&models.EvidenceTask{
			Frame:      frame,
			Detections: detections,
			EventID:    eventID,
		})
	}
}

func (e *Engine) notify(kind string, eventID int64) {
	if e.publisher == nil {
		return
	}
	n := models.EventNotification{
		Type:      kind,
		EventID:   eventID,
		Timestamp: time.Now(),
	}
	if err := e.publisher.Publish(e.cfg.EventsSubject, n); err != nil {
		log.Warn().Err(err).Str("type", kind).Msg("Failed to publish event notification")
	}
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
