package heartbeat

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"thermal-monitor-go/internal/metrics"
	"thermal-monitor-go/internal/models"
	"thermal-monitor-go/internal/schedule"
)

// EngineStatusSource exposes the event engine's current snapshot.
type EngineStatusSource interface {
	Status() models.EngineStatus
}

// StreamHealthSource exposes the stream reader's failure state.
type StreamHealthSource interface {
	Health() models.StreamHealth
}

// LogSink forwards the heartbeat line to the remote log endpoint.
type LogSink interface {
	SendLog(severity models.Severity, message string)
}

// Config holds the reporter timings.
type Config struct {
	// Interval is the spacing between heartbeat messages.
	Interval time.Duration
	// Tick is how often the interval is checked.
	Tick time.Duration
	// StopTimeout bounds how long Stop waits for the loop to exit.
	StopTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Interval:    300 * time.Second,
		Tick:        30 * time.Second,
		StopTimeout: 5 * time.Second,
	}
}

// Reporter periodically reports operating status to the backend, on a clock
// entirely independent from the engine's.
type Reporter struct {
	cfg     Config
	engine  EngineStatusSource
	stream  StreamHealthSource
	logs    LogSink
	hours   schedule.Hours
	metrics *metrics.Metrics

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

func NewReporter(cfg Config, engine EngineStatusSource, stream StreamHealthSource, logs LogSink, hours schedule.Hours, m *metrics.Metrics) *Reporter {
	return &Reporter{
		cfg:     cfg,
		engine:  engine,
		stream:  stream,
		logs:    logs,
		hours:   hours,
		metrics: m,
	}
}

// Start launches the heartbeat loop. Idempotent.
func (r *Reporter) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		log.Warn().Msg("Heartbeat loop is already running")
		return
	}

	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	r.running = true
	go r.run()

	log.Info().Dur("interval", r.cfg.Interval).Msg("Heartbeat loop started")
}

// Stop signals the loop and waits, bounded, for it to exit. Idempotent.
func (r *Reporter) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return
	}

	close(r.stop)
	select {
	case <-r.done:
		log.Info().Msg("Heartbeat loop stopped")
	case <-time.After(r.cfg.StopTimeout):
		log.Error().Msg("Heartbeat loop did not stop within timeout")
	}
	r.running = false
}

func (r *Reporter) run() {
	defer close(r.done)

	lastBeat := time.Now()
	for {
		if time.Since(lastBeat) >= r.cfg.Interval {
			r.beat()
			lastBeat = time.Now()
		}

		select {
		case <-r.stop:
			return
		case <-time.After(r.cfg.Tick):
		}
	}
}

// beat sends one status line. Failures never stop the loop; the log sink is
// already best-effort.
func (r *Reporter) beat() {
	r.logs.SendLog(models.SeverityInfo, r.message(time.Now()))
	if r.metrics != nil {
		r.metrics.Heartbeats.Inc()
	}
	log.Debug().Msg("Heartbeat sent")
}

// message composes the status line for the given instant.
func (r *Reporter) message(now time.Time) string {
	if !r.hours.Contains(now) {
		return fmt.Sprintf(
			"System outside operating hours (%s). Window: %s. Monitoring on standby, connection alive.",
			now.Format("15:04"), r.hours)
	}

	status := r.engine.Status()
	health := r.stream.Health()
	return fmt.Sprintf(
		"System operating normally. State: %s, stream errors: %d, event active: %t",
		status.State, health.ConsecutiveErrors, status.EventActive)
}
