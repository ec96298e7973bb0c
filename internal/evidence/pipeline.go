package evidence

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"thermal-monitor-go/internal/metrics"
	"thermal-monitor-go/internal/models"
)

// Encoder turns a frame into JPEG bytes.
type Encoder interface {
	EncodeJPEG(frame *models.Frame) ([]byte, error)
}

// Uploader pushes a local file to blob storage and returns its remote URL.
type Uploader interface {
	Upload(localPath, remoteName string) (string, error)
}

// Submitter records uploaded evidence at the backend.
type Submitter interface {
	SubmitEvidence(eventID int64, blobURL string, detections []models.Detection) error
}

// LogSink forwards severity-tagged messages to the remote log endpoint.
type LogSink interface {
	SendLog(severity models.Severity, message string)
}

// outcome tracks which steps of a task completed, for logging and metrics
// only. The dispatcher never sees it.
type outcome struct {
	saved     bool
	uploaded  bool
	submitted bool
	cleaned   bool
}

func (o outcome) label() string {
	switch {
	case o.cleaned:
		return "delivered"
	case o.submitted:
		return "delivered_dirty"
	case o.uploaded:
		return "submit_failed"
	case o.saved:
		return "upload_failed"
	default:
		return "save_failed"
	}
}

// Pipeline delivers one frame plus its detections to the backend without
// blocking the caller. Each task is an independent goroutine with no retry
// and no completion signal.
type Pipeline struct {
	dir     string
	encoder Encoder
	store   Uploader
	backend Submitter
	logs    LogSink
	metrics *metrics.Metrics
}

func NewPipeline(dir string, encoder Encoder, store Uploader, backend Submitter, logs LogSink, m *metrics.Metrics) (*Pipeline, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create temp dir %s: %w", dir, err)
	}
	return &Pipeline{
		dir:     dir,
		encoder: encoder,
		store:   store,
		backend: backend,
		logs:    logs,
		metrics: m,
	}, nil
}

// Dispatch hands the task to a new goroutine and returns immediately.
func (p *Pipeline) Dispatch(task *models.EvidenceTask) {
	go func() {
		o := p.process(task)
		if p.metrics != nil {
			p.metrics.EvidenceOutcomes.WithLabelValues(o.label()).Inc()
		}
	}()
}

// process runs the strict delivery sequence, aborting at the first failure.
// Temp files from aborted tasks are deliberately left on disk; they were
// never referenced anywhere remote.
func (p *Pipeline) process(task *models.EvidenceTask) outcome {
	var o outcome

	localPath, err := p.saveTemp(task.Frame)
	if err != nil {
		log.Error().
			Err(err).
			Int64("event_id", task.EventID).
			Int("detections", len(task.Detections)).
			Msg("Evidence capture failed")
		return o
	}
	o.saved = true

	fileName := filepath.Base(localPath)
	log.Info().
		Str("file", fileName).
		Int64("event_id", task.EventID).
		Int("detections", len(task.Detections)).
		Msg("Evidence captured")

	blobURL, err := p.store.Upload(localPath, fileName)
	if err != nil {
		log.Error().Err(err).Str("file", fileName).Msg("Failed to upload evidence image")
		p.logs.SendLog(models.SeverityError, fmt.Sprintf("Failed to upload image to storage: %s", fileName))
		return o
	}
	o.uploaded = true

	if err := p.backend.SubmitEvidence(task.EventID, blobURL, task.Detections); err != nil {
		log.Error().Err(err).Int64("event_id", task.EventID).Msg("Failed to submit evidence to backend")
		p.logs.SendLog(models.SeverityError, fmt.Sprintf("Failed to submit evidence for event %d: %v", task.EventID, err))
		return o
	}
	o.submitted = true

	log.Info().Str("file", fileName).Int64("event_id", task.EventID).Msg("Evidence submitted")

	if err := os.Remove(localPath); err != nil {
		log.Warn().Err(err).Str("file", fileName).Msg("Could not remove temp file")
		return o
	}
	o.cleaned = true
	return o
}

// saveTemp persists the frame as a JPEG under a collision-resistant name.
func (p *Pipeline) saveTemp(frame *models.Frame) (string, error) {
	data, err := p.encoder.EncodeJPEG(frame)
	if err != nil {
		return "", fmt.Errorf("failed to encode frame: %w", err)
	}

	name := tempName(time.Now())
	path := filepath.Join(p.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

// tempName builds frame_<timestamp>_<6-hex>.jpg.
func tempName(t time.Time) string {
	suffix := fmt.Sprintf("%x", uuid.New())[:6]
	return fmt.Sprintf("frame_%s_%s.jpg", t.Format("20060102_150405"), suffix)
}
