package models

import (
	"time"
)

// Severity values match the backend's log ingestion API ("tipo" field).
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "advertencia"
	SeverityError   Severity = "error"
)

// Frame is a single decoded video frame. Data holds raw BGR24 pixels.
// Frames are never shared across goroutines by reference; use Clone when
// handing one to another owner.
type Frame struct {
	Data      []byte
	Width     int
	Height    int
	Timestamp time.Time
}

// Clone returns an independent copy of the frame.
func (f *Frame) Clone() *Frame {
	if f == nil {
		return nil
	}
	data := make([]byte, len(f.Data))
	copy(data, f.Data)
	return &Frame{
		Data:      data,
		Width:     f.Width,
		Height:    f.Height,
		Timestamp: f.Timestamp,
	}
}

// Detection is one detected object in a frame. JSON field names follow the
// backend contract and are sent verbatim.
type Detection struct {
	Confidence float64 `json:"confianza"`
	X1         int     `json:"x1"`
	Y1         int     `json:"y1"`
	X2         int     `json:"x2"`
	Y2         int     `json:"y2"`
}

// EvidenceTask is a one-shot unit of upload work. The task owns its frame
// copy; nothing is reported back to the dispatcher.
type EvidenceTask struct {
	Frame      *Frame
	Detections []Detection
	EventID    int64
}

// StreamHealth is a read-only snapshot of the reader's failure state.
type StreamHealth struct {
	ConsecutiveErrors int       `json:"consecutive_errors"`
	LastReconnect     time.Time `json:"last_reconnect"`
	Width             int       `json:"width"`
	Height            int       `json:"height"`
}

// EngineState is the debounce state of the event engine.
type EngineState string

const (
	StateNoDetection EngineState = "sin_deteccion"
	StateEventActive EngineState = "evento_activo"
)

// EngineStatus is a read-only snapshot of the event engine.
type EngineStatus struct {
	State            EngineState `json:"state"`
	EventActive      bool        `json:"event_active"`
	EventID          int64       `json:"event_id,omitempty"`
	WithDetection    int         `json:"samples_with_detection"`
	WithoutDetection int         `json:"samples_without_detection"`
	LastSample       time.Time   `json:"last_sample"`
}

// EventNotification is published to NATS on event lifecycle changes.
type EventNotification struct {
	Type      string    `json:"type"`
	EventID   int64     `json:"event_id"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	NotificationEventCreated     = "event_created"
	NotificationEventClosed      = "event_closed"
	NotificationEvidenceUploaded = "evidence_uploaded"
)
