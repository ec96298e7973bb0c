package engine

import "thermal-monitor-go/internal/models"

// Counters are the consecutive-sample debounce counters. Both reset on every
// state transition.
type Counters struct {
	WithDetection    int
	WithoutDetection int
}

// Action is the side effect requested by a debounce step.
type Action int

const (
	ActionNone Action = iota
	// ActionCreateEvent asks the engine to open an event at the backend.
	ActionCreateEvent
	// ActionCloseEvent asks the engine to close the active event.
	ActionCloseEvent
)

// Thresholds are the debounce crossing points.
type Thresholds struct {
	CreateEvent int
	CloseEvent  int
}

// Advance is the pure debounce transition: given the current state, counters
// and whether the sample contained detections, it returns the next state,
// updated counters and the requested side effect.
//
// Event creation fires only on the sample where the with-detection counter
// reaches the threshold exactly, so a failed creation is not retried until
// the counter has been fully reset by a no-detection sample and climbs back
// up. The caller performs the actual state switch to EventActive once the
// backend confirms the event.
func Advance(state models.EngineState, c Counters, detected bool, t Thresholds) (models.EngineState, Counters, Action) {
	if !detected {
		c.WithDetection = 0
		c.WithoutDetection++

		if c.WithoutDetection >= t.CloseEvent {
			c.WithoutDetection = 0
			if state == models.StateEventActive {
				return models.StateNoDetection, Counters{}, ActionCloseEvent
			}
		}
		return state, c, ActionNone
	}

	c.WithoutDetection = 0
	c.WithDetection++

	if state == models.StateNoDetection && c.WithDetection == t.CreateEvent {
		return state, c, ActionCreateEvent
	}
	return state, c, ActionNone
}
