package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func at(hour, minute int) time.Time {
	return time.Date(2026, 8, 25, hour, minute, 0, 0, time.Local)
}

func TestContains(t *testing.T) {
	window := Hours{Start: 6, End: 21}

	tests := []struct {
		name string
		t    time.Time
		want bool
	}{
		{"before start", at(5, 59), false},
		{"exactly at start", at(6, 0), true},
		{"mid window", at(13, 30), true},
		{"last included hour", at(20, 59), true},
		{"exactly at end", at(21, 0), false},
		{"after end", at(23, 15), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, window.Contains(tt.t))
		})
	}
}

func TestContainsFullDay(t *testing.T) {
	window := Hours{Start: 0, End: 24}
	assert.True(t, window.Contains(at(0, 0)))
	assert.True(t, window.Contains(at(23, 59)))
}

func TestPredicateTracksWallClock(t *testing.T) {
	now := time.Now()
	inside := Hours{Start: 0, End: 24}
	outside := Hours{Start: now.Hour(), End: now.Hour()}

	assert.True(t, inside.Predicate()())
	assert.False(t, outside.Predicate()())
}

func TestString(t *testing.T) {
	assert.Equal(t, "06:00 - 21:00", Hours{Start: 6, End: 21}.String())
	assert.Equal(t, "00:00 - 09:00", Hours{Start: 0, End: 9}.String())
}
