package stream

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thermal-monitor-go/internal/models"
)

// fakeSource scripts FrameSource behavior for reader tests.
type fakeSource struct {
	mu        sync.Mutex
	healthy   bool
	openErr   error
	readErr   error
	frame     *models.Frame
	opens     []time.Time
	reads     int
	readsAtOp []int
}

func (f *fakeSource) Open() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens = append(f.opens, time.Now())
	f.readsAtOp = append(f.readsAtOp, f.reads)
	if f.openErr != nil {
		return f.openErr
	}
	f.healthy = true
	f.readErr = nil
	return nil
}

func (f *fakeSource) Close() {}

func (f *fakeSource) Healthy() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.healthy
}

func (f *fakeSource) Read() (*models.Frame, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.readErr != nil {
		return nil, f.readErr
	}
	return f.frame.Clone(), nil
}

func (f *fakeSource) Dimensions() (int, int) { return 640, 480 }

func (f *fakeSource) openCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.opens)
}

func fastConfig() ReaderConfig {
	return ReaderConfig{
		MaxConsecutiveErrors: 5,
		ReconnectSpacing:     0,
		OffHoursPoll:         time.Millisecond,
		ReconnectRetryDelay:  time.Millisecond,
		ReadBackoff:          time.Millisecond,
		Tick:                 time.Millisecond,
		StopTimeout:          time.Second,
	}
}

func always() bool { return true }

func TestLatestFrameReturnsDefensiveCopy(t *testing.T) {
	r := NewReader(fastConfig(), &fakeSource{}, always, nil, nil)

	assert.Nil(t, r.LatestFrame(), "empty slot yields nil")

	original := &models.Frame{Data: []byte{1, 2, 3}, Width: 3, Height: 1}
	r.storeFrame(original)

	got := r.LatestFrame()
	require.NotNil(t, got)
	got.Data[0] = 99

	again := r.LatestFrame()
	assert.Equal(t, byte(1), again.Data[0], "callers cannot mutate the slot")
}

func TestLatestFrameNeverBlocks(t *testing.T) {
	r := NewReader(fastConfig(), &fakeSource{}, always, nil, nil)

	done := make(chan struct{})
	go func() {
		r.LatestFrame()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("LatestFrame blocked")
	}
}

func TestReaderKeepsNewestFrame(t *testing.T) {
	source := &fakeSource{
		healthy: true,
		frame:   &models.Frame{Data: []byte{1}, Width: 1, Height: 1},
	}
	r := NewReader(fastConfig(), source, always, nil, nil)
	r.Start()
	defer r.Stop()

	require.Eventually(t, func() bool {
		return r.LatestFrame() != nil
	}, time.Second, time.Millisecond)

	source.mu.Lock()
	source.frame = &models.Frame{Data: []byte{7}, Width: 1, Height: 1}
	source.mu.Unlock()

	assert.Eventually(t, func() bool {
		f := r.LatestFrame()
		return f != nil && f.Data[0] == 7
	}, time.Second, time.Millisecond, "slot converges to the newest frame")
}

func TestForcedReconnectAfterConsecutiveErrors(t *testing.T) {
	source := &fakeSource{
		healthy: true,
		readErr: errors.New("stream stalled"),
		frame:   &models.Frame{Data: []byte{1}, Width: 1, Height: 1},
	}
	r := NewReader(fastConfig(), source, always, nil, nil)
	r.Start()
	defer r.Stop()

	require.Eventually(t, func() bool {
		return source.openCount() >= 1
	}, 2*time.Second, time.Millisecond)
	r.Stop()

	// The reconnect fired on the fifth failed read, not earlier.
	source.mu.Lock()
	defer source.mu.Unlock()
	require.NotEmpty(t, source.readsAtOp)
	assert.Equal(t, 5, source.readsAtOp[0], "exactly five failed reads before the reconnect")
	assert.Equal(t, 1, len(source.opens), "a successful reconnect resets the counter")
}

func TestReconnectAttemptsAreSpaced(t *testing.T) {
	cfg := fastConfig()
	cfg.ReconnectSpacing = 60 * time.Millisecond

	source := &fakeSource{openErr: errors.New("connection refused")}
	r := NewReader(cfg, source, always, nil, nil)
	r.Start()

	require.Eventually(t, func() bool {
		return source.openCount() >= 3
	}, 3*time.Second, time.Millisecond)
	r.Stop()

	source.mu.Lock()
	defer source.mu.Unlock()
	for i := 1; i < len(source.opens); i++ {
		gap := source.opens[i].Sub(source.opens[i-1])
		assert.GreaterOrEqual(t, gap, 50*time.Millisecond,
			"attempts %d and %d too close together", i-1, i)
	}
}

func TestReaderSkipsCaptureOutsideOperatingHours(t *testing.T) {
	source := &fakeSource{
		healthy: true,
		frame:   &models.Frame{Data: []byte{1}, Width: 1, Height: 1},
	}
	r := NewReader(fastConfig(), source, func() bool { return false }, nil, nil)
	r.Start()
	time.Sleep(50 * time.Millisecond)
	r.Stop()

	source.mu.Lock()
	defer source.mu.Unlock()
	assert.Zero(t, source.reads, "no reads outside the operating window")
	assert.Empty(t, source.opens, "no reconnections outside the operating window")
}

func TestReaderNotifiesOnForcedReconnect(t *testing.T) {
	source := &fakeSource{
		healthy: true,
		readErr: errors.New("stream stalled"),
		frame:   &models.Frame{Data: []byte{1}, Width: 1, Height: 1},
	}

	var mu sync.Mutex
	var severities []models.Severity
	notifier := NotifierFunc(func(severity models.Severity, _ string) {
		mu.Lock()
		severities = append(severities, severity)
		mu.Unlock()
	})

	r := NewReader(fastConfig(), source, always, notifier, nil)
	r.Start()
	require.Eventually(t, func() bool {
		return source.openCount() >= 1
	}, 2*time.Second, time.Millisecond)
	r.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, severities, models.SeverityError, "forced reconnection is escalated")
	assert.Contains(t, severities, models.SeverityWarning, "attempt is announced")
	assert.Contains(t, severities, models.SeverityInfo, "success is reported")
}

func TestStartStopIdempotent(t *testing.T) {
	source := &fakeSource{
		healthy: true,
		frame:   &models.Frame{Data: []byte{1}, Width: 1, Height: 1},
	}
	r := NewReader(fastConfig(), source, always, nil, nil)

	r.Start()
	r.Start()
	r.Stop()
	r.Stop()

	// A stopped reader writes nothing further to the slot.
	last := r.LatestFrame()
	time.Sleep(20 * time.Millisecond)
	next := r.LatestFrame()
	if last == nil {
		assert.Nil(t, next)
	} else {
		assert.Equal(t, last.Timestamp, next.Timestamp)
	}
}
