package evidence

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thermal-monitor-go/internal/models"
)

type fakeEncoder struct {
	data []byte
	err  error
}

func (f *fakeEncoder) EncodeJPEG(*models.Frame) ([]byte, error) { return f.data, f.err }

type fakeUploader struct {
	url   string
	err   error
	calls []string
}

func (f *fakeUploader) Upload(localPath, remoteName string) (string, error) {
	f.calls = append(f.calls, remoteName)
	return f.url, f.err
}

type fakeSubmitter struct {
	err      error
	eventIDs []int64
	urls     []string
}

func (f *fakeSubmitter) SubmitEvidence(eventID int64, blobURL string, _ []models.Detection) error {
	f.eventIDs = append(f.eventIDs, eventID)
	f.urls = append(f.urls, blobURL)
	return f.err
}

type fakeLogSink struct {
	mu       sync.Mutex
	messages []string
}

func (f *fakeLogSink) SendLog(_ models.Severity, message string) {
	f.mu.Lock()
	f.messages = append(f.messages, message)
	f.mu.Unlock()
}

func testTask() *models.EvidenceTask {
	return &models.EvidenceTask{
		Frame:      &models.Frame{Data: []byte{1, 2, 3}, Width: 1, Height: 1, Timestamp: time.Now()},
		Detections: []models.Detection{{Confidence: 0.8, X1: 1, Y1: 1, X2: 5, Y2: 5}},
		EventID:    42,
	}
}

func tempFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestPipelineDeliversAndCleansUp(t *testing.T) {
	dir := t.TempDir()
	uploader := &fakeUploader{url: "https://blobs.example/container/frame.jpg"}
	submitter := &fakeSubmitter{}

	p, err := NewPipeline(dir, &fakeEncoder{data: []byte("jpeg")}, uploader, submitter, &fakeLogSink{}, nil)
	require.NoError(t, err)

	o := p.process(testTask())
	assert.Equal(t, "delivered", o.label())

	require.Len(t, submitter.eventIDs, 1)
	assert.Equal(t, int64(42), submitter.eventIDs[0])
	assert.Equal(t, uploader.url, submitter.urls[0])
	assert.Empty(t, tempFiles(t, dir), "temp file removed after full delivery")
}

func TestPipelineLeavesFileOnUploadFailure(t *testing.T) {
	dir := t.TempDir()
	uploader := &fakeUploader{err: errors.New("storage unreachable")}
	submitter := &fakeSubmitter{}
	sink := &fakeLogSink{}

	p, err := NewPipeline(dir, &fakeEncoder{data: []byte("jpeg")}, uploader, submitter, sink, nil)
	require.NoError(t, err)

	o := p.process(testTask())
	assert.Equal(t, "upload_failed", o.label())

	assert.Empty(t, submitter.eventIDs, "submission skipped after failed upload")
	assert.Len(t, tempFiles(t, dir), 1, "temp file kept when never uploaded")
	assert.NotEmpty(t, sink.messages, "failure forwarded to the remote log")
}

func TestPipelineLeavesFileOnSubmitFailure(t *testing.T) {
	dir := t.TempDir()
	uploader := &fakeUploader{url: "https://blobs.example/container/frame.jpg"}
	submitter := &fakeSubmitter{err: errors.New("backend rejected")}

	p, err := NewPipeline(dir, &fakeEncoder{data: []byte("jpeg")}, uploader, submitter, &fakeLogSink{}, nil)
	require.NoError(t, err)

	o := p.process(testTask())
	assert.Equal(t, "submit_failed", o.label())
	assert.Len(t, tempFiles(t, dir), 1, "cleanup only runs after a confirmed submission")
}

func TestPipelineEncodeFailureWritesNothing(t *testing.T) {
	dir := t.TempDir()
	uploader := &fakeUploader{}

	p, err := NewPipeline(dir, &fakeEncoder{err: errors.New("bad frame")}, uploader, &fakeSubmitter{}, &fakeLogSink{}, nil)
	require.NoError(t, err)

	o := p.process(testTask())
	assert.Equal(t, "save_failed", o.label())
	assert.Empty(t, uploader.calls)
	assert.Empty(t, tempFiles(t, dir))
}

func TestPipelineUploadsUnderTempFileName(t *testing.T) {
	dir := t.TempDir()
	uploader := &fakeUploader{url: "https://blobs.example/container/frame.jpg"}

	p, err := NewPipeline(dir, &fakeEncoder{data: []byte("jpeg")}, uploader, &fakeSubmitter{}, &fakeLogSink{}, nil)
	require.NoError(t, err)

	p.process(testTask())
	require.Len(t, uploader.calls, 1)
	assert.Regexp(t, regexp.MustCompile(`^frame_\d{8}_\d{6}_[0-9a-f]{6}\.jpg$`), uploader.calls[0])
}

func TestNewPipelineCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "temp_images")
	_, err := NewPipeline(dir, &fakeEncoder{}, &fakeUploader{}, &fakeSubmitter{}, &fakeLogSink{}, nil)
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestTempNameFormat(t *testing.T) {
	ts := time.Date(2026, 8, 25, 14, 30, 5, 0, time.UTC)
	name := tempName(ts)
	assert.Regexp(t, regexp.MustCompile(`^frame_20260825_143005_[0-9a-f]{6}\.jpg$`), name)

	// Names stay unique for the same timestamp.
	assert.NotEqual(t, name, tempName(ts))
}
