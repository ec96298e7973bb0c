package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thermal-monitor-go/internal/models"
)

// backendStub records requests against the monitoring API surface.
type backendStub struct {
	mu        sync.Mutex
	tokens    int
	events    []map[string]string
	evidence  []map[string]json.RawMessage
	logs      []map[string]string
	lastAuth  string
	authFails bool
}

func (b *backendStub) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.tokens++
		if b.authFails {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if err := r.ParseForm(); err != nil || r.PostFormValue("username") == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"access_token": "test-token"})
	})

	mux.HandleFunc("/eventos", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.lastAuth = r.Header.Get("Authorization")
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		b.events = append(b.events, body)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]int64{"evento_id": 7})
	})

	mux.HandleFunc("/eventos/7/imagenes", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		var body map[string]json.RawMessage
		json.NewDecoder(r.Body).Decode(&body)
		b.evidence = append(b.evidence, body)
		w.WriteHeader(http.StatusCreated)
	})

	mux.HandleFunc("/logs", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		b.logs = append(b.logs, body)
		w.WriteHeader(http.StatusCreated)
	})

	return mux
}

func (b *backendStub) logCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.logs)
}

func newTestClient(t *testing.T, stub *backendStub) *Client {
	t.Helper()
	srv := httptest.NewServer(stub.handler())
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "monitor", "secret")
}

func TestAuthenticate(t *testing.T) {
	stub := &backendStub{}
	client := newTestClient(t, stub)

	require.NoError(t, client.Authenticate(context.Background()))
	assert.Equal(t, "test-token", client.currentToken())
	assert.Equal(t, 1, stub.tokens)
}

func TestAuthenticateRejected(t *testing.T) {
	stub := &backendStub{authFails: true}
	client := newTestClient(t, stub)

	err := client.Authenticate(context.Background())
	require.Error(t, err)
	assert.Empty(t, client.currentToken())
}

func TestCreateEvent(t *testing.T) {
	stub := &backendStub{}
	client := newTestClient(t, stub)
	require.NoError(t, client.Authenticate(context.Background()))

	id, err := client.CreateEvent(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)

	stub.mu.Lock()
	require.Len(t, stub.events, 1)
	body := stub.events[0]
	auth := stub.lastAuth
	stub.mu.Unlock()

	assert.Equal(t, "Bearer test-token", auth)
	assert.Equal(t, "pendiente", body["estatus"])
	assert.Equal(t, time.Now().Format("2006-01-02"), body["fecha_evento"])
	assert.NotEmpty(t, body["descripcion"])

	// Creation announces itself on the log endpoint in the background.
	assert.Eventually(t, func() bool {
		return stub.logCount() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestSubmitEvidence(t *testing.T) {
	stub := &backendStub{}
	client := newTestClient(t, stub)
	require.NoError(t, client.Authenticate(context.Background()))

	detections := []models.Detection{{Confidence: 0.91, X1: 10, Y1: 20, X2: 30, Y2: 40}}
	require.NoError(t, client.SubmitEvidence(7, "https://blobs.example/c/frame.jpg", detections))

	stub.mu.Lock()
	require.Len(t, stub.evidence, 1)
	body := stub.evidence[0]
	stub.mu.Unlock()

	var image map[string]string
	require.NoError(t, json.Unmarshal(body["imagen"], &image))
	assert.Equal(t, "https://blobs.example/c/frame.jpg", image["ruta_imagen"])

	var dets []map[string]float64
	require.NoError(t, json.Unmarshal(body["detecciones"], &dets))
	require.Len(t, dets, 1)
	assert.InDelta(t, 0.91, dets[0]["confianza"], 1e-6)
}

func TestSendLogSkippedWhileUnauthenticated(t *testing.T) {
	stub := &backendStub{}
	client := newTestClient(t, stub)

	client.SendLog(models.SeverityInfo, "never sent")
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, stub.logCount())
}

func TestSendLogFireAndForget(t *testing.T) {
	stub := &backendStub{}
	client := newTestClient(t, stub)
	require.NoError(t, client.Authenticate(context.Background()))

	client.SendLog(models.SeverityWarning, "camera reconnected")

	assert.Eventually(t, func() bool {
		return stub.logCount() == 1
	}, time.Second, 10*time.Millisecond)

	stub.mu.Lock()
	entry := stub.logs[0]
	stub.mu.Unlock()
	assert.Equal(t, "advertencia", entry["tipo"])
	assert.Equal(t, "camera reconnected", entry["mensaje"])
}
