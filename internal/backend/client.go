package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"thermal-monitor-go/internal/models"
)

// Client talks to the monitoring backend: JWT auth, event creation, evidence
// submission and log ingestion. Log sending is fire-and-forget; everything
// else returns errors for the caller to handle.
type Client struct {
	baseURL  string
	username string
	password string
	httpc    *http.Client

	mu    sync.RWMutex
	token string
}

func NewClient(baseURL, username, password string) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		password: password,
		httpc:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Authenticate obtains a JWT token. Required before any other call; an
// authentication failure is fatal at startup.
func (c *Client) Authenticate(ctx context.Context) error {
	form := url.Values{
		"username": {c.username},
		"password": {c.password},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/token",
		strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("authentication request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("authentication rejected: status %d, %s", resp.StatusCode, body)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("failed to decode auth response: %w", err)
	}
	if payload.AccessToken == "" {
		return fmt.Errorf("authentication response carried no token")
	}

	c.mu.Lock()
	c.token = payload.AccessToken
	c.mu.Unlock()

	log.Info().Msg("Authenticated with backend API")
	return nil
}

func (c *Client) currentToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// CreateEvent opens a new event and returns the backend-assigned id.
func (c *Client) CreateEvent(ctx context.Context) (int64, error) {
	body := map[string]string{
		"fecha_evento": time.Now().Format("2006-01-02"),
		"descripcion":  "Evento detectado automaticamente",
		"estatus":      "pendiente",
	}

	var payload struct {
		EventID int64 `json:"evento_id"`
	}
	if err := c.postJSON(ctx, "/eventos", body, http.StatusCreated, &payload); err != nil {
		return 0, fmt.Errorf("failed to create event: %w", err)
	}

	log.Info().Int64("event_id", payload.EventID).Msg("Event created")
	c.SendLog(models.SeverityInfo, fmt.Sprintf("New event created with id %d", payload.EventID))
	return payload.EventID, nil
}

// SubmitEvidence records an uploaded image and its detections against an
// event.
func (c *Client) SubmitEvidence(eventID int64, blobURL string, detections []models.Detection) error {
	body := map[string]interface{}{
		"imagen": map[string]string{
			"ruta_imagen": blobURL,
		},
		"detecciones": detections,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	path := fmt.Sprintf("/eventos/%d/imagenes", eventID)
	if err := c.postJSON(ctx, path, body, http.StatusCreated, nil); err != nil {
		return fmt.Errorf("failed to submit evidence: %w", err)
	}
	return nil
}

// SendLog forwards a log line to the backend in a background goroutine.
// Best effort: failures are logged locally and nothing is retried. Skipped
// entirely while unauthenticated.
func (c *Client) SendLog(severity models.Severity, message string) {
	if c.currentToken() == "" {
		return
	}

	go func() {
		body := map[string]string{
			"tipo":    string(severity),
			"mensaje": message,
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := c.postJSON(ctx, "/logs", body, http.StatusCreated, nil); err != nil {
			log.Warn().Err(err).Msg("Failed to send log to backend")
		}
	}()
}

// postJSON posts a JSON body with the bearer token and decodes the response
// into out when the expected status is returned.
func (c *Client) postJSON(ctx context.Context, path string, body interface{}, wantStatus int, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token := c.currentToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, path)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response from %s: %w", path, err)
		}
	}
	return nil
}
