package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	// Application
	Version  string
	WorkerID string
	Port     int
	LogLevel string

	// Logdy (lightweight web log viewer)
	LogdyEnabled bool
	LogdyHost    string
	LogdyPort    int

	// Video source
	CameraSource string

	// Backend API
	APIBaseURL string
	Username   string
	Password   string

	// Detection model
	ModelPath           string
	ModelInputSize      int
	ConfidenceThreshold float64
	NMSThreshold        float64

	// Azure Blob Storage (SAS token auth)
	AzureContainerURL string
	AzureSASToken     string

	// Stream resilience
	MaxConsecutiveErrors int
	ReconnectTimeout     time.Duration

	// Sampling cadence
	SampleIntervalIdle   time.Duration
	SampleIntervalActive time.Duration

	// Event debounce
	CreateEventThreshold int
	CloseEventThreshold  int

	// Operating hours (local hour of day, [Start, End))
	OperatingStartHour int
	OperatingEndHour   int

	// Heartbeat
	HeartbeatInterval time.Duration

	// Evidence
	TempDir string

	// NATS notifications
	NatsEnabled        bool
	NatsURL            string
	NatsConnectTimeout time.Duration
	NatsReconnectWait  time.Duration
	NatsMaxReconnects  int
	EventsSubject      string

	// Graceful shutdown
	ShutdownTimeout time.Duration
}

func Load() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("No .env file found, using environment variables and defaults")
	} else {
		log.Info().Msg("Loaded configuration from .env file")
	}

	return &Config{
		// Application
		Version:  getEnv("VERSION", "1.0.0"),
		WorkerID: getEnv("WORKER_ID", "thermal-monitor-1"),
		Port:     getEnvInt("PORT", 8000),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Logdy
		LogdyEnabled: getEnvBool("LOGDY_ENABLED", false),
		LogdyHost:    getEnv("LOGDY_HOST", "localhost"),
		LogdyPort:    getEnvInt("LOGDY_PORT", 8080),

		// Video source
		CameraSource: getEnv("CAMERA_SOURCE", ""),

		// Backend API
		APIBaseURL: getEnv("API_BASE_URL", ""),
		Username:   getEnv("API_USERNAME", ""),
		Password:   getEnv("API_PASSWORD", ""),

		// Detection model
		ModelPath:           getEnv("MODEL_PATH", ""),
		ModelInputSize:      getEnvInt("MODEL_INPUT_SIZE", 640),
		ConfidenceThreshold: getEnvFloat("CONFIDENCE_THRESHOLD", 0.5),
		NMSThreshold:        getEnvFloat("NMS_THRESHOLD", 0.45),

		// Azure
		AzureContainerURL: getEnv("AZURE_CONTAINER_URL", ""),
		AzureSASToken:     getEnv("TOKENSAS", ""),

		// Stream resilience
		MaxConsecutiveErrors: getEnvInt("MAX_CONSECUTIVE_ERRORS", 5),
		ReconnectTimeout:     getEnvDuration("RECONNECT_TIMEOUT", 10*time.Second),

		// Sampling cadence
		SampleIntervalIdle:   getEnvDuration("SAMPLE_INTERVAL_IDLE", 5*time.Second),
		SampleIntervalActive: getEnvDuration("SAMPLE_INTERVAL_ACTIVE", 2*time.Second),

		// Event debounce
		CreateEventThreshold: getEnvInt("CREATE_EVENT_THRESHOLD", 3),
		CloseEventThreshold:  getEnvInt("CLOSE_EVENT_THRESHOLD", 5),

		// Operating hours
		OperatingStartHour: getEnvInt("OPERATING_START_HOUR", 6),
		OperatingEndHour:   getEnvInt("OPERATING_END_HOUR", 21),

		// Heartbeat
		HeartbeatInterval: getEnvDuration("HEARTBEAT_INTERVAL", 300*time.Second),

		// Evidence
		TempDir: getEnv("TEMP_DIR", "temp_images"),

		// NATS
		NatsEnabled:        getEnvBool("NATS_ENABLED", false),
		NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
		NatsConnectTimeout: getEnvDuration("NATS_CONNECT_TIMEOUT", 10*time.Second),
		NatsReconnectWait:  getEnvDuration("NATS_RECONNECT_WAIT", 2*time.Second),
		NatsMaxReconnects:  getEnvInt("NATS_MAX_RECONNECTS", -1),
		EventsSubject:      getEnv("EVENTS_SUBJECT", "thermal.events"),

		// Graceful shutdown
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

// Validate enforces the startup requirements. Anything returned here is fatal.
func (c *Config) Validate() error {
	if c.CameraSource == "" {
		return fmt.Errorf("CAMERA_SOURCE is required")
	}
	if c.APIBaseURL == "" {
		return fmt.Errorf("API_BASE_URL is required")
	}
	if c.ModelPath == "" {
		return fmt.Errorf("MODEL_PATH is required")
	}
	if _, err := os.Stat(c.ModelPath); err != nil {
		return fmt.Errorf("model not found at %s: %w", c.ModelPath, err)
	}
	if c.OperatingStartHour < 0 || c.OperatingStartHour > 23 {
		return fmt.Errorf("OPERATING_START_HOUR must be between 0 and 23, got %d", c.OperatingStartHour)
	}
	if c.OperatingEndHour < 0 || c.OperatingEndHour > 23 {
		return fmt.Errorf("OPERATING_END_HOUR must be between 0 and 23, got %d", c.OperatingEndHour)
	}
	if c.AzureContainerURL == "" || c.AzureSASToken == "" {
		log.Warn().Msg("Azure Storage not fully configured, evidence images will not be uploaded")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
