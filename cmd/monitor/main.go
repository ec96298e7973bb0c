package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"thermal-monitor-go/internal/api"
	"thermal-monitor-go/internal/backend"
	"thermal-monitor-go/internal/config"
	"thermal-monitor-go/internal/detect"
	"thermal-monitor-go/internal/engine"
	"thermal-monitor-go/internal/evidence"
	"thermal-monitor-go/internal/heartbeat"
	"thermal-monitor-go/internal/imaging"
	"thermal-monitor-go/internal/logging"
	"thermal-monitor-go/internal/messaging"
	"thermal-monitor-go/internal/metrics"
	"thermal-monitor-go/internal/models"
	"thermal-monitor-go/internal/schedule"
	"thermal-monitor-go/internal/storage"
	"thermal-monitor-go/internal/stream"
)

func main() {
	// Setup structured logging
	zerolog.TimeFieldFormat = time.RFC3339
	console := zerolog.ConsoleWriter{Out: os.Stderr}
	log.Logger = log.Output(console)

	cfg := config.Load()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("Invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.LogdyEnabled {
		if w, _, err := logging.StartLogdy(cfg); err == nil {
			log.Logger = log.Output(zerolog.MultiLevelWriter(console, w))
		} else {
			log.Warn().Err(err).Msg("Failed to start Logdy, continuing without it")
		}
	}

	log.Info().
		Str("worker_id", cfg.WorkerID).
		Str("version", cfg.Version).
		Str("operating_hours", schedule.Hours{Start: cfg.OperatingStartHour, End: cfg.OperatingEndHour}.String()).
		Msg("Starting thermal monitor")

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	hours := schedule.Hours{Start: cfg.OperatingStartHour, End: cfg.OperatingEndHour}
	m := metrics.New()

	// Startup validation: camera, model, backend auth. Each failure is a
	// clean fatal shutdown rather than a crash later on.
	source := stream.NewCaptureSource(cfg.CameraSource)
	if err := source.Open(); err != nil {
		log.Fatal().Err(err).Msg("Could not initialize the camera")
	}
	defer source.Close()

	detector, err := detect.Load(cfg.ModelPath, cfg.ModelInputSize, cfg.ConfidenceThreshold, cfg.NMSThreshold)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not load the detection model")
	}
	defer detector.Close()

	client := backend.NewClient(cfg.APIBaseURL, cfg.Username, cfg.Password)
	authCtx, cancelAuth := context.WithTimeout(context.Background(), 15*time.Second)
	if err := client.Authenticate(authCtx); err != nil {
		cancelAuth()
		log.Fatal().Err(err).Msg("Could not authenticate with the backend API")
	}
	cancelAuth()

	var publisher engine.Publisher
	if cfg.NatsEnabled {
		nats, err := messaging.NewService(cfg)
		if err != nil {
			log.Warn().Err(err).Msg("NATS unavailable, event notifications disabled")
		} else {
			defer nats.Shutdown()
			publisher = nats
		}
	}

	// Camera trouble is forwarded to the remote log sink.
	notifier := stream.NotifierFunc(func(severity models.Severity, message string) {
		client.SendLog(severity, message)
	})

	readerCfg := stream.DefaultReaderConfig()
	readerCfg.MaxConsecutiveErrors = cfg.MaxConsecutiveErrors
	readerCfg.ReconnectSpacing = cfg.ReconnectTimeout
	reader := stream.NewReader(readerCfg, source, hours.Predicate(), notifier, m)

	store := storage.NewAzureStore(cfg.AzureContainerURL, cfg.AzureSASToken)
	pipeline, err := evidence.NewPipeline(cfg.TempDir, imaging.NewCodec(), store, client, client, m)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not prepare the evidence pipeline")
	}

	engineCfg := engine.DefaultConfig()
	engineCfg.IdleInterval = cfg.SampleIntervalIdle
	engineCfg.ActiveInterval = cfg.SampleIntervalActive
	engineCfg.Thresholds = engine.Thresholds{
		CreateEvent: cfg.CreateEventThreshold,
		CloseEvent:  cfg.CloseEventThreshold,
	}
	engineCfg.EventsSubject = cfg.EventsSubject
	eng := engine.New(engineCfg, reader, detector, client, client, pipeline, publisher, hours.Predicate(), m)

	beatCfg := heartbeat.DefaultConfig()
	beatCfg.Interval = cfg.HeartbeatInterval
	reporter := heartbeat.NewReporter(beatCfg, eng, reader, client, hours, m)

	server := api.NewServer(cfg, eng, reader, hours, m)
	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("Status API failed")
		}
	}()

	reader.Start()
	reporter.Start()

	// Let the reader land a first frame before sampling begins.
	time.Sleep(2 * time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Info().Msg("Shutdown signal received")
		cancel()
	}()

	eng.Run(ctx)

	// Graceful shutdown
	client.SendLog(models.SeverityWarning, "Thermal monitoring system stopped")
	reporter.Stop()
	reader.Stop()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Status API forced to shutdown")
	}

	log.Info().Msg("Thermal monitor stopped")
}
