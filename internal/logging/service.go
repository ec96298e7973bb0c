package logging

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"thermal-monitor-go/internal/config"
)

func NewServiceLogger(cfg *config.Config, service string) zerolog.Logger {
	return log.With().Str("worker_id", cfg.WorkerID).Str("service", service).Logger()
}
