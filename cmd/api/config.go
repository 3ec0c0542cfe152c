package main

import (
	"log/slog"
	"time"

	"github.com/fastprodman/creditsettle/internal/config"
)

type apiConfig struct {
	Port            uint16        `env:"API_PORT"         envDefault:"8080"`
	LogLevel        slog.Level    `env:"APP_LOG_LEVEL"    envDefault:"INFO"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
	// ProjectionPage is how many transactions an account view carries.
	ProjectionPage int `env:"PROJECTION_PAGE_SIZE" envDefault:"20"`
	// ProjectionTTL bounds how stale a cached account view may get when no
	// event announces a change.
	ProjectionTTL time.Duration `env:"PROJECTION_TTL" envDefault:"30s"`

	Postgres config.PostgresConfig
	Payments config.PaymentsConfig
	Checkout config.CheckoutConfig
	Kafka    config.KafkaConfig
	Media    config.MediaConfig
	Jobs     config.JobsConfig
}
