package config

import "time"

type PostgresConfig struct {
	DSN             string        `env:"PG_DSN,required"`
	MaxOpenConns    int           `env:"PG_MAX_OPEN_CONNS"     envDefault:"20"`
	MaxIdleConns    int           `env:"PG_MAX_IDLE_CONNS"     envDefault:"5"`
	ConnMaxIdleTime time.Duration `env:"PG_CONN_MAX_IDLE_TIME" envDefault:"5m"`
	ConnMaxLifetime time.Duration `env:"PG_CONN_MAX_LIFETIME"  envDefault:"30m"`
}

// PaymentsConfig holds provider credentials. None of these values are ever
// sent to a client.
type PaymentsConfig struct {
	Sandbox            bool   `env:"PAYMENTS_SANDBOX"     envDefault:"true"`
	WebhookAccessToken string `env:"WEBHOOK_ACCESS_TOKEN"`
	MobileMoney        MobileMoneyConfig
	Card               CardConfig
}

type MobileMoneyConfig struct {
	PublicKey     string `env:"MOBILE_MONEY_PUBLIC_KEY"`
	SecretKey     string `env:"MOBILE_MONEY_SECRET_KEY"`
	WebhookSecret string `env:"MOBILE_MONEY_WEBHOOK_SECRET"`
	BaseURL       string `env:"MOBILE_MONEY_BASE_URL"`
}

type CardConfig struct {
	SecretKey     string `env:"CARD_SECRET_KEY"`
	WebhookSecret string `env:"CARD_WEBHOOK_SECRET"`
	BaseURL       string `env:"CARD_API_BASE_URL"`
}

type CheckoutConfig struct {
	GraceDelay        time.Duration `env:"CHECKOUT_GRACE_DELAY"         envDefault:"2s"`
	PollInterval      time.Duration `env:"CHECKOUT_POLL_INTERVAL"       envDefault:"5s"`
	Watchdog          time.Duration `env:"CHECKOUT_WATCHDOG"            envDefault:"5m"`
	VerifyBeforeApply bool          `env:"CHECKOUT_VERIFY_BEFORE_APPLY" envDefault:"true"`
	ApplyAttempts     int           `env:"CHECKOUT_APPLY_ATTEMPTS"      envDefault:"3"`
	SessionTTL        time.Duration `env:"CHECKOUT_SESSION_TTL"         envDefault:"30m"`
}

type KafkaConfig struct {
	Brokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	Topic   string   `env:"KAFKA_TOPIC"   envDefault:"successful_payments"`
}

type MediaConfig struct {
	Endpoint string        `env:"MEDIA_ENDPOINT"`
	Models   []string      `env:"MEDIA_MODELS"  envSeparator:"," envDefault:"image-primary,image-fallback"`
	Timeout  time.Duration `env:"MEDIA_TIMEOUT" envDefault:"60s"`
}

type JobsConfig struct {
	PendingSweep  string        `env:"JOBS_PENDING_SWEEP"   envDefault:"@every 5m"`
	PendingMinAge time.Duration `env:"JOBS_PENDING_MIN_AGE" envDefault:"1m"`
	PendingBatch  int           `env:"JOBS_PENDING_BATCH"   envDefault:"100"`
}
