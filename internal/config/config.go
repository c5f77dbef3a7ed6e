package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the full service configuration, parsed from the environment.
// A local .env file is honored when present.
type Config struct {
	Addr     string `env:"ADDR" envDefault:":8080"`
	DBPath   string `env:"DB_PATH" envDefault:"newslens.db"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogJSON  bool   `env:"LOG_JSON" envDefault:"false"`

	Auth     AuthConfig
	Stripe   StripeConfig
	Analyzer AnalyzerConfig
	Email    EmailConfig
	Archive  ArchiveConfig
}

// AuthConfig describes the external identity provider. Tokens are verified
// against the issuer's JWKS; the service never stores credentials.
type AuthConfig struct {
	Issuer   string `env:"AUTH_ISSUER,required,notEmpty"`
	Audience string `env:"AUTH_AUDIENCE,required,notEmpty"`
}

type StripeConfig struct {
	SecretKey        string `env:"STRIPE_SECRET_KEY"`
	WebhookSecret    string `env:"STRIPE_WEBHOOK_SECRET"`
	BasicPriceID     string `env:"STRIPE_PRICE_BASIC"`
	ProPriceID       string `env:"STRIPE_PRICE_PRO"`
	ProAnnualPriceID string `env:"STRIPE_PRICE_PRO_ANNUAL"`
	TeamPriceID      string `env:"STRIPE_PRICE_TEAM"`
	SuccessURL       string `env:"STRIPE_SUCCESS_URL" envDefault:"https://newslens.app/billing/success"`
	CancelURL        string `env:"STRIPE_CANCEL_URL" envDefault:"https://newslens.app/pricing"`
}

type AnalyzerConfig struct {
	BaseURL string `env:"ANALYZER_URL"`
	APIKey  string `env:"ANALYZER_API_KEY"`
}

type EmailConfig struct {
	PostmarkToken string `env:"POSTMARK_SERVER_TOKEN"`
	FromEmail     string `env:"EMAIL_FROM" envDefault:"billing@newslens.app"`
	PortalURL     string `env:"EMAIL_PORTAL_URL" envDefault:"https://newslens.app/billing"`
}

// ArchiveConfig configures the dead-letter bucket for webhook events that
// cannot be applied. Optional; unset means log-only.
type ArchiveConfig struct {
	Endpoint   string `env:"ARCHIVE_S3_ENDPOINT"`
	Bucket     string `env:"ARCHIVE_S3_BUCKET"`
	Region     string `env:"ARCHIVE_S3_REGION" envDefault:"auto"`
	AccessKey  string `env:"ARCHIVE_S3_ACCESS_KEY"`
	SecretKey  string `env:"ARCHIVE_S3_SECRET_KEY"`
	Passphrase string `env:"ARCHIVE_PASSPHRASE"`
}

// Load reads .env (if present) and parses the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}
