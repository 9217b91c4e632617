package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds runtime configuration for the application.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"180s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"180s"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`

	ExternalAppURL  string        `envconfig:"EXTERNAL_APP_URL" required:"true"`
	UpstreamTimeout time.Duration `envconfig:"UPSTREAM_TIMEOUT" default:"90s"`
	UpstreamRetries int           `envconfig:"UPSTREAM_RETRIES" default:"3"`
	UpstreamBackoff time.Duration `envconfig:"UPSTREAM_BACKOFF" default:"1500ms"`

	RedisAddr string `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`

	SMTPHost    string        `envconfig:"SMTP_HOST" default:"127.0.0.1"`
	SMTPPort    int           `envconfig:"SMTP_PORT" default:"587"`
	SMTPUser    string        `envconfig:"SMTP_USER" default:""`
	SMTPPass    string        `envconfig:"SMTP_PASS" default:""`
	FromEmail   string        `envconfig:"FROM_EMAIL" required:"true"`
	FromName    string        `envconfig:"FROM_NAME" default:"Sistema"`
	SMTPRetries int           `envconfig:"SMTP_RETRIES" default:"2"`
	SMTPBackoff time.Duration `envconfig:"SMTP_BACKOFF" default:"2s"`

	RHEmail    string `envconfig:"RH_EMAIL" required:"true"`
	AdminEmail string `envconfig:"ADMIN_EMAIL" required:"true"`

	Timezone     string `envconfig:"TZ" default:"America/Argentina/Buenos_Aires"`
	MinShortfall int64  `envconfig:"MIN_FALTANTE" default:"10000"`

	ReportHour   int    `envconfig:"REPORT_HOUR" default:"6"`
	ReportMinute int    `envconfig:"REPORT_MINUTE" default:"0"`
	ReportsDir   string `envconfig:"REPORTS_DIR" default:"reportes"`
	DaysToKeep   int    `envconfig:"DAYS_TO_KEEP" default:"7"`

	GotenbergURL string `envconfig:"GOTENBERG_URL" default:"http://127.0.0.1:3000"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if cfg.ReportHour < 0 || cfg.ReportHour > 23 {
		return nil, fmt.Errorf("report hour %d out of range", cfg.ReportHour)
	}
	if cfg.ReportMinute < 0 || cfg.ReportMinute > 59 {
		return nil, fmt.Errorf("report minute %d out of range", cfg.ReportMinute)
	}
	if cfg.UpstreamRetries < 1 {
		return nil, errors.New("upstream retries must be at least 1")
	}
	if cfg.SMTPRetries < 1 {
		return nil, errors.New("smtp retries must be at least 1")
	}
	return &cfg, nil
}

// Location resolves the configured timezone, falling back to UTC when invalid.
func (c *Config) Location() *time.Location {
	if c == nil || c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// CronSpec builds the daily trigger cron expression from the configured time.
func (c *Config) CronSpec() string {
	return fmt.Sprintf("%d %d * * *", c.ReportMinute, c.ReportHour)
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}
