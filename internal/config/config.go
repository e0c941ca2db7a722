package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

const (
	DefaultConfigPath    = "config.toml"
	DefaultHTTPAddr      = ":8080"
	DefaultPGHost        = "127.0.0.1"
	DefaultPGPort        = 5432
	DefaultPGUser        = "postgres"
	DefaultPGDatabase    = "mediagate"
	DefaultPGSSLMode     = "disable"
	DefaultStorageRoot   = "data/media"
	DefaultGraphBaseURL  = "https://graph.facebook.com"
	DefaultGraphVersion  = "v18.0"
	DefaultBatchSize     = 10
	DefaultMaxRetries    = 3
	DefaultSignedURLTTL  = 3600
	DefaultHTTPTimeout   = 30
	DefaultCronSchedule  = "@every 1m"
	DefaultStorageDriver = "local"
)

type Config struct {
	Log      LogConfig      `toml:"log"`
	Server   ServerConfig   `toml:"server"`
	Postgres PostgresConfig `toml:"postgres"`
	Storage  StorageConfig  `toml:"storage"`
	WhatsApp WhatsAppConfig `toml:"whatsapp"`
	Twilio   TwilioConfig   `toml:"twilio"`
	Dispatch DispatchConfig `toml:"dispatch"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

// StorageConfig selects and configures the blob store backend.
// Driver is "local" or "s3". Bucket/Region/keys apply to s3 only;
// Endpoint supports S3-compatible stores (R2, MinIO).
type StorageConfig struct {
	Driver       string `toml:"driver"`
	Root         string `toml:"root"`
	Bucket       string `toml:"bucket"`
	Region       string `toml:"region"`
	AccessKey    string `toml:"access_key"`
	SecretKey    string `toml:"secret_key"`
	Endpoint     string `toml:"endpoint"`
	BaseURL      string `toml:"base_url"`
	SignedURLTTL int    `toml:"signed_url_ttl_seconds"`
}

type WhatsAppConfig struct {
	AccessToken   string `toml:"access_token"`
	PhoneNumberID string `toml:"phone_number_id"`
	VerifyToken   string `toml:"verify_token"`
	GraphBaseURL  string `toml:"graph_base_url"`
	GraphVersion  string `toml:"graph_version"`
}

// TwilioConfig carries credentials for authenticated media downloads.
// Twilio media URLs are fetchable without auth on trial accounts; production
// accounts require basic auth with account SID and token.
type TwilioConfig struct {
	AccountSID string `toml:"account_sid"`
	AuthToken  string `toml:"auth_token"`
}

type DispatchConfig struct {
	BatchSize          int    `toml:"batch_size"`
	MaxRetries         int    `toml:"max_retries"`
	CronSchedule       string `toml:"cron_schedule"`
	HTTPTimeoutSeconds int    `toml:"http_timeout_seconds"`
}

func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		Storage: StorageConfig{
			Driver:       DefaultStorageDriver,
			Root:         DefaultStorageRoot,
			SignedURLTTL: DefaultSignedURLTTL,
		},
		WhatsApp: WhatsAppConfig{
			GraphBaseURL: DefaultGraphBaseURL,
			GraphVersion: DefaultGraphVersion,
		},
		Dispatch: DispatchConfig{
			BatchSize:          DefaultBatchSize,
			MaxRetries:         DefaultMaxRetries,
			CronSchedule:       DefaultCronSchedule,
			HTTPTimeoutSeconds: DefaultHTTPTimeout,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}
