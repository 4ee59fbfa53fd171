// Package config loads server settings from an optional YAML file and the
// environment. Environment variables win over the file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Logging    LoggingConfig    `yaml:"logging"`
	Reputation ReputationConfig `yaml:"reputation"`
	Model      ModelConfig      `yaml:"model"`
	Advisor    AdvisorConfig    `yaml:"advisor"`
	SMTP       SMTPConfig       `yaml:"smtp"`
	Alerts     AlertsConfig     `yaml:"alerts"`
	TLS        TLSConfig        `yaml:"tls"`
	History    HistoryConfig    `yaml:"history"`
	Session    SessionConfig    `yaml:"session"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
	Env  string `yaml:"env"` // "production" enables secure cookies
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type LoggingConfig struct {
	Level string `yaml:"level"` // debug | info | warn | error
}

type ReputationConfig struct {
	SafeBrowsingKey string        `yaml:"safe_browsing_api_key"`
	OpenPhishFeed   string        `yaml:"openphish_feed"`
	OpenPhish       bool          `yaml:"openphish"`
	Whois           bool          `yaml:"whois"`
	DNS             bool          `yaml:"dns"`
	Timeout         time.Duration `yaml:"timeout"`
}

type ModelConfig struct {
	Enabled       bool    `yaml:"enabled"`
	Path          string  `yaml:"path"`
	MinConfidence float64 `yaml:"min_confidence"`
}

type AdvisorConfig struct {
	Enabled bool   `yaml:"enabled"`
	Model   string `yaml:"model"` // Bedrock model ID
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

type AlertsConfig struct {
	Recipient  string `yaml:"recipient"`
	WebhookURL string `yaml:"webhook_url"`
	Threshold  int    `yaml:"threshold"`
	QueueSize  int    `yaml:"queue_size"`
	Workers    int    `yaml:"workers"`
}

type TLSConfig struct {
	Domains   []string `yaml:"domains"`
	ACMEEmail string   `yaml:"acme_email"`
	Staging   bool     `yaml:"staging"`
}

type SessionConfig struct {
	TTL             time.Duration `yaml:"ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

type HistoryConfig struct {
	Retention   time.Duration `yaml:"retention"`
	PageSize    int           `yaml:"page_size"`
	KeepOnClear int           `yaml:"keep_on_clear"`
}

// Load reads path if it exists, fills defaults and applies environment
// overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case os.IsNotExist(err):
		default:
			return nil, err
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	return cfg, nil
}

// Production reports whether the server runs with production settings.
func (c *Config) Production() bool {
	return c.Server.Env == "production"
}

func defaultConfig() *Config {
	return &Config{
		Server:  ServerConfig{Port: "8080"},
		Logging: LoggingConfig{Level: "info"},
		Reputation: ReputationConfig{
			OpenPhish: true,
			Whois:     true,
			DNS:       true,
			Timeout:   5 * time.Second,
		},
		Model: ModelConfig{
			Path:          "model/linkbuster_model.json",
			MinConfidence: 80,
		},
		SMTP:    SMTPConfig{Port: 2525},
		Alerts:  AlertsConfig{Threshold: 60, QueueSize: 256, Workers: 2},
		History: HistoryConfig{Retention: 30 * 24 * time.Hour, PageSize: 10, KeepOnClear: 50},
		Session: SessionConfig{TTL: 7 * 24 * time.Hour, CleanupInterval: 24 * time.Hour},
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Reputation.Timeout <= 0 {
		cfg.Reputation.Timeout = 5 * time.Second
	}
	if cfg.Model.MinConfidence <= 0 {
		cfg.Model.MinConfidence = 80
	}
	if cfg.SMTP.Port == 0 {
		cfg.SMTP.Port = 2525
	}
	if cfg.SMTP.From == "" {
		cfg.SMTP.From = cfg.SMTP.Username
	}
	if cfg.Alerts.Recipient == "" {
		cfg.Alerts.Recipient = cfg.SMTP.Username
	}
	if cfg.Alerts.Threshold <= 0 {
		cfg.Alerts.Threshold = 60
	}
	if cfg.Alerts.QueueSize <= 0 {
		cfg.Alerts.QueueSize = 256
	}
	if cfg.Alerts.Workers <= 0 {
		cfg.Alerts.Workers = 2
	}
	if cfg.History.Retention <= 0 {
		cfg.History.Retention = 30 * 24 * time.Hour
	}
	if cfg.History.PageSize <= 0 {
		cfg.History.PageSize = 10
	}
	if cfg.History.KeepOnClear <= 0 {
		cfg.History.KeepOnClear = 50
	}
	if cfg.Session.TTL <= 0 {
		cfg.Session.TTL = 7 * 24 * time.Hour
	}
	if cfg.Session.CleanupInterval <= 0 {
		cfg.Session.CleanupInterval = 24 * time.Hour
	}
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Server.Port, "PORT")
	setString(&cfg.Server.Env, "LINKBUSTER_ENV")
	setString(&cfg.Database.URL, "DATABASE_URL")
	setString(&cfg.Logging.Level, "LOG_LEVEL")
	setString(&cfg.Reputation.SafeBrowsingKey, "SAFE_BROWSING_API_KEY")
	setString(&cfg.Reputation.OpenPhishFeed, "OPENPHISH_FEED_URL")
	setString(&cfg.Model.Path, "MODEL_PATH")
	setString(&cfg.Advisor.Model, "BEDROCK_MODEL")
	setString(&cfg.SMTP.Host, "SMTP_HOST")
	setString(&cfg.SMTP.Username, "SMTP_USERNAME")
	setString(&cfg.SMTP.Password, "SMTP_PASSWORD")
	setString(&cfg.SMTP.From, "SMTP_FROM")
	setString(&cfg.Alerts.Recipient, "ALERT_RECIPIENT")
	setString(&cfg.Alerts.WebhookURL, "ALERT_WEBHOOK_URL")
	setString(&cfg.TLS.ACMEEmail, "ACME_EMAIL")

	if v := os.Getenv("TLS_DOMAINS"); v != "" {
		cfg.TLS.Domains = nil
		for _, d := range strings.Split(v, ",") {
			if d = strings.TrimSpace(d); d != "" {
				cfg.TLS.Domains = append(cfg.TLS.Domains, d)
			}
		}
	}

	for _, b := range []struct {
		dst *bool
		key string
	}{
		{&cfg.Model.Enabled, "MODEL_ENABLED"},
		{&cfg.Advisor.Enabled, "ADVISOR_ENABLED"},
		{&cfg.TLS.Staging, "ACME_STAGING"},
	} {
		if err := setBool(b.dst, b.key); err != nil {
			return err
		}
	}

	if v := os.Getenv("SESSION_TTL"); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("SESSION_TTL: %w", err)
		}
		cfg.Session.TTL = ttl
	}

	if v := os.Getenv("SMTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SMTP_PORT: %w", err)
		}
		cfg.SMTP.Port = port
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}
