package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"dailyverse/pkg/config"
)

type Config struct {
	Debug    bool                `yaml:"debug"`
	DB       config.DBConfig     `yaml:"db"`
	MQ       config.MQConfig     `yaml:"mq"`
	Redis    config.RedisConfig  `yaml:"redis"`
	Server   config.ServerConfig `yaml:"server"`
	OTel     config.OTelConfig   `yaml:"otel"`
	Delivery DeliveryConfig      `yaml:"delivery"`
	Push     PushConfig          `yaml:"push"`
	Email    EmailConfig         `yaml:"email"`
	Outbox   OutboxConfig        `yaml:"outbox"`
}

type DeliveryConfig struct {
	Interval       time.Duration `yaml:"interval"`
	Workers        int           `yaml:"workers"`
	Timezone       string        `yaml:"timezone"`
	AlertThreshold float64       `yaml:"alert_threshold"`
	SendTimeout    time.Duration `yaml:"send_timeout"`
	ClaimTTL       time.Duration `yaml:"claim_ttl"`
	Retry          struct {
		MaxAttempts int           `yaml:"max_attempts"`
		BaseDelay   time.Duration `yaml:"base_delay"`
		MaxDelay    time.Duration `yaml:"max_delay"`
	} `yaml:"retry"`
}

type PushConfig struct {
	VAPIDPublicKey  string        `yaml:"vapid_public_key"`
	VAPIDPrivateKey string        `yaml:"vapid_private_key"`
	Subscriber      string        `yaml:"subscriber"`
	TTL             time.Duration `yaml:"ttl"`
	RatePerSecond   float64       `yaml:"rate_per_second"`
	ClickURL        string        `yaml:"click_url"`
}

type EmailConfig struct {
	SMTPHost string `yaml:"smtp_host"`
	SMTPPort int    `yaml:"smtp_port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

type OutboxConfig struct {
	Interval   time.Duration `yaml:"interval"`
	BatchSize  int           `yaml:"batch_size"`
	MaxRetries int           `yaml:"max_retries"`
}

// Load reads config/<CONFIG_ENV>.yaml over config/base.yaml, then applies
// environment overrides and defaults.
func Load() (*Config, error) {
	env := config.GetConfigEnv()
	configDir := config.GetEnv("CONFIG_DIR", "config")

	cfgMap, err := config.LoadConfig(env, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	var cfg Config
	if err := config.Decode(cfgMap, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	config.OverrideDBFromEnv(&cfg.DB)
	config.OverrideMQFromEnv(&cfg.MQ)
	config.OverrideRedisFromEnv(&cfg.Redis)
	config.OverrideServerFromEnv(&cfg.Server)
	config.OverrideOTelFromEnv(&cfg.OTel)
	overrideChannelsFromEnv(&cfg)

	cfg.applyDefaults()
	return &cfg, nil
}

func overrideChannelsFromEnv(cfg *Config) {
	if v := os.Getenv("VAPID_PUBLIC_KEY"); v != "" {
		cfg.Push.VAPIDPublicKey = v
	}
	if v := os.Getenv("VAPID_PRIVATE_KEY"); v != "" {
		cfg.Push.VAPIDPrivateKey = v
	}
	if v := os.Getenv("SMTP_HOST"); v != "" {
		cfg.Email.SMTPHost = v
	}
	if v := os.Getenv("SMTP_USERNAME"); v != "" {
		cfg.Email.Username = v
	}
	if v := os.Getenv("SMTP_PASSWORD"); v != "" {
		cfg.Email.Password = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	d := &c.Delivery
	if d.Interval <= 0 {
		d.Interval = 15 * time.Minute
	}
	if d.Workers <= 0 {
		d.Workers = 8
	}
	if d.Timezone == "" {
		d.Timezone = "UTC"
	}
	if d.AlertThreshold <= 0 {
		d.AlertThreshold = 0.10
	}
	if d.SendTimeout <= 0 {
		d.SendTimeout = 10 * time.Second
	}
	if d.ClaimTTL <= 0 {
		d.ClaimTTL = 10 * time.Minute
	}
	if d.Retry.MaxAttempts <= 0 {
		d.Retry.MaxAttempts = 3
	}
	if d.Retry.BaseDelay <= 0 {
		d.Retry.BaseDelay = time.Second
	}
	if d.Retry.MaxDelay <= 0 {
		d.Retry.MaxDelay = 5 * time.Second
	}
	if c.Push.TTL <= 0 {
		c.Push.TTL = 12 * time.Hour
	}
	if c.Email.SMTPPort == 0 {
		c.Email.SMTPPort = 587
	}
	if c.Outbox.Interval <= 0 {
		c.Outbox.Interval = time.Second
	}
	if c.Outbox.BatchSize <= 0 {
		c.Outbox.BatchSize = 100
	}
	if c.Outbox.MaxRetries <= 0 {
		c.Outbox.MaxRetries = 5
	}
}

// Validate reports every missing channel credential at once.
func (c *Config) Validate() error {
	var errs []error
	if missing(c.Push.VAPIDPublicKey) || missing(c.Push.VAPIDPrivateKey) {
		errs = append(errs, errors.New("push: VAPID key pair is required"))
	}
	if missing(c.Push.Subscriber) {
		errs = append(errs, errors.New("push: subscriber contact is required"))
	}
	if missing(c.Email.SMTPHost) {
		errs = append(errs, errors.New("email: smtp_host is required"))
	}
	if missing(c.Email.From) {
		errs = append(errs, errors.New("email: from address is required"))
	}
	if missing(c.Server.JWTSecret) {
		errs = append(errs, errors.New("server: jwt_secret is required"))
	}
	if c.DB.Host == "" || c.DB.Name == "" {
		errs = append(errs, errors.New("db: host and name are required"))
	}
	return errors.Join(errs...)
}

// missing treats an unresolved ${VAR} placeholder like an empty value.
func missing(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || strings.HasPrefix(s, "${")
}
