// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Lead      LeadConfig      `mapstructure:"lead"`
	CRM       CRMConfig       `mapstructure:"crm"`
	WhatsApp  WhatsAppConfig  `mapstructure:"whatsapp"`
	Journal   JournalConfig   `mapstructure:"journal"`
	Alerts    AlertsConfig    `mapstructure:"alerts"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int `mapstructure:"port"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// RateLimitConfig tunes the fixed-window admission control.
type RateLimitConfig struct {
	WindowMinutes     int    `mapstructure:"window_minutes"`
	MaxRequests       int    `mapstructure:"max_requests"`
	SweepSeconds      int    `mapstructure:"sweep_seconds"`
	Store             string `mapstructure:"store"` // memory | redis
	RedisAddr         string `mapstructure:"redis_addr"`
	RedisPassword     string `mapstructure:"redis_password"`
	RedisDB           int    `mapstructure:"redis_db"`
	TrustProxyHeaders bool   `mapstructure:"trust_proxy_headers"`
}

// LeadConfig governs submission handling defaults.
type LeadConfig struct {
	CountryCode string `mapstructure:"country_code"`
}

// CRMConfig points at the CRM and names the deal pipeline geometry.
type CRMConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	Token          string `mapstructure:"token"`
	DealPipeline   string `mapstructure:"deal_pipeline"`
	DealStage      string `mapstructure:"deal_stage"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// WhatsAppConfig configures the messaging provider and template names.
type WhatsAppConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BaseURL        string `mapstructure:"base_url"`
	Token          string `mapstructure:"token"`
	PhoneNumberID  string `mapstructure:"phone_number_id"`
	Language       string `mapstructure:"language"`
	LeadTemplate   string `mapstructure:"lead_template"`
	SalesTemplate  string `mapstructure:"sales_template"`
	SalesRecipient string `mapstructure:"sales_recipient"`
}

// JournalConfig controls the optional Postgres submission journal.
type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DSN     string `mapstructure:"dsn"`
	Table   string `mapstructure:"table"`
}

// AlertsConfig controls the optional Pub/Sub operational alert topic.
type AlertsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LEADGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.timeout_seconds", 60)
	v.SetDefault("rate_limit.window_minutes", 15)
	v.SetDefault("rate_limit.max_requests", 10)
	v.SetDefault("rate_limit.sweep_seconds", 60)
	v.SetDefault("rate_limit.store", "memory")
	v.SetDefault("rate_limit.trust_proxy_headers", true)
	v.SetDefault("lead.country_code", "55")
	v.SetDefault("crm.timeout_seconds", 15)
	v.SetDefault("whatsapp.language", "pt_BR")
	v.SetDefault("whatsapp.lead_template", "lead_welcome")
	v.SetDefault("whatsapp.sales_template", "new_lead_alert")
	v.SetDefault("journal.table", "lead_submissions")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.RateLimit.WindowMinutes <= 0 {
		return fmt.Errorf("rate_limit.window_minutes must be > 0")
	}
	if c.RateLimit.MaxRequests <= 0 {
		return fmt.Errorf("rate_limit.max_requests must be > 0")
	}
	switch c.RateLimit.Store {
	case "memory":
	case "redis":
		if c.RateLimit.RedisAddr == "" {
			return fmt.Errorf("rate_limit.redis_addr must be set when store is redis")
		}
	default:
		return fmt.Errorf("unknown rate_limit.store: %s", c.RateLimit.Store)
	}
	if c.CRM.Token == "" {
		return fmt.Errorf("crm.token must be set")
	}
	if c.WhatsApp.Enabled && (c.WhatsApp.Token == "" || c.WhatsApp.PhoneNumberID == "") {
		return fmt.Errorf("whatsapp.token and whatsapp.phone_number_id must be set when whatsapp is enabled")
	}
	if c.Journal.Enabled && c.Journal.DSN == "" {
		return fmt.Errorf("journal.dsn must be set when journal is enabled")
	}
	if c.Alerts.Enabled && (c.Alerts.ProjectID == "" || c.Alerts.TopicName == "") {
		return fmt.Errorf("alerts.project_id and alerts.topic_name must be set when alerts are enabled")
	}
	return nil
}

// Window converts the configured rate-limit window into a duration.
func (c RateLimitConfig) Window() time.Duration {
	return time.Duration(c.WindowMinutes) * time.Minute
}

// SweepInterval converts the configured sweep cadence into a duration.
func (c RateLimitConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepSeconds) * time.Second
}

// Timeout converts the CRM timeout into a duration.
func (c CRMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
