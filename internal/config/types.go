package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Config is the full bot configuration.
//
// Secrets (bot token, secondary session token) are NOT read from the
// config file; they come from the environment (.env supported) so the
// file can be committed and hot-reloaded safely.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Logging    LoggingConfig    `json:"logging"`
	Storage    StorageConfig    `json:"storage"`
	Scheduler  SchedulerConfig  `json:"scheduler"`
	Delivery   DeliveryConfig   `json:"delivery"`
	Transports TransportsConfig `json:"transports"`
	Notify     NotifyConfig     `json:"notify,omitempty"`
	Pprof      PprofConfig      `json:"pprof,omitempty"`
}

// PprofConfig controls the optional profiling endpoint. Binding beyond
// loopback requires a token.
type PprofConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default 127.0.0.1:6060
	Token   string `json:"token,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// SchedulerConfig controls the due-post scan and the worker pool.
type SchedulerConfig struct {
	TickInterval string `json:"tick_interval,omitempty"` // default "3s"
	Workers      int    `json:"workers,omitempty"`       // default 4
	QueueSize    int    `json:"queue_size,omitempty"`    // default 64
	ClaimLimit   int    `json:"claim_limit,omitempty"`   // default 32
	StaleAfter   string `json:"stale_after,omitempty"`   // default "5m"
}

// DeliveryConfig controls the retry policy and transport health.
type DeliveryConfig struct {
	RetryMax      int    `json:"retry_max,omitempty"`       // attempts total, default 3
	RetryBase     string `json:"retry_base,omitempty"`      // default "1s"
	RetryMaxDelay string `json:"retry_max_delay,omitempty"` // default "30s"
	Cooldown      string `json:"cooldown,omitempty"`        // transport degrade window, default "10m"
}

// TransportsConfig describes the two delivery backends. The primary is
// mandatory; the secondary exists only when a user-session Bot API
// server is configured.
type TransportsConfig struct {
	Primary   TransportConfig  `json:"primary"`
	Secondary *TransportConfig `json:"secondary,omitempty"`
}

type TransportConfig struct {
	// APIURL overrides the Bot API endpoint (self-hosted server for the
	// secondary). Empty means api.telegram.org.
	APIURL      string `json:"api_url,omitempty"`
	SizeCeiling int64  `json:"size_ceiling,omitempty"` // bytes; 0 = backend default
	RatePerSec  int    `json:"rate_per_sec,omitempty"`
}

type NotifyConfig struct {
	Enabled    bool `json:"enabled"`
	RatePerSec int  `json:"rate_per_sec,omitempty"`
}

// Secrets are pulled from the environment, never from the config file.
type Secrets struct {
	BotToken string // BOT_TOKEN
	// UserToken authenticates against the secondary (self-hosted) Bot
	// API server. Required only when transports.secondary is set.
	UserToken string // USER_TOKEN
}

// LoadSecrets reads required secrets from the environment. godotenv has
// already populated it from .env by the time this runs.
func LoadSecrets(needSecondary bool) (Secrets, error) {
	s := Secrets{
		BotToken:  strings.TrimSpace(os.Getenv("BOT_TOKEN")),
		UserToken: strings.TrimSpace(os.Getenv("USER_TOKEN")),
	}
	var missing []string
	if s.BotToken == "" {
		missing = append(missing, "BOT_TOKEN")
	}
	if needSecondary && s.UserToken == "" {
		missing = append(missing, "USER_TOKEN")
	}
	if len(missing) > 0 {
		return Secrets{}, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return s, nil
}

// Validate checks the parts of the config that must be right before any
// component starts. Failures here abort startup.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		return errors.New("storage.path is required")
	}
	for _, d := range []struct{ path, raw string }{
		{"storage.busy_timeout", c.Storage.BusyTimeout},
		{"scheduler.tick_interval", c.Scheduler.TickInterval},
		{"scheduler.stale_after", c.Scheduler.StaleAfter},
		{"delivery.retry_base", c.Delivery.RetryBase},
		{"delivery.retry_max_delay", c.Delivery.RetryMaxDelay},
		{"delivery.cooldown", c.Delivery.Cooldown},
	} {
		if _, err := ParseDurationOrDefault(d.path, d.raw, 0); err != nil {
			return err
		}
	}
	return nil
}
