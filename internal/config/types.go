package config

import (
	"errors"
	"strings"
)

// Config is the daemon's full configuration.
//
// Credentials and the delivery webhook URL primarily live in the
// key-value store (they are entered out-of-band); the optional fields
// here only seed the store on first start.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "5m").
type Config struct {
	Portal  PortalConfig  `json:"portal"`
	Sink    SinkConfig    `json:"sink,omitempty"`
	Watcher WatcherConfig `json:"watcher"`
	Storage StorageConfig `json:"storage"`
	Logging LoggingConfig `json:"logging"`
}

type PortalConfig struct {
	LoginURL  string `json:"login_url"`
	ListURL   string `json:"list_url"`
	UserAgent string `json:"user_agent,omitempty"`
	Timeout   string `json:"timeout,omitempty"`

	// Seed values; the store wins once populated.
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

type SinkConfig struct {
	// Seed value; the store wins once populated.
	WebhookURL string `json:"webhook_url,omitempty"`
}

// WatcherConfig drives the tick loop.
//
// Defaults (when fields are omitted/zero):
//   - interval: "5m"
//   - page_delay: "1s" (between detail page requests)
//   - chunk_delay: "1s" (between delivery chunks)
//   - max_message_len: 2000
type WatcherConfig struct {
	Interval      string `json:"interval,omitempty"`
	PageDelay     string `json:"page_delay,omitempty"`
	ChunkDelay    string `json:"chunk_delay,omitempty"`
	MaxMessageLen int    `json:"max_message_len,omitempty"`

	// StartupRun fires one tick immediately on start, after a
	// best-effort probe message to the sink.
	StartupRun bool `json:"startup_run,omitempty"`
}

// StorageConfig selects the key-value store backend.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./manawatch.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

type LoggingConfig struct {
	Level   string           `json:"level,omitempty"`
	Console bool             `json:"console"`
	File    FileLogConfig    `json:"file,omitempty"`
	Webhook WebhookLogConfig `json:"webhook,omitempty"`
}

type FileLogConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// WebhookLogConfig forwards WARN+ log lines to the delivery webhook so
// the operator sees failures without shell access.
type WebhookLogConfig struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// Validate rejects configs the daemon cannot start with.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if strings.TrimSpace(c.Portal.LoginURL) == "" {
		return errors.New("portal.login_url is required")
	}
	if strings.TrimSpace(c.Portal.ListURL) == "" {
		return errors.New("portal.list_url is required")
	}
	if strings.TrimSpace(c.Storage.Driver) == "" {
		return errors.New("storage.driver is required")
	}
	for _, d := range []struct{ path, raw string }{
		{"portal.timeout", c.Portal.Timeout},
		{"watcher.interval", c.Watcher.Interval},
		{"watcher.page_delay", c.Watcher.PageDelay},
		{"watcher.chunk_delay", c.Watcher.ChunkDelay},
		{"storage.busy_timeout", c.Storage.BusyTimeout},
	} {
		if _, err := ParseDurationField(d.path, d.raw); err != nil {
			return err
		}
	}
	if c.Watcher.MaxMessageLen < 0 {
		return errors.New("watcher.max_message_len must be >= 0")
	}
	return nil
}
