package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free file backend (snapshot + journal)
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Well-known keys used by the watcher pipeline.
const (
	KeyUsername      = "portal.username"
	KeyPassword      = "portal.password"
	KeySessionCookie = "portal.session_cookie"
	KeyLastTitle     = "watch.last_notice_title"
	KeyWebhookURL    = "sink.webhook_url"
)
