package config

import (
	"errors"
	"fmt"
	"strings"
)

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`

	// Admin controls the local HTTP API used to manage the pinned
	// message (create/activate/broadcast/unpin).
	Admin AdminConfig `json:"admin,omitempty"`

	// Broadcast and Unpin tune the two mass operations. Omitted fields
	// fall back to the built-in parameters.
	Broadcast FanoutSection `json:"broadcast,omitempty"`
	Unpin     FanoutSection `json:"unpin,omitempty"`

	// Cooldown is the minimum spacing between mass operations,
	// a Go duration string. Default "1m".
	Cooldown string `json:"cooldown,omitempty"`

	// Sweep re-broadcasts the active message on a cron schedule so
	// recipients missed by the last run catch up. Disabled when omitted.
	Sweep SweepConfig `json:"sweep,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// OwnerChatID receives operation summaries. 0 disables them.
	OwnerChatID int64 `json:"owner_chat_id,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
	// RatePerSec caps outgoing API calls below Telegram's ambient limit.
	RatePerSec int `json:"rate_per_sec,omitempty"`
	// MenuText is the welcome text of the /start flow. Empty disables it.
	MenuText string `json:"menu_text,omitempty"`
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
	Path string `json:"path"`
	// BusyTimeout is a Go duration string (sqlite busy_timeout pragma).
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// AdminConfig controls the management HTTP server.
//
// Security note: bind to localhost unless the host firewall takes care
// of access; the API carries no authentication of its own.
type AdminConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default: "127.0.0.1:8421"

	// Server timeouts (Go duration strings). A broadcast over a large
	// recipient base can hold the request open for minutes, so
	// WriteTimeout defaults to 0 (disabled).
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

// FanoutSection tunes one mass operation.
//
// All durations are Go duration strings (e.g. "50ms", "30s").
type FanoutSection struct {
	Concurrency int    `json:"concurrency,omitempty"`
	ChunkSize   int    `json:"chunk_size,omitempty"`
	ChunkPause  string `json:"chunk_pause,omitempty"`
	RetryMax    int    `json:"retry_max,omitempty"`
	BackoffCap  string `json:"backoff_cap,omitempty"`

	// SnapshotPageSize only applies to the broadcast section.
	SnapshotPageSize int `json:"snapshot_page_size,omitempty"`
}

type SweepConfig struct {
	Enabled bool `json:"enabled"`
	// Schedule is a standard 5-field cron expression.
	Schedule string `json:"schedule,omitempty"`
}

// Validate checks the fields that cannot be defaulted away. Duration
// strings are parsed here so a bad reload is rejected before anything is
// applied.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return errors.New("telegram.token is required")
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		return errors.New("storage.path is required")
	}
	for _, f := range []struct{ path, raw string }{
		{"telegram.poll_timeout", c.Telegram.PollTimeout},
		{"storage.busy_timeout", c.Storage.BusyTimeout},
		{"cooldown", c.Cooldown},
		{"broadcast.chunk_pause", c.Broadcast.ChunkPause},
		{"broadcast.backoff_cap", c.Broadcast.BackoffCap},
		{"unpin.chunk_pause", c.Unpin.ChunkPause},
		{"unpin.backoff_cap", c.Unpin.BackoffCap},
		{"admin.read_timeout", c.Admin.ReadTimeout},
		{"admin.write_timeout", c.Admin.WriteTimeout},
		{"admin.idle_timeout", c.Admin.IdleTimeout},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			return err
		}
	}
	if c.Telegram.RatePerSec < 0 {
		return errors.New("telegram.rate_per_sec must be >= 0")
	}
	if c.Sweep.Enabled && strings.TrimSpace(c.Sweep.Schedule) == "" {
		return errors.New("sweep.schedule is required when sweep is enabled")
	}
	for _, s := range []struct {
		path string
		sec  FanoutSection
	}{{"broadcast", c.Broadcast}, {"unpin", c.Unpin}} {
		if s.sec.Concurrency < 0 || s.sec.ChunkSize < 0 || s.sec.RetryMax < 0 || s.sec.SnapshotPageSize < 0 {
			return fmt.Errorf("%s: counters must be >= 0", s.path)
		}
	}
	return nil
}
