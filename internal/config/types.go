package config

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`

	// Reminders controls the scheduling core.
	Reminders ReminderConfig `json:"reminders,omitempty"`

	// Notifier controls the outbound delivery pipeline.
	Notifier *NotifierConfig `json:"notifier,omitempty"`

	// Leagues are the polled deadline sources. Each entry maps a rounds feed
	// to the chat that should receive its reminders.
	Leagues []LeagueConfig `json:"leagues,omitempty"`

	Pprof PprofConfig `json:"pprof,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
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

// StorageConfig selects the reminder record store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./leaguebot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// ReminderConfig controls the scheduling core.
//
// All durations are Go duration strings.
//
// Defaults (when fields are omitted/zero):
//   - max_timer_step: "24h"
//   - default_lead:   "24h"
type ReminderConfig struct {
	// MaxTimerStep bounds a single low-level timer; longer waits are chained.
	MaxTimerStep string `json:"max_timer_step,omitempty"`
	// DefaultLead is how long before a deadline a reminder fires when the
	// caller doesn't say.
	DefaultLead string `json:"default_lead,omitempty"`
}

// NotifierConfig controls the outbound delivery pipeline.
// If the whole section is omitted, the notifier defaults to enabled=true.
type NotifierConfig struct {
	Enabled    *bool `json:"enabled,omitempty"`
	Workers    int   `json:"workers,omitempty"`
	QueueSize  int   `json:"queue_size,omitempty"`
	RatePerSec int   `json:"rate_per_sec,omitempty"`
}

// LeagueConfig describes one polled deadline source.
type LeagueConfig struct {
	Name    string `json:"name"`
	FeedURL string `json:"feed_url"`
	ChatID  int64  `json:"chat_id"`
	// ThreadID is an optional forum topic inside the chat (0 = main thread).
	ThreadID int `json:"thread_id,omitempty"`
	// Poll is a cron spec or "@every" descriptor, e.g. "@every 1h".
	Poll string `json:"poll,omitempty"`
	// Lead is how long before each deadline the reminder fires
	// (falls back to reminders.default_lead).
	Lead string `json:"lead,omitempty"`
}

// PprofConfig controls the optional pprof HTTP server.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:6060").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type PprofConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`   // default: "127.0.0.1:6060"
	Token         string `json:"token,omitempty"`  // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
}
