package league

import (
	"time"

	"leaguebot/internal/reminder"
)

// Config describes one league the bot watches.
type Config struct {
	Name     string
	FeedURL  string
	ChatID   int64
	ThreadID int
	// Poll is a cron spec (robfig syntax, @every supported).
	Poll string
	// Lead is how long before each deadline the reminder fires.
	Lead time.Duration
}

// Descriptor is one upcoming deadline extracted from a league feed.
type Descriptor struct {
	Kind     reminder.Kind
	Deadline time.Time
	Label    string
	Link     string
}
