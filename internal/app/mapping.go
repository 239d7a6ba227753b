package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"leaguebot/internal/config"
	"leaguebot/internal/league"
	"leaguebot/internal/notifier"
	"leaguebot/internal/observability/pprof"
	"leaguebot/internal/reminder"
	"leaguebot/internal/storage"
	logx "leaguebot/pkg/logx"
)

func mapLogging(lc config.LoggingConfig) logx.Config {
	return logx.Config{
		Level:   lc.Level,
		Console: lc.Console,
		File: logx.FileConfig{
			Enabled: lc.File.Enabled,
			Path:    lc.File.Path,
		},
	}
}

func mapStorage(sc config.StorageConfig) (storage.Config, error) {
	busy, err := config.ParseDurationField("storage.busy_timeout", sc.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      sc.Driver,
		Path:        sc.Path,
		BusyTimeout: busy,
	}, nil
}

func mapNotifier(nc *config.NotifierConfig) notifier.Config {
	out := notifier.Config{Enabled: true}
	if nc == nil {
		return out
	}
	if nc.Enabled != nil {
		out.Enabled = *nc.Enabled
	}
	out.Workers = nc.Workers
	out.QueueSize = nc.QueueSize
	out.RatePerSec = nc.RatePerSec
	return out
}

func mapReminders(rc config.ReminderConfig) (reminder.Config, time.Duration, error) {
	maxStep, err := config.ParseDurationOrDefault("reminders.max_timer_step", rc.MaxTimerStep, 24*time.Hour)
	if err != nil {
		return reminder.Config{}, 0, err
	}
	lead, err := config.ParseDurationOrDefault("reminders.default_lead", rc.DefaultLead, 24*time.Hour)
	if err != nil {
		return reminder.Config{}, 0, err
	}
	return reminder.Config{MaxTimerStep: maxStep}, lead, nil
}

func mapLeagues(lcs []config.LeagueConfig) ([]league.Config, error) {
	out := make([]league.Config, 0, len(lcs))
	for i, lc := range lcs {
		lead, err := config.ParseDurationField(fmt.Sprintf("leagues[%d].lead", i), lc.Lead)
		if err != nil {
			return nil, err
		}
		out = append(out, league.Config{
			Name:     lc.Name,
			FeedURL:  lc.FeedURL,
			ChatID:   lc.ChatID,
			ThreadID: lc.ThreadID,
			Poll:     lc.Poll,
			Lead:     lead,
		})
	}
	return out, nil
}

func mapPprof(pc config.PprofConfig) pprof.Config {
	return pprof.Config{
		Enabled:       pc.Enabled,
		Addr:          pc.Addr,
		Token:         pc.Token,
		AllowInsecure: pc.AllowInsecure,
	}
}

// validateConfig gates hot-reloads: a config that fails here is rejected and
// the previous one stays live.
func validateConfig(ctx context.Context, cfg *config.Config) error {
	_ = ctx
	if cfg == nil {
		return fmt.Errorf("config is empty")
	}
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token is required")
	}
	if _, err := mapStorage(cfg.Storage); err != nil {
		return err
	}
	if _, _, err := mapReminders(cfg.Reminders); err != nil {
		return err
	}
	if _, err := mapLeagues(cfg.Leagues); err != nil {
		return err
	}
	return nil
}
