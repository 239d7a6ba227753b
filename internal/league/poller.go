package league

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"leaguebot/internal/reminder"
	logx "leaguebot/pkg/logx"
)

// Registrar is the scheduling surface the poller needs.
type Registrar interface {
	Register(ctx context.Context, scope int64, target int, kind reminder.Kind, deadline, fireAt time.Time, payload reminder.Payload) (reminder.Reminder, error)
	List(ctx context.Context, scope int64) ([]reminder.Reminder, error)
}

// Poller periodically fetches each league's feed and registers reminders for
// upcoming deadlines. Deadlines that already have a live reminder in the same
// chat (same kind and deadline) are skipped, so repeated polls are harmless.
type Poller struct {
	log    logx.Logger
	client *Client
	reg    Registrar

	defaultLead time.Duration

	mu      sync.Mutex
	parser  cron.Parser
	c       *cron.Cron
	leagues []Config
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewPoller(client *Client, reg Registrar, defaultLead time.Duration, log logx.Logger) *Poller {
	if log.IsZero() {
		log = logx.Nop()
	}
	if defaultLead <= 0 {
		defaultLead = time.Hour
	}
	return &Poller{
		log:         log,
		client:      client,
		reg:         reg,
		defaultLead: defaultLead,
		parser:      cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// Start registers a cron entry per league and begins polling. An immediate
// first poll runs for each league so a fresh start does not wait a full cycle.
func (p *Poller) Start(ctx context.Context, leagues []Config) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.c != nil {
		return errors.New("poller already started")
	}

	p.ctx, p.cancel = context.WithCancel(ctx)
	p.leagues = append([]Config(nil), leagues...)
	p.c = cron.New(cron.WithParser(p.parser))

	for i := range p.leagues {
		lg := p.leagues[i]
		if strings.TrimSpace(lg.FeedURL) == "" || lg.ChatID == 0 {
			p.log.Warn("skipping misconfigured league", logx.String("league", lg.Name))
			continue
		}
		spec := strings.TrimSpace(lg.Poll)
		if spec == "" {
			spec = "@every 30m"
		}
		if _, err := p.c.AddFunc(spec, func() { p.pollOne(lg) }); err != nil {
			return fmt.Errorf("league %s: bad poll spec %q: %w", lg.Name, spec, err)
		}
		go p.pollOne(lg)
	}

	p.c.Start()
	p.log.Info("league poller started", logx.Int("leagues", len(p.leagues)))
	return nil
}

func (p *Poller) Stop(ctx context.Context) {
	p.mu.Lock()
	c := p.c
	cancel := p.cancel
	p.c = nil
	p.cancel = nil
	p.mu.Unlock()
	if c == nil {
		return
	}
	if cancel != nil {
		cancel()
	}

	done := c.Stop().Done()
	select {
	case <-done:
	case <-ctx.Done():
	}
	p.log.Info("league poller stopped")
}

func (p *Poller) pollOne(lg Config) {
	p.mu.Lock()
	ctx := p.ctx
	p.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}
	ctx, cancelPoll := context.WithTimeout(ctx, 30*time.Second)
	defer cancelPoll()

	feed, err := p.client.Fetch(ctx, lg.FeedURL)
	if err != nil {
		p.log.Warn("feed fetch failed", logx.String("league", lg.Name), logx.Err(err))
		return
	}

	descs := Deadlines(feed, time.Now())
	if len(descs) == 0 {
		return
	}

	live, err := p.reg.List(ctx, lg.ChatID)
	if err != nil {
		p.log.Warn("listing reminders failed", logx.String("league", lg.Name), logx.Err(err))
		return
	}

	lead := lg.Lead
	if lead <= 0 {
		lead = p.defaultLead
	}

	added := 0
	for _, d := range descs {
		if hasReminder(live, d) {
			continue
		}
		fireAt := d.Deadline.Add(-lead)
		if !fireAt.After(time.Now()) {
			// Deadline is closer than the lead; fire shortly instead of never.
			fireAt = time.Now().Add(time.Minute)
			if fireAt.After(d.Deadline) {
				continue
			}
		}
		label := d.Label
		if label == "" {
			label = lg.Name
		}
		_, err := p.reg.Register(ctx, lg.ChatID, lg.ThreadID, d.Kind, d.Deadline, fireAt, reminder.Payload{Label: label, Link: d.Link})
		if err != nil {
			if errors.Is(err, reminder.ErrValidation) {
				continue
			}
			p.log.Warn("registering feed reminder failed", logx.String("league", lg.Name), logx.Err(err))
			continue
		}
		added++
	}
	if added > 0 {
		p.log.Info("feed reminders registered",
			logx.String("league", lg.Name),
			logx.Int("added", added),
		)
	}
}

// hasReminder reports whether a live reminder already covers this descriptor.
// Combined deadlines also count as covering their submission/voting halves.
func hasReminder(live []reminder.Reminder, d Descriptor) bool {
	for _, r := range live {
		if !r.Deadline.Equal(d.Deadline) {
			continue
		}
		if r.Kind == d.Kind || r.Kind == reminder.KindCombined {
			return true
		}
	}
	return false
}
