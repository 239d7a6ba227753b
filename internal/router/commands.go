package router

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"sync"
	"time"

	"leaguebot/internal/notifier"
	"leaguebot/internal/reminder"
	"leaguebot/internal/transport"
	logx "leaguebot/pkg/logx"
)

// Scheduler is the reminder surface the router drives.
type Scheduler interface {
	Register(ctx context.Context, scope int64, target int, kind reminder.Kind, deadline, fireAt time.Time, payload reminder.Payload) (reminder.Reminder, error)
	Cancel(ctx context.Context, scope int64, id string) (bool, error)
	List(ctx context.Context, scope int64) ([]reminder.Reminder, error)
	Armed() int
}

// StatsSource exposes delivery statistics for /status.
type StatsSource interface {
	Stats() notifier.Stats
}

// Router turns chat commands into scheduler calls and renders the replies.
type Router struct {
	log     logx.Logger
	adapter transport.Adapter
	sched   Scheduler
	stats   StatsSource

	defaultLead time.Duration
	startedAt   time.Time

	mu       sync.Mutex
	restored int
	expired  int
}

func New(adapter transport.Adapter, sched Scheduler, stats StatsSource, defaultLead time.Duration, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	if defaultLead <= 0 {
		defaultLead = time.Hour
	}
	return &Router{
		log:         log,
		adapter:     adapter,
		sched:       sched,
		stats:       stats,
		defaultLead: defaultLead,
		startedAt:   time.Now(),
	}
}

// SetStartupReport records what the last recovery pass did, for /status.
func (r *Router) SetStartupReport(restored, expired int) {
	r.mu.Lock()
	r.restored = restored
	r.expired = expired
	r.mu.Unlock()
}

// Commands is the menu the adapter advertises.
func (r *Router) Commands() []transport.BotCommand {
	return []transport.BotCommand{
		{Command: "/remind", Description: "schedule a deadline reminder"},
		{Command: "/reminders", Description: "list upcoming reminders"},
		{Command: "/cancel", Description: "cancel a reminder by id"},
		{Command: "/status", Description: "scheduler status"},
		{Command: "/help", Description: "how to use the bot"},
	}
}

// HandleUpdate processes one inbound update. Unknown commands and plain chat
// messages are ignored.
func (r *Router) HandleUpdate(ctx context.Context, up transport.Update) {
	m := up.Message
	if m == nil {
		return
	}
	cmd, args := splitCommand(m.Text)
	if cmd == "" {
		return
	}

	var err error
	switch cmd {
	case "/remind":
		err = r.cmdRemind(ctx, m, args)
	case "/reminders", "/list":
		err = r.cmdList(ctx, m)
	case "/cancel":
		err = r.cmdCancel(ctx, m, args)
	case "/status":
		err = r.cmdStatus(ctx, m)
	case "/help", "/start":
		err = r.reply(ctx, m, helpText)
	default:
		return
	}
	if err != nil {
		r.log.Warn("command failed",
			logx.String("cmd", cmd),
			logx.Int64("chat", m.ChatID),
			logx.Err(err),
		)
	}
}

const helpText = `<b>leaguebot</b> — deadline reminders

/remind &lt;kind&gt; &lt;when&gt; [lead=1h] [label] — schedule a reminder
  kind: submission, voting or combined
  when: 2h30m, 2026-08-30T18:00:00Z or 2026-08-30 18:00
/reminders — upcoming reminders in this chat
/cancel &lt;id&gt; — cancel one
/status — scheduler status`

func (r *Router) cmdRemind(ctx context.Context, m *transport.Message, args []string) error {
	req, err := ParseRemind(args, time.Now())
	if err != nil {
		return r.reply(ctx, m, "⚠️ "+html.EscapeString(err.Error()))
	}

	lead := req.Lead
	if lead <= 0 {
		lead = r.defaultLead
	}
	fireAt := req.Deadline.Add(-lead)
	if !fireAt.After(time.Now()) {
		// Closer than the lead: fire right away rather than rejecting.
		fireAt = time.Now().Add(5 * time.Second)
	}

	rem, err := r.sched.Register(ctx, m.ChatID, m.ThreadID, req.Kind, req.Deadline, fireAt, reminder.Payload{Label: req.Label})
	if err != nil {
		if errors.Is(err, reminder.ErrValidation) {
			return r.reply(ctx, m, "⚠️ "+html.EscapeString(err.Error()))
		}
		_ = r.reply(ctx, m, "⚠️ could not save the reminder, try again")
		return err
	}

	return r.reply(ctx, m, fmt.Sprintf(
		"✅ %s reminder <code>%s</code>\nfires %s (deadline %s)",
		rem.Kind,
		html.EscapeString(rem.ID),
		rem.FireAt.Local().Format("Mon 02 Jan 15:04"),
		rem.Deadline.Local().Format("Mon 02 Jan 15:04"),
	))
}

func (r *Router) cmdList(ctx context.Context, m *transport.Message) error {
	rems, err := r.sched.List(ctx, m.ChatID)
	if err != nil {
		_ = r.reply(ctx, m, "⚠️ could not read reminders")
		return err
	}
	if len(rems) == 0 {
		return r.reply(ctx, m, "No upcoming reminders in this chat.")
	}

	var b strings.Builder
	b.WriteString("<b>Upcoming reminders</b>\n")
	for _, rem := range rems {
		fmt.Fprintf(&b, "• <code>%s</code> %s — fires %s",
			html.EscapeString(rem.ID),
			rem.Kind,
			rem.FireAt.Local().Format("Mon 02 Jan 15:04"),
		)
		if label := strings.TrimSpace(rem.Payload.Label); label != "" {
			b.WriteString(" (" + html.EscapeString(label) + ")")
		}
		b.WriteString("\n")
	}
	return r.reply(ctx, m, strings.TrimRight(b.String(), "\n"))
}

func (r *Router) cmdCancel(ctx context.Context, m *transport.Message, args []string) error {
	if len(args) != 1 {
		return r.reply(ctx, m, "usage: /cancel <id>")
	}
	ok, err := r.sched.Cancel(ctx, m.ChatID, args[0])
	if err != nil {
		_ = r.reply(ctx, m, "⚠️ cancel failed, try again")
		return err
	}
	if !ok {
		return r.reply(ctx, m, fmt.Sprintf("Nothing to cancel: <code>%s</code> is not a live reminder here.", html.EscapeString(args[0])))
	}
	return r.reply(ctx, m, fmt.Sprintf("🗑 cancelled <code>%s</code>", html.EscapeString(args[0])))
}

func (r *Router) cmdStatus(ctx context.Context, m *transport.Message) error {
	r.mu.Lock()
	restored, expired := r.restored, r.expired
	r.mu.Unlock()

	var b strings.Builder
	b.WriteString("<b>Status</b>\n")
	fmt.Fprintf(&b, "armed: %d\n", r.sched.Armed())
	fmt.Fprintf(&b, "recovered at start: %d restored, %d expired\n", restored, expired)
	fmt.Fprintf(&b, "uptime: %s", time.Since(r.startedAt).Round(time.Second))
	if r.stats != nil {
		st := r.stats.Stats()
		fmt.Fprintf(&b, "\nsent: %d, failed: %d, queued: %d, dropped: %d", st.Sent, st.Failed, st.Queued, st.Dropped)
	}
	return r.reply(ctx, m, b.String())
}

func (r *Router) reply(ctx context.Context, m *transport.Message, text string) error {
	to := transport.ChatTarget{ChatID: m.ChatID, ThreadID: m.ThreadID}
	return r.adapter.SendText(ctx, to, text, &transport.SendOptions{ParseMode: "HTML", DisablePreview: true})
}
