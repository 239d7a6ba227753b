package router

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"leaguebot/internal/notifier"
	"leaguebot/internal/reminder"
	"leaguebot/internal/transport"
	logx "leaguebot/pkg/logx"
)

type fakeAdapter struct {
	mu   sync.Mutex
	sent []string
}

func (a *fakeAdapter) Start(ctx context.Context, out chan<- transport.Update) error { return nil }
func (a *fakeAdapter) Stop(ctx context.Context) error                               { return nil }

func (a *fakeAdapter) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) error {
	a.mu.Lock()
	a.sent = append(a.sent, text)
	a.mu.Unlock()
	return nil
}

func (a *fakeAdapter) last(t *testing.T) string {
	t.Helper()
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.sent) == 0 {
		t.Fatal("no reply was sent")
	}
	return a.sent[len(a.sent)-1]
}

type fakeSched struct {
	mu        sync.Mutex
	rems      []reminder.Reminder
	cancelled []string
}

func (s *fakeSched) Register(ctx context.Context, scope int64, target int, kind reminder.Kind, deadline, fireAt time.Time, payload reminder.Payload) (reminder.Reminder, error) {
	if !fireAt.After(time.Now()) {
		return reminder.Reminder{}, reminder.ErrFireAtPast
	}
	r := reminder.Reminder{
		ID: "deadbeef", Scope: scope, Target: target, Kind: kind,
		Deadline: deadline, FireAt: fireAt, Payload: payload,
	}
	s.mu.Lock()
	s.rems = append(s.rems, r)
	s.mu.Unlock()
	return r, nil
}

func (s *fakeSched) Cancel(ctx context.Context, scope int64, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.rems {
		if r.ID == id && r.Scope == scope {
			s.rems = append(s.rems[:i], s.rems[i+1:]...)
			s.cancelled = append(s.cancelled, id)
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeSched) List(ctx context.Context, scope int64) ([]reminder.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []reminder.Reminder
	for _, r := range s.rems {
		if r.Scope == scope {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeSched) Armed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rems)
}

func msgUpdate(chatID int64, text string) transport.Update {
	return transport.Update{Message: &transport.Message{ID: 1, ChatID: chatID, FromID: 7, Text: text}}
}

func TestRemindCommandRegisters(t *testing.T) {
	t.Parallel()

	ad := &fakeAdapter{}
	sched := &fakeSched{}
	r := New(ad, sched, nil, time.Hour, logx.Nop())
	ctx := context.Background()

	r.HandleUpdate(ctx, msgUpdate(-100, "/remind voting 48h lead=2h week 5"))

	if sched.Armed() != 1 {
		t.Fatalf("armed = %d, want 1", sched.Armed())
	}
	sched.mu.Lock()
	got := sched.rems[0]
	sched.mu.Unlock()
	if got.Scope != -100 || got.Kind != reminder.KindVoting || got.Payload.Label != "week 5" {
		t.Errorf("registered %+v", got)
	}
	if want := got.Deadline.Add(-2 * time.Hour); !got.FireAt.Equal(want) {
		t.Errorf("fireAt = %v, want deadline-2h (%v)", got.FireAt, want)
	}
	if !strings.Contains(ad.last(t), "deadbeef") {
		t.Errorf("reply does not mention the id: %s", ad.last(t))
	}
}

func TestRemindCommandRejectsBadInput(t *testing.T) {
	t.Parallel()

	ad := &fakeAdapter{}
	sched := &fakeSched{}
	r := New(ad, sched, nil, time.Hour, logx.Nop())

	r.HandleUpdate(context.Background(), msgUpdate(-100, "/remind lunch 2h"))
	if sched.Armed() != 0 {
		t.Fatalf("armed = %d after bad kind, want 0", sched.Armed())
	}
	if !strings.Contains(ad.last(t), "unknown kind") {
		t.Errorf("reply = %s", ad.last(t))
	}
}

func TestCancelCommand(t *testing.T) {
	t.Parallel()

	ad := &fakeAdapter{}
	sched := &fakeSched{}
	r := New(ad, sched, nil, time.Hour, logx.Nop())
	ctx := context.Background()

	r.HandleUpdate(ctx, msgUpdate(-100, "/remind submission 48h"))
	r.HandleUpdate(ctx, msgUpdate(-100, "/cancel deadbeef"))
	if sched.Armed() != 0 {
		t.Fatalf("armed = %d after cancel, want 0", sched.Armed())
	}
	if !strings.Contains(ad.last(t), "cancelled") {
		t.Errorf("reply = %s", ad.last(t))
	}

	r.HandleUpdate(ctx, msgUpdate(-100, "/cancel deadbeef"))
	if !strings.Contains(ad.last(t), "Nothing to cancel") {
		t.Errorf("reply = %s", ad.last(t))
	}
}

func TestCancelRespectsScope(t *testing.T) {
	t.Parallel()

	ad := &fakeAdapter{}
	sched := &fakeSched{}
	r := New(ad, sched, nil, time.Hour, logx.Nop())
	ctx := context.Background()

	r.HandleUpdate(ctx, msgUpdate(-100, "/remind submission 48h"))
	// Same id from another chat must not cancel it.
	r.HandleUpdate(ctx, msgUpdate(-200, "/cancel deadbeef"))
	if sched.Armed() != 1 {
		t.Fatalf("armed = %d, want 1 (cross-scope cancel must fail)", sched.Armed())
	}
}

func TestListCommand(t *testing.T) {
	t.Parallel()

	ad := &fakeAdapter{}
	sched := &fakeSched{}
	r := New(ad, sched, nil, time.Hour, logx.Nop())
	ctx := context.Background()

	r.HandleUpdate(ctx, msgUpdate(-100, "/reminders"))
	if !strings.Contains(ad.last(t), "No upcoming reminders") {
		t.Errorf("reply = %s", ad.last(t))
	}

	r.HandleUpdate(ctx, msgUpdate(-100, "/remind voting 48h week 9"))
	r.HandleUpdate(ctx, msgUpdate(-100, "/reminders"))
	reply := ad.last(t)
	if !strings.Contains(reply, "deadbeef") || !strings.Contains(reply, "week 9") {
		t.Errorf("reply = %s", reply)
	}
}

type fakeStats struct{ st notifier.Stats }

func (f fakeStats) Stats() notifier.Stats { return f.st }

func TestStatusCommand(t *testing.T) {
	t.Parallel()

	ad := &fakeAdapter{}
	sched := &fakeSched{}
	r := New(ad, sched, fakeStats{notifier.Stats{Sent: 4, Failed: 1}}, time.Hour, logx.Nop())
	r.SetStartupReport(2, 1)
	ctx := context.Background()

	r.HandleUpdate(ctx, msgUpdate(-100, "/remind voting 48h"))
	r.HandleUpdate(ctx, msgUpdate(-100, "/status"))

	reply := ad.last(t)
	for _, want := range []string{"armed: 1", "2 restored, 1 expired", "sent: 4", "failed: 1"} {
		if !strings.Contains(reply, want) {
			t.Errorf("status missing %q:\n%s", want, reply)
		}
	}
}

func TestPlainChatIsIgnored(t *testing.T) {
	t.Parallel()

	ad := &fakeAdapter{}
	r := New(ad, &fakeSched{}, nil, time.Hour, logx.Nop())

	r.HandleUpdate(context.Background(), msgUpdate(-100, "when is the deadline?"))
	r.HandleUpdate(context.Background(), msgUpdate(-100, "/unknowncommand"))
	r.HandleUpdate(context.Background(), transport.Update{})

	ad.mu.Lock()
	defer ad.mu.Unlock()
	if len(ad.sent) != 0 {
		t.Fatalf("replies sent to non-commands: %v", ad.sent)
	}
}
