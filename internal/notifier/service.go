package notifier

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"

	"leaguebot/internal/eventbus"
	"leaguebot/internal/reminder"
	"leaguebot/internal/transport"
	logx "leaguebot/pkg/logx"
)

var (
	ErrDisabled  = errors.New("notifier disabled")
	ErrQueueFull = errors.New("notifier queue full")
	ErrStopped   = errors.New("notifier stopped")
)

type job struct {
	to   transport.ChatTarget
	text string
}

// Service is the delivery side of the scheduler: it formats a fired reminder
// into a message and sends it through the transport adapter, behind a bounded
// queue, a worker pool and a token-bucket rate limit.
//
// A send failure is terminal: logged and published, never retried. One
// reminder's failure never blocks another's delivery.
type Service struct {
	mu sync.Mutex

	log     logx.Logger
	adapter transport.Adapter
	bus     eventbus.Bus

	cfg     Config
	limiter *rate.Limiter

	accepting bool
	sendWG    sync.WaitGroup

	queue  chan job
	stopCh chan struct{}
	wg     sync.WaitGroup

	sent    atomic.Uint64
	failed  atomic.Uint64
	dropped atomic.Uint64
}

func New(cfg Config, adapter transport.Adapter, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{adapter: adapter, log: log, bus: bus}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	s.cfg = cfg
	// Token bucket: burst = rate per sec, so short spikes don't block too hard.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Start is idempotent.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue != nil || !s.cfg.Enabled {
		return
	}

	s.queue = make(chan job, s.cfg.QueueSize)
	s.stopCh = make(chan struct{})
	s.accepting = true

	q := s.queue
	stopCh := s.stopCh
	s.wg.Add(s.cfg.Workers)
	for i := 0; i < s.cfg.Workers; i++ {
		idx := i
		go func() {
			defer s.wg.Done()
			s.workerLoop(ctx, q, stopCh, idx)
		}()
	}
	s.log.Info("notifier started", logx.Int("workers", s.cfg.Workers), logx.Int("rate_per_sec", s.cfg.RatePerSec))
}

// Stop blocks intake and drains queued sends best-effort until ctx expires.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	q := s.queue
	stopCh := s.stopCh
	s.accepting = false
	s.queue = nil
	s.stopCh = nil
	s.mu.Unlock()
	if q == nil {
		return
	}

	// Wait for in-flight Deliver calls before closing so nobody sends on a
	// closed channel; workers then drain the remainder.
	s.sendWG.Wait()
	close(q)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		close(stopCh)
		<-done
	}
	s.log.Info("notifier stopped")
}

// Deliver is the scheduler's delivery callback. It formats r and enqueues it
// for sending; the scheduler treats any outcome as terminal.
func (s *Service) Deliver(ctx context.Context, r reminder.Reminder) error {
	if ctx != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}

	s.mu.Lock()
	if !s.cfg.Enabled {
		s.mu.Unlock()
		return ErrDisabled
	}
	if !s.accepting || s.queue == nil {
		s.mu.Unlock()
		return ErrStopped
	}
	q := s.queue
	s.sendWG.Add(1)
	s.mu.Unlock()
	defer s.sendWG.Done()

	j := job{
		to:   transport.ChatTarget{ChatID: r.Scope, ThreadID: r.Target},
		text: FormatReminder(r),
	}
	select {
	case q <- j:
		return nil
	default:
		s.dropped.Add(1)
		return ErrQueueFull
	}
}

func (s *Service) workerLoop(ctx context.Context, q <-chan job, stopCh <-chan struct{}, idx int) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case j, ok := <-q:
			if !ok {
				return
			}
			s.sendOne(ctx, j, idx)
		}
	}
}

func (s *Service) sendOne(ctx context.Context, j job, idx int) {
	s.mu.Lock()
	lim := s.limiter
	s.mu.Unlock()
	if lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return
		}
	}

	err := s.adapter.SendText(ctx, j.to, j.text, &transport.SendOptions{ParseMode: "HTML", DisablePreview: true})
	if err != nil {
		s.failed.Add(1)
		s.log.Warn("send failed",
			logx.Int64("chat", j.to.ChatID),
			logx.Int("worker", idx),
			logx.Err(err),
		)
		if s.bus != nil {
			s.bus.Publish(eventbus.Event{Type: eventbus.TypeDeliveryFailed, Data: reminder.FireEvent{Scope: j.to.ChatID, Error: err.Error()}})
		}
		return
	}
	s.sent.Add(1)
}

func (s *Service) Stats() Stats {
	s.mu.Lock()
	q := s.queue
	s.mu.Unlock()
	st := Stats{
		Sent:    s.sent.Load(),
		Failed:  s.failed.Load(),
		Dropped: s.dropped.Load(),
	}
	if q != nil {
		st.Queued = len(q)
	}
	return st
}
