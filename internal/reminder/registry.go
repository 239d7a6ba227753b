package reminder

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"leaguebot/internal/eventbus"
	"leaguebot/internal/storage"
	logx "leaguebot/pkg/logx"
)

// Config controls the scheduling core.
type Config struct {
	// MaxTimerStep bounds a single low-level timer; longer waits are chained.
	MaxTimerStep time.Duration
	// DeliverTimeout bounds one delivery callback invocation.
	DeliverTimeout time.Duration
}

// Registry owns reminder lifecycle: it assigns ids, persists records, arms
// the timing engine and finalizes fired/cancelled reminders.
//
// The registry mutex is the single mutual-exclusion boundary around record
// deletion plus timer-handle clearing; cancel and a racing fire resolve
// first-writer-wins on record deletion.
type Registry struct {
	log   logx.Logger
	bus   eventbus.Bus
	store storage.Store
	eng   *engine

	mu    sync.Mutex
	ready bool
}

func NewRegistry(cfg Config, store storage.Store, deliver DeliverFunc, log logx.Logger, bus eventbus.Bus) *Registry {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Registry{log: log, bus: bus, store: store}
	r.eng = newEngine(cfg.MaxTimerStep, cfg.DeliverTimeout, deliver, r.onFired, log, bus)
	return r
}

// Register persists a new reminder and arms it. fireAt must be strictly in
// the future and not after the deadline; a zero deadline defaults to fireAt.
func (r *Registry) Register(ctx context.Context, scope int64, target int, kind Kind, deadline, fireAt time.Time, payload Payload) (Reminder, error) {
	if _, err := ParseKind(string(kind)); err != nil {
		return Reminder{}, err
	}
	if !fireAt.After(time.Now()) {
		return Reminder{}, ErrFireAtPast
	}
	if deadline.IsZero() {
		deadline = fireAt
	}
	if fireAt.After(deadline) {
		return Reminder{}, ErrFireAfterDue
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.ready {
		return Reminder{}, ErrNotStarted
	}

	rem := Reminder{
		ID:       NewID(),
		Scope:    scope,
		Target:   target,
		Kind:     kind,
		Deadline: deadline,
		FireAt:   fireAt,
		Payload:  payload,
	}
	if err := r.store.Put(ctx, toRecord(rem)); err != nil {
		return Reminder{}, fmt.Errorf("store put: %w", err)
	}
	if err := r.eng.arm(rem); err != nil {
		// fireAt slipped into the past between validation and arming.
		// Roll the record back so the store only holds live reminders.
		_ = r.store.Delete(ctx, rem.ID)
		return Reminder{}, ErrFireAtPast
	}

	if r.bus != nil {
		r.bus.Publish(eventbus.Event{Type: eventbus.TypeReminderRegistered, Data: FireEvent{ID: rem.ID, Scope: rem.Scope, Kind: string(rem.Kind)}})
	}
	r.log.Debug("reminder registered",
		logx.String("id", rem.ID),
		logx.Int64("scope", rem.Scope),
		logx.String("kind", string(rem.Kind)),
		logx.Time("fire_at", rem.FireAt),
	)
	return rem, nil
}

// Cancel disarms and deletes a live reminder within scope. Cancelling an
// unknown id is not exceptional: it returns (false, nil). Delivery may still
// occur briefly if a fire chain already entered its terminal step.
func (r *Registry) Cancel(ctx context.Context, scope int64, id string) (bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return false, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.ready {
		return false, ErrNotStarted
	}

	rec, ok, err := r.store.Get(ctx, id)
	if err != nil {
		return false, fmt.Errorf("store get: %w", err)
	}
	if !ok || rec.Scope != scope {
		return false, nil
	}

	r.eng.disarm(id)
	if err := r.store.Delete(ctx, id); err != nil {
		return false, fmt.Errorf("store delete: %w", err)
	}

	if r.bus != nil {
		r.bus.Publish(eventbus.Event{Type: eventbus.TypeReminderCancelled, Data: FireEvent{ID: id, Scope: scope, Kind: rec.Kind}})
	}
	r.log.Debug("reminder cancelled", logx.String("id", id), logx.Int64("scope", scope))
	return true, nil
}

// List returns the live reminders for scope whose fire time is still in the
// future, ascending by fire time (ties broken by id for stable listings).
func (r *Registry) List(ctx context.Context, scope int64) ([]Reminder, error) {
	r.mu.Lock()
	ready := r.ready
	r.mu.Unlock()
	if !ready {
		return nil, ErrNotStarted
	}

	recs, err := r.store.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("store list: %w", err)
	}

	now := time.Now()
	out := make([]Reminder, 0, len(recs))
	for _, rec := range recs {
		if rec.Scope != scope {
			continue
		}
		rem, err := fromRecord(rec)
		if err != nil {
			r.log.Warn("skipping unreadable reminder record", logx.String("id", rec.ID), logx.Err(err))
			continue
		}
		if !rem.FireAt.After(now) {
			continue
		}
		out = append(out, rem)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].FireAt.Equal(out[j].FireAt) {
			return out[i].FireAt.Before(out[j].FireAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Armed reports the number of live timing tasks (operational signal).
func (r *Registry) Armed() int { return r.eng.armed() }

// Stop tears down all timing tasks without touching the store; the next
// Startup re-arms whatever is still live.
func (r *Registry) Stop(ctx context.Context) {
	r.eng.shutdown(ctx)
	r.mu.Lock()
	r.ready = false
	r.mu.Unlock()
}

// onFired finalizes a reminder after its delivery attempt (success or
// failure). Idempotent: if cancellation already deleted the record this is a
// no-op, so a fire that lost the race cannot resurrect anything.
func (r *Registry) onFired(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok, err := r.store.Get(ctx, id)
	if err != nil {
		r.log.Error("fired reminder lookup failed", logx.String("id", id), logx.Err(err))
		return
	}
	if !ok {
		return
	}
	if err := r.store.Delete(ctx, id); err != nil {
		r.log.Error("fired reminder delete failed", logx.String("id", id), logx.Err(err))
		return
	}
	if r.bus != nil {
		r.bus.Publish(eventbus.Event{Type: eventbus.TypeReminderFired, Data: FireEvent{ID: id, Scope: rec.Scope, Kind: rec.Kind}})
	}
	r.log.Info("reminder fired", logx.String("id", id), logx.Int64("scope", rec.Scope), logx.String("kind", rec.Kind))
}

// ---- record conversion ----

func toRecord(rem Reminder) storage.Record {
	payload, _ := json.Marshal(rem.Payload)
	return storage.Record{
		ID:       rem.ID,
		Scope:    rem.Scope,
		Target:   rem.Target,
		Kind:     string(rem.Kind),
		Deadline: rem.Deadline,
		FireAt:   rem.FireAt,
		Payload:  payload,
	}
}

func fromRecord(rec storage.Record) (Reminder, error) {
	if strings.TrimSpace(rec.ID) == "" {
		return Reminder{}, fmt.Errorf("record has no id")
	}
	if rec.FireAt.IsZero() {
		return Reminder{}, fmt.Errorf("record %s has no fire time", rec.ID)
	}
	kind, err := ParseKind(rec.Kind)
	if err != nil {
		return Reminder{}, fmt.Errorf("record %s: %w", rec.ID, err)
	}
	var payload Payload
	if len(rec.Payload) > 0 {
		if err := json.Unmarshal(rec.Payload, &payload); err != nil {
			return Reminder{}, fmt.Errorf("record %s payload: %w", rec.ID, err)
		}
	}
	return Reminder{
		ID:       rec.ID,
		Scope:    rec.Scope,
		Target:   rec.Target,
		Kind:     kind,
		Deadline: rec.Deadline,
		FireAt:   rec.FireAt,
		Payload:  payload,
	}, nil
}
