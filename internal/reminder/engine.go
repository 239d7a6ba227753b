package reminder

import (
	"context"
	"sync"
	"time"

	"leaguebot/internal/eventbus"
	logx "leaguebot/pkg/logx"
)

const (
	defaultMaxStep        = 24 * time.Hour
	defaultDeliverTimeout = 30 * time.Second
)

// engine turns each armed reminder into one cancellable timing task.
//
// Each task sleeps toward its fire time in hops bounded by maxStep,
// recomputing the remaining delay after every hop. On fire it clears its own
// handle, invokes deliver, then calls onFired unconditionally. Disarm cancels
// the task's context; a task already past its last hop may still deliver.
type engine struct {
	log     logx.Logger
	bus     eventbus.Bus
	deliver DeliverFunc
	onFired func(id string)

	maxStep        time.Duration
	deliverTimeout time.Duration

	mu    sync.Mutex
	tasks map[string]*chainTask
	wg    sync.WaitGroup

	// hopHook observes each chaining hop with the remaining delay. Tests only.
	hopHook func(id string, remaining time.Duration)
}

type chainTask struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func newEngine(maxStep, deliverTimeout time.Duration, deliver DeliverFunc, onFired func(string), log logx.Logger, bus eventbus.Bus) *engine {
	if maxStep <= 0 {
		maxStep = defaultMaxStep
	}
	if deliverTimeout <= 0 {
		deliverTimeout = defaultDeliverTimeout
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &engine{
		log:            log,
		bus:            bus,
		deliver:        deliver,
		onFired:        onFired,
		maxStep:        maxStep,
		deliverTimeout: deliverTimeout,
		tasks:          map[string]*chainTask{},
	}
}

// arm attaches a timing task to r. It rejects a fire time already due
// (callers decide whether that is a validation failure or a recovery expiry)
// and duplicate arming for a live id.
func (e *engine) arm(r Reminder) error {
	if !time.Now().Before(r.FireAt) {
		return errNothingToChain
	}

	e.mu.Lock()
	if _, ok := e.tasks[r.ID]; ok {
		e.mu.Unlock()
		return errAlreadyArmed
	}
	ctx, cancel := context.WithCancel(context.Background())
	t := &chainTask{cancel: cancel, done: make(chan struct{})}
	e.tasks[r.ID] = t
	e.wg.Add(1)
	e.mu.Unlock()

	go e.run(ctx, r, t)
	return nil
}

// disarm cancels the task for id, if any. Best-effort: a task already in its
// terminal fire step completes delivery regardless.
func (e *engine) disarm(id string) bool {
	e.mu.Lock()
	t, ok := e.tasks[id]
	if ok {
		delete(e.tasks, id)
	}
	e.mu.Unlock()
	if !ok {
		return false
	}
	t.cancel()
	return true
}

// armed reports the number of live timing tasks.
func (e *engine) armed() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.tasks)
}

// shutdown cancels all tasks and waits for them to exit or ctx to expire.
// Records stay in the store; the next Startup re-arms them.
func (e *engine) shutdown(ctx context.Context) {
	e.mu.Lock()
	for id, t := range e.tasks {
		delete(e.tasks, id)
		t.cancel()
	}
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (e *engine) run(ctx context.Context, r Reminder, t *chainTask) {
	defer e.wg.Done()
	defer close(t.done)

	if !e.wait(ctx, r) {
		// Cancelled or shutting down. Drop the handle if it is still ours;
		// disarm usually removed it already.
		e.mu.Lock()
		if e.tasks[r.ID] == t {
			delete(e.tasks, r.ID)
		}
		e.mu.Unlock()
		return
	}

	// Terminal fire step: clear our handle first so a racing disarm becomes a
	// no-op, then deliver. From here on the fire completes unconditionally.
	e.mu.Lock()
	if e.tasks[r.ID] == t {
		delete(e.tasks, r.ID)
	}
	e.mu.Unlock()

	dctx, cancel := context.WithTimeout(context.Background(), e.deliverTimeout)
	err := e.deliver(dctx, r)
	cancel()
	if err != nil {
		// Delivery failure is reported, never retried; the record is still
		// finalized below so it cannot fire again.
		e.log.Error("delivery failed",
			logx.String("id", r.ID),
			logx.Int64("scope", r.Scope),
			logx.String("kind", string(r.Kind)),
			logx.Err(err),
		)
		if e.bus != nil {
			e.bus.Publish(eventbus.Event{Type: eventbus.TypeDeliveryFailed, Data: FireEvent{ID: r.ID, Scope: r.Scope, Kind: string(r.Kind), Error: err.Error()}})
		}
	}

	e.onFired(r.ID)
}

// wait sleeps toward r.FireAt in hops of at most maxStep. It returns true
// when the fire time has arrived, false when ctx was cancelled first.
func (e *engine) wait(ctx context.Context, r Reminder) bool {
	for {
		remaining := time.Until(r.FireAt)
		if remaining <= 0 {
			return true
		}
		if e.hopHook != nil {
			e.hopHook(r.ID, remaining)
		}
		step := remaining
		if step > e.maxStep {
			step = e.maxStep
		}
		timer := time.NewTimer(step)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
	}
}

// FireEvent is emitted on the event bus for fire/cancel/expiry lifecycle
// events. Keep it small; subscribers may log or serialize it.
type FireEvent struct {
	ID    string `json:"id"`
	Scope int64  `json:"scope"`
	Kind  string `json:"kind,omitempty"`
	Error string `json:"error,omitempty"`
}
