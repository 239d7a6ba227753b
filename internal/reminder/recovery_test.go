package reminder

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	logx "leaguebot/pkg/logx"
)

func TestStartupRestoresAndExpires(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	ctx := context.Background()

	future := testReminder("future01", time.Now().Add(time.Hour))
	past := testReminder("overdue1", time.Now().Add(-time.Hour))
	if err := store.Put(ctx, toRecord(future)); err != nil {
		t.Fatal(err)
	}
	if err := store.Put(ctx, toRecord(past)); err != nil {
		t.Fatal(err)
	}
	// A record with an unknown kind must be skipped, not abort the pass.
	corrupt := toRecord(testReminder("corrupt1", time.Now().Add(time.Hour)))
	corrupt.Kind = "lunch"
	if err := store.Put(ctx, corrupt); err != nil {
		t.Fatal(err)
	}

	var delivered int32
	reg := NewRegistry(Config{MaxTimerStep: time.Minute}, store,
		func(ctx context.Context, r Reminder) error {
			atomic.AddInt32(&delivered, 1)
			return nil
		}, logx.Nop(), nil)

	rep, err := reg.Startup(ctx)
	if err != nil {
		t.Fatalf("startup: %v", err)
	}
	defer reg.Stop(ctx)

	if rep.Restored != 1 || rep.Expired != 1 {
		t.Fatalf("report = %+v, want {Restored:1 Expired:1}", rep)
	}
	if reg.Armed() != 1 {
		t.Errorf("armed = %d, want 1", reg.Armed())
	}

	// The overdue record is gone; expiry is silent.
	if _, ok, _ := store.Get(ctx, past.ID); ok {
		t.Error("overdue record survived recovery")
	}
	if got := atomic.LoadInt32(&delivered); got != 0 {
		t.Errorf("expiry delivered %d messages, want 0", got)
	}

	// The skipped record stays for offline inspection.
	if _, ok, _ := store.Get(ctx, corrupt.ID); !ok {
		t.Error("corrupt record was deleted during recovery")
	}
	if _, ok, _ := store.Get(ctx, future.ID); !ok {
		t.Error("future record missing after recovery")
	}
}

func TestStartupTwiceFails(t *testing.T) {
	t.Parallel()

	reg := startedRegistry(t, newMemStore(), nil)
	if _, err := reg.Startup(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("second startup = %v, want ErrAlreadyStarted", err)
	}
}

func TestOperationsBeforeStartup(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(Config{}, newMemStore(),
		func(ctx context.Context, r Reminder) error { return nil }, logx.Nop(), nil)
	ctx := context.Background()

	if _, err := reg.Register(ctx, 1, 0, KindSubmission, time.Time{}, time.Now().Add(time.Hour), Payload{}); !errors.Is(err, ErrNotStarted) {
		t.Errorf("register = %v, want ErrNotStarted", err)
	}
	if _, err := reg.Cancel(ctx, 1, "x"); !errors.Is(err, ErrNotStarted) {
		t.Errorf("cancel = %v, want ErrNotStarted", err)
	}
	if _, err := reg.List(ctx, 1); !errors.Is(err, ErrNotStarted) {
		t.Errorf("list = %v, want ErrNotStarted", err)
	}
}

func TestStopThenStartupReArms(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	ctx := context.Background()

	reg := startedRegistry(t, store, nil)
	if _, err := reg.Register(ctx, 1, 0, KindSubmission, time.Time{}, time.Now().Add(time.Hour), Payload{}); err != nil {
		t.Fatalf("register: %v", err)
	}
	reg.Stop(ctx)
	if reg.Armed() != 0 {
		t.Fatalf("armed = %d after stop, want 0", reg.Armed())
	}
	// Stop leaves the record in place for the next process.
	if store.len() != 1 {
		t.Fatalf("store holds %d records after stop, want 1", store.len())
	}

	reg2 := NewRegistry(Config{MaxTimerStep: time.Minute}, store,
		func(ctx context.Context, r Reminder) error { return nil }, logx.Nop(), nil)
	rep, err := reg2.Startup(ctx)
	if err != nil {
		t.Fatalf("second startup: %v", err)
	}
	defer reg2.Stop(ctx)
	if rep.Restored != 1 || rep.Expired != 0 {
		t.Fatalf("report = %+v, want {Restored:1 Expired:0}", rep)
	}
}
