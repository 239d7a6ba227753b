package reminder

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"leaguebot/internal/storage"
	logx "leaguebot/pkg/logx"
)

// memStore is an in-memory storage.Store for registry tests.
type memStore struct {
	mu   sync.Mutex
	recs map[string]storage.Record

	failPut bool
}

func newMemStore() *memStore {
	return &memStore{recs: map[string]storage.Record{}}
}

func (s *memStore) Put(ctx context.Context, rec storage.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPut {
		return errors.New("disk full")
	}
	s.recs[rec.ID] = rec
	return nil
}

func (s *memStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.recs, id)
	return nil
}

func (s *memStore) Get(ctx context.Context, id string) (storage.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[id]
	return rec, ok, nil
}

func (s *memStore) ListAll(ctx context.Context) ([]storage.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]storage.Record, 0, len(s.recs))
	for _, rec := range s.recs {
		out = append(out, rec)
	}
	return out, nil
}

func (s *memStore) Close() error { return nil }

func (s *memStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recs)
}

func startedRegistry(t *testing.T, store storage.Store, deliver DeliverFunc) *Registry {
	t.Helper()
	if deliver == nil {
		deliver = func(ctx context.Context, r Reminder) error { return nil }
	}
	reg := NewRegistry(Config{MaxTimerStep: time.Minute}, store, deliver, logx.Nop(), nil)
	if _, err := reg.Startup(context.Background()); err != nil {
		t.Fatalf("startup: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		reg.Stop(ctx)
	})
	return reg
}

func TestRegisterValidation(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	reg := startedRegistry(t, store, nil)
	ctx := context.Background()
	now := time.Now()

	cases := []struct {
		name     string
		kind     Kind
		deadline time.Time
		fireAt   time.Time
		want     error
	}{
		{"past fire time", KindSubmission, now.Add(time.Hour), now.Add(-time.Minute), ErrFireAtPast},
		{"fire time now", KindSubmission, now.Add(time.Hour), now, ErrFireAtPast},
		{"fire after deadline", KindVoting, now.Add(time.Hour), now.Add(2 * time.Hour), ErrFireAfterDue},
		{"unknown kind", Kind("banana"), now.Add(time.Hour), now.Add(time.Minute), ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := reg.Register(ctx, 1, 0, tc.kind, tc.deadline, tc.fireAt, Payload{})
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("err = %v does not wrap ErrValidation", err)
			}
		})
	}
	if store.len() != 0 {
		t.Errorf("store holds %d records after rejected registrations, want 0", store.len())
	}
}

func TestRegisterPersistsBeforeArming(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	reg := startedRegistry(t, store, nil)
	ctx := context.Background()

	store.mu.Lock()
	store.failPut = true
	store.mu.Unlock()
	if _, err := reg.Register(ctx, 1, 0, KindSubmission, time.Time{}, time.Now().Add(time.Hour), Payload{}); err == nil {
		t.Fatal("register succeeded with a failing store")
	}
	if reg.Armed() != 0 {
		t.Errorf("armed = %d after failed put, want 0", reg.Armed())
	}

	store.mu.Lock()
	store.failPut = false
	store.mu.Unlock()
	rem, err := reg.Register(ctx, 1, 0, KindSubmission, time.Time{}, time.Now().Add(time.Hour), Payload{Label: "round 3"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if rem.ID == "" {
		t.Fatal("registered reminder has no id")
	}
	if !rem.Deadline.Equal(rem.FireAt) {
		t.Errorf("zero deadline should default to fireAt; deadline=%v fireAt=%v", rem.Deadline, rem.FireAt)
	}
	if store.len() != 1 {
		t.Errorf("store holds %d records, want 1", store.len())
	}
	if reg.Armed() != 1 {
		t.Errorf("armed = %d, want 1", reg.Armed())
	}
}

func TestCancelScopeAndIdempotence(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	reg := startedRegistry(t, store, nil)
	ctx := context.Background()

	rem, err := reg.Register(ctx, 42, 0, KindVoting, time.Time{}, time.Now().Add(time.Hour), Payload{})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if ok, err := reg.Cancel(ctx, 7, rem.ID); err != nil || ok {
		t.Fatalf("cancel from wrong scope = (%v, %v), want (false, nil)", ok, err)
	}
	if ok, err := reg.Cancel(ctx, 42, rem.ID); err != nil || !ok {
		t.Fatalf("cancel = (%v, %v), want (true, nil)", ok, err)
	}
	if ok, err := reg.Cancel(ctx, 42, rem.ID); err != nil || ok {
		t.Fatalf("second cancel = (%v, %v), want (false, nil)", ok, err)
	}
	if ok, err := reg.Cancel(ctx, 42, "nope"); err != nil || ok {
		t.Fatalf("cancel unknown id = (%v, %v), want (false, nil)", ok, err)
	}
	if store.len() != 0 {
		t.Errorf("store holds %d records after cancel, want 0", store.len())
	}
	if reg.Armed() != 0 {
		t.Errorf("armed = %d after cancel, want 0", reg.Armed())
	}
}

func TestConcurrentCancelExactlyOneWins(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	reg := startedRegistry(t, store, nil)
	ctx := context.Background()

	rem, err := reg.Register(ctx, 1, 0, KindCombined, time.Time{}, time.Now().Add(time.Hour), Payload{})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	const n = 16
	var wins int32
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			ok, err := reg.Cancel(ctx, 1, rem.ID)
			if err != nil {
				t.Errorf("cancel: %v", err)
			}
			if ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("%d concurrent cancels reported success, want exactly 1", wins)
	}
}

func TestListFiltersAndOrders(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	reg := startedRegistry(t, store, nil)
	ctx := context.Background()
	base := time.Now()

	later, err := reg.Register(ctx, 1, 0, KindVoting, time.Time{}, base.Add(2*time.Hour), Payload{})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	sooner, err := reg.Register(ctx, 1, 0, KindSubmission, time.Time{}, base.Add(time.Hour), Payload{})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := reg.Register(ctx, 2, 0, KindSubmission, time.Time{}, base.Add(time.Hour), Payload{}); err != nil {
		t.Fatalf("register other scope: %v", err)
	}

	got, err := reg.List(ctx, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("list returned %d reminders, want 2", len(got))
	}
	if got[0].ID != sooner.ID || got[1].ID != later.ID {
		t.Errorf("list order = [%s %s], want [%s %s]", got[0].ID, got[1].ID, sooner.ID, later.ID)
	}
}

func TestFireDeletesRecordOnce(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	delivered := make(chan Reminder, 1)
	reg := startedRegistry(t, store, func(ctx context.Context, r Reminder) error {
		delivered <- r
		return nil
	})
	ctx := context.Background()

	rem, err := reg.Register(ctx, 9, 3, KindSubmission, time.Now().Add(time.Hour), time.Now().Add(50*time.Millisecond), Payload{Label: "week 1"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	select {
	case got := <-delivered:
		if got.ID != rem.ID || got.Target != 3 || got.Payload.Label != "week 1" {
			t.Fatalf("delivered %+v, want id=%s target=3 label=week 1", got, rem.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("reminder never fired")
	}

	waitFor(t, func() bool { return store.len() == 0 })
	if reg.Armed() != 0 {
		t.Errorf("armed = %d after fire, want 0", reg.Armed())
	}
}

func TestDeliveryErrorStillDeletesRecord(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	reg := startedRegistry(t, store, func(ctx context.Context, r Reminder) error {
		return errors.New("blocked by chat")
	})
	ctx := context.Background()

	if _, err := reg.Register(ctx, 1, 0, KindVoting, time.Time{}, time.Now().Add(50*time.Millisecond), Payload{}); err != nil {
		t.Fatalf("register: %v", err)
	}
	waitFor(t, func() bool { return store.len() == 0 && reg.Armed() == 0 })
}

func TestOnFiredAbsentRecordIsNoop(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	reg := startedRegistry(t, store, nil)

	// A fire that lost the cancel race finds no record; nothing may reappear.
	reg.onFired("gone")
	if store.len() != 0 {
		t.Errorf("store holds %d records, want 0", store.len())
	}
}

func TestRecordRoundTrip(t *testing.T) {
	t.Parallel()

	rem := Reminder{
		ID:       "abcd1234",
		Scope:    -100123,
		Target:   7,
		Kind:     KindCombined,
		Deadline: time.Date(2026, 9, 1, 18, 0, 0, 0, time.UTC),
		FireAt:   time.Date(2026, 8, 31, 18, 0, 0, 0, time.UTC),
		Payload:  Payload{Label: "finale", Link: "https://example.org/r/9"},
	}
	got, err := fromRecord(toRecord(rem))
	if err != nil {
		t.Fatalf("fromRecord: %v", err)
	}
	if got.ID != rem.ID || got.Scope != rem.Scope || got.Target != rem.Target || got.Kind != rem.Kind {
		t.Errorf("round trip mutated identity: %+v", got)
	}
	if !got.Deadline.Equal(rem.Deadline) || !got.FireAt.Equal(rem.FireAt) {
		t.Errorf("round trip mutated times: %+v", got)
	}
	if got.Payload != rem.Payload {
		t.Errorf("round trip mutated payload: %+v", got.Payload)
	}

	bad := toRecord(rem)
	bad.Payload = json.RawMessage(`{not json`)
	if _, err := fromRecord(bad); err == nil {
		t.Error("fromRecord accepted corrupt payload")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}
