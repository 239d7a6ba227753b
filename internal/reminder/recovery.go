package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"leaguebot/internal/eventbus"
	logx "leaguebot/pkg/logx"
)

// RecoveryReport counts what the startup pass did with stored records.
type RecoveryReport struct {
	Restored int `json:"restored"`
	Expired  int `json:"expired"`
}

// Startup runs the recovery pass exactly once, synchronously, and must
// complete before Register/Cancel/List accept calls.
//
// Every stored record is either re-armed (fire time still future), expired
// (fire time already passed while no process was alive to fire it; deleted
// silently, no delivery) or skipped (unparseable; logged, never aborts the
// rest of the pass). Total store unavailability is the only fatal outcome.
func (r *Registry) Startup(ctx context.Context) (RecoveryReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ready {
		return RecoveryReport{}, ErrAlreadyStarted
	}

	recs, err := r.store.ListAll(ctx)
	if err != nil {
		return RecoveryReport{}, fmt.Errorf("recovery list: %w", err)
	}

	var rep RecoveryReport
	now := time.Now()
	for _, rec := range recs {
		rem, err := fromRecord(rec)
		if err != nil {
			r.log.Warn("skipping corrupt reminder record", logx.String("id", rec.ID), logx.Err(err))
			continue
		}
		if !rem.FireAt.After(now) {
			if err := r.expireLocked(ctx, rem); err != nil {
				r.log.Warn("expiring overdue reminder failed", logx.String("id", rem.ID), logx.Err(err))
				continue
			}
			rep.Expired++
			continue
		}
		if err := r.eng.arm(rem); err != nil {
			if errors.Is(err, errNothingToChain) {
				// Became due between the cutoff and arming; same policy.
				if derr := r.expireLocked(ctx, rem); derr != nil {
					r.log.Warn("expiring overdue reminder failed", logx.String("id", rem.ID), logx.Err(derr))
					continue
				}
				rep.Expired++
				continue
			}
			r.log.Warn("re-arming reminder failed", logx.String("id", rem.ID), logx.Err(err))
			continue
		}
		rep.Restored++
	}

	r.ready = true
	r.log.Info("recovery complete",
		logx.Int("restored", rep.Restored),
		logx.Int("expired", rep.Expired),
	)
	return rep, nil
}

// expireLocked deletes an overdue record without delivery. Call with r.mu held.
func (r *Registry) expireLocked(ctx context.Context, rem Reminder) error {
	if err := r.store.Delete(ctx, rem.ID); err != nil {
		return err
	}
	if r.bus != nil {
		r.bus.Publish(eventbus.Event{Type: eventbus.TypeReminderExpired, Data: FireEvent{ID: rem.ID, Scope: rem.Scope, Kind: string(rem.Kind)}})
	}
	return nil
}
