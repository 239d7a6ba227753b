package storage

import (
	"context"
	"encoding/json"
	"time"
)

// Record is the stored shape of a reminder. Payload is opaque JSON the store
// never inspects.
//
// Keep it compact and schema-stable.
type Record struct {
	ID       string          `json:"id"`
	Scope    int64           `json:"scope"`
	Target   int             `json:"target"`
	Kind     string          `json:"kind"`
	Deadline time.Time       `json:"deadline"`
	FireAt   time.Time       `json:"fire_at"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// Store is the persistence API used by the scheduler core.
//
// Writes are atomic at record level: interleaved reads never observe a
// half-applied record. A single process owns the store; concurrent writers
// from separate processes are out of contract.
type Store interface {
	Put(ctx context.Context, rec Record) error
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (Record, bool, error)
	ListAll(ctx context.Context) ([]Record, error)
	Close() error
}

// Config configures storage.
//
// Driver values:
//   - "sqlite" (or empty): SQLite database file
//   - "file": dependency-free file backend (jsonl journal + snapshot)
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}
