package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "leaguebot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Put(ctx context.Context, rec Record) error {
	if strings.TrimSpace(rec.ID) == "" {
		return errors.New("record id is required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reminders(id, scope, target, kind, deadline, fire_at, payload)
		 VALUES(?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   scope=excluded.scope, target=excluded.target, kind=excluded.kind,
		   deadline=excluded.deadline, fire_at=excluded.fire_at, payload=excluded.payload`,
		rec.ID, rec.Scope, rec.Target, rec.Kind,
		rec.Deadline.UTC().Format(time.RFC3339Nano),
		rec.FireAt.UTC().Format(time.RFC3339Nano),
		nullStr(string(rec.Payload)),
	)
	return err
}

func (s *sqliteStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM reminders WHERE id = ?`, id)
	return err
}

func (s *sqliteStore) Get(ctx context.Context, id string) (Record, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, scope, target, kind, deadline, fire_at, payload FROM reminders WHERE id = ?`, id)
	rec, err := scanRecord(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

func (s *sqliteStore) ListAll(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, scope, target, kind, deadline, fire_at, payload FROM reminders ORDER BY fire_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows.Scan)
		if err != nil {
			// One bad row never hides the rest; recovery skips it.
			s.log.Warn("skipping unreadable reminder row", logx.Err(err))
			continue
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanRecord(scan func(dest ...any) error) (Record, error) {
	var rec Record
	var deadline, fireAt string
	var payload sql.NullString
	if err := scan(&rec.ID, &rec.Scope, &rec.Target, &rec.Kind, &deadline, &fireAt, &payload); err != nil {
		return Record{}, err
	}
	var err error
	if rec.Deadline, err = time.Parse(time.RFC3339Nano, deadline); err != nil {
		return Record{}, fmt.Errorf("row %s: bad deadline: %w", rec.ID, err)
	}
	if rec.FireAt, err = time.Parse(time.RFC3339Nano, fireAt); err != nil {
		return Record{}, fmt.Errorf("row %s: bad fire_at: %w", rec.ID, err)
	}
	if payload.Valid {
		rec.Payload = []byte(payload.String)
	}
	return rec, nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
