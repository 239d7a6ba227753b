package storage

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	logx "leaguebot/pkg/logx"
)

func fileRecord(id string, scope int64) Record {
	return Record{
		ID:       id,
		Scope:    scope,
		Kind:     "submission",
		Deadline: time.Date(2026, 9, 1, 18, 0, 0, 0, time.UTC),
		FireAt:   time.Date(2026, 8, 31, 18, 0, 0, 0, time.UTC),
		Payload:  json.RawMessage(`{"label":"week 1"}`),
	}
}

func TestFileStoreCRUD(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "reminders.db")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer st.Close()
	ctx := context.Background()

	if err := st.Put(ctx, fileRecord("a1", 1)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := st.Put(ctx, fileRecord("b2", 2)); err != nil {
		t.Fatalf("put: %v", err)
	}

	rec, ok, err := st.Get(ctx, "a1")
	if err != nil || !ok {
		t.Fatalf("get = (%v, %v), want found", ok, err)
	}
	if rec.Scope != 1 || rec.Kind != "submission" {
		t.Errorf("get returned %+v", rec)
	}
	if _, ok, _ := st.Get(ctx, "missing"); ok {
		t.Error("get found a record that was never put")
	}

	// Put on an existing id overwrites.
	upd := fileRecord("a1", 1)
	upd.Kind = "voting"
	if err := st.Put(ctx, upd); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	rec, _, _ = st.Get(ctx, "a1")
	if rec.Kind != "voting" {
		t.Errorf("overwrite not applied: %+v", rec)
	}

	if err := st.Delete(ctx, "b2"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := st.Delete(ctx, "b2"); err != nil {
		t.Fatalf("delete absent id: %v", err)
	}

	all, err := st.ListAll(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 || all[0].ID != "a1" {
		t.Fatalf("list = %+v, want just a1", all)
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "reminders.db")
	ctx := context.Background()

	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := st.Put(ctx, fileRecord("keep", 5)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := st.Put(ctx, fileRecord("drop", 5)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := st.Delete(ctx, "drop"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	st2, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st2.Close()

	all, err := st2.ListAll(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 || all[0].ID != "keep" {
		t.Fatalf("after reopen list = %+v, want just keep", all)
	}
	if !all[0].FireAt.Equal(fileRecord("keep", 5).FireAt) {
		t.Errorf("fire time mutated across reopen: %v", all[0].FireAt)
	}
}

func TestFileStoreSkipsCorruptJournalLines(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "reminders.db")
	ctx := context.Background()

	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := st.Put(ctx, fileRecord("good", 1)); err != nil {
		t.Fatalf("put: %v", err)
	}
	fs := st.(*fileStore)
	// Simulate a torn write at the journal tail.
	if _, err := fs.journalFile.WriteString(`{"op":"put","rec":{"id":"to`); err != nil {
		t.Fatalf("corrupt journal: %v", err)
	}
	_ = fs.journalFile.Close()
	fs.journalFile = nil

	st2, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st2.Close()

	all, err := st2.ListAll(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 || all[0].ID != "good" {
		t.Fatalf("list = %+v, want just good", all)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "redis", Path: filepath.Join(t.TempDir(), "x")}, logx.Nop()); err == nil {
		t.Fatal("open accepted an unknown driver")
	}
	if _, err := Open(Config{Driver: "file"}, logx.Nop()); err == nil {
		t.Fatal("file driver accepted empty path")
	}
}
