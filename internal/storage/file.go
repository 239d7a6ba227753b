package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "leaguebot/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.snapshot.json (periodic snapshot: id -> record)
//   - <prefix>.journal.jsonl (append-only put/del journal)
//
// Every mutation appends one journal line (a single write, atomic at record
// level); the journal is periodically compacted into the snapshot. Corrupt
// journal lines are skipped on load so one torn write never poisons the rest.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	snapshotPath string
	journalFile  *os.File
	recs         map[string]Record

	writes int
}

type journalOp struct {
	Op  string  `json:"op"` // "put" | "del"
	ID  string  `json:"id,omitempty"`
	Rec *Record `json:"rec,omitempty"`
}

const compactEvery = 1000

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	snapPath := prefix + ".snapshot.json"
	journalPath := prefix + ".journal.jsonl"

	recs := map[string]Record{}
	_ = loadSnapshot(snapPath, recs)
	skipped := replayJournal(journalPath, recs)
	if skipped > 0 {
		log.Warn("skipped corrupt journal lines", logx.Int("lines", skipped), logx.String("path", journalPath))
	}

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}

	return &fileStore{
		log:          log,
		snapshotPath: snapPath,
		journalFile:  jf,
		recs:         recs,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return nil
	}
	// Compact on close so the next open replays a short journal.
	_ = s.compactLocked()
	err := s.journalFile.Close()
	s.journalFile = nil
	return err
}

func (s *fileStore) Put(ctx context.Context, rec Record) error {
	_ = ctx
	if strings.TrimSpace(rec.ID) == "" {
		return errors.New("record id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return errors.New("store closed")
	}

	if err := json.NewEncoder(s.journalFile).Encode(journalOp{Op: "put", Rec: &rec}); err != nil {
		return err
	}
	s.recs[rec.ID] = rec
	s.noteWriteLocked()
	return nil
}

func (s *fileStore) Delete(ctx context.Context, id string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return errors.New("store closed")
	}
	if _, ok := s.recs[id]; !ok {
		return nil
	}

	if err := json.NewEncoder(s.journalFile).Encode(journalOp{Op: "del", ID: id}); err != nil {
		return err
	}
	delete(s.recs, id)
	s.noteWriteLocked()
	return nil
}

func (s *fileStore) Get(ctx context.Context, id string) (Record, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[id]
	return rec, ok, nil
}

func (s *fileStore) ListAll(ctx context.Context) ([]Record, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, 0, len(s.recs))
	for _, rec := range s.recs {
		out = append(out, rec)
	}
	return out, nil
}

func (s *fileStore) noteWriteLocked() {
	s.writes++
	if s.writes%compactEvery == 0 {
		if err := s.compactLocked(); err != nil {
			s.log.Debug("journal compact failed", logx.Err(err))
		}
	}
}

func (s *fileStore) compactLocked() error {
	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(s.recs); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	// Truncate journal; everything live is in the snapshot now.
	if err := s.journalFile.Truncate(0); err != nil {
		return err
	}
	_, err = s.journalFile.Seek(0, 2)
	return err
}

func loadSnapshot(path string, out map[string]Record) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var m map[string]Record
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return err
	}
	for k, v := range m {
		out[k] = v
	}
	return nil
}

// replayJournal applies journal ops onto out and returns the number of
// skipped (unparseable) lines.
func replayJournal(path string, out map[string]Record) int {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()

	skipped := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var op journalOp
		if err := json.Unmarshal([]byte(line), &op); err != nil {
			skipped++
			continue
		}
		switch op.Op {
		case "put":
			if op.Rec == nil || op.Rec.ID == "" {
				skipped++
				continue
			}
			out[op.Rec.ID] = *op.Rec
		case "del":
			if op.ID == "" {
				skipped++
				continue
			}
			delete(out, op.ID)
		default:
			skipped++
		}
	}
	return skipped
}
