package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"mazeplan.ai/internal/planner/agent"
	"mazeplan.ai/internal/planner/tuning"
)

// SQLiteIndex is a queryable secondary index of the decision trace. Writes are
// queued and applied by one goroutine; the JSONL trace stays authoritative.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.RWMutex
	closed atomic.Bool

	dropEpisode  atomic.Uint64
	dropDecision atomic.Uint64
	dropEnd      atomic.Uint64
}

type reqKind int

const (
	reqEpisode reqKind = iota + 1
	reqDecision
	reqEnd
)

type req struct {
	kind reqKind

	episode  agent.EpisodeRecord
	decision agent.DecisionRecord
	end      agent.EndRecord
}

const defaultQueue = 65536

func OpenSQLite(path string) (*SQLiteIndex, error) {
	return openSQLite(path, defaultQueue)
}

func openSQLite(path string, queue int) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, queue),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS episodes (
			episode_id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			width INTEGER NOT NULL,
			height INTEGER NOT NULL,
			walls INTEGER NOT NULL,
			goals INTEGER NOT NULL,
			tuning_digest TEXT NOT NULL,
			layout_json TEXT NOT NULL,
			ended_at TEXT,
			reason TEXT,
			decisions INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS decisions (
			episode_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			tick INTEGER NOT NULL,
			at TEXT NOT NULL,
			action TEXT NOT NULL,
			iterations INTEGER NOT NULL,
			converged INTEGER NOT NULL,
			max_delta REAL NOT NULL,
			suppressed_goals INTEGER NOT NULL,
			hazards INTEGER NOT NULL,
			fallback INTEGER NOT NULL,
			digest TEXT NOT NULL,
			PRIMARY KEY (episode_id, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_episode_tick ON decisions(episode_id, tick);`,
		`CREATE INDEX IF NOT EXISTS idx_episodes_started ON episodes(started_at);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		// Writers hold the read lock across their send, so no send can race
		// close(s.ch).
		s.mu.Lock()
		s.closed.Store(true)
		if s.ch != nil {
			close(s.ch)
		}
		s.mu.Unlock()
		if s.ch != nil {
			s.wg.Wait()
		}
		if s.db != nil {
			err = s.db.Close()
		}
	})
	return err
}

func (s *SQLiteIndex) RecordEpisode(r agent.EpisodeRecord) error {
	if s == nil {
		return nil
	}
	// Drop if the indexer falls behind; JSONL logs remain the source of truth.
	s.enqueue(req{kind: reqEpisode, episode: r}, &s.dropEpisode)
	return nil
}

func (s *SQLiteIndex) RecordDecision(r agent.DecisionRecord) error {
	if s == nil {
		return nil
	}
	s.enqueue(req{kind: reqDecision, decision: r}, &s.dropDecision)
	return nil
}

func (s *SQLiteIndex) RecordEnd(r agent.EndRecord) error {
	if s == nil {
		return nil
	}
	s.enqueue(req{kind: reqEnd, end: r}, &s.dropEnd)
	return nil
}

// enqueue never blocks; records arriving after Close are ignored.
func (s *SQLiteIndex) enqueue(r req, drops *atomic.Uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		drops.Add(1)
	}
}

type Stats struct {
	QueueDepth        int
	QueueCapacity     int
	DropEpisodeTotal  uint64
	DropDecisionTotal uint64
	DropEndTotal      uint64
}

func (s *SQLiteIndex) Stats() Stats {
	return Stats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropEpisodeTotal:  s.dropEpisode.Load(),
		DropDecisionTotal: s.dropDecision.Load(),
		DropEndTotal:      s.dropEnd.Load(),
	}
}

// UpsertTuning stores the constants in effect (canonical JSON) synchronously.
func (s *SQLiteIndex) UpsertTuning(t tuning.Planner) error {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(t)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	rows := [][2]string{
		{"schema_version", "1"},
		{"tuning_digest", t.Digest()},
		{"tuning_json", string(b)},
		{"updated_at", time.Now().UTC().Format(time.RFC3339Nano)},
	}
	for _, r := range rows {
		if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES(?,?)`, r[0], r[1]); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertEpisode, _ := s.db.Prepare(`INSERT OR REPLACE INTO episodes(episode_id,started_at,width,height,walls,goals,tuning_digest,layout_json) VALUES(?,?,?,?,?,?,?,?)`)
	insertDecision, _ := s.db.Prepare(`INSERT OR REPLACE INTO decisions(episode_id,seq,tick,at,action,iterations,converged,max_delta,suppressed_goals,hazards,fallback,digest) VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`)
	updateEnd, _ := s.db.Prepare(`UPDATE episodes SET ended_at=?, reason=?, decisions=? WHERE episode_id=?`)
	defer func() {
		for _, st := range []*sql.Stmt{insertEpisode, insertDecision, updateEnd} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) {
		if st == nil {
			return
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return
		}
		opCount++
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqEpisode:
			e := r.episode
			layout, _ := json.Marshal(e.Layout)
			exec(insertEpisode,
				e.EpisodeID,
				e.StartedAt.UTC().Format(time.RFC3339Nano),
				e.Layout.Width,
				e.Layout.Height,
				len(e.Layout.Walls),
				len(e.Layout.Goals),
				e.Tuning.Digest(),
				string(layout),
			)
		case reqDecision:
			d := r.decision
			exec(insertDecision,
				d.EpisodeID,
				d.Seq,
				int64(d.Decision.Tick),
				d.At.UTC().Format(time.RFC3339Nano),
				d.Decision.Action.String(),
				d.Decision.Iterations,
				boolInt(d.Decision.Converged),
				d.Decision.MaxDelta,
				d.Decision.SuppressedGoals,
				len(d.Step.Hazards),
				boolInt(d.Decision.Fallback),
				d.Decision.Digest,
			)
		case reqEnd:
			e := r.end
			exec(updateEnd, e.EndedAt.UTC().Format(time.RFC3339Nano), e.Reason, e.Decisions, e.EpisodeID)
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
