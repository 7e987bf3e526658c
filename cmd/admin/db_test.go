package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mazeplan.ai/internal/persistence/indexdb"
	"mazeplan.ai/internal/planner/agent"
	"mazeplan.ai/internal/planner/grid"
	"mazeplan.ai/internal/planner/tuning"
)

func TestRunQuery(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index", "mazeplan.sqlite")
	idx, err := indexdb.OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	tu := tuning.Defaults()
	if err := idx.UpsertTuning(tu); err != nil {
		t.Fatalf("UpsertTuning: %v", err)
	}
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	_ = idx.RecordEpisode(agent.EpisodeRecord{EpisodeID: "E1", StartedAt: start, Layout: agent.Layout{Width: 3, Height: 1}, Tuning: tu})
	_ = idx.RecordDecision(agent.DecisionRecord{EpisodeID: "E1", At: start, Decision: agent.Decision{Action: grid.East, Iterations: 26, Converged: true}})
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	idx, err = indexdb.OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer idx.Close()
	ctx := context.Background()

	var buf bytes.Buffer
	if err := runQuery(ctx, idx, &buf, "episodes", "", "", 10); err != nil {
		t.Fatalf("episodes: %v", err)
	}
	if !strings.Contains(buf.String(), `"EpisodeID":"E1"`) {
		t.Fatalf("episodes output: %s", buf.String())
	}

	buf.Reset()
	if err := runQuery(ctx, idx, &buf, "stats", "E1", "", 0); err != nil {
		t.Fatalf("stats: %v", err)
	}
	if !strings.Contains(buf.String(), `"East":1`) {
		t.Fatalf("stats output: %s", buf.String())
	}

	buf.Reset()
	if err := runQuery(ctx, idx, &buf, "meta", "", "tuning_digest", 0); err != nil {
		t.Fatalf("meta: %v", err)
	}
	if strings.TrimSpace(buf.String()) != tu.Digest() {
		t.Fatalf("meta output: %q", buf.String())
	}

	if err := runQuery(ctx, idx, &buf, "stats", "nope", "", 0); !errors.Is(err, indexdb.ErrNotFound) {
		t.Fatalf("missing episode err=%v", err)
	}
	if err := runQuery(ctx, idx, &buf, "stats", "", "", 0); err == nil {
		t.Fatalf("expected missing -episode error")
	}
	if err := runQuery(ctx, idx, &buf, "bogus", "", "", 0); err == nil {
		t.Fatalf("expected unknown query error")
	}
}
