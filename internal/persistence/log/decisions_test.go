package log

import (
	"path/filepath"
	"testing"
	"time"

	"mazeplan.ai/internal/planner/agent"
	"mazeplan.ai/internal/planner/grid"
	"mazeplan.ai/internal/planner/tuning"
)

func TestDecisionLogger_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	l := newDecisionLogger(dir, func() time.Time { return now })

	layout := agent.Layout{Width: 3, Height: 1, Goals: []grid.Position{{X: 2, Y: 0}}}
	if err := l.RecordEpisode(agent.EpisodeRecord{EpisodeID: "E1", StartedAt: now, Layout: layout, Tuning: tuning.Defaults()}); err != nil {
		t.Fatalf("RecordEpisode: %v", err)
	}
	for seq := 0; seq < 3; seq++ {
		err := l.RecordDecision(agent.DecisionRecord{
			EpisodeID: "E1",
			Seq:       seq,
			At:        now,
			Step:      agent.Step{Tick: uint64(seq), Legal: []grid.Direction{grid.Stop, grid.East}},
			Decision:  agent.Decision{Tick: uint64(seq), Action: grid.East, Iterations: 26, Converged: true},
		})
		if err != nil {
			t.Fatalf("RecordDecision: %v", err)
		}
	}
	// Stray decision for an episode never started.
	_ = l.RecordDecision(agent.DecisionRecord{EpisodeID: "E0"})
	if err := l.RecordEnd(agent.EndRecord{EpisodeID: "E1", EndedAt: now, Reason: "win", Decisions: 3}); err != nil {
		t.Fatalf("RecordEnd: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	files, err := TraceFiles(TraceDir(dir))
	if err != nil || len(files) != 1 {
		t.Fatalf("TraceFiles: %v %v", files, err)
	}
	entries, err := ReadEntries(files[0])
	if err != nil {
		t.Fatalf("ReadEntries: %v", err)
	}
	if len(entries) != 6 {
		t.Fatalf("entries=%d want=6", len(entries))
	}

	eps := GroupEpisodes(entries)
	if len(eps) != 1 {
		t.Fatalf("episodes=%d want=1", len(eps))
	}
	ep := eps[0]
	if ep.Start.Layout.Width != 3 || ep.Start.Tuning.Gamma != 0.925 {
		t.Fatalf("unexpected start: %+v", ep.Start)
	}
	if len(ep.Decisions) != 3 || ep.Decisions[2].Decision.Action != grid.East {
		t.Fatalf("unexpected decisions: %+v", ep.Decisions)
	}
	if got := ep.Decisions[1].Step.Legal; len(got) != 2 || got[0] != grid.Stop {
		t.Fatalf("legal actions not preserved: %v", got)
	}
	if ep.End == nil || ep.End.Reason != "win" {
		t.Fatalf("unexpected end: %+v", ep.End)
	}
}

func TestDecisionLogger_ReopenAppendsFrames(t *testing.T) {
	dir := t.TempDir()
	at := time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)
	l := newDecisionLogger(dir, func() time.Time { return at })
	if err := l.RecordEnd(agent.EndRecord{EpisodeID: "A"}); err != nil {
		t.Fatalf("RecordEnd: %v", err)
	}
	_ = l.Close()
	if err := l.RecordEnd(agent.EndRecord{EpisodeID: "B"}); err != nil {
		t.Fatalf("RecordEnd after close: %v", err)
	}
	_ = l.Close()

	files, _ := TraceFiles(TraceDir(dir))
	if len(files) != 1 {
		t.Fatalf("files=%v", files)
	}
	entries, err := ReadEntries(files[0])
	if err != nil {
		t.Fatalf("ReadEntries: %v", err)
	}
	if len(entries) != 2 || entries[0].EpisodeID() != "A" || entries[1].EpisodeID() != "B" {
		t.Fatalf("entries=%+v", entries)
	}
}

func TestDecisionLogger_RotatesHourly(t *testing.T) {
	dir := t.TempDir()
	at := time.Date(2026, 1, 2, 3, 59, 0, 0, time.UTC)
	l := newDecisionLogger(dir, func() time.Time { return at })

	_ = l.RecordEpisode(agent.EpisodeRecord{EpisodeID: "E1"})
	at = at.Add(2 * time.Minute)
	_ = l.RecordDecision(agent.DecisionRecord{EpisodeID: "E1"})
	_ = l.RecordEnd(agent.EndRecord{EpisodeID: "E1", Reason: "win"})
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	files, err := TraceFiles(TraceDir(dir))
	if err != nil {
		t.Fatalf("TraceFiles: %v", err)
	}
	want := []string{"decisions-2026-01-02-03.jsonl.zst", "decisions-2026-01-02-04.jsonl.zst"}
	if len(files) != 2 || filepath.Base(files[0]) != want[0] || filepath.Base(files[1]) != want[1] {
		t.Fatalf("files=%v want=%v", files, want)
	}

	// An episode spanning segments regroups when files are read in order.
	var all []Entry
	for _, f := range files {
		es, err := ReadEntries(f)
		if err != nil {
			t.Fatalf("ReadEntries: %v", err)
		}
		all = append(all, es...)
	}
	eps := GroupEpisodes(all)
	if len(eps) != 1 || len(eps[0].Decisions) != 1 || eps[0].End == nil {
		t.Fatalf("unexpected episodes: %+v", eps)
	}
}
