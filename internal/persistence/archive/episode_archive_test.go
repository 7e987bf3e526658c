package archive

import (
	"path/filepath"
	"testing"
	"time"

	persistlog "mazeplan.ai/internal/persistence/log"
	"mazeplan.ai/internal/planner/agent"
	"mazeplan.ai/internal/planner/grid"
	"mazeplan.ai/internal/planner/tuning"
)

func TestArchiveEpisode(t *testing.T) {
	dataDir := t.TempDir()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tu := tuning.Defaults()
	ep := &persistlog.Episode{
		Start: agent.EpisodeRecord{EpisodeID: "E1", StartedAt: start, Layout: agent.Layout{Width: 3, Height: 1}, Tuning: tu},
		Decisions: []agent.DecisionRecord{
			{EpisodeID: "E1", Seq: 0, At: start, Decision: agent.Decision{Action: grid.East, Digest: "aa"}},
			{EpisodeID: "E1", Seq: 1, At: start.Add(time.Second), Decision: agent.Decision{Action: grid.East, Digest: "bb"}},
		},
		End: &agent.EndRecord{EpisodeID: "E1", EndedAt: start.Add(time.Minute), Reason: "win", Decisions: 2},
	}

	dir, err := ArchiveEpisode(dataDir, ep)
	if err != nil {
		t.Fatalf("ArchiveEpisode: %v", err)
	}
	if dir != filepath.Join(dataDir, "archives", "episode_E1") {
		t.Fatalf("dir=%s", dir)
	}

	meta, err := ReadMeta(dir)
	if err != nil {
		t.Fatalf("ReadMeta: %v", err)
	}
	if meta.EpisodeID != "E1" || meta.Decisions != 2 || meta.Reason != "win" || meta.TuningDigest != tu.Digest() || meta.Trace != traceName {
		t.Fatalf("unexpected meta: %+v", meta)
	}

	files, err := persistlog.TraceFiles(dir)
	if err != nil || len(files) != 1 {
		t.Fatalf("TraceFiles=%v err=%v", files, err)
	}
	entries, err := persistlog.ReadEntries(files[0])
	if err != nil {
		t.Fatalf("ReadEntries: %v", err)
	}
	eps := persistlog.GroupEpisodes(entries)
	if len(eps) != 1 {
		t.Fatalf("episodes=%d want=1", len(eps))
	}
	got := eps[0]
	if got.Start.EpisodeID != "E1" || len(got.Decisions) != 2 || got.Decisions[1].Decision.Digest != "bb" || got.End == nil || got.End.Reason != "win" {
		t.Fatalf("unexpected round trip: %+v", got)
	}

	// Re-archiving overwrites rather than appends.
	ep.End = nil
	if _, err := ArchiveEpisode(dataDir, ep); err != nil {
		t.Fatalf("re-archive: %v", err)
	}
	entries, err = persistlog.ReadEntries(files[0])
	if err != nil {
		t.Fatalf("ReadEntries: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("entries=%d want=3", len(entries))
	}
	meta, _ = ReadMeta(dir)
	if meta.EndedAt != "" || meta.Reason != "" {
		t.Fatalf("open episode meta: %+v", meta)
	}
}

func TestArchiveEpisodeRejectsEmpty(t *testing.T) {
	if _, err := ArchiveEpisode(t.TempDir(), nil); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := ArchiveEpisode(t.TempDir(), &persistlog.Episode{}); err == nil {
		t.Fatalf("expected error")
	}
}
