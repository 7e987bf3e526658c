package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/klauspost/compress/zstd"

	"mazeplan.ai/internal/planner/agent"
)

const (
	KindEpisode  = "episode"
	KindDecision = "decision"
	KindEnd      = "end"
)

// Entry is one line of the decision trace. Exactly one payload is set.
type Entry struct {
	Kind     string                `json:"kind"`
	Episode  *agent.EpisodeRecord  `json:"episode,omitempty"`
	Decision *agent.DecisionRecord `json:"decision,omitempty"`
	End      *agent.EndRecord      `json:"end,omitempty"`
}

func (e Entry) EpisodeID() string {
	switch {
	case e.Episode != nil:
		return e.Episode.EpisodeID
	case e.Decision != nil:
		return e.Decision.EpisodeID
	case e.End != nil:
		return e.End.EpisodeID
	}
	return ""
}

// DecisionLogger is an agent.Sink writing the trace under <dir>/decisions.
type DecisionLogger struct{ seg *segments }

func NewDecisionLogger(dataDir string) *DecisionLogger {
	return newDecisionLogger(dataDir, time.Now)
}

func newDecisionLogger(dataDir string, now func() time.Time) *DecisionLogger {
	return &DecisionLogger{seg: newSegments(TraceDir(dataDir), now)}
}

// TraceDir is where NewDecisionLogger writes for a data directory.
func TraceDir(dataDir string) string { return filepath.Join(dataDir, "decisions") }

func (l *DecisionLogger) RecordEpisode(r agent.EpisodeRecord) error {
	return l.seg.append(Entry{Kind: KindEpisode, Episode: &r})
}

func (l *DecisionLogger) RecordDecision(r agent.DecisionRecord) error {
	return l.seg.append(Entry{Kind: KindDecision, Decision: &r})
}

func (l *DecisionLogger) RecordEnd(r agent.EndRecord) error {
	return l.seg.append(Entry{Kind: KindEnd, End: &r})
}

// Close seals the open segment. A later record reopens it.
func (l *DecisionLogger) Close() error { return l.seg.close() }

// TraceFiles lists the trace files in dir, oldest first.
func TraceFiles(dir string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.jsonl.zst"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

// ReadEntries decodes every entry of one trace file in order.
func ReadEntries(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var out []Entry
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return out, fmt.Errorf("%s:%d: %w", filepath.Base(path), line, err)
		}
		out = append(out, e)
	}
	return out, sc.Err()
}

// Episode groups the trace of one episode.
type Episode struct {
	Start     agent.EpisodeRecord
	Decisions []agent.DecisionRecord
	End       *agent.EndRecord
}

// GroupEpisodes assembles episodes from entries in trace order. Decisions of
// episodes whose start is missing are dropped.
func GroupEpisodes(entries []Entry) []*Episode {
	byID := map[string]*Episode{}
	var order []*Episode
	for _, e := range entries {
		switch e.Kind {
		case KindEpisode:
			if e.Episode == nil {
				continue
			}
			ep := &Episode{Start: *e.Episode}
			byID[e.Episode.EpisodeID] = ep
			order = append(order, ep)
		case KindDecision:
			if ep := byID[e.EpisodeID()]; ep != nil && e.Decision != nil {
				ep.Decisions = append(ep.Decisions, *e.Decision)
			}
		case KindEnd:
			if ep := byID[e.EpisodeID()]; ep != nil && e.End != nil {
				end := *e.End
				ep.End = &end
			}
		}
	}
	return order
}
