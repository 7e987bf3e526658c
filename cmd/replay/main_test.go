package main

import (
	"bytes"
	"strings"
	"testing"

	persistlog "mazeplan.ai/internal/persistence/log"
	"mazeplan.ai/internal/planner/agent"
	"mazeplan.ai/internal/planner/grid"
	"mazeplan.ai/internal/planner/render"
	"mazeplan.ai/internal/planner/tuning"
)

type memorySink struct {
	entries []persistlog.Entry
}

func (m *memorySink) RecordEpisode(r agent.EpisodeRecord) error {
	m.entries = append(m.entries, persistlog.Entry{Kind: persistlog.KindEpisode, Episode: &r})
	return nil
}

func (m *memorySink) RecordDecision(r agent.DecisionRecord) error {
	m.entries = append(m.entries, persistlog.Entry{Kind: persistlog.KindDecision, Decision: &r})
	return nil
}

func (m *memorySink) RecordEnd(r agent.EndRecord) error {
	m.entries = append(m.entries, persistlog.Entry{Kind: persistlog.KindEnd, End: &r})
	return nil
}

func recordCorridor(t *testing.T) *persistlog.Episode {
	t.Helper()
	sink := &memorySink{}
	a := agent.New(tuning.Defaults(), agent.WithSink(sink))
	goals := []grid.Position{{X: 4, Y: 0}}
	if _, err := a.StartEpisode(agent.Layout{Width: 5, Height: 1, Goals: goals}); err != nil {
		t.Fatalf("start: %v", err)
	}
	for x := 0; x < 3; x++ {
		st := agent.Step{Tick: uint64(x), Agent: grid.Position{X: x}, Goals: goals, Legal: []grid.Direction{grid.Stop, grid.East}}
		if x > 0 {
			st.Legal = append(st.Legal, grid.West)
		}
		if _, err := a.Decide(st); err != nil {
			t.Fatalf("decide: %v", err)
		}
	}
	a.EndEpisode("done")

	eps := persistlog.GroupEpisodes(sink.entries)
	if len(eps) != 1 || len(eps[0].Decisions) != 3 || eps[0].End == nil {
		t.Fatalf("unexpected trace: %+v", eps)
	}
	return eps[0]
}

func TestVerifyEpisodeMatches(t *testing.T) {
	ep := recordCorridor(t)
	var buf bytes.Buffer
	n, err := verifyEpisode(ep, render.New(false), &buf)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if n != 3 {
		t.Fatalf("verified=%d want=3", n)
	}
	if got := strings.Count(buf.String(), "action=East"); got != 3 {
		t.Fatalf("rendered %d East decisions:\n%s", got, buf.String())
	}
}

func TestVerifyEpisodeDetectsTampering(t *testing.T) {
	ep := recordCorridor(t)
	ep.Decisions[1].Decision.Digest = "deadbeef"
	n, err := verifyEpisode(ep, nil, nil)
	if err == nil || !strings.Contains(err.Error(), "digest") {
		t.Fatalf("err=%v", err)
	}
	if n != 1 {
		t.Fatalf("verified=%d want=1", n)
	}

	ep = recordCorridor(t)
	ep.Decisions[2].Seq = 7
	if _, err := verifyEpisode(ep, nil, nil); err == nil || !strings.Contains(err.Error(), "seq gap") {
		t.Fatalf("err=%v", err)
	}
}
