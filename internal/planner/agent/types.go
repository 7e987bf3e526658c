package agent

import (
	"time"

	"mazeplan.ai/internal/planner/grid"
	"mazeplan.ai/internal/planner/reward"
	"mazeplan.ai/internal/planner/tuning"
)

// Layout is the static part of an episode.
type Layout struct {
	Width  int             `json:"width"`
	Height int             `json:"height"`
	Walls  []grid.Position `json:"walls"`
	Goals  []grid.Position `json:"goals"`
}

// Step is the environment snapshot for one decision.
type Step struct {
	Tick    uint64           `json:"tick"`
	Agent   grid.Position    `json:"agent"`
	Goals   []grid.Position  `json:"goals"`
	Hazards []reward.Hazard  `json:"hazards"`
	Legal   []grid.Direction `json:"legal"`
}

type Decision struct {
	Tick            uint64         `json:"tick"`
	Action          grid.Direction `json:"action"`
	Iterations      int            `json:"iterations"`
	Converged       bool           `json:"converged"`
	MaxDelta        float64        `json:"max_delta"`
	SuppressedGoals int            `json:"suppressed_goals"`
	Digest          string         `json:"digest"`
	Fallback        bool           `json:"fallback,omitempty"`
}

type EpisodeRecord struct {
	EpisodeID string         `json:"episode_id"`
	StartedAt time.Time      `json:"started_at"`
	Layout    Layout         `json:"layout"`
	Tuning    tuning.Planner `json:"tuning"`
}

type DecisionRecord struct {
	EpisodeID string    `json:"episode_id"`
	Seq       int       `json:"seq"`
	At        time.Time `json:"at"`
	Step      Step      `json:"step"`
	Decision  Decision  `json:"decision"`
}

type EndRecord struct {
	EpisodeID string    `json:"episode_id"`
	EndedAt   time.Time `json:"ended_at"`
	Reason    string    `json:"reason"`
	Decisions int       `json:"decisions"`
}

// Sink receives the trace of every episode. Implementations must not block
// the decision loop for long; errors are logged and otherwise ignored.
type Sink interface {
	RecordEpisode(EpisodeRecord) error
	RecordDecision(DecisionRecord) error
	RecordEnd(EndRecord) error
}

type multiSink []Sink

// Sinks fans records out to every non-nil sink, returning the first error.
func Sinks(sinks ...Sink) Sink {
	var out multiSink
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (m multiSink) RecordEpisode(r EpisodeRecord) error {
	var first error
	for _, s := range m {
		if err := s.RecordEpisode(r); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m multiSink) RecordDecision(r DecisionRecord) error {
	var first error
	for _, s := range m {
		if err := s.RecordDecision(r); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m multiSink) RecordEnd(r EndRecord) error {
	var first error
	for _, s := range m {
		if err := s.RecordEnd(r); err != nil && first == nil {
			first = err
		}
	}
	return first
}
