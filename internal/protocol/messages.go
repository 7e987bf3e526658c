package protocol

import (
	"mazeplan.ai/internal/planner/grid"
	"mazeplan.ai/internal/planner/reward"
	"mazeplan.ai/internal/planner/tuning"
)

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AgentName       string `json:"agent_name"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	SessionID       string         `json:"session_id"`
	Tuning          tuning.Planner `json:"tuning"`
	TuningDigest    string         `json:"tuning_digest,omitempty"`
}

// EPISODE (client -> server): static layout; starts a fresh episode.
type EpisodeMsg struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	Name            string          `json:"name,omitempty"`
	Width           int             `json:"width"`
	Height          int             `json:"height"`
	Walls           []grid.Position `json:"walls"`
	Goals           []grid.Position `json:"goals"`
}

type EpisodeStartedMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	EpisodeID       string `json:"episode_id"`
}

// STEP (client -> server): one decision request.
type StepMsg struct {
	Type            string           `json:"type"`
	ProtocolVersion string           `json:"protocol_version"`
	Tick            uint64           `json:"tick"`
	Agent           grid.Position    `json:"agent"`
	Goals           []grid.Position  `json:"goals"`
	Hazards         []reward.Hazard  `json:"hazards"`
	Legal           []grid.Direction `json:"legal"`
}

type DecisionMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	Tick            uint64         `json:"tick"`
	Action          grid.Direction `json:"action"`
	Iterations      int            `json:"iterations"`
	Converged       bool           `json:"converged"`
	SuppressedGoals int            `json:"suppressed_goals"`
	Digest          string         `json:"digest"`
	Fallback        bool           `json:"fallback,omitempty"`
}

type EpisodeEndMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Reason          string `json:"reason,omitempty"`
}

type EpisodeClosedMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	EpisodeID       string `json:"episode_id"`
}

type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message"`
	Tick            uint64 `json:"tick,omitempty"`
}
