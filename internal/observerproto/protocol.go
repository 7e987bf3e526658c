// Package observerproto is the read-only spectator protocol. It is versioned
// separately from the agent WS protocol.
package observerproto

import "mazeplan.ai/internal/planner/agent"

const Version = "0.1"

const (
	TypeSubscribe  = "SUBSCRIBE"
	TypeSubscribed = "SUBSCRIBED"
	TypeEvent      = "EVENT"
)

// Event kinds, matching the decision trace.
const (
	KindEpisode  = "episode"
	KindDecision = "decision"
	KindEnd      = "end"
)

// SubscribeMsg is the first message on an observer connection. It may be
// re-sent to change the filter.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	// EpisodeID limits the stream to one episode; empty means all.
	EpisodeID string `json:"episode_id,omitempty"`
	// Kinds limits the stream to the listed event kinds; empty means all.
	Kinds []string `json:"kinds,omitempty"`
}

type SubscribedMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	SubscriberID    string `json:"subscriber_id"`
}

// EventMsg carries exactly one of Episode, Decision or End.
type EventMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Seq             uint64 `json:"seq"`
	Kind            string `json:"kind"`
	EpisodeID       string `json:"episode_id"`

	Episode  *agent.EpisodeRecord  `json:"episode,omitempty"`
	Decision *agent.DecisionRecord `json:"decision,omitempty"`
	End      *agent.EndRecord      `json:"end,omitempty"`
}

// Wants reports whether an event of kind for episodeID passes the filter.
func (s SubscribeMsg) Wants(kind, episodeID string) bool {
	if s.EpisodeID != "" && s.EpisodeID != episodeID {
		return false
	}
	if len(s.Kinds) == 0 {
		return true
	}
	for _, k := range s.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}
