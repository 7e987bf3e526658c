package observer

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"mazeplan.ai/internal/observerproto"
	"mazeplan.ai/internal/planner/agent"
)

const subscriberQueue = 256

type subscriber struct {
	filter observerproto.SubscribeMsg
	out    chan []byte
}

// Hub fans agent records out to observer connections. It is an agent.Sink;
// slow subscribers lose events rather than stall the agent.
type Hub struct {
	mu   sync.Mutex
	subs map[string]*subscriber

	seq     atomic.Uint64
	dropped atomic.Uint64
}

func NewHub() *Hub {
	return &Hub{subs: map[string]*subscriber{}}
}

func (h *Hub) RecordEpisode(r agent.EpisodeRecord) error {
	h.publish(observerproto.EventMsg{Kind: observerproto.KindEpisode, EpisodeID: r.EpisodeID, Episode: &r})
	return nil
}

func (h *Hub) RecordDecision(r agent.DecisionRecord) error {
	h.publish(observerproto.EventMsg{Kind: observerproto.KindDecision, EpisodeID: r.EpisodeID, Decision: &r})
	return nil
}

func (h *Hub) RecordEnd(r agent.EndRecord) error {
	h.publish(observerproto.EventMsg{Kind: observerproto.KindEnd, EpisodeID: r.EpisodeID, End: &r})
	return nil
}

func (h *Hub) publish(ev observerproto.EventMsg) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.subs) == 0 {
		return
	}
	ev.Type = observerproto.TypeEvent
	ev.ProtocolVersion = observerproto.Version
	ev.Seq = h.seq.Add(1)
	var b []byte
	for _, s := range h.subs {
		if !s.filter.Wants(ev.Kind, ev.EpisodeID) {
			continue
		}
		if b == nil {
			var err error
			if b, err = json.Marshal(ev); err != nil {
				return
			}
		}
		select {
		case s.out <- b:
		default:
			h.dropped.Add(1)
		}
	}
}

func (h *Hub) join(id string, filter observerproto.SubscribeMsg) <-chan []byte {
	s := &subscriber{filter: filter, out: make(chan []byte, subscriberQueue)}
	h.mu.Lock()
	h.subs[id] = s
	h.mu.Unlock()
	return s.out
}

func (h *Hub) update(id string, filter observerproto.SubscribeMsg) {
	h.mu.Lock()
	if s := h.subs[id]; s != nil {
		s.filter = filter
	}
	h.mu.Unlock()
}

func (h *Hub) leave(id string) {
	h.mu.Lock()
	delete(h.subs, id)
	h.mu.Unlock()
}

// Subscribers is the number of connected observers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Dropped counts events not delivered because a subscriber queue was full.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }
