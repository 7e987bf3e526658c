package observer

import (
	"encoding/json"
	"io"
	"log"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"mazeplan.ai/internal/observerproto"
	"mazeplan.ai/internal/planner/agent"
	"mazeplan.ai/internal/planner/grid"
)

func dialObserver(t *testing.T, h *Hub, sub observerproto.SubscribeMsg) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(NewServer(h, log.New(io.Discard, "", 0)).WSHandler())
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	sub.Type = observerproto.TypeSubscribe
	sub.ProtocolVersion = observerproto.Version
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	var ack observerproto.SubscribedMsg
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&ack); err != nil {
		t.Fatalf("read ack: %v", err)
	}
	if ack.Type != observerproto.TypeSubscribed || ack.SubscriberID == "" {
		t.Fatalf("unexpected ack: %+v", ack)
	}
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) observerproto.EventMsg {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var ev observerproto.EventMsg
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	return ev
}

func TestObserverReceivesFilteredEvents(t *testing.T) {
	h := NewHub()
	conn := dialObserver(t, h, observerproto.SubscribeMsg{EpisodeID: "E1", Kinds: []string{observerproto.KindDecision, observerproto.KindEnd}})
	if h.Subscribers() != 1 {
		t.Fatalf("Subscribers=%d want=1", h.Subscribers())
	}

	_ = h.RecordEpisode(agent.EpisodeRecord{EpisodeID: "E1"})
	_ = h.RecordDecision(agent.DecisionRecord{EpisodeID: "E2", Decision: agent.Decision{Action: grid.West}})
	_ = h.RecordDecision(agent.DecisionRecord{EpisodeID: "E1", Seq: 4, Decision: agent.Decision{Action: grid.East}})
	_ = h.RecordEnd(agent.EndRecord{EpisodeID: "E1", Reason: "win"})

	ev := readEvent(t, conn)
	if ev.Type != observerproto.TypeEvent || ev.Kind != observerproto.KindDecision || ev.Decision == nil {
		t.Fatalf("unexpected first event: %+v", ev)
	}
	if ev.Decision.Seq != 4 || ev.Decision.Decision.Action != grid.East {
		t.Fatalf("unexpected decision: %+v", ev.Decision)
	}
	ev2 := readEvent(t, conn)
	if ev2.Kind != observerproto.KindEnd || ev2.End == nil || ev2.End.Reason != "win" {
		t.Fatalf("unexpected second event: %+v", ev2)
	}
	if ev2.Seq <= ev.Seq {
		t.Fatalf("seq not increasing: %d then %d", ev.Seq, ev2.Seq)
	}
}

func TestObserverRequiresSubscribe(t *testing.T) {
	h := NewHub()
	srv := httptest.NewServer(NewServer(h, log.New(io.Discard, "", 0)).WSHandler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	b, _ := json.Marshal(map[string]string{"type": "HELLO", "protocol_version": observerproto.Version})
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("expected policy violation close, got %v", err)
	}
}

func TestHubDropsWhenQueueFull(t *testing.T) {
	h := NewHub()
	out := h.join("O1", observerproto.SubscribeMsg{})
	for i := 0; i < subscriberQueue+3; i++ {
		_ = h.RecordDecision(agent.DecisionRecord{EpisodeID: "E1", Seq: i})
	}
	if len(out) != subscriberQueue {
		t.Fatalf("queued=%d want=%d", len(out), subscriberQueue)
	}
	if h.Dropped() != 3 {
		t.Fatalf("Dropped=%d want=3", h.Dropped())
	}
	h.leave("O1")
	if h.Subscribers() != 0 {
		t.Fatalf("Subscribers=%d after leave", h.Subscribers())
	}
}

func TestSubscribeWants(t *testing.T) {
	all := observerproto.SubscribeMsg{}
	if !all.Wants(observerproto.KindEpisode, "E9") {
		t.Fatalf("empty filter should pass everything")
	}
	only := observerproto.SubscribeMsg{EpisodeID: "E1", Kinds: []string{observerproto.KindEnd}}
	if only.Wants(observerproto.KindEnd, "E2") || only.Wants(observerproto.KindDecision, "E1") || !only.Wants(observerproto.KindEnd, "E1") {
		t.Fatalf("filter mismatch")
	}
}
